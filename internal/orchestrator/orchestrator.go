// Package orchestrator drives the file-chunked outer loop that ties the
// item loader, the embed drivers, and the vector store together (spec.md
// §4.10): for each outer chunk it loads items, estimates their embedding
// cost, invokes whichever embed driver is configured, and grows the
// in-memory existing-IDs set so later chunks in the same run never resubmit
// work the vector store has not yet been re-scanned to reflect.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/quaero-index/internal/models"
	"github.com/ternarybob/quaero-index/internal/pipeline/errtype"
)

// VectorStore is the narrow slice of internal/vectorstore the orchestrator
// needs, accepted as an interface so it can be faked in tests.
type VectorStore interface {
	EnsureCollection(ctx context.Context) error
	ExistingIDs(ctx context.Context) (map[string]struct{}, error)
}

// ItemLoader is the narrow slice of internal/itemloader the orchestrator
// needs.
type ItemLoader interface {
	Load(filenames []string, branches []string, existingIDs map[string]struct{}) ([]models.Item, error)
}

// ChunkStats is what one embed driver reports back for a single outer
// chunk, normalized across the realtime and batch drivers' differently-
// shaped Stats types.
type ChunkStats struct {
	ItemsEmbedded int
	ItemsFailed   int
}

// ChunkDriver embeds one outer chunk's items through whichever pipeline is
// configured (realtime worker pool or async batch submission).
type ChunkDriver interface {
	RunChunk(ctx context.Context, items []models.Item) (ChunkStats, error)
}

// Resumer implements the Resume Protocol's startup scan (spec.md §4.8).
// Only the batch pipeline has durable cross-restart state to resume; the
// realtime pipeline has none, since a realtime sub-batch either finishes or
// is abandoned within a single process lifetime.
type Resumer interface {
	Resume(ctx context.Context, apiKey string) (ChunkStats, map[string]struct{}, error)
}

// Config carries the orchestrator's own tunables, derived from
// common.EmbedConfig and common.WorkSourceConfig by the caller.
type Config struct {
	ReadmesDir      string
	Branches        []string
	OuterChunkSize  int // BATCH_CHUNK_SIZE × BATCH_PARALLEL × 2
	SampleSize      int // items sampled to estimate mean chars per chunk
	PricePerMTokens float64
	ResumeAPIKey    string // used only when Resumer is non-nil
}

// Stats aggregates one full orchestrator run across every outer chunk.
type Stats struct {
	ChunksProcessed  int
	ItemsEmbedded    int
	ItemsFailed      int
	EstimatedCostUSD float64
	BudgetExhausted  bool
}

// Orchestrator drives the outer loop described in spec.md §4.10.
type Orchestrator struct {
	config  Config
	loader  ItemLoader
	vectors VectorStore
	driver  ChunkDriver
	resumer Resumer // nil when the active provider is realtime-based
	logger  arbor.ILogger
}

// New builds an orchestrator. resumer may be nil (realtime pipeline has no
// durable state to resume).
func New(cfg Config, loader ItemLoader, vectors VectorStore, driver ChunkDriver, resumer Resumer, logger arbor.ILogger) *Orchestrator {
	if cfg.OuterChunkSize <= 0 {
		cfg.OuterChunkSize = 150000 // 25000 × 3 × 2, the documented defaults
	}
	if cfg.SampleSize <= 0 {
		cfg.SampleSize = 100
	}
	return &Orchestrator{config: cfg, loader: loader, vectors: vectors, driver: driver, resumer: resumer, logger: logger}
}

// Run executes one full pass: ensure the collection exists, resume any
// in-flight batch state, then drive the file-chunked outer loop until the
// README directory is exhausted or a BudgetExhausted condition is reached.
// A BudgetExhausted condition is not an error: Run returns (stats, nil) with
// Stats.BudgetExhausted set, and the caller exits 0 (spec.md §4.7, §6).
func (o *Orchestrator) Run(ctx context.Context) (Stats, error) {
	var stats Stats

	if err := o.vectors.EnsureCollection(ctx); err != nil {
		return stats, fmt.Errorf("orchestrator: ensure collection: %w", err)
	}

	existingIDs, err := o.vectors.ExistingIDs(ctx)
	if err != nil {
		return stats, fmt.Errorf("orchestrator: load existing IDs: %w", err)
	}

	if o.resumer != nil {
		resumeStats, inFlight, err := o.resumer.Resume(ctx, o.config.ResumeAPIKey)
		if err != nil {
			return stats, fmt.Errorf("orchestrator: resume: %w", err)
		}
		for id := range inFlight {
			existingIDs[id] = struct{}{}
		}
		stats.ItemsEmbedded += resumeStats.ItemsEmbedded
		stats.ItemsFailed += resumeStats.ItemsFailed
		if o.logger != nil {
			o.logger.Info().Int("resolved", len(inFlight)).Msg("resume protocol: recovered in-flight batch state")
		}
	}

	filenames, err := listReadmeFilenames(o.config.ReadmesDir)
	if err != nil {
		return stats, fmt.Errorf("orchestrator: list readmes: %w", err)
	}

	for _, chunk := range chunkFilenames(filenames, o.config.OuterChunkSize) {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}

		items, err := o.loader.Load(chunk, o.config.Branches, existingIDs)
		if err != nil {
			return stats, fmt.Errorf("orchestrator: load chunk: %w", err)
		}
		if len(items) == 0 {
			continue
		}

		estimate := estimateCostUSD(items, o.config.PricePerMTokens, o.config.SampleSize)
		stats.EstimatedCostUSD += estimate
		if o.logger != nil {
			o.logger.Info().Int("chunk_items", len(items)).Float64("estimated_cost_usd", estimate).
				Msg("orchestrator: dispatching chunk")
		}

		chunkStats, err := o.driver.RunChunk(ctx, items)
		stats.ChunksProcessed++
		stats.ItemsEmbedded += chunkStats.ItemsEmbedded
		stats.ItemsFailed += chunkStats.ItemsFailed

		var budget *errtype.Budget
		if err != nil && errors.As(err, &budget) {
			// Graceful stop (spec.md §4.7): state is preserved, remaining
			// chunks are never submitted, and the run still reports success.
			stats.BudgetExhausted = true
			if o.logger != nil {
				o.logger.Warn().Msg("orchestrator: budget exhausted, stopping further submission")
			}
			return stats, nil
		}

		var terminal *errtype.TerminalBatch
		if err != nil && errors.As(err, &terminal) {
			// Per-chunk terminal batch failure: recorded, not fatal for the
			// run (propagation policy, spec.md §7).
			if o.logger != nil {
				o.logger.Error().Str("batch_id", terminal.BatchID).Str("status", terminal.Status).
					Msg("orchestrator: chunk's batch reached a terminal failure state")
			}
		} else if err != nil {
			return stats, fmt.Errorf("orchestrator: chunk failed: %w", err)
		}

		for _, item := range items {
			existingIDs[item.ID.String()] = struct{}{}
		}
	}

	return stats, nil
}

// listReadmeFilenames returns the base names of every README file directly
// under dir, in sorted order for reproducible chunk boundaries across runs.
// The ".errors" marker subdirectory is skipped.
func listReadmeFilenames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read readmes dir %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// chunkFilenames splits names into groups of at most size, preserving
// order (spec.md §4.10's "file-level outer loop").
func chunkFilenames(names []string, size int) [][]string {
	var chunks [][]string
	for start := 0; start < len(names); start += size {
		end := start + size
		if end > len(names) {
			end = len(names)
		}
		chunks = append(chunks, names[start:end])
	}
	return chunks
}

// estimateCostUSD implements spec.md §4.10's cost estimate: sample mean
// characters × items ÷ 4 chars-per-token × price.
func estimateCostUSD(items []models.Item, pricePerMTokens float64, sampleSize int) float64 {
	if len(items) == 0 || pricePerMTokens <= 0 {
		return 0
	}
	if sampleSize <= 0 || sampleSize > len(items) {
		sampleSize = len(items)
	}

	var totalChars int
	for i := 0; i < sampleSize; i++ {
		totalChars += len(items[i].Content)
	}
	meanChars := float64(totalChars) / float64(sampleSize)

	estimatedTokens := meanChars * float64(len(items)) / 4
	return estimatedTokens / 1_000_000 * pricePerMTokens
}
