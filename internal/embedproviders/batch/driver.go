// Package batch implements the Batch Embed Driver (spec.md §4.7): chunked
// submission against a provider's asynchronous batch-embedding endpoint,
// durable state tracking so a crash never loses or duplicates a submission,
// and the state-retention rule that governs what survives a completed run.
package batch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/quaero-index/internal/batchstate"
	"github.com/ternarybob/quaero-index/internal/embedproviders"
	"github.com/ternarybob/quaero-index/internal/models"
	"github.com/ternarybob/quaero-index/internal/pipeline/errtype"
)

// VectorUpserter is the narrow slice of internal/vectorstore the driver
// needs, accepted as an interface so it can be faked in tests.
type VectorUpserter interface {
	Upsert(ctx context.Context, points []models.VectorPoint) error
}

const upsertChunkSize = 100

// Config carries the subset of common.EmbedConfig the batch driver consumes.
type Config struct {
	ChunkSize     int
	Parallel      int
	PollInterval  time.Duration
	MaxContentLen int
}

// Stats aggregates one driver run across all chunks.
type Stats struct {
	ChunksSubmitted int
	ItemsSucceeded  int
	ItemsFailed     int
	BatchesRetained int
}

// Driver is the batch embed worker pool.
type Driver struct {
	config   Config
	provider Provider
	keys     *embedproviders.KeyRotator
	state    *batchstate.Store
	store    VectorUpserter
	logger   arbor.ILogger
}

// New builds a batch driver.
func New(cfg Config, provider Provider, keys *embedproviders.KeyRotator, state *batchstate.Store, store VectorUpserter, logger arbor.ILogger) *Driver {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 25000
	}
	if cfg.Parallel <= 0 {
		cfg.Parallel = 3
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	return &Driver{config: cfg, provider: provider, keys: keys, state: state, store: store, logger: logger}
}

// Run splits items into chunks of ChunkSize and submits up to Parallel of
// them concurrently, each run through submit → persist → poll → download →
// upsert → retention. A BudgetExhausted error from any chunk stops
// submission of further chunks and is returned to the caller so the
// Orchestrator can treat it as a graceful stop.
func (d *Driver) Run(ctx context.Context, items []models.Item) (Stats, error) {
	chunks := chunkItems(items, d.config.ChunkSize)

	var (
		mu        sync.Mutex
		stats     Stats
		sem       = make(chan struct{}, d.config.Parallel)
		wg        sync.WaitGroup
		budgetErr error
	)

	for _, chunk := range chunks {
		mu.Lock()
		hitBudget := budgetErr != nil
		mu.Unlock()
		if hitBudget {
			break
		}

		sem <- struct{}{}
		wg.Add(1)
		chunk := chunk
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			mu.Lock()
			alreadyHitBudget := budgetErr != nil
			mu.Unlock()
			if alreadyHitBudget {
				return
			}

			chunkStats, err := d.runChunk(ctx, chunk)

			mu.Lock()
			defer mu.Unlock()
			stats.ChunksSubmitted++
			stats.ItemsSucceeded += chunkStats.ItemsSucceeded
			stats.ItemsFailed += chunkStats.ItemsFailed
			stats.BatchesRetained += chunkStats.BatchesRetained

			var budget *errtype.Budget
			if err != nil && errors.As(err, &budget) && budgetErr == nil {
				budgetErr = err
			} else if err != nil && d.logger != nil {
				d.logger.Error().Err(err).Msg("batch chunk terminated with an error")
			}
		}()
	}

	wg.Wait()
	return stats, budgetErr
}

// Resume implements the Resume Protocol (spec.md §4.8): before any new
// chunk is submitted, every batch record already on disk is checked against
// the provider's current status and routed accordingly (completed -> download
// + upsert + retention rule; in_progress/validating -> keep polling;
// otherwise -> remove). It returns the IDs of every item named by a still
// in-flight or just-resolved record, which the Orchestrator folds into
// existingIds so nothing already tracked is resubmitted.
func (d *Driver) Resume(ctx context.Context, apiKey string) (Stats, map[string]struct{}, error) {
	records, err := d.state.All()
	if err != nil {
		return Stats{}, nil, err
	}

	resolved := make(map[string]struct{})
	if len(records) == 0 {
		return Stats{}, resolved, nil
	}

	var (
		mu    sync.Mutex
		stats Stats
		wg    sync.WaitGroup
		sem   = make(chan struct{}, d.config.Parallel)
	)

	for _, record := range records {
		for _, meta := range record.Items {
			resolved[meta.ID] = struct{}{}
		}

		record := record
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			chunkStats, err := d.resumeOne(ctx, apiKey, record)

			mu.Lock()
			defer mu.Unlock()
			stats.ItemsSucceeded += chunkStats.ItemsSucceeded
			stats.ItemsFailed += chunkStats.ItemsFailed
			stats.BatchesRetained += chunkStats.BatchesRetained
			if err != nil && d.logger != nil {
				d.logger.Error().Err(err).Str("batch_id", record.BatchID).Msg("resume: failed to resolve tracked batch")
			}
		}()
	}

	wg.Wait()
	return stats, resolved, nil
}

// resumeOne checks one tracked record's current status and routes it: the
// same completed/in_progress/terminal-failure branches runChunk's
// poll-and-finish path uses, minus the initial submit+persist steps since
// this record was already persisted by an earlier run.
func (d *Driver) resumeOne(ctx context.Context, apiKey string, record models.BatchRecord) (Stats, error) {
	byID := make(map[string]models.Item, len(record.Items))
	for _, meta := range record.Items {
		id, err := uuid.Parse(meta.ID)
		if err != nil {
			continue
		}
		byID[meta.ID] = models.Item{ID: id, Repo: meta.Repo, ContentHash: meta.ContentHash}
	}

	status, err := d.provider.Poll(ctx, record.BatchID, apiKey)
	if err != nil {
		return Stats{}, err
	}

	switch status.Status {
	case "completed":
		return d.downloadAndUpsert(ctx, record.BatchID, apiKey, status.OutputFileID, byID)
	case "in_progress", "validating":
		return d.pollAndFinish(ctx, record.BatchID, apiKey, byID)
	default:
		if err := d.state.Delete(record.BatchID); err != nil {
			return Stats{}, err
		}
		return Stats{ItemsFailed: len(byID)}, nil
	}
}

func chunkItems(items []models.Item, size int) [][]models.Item {
	var chunks [][]models.Item
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end])
	}
	return chunks
}

func (d *Driver) runChunk(ctx context.Context, items []models.Item) (Stats, error) {
	apiKey := d.keys.Next()

	requestItems := make([]RequestItem, len(items))
	byID := make(map[string]models.Item, len(items))
	for i, item := range items {
		content := item.Content
		if d.config.MaxContentLen > 0 {
			content = models.Truncate(content, d.config.MaxContentLen)
		}
		requestItems[i] = RequestItem{ID: item.ID.String(), Content: content}
		byID[item.ID.String()] = item
	}

	submitted, err := d.provider.Submit(ctx, requestItems, apiKey)
	if err != nil {
		return Stats{}, err
	}

	record := models.BatchRecord{
		BatchID:   submitted.BatchID,
		CreatedAt: time.Now().UTC(),
	}
	for _, item := range items {
		record.Items = append(record.Items, models.BatchItemMeta{
			ID:          item.ID.String(),
			Repo:        item.Repo,
			ContentHash: item.ContentHash,
		})
	}
	// Persist BEFORE polling begins: a crash after this point still knows
	// about the in-flight batch (spec.md §4.7 step 3, §4.8 Resume Protocol).
	if err := d.state.Put(record); err != nil {
		return Stats{}, err
	}

	return d.pollAndFinish(ctx, submitted.BatchID, apiKey, byID)
}

func (d *Driver) pollAndFinish(ctx context.Context, batchID, apiKey string, byID map[string]models.Item) (Stats, error) {
	ticker := time.NewTicker(d.config.PollInterval)
	defer ticker.Stop()

	for {
		status, err := d.provider.Poll(ctx, batchID, apiKey)
		if err != nil {
			return Stats{}, err
		}

		switch status.Status {
		case "completed":
			return d.downloadAndUpsert(ctx, batchID, apiKey, status.OutputFileID, byID)
		case "failed", "expired", "cancelled":
			// The batch's own state entry is left for the operator per the
			// retention rule's "else retain" branch; nothing to download.
			return Stats{ItemsFailed: len(byID), BatchesRetained: 1}, &errtype.TerminalBatch{BatchID: batchID, Status: status.Status}
		}

		select {
		case <-ctx.Done():
			return Stats{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (d *Driver) downloadAndUpsert(ctx context.Context, batchID, apiKey, outputFileID string, byID map[string]models.Item) (Stats, error) {
	results, err := d.provider.Download(ctx, outputFileID, apiKey)
	if err != nil {
		return Stats{}, err
	}

	points := make([]models.VectorPoint, 0, len(results))
	succeeded := 0
	for _, r := range results {
		item, ok := byID[r.ID]
		if !ok || r.Err != "" || r.Embedding == nil {
			continue
		}
		succeeded++
		points = append(points, models.VectorPoint{
			ID:     item.ID,
			Vector: r.Embedding,
			Payload: models.VectorPayload{
				RepoName:    item.Repo,
				ContentHash: item.ContentHash,
			},
		})
	}

	for start := 0; start < len(points); start += upsertChunkSize {
		end := start + upsertChunkSize
		if end > len(points) {
			end = len(points)
		}
		if err := d.store.Upsert(ctx, points[start:end]); err != nil {
			return Stats{}, err
		}
	}

	stats := Stats{ItemsSucceeded: succeeded, ItemsFailed: len(byID) - succeeded}

	if models.ShouldRetain(len(byID), succeeded) {
		stats.BatchesRetained = 1
	} else if err := d.state.Delete(batchID); err != nil {
		return stats, err
	}

	return stats, nil
}
