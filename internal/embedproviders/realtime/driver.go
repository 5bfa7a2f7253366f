// Package realtime implements the Realtime Embed Driver (spec.md §4.6): a
// fixed worker pool that pulls batches off the Async Buffer, packs them into
// provider-sized sub-batches, embeds them with retry, and upserts the
// resulting vectors without waiting for server-side indexing.
package realtime

import (
	"context"
	"errors"
	"sync"

	"github.com/cenkalti/backoff/v4"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/quaero-index/internal/asyncbuffer"
	"github.com/ternarybob/quaero-index/internal/common"
	"github.com/ternarybob/quaero-index/internal/embedproviders"
	"github.com/ternarybob/quaero-index/internal/models"
	"github.com/ternarybob/quaero-index/internal/pipeline/errtype"
)

// VectorUpserter is the narrow slice of internal/vectorstore the driver
// needs, accepted as an interface so it can be faked in tests.
type VectorUpserter interface {
	Upsert(ctx context.Context, points []models.VectorPoint) error
}

// Stats aggregates one driver run's throughput for the orchestrator's
// progress line.
type Stats struct {
	ItemsEmbedded int64
	Tokens        int64
	CostUSD       float64
	ItemsFailed   int64
}

// Driver is the realtime embed worker pool.
type Driver struct {
	workers       int
	batchSize     int
	maxBatchChars int
	maxContentLen int
	repoName      string

	provider embedproviders.RealtimeProvider
	keys     *embedproviders.KeyRotator
	buffer   *asyncbuffer.Buffer
	store    VectorUpserter
	logger   arbor.ILogger

	mu    sync.Mutex
	stats Stats
}

// Config carries the subset of common.EmbedConfig the driver consumes.
type Config struct {
	Workers       int
	BatchSize     int
	MaxBatchChars int
	MaxContentLen int
}

// New builds a realtime driver pulling from buffer and upserting into store.
func New(cfg Config, provider embedproviders.RealtimeProvider, keys *embedproviders.KeyRotator, buffer *asyncbuffer.Buffer, store VectorUpserter, logger arbor.ILogger) *Driver {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 48
	}
	return &Driver{
		workers:       workers,
		batchSize:     cfg.BatchSize,
		maxBatchChars: cfg.MaxBatchChars,
		maxContentLen: cfg.MaxContentLen,
		provider:      provider,
		keys:          keys,
		buffer:        buffer,
		store:         store,
		logger:        logger,
	}
}

// Run starts the worker pool and blocks until the Async Buffer is drained
// and finished, returning the run's aggregate stats.
func (d *Driver) Run(ctx context.Context) Stats {
	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		workerID := i
		common.SafeGo(d.logger, "realtime-embed-worker", func() {
			defer wg.Done()
			d.runWorker(ctx, workerID)
		})
	}
	wg.Wait()

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

func (d *Driver) runWorker(ctx context.Context, workerID int) {
	for {
		if ctx.Err() != nil {
			return
		}
		batch := d.buffer.Pull()
		if batch == nil {
			return
		}
		for _, sub := range packSubBatches(batch, d.batchSize, d.maxBatchChars, d.maxContentLen) {
			d.embedSubBatch(ctx, workerID, sub)
		}
	}
}

func (d *Driver) embedSubBatch(ctx context.Context, workerID int, sub subBatch) {
	var result embedproviders.EmbedResult
	operation := func() error {
		apiKey := d.keys.Next()
		res, err := d.provider.EmbedRealtime(ctx, sub.texts, apiKey)
		if err != nil {
			var transient *errtype.Transient
			if errors.As(err, &transient) {
				return err
			}
			return backoff.Permanent(err)
		}
		result = res
		return nil
	}

	err := backoff.Retry(operation, newSubBatchBackOff())
	if err != nil {
		if d.logger != nil {
			d.logger.Error().Int("worker", workerID).Int("items", len(sub.items)).Err(err).
				Msg("realtime sub-batch embedding failed terminally")
		}
		d.mu.Lock()
		d.stats.ItemsFailed += int64(len(sub.items))
		d.mu.Unlock()
		return
	}

	points := make([]models.VectorPoint, 0, len(sub.items))
	for i, item := range sub.items {
		if i >= len(result.Embeddings) {
			break
		}
		points = append(points, models.VectorPoint{
			ID:     item.ID,
			Vector: result.Embeddings[i],
			Payload: models.VectorPayload{
				RepoName:    item.Repo,
				ContentHash: item.ContentHash,
			},
		})
	}

	if err := d.store.Upsert(ctx, points); err != nil {
		if d.logger != nil {
			d.logger.Error().Int("worker", workerID).Int("points", len(points)).Err(err).
				Msg("realtime sub-batch upsert failed")
		}
		d.mu.Lock()
		d.stats.ItemsFailed += int64(len(sub.items))
		d.mu.Unlock()
		return
	}

	d.mu.Lock()
	d.stats.ItemsEmbedded += int64(len(sub.items))
	d.stats.Tokens += int64(result.Tokens)
	d.stats.CostUSD += result.CostUSD
	stats := d.stats
	d.mu.Unlock()

	if d.logger != nil {
		d.logger.Info().Int("worker", workerID).Int("items", len(sub.items)).
			Int64("total_items", stats.ItemsEmbedded).Int64("tokens", stats.Tokens).
			Float64("cost_usd", stats.CostUSD).Msg("realtime sub-batch embedded")
	}
}
