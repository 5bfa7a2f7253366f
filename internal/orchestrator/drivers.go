package orchestrator

import (
	"context"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/quaero-index/internal/asyncbuffer"
	"github.com/ternarybob/quaero-index/internal/embedproviders"
	"github.com/ternarybob/quaero-index/internal/embedproviders/batch"
	"github.com/ternarybob/quaero-index/internal/embedproviders/realtime"
	"github.com/ternarybob/quaero-index/internal/models"
)

// RealtimeChunkDriver adapts the Realtime Embed Driver to ChunkDriver. The
// driver's worker pool is bound to one Async Buffer at construction time
// (internal/embedproviders/realtime), so each outer chunk gets a fresh
// buffer and a fresh worker pool rather than reusing one across chunks.
type RealtimeChunkDriver struct {
	config   realtime.Config
	provider embedproviders.RealtimeProvider
	keys     *embedproviders.KeyRotator
	store    realtime.VectorUpserter
	logger   arbor.ILogger
}

// NewRealtimeChunkDriver builds a ChunkDriver backed by the realtime
// worker-pool pipeline.
func NewRealtimeChunkDriver(cfg realtime.Config, provider embedproviders.RealtimeProvider, keys *embedproviders.KeyRotator, store realtime.VectorUpserter, logger arbor.ILogger) *RealtimeChunkDriver {
	return &RealtimeChunkDriver{config: cfg, provider: provider, keys: keys, store: store, logger: logger}
}

// RunChunk pushes every item onto a fresh buffer, finishes it immediately
// (the whole chunk is already in memory, so there is nothing more to push),
// and drains it with a fresh worker pool.
func (d *RealtimeChunkDriver) RunChunk(ctx context.Context, items []models.Item) (ChunkStats, error) {
	buffer := asyncbuffer.New(len(items)+1, d.config.BatchSize)
	for _, item := range items {
		buffer.Push(item)
	}
	buffer.Finish()

	driver := realtime.New(d.config, d.provider, d.keys, buffer, d.store, d.logger)
	stats := driver.Run(ctx)

	return ChunkStats{ItemsEmbedded: int(stats.ItemsEmbedded), ItemsFailed: int(stats.ItemsFailed)}, nil
}

// BatchChunkDriver adapts the Batch Embed Driver to ChunkDriver and to
// Resumer: one *batch.Driver instance is shared across every outer chunk in
// a run (and across the resume step), since its durable state store and key
// rotator are themselves already safe for repeated/concurrent use.
type BatchChunkDriver struct {
	driver *batch.Driver
}

// NewBatchChunkDriver wraps an already-constructed batch driver.
func NewBatchChunkDriver(driver *batch.Driver) *BatchChunkDriver {
	return &BatchChunkDriver{driver: driver}
}

func (d *BatchChunkDriver) RunChunk(ctx context.Context, items []models.Item) (ChunkStats, error) {
	stats, err := d.driver.Run(ctx, items)
	return ChunkStats{ItemsEmbedded: stats.ItemsSucceeded, ItemsFailed: stats.ItemsFailed}, err
}

func (d *BatchChunkDriver) Resume(ctx context.Context, apiKey string) (ChunkStats, map[string]struct{}, error) {
	stats, resolved, err := d.driver.Resume(ctx, apiKey)
	return ChunkStats{ItemsEmbedded: stats.ItemsSucceeded, ItemsFailed: stats.ItemsFailed}, resolved, err
}
