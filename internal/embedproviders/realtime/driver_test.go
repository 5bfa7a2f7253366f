package realtime

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/quaero-index/internal/asyncbuffer"
	"github.com/ternarybob/quaero-index/internal/embedproviders"
	"github.com/ternarybob/quaero-index/internal/models"
	"github.com/ternarybob/quaero-index/internal/pipeline/errtype"
)

type fakeProvider struct {
	mu        sync.Mutex
	calls     int
	failFirst int
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) EmbedRealtime(ctx context.Context, texts []string, apiKey string) (embedproviders.EmbedResult, error) {
	f.mu.Lock()
	f.calls++
	shouldFail := f.calls <= f.failFirst
	f.mu.Unlock()

	if shouldFail {
		return embedproviders.EmbedResult{}, &errtype.Transient{StatusCode: 429}
	}

	embeddings := make([][]float32, len(texts))
	for i := range texts {
		embeddings[i] = []float32{float32(i), 0.5}
	}
	return embedproviders.EmbedResult{Embeddings: embeddings, Tokens: len(texts) * 10, CostUSD: 0.001}, nil
}

type permanentFailProvider struct{}

func (permanentFailProvider) Name() string { return "perm-fail" }
func (permanentFailProvider) EmbedRealtime(ctx context.Context, texts []string, apiKey string) (embedproviders.EmbedResult, error) {
	return embedproviders.EmbedResult{}, &errtype.Permanent{Status: "403"}
}

type fakeStore struct {
	mu     sync.Mutex
	points []models.VectorPoint
}

func (s *fakeStore) Upsert(ctx context.Context, points []models.VectorPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points = append(s.points, points...)
	return nil
}

func mustItem(t *testing.T, repo, content string) models.Item {
	t.Helper()
	item, ok := models.NewItem(repo, content)
	require.True(t, ok)
	return item
}

func TestDriver_RunEmbedsAndUpserts(t *testing.T) {
	buffer := asyncbuffer.New(10, 5)
	buffer.Push(mustItem(t, "a/one", "first readme content long enough to pass"))
	buffer.Push(mustItem(t, "a/two", "second readme content long enough to pass"))
	buffer.Finish()

	provider := &fakeProvider{}
	store := &fakeStore{}
	driver := New(Config{Workers: 2, BatchSize: 64, MaxBatchChars: 120000}, provider, embedproviders.NewKeyRotator([]string{"k1"}), buffer, store, nil)

	stats := driver.Run(context.Background())
	assert.Equal(t, int64(2), stats.ItemsEmbedded)
	assert.Equal(t, int64(0), stats.ItemsFailed)
	assert.Len(t, store.points, 2)
}

func TestDriver_RetriesTransientThenSucceeds(t *testing.T) {
	buffer := asyncbuffer.New(10, 5)
	buffer.Push(mustItem(t, "a/one", "readme content long enough to pass the floor"))
	buffer.Finish()

	provider := &fakeProvider{failFirst: 1}
	store := &fakeStore{}
	driver := New(Config{Workers: 1, BatchSize: 64, MaxBatchChars: 120000}, provider, embedproviders.NewKeyRotator([]string{"k1"}), buffer, store, nil)

	stats := driver.Run(context.Background())
	assert.Equal(t, int64(1), stats.ItemsEmbedded)
	assert.GreaterOrEqual(t, provider.calls, 2)
}

func TestDriver_PermanentErrorMarksFailedNoRetry(t *testing.T) {
	buffer := asyncbuffer.New(10, 5)
	buffer.Push(mustItem(t, "a/one", "readme content long enough to pass the floor"))
	buffer.Finish()

	store := &fakeStore{}
	driver := New(Config{Workers: 1, BatchSize: 64, MaxBatchChars: 120000}, permanentFailProvider{}, embedproviders.NewKeyRotator([]string{"k1"}), buffer, store, nil)

	stats := driver.Run(context.Background())
	assert.Equal(t, int64(0), stats.ItemsEmbedded)
	assert.Equal(t, int64(1), stats.ItemsFailed)
	assert.Empty(t, store.points)
}

func TestPackSubBatches_RespectsItemCountAndCharBudget(t *testing.T) {
	items := []models.Item{
		mustItem(t, "a/1", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"),
		mustItem(t, "a/2", "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"),
		mustItem(t, "a/3", "cccccccccccccccccccccccccccccccccccccccc"),
	}

	byCount := packSubBatches(items, 1, 1_000_000, 0)
	assert.Len(t, byCount, 3, "maxItems=1 forces one item per sub-batch")

	byChars := packSubBatches(items, 100, 50, 0)
	assert.Greater(t, len(byChars), 1, "a tight char budget must split across more than one sub-batch")
}

func TestPackSubBatches_OversizedSingleItemGoesAlone(t *testing.T) {
	huge := mustItem(t, "a/huge", "this content is longer than the tiny char budget allowed per sub-batch")
	batches := packSubBatches([]models.Item{huge}, 64, 10, 0)
	require.Len(t, batches, 1)
	assert.Len(t, batches[0].items, 1)
}
