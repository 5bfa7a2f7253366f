package batchstate

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/quaero-index/internal/models"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "batch-state.badger"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_PutGetRoundTrips(t *testing.T) {
	store := newStore(t)
	record := models.BatchRecord{
		BatchID: "batch-1",
		Items: []models.BatchItemMeta{
			{ID: "item-1", Repo: "a/b", ContentHash: "deadbeef"},
		},
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}

	require.NoError(t, store.Put(record))

	got, ok, err := store.Get("batch-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, record.BatchID, got.BatchID)
	assert.Equal(t, record.Items, got.Items)
}

func TestStore_GetMissingReturnsFalse(t *testing.T) {
	store := newStore(t)
	_, ok, err := store.Get("does-not-exist")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_DeleteRemovesRecord(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.Put(models.BatchRecord{BatchID: "batch-2"}))
	require.NoError(t, store.Delete("batch-2"))

	_, ok, err := store.Get("batch-2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_DeleteMissingIsNotAnError(t *testing.T) {
	store := newStore(t)
	assert.NoError(t, store.Delete("never-existed"))
}

func TestStore_AllListsEveryRecord(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.Put(models.BatchRecord{BatchID: "batch-a"}))
	require.NoError(t, store.Put(models.BatchRecord{BatchID: "batch-b"}))

	all, err := store.All()
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestStore_PutRejectsEmptyBatchID(t *testing.T) {
	store := newStore(t)
	assert.Error(t, store.Put(models.BatchRecord{}))
}
