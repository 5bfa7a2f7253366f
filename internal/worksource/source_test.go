package worksource

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/quaero-index/internal/common"
)

func writeArchive(t *testing.T, rows [][2]string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "archive.csv")

	var content string
	content += "date,url\n"
	for _, r := range rows {
		content += r[0] + "," + r[1] + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newStore(t *testing.T) *CursorStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.sqlite")
	store, err := OpenCursorStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSource_PrimaryModeEmitsBatchesAndAdvances(t *testing.T) {
	archive := writeArchive(t, [][2]string{
		{"2024-01-01", "https://github.com/foo/bar"},
		{"2024-01-02", "https://github.com/baz/qux"},
		{"2024-01-03", "https://github.com/abc/def"},
	})
	store := newStore(t)

	cfg := common.WorkSourceConfig{ArchivePath: archive, BatchSize: 2}
	src, err := NewSource(context.Background(), cfg, store)
	require.NoError(t, err)

	batch1, err := src.NextBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, batch1, 2)
	assert.Equal(t, "https://github.com/foo/bar", batch1[0].URL)

	batch2, err := src.NextBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, batch2, 1)
	assert.Equal(t, "https://github.com/abc/def", batch2[0].URL)

	batch3, err := src.NextBatch(context.Background())
	require.NoError(t, err)
	assert.Nil(t, batch3)
}

func TestSource_PrimaryModeFiltersByMinDate(t *testing.T) {
	archive := writeArchive(t, [][2]string{
		{"2023-06-01", "https://github.com/old/repo"},
		{"2024-01-02", "https://github.com/new/repo"},
	})
	store := newStore(t)

	cfg := common.WorkSourceConfig{ArchivePath: archive, MinDate: "2024-01-01", BatchSize: 10}
	src, err := NewSource(context.Background(), cfg, store)
	require.NoError(t, err)

	batch, err := src.NextBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, "https://github.com/new/repo", batch[0].URL)
}

func TestSource_ResumesFromPersistedCursor(t *testing.T) {
	archive := writeArchive(t, [][2]string{
		{"2024-01-01", "https://github.com/foo/bar"},
		{"2024-01-02", "https://github.com/baz/qux"},
	})
	store := newStore(t)
	cfg := common.WorkSourceConfig{ArchivePath: archive, BatchSize: 1}

	src1, err := NewSource(context.Background(), cfg, store)
	require.NoError(t, err)
	_, err = src1.NextBatch(context.Background())
	require.NoError(t, err)

	src2, err := NewSource(context.Background(), cfg, store)
	require.NoError(t, err)
	batch, err := src2.NextBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, "https://github.com/baz/qux", batch[0].URL)
}

func TestSource_ParallelInstanceSlicesDisjointRange(t *testing.T) {
	rows := [][2]string{
		{"2024-01-01", "https://github.com/r/0"},
		{"2024-01-01", "https://github.com/r/1"},
		{"2024-01-01", "https://github.com/r/2"},
		{"2024-01-01", "https://github.com/r/3"},
	}
	archive := writeArchive(t, rows)
	store := newStore(t)

	cfg := common.WorkSourceConfig{ArchivePath: archive, Offset: 1, Limit: 2, BatchSize: 10}
	src, err := NewSource(context.Background(), cfg, store)
	require.NoError(t, err)

	batch, err := src.NextBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, "https://github.com/r/1", batch[0].URL)
	assert.Equal(t, "https://github.com/r/2", batch[1].URL)
}
