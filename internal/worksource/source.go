package worksource

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"

	"github.com/ternarybob/quaero-index/internal/common"
	"github.com/ternarybob/quaero-index/internal/models"
)

// Source streams origin URLs in fixed-size batches, backed by a resumable
// cursor. Two modes per spec.md §4.3: primary (offset == 0) materializes the
// full filtered table into the cursor database; parallel instance
// (offset > 0) materializes only its own slice in memory and tracks its own
// cursor key so sibling instances never collide.
type Source struct {
	config common.WorkSourceConfig
	store  *CursorStore

	tableName string
	cursorKey string

	primary  bool
	slice    []archiveRow // parallel-instance in-memory slice
	slicePos int64        // last row number already advanced past
}

// NewSource prepares a work source over the given configuration. When
// config.Offset == 0 this is the primary instance and its table is
// materialized into the cursor database; otherwise only the requested
// (offset, offset+limit] slice is loaded into memory.
func NewSource(ctx context.Context, config common.WorkSourceConfig, store *CursorStore) (*Source, error) {
	tableName := tableNameFor(config.ArchivePath, config.MinDate)

	s := &Source{
		config:    config,
		store:     store,
		tableName: tableName,
		primary:   config.Offset == 0,
	}

	rows, err := readArchive(config.ArchivePath, config.MinDate)
	if err != nil {
		return nil, err
	}

	if s.primary {
		s.cursorKey = tableName
		for _, r := range rows {
			if err := store.MaterializeRow(ctx, tableName, r.RowNumber, r.URL); err != nil {
				return nil, err
			}
		}
		return s, nil
	}

	s.cursorKey = fmt.Sprintf("%s_%d", tableName, config.Offset)
	end := config.Offset + config.Limit
	for _, r := range rows {
		if r.RowNumber > int64(config.Offset) && r.RowNumber <= int64(end) {
			s.slice = append(s.slice, r)
		}
	}

	last, err := store.LastRowNumber(ctx, s.cursorKey)
	if err != nil {
		return nil, err
	}
	s.slicePos = last
	return s, nil
}

// tableNameFor derives a stable table name from the archive path and
// min-date filter so distinct filters never share a cursor.
func tableNameFor(archivePath, minDate string) string {
	sum := sha1.Sum([]byte(archivePath + "|" + minDate))
	return "origins_" + hex.EncodeToString(sum[:])[:16]
}

// NextBatch returns up to BatchSize origins beyond the persisted cursor, or
// a nil slice when the source is exhausted. The cursor is advanced to the
// last row number returned before the batch is handed back, so a crash
// between batches re-delivers at most nothing already consumed — downstream
// skip checks make re-delivery of a partially-processed batch safe too.
func (s *Source) NextBatch(ctx context.Context) ([]models.Origin, error) {
	if s.primary {
		return s.nextPrimaryBatch(ctx)
	}
	return s.nextSliceBatch(ctx)
}

func (s *Source) nextPrimaryBatch(ctx context.Context) ([]models.Origin, error) {
	last, err := s.store.LastRowNumber(ctx, s.cursorKey)
	if err != nil {
		return nil, err
	}

	rows, err := s.store.RowsAfter(ctx, s.tableName, last, s.config.BatchSize)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	origins := make([]models.Origin, 0, len(rows))
	for _, r := range rows {
		origins = append(origins, models.Origin{RowNumber: r.RowNumber, URL: r.OriginURL})
	}

	if err := s.store.AdvanceCursor(ctx, s.cursorKey, s.tableName, rows[len(rows)-1].RowNumber); err != nil {
		return nil, err
	}
	return origins, nil
}

func (s *Source) nextSliceBatch(ctx context.Context) ([]models.Origin, error) {
	start := -1
	for i, r := range s.slice {
		if r.RowNumber > s.slicePos {
			start = i
			break
		}
	}
	if start < 0 {
		return nil, nil
	}

	end := start + s.config.BatchSize
	if end > len(s.slice) {
		end = len(s.slice)
	}
	batch := s.slice[start:end]
	if len(batch) == 0 {
		return nil, nil
	}

	origins := make([]models.Origin, 0, len(batch))
	for _, r := range batch {
		origins = append(origins, models.Origin{RowNumber: r.RowNumber, URL: r.URL})
	}

	s.slicePos = batch[len(batch)-1].RowNumber
	if err := s.store.AdvanceCursor(ctx, s.cursorKey, s.tableName, s.slicePos); err != nil {
		return nil, err
	}
	return origins, nil
}
