// Package batchstate persists the durable batchId -> BatchRecord mapping
// the Batch Embed Driver and the Resume Protocol need to survive process
// restarts (spec.md §4.7, §4.8). State must be written BEFORE polling a
// batch begins, so a crash mid-poll never loses track of a submitted batch.
package batchstate

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/quaero-index/internal/models"
)

// Store wraps a badgerhold database keyed by provider batch ID.
type Store struct {
	store  *badgerhold.Store
	logger arbor.ILogger
}

// Open opens (creating if absent) the batch-state database at path.
func Open(path string, logger arbor.ILogger) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("batchstate: create directory: %w", err)
	}

	options := badgerhold.DefaultOptions
	options.Dir = path
	options.ValueDir = path
	options.Logger = nil

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("batchstate: open database: %w", err)
	}

	return &Store{store: store, logger: logger}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.store == nil {
		return nil
	}
	return s.store.Close()
}

// Put persists (or overwrites) a batch record, keyed by its batch ID. The
// Batch Embed Driver calls this before polling begins.
func (s *Store) Put(record models.BatchRecord) error {
	if record.BatchID == "" {
		return fmt.Errorf("batchstate: batch ID is required")
	}
	if err := s.store.Upsert(record.BatchID, record); err != nil {
		return fmt.Errorf("batchstate: upsert %s: %w", record.BatchID, err)
	}
	return nil
}

// Get returns the record for batchID, or (false, nil) if not found.
func (s *Store) Get(batchID string) (models.BatchRecord, bool, error) {
	var record models.BatchRecord
	err := s.store.Get(batchID, &record)
	if err == badgerhold.ErrNotFound {
		return models.BatchRecord{}, false, nil
	}
	if err != nil {
		return models.BatchRecord{}, false, fmt.Errorf("batchstate: get %s: %w", batchID, err)
	}
	return record, true, nil
}

// Delete removes a batch record once the retention rule decides it should
// no longer be tracked (success rate ≥99% or batch size <50).
func (s *Store) Delete(batchID string) error {
	if err := s.store.Delete(batchID, &models.BatchRecord{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil
		}
		return fmt.Errorf("batchstate: delete %s: %w", batchID, err)
	}
	return nil
}

// All returns every tracked batch record, used by the Resume Protocol's
// startup scan (spec.md §4.8).
func (s *Store) All() ([]models.BatchRecord, error) {
	var records []models.BatchRecord
	if err := s.store.Find(&records, badgerhold.Where("BatchID").Ne("")); err != nil {
		return nil, fmt.Errorf("batchstate: list: %w", err)
	}
	return records, nil
}
