// Package worksource streams origin URLs from a columnar archive file and
// persists a resumable cursor so restarts never re-read work already handed
// to the fetch engine.
package worksource

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// CursorStore is the embedded database backing the work-source cursor: one
// shared work_rows table holding each table_name's materialized rows, plus a
// single cursor row per key recording the last row number handed out.
type CursorStore struct {
	db *sql.DB
}

// OpenCursorStore opens (creating if absent) the cursor database at path.
// modernc.org/sqlite registers itself under the driver name "sqlite", not
// "sqlite3".
func OpenCursorStore(path string) (*CursorStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cursor db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cursor db: %w", err)
	}
	// SQLite serializes writers; a single connection avoids SQLITE_BUSY
	// under the work source's otherwise-single-writer access pattern.
	db.SetMaxOpenConns(1)

	store := &CursorStore{db: db}
	if err := store.init(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *CursorStore) init() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := s.db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}

	schema := `
		CREATE TABLE IF NOT EXISTS work_cursor (
			cursor_key TEXT PRIMARY KEY,
			table_name TEXT NOT NULL,
			last_row_number INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS work_rows (
			table_name  TEXT NOT NULL,
			row_number  INTEGER NOT NULL,
			origin_url  TEXT NOT NULL,
			PRIMARY KEY (table_name, row_number)
		);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize cursor schema: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *CursorStore) Close() error {
	return s.db.Close()
}

// MaterializeRow inserts one origin row into the named table, idempotently
// (a restart that re-scans the archive produces no duplicates).
func (s *CursorStore) MaterializeRow(ctx context.Context, tableName string, rowNumber int64, originURL string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO work_rows (table_name, row_number, origin_url) VALUES (?, ?, ?)
		 ON CONFLICT(table_name, row_number) DO NOTHING`,
		tableName, rowNumber, originURL)
	if err != nil {
		return fmt.Errorf("failed to materialize row %d for table %s: %w", rowNumber, tableName, err)
	}
	return nil
}

// LastRowNumber returns the cursor's last-seen row number for key, or 0 if
// the key has never been recorded.
func (s *CursorStore) LastRowNumber(ctx context.Context, cursorKey string) (int64, error) {
	var last int64
	err := s.db.QueryRowContext(ctx, `SELECT last_row_number FROM work_cursor WHERE cursor_key = ?`, cursorKey).Scan(&last)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read cursor %s: %w", cursorKey, err)
	}
	return last, nil
}

// AdvanceCursor persists the cursor's new last-seen row number for key.
func (s *CursorStore) AdvanceCursor(ctx context.Context, cursorKey, tableName string, rowNumber int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO work_cursor (cursor_key, table_name, last_row_number, updated_at)
		 VALUES (?, ?, ?, unixepoch())
		 ON CONFLICT(cursor_key) DO UPDATE SET
			last_row_number = excluded.last_row_number,
			updated_at = excluded.updated_at`,
		cursorKey, tableName, rowNumber)
	if err != nil {
		return fmt.Errorf("failed to advance cursor %s: %w", cursorKey, err)
	}
	return nil
}

// RowsAfter returns up to limit materialized rows for tableName with row
// number greater than afterRow, in ascending row-number order.
func (s *CursorStore) RowsAfter(ctx context.Context, tableName string, afterRow int64, limit int) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT row_number, origin_url FROM work_rows
		 WHERE table_name = ? AND row_number > ?
		 ORDER BY row_number ASC LIMIT ?`,
		tableName, afterRow, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query rows after %d for table %s: %w", afterRow, tableName, err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.RowNumber, &r.OriginURL); err != nil {
			return nil, fmt.Errorf("failed to scan work row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Row is one materialized work-table entry.
type Row struct {
	RowNumber int64
	OriginURL string
}
