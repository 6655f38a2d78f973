package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// OplogEntry is one persisted, redacted mutating command
type OplogEntry struct {
	ID        int64
	SourceID  int64 // LocalSourceID for commands that originated here
	GUID      string
	Command   string
	Singleton bool
	JSON      string
	CreatedAt time.Time
}

// AppendOplog persists an entry and sets e.ID.
// Entries are idempotent on guid: replaying a peer's op twice keeps one row
// and leaves e.ID at 0.
func (w *Writer) AppendOplog(ctx context.Context, e *OplogEntry) error {
	result, err := w.tx.ExecContext(ctx, `
		INSERT INTO oplog (source, guid, command, singleton, json)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(guid) DO NOTHING
	`, sourceArg(e.SourceID), e.GUID, e.Command, e.Singleton, e.JSON)
	if err != nil {
		return fmt.Errorf("failed to append oplog: %w", err)
	}

	if n, _ := result.RowsAffected(); n == 0 {
		return nil
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get oplog ID: %w", err)
	}
	e.ID = id
	return nil
}

// LocalOplogSince returns up to limit local entries with id > afterID, oldest first
func (w *Writer) LocalOplogSince(ctx context.Context, afterID int64, limit int) ([]OplogEntry, error) {
	return localOplogSince(ctx, w.tx, afterID, limit)
}

// LocalOplogSince reads local entries outside the worker (CLI, tests)
func (s *Store) LocalOplogSince(ctx context.Context, afterID int64, limit int) ([]OplogEntry, error) {
	return localOplogSince(ctx, s.db, afterID, limit)
}

// OplogCount returns the number of oplog rows of a command kind
func (s *Store) OplogCount(ctx context.Context, command string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM oplog WHERE command = ?`, command).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count oplog: %w", err)
	}
	return count, nil
}

func localOplogSince(ctx context.Context, q querier, afterID int64, limit int) ([]OplogEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := q.QueryContext(ctx, `
		SELECT id, guid, command, singleton, json, created_at
		FROM oplog
		WHERE source IS NULL AND id > ?
		ORDER BY id
		LIMIT ?
	`, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query oplog: %w", err)
	}
	defer rows.Close()

	var entries []OplogEntry
	for rows.Next() {
		var e OplogEntry
		var created sql.NullTime
		if err := rows.Scan(&e.ID, &e.GUID, &e.Command, &e.Singleton, &e.JSON, &created); err != nil {
			return nil, fmt.Errorf("failed to scan oplog: %w", err)
		}
		e.CreatedAt = created.Time
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
