package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Source represents a contributing peer
type Source struct {
	ID           int64
	Name         string // stable peer identifier
	FriendlyName string
	LastOp       string // guid of the last replayed oplog entry from this peer
	Online       bool
}

// SourceByName looks up a source by its stable name.
// Returns nil, nil when there is none.
func (w *Writer) SourceByName(ctx context.Context, name string) (*Source, error) {
	return sourceByName(ctx, w.tx, name)
}

// InsertSource inserts a new online source and returns its id
func (w *Writer) InsertSource(ctx context.Context, name, friendlyName string) (int64, error) {
	result, err := w.tx.ExecContext(ctx, `
		INSERT INTO source (name, friendlyname, isonline) VALUES (?, ?, 1)
	`, name, friendlyName)
	if err != nil {
		return 0, fmt.Errorf("failed to insert source: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get source ID: %w", err)
	}
	return id, nil
}

// TouchSource marks a source online and overwrites its friendly name
func (w *Writer) TouchSource(ctx context.Context, id int64, friendlyName string) error {
	_, err := w.tx.ExecContext(ctx, `
		UPDATE source SET isonline = 1, friendlyname = ? WHERE id = ?
	`, friendlyName, id)
	if err != nil {
		return fmt.Errorf("failed to update source: %w", err)
	}
	return nil
}

// SetSourceLastOp records the guid of the last oplog entry replayed from a source
func (w *Writer) SetSourceLastOp(ctx context.Context, id int64, guid string) error {
	_, err := w.tx.ExecContext(ctx, `UPDATE source SET lastop = ? WHERE id = ?`, guid, id)
	if err != nil {
		return fmt.Errorf("failed to update source lastop: %w", err)
	}
	return nil
}

// SourceByName looks up a source outside the worker (startup, CLI)
func (s *Store) SourceByName(ctx context.Context, name string) (*Source, error) {
	return sourceByName(ctx, s.db, name)
}

// ListSources returns all known sources ordered by id
func (s *Store) ListSources(ctx context.Context) ([]*Source, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, friendlyname, lastop, isonline FROM source ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sources: %w", err)
	}
	defer rows.Close()

	var sources []*Source
	for rows.Next() {
		src := &Source{}
		if err := rows.Scan(&src.ID, &src.Name, &src.FriendlyName, &src.LastOp, &src.Online); err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

// MarkAllSourcesOffline clears every online flag. Called at startup
// before any peer has been seen.
func (s *Store) MarkAllSourcesOffline(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE source SET isonline = 0`); err != nil {
		return fmt.Errorf("failed to reset sources: %w", err)
	}
	return nil
}

func sourceByName(ctx context.Context, q querier, name string) (*Source, error) {
	src := &Source{}
	err := q.QueryRowContext(ctx, `
		SELECT id, name, friendlyname, lastop, isonline FROM source WHERE name = ?
	`, name).Scan(&src.ID, &src.Name, &src.FriendlyName, &src.LastOp, &src.Online)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get source: %w", err)
	}
	return src, nil
}
