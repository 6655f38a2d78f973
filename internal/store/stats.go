package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// CollectionStats summarises one source's collection
type CollectionStats struct {
	SourceID      int64
	Files         int64
	Artists       int64
	Albums        int64
	Tracks        int64
	TotalBytes    int64
	TotalDuration int64 // seconds
	LastOp        string
}

// CollectionStats computes statistics for a source inside the worker
func (w *Writer) CollectionStats(ctx context.Context, sourceID int64) (*CollectionStats, error) {
	return collectionStats(ctx, w.tx, sourceID)
}

// CollectionStats computes statistics for a source outside the worker
func (s *Store) CollectionStats(ctx context.Context, sourceID int64) (*CollectionStats, error) {
	return collectionStats(ctx, s.db, sourceID)
}

func collectionStats(ctx context.Context, q querier, sourceID int64) (*CollectionStats, error) {
	stats := &CollectionStats{SourceID: sourceID}

	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(size), 0), COALESCE(SUM(duration), 0)
		FROM file WHERE source IS ?
	`, sourceArg(sourceID)).Scan(&stats.Files, &stats.TotalBytes, &stats.TotalDuration)
	if err != nil {
		return nil, fmt.Errorf("failed to count files: %w", err)
	}

	err = q.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT fj.artist), COUNT(DISTINCT fj.album), COUNT(DISTINCT fj.track)
		FROM file_join fj JOIN file f ON f.id = fj.file
		WHERE f.source IS ?
	`, sourceArg(sourceID)).Scan(&stats.Artists, &stats.Albums, &stats.Tracks)
	if err != nil {
		return nil, fmt.Errorf("failed to count catalog: %w", err)
	}

	if sourceID == LocalSourceID {
		err = q.QueryRowContext(ctx, `
			SELECT guid FROM oplog WHERE source IS NULL ORDER BY id DESC LIMIT 1
		`).Scan(&stats.LastOp)
	} else {
		err = q.QueryRowContext(ctx, `SELECT COALESCE(lastop, '') FROM source WHERE id = ?`, sourceID).Scan(&stats.LastOp)
	}
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to get last op: %w", err)
	}

	return stats, nil
}
