package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Writer is the execution context a command runs against: one write
// transaction plus the store's identity resolver.
type Writer struct {
	tx       *sql.Tx
	resolver *Resolver
	done     bool
}

// Commit commits the transaction.
// If the commit fails, identity ids cached during it may not exist, so the
// resolver cache is dropped.
func (w *Writer) Commit() error {
	if w.done {
		return nil
	}
	w.done = true
	if err := w.tx.Commit(); err != nil {
		w.resolver.Purge()
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Rollback aborts the transaction. It is a no-op after Commit.
func (w *Writer) Rollback() error {
	if w.done {
		return nil
	}
	w.done = true
	w.resolver.Purge()
	return w.tx.Rollback()
}

// ArtistID resolves an artist name to its id, creating the row if create is set
func (w *Writer) ArtistID(ctx context.Context, name string, create bool) (int64, error) {
	return w.resolver.ArtistID(ctx, w.tx, name, create)
}

// TrackID resolves a track name scoped to an artist
func (w *Writer) TrackID(ctx context.Context, artistID int64, name string, create bool) (int64, error) {
	return w.resolver.TrackID(ctx, w.tx, artistID, name, create)
}

// AlbumID resolves an album name scoped to an artist
func (w *Writer) AlbumID(ctx context.Context, artistID int64, name string, create bool) (int64, error) {
	return w.resolver.AlbumID(ctx, w.tx, artistID, name, create)
}
