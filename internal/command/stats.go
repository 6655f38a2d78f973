package command

import (
	"context"

	"github.com/franz/musicsync/internal/store"
)

// CollectionStats recomputes the statistics of one source's collection and
// hands them to the Source Registry
type CollectionStats struct {
	SourceID int64
	OnDone   func(stats *store.CollectionStats)

	stats *store.CollectionStats
}

// NewCollectionStats creates a CollectionStats command
func NewCollectionStats(sourceID int64) *CollectionStats {
	return &CollectionStats{SourceID: sourceID}
}

// Kind implements Command
func (c *CollectionStats) Kind() Kind { return KindCollectionStats }

// Mutates implements Command
func (c *CollectionStats) Mutates() bool { return false }

// Exec implements Command
func (c *CollectionStats) Exec(ctx context.Context, env *Env, w *store.Writer) error {
	stats, err := w.CollectionStats(ctx, c.SourceID)
	if err != nil {
		return err
	}
	c.stats = stats
	return nil
}

// PostCommit implements Command
func (c *CollectionStats) PostCommit(env *Env) {
	if env != nil && env.Sources != nil {
		env.Sources.SetStats(c.stats)
	}
	if c.OnDone != nil {
		c.OnDone(c.stats)
	}
}

// ReadOplog reads local oplog entries after a cursor. The replication
// publisher uses it so the database is only touched by the worker.
type ReadOplog struct {
	After  int64
	Limit  int
	OnDone func(entries []store.OplogEntry)

	entries []store.OplogEntry
}

// Kind implements Command
func (c *ReadOplog) Kind() Kind { return KindReadOplog }

// Mutates implements Command
func (c *ReadOplog) Mutates() bool { return false }

// Exec implements Command
func (c *ReadOplog) Exec(ctx context.Context, env *Env, w *store.Writer) error {
	entries, err := w.LocalOplogSince(ctx, c.After, c.Limit)
	if err != nil {
		return err
	}
	c.entries = entries
	return nil
}

// PostCommit implements Command
func (c *ReadOplog) PostCommit(env *Env) {
	if c.OnDone != nil {
		c.OnDone(c.entries)
	}
}
