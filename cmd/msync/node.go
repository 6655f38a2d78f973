package main

import (
	"context"
	"fmt"

	"github.com/spf13/viper"

	"github.com/franz/musicsync/internal/command"
	"github.com/franz/musicsync/internal/report"
	"github.com/franz/musicsync/internal/source"
	"github.com/franz/musicsync/internal/store"
	"github.com/franz/musicsync/internal/util"
	"github.com/franz/musicsync/internal/worker"
)

// node is one collection database with its worker and the collaborators
// commands reach after commit
type node struct {
	db      *store.Store
	sources *source.Registry
	worker  *worker.Worker
	events  *report.EventLogger
}

// openNode opens the database, loads known peers and prepares a worker.
// The worker is not started; wire any replicator first, then call start.
func openNode(ctx context.Context, localName, friendlyName string) (*node, error) {
	dbPath := viper.GetString("db")
	util.InfoLog("Opening database: %s", dbPath)

	db, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Peers are offline until they speak again
	if err := db.MarkAllSourcesOffline(ctx); err != nil {
		db.Close()
		return nil, err
	}
	registry := source.NewRegistry(localName, friendlyName)
	if err := registry.Load(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load sources: %w", err)
	}

	events := openEventLogger()

	w := worker.New(&worker.Config{
		Store: db,
		Env: &command.Env{
			Sources:  registry,
			Notifier: events,
		},
	})

	return &node{db: db, sources: registry, worker: w, events: events}, nil
}

func (n *node) start(ctx context.Context) {
	n.worker.Start(ctx)
	n.worker.Enqueue(command.NewCollectionStats(store.LocalSourceID))
}

// drain waits until every queued command has run
func (n *node) drain(ctx context.Context) error {
	return n.worker.WaitIdle(ctx)
}

func (n *node) close() {
	n.worker.Stop()
	n.events.Close()
	n.db.Close()
}

// openEventLogger creates the JSONL event log with a level matching the
// console verbosity
func openEventLogger() *report.EventLogger {
	logLevel := report.LevelInfo // Default
	if viper.GetBool("quiet") {
		logLevel = report.LevelWarning // Only warnings and errors
	} else if viper.GetBool("verbose") {
		logLevel = report.LevelDebug // Everything
	}

	logger, err := report.NewEventLogger(GetConfigString("events.dir", "artifacts"), logLevel)
	if err != nil {
		util.WarnLog("Failed to create event logger: %v", err)
		return report.NullLogger()
	}
	if logger.Path() != "" {
		util.InfoLog("Event log: %s", logger.Path())
	}
	return logger
}

// localName is the name the local collection is shown under. Commands that
// do not replicate work without a configured peer name.
func localName() string {
	return GetConfigString("peer.name", "local")
}
