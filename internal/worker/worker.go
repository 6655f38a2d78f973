// Package worker runs collection commands one at a time against a single
// database handle.
package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/franz/musicsync/internal/command"
	"github.com/franz/musicsync/internal/metrics"
	"github.com/franz/musicsync/internal/oplog"
	"github.com/franz/musicsync/internal/store"
	"github.com/franz/musicsync/internal/util"
)

// Worker drains a FIFO queue of commands on one goroutine, so at most one
// command touches the store at any time. Enqueue never blocks and the queue
// is unbounded; producers throttle on OutstandingJobs.
type Worker struct {
	store *store.Store
	env   *command.Env
	name  string

	mu      sync.Mutex
	queue   []command.Command
	stopped bool
	wake    chan struct{}

	outstanding atomic.Int64
	running     atomic.Bool
	done        chan struct{}
	cancel      context.CancelFunc
}

// Config holds worker configuration
type Config struct {
	Store *store.Store
	// Env holds the collaborators commands reach. Its Queue defaults to the worker.
	Env  *command.Env
	Name string // label used in logs and metrics
}

// New creates a worker. Call Start to begin executing.
func New(cfg *Config) *Worker {
	env := &command.Env{}
	if cfg.Env != nil {
		copied := *cfg.Env
		env = &copied
	}

	name := cfg.Name
	if name == "" {
		name = "collection"
	}

	w := &Worker{
		store: cfg.Store,
		env:   env,
		name:  name,
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
	if env.Queue == nil {
		env.Queue = w
	}
	return w
}

// Env returns the collaborator context commands run with
func (w *Worker) Env() *command.Env {
	return w.env
}

// Enqueue appends cmd to the queue. The caller must not touch cmd afterwards.
// Commands enqueued after Stop are dropped.
func (w *Worker) Enqueue(cmd command.Command) {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		util.WarnLog("Worker %s is stopped, dropping %s", w.name, describe(cmd))
		return
	}
	w.queue = append(w.queue, cmd)
	depth := w.outstanding.Add(1)
	w.mu.Unlock()

	metrics.QueueDepth.WithLabelValues(w.name).Set(float64(depth))

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Busy reports whether any command is queued or executing
func (w *Worker) Busy() bool {
	return w.outstanding.Load() > 0
}

// OutstandingJobs returns the number of commands queued or executing
func (w *Worker) OutstandingJobs() int64 {
	return w.outstanding.Load()
}

// Start runs the execution loop on its own goroutine until ctx is done or
// Stop is called. A dequeued command always runs to completion.
func (w *Worker) Start(ctx context.Context) {
	if !w.running.CompareAndSwap(false, true) {
		return
	}
	ctx, w.cancel = context.WithCancel(ctx)
	go w.run(ctx)
}

// Stop stops the loop after the in-flight command and waits for it.
// Commands still queued are discarded.
func (w *Worker) Stop() {
	if !w.running.Load() {
		return
	}
	w.cancel()
	<-w.done

	w.mu.Lock()
	w.stopped = true
	dropped := len(w.queue)
	w.queue = nil
	w.mu.Unlock()
	if dropped > 0 {
		util.WarnLog("Worker %s stopped with %d queued commands", w.name, dropped)
		w.outstanding.Add(-int64(dropped))
		metrics.QueueDepth.WithLabelValues(w.name).Set(float64(w.outstanding.Load()))
	}
}

// WaitIdle blocks until the queue is empty and nothing is executing
func (w *Worker) WaitIdle(ctx context.Context) error {
	if !w.Busy() {
		return nil
	}

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !w.Busy() {
				return nil
			}
		}
	}
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)

	// In-flight commands are not cancelled
	execCtx := context.WithoutCancel(ctx)

	for {
		if ctx.Err() != nil {
			return
		}

		cmd, ok := w.pop()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-w.wake:
				continue
			}
		}

		w.execute(execCtx, cmd)

		depth := w.outstanding.Add(-1)
		metrics.QueueDepth.WithLabelValues(w.name).Set(float64(depth))
	}
}

func (w *Worker) pop() (command.Command, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.queue) == 0 {
		return nil, false
	}
	cmd := w.queue[0]
	w.queue[0] = nil
	w.queue = w.queue[1:]
	return cmd, true
}

// execute runs one command: Exec and the oplog append share a transaction,
// PostCommit follows the commit. Failures are logged and contained.
func (w *Worker) execute(ctx context.Context, cmd command.Command) {
	start := time.Now()
	kind := string(cmd.Kind())
	status := metrics.StatusFailed

	defer func() {
		if r := recover(); r != nil {
			util.ErrorLog("Command %s panicked (%s): %v", kind, describe(cmd), r)
			status = metrics.StatusFailed
		}
		metrics.CommandsTotal.WithLabelValues(kind, status).Inc()
		metrics.CommandDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	}()

	if err := w.commit(ctx, cmd); err != nil {
		util.ErrorLog("Command %s failed (%s): %v", kind, describe(cmd), err)
		return
	}

	cmd.PostCommit(w.env)
	status = metrics.StatusOK

	if c, ok := cmd.(*command.AddFiles); ok {
		metrics.FilesAdded.Add(float64(len(c.AddedIDs())))
	}
}

func (w *Worker) commit(ctx context.Context, cmd command.Command) error {
	tx, err := w.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := cmd.Exec(ctx, w.env, tx); err != nil {
		// Row-level work that already landed is kept
		if cerr := tx.Commit(); cerr != nil {
			return fmt.Errorf("%w (commit of partial work failed: %v)", err, cerr)
		}
		return err
	}

	if loggable, ok := cmd.(command.Loggable); ok && cmd.Mutates() {
		entry, err := oplog.Append(ctx, tx, loggable)
		if err != nil {
			return fmt.Errorf("oplog: %w", err)
		}
		util.DebugLog("Logged %s op %s (oplog id %d)", entry.Command, entry.GUID, entry.ID)
	}

	return tx.Commit()
}

// describe gives enough context to diagnose a failed command
func describe(cmd command.Command) string {
	switch c := cmd.(type) {
	case *command.AddFiles:
		return fmt.Sprintf("batch=%d source=%q", len(c.Files), c.Source)
	case *command.AddSource:
		return fmt.Sprintf("username=%q", c.Username)
	case *command.CollectionStats:
		return fmt.Sprintf("source=%d", c.SourceID)
	case *command.ReadOplog:
		return fmt.Sprintf("after=%d", c.After)
	default:
		return fmt.Sprintf("%T", cmd)
	}
}
