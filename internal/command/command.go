// Package command defines the units of work executed by the collection
// worker and the wire form mutating commands take on the oplog.
package command

import (
	"context"

	"github.com/google/uuid"

	"github.com/franz/musicsync/internal/store"
)

// Kind tags a command variant on the wire and in the oplog
type Kind string

const (
	KindAddFiles        Kind = "addfiles"
	KindAddSource       Kind = "addsource"
	KindCollectionStats Kind = "collectionstats"
	KindReadOplog       Kind = "readoplog"
)

// Command is a unit of work over one collection database.
//
// Exec runs on the worker goroutine inside a write transaction. PostCommit
// runs on the same goroutine after the transaction committed, before the
// next command starts. A command is owned by the worker once enqueued.
type Command interface {
	Kind() Kind
	Mutates() bool
	Exec(ctx context.Context, env *Env, w *store.Writer) error
	PostCommit(env *Env)
}

// Loggable is implemented by mutating commands; the worker persists their
// Export to the oplog in the same transaction as Exec.
type Loggable interface {
	Command
	GUID() string
	// SourceID is the source the operation originated from, valid after Exec
	SourceID() int64
	Singleton() bool
	Export() (*Envelope, error)
}

// Notifier is told which files of a source changed after a commit
type Notifier interface {
	TracksAdded(sourceID int64, fileIDs []int64)
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(sourceID int64, fileIDs []int64)

// TracksAdded calls f
func (f NotifierFunc) TracksAdded(sourceID int64, fileIDs []int64) {
	f(sourceID, fileIDs)
}

// Replicator is told that local oplog entries are ready to broadcast
type Replicator interface {
	TriggerSync()
}

// Enqueuer accepts follow-up commands
type Enqueuer interface {
	Enqueue(cmd Command)
}

// Sources is the view of the Source Registry commands need
type Sources interface {
	IsOnline(sourceID int64) bool
	IsLocal(sourceID int64) bool
	SourceOnline(sourceID int64, name, friendlyName string)
	SetStats(stats *store.CollectionStats)
}

// Env carries the collaborators a command may reach during execution.
// Nil fields are treated as no-ops.
type Env struct {
	Sources    Sources
	Notifier   Notifier
	Replicator Replicator
	Queue      Enqueuer
}

func (e *Env) isOnline(sourceID int64) bool {
	if e == nil || e.Sources == nil {
		return true
	}
	return e.Sources.IsOnline(sourceID)
}

func (e *Env) isLocal(sourceID int64) bool {
	if e == nil || e.Sources == nil {
		return sourceID == store.LocalSourceID
	}
	return e.Sources.IsLocal(sourceID)
}

func (e *Env) notify(sourceID int64, fileIDs []int64) {
	if e == nil || e.Notifier == nil {
		return
	}
	e.Notifier.TracksAdded(sourceID, fileIDs)
}

func (e *Env) triggerSync() {
	if e == nil || e.Replicator == nil {
		return
	}
	e.Replicator.TriggerSync()
}

func (e *Env) enqueue(cmd Command) {
	if e == nil || e.Queue == nil {
		return
	}
	e.Queue.Enqueue(cmd)
}

// logged holds the oplog identity shared by loggable commands
type logged struct {
	guid     string
	sourceID int64
}

// GUID returns the command's oplog guid, assigning a time-ordered one on first use
func (l *logged) GUID() string {
	if l.guid == "" {
		l.guid = uuid.Must(uuid.NewV7()).String()
	}
	return l.guid
}

// SourceID returns the source the operation belongs to
func (l *logged) SourceID() int64 {
	return l.sourceID
}

// Singleton reports whether only the latest op of this kind matters
func (l *logged) Singleton() bool {
	return false
}
