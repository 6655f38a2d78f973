package oplog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/franz/musicsync/internal/command"
	"github.com/franz/musicsync/internal/metrics"
	"github.com/franz/musicsync/internal/report"
	"github.com/franz/musicsync/internal/store"
	"github.com/franz/musicsync/internal/util"
)

// DefaultChannel is the redis channel peers exchange oplog entries on
const DefaultChannel = "msync:oplog"

// Message is what goes over the replication channel: one oplog envelope
// and the peer it originated from. A message with Leaving set carries no
// envelope and tells receivers the peer went away.
type Message struct {
	Peer         string          `json:"peer"`
	FriendlyName string          `json:"friendly_name"`
	Envelope     json.RawMessage `json:"envelope,omitempty"`
	Leaving      bool            `json:"leaving,omitempty"`
}

// leaveTimeout bounds the farewell publish on shutdown
const leaveTimeout = 2 * time.Second

// PublisherConfig holds publisher configuration
type PublisherConfig struct {
	Client       *redis.Client
	Channel      string
	Peer         string
	FriendlyName string
	// Queue is the collection worker; the oplog is only read through it
	Queue     command.Enqueuer
	BatchSize int
	// ReadTimeout bounds the wait for a queued oplog read
	ReadTimeout time.Duration
	Retry       *util.RetryConfig
	Events      *report.EventLogger
}

// Publisher broadcasts local oplog entries to peers. It implements
// command.Replicator: TriggerSync never blocks and repeated triggers
// collapse into one pass.
type Publisher struct {
	rdb      *redis.Client
	channel  string
	peer     string
	friendly string
	queue    command.Enqueuer
	batch    int
	timeout  time.Duration
	retry    *util.RetryConfig
	events   *report.EventLogger

	trigger chan struct{}

	mu     sync.Mutex
	cursor int64
}

// NewPublisher creates a publisher. Its cursor starts at zero, so the
// first pass announces the whole local history.
func NewPublisher(cfg *PublisherConfig) *Publisher {
	p := &Publisher{
		rdb:      cfg.Client,
		channel:  cfg.Channel,
		peer:     cfg.Peer,
		friendly: cfg.FriendlyName,
		queue:    cfg.Queue,
		batch:    cfg.BatchSize,
		timeout:  cfg.ReadTimeout,
		retry:    cfg.Retry,
		events:   cfg.Events,
		trigger:  make(chan struct{}, 1),
	}
	if p.channel == "" {
		p.channel = DefaultChannel
	}
	if p.batch <= 0 {
		p.batch = 100
	}
	if p.timeout <= 0 {
		p.timeout = time.Minute
	}
	if p.retry == nil {
		p.retry = util.PublishRetryConfig()
	}
	return p
}

// TriggerSync schedules a publishing pass
func (p *Publisher) TriggerSync() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

// Cursor returns the id of the last published oplog entry
func (p *Publisher) Cursor() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor
}

// Run publishes pending entries whenever triggered, until ctx is done.
// A pass runs immediately on start, and peers are told we left on the way out.
func (p *Publisher) Run(ctx context.Context) error {
	p.TriggerSync()

	for {
		select {
		case <-ctx.Done():
			p.leave(context.WithoutCancel(ctx))
			return nil
		case <-p.trigger:
			if err := p.Flush(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				util.WarnLog("Oplog publish pass stopped at %d: %v", p.Cursor(), err)
			}
		}
	}
}

// Flush publishes every local entry after the cursor
func (p *Publisher) Flush(ctx context.Context) error {
	for {
		entries, err := p.read(ctx, p.Cursor())
		if err != nil {
			return err
		}

		for i := range entries {
			if err := p.publish(ctx, &entries[i]); err != nil {
				return err
			}
			p.mu.Lock()
			p.cursor = entries[i].ID
			p.mu.Unlock()
		}

		if len(entries) < p.batch {
			return nil
		}
	}
}

// read fetches a batch of entries through the worker
func (p *Publisher) read(ctx context.Context, after int64) ([]store.OplogEntry, error) {
	result := make(chan []store.OplogEntry, 1)
	p.queue.Enqueue(&command.ReadOplog{
		After:  after,
		Limit:  p.batch,
		OnDone: func(entries []store.OplogEntry) { result <- entries },
	})

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	select {
	case entries := <-result:
		return entries, nil
	case <-timer.C:
		return nil, fmt.Errorf("timed out reading oplog after %d", after)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// leave announces that this peer is going offline. Best effort.
func (p *Publisher) leave(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, leaveTimeout)
	defer cancel()

	data, err := json.Marshal(Message{Peer: p.peer, FriendlyName: p.friendly, Leaving: true})
	if err != nil {
		return
	}
	if err := p.rdb.Publish(ctx, p.channel, data).Err(); err != nil {
		util.WarnLog("Failed to announce leaving on %s: %v", p.channel, err)
		return
	}
	util.DebugLog("Announced leaving on %s", p.channel)
}

func (p *Publisher) publish(ctx context.Context, entry *store.OplogEntry) error {
	msg := Message{
		Peer:         p.peer,
		FriendlyName: p.friendly,
		Envelope:     json.RawMessage(entry.JSON),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode oplog entry %d: %w", entry.ID, err)
	}

	err = util.RetryContext(ctx, p.retry, func() error {
		return p.rdb.Publish(ctx, p.channel, data).Err()
	}, fmt.Sprintf("publish %s op %s", entry.Command, entry.GUID))
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		p.events.LogReplicate(p.peer, entry.GUID, entry.Command, err)
		return fmt.Errorf("failed to publish oplog entry %d: %w", entry.ID, err)
	}

	metrics.OplogPublished.Inc()
	p.events.LogReplicate(p.peer, entry.GUID, entry.Command, nil)
	util.DebugLog("Published %s op %s", entry.Command, entry.GUID)
	return nil
}
