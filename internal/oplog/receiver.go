package oplog

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/franz/musicsync/internal/command"
	"github.com/franz/musicsync/internal/metrics"
	"github.com/franz/musicsync/internal/report"
	"github.com/franz/musicsync/internal/util"
)

// PeerDirectory tracks which peers are registered and online
type PeerDirectory interface {
	IsOnlineByName(name string) bool
	SetOffline(name string)
}

// ReceiverConfig holds receiver configuration
type ReceiverConfig struct {
	Client  *redis.Client
	Channel string
	// Peer is our own name; messages we published are ignored
	Peer  string
	Queue  command.Enqueuer
	Peers  PeerDirectory
	Events *report.EventLogger
}

// Receiver replays oplog entries published by other peers into the local
// collection through the worker
type Receiver struct {
	rdb     *redis.Client
	channel string
	peer    string
	queue   command.Enqueuer
	peers   PeerDirectory
	events  *report.EventLogger

	mu      sync.Mutex
	pending map[string]bool // peers with an AddSource in flight
}

// NewReceiver creates a receiver
func NewReceiver(cfg *ReceiverConfig) *Receiver {
	channel := cfg.Channel
	if channel == "" {
		channel = DefaultChannel
	}
	return &Receiver{
		rdb:     cfg.Client,
		channel: channel,
		peer:    cfg.Peer,
		queue:   cfg.Queue,
		peers:   cfg.Peers,
		events:  cfg.Events,
		pending: make(map[string]bool),
	}
}

// Run subscribes to the replication channel and handles messages until ctx
// is done. ready, if not nil, is closed once the subscription is active.
func (r *Receiver) Run(ctx context.Context, ready chan<- struct{}) error {
	sub := r.rdb.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to subscribe to %s: %w", r.channel, err)
	}
	util.InfoLog("Listening for oplog entries on %s", r.channel)
	if ready != nil {
		close(ready)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if err := r.Handle([]byte(msg.Payload)); err != nil {
				util.WarnLog("Dropping oplog message: %v", err)
				r.events.LogError(report.EventReplicate, "", err)
			}
		}
	}
}

// Handle decodes one message and enqueues the commands it implies.
// Malformed messages are counted and returned as errors; nothing is queued for them.
func (r *Receiver) Handle(data []byte) error {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		metrics.OplogReceived.WithLabelValues(metrics.ReceivedMalformed).Inc()
		return fmt.Errorf("%w: %v", util.ErrMalformed, err)
	}
	if msg.Peer == "" {
		metrics.OplogReceived.WithLabelValues(metrics.ReceivedMalformed).Inc()
		return fmt.Errorf("%w: message without peer", util.ErrMalformed)
	}
	if msg.Peer == r.peer {
		return nil
	}
	if msg.Leaving {
		r.leave(msg.Peer)
		return nil
	}

	env, err := command.ParseEnvelope(msg.Envelope)
	if err != nil {
		metrics.OplogReceived.WithLabelValues(metrics.ReceivedMalformed).Inc()
		return fmt.Errorf("from %s: %w", msg.Peer, err)
	}
	cmd, err := command.Decode(env, msg.Peer)
	if err != nil {
		metrics.OplogReceived.WithLabelValues(metrics.ReceivedMalformed).Inc()
		return fmt.Errorf("from %s: %w", msg.Peer, err)
	}

	// A peer's record of other peers is not ours to replay
	if add, ok := cmd.(*command.AddSource); ok && add.Username != msg.Peer {
		metrics.OplogReceived.WithLabelValues(metrics.ReceivedIgnored).Inc()
		util.DebugLog("Ignoring addsource %q relayed by %s", add.Username, msg.Peer)
		return nil
	}

	r.announce(msg.Peer, msg.FriendlyName)
	r.queue.Enqueue(cmd)
	metrics.OplogReceived.WithLabelValues(metrics.ReceivedQueued).Inc()
	r.events.LogReplicate(msg.Peer, env.GUID, string(env.Kind), nil)
	util.DebugLog("Queued %s op %s from %s", env.Kind, env.GUID, msg.Peer)
	return nil
}

// leave marks a departed peer offline. Its next message announces it again.
func (r *Receiver) leave(peer string) {
	if r.peers != nil {
		r.peers.SetOffline(peer)
	}
	metrics.OplogReceived.WithLabelValues(metrics.ReceivedLeaving).Inc()
	util.InfoLog("Peer %s went offline", peer)
}

// announce registers a peer on first contact. The AddSource is queued ahead
// of the peer's commands, so they find the source when they run.
func (r *Receiver) announce(peer, friendlyName string) {
	if r.peers != nil && r.peers.IsOnlineByName(peer) {
		return
	}

	r.mu.Lock()
	if r.pending[peer] {
		r.mu.Unlock()
		return
	}
	r.pending[peer] = true
	r.mu.Unlock()

	if friendlyName == "" {
		friendlyName = peer
	}
	add := command.NewAddSource(peer, friendlyName)
	add.Origin = peer
	add.OnDone = func(id int64, _ string) {
		r.mu.Lock()
		delete(r.pending, peer)
		r.mu.Unlock()
		r.events.LogSource(id, peer, friendlyName)
	}
	util.InfoLog("New peer %s (%s)", peer, friendlyName)
	r.queue.Enqueue(add)
}
