package oplog_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/franz/musicsync/internal/command"
	"github.com/franz/musicsync/internal/oplog"
	"github.com/franz/musicsync/internal/source"
	"github.com/franz/musicsync/internal/store"
	"github.com/franz/musicsync/internal/util"
	"github.com/franz/musicsync/internal/worker"
)

type captureQueue struct {
	mu   sync.Mutex
	cmds []command.Command
}

func (q *captureQueue) Enqueue(cmd command.Command) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cmds = append(q.cmds, cmd)
}

func (q *captureQueue) kinds() []command.Kind {
	q.mu.Lock()
	defer q.mu.Unlock()
	var kinds []command.Kind
	for _, c := range q.cmds {
		kinds = append(kinds, c.Kind())
	}
	return kinds
}

type onlinePeers map[string]bool

func (p onlinePeers) IsOnlineByName(name string) bool { return p[name] }
func (p onlinePeers) SetOffline(name string)            { delete(p, name) }

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "collection.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func message(t *testing.T, peer string, env *command.Envelope) []byte {
	t.Helper()
	raw, err := json.Marshal(env)
	require.NoError(t, err)
	data, err := json.Marshal(oplog.Message{Peer: peer, FriendlyName: peer + "'s laptop", Envelope: raw})
	require.NoError(t, err)
	return data
}

func TestAppendStoresRedactedEnvelope(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	w, err := s.Begin(ctx)
	require.NoError(t, err)
	defer w.Rollback()

	cmd := command.NewAddFiles("", []command.FileRecord{{URL: "/home/me/a.mp3", Artist: "X", Track: "T"}})
	require.NoError(t, cmd.Exec(ctx, nil, w))

	entry, err := oplog.Append(ctx, w, cmd)
	require.NoError(t, err)
	require.NoError(t, w.Commit())

	assert.NotZero(t, entry.ID)
	assert.Equal(t, cmd.GUID(), entry.GUID)
	assert.Equal(t, store.LocalSourceID, entry.SourceID)
	assert.NotContains(t, entry.JSON, "/home/me")

	env, err := command.ParseEnvelope([]byte(entry.JSON))
	require.NoError(t, err)
	assert.Equal(t, command.KindAddFiles, env.Kind)
}

func TestReceiverAnnouncesNewPeerOnce(t *testing.T) {
	q := &captureQueue{}
	r := oplog.NewReceiver(&oplog.ReceiverConfig{Peer: "me", Queue: q, Peers: onlinePeers{}})

	env, err := command.NewEnvelope("g1", command.KindAddFiles, false, []command.FileRecord{{URL: "1"}})
	require.NoError(t, err)
	require.NoError(t, r.Handle(message(t, "alice", env)))

	env.GUID = "g2"
	require.NoError(t, r.Handle(message(t, "alice", env)))

	assert.Equal(t, []command.Kind{command.KindAddSource, command.KindAddFiles, command.KindAddFiles}, q.kinds())

	add := q.cmds[0].(*command.AddSource)
	assert.Equal(t, "alice", add.Username)
	assert.Equal(t, "alice's laptop", add.FriendlyName)
	assert.Equal(t, "alice", add.Origin)

	files := q.cmds[1].(*command.AddFiles)
	assert.Equal(t, "alice", files.Source)
	assert.Equal(t, "g1", files.GUID())
}

func TestReceiverSkipsKnownPeerAnnouncement(t *testing.T) {
	q := &captureQueue{}
	r := oplog.NewReceiver(&oplog.ReceiverConfig{Peer: "me", Queue: q, Peers: onlinePeers{"alice": true}})

	env, err := command.NewEnvelope("g1", command.KindAddFiles, false, []command.FileRecord{{URL: "1"}})
	require.NoError(t, err)
	require.NoError(t, r.Handle(message(t, "alice", env)))

	assert.Equal(t, []command.Kind{command.KindAddFiles}, q.kinds())
}

func TestReceiverIgnoresOwnAndRelayedOps(t *testing.T) {
	q := &captureQueue{}
	r := oplog.NewReceiver(&oplog.ReceiverConfig{Peer: "me", Queue: q, Peers: onlinePeers{"alice": true}})

	env, err := command.NewEnvelope("g1", command.KindAddFiles, false, []command.FileRecord{{URL: "1"}})
	require.NoError(t, err)
	require.NoError(t, r.Handle(message(t, "me", env)))

	relayed, err := command.NewEnvelope("g2", command.KindAddSource, false, map[string]string{"username": "bob"})
	require.NoError(t, err)
	require.NoError(t, r.Handle(message(t, "alice", relayed)))

	assert.Empty(t, q.kinds())

	own, err := command.NewEnvelope("g3", command.KindAddSource, false, map[string]string{"username": "alice"})
	require.NoError(t, err)
	require.NoError(t, r.Handle(message(t, "alice", own)))

	require.Equal(t, []command.Kind{command.KindAddSource}, q.kinds())
	assert.Equal(t, "alice", q.cmds[0].(*command.AddSource).Origin)
}

func TestReceiverLeavingPeerGoesOffline(t *testing.T) {
	q := &captureQueue{}
	peers := onlinePeers{"alice": true}
	r := oplog.NewReceiver(&oplog.ReceiverConfig{Peer: "me", Queue: q, Peers: peers})

	data, err := json.Marshal(oplog.Message{Peer: "alice", Leaving: true})
	require.NoError(t, err)
	require.NoError(t, r.Handle(data))
	assert.False(t, peers.IsOnlineByName("alice"))
	assert.Empty(t, q.kinds())

	// The next op from alice announces her again
	env, err := command.NewEnvelope("g1", command.KindAddFiles, false, []command.FileRecord{{URL: "1"}})
	require.NoError(t, err)
	require.NoError(t, r.Handle(message(t, "alice", env)))
	assert.Equal(t, []command.Kind{command.KindAddSource, command.KindAddFiles}, q.kinds())
}

func TestReceiverRejectsMalformed(t *testing.T) {
	q := &captureQueue{}
	r := oplog.NewReceiver(&oplog.ReceiverConfig{Peer: "me", Queue: q})

	tests := []struct {
		name string
		data string
	}{
		{"not json", `nope`},
		{"no peer", `{"envelope":{"guid":"g","kind":"addfiles","payload":[]}}`},
		{"bad envelope", `{"peer":"alice","envelope":{"kind":"addfiles","payload":[]}}`},
		{"unknown kind", `{"peer":"alice","envelope":{"guid":"g","kind":"dropall","payload":{}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, r.Handle([]byte(tt.data)))
		})
	}
	assert.Empty(t, q.kinds())
}

func TestReceiverRejectsMalformedSentinel(t *testing.T) {
	r := oplog.NewReceiver(&oplog.ReceiverConfig{Peer: "me", Queue: &captureQueue{}})
	assert.ErrorIs(t, r.Handle([]byte(`{"peer":""}`)), util.ErrMalformed)
}

type peer struct {
	name     string
	store    *store.Store
	registry *source.Registry
	worker   *worker.Worker
}

func newPeer(t *testing.T, name string) *peer {
	t.Helper()
	p := &peer{
		name:     name,
		store:    openStore(t),
		registry: source.NewRegistry(name, name),
	}
	p.worker = worker.New(&worker.Config{
		Store: p.store,
		Env:   &command.Env{Sources: p.registry},
		Name:  t.Name() + "-" + name,
	})
	return p
}

func TestReplicationBetweenPeers(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	alice := newPeer(t, "alice")
	bob := newPeer(t, "bob")

	aliceRDB := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	bobRDB := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		aliceRDB.Close()
		bobRDB.Close()
	})

	pub := oplog.NewPublisher(&oplog.PublisherConfig{
		Client:       aliceRDB,
		Peer:         "alice",
		FriendlyName: "Alice",
		Queue:        alice.worker,
		BatchSize:    2,
		ReadTimeout:  5 * time.Second,
	})
	alice.worker.Env().Replicator = pub

	recv := oplog.NewReceiver(&oplog.ReceiverConfig{
		Client: bobRDB,
		Peer:   "bob",
		Queue:  bob.worker,
		Peers:  bob.registry,
	})

	alice.worker.Start(ctx)
	bob.worker.Start(ctx)
	t.Cleanup(alice.worker.Stop)
	t.Cleanup(bob.worker.Stop)

	ready := make(chan struct{})
	go recv.Run(ctx, ready)
	select {
	case <-ready:
	case <-time.After(5 * time.Second):
		t.Fatal("receiver did not subscribe")
	}
	pubCtx, stopPub := context.WithCancel(ctx)
	defer stopPub()
	pubDone := make(chan struct{})
	go func() {
		pub.Run(pubCtx)
		close(pubDone)
	}()

	for i := 0; i < 3; i++ {
		alice.worker.Enqueue(command.NewAddFiles("", []command.FileRecord{{
			URL:    filepath.Join("/home/alice/Music", string(rune('a'+i))+".mp3"),
			Size:   int64(100 + i),
			Artist: "Artist",
			Track:  string(rune('A' + i)),
		}}))
	}

	require.Eventually(t, func() bool {
		src, err := bob.store.SourceByName(ctx, "alice")
		if err != nil || src == nil {
			return false
		}
		stats, err := bob.store.CollectionStats(ctx, src.ID)
		return err == nil && stats.Files == 3
	}, 10*time.Second, 20*time.Millisecond)

	src, err := bob.store.SourceByName(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", src.FriendlyName)
	assert.True(t, bob.registry.IsOnlineByName("alice"))

	// Bob only ever sees file ids, never alice's paths
	local, err := alice.store.FileByURL(ctx, store.LocalSourceID, "/home/alice/Music/a.mp3")
	require.NoError(t, err)
	require.NotNil(t, local)
	remote, err := bob.store.FileByURL(ctx, src.ID, store.FormatFileID(local.ID))
	require.NoError(t, err)
	require.NotNil(t, remote)
	assert.Equal(t, int64(100), remote.Size)

	// Neither replayed ops nor the announcement of alice are local to bob
	bobLocal, err := bob.store.LocalOplogSince(ctx, 0, 100)
	require.NoError(t, err)
	assert.Empty(t, bobLocal)

	require.Eventually(t, func() bool { return pub.Cursor() >= 3 }, 5*time.Second, 10*time.Millisecond)

	// Alice shutting down takes her offline at bob
	stopPub()
	<-pubDone
	require.Eventually(t, func() bool {
		return !bob.registry.IsOnlineByName("alice")
	}, 5*time.Second, 10*time.Millisecond)
}
