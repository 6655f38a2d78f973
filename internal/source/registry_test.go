package source

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/franz/musicsync/internal/store"
)

func TestRegistryLocalAlwaysOnline(t *testing.T) {
	r := NewRegistry("me", "My Laptop")

	if !r.IsOnline(store.LocalSourceID) {
		t.Error("local source should be online")
	}
	if !r.IsLocal(store.LocalSourceID) {
		t.Error("IsLocal(0) should be true")
	}
	if r.IsLocal(3) {
		t.Error("IsLocal(3) should be false")
	}
	if r.IsOnline(3) {
		t.Error("unknown source should not be online")
	}

	local := r.Local()
	if local.Name != "me" || local.FriendlyName != "My Laptop" || !local.IsLocal() {
		t.Errorf("unexpected local source: %+v", local)
	}
}

func TestRegistrySourceLifecycle(t *testing.T) {
	r := NewRegistry("me", "Me")

	r.SourceOnline(2, "alice", "Alice")
	if !r.IsOnline(2) || !r.IsOnlineByName("alice") {
		t.Fatal("alice should be online")
	}

	r.SetOffline("alice")
	if r.IsOnline(2) || r.IsOnlineByName("alice") {
		t.Error("alice should be offline")
	}

	r.SourceOnline(2, "alice", "Alice (desktop)")
	src, ok := r.Get(2)
	if !ok {
		t.Fatal("alice not found")
	}
	if !src.Online || src.FriendlyName != "Alice (desktop)" {
		t.Errorf("unexpected source: %+v", src)
	}

	r.SetOffline("nobody")
	if r.IsOnlineByName("nobody") {
		t.Error("unknown peer should not be online")
	}
}

func TestRegistryStats(t *testing.T) {
	r := NewRegistry("me", "Me")

	r.SetStats(&store.CollectionStats{SourceID: store.LocalSourceID, Files: 4})
	r.SetStats(&store.CollectionStats{SourceID: 99, Files: 1})
	r.SetStats(nil)

	if got := r.Local().Stats; got == nil || got.Files != 4 {
		t.Errorf("expected local stats with 4 files, got %+v", got)
	}
	if _, ok := r.Get(99); ok {
		t.Error("stats must not create sources")
	}
}

func TestRegistryLoad(t *testing.T) {
	ctx := context.Background()
	s, err := store.Open(filepath.Join(t.TempDir(), "collection.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer s.Close()

	w, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("failed to begin: %v", err)
	}
	aliceID, err := w.InsertSource(ctx, "alice", "Alice")
	if err != nil {
		t.Fatalf("failed to insert source: %v", err)
	}
	if _, err := w.InsertSource(ctx, "bob", "Bob"); err != nil {
		t.Fatalf("failed to insert source: %v", err)
	}
	if err := w.Commit(); err != nil {
		t.Fatalf("failed to commit: %v", err)
	}

	r := NewRegistry("me", "Me")
	if err := r.Load(ctx, s); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	list := r.List()
	if len(list) != 3 {
		t.Fatalf("expected 3 sources, got %d", len(list))
	}
	if !list[0].IsLocal() {
		t.Error("local source should be listed first")
	}
	if list[1].ID != aliceID || list[1].Name != "alice" {
		t.Errorf("unexpected second source: %+v", list[1])
	}

	// Persisted peers are offline until they show up
	if r.IsOnlineByName("alice") {
		t.Error("loaded source should start offline")
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry("me", "Me")

	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		wg.Add(2)
		go func(id int64) {
			defer wg.Done()
			r.SourceOnline(id, "peer", "Peer")
			r.SetStats(&store.CollectionStats{SourceID: id})
		}(int64(i))
		go func() {
			defer wg.Done()
			_ = r.List()
			_ = r.IsOnlineByName("peer")
		}()
	}
	wg.Wait()

	if !r.IsOnlineByName("peer") {
		t.Error("peer should be online")
	}
}
