// Package source tracks the peers contributing to the collection.
package source

import (
	"context"
	"sort"
	"sync"

	"github.com/franz/musicsync/internal/store"
)

// Source is a contributing peer as seen by the running process
type Source struct {
	ID           int64
	Name         string
	FriendlyName string
	Online       bool
	Stats        *store.CollectionStats
}

// IsLocal reports whether this is the local collection
func (s Source) IsLocal() bool {
	return s.ID == store.LocalSourceID
}

// Registry is the in-memory Source Registry. It is safe for concurrent use:
// the worker updates it after commits while producers and the api read it.
type Registry struct {
	mu     sync.RWMutex
	byID   map[int64]*Source
	byName map[string]int64
}

// NewRegistry creates a registry holding only the local source
func NewRegistry(localName, localFriendlyName string) *Registry {
	r := &Registry{
		byID:   make(map[int64]*Source),
		byName: make(map[string]int64),
	}
	r.byID[store.LocalSourceID] = &Source{
		ID:           store.LocalSourceID,
		Name:         localName,
		FriendlyName: localFriendlyName,
		Online:       true,
	}
	return r
}

// Load adds every persisted source as offline. Call before the worker starts.
func (r *Registry) Load(ctx context.Context, s *store.Store) error {
	sources, err := s.ListSources(ctx)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, src := range sources {
		r.byID[src.ID] = &Source{ID: src.ID, Name: src.Name, FriendlyName: src.FriendlyName}
		r.byName[src.Name] = src.ID
	}
	return nil
}

// IsLocal reports whether sourceID is the local collection
func (r *Registry) IsLocal(sourceID int64) bool {
	return sourceID == store.LocalSourceID
}

// IsOnline reports whether a source is currently connected.
// The local source is always online; unknown sources are not.
func (r *Registry) IsOnline(sourceID int64) bool {
	if sourceID == store.LocalSourceID {
		return true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	src, ok := r.byID[sourceID]
	return ok && src.Online
}

// IsOnlineByName reports whether the named peer is known and online
func (r *Registry) IsOnlineByName(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byName[name]
	if !ok {
		return false
	}
	return r.byID[id].Online
}

// SourceOnline records a committed AddSource: the source exists under id and is online
func (r *Registry) SourceOnline(sourceID int64, name, friendlyName string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	src, ok := r.byID[sourceID]
	if !ok {
		src = &Source{ID: sourceID}
		r.byID[sourceID] = src
	}
	src.Name = name
	src.FriendlyName = friendlyName
	src.Online = true
	r.byName[name] = sourceID
}

// SetOffline marks the named peer offline. Commands for it that commit
// afterwards still land but do not notify.
func (r *Registry) SetOffline(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byName[name]; ok {
		r.byID[id].Online = false
	}
}

// SetStats attaches freshly computed collection statistics to a source
func (r *Registry) SetStats(stats *store.CollectionStats) {
	if stats == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if src, ok := r.byID[stats.SourceID]; ok {
		src.Stats = stats
	}
}

// Get returns a copy of a source
func (r *Registry) Get(sourceID int64) (Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src, ok := r.byID[sourceID]
	if !ok {
		return Source{}, false
	}
	return *src, true
}

// Local returns a copy of the local source
func (r *Registry) Local() Source {
	src, _ := r.Get(store.LocalSourceID)
	return src
}

// List returns copies of all sources, local first, then by id
func (r *Registry) List() []Source {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]Source, 0, len(r.byID))
	for _, src := range r.byID {
		list = append(list, *src)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}
