package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"unicode"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/text/unicode/norm"

	"github.com/franz/musicsync/internal/util"
)

// Resolver maps artist, (artist, album) and (artist, track) names to stable
// integer ids, inserting rows on first sight.
//
// Lookup-then-insert is only race free because a single worker executes
// commands against a store. Ids never change once assigned, so found ids are
// cached.
type Resolver struct {
	artists *lru.Cache[string, int64]
	albums  *lru.Cache[string, int64]
	tracks  *lru.Cache[string, int64]
}

// NewResolver creates a resolver with size entries per entity cache
func NewResolver(size int) (*Resolver, error) {
	artists, err := lru.New[string, int64](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create artist cache: %w", err)
	}
	albums, err := lru.New[string, int64](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create album cache: %w", err)
	}
	tracks, err := lru.New[string, int64](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create track cache: %w", err)
	}
	return &Resolver{artists: artists, albums: albums, tracks: tracks}, nil
}

// Purge drops all cached ids
func (r *Resolver) Purge() {
	r.artists.Purge()
	r.albums.Purge()
	r.tracks.Purge()
}

// ArtistID returns the id of the artist called name.
// Returns util.ErrInvalidName for an empty name and util.ErrNotFound when
// the artist does not exist and create is false.
func (r *Resolver) ArtistID(ctx context.Context, q querier, name string, create bool) (int64, error) {
	sortname := SortName(name)
	if sortname == "" {
		return 0, fmt.Errorf("artist %q: %w", name, util.ErrInvalidName)
	}

	if id, ok := r.artists.Get(sortname); ok {
		return id, nil
	}

	id, err := getOrCreate(ctx, q, create,
		`SELECT id FROM artist WHERE sortname = ?`, []any{sortname},
		`INSERT INTO artist (name, sortname) VALUES (?, ?)`, []any{strings.TrimSpace(name), sortname},
	)
	if err != nil {
		return 0, fmt.Errorf("artist %q: %w", name, err)
	}

	r.artists.Add(sortname, id)
	return id, nil
}

// TrackID returns the id of the track called name by artistID
func (r *Resolver) TrackID(ctx context.Context, q querier, artistID int64, name string, create bool) (int64, error) {
	return r.scoped(ctx, q, r.tracks, "track", artistID, name, create)
}

// AlbumID returns the id of the album called name by artistID
func (r *Resolver) AlbumID(ctx context.Context, q querier, artistID int64, name string, create bool) (int64, error) {
	return r.scoped(ctx, q, r.albums, "album", artistID, name, create)
}

// scoped resolves a name within an artist for the album and track tables
func (r *Resolver) scoped(ctx context.Context, q querier, cache *lru.Cache[string, int64], table string, artistID int64, name string, create bool) (int64, error) {
	sortname := SortName(name)
	if sortname == "" || artistID < 1 {
		return 0, fmt.Errorf("%s %q: %w", table, name, util.ErrInvalidName)
	}

	key := fmt.Sprintf("%d\x00%s", artistID, sortname)
	if id, ok := cache.Get(key); ok {
		return id, nil
	}

	id, err := getOrCreate(ctx, q, create,
		`SELECT id FROM `+table+` WHERE artist = ? AND sortname = ?`, []any{artistID, sortname},
		`INSERT INTO `+table+` (artist, name, sortname) VALUES (?, ?, ?)`, []any{artistID, strings.TrimSpace(name), sortname},
	)
	if err != nil {
		return 0, fmt.Errorf("%s %q: %w", table, name, err)
	}

	cache.Add(key, id)
	return id, nil
}

func getOrCreate(ctx context.Context, q querier, create bool, selectSQL string, selectArgs []any, insertSQL string, insertArgs []any) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, selectSQL, selectArgs...).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("lookup failed: %w", err)
	}
	if !create {
		return 0, util.ErrNotFound
	}

	result, err := q.ExecContext(ctx, insertSQL, insertArgs...)
	if err != nil {
		return 0, fmt.Errorf("insert failed: %w", err)
	}
	id, err = result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get inserted id: %w", err)
	}
	return id, nil
}

// SortName is the key names are compared by: NFC, lower case, trimmed,
// with runs of whitespace collapsed. "Artist, The" sorts as "the artist".
func SortName(name string) string {
	name = norm.NFC.String(name)
	name = strings.ToLower(name)
	name = strings.Join(strings.FieldsFunc(name, unicode.IsSpace), " ")

	if strings.HasSuffix(name, ", the") {
		name = "the " + strings.TrimSuffix(name, ", the")
	}

	return name
}
