package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/franz/musicsync/internal/util"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "collection.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func beginTest(t *testing.T, s *Store) *Writer {
	t.Helper()
	w, err := s.Begin(context.Background())
	if err != nil {
		t.Fatalf("failed to begin: %v", err)
	}
	t.Cleanup(func() { w.Rollback() })
	return w
}

func TestStoreOpenAndMigrate(t *testing.T) {
	store := openTestStore(t)

	version, err := store.getSchemaVersion()
	if err != nil {
		t.Fatalf("failed to get schema version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("expected schema version %d, got %d", currentSchemaVersion, version)
	}

	tables := []string{"source", "file", "file_join", "track_attributes", "artist", "album", "track", "oplog", "schema_version"}
	for _, table := range tables {
		var count int
		err := store.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		if err != nil {
			t.Fatalf("failed to query table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("expected table %s to exist", table)
		}
	}

	if err := store.CheckIntegrity(); err != nil {
		t.Errorf("integrity check failed: %v", err)
	}
}

func TestStoreReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "collection.db")
	ctx := context.Background()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	w, _ := s.Begin(ctx)
	if _, err := w.InsertSource(ctx, "alice", "Alice"); err != nil {
		t.Fatalf("failed to insert source: %v", err)
	}
	if err := w.Commit(); err != nil {
		t.Fatalf("failed to commit: %v", err)
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	defer s.Close()

	src, err := s.SourceByName(ctx, "alice")
	if err != nil || src == nil {
		t.Fatalf("expected source after reopen, got %v, %v", src, err)
	}
}

func TestResolverGetOrCreate(t *testing.T) {
	ctx := context.Background()
	w := beginTest(t, openTestStore(t))

	artistID, err := w.ArtistID(ctx, "Boards of Canada", true)
	if err != nil {
		t.Fatalf("failed to create artist: %v", err)
	}
	if artistID < 1 {
		t.Fatalf("expected positive artist id, got %d", artistID)
	}

	again, err := w.ArtistID(ctx, "  boards of  CANADA ", false)
	if err != nil {
		t.Fatalf("failed to look up artist: %v", err)
	}
	if again != artistID {
		t.Errorf("expected same artist id %d, got %d", artistID, again)
	}

	trackID, err := w.TrackID(ctx, artistID, "Roygbiv", true)
	if err != nil {
		t.Fatalf("failed to create track: %v", err)
	}
	albumID, err := w.AlbumID(ctx, artistID, "Roygbiv", true)
	if err != nil {
		t.Fatalf("failed to create album: %v", err)
	}
	if trackID < 1 || albumID < 1 {
		t.Errorf("expected positive ids, got track %d album %d", trackID, albumID)
	}

	// Same track name under another artist is a different track
	otherArtist, _ := w.ArtistID(ctx, "Someone Else", true)
	otherTrack, err := w.TrackID(ctx, otherArtist, "Roygbiv", true)
	if err != nil {
		t.Fatalf("failed to create track: %v", err)
	}
	if otherTrack == trackID {
		t.Error("expected distinct track ids for distinct artists")
	}
}

func TestResolverRejectsEmptyNames(t *testing.T) {
	ctx := context.Background()
	w := beginTest(t, openTestStore(t))

	if _, err := w.ArtistID(ctx, "   ", true); !errors.Is(err, util.ErrInvalidName) {
		t.Errorf("expected ErrInvalidName for blank artist, got %v", err)
	}

	artistID, _ := w.ArtistID(ctx, "X", true)
	if _, err := w.TrackID(ctx, artistID, "", true); !errors.Is(err, util.ErrInvalidName) {
		t.Errorf("expected ErrInvalidName for empty track, got %v", err)
	}
	if _, err := w.AlbumID(ctx, 0, "Album", true); !errors.Is(err, util.ErrInvalidName) {
		t.Errorf("expected ErrInvalidName for missing artist id, got %v", err)
	}
	if _, err := w.ArtistID(ctx, "Nobody", false); !errors.Is(err, util.ErrNotFound) {
		t.Errorf("expected ErrNotFound without create, got %v", err)
	}
}

func TestResolverCachePurgedOnRollback(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	w, _ := s.Begin(ctx)
	if _, err := w.ArtistID(ctx, "Ghost", true); err != nil {
		t.Fatalf("failed to create artist: %v", err)
	}
	w.Rollback()

	w = beginTest(t, s)
	if _, err := w.ArtistID(ctx, "Ghost", false); !errors.Is(err, util.ErrNotFound) {
		t.Errorf("expected rolled back artist to be gone, got %v", err)
	}
}

func TestSortName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Beatles, The", "the beatles"},
		{"  Multiple   Spaces ", "multiple spaces"},
		{"Café", "café"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := SortName(tt.in); got != tt.want {
			t.Errorf("SortName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDeleteFileRetiresJoinAndAttributes(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	w, _ := s.Begin(ctx)

	f := &File{URL: "/music/a.mp3", Size: 10}
	if err := w.InsertFile(ctx, f); err != nil {
		t.Fatalf("failed to insert file: %v", err)
	}
	artistID, _ := w.ArtistID(ctx, "X", true)
	trackID, _ := w.TrackID(ctx, artistID, "T1", true)
	if err := w.InsertFileJoin(ctx, &FileJoin{FileID: f.ID, ArtistID: artistID, TrackID: trackID}); err != nil {
		t.Fatalf("failed to insert file_join: %v", err)
	}
	if err := w.InsertTrackAttribute(ctx, &TrackAttribute{TrackID: trackID, Key: AttrReleaseYear, Value: "1999"}); err != nil {
		t.Fatalf("failed to insert attribute: %v", err)
	}

	deleted, err := w.DeleteFile(ctx, LocalSourceID, "/music/a.mp3")
	if err != nil {
		t.Fatalf("failed to delete file: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 deleted row, got %d", deleted)
	}
	if err := w.Commit(); err != nil {
		t.Fatalf("failed to commit: %v", err)
	}

	join, err := s.FileJoinByFile(ctx, f.ID)
	if err != nil {
		t.Fatalf("failed to get file_join: %v", err)
	}
	if join != nil {
		t.Error("expected file_join to cascade with the file")
	}
	attrs, _ := s.TrackAttributes(ctx, trackID)
	if len(attrs) != 0 {
		t.Errorf("expected attributes of unreferenced track to be retired, got %v", attrs)
	}
}

func TestDeleteFileScopedBySource(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	w, _ := s.Begin(ctx)

	bob, _ := w.InsertSource(ctx, "bob", "Bob")
	if err := w.InsertFile(ctx, &File{URL: "7"}); err != nil {
		t.Fatalf("failed to insert local file: %v", err)
	}
	if err := w.InsertFile(ctx, &File{SourceID: bob, URL: "7"}); err != nil {
		t.Fatalf("failed to insert remote file: %v", err)
	}

	if _, err := w.DeleteFile(ctx, bob, "7"); err != nil {
		t.Fatalf("failed to delete: %v", err)
	}
	w.Commit()

	local, _ := s.CountFiles(ctx, LocalSourceID, "7")
	remote, _ := s.CountFiles(ctx, bob, "7")
	if local != 1 || remote != 0 {
		t.Errorf("expected local=1 remote=0, got local=%d remote=%d", local, remote)
	}
}

func TestSourceUpsertRows(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	w, _ := s.Begin(ctx)

	id, err := w.InsertSource(ctx, "bob", "Bob")
	if err != nil {
		t.Fatalf("failed to insert source: %v", err)
	}
	if err := w.TouchSource(ctx, id, "Robert"); err != nil {
		t.Fatalf("failed to touch source: %v", err)
	}
	if err := w.SetSourceLastOp(ctx, id, "guid-1"); err != nil {
		t.Fatalf("failed to set lastop: %v", err)
	}
	w.Commit()

	if err := s.MarkAllSourcesOffline(ctx); err != nil {
		t.Fatalf("failed to reset sources: %v", err)
	}

	sources, err := s.ListSources(ctx)
	if err != nil {
		t.Fatalf("failed to list sources: %v", err)
	}
	if len(sources) != 1 {
		t.Fatalf("expected 1 source, got %d", len(sources))
	}
	src := sources[0]
	if src.ID != id || src.FriendlyName != "Robert" || src.LastOp != "guid-1" || src.Online {
		t.Errorf("unexpected source row: %+v", src)
	}
}

func TestOplogAppendIdempotentOnGUID(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	w, _ := s.Begin(ctx)

	first := &OplogEntry{GUID: "g-1", Command: "addfiles", JSON: `{}`}
	if err := w.AppendOplog(ctx, first); err != nil {
		t.Fatalf("failed to append: %v", err)
	}
	if first.ID == 0 {
		t.Error("expected oplog id to be set")
	}

	dup := &OplogEntry{GUID: "g-1", Command: "addfiles", JSON: `{}`}
	if err := w.AppendOplog(ctx, dup); err != nil {
		t.Fatalf("failed to append duplicate: %v", err)
	}
	if dup.ID != 0 {
		t.Errorf("expected duplicate to be ignored, got id %d", dup.ID)
	}

	bob, _ := w.InsertSource(ctx, "bob", "Bob")
	if err := w.AppendOplog(ctx, &OplogEntry{SourceID: bob, GUID: "g-2", Command: "addfiles", JSON: `{}`}); err != nil {
		t.Fatalf("failed to append remote entry: %v", err)
	}
	if err := w.AppendOplog(ctx, &OplogEntry{GUID: "g-3", Command: "addsource", JSON: `{}`}); err != nil {
		t.Fatalf("failed to append: %v", err)
	}
	w.Commit()

	entries, err := s.LocalOplogSince(ctx, 0, 10)
	if err != nil {
		t.Fatalf("failed to read oplog: %v", err)
	}
	if len(entries) != 2 || entries[0].GUID != "g-1" || entries[1].GUID != "g-3" {
		t.Errorf("expected local entries g-1, g-3 in order, got %+v", entries)
	}

	after, _ := s.LocalOplogSince(ctx, entries[0].ID, 10)
	if len(after) != 1 || after[0].GUID != "g-3" {
		t.Errorf("expected only g-3 after cursor, got %+v", after)
	}
}

func TestCollectionStats(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	w, _ := s.Begin(ctx)

	for i, url := range []string{"/a.mp3", "/b.mp3"} {
		f := &File{URL: url, Size: 100, Duration: 60}
		if err := w.InsertFile(ctx, f); err != nil {
			t.Fatalf("failed to insert file: %v", err)
		}
		artistID, _ := w.ArtistID(ctx, "X", true)
		trackID, _ := w.TrackID(ctx, artistID, []string{"T1", "T2"}[i], true)
		w.InsertFileJoin(ctx, &FileJoin{FileID: f.ID, ArtistID: artistID, TrackID: trackID})
	}
	w.AppendOplog(ctx, &OplogEntry{GUID: "last", Command: "addfiles", JSON: `{}`})
	w.Commit()

	stats, err := s.CollectionStats(ctx, LocalSourceID)
	if err != nil {
		t.Fatalf("failed to compute stats: %v", err)
	}
	if stats.Files != 2 || stats.Artists != 1 || stats.Tracks != 2 || stats.Albums != 0 {
		t.Errorf("unexpected counts: %+v", stats)
	}
	if stats.TotalBytes != 200 || stats.TotalDuration != 120 {
		t.Errorf("unexpected totals: %+v", stats)
	}
	if stats.LastOp != "last" {
		t.Errorf("expected last op 'last', got %q", stats.LastOp)
	}
}

func TestFileByID(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	w, _ := s.Begin(ctx)

	f := &File{URL: "/a.mp3", Size: 42, MimeType: "audio/mpeg"}
	if err := w.InsertFile(ctx, f); err != nil {
		t.Fatalf("failed to insert file: %v", err)
	}
	if err := w.Commit(); err != nil {
		t.Fatalf("failed to commit: %v", err)
	}

	got, err := s.FileByID(ctx, f.ID)
	if err != nil || got == nil {
		t.Fatalf("expected file %d: %v", f.ID, err)
	}
	if got.URL != "/a.mp3" || got.Size != 42 || got.SourceID != LocalSourceID {
		t.Errorf("unexpected file: %+v", got)
	}

	missing, err := s.FileByID(ctx, f.ID+1)
	if err != nil || missing != nil {
		t.Errorf("expected no file, got %+v, %v", missing, err)
	}
}
