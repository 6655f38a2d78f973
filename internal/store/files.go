package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
)

// File represents one row of the file table
type File struct {
	ID       int64
	SourceID int64 // LocalSourceID for the local collection
	URL      string
	Size     int64
	Mtime    int64
	MD5      string
	MimeType string
	Duration int64 // seconds
	Bitrate  int64 // kbps
}

// FileJoin links a file to its resolved musical identity
type FileJoin struct {
	FileID   int64
	ArtistID int64
	AlbumID  int64 // 0 when the file has no album
	TrackID  int64
	AlbumPos int
}

// TrackAttribute is one key/value row attached to a track
type TrackAttribute struct {
	TrackID int64
	Key     string
	Value   string
}

// AttrReleaseYear is the track attribute key AddFiles records
const AttrReleaseYear = "releaseyear"

// DeleteFile retires the live file row for (sourceID, url), if any.
// Its file_join row goes with it; release-year attributes of its track are
// dropped when no other file still references that track.
func (w *Writer) DeleteFile(ctx context.Context, sourceID int64, url string) (int64, error) {
	rows, err := w.tx.QueryContext(ctx, `
		SELECT f.id, COALESCE(fj.track, 0)
		FROM file f LEFT JOIN file_join fj ON fj.file = f.id
		WHERE f.source IS ? AND f.url = ?
	`, sourceArg(sourceID), url)
	if err != nil {
		return 0, fmt.Errorf("failed to look up file: %w", err)
	}

	var trackIDs []int64
	var found int64
	for rows.Next() {
		var fileID, trackID int64
		if err := rows.Scan(&fileID, &trackID); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan file: %w", err)
		}
		found++
		if trackID > 0 {
			trackIDs = append(trackIDs, trackID)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("failed to look up file: %w", err)
	}
	if found == 0 {
		return 0, nil
	}

	result, err := w.tx.ExecContext(ctx, `DELETE FROM file WHERE source IS ? AND url = ?`, sourceArg(sourceID), url)
	if err != nil {
		return 0, fmt.Errorf("failed to delete file: %w", err)
	}
	deleted, _ := result.RowsAffected()

	for _, trackID := range trackIDs {
		_, err := w.tx.ExecContext(ctx, `
			DELETE FROM track_attributes
			WHERE id = ? AND k = ?
			  AND NOT EXISTS (SELECT 1 FROM file_join WHERE track = ?)
		`, trackID, AttrReleaseYear, trackID)
		if err != nil {
			return deleted, fmt.Errorf("failed to retire track attributes: %w", err)
		}
	}

	return deleted, nil
}

// InsertFile inserts a file row and sets f.ID
func (w *Writer) InsertFile(ctx context.Context, f *File) error {
	result, err := w.tx.ExecContext(ctx, `
		INSERT INTO file (source, url, size, mtime, md5, mimetype, duration, bitrate)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, sourceArg(f.SourceID), f.URL, f.Size, f.Mtime, f.MD5, f.MimeType, f.Duration, f.Bitrate)
	if err != nil {
		return fmt.Errorf("failed to insert file: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get file ID: %w", err)
	}
	f.ID = id
	return nil
}

// InsertFileJoin inserts the association row for a file
func (w *Writer) InsertFileJoin(ctx context.Context, j *FileJoin) error {
	var album any
	if j.AlbumID > 0 {
		album = j.AlbumID
	}

	_, err := w.tx.ExecContext(ctx, `
		INSERT INTO file_join (file, artist, album, track, albumpos)
		VALUES (?, ?, ?, ?, ?)
	`, j.FileID, j.ArtistID, album, j.TrackID, j.AlbumPos)
	if err != nil {
		return fmt.Errorf("failed to insert file_join: %w", err)
	}
	return nil
}

// InsertTrackAttribute appends a key/value attribute to a track
func (w *Writer) InsertTrackAttribute(ctx context.Context, a *TrackAttribute) error {
	_, err := w.tx.ExecContext(ctx, `
		INSERT INTO track_attributes (id, k, v) VALUES (?, ?, ?)
	`, a.TrackID, a.Key, a.Value)
	if err != nil {
		return fmt.Errorf("failed to insert track attribute: %w", err)
	}
	return nil
}

// FileByURL retrieves the live file for (sourceID, url).
// Returns nil, nil when there is none.
func (s *Store) FileByURL(ctx context.Context, sourceID int64, url string) (*File, error) {
	f := &File{}
	var source sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, source, url, size, mtime, md5, mimetype, duration, bitrate
		FROM file WHERE source IS ? AND url = ?
		ORDER BY id DESC LIMIT 1
	`, sourceArg(sourceID), url).Scan(
		&f.ID, &source, &f.URL, &f.Size, &f.Mtime, &f.MD5, &f.MimeType, &f.Duration, &f.Bitrate,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	f.SourceID = source.Int64
	return f, nil
}

// FileByID retrieves a file by id. Returns nil, nil when there is none.
func (s *Store) FileByID(ctx context.Context, id int64) (*File, error) {
	f := &File{}
	var source sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, source, url, size, mtime, md5, mimetype, duration, bitrate
		FROM file WHERE id = ?
	`, id).Scan(
		&f.ID, &source, &f.URL, &f.Size, &f.Mtime, &f.MD5, &f.MimeType, &f.Duration, &f.Bitrate,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file %d: %w", id, err)
	}
	f.SourceID = source.Int64
	return f, nil
}

// CountFiles returns the number of file rows for (sourceID, url)
func (s *Store) CountFiles(ctx context.Context, sourceID int64, url string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM file WHERE source IS ? AND url = ?
	`, sourceArg(sourceID), url).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count files: %w", err)
	}
	return count, nil
}

// FileJoinByFile retrieves the association row for a file.
// Returns nil, nil for orphaned files.
func (s *Store) FileJoinByFile(ctx context.Context, fileID int64) (*FileJoin, error) {
	j := &FileJoin{}
	var album sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT file, artist, album, track, albumpos FROM file_join WHERE file = ?
	`, fileID).Scan(&j.FileID, &j.ArtistID, &album, &j.TrackID, &j.AlbumPos)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file_join: %w", err)
	}
	j.AlbumID = album.Int64
	return j, nil
}

// TrackAttributes returns all attributes of a track in insertion order
func (s *Store) TrackAttributes(ctx context.Context, trackID int64) ([]TrackAttribute, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, k, v FROM track_attributes WHERE id = ? ORDER BY rowid
	`, trackID)
	if err != nil {
		return nil, fmt.Errorf("failed to query track attributes: %w", err)
	}
	defer rows.Close()

	var attrs []TrackAttribute
	for rows.Next() {
		var a TrackAttribute
		if err := rows.Scan(&a.TrackID, &a.Key, &a.Value); err != nil {
			return nil, fmt.Errorf("failed to scan track attribute: %w", err)
		}
		attrs = append(attrs, a)
	}
	return attrs, rows.Err()
}

// EntityName returns the display name of an artist, album or track row
func (s *Store) EntityName(ctx context.Context, table string, id int64) (string, error) {
	switch table {
	case "artist", "album", "track":
	default:
		return "", fmt.Errorf("unknown entity table %q", table)
	}

	var name string
	err := s.db.QueryRowContext(ctx, `SELECT name FROM `+table+` WHERE id = ?`, id).Scan(&name)
	if err != nil {
		return "", fmt.Errorf("failed to get %s %d: %w", table, id, err)
	}
	return name, nil
}

// FormatFileID is the redacted url form of a file: its decimal id
func FormatFileID(id int64) string {
	return strconv.FormatInt(id, 10)
}
