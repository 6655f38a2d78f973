package command

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/franz/musicsync/internal/store"
	"github.com/franz/musicsync/internal/util"
)

// FileRecord is one file candidate of an AddFiles batch.
// Numeric fields default to zero when absent.
type FileRecord struct {
	ID       int64  `json:"id,omitempty"` // assigned on commit
	URL      string `json:"url"`
	Mtime    int64  `json:"mtime"`
	Size     int64  `json:"size"`
	Hash     string `json:"hash"`
	MimeType string `json:"mimetype"`
	Duration int64  `json:"duration"`
	Bitrate  int64  `json:"bitrate"`
	Artist   string `json:"artist"`
	Album    string `json:"album"`
	Track    string `json:"track"`
	AlbumPos int    `json:"albumpos"`
	Year     int    `json:"year"`
}

func (r *FileRecord) validate() error {
	if r.URL == "" {
		return errors.New("empty url")
	}
	if r.Mtime < 0 || r.Size < 0 || r.Duration < 0 || r.Bitrate < 0 || r.AlbumPos < 0 || r.Year < 0 {
		return errors.New("negative numeric field")
	}
	return nil
}

// AddFiles inserts a batch of scanned or replicated files into one source's
// collection. Each record is processed on its own: a failing record is
// skipped and the rest of the batch still lands.
type AddFiles struct {
	logged

	// Source is the owning peer's name; empty means the local collection
	Source string
	Files  []FileRecord

	// OnDone receives the records, with ids assigned, after commit
	OnDone func(files []FileRecord, sourceID int64)

	ids []int64
}

// NewAddFiles creates an AddFiles command. Ownership of files passes to the command.
func NewAddFiles(source string, files []FileRecord) *AddFiles {
	return &AddFiles{Source: source, Files: files}
}

// Kind implements Command
func (c *AddFiles) Kind() Kind { return KindAddFiles }

// Mutates implements Command
func (c *AddFiles) Mutates() bool { return true }

// AddedIDs returns the ids of the files that fully committed
func (c *AddFiles) AddedIDs() []int64 { return c.ids }

// Exec implements Command
func (c *AddFiles) Exec(ctx context.Context, env *Env, w *store.Writer) error {
	sourceID, err := resolveSource(ctx, w, c.Source)
	if err != nil {
		return err
	}
	c.sourceID = sourceID
	c.ids = c.ids[:0]

	util.DebugLog("Adding %d files to db for source %d", len(c.Files), sourceID)

	added := 0
	earlier := make(map[string]int, len(c.Files))
	for i := range c.Files {
		if err := ctx.Err(); err != nil {
			return err
		}

		r := &c.Files[i]
		r.ID = 0

		if _, err := w.DeleteFile(ctx, sourceID, r.URL); err != nil {
			util.WarnLog("Failed to retire previous file %s: %v", r.URL, err)
		}
		// A later entry for the same url retires the row an earlier one
		// produced in this batch
		if j, ok := earlier[r.URL]; ok {
			if c.retire(c.Files[j].ID) {
				added--
			}
			c.Files[j].ID = 0
		}
		earlier[r.URL] = i

		f := &store.File{
			SourceID: sourceID,
			URL:      r.URL,
			Size:     r.Size,
			Mtime:    r.Mtime,
			MD5:      r.Hash,
			MimeType: r.MimeType,
			Duration: r.Duration,
			Bitrate:  r.Bitrate,
		}
		if err := w.InsertFile(ctx, f); err != nil {
			util.WarnLog("Failed to insert file %s: %v", r.URL, err)
			continue
		}
		r.ID = f.ID

		artistID, err := w.ArtistID(ctx, r.Artist, true)
		if err != nil {
			util.DebugLog("Skipping catalog entry for file %d: %v", f.ID, err)
			continue
		}
		trackID, err := w.TrackID(ctx, artistID, r.Track, true)
		if err != nil {
			util.DebugLog("Skipping catalog entry for file %d: %v", f.ID, err)
			continue
		}

		// No album is a valid state
		albumID, err := w.AlbumID(ctx, artistID, r.Album, true)
		if err != nil {
			albumID = 0
		}

		err = w.InsertFileJoin(ctx, &store.FileJoin{
			FileID:   f.ID,
			ArtistID: artistID,
			AlbumID:  albumID,
			TrackID:  trackID,
			AlbumPos: r.AlbumPos,
		})
		if err != nil {
			util.WarnLog("Error inserting into file_join for file %d: %v", f.ID, err)
			continue
		}

		err = w.InsertTrackAttribute(ctx, &store.TrackAttribute{
			TrackID: trackID,
			Key:     store.AttrReleaseYear,
			Value:   strconv.Itoa(r.Year),
		})
		if err != nil {
			util.DebugLog("Failed to record release year for track %d: %v", trackID, err)
		}

		c.ids = append(c.ids, f.ID)
		added++
		if added%1000 == 0 {
			util.DebugLog("Inserted %d", added)
		}
	}

	if sourceID != store.LocalSourceID && c.guid != "" {
		if err := w.SetSourceLastOp(ctx, sourceID, c.guid); err != nil {
			return err
		}
	}

	util.DebugLog("Inserted %d of %d files for source %d", added, len(c.Files), sourceID)
	return nil
}

// retire drops id from the added ids, reporting whether it was there
func (c *AddFiles) retire(id int64) bool {
	if id == 0 {
		return false
	}
	for k, added := range c.ids {
		if added == id {
			c.ids = append(c.ids[:k], c.ids[k+1:]...)
			return true
		}
	}
	return false
}

// PostCommit implements Command
func (c *AddFiles) PostCommit(env *Env) {
	if c.OnDone != nil {
		c.OnDone(c.Files, c.sourceID)
	}

	if !env.isOnline(c.sourceID) {
		util.DebugLog("Source %d has gone offline, not notifying", c.sourceID)
		return
	}

	if len(c.ids) > 0 {
		env.notify(c.sourceID, c.ids)
	}

	if env.isLocal(c.sourceID) {
		env.triggerSync()
		env.enqueue(NewCollectionStats(store.LocalSourceID))
	}
}

// Export implements Loggable.
// Local paths never leave the machine: each url is replaced by the decimal
// id of the file row it produced. Records whose file row was not inserted
// have no id and are not exported.
func (c *AddFiles) Export() (*Envelope, error) {
	files := make([]FileRecord, 0, len(c.Files))
	for _, r := range c.Files {
		if r.ID == 0 {
			continue
		}
		r.URL = store.FormatFileID(r.ID)
		files = append(files, r)
	}
	return NewEnvelope(c.GUID(), KindAddFiles, c.Singleton(), files)
}

// ResultURL is the resolvable address of a file in a source's collection.
// Remote files are addressed through their peer.
func ResultURL(peer, url string) string {
	if peer == "" {
		return url
	}
	return fmt.Sprintf("servent://%s\t%s", peer, url)
}

// resolveSource maps a peer name to its source id; "" is the local collection
func resolveSource(ctx context.Context, w *store.Writer, name string) (int64, error) {
	if strings.TrimSpace(name) == "" {
		return store.LocalSourceID, nil
	}
	src, err := w.SourceByName(ctx, name)
	if err != nil {
		return 0, err
	}
	if src == nil {
		return 0, fmt.Errorf("source %q: %w", name, util.ErrNotFound)
	}
	return src.ID, nil
}
