package meta

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dhowden/tag"

	"github.com/franz/musicsync/internal/util"
)

// Tags is what the collection records about an audio file
type Tags struct {
	Artist   string
	Album    string
	Title    string
	Track    int // position on the album
	Disc     int
	Year     int
	Duration int64 // seconds
	Bitrate  int64 // kbps
	MimeType string
}

// Options controls how much work Read does per file
type Options struct {
	// FFprobe fills duration and bitrate, which tags do not carry
	FFprobe bool
}

// Read extracts tags from an audio file. Embedded tags win; ffprobe supplies
// audio properties; the path fills whatever is still missing.
func Read(path string, opts Options) (*Tags, error) {
	t, tagErr := readTags(path)

	if opts.FFprobe {
		probed, err := readFFprobe(path)
		switch {
		case err == nil:
			t = merge(t, probed)
		case tagErr != nil:
			return nil, fmt.Errorf("all extraction methods failed: tag: %v, ffprobe: %v", tagErr, err)
		default:
			util.DebugLog("ffprobe failed for %s: %v", path, err)
		}
	} else if tagErr != nil {
		util.DebugLog("No readable tags in %s: %v", path, tagErr)
		t = &Tags{}
	}

	if t == nil {
		t = &Tags{}
	}
	if t.MimeType == "" {
		t.MimeType = MimeType(path)
	}

	FillFromPath(t, path)
	return t, nil
}

// readTags uses dhowden/tag to read embedded tags
func readTags(path string) (*Tags, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read tags: %w", err)
	}

	t := &Tags{
		Artist: m.Artist(),
		Album:  m.Album(),
		Title:  m.Title(),
		Year:   m.Year(),
	}
	if t.Artist == "" {
		t.Artist = m.AlbumArtist()
	}
	t.Track, _ = m.Track()
	t.Disc, _ = m.Disc()

	switch m.FileType() {
	case tag.MP3:
		t.MimeType = "audio/mpeg"
	case tag.FLAC:
		t.MimeType = "audio/flac"
	case tag.OGG:
		t.MimeType = "audio/ogg"
	case tag.M4A, tag.M4B, tag.ALAC:
		t.MimeType = "audio/mp4"
	}

	return t, nil
}

// readFFprobe uses ffprobe for audio properties and as a tag fallback
func readFFprobe(path string) (*Tags, error) {
	info, err := RunFFprobe(path)
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	t := &Tags{}
	if info.Format != nil {
		if info.Format.Duration != "" {
			if secs, err := strconv.ParseFloat(info.Format.Duration, 64); err == nil {
				t.Duration = int64(secs)
			}
		}
		if info.Format.BitRate != "" {
			if bps, err := strconv.ParseInt(info.Format.BitRate, 10, 64); err == nil {
				t.Bitrate = bps / 1000
			}
		}

		if tags := info.Format.Tags; tags != nil {
			t.Artist = getTag(tags, "artist", "ARTIST", "album_artist", "ALBUM_ARTIST")
			t.Album = getTag(tags, "album", "ALBUM")
			t.Title = getTag(tags, "title", "TITLE")
			t.Track = leadingInt(getTag(tags, "track", "TRACK"))
			t.Disc = leadingInt(getTag(tags, "disc", "DISC"))
			t.Year = leadingInt(getTag(tags, "date", "DATE", "year", "YEAR"))
		}
	}

	// Some containers only report bitrate on the stream
	if t.Bitrate == 0 {
		for _, s := range info.Streams {
			if s.CodecType != "audio" || s.BitRate == "" {
				continue
			}
			if bps, err := strconv.ParseInt(s.BitRate, 10, 64); err == nil {
				t.Bitrate = bps / 1000
				break
			}
		}
	}

	return t, nil
}

// merge keeps embedded tags and takes audio properties from ffprobe
func merge(tagged, probed *Tags) *Tags {
	if tagged == nil {
		return probed
	}
	tagged.Duration = probed.Duration
	tagged.Bitrate = probed.Bitrate
	if tagged.Artist == "" {
		tagged.Artist = probed.Artist
	}
	if tagged.Album == "" {
		tagged.Album = probed.Album
	}
	if tagged.Title == "" {
		tagged.Title = probed.Title
	}
	if tagged.Track == 0 {
		tagged.Track = probed.Track
	}
	if tagged.Disc == 0 {
		tagged.Disc = probed.Disc
	}
	if tagged.Year == 0 {
		tagged.Year = probed.Year
	}
	return tagged
}

// getTag retrieves a tag value from a map, trying multiple keys
func getTag(tags map[string]string, keys ...string) string {
	for _, key := range keys {
		if val, ok := tags[key]; ok && val != "" {
			return val
		}
	}
	return ""
}

// leadingInt parses "3", "3/12" and "1999-05-01" alike
func leadingInt(s string) int {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, _ := strconv.Atoi(s[:end])
	return n
}

var mimeTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".flac": "audio/flac",
	".ogg":  "audio/ogg",
	".oga":  "audio/ogg",
	".opus": "audio/opus",
	".m4a":  "audio/mp4",
	".m4b":  "audio/mp4",
	".mp4":  "audio/mp4",
	".aac":  "audio/aac",
	".wav":  "audio/wav",
	".aiff": "audio/aiff",
	".aif":  "audio/aiff",
	".wma":  "audio/x-ms-wma",
	".ape":  "audio/ape",
	".wv":   "audio/wavpack",
}

// MimeType guesses a file's mimetype from its extension
func MimeType(path string) string {
	if mt, ok := mimeTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return mt
	}
	return "application/octet-stream"
}

// IsAudio reports whether the extension is one the collection indexes
func IsAudio(path string) bool {
	_, ok := mimeTypes[strings.ToLower(filepath.Ext(path))]
	return ok
}
