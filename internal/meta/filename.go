package meta

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// FilenameMeta holds metadata parsed from filename and path
type FilenameMeta struct {
	Artist     string
	Album      string
	Title      string
	Track      int
	Disc       int
	Year       int
	Confidence float64 // 0.0-1.0 how confident we are in the parse
}

type filenamePattern struct {
	re         *regexp.Regexp
	parse      func(*FilenameMeta, []string)
	confidence float64
}

var filenamePatterns = []filenamePattern{
	{
		// "01 - Artist - Title"
		re: regexp.MustCompile(`^(\d+)\s*[-_.]\s*(.+?)\s*[-_.]\s*(.+)$`),
		parse: func(m *FilenameMeta, matches []string) {
			m.Track, _ = strconv.Atoi(matches[1])
			m.Artist = strings.TrimSpace(matches[2])
			m.Title = strings.TrimSpace(matches[3])
		},
		confidence: 0.8,
	},
	{
		// "01 - Title"
		re: regexp.MustCompile(`^(\d+)\s*[-_.]\s*(.+)$`),
		parse: func(m *FilenameMeta, matches []string) {
			m.Track, _ = strconv.Atoi(matches[1])
			m.Title = strings.TrimSpace(matches[2])
		},
		confidence: 0.7,
	},
	{
		// "Artist - Title"
		re: regexp.MustCompile(`^(.+?)\s+-\s+(.+)$`),
		parse: func(m *FilenameMeta, matches []string) {
			m.Artist = strings.TrimSpace(matches[1])
			m.Title = strings.TrimSpace(matches[2])
		},
		confidence: 0.5,
	},
}

var (
	discDirRe    = regexp.MustCompile(`^(?i)(disc|cd|disk)\s*\d+$`)
	discNumberRe = regexp.MustCompile(`(?i)(disc|cd|disk)\s*(\d+)`)
	yearPrefixRe = regexp.MustCompile(`^(\d{4})\s*[-_.]\s*(.+)$`)
	yearSuffixRe = regexp.MustCompile(`^(.+?)\s*\((\d{4})\)$`)
)

// ParseFilename attempts to extract metadata from a filename and the
// Artist/Album directories above it
func ParseFilename(path string) *FilenameMeta {
	base := filepath.Base(path)
	name := strings.TrimSuffix(base, filepath.Ext(base))

	meta := &FilenameMeta{Confidence: 0.2}

	for _, p := range filenamePatterns {
		if matches := p.re.FindStringSubmatch(name); matches != nil {
			p.parse(meta, matches)
			meta.Confidence = p.confidence
			break
		}
	}

	if meta.Title == "" {
		meta.Title = strings.ReplaceAll(name, "_", " ")
		meta.Confidence = 0.2
	}

	// Track numbers indicate well-organized files
	if meta.Track > 0 {
		meta.Confidence += 0.15
	}
	if strings.Contains(name, " - ") {
		meta.Confidence += 0.05
	}
	if meta.Confidence > 1.0 {
		meta.Confidence = 1.0
	}

	meta.inferFromPath(filepath.Dir(path))
	return meta
}

// inferFromPath reads album, artist, year and disc from /Artist/Album[/Disc N]/
func (m *FilenameMeta) inferFromPath(dir string) {
	parts := strings.Split(filepath.Clean(dir), string(filepath.Separator))
	if len(parts) < 2 {
		return
	}

	last := parts[len(parts)-1]
	if match := discNumberRe.FindStringSubmatch(last); match != nil {
		m.Disc, _ = strconv.Atoi(match[2])
	}

	albumIdx := len(parts) - 1
	if discDirRe.MatchString(last) && len(parts) >= 3 {
		albumIdx--
	}

	album := parts[albumIdx]
	if match := yearPrefixRe.FindStringSubmatch(album); match != nil {
		m.Year, _ = strconv.Atoi(match[1])
		album = strings.TrimSpace(match[2])
	} else if match := yearSuffixRe.FindStringSubmatch(album); match != nil {
		m.Year, _ = strconv.Atoi(match[2])
		album = strings.TrimSpace(match[1])
	}

	if m.Album == "" {
		m.Album = album
	}
	if m.Artist == "" && albumIdx >= 1 {
		m.Artist = parts[albumIdx-1]
	}
}

// FillFromPath fills fields the tags left empty with hints from the path
func FillFromPath(t *Tags, path string) {
	hint := ParseFilename(path)

	// Artists from filenames need a structured name to be trusted
	if t.Artist == "" && hint.Artist != "" && hint.Confidence >= 0.5 {
		t.Artist = hint.Artist
	}
	// Better a filename title than a track that cannot be cataloged
	if t.Title == "" && hint.Title != "" {
		t.Title = hint.Title
	}
	if t.Album == "" {
		t.Album = hint.Album
	}
	if t.Track == 0 {
		t.Track = hint.Track
	}
	if t.Disc == 0 {
		t.Disc = hint.Disc
	}
	if t.Year == 0 {
		t.Year = hint.Year
	}
}
