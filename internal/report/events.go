package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// EventType represents the type of event
type EventType string

const (
	EventScan        EventType = "scan"
	EventTracksAdded EventType = "tracks_added"
	EventSource      EventType = "source"
	EventReplicate   EventType = "replicate"
	EventError       EventType = "error"
)

// EventLevel represents the severity level
type EventLevel string

const (
	LevelDebug   EventLevel = "debug"
	LevelInfo    EventLevel = "info"
	LevelWarning EventLevel = "warning"
	LevelError   EventLevel = "error"
)

// levelPriority maps event levels to numeric priorities for comparison
var levelPriority = map[EventLevel]int{
	LevelDebug:   0,
	LevelInfo:    1,
	LevelWarning: 2,
	LevelError:   3,
}

// Event represents a single collection event
type Event struct {
	Timestamp time.Time         `json:"ts"`
	Level     EventLevel        `json:"level"`
	Event     EventType         `json:"event"`
	SourceID  int64             `json:"source_id"`
	Peer      string            `json:"peer,omitempty"`
	Path      string            `json:"path,omitempty"`
	FileIDs   []int64           `json:"file_ids,omitempty"`
	Count     int               `json:"count,omitempty"`
	Error     string            `json:"error,omitempty"`
	Extra     map[string]string `json:"extra,omitempty"`
}

// EventLogger writes events to a JSONL file. It doubles as the
// notification sink of the collection worker.
type EventLogger struct {
	file     *os.File
	encoder  *json.Encoder
	mu       sync.Mutex
	path     string
	minLevel EventLevel
}

// NewEventLogger creates a new event logger with a minimum log level
// minLevel determines which events are written (e.g., LevelInfo skips LevelDebug)
func NewEventLogger(outputDir string, minLevel EventLevel) (*EventLogger, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	timestamp := time.Now().Format("20060102-150405")
	filename := fmt.Sprintf("events-%s.jsonl", timestamp)
	path := filepath.Join(outputDir, filename)

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create event log: %w", err)
	}

	return &EventLogger{
		file:     file,
		encoder:  json.NewEncoder(file),
		path:     path,
		minLevel: minLevel,
	}, nil
}

// Log writes an event to the JSONL file
func (l *EventLogger) Log(event *Event) error {
	if l == nil || l.file == nil {
		return nil // Silently ignore if logger not initialized
	}

	if levelPriority[event.Level] < levelPriority[l.minLevel] {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if err := l.encoder.Encode(event); err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	return nil
}

// TracksAdded records the files a committed AddFiles made available
func (l *EventLogger) TracksAdded(sourceID int64, fileIDs []int64) {
	l.Log(&Event{
		Level:    LevelInfo,
		Event:    EventTracksAdded,
		SourceID: sourceID,
		FileIDs:  fileIDs,
		Count:    len(fileIDs),
	})
}

// LogScan logs a scanned file
func (l *EventLogger) LogScan(path string, sizeBytes int64, err error) error {
	level := LevelDebug
	errMsg := ""
	if err != nil {
		level = LevelError
		errMsg = err.Error()
	}

	return l.Log(&Event{
		Level: level,
		Event: EventScan,
		Path:  path,
		Error: errMsg,
		Extra: map[string]string{
			"size_bytes": strconv.FormatInt(sizeBytes, 10),
		},
	})
}

// LogSource logs a peer coming online
func (l *EventLogger) LogSource(sourceID int64, peer, friendlyName string) error {
	return l.Log(&Event{
		Level:    LevelInfo,
		Event:    EventSource,
		SourceID: sourceID,
		Peer:     peer,
		Extra: map[string]string{
			"friendly_name": friendlyName,
		},
	})
}

// LogReplicate logs an oplog entry exchanged with a peer
func (l *EventLogger) LogReplicate(peer, guid, kind string, err error) error {
	level := LevelDebug
	errMsg := ""
	if err != nil {
		level = LevelWarning
		errMsg = err.Error()
	}

	return l.Log(&Event{
		Level: level,
		Event: EventReplicate,
		Peer:  peer,
		Error: errMsg,
		Extra: map[string]string{
			"guid": guid,
			"kind": kind,
		},
	})
}

// LogError logs an error event
func (l *EventLogger) LogError(event EventType, path string, err error) error {
	return l.Log(&Event{
		Level: LevelError,
		Event: event,
		Path:  path,
		Error: err.Error(),
	})
}

// Close closes the event log file
func (l *EventLogger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.file.Close()
}

// Path returns the path to the event log file
func (l *EventLogger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// NullLogger returns a no-op event logger
func NullLogger() *EventLogger {
	return nil
}
