// Package scan discovers audio files and feeds them to the collection worker
// as AddFiles batches.
package scan

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/sourcegraph/conc/pool"

	"github.com/franz/musicsync/internal/command"
	"github.com/franz/musicsync/internal/meta"
	"github.com/franz/musicsync/internal/report"
	"github.com/franz/musicsync/internal/util"
)

// Queue is the part of the collection worker the scanner drives
type Queue interface {
	Enqueue(cmd command.Command)
	OutstandingJobs() int64
}

// Scanner walks directory trees, reads tags and submits files in batches
type Scanner struct {
	queue          Queue
	source         string
	extensions     map[string]bool
	concurrency    int
	batchSize      int
	maxOutstanding int64
	readOpts       meta.Options
	logger         *report.EventLogger

	committed atomic.Int64
}

// Config holds scanner configuration
type Config struct {
	Queue Queue
	// Source is the peer the files belong to; empty for the local collection
	Source         string
	AdditionalExts []string
	Concurrency    int
	BatchSize      int
	// MaxOutstanding pauses submission while the worker is this far behind
	MaxOutstanding int
	FFprobe        bool
	Logger         *report.EventLogger
}

// New creates a new Scanner
func New(cfg *Config) *Scanner {
	s := &Scanner{
		queue:          cfg.Queue,
		source:         cfg.Source,
		extensions:     make(map[string]bool),
		concurrency:    cfg.Concurrency,
		batchSize:      cfg.BatchSize,
		maxOutstanding: int64(cfg.MaxOutstanding),
		readOpts:       meta.Options{FFprobe: cfg.FFprobe},
		logger:         cfg.Logger,
	}
	if s.concurrency <= 0 {
		s.concurrency = 4
	}
	if s.batchSize <= 0 {
		s.batchSize = 500
	}
	if s.maxOutstanding <= 0 {
		s.maxOutstanding = 4
	}
	for _, ext := range cfg.AdditionalExts {
		s.extensions[strings.ToLower(ext)] = true
	}
	return s
}

// Result represents a scan result
type Result struct {
	FilesFound  int
	FilesQueued int
	Batches     int
	Errors      []error
}

// Committed returns how many submitted files have committed with a catalog
// entry so far
func (s *Scanner) Committed() int64 {
	return s.committed.Load()
}

// Scan walks root and submits every audio file below it
func (s *Scanner) Scan(ctx context.Context, root string) (*Result, error) {
	util.InfoLog("Starting scan of: %s", root)

	paths := make(chan string, 100)
	var walkErr error
	var found atomic.Int64
	var errMu sync.Mutex
	var walkErrors []error

	go func() {
		defer close(paths)
		walkErr = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err != nil {
				util.WarnLog("Error accessing path %s: %v", path, err)
				errMu.Lock()
				walkErrors = append(walkErrors, fmt.Errorf("access error: %s: %w", path, err))
				errMu.Unlock()
				return nil
			}
			if d.IsDir() || !s.isAudioFile(path) {
				return nil
			}
			found.Add(1)
			select {
			case paths <- path:
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		})
	}()

	result, err := s.submit(ctx, paths, &found)
	errMu.Lock()
	result.Errors = append(walkErrors, result.Errors...)
	errMu.Unlock()
	result.FilesFound = int(found.Load())

	if err != nil {
		return result, err
	}
	if walkErr != nil && walkErr != context.Canceled {
		return result, fmt.Errorf("walk error: %w", walkErr)
	}

	util.SuccessLog("Scan complete: %d files found, %d queued in %d batches, %d errors",
		result.FilesFound, result.FilesQueued, result.Batches, len(result.Errors))
	return result, nil
}

// ScanFiles submits an explicit list of files, such as a watcher's changes
func (s *Scanner) ScanFiles(ctx context.Context, files []string) (*Result, error) {
	paths := make(chan string, len(files))
	var found atomic.Int64
	for _, path := range files {
		if s.isAudioFile(path) {
			paths <- path
			found.Add(1)
		}
	}
	close(paths)

	result, err := s.submit(ctx, paths, &found)
	result.FilesFound = int(found.Load())
	return result, err
}

// submit reads files from paths on a bounded pool and enqueues them in batches
func (s *Scanner) submit(ctx context.Context, paths <-chan string, found *atomic.Int64) (*Result, error) {
	result := &Result{}
	var errMu sync.Mutex

	records := make(chan command.FileRecord, s.batchSize)

	bar := s.progressBar()
	var processed atomic.Int64

	// Batch writer
	var writerWg sync.WaitGroup
	writerWg.Add(1)
	go func() {
		defer writerWg.Done()
		batch := make([]command.FileRecord, 0, s.batchSize)

		flush := func() {
			if len(batch) == 0 {
				return
			}
			if err := s.throttle(ctx); err != nil {
				return
			}
			s.queue.Enqueue(s.newBatch(batch))
			result.FilesQueued += len(batch)
			result.Batches++
			batch = make([]command.FileRecord, 0, s.batchSize)
		}

		for r := range records {
			batch = append(batch, r)
			if len(batch) >= s.batchSize {
				flush()
			}
		}
		flush()
	}()

	p := pool.New().WithMaxGoroutines(s.concurrency)
	for path := range paths {
		if ctx.Err() != nil {
			break
		}
		path := path
		p.Go(func() {
			r, err := s.buildRecord(path)
			n := processed.Add(1)
			if bar != nil {
				bar.Describe(fmt.Sprintf("Scanning | %d found", found.Load()))
				bar.Set64(n)
			}
			if err != nil {
				util.ErrorLog("Failed to process %s: %v", path, err)
				s.logger.LogScan(path, 0, err)
				errMu.Lock()
				result.Errors = append(result.Errors, err)
				errMu.Unlock()
				return
			}
			s.logger.LogScan(path, r.Size, nil)
			records <- *r
		})
	}
	// Unblock the producer after cancellation
	for range paths {
	}
	p.Wait()
	close(records)
	writerWg.Wait()

	if bar != nil {
		bar.Finish()
	}

	return result, ctx.Err()
}

// buildRecord stats, hashes and tags one file
func (s *Scanner) buildRecord(path string) (*command.FileRecord, error) {
	size, mtime, err := util.FileStat(path)
	if err != nil {
		return nil, err
	}
	hash, err := util.ContentHash(path)
	if err != nil {
		return nil, err
	}
	tags, err := meta.Read(path, s.readOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to read tags of %s: %w", path, err)
	}

	return &command.FileRecord{
		URL:      path,
		Mtime:    mtime,
		Size:     size,
		Hash:     hash,
		MimeType: tags.MimeType,
		Duration: tags.Duration,
		Bitrate:  tags.Bitrate,
		Artist:   tags.Artist,
		Album:    tags.Album,
		Track:    tags.Title,
		AlbumPos: tags.Track,
		Year:     tags.Year,
	}, nil
}

func (s *Scanner) newBatch(files []command.FileRecord) *command.AddFiles {
	cmd := command.NewAddFiles(s.source, files)
	cmd.OnDone = func(files []command.FileRecord, sourceID int64) {
		s.committed.Add(int64(len(cmd.AddedIDs())))
	}
	return cmd
}

// throttle waits while the worker has too many commands outstanding
func (s *Scanner) throttle(ctx context.Context) error {
	if s.queue.OutstandingJobs() < s.maxOutstanding {
		return nil
	}

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if s.queue.OutstandingJobs() < s.maxOutstanding {
				return nil
			}
		}
	}
}

func (s *Scanner) progressBar() *progressbar.ProgressBar {
	if !util.IsTerminal(os.Stdout) || util.IsQuiet() {
		return nil
	}
	width := util.TerminalWidth(os.Stdout, 80) / 3
	if width > 40 {
		width = 40
	}
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("Scanning"),
		progressbar.OptionSetWidth(width),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("files"),
		progressbar.OptionThrottle(200*time.Millisecond),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// isAudioFile checks if a file has a supported audio extension
func (s *Scanner) isAudioFile(path string) bool {
	return meta.IsAudio(path) || s.extensions[strings.ToLower(filepath.Ext(path))]
}
