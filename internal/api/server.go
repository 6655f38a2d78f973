// Package api serves a read-only status view of a running collection node.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/franz/musicsync/internal/command"
	"github.com/franz/musicsync/internal/source"
	"github.com/franz/musicsync/internal/store"
	"github.com/franz/musicsync/internal/util"
)

// WorkerStatus is the part of the collection worker the status page reads
type WorkerStatus interface {
	Busy() bool
	OutstandingJobs() int64
}

// SyncStatus reports the replication publisher's position
type SyncStatus interface {
	Cursor() int64
}

// FileLookup finds files of the collection by id
type FileLookup interface {
	FileByID(ctx context.Context, id int64) (*store.File, error)
}

// Server is the status HTTP server
type Server struct {
	router  chi.Router
	worker  WorkerStatus
	sources *source.Registry
	sync    SyncStatus
	files   FileLookup
	started time.Time
}

// Config holds server configuration. Sync may be nil when replication is
// off; /files is only mounted when Files is set.
type Config struct {
	Worker  WorkerStatus
	Sources *source.Registry
	Sync    SyncStatus
	Files   FileLookup
}

// New creates a server with its routes mounted
func New(cfg *Config) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		worker:  cfg.Worker,
		sources: cfg.Sources,
		sync:    cfg.Sync,
		files:   cfg.Files,
		started: time.Now(),
	}

	s.router.Get("/health", s.handleHealth)
	s.router.Method(http.MethodGet, "/metrics", promhttp.Handler())
	s.router.Get("/status", s.handleStatus)
	s.router.Get("/sources", s.handleSources)
	s.router.Get("/sources/{name}", s.handleSource)
	if s.files != nil {
		s.router.Get("/files/{id}", s.handleFile)
	}
	return s
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		util.InfoLog("Status server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("status server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("status server shutdown: %w", err)
	}
	return nil
}

type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

type statusResponse struct {
	Busy        bool            `json:"busy"`
	Outstanding int64           `json:"outstanding"`
	Uptime      string          `json:"uptime"`
	SyncCursor  *int64          `json:"sync_cursor,omitempty"`
	Local       *sourceResponse `json:"local"`
}

type sourceResponse struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	FriendlyName string `json:"friendly_name"`
	Online       bool   `json:"online"`
	Local        bool   `json:"local"`

	Files         int64  `json:"files"`
	Artists       int64  `json:"artists"`
	Albums        int64  `json:"albums"`
	Tracks        int64  `json:"tracks"`
	TotalBytes    int64  `json:"total_bytes"`
	TotalDuration int64  `json:"total_duration"`
	LastOp        string `json:"last_op,omitempty"`
}

type fileResponse struct {
	ID       int64  `json:"id"`
	Source   string `json:"source"`
	URL      string `json:"url"`
	Size     int64  `json:"size"`
	MimeType string `json:"mimetype"`
	Duration int64  `json:"duration"`
	Bitrate  int64  `json:"bitrate"`
}

func toSourceResponse(src source.Source) *sourceResponse {
	resp := &sourceResponse{
		ID:           src.ID,
		Name:         src.Name,
		FriendlyName: src.FriendlyName,
		Online:       src.Online,
		Local:        src.IsLocal(),
	}
	if st := src.Stats; st != nil {
		resp.Files = st.Files
		resp.Artists = st.Artists
		resp.Albums = st.Albums
		resp.Tracks = st.Tracks
		resp.TotalBytes = st.TotalBytes
		resp.TotalDuration = st.TotalDuration
		resp.LastOp = st.LastOp
	}
	return resp
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{
		Busy:        s.worker.Busy(),
		Outstanding: s.worker.OutstandingJobs(),
		Uptime:      time.Since(s.started).Round(time.Second).String(),
		Local:       toSourceResponse(s.sources.Local()),
	}
	if s.sync != nil {
		cursor := s.sync.Cursor()
		resp.SyncCursor = &cursor
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSources(w http.ResponseWriter, _ *http.Request) {
	list := s.sources.List()
	resp := make([]*sourceResponse, 0, len(list))
	for _, src := range list {
		resp = append(resp, toSourceResponse(src))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSource(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	for _, src := range s.sources.List() {
		if src.Name == name {
			writeJSON(w, http.StatusOK, toSourceResponse(src))
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown source " + name})
}

// handleFile resolves a file id to the address it is reachable at: a local
// path, or the owning peer plus that peer's file id
func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid file id"})
		return
	}

	f, err := s.files.FileByID(r.Context(), id)
	if err != nil {
		util.WarnLog("File lookup %d failed: %v", id, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "lookup failed"})
		return
	}
	if f == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown file " + strconv.FormatInt(id, 10)})
		return
	}

	src, ok := s.sources.Get(f.SourceID)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "file belongs to an unknown source"})
		return
	}
	peer := ""
	if !src.IsLocal() {
		peer = src.Name
	}

	writeJSON(w, http.StatusOK, fileResponse{
		ID:       f.ID,
		Source:   src.Name,
		URL:      command.ResultURL(peer, f.URL),
		Size:     f.Size,
		MimeType: f.MimeType,
		Duration: f.Duration,
		Bitrate:  f.Bitrate,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
