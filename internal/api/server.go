// Package api exposes the HTTP interface: search, CSV upload, batch
// management, and index administration.
package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/press-directory/internal/batch"
	"github.com/sells-group/press-directory/internal/model"
	"github.com/sells-group/press-directory/internal/snapshot"
	"github.com/sells-group/press-directory/pkg/meili"
)

const (
	defaultMaxUploadBytes = 64 << 20
	defaultRequestTimeout = 60 * time.Second
	reindexTimeout        = 10 * time.Minute
)

// Searcher answers filtered company queries.
type Searcher interface {
	Search(ctx context.Context, f model.SearchFilter) (*model.SearchResult, error)
}

// Uploader starts asynchronous CSV ingestion and returns the new batch id.
type Uploader interface {
	LoadAsync(ctx context.Context, r io.Reader, meta batch.Meta) (string, error)
}

// BatchStore serves batch progress polls and management operations.
type BatchStore interface {
	Progress(ctx context.Context, id string) (*model.BatchProgress, error)
	List(ctx context.Context, limit int) ([]model.UploadBatch, error)
	Delete(ctx context.Context, id string) (int64, error)
}

// Reindexer pushes the canonical dataset into the full-text engine.
type Reindexer interface {
	SyncAll(ctx context.Context) (int, error)
}

// Config tunes the HTTP surface.
type Config struct {
	MaxUploadBytes int64
	RequestTimeout time.Duration
	AllowedOrigins []string
}

// Server wires HTTP handlers to the search, ingest, and batch components.
type Server struct {
	router   chi.Router
	searcher Searcher
	uploader Uploader
	batches  BatchStore
	reindex  Reindexer
	manager  *snapshot.Manager
	engine   meili.Client // nil when the engine is not configured
	cfg      Config
}

// NewServer constructs a Server with middleware and routes. engine and
// reindex may be nil when no full-text engine is configured.
func NewServer(
	searcher Searcher,
	uploader Uploader,
	batches BatchStore,
	reindex Reindexer,
	manager *snapshot.Manager,
	engine meili.Client,
	cfg Config,
) *Server {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}

	s := &Server{
		searcher: searcher,
		uploader: uploader,
		batches:  batches,
		reindex:  reindex,
		manager:  manager,
		engine:   engine,
		cfg:      cfg,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware)
	r.Use(recoverMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.health)
		r.Post("/search", s.search)
		r.Get("/facets", s.facets)
		r.Post("/upload", s.upload)
		r.Route("/upload/{batch_id}", func(r chi.Router) {
			r.Get("/progress", s.progress)
			r.Delete("/", s.deleteBatch)
		})
		r.Get("/batches", s.listBatches)
		r.Post("/reindex", s.reindexAll)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]string{
		"status":   "ok",
		"snapshot": s.manager.Status(),
		"engine":   "disabled",
	}
	if s.engine != nil {
		resp["engine"] = "ok"
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.engine.Health(ctx); err != nil {
			resp["engine"] = "unavailable"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// facets summarizes the snapshot's secondary indices for filter pickers.
func (s *Server) facets(w http.ResponseWriter, r *http.Request) {
	snap, err := s.manager.EnsureReady(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "dataset not available")
		return
	}
	counts := func(index map[string][]int) map[string]int {
		out := make(map[string]int, len(index))
		for k, positions := range index {
			out[k] = len(positions)
		}
		return out
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":            snap.Size(),
		"industry":         counts(snap.ByIndustry),
		"pressReleaseType": counts(snap.ByReleaseType),
		"listingStatus":    counts(snap.ByListingStatus),
		"capitalBracket":   counts(snap.ByCapitalBracket),
	})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r)
	})
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		zap.L().Info("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				zap.L().Error("api: panic recovered", zap.Any("panic", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("api: write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
