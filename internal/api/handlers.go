package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/press-directory/internal/batch"
	"github.com/sells-group/press-directory/internal/model"
)

// search handles POST /api/search. A malformed body degrades to the empty
// filter rather than erroring, so a bare POST lists everything.
func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	var filter model.SearchFilter
	if err := json.NewDecoder(r.Body).Decode(&filter); err != nil && !errors.Is(err, io.EOF) {
		zap.L().Debug("api: unparseable search filter, using empty", zap.Error(err))
		filter = model.SearchFilter{}
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	res, err := s.searcher.Search(ctx, filter)
	if err != nil {
		// The envelope still carries provenance and the error message.
		writeJSON(w, http.StatusServiceUnavailable, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// upload handles POST /api/upload (multipart, field "file"). Ingestion runs
// in the background; the response carries the batch id for progress polls.
func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart upload")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	if header.Filename != "" && !strings.HasSuffix(strings.ToLower(header.Filename), ".csv") {
		writeError(w, http.StatusBadRequest, "only CSV uploads are accepted")
		return
	}

	// Buffer the payload: the multipart temp file is gone once this handler
	// returns, but ingestion continues in the background.
	payload, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read upload")
		return
	}

	meta := batch.Meta{
		Filename:   header.Filename,
		FileSize:   header.Size,
		UploadedBy: r.FormValue("uploadedBy"),
	}
	batchID, err := s.uploader.LoadAsync(r.Context(), bytes.NewReader(payload), meta)
	if err != nil {
		zap.L().Error("api: start upload", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to start ingestion")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"batchId": batchID,
		"status":  model.StatusProcessing,
	})
}

// progress handles GET /api/upload/{batch_id}/progress.
func (s *Server) progress(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "batch_id")
	p, err := s.batches.Progress(r.Context(), id)
	if err != nil {
		if errors.Is(err, batch.ErrNotFound) {
			writeError(w, http.StatusNotFound, "batch not found")
			return
		}
		zap.L().Error("api: batch progress", zap.String("batch_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load progress")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// deleteBatch handles DELETE /api/upload/{batch_id}: removes the batch and
// every release it ingested.
func (s *Server) deleteBatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "batch_id")
	deleted, err := s.batches.Delete(r.Context(), id)
	if err != nil {
		if errors.Is(err, batch.ErrNotFound) {
			writeError(w, http.StatusNotFound, "batch not found")
			return
		}
		zap.L().Error("api: delete batch", zap.String("batch_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to delete batch")
		return
	}
	if s.manager != nil {
		s.manager.RefreshInBackground()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"batchId":          id,
		"deletedCompanies": deleted,
	})
}

// listBatches handles GET /api/batches?limit=.
func (s *Server) listBatches(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	batches, err := s.batches.List(r.Context(), limit)
	if err != nil {
		zap.L().Error("api: list batches", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list batches")
		return
	}
	if batches == nil {
		batches = []model.UploadBatch{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"batches": batches})
}

// reindexAll handles POST /api/reindex: full snapshot rebuild plus engine
// document sync.
func (s *Server) reindexAll(w http.ResponseWriter, r *http.Request) {
	if s.reindex == nil {
		writeError(w, http.StatusServiceUnavailable, "full-text engine not configured")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), reindexTimeout)
	defer cancel()

	pushed, err := s.reindex.SyncAll(ctx)
	if err != nil {
		zap.L().Error("api: reindex", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "reindex failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": pushed})
}
