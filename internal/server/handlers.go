package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
	"go.uber.org/zap"
)

const maxBodyBytes = 32 << 20

// indexRequest accepts a single document or a batch under "documents".
type indexRequest struct {
	models.DocumentInput
	Documents []*models.DocumentInput `json:"documents,omitempty"`
}

// StatusResponse is the body of GET /api/v1/status.
type StatusResponse struct {
	Documents          int64     `json:"documents"`
	Chunks             int64     `json:"chunks"`
	ServedChunks       int       `json:"served_chunks"`
	IndexBuiltAt       time.Time `json:"index_built_at"`
	DatabaseSizeBytes  int64     `json:"database_size_bytes"`
	RelevanceThreshold float64   `json:"relevance_threshold"`
	FallbackMode       string    `json:"fallback_mode"`
	WatchDirectories   []string  `json:"watch_directories,omitempty"`
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req models.AnswerRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("answer request", zap.String("query", req.Query))
	answer, err := s.answerer.Answer(r.Context(), req.Query)
	if err != nil {
		s.respondErr(w, "answer", err)
		return
	}
	s.respondJSON(w, http.StatusOK, answer)
}

func (s *Server) handleIndexDocuments(w http.ResponseWriter, r *http.Request) {
	var req indexRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	inputs := req.Documents
	if len(inputs) == 0 {
		doc := req.DocumentInput
		inputs = []*models.DocumentInput{&doc}
	}
	s.logger.Debug("index documents request", zap.Int("documents", len(inputs)))
	ids, err := s.indexer.IndexDocuments(r.Context(), inputs)
	if err != nil {
		s.respondErr(w, "index documents", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]interface{}{"ids": ids, "status": "indexed"})
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", 50)
	if limit < 1 || limit > 500 {
		limit = 50
	}
	docs, err := s.storage.ListDocuments(r.Context(), max(offset, 0), limit)
	if err != nil {
		s.respondErr(w, "list documents", err)
		return
	}
	if docs == nil {
		docs = []*models.Document{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"documents": docs, "offset": offset, "limit": limit})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.storage.GetDocument(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondErr(w, "get document", err)
		return
	}
	s.respondJSON(w, http.StatusOK, doc)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete document request", zap.String("id", id))
	if err := s.indexer.DeleteDocument(r.Context(), id); err != nil {
		s.respondErr(w, "delete document", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docCount, err := s.storage.CountDocuments(ctx)
	if err != nil {
		s.respondErr(w, "status", err)
		return
	}
	chunkCount, err := s.storage.CountChunks(ctx)
	if err != nil {
		s.respondErr(w, "status", err)
		return
	}
	resp := StatusResponse{
		Documents:          docCount,
		Chunks:             chunkCount,
		RelevanceThreshold: s.config.Pipeline.Threshold(),
		FallbackMode:       s.config.Pipeline.FallbackMode,
	}
	if ix := s.corpus.Current(); ix != nil {
		resp.ServedChunks = ix.Len()
		resp.IndexBuiltAt = ix.BuiltAt()
	}
	if size, err := storage.DatabaseSizeBytes(s.config.Storage.DatabasePath); err == nil {
		resp.DatabaseSizeBytes = size
	} else {
		s.logger.Warn("status: database size failed", zap.Error(err))
	}
	if s.watchDirs != nil {
		resp.WatchDirectories = s.watchDirs()
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return def
	}
	return v
}

// statusFor maps typed errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case models.IsKind(err, models.ErrInvalidInput):
		return http.StatusBadRequest
	case models.IsKind(err, models.ErrNotFound):
		return http.StatusNotFound
	case models.IsKind(err, models.ErrTemporary):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondErr(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(op+" failed", zap.Error(err))
	} else {
		s.logger.Debug(op+" rejected", zap.Error(err))
	}
	s.respondError(w, status, err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
