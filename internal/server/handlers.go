package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/pdfinsight/internal/config"
	"github.com/hyperjump/pdfinsight/internal/extract"
	"github.com/hyperjump/pdfinsight/internal/generation"
	"github.com/hyperjump/pdfinsight/internal/indexer"
	"github.com/hyperjump/pdfinsight/internal/models"
	"github.com/hyperjump/pdfinsight/internal/rag"
	"github.com/hyperjump/pdfinsight/internal/storage"
	"github.com/hyperjump/pdfinsight/internal/vector"
)

// multipartSlack covers multipart framing on top of the file size cap.
const multipartSlack = 1 << 20

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"message": "pdfinsight running. Upload a PDF to /api/v1/upload, then ask questions at /api/v1/ask.",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "env": s.cfg.Env})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	maxBytes := s.cfg.Server.MaxUploadBytes()
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartSlack)

	mr, err := r.MultipartReader()
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "expected multipart/form-data with a file field")
		return
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			s.respondError(w, http.StatusBadRequest, "Missing file")
			return
		}
		if err != nil {
			s.respondUploadReadError(w, err)
			return
		}
		if part.FormName() != "file" {
			_ = part.Close()
			continue
		}
		filename := part.FileName()
		if strings.TrimSpace(filename) == "" {
			s.respondError(w, http.StatusBadRequest, "Missing filename")
			return
		}
		if !extract.IsPDF(filename) {
			s.respondError(w, http.StatusBadRequest, "Only PDF files are allowed")
			return
		}
		content, err := io.ReadAll(io.LimitReader(part, maxBytes+1))
		if err != nil {
			s.respondUploadReadError(w, err)
			return
		}
		if int64(len(content)) > maxBytes {
			s.respondTooLarge(w)
			return
		}
		s.ingest(w, r, filename, content)
		return
	}
}

func (s *Server) ingest(w http.ResponseWriter, r *http.Request, filename string, content []byte) {
	s.logger.Debug("upload request", zap.String("filename", filename), zap.Int("bytes", len(content)))
	m, err := s.ingestor.IngestUpload(r.Context(), filename, content)
	if err != nil {
		switch {
		case errors.Is(err, indexer.ErrMissingFilename):
			s.respondError(w, http.StatusBadRequest, "Missing filename")
		case errors.Is(err, extract.ErrUnsupportedFormat):
			s.respondError(w, http.StatusBadRequest, "Only PDF files are allowed")
		default:
			s.logger.Error("ingestion failed", zap.String("filename", filename), zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	s.respondJSON(w, http.StatusOK, models.UploadResponse{
		Status:        "ok",
		DocID:         m.DocID,
		Filename:      m.Filename,
		Chunks:        m.Chunks,
		IngestSeconds: m.IngestSeconds,
	})
}

func (s *Server) respondUploadReadError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		s.respondTooLarge(w)
		return
	}
	s.respondError(w, http.StatusBadRequest, "invalid upload body")
}

func (s *Server) respondTooLarge(w http.ResponseWriter) {
	s.respondError(w, http.StatusRequestEntityTooLarge, "File too large. Max "+strconv.Itoa(s.cfg.Server.MaxUploadMB)+" MB")
}

// askRequest distinguishes an omitted top_k from an explicit zero.
type askRequest struct {
	DocID     string          `json:"doc_id"`
	SessionID string          `json:"session_id"`
	Question  string          `json:"question"`
	TopK      *int            `json:"top_k"`
	Language  models.Language `json:"language"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var body askRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req := models.AskRequest{
		DocID:     body.DocID,
		SessionID: body.SessionID,
		Question:  body.Question,
		TopK:      s.cfg.Retrieval.DefaultTopK,
		Language:  body.Language,
	}
	if body.TopK != nil {
		req.TopK = *body.TopK
	}
	s.logger.Debug("ask request", zap.String("doc_id", req.DocID), zap.String("session_id", req.SessionID), zap.Int("top_k", req.TopK))

	resp, err := s.asker.Ask(r.Context(), req)
	if err != nil {
		status := askStatus(err)
		if status >= http.StatusInternalServerError {
			s.logger.Error("ask failed", zap.String("doc_id", req.DocID), zap.Int("status", status), zap.Error(err))
		}
		s.respondError(w, status, askMessage(err))
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

const unknownDocumentMessage = "Unknown doc_id. Upload a PDF first."

func askMessage(err error) string {
	if errors.Is(err, rag.ErrUnknownDocument) {
		return unknownDocumentMessage
	}
	return err.Error()
}

func askStatus(err error) int {
	switch {
	case errors.Is(err, rag.ErrInvalidArgument), errors.Is(err, rag.ErrUnknownDocument):
		return http.StatusBadRequest
	case errors.Is(err, generation.ErrUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.manifests.List()
	if err != nil {
		s.logger.Error("list documents failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.metrics.SetDocuments(len(docs))
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"docs": docs})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !vector.ValidDocID(id) {
		s.respondError(w, http.StatusNotFound, "document not found")
		return
	}
	m, err := s.manifests.Read(id)
	if err != nil {
		s.logger.Error("read manifest failed", zap.String("doc_id", id), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if m == nil {
		s.respondError(w, http.StatusNotFound, "document not found")
		return
	}
	s.respondJSON(w, http.StatusOK, m)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	key := models.NewSessionKey(chi.URLParam(r, "docID"), chi.URLParam(r, "sessionID"))
	s.logger.Debug("delete session request", zap.String("doc_id", key.DocID), zap.String("session_id", key.SessionID))
	if err := s.sessions.Evict(r.Context(), key); err != nil {
		s.logger.Error("session eviction failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	docs, err := s.manifests.List()
	if err != nil {
		s.logger.Error("status: list documents failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.metrics.SetDocuments(len(docs))
	chunks := 0
	for _, d := range docs {
		chunks += d.Chunks
	}
	resp := map[string]interface{}{
		"documents": len(docs),
		"chunks":    chunks,
		"env":       s.cfg.Env,
	}

	st := s.cfg.Storage
	configInfo := map[string]interface{}{
		"embedding_backend":    s.cfg.Embedding.Backend,
		"embedding_model":      s.cfg.Embedding.ModelID,
		"embedding_dimensions": s.cfg.Embedding.Dimensions,
		"chunk_size":           s.cfg.Chunking.ChunkSize,
		"chunk_overlap":        s.cfg.Chunking.ChunkOverlap,
		"default_top_k":        s.cfg.Retrieval.DefaultTopK,
		"max_top_k":            s.cfg.Retrieval.MaxTopK,
		"model":                s.cfg.Generation.Model,
		"fallback_model":       s.cfg.Generation.FallbackModel,
		"prompt_version":       s.cfg.Generation.PromptVersion,
		"memory_backend":       s.cfg.Memory.Backend,
		"upload_dir":           st.UploadDir,
		"index_dir":            st.IndexDir,
	}
	if s.watch != nil {
		configInfo["watch_directories"] = s.watch.Directories()
	}
	historyPath := ""
	if s.cfg.Memory.Backend == "sqlite" {
		historyPath = st.HistoryPath
	}
	if diskBytes, err := storage.DiskUsageBytes(st.UploadDir, st.IndexDir, historyPath); err == nil {
		resp["disk_usage_bytes"] = diskBytes
	} else {
		s.logger.Warn("status: disk usage failed", zap.Error(err))
	}
	resp["config"] = configInfo
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleWatchDirectoriesList(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"directories": s.watch.Directories()})
}

type watchAddRequest struct {
	Path string `json:"path"`
	Sync *bool  `json:"sync,omitempty"`
}

func (s *Server) handleWatchDirectoriesAdd(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	var req watchAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	abs, err := filepath.Abs(req.Path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			s.respondError(w, http.StatusNotFound, "directory not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !info.IsDir() {
		s.respondError(w, http.StatusBadRequest, "path is not a directory")
		return
	}
	syncExisting := true
	if req.Sync != nil {
		syncExisting = *req.Sync
	}
	if err := s.watch.AddDirectory(abs, syncExisting); err != nil {
		s.logger.Error("watch add directory failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.persistWatchDirectories()
	s.respondJSON(w, http.StatusCreated, map[string]string{"path": abs, "status": "added"})
}

func (s *Server) handleWatchDirectoriesRemove(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		var body struct {
			Path string `json:"path"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			path = body.Path
		}
	}
	if path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required (query or body)")
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	if err := s.watch.RemoveDirectory(abs); err != nil {
		s.logger.Error("watch remove directory failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.persistWatchDirectories()
	s.respondJSON(w, http.StatusOK, map[string]string{"path": abs, "status": "removed"})
}

func (s *Server) persistWatchDirectories() {
	if s.configPath == "" {
		return
	}
	s.configMu.Lock()
	defer s.configMu.Unlock()
	s.cfg.Watch.Directories = s.watch.Directories()
	if err := config.Save(s.configPath, s.cfg); err != nil {
		s.logger.Warn("failed to persist watch config", zap.Error(err))
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
