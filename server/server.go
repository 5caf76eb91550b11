// Package server exposes the assistant over a small JSON HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/smallnest/pdfqa/assistant"
	"github.com/smallnest/pdfqa/chain"
	"github.com/smallnest/pdfqa/log"
	"github.com/smallnest/pdfqa/memory"
	"github.com/smallnest/pdfqa/rag"
	"github.com/smallnest/pdfqa/rag/loader"
	"github.com/smallnest/pdfqa/store"
)

// DefaultMaxUploadSize bounds multipart uploads.
const DefaultMaxUploadSize = 32 << 20

var (
	// ErrPathIngestDisabled is returned for a JSON path ingest when no ingest root is set.
	ErrPathIngestDisabled = errors.New("path ingestion is disabled, upload the file instead")
	// ErrOutsideIngestRoot is returned for a path that resolves outside the ingest root.
	ErrOutsideIngestRoot = errors.New("path is outside the ingest root")
)

// Backend is the part of the assistant the server calls.
type Backend interface {
	Ingest(ctx context.Context, path string) (*assistant.IngestReport, error)
	AskSession(ctx context.Context, sessionID, question string) (*chain.ChainOutput, error)
	SessionHistory(ctx context.Context, sessionID string) ([]*memory.Message, error)
	ClearSession(ctx context.Context, sessionID string) error
	Stats(ctx context.Context) (*rag.VectorStoreStats, error)
}

var _ Backend = (*assistant.Assistant)(nil)

// Server serves the API routes.
type Server struct {
	backend       Backend
	uploadDir     string
	ingestRoot    string
	maxUploadSize int64
	mux           *http.ServeMux
	log           log.Logger
}

// Option configures the server.
type Option func(*Server)

// WithUploadDir sets where uploaded files are staged during ingestion.
func WithUploadDir(dir string) Option {
	return func(s *Server) {
		s.uploadDir = dir
	}
}

// WithIngestRoot enables ingestion by JSON path for files under dir.
// Relative paths are resolved against dir.
func WithIngestRoot(dir string) Option {
	return func(s *Server) {
		s.ingestRoot = dir
	}
}

// WithMaxUploadSize limits the multipart body size in bytes.
func WithMaxUploadSize(n int64) Option {
	return func(s *Server) {
		s.maxUploadSize = n
	}
}

// New creates a server for backend.
func New(backend Backend, opts ...Option) *Server {
	s := &Server{
		backend:       backend,
		uploadDir:     os.TempDir(),
		maxUploadSize: DefaultMaxUploadSize,
		mux:           http.NewServeMux(),
		log:           log.Named("server"),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mux.HandleFunc("POST /api/ingest", s.handleIngest)
	s.mux.HandleFunc("POST /api/ask", s.handleAsk)
	s.mux.HandleFunc("GET /api/history", s.handleHistory)
	s.mux.HandleFunc("DELETE /api/history", s.handleClearHistory)
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var path string
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		uploaded, err := s.saveUpload(w, r)
		if err != nil {
			sendJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer os.RemoveAll(filepath.Dir(uploaded))
		path = uploaded
	} else {
		var req IngestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			sendJSONError(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if req.Path == "" {
			sendJSONError(w, "path is required", http.StatusBadRequest)
			return
		}
		resolved, err := s.resolveIngestPath(req.Path)
		if err != nil {
			s.log.Warn("rejected ingest of %s: %v", req.Path, err)
			sendJSONError(w, err.Error(), statusFor(err))
			return
		}
		path = resolved
	}

	report, err := s.backend.Ingest(r.Context(), path)
	if err != nil {
		s.log.Error("ingest %s failed: %v", path, err)
		sendJSONError(w, err.Error(), statusFor(err))
		return
	}
	s.log.Info("ingested %s: %d pages, %d chunks", path, report.Pages, report.Chunks)
	sendJSON(w, http.StatusOK, report)
}

// resolveIngestPath maps a requested path onto the ingest root. The path is
// checked before and after following symlinks.
func (s *Server) resolveIngestPath(p string) (string, error) {
	if s.ingestRoot == "" {
		return "", ErrPathIngestDisabled
	}
	root, err := filepath.Abs(s.ingestRoot)
	if err != nil {
		return "", fmt.Errorf("failed to resolve ingest root: %w", err)
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(root, p)
	}
	p = filepath.Clean(p)
	if !within(root, p) {
		return "", ErrOutsideIngestRoot
	}

	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve ingest root: %w", err)
	}
	realPath, err := filepath.EvalSymlinks(p)
	if err != nil {
		return "", err
	}
	if !within(realRoot, realPath) {
		return "", ErrOutsideIngestRoot
	}
	return realPath, nil
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

// saveUpload stages the "file" form field in a fresh directory and returns its path.
func (s *Server) saveUpload(w http.ResponseWriter, r *http.Request) (string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadSize)
	if err := r.ParseMultipartForm(s.maxUploadSize); err != nil {
		return "", fmt.Errorf("failed to parse form: %w", err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return "", fmt.Errorf("no file uploaded: %w", err)
	}
	defer file.Close()

	dir, err := os.MkdirTemp(s.uploadDir, "upload-")
	if err != nil {
		return "", fmt.Errorf("failed to create upload dir: %w", err)
	}
	path := filepath.Join(dir, filepath.Base(header.Filename))

	out, err := os.Create(path)
	if err != nil {
		os.RemoveAll(dir)
		return "", fmt.Errorf("failed to create upload file: %w", err)
	}
	_, err = io.Copy(out, file)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.RemoveAll(dir)
		return "", fmt.Errorf("failed to save upload: %w", err)
	}

	s.log.Debug("saved upload %s (%d bytes) to %s", header.Filename, header.Size, path)
	return path, nil
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	out, err := s.backend.AskSession(r.Context(), req.SessionID, req.Question)
	if err != nil {
		s.log.Error("ask in session %s failed: %v", req.SessionID, err)
		sendJSONError(w, err.Error(), statusFor(err))
		return
	}

	sendJSON(w, http.StatusOK, AskResponse{
		SessionID:         req.SessionID,
		Answer:            out.Answer,
		AnswerHTML:        RenderMarkdown(out.Answer),
		GeneratedQuestion: out.GeneratedQuestion,
		Sources:           toSources(out.SourceDocuments),
		History:           toHistory(out.ChatHistory),
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	msgs, err := s.backend.SessionHistory(r.Context(), sessionID)
	if err != nil {
		sendJSONError(w, err.Error(), statusFor(err))
		return
	}
	sendJSON(w, http.StatusOK, HistoryResponse{SessionID: sessionID, History: toHistory(msgs)})
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if err := s.backend.ClearSession(r.Context(), sessionID); err != nil {
		sendJSONError(w, err.Error(), statusFor(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats, err := s.backend.Stats(r.Context())
	if err != nil {
		sendJSONError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	sendJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Documents: stats.TotalDocuments,
		Dimension: stats.Dimension,
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, chain.ErrEmptyQuestion), errors.Is(err, store.ErrInvalidSession):
		return http.StatusBadRequest
	case errors.Is(err, ErrPathIngestDisabled), errors.Is(err, ErrOutsideIngestRoot):
		return http.StatusForbidden
	case errors.Is(err, loader.ErrUnsupportedFile):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, assistant.ErrEmptyIndex):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func sendJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Warn("failed to write response: %v", err)
	}
}

func sendJSONError(w http.ResponseWriter, message string, status int) {
	sendJSON(w, status, ErrorResponse{Error: message})
}
