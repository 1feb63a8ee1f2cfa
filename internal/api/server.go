// Package api exposes the web front-end HTTP surface: auth passthrough,
// model file browsing and editing, commit history, and identity linking.
package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/NaveDanan/HuggingSpace/internal/auth"
	"github.com/NaveDanan/HuggingSpace/internal/commits"
	"github.com/NaveDanan/HuggingSpace/internal/logging"
	"github.com/NaveDanan/HuggingSpace/internal/metrics"
	"github.com/NaveDanan/HuggingSpace/internal/modelfiles"
	"github.com/NaveDanan/HuggingSpace/internal/storage"
	"github.com/NaveDanan/HuggingSpace/pkg/platform"
)

// Server is the HuggingSpace HTTP server. Like the browser app it stands in
// for, it holds one platform session at a time.
type Server struct {
	client  *platform.Client
	files   *modelfiles.Service
	storage *storage.Service
	commits *commits.Store // nil when no commit store is configured
	linker  *auth.Linker   // nil when identity linking is disabled

	mu         sync.Mutex
	linkStates map[string]bool
}

// NewServer creates the HTTP server.
func NewServer(client *platform.Client, files *modelfiles.Service, store *storage.Service, commitStore *commits.Store, linker *auth.Linker) *Server {
	return &Server{
		client:     client,
		files:      files,
		storage:    store,
		commits:    commitStore,
		linker:     linker,
		linkStates: make(map[string]bool),
	}
}

// Handler returns the full HTTP handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /api/v1/auth/signup", s.handleSignUp)
	mux.HandleFunc("POST /api/v1/auth/token", s.handleSignIn)
	mux.HandleFunc("DELETE /api/v1/auth/token", s.handleSignOut)

	protected := http.NewServeMux()
	protected.HandleFunc("GET /api/v1/models/{id}/files", s.handleLoadFiles)
	protected.HandleFunc("POST /api/v1/models/{id}/files", s.handleAddFile)
	protected.HandleFunc("POST /api/v1/models/{id}/upload", s.handleUploadBatch)
	protected.HandleFunc("PUT /api/v1/models/{id}/files/{path...}", s.handleUpdateFile)
	protected.HandleFunc("DELETE /api/v1/models/{id}/files/{path...}", s.handleDeleteFile)
	protected.HandleFunc("GET /api/v1/models/{id}/commits", s.handleListCommits)
	protected.HandleFunc("POST /api/v1/models/{id}/commits", s.handleCreateCommit)
	protected.HandleFunc("GET /api/v1/auth/link", s.handleLinkStart)
	protected.HandleFunc("GET /api/v1/auth/link/callback", s.handleLinkCallback)

	mux.Handle("/api/v1/", s.requireSession(protected))

	return metrics.Middleware(logging.Middleware(mux))
}

// requireSession rejects model routes when nobody is signed in.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.client.GetSession() == nil {
			s.sendError(w, http.StatusUnauthorized, "not signed in")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"connected": s.client.Gate().Connected(),
	})
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	session, err := s.client.SignUp(r.Context(), req.Email, req.Password)
	if err != nil {
		s.sendBackendError(w, err)
		return
	}
	if session == nil {
		s.sendJSON(w, http.StatusAccepted, map[string]string{"status": "confirmation pending"})
		return
	}
	s.sendJSON(w, http.StatusCreated, session)
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	session, err := s.client.SignInWithPassword(r.Context(), req.Email, req.Password)
	if err != nil {
		s.sendBackendError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, session)
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if err := s.client.SignOut(r.Context()); err != nil {
		logging.Warn("sign-out revoke failed", zap.Error(err))
	}
	s.sendJSON(w, http.StatusOK, map[string]string{"status": "signed out"})
}

type filesResponse struct {
	modelfiles.Snapshot
	Failures []string `json:"failures,omitempty"`
}

func (s *Server) handleLoadFiles(w http.ResponseWriter, r *http.Request) {
	f := s.files.For(r.PathValue("id"))
	if err := f.Load(r.Context()); err != nil {
		s.sendBackendError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, filesResponse{Snapshot: f.Snapshot(), Failures: f.Failures()})
}

func (s *Server) handleAddFile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name    string `json:"name"`
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	f := s.files.For(r.PathValue("id"))
	if err := f.AddFile(r.Context(), req.Name, req.Content); err != nil {
		s.sendBackendError(w, err)
		return
	}
	s.sendJSON(w, http.StatusCreated, filesResponse{Snapshot: f.Snapshot()})
}

func (s *Server) handleUploadBatch(w http.ResponseWriter, r *http.Request) {
	reader, err := r.MultipartReader()
	if err != nil {
		s.sendError(w, http.StatusBadRequest, "multipart body required")
		return
	}

	// Each part must be drained before NextPart advances, so bodies are
	// buffered here and handed to UploadAll as in-memory readers.
	var batch []modelfiles.Incoming
	for {
		part, err := reader.NextPart()
		if err != nil {
			break
		}
		if part.FileName() == "" {
			continue
		}
		data, err := io.ReadAll(part)
		if err != nil {
			logging.Warn("multipart read failed, skipping part",
				zap.String("name", part.FileName()), zap.Error(err))
			continue
		}
		batch = append(batch, modelfiles.Incoming{Name: part.FileName(), Reader: bytes.NewReader(data)})
	}

	f := s.files.For(r.PathValue("id"))
	if err := f.UploadAll(r.Context(), batch); err != nil {
		s.sendBackendError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, filesResponse{Snapshot: f.Snapshot(), Failures: f.Failures()})
}

func (s *Server) handleUpdateFile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := s.files.UpdateFile(r.Context(), r.PathValue("id"), r.PathValue("path"), req.Content)
	if err != nil {
		s.sendBackendError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]string{"path": r.PathValue("path")})
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	session := s.client.GetSession()
	err := s.storage.DeleteFile(r.Context(), session.User.ID, r.PathValue("id"), r.PathValue("path"))
	if err != nil {
		s.sendBackendError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleListCommits(w http.ResponseWriter, r *http.Request) {
	if s.commits == nil {
		s.sendError(w, http.StatusNotImplemented, "commit store not configured")
		return
	}
	list, err := s.commits.ListByModel(r.Context(), r.PathValue("id"), 50)
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.sendJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateCommit(w http.ResponseWriter, r *http.Request) {
	if s.commits == nil {
		s.sendError(w, http.StatusNotImplemented, "commit store not configured")
		return
	}
	var req struct {
		Message string   `json:"message"`
		Paths   []string `json:"paths"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	session := s.client.GetSession()
	commit, err := s.commits.Create(r.Context(), r.PathValue("id"), session.User.ID, req.Message, req.Paths)
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.sendJSON(w, http.StatusCreated, commit)
}

func (s *Server) handleLinkStart(w http.ResponseWriter, r *http.Request) {
	if s.linker == nil {
		s.sendError(w, http.StatusNotImplemented, "identity linking not configured")
		return
	}
	state := uuid.NewString()
	s.mu.Lock()
	s.linkStates[state] = true
	s.mu.Unlock()
	http.Redirect(w, r, s.linker.AuthCodeURL(state), http.StatusFound)
}

func (s *Server) handleLinkCallback(w http.ResponseWriter, r *http.Request) {
	if s.linker == nil {
		s.sendError(w, http.StatusNotImplemented, "identity linking not configured")
		return
	}
	state := r.URL.Query().Get("state")
	s.mu.Lock()
	known := s.linkStates[state]
	delete(s.linkStates, state)
	s.mu.Unlock()
	if !known {
		s.sendError(w, http.StatusBadRequest, "unknown state")
		return
	}

	identity, err := s.linker.Exchange(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		s.sendError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.sendJSON(w, http.StatusOK, identity)
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) sendError(w http.ResponseWriter, status int, msg string) {
	s.sendJSON(w, status, map[string]string{"error": msg})
}

// sendBackendError maps error taxonomy to HTTP statuses: validation errors
// are the caller's fault, backend errors keep their status, everything else
// (including retry exhaustion) is a gateway failure.
func (s *Server) sendBackendError(w http.ResponseWriter, err error) {
	var ve *storage.ValidationError
	if errors.As(err, &ve) {
		s.sendError(w, http.StatusBadRequest, ve.Error())
		return
	}
	var be *platform.BackendError
	if errors.As(err, &be) {
		status := be.Status
		if status < 400 || status > 599 {
			status = http.StatusBadGateway
		}
		s.sendError(w, status, be.Message)
		return
	}
	if errors.Is(err, modelfiles.ErrNoSession) {
		s.sendError(w, http.StatusUnauthorized, err.Error())
		return
	}
	s.sendError(w, http.StatusBadGateway, err.Error())
}
