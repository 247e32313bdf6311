package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"log/slog"

	"github.com/google/uuid"
)

// Server exposes the gateway over HTTP. It owns the listener lifecycle:
// Start binds and returns, Stop shuts down gracefully.
type Server struct {
	gateway *Gateway
	logger  *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	httpSrv  *http.Server
}

// NewServer creates an HTTP server for the given gateway.
func NewServer(gw *Gateway, logger *slog.Logger) *Server {
	return &Server{
		gateway: gw,
		logger:  logger,
	}
}

// Start binds the listener on addr and serves requests in the
// background. It returns once the listener is bound; a bind failure is
// returned directly.
func (s *Server) Start(addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return fmt.Errorf("server already started")
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("bind %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/tasks/new", s.handleNewTask)
	mux.HandleFunc("/api/tasks/continue", s.handleContinueTask)

	srv := &http.Server{Handler: s.logRequests(mux)}
	s.listener = ln
	s.httpSrv = srv

	// The goroutine must not touch s.httpSrv: Stop clears the field
	// under the lock and may run before the goroutine is scheduled.
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http serve error", "error", err)
		}
	}()

	return nil
}

// Stop shuts the server down, waiting for in-flight requests up to the
// context deadline. It is a no-op if the server was never started.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.httpSrv == nil {
		return nil
	}

	err := s.httpSrv.Shutdown(ctx)
	s.httpSrv = nil
	s.listener = nil
	return err
}

// Addr returns the bound listener address, or empty if not started.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// logRequests tags each request with an id and logs it on completion.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("http request",
			"id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start))
	})
}

type newTaskRequest struct {
	Description string            `json:"description"`
	Images      []json.RawMessage `json:"images,omitempty"`
	CustomID    string            `json:"customId,omitempty"`
}

type newTaskResponse struct {
	Success  bool    `json:"success"`
	TaskID   *string `json:"taskId"`
	CustomID string  `json:"customId,omitempty"`
}

type continueTaskRequest struct {
	TaskID   string            `json:"taskId,omitempty"`
	CustomID string            `json:"customId,omitempty"`
	Message  string            `json:"message"`
	Images   []json.RawMessage `json:"images,omitempty"`
}

type continueTaskResponse struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleNewTask(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req newTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	result, err := s.gateway.CreateSession(r.Context(), CreateSessionRequest{
		Description: req.Description,
		Images:      req.Images,
		Alias:       req.CustomID,
	})
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}

	resp := newTaskResponse{Success: true, CustomID: result.Alias}
	if result.SessionID != "" {
		resp.TaskID = &result.SessionID
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleContinueTask(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req continueTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	result, err := s.gateway.ContinueSession(r.Context(), ContinueSessionRequest{
		SessionID: req.TaskID,
		Alias:     req.CustomID,
		Message:   req.Message,
		Images:    req.Images,
	})
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, continueTaskResponse{Success: true, Result: result})
}

// errorStatus maps gateway error kinds to HTTP status codes.
func errorStatus(err error) int {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
