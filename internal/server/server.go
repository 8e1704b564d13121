// Package server exposes project question answering over HTTP, a
// websocket, and the Model Context Protocol.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/tonimelisma/docsync/internal/assistant"
	"github.com/tonimelisma/docsync/internal/config"
)

const shutdownTimeout = 5 * time.Second

// Asker is the question-answering surface the server needs. Satisfied by
// *assistant.Service.
type Asker interface {
	Ask(ctx context.Context, query, project string) (*assistant.Reply, error)
	Projects(ctx context.Context) ([]string, error)
	ExampleQuestions(ctx context.Context, project string) ([]string, error)
}

type chatRequest struct {
	Query       string `json:"query"`
	ProjectName string `json:"projectName"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Server is the chat API server.
type Server struct {
	asker  Asker
	logger *slog.Logger
	addr   string

	listener net.Listener
	srv      *http.Server
}

// New creates a server that will listen on addr.
func New(asker Asker, addr string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{asker: asker, addr: addr, logger: logger}
}

// Handler returns the routed handler with permissive CORS applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/projects", s.handleProjects)
	mux.HandleFunc("GET /api/projects/{name}/questions", s.handleQuestions)
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("GET /api/chat/ws", s.handleChatWS)

	return cors(mux)
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("server: listening on %s: %w", s.addr, err)
	}

	s.listener = ln
	s.srv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)

	go func() {
		s.logger.Info("chat server listening", slog.String("addr", ln.Addr().String()))
		errc <- s.srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}

	s.logger.Info("chat server stopped")

	return nil
}

// Addr returns the bound address once Run has started listening.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}

	return s.addr
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.asker.Projects(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}

	if projects == nil {
		projects = []string{}
	}

	writeJSON(w, http.StatusOK, projects)
}

func (s *Server) handleQuestions(w http.ResponseWriter, r *http.Request) {
	questions, err := s.asker.ExampleQuestions(r.Context(), r.PathValue("name"))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, questions)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Query == "" || req.ProjectName == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Missing query or projectName"})
		return
	}

	reply, err := s.answer(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) answer(ctx context.Context, req chatRequest) (*assistant.Reply, error) {
	reply, err := s.asker.Ask(ctx, req.Query, req.ProjectName)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("answered chat request",
		slog.String("project", req.ProjectName),
		slog.Int("citations", len(reply.Citations)),
	)

	return reply, nil
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, assistant.ErrEmptyQuery) || errors.Is(err, config.ErrNoProject) {
		status = http.StatusBadRequest
	}

	s.logger.Error("request failed",
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)

	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // client went away
}

// cors allows any origin, as the browser chat client is served separately.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
