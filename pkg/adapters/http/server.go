package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aretw0/llmfsm"
	"github.com/aretw0/llmfsm/internal/logging"
	"github.com/aretw0/llmfsm/internal/presentation/graph"
	"github.com/aretw0/llmfsm/pkg/domain"
	"github.com/aretw0/llmfsm/pkg/observability"
	"github.com/aretw0/llmfsm/pkg/session"
)

// Inspector exposes the graph of the served agent. *llmfsm.Agent implements it.
type Inspector interface {
	Inspect() []domain.StateDefinition
	Initial() string
	Terminal() string
}

// Server exposes a session.Manager over HTTP.
type Server struct {
	Sessions *session.Manager
	Graph    Inspector

	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithMetrics serves g on GET /metrics.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithLogger configures a logger for the Server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// TurnRequest is the body of POST /sessions/{id}/turns.
type TurnRequest struct {
	Input string `json:"input"`
}

// ForceRequest is the body of PUT /sessions/{id}/state.
type ForceRequest struct {
	State string `json:"state"`
}

// TurnResponse is returned after a committed turn.
type TurnResponse struct {
	Record    domain.TurnRecord `json:"record"`
	State     string            `json:"state"`
	Completed bool              `json:"completed"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// NewHandler builds the router for sessions of one agent.
func NewHandler(sessions *session.Manager, g Inspector, opts ...Option) http.Handler {
	s := &Server{
		Sessions: sessions,
		Graph:    g,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Get("/graph", s.GetGraph)
	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		_, _ = w.Write(rawSpec)
	})
	if s.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", s.ListSessions)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.GetSession)
			r.Post("/", s.StartSession)
			r.Delete("/", s.DeleteSession)
			r.Post("/turns", s.RunTurn)
			r.Put("/state", s.ForceState)
			r.Get("/audit", s.GetAudit)
			r.Get("/graph", s.GetSessionGraph)
		})
	})
	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles GET /info.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"app":     "llmfsm-http",
		"version": strings.TrimSpace(llmfsm.Version),
	})
}

// GetGraph handles GET /graph. With ?format=mermaid it returns a flowchart.
func (s *Server) GetGraph(w http.ResponseWriter, r *http.Request) {
	s.renderGraph(w, r, nil)
}

// GetSessionGraph handles GET /sessions/{id}/graph, highlighting the session's path.
func (s *Server) GetSessionGraph(w http.ResponseWriter, r *http.Request) {
	snap, err := s.Sessions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.renderGraph(w, r, graph.OverlayFromHistory(snap.Current, snap.History))
}

func (s *Server) renderGraph(w http.ResponseWriter, r *http.Request, overlay *graph.Overlay) {
	defs := s.Graph.Inspect()
	if r.URL.Query().Get("format") == "mermaid" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(graph.Mermaid(defs, s.Graph.Initial(), s.Graph.Terminal(), overlay)))
		return
	}
	s.writeJSON(w, http.StatusOK, graph.Describe(defs, s.Graph.Initial(), s.Graph.Terminal()))
}

// ListSessions handles GET /sessions.
func (s *Server) ListSessions(w http.ResponseWriter, r *http.Request) {
	ids, err := s.Sessions.List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	s.writeJSON(w, http.StatusOK, ids)
}

// GetSession handles GET /sessions/{id}.
func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	snap, err := s.Sessions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

// StartSession handles POST /sessions/{id}. It is idempotent.
func (s *Server) StartSession(w http.ResponseWriter, r *http.Request) {
	snap, err := s.Sessions.LoadOrStart(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

// DeleteSession handles DELETE /sessions/{id}.
func (s *Server) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.Sessions.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RunTurn handles POST /sessions/{id}/turns. Unknown sessions are started.
func (s *Server) RunTurn(w http.ResponseWriter, r *http.Request) {
	var body TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.logger.Warn("RunTurn: Invalid request body", "err", err)
		s.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Kind: "bad_request"})
		return
	}

	id := chi.URLParam(r, "id")
	rec, err := s.Sessions.RunTurn(r.Context(), id, body.Input)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, TurnResponse{
		Record:    rec,
		State:     rec.NextState,
		Completed: rec.NextState == s.Graph.Terminal(),
	})
}

// ForceState handles PUT /sessions/{id}/state.
func (s *Server) ForceState(w http.ResponseWriter, r *http.Request) {
	var body ForceRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.State == "" {
		s.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "state is required", Kind: "bad_request"})
		return
	}
	snap, err := s.Sessions.Force(r.Context(), chi.URLParam(r, "id"), body.State)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

// GetAudit handles GET /sessions/{id}/audit.
func (s *Server) GetAudit(w http.ResponseWriter, r *http.Request) {
	recs, err := s.Sessions.Audit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if recs == nil {
		recs = []domain.TurnRecord{}
	}
	s.writeJSON(w, http.StatusOK, recs)
}

// StatusFor maps an engine error to an HTTP status code.
func StatusFor(err error) int {
	var ce *domain.ClientError
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrHandler):
		return http.StatusInternalServerError
	case errors.Is(err, session.ErrInputTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, session.ErrInvalidUTF8), errors.Is(err, domain.ErrUnknownState):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrAlreadyCompleted), errors.Is(err, domain.ErrTurnInProgress):
		return http.StatusConflict
	case errors.As(err, &ce):
		if ce.Kind == domain.ClientRateLimit {
			return http.StatusTooManyRequests
		}
		if ce.Temporary() {
			return http.StatusServiceUnavailable
		}
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrSchemaValidation), errors.Is(err, domain.ErrUnknownTransition):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", "status", status, "err", err)
	}
	s.writeJSON(w, status, ErrorResponse{Error: err.Error(), Kind: kindFor(err)})
}

func kindFor(err error) string {
	switch {
	case errors.Is(err, domain.ErrHandler):
		return observability.Outcome(err)
	case errors.Is(err, domain.ErrSessionNotFound):
		return "not_found"
	case errors.Is(err, session.ErrInputTooLarge), errors.Is(err, session.ErrInvalidUTF8):
		return "invalid_input"
	case errors.Is(err, domain.ErrUnknownState):
		return "unknown_state"
	case errors.Is(err, domain.ErrTurnInProgress):
		return "turn_in_progress"
	}
	return observability.Outcome(err)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Response encode failed", "err", err)
	}
}
