// Package http exposes an engine over HTTP: invocation as server-sent events,
// health, the graph diagram, run history and metrics.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/nvrdftd/evolve-ai-infra"
	graphview "github.com/nvrdftd/evolve-ai-infra/internal/presentation/graph"
	"github.com/nvrdftd/evolve-ai-infra/pkg/domain"
	"github.com/nvrdftd/evolve-ai-infra/pkg/graph"
	"github.com/nvrdftd/evolve-ai-infra/pkg/ports"
	"github.com/nvrdftd/evolve-ai-infra/pkg/runner"
)

// Engine defines what the server needs from the evolve engine.
type Engine interface {
	Invoke(ctx context.Context, message string) (*evolve.Run, error)
	Graph() *graph.Graph
}

// Server holds the handlers.
type Server struct {
	engine  Engine
	runs    ports.RunStore
	metrics http.Handler
	origins []string
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures the server.
type Option func(*Server)

// WithRunStore enables the run history endpoints.
func WithRunStore(store ports.RunStore) Option {
	return func(s *Server) {
		s.runs = store
	}
}

// WithMetricsHandler serves h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithAllowedOrigins restricts CORS to the given origins (default "*").
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) {
		s.origins = origins
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewHandler creates a new HTTP handler for the engine.
func NewHandler(engine Engine, opts ...Option) (http.Handler, error) {
	s := &Server{
		engine: engine,
		logger: slog.New(slog.NewJSONHandler(io.Discard, nil)),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	doc, err := LoadSpec(context.Background())
	if err != nil {
		return nil, err
	}
	validate, err := s.validator(doc)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(s.recoverer)
	r.Use(s.cors)
	r.Use(validate)

	r.Get("/health", s.GetHealth)
	r.Get("/openapi.yaml", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		_, _ = w.Write(rawSpec)
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/agent/invoke", s.InvokeAgent)
		r.Get("/graph", s.GetGraph)
		r.Get("/runs", s.ListRuns)
		r.Get("/runs/{id}", s.GetRun)
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, http.StatusNotFound, MsgRouteNotFound, nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, http.StatusMethodNotAllowed, MsgMethodNotAllowed, nil)
	})
	return r, nil
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := "*"
		if len(s.origins) > 0 {
			origin = ""
			for _, o := range s.origins {
				if o == r.Header.Get("Origin") {
					origin = o
					w.Header().Add("Vary", "Origin")
					break
				}
			}
		}
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.InfoContext(r.Context(), "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(started),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"version":   strings.TrimSpace(evolve.Version),
		"timestamp": s.now().UTC().Format(time.RFC3339),
	})
}

// GetGraph handles the GET /api/v1/graph request.
func (s *Server) GetGraph(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, graphview.GenerateMermaid(s.engine.Graph(), nil))
}

type invokeRequest struct {
	Message string `json:"message"`
}

// InvokeAgent handles POST /api/v1/agent/invoke by streaming the run as server-sent events.
// Every event is one `data:` line; the stream ends with `data: [DONE]`.
func (s *Server) InvokeAgent(w http.ResponseWriter, r *http.Request) {
	var body invokeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, r, http.StatusBadRequest, MsgInvalidBody, err)
		return
	}
	if body.Message == "" {
		s.writeError(w, r, http.StatusBadRequest, MsgMissingFields, nil)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, r, http.StatusInternalServerError, msgStreamUnsupported, nil)
		return
	}

	run, err := s.engine.Invoke(r.Context(), body.Message)
	if err != nil {
		if runner.Rejected(err) {
			s.writeError(w, r, http.StatusBadRequest, MsgInvalidInput, err)
			return
		}
		s.writeError(w, r, http.StatusInternalServerError, MsgInvocationFailed, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	logger := s.logger.With("run_id", run.ID())
	broken := false
	// A gone client cancels the run through the request context; the stream is drained either way.
	for ev := range run.Events() {
		if broken {
			continue
		}
		ev = s.public(r.Context(), logger, ev)
		b, err := json.Marshal(ev)
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to encode event", "type", ev.Type, "error", err)
			continue
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", b); err != nil {
			logger.WarnContext(r.Context(), "client went away", "error", err)
			broken = true
			continue
		}
		flusher.Flush()
	}
	if !broken {
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
		flusher.Flush()
	}
}

// public strips failure details from streamed events; they are logged instead.
func (s *Server) public(ctx context.Context, logger *slog.Logger, ev domain.Event) domain.Event {
	if ev.Err == nil {
		return ev
	}
	if ev.Type == domain.EventFailed {
		logger.ErrorContext(ctx, "run failed", "error", ev.Err)
	}
	ev.Err = fmt.Errorf("%s: %s", MsgInvocationFailed, evolve.PublicError(ev.Err))
	return ev
}

// ListRuns handles GET /api/v1/runs.
func (s *Server) ListRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		s.writeError(w, r, http.StatusNotFound, MsgNotFound, errors.New("run history disabled"))
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.writeError(w, r, http.StatusBadRequest, MsgBadRequest, err)
			return
		}
		limit = n
	}
	ids, err := s.runs.List(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, MsgInternal, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"runs": ids})
}

// GetRun handles GET /api/v1/runs/{id}.
func (s *Server) GetRun(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		s.writeError(w, r, http.StatusNotFound, MsgNotFound, errors.New("run history disabled"))
		return
	}
	rec, err := s.runs.Load(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, domain.ErrRunNotFound) {
		s.writeError(w, r, http.StatusNotFound, MsgNotFound, err)
		return
	}
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, MsgInternal, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
