package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/itinera/pkg/bridge"
	"github.com/aretw0/itinera/pkg/domain"
	"github.com/aretw0/itinera/pkg/input"
	"github.com/aretw0/itinera/pkg/registry"
	"github.com/aretw0/itinera/pkg/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

const maxBodySize = 1 << 20

// Engine is the part of itinera.Engine the HTTP layer needs.
type Engine interface {
	TryStream(threadID, userText string) *bridge.Stream
	History(ctx context.Context, threadID string) ([]domain.Message, error)
	Threads(ctx context.Context) ([]string, error)
	Tools() []domain.ToolDefinition
}

// Server serves the thread API.
type Server struct {
	Engine  Engine
	Streams *StreamManager

	sources []registry.LoadResult
	metrics http.Handler
	version string
	logger  *slog.Logger
}

// Option configures the handler.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithSources reports tool source health on /health.
func WithSources(results []registry.LoadResult) Option {
	return func(s *Server) {
		s.sources = results
	}
}

// WithMetrics mounts h on /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithVersion sets the version reported by /info.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// WithStreams shares sm as the watcher fan-out, so the caller can close it on shutdown.
func WithStreams(sm *StreamManager) Option {
	return func(s *Server) {
		s.Streams = sm
	}
}

// NewHandler creates the HTTP handler for engine.
func NewHandler(engine Engine, opts ...Option) http.Handler {
	s := &Server{Engine: engine, version: "dev", logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "http")
	if s.Streams == nil {
		s.Streams = NewStreamManager(s.logger)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Get("/tools", s.ListTools)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	r.Route("/threads", func(r chi.Router) {
		r.Get("/", s.ListThreads)
		r.Post("/", s.CreateThread)
		r.Route("/{threadID}", func(r chi.Router) {
			r.Get("/", s.GetThread)
			r.Post("/turns", s.PostTurn)
			r.Get("/events", s.SubscribeEvents)
		})
	})
	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type sourceStatus struct {
	Source string   `json:"source"`
	Tools  []string `json:"tools"`
	Error  string   `json:"error,omitempty"`
}

// GetHealth reports "degraded" when any tool source failed to load.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	sources := make([]sourceStatus, 0, len(s.sources))
	for _, res := range s.sources {
		st := sourceStatus{Source: res.Source, Tools: res.Tools}
		if res.Degraded() {
			status = "degraded"
			st.Error = res.Err.Error()
		}
		sources = append(sources, st)
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": status, "sources": sources})
}

// GetInfo handles GET /info.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"app": "itinera-http", "version": s.version})
}

// ListTools handles GET /tools.
func (s *Server) ListTools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Engine.Tools())
}

// ListThreads handles GET /threads.
func (s *Server) ListThreads(w http.ResponseWriter, r *http.Request) {
	ids, err := s.Engine.Threads(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"threads": ids})
}

// CreateThread hands out a fresh thread id. Nothing is stored until the first turn.
func (s *Server) CreateThread(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusCreated, map[string]string{"thread_id": uuid.NewString()})
}

// GetThread handles GET /threads/{threadID}.
func (s *Server) GetThread(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")
	msgs, err := s.Engine.History(r.Context(), threadID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"thread_id": threadID, "messages": msgs})
}

type turnRequest struct {
	Message string `json:"message"`
}

// PostTurn runs one turn and streams its messages as server-sent events.
// A thread that already has a turn in flight answers 409 before any event is written.
func (s *Server) PostTurn(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")

	var body turnRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	text, err := input.Sanitize(body.Message)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	stream := s.Engine.TryStream(threadID, text)
	first, err := stream.Next(r.Context())
	if err != nil {
		// Client went away before the turn produced anything; keep relaying for watchers.
		go s.relay(threadID, stream, nil)
		return
	}
	if first.Kind == domain.EventError {
		if !errors.Is(first.Err, session.ErrThreadBusy) {
			s.Streams.Broadcast(threadID, first)
		}
		s.fail(w, r, first.Err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	s.Streams.Broadcast(threadID, first)
	events := bridge.NewQueue[domain.Event]()
	events.Push(first)
	go s.relay(threadID, stream, events)

	for {
		ev, err := events.Pop(r.Context())
		if err != nil {
			s.logger.Info("SSE client disconnected mid-turn", "thread_id", threadID)
			return
		}
		if err := writeEvent(w, ev); err != nil {
			s.logger.Warn("SSE write failed", "thread_id", threadID, "err", err)
			return
		}
		flusher.Flush()
		if ev.Terminal() {
			return
		}
	}
}

// relay drains stream until its terminal event, broadcasting every event to
// watchers of the thread and forwarding it to out when out is non-nil. It
// outlives the posting request so watchers see the whole turn.
func (s *Server) relay(threadID string, stream *bridge.Stream, out *bridge.Queue[domain.Event]) {
	if out != nil {
		defer out.Close()
	}
	for {
		ev, err := stream.Next(context.Background())
		if err != nil {
			return
		}
		s.Streams.Broadcast(threadID, ev)
		if out != nil {
			out.Push(ev)
		}
		if ev.Terminal() {
			return
		}
	}
}

// SubscribeEvents streams the events of turns started by other requests on the thread.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	ch, cancel := s.Streams.Subscribe(threadID)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	keepAlive := time.NewTicker(15 * time.Second)
	defer keepAlive.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			fmt.Fprintf(w, ": keep-alive\n\n")
			flusher.Flush()
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := writeEvent(w, ev); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, ev domain.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data)
	return err
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	var pe *domain.PersistenceError
	var me *domain.ModelError
	switch {
	case errors.Is(err, session.ErrThreadBusy):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrEmptyThreadID):
		status = http.StatusBadRequest
	case errors.Is(err, bridge.ErrBackendClosed):
		status = http.StatusServiceUnavailable
	case errors.As(err, &me):
		status = http.StatusBadGateway
	case errors.As(err, &pe):
		status = http.StatusInternalServerError
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "err", err)
	}
	writeError(w, status, err.Error())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
