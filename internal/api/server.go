// Package api serves the loopback observability surface: the dashboard
// page, JSON endpoints over the turn log, an SSE tail, and a
// transcript-grounded question endpoint. Everything here reads through the
// store; nothing in this package mutates agent state.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"automa/internal/config"
	"automa/internal/heartbeat"
	"automa/internal/logging"
	"automa/internal/perception"
	"automa/internal/store"
	"automa/internal/survival"
)

// HeartbeatSource reports scheduler entry states for the overview.
type HeartbeatSource interface {
	Status() []heartbeat.EntryStatus
}

// Deps is everything the handlers read from.
type Deps struct {
	Store      *store.Store
	Config     *config.Config
	Identity   *config.Identity
	Inference  perception.Client
	Monitor    *survival.Monitor
	Life       *survival.Lifecycle
	Heartbeats HeartbeatSource
}

// Server is the loopback HTTP server. It binds 127.0.0.1 only; the
// observability surface is not meant to leave the host.
type Server struct {
	d    Deps
	http *http.Server

	// Stream cadences, overridable in tests.
	pollEvery      time.Duration
	keepAliveEvery time.Duration

	closing   chan struct{}
	closeOnce sync.Once
}

// New wires the routes. The listener starts in Serve.
func New(d Deps) *Server {
	s := &Server{
		d:              d,
		pollEvery:      streamPoll,
		keepAliveEvery: streamKeepAlive,
		closing:        make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleDashboard)
	mux.HandleFunc("GET /api/overview", s.handleOverview)
	mux.HandleFunc("GET /api/logs", s.handleLogs)
	mux.HandleFunc("GET /api/logs/stream", s.handleLogsStream)
	mux.HandleFunc("POST /api/ask", s.handleAsk)
	mux.HandleFunc("GET /health", s.handleHealth)

	s.http = &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", d.Config.Runtime.Port),
		Handler:           recoveryMiddleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler exposes the routed handler without a listener, for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Serve blocks on the listener until Shutdown. A closed server returns nil.
func (s *Server) Serve() error {
	logging.API("Observability API on http://%s", s.http.Addr)
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains the listener. Open SSE streams are told to finish first;
// Shutdown itself would wait on them forever otherwise.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closeOnce.Do(func() { close(s.closing) })
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				logging.APIError("Panic serving %s: %v", r.URL.Path, err)
				writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
}
