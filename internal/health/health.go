// Package health provides the operational HTTP endpoints.
//
// /healthz answers liveness probes while the process runs. /readyz returns
// 200 once startup finished and at least one recognition model is usable,
// with the model map in the body. /metrics exposes Prometheus collectors.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nadzzz/dunning/internal/message"
)

// StatusFunc reports model availability for readiness.
type StatusFunc func(ctx context.Context) *message.HealthStatus

// Option configures a Server.
type Option func(*Server)

// WithGatherer serves g on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithStatus makes readiness depend on model availability.
func WithStatus(fn StatusFunc) Option {
	return func(s *Server) { s.status = fn }
}

// Server is a lightweight HTTP server for probes and metrics.
type Server struct {
	port     int
	ready    atomic.Bool
	gatherer prometheus.Gatherer
	status   StatusFunc
	server   *http.Server
}

// New creates a new health check server.
func New(port int, opts ...Option) *Server {
	s := &Server{port: port}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetReady marks the daemon as ready to accept traffic.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

// Handler returns the probe and metrics routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if !s.ready.Load() {
			writeStatus(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
			return
		}
		if s.status == nil {
			writeStatus(w, http.StatusOK, map[string]string{"status": "ok"})
			return
		}
		st := s.status(r.Context())
		code := http.StatusOK
		if st.Status == message.HealthUnhealthy {
			code = http.StatusServiceUnavailable
		}
		writeStatus(w, code, st)
	})

	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

// ListenAndServe starts the health check HTTP server.
// It blocks until the context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	slog.Info("health server listening", "port", s.port, "metrics", s.gatherer != nil)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("health server: %w", err)
	}
	return nil
}

func writeStatus(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
