// Package grpc implements the gRPC transport for dunning.
//
// The transport serves the standard gRPC health protocol so orchestrators and
// gRPC-aware load balancers can probe recognition readiness. Besides the
// overall status, each language has its own service name
// ("dunning.recognizer.ru", "dunning.recognizer.kk") reporting whether its
// model is usable.
package grpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/nadzzz/dunning/internal/config"
	"github.com/nadzzz/dunning/internal/message"
	"github.com/nadzzz/dunning/internal/transport"
)

// ServicePrefix prefixes the per-language health service names.
const ServicePrefix = "dunning.recognizer."

// ErrSendUnsupported is returned by Send; targets are reached over HTTP.
var ErrSendUnsupported = errors.New("grpc transport does not deliver to targets")

// Transport implements transport.Transport over gRPC.
type Transport struct {
	port    int
	refresh time.Duration
	health  *grpchealth.Server

	mu     sync.Mutex
	server *grpc.Server
	closed bool
}

var _ transport.Transport = (*Transport)(nil)

// New creates a new gRPC transport.
func New(cfg config.GRPCConfig) *Transport {
	refresh := cfg.RefreshInterval
	if refresh <= 0 {
		refresh = 30 * time.Second
	}
	return &Transport{
		port:    cfg.Port,
		refresh: refresh,
		health:  grpchealth.NewServer(),
	}
}

// Name returns the transport identifier.
func (t *Transport) Name() string { return "grpc" }

// Listen starts the gRPC server and keeps the health statuses current
// until the context is cancelled.
func (t *Transport) Listen(ctx context.Context, svc transport.Service) error {
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, t.health)
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.server = srv
	t.mu.Unlock()

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", t.port))
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	t.Refresh(ctx, svc)

	slog.Info("grpc transport listening", "port", t.port, "refresh", t.refresh)

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(t.refresh)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				slog.Info("grpc transport shutting down")
				t.health.Shutdown()
				srv.GracefulStop()
				return
			case <-done:
				return
			case <-ticker.C:
				t.Refresh(ctx, svc)
			}
		}
	}()

	if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("grpc serve: %w", err)
	}
	return nil
}

// Refresh publishes the current model availability. The overall status is
// SERVING while at least one model is usable.
func (t *Transport) Refresh(ctx context.Context, svc transport.Service) {
	h := svc.Health(ctx)
	overall := healthpb.HealthCheckResponse_NOT_SERVING
	for _, lang := range message.SupportedLanguages {
		status := healthpb.HealthCheckResponse_NOT_SERVING
		if h.Models[lang] {
			status = healthpb.HealthCheckResponse_SERVING
			overall = status
		}
		t.health.SetServingStatus(ServicePrefix+string(lang), status)
	}
	t.health.SetServingStatus("", overall)
	slog.Debug("grpc health refreshed", "status", h.Status)
}

// Send is not supported over gRPC.
func (t *Transport) Send(_ context.Context, target message.Target, _ []byte) error {
	return fmt.Errorf("%w: %s", ErrSendUnsupported, target.ServiceName)
}

// Close gracefully stops the gRPC server.
func (t *Transport) Close() error {
	t.mu.Lock()
	t.closed = true
	srv := t.server
	t.mu.Unlock()
	if srv != nil {
		t.health.Shutdown()
		srv.GracefulStop()
	}
	return nil
}
