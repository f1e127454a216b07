// Package grpc serves the standard gRPC health protocol, reporting NOT_SERVING
// while the cart store cannot be reached.
package grpc

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/sijan324/nepshop/internal/repository"
)

// ServiceName is the health service name clients should query.
const ServiceName = "nepshop.cart"

// HealthReporter keeps a health server in sync with the store.
type HealthReporter struct {
	server   *health.Server
	store    repository.Pinger
	interval time.Duration
}

func NewHealthReporter(store repository.Pinger, interval time.Duration) *HealthReporter {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &HealthReporter{server: health.NewServer(), store: store, interval: interval}
}

// NewServer creates a gRPC server with the health and reflection services.
func NewServer(reporter *HealthReporter) *grpc.Server {
	s := grpc.NewServer()
	healthpb.RegisterHealthServer(s, reporter.server)
	reflection.Register(s)
	return s
}

// Check pings the store once and publishes the result.
func (h *HealthReporter) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if err := h.store.Ping(ctx); err != nil {
		slog.Warn("Store ping failed", "err", err)
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.server.SetServingStatus("", status)
	h.server.SetServingStatus(ServiceName, status)
	return status
}

// Run checks on every tick until ctx is done, then marks everything as
// shutting down.
func (h *HealthReporter) Run(ctx context.Context) error {
	h.Check(ctx)
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.server.Shutdown()
			return nil
		case <-ticker.C:
			checkCtx, cancel := context.WithTimeout(ctx, h.interval)
			h.Check(checkCtx)
			cancel()
		}
	}
}
