// Package probe exposes dependency health over the standard gRPC health protocol.
package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Check probes one dependency.
type Check func(ctx context.Context) error

// Server serves grpc.health.v1.Health and keeps its status in step with the checks.
type Server struct {
	health   *health.Server
	grpc     *grpc.Server
	checks   map[string]Check
	interval time.Duration
	timeout  time.Duration
}

// NewServer creates a health server. Status starts as NOT_SERVING until the first update.
func NewServer(checks map[string]Check, interval time.Duration) *Server {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, hs)

	return &Server{
		health:   hs,
		grpc:     gs,
		checks:   checks,
		interval: interval,
		timeout:  3 * time.Second,
	}
}

// Update runs every check once and publishes the overall status.
func (s *Server) Update(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			slog.Warn("Health check failed", "check", name, "error", err)
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	s.health.SetServingStatus("", status)
	return status
}

// Serve listens on addr and refreshes health status until ctx is done.
func (s *Server) Serve(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.serve(ctx, lis)
}

func (s *Server) serve(ctx context.Context, lis net.Listener) error {
	go s.run(ctx)
	go func() {
		<-ctx.Done()
		s.health.Shutdown()
		s.grpc.GracefulStop()
	}()

	slog.Info("gRPC health server listening", "addr", lis.Addr().String())
	if err := s.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serve grpc health: %w", err)
	}
	return nil
}

func (s *Server) run(ctx context.Context) {
	s.Update(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Update(ctx)
		}
	}
}
