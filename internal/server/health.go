// Package server exposes the daemon's gRPC surface: the standard health
// service, kept in sync with database reachability.
package server

import (
	"context"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health service name reported for the extraction pipeline.
const ServiceName = "docextract.Extraction"

// Pinger is satisfied by repository.DB.
type Pinger interface {
	HealthCheck(ctx context.Context, timeout time.Duration) error
}

type HealthService struct {
	hs       *health.Server
	db       Pinger
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
}

func NewHealthService(db Pinger, interval time.Duration, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &HealthService{
		hs:       health.NewServer(),
		db:       db,
		interval: interval,
		timeout:  3 * time.Second,
		logger:   logger,
	}
}

func (h *HealthService) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.hs)
}

// Check answers a health request without going through the network.
func (h *HealthService) Check(ctx context.Context, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	resp, err := h.hs.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}

// Probe pings the database once and updates the reported status.
func (h *HealthService) Probe(ctx context.Context) bool {
	st := healthpb.HealthCheckResponse_SERVING
	err := h.db.HealthCheck(ctx, h.timeout)
	if err != nil {
		st = healthpb.HealthCheckResponse_NOT_SERVING
		h.logger.Warn("database health check failed", "error", err)
	}
	h.hs.SetServingStatus("", st)
	h.hs.SetServingStatus(ServiceName, st)
	return err == nil
}

// Run probes until ctx is done.
func (h *HealthService) Run(ctx context.Context) {
	h.Probe(ctx)
	t := time.NewTicker(h.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			h.Probe(ctx)
		}
	}
}

// Shutdown reports NOT_SERVING for every service and ignores later updates.
func (h *HealthService) Shutdown() {
	h.hs.Shutdown()
}

// Serve runs a gRPC server with the health service on addr until ctx is done.
func Serve(ctx context.Context, addr string, h *HealthService, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Error("failed to listen on address", "addr", addr, "error", err)
		return err
	}
	grpcServer := grpc.NewServer()
	h.Register(grpcServer)
	// Reflection for grpcurl
	reflection.Register(grpcServer)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("grpc listening", "addr", lis.Addr().String())
		errCh <- grpcServer.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		h.Shutdown()
		grpcServer.GracefulStop()
		return nil
	case err := <-errCh:
		return err
	}
}
