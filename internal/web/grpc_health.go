package web

import (
	"context"
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// FundService is the service name reported by the gRPC health server.
const FundService = "fundmanager.Fund"

// HealthServer exposes the standard gRPC health protocol. The fund service is SERVING
// once the fund is initialized.
type HealthServer struct {
	fund   FundReader
	server *grpc.Server
	health *health.Server
}

// NewHealthServer creates a gRPC server with the health service registered.
func NewHealthServer(fund FundReader) *HealthServer {
	h := &HealthServer{
		fund:   fund,
		server: grpc.NewServer(),
		health: health.NewServer(),
	}
	healthpb.RegisterHealthServer(h.server, h.health)
	h.Refresh()
	return h
}

// Refresh recomputes the serving status from the fund state.
func (h *HealthServer) Refresh() {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if h.fund.Snapshot().Initialized {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus(FundService, status)
	h.health.SetServingStatus("", status)
}

// Serve accepts connections on lis and refreshes the status every interval until ctx is done.
func (h *HealthServer) Serve(ctx context.Context, lis net.Listener, interval time.Duration) error {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				h.health.Shutdown()
				h.server.GracefulStop()
				return
			case <-ticker.C:
				h.Refresh()
			}
		}
	}()

	webLogger.Info().Str("addr", lis.Addr().String()).Msg("Starting gRPC health server")
	if err := h.server.Serve(lis); err != nil {
		return fmt.Errorf("gRPC health server stopped: %w", err)
	}
	return nil
}

// ListenAndServe listens on the TCP port and serves until ctx is done.
func (h *HealthServer) ListenAndServe(ctx context.Context, port string, interval time.Duration) error {
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return fmt.Errorf("failed to listen on gRPC port %s: %w", port, err)
	}
	return h.Serve(ctx, lis, interval)
}
