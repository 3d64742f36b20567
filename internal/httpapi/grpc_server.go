package httpapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"kassenwerk.org/internal/obs"
)

const serviceName = "kassenwerk-api"

// HealthServer exposes the standard gRPC health protocol backed by the same
// readiness probe the HTTP surface uses.
type HealthServer struct {
	grpc_health_v1.UnimplementedHealthServer

	readiness ReadyProbe
}

// NewHealthServer creates the gRPC health service wrapper.
func NewHealthServer(rp ReadyProbe) *HealthServer {
	return &HealthServer{readiness: rp}
}

// RegisterGRPC attaches the health service to a gRPC server.
func RegisterGRPC(srv *grpc.Server, rp ReadyProbe) {
	grpc_health_v1.RegisterHealthServer(srv, NewHealthServer(rp))
}

// Check evaluates readiness. On failure returns NOT_SERVING.
func (s *HealthServer) Check(ctx context.Context, _ *grpc_health_v1.HealthCheckRequest) (*grpc_health_v1.HealthCheckResponse, error) {
	if err := s.readiness.Check(ctx); err != nil {
		obs.SetReady(false)
		return &grpc_health_v1.HealthCheckResponse{
			Status: grpc_health_v1.HealthCheckResponse_NOT_SERVING,
		}, nil
	}
	obs.SetReady(true)
	return &grpc_health_v1.HealthCheckResponse{
		Status: grpc_health_v1.HealthCheckResponse_SERVING,
	}, nil
}

// Watch is not implemented; clients should poll Check.
func (s *HealthServer) Watch(_ *grpc_health_v1.HealthCheckRequest, _ grpc_health_v1.Health_WatchServer) error {
	return status.Error(codes.Unimplemented, "watch is not supported")
}
