// Package handler serves readiness over gRPC (grpc.health.v1) and HTTP (/healthz).
package handler

import (
	"context"

	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"passwordless-auth/backend/internal/health"
)

// Server implements grpc.health.v1.Health. Check reports NOT_SERVING rather than an error when a
// dependency is down. Watch and List are not supported.
type Server struct {
	healthpb.UnimplementedHealthServer
	checker *health.Checker
}

// NewServer returns a health server backed by checker.
func NewServer(checker *health.Checker) *Server {
	return &Server{checker: checker}
}

// Check answers for the whole server (empty service name) only.
func (s *Server) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	if req.GetService() != "" {
		return nil, status.Errorf(codes.NotFound, "unknown service %q", req.GetService())
	}
	st := healthpb.HealthCheckResponse_SERVING
	if !s.checker.Check(ctx).Ready {
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	return &healthpb.HealthCheckResponse{Status: st}, nil
}
