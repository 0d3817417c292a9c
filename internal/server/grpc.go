package server

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"passwordless-auth/backend/internal/health"
	healthhandler "passwordless-auth/backend/internal/health/handler"
)

// NewGRPCServer returns a gRPC server instrumented with otelgrpc and with every service registered.
func NewGRPCServer(checker *health.Checker) *grpc.Server {
	s := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	RegisterServices(s, checker)
	return s
}

// RegisterServices registers the gRPC services on s.
//
//   - grpc.health.v1.Health → internal/health/handler
func RegisterServices(s grpc.ServiceRegistrar, checker *health.Checker) {
	healthpb.RegisterHealthServer(s, healthhandler.NewServer(checker))
}
