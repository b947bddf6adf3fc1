// Package grpchealth publishes the service health over the standard gRPC health protocol.
package grpchealth

import (
	"context"
	"net"
	"time"

	"ai-chat-app/backend/pkg/health"
	"ai-chat-app/backend/pkg/logger"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC service name clients query
const ServiceName = "chat.v1.ChatService"

// Server mirrors a health.Checker into a grpc health service
type Server struct {
	grpc    *grpc.Server
	health  *grpchealth.Server
	checker *health.Checker
	log     *logger.Logger
}

func New(checker *health.Checker, log *logger.Logger) *Server {
	s := &Server{
		grpc:    grpc.NewServer(),
		health:  grpchealth.NewServer(),
		checker: checker,
		log:     log,
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.Sync()
	return s
}

// Sync copies the checker's verdict into the grpc health status
func (s *Server) Sync() {
	status := healthpb.HealthCheckResponse_SERVING
	if !s.checker.IsSystemHealthy() {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// Serve blocks serving on lis and resyncs status every interval until ctx ends
func (s *Server) Serve(ctx context.Context, lis net.Listener, interval time.Duration) error {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.health.Shutdown()
				s.grpc.GracefulStop()
				return
			case <-ticker.C:
				s.Sync()
			}
		}
	}()

	s.log.Info("gRPC health server starting", "addr", lis.Addr().String())
	return s.grpc.Serve(lis)
}
