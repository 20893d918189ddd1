// Package health serves the gRPC health protocol for the storefront and
// keeps its status in line with the session backend.
package health

import (
	"context"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const ServiceName = "storefront.v1.Storefront"

// Pinger is implemented by backends that can report their reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	grpc     *grpc.Server
	health   *health.Server
	pinger   Pinger
	interval time.Duration
	log      *zap.Logger
}

// NewServer registers the health service and reflection. A nil pinger
// reports SERVING unconditionally.
func NewServer(pinger Pinger, interval time.Duration, log *zap.Logger) *Server {
	if interval <= 0 {
		interval = 10 * time.Second
	}

	grpcServer := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, hs)

	// Enable reflection for grpcurl/grpcui
	reflection.Register(grpcServer)

	s := &Server{
		grpc:     grpcServer,
		health:   hs,
		pinger:   pinger,
		interval: interval,
		log:      log,
	}
	s.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

func (s *Server) Serve(lis net.Listener) error {
	return s.grpc.Serve(lis)
}

// Watch pings the backend every interval until ctx is done.
func (s *Server) Watch(ctx context.Context) {
	s.Check(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Check(ctx)
		}
	}
}

// Check pings once and updates the reported status.
func (s *Server) Check(ctx context.Context) {
	if s.pinger == nil {
		s.set(healthpb.HealthCheckResponse_SERVING)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.interval)
	defer cancel()

	if err := s.pinger.Ping(ctx); err != nil {
		s.log.Warn("session backend ping failed", zap.Error(err))
		s.set(healthpb.HealthCheckResponse_NOT_SERVING)
		return
	}
	s.set(healthpb.HealthCheckResponse_SERVING)
}

func (s *Server) set(status healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

func (s *Server) GracefulStop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
