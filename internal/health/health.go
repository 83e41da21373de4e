package health

import (
	"context"
	"net"
	"sort"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// Check reports whether one dependency is usable.
type Check func(ctx context.Context) error

// Server exposes the standard gRPC health service. Every named check is a
// service of its own; the empty service name is SERVING only while all
// checks pass.
type Server struct {
	grpc     *grpc.Server
	health   *health.Server
	checks   map[string]Check
	log      *zap.Logger
	interval time.Duration
}

func NewServer(log *zap.Logger, interval time.Duration, checks map[string]Check) *Server {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	s := &Server{
		grpc:     grpc.NewServer(),
		health:   health.NewServer(),
		checks:   checks,
		log:      log,
		interval: interval,
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	reflection.Register(s.grpc)
	return s
}

// Refresh runs every check once and publishes the results.
func (s *Server) Refresh(ctx context.Context) {
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	overall := healthpb.HealthCheckResponse_SERVING
	for _, name := range names {
		cctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := s.checks[name](cctx)
		cancel()

		status := healthpb.HealthCheckResponse_SERVING
		if err != nil {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			overall = healthpb.HealthCheckResponse_NOT_SERVING
			s.log.Warn("health check failed", zap.String("check", name), zap.Error(err))
		}
		s.health.SetServingStatus(name, status)
	}
	s.health.SetServingStatus("", overall)
}

// Serve refreshes the checks periodically and serves on lis until Stop.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	s.Refresh(ctx)
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Refresh(ctx)
			}
		}
	}()
	s.log.Info("health server listening", zap.String("addr", lis.Addr().String()))
	return s.grpc.Serve(lis)
}

func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
