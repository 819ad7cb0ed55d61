// Package grpchealth runs a gRPC server exposing the standard health service
// and reflection, so orchestrators can probe services over gRPC.
package grpchealth

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

type Server struct {
	GRPC    *grpc.Server
	health  *health.Server
	service string
	log     *zap.Logger
}

// New registers health and reflection on a fresh grpc.Server. service is the
// name reported alongside the overall ("") status.
func New(service string, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	srv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	s := &Server{GRPC: srv, health: hs, service: service, log: log}
	s.SetServing(false)
	return s
}

// SetServing flips both the overall and the named service status.
func (s *Server) SetServing(ok bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	if s.service != "" {
		s.health.SetServingStatus(s.service, status)
	}
}

// Serve blocks serving on lis.
func (s *Server) Serve(lis net.Listener) error {
	s.log.Info("grpc server starting", zap.String("addr", lis.Addr().String()))
	return s.GRPC.Serve(lis)
}

// ListenAndServe listens on addr and serves until Shutdown.
func (s *Server) ListenAndServe(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(lis)
}

// Shutdown marks the service as not serving and drains in-flight calls,
// forcing a stop once ctx expires.
func (s *Server) Shutdown(ctx context.Context) {
	s.health.Shutdown()
	done := make(chan struct{})
	go func() {
		s.GRPC.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.GRPC.Stop()
	}
}

// Probe returns a readiness function that reports whether status checks
// succeeded within timeout.
func Probe(check func(context.Context) error, timeout time.Duration) func() error {
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return check(ctx)
	}
}
