package health

import (
	"context"
	"errors"
	"fmt"
	"net"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/oshokin/tone-alert/internal/logger"
)

// Service names reported by the detector process.
const (
	// ServiceDetector is the audio pipeline.
	ServiceDetector = "detector"
	// ServiceAlert is the UDP alert endpoint.
	ServiceAlert = "alert"
)

// Server exposes grpc.health.v1.Health.
type Server struct {
	// grpcServer carries only the health service.
	grpcServer *grpc.Server
	// status tracks per-service serving state.
	status *grpchealth.Server
	// lis is the bound TCP listener.
	lis net.Listener
}

// Listen binds the health endpoint on address. Every service starts as
// NOT_SERVING until SetServing marks it.
func Listen(ctx context.Context, address string, services ...string) (*Server, error) {
	lc := net.ListenConfig{}

	lis, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", address, err)
	}

	s := &Server{
		grpcServer: grpc.NewServer(),
		status:     grpchealth.NewServer(),
		lis:        lis,
	}

	for _, service := range services {
		s.status.SetServingStatus(service, healthpb.HealthCheckResponse_NOT_SERVING)
	}

	healthpb.RegisterHealthServer(s.grpcServer, s.status)

	return s, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.lis.Addr().String()
}

// SetServing updates the reported state of service.
func (s *Server) SetServing(service string, serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}

	s.status.SetServingStatus(service, status)
}

// Run serves until ctx is cancelled, then reports every service as not
// serving and stops gracefully.
func (s *Server) Run(ctx context.Context) error {
	logger.InfoKV(ctx, "Health endpoint listening", "listen_address", s.Addr())

	// Done channel is closed after GracefulStop finishes.
	done := make(chan struct{})

	go func() {
		<-ctx.Done()
		s.status.Shutdown()
		s.grpcServer.GracefulStop()
		close(done)
	}()

	if err := s.grpcServer.Serve(s.lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serve health: %w", err)
	}

	<-done
	logger.Info(ctx, "Health endpoint stopped")

	return nil
}

// Close releases the listener of a server that never ran.
func (s *Server) Close() error {
	return s.lis.Close()
}
