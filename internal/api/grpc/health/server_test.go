package health

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// TestServer_Check reports per-service status over a real connection.
func TestServer_Check(t *testing.T) {
	t.Parallel()

	server, err := Listen(t.Context(), "127.0.0.1:0", ServiceDetector, ServiceAlert)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- server.Run(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})

	conn, err := grpc.NewClient(server.Addr(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
	})

	client := healthpb.NewHealthClient(conn)

	check := func(service string) healthpb.HealthCheckResponse_ServingStatus {
		t.Helper()

		resp, err := client.Check(t.Context(), &healthpb.HealthCheckRequest{Service: service})
		require.NoError(t, err)

		return resp.GetStatus()
	}

	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(ServiceAlert))

	server.SetServing(ServiceAlert, true)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, check(ServiceAlert))
	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(ServiceDetector))

	server.SetServing(ServiceAlert, false)
	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(ServiceAlert))

	_, err = client.Check(t.Context(), &healthpb.HealthCheckRequest{Service: "unknown"})
	require.Equal(t, codes.NotFound, status.Code(err))
}
