package integration

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/oshokin/tone-alert/internal/audio"
	"github.com/oshokin/tone-alert/internal/audio/audiotest"
	"github.com/oshokin/tone-alert/internal/config"
	"github.com/oshokin/tone-alert/internal/protocol"
	"github.com/oshokin/tone-alert/internal/service/common"
	"github.com/oshokin/tone-alert/internal/service/listener"
	"github.com/oshokin/tone-alert/internal/service/server"
)

const (
	testSecret = "integration-secret"
	testWait   = 5 * time.Second
)

// pageSegments is a bin-centred page the analyzer reports as 344.5 / 430.7 Hz.
func pageSegments() []audiotest.Segment {
	rate, block := config.DefaultSampleRate, config.DefaultBlockSize

	return []audiotest.Segment{
		{Frequency: audiotest.BinFrequency(32, rate, block), Duration: time.Second},
		{Frequency: audiotest.BinFrequency(40, rate, block), Duration: 3 * time.Second},
		{Duration: time.Second},
	}
}

func alertConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.Default()
	cfg.Alert.Enabled = true
	cfg.Alert.Secret = testSecret
	cfg.Alert.ListenAddress = "127.0.0.1:0"
	cfg.Health.ListenAddress = "127.0.0.1:0"
	require.NoError(t, config.Validate(cfg))

	return cfg
}

// startService runs a detector fed from the returned writer.
func startService(t *testing.T) (*server.Service, *io.PipeWriter, <-chan error) {
	t.Helper()

	reader, writer := io.Pipe()
	t.Cleanup(func() {
		_ = writer.Close()
	})

	src := audio.NewReaderSource(reader, config.DefaultBlockSize,
		audio.SampleClock(time.Now(), config.DefaultSampleRate))

	svc, err := server.New(t.Context(), alertConfig(t), server.WithSource(src))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	done := make(chan error, 1)

	go func() {
		done <- svc.Run(ctx)
	}()

	return svc, writer, done
}

// startListener runs a listener session against the service.
func startListener(t *testing.T, svc *server.Service, nodeID, secret string, session listener.Session) <-chan error {
	t.Helper()

	client, err := common.Dial(t.Context(), svc.AlertAddr().String(), nodeID, secret)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	done := make(chan error, 1)

	go func() {
		done <- listener.Listen(ctx, client, session)
	}()

	return done
}

func waitSignal(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()

	select {
	case <-ch:
	case <-time.After(testWait):
		t.Fatalf("timed out waiting for %s", what)
	}
}

// TestPipeline_PageReachesListener decodes a page and delivers it to an authenticated listener.
func TestPipeline_PageReachesListener(t *testing.T) {
	t.Parallel()

	svc, writer, serviceDone := startService(t)

	authenticated := make(chan struct{}, 1)
	reports := make(chan protocol.ToneReport, 4)

	startListener(t, svc, "station-1", testSecret, listener.Session{
		PingInterval: 50 * time.Millisecond,
		OnAuthenticated: func() {
			select {
			case authenticated <- struct{}{}:
			default:
			}
		},
		OnReport: func(r protocol.ToneReport) { reports <- r },
	})

	waitSignal(t, authenticated, "authentication")

	// The alert endpoint reports SERVING while the detector runs.
	conn, err := grpc.NewClient(svc.HealthAddr(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
	})

	resp, err := healthpb.NewHealthClient(conn).Check(t.Context(), &healthpb.HealthCheckRequest{Service: "alert"})
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	// Play the page, then end the input.
	_, err = writer.Write(audiotest.PCM(audiotest.Samples(config.DefaultSampleRate, pageSegments()...)))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	select {
	case r := <-reports:
		require.InDelta(t, 344.5, r.FrequencyA, 1e-9)
		require.InDelta(t, 430.7, r.FrequencyB, 1e-9)
	case <-time.After(testWait):
		t.Fatal("no tone report received")
	}

	select {
	case err := <-serviceDone:
		require.NoError(t, err)
	case <-time.After(testWait):
		t.Fatal("service did not stop at the end of the input")
	}
}

// TestPipeline_AuthPolicies covers duplicate identities and bad secrets over the wire.
func TestPipeline_AuthPolicies(t *testing.T) {
	t.Parallel()

	svc, _, _ := startService(t)

	first := make(chan struct{}, 1)
	startListener(t, svc, "station-1", testSecret, listener.Session{
		PingInterval:    50 * time.Millisecond,
		OnAuthenticated: func() { first <- struct{}{} },
	})
	waitSignal(t, first, "first authentication")

	// Same identity from another socket keeps retrying and is never accepted
	// while the first session is alive.
	duplicate := make(chan struct{}, 1)
	startListener(t, svc, "station-1", testSecret, listener.Session{
		PingInterval:    20 * time.Millisecond,
		OnAuthenticated: func() { duplicate <- struct{}{} },
	})

	select {
	case <-duplicate:
		t.Fatal("duplicate identity was accepted")
	case <-time.After(300 * time.Millisecond):
	}

	// A wrong secret ends the session immediately.
	rejected := startListener(t, svc, "station-2", "wrong", listener.Session{PingInterval: time.Hour})

	select {
	case err := <-rejected:
		require.ErrorIs(t, err, listener.ErrAuthFailed)
	case <-time.After(testWait):
		t.Fatal("bad secret was not rejected")
	}
}

// TestRun_FromSettingsFile runs the tone-detector command on a recorded page.
func TestRun_FromSettingsFile(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Audio.Source = config.SourceFile
	cfg.Audio.Path = audiotest.WriteFile(t, config.DefaultSampleRate, pageSegments()...)

	cfgPath := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, config.Save(cfgPath, cfg))

	done := make(chan error, 1)

	go func() {
		done <- server.Run(t.Context(), &server.Options{ConfigPath: cfgPath})
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(testWait):
		t.Fatal("tone-detector did not stop at the end of the file")
	}
}
