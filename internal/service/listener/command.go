package listener

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"syscall"
	"time"

	"github.com/oshokin/tone-alert/internal/config"
	"github.com/oshokin/tone-alert/internal/logger"
	"github.com/oshokin/tone-alert/internal/protocol"
	"github.com/oshokin/tone-alert/internal/service/action"
	"github.com/oshokin/tone-alert/internal/service/common"
)

// Options controls the listener behavior and configuration.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// ServerAddress provides an optional alert server address override.
	ServerAddress string
	// NodeID overrides the announced identity.
	NodeID string
}

// Session tunes the heartbeat loop run by Listen.
type Session struct {
	// PingInterval is the delay between heartbeats and between AUTH retries.
	PingInterval time.Duration
	// ReplyTimeout is how long the server may stay silent before the
	// listener authenticates again.
	ReplyTimeout time.Duration
	// OnAuthenticated is called after every AUTH_OK.
	OnAuthenticated func()
	// OnReport is called for every TONE_REPORT.
	OnReport func(protocol.ToneReport)
}

var (
	// ErrAuthFailed is returned when the server rejects the shared secret.
	ErrAuthFailed = errors.New("alert server rejected the credential")
	// ErrNoServerAddress indicates missing server configuration.
	ErrNoServerAddress = errors.New("no server address configured")
)

// Run connects to the alert server and listens until context is canceled.
// Loads configuration first, then applies command line overrides.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "tone-listener")

	// Load settings from configuration file, defaults when the default file is absent.
	cfg, err := config.Load(opts.ConfigPath)

	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist) && (opts.ConfigPath == "" || opts.ConfigPath == config.DefaultConfigFilename):
		cfg = config.Default()
	default:
		return fmt.Errorf("load configuration: %w", err)
	}

	if level, ok := logger.ParseLogLevel(cfg.LogLevel); ok {
		logger.SetLevel(level)
	}

	// Determine server address: command line argument overrides config.
	serverAddress := cfg.Listener.ServerAddress
	if opts.ServerAddress != "" {
		serverAddress = opts.ServerAddress
	}

	if serverAddress == "" {
		return ErrNoServerAddress
	}

	// Determine identity: flag, then config, then user@host.
	nodeID := cfg.Listener.NodeID
	if opts.NodeID != "" {
		nodeID = opts.NodeID
	}

	if nodeID == "" {
		if nodeID, err = common.DefaultNodeID(); err != nil {
			return fmt.Errorf("detect node id: %w", err)
		}
	}

	client, err := common.Dial(ctx, serverAddress, nodeID, cfg.Listener.Secret)
	if err != nil {
		return fmt.Errorf("dial server: %w", err)
	}

	logger.InfoKV(ctx, "Listening for tone reports",
		"server_address", serverAddress,
		"node_id", nodeID,
		"ping_interval", cfg.Listener.PingInterval.String())

	session := Session{
		PingInterval: cfg.Listener.PingInterval,
		ReplyTimeout: cfg.Alert.HeartbeatTimeout,
	}

	// Run the configured command for every report without stalling the heartbeat.
	if command := cfg.Listener.OnReport; len(command) > 0 {
		session.OnReport = func(report protocol.ToneReport) {
			go func() {
				if err := action.Run(ctx, command, report); err != nil {
					logger.ErrorKV(ctx, "Report command failed", "command", command[0], "error", err)
				}
			}()
		}
	}

	return Listen(ctx, client, session)
}

// Listen authenticates, keeps the session alive and reports tone pairs until
// ctx is canceled or the server rejects the credential. It closes client.
//
//nolint:cyclop // One select loop over every protocol event reads best in one place.
func Listen(ctx context.Context, client *common.Client, s Session) error {
	if s.PingInterval <= 0 {
		s.PingInterval = config.DefaultPingInterval
	}

	if s.ReplyTimeout <= 0 {
		s.ReplyTimeout = config.DefaultHeartbeatTimeout
	}

	ctx, cancel := context.WithCancel(ctx)

	messages := make(chan protocol.Message)
	readDone := make(chan error, 1)

	// Closing the socket also ends the reader.
	context.AfterFunc(ctx, func() {
		_ = client.Close()
	})

	defer func() {
		cancel()
		<-readDone
	}()

	go func() {
		readDone <- receive(ctx, client, messages)
	}()

	var (
		authenticated bool
		lastHeard     = time.Now()
	)

	authenticate(ctx, client)

	// Setup heartbeat ticker with fixed interval.
	ticker := time.NewTicker(s.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "Context canceled, exiting")

			return nil
		case err := <-readDone:
			readDone <- err

			if ctx.Err() != nil {
				return nil
			}

			return err
		case msg := <-messages:
			switch m := msg.(type) {
			case protocol.AuthOK:
				authenticated = true
				lastHeard = time.Now()

				logger.InfoKV(ctx, "Authenticated", "node_id", client.NodeID())

				if s.OnAuthenticated != nil {
					s.OnAuthenticated()
				}
			case protocol.AuthFail:
				return ErrAuthFailed
			case protocol.AuthDupeNode:
				// The previous session has to expire on the server first.
				logger.WarnKV(ctx, "Node id already has a session, retrying", "node_id", client.NodeID())
			case protocol.Pong:
				if authenticated {
					lastHeard = time.Now()
				}
			case protocol.ToneReport:
				logger.Infof(ctx, "Tone report: A = %.2f Hz, B = %.2f Hz", m.FrequencyA, m.FrequencyB)

				if s.OnReport != nil {
					s.OnReport(m)
				}
			default:
				logger.DebugKV(ctx, "Ignored message", "opcode", string(msg.Opcode()))
			}
		case <-ticker.C:
			if authenticated && time.Since(lastHeard) > s.ReplyTimeout {
				logger.WarnKV(ctx, "Server stopped answering, authenticating again",
					"silence", time.Since(lastHeard).Round(time.Millisecond).String())

				authenticated = false
			}

			if !authenticated {
				authenticate(ctx, client)

				continue
			}

			if _, err := client.Ping(); err != nil {
				logger.WarnKV(ctx, "Ping failed", "error", err)
			}
		}
	}
}

func authenticate(ctx context.Context, client *common.Client) {
	if err := client.Authenticate(); err != nil {
		logger.WarnKV(ctx, "Authentication request failed", "error", err)
	}
}

// receive forwards decoded datagrams until the socket closes.
func receive(ctx context.Context, client *common.Client, messages chan<- protocol.Message) error {
	for {
		msg, err := client.Receive()

		switch {
		case err == nil:
		case errors.Is(err, net.ErrClosed):
			return nil
		case errors.Is(err, protocol.ErrMalformed), errors.Is(err, protocol.ErrUnknownOpcode):
			logger.DebugKV(ctx, "Dropped datagram", "error", err)

			continue
		case errors.Is(err, syscall.ECONNREFUSED):
			// The server is not up yet, AUTH is retried on the next tick.
			logger.DebugKV(ctx, "Server unreachable", "error", err)

			continue
		default:
			return err
		}

		select {
		case messages <- msg:
		case <-ctx.Done():
			return nil
		}
	}
}
