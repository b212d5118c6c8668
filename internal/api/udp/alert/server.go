package alert

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/oshokin/tone-alert/internal/logger"
	"github.com/oshokin/tone-alert/internal/metrics"
	"github.com/oshokin/tone-alert/internal/protocol"
	"github.com/oshokin/tone-alert/internal/repository/session"
)

const (
	// DefaultHeartbeatTimeout is how long a peer may stay silent.
	DefaultHeartbeatTimeout = 15 * time.Second
	// DefaultSweepInterval is how often stale sessions are removed.
	DefaultSweepInterval = 10 * time.Second

	// maxDatagramSize fits any UDP payload.
	maxDatagramSize = 64 * 1024
)

// ErrBind is returned when the UDP endpoint cannot be opened.
var ErrBind = errors.New("alert server bind failed")

// Server is the alert distribution endpoint.
type Server struct {
	// conn is the bound UDP socket shared by receive and distribute.
	conn *net.UDPConn
	// registry holds the authenticated peers.
	registry *session.Registry
	// metrics records traffic; nil disables it.
	metrics *metrics.Metrics

	heartbeatTimeout time.Duration
	sweepInterval    time.Duration
	now              func() time.Time

	// closeOnce guards conn.Close.
	closeOnce sync.Once
}

// Option configures a Server.
type Option func(*Server)

// WithHeartbeatTimeout overrides DefaultHeartbeatTimeout.
func WithHeartbeatTimeout(timeout time.Duration) Option {
	return func(s *Server) {
		if timeout > 0 {
			s.heartbeatTimeout = timeout
		}
	}
}

// WithSweepInterval overrides DefaultSweepInterval.
func WithSweepInterval(interval time.Duration) Option {
	return func(s *Server) {
		if interval > 0 {
			s.sweepInterval = interval
		}
	}
}

// WithMetrics records traffic into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithClock replaces time.Now for the sweep.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

// Listen binds the UDP endpoint on address.
func Listen(ctx context.Context, address string, registry *session.Registry, opts ...Option) (*Server, error) {
	lc := net.ListenConfig{}

	pc, err := lc.ListenPacket(ctx, "udp", address)
	if err != nil {
		return nil, fmt.Errorf("%w: listen on %s: %w", ErrBind, address, err)
	}

	conn, ok := pc.(*net.UDPConn)
	if !ok {
		_ = pc.Close()

		return nil, fmt.Errorf("%w: %s is not a UDP address", ErrBind, address)
	}

	s := &Server{
		conn:             conn,
		registry:         registry,
		heartbeatTimeout: DefaultHeartbeatTimeout,
		sweepInterval:    DefaultSweepInterval,
		now:              time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// LocalAddr returns the bound address.
func (s *Server) LocalAddr() netip.AddrPort {
	addr, _ := s.conn.LocalAddr().(*net.UDPAddr)
	if addr == nil {
		return netip.AddrPort{}
	}

	ap := addr.AddrPort()

	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
}

// Run serves datagrams and sweeps stale sessions until ctx is cancelled or
// the socket fails. The socket is closed and both loops have exited when Run
// returns.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stop := context.AfterFunc(ctx, func() {
		_ = s.Close()
	})
	defer stop()

	logger.InfoKV(ctx, "Alert server listening",
		"listen_address", s.LocalAddr().String(),
		"heartbeat_timeout", s.heartbeatTimeout.String(),
		"sweep_interval", s.sweepInterval.String())

	var wg sync.WaitGroup

	wg.Go(func() {
		runSweeper(ctx, s.sweepInterval, s.now, s.Sweep)
	})

	err := s.receive(ctx)

	cancel()
	_ = s.Close()
	wg.Wait()

	logger.Info(ctx, "Alert server stopped")

	return err
}

// Close closes the socket. It is safe to call more than once.
func (s *Server) Close() error {
	var err error

	s.closeOnce.Do(func() {
		err = s.conn.Close()
	})

	return err
}

// Sweep removes sessions silent for longer than the heartbeat timeout.
func (s *Server) Sweep(ctx context.Context, now time.Time) []string {
	expired := s.registry.ExpireStale(now, s.heartbeatTimeout)
	if len(expired) == 0 {
		return nil
	}

	for _, identity := range expired {
		logger.InfoKV(ctx, "Peer timed out", "node_id", identity)
	}

	s.metrics.SessionsExpired(len(expired))
	s.metrics.SetSessions(s.registry.Len())

	return expired
}

// Distribute sends one TONE_REPORT to every live peer and returns how many
// datagrams were sent. A failed send does not stop the others.
func (s *Server) Distribute(ctx context.Context, frequencyA, frequencyB float64) (int, error) {
	payload, err := protocol.Encode(protocol.ToneReport{FrequencyA: frequencyA, FrequencyB: frequencyB})
	if err != nil {
		return 0, err
	}

	var (
		targets = s.registry.BroadcastTargets()
		sent    int
		errs    []error
	)

	for _, target := range targets {
		if _, err := s.conn.WriteToUDPAddrPort(payload, target); err != nil {
			s.metrics.ReportFailed()
			errs = append(errs, fmt.Errorf("send tone report to %s: %w", target, err))

			continue
		}

		s.metrics.ReportSent()
		sent++
	}

	logger.InfoKV(ctx, "Tone report distributed",
		"frequency_a", frequencyA,
		"frequency_b", frequencyB,
		"peers", len(targets),
		"sent", sent)

	return sent, errors.Join(errs...)
}

// receive reads datagrams until the socket closes.
func (s *Server) receive(ctx context.Context) error {
	buf := make([]byte, maxDatagramSize)

	for {
		n, from, err := s.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}

			return fmt.Errorf("read datagram: %w", err)
		}

		from = netip.AddrPortFrom(from.Addr().Unmap(), from.Port())
		s.handle(ctx, buf[:n], from)
	}
}

// handle dispatches one datagram. Nothing in here may stop the loop.
func (s *Server) handle(ctx context.Context, data []byte, from netip.AddrPort) {
	msg, err := protocol.Decode(data)
	if err != nil {
		s.metrics.DatagramDropped()
		logger.DebugKV(ctx, "Dropped datagram", "from", from.String(), "error", err)

		return
	}

	s.metrics.DatagramReceived(string(msg.Opcode()))

	switch m := msg.(type) {
	case protocol.Auth:
		s.authenticate(ctx, m, from)
	case protocol.Ping:
		if seq, ok := s.registry.Heartbeat(from, m.SequenceNumber); ok {
			s.reply(ctx, protocol.Pong{SequenceNumber: seq}, from)
		}
	default:
		logger.DebugKV(ctx, "Ignored datagram", "from", from.String(), "opcode", string(msg.Opcode()))
	}
}

func (s *Server) authenticate(ctx context.Context, m protocol.Auth, from netip.AddrPort) {
	result := s.registry.Authenticate(m.NodeID, m.Hash, from)
	s.metrics.Authenticated(result.String())

	var reply protocol.Message

	switch result {
	case session.AuthOK:
		s.metrics.SetSessions(s.registry.Len())
		logger.InfoKV(ctx, "Peer authenticated", "node_id", m.NodeID, "address", from.String())

		reply = protocol.AuthOK{}
	case session.AuthDuplicateIdentity:
		logger.WarnKV(ctx, "Duplicate node rejected", "node_id", m.NodeID, "address", from.String())

		reply = protocol.AuthDupeNode{}
	default:
		logger.WarnKV(ctx, "Authentication failed", "node_id", m.NodeID, "address", from.String())

		reply = protocol.AuthFail{}
	}

	s.reply(ctx, reply, from)
}

func (s *Server) reply(ctx context.Context, m protocol.Message, to netip.AddrPort) {
	payload, err := protocol.Encode(m)
	if err != nil {
		logger.ErrorKV(ctx, "Encode reply failed", "opcode", string(m.Opcode()), "error", err)

		return
	}

	if _, err := s.conn.WriteToUDPAddrPort(payload, to); err != nil {
		logger.WarnKV(ctx, "Send reply failed", "opcode", string(m.Opcode()), "to", to.String(), "error", err)
	}
}

// runSweeper calls sweep every interval until ctx is cancelled.
func runSweeper(
	ctx context.Context,
	interval time.Duration,
	now func() time.Time,
	sweep func(context.Context, time.Time) []string,
) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep(ctx, now())
		}
	}
}
