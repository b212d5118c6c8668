package audio

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/pion/rtp"
	"golang.org/x/net/ipv4"
)

const (
	// rtpBufferSize fits the largest UDP datagram.
	rtpBufferSize = 65536
	// rtpReadBuffer is the socket receive buffer requested for bursts.
	rtpReadBuffer = 1 << 20
)

// RTPSource receives L16 (big-endian signed 16-bit) mono audio over RTP.
type RTPSource struct {
	conn      net.PacketConn
	ssrc      uint32
	blockSize int
}

// ListenRTP binds address and joins its group when it is multicast.
// A zero ssrc accepts packets from every stream.
func ListenRTP(ctx context.Context, address string, ssrc uint32, blockSize int) (*RTPSource, error) {
	addr, err := net.ResolveUDPAddr("udp4", address)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve %s: %w", ErrSourceUnavailable, address, err)
	}

	lc := net.ListenConfig{}

	conn, err := lc.ListenPacket(ctx, "udp4", addr.String())
	if err != nil {
		return nil, fmt.Errorf("%w: listen %s: %w", ErrSourceUnavailable, address, err)
	}

	if udp, ok := conn.(*net.UDPConn); ok {
		//nolint:errcheck // The default buffer still works, just with less slack.
		_ = udp.SetReadBuffer(rtpReadBuffer)
	}

	if addr.IP.IsMulticast() {
		if err := ipv4.NewPacketConn(conn).JoinGroup(nil, &net.UDPAddr{IP: addr.IP}); err != nil {
			_ = conn.Close()

			return nil, fmt.Errorf("%w: join group %s: %w", ErrSourceUnavailable, addr.IP, err)
		}
	}

	return &RTPSource{
		conn:      conn,
		ssrc:      ssrc,
		blockSize: blockSize,
	}, nil
}

// LocalAddr returns the bound address.
func (s *RTPSource) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}

// Stream implements Source.
func (s *RTPSource) Stream(ctx context.Context, handle func(Block)) error {
	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.Close()
	})
	defer stop()

	var (
		blocker = NewBlocker(s.blockSize, WallClock())
		buf     = make([]byte, rtpBufferSize)
		packet  rtp.Packet
	)

	for {
		n, _, err := s.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}

			return fmt.Errorf("read rtp: %w", err)
		}

		if err := packet.Unmarshal(buf[:n]); err != nil {
			continue
		}

		if s.ssrc != 0 && packet.SSRC != s.ssrc {
			continue
		}

		blocker.Push(decodeL16(packet.Payload), handle)
	}
}

// Close implements Source.
func (s *RTPSource) Close() error {
	if err := s.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}

	return nil
}

// decodeL16 converts a big-endian PCM payload; an odd trailing byte is ignored.
func decodeL16(payload []byte) []int16 {
	samples := make([]int16, len(payload)/2)
	for i := range samples {
		samples[i] = int16(payload[2*i])<<8 | int16(payload[2*i+1])
	}

	return samples
}
