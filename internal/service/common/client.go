//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/oshokin/tone-alert/internal/protocol"
)

// maxDatagramSize fits any UDP payload.
const maxDatagramSize = 64 * 1024

var (
	// errAddressRequired is returned when a required address value is missing.
	errAddressRequired = errors.New("address must be provided")
	// errNodeIDRequired is returned when the listener has no identity.
	errNodeIDRequired = errors.New("node id must be provided")
)

// Client speaks the alert protocol to one server over a connected UDP socket.
type Client struct {
	// conn only exchanges datagrams with the server.
	conn *net.UDPConn
	// nodeID is the identity announced in AUTH.
	nodeID string
	// hash is the credential announced in AUTH.
	hash string
	// sequence is the last PING sequence number sent.
	sequence int
	// buf receives one datagram.
	buf []byte
}

// Dial connects to the alert server at address as nodeID.
func Dial(ctx context.Context, address, nodeID, secret string) (*Client, error) {
	if address == "" {
		return nil, errAddressRequired
	}

	if nodeID == "" {
		return nil, errNodeIDRequired
	}

	var dialer net.Dialer

	conn, err := dialer.DialContext(ctx, "udp", address)
	if err != nil {
		return nil, fmt.Errorf("dial alert server: %w", err)
	}

	udp, ok := conn.(*net.UDPConn)
	if !ok {
		_ = conn.Close()

		return nil, fmt.Errorf("dial alert server: %s is not a UDP address", address)
	}

	return &Client{
		conn:   udp,
		nodeID: nodeID,
		hash:   protocol.HashSecret(secret),
		buf:    make([]byte, maxDatagramSize),
	}, nil
}

// NodeID returns the announced identity.
func (c *Client) NodeID() string {
	return c.nodeID
}

// LocalAddr returns the local socket address.
func (c *Client) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// Close releases the socket; a blocked Receive returns net.ErrClosed.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}

	return c.conn.Close()
}

// Authenticate sends AUTH.
func (c *Client) Authenticate() error {
	return c.send(protocol.Auth{NodeID: c.nodeID, Hash: c.hash})
}

// Ping sends the next heartbeat and returns its sequence number.
func (c *Client) Ping() (int, error) {
	c.sequence++

	return c.sequence, c.send(protocol.Ping{SequenceNumber: c.sequence})
}

// Receive blocks for the next datagram from the server. Undecodable
// datagrams are returned as errors wrapping protocol.ErrMalformed or
// protocol.ErrUnknownOpcode, which callers are expected to skip.
func (c *Client) Receive() (protocol.Message, error) {
	n, err := c.conn.Read(c.buf)
	if err != nil {
		return nil, fmt.Errorf("receive: %w", err)
	}

	return protocol.Decode(c.buf[:n])
}

func (c *Client) send(m protocol.Message) error {
	payload, err := protocol.Encode(m)
	if err != nil {
		return err
	}

	if _, err := c.conn.Write(payload); err != nil {
		return fmt.Errorf("send %s: %w", m.Opcode(), err)
	}

	return nil
}
