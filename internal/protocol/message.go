package protocol

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

// Opcode names a message on the wire.
type Opcode string

// Known opcodes.
const (
	OpAuth         Opcode = "AUTH"
	OpAuthOK       Opcode = "AUTH_OK"
	OpAuthFail     Opcode = "AUTH_FAIL"
	OpAuthDupeNode Opcode = "AUTH_DUPE_NODE"
	OpPing         Opcode = "PING"
	OpPong         Opcode = "PONG"
	OpToneReport   Opcode = "TONE_REPORT"
)

var (
	// ErrMalformed is returned for datagrams that are not a valid message.
	ErrMalformed = errors.New("malformed datagram")
	// ErrUnknownOpcode is returned for a well-formed object with an unknown opcode.
	ErrUnknownOpcode = errors.New("unknown opcode")
)

// Message is one datagram.
type Message interface {
	// Opcode returns the wire opcode of the message.
	Opcode() Opcode
}

// Auth asks the server to register the sender.
type Auth struct {
	NodeID string
	Hash   string
}

// AuthOK confirms a new session.
type AuthOK struct{}

// AuthFail rejects a bad credential.
type AuthFail struct{}

// AuthDupeNode rejects an identity that already has a live session.
type AuthDupeNode struct{}

// Ping is a peer heartbeat.
type Ping struct {
	SequenceNumber int
}

// Pong echoes a heartbeat.
type Pong struct {
	SequenceNumber int
}

// ToneReport announces a detected tone pair.
type ToneReport struct {
	FrequencyA float64
	FrequencyB float64
}

// Opcode implements Message.
func (Auth) Opcode() Opcode { return OpAuth }

// Opcode implements Message.
func (AuthOK) Opcode() Opcode { return OpAuthOK }

// Opcode implements Message.
func (AuthFail) Opcode() Opcode { return OpAuthFail }

// Opcode implements Message.
func (AuthDupeNode) Opcode() Opcode { return OpAuthDupeNode }

// Opcode implements Message.
func (Ping) Opcode() Opcode { return OpPing }

// Opcode implements Message.
func (Pong) Opcode() Opcode { return OpPong }

// Opcode implements Message.
func (ToneReport) Opcode() Opcode { return OpToneReport }

// Wire shapes. Fields are always present for the opcodes that carry them.
type (
	opcodeOnly struct {
		Opcode Opcode `json:"opcode"`
	}

	authWire struct {
		Opcode Opcode `json:"opcode"`
		NodeID string `json:"nodeId"`
		Hash   string `json:"hash"`
	}

	sequenceWire struct {
		Opcode         Opcode `json:"opcode"`
		SequenceNumber int    `json:"sequenceNumber"`
	}

	toneReportWire struct {
		Opcode     Opcode  `json:"opcode"`
		FrequencyA float64 `json:"frequencyA"`
		FrequencyB float64 `json:"frequencyB"`
	}

	// envelope is the permissive decode target; pointers tell absent from zero.
	envelope struct {
		Opcode         *string  `json:"opcode"`
		NodeID         *string  `json:"nodeId"`
		Hash           *string  `json:"hash"`
		SequenceNumber *int     `json:"sequenceNumber"`
		FrequencyA     *float64 `json:"frequencyA"`
		FrequencyB     *float64 `json:"frequencyB"`
	}
)

// Encode renders m as a datagram payload.
func Encode(m Message) ([]byte, error) {
	var wire any

	switch msg := m.(type) {
	case Auth:
		wire = authWire{Opcode: OpAuth, NodeID: msg.NodeID, Hash: msg.Hash}
	case AuthOK, AuthFail, AuthDupeNode:
		wire = opcodeOnly{Opcode: msg.Opcode()}
	case Ping:
		wire = sequenceWire{Opcode: OpPing, SequenceNumber: msg.SequenceNumber}
	case Pong:
		wire = sequenceWire{Opcode: OpPong, SequenceNumber: msg.SequenceNumber}
	case ToneReport:
		wire = toneReportWire{Opcode: OpToneReport, FrequencyA: msg.FrequencyA, FrequencyB: msg.FrequencyB}
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownOpcode, m)
	}

	data, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Opcode(), err)
	}

	return data, nil
}

// Decode parses a datagram payload. It returns ErrMalformed when the payload
// is not an object with the fields its opcode requires and ErrUnknownOpcode
// for opcodes outside the protocol.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	if env.Opcode == nil {
		return nil, fmt.Errorf("%w: missing opcode", ErrMalformed)
	}

	switch opcode := Opcode(*env.Opcode); opcode {
	case OpAuth:
		if env.NodeID == nil || *env.NodeID == "" || env.Hash == nil {
			return nil, fmt.Errorf("%w: %s needs nodeId and hash", ErrMalformed, opcode)
		}

		return Auth{NodeID: *env.NodeID, Hash: *env.Hash}, nil
	case OpAuthOK:
		return AuthOK{}, nil
	case OpAuthFail:
		return AuthFail{}, nil
	case OpAuthDupeNode:
		return AuthDupeNode{}, nil
	case OpPing, OpPong:
		if env.SequenceNumber == nil {
			return nil, fmt.Errorf("%w: %s needs sequenceNumber", ErrMalformed, opcode)
		}

		if opcode == OpPing {
			return Ping{SequenceNumber: *env.SequenceNumber}, nil
		}

		return Pong{SequenceNumber: *env.SequenceNumber}, nil
	case OpToneReport:
		if env.FrequencyA == nil || env.FrequencyB == nil {
			return nil, fmt.Errorf("%w: %s needs frequencyA and frequencyB", ErrMalformed, opcode)
		}

		return ToneReport{FrequencyA: *env.FrequencyA, FrequencyB: *env.FrequencyB}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownOpcode, opcode)
	}
}

// HashSecret returns the lower-case hex SHA-256 of the UTF-8 secret.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))

	return hex.EncodeToString(sum[:])
}
