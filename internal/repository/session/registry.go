package session

import (
	"crypto/subtle"
	"net/netip"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oshokin/tone-alert/internal/protocol"
)

// AuthResult is the outcome of Authenticate.
type AuthResult uint8

// Authentication outcomes.
const (
	AuthOK AuthResult = iota
	AuthFailed
	AuthDuplicateIdentity
)

// String implements fmt.Stringer.
func (r AuthResult) String() string {
	switch r {
	case AuthOK:
		return "ok"
	case AuthFailed:
		return "failed"
	case AuthDuplicateIdentity:
		return "duplicate_identity"
	default:
		return "unknown"
	}
}

// Session is one registered alert listener.
type Session struct {
	// ID distinguishes successive sessions of the same identity in logs.
	ID uuid.UUID
	// Identity is the node id the peer authenticated with.
	Identity string
	// Address is where tone reports are sent.
	Address netip.AddrPort
	// Created is when the session was authenticated.
	Created time.Time
	// LastHeartbeat is when the peer was last heard from.
	LastHeartbeat time.Time
}

// Registry holds the live sessions.
type Registry struct {
	// expectedHash is the credential every peer must present.
	expectedHash string
	// now is the clock used for new sessions and heartbeats.
	now func() time.Time

	// mu guards the maps below.
	mu sync.Mutex
	// byIdentity is the primary index.
	byIdentity map[string]*Session
	// byAddress lists the identities registered from each address.
	byAddress map[netip.AddrPort]map[string]struct{}
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// NewRegistry creates an empty registry accepting peers that know secret.
func NewRegistry(secret string, opts ...Option) *Registry {
	r := &Registry{
		expectedHash: protocol.HashSecret(secret),
		now:          time.Now,
		byIdentity:   make(map[string]*Session),
		byAddress:    make(map[netip.AddrPort]map[string]struct{}),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Authenticate checks the credential and registers identity at address.
// A live identity is never replaced, whatever address the new request uses.
func (r *Registry) Authenticate(identity, credentialHash string, address netip.AddrPort) AuthResult {
	if subtle.ConstantTimeCompare([]byte(credentialHash), []byte(r.expectedHash)) != 1 {
		return AuthFailed
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byIdentity[identity]; exists {
		return AuthDuplicateIdentity
	}

	now := r.now()

	r.byIdentity[identity] = &Session{
		ID:            uuid.New(),
		Identity:      identity,
		Address:       address,
		Created:       now,
		LastHeartbeat: now,
	}

	identities, ok := r.byAddress[address]
	if !ok {
		identities = make(map[string]struct{})
		r.byAddress[address] = identities
	}

	identities[identity] = struct{}{}

	return AuthOK
}

// Heartbeat refreshes every session registered from address and reports
// whether any was found. The caller echoes sequenceNumber only when it was.
func (r *Registry) Heartbeat(address netip.AddrPort, sequenceNumber int) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	identities := r.byAddress[address]
	if len(identities) == 0 {
		return 0, false
	}

	now := r.now()
	for identity := range identities {
		r.byIdentity[identity].LastHeartbeat = now
	}

	return sequenceNumber, true
}

// ExpireStale removes every session silent for longer than timeout and
// returns their identities sorted.
func (r *Registry) ExpireStale(now time.Time, timeout time.Duration) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var expired []string

	for identity, s := range r.byIdentity {
		if now.Sub(s.LastHeartbeat) > timeout {
			expired = append(expired, identity)
		}
	}

	for _, identity := range expired {
		r.removeLocked(identity)
	}

	slices.Sort(expired)

	return expired
}

// BroadcastTargets returns a snapshot of distinct session addresses in
// authentication order.
func (r *Registry) BroadcastTargets() []netip.AddrPort {
	sessions := r.Sessions()

	targets := make([]netip.AddrPort, 0, len(sessions))
	seen := make(map[netip.AddrPort]struct{}, len(sessions))

	for _, s := range sessions {
		if _, dup := seen[s.Address]; dup {
			continue
		}

		seen[s.Address] = struct{}{}
		targets = append(targets, s.Address)
	}

	return targets
}

// Sessions returns copies of the live sessions in authentication order.
func (r *Registry) Sessions() []Session {
	r.mu.Lock()

	sessions := make([]Session, 0, len(r.byIdentity))
	for _, s := range r.byIdentity {
		sessions = append(sessions, *s)
	}

	r.mu.Unlock()

	slices.SortFunc(sessions, func(a, b Session) int {
		if c := a.Created.Compare(b.Created); c != 0 {
			return c
		}

		return strings.Compare(a.Identity, b.Identity)
	})

	return sessions
}

// Lookup returns a copy of the session for identity.
func (r *Registry) Lookup(identity string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byIdentity[identity]
	if !ok {
		return Session{}, false
	}

	return *s, true
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.byIdentity)
}

func (r *Registry) removeLocked(identity string) {
	s, ok := r.byIdentity[identity]
	if !ok {
		return
	}

	delete(r.byIdentity, identity)

	identities := r.byAddress[s.Address]
	delete(identities, identity)

	if len(identities) == 0 {
		delete(r.byAddress, s.Address)
	}
}
