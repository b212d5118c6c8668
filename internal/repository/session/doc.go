// Package session keeps the registry of authenticated alert listeners.
//
// Sessions are keyed by peer identity, which is unique across live sessions;
// a second AUTH for a live identity is rejected rather than superseding the
// existing one. Heartbeats are matched by source address. Every method is
// safe for concurrent use, so the receive loop, the expiry sweep and the
// tone-report fan-out can share one Registry.
package session
