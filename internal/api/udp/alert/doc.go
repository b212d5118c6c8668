// Package alert implements the UDP endpoint that authenticates alert
// listeners, answers their heartbeats and distributes tone reports to them.
//
// The receive loop and the stale-session sweep run as separate goroutines and
// share the session registry, which serializes them.
package alert
