// Package integration runs the detector, the alert server and listeners
// together over loopback sockets.
package integration
