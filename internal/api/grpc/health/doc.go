// Package health serves the standard gRPC health checking protocol so
// supervisors can probe the detector and its alert endpoint.
package health
