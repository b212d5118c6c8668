// Package metrics exposes detector and alert-server counters to Prometheus.
//
// A nil *Metrics is valid and records nothing, so components can be built
// without an exporter.
package metrics
