// Package server implements tone-detector: it feeds an audio source through
// the detector and hands the resulting events to the console, the UDP alert
// server and the optional MQTT broker.
//
// The audio path only publishes to the event bus; every network send runs on
// a consumer goroutine.
package server
