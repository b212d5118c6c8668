package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oshokin/tone-alert/internal/domain/tone"
	"github.com/oshokin/tone-alert/internal/logger"
)

const (
	namespace = "tone_alert"

	// readHeaderTimeout bounds slow metric scrapers.
	readHeaderTimeout = 10 * time.Second
	// shutdownTimeout bounds the exporter shutdown.
	shutdownTimeout = 5 * time.Second
)

// Metrics holds every collector of the process.
type Metrics struct {
	registry *prometheus.Registry

	events         *prometheus.CounterVec
	matchedPairs   *prometheus.CounterVec
	peakFrequency  prometheus.Gauge
	peakMagnitude  prometheus.Gauge
	busDropped     prometheus.Counter
	datagrams      *prometheus.CounterVec
	datagramsDrop  prometheus.Counter
	authentication *prometheus.CounterVec
	expired        prometheus.Counter
	sessions       prometheus.Gauge
	reportsSent    prometheus.Counter
	reportErrors   prometheus.Counter
}

// New creates the collectors on a private registry together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detector",
			Name:      "events_total",
			Help:      "Detector events by kind.",
		}, []string{"kind"}),
		matchedPairs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detector",
			Name:      "matched_pairs_total",
			Help:      "Detected tone pairs matched to a known pager.",
		}, []string{"alias"}),
		peakFrequency: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "detector",
			Name:      "peak_frequency_hertz",
			Help:      "Dominant frequency of the last analyzed block.",
		}),
		peakMagnitude: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "detector",
			Name:      "peak_magnitude",
			Help:      "Spectral magnitude of the last analyzed block, compare with squelch.",
		}),
		busDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detector",
			Name:      "events_dropped_total",
			Help:      "Events a full consumer queue rejected.",
		}),
		datagrams: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alert",
			Name:      "datagrams_received_total",
			Help:      "Valid datagrams received by opcode.",
		}, []string{"opcode"}),
		datagramsDrop: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alert",
			Name:      "datagrams_dropped_total",
			Help:      "Malformed or unknown datagrams.",
		}),
		authentication: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alert",
			Name:      "authentications_total",
			Help:      "Authentication attempts by result.",
		}, []string{"result"}),
		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alert",
			Name:      "sessions_expired_total",
			Help:      "Sessions removed after a heartbeat timeout.",
		}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "alert",
			Name:      "sessions",
			Help:      "Live peer sessions.",
		}),
		reportsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alert",
			Name:      "tone_reports_sent_total",
			Help:      "TONE_REPORT datagrams sent.",
		}),
		reportErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alert",
			Name:      "tone_report_errors_total",
			Help:      "TONE_REPORT datagrams that failed to send.",
		}),
	}

	m.registry.MustRegister(
		m.events, m.matchedPairs, m.peakFrequency, m.peakMagnitude, m.busDropped,
		m.datagrams, m.datagramsDrop, m.authentication, m.expired, m.sessions,
		m.reportsSent, m.reportErrors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// ObserveEstimate records the spectrum peak of a block.
func (m *Metrics) ObserveEstimate(est tone.Estimate) {
	if m == nil {
		return
	}

	m.peakFrequency.Set(est.FrequencyHz)
	m.peakMagnitude.Set(est.Magnitude)
}

// ObserveEvent counts a detector event.
func (m *Metrics) ObserveEvent(ev tone.Event) {
	if m == nil {
		return
	}

	m.events.WithLabelValues(ev.Kind.String()).Inc()
}

// ObserveMatch counts a pair matched to a known pager.
func (m *Metrics) ObserveMatch(alias string) {
	if m == nil {
		return
	}

	m.matchedPairs.WithLabelValues(alias).Inc()
}

// EventDropped counts an event rejected by a full queue.
func (m *Metrics) EventDropped() {
	if m == nil {
		return
	}

	m.busDropped.Inc()
}

// DatagramReceived counts a decoded datagram.
func (m *Metrics) DatagramReceived(opcode string) {
	if m == nil {
		return
	}

	m.datagrams.WithLabelValues(opcode).Inc()
}

// DatagramDropped counts a datagram that could not be decoded.
func (m *Metrics) DatagramDropped() {
	if m == nil {
		return
	}

	m.datagramsDrop.Inc()
}

// Authenticated counts an authentication attempt.
func (m *Metrics) Authenticated(result string) {
	if m == nil {
		return
	}

	m.authentication.WithLabelValues(result).Inc()
}

// SessionsExpired counts swept sessions.
func (m *Metrics) SessionsExpired(n int) {
	if m == nil {
		return
	}

	m.expired.Add(float64(n))
}

// SetSessions records the live session count.
func (m *Metrics) SetSessions(n int) {
	if m == nil {
		return
	}

	m.sessions.Set(float64(n))
}

// ReportSent counts a delivered TONE_REPORT datagram.
func (m *Metrics) ReportSent() {
	if m == nil {
		return
	}

	m.reportsSent.Inc()
}

// ReportFailed counts a TONE_REPORT datagram that could not be sent.
func (m *Metrics) ReportFailed() {
	if m == nil {
		return
	}

	m.reportErrors.Inc()
}

// Serve exposes /metrics on address until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, address string) error {
	lc := net.ListenConfig{}

	lis, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", address, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	done := make(chan struct{})

	go func() {
		defer close(done)

		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.WarnKV(ctx, "Metrics exporter shutdown failed", "error", err)
		}
	}()

	logger.InfoKV(ctx, "Metrics exporter listening", "listen_address", lis.Addr().String())

	if err := server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve metrics: %w", err)
	}

	<-done

	return nil
}
