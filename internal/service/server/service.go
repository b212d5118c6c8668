package server

import (
	"context"
	"fmt"
	"net/netip"
	"sync"

	"github.com/oshokin/tone-alert/internal/api/grpc/health"
	"github.com/oshokin/tone-alert/internal/api/udp/alert"
	"github.com/oshokin/tone-alert/internal/audio"
	"github.com/oshokin/tone-alert/internal/config"
	"github.com/oshokin/tone-alert/internal/detector"
	"github.com/oshokin/tone-alert/internal/domain/tone"
	"github.com/oshokin/tone-alert/internal/dsp"
	"github.com/oshokin/tone-alert/internal/event"
	"github.com/oshokin/tone-alert/internal/logger"
	"github.com/oshokin/tone-alert/internal/metrics"
	"github.com/oshokin/tone-alert/internal/notify/mqtt"
	"github.com/oshokin/tone-alert/internal/repository/session"
)

// Service is one running detector with its optional endpoints.
type Service struct {
	cfg *config.Config

	// metrics is always collected, cfg.Metrics decides whether it is served.
	metrics *metrics.Metrics
	catalog *tone.Catalog
	bus     *event.Bus

	// console and pairs are the two bus subscriptions.
	console <-chan tone.Event
	pairs   <-chan tone.Event

	detector *detector.Detector
	source   audio.Source

	// Optional components, nil when disabled.
	alert     *alert.Server
	health    *health.Server
	publisher *mqtt.Publisher
}

// Option configures a Service.
type Option func(*Service)

// WithSource replaces the configured audio source.
func WithSource(src audio.Source) Option {
	return func(s *Service) {
		s.source = src
	}
}

// New acquires every resource the configuration asks for. Bind and capture
// failures are returned here rather than at Run.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (svc *Service, err error) {
	s := &Service{
		cfg:     cfg,
		metrics: metrics.New(),
		catalog: tone.NewCatalog(pairs(cfg.Tones), cfg.Tolerance),
	}

	for _, opt := range opts {
		opt(s)
	}

	// Release whatever was acquired when a later step fails.
	defer func() {
		if err != nil {
			s.release()
		}
	}()

	analyzer, err := dsp.NewAnalyzer(cfg.Audio.SampleRate, cfg.Audio.BlockSize, fftWindow(cfg.Audio.Window))
	if err != nil {
		return nil, fmt.Errorf("create analyzer: %w", err)
	}

	if s.source == nil {
		if s.source, err = openSource(ctx, cfg.Audio); err != nil {
			return nil, err
		}
	}

	if cfg.Alert.Enabled {
		registry := session.NewRegistry(cfg.Alert.Secret)

		s.alert, err = alert.Listen(ctx, cfg.Alert.ListenAddress, registry,
			alert.WithHeartbeatTimeout(cfg.Alert.HeartbeatTimeout),
			alert.WithSweepInterval(cfg.Alert.SweepInterval),
			alert.WithMetrics(s.metrics))
		if err != nil {
			return nil, err
		}
	}

	if cfg.Health.ListenAddress != "" {
		s.health, err = health.Listen(ctx, cfg.Health.ListenAddress, health.ServiceDetector, health.ServiceAlert)
		if err != nil {
			return nil, fmt.Errorf("health endpoint: %w", err)
		}
	}

	if cfg.MQTT.Broker != "" {
		s.publisher, err = mqtt.Connect(ctx, cfg.MQTT)
		if err != nil {
			return nil, fmt.Errorf("mqtt: %w", err)
		}
	}

	s.bus = event.NewBus(event.WithDropHook(func(ev tone.Event) {
		s.metrics.EventDropped()
		logger.WarnKV(ctx, "Event queue full, event dropped", "kind", ev.Kind.String())
	}))
	s.console, _ = s.bus.Subscribe(cfg.Detector.QueueSize)
	s.pairs, _ = s.bus.Subscribe(cfg.Detector.QueueSize)

	sequencer := detector.NewSequencer(
		cfg.Detector.Squelch,
		tone.Window(cfg.Detector.ToneA),
		tone.Window(cfg.Detector.ToneB),
	)
	s.detector = detector.New(analyzer, sequencer, s.bus, detector.WithEstimateHook(s.metrics.ObserveEstimate))

	return s, nil
}

// AlertAddr returns the bound alert address, or the zero value when the
// alert server is disabled.
func (s *Service) AlertAddr() netip.AddrPort {
	if s.alert == nil {
		return netip.AddrPort{}
	}

	return s.alert.LocalAddr()
}

// HealthAddr returns the bound health address, or "" when disabled.
func (s *Service) HealthAddr() string {
	if s.health == nil {
		return ""
	}

	return s.health.Addr()
}

// Metrics returns the collectors of the service.
func (s *Service) Metrics() *metrics.Metrics {
	return s.metrics
}

// Run detects until ctx is cancelled or the audio input ends. Queued events
// are still delivered after the input ends; the endpoints stop afterwards.
func (s *Service) Run(ctx context.Context) error {
	serveCtx, stopServing := context.WithCancel(ctx)
	defer stopServing()

	var servers sync.WaitGroup

	if address := s.cfg.Metrics.ListenAddress; address != "" {
		servers.Go(func() {
			if err := s.metrics.Serve(serveCtx, address); err != nil {
				logger.ErrorKV(ctx, "Metrics exporter failed", "error", err)
			}
		})
	}

	if s.alert != nil {
		servers.Go(func() {
			s.setServing(health.ServiceAlert, true)
			defer s.setServing(health.ServiceAlert, false)

			if err := s.alert.Run(serveCtx); err != nil {
				logger.ErrorKV(ctx, "Alert server failed", "error", err)
			}
		})
	}

	if s.health != nil {
		servers.Go(func() {
			if err := s.health.Run(serveCtx); err != nil {
				logger.ErrorKV(ctx, "Health endpoint failed", "error", err)
			}
		})
	}

	var consumers sync.WaitGroup

	consumers.Go(func() {
		s.report(ctx, s.console)
	})
	consumers.Go(func() {
		s.distribute(ctx, s.pairs)
	})

	logger.InfoKV(ctx, "Tone detector running",
		"source", s.cfg.Audio.Source,
		"known_pairs", s.catalog.Len(),
		"alert_enabled", s.alert != nil)

	s.setServing(health.ServiceDetector, true)
	err := s.detector.Run(ctx, s.source)
	s.setServing(health.ServiceDetector, false)

	// Closing the bus lets both consumers drain and return.
	s.bus.Close()
	consumers.Wait()

	stopServing()
	servers.Wait()

	s.publisher.Close()

	return err
}

// report logs every event and names matched pagers.
func (s *Service) report(ctx context.Context, events <-chan tone.Event) {
	for ev := range events {
		s.metrics.ObserveEvent(ev)
		logger.Info(ctx, ev.String())

		if ev.Kind != tone.PairDetected {
			continue
		}

		if pair, ok := s.catalog.Match(ev.FrequencyA, ev.FrequencyB); ok {
			s.metrics.ObserveMatch(pair.Alias)
			logger.InfoKV(ctx, "Alert matched", "alias", pair.Alias, "tone_a", pair.ToneA, "tone_b", pair.ToneB)
		} else if s.catalog.Len() > 0 {
			logger.InfoKV(ctx, "Unknown tone pair", "frequency_a", ev.FrequencyA, "frequency_b", ev.FrequencyB)
		}
	}
}

// distribute forwards every tone pair to the alert peers and the broker.
func (s *Service) distribute(ctx context.Context, events <-chan tone.Event) {
	// Pairs queued before shutdown are still delivered.
	sendCtx := context.WithoutCancel(ctx)

	for ev := range events {
		if ev.Kind != tone.PairDetected {
			continue
		}

		if s.alert != nil {
			if _, err := s.alert.Distribute(sendCtx, ev.FrequencyA, ev.FrequencyB); err != nil {
				logger.WarnKV(ctx, "Tone report not delivered to every peer", "error", err)
			}
		}

		if s.publisher != nil {
			pair, _ := s.catalog.Match(ev.FrequencyA, ev.FrequencyB)

			if err := s.publisher.PublishPair(sendCtx, ev, pair.Alias); err != nil {
				logger.WarnKV(ctx, "MQTT publish failed", "error", err)
			}
		}
	}
}

func (s *Service) setServing(service string, serving bool) {
	if s.health != nil {
		s.health.SetServing(service, serving)
	}
}

// release closes resources acquired by a New that failed half way.
func (s *Service) release() {
	if s.source != nil {
		_ = s.source.Close()
	}

	if s.alert != nil {
		_ = s.alert.Close()
	}

	if s.health != nil {
		_ = s.health.Close()
	}

	s.publisher.Close()
}

// openSource opens the capture resource named by a.
func openSource(ctx context.Context, a config.Audio) (audio.Source, error) {
	switch a.Source {
	case config.SourceFile:
		src, err := audio.OpenFile(a.Path, a.BlockSize, a.SampleRate)
		if err != nil {
			return nil, err
		}

		return src, nil
	case config.SourceRTP:
		src, err := audio.ListenRTP(ctx, a.RTPAddress, a.RTPSSRC, a.BlockSize)
		if err != nil {
			return nil, err
		}

		return src, nil
	default:
		return audio.OpenStdin(a.BlockSize), nil
	}
}

func fftWindow(name string) dsp.Window {
	if name == config.WindowHann {
		return dsp.Hann
	}

	return dsp.Rectangular
}

func pairs(entries []config.TonePair) []tone.Pair {
	out := make([]tone.Pair, 0, len(entries))
	for _, e := range entries {
		out = append(out, tone.Pair{Alias: e.Alias, ToneA: e.ToneA, ToneB: e.ToneB})
	}

	return out
}
