package detector

import (
	"context"
	"fmt"

	"github.com/oshokin/tone-alert/internal/audio"
	"github.com/oshokin/tone-alert/internal/domain/tone"
	"github.com/oshokin/tone-alert/internal/dsp"
	"github.com/oshokin/tone-alert/internal/logger"
)

// Publisher receives detector events. It must not block.
type Publisher interface {
	Publish(ev tone.Event) int
}

// Detector runs the audio path: block -> estimate -> sequencer -> publisher.
type Detector struct {
	analyzer  *dsp.Analyzer
	sequencer *Sequencer
	publisher Publisher
	// onEstimate is told about every analyzed block.
	onEstimate func(tone.Estimate)
}

// Option configures a Detector.
type Option func(*Detector)

// WithEstimateHook calls fn with the estimate of every block.
func WithEstimateHook(fn func(tone.Estimate)) Option {
	return func(d *Detector) {
		d.onEstimate = fn
	}
}

// New creates a detector publishing to publisher.
func New(analyzer *dsp.Analyzer, sequencer *Sequencer, publisher Publisher, opts ...Option) *Detector {
	d := &Detector{
		analyzer:  analyzer,
		sequencer: sequencer,
		publisher: publisher,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Process analyzes one block, advances the sequencer and publishes the
// resulting events. It returns the events for callers that want them inline.
func (d *Detector) Process(ctx context.Context, block audio.Block) []tone.Event {
	est, err := d.analyzer.AnalyzePCM(block.Samples)
	if err != nil {
		logger.DebugKV(ctx, "Skipped block", "samples", len(block.Samples), "error", err)

		return nil
	}

	if d.onEstimate != nil {
		d.onEstimate(est)
	}

	events := d.sequencer.Step(est, block.At)
	for _, ev := range events {
		logger.DebugKV(ctx, "Detector event", "kind", ev.Kind.String(), "phase", d.sequencer.Phase().String())
		d.publisher.Publish(ev)
	}

	return events
}

// Run streams src through the detector until ctx is cancelled or the input
// ends. The source is closed before Run returns.
func (d *Detector) Run(ctx context.Context, src audio.Source) (err error) {
	defer func() {
		if closeErr := src.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close audio source: %w", closeErr)
		}
	}()

	logger.InfoKV(ctx, "Detector started",
		"sample_rate", d.analyzer.SampleRate(),
		"block_size", d.analyzer.Size())

	if err := src.Stream(ctx, func(block audio.Block) {
		d.Process(ctx, block)
	}); err != nil {
		return fmt.Errorf("stream audio: %w", err)
	}

	logger.Info(ctx, "Detector stopped")

	return nil
}
