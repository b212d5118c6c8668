package detector

import (
	"time"

	"github.com/oshokin/tone-alert/internal/domain/tone"
)

// Sequencer enforces the "A held in window, then B held in window" protocol.
//
// It is not safe for concurrent use; the audio path owns it.
type Sequencer struct {
	squelch float64
	toneA   tone.Window
	toneB   tone.Window

	phase     tone.Phase
	holdStart time.Time
	lastA     float64
}

// NewSequencer creates a sequencer in the AwaitingA phase.
func NewSequencer(squelch float64, toneA, toneB tone.Window) *Sequencer {
	return &Sequencer{
		squelch: squelch,
		toneA:   toneA,
		toneB:   toneB,
		phase:   tone.AwaitingA,
	}
}

// Phase returns the current phase.
func (s *Sequencer) Phase() tone.Phase {
	return s.phase
}

// Step advances the machine with the estimate of a block that arrived at at.
// It returns the events produced by this step, in emission order.
func (s *Sequencer) Step(est tone.Estimate, at time.Time) []tone.Event {
	if est.Magnitude <= s.squelch {
		// A dropout while holding A is not a reset, only B can time out on silence.
		if s.phase == tone.HoldingB && s.toneB.Expired(at.Sub(s.holdStart)) {
			s.reset()

			return []tone.Event{timeout(tone.ReasonToneBTimeout, at)}
		}

		return nil
	}

	switch s.phase {
	case tone.AwaitingA:
		s.phase = tone.HoldingA
		s.holdStart = at

		return nil

	case tone.HoldingA:
		elapsed := at.Sub(s.holdStart)

		switch {
		case s.toneA.Contains(elapsed):
			// The B window opens the moment A is confirmed, not at B's onset.
			s.lastA = est.FrequencyHz
			s.phase = tone.HoldingB
			s.holdStart = at

			return []tone.Event{{Kind: tone.FrequencyADetected, FrequencyA: est.FrequencyHz, At: at}}
		case s.toneA.Expired(elapsed):
			s.reset()

			return []tone.Event{timeout(tone.ReasonToneATimeout, at)}
		default:
			return nil
		}

	case tone.AwaitingB, tone.HoldingB:
		elapsed := at.Sub(s.holdStart)

		switch {
		case s.toneB.Contains(elapsed):
			frequencyA := s.lastA
			s.reset()

			return []tone.Event{
				{Kind: tone.FrequencyBDetected, FrequencyB: est.FrequencyHz, At: at},
				{Kind: tone.PairDetected, FrequencyA: frequencyA, FrequencyB: est.FrequencyHz, At: at},
			}
		case s.toneB.Expired(elapsed):
			s.reset()

			return []tone.Event{timeout(tone.ReasonToneBTimeout, at)}
		default:
			return nil
		}
	}

	return nil
}

// reset returns to AwaitingA with the hold timer stopped.
func (s *Sequencer) reset() {
	s.phase = tone.AwaitingA
	s.holdStart = time.Time{}
}

func timeout(reason string, at time.Time) tone.Event {
	return tone.Event{Kind: tone.DetectionTimeout, Reason: reason, At: at}
}
