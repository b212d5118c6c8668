package tone

import (
	"fmt"
	"math"
	"time"
)

// Estimate is the dominant frequency of one audio block.
type Estimate struct {
	// FrequencyHz is the peak bin frequency rounded to 0.1 Hz.
	FrequencyHz float64
	// Magnitude is the peak bin magnitude divided by the block length.
	Magnitude float64
}

// Window is the [Min, Max] range a tone must be held for.
type Window struct {
	Min time.Duration
	Max time.Duration
}

// Contains reports whether d lies inside the window, bounds included.
func (w Window) Contains(d time.Duration) bool {
	return d >= w.Min && d <= w.Max
}

// Expired reports whether d is past the upper bound.
func (w Window) Expired(d time.Duration) bool {
	return d > w.Max
}

// Valid reports whether 0 < Min < Max.
func (w Window) Valid() bool {
	return w.Min > 0 && w.Min < w.Max
}

// Phase is the position of the sequence detector in the A-then-B protocol.
type Phase uint8

// Detector phases.
const (
	AwaitingA Phase = iota
	HoldingA
	AwaitingB
	HoldingB
)

// String implements fmt.Stringer.
func (p Phase) String() string {
	switch p {
	case AwaitingA:
		return "awaiting_a"
	case HoldingA:
		return "holding_a"
	case AwaitingB:
		return "awaiting_b"
	case HoldingB:
		return "holding_b"
	default:
		return fmt.Sprintf("phase(%d)", uint8(p))
	}
}

// Kind identifies an Event.
type Kind uint8

// Event kinds.
const (
	FrequencyADetected Kind = iota + 1
	FrequencyBDetected
	PairDetected
	DetectionTimeout
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case FrequencyADetected:
		return "frequency_a_detected"
	case FrequencyBDetected:
		return "frequency_b_detected"
	case PairDetected:
		return "tone_pair_detected"
	case DetectionTimeout:
		return "detection_timeout"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Timeout reasons carried by DetectionTimeout events.
const (
	ReasonToneATimeout = "Timeout: No A tone detected in expected time frame."
	ReasonToneBTimeout = "Timeout: No B tone detected in expected time frame."
)

// Event is a detector output.
//
// FrequencyADetected sets FrequencyA, FrequencyBDetected sets FrequencyB,
// PairDetected sets both and DetectionTimeout sets Reason.
type Event struct {
	Kind       Kind
	FrequencyA float64
	FrequencyB float64
	Reason     string
	At         time.Time
}

// String renders the event the way the console reports it.
func (e Event) String() string {
	switch e.Kind {
	case FrequencyADetected:
		return fmt.Sprintf("Detected Frequency A: %.2f Hz", e.FrequencyA)
	case FrequencyBDetected:
		return fmt.Sprintf("Detected Frequency B: %.2f Hz", e.FrequencyB)
	case PairDetected:
		return fmt.Sprintf("Complete Tone Pair Detected: A = %.2f Hz, B = %.2f Hz", e.FrequencyA, e.FrequencyB)
	case DetectionTimeout:
		return e.Reason
	default:
		return e.Kind.String()
	}
}

// Pair is a known pager address.
type Pair struct {
	Alias string
	ToneA float64
	ToneB float64
}

// String implements fmt.Stringer.
func (p Pair) String() string {
	return fmt.Sprintf("%s: A=%g Hz, B=%g Hz", p.Alias, p.ToneA, p.ToneB)
}

// Catalog matches detected pairs against known pagers.
type Catalog struct {
	pairs     []Pair
	tolerance float64
}

// NewCatalog copies pairs into a catalog matching within tolerance Hz.
func NewCatalog(pairs []Pair, tolerance float64) *Catalog {
	return &Catalog{
		pairs:     append([]Pair(nil), pairs...),
		tolerance: tolerance,
	}
}

// Match returns the first known pair whose tones are both within tolerance.
func (c *Catalog) Match(frequencyA, frequencyB float64) (Pair, bool) {
	if c == nil {
		return Pair{}, false
	}

	for _, p := range c.pairs {
		if math.Abs(p.ToneA-frequencyA) <= c.tolerance && math.Abs(p.ToneB-frequencyB) <= c.tolerance {
			return p, true
		}
	}

	return Pair{}, false
}

// Len returns the number of known pairs.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}

	return len(c.pairs)
}
