package dsp

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/oshokin/tone-alert/internal/domain/tone"
)

// pcmFullScale maps signed 16-bit samples onto [-1, 1).
const pcmFullScale = 32768.0

// Window shapes the block before the transform.
type Window uint8

// Supported windows.
const (
	Rectangular Window = iota
	Hann
)

var (
	// ErrShortBlock is returned when fewer than Size samples are supplied.
	ErrShortBlock = errors.New("audio block shorter than fft length")
	// ErrBadSize is returned for a non power-of-two block length.
	ErrBadSize = errors.New("fft length must be a positive power of two")
	// ErrBadSampleRate is returned for a non-positive sample rate.
	ErrBadSampleRate = errors.New("sample rate must be positive")
)

// Analyzer finds the strongest spectral bin of a block.
//
// An Analyzer keeps scratch buffers between calls, so it must not be shared
// between goroutines. The result depends only on the block passed in.
type Analyzer struct {
	sampleRate int
	size       int
	fft        *fourier.FFT
	window     []float64
	scratch    []float64
	coeffs     []complex128
}

// NewAnalyzer prepares an analyzer for size-sample blocks at sampleRate Hz.
func NewAnalyzer(sampleRate, size int, window Window) (*Analyzer, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrBadSampleRate, sampleRate)
	}

	if size <= 0 || bits.OnesCount(uint(size)) != 1 {
		return nil, fmt.Errorf("%w: %d", ErrBadSize, size)
	}

	a := &Analyzer{
		sampleRate: sampleRate,
		size:       size,
		fft:        fourier.NewFFT(size),
		scratch:    make([]float64, size),
		coeffs:     make([]complex128, size/2+1),
	}

	if window == Hann {
		a.window = make([]float64, size)
		for i := range a.window {
			a.window[i] = 0.5 * (1.0 - math.Cos(2.0*math.Pi*float64(i)/float64(size-1)))
		}
	}

	return a, nil
}

// Size returns the block length in samples.
func (a *Analyzer) Size() int {
	return a.size
}

// SampleRate returns the sample rate in Hz.
func (a *Analyzer) SampleRate() int {
	return a.sampleRate
}

// AnalyzePCM converts signed 16-bit samples and analyzes the first Size of them.
func (a *Analyzer) AnalyzePCM(samples []int16) (tone.Estimate, error) {
	if len(samples) < a.size {
		return tone.Estimate{}, fmt.Errorf("%w: got %d, want %d", ErrShortBlock, len(samples), a.size)
	}

	for i := range a.scratch {
		a.scratch[i] = float64(samples[i]) / pcmFullScale
	}

	return a.transform(), nil
}

// Analyze analyzes the first Size samples of a block already scaled to [-1, 1].
func (a *Analyzer) Analyze(samples []float64) (tone.Estimate, error) {
	if len(samples) < a.size {
		return tone.Estimate{}, fmt.Errorf("%w: got %d, want %d", ErrShortBlock, len(samples), a.size)
	}

	copy(a.scratch, samples[:a.size])

	return a.transform(), nil
}

// transform runs the FFT over scratch and picks the peak bin.
// Only bins 0..N/2 are searched: the input is real, so the upper half mirrors them.
func (a *Analyzer) transform() tone.Estimate {
	if a.window != nil {
		for i, w := range a.window {
			a.scratch[i] *= w
		}
	}

	a.coeffs = a.fft.Coefficients(a.coeffs, a.scratch)

	var (
		peakIndex     int
		peakMagnitude float64
	)

	for i, c := range a.coeffs {
		if m := cmplx.Abs(c); m > peakMagnitude {
			peakIndex, peakMagnitude = i, m
		}
	}

	frequency := float64(peakIndex) * float64(a.sampleRate) / float64(a.size)

	return tone.Estimate{
		FrequencyHz: math.Round(frequency*10) / 10,
		Magnitude:   peakMagnitude / float64(a.size),
	}
}
