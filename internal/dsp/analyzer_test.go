package dsp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	testRate = 44100
	testSize = 4096
)

// sine returns n samples of a sine wave at freq Hz scaled to amplitude.
func sine(n int, freq, amplitude float64) []float64 {
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = amplitude * math.Sin(2*math.Pi*freq*float64(i)/testRate)
	}

	return samples
}

// binFrequency is the centre frequency of FFT bin k.
func binFrequency(k int) float64 {
	return float64(k) * testRate / testSize
}

// TestNewAnalyzer_Validates rejects sizes and rates that cannot be transformed.
func TestNewAnalyzer_Validates(t *testing.T) {
	t.Parallel()

	_, err := NewAnalyzer(testRate, 3000, Rectangular)
	require.ErrorIs(t, err, ErrBadSize)

	_, err = NewAnalyzer(0, testSize, Rectangular)
	require.ErrorIs(t, err, ErrBadSampleRate)

	a, err := NewAnalyzer(testRate, testSize, Hann)
	require.NoError(t, err)
	require.Equal(t, testSize, a.Size())
	require.Equal(t, testRate, a.SampleRate())
}

// TestAnalyze_BinCentredTone finds the exact bin and its normalised magnitude.
func TestAnalyze_BinCentredTone(t *testing.T) {
	t.Parallel()

	a, err := NewAnalyzer(testRate, testSize, Rectangular)
	require.NoError(t, err)

	freq := binFrequency(32)

	est, err := a.Analyze(sine(testSize, freq, 0.5))
	require.NoError(t, err)
	require.InDelta(t, math.Round(freq*10)/10, est.FrequencyHz, 1e-9)
	require.InDelta(t, 0.25, est.Magnitude, 1e-6)
}

// TestAnalyze_RoundsToTenthHz checks one-decimal rounding of the peak frequency.
func TestAnalyze_RoundsToTenthHz(t *testing.T) {
	t.Parallel()

	a, err := NewAnalyzer(testRate, testSize, Hann)
	require.NoError(t, err)

	// 349.0 Hz falls between bins 32 and 33, bin 32 (344.53 Hz) is closer.
	est, err := a.Analyze(sine(testSize, 349.0, 0.8))
	require.NoError(t, err)
	require.InDelta(t, 344.5, est.FrequencyHz, 1e-9)
	require.Greater(t, est.Magnitude, 0.1)
}

// TestAnalyze_Silence reports the DC bin with zero magnitude.
func TestAnalyze_Silence(t *testing.T) {
	t.Parallel()

	a, err := NewAnalyzer(testRate, testSize, Rectangular)
	require.NoError(t, err)

	est, err := a.Analyze(make([]float64, testSize))
	require.NoError(t, err)
	require.Zero(t, est.FrequencyHz)
	require.Zero(t, est.Magnitude)
}

// TestAnalyze_ShortBlock refuses partial blocks.
func TestAnalyze_ShortBlock(t *testing.T) {
	t.Parallel()

	a, err := NewAnalyzer(testRate, testSize, Rectangular)
	require.NoError(t, err)

	_, err = a.Analyze(make([]float64, testSize-1))
	require.ErrorIs(t, err, ErrShortBlock)

	_, err = a.AnalyzePCM(make([]int16, 10))
	require.ErrorIs(t, err, ErrShortBlock)
}

// TestAnalyzePCM matches the float path after 16-bit scaling.
func TestAnalyzePCM(t *testing.T) {
	t.Parallel()

	a, err := NewAnalyzer(testRate, testSize, Rectangular)
	require.NoError(t, err)

	freq := binFrequency(100)
	floats := sine(testSize, freq, 0.5)

	pcm := make([]int16, testSize)
	for i, v := range floats {
		pcm[i] = int16(math.Round(v * 32767))
	}

	est, err := a.AnalyzePCM(pcm)
	require.NoError(t, err)
	require.InDelta(t, math.Round(freq*10)/10, est.FrequencyHz, 1e-9)
	require.InDelta(t, 0.25, est.Magnitude, 1e-3)
}
