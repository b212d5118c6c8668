// Package audiotest synthesizes PCM pages for tests.
package audiotest

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// Segment is one tone, or silence when Frequency is zero.
type Segment struct {
	Frequency float64
	Duration  time.Duration
}

// BinFrequency returns the centre frequency of FFT bin k, which the
// analyzer reports without leakage.
func BinFrequency(k, sampleRate, blockSize int) float64 {
	return float64(k) * float64(sampleRate) / float64(blockSize)
}

// Samples renders segments as half-scale sines at sampleRate.
func Samples(sampleRate int, segments ...Segment) []int16 {
	var out []int16

	for _, seg := range segments {
		n := int(seg.Duration.Seconds() * float64(sampleRate))
		part := make([]int16, n)

		if seg.Frequency != 0 {
			for i := range part {
				part[i] = int16(16384 * math.Sin(2*math.Pi*seg.Frequency*float64(i)/float64(sampleRate)))
			}
		}

		out = append(out, part...)
	}

	return out
}

// PCM encodes samples as signed 16-bit little-endian bytes.
func PCM(samples []int16) []byte {
	var buf bytes.Buffer

	//nolint:errcheck // bytes.Buffer writes do not fail.
	_ = binary.Write(&buf, binary.LittleEndian, samples)

	return buf.Bytes()
}

// WriteFile stores segments as a raw PCM file in a test directory.
func WriteFile(t *testing.T, sampleRate int, segments ...Segment) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "page.pcm")

	if err := os.WriteFile(path, PCM(Samples(sampleRate, segments...)), 0o600); err != nil {
		t.Fatalf("write pcm: %v", err)
	}

	return path
}
