package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// readChunkBytes is the read size used against the underlying reader.
const readChunkBytes = 8192

// ReaderSource reads raw signed 16-bit little-endian mono PCM.
type ReaderSource struct {
	reader    io.Reader
	blockSize int
	clock     func() Clock
}

// NewReaderSource streams PCM from r, stamping blocks with clock.
func NewReaderSource(r io.Reader, blockSize int, clock Clock) *ReaderSource {
	return &ReaderSource{
		reader:    r,
		blockSize: blockSize,
		clock:     func() Clock { return clock },
	}
}

// OpenStdin streams live PCM from the process standard input.
func OpenStdin(blockSize int) *ReaderSource {
	return NewReaderSource(os.Stdin, blockSize, WallClock())
}

// OpenFile replays a raw PCM file, stamping blocks by sample position so the
// whole file decodes without waiting in real time.
func OpenFile(path string, blockSize, sampleRate int) (*ReaderSource, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrSourceUnavailable, path, err)
	}

	return &ReaderSource{
		reader:    f,
		blockSize: blockSize,
		clock: func() Clock {
			return SampleClock(time.Now(), sampleRate)
		},
	}, nil
}

// readResult carries one read back to the streaming goroutine.
type readResult struct {
	samples []int16
	err     error
}

// Stream implements Source.
func (s *ReaderSource) Stream(ctx context.Context, handle func(Block)) error {
	var (
		blocker = NewBlocker(s.blockSize, s.clock())
		reads   = make(chan readResult)
		done    = make(chan struct{})
	)

	defer close(done)

	go s.readLoop(reads, done)

	for {
		select {
		case <-ctx.Done():
			return nil
		case r := <-reads:
			blocker.Push(r.samples, handle)

			if r.err == nil {
				continue
			}

			if errors.Is(r.err, io.EOF) || errors.Is(r.err, os.ErrClosed) {
				return nil
			}

			return fmt.Errorf("read pcm: %w", r.err)
		}
	}
}

// readLoop decodes samples until the reader fails or done closes.
func (s *ReaderSource) readLoop(reads chan<- readResult, done <-chan struct{}) {
	var (
		buf   = make([]byte, readChunkBytes)
		carry []byte
	)

	for {
		n, err := s.reader.Read(buf)

		data := append(carry, buf[:n]...)
		whole := len(data) &^ 1
		carry = append([]byte(nil), data[whole:]...)

		samples := make([]int16, whole/2)
		for i := range samples {
			samples[i] = int16(binary.LittleEndian.Uint16(data[2*i:]))
		}

		if len(samples) == 0 && err == nil {
			continue
		}

		select {
		case reads <- readResult{samples: samples, err: err}:
		case <-done:
			return
		}

		if err != nil {
			return
		}
	}
}

// Close closes the underlying reader when it is closable.
func (s *ReaderSource) Close() error {
	if c, ok := s.reader.(io.Closer); ok {
		return c.Close()
	}

	return nil
}
