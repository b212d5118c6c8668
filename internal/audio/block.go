package audio

import (
	"context"
	"errors"
	"time"
)

// ErrSourceUnavailable wraps every failure to acquire a capture resource.
var ErrSourceUnavailable = errors.New("audio source unavailable")

// Block is one FFT-sized run of samples.
type Block struct {
	// Samples holds exactly the configured block size.
	Samples []int16
	// At is when the last sample of the block was captured.
	At time.Time
}

// Source streams blocks to a handler.
type Source interface {
	// Stream calls handle for every complete block, in order, from a single
	// goroutine. It returns when ctx is cancelled or the input ends and never
	// calls handle after returning.
	Stream(ctx context.Context, handle func(Block)) error
	// Close releases the capture resource.
	Close() error
}

// Clock stamps a block given the total number of samples consumed so far.
type Clock func(consumed int64) time.Time

// WallClock stamps blocks with their arrival time, for live input.
func WallClock() Clock {
	return func(int64) time.Time {
		return time.Now()
	}
}

// SampleClock stamps blocks by their position in the stream, for replayed input.
func SampleClock(start time.Time, sampleRate int) Clock {
	return func(consumed int64) time.Time {
		return start.Add(time.Duration(consumed * int64(time.Second) / int64(sampleRate)))
	}
}

// Blocker cuts an arbitrary sample stream into blocks.
type Blocker struct {
	size     int
	pending  []int16
	consumed int64
	clock    Clock
}

// NewBlocker creates a blocker producing size-sample blocks stamped by clock.
func NewBlocker(size int, clock Clock) *Blocker {
	return &Blocker{
		size:    size,
		pending: make([]int16, 0, size),
		clock:   clock,
	}
}

// Push appends samples and emits every block they complete.
// A trailing partial block stays pending until more samples arrive.
func (b *Blocker) Push(samples []int16, emit func(Block)) {
	for len(samples) > 0 {
		n := min(b.size-len(b.pending), len(samples))
		b.pending = append(b.pending, samples[:n]...)
		samples = samples[n:]
		b.consumed += int64(n)

		if len(b.pending) < b.size {
			return
		}

		block := Block{
			Samples: make([]int16, b.size),
			At:      b.clock(b.consumed),
		}
		copy(block.Samples, b.pending)
		b.pending = b.pending[:0]

		emit(block)
	}
}

// Pending returns how many samples wait for the next block.
func (b *Blocker) Pending() int {
	return len(b.pending)
}
