package event

import (
	"sync"

	"github.com/oshokin/tone-alert/internal/domain/tone"
)

// Bus fans detector events out to subscribers without blocking the publisher.
type Bus struct {
	// mu guards subscribers and closed.
	mu sync.RWMutex
	// subscribers holds one queue per consumer keyed by subscription id.
	subscribers map[uint64]chan tone.Event
	// nextID is the id handed to the next subscriber.
	nextID uint64
	// closed is set once Close ran; later publishes are ignored.
	closed bool
	// onDrop is called for every event a full queue rejected.
	onDrop func(tone.Event)
}

// Option configures a Bus.
type Option func(*Bus)

// WithDropHook registers fn to be told about events a full queue rejected.
func WithDropHook(fn func(tone.Event)) Option {
	return func(b *Bus) {
		b.onDrop = fn
	}
}

// NewBus creates an empty bus.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		subscribers: make(map[uint64]chan tone.Event),
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Subscribe returns a queue of at most size pending events and a function
// that detaches it. The queue is closed on detach or when the bus closes.
func (b *Bus) Subscribe(size int) (<-chan tone.Event, func()) {
	if size < 1 {
		size = 1
	}

	ch := make(chan tone.Event, size)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)

		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subscribers[id] = ch

	var once sync.Once

	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()

			if queue, ok := b.subscribers[id]; ok {
				delete(b.subscribers, id)
				close(queue)
			}
		})
	}
}

// Publish offers ev to every subscriber and returns how many accepted it.
func (b *Bus) Publish(ev tone.Event) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return 0
	}

	delivered := 0

	for _, ch := range b.subscribers {
		select {
		case ch <- ev:
			delivered++
		default:
			if b.onDrop != nil {
				b.onDrop(ev)
			}
		}
	}

	return delivered
}

// Close detaches and closes every subscriber queue.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.closed = true

	for id, ch := range b.subscribers {
		delete(b.subscribers, id)
		close(ch)
	}
}
