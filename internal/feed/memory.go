package feed

import (
	"sync"
	"sync/atomic"
	"time"
)

// defaultBufferSize is the per-subscriber channel buffer.
const defaultBufferSize = 100

// MemoryFeed is an in-memory implementation of [Feed].
//
// Subscribers receive events via buffered channels. Events are sent
// non-blocking; if a subscriber's buffer is full, the event is dropped for
// that subscriber to keep the publisher, and therefore the store, moving.
type MemoryFeed struct {
	mu          sync.RWMutex
	subscribers map[chan ChangeEvent]struct{}
	bufferSize  int

	seq     atomic.Uint64
	dropped atomic.Uint64
	now     func() time.Time
}

// NewMemoryFeed creates a new in-memory [Feed].
//
// bufferSize is the per-subscriber buffer; values below 1 use the default
// of 100. No cleanup is required when done.
func NewMemoryFeed(bufferSize int) *MemoryFeed {
	if bufferSize < 1 {
		bufferSize = defaultBufferSize
	}
	return &MemoryFeed{
		subscribers: make(map[chan ChangeEvent]struct{}),
		bufferSize:  bufferSize,
		now:         time.Now,
	}
}

// Publish stamps ev with the next sequence number and, if unset, the
// current time, then delivers it to every subscriber. The stamped event is
// returned.
func (f *MemoryFeed) Publish(ev ChangeEvent) ChangeEvent {
	ev.Seq = f.seq.Add(1)
	if ev.At.IsZero() {
		ev.At = f.now()
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	for ch := range f.subscribers {
		select {
		case ch <- ev:
		default:
			// subscriber is slow, drop the event
			f.dropped.Add(1)
		}
	}
	return ev
}

// Subscribe creates a new subscription and returns a channel for receiving
// events.
//
// Caller must call [MemoryFeed.Unsubscribe] when done to prevent resource leaks.
func (f *MemoryFeed) Subscribe() <-chan ChangeEvent {
	ch := make(chan ChangeEvent, f.bufferSize)

	f.mu.Lock()
	f.subscribers[ch] = struct{}{}
	f.mu.Unlock()

	return ch
}

// Unsubscribe removes a subscription and closes its channel.
//
// After calling Unsubscribe, the channel will be closed and no further
// events will be sent. Safe to call multiple times or with an unknown channel.
func (f *MemoryFeed) Unsubscribe(ch <-chan ChangeEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()

	// find and delete the channel (need to convert to the right type)
	for subCh := range f.subscribers {
		if subCh == ch {
			delete(f.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

// Subscribers returns the number of active subscriptions.
func (f *MemoryFeed) Subscribers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subscribers)
}

// Dropped returns the total number of skipped deliveries.
func (f *MemoryFeed) Dropped() uint64 {
	return f.dropped.Load()
}
