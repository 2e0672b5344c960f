package events

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/applockd/applockd/pkg/types"
)

// Broker fans engine events out to live subscribers (CLI, API stream).
// Delivery is best effort: a slow subscriber drops events rather than
// stalling the engine; durable history belongs to the audit sink.
type Broker struct {
	logger *slog.Logger

	mu      sync.RWMutex
	subs    map[chan types.Event]struct{}
	dropped atomic.Int64
}

func NewBroker(logger *slog.Logger) *Broker {
	return &Broker{logger: logger, subs: make(map[chan types.Event]struct{})}
}

// Subscribe registers a new subscriber with the given channel buffer.
func (b *Broker) Subscribe(buf int) chan types.Event {
	if buf <= 0 {
		buf = 100
	}
	ch := make(chan types.Event, buf)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[ch] = struct{}{}
	return ch
}

// Unsubscribe removes and closes a subscriber channel.
func (b *Broker) Unsubscribe(ch chan types.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
}

// Publish delivers ev to every subscriber, dropping on full buffers.
func (b *Broker) Publish(ev types.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
			count := b.dropped.Add(1)
			if count == 1 || count%100 == 0 {
				b.logger.Warn("dropped event for slow subscriber",
					"type", ev.Type, "total_dropped", count)
			}
		}
	}
}

// DroppedCount returns the total number of events dropped so far.
func (b *Broker) DroppedCount() int64 {
	return b.dropped.Load()
}
