package events

import (
	"sync"
	"sync/atomic"
)

// Bus is a small in-process broker. Publishing never blocks: a subscriber
// that cannot drain its buffer loses messages rather than stalling the tick
// pipeline, and the drop is counted so tests and diagnostics can see it.
type Bus struct {
	mu      sync.RWMutex
	nextID  uint64
	topics  map[Event]map[uint64]chan any
	dropped atomic.Uint64
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{topics: make(map[Event]map[uint64]chan any)}
}

// Subscribe registers a listener for one topic. Buffer sizes the listener's
// private channel. The returned function unsubscribes and closes the channel;
// calling it more than once is safe.
func (b *Bus) Subscribe(e Event, buffer int) (<-chan any, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan any, buffer)

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	subs, ok := b.topics[e]
	if !ok {
		subs = make(map[uint64]chan any)
		b.topics[e] = subs
	}
	subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			if subs, ok := b.topics[e]; ok {
				delete(subs, id)
				if len(subs) == 0 {
					delete(b.topics, e)
				}
			}
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}

// Publish fans the payload out to the topic's subscribers without blocking.
func (b *Bus) Publish(e Event, payload any) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.topics[e] {
		select {
		case ch <- payload:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped reports how many payloads were discarded due to full subscriber
// buffers since the bus was created.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}
