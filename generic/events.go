package generic

import (
	"sync"
	"sync/atomic"
	"time"
)

// =============================================================================
// BUS - Store change notifications
// =============================================================================

// Bus fans change events out to subscribers. Slow subscribers miss events
// rather than blocking the engine; every event carries a sequence so a
// consumer can notice a gap and refetch.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan ChangeEvent
	nextID int
	seq    atomic.Uint64
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan ChangeEvent)}
}

// Subscribe returns a buffered channel of events and a cancel func.
func (b *Bus) Subscribe(buffer int) (<-chan ChangeEvent, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan ChangeEvent, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Publish stamps the event and delivers it without blocking.
func (b *Bus) Publish(ev ChangeEvent) ChangeEvent {
	ev.Seq = b.seq.Add(1)
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	return ev
}
