package scope

import "sync"

// Change is broadcast whenever a session's selected project changes.
type Change struct {
	UserID int64
	Old    *int64
	New    *int64
}

// Bus fans a scope change out to every subscriber. Publish never blocks:
// a subscriber that cannot keep up misses the signal and is expected to
// rely on scope-keyed fetches for correctness.
type Bus struct {
	mu   sync.Mutex
	subs map[int]chan Change
	next int
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Change)}
}

// Subscribe registers a listener. The returned cancel func removes the
// subscription and closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan Change, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Change, buffer)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers the change to every subscriber without blocking.
func (b *Bus) Publish(change Change) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- change:
		default:
		}
	}
}
