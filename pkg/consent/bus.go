package consent

import (
	"sync"
	"time"
)

// Change describes one consent transition
type Change struct {
	From Value
	To   Value
	At   time.Time
}

// Bus delivers consent changes to subscribers synchronously, in subscription order
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   []subscription
}

type subscription struct {
	id int
	fn func(Change)
}

// NewBus creates an empty bus
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers fn and returns a function that removes it
func (b *Bus) Subscribe(fn func(Change)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.subs = append(b.subs, subscription{id: id, fn: fn})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish calls every subscriber with c before returning
func (b *Bus) Publish(c Change) {
	b.mu.RLock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, s := range subs {
		s.fn(c)
	}
}
