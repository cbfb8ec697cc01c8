package web

import (
	"sync"

	"gnssfix/internal/gps"
)

// FixBroadcaster fans accepted fixes out to stream listeners (the websocket
// endpoint). It keeps the most recent fix so new subscribers get an immediate
// sample. Slow subscribers miss fixes rather than block the aggregator.
type FixBroadcaster struct {
	mu       sync.RWMutex
	subs     map[int]chan gps.Fix
	nextID   int
	last     gps.Fix
	haveLast bool
}

func NewFixBroadcaster() *FixBroadcaster {
	return &FixBroadcaster{subs: make(map[int]chan gps.Fix)}
}

func (b *FixBroadcaster) Subscribe(buffer int) (int, <-chan gps.Fix) {
	if b == nil {
		return 0, nil
	}
	if buffer <= 0 {
		buffer = 4
	}
	ch := make(chan gps.Fix, buffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	// Seed before registering so the sample always precedes newer fixes.
	if b.haveLast {
		ch <- b.last
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	return id, ch
}

func (b *FixBroadcaster) Unsubscribe(id int) {
	if b == nil {
		return
	}
	b.mu.Lock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
	b.mu.Unlock()
}

// Publish has the gps.FixHandler signature so it can be registered directly.
func (b *FixBroadcaster) Publish(fix gps.Fix) {
	if b == nil {
		return
	}
	// One write lock covers last and the fan-out, so a concurrent Subscribe
	// sees either the old sample and this fix, or this fix as its sample.
	// Sends never block.
	b.mu.Lock()
	b.last = fix
	b.haveLast = true
	for _, ch := range b.subs {
		select {
		case ch <- fix:
		default:
		}
	}
	b.mu.Unlock()
}

func (b *FixBroadcaster) Subscribers() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
