package gps

import (
	"sync"
	"sync/atomic"
)

// lineQueue is a bounded FIFO between the byte source and the aggregator.
// When full, the oldest line is discarded so the newest position data wins.
type lineQueue struct {
	ch chan string

	// mu serializes producers so the drop-then-send pair is atomic.
	mu      sync.Mutex
	dropped atomic.Uint64
}

func newLineQueue(size int) *lineQueue {
	if size <= 0 {
		size = 1
	}
	return &lineQueue{ch: make(chan string, size)}
}

// push enqueues line, evicting from the head as needed. It reports whether a
// line was evicted.
func (q *lineQueue) push(line string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	evicted := false
	for {
		select {
		case q.ch <- line:
			return evicted
		default:
		}
		select {
		case <-q.ch:
			evicted = true
			q.dropped.Add(1)
		default:
		}
	}
}

func (q *lineQueue) Dropped() uint64 {
	return q.dropped.Load()
}

func (q *lineQueue) Len() int {
	return len(q.ch)
}
