package gps

import (
	"sync"
	"time"
)

// ParseFailure is one rejected line kept for the status API.
type ParseFailure struct {
	At   time.Time `json:"at"`
	Line string    `json:"line"`
	Err  string    `json:"err"`
}

// failureTail keeps the most recent parse failures, oldest first.
type failureTail struct {
	mu           sync.Mutex
	limit        int
	maxLineBytes int
	items        []ParseFailure
}

func newFailureTail(limit int, maxLineBytes int) *failureTail {
	if limit < 0 {
		limit = 0
	}
	if maxLineBytes <= 0 {
		maxLineBytes = 256
	}
	return &failureTail{limit: limit, maxLineBytes: maxLineBytes, items: make([]ParseFailure, 0, limit)}
}

func (t *failureTail) add(at time.Time, line string, err error) {
	if t == nil || err == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.limit == 0 {
		return
	}
	if len(line) > t.maxLineBytes {
		line = line[:t.maxLineBytes]
	}
	item := ParseFailure{At: at, Line: line, Err: err.Error()}
	if len(t.items) < t.limit {
		t.items = append(t.items, item)
		return
	}
	copy(t.items, t.items[1:])
	t.items[len(t.items)-1] = item
}

func (t *failureTail) snapshot() []ParseFailure {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.items) == 0 {
		return nil
	}
	return append([]ParseFailure(nil), t.items...)
}
