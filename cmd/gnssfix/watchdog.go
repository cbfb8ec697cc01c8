package main

import (
	"log/slog"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"gnssfix/internal/gps"
)

// fixWatchdog warns once when no fix has been notified for timeout, and
// logs again when fixes resume.
type fixWatchdog struct {
	timeout time.Duration
	log     *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	since   time.Time
	lastFix time.Time
	stale   bool
}

func newFixWatchdog(timeout time.Duration, logger *slog.Logger, now func() time.Time) *fixWatchdog {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &fixWatchdog{timeout: timeout, log: logger, now: now, since: now()}
}

func (w *fixWatchdog) HandleFix(gps.Fix) {
	w.mu.Lock()
	w.lastFix = w.now()
	w.mu.Unlock()
}

// Check reports whether the fix is currently overdue.
func (w *fixWatchdog) Check() bool {
	if w.timeout <= 0 {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	ref := w.lastFix
	if ref.IsZero() {
		ref = w.since
	}
	overdue := now.Sub(ref) > w.timeout
	switch {
	case overdue && !w.stale:
		if w.lastFix.IsZero() {
			w.log.Warn("no gps fix yet", "waiting", now.Sub(w.since).Round(time.Second))
		} else {
			w.log.Warn("gps fix lost", "last_fix", humanize.RelTime(w.lastFix, now, "ago", "from now"))
		}
	case !overdue && w.stale:
		w.log.Info("gps fix resumed")
	}
	w.stale = overdue
	return overdue
}
