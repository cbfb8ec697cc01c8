package web

import (
	"sync/atomic"
	"time"

	"gnssfix/internal/gps"
)

// SessionSource is the read side of a gps.Service.
type SessionSource interface {
	Snapshot() gps.Snapshot
}

type Status struct {
	startUnixNano int64
	source        atomic.Value // string
	listen        atomic.Value // string
	sinks         atomic.Value // []string
}

func NewStatus() *Status {
	s := &Status{}
	atomic.StoreInt64(&s.startUnixNano, time.Now().UTC().UnixNano())
	s.source.Store("")
	s.listen.Store("")
	s.sinks.Store([]string(nil))
	return s
}

// SetStatic records how the process was wired, for display only.
func (s *Status) SetStatic(source string, listen string, sinks []string) {
	if source != "" {
		s.source.Store(source)
	}
	if listen != "" {
		s.listen.Store(listen)
	}
	if sinks != nil {
		s.sinks.Store(append([]string(nil), sinks...))
	}
}

type StatusSnapshot struct {
	Service   string       `json:"service"`
	NowUTC    string       `json:"now_utc"`
	UptimeSec int64        `json:"uptime_sec"`
	Source    string       `json:"source"`
	Listen    string       `json:"listen,omitempty"`
	Sinks     []string     `json:"sinks,omitempty"`
	Session   gps.Snapshot `json:"session"`
}

func (s *Status) Snapshot(nowUTC time.Time, session SessionSource) StatusSnapshot {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	start := time.Unix(0, atomic.LoadInt64(&s.startUnixNano)).UTC()

	snap := StatusSnapshot{
		Service:   "gnssfix",
		NowUTC:    nowUTC.UTC().Format(time.RFC3339Nano),
		UptimeSec: int64(nowUTC.Sub(start).Seconds()),
		Source:    s.source.Load().(string),
		Listen:    s.listen.Load().(string),
		Sinks:     s.sinks.Load().([]string),
	}
	if session != nil {
		snap.Session = session.Snapshot()
	}
	return snap
}
