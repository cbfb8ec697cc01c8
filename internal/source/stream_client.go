package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

type StreamClientConfig struct {
	Name string
	Addr string

	ReconnectDelay time.Duration

	// DialTimeout is used for each TCP connect.
	DialTimeout time.Duration
}

// StreamClient reads a TCP NMEA feed and reconnects until closed.
type StreamClient struct {
	cfg StreamClientConfig
	log *slog.Logger

	started atomic.Bool
	closed  atomic.Bool

	mu       sync.RWMutex
	state    string
	lastErr  string
	lastSeen time.Time
	bytes    uint64
	connects uint64
	conn     net.Conn

	cancel context.CancelFunc
	done   chan struct{}
}

type StreamSnapshot struct {
	Name        string `json:"name"`
	Addr        string `json:"addr"`
	State       string `json:"state"`
	LastError   string `json:"last_error,omitempty"`
	LastSeenUTC string `json:"last_seen_utc,omitempty"`
	Bytes       uint64 `json:"bytes"`
	Connects    uint64 `json:"connects"`
}

func NewStreamClient(cfg StreamClientConfig, logger *slog.Logger) (*StreamClient, error) {
	if cfg.Name == "" {
		cfg.Name = "tcp"
	}
	if cfg.Addr == "" {
		return nil, fmt.Errorf("stream client addr is required")
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 1 * time.Second
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamClient{cfg: cfg, log: logger, state: "stopped", done: make(chan struct{})}, nil
}

// Start connects to the configured endpoint and copies every received chunk
// into sink. Partial lines are the sink's concern.
func (c *StreamClient) Start(ctx context.Context, sink Sink) error {
	if c == nil {
		return fmt.Errorf("stream client is nil")
	}
	if c.closed.Load() {
		return fmt.Errorf("stream client is closed")
	}
	if sink == nil {
		return fmt.Errorf("stream sink is nil")
	}
	if c.started.Swap(true) {
		return fmt.Errorf("stream client already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.setState("connecting", "")

	go func() {
		defer close(c.done)
		c.runLoop(runCtx, sink)
	}()
	return nil
}

func (c *StreamClient) Close() {
	if c == nil {
		return
	}
	if c.closed.Swap(true) {
		return
	}
	if !c.started.Load() {
		return
	}
	if c.cancel != nil {
		c.cancel()
	}
	// Unblock a Read in progress.
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn != nil {
		_ = conn.Close()
	}
	<-c.done
}

func (c *StreamClient) Snapshot() StreamSnapshot {
	if c == nil {
		return StreamSnapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := StreamSnapshot{
		Name:      c.cfg.Name,
		Addr:      c.cfg.Addr,
		State:     c.state,
		LastError: c.lastErr,
		Bytes:     c.bytes,
		Connects:  c.connects,
	}
	if !c.lastSeen.IsZero() {
		out.LastSeenUTC = c.lastSeen.UTC().Format(time.RFC3339Nano)
	}
	return out
}

func (c *StreamClient) runLoop(ctx context.Context, sink Sink) {
	dialer := &net.Dialer{Timeout: c.cfg.DialTimeout}

	for {
		if ctx.Err() != nil {
			c.setState("stopped", "")
			return
		}

		c.setState("connecting", "")
		conn, err := dialer.DialContext(ctx, "tcp", c.cfg.Addr)
		if err != nil {
			c.setState("error", err.Error())
			if !sleepCtx(ctx, c.cfg.ReconnectDelay) {
				c.setState("stopped", "")
				return
			}
			continue
		}

		c.mu.Lock()
		c.conn = conn
		c.connects++
		c.mu.Unlock()
		c.setState("connected", "")
		c.log.Info("nmea stream connected", "name", c.cfg.Name, "addr", c.cfg.Addr)

		stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
		_, err = Copy(ctx, countingSink{Sink: sink, c: c}, conn)
		stop()
		_ = conn.Close()
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()

		switch {
		case ctx.Err() != nil:
			c.setState("stopped", "")
			return
		case err == nil, errors.Is(err, net.ErrClosed):
			c.setState("disconnected", "")
		default:
			c.setState("disconnected", err.Error())
		}
		c.log.Warn("nmea stream disconnected", "name", c.cfg.Name, "addr", c.cfg.Addr, "err", err)

		if !sleepCtx(ctx, c.cfg.ReconnectDelay) {
			c.setState("stopped", "")
			return
		}
	}
}

type countingSink struct {
	Sink
	c *StreamClient
}

func (s countingSink) Write(p []byte) (int, error) {
	s.c.mu.Lock()
	s.c.bytes += uint64(len(p))
	s.c.lastSeen = time.Now().UTC()
	s.c.mu.Unlock()
	return s.Sink.Write(p)
}

func (c *StreamClient) setState(state string, lastErr string) {
	c.mu.Lock()
	c.state = state
	if lastErr != "" {
		c.lastErr = lastErr
	} else if state == "connected" || state == "connecting" || state == "stopped" {
		// A healthy state clears a stale startup failure.
		c.lastErr = ""
	}
	c.mu.Unlock()
}
