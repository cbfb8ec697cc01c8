package udp

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"

	"gnssfix/internal/gps"
)

type udpConn interface {
	io.Writer
	io.Closer
}

type resolveFunc func(network, address string) (*net.UDPAddr, error)
type dialFunc func(network string, laddr, raddr *net.UDPAddr) (udpConn, error)

// Broadcaster sends one datagram per fix to a fixed destination, either as a
// JSON object or as a $GPGGA sentence.
type Broadcaster struct {
	dest   string
	format string
	conn   udpConn
	log    *slog.Logger

	mu      sync.Mutex
	sent    uint64
	lastErr string
}

func NewBroadcaster(dest string, format string, logger *slog.Logger) (*Broadcaster, error) {
	b, err := newBroadcaster(dest, net.ResolveUDPAddr, func(network string, laddr, raddr *net.UDPAddr) (udpConn, error) {
		// DialUDP selects a suitable local address automatically.
		return net.DialUDP(network, laddr, raddr)
	})
	if err != nil {
		return nil, err
	}
	switch f := strings.ToLower(strings.TrimSpace(format)); f {
	case "", "json":
		b.format = "json"
	case "nmea":
		b.format = f
	default:
		_ = b.Close()
		return nil, fmt.Errorf("udp format %q not supported", format)
	}
	if logger != nil {
		b.log = logger
	}
	return b, nil
}

func newBroadcaster(dest string, resolve resolveFunc, dial dialFunc) (*Broadcaster, error) {
	addr, err := resolve("udp", dest)
	if err != nil {
		return nil, fmt.Errorf("resolve dest: %w", err)
	}
	conn, err := dial("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("dial udp: %w", err)
	}
	return &Broadcaster{dest: dest, format: "json", conn: conn, log: slog.Default()}, nil
}

func (b *Broadcaster) Send(payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	_, err := b.conn.Write(payload)
	return err
}

func encodeFix(format string, fix gps.Fix) ([]byte, error) {
	if format == "nmea" {
		return []byte(gps.EncodeGGA(fix) + "\r\n"), nil
	}
	return json.Marshal(fix)
}

// HandleFix is a gps.FixHandler. Send failures are logged once per distinct
// error so a dead destination does not flood the log.
func (b *Broadcaster) HandleFix(fix gps.Fix) {
	payload, err := encodeFix(b.format, fix)
	if err == nil {
		err = b.Send(payload)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		if msg := err.Error(); msg != b.lastErr {
			b.lastErr = msg
			b.log.Warn("udp send failed", "dest", b.dest, "err", err)
		}
		return
	}
	b.lastErr = ""
	b.sent++
}

func (b *Broadcaster) Sent() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sent
}

func (b *Broadcaster) Close() error {
	if b.conn == nil {
		return nil
	}
	return b.conn.Close()
}
