package udp

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"strings"
	"testing"

	"gnssfix/internal/gps"
)

type fakeConn struct {
	writes    [][]byte
	writeErr  error
	closed    bool
	closeErr  error
	writeHits int
}

func (c *fakeConn) Write(p []byte) (int, error) {
	c.writeHits++
	if c.writeErr != nil {
		return 0, c.writeErr
	}
	cp := append([]byte(nil), p...)
	c.writes = append(c.writes, cp)
	return len(p), nil
}

func (c *fakeConn) Close() error {
	c.closed = true
	return c.closeErr
}

func TestNewBroadcaster_DialsResolvedAddr(t *testing.T) {
	var gotNetwork string
	var gotRaddr *net.UDPAddr
	fc := &fakeConn{}

	resolve := func(network, address string) (*net.UDPAddr, error) {
		return net.ResolveUDPAddr(network, address)
	}

	dial := func(network string, laddr, raddr *net.UDPAddr) (udpConn, error) {
		gotNetwork = network
		gotRaddr = raddr
		return fc, nil
	}

	b, err := newBroadcaster("127.0.0.1:4000", resolve, dial)
	if err != nil {
		t.Fatalf("newBroadcaster() error: %v", err)
	}
	defer b.Close()

	if gotNetwork != "udp" {
		t.Fatalf("network=%q want %q", gotNetwork, "udp")
	}
	if gotRaddr == nil || gotRaddr.Port != 4000 || !gotRaddr.IP.Equal(net.IPv4(127, 0, 0, 1)) {
		t.Fatalf("raddr=%v want 127.0.0.1:4000", gotRaddr)
	}
}

func TestNewBroadcaster_ResolveFailure(t *testing.T) {
	resolveErr := errors.New("nope")
	resolve := func(network, address string) (*net.UDPAddr, error) {
		return nil, resolveErr
	}
	dial := func(network string, laddr, raddr *net.UDPAddr) (udpConn, error) {
		return &fakeConn{}, nil
	}

	_, err := newBroadcaster("bad:addr", resolve, dial)
	if !errors.Is(err, resolveErr) {
		t.Fatalf("err=%v want %v", err, resolveErr)
	}
}

func TestBroadcaster_Send_EmptyNoWrite(t *testing.T) {
	fc := &fakeConn{}
	b := &Broadcaster{dest: "x", conn: fc, log: slog.Default()}

	if err := b.Send(nil); err != nil {
		t.Fatalf("Send(nil) error: %v", err)
	}
	if err := b.Send([]byte{}); err != nil {
		t.Fatalf("Send(empty) error: %v", err)
	}
	if fc.writeHits != 0 {
		t.Fatalf("expected no writes, got %d", fc.writeHits)
	}
}

func TestBroadcaster_Send_WritesPayload(t *testing.T) {
	fc := &fakeConn{}
	b := &Broadcaster{dest: "x", conn: fc, log: slog.Default()}

	p := []byte{0x01, 0x02, 0x03}
	if err := b.Send(p); err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if fc.writeHits != 1 {
		t.Fatalf("expected 1 write, got %d", fc.writeHits)
	}
	if len(fc.writes) != 1 {
		t.Fatalf("expected 1 captured write, got %d", len(fc.writes))
	}
	if string(fc.writes[0]) != string(p) {
		t.Fatalf("write=%v want %v", fc.writes[0], p)
	}
}

func TestBroadcaster_Send_PropagatesError(t *testing.T) {
	wantErr := errors.New("boom")
	fc := &fakeConn{writeErr: wantErr}
	b := &Broadcaster{dest: "x", conn: fc, log: slog.Default()}

	err := b.Send([]byte{0x01})
	if !errors.Is(err, wantErr) {
		t.Fatalf("err=%v want %v", err, wantErr)
	}
}

func TestBroadcaster_Close_NilConnNoPanic(t *testing.T) {
	b := &Broadcaster{}
	if err := b.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
}

func TestBroadcaster_HandleFix_JSON(t *testing.T) {
	fc := &fakeConn{}
	b := &Broadcaster{dest: "x", format: "json", conn: fc, log: slog.Default()}

	b.HandleFix(gps.Fix{Latitude: 48.6187, Longitude: 7.6743, Altitude: 15.2, Timestamp: 41776, Source: gps.KindGGA})
	if len(fc.writes) != 1 || b.Sent() != 1 {
		t.Fatalf("writes=%d sent=%d", len(fc.writes), b.Sent())
	}
	var got gps.Fix
	if err := json.Unmarshal(fc.writes[0], &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Latitude != 48.6187 || got.Source != gps.KindGGA {
		t.Fatalf("fix=%+v", got)
	}
}

func TestBroadcaster_HandleFix_NMEA(t *testing.T) {
	fc := &fakeConn{}
	b := &Broadcaster{dest: "x", format: "nmea", conn: fc, log: slog.Default()}

	b.HandleFix(gps.Fix{Latitude: 48.6187, Longitude: 7.6743, Altitude: 15.2, UTCTime: "113616.00", Quality: 1})
	if len(fc.writes) != 1 {
		t.Fatalf("writes=%d", len(fc.writes))
	}
	line := string(fc.writes[0])
	if !strings.HasPrefix(line, "$GPGGA,113616.00,4837.1220,N,00740.4580,E,1,") || !strings.HasSuffix(line, "\r\n") {
		t.Fatalf("line=%q", line)
	}
}

func TestBroadcaster_HandleFix_ErrorNotCounted(t *testing.T) {
	fc := &fakeConn{writeErr: errors.New("refused")}
	b := &Broadcaster{dest: "x", format: "json", conn: fc, log: slog.Default()}

	b.HandleFix(gps.Fix{Latitude: 1})
	b.HandleFix(gps.Fix{Latitude: 2})
	if b.Sent() != 0 || fc.writeHits != 2 {
		t.Fatalf("sent=%d hits=%d", b.Sent(), fc.writeHits)
	}
}
