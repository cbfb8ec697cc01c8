package main

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gnssfix/internal/config"
	"gnssfix/internal/gps"
)

func testConfig(t *testing.T, doc string) config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(doc))
	if err != nil {
		t.Fatalf("config.Parse: %v", err)
	}
	return cfg
}

func TestLiveRuntime_StdinToUDP(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenPacket: %v", err)
	}
	defer pc.Close()

	cfg := testConfig(t, "source:\n  mode: stdin\nudp:\n  enable: true\n  dest: "+pc.LocalAddr().String()+"\n")
	logger, logs := newCaptureLogger()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	r, err := newLiveRuntime(ctx, cfg, logger, nil)
	if err != nil {
		t.Fatalf("newLiveRuntime: %v", err)
	}
	defer r.Close()
	r.stdin = strings.NewReader(ggaAt("113616.00") + "\r\n$GPGGA,1,2\r\n" + ggaAt("113617.00"))

	if err := r.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	snap := r.session.Snapshot()
	if snap.Lines != 3 {
		t.Fatalf("lines=%d want %d", snap.Lines, 3)
	}
	if snap.State.Counters.Accepted != 2 || snap.State.Counters.Rejected != 1 {
		t.Fatalf("counters=%+v", snap.State.Counters)
	}
	if snap.Running {
		t.Fatalf("session still running after input ended")
	}
	if !logs.Contains("stdin closed") {
		t.Fatalf("missing stdin log in %q", logs.String())
	}

	_ = pc.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 2048)
	n, _, err := pc.ReadFrom(buf)
	if err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}
	var fix gps.Fix
	if err := json.Unmarshal(buf[:n], &fix); err != nil {
		t.Fatalf("unmarshal %q: %v", buf[:n], err)
	}
	if fix.UTCTime != "113616.00" {
		t.Fatalf("first datagram utc=%q want %q", fix.UTCTime, "113616.00")
	}
	if r.udp.Sent() != 2 {
		t.Fatalf("udp sent=%d want %d", r.udp.Sent(), 2)
	}
}

func TestLiveRuntime_Replay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "drive.nmea")
	if err := os.WriteFile(path, []byte(sampleCapture()), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cfg := testConfig(t, "source:\n  mode: replay\n  path: "+path+"\n")
	// Unpaced.
	cfg.Source.RateHz = 0

	logger, logs := newCaptureLogger()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	r, err := newLiveRuntime(ctx, cfg, logger, nil)
	if err != nil {
		t.Fatalf("newLiveRuntime: %v", err)
	}
	defer r.Close()
	if err := r.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	st := r.session.Snapshot().State
	if st.Counters.Accepted != 3 {
		t.Fatalf("accepted=%d want %d", st.Counters.Accepted, 3)
	}
	if st.LastFix == nil || st.LastFix.UTCTime != "113618.00" {
		t.Fatalf("last fix=%+v", st.LastFix)
	}
	if !logs.Contains("replay finished") || !logs.Contains("msg=status") {
		t.Fatalf("missing replay/status logs in %q", logs.String())
	}
}

func TestNewLiveRuntime_MQTTValidation(t *testing.T) {
	cfg := testConfig(t, "source:\n  mode: stdin\n")
	cfg.MQTT.Enable = true
	logger, _ := newCaptureLogger()
	if _, err := newLiveRuntime(context.Background(), cfg, logger, nil); err == nil {
		t.Fatalf("expected error for mqtt without broker")
	}
}
