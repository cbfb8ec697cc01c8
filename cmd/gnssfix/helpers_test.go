package main

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	nmea "github.com/adrianmo/go-nmea"
)

func nmeaLine(payload string) string {
	return fmt.Sprintf("$%s*%s", payload, nmea.Checksum(payload))
}

func ggaAt(utc string) string {
	return nmeaLine("GPGGA," + utc + ",4837.123,N,00740.456,E,1,08,0.9,15.2,M,45.3,M,,")
}

// captureLog is a goroutine-safe slog sink for assertions on log output.
type captureLog struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (c *captureLog) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Write(p)
}

func (c *captureLog) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.String()
}

func (c *captureLog) Contains(s string) bool {
	return strings.Contains(c.String(), s)
}

func newCaptureLogger() (*slog.Logger, *captureLog) {
	c := &captureLog{}
	return slog.New(slog.NewTextHandler(c, &slog.HandlerOptions{Level: slog.LevelDebug})), c
}
