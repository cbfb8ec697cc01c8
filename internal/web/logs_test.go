package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestLogBuffer_JoinsPartialWrites(t *testing.T) {
	b := NewLogBuffer(10)
	_, _ = b.Write([]byte("level=INFO msg=\"gps session"))
	if lines, _ := b.Snapshot(0, ""); len(lines) != 0 {
		t.Fatalf("partial line surfaced: %q", lines)
	}
	_, _ = b.Write([]byte(" started\"\r\nlevel=DEBUG msg=\"gps fix accepted\"\n"))
	lines, _ := b.Snapshot(0, "")
	if len(lines) != 2 || lines[0] != "level=INFO msg=\"gps session started\"" {
		t.Fatalf("lines=%q", lines)
	}
}

func TestLogBuffer_DropsOldestAndFilters(t *testing.T) {
	b := NewLogBuffer(3)
	for _, l := range []string{"a1", "b2", "a3", "b4", "a5"} {
		_, _ = b.Write([]byte(l + "\n"))
	}
	lines, dropped := b.Snapshot(10, "")
	if dropped != 2 || len(lines) != 3 || lines[0] != "a3" {
		t.Fatalf("lines=%q dropped=%d", lines, dropped)
	}
	lines, _ = b.Snapshot(10, "a")
	if len(lines) != 2 || lines[0] != "a3" || lines[1] != "a5" {
		t.Fatalf("filtered=%q", lines)
	}
	lines, _ = b.Snapshot(1, "")
	if len(lines) != 1 || lines[0] != "a5" {
		t.Fatalf("tail=%q", lines)
	}
}

func TestLogBuffer_Handler(t *testing.T) {
	b := NewLogBuffer(10)
	_, _ = b.Write([]byte("one\ntwo\n"))

	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/logs?tail=1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("code=%d", rec.Code)
	}
	var resp LogsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Lines) != 1 || resp.Lines[0] != "two" {
		t.Fatalf("lines=%q", resp.Lines)
	}

	rec = httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/logs?tail=0", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("tail=0 code=%d want 400", rec.Code)
	}

	rec = httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/logs?format=text", nil))
	if got := rec.Body.String(); got != "one\ntwo\n" {
		t.Fatalf("text body=%q", got)
	}
}
