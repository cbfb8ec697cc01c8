package web

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps is everything the HTTP surface reads from. Nil members disable the
// endpoints that need them.
type Deps struct {
	Status   *Status
	Session  SessionSource
	Logs     *LogBuffer
	Fixes    *FixBroadcaster
	Gatherer prometheus.Gatherer
	Log      *slog.Logger
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Read-only local API; browsers on the LAN connect from file:// pages.
	CheckOrigin: func(r *http.Request) bool { return true },
}

func Handler(d Deps) http.Handler {
	if d.Status == nil {
		d.Status = NewStatus()
	}
	if d.Log == nil {
		d.Log = slog.Default()
	}
	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		if !allowGet(w, r) {
			return
		}
		writeJSON(w, d.Status.Snapshot(time.Now().UTC(), d.Session))
	})

	mux.HandleFunc("/api/fix", func(w http.ResponseWriter, r *http.Request) {
		if !allowGet(w, r) {
			return
		}
		if d.Session == nil {
			http.Error(w, "no session", http.StatusServiceUnavailable)
			return
		}
		st := d.Session.Snapshot().State
		fix := st.LastFix
		if v := strings.TrimSpace(r.URL.Query().Get("accurate")); v == "1" || strings.EqualFold(v, "true") {
			fix = st.LastAccurateFix
		}
		if fix == nil {
			http.Error(w, "no fix", http.StatusNotFound)
			return
		}
		writeJSON(w, fix)
	})

	mux.HandleFunc("/api/fix/ws", func(w http.ResponseWriter, r *http.Request) {
		if d.Fixes == nil {
			http.Error(w, "fix stream unavailable", http.StatusNotFound)
			return
		}
		streamFixes(w, r, d.Fixes, d.Log)
	})

	if d.Logs != nil {
		mux.Handle("/api/logs", d.Logs.Handler())
	}

	if d.Gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if !allowGet(w, r) {
			return
		}
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		snap := d.Status.Snapshot(time.Now().UTC(), d.Session)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = fmt.Fprintf(w, "<!doctype html><html><head><meta charset=\"utf-8\"><title>gnssfix</title></head><body>")
		_, _ = fmt.Fprintf(w, "<h1>gnssfix</h1>")
		_, _ = fmt.Fprintf(w, "<p>See <a href=\"/api/status\">/api/status</a> and <a href=\"/api/fix\">/api/fix</a>.</p>")
		_, _ = fmt.Fprintf(w, "<pre>source=%s\nlines=%d\ntracking=%t\n",
			html.EscapeString(snap.Source), snap.Session.Lines, snap.Session.State.Tracking)
		if fix := snap.Session.State.LastFix; fix != nil {
			_, _ = fmt.Fprintf(w, "last_fix=%.6f,%.6f alt=%.1fm utc=%s\n", fix.Latitude, fix.Longitude, fix.Altitude, html.EscapeString(fix.UTCTime))
		}
		_, _ = fmt.Fprintf(w, "</pre></body></html>")
	})

	return mux
}

func streamFixes(w http.ResponseWriter, r *http.Request, fixes *FixBroadcaster, log *slog.Logger) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied.
		log.Debug("fix stream upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	id, ch := fixes.Subscribe(8)
	defer fixes.Unsubscribe(id)

	// Clients never send; reading only surfaces the close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Debug("fix stream closed", "remote", r.RemoteAddr, "err", err)
				}
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case fix, ok := <-ch:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(fix); err != nil {
				return
			}
		}
	}
}

func allowGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method == http.MethodGet {
		return true
	}
	w.Header().Set("Allow", http.MethodGet)
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	return false
}

func writeJSON(w http.ResponseWriter, v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		http.Error(w, "marshal failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(b)
	_, _ = w.Write([]byte("\n"))
}

// Serve runs the HTTP server until ctx is done.
func Serve(ctx context.Context, listenAddr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       30 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MiB
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
