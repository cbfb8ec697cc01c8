package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"

	"gnssfix/internal/config"
	"gnssfix/internal/gps"
	"gnssfix/internal/publish"
	"gnssfix/internal/source"
	"gnssfix/internal/udp"
	"gnssfix/internal/web"
)

// liveRuntime is one wired process: a session, its input and its sinks.
type liveRuntime struct {
	cfg config.Config
	log *slog.Logger

	reg      *prometheus.Registry
	session  *gps.Service
	status   *web.Status
	logs     *web.LogBuffer
	fixes    *web.FixBroadcaster
	watchdog *fixWatchdog

	stream *source.StreamClient
	replay *source.Replay
	stdin  io.Reader

	mqtt *publish.MQTTPublisher
	udp  *udp.Broadcaster

	closeOnce sync.Once
}

func newLiveRuntime(ctx context.Context, cfg config.Config, logger *slog.Logger, logs *web.LogBuffer) (*liveRuntime, error) {
	if logger == nil {
		logger = slog.Default()
	}
	reg := prometheus.NewRegistry()
	session := gps.New(gps.Config{
		Name:           cfg.GPS.Name,
		QueueSize:      cfg.GPS.QueueSize,
		MaxLineBytes:   cfg.GPS.MaxLineBytes,
		VerifyChecksum: cfg.GPS.VerifyChecksum,
		Aggregator: gps.AggregatorConfig{
			AccuracyThresholdM:     cfg.GPS.AccuracyThresholdM,
			GGAHorizontalAccuracyM: cfg.GPS.GGAHorizontalAccuracyM,
			GGAVerticalAccuracyM:   cfg.GPS.GGAVerticalAccuracyM,
			MinFixInterval:         cfg.GPS.MinFixInterval,
			MinUpdateDistanceM:     cfg.GPS.MinUpdateDistanceM,
		},
	}, logger, gps.NewMetrics(reg))

	r := &liveRuntime{
		cfg:      cfg,
		log:      logger,
		reg:      reg,
		session:  session,
		status:   web.NewStatus(),
		logs:     logs,
		watchdog: newFixWatchdog(cfg.Watchdog.FixTimeout, logger, time.Now),
		stdin:    os.Stdin,
	}
	session.OnFix(r.watchdog.HandleFix)

	var sinks []string
	if cfg.Web.Enable {
		r.fixes = web.NewFixBroadcaster()
		session.OnFix(r.fixes.Publish)
		sinks = append(sinks, "web")
	}
	if cfg.UDP.Enable {
		b, err := udp.NewBroadcaster(cfg.UDP.Dest, cfg.UDP.Format, logger)
		if err != nil {
			return nil, fmt.Errorf("udp broadcaster init failed: %w", err)
		}
		r.udp = b
		session.OnFix(b.HandleFix)
		sinks = append(sinks, "udp:"+cfg.UDP.Dest)
	}
	if cfg.MQTT.Enable {
		p, err := publish.NewMQTT(publish.MQTTConfig{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Topic:    cfg.MQTT.Topic,
			QoS:      byte(cfg.MQTT.QoS),
			Retain:   cfg.MQTT.Retain,
		}, logger)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("mqtt init failed: %w", err)
		}
		// Auto-reconnect covers a broker that comes up later.
		if err := p.Connect(ctx); err != nil {
			logger.Warn("mqtt connect failed", "broker", cfg.MQTT.Broker, "err", err)
		}
		r.mqtt = p
		session.OnFix(p.HandleFix)
		sinks = append(sinks, "mqtt:"+cfg.MQTT.Topic)
	}

	switch cfg.Source.Mode {
	case "tcp":
		c, err := source.NewStreamClient(source.StreamClientConfig{
			Name:           cfg.GPS.Name,
			Addr:           cfg.Source.Addr,
			ReconnectDelay: cfg.Source.ReconnectDelay,
		}, logger)
		if err != nil {
			r.Close()
			return nil, err
		}
		r.stream = c
		r.status.SetStatic("tcp:"+cfg.Source.Addr, cfg.Web.Listen, sinks)
	case "replay":
		rp, err := source.NewReplay(source.ReplayConfig{
			Path:   cfg.Source.Path,
			RateHz: cfg.Source.RateHz,
			Loop:   cfg.Source.Loop,
		}, logger)
		if err != nil {
			r.Close()
			return nil, err
		}
		r.replay = rp
		r.status.SetStatic("replay:"+cfg.Source.Path, cfg.Web.Listen, sinks)
	default:
		r.status.SetStatic("stdin", cfg.Web.Listen, sinks)
	}
	return r, nil
}

// Run blocks until ctx is done, or until a finite input (stdin, a non-looping
// replay) is exhausted and the session has drained it.
func (r *liveRuntime) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := r.session.Start(ctx); err != nil {
		return err
	}

	errCh := make(chan error, 2)
	if r.cfg.Web.Enable {
		h := web.Handler(web.Deps{
			Status:   r.status,
			Session:  r.session,
			Logs:     r.logs,
			Fixes:    r.fixes,
			Gatherer: r.reg,
			Log:      r.log,
		})
		r.log.Info("web listening", "addr", r.cfg.Web.Listen)
		go func() {
			if err := web.Serve(ctx, r.cfg.Web.Listen, h); err != nil && ctx.Err() == nil {
				errCh <- fmt.Errorf("web server: %w", err)
			}
		}()
	}

	go r.monitor(ctx)

	done := make(chan struct{})
	switch {
	case r.stream != nil:
		if err := r.stream.Start(ctx, r.session); err != nil {
			return err
		}
	case r.replay != nil:
		go func() {
			defer close(done)
			n, err := r.replay.Run(ctx, r.session)
			if err != nil && !errors.Is(err, context.Canceled) {
				errCh <- err
				return
			}
			r.log.Info("replay finished", "path", r.cfg.Source.Path, "lines", humanize.Comma(int64(n)))
		}()
	default:
		go func() {
			defer close(done)
			n, err := source.Copy(ctx, r.session, r.stdin)
			if err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("stdin: %w", err)
				return
			}
			r.log.Info("stdin closed", "bytes", humanize.Bytes(uint64(n)))
		}()
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	case <-done:
		// Close drains the queue before returning.
		r.session.Close()
		r.logStatus(time.Now())
		return nil
	}
}

func (r *liveRuntime) monitor(ctx context.Context) {
	interval := r.cfg.Watchdog.StatusInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	status := time.NewTicker(interval)
	defer status.Stop()
	check := time.NewTicker(time.Second)
	defer check.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-check.C:
			r.watchdog.Check()
		case now := <-status.C:
			r.logStatus(now)
		}
	}
}

func (r *liveRuntime) logStatus(now time.Time) {
	snap := r.session.Snapshot()
	args := []any{
		"lines", humanize.Comma(int64(snap.Lines)),
		"accepted", humanize.Comma(int64(snap.State.Counters.Accepted)),
		"rejected", humanize.Comma(int64(snap.State.Counters.Rejected)),
		"queue_dropped", snap.QueueDropped,
		"tracking", snap.State.Tracking,
	}
	if fix := snap.State.LastFix; fix != nil {
		args = append(args,
			"last_fix", humanize.RelTime(fix.ReceivedAt, now, "ago", "from now"),
			"lat", fix.Latitude, "lon", fix.Longitude)
	}
	if r.stream != nil {
		s := r.stream.Snapshot()
		args = append(args, "stream", s.State, "stream_bytes", humanize.Bytes(s.Bytes))
	}
	if r.mqtt != nil {
		s := r.mqtt.Stats()
		args = append(args, "mqtt_published", s.Published, "mqtt_failed", s.Failed)
	}
	if r.udp != nil {
		args = append(args, "udp_sent", r.udp.Sent())
	}
	r.log.Info("status", args...)
}

func (r *liveRuntime) Close() {
	r.closeOnce.Do(func() {
		if r.stream != nil {
			r.stream.Close()
		}
		r.session.Close()
		if r.mqtt != nil {
			r.mqtt.Close()
		}
		if r.udp != nil {
			_ = r.udp.Close()
		}
	})
}
