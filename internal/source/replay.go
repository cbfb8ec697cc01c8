package source

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"go.uber.org/ratelimit"
)

type ReplayConfig struct {
	Path string
	// RateHz paces lines; 0 replays as fast as the sink accepts them.
	RateHz int
	Loop   bool
}

// Replay plays a captured NMEA log into a sink one line at a time.
type Replay struct {
	cfg ReplayConfig
	log *slog.Logger
	rl  ratelimit.Limiter

	open func(path string) (io.ReadCloser, error)
}

func NewReplay(cfg ReplayConfig, logger *slog.Logger) (*Replay, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("replay path is required")
	}
	if cfg.RateHz < 0 {
		return nil, fmt.Errorf("replay rate must be >= 0")
	}
	if logger == nil {
		logger = slog.Default()
	}
	rl := ratelimit.NewUnlimited()
	if cfg.RateHz > 0 {
		rl = ratelimit.New(cfg.RateHz)
	}
	return &Replay{
		cfg:  cfg,
		log:  logger,
		rl:   rl,
		open: func(path string) (io.ReadCloser, error) { return os.Open(path) },
	}, nil
}

// Run blocks until the log is exhausted (or forever with Loop) or ctx is
// done. It returns the number of lines written.
func (r *Replay) Run(ctx context.Context, sink Sink) (int, error) {
	total := 0
	for pass := 1; ; pass++ {
		n, err := r.playOnce(ctx, sink)
		total += n
		if err != nil {
			return total, err
		}
		r.log.Debug("replay pass done", "path", r.cfg.Path, "pass", pass, "lines", n)
		if !r.cfg.Loop {
			return total, nil
		}
		if n == 0 {
			return total, fmt.Errorf("replay %s: empty log", r.cfg.Path)
		}
	}
}

func (r *Replay) playOnce(ctx context.Context, sink Sink) (int, error) {
	f, err := r.open(r.cfg.Path)
	if err != nil {
		return 0, fmt.Errorf("replay open: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 4096), 64*1024)
	var buf []byte
	n := 0
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		line := sc.Bytes()
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		r.rl.Take()
		buf = append(append(buf[:0], line...), '\n')
		_, _ = sink.Write(buf)
		n++
	}
	if err := sc.Err(); err != nil {
		return n, fmt.Errorf("replay read: %w", err)
	}
	sink.Flush()
	return n, nil
}
