package gps

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tevino/abool/v2"
)

// Config controls one receiver session.
//
// All fields are optional.
type Config struct {
	// Name labels the session in logs and status output.
	Name string

	// QueueSize bounds framed lines waiting for the aggregator. When the
	// queue is full the oldest line is dropped. Defaults to 64.
	QueueSize int

	MaxLineBytes   int
	VerifyChecksum bool

	// ErrorTail is how many recent parse failures Snapshot reports.
	// Defaults to 16.
	ErrorTail int

	Aggregator AggregatorConfig
}

type Snapshot struct {
	Name    string `json:"name"`
	Running bool   `json:"running"`

	Lines         uint64 `json:"lines"`
	QueueDepth    int    `json:"queue_depth"`
	QueueDropped  uint64 `json:"queue_dropped"`
	FramerDropped uint64 `json:"framer_dropped"`

	LastError      string         `json:"last_error,omitempty"`
	RecentFailures []ParseFailure `json:"recent_failures,omitempty"`

	State State `json:"state"`
}

// Service owns a receiver session: bytes come in through Write or Submit,
// a single goroutine drains the queue into the Aggregator.
type Service struct {
	cfg     Config
	log     *slog.Logger
	metrics *Metrics

	agg      *Aggregator
	queue    *lineQueue
	failures *failureTail

	framerMu sync.Mutex
	framer   *Framer

	running *abool.AtomicBool
	lines   atomic.Uint64
	lastErr atomic.Value // string

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfg Config, logger *slog.Logger, metrics *Metrics) *Service {
	if strings.TrimSpace(cfg.Name) == "" {
		cfg.Name = "gps"
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.ErrorTail <= 0 {
		cfg.ErrorTail = 16
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("source", cfg.Name)

	s := &Service{
		cfg:      cfg,
		log:      logger,
		metrics:  metrics,
		agg:      NewAggregator(cfg.Aggregator, logger),
		queue:    newLineQueue(cfg.QueueSize),
		failures: newFailureTail(cfg.ErrorTail, 0),
		framer:   NewFramer(cfg.MaxLineBytes, cfg.VerifyChecksum),
		running:  abool.New(),
	}
	s.lastErr.Store("")
	return s
}

// Start launches the consumer goroutine. Calling Start on a running service
// is a no-op.
func (s *Service) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("gps service is nil")
	}
	if ctx == nil {
		return fmt.Errorf("ctx is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running.Set()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.UnSet()
		s.log.Info("gps session started", "queue", s.cfg.QueueSize, "verify_checksum", s.cfg.VerifyChecksum)
		for {
			select {
			case <-runCtx.Done():
				s.drain()
				s.log.Info("gps session stopped", "lines", s.lines.Load())
				return
			case line := <-s.queue.ch:
				s.handle(line)
			}
		}
	}()
	return nil
}

// Close stops the consumer after applying whatever is already queued.
func (s *Service) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

// Write frames p and enqueues the completed lines. It never fails, so a
// Service can sit behind io.Copy.
func (s *Service) Write(p []byte) (int, error) {
	s.framerMu.Lock()
	before := s.framer.Dropped()
	lines := s.framer.Push(p)
	dropped := s.framer.Dropped() - before
	s.framerMu.Unlock()

	s.metrics.observeDropped("framer", dropped)
	for _, line := range lines {
		s.enqueue(line)
	}
	return len(p), nil
}

// Flush completes an unterminated trailing line, for end of stream.
func (s *Service) Flush() {
	s.framerMu.Lock()
	lines := s.framer.Flush()
	s.framerMu.Unlock()
	for _, line := range lines {
		s.enqueue(line)
	}
}

// Submit enqueues one already-delimited line.
func (s *Service) Submit(line string) {
	s.enqueue(line)
}

func (s *Service) enqueue(line string) {
	if s.queue.push(line) {
		s.metrics.observeDropped("queue", 1)
	}
}

// OnFix registers h for fix notifications. See Aggregator.OnFix.
func (s *Service) OnFix(h FixHandler) {
	s.agg.OnFix(h)
}

func (s *Service) Aggregator() *Aggregator {
	return s.agg
}

func (s *Service) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	s.framerMu.Lock()
	framerDropped := s.framer.Dropped()
	s.framerMu.Unlock()

	return Snapshot{
		Name:           s.cfg.Name,
		Running:        s.running.IsSet(),
		Lines:          s.lines.Load(),
		QueueDepth:     s.queue.Len(),
		QueueDropped:   s.queue.Dropped(),
		FramerDropped:  framerDropped,
		LastError:      s.lastErr.Load().(string),
		RecentFailures: s.failures.snapshot(),
		State:          s.agg.State(),
	}
}

func (s *Service) drain() {
	for {
		select {
		case line := <-s.queue.ch:
			s.handle(line)
		default:
			return
		}
	}
}

func (s *Service) handle(line string) {
	s.lines.Add(1)
	s.metrics.observeLine()

	kind, out, err := s.agg.applyLine(line)
	if err != nil {
		// Bad lines are routine on a noisy link; keep the last one only.
		s.lastErr.Store(err.Error())
		s.failures.add(time.Now().UTC(), line, err)
		s.metrics.observeParseError(err)
		return
	}
	if out == OutcomeIgnored && kind == KindUnknown {
		return
	}
	s.metrics.observeOutcome(kind, out, s.agg.State())
}
