package gps

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exports service counters. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	lines       prometheus.Counter
	parseErrors *prometheus.CounterVec
	sentences   *prometheus.CounterVec
	outcomes    *prometheus.CounterVec
	dropped     *prometheus.CounterVec
	lastFix     prometheus.Gauge
	quality     prometheus.Gauge
}

// NewMetrics registers the collectors with reg. A nil reg creates unregistered
// collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		lines: f.NewCounter(prometheus.CounterOpts{
			Namespace: "gnssfix",
			Name:      "lines_total",
			Help:      "Framed lines handed to the parser.",
		}),
		parseErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gnssfix",
			Name:      "parse_errors_total",
			Help:      "Lines rejected by the parser, by reason.",
		}, []string{"reason"}),
		sentences: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gnssfix",
			Name:      "sentences_total",
			Help:      "Decoded sentences, by kind.",
		}, []string{"kind"}),
		outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gnssfix",
			Name:      "outcomes_total",
			Help:      "Aggregator outcomes.",
		}, []string{"outcome"}),
		dropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gnssfix",
			Name:      "dropped_lines_total",
			Help:      "Lines discarded before parsing, by stage.",
		}, []string{"stage"}),
		lastFix: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "gnssfix",
			Name:      "last_fix_timestamp_seconds",
			Help:      "Timestamp of the last accepted fix.",
		}),
		quality: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "gnssfix",
			Name:      "position_quality",
			Help:      "Normalized position quality code.",
		}),
	}
}

func (m *Metrics) observeLine() {
	if m == nil {
		return
	}
	m.lines.Inc()
}

func (m *Metrics) observeParseError(err error) {
	if m == nil {
		return
	}
	reason := "other"
	switch {
	case errors.Is(err, ErrMalformedSentence):
		reason = "malformed"
	case errors.Is(err, ErrInvalidField):
		reason = "invalid_field"
	}
	m.parseErrors.WithLabelValues(reason).Inc()
}

func (m *Metrics) observeOutcome(kind Kind, out Outcome, st State) {
	if m == nil {
		return
	}
	m.sentences.WithLabelValues(kind.String()).Inc()
	m.outcomes.WithLabelValues(out.String()).Inc()
	if st.Tracking {
		m.lastFix.Set(st.LastTimestamp)
	}
	m.quality.Set(float64(st.Quality))
}

func (m *Metrics) observeDropped(stage string, n uint64) {
	if m == nil || n == 0 {
		return
	}
	m.dropped.WithLabelValues(stage).Add(float64(n))
}
