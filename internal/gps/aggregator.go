package gps

import (
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	geo "github.com/kellydunn/golang-geo"
)

const (
	// rolloverWindow is how close to midnight, in seconds, the clock must be
	// on both sides for a backward jump to count as a new UTC day.
	rolloverWindow = 300.0
	rmcDateLayout  = "020106"
)

const (
	DefaultAccuracyThresholdM = 5.0
	// DefaultGGAAccuracyM is the accuracy assigned to GGA-sourced fixes, which
	// carry no native accuracy field.
	DefaultGGAAccuracyM = 1.0
)

// AggregatorConfig controls fix acceptance. Zero values select defaults; the
// interval and distance policies are disabled when zero.
type AggregatorConfig struct {
	AccuracyThresholdM     float64
	GGAHorizontalAccuracyM float64
	GGAVerticalAccuracyM   float64

	// MinFixInterval drops a fix whose timestamp is closer than this to the
	// last accepted one.
	MinFixInterval time.Duration

	// MinUpdateDistanceM accepts a fix into state but skips the notification
	// while it is within this distance of the last notified fix.
	MinUpdateDistanceM float64
}

func (c AggregatorConfig) withDefaults() AggregatorConfig {
	if c.AccuracyThresholdM <= 0 {
		c.AccuracyThresholdM = DefaultAccuracyThresholdM
	}
	if c.GGAHorizontalAccuracyM <= 0 {
		c.GGAHorizontalAccuracyM = DefaultGGAAccuracyM
	}
	if c.GGAVerticalAccuracyM <= 0 {
		c.GGAVerticalAccuracyM = DefaultGGAAccuracyM
	}
	return c
}

// Fix is one accepted position.
type Fix struct {
	Latitude            float64   `json:"lat_deg"`
	Longitude           float64   `json:"lon_deg"`
	Altitude            float64   `json:"alt_m"`
	HorizontalAccuracyM float64   `json:"horiz_acc_m"`
	VerticalAccuracyM   float64   `json:"vert_acc_m"`
	Timestamp           float64   `json:"timestamp"` // UTC seconds, day rollovers included
	UTCTime             string    `json:"utc_time,omitempty"`
	Source              Kind      `json:"source"`
	Quality             int       `json:"quality"`
	Satellites          int       `json:"satellites"`
	HDOP                float64   `json:"hdop"`
	ReceivedAt          time.Time `json:"received_at"`
}

// FixHandler receives every notified fix, in acceptance order.
type FixHandler func(Fix)

// Outcome is what Apply did with a sentence.
type Outcome int

const (
	OutcomeIgnored Outcome = iota
	OutcomeAccepted
	OutcomeSuppressed
	OutcomeStale
	OutcomeThrottled
	OutcomeNoFix
	OutcomeUpdated
	OutcomeRejected
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeSuppressed:
		return "suppressed"
	case OutcomeStale:
		return "stale"
	case OutcomeThrottled:
		return "throttled"
	case OutcomeNoFix:
		return "no_fix"
	case OutcomeUpdated:
		return "updated"
	case OutcomeRejected:
		return "rejected"
	default:
		return "ignored"
	}
}

// Counters tallies outcomes over the life of an aggregator.
type Counters struct {
	Accepted   uint64 `json:"accepted"`
	Suppressed uint64 `json:"suppressed"`
	Stale      uint64 `json:"stale"`
	Throttled  uint64 `json:"throttled"`
	NoFix      uint64 `json:"no_fix"`
	Updated    uint64 `json:"updated"`
	Ignored    uint64 `json:"ignored"`
	Rejected   uint64 `json:"rejected"`
}

func (c *Counters) add(o Outcome) {
	switch o {
	case OutcomeAccepted:
		c.Accepted++
	case OutcomeSuppressed:
		c.Suppressed++
	case OutcomeStale:
		c.Stale++
	case OutcomeThrottled:
		c.Throttled++
	case OutcomeNoFix:
		c.NoFix++
	case OutcomeUpdated:
		c.Updated++
	case OutcomeRejected:
		c.Rejected++
	default:
		c.Ignored++
	}
}

// State is a point-in-time copy of the aggregator. Fix pointers are never
// mutated after publication.
type State struct {
	Tracking        bool    `json:"tracking"`
	LastFix         *Fix    `json:"last_fix,omitempty"`
	LastAccurateFix *Fix    `json:"last_accurate_fix,omitempty"`
	LastTimestamp   float64 `json:"last_timestamp"`
	Quality         Quality `json:"quality"`

	ErrorsOK        bool    `json:"errors_ok"`
	LatitudeErrorM  float64 `json:"lat_err_m"`
	LongitudeErrorM float64 `json:"lon_err_m"`
	AltitudeErrorM  float64 `json:"alt_err_m"`

	FixType        int     `json:"fix_type"`
	PDOP           float64 `json:"pdop"`
	HDOP           float64 `json:"hdop"`
	VDOP           float64 `json:"vdop"`
	GDOP           float64 `json:"gdop"`
	SatellitesUsed int     `json:"satellites_used"`

	SpeedKnots float64 `json:"speed_kt"`
	CourseDeg  float64 `json:"course_deg"`
	RMCStatus  string  `json:"rmc_status,omitempty"`
	RMCDate    string  `json:"rmc_date,omitempty"`

	CoordinateQualityM float64 `json:"coord_quality_m"`

	Counters Counters `json:"counters"`
}

// Aggregator is the fix state machine. Apply and ApplyLine are serialized by
// one lock; the read accessors use the last published State and never wait on
// it. Handlers run inside Apply and must not call back into it.
type Aggregator struct {
	cfg AggregatorConfig
	log *slog.Logger
	now func() time.Time

	mu        sync.Mutex
	st        State
	dayOffset float64
	fixDay    time.Time // UTC date of the current day offset, once RMC has reported one
	notified  *Fix
	handlers  []FixHandler

	published atomic.Value // State
}

func NewAggregator(cfg AggregatorConfig, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Aggregator{
		cfg: cfg.withDefaults(),
		log: logger,
		now: func() time.Time { return time.Now().UTC() },
		st:  State{Quality: QualityUnknown},
	}
	a.published.Store(a.st)
	return a
}

// OnFix registers h for fix notifications.
func (a *Aggregator) OnFix(h FixHandler) {
	if h == nil {
		return
	}
	a.mu.Lock()
	a.handlers = append(a.handlers, h)
	a.mu.Unlock()
}

// ApplyLine frames, tokenizes, parses and applies one line. Parse failures
// leave the state untouched apart from the rejection counter.
func (a *Aggregator) ApplyLine(line string) (Outcome, error) {
	_, out, err := a.applyLine(line)
	return out, err
}

func (a *Aggregator) applyLine(line string) (Kind, Outcome, error) {
	line, _, _ = stripChecksum(line)
	if line == "" {
		return KindUnknown, OutcomeIgnored, nil
	}
	s, err := Parse(Tokenize(line))
	if err != nil {
		a.mu.Lock()
		a.st.Counters.add(OutcomeRejected)
		a.published.Store(a.st)
		a.mu.Unlock()
		a.log.Debug("gps sentence rejected", "line", line, "err", err)
		return KindUnknown, OutcomeRejected, err
	}
	return s.Kind(), a.Apply(s), nil
}

// Apply feeds one decoded sentence to the state machine.
func (a *Aggregator) Apply(s Sentence) Outcome {
	a.mu.Lock()
	defer a.mu.Unlock()

	var (
		out    Outcome
		notify bool
	)
	switch v := s.(type) {
	case GGA:
		out, notify = a.applyGGA(v)
	case GST:
		a.st.ErrorsOK = true
		a.st.LatitudeErrorM = v.LatitudeError
		a.st.LongitudeErrorM = v.LongitudeError
		a.st.AltitudeErrorM = v.AltitudeError
		out = OutcomeUpdated
	case GSA:
		a.st.FixType = v.FixType
		a.st.PDOP = v.PDOP
		a.st.HDOP = v.HDOP
		a.st.VDOP = v.VDOP
		a.st.SatellitesUsed = len(v.SatelliteIDs)
		out = OutcomeUpdated
	case RMC:
		a.st.RMCStatus = v.Status
		if v.Active() {
			a.st.SpeedKnots = v.SpeedKnots
			a.st.CourseDeg = v.CourseDeg
			a.st.RMCDate = v.Date
		}
		out = OutcomeUpdated
	case LLQ:
		a.st.Quality = v.Quality
		a.st.CoordinateQualityM = v.CoordinateQuality
		a.st.SatellitesUsed = v.Satellites
		out = OutcomeUpdated
	case LLK:
		a.st.Quality = v.Quality
		a.st.GDOP = v.GDOP
		a.st.SatellitesUsed = v.Satellites
		out = OutcomeUpdated
	default:
		out = OutcomeIgnored
	}

	a.st.Counters.add(out)
	a.published.Store(a.st)

	if notify {
		fix := *a.st.LastFix
		for _, h := range a.handlers {
			h(fix)
		}
	}
	return out
}

func (a *Aggregator) applyGGA(v GGA) (Outcome, bool) {
	// Receivers report zero latitude and altitude until they have a fix.
	if v.Latitude == 0 && v.Altitude == 0 {
		return OutcomeNoFix, false
	}

	last := a.st.LastTimestamp
	ts := v.TimeOfDay + a.dayOffset
	rollover := false
	if a.st.Tracking {
		lastTOD := math.Mod(last, secondsPerDay)
		switch {
		case ts <= last && a.crossedMidnight(lastTOD, v.TimeOfDay):
			ts += secondsPerDay
			rollover = true
		case ts > last && a.dayOffset > 0 && lastTOD < rolloverWindow && v.TimeOfDay >= secondsPerDay-rolloverWindow &&
			a.now().Sub(a.st.LastFix.ReceivedAt) < rolloverWindow*time.Second:
			// Late sentence from just before the last midnight.
			ts -= secondsPerDay
		}
	}
	if a.st.Tracking && ts <= last {
		a.log.Debug("gps stale fix dropped", "utc_time", v.UTCTime, "timestamp", ts, "last", last)
		return OutcomeStale, false
	}
	if a.st.Tracking && a.cfg.MinFixInterval > 0 && ts-last < a.cfg.MinFixInterval.Seconds() {
		return OutcomeThrottled, false
	}
	switch {
	case rollover:
		a.dayOffset += secondsPerDay
		if !a.fixDay.IsZero() {
			a.fixDay = a.fixDay.AddDate(0, 0, 1)
		}
	case a.fixDay.IsZero():
		a.fixDay, _ = parseRMCDate(a.st.RMCDate)
	}

	fix := &Fix{
		Latitude:            v.Latitude,
		Longitude:           v.Longitude,
		Altitude:            v.Altitude,
		HorizontalAccuracyM: a.cfg.GGAHorizontalAccuracyM,
		VerticalAccuracyM:   a.cfg.GGAVerticalAccuracyM,
		Timestamp:           ts,
		UTCTime:             v.UTCTime,
		Source:              KindGGA,
		Quality:             v.Quality,
		Satellites:          v.Satellites,
		HDOP:                v.HDOP,
		ReceivedAt:          a.now(),
	}
	a.st.Tracking = true
	a.st.LastFix = fix
	a.st.LastTimestamp = ts
	a.st.Quality = NormalizeQuality(v.Quality)
	if fix.HorizontalAccuracyM < a.cfg.AccuracyThresholdM {
		a.st.LastAccurateFix = fix
	}
	a.log.Debug("gps fix accepted", "utc_time", v.UTCTime, "lat", fix.Latitude, "lon", fix.Longitude, "alt_m", fix.Altitude)

	if a.cfg.MinUpdateDistanceM > 0 && a.notified != nil && distanceM(a.notified, fix) < a.cfg.MinUpdateDistanceM {
		return OutcomeSuppressed, false
	}
	a.notified = fix
	return OutcomeAccepted, true
}

// crossedMidnight reports whether a time of day at or before the last
// accepted one is really the next UTC day. Only two signals count: the clock
// wrapping from the last minutes before midnight into the first minutes
// after, or the RMC date moving past the day currently tracked.
func (a *Aggregator) crossedMidnight(lastTOD, tod float64) bool {
	if lastTOD >= secondsPerDay-rolloverWindow && tod < rolloverWindow {
		return true
	}
	if a.fixDay.IsZero() {
		return false
	}
	cur, ok := parseRMCDate(a.st.RMCDate)
	return ok && cur.After(a.fixDay)
}

func parseRMCDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(rmcDateLayout, s)
	return t, err == nil
}

// distanceM is the great-circle distance between two fixes in meters.
func distanceM(a, b *Fix) float64 {
	p := geo.NewPoint(a.Latitude, a.Longitude)
	return p.GreatCircleDistance(geo.NewPoint(b.Latitude, b.Longitude)) * 1000
}

// State returns the last published state.
func (a *Aggregator) State() State {
	return a.published.Load().(State)
}

// LastFix returns the last accepted fix, if any.
func (a *Aggregator) LastFix() (Fix, bool) {
	st := a.State()
	if st.LastFix == nil {
		return Fix{}, false
	}
	return *st.LastFix, true
}

// LastAccurateFix returns the last fix whose horizontal accuracy was below the
// configured threshold, if any.
func (a *Aggregator) LastAccurateFix() (Fix, bool) {
	st := a.State()
	if st.LastAccurateFix == nil {
		return Fix{}, false
	}
	return *st.LastAccurateFix, true
}

func (a *Aggregator) Quality() Quality {
	return a.State().Quality
}

// Errors returns the latest latitude/longitude error estimates (meters).
func (a *Aggregator) Errors() (latM, lonM float64, ok bool) {
	st := a.State()
	return st.LatitudeErrorM, st.LongitudeErrorM, st.ErrorsOK
}

// LastTimestamp returns the timestamp of the last accepted fix.
func (a *Aggregator) LastTimestamp() (float64, bool) {
	st := a.State()
	return st.LastTimestamp, st.Tracking
}
