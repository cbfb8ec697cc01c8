package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"gnssfix/internal/gps"
)

type logSummary struct {
	Lines       int
	Malformed   int
	Invalid     int
	Accepted    int
	KindCounts  map[gps.Kind]int
	FirstFixUTC string
	LastFixUTC  string
	Span        time.Duration
}

// summarizeNMEALog replays r through a fresh aggregator with default
// settings and tallies what it saw. Checksums are stripped, not verified.
func summarizeNMEALog(r io.Reader) (logSummary, error) {
	s := logSummary{KindCounts: map[gps.Kind]int{}}
	agg := gps.NewAggregator(gps.AggregatorConfig{}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	var first, last gps.Fix
	agg.OnFix(func(f gps.Fix) {
		if s.Accepted == 0 {
			first = f
		}
		last = f
		s.Accepted++
	})

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), 64*1024)
	sc.Split(gps.ScanSentences)
	for sc.Scan() {
		s.Lines++
		sentence, err := gps.Parse(gps.Tokenize(sc.Text()))
		switch {
		case errors.Is(err, gps.ErrInvalidField):
			s.Invalid++
			continue
		case err != nil:
			s.Malformed++
			continue
		}
		s.KindCounts[sentence.Kind()]++
		agg.Apply(sentence)
	}
	if err := sc.Err(); err != nil {
		return s, err
	}

	if s.Accepted > 0 {
		s.FirstFixUTC = first.UTCTime
		s.LastFixUTC = last.UTCTime
		s.Span = time.Duration((last.Timestamp - first.Timestamp) * float64(time.Second))
	}
	return s, nil
}

func printLogSummary(w io.Writer, path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("path is empty")
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	s, err := summarizeNMEALog(f)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "path: %s\n", path)
	fmt.Fprintf(w, "lines: %s\n", humanize.Comma(int64(s.Lines)))
	fmt.Fprintf(w, "malformed: %s\n", humanize.Comma(int64(s.Malformed)))
	fmt.Fprintf(w, "invalid_fields: %s\n", humanize.Comma(int64(s.Invalid)))
	fmt.Fprintf(w, "accepted_fixes: %s\n", humanize.Comma(int64(s.Accepted)))
	if s.Accepted > 0 {
		fmt.Fprintf(w, "fix_span: %s (%s .. %s)\n", s.Span, s.FirstFixUTC, s.LastFixUTC)
	}

	kinds := make([]gps.Kind, 0, len(s.KindCounts))
	for k := range s.KindCounts {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	fmt.Fprintf(w, "kind_counts:\n")
	for _, k := range kinds {
		fmt.Fprintf(w, "  %s: %s\n", k, humanize.Comma(int64(s.KindCounts[k])))
	}
	return nil
}
