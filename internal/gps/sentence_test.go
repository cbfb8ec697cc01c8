package gps

import (
	"errors"
	"fmt"
	"math"
	"testing"

	nmea "github.com/adrianmo/go-nmea"
)

func nmeaLine(payload string) string {
	return fmt.Sprintf("$%s*%s", payload, nmea.Checksum(payload))
}

func parseLine(t *testing.T, line string) Sentence {
	t.Helper()
	framed, _, _ := stripChecksum(line)
	s, err := Parse(Tokenize(framed))
	if err != nil {
		t.Fatalf("Parse(%q) error: %v", line, err)
	}
	return s
}

func near(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestParse_GGAScenario(t *testing.T) {
	s := parseLine(t, nmeaLine("GPGGA,113616.00,4837.123,N,00740.456,E,1,08,0.9,15.2,M,45.3,M,,"))
	g, ok := s.(GGA)
	if !ok {
		t.Fatalf("got %T want GGA", s)
	}
	if g.Talker != "GP" {
		t.Fatalf("talker=%q want GP", g.Talker)
	}
	if !near(g.Latitude, 48.61872, 1e-4) || !near(g.Longitude, 7.6743, 1e-4) {
		t.Fatalf("lat=%f lon=%f", g.Latitude, g.Longitude)
	}
	if g.Altitude != 15.2 || g.Quality != 1 || g.Satellites != 8 || g.HDOP != 0.9 {
		t.Fatalf("unexpected fields: %+v", g)
	}
	if g.TimeOfDay != 11*3600+36*60+16 {
		t.Fatalf("time_of_day=%f", g.TimeOfDay)
	}
	if g.GeoidSeparation != 45.3 || g.DGPSStation != "" {
		t.Fatalf("unexpected geoid fields: %+v", g)
	}
}

func TestEncodeGGA_RoundTrip(t *testing.T) {
	in := Fix{UTCTime: "083015.50", Latitude: -33.8688, Longitude: 151.2093, Quality: 4, Satellites: 12, HDOP: 0.7, Altitude: 58.3}
	s := parseLine(t, EncodeGGA(in))
	out := s.(GGA)
	if !near(out.Latitude, in.Latitude, 1e-6) || !near(out.Longitude, in.Longitude, 1e-6) {
		t.Fatalf("lat/lon=%f,%f want %f,%f", out.Latitude, out.Longitude, in.Latitude, in.Longitude)
	}
	if out.Quality != in.Quality || out.Satellites != in.Satellites || out.Altitude != in.Altitude || out.HDOP != in.HDOP {
		t.Fatalf("round trip mismatch: %+v", out)
	}
	if out.UTCTime != in.UTCTime {
		t.Fatalf("utc=%q want %q", out.UTCTime, in.UTCTime)
	}
}

func TestEncodeGGA_TimeFromTimestamp(t *testing.T) {
	line := EncodeGGA(Fix{Timestamp: secondsPerDay + 41776.25, Latitude: 1, Altitude: 1})
	if !checksumOK(mustStrip(line)) {
		t.Fatalf("bad checksum: %q", line)
	}
	g := parseLine(t, line).(GGA)
	if g.UTCTime != "113616.25" {
		t.Fatalf("utc=%q want 113616.25", g.UTCTime)
	}
}

func mustStrip(line string) (string, string) {
	l, ck, _ := stripChecksum(line)
	return l, ck
}

func TestParse_GST(t *testing.T) {
	s := parseLine(t, "$GPGST,142510.00,17,2.1,0.67,48,0.62,0.67,0.99*59")
	g, ok := s.(GST)
	if !ok {
		t.Fatalf("got %T want GST", s)
	}
	if g.LatitudeError != 0.62 || g.LongitudeError != 0.67 || g.AltitudeError != 0.99 {
		t.Fatalf("unexpected errors: %+v", g)
	}
	if g.RangeRMS != 17 || g.Orientation != 48 {
		t.Fatalf("unexpected fields: %+v", g)
	}
}

func TestParse_GSA(t *testing.T) {
	s := parseLine(t, nmeaLine("GPGSA,A,3,04,05,,09,12,,,24,,,,,2.5,1.3,2.1"))
	g, ok := s.(GSA)
	if !ok {
		t.Fatalf("got %T want GSA", s)
	}
	if g.FixType != 3 || g.Mode != "A" {
		t.Fatalf("unexpected mode/fix: %+v", g)
	}
	want := []int{4, 5, 9, 12, 24}
	if len(g.SatelliteIDs) != len(want) {
		t.Fatalf("sats=%v want %v", g.SatelliteIDs, want)
	}
	for i := range want {
		if g.SatelliteIDs[i] != want[i] {
			t.Fatalf("sats=%v want %v", g.SatelliteIDs, want)
		}
	}
	if g.PDOP != 2.5 || g.HDOP != 1.3 || g.VDOP != 2.1 {
		t.Fatalf("unexpected dop: %+v", g)
	}
}

func TestParse_RMC(t *testing.T) {
	s := parseLine(t, nmeaLine("GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W"))
	r, ok := s.(RMC)
	if !ok {
		t.Fatalf("got %T want RMC", s)
	}
	if !r.Active() {
		t.Fatalf("expected active")
	}
	if !near(r.Latitude, 48.1173, 1e-4) || !near(r.Longitude, 11.516667, 1e-4) {
		t.Fatalf("lat=%f lon=%f", r.Latitude, r.Longitude)
	}
	if r.SpeedKnots != 22.4 || r.CourseDeg != 84.4 || r.Date != "230394" || r.Mode != "" {
		t.Fatalf("unexpected fields: %+v", r)
	}
}

func TestParse_LeicaQualityNormalized(t *testing.T) {
	s := parseLine(t, nmeaLine("GPLLQ,034137.00,210712,,M,,M,4,15,0.011,,M"))
	q, ok := s.(LLQ)
	if !ok {
		t.Fatalf("got %T want LLQ", s)
	}
	if q.RawQuality != 4 || q.Quality != QualityRTK {
		t.Fatalf("quality raw=%d norm=%v", q.RawQuality, q.Quality)
	}
	if q.Satellites != 15 || q.CoordinateQuality != 0.011 {
		t.Fatalf("unexpected fields: %+v", q)
	}
	if q.Easting != 0 || q.Northing != 0 || q.Height != 0 {
		t.Fatalf("empty numeric fields should decode as 0: %+v", q)
	}

	s = parseLine(t, nmeaLine("GPLLK,034137.00,210712,1234.5,M,5678.9,M,5,12,1.8,100.2,M"))
	k, ok := s.(LLK)
	if !ok {
		t.Fatalf("got %T want LLK", s)
	}
	if k.Quality != QualityDGPS || k.GDOP != 1.8 || k.Easting != 1234.5 || k.Height != 100.2 {
		t.Fatalf("unexpected fields: %+v", k)
	}
}

func TestParse_MalformedSentence(t *testing.T) {
	cases := []struct {
		name     string
		line     string
		expected Kind
	}{
		{name: "Garbage", line: "garbage,not,a,sentence", expected: KindUnknown},
		{name: "Empty", line: "", expected: KindUnknown},
		{name: "GGAShort", line: "GPGGA,113616.00,4837.123,N,00740.456,E,1,08,0.9,15.2,M,45.3,M,", expected: KindGGA},
		{name: "GGALong", line: "GPGGA,113616.00,4837.123,N,00740.456,E,1,08,0.9,15.2,M,45.3,M,,,", expected: KindGGA},
		{name: "GSTShort", line: "GPGST,142510.00,17,2.1,0.67,48,0.62,0.67", expected: KindGST},
		{name: "LLQLong", line: "GPLLQ,034137.00,210712,,M,,M,4,15,0.011,,M,", expected: KindLLQ},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(Tokenize(tc.line))
			if !errors.Is(err, ErrMalformedSentence) {
				t.Fatalf("err=%v want malformed", err)
			}
			var me *MalformedSentenceError
			if !errors.As(err, &me) {
				t.Fatalf("err=%T want *MalformedSentenceError", err)
			}
			if me.Expected != tc.expected {
				t.Fatalf("expected=%v want %v", me.Expected, tc.expected)
			}
		})
	}
}

func TestParse_InvalidField(t *testing.T) {
	_, err := Parse(Tokenize("GPGGA,113616.00,48x7.123,N,00740.456,E,1,08,0.9,15.2,M,45.3,M,,"))
	if !errors.Is(err, ErrInvalidField) {
		t.Fatalf("err=%v want invalid field", err)
	}
	if errors.Is(err, ErrMalformedSentence) {
		t.Fatalf("invalid field must not match malformed")
	}
	var fe *InvalidFieldError
	if !errors.As(err, &fe) {
		t.Fatalf("err=%T want *InvalidFieldError", err)
	}
	if fe.Kind != KindGGA || fe.Index != 2 || fe.Raw != "48x7.123" {
		t.Fatalf("unexpected field error: %+v", fe)
	}

	_, err = Parse(Tokenize("GPGST,250000.00,17,2.1,0.67,48,0.62,0.67,0.99"))
	if !errors.Is(err, ErrInvalidField) {
		t.Fatalf("out of range time: err=%v want invalid field", err)
	}
}

func TestIdentify_Priority(t *testing.T) {
	cases := []struct {
		id     string
		kind   Kind
		talker string
	}{
		{"$GPGGA", KindGGA, "GP"},
		{"GNGST", KindGST, "GN"},
		{"gagsa", KindGSA, "GA"},
		{"GNRMC", KindRMC, "GN"},
		{"$PGRMC", KindUnknown, ""},
		{"$PGRME", KindUnknown, ""},
		{"XXGGAGST", KindGST, ""},
		{"GPRMCGGA", KindGGA, ""},
		{"$GPXYZ", KindUnknown, ""},
	}
	for _, tc := range cases {
		kind, talker := identify(tc.id)
		if kind != tc.kind || talker != tc.talker {
			t.Fatalf("identify(%q)=%v,%q want %v,%q", tc.id, kind, talker, tc.kind, tc.talker)
		}
	}
}
