package gps

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Quality is the normalized position quality reported by the receiver.
type Quality int

const (
	QualityUnknown     Quality = -1
	QualityInvalid     Quality = 0
	QualityAutonomous  Quality = 1
	QualityDGPS        Quality = 2
	QualityRTK         Quality = 3
	QualityExtendedRTK Quality = 10
)

func (q Quality) String() string {
	switch q {
	case QualityInvalid:
		return "invalid"
	case QualityAutonomous:
		return "autonomous"
	case QualityDGPS:
		return "dgps"
	case QualityRTK:
		return "rtk"
	case QualityExtendedRTK:
		return "xrtk"
	default:
		return "unknown"
	}
}

// NormalizeQuality maps a raw receiver quality code onto Quality.
// RTK fixed (4) folds into RTK and RTK float (5) into DGPS; codes outside the
// enumeration map to QualityUnknown.
func NormalizeQuality(code int) Quality {
	switch code {
	case 4:
		code = 3
	case 5:
		code = 2
	}
	switch q := Quality(code); q {
	case QualityInvalid, QualityAutonomous, QualityDGPS, QualityRTK, QualityExtendedRTK:
		return q
	default:
		return QualityUnknown
	}
}

// DMSToDecimal converts a DDMM.mmmm (or DDDMM.mmmm) value and hemisphere letter
// to signed decimal degrees. Only "N" and "E" are positive.
func DMSToDecimal(raw float64, hemi string) float64 {
	deg := math.Floor(raw / 100)
	rem := raw - deg*100
	mins := math.Floor(rem)
	secs := (rem - mins) * 60

	dec := deg + mins/60 + secs/3600
	switch strings.ToUpper(strings.TrimSpace(hemi)) {
	case "N", "E":
		return dec
	default:
		return -dec
	}
}

const (
	secondsPerDay = 86400.0
	halfDay       = secondsPerDay / 2
)

// parseUTCTime decodes hhmmss(.sss) to seconds since UTC midnight.
// Empty decodes to 0.
func parseUTCTime(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, fmt.Errorf("time of day out of range")
	}
	hh := math.Floor(v / 10000)
	mm := math.Floor(v/100) - hh*100
	ss := v - hh*10000 - mm*100
	if hh >= 24 || mm >= 60 || ss >= 61 {
		return 0, fmt.Errorf("time of day out of range")
	}
	return hh*3600 + mm*60 + ss, nil
}

// fieldDecoder decodes the numeric fields of one token sequence and keeps the
// first failure, so a sentence is either fully decoded or rejected.
type fieldDecoder struct {
	kind   Kind
	tokens []string
	err    error
}

func (d *fieldDecoder) text(i int) string {
	if i >= len(d.tokens) {
		return ""
	}
	return strings.TrimSpace(d.tokens[i])
}

func (d *fieldDecoder) fail(i int, err error) {
	if d.err == nil {
		d.err = &InvalidFieldError{Kind: d.kind, Index: i, Raw: d.text(i), Err: err}
	}
}

func (d *fieldDecoder) number(i int) float64 {
	s := d.text(i)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		d.fail(i, err)
		return 0
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		d.fail(i, fmt.Errorf("not a finite number"))
		return 0
	}
	return v
}

func (d *fieldDecoder) integer(i int) int {
	s := d.text(i)
	if s == "" {
		return 0
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		d.fail(i, err)
		return 0
	}
	return v
}

func (d *fieldDecoder) latLon(value, hemi int) float64 {
	raw := d.number(value)
	return DMSToDecimal(raw, d.text(hemi))
}

func (d *fieldDecoder) timeOfDay(i int) float64 {
	v, err := parseUTCTime(d.text(i))
	if err != nil {
		d.fail(i, err)
		return 0
	}
	return v
}
