package gps

import (
	"strings"

	nmea "github.com/adrianmo/go-nmea"
)

// Kind identifies a recognized sentence type.
type Kind int

const (
	KindUnknown Kind = iota
	KindGGA
	KindGST
	KindGSA
	KindRMC
	KindLLQ
	KindLLK
)

func (k Kind) String() string {
	switch k {
	case KindGGA:
		return "GGA"
	case KindGST:
		return "GST"
	case KindGSA:
		return "GSA"
	case KindRMC:
		return "RMC"
	case KindLLQ:
		return "LLQ"
	case KindLLK:
		return "LLK"
	default:
		return "unknown"
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	*k = KindUnknown
	for _, c := range kindPriority {
		if strings.EqualFold(string(b), c.String()) {
			*k = c
			break
		}
	}
	return nil
}

// kindPriority is the resolution order for identifiers that are not a plain
// talker+type pair. GST is checked before GGA.
var kindPriority = []Kind{KindGST, KindGGA, KindGSA, KindRMC, KindLLQ, KindLLK}

// Sentence is one decoded positioning message. Implementations are the value
// types GGA, GST, GSA, RMC, LLQ and LLK.
type Sentence interface {
	Kind() Kind
}

// GGA: Global Positioning System Fix Data
// Fields:
//
//	0: talker+type
//	1: time (hhmmss.ss)
//	2: latitude (ddmm.mmmm)
//	3: N/S
//	4: longitude (dddmm.mmmm)
//	5: E/W
//	6: fix quality (0=invalid)
//	7: number of satellites
//	8: HDOP
//	9: altitude (meters)
//
// 10: altitude units (M)
// 11: geoid separation
// 12: geoid separation units (M)
// 13: age of differential data (s)
// 14: differential station id
type GGA struct {
	Talker          string
	UTCTime         string
	TimeOfDay       float64 // seconds since UTC midnight
	Latitude        float64 // decimal degrees
	Longitude       float64 // decimal degrees
	Quality         int
	Satellites      int
	HDOP            float64
	Altitude        float64
	AltitudeUnits   string
	GeoidSeparation float64
	GeoidUnits      string
	DGPSAge         float64
	DGPSStation     string
}

func (GGA) Kind() Kind { return KindGGA }

// GST: GNSS pseudorange error statistics. Errors are 1-sigma, meters.
type GST struct {
	Talker         string
	UTCTime        string
	TimeOfDay      float64
	RangeRMS       float64
	SemiMajor      float64
	SemiMinor      float64
	Orientation    float64
	LatitudeError  float64
	LongitudeError float64
	AltitudeError  float64
}

func (GST) Kind() Kind { return KindGST }

// GSA: DOP and active satellites.
//
//	1: mode (M=manual, A=automatic)
//	2: fix type (1=none, 2=2D, 3=3D)
//	3-14: satellite ids used in the solution
//	15: PDOP
//	16: HDOP
//	17: VDOP
//	18: system id (NMEA 4.1, optional)
type GSA struct {
	Talker       string
	Mode         string
	FixType      int
	SatelliteIDs []int
	PDOP         float64
	HDOP         float64
	VDOP         float64
	SystemID     int
}

func (GSA) Kind() Kind { return KindGSA }

// RMC: Recommended Minimum Specific GNSS Data
// Fields (NMEA 0183 v2.3):
//
//	0: talker+type
//	1: time (hhmmss.sss)
//	2: status (A=active, V=void)
//	3: latitude (ddmm.mmmm)
//	4: N/S
//	5: longitude (dddmm.mmmm)
//	6: E/W
//	7: speed over ground (knots)
//	8: course over ground (deg)
//	9: date (ddmmyy)
//
// 10: magnetic variation (deg)
// 11: E/W
// 12: mode indicator (optional before v2.3)
type RMC struct {
	Talker            string
	UTCTime           string
	TimeOfDay         float64
	Status            string
	Latitude          float64
	Longitude         float64
	SpeedKnots        float64
	CourseDeg         float64
	Date              string
	MagneticVariation float64
	MagneticDirection string
	Mode              string
}

func (RMC) Kind() Kind { return KindRMC }

// Active reports whether the receiver flagged the data valid.
func (r RMC) Active() bool {
	return strings.EqualFold(r.Status, "A")
}

// LLQ: Leica local position and quality. Coordinates are grid values in the
// receiver's local projection, not degrees.
//
//	1: time
//	2: date (ddmmyy)
//	3: grid easting
//	4: units (M)
//	5: grid northing
//	6: units (M)
//	7: quality
//	8: number of satellites
//	9: coordinate quality (m)
//
// 10: height
// 11: units (M)
type LLQ struct {
	Talker            string
	UTCTime           string
	TimeOfDay         float64
	UTCDate           string
	Easting           float64
	EastingUnits      string
	Northing          float64
	NorthingUnits     string
	RawQuality        int
	Quality           Quality
	Satellites        int
	CoordinateQuality float64
	Height            float64
	HeightUnits       string
}

func (LLQ) Kind() Kind { return KindLLQ }

// LLK: Leica local position and GDOP. Same layout as LLQ with GDOP in place
// of the coordinate quality.
type LLK struct {
	Talker        string
	UTCTime       string
	TimeOfDay     float64
	UTCDate       string
	Easting       float64
	EastingUnits  string
	Northing      float64
	NorthingUnits string
	RawQuality    int
	Quality       Quality
	Satellites    int
	GDOP          float64
	Height        float64
	HeightUnits   string
}

func (LLK) Kind() Kind { return KindLLK }

// Tokenize splits a framed line into its comma-separated fields.
func Tokenize(line string) []string {
	return strings.Split(line, nmea.FieldSep)
}

// Parse decodes a token sequence into a Sentence. It either returns a fully
// decoded sentence or an error; it never returns a partially decoded one.
func Parse(tokens []string) (Sentence, error) {
	if len(tokens) == 0 {
		return nil, &MalformedSentenceError{Expected: KindUnknown}
	}
	kind, talker := identify(tokens[0])
	switch kind {
	case KindGGA:
		return parseGGA(talker, tokens)
	case KindGST:
		return parseGST(talker, tokens)
	case KindGSA:
		return parseGSA(talker, tokens)
	case KindRMC:
		return parseRMC(talker, tokens)
	case KindLLQ:
		return parseLLQ(talker, tokens)
	case KindLLK:
		return parseLLK(talker, tokens)
	default:
		return nil, &MalformedSentenceError{
			Expected:   KindUnknown,
			Identifier: strings.TrimSpace(tokens[0]),
			TokenCount: len(tokens),
		}
	}
}

// identify resolves the identifier token. A talker+type pair ("GPGGA") is
// matched exactly; anything else falls back to kindPriority containment.
func identify(id string) (Kind, string) {
	id = strings.ToUpper(strings.TrimSpace(id))
	id = strings.TrimLeft(id, "$!")
	// Proprietary sentences ($P + maker code) reuse standard type letters.
	if strings.HasPrefix(id, "P") {
		return KindUnknown, ""
	}
	if len(id) == 5 {
		for _, k := range kindPriority {
			if id[2:] == k.String() {
				return k, id[:2]
			}
		}
	}
	for _, k := range kindPriority {
		if strings.Contains(id, k.String()) {
			return k, ""
		}
	}
	return KindUnknown, ""
}

func checkCount(kind Kind, tokens []string, want int, exact bool) error {
	n := len(tokens)
	if n < want || (exact && n != want) {
		return &MalformedSentenceError{
			Expected:   kind,
			Identifier: strings.TrimSpace(tokens[0]),
			TokenCount: n,
		}
	}
	return nil
}

func parseGGA(talker string, tokens []string) (Sentence, error) {
	if err := checkCount(KindGGA, tokens, 15, true); err != nil {
		return nil, err
	}
	d := fieldDecoder{kind: KindGGA, tokens: tokens}
	s := GGA{
		Talker:          talker,
		UTCTime:         d.text(1),
		TimeOfDay:       d.timeOfDay(1),
		Latitude:        d.latLon(2, 3),
		Longitude:       d.latLon(4, 5),
		Quality:         d.integer(6),
		Satellites:      d.integer(7),
		HDOP:            d.number(8),
		Altitude:        d.number(9),
		AltitudeUnits:   d.text(10),
		GeoidSeparation: d.number(11),
		GeoidUnits:      d.text(12),
		DGPSAge:         d.number(13),
		DGPSStation:     d.text(14),
	}
	if d.err != nil {
		return nil, d.err
	}
	return s, nil
}

func parseGST(talker string, tokens []string) (Sentence, error) {
	if err := checkCount(KindGST, tokens, 9, false); err != nil {
		return nil, err
	}
	d := fieldDecoder{kind: KindGST, tokens: tokens}
	s := GST{
		Talker:         talker,
		UTCTime:        d.text(1),
		TimeOfDay:      d.timeOfDay(1),
		RangeRMS:       d.number(2),
		SemiMajor:      d.number(3),
		SemiMinor:      d.number(4),
		Orientation:    d.number(5),
		LatitudeError:  d.number(6),
		LongitudeError: d.number(7),
		AltitudeError:  d.number(8),
	}
	if d.err != nil {
		return nil, d.err
	}
	return s, nil
}

func parseGSA(talker string, tokens []string) (Sentence, error) {
	if err := checkCount(KindGSA, tokens, 18, false); err != nil {
		return nil, err
	}
	d := fieldDecoder{kind: KindGSA, tokens: tokens}
	s := GSA{
		Talker:  talker,
		Mode:    d.text(1),
		FixType: d.integer(2),
		PDOP:    d.number(15),
		HDOP:    d.number(16),
		VDOP:    d.number(17),
	}
	for i := 3; i <= 14; i++ {
		if id := d.integer(i); id != 0 {
			s.SatelliteIDs = append(s.SatelliteIDs, id)
		}
	}
	if len(tokens) > 18 {
		s.SystemID = d.integer(18)
	}
	if d.err != nil {
		return nil, d.err
	}
	return s, nil
}

func parseRMC(talker string, tokens []string) (Sentence, error) {
	if err := checkCount(KindRMC, tokens, 12, false); err != nil {
		return nil, err
	}
	d := fieldDecoder{kind: KindRMC, tokens: tokens}
	s := RMC{
		Talker:            talker,
		UTCTime:           d.text(1),
		TimeOfDay:         d.timeOfDay(1),
		Status:            d.text(2),
		Latitude:          d.latLon(3, 4),
		Longitude:         d.latLon(5, 6),
		SpeedKnots:        d.number(7),
		CourseDeg:         d.number(8),
		Date:              d.text(9),
		MagneticVariation: d.number(10),
		MagneticDirection: d.text(11),
		Mode:              d.text(12),
	}
	if d.err != nil {
		return nil, d.err
	}
	return s, nil
}

func parseLLQ(talker string, tokens []string) (Sentence, error) {
	if err := checkCount(KindLLQ, tokens, 12, true); err != nil {
		return nil, err
	}
	d := fieldDecoder{kind: KindLLQ, tokens: tokens}
	s := LLQ{
		Talker:            talker,
		UTCTime:           d.text(1),
		TimeOfDay:         d.timeOfDay(1),
		UTCDate:           d.text(2),
		Easting:           d.number(3),
		EastingUnits:      d.text(4),
		Northing:          d.number(5),
		NorthingUnits:     d.text(6),
		RawQuality:        d.integer(7),
		Satellites:        d.integer(8),
		CoordinateQuality: d.number(9),
		Height:            d.number(10),
		HeightUnits:       d.text(11),
	}
	if d.err != nil {
		return nil, d.err
	}
	s.Quality = NormalizeQuality(s.RawQuality)
	return s, nil
}

func parseLLK(talker string, tokens []string) (Sentence, error) {
	if err := checkCount(KindLLK, tokens, 12, true); err != nil {
		return nil, err
	}
	d := fieldDecoder{kind: KindLLK, tokens: tokens}
	s := LLK{
		Talker:        talker,
		UTCTime:       d.text(1),
		TimeOfDay:     d.timeOfDay(1),
		UTCDate:       d.text(2),
		Easting:       d.number(3),
		EastingUnits:  d.text(4),
		Northing:      d.number(5),
		NorthingUnits: d.text(6),
		RawQuality:    d.integer(7),
		Satellites:    d.integer(8),
		GDOP:          d.number(9),
		Height:        d.number(10),
		HeightUnits:   d.text(11),
	}
	if d.err != nil {
		return nil, d.err
	}
	s.Quality = NormalizeQuality(s.RawQuality)
	return s, nil
}
