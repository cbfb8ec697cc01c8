package gps

import (
	"fmt"
	"math"

	nmea "github.com/adrianmo/go-nmea"
)

// EncodeGGA renders f as a checksummed $GPGGA sentence (no line terminator),
// for downstream consumers that only speak NMEA.
func EncodeGGA(f Fix) string {
	utc := f.UTCTime
	if utc == "" {
		tod := math.Mod(f.Timestamp, secondsPerDay)
		if tod < 0 {
			tod += secondsPerDay
		}
		hh := math.Floor(tod / 3600)
		mm := math.Floor((tod - hh*3600) / 60)
		ss := tod - hh*3600 - mm*60
		utc = fmt.Sprintf("%02.0f%02.0f%05.2f", hh, mm, ss)
	}
	lat, ns := splitHemisphere(f.Latitude, "N", "S")
	lon, ew := splitHemisphere(f.Longitude, "E", "W")
	payload := fmt.Sprintf("GPGGA,%s,%09.4f,%s,%010.4f,%s,%d,%02d,%.1f,%.1f,M,,M,,",
		utc, toDDMM(lat), ns, toDDMM(lon), ew, f.Quality, f.Satellites, f.HDOP, f.Altitude)
	return nmea.SentenceStart + payload + nmea.ChecksumSep + nmea.Checksum(payload)
}

func splitHemisphere(v float64, pos, neg string) (float64, string) {
	if v < 0 {
		return -v, neg
	}
	return v, pos
}

func toDDMM(deg float64) float64 {
	whole := math.Floor(deg)
	return whole*100 + (deg-whole)*60
}
