package nmea

import (
	"fmt"

	gonmea "github.com/adrianmo/go-nmea"
)

// Describe renders a human readable summary of a framed payload for debug
// logging. It includes fields the fix decoder ignores (speed, course,
// satellites, HDOP) and never fails: unparseable payloads are quoted as-is.
func Describe(payload string) string {
	s, err := gonmea.Parse(fmt.Sprintf("$%s*%02X", payload, Checksum(payload)))
	if err != nil {
		return fmt.Sprintf("raw=%q", payload)
	}

	switch m := s.(type) {
	case gonmea.RMC:
		return fmt.Sprintf("type=%s%s time=%s date=%s validity=%s lat=%.6f lon=%.6f speed_kt=%.1f course_deg=%.1f",
			m.TalkerID(), m.DataType(), m.Time, m.Date, m.Validity, m.Latitude, m.Longitude, m.Speed, m.Course)
	case gonmea.GGA:
		return fmt.Sprintf("type=%s%s time=%s fix_quality=%s sats=%d hdop=%.1f lat=%.6f lon=%.6f alt_m=%.1f",
			m.TalkerID(), m.DataType(), m.Time, m.FixQuality, m.NumSatellites, m.HDOP, m.Latitude, m.Longitude, m.Altitude)
	default:
		return fmt.Sprintf("type=%s%s raw=%q", s.TalkerID(), s.DataType(), payload)
	}
}
