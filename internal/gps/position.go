package gps

import (
	"time"

	"gpsclock/internal/nmea"
)

// Position is the published fix record.
type Position struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
	Alt float64 `json:"alt"`

	XYValid bool `json:"xy_valid"`
	ZValid  bool `json:"z_valid"`
	TValid  bool `json:"t_valid"`

	// GPSTime is the UTC instant reported by the receiver.
	GPSTime time.Time `json:"gps_time"`
	// SysTime is the host clock when the fix was accepted.
	SysTime time.Time `json:"sys_time"`

	Stale bool `json:"stale"`
}

// InitialPosition is the record published before the first fix.
func InitialPosition() Position {
	return Position{Stale: true}
}

// altitudeMemo remembers the last valid altitude for carry-over.
type altitudeMemo struct {
	alt float64
	at  time.Time
	ok  bool
}

// apply merges an active field set into p, accepted at host time sys.
//
// Position and time come only from fs. Altitude falls back to the last valid
// reading when fs has none and that reading is not older than maxAge
// (0 means no limit).
func (p *Position) apply(fs nmea.FieldSet, sys time.Time, mem *altitudeMemo, maxAge time.Duration) {
	p.XYValid = fs.XYValid()
	if p.XYValid {
		p.Lat, p.Lon = fs.Lat, fs.Lon
	} else {
		p.Lat, p.Lon = 0, 0
	}

	p.TValid = fs.TimeOK
	if p.TValid {
		p.GPSTime = fs.Time
	} else {
		p.GPSTime = time.Time{}
	}

	switch {
	case fs.AltOK:
		p.Alt, p.ZValid = fs.AltM, true
		*mem = altitudeMemo{alt: fs.AltM, at: sys, ok: true}
	case mem.ok && (maxAge <= 0 || sys.Sub(mem.at) <= maxAge):
		p.Alt, p.ZValid = mem.alt, true
	default:
		p.Alt, p.ZValid = 0, false
	}

	p.SysTime = sys
	p.Stale = false
}
