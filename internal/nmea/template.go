package nmea

import "strings"

// FieldRole names what one comma-separated field of a sentence means.
type FieldRole int

const (
	FieldUnused  FieldRole = iota
	FieldTime              // UTC hhmmss[.fff]
	FieldDate              // ddmmyy
	FieldStatus            // A (active) or V (void)
	FieldLatVal            // ddmm.mmmm
	FieldLatRef            // N or S
	FieldLonVal            // dddmm.mmmm
	FieldLonRef            // E or W
	FieldFixMode           // 0 invalid, 1 GPS, 2 DGPS, ...
	FieldSatUsed
	FieldAltVal
	FieldAltUnit // M
	FieldHDOP
	FieldGeoidSep
	FieldGeoidUnit
	FieldDGPSAge
	FieldDGPSRef
	FieldSpeed
	FieldCourse
	FieldMagVar
	FieldMagRef
)

// SentenceType identifies a supported dialect.
type SentenceType int

const (
	SentenceUnknown SentenceType = iota
	SentenceRMC
	SentenceGGA
)

func (t SentenceType) String() string {
	switch t {
	case SentenceRMC:
		return "RMC"
	case SentenceGGA:
		return "GGA"
	default:
		return "unknown"
	}
}

var (
	// rmcTemplate is the "recommended minimum" dialect: date and status, no altitude.
	rmcTemplate = []FieldRole{
		FieldTime,
		FieldStatus,
		FieldLatVal,
		FieldLatRef,
		FieldLonVal,
		FieldLonRef,
		FieldSpeed,
		FieldCourse,
		FieldDate,
		FieldMagVar,
		FieldMagRef,
	}

	// ggaTemplate is the "fix data" dialect: altitude and fix mode, no date.
	ggaTemplate = []FieldRole{
		FieldTime,
		FieldLatVal,
		FieldLatRef,
		FieldLonVal,
		FieldLonRef,
		FieldFixMode,
		FieldSatUsed,
		FieldHDOP,
		FieldAltVal,
		FieldAltUnit,
		FieldGeoidSep,
		FieldGeoidUnit,
		FieldDGPSAge,
		FieldDGPSRef,
	}
)

// talkers accepted in front of the three-letter sentence code.
var talkers = map[string]bool{
	"GP": true, // GPS
	"GN": true, // multi-constellation
	"GL": true, // GLONASS
	"GA": true, // Galileo
	"GB": true, // BeiDou
}

func lookupTemplate(tag string) (SentenceType, []FieldRole, bool) {
	tag = strings.ToUpper(tag)
	if len(tag) != 5 || !talkers[tag[:2]] {
		return SentenceUnknown, nil, false
	}
	switch tag[2:] {
	case "RMC":
		return SentenceRMC, rmcTemplate, true
	case "GGA":
		return SentenceGGA, ggaTemplate, true
	default:
		return SentenceUnknown, nil, false
	}
}
