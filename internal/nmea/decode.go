package nmea

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrDecode is wrapped by every field decoding failure.
	ErrDecode = errors.New("nmea decode")

	ErrSentenceTooLong     = fmt.Errorf("%w: sentence longer than %d bytes", ErrDecode, MaxBodyLen)
	ErrUnknownSentenceType = fmt.Errorf("%w: unknown sentence type", ErrDecode)
	ErrTruncatedSentence   = fmt.Errorf("%w: sentence ended before template", ErrDecode)
	ErrBadTimeField        = fmt.Errorf("%w: bad TIME field", ErrDecode)
	ErrBadDateField        = fmt.Errorf("%w: bad DATE field", ErrDecode)
	ErrBadLatitude         = fmt.Errorf("%w: bad LAT_VAL field", ErrDecode)
	ErrBadLatRef           = fmt.Errorf("%w: bad LAT_REF field", ErrDecode)
	ErrBadLongitude        = fmt.Errorf("%w: bad LON_VAL field", ErrDecode)
	ErrBadLonRef           = fmt.Errorf("%w: bad LON_REF field", ErrDecode)
	ErrBadAltitude         = fmt.Errorf("%w: bad ALT_VAL field", ErrDecode)
	ErrBadStatus           = fmt.Errorf("%w: bad STATUS field", ErrDecode)
	ErrBadFixMode          = fmt.Errorf("%w: bad FIX_MODE field", ErrDecode)
	ErrYearOutOfRange      = fmt.Errorf("%w: year before 2000", ErrDecode)
)

// Status is the receiver's own verdict on a sentence.
type Status int

const (
	StatusUnknown Status = iota
	StatusActive
	StatusVoid
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusVoid:
		return "void"
	default:
		return "unknown"
	}
}

// FieldSet holds the typed values decoded from one sentence. The *OK flags
// report which fields were present and well formed.
type FieldSet struct {
	Type   SentenceType
	Status Status

	Time   time.Time // UTC, valid when TimeOK
	TimeOK bool      // TIME and DATE both present

	HasTime bool
	HasDate bool

	Lat   float64 // signed degrees, valid when LatOK
	LatOK bool
	Lon   float64 // signed degrees, valid when LonOK
	LonOK bool

	AltM  float64 // meters, valid when AltOK
	AltOK bool

	FixMode   int
	FixModeOK bool
}

// Active reports whether the sentence carries a usable fix.
func (fs FieldSet) Active() bool {
	return fs.Status == StatusActive
}

// XYValid reports whether both axes had a value and a hemisphere.
func (fs FieldSet) XYValid() bool {
	return fs.LatOK && fs.LonOK
}

// raw collects per-field parse results before they are combined.
type raw struct {
	hour, minute int
	second       float64
	day, month   int
	year         int

	latVal, lonVal float64
	latRef, lonRef float64
	gotLat, gotLon bool

	altVal  float64
	gotAlt  bool
	altUnit bool
}

// Decoder turns framed sentence bodies into field sets.
type Decoder struct {
	// RejectPre2000 refuses two-digit years 70-99 instead of mapping them to
	// 1970-1999, limiting fixes to 2000-2069.
	RejectPre2000 bool
}

// Decode parses a sentence body with the default Decoder.
func Decode(payload string) (FieldSet, error) {
	return Decoder{}.Decode(payload)
}

// Decode parses a framed sentence body ("GPRMC,123519,A,...").
//
// A sentence with VOID status decodes without error; callers must check
// Active before using it.
func (d Decoder) Decode(payload string) (FieldSet, error) {
	if len(payload) > MaxBodyLen {
		return FieldSet{}, ErrSentenceTooLong
	}

	fields := strings.Split(payload, ",")
	st, tmpl, ok := lookupTemplate(fields[0])
	if !ok {
		return FieldSet{}, fmt.Errorf("%w %q", ErrUnknownSentenceType, fields[0])
	}

	fs := FieldSet{Type: st}
	var r raw
	rest := fields[1:]
	for i, role := range tmpl {
		if i >= len(rest) {
			return FieldSet{}, fmt.Errorf("%w: %s wants %d fields, got %d", ErrTruncatedSentence, st, len(tmpl), len(rest))
		}
		if err := decodeField(role, rest[i], &fs, &r); err != nil {
			return FieldSet{}, err
		}
	}

	if !fs.Active() {
		return fs, nil
	}

	if fs.HasTime && fs.HasDate {
		t, err := fixTime(r, d.RejectPre2000)
		if err != nil {
			return FieldSet{}, err
		}
		fs.Time = t
		fs.TimeOK = true
	}
	if r.gotLat && r.latRef != 0 {
		fs.Lat = r.latRef * r.latVal
		fs.LatOK = true
	}
	if r.gotLon && r.lonRef != 0 {
		fs.Lon = r.lonRef * r.lonVal
		fs.LonOK = true
	}
	if r.gotAlt && r.altUnit {
		fs.AltM = r.altVal
		fs.AltOK = true
	}
	return fs, nil
}

func decodeField(role FieldRole, field string, fs *FieldSet, r *raw) error {
	if field == "" {
		// Absent fields are never fatal; they leave the value unset.
		return nil
	}

	switch role {
	case FieldTime:
		h, m, s, err := parseTime(field)
		if err != nil {
			return err
		}
		r.hour, r.minute, r.second = h, m, s
		fs.HasTime = true
	case FieldDate:
		d, mo, y, err := parseDate(field)
		if err != nil {
			return err
		}
		r.day, r.month, r.year = d, mo, y
		fs.HasDate = true
	case FieldStatus:
		if len(field) != 1 {
			return fmt.Errorf("%w %q", ErrBadStatus, field)
		}
		switch field[0] {
		case 'A':
			fs.Status = StatusActive
		case 'V':
			fs.Status = StatusVoid
		default:
			return fmt.Errorf("%w %q", ErrBadStatus, field)
		}
	case FieldFixMode:
		mode, err := strconv.Atoi(field)
		if err != nil || mode < 0 {
			return fmt.Errorf("%w %q", ErrBadFixMode, field)
		}
		fs.FixMode = mode
		fs.FixModeOK = true
		if mode > 0 {
			fs.Status = StatusActive
		} else {
			fs.Status = StatusVoid
		}
	case FieldLatVal:
		v, err := parseDegMin(field, 2)
		if err != nil {
			return fmt.Errorf("%w %q", ErrBadLatitude, field)
		}
		r.latVal, r.gotLat = v, true
	case FieldLonVal:
		v, err := parseDegMin(field, 3)
		if err != nil {
			return fmt.Errorf("%w %q", ErrBadLongitude, field)
		}
		r.lonVal, r.gotLon = v, true
	case FieldLatRef:
		if len(field) != 1 {
			return fmt.Errorf("%w %q", ErrBadLatRef, field)
		}
		switch field[0] {
		case 'N':
			r.latRef = 1
		case 'S':
			r.latRef = -1
		default:
			return fmt.Errorf("%w %q", ErrBadLatRef, field)
		}
	case FieldLonRef:
		if len(field) != 1 {
			return fmt.Errorf("%w %q", ErrBadLonRef, field)
		}
		switch field[0] {
		case 'E':
			r.lonRef = 1
		case 'W':
			r.lonRef = -1
		default:
			return fmt.Errorf("%w %q", ErrBadLonRef, field)
		}
	case FieldAltVal:
		v, err := parseDecimal(field, true)
		if err != nil {
			return fmt.Errorf("%w %q", ErrBadAltitude, field)
		}
		r.altVal, r.gotAlt = v, true
	case FieldAltUnit:
		// Meters is the only supported unit; anything else leaves altitude invalid.
		r.altUnit = field == "M"
	}
	return nil
}

// parseTime parses hhmmss[.fff].
func parseTime(field string) (hour, minute int, second float64, err error) {
	if len(field) < 6 {
		return 0, 0, 0, fmt.Errorf("%w %q", ErrBadTimeField, field)
	}
	if !isDigits(field[:4]) {
		return 0, 0, 0, fmt.Errorf("%w %q", ErrBadTimeField, field)
	}
	hour, err1 := strconv.Atoi(field[0:2])
	minute, err2 := strconv.Atoi(field[2:4])
	second, err3 := parseDecimal(field[4:], false)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, 0, 0, fmt.Errorf("%w %q", ErrBadTimeField, field)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 || second < 0 || second >= 61 {
		return 0, 0, 0, fmt.Errorf("%w %q", ErrBadTimeField, field)
	}
	return hour, minute, second, nil
}

// parseDate parses ddmmyy.
func parseDate(field string) (day, month, year int, err error) {
	if len(field) < 6 {
		return 0, 0, 0, fmt.Errorf("%w %q", ErrBadDateField, field)
	}
	day, err1 := strconv.Atoi(field[0:2])
	month, err2 := strconv.Atoi(field[2:4])
	year, err3 := strconv.Atoi(field[4:6])
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, 0, 0, fmt.Errorf("%w %q", ErrBadDateField, field)
	}
	if day < 1 || day > 31 || month < 1 || month > 12 || year < 0 {
		return 0, 0, 0, fmt.Errorf("%w %q", ErrBadDateField, field)
	}
	return day, month, year, nil
}

// parseDegMin parses (d)ddmm.mmmm with degDigits leading degree digits.
func parseDegMin(field string, degDigits int) (float64, error) {
	if len(field) < 4 || len(field) <= degDigits {
		return 0, fmt.Errorf("short coordinate")
	}
	if !isDigits(field[:degDigits]) {
		return 0, fmt.Errorf("bad degrees %q", field[:degDigits])
	}
	deg, err := strconv.Atoi(field[:degDigits])
	if err != nil {
		return 0, err
	}
	mins, err := parseDecimal(field[degDigits:], false)
	if err != nil {
		return 0, err
	}
	if mins < 0 || mins >= 60 {
		return 0, fmt.Errorf("minutes out of range")
	}
	return float64(deg) + mins/60.0, nil
}

// parseDecimal parses a plain ddd[.ddd] literal, with a leading '-' when
// signed. strconv.ParseFloat on its own also takes NaN, Inf and exponents.
func parseDecimal(field string, signed bool) (float64, error) {
	digits := field
	if signed && strings.HasPrefix(digits, "-") {
		digits = digits[1:]
	}
	whole, frac, _ := strings.Cut(digits, ".")
	if whole == "" && frac == "" || !isDigits(whole) || !isDigits(frac) {
		return 0, fmt.Errorf("bad number %q", field)
	}
	return strconv.ParseFloat(field, 64)
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// fixTime builds the UTC instant, rounded to the microsecond.
//
// Two-digit years cover 1970-2069; there is no century field to do better.
func fixTime(r raw, rejectPre2000 bool) (time.Time, error) {
	century := 2000
	if r.year >= 70 {
		if rejectPre2000 {
			return time.Time{}, fmt.Errorf("%w: %02d", ErrYearOutOfRange, r.year)
		}
		century = 1900
	}
	whole := math.Floor(r.second)
	usec := int(math.Round((r.second - whole) * 1e6))
	sec := int(whole)
	if usec >= 1_000_000 {
		sec++
		usec -= 1_000_000
	}
	return time.Date(century+r.year, time.Month(r.month), r.day, r.hour, r.minute, sec, usec*1000, time.UTC), nil
}
