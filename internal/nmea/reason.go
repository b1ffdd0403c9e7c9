package nmea

import "errors"

var reasonLabels = []struct {
	err   error
	label string
}{
	{ErrPrematureRestart, "premature_restart"},
	{ErrMissingChecksum, "missing_checksum"},
	{ErrBodyTooLong, "body_too_long"},
	{ErrBadChecksum, "bad_checksum"},
	{ErrBadChecksumFormat, "bad_checksum_format"},
	{ErrSentenceTooLong, "sentence_too_long"},
	{ErrUnknownSentenceType, "unknown_sentence_type"},
	{ErrTruncatedSentence, "truncated_sentence"},
	{ErrBadTimeField, "bad_time"},
	{ErrBadDateField, "bad_date"},
	{ErrBadLatitude, "bad_latitude"},
	{ErrBadLatRef, "bad_lat_ref"},
	{ErrBadLongitude, "bad_longitude"},
	{ErrBadLonRef, "bad_lon_ref"},
	{ErrBadAltitude, "bad_altitude"},
	{ErrBadStatus, "bad_status"},
	{ErrBadFixMode, "bad_fix_mode"},
	{ErrYearOutOfRange, "year_out_of_range"},
}

// Reason returns a short metric label for a framing or decode error.
func Reason(err error) string {
	for _, r := range reasonLabels {
		if errors.Is(err, r.err) {
			return r.label
		}
	}
	return "other"
}
