package nmea

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

const (
	// MaxBodyLen is the longest sentence body (between '$' and '*') accepted.
	MaxBodyLen = 80
	// checksumDigits is the number of hex digits following '*'.
	checksumDigits = 2
)

var (
	// ErrFraming is wrapped by every framing discard reason.
	ErrFraming = errors.New("nmea framing")

	ErrPrematureRestart  = fmt.Errorf("%w: new sentence started before previous completed", ErrFraming)
	ErrMissingChecksum   = fmt.Errorf("%w: missing required checksum", ErrFraming)
	ErrBodyTooLong       = fmt.Errorf("%w: sentence longer than %d bytes", ErrFraming, MaxBodyLen)
	ErrBadChecksum       = fmt.Errorf("%w: checksum mismatch", ErrFraming)
	ErrBadChecksumFormat = fmt.Errorf("%w: malformed checksum field", ErrFraming)
)

type EventKind int

const (
	NoEvent EventKind = iota
	FrameReady
	FrameDiscarded
)

func (k EventKind) String() string {
	switch k {
	case FrameReady:
		return "ready"
	case FrameDiscarded:
		return "discarded"
	default:
		return "none"
	}
}

// Event is the outcome of submitting one byte to a Framer.
type Event struct {
	Kind EventKind
	// Payload is the sentence body without '$', checksum or line terminator.
	Payload string
	// Start is the arrival time of the '$' that opened the frame.
	Start time.Time
	// Reason is set for FrameDiscarded and wraps ErrFraming.
	Reason error
}

type phase int

const (
	seeking phase = iota
	readingBody
	readingChecksum
)

// Framer recovers '$'-delimited sentences from a byte stream.
//
// Not safe for concurrent use.
type Framer struct {
	requireChecksum bool

	phase    phase
	body     []byte
	checksum []byte
	sum      byte
	start    time.Time
}

// NewFramer returns a Framer. When requireChecksum is set, sentences ending
// without a '*hh' field are discarded.
func NewFramer(requireChecksum bool) *Framer {
	return &Framer{
		requireChecksum: requireChecksum,
		body:            make([]byte, 0, MaxBodyLen),
		checksum:        make([]byte, 0, checksumDigits+1),
	}
}

// Reset drops any partial frame and returns to seeking.
func (f *Framer) Reset() {
	f.phase = seeking
	f.body = f.body[:0]
	f.checksum = f.checksum[:0]
	f.sum = 0
	f.start = time.Time{}
}

// Submit feeds one byte received at the given time.
func (f *Framer) Submit(b byte, at time.Time) Event {
	// '$' always re-arms framing so a corrupted frame never desynchronizes the stream.
	if b == '$' {
		interrupted := f.phase != seeking
		f.Reset()
		f.phase = readingBody
		f.start = at
		if interrupted {
			return Event{Kind: FrameDiscarded, Reason: ErrPrematureRestart}
		}
		return Event{}
	}

	switch f.phase {
	case readingBody:
		return f.bodyByte(b)
	case readingChecksum:
		return f.checksumByte(b)
	default:
		return Event{}
	}
}

func (f *Framer) bodyByte(b byte) Event {
	switch {
	case b == '*':
		f.phase = readingChecksum
		f.checksum = f.checksum[:0]
		return Event{}
	case isTerminator(b):
		if f.requireChecksum {
			return f.discard(ErrMissingChecksum)
		}
		return f.complete()
	}

	f.body = append(f.body, b)
	f.sum ^= b
	if len(f.body) > MaxBodyLen {
		return f.discard(ErrBodyTooLong)
	}
	return Event{}
}

func (f *Framer) checksumByte(b byte) Event {
	if !isTerminator(b) {
		f.checksum = append(f.checksum, b)
		if len(f.checksum) <= checksumDigits {
			return Event{}
		}
	}

	digits := f.checksum
	if len(digits) > checksumDigits {
		// Third character forced evaluation; it may not extend the number.
		if isHexDigit(digits[checksumDigits]) {
			return f.discard(ErrBadChecksumFormat)
		}
		digits = digits[:checksumDigits]
	}
	want, ok := parseHexByte(digits)
	if !ok {
		return f.discard(ErrBadChecksumFormat)
	}
	if want != f.sum {
		return f.discard(ErrBadChecksum)
	}
	return f.complete()
}

func (f *Framer) complete() Event {
	ev := Event{Kind: FrameReady, Payload: string(f.body), Start: f.start}
	f.Reset()
	return ev
}

func (f *Framer) discard(reason error) Event {
	f.Reset()
	return Event{Kind: FrameDiscarded, Reason: reason}
}

// Checksum returns the XOR of every byte of payload.
func Checksum(payload string) byte {
	var sum byte
	for i := 0; i < len(payload); i++ {
		sum ^= payload[i]
	}
	return sum
}

// Frame renders payload as a complete checksummed sentence with CRLF.
func Frame(payload string) string {
	return fmt.Sprintf("$%s*%02X\r\n", payload, Checksum(payload))
}

func isTerminator(b byte) bool {
	return b == '\n' || b == '\r'
}

func isHexDigit(b byte) bool {
	return ('0' <= b && b <= '9') || ('a' <= b && b <= 'f') || ('A' <= b && b <= 'F')
}

func parseHexByte(digits []byte) (byte, bool) {
	if len(digits) == 0 || len(digits) > checksumDigits {
		return 0, false
	}
	v, err := strconv.ParseUint(string(digits), 16, 8)
	if err != nil {
		return 0, false
	}
	return byte(v), true
}
