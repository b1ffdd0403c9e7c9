// Package fixlog writes and reads the plain-text log of accepted fixes.
//
// One line per fix, stamped with the host (UTC) time of day:
//
//	time>12:35:19.004211 position>48.117300,11.516667,545.400000
//
// The position triple is latitude, longitude, altitude.
package fixlog

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"gpsclock/internal/gps"
)

type Entry struct {
	// TimeOfDay is the offset from UTC midnight.
	TimeOfDay time.Duration
	Lat       float64
	Lon       float64
	Alt       float64
}

type Writer struct {
	mu     sync.Mutex
	w      *bufio.Writer
	c      io.Closer
	closed bool
}

// Create opens path for appending; "-" or "" writes to stdout.
func Create(path string) (*Writer, error) {
	if path == "" || path == "-" {
		return NewWriter(os.Stdout, nil), nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return NewWriter(f, f), nil
}

// NewWriter wraps w. c, if non-nil, is closed by Close.
func NewWriter(w io.Writer, c io.Closer) *Writer {
	return &Writer{w: bufio.NewWriterSize(w, 4096), c: c}
}

// Write appends one line for p, stamped with p.SysTime, and flushes it.
func (ww *Writer) Write(p gps.Position) error {
	ww.mu.Lock()
	defer ww.mu.Unlock()
	if ww.closed {
		return errors.New("fix log is closed")
	}
	if _, err := ww.w.WriteString(FormatLine(p)); err != nil {
		return err
	}
	if err := ww.w.WriteByte('\n'); err != nil {
		return err
	}
	return ww.w.Flush()
}

func (ww *Writer) Close() error {
	ww.mu.Lock()
	defer ww.mu.Unlock()
	if ww.closed {
		return nil
	}
	ww.closed = true
	err := ww.w.Flush()
	if ww.c != nil {
		if cerr := ww.c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// FormatLine renders p without the trailing newline.
func FormatLine(p gps.Position) string {
	t := p.SysTime.UTC()
	var b strings.Builder
	fmt.Fprintf(&b, "time>%02d:%02d:%02d.%06d position>", t.Hour(), t.Minute(), t.Second(), t.Nanosecond()/1000)
	b.WriteString(strconv.FormatFloat(p.Lat, 'f', 6, 64))
	b.WriteByte(',')
	b.WriteString(strconv.FormatFloat(p.Lon, 'f', 6, 64))
	b.WriteByte(',')
	b.WriteString(strconv.FormatFloat(p.Alt, 'f', 6, 64))
	return b.String()
}

// ParseLine is the inverse of FormatLine.
func ParseLine(line string) (Entry, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(line), "time>")
	if !ok {
		return Entry{}, fmt.Errorf("invalid fix log line (missing time>): %q", line)
	}
	ts, pos, ok := strings.Cut(rest, " position>")
	if !ok {
		return Entry{}, fmt.Errorf("invalid fix log line (missing position>): %q", line)
	}

	var e Entry
	clock, frac, ok := strings.Cut(ts, ".")
	if !ok || len(frac) != 6 {
		return Entry{}, fmt.Errorf("invalid fix log time %q", ts)
	}
	hms := strings.Split(clock, ":")
	if len(hms) != 3 {
		return Entry{}, fmt.Errorf("invalid fix log time %q", ts)
	}
	units := []time.Duration{time.Hour, time.Minute, time.Second}
	limits := []int{23, 59, 60}
	for i, part := range hms {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 || n > limits[i] {
			return Entry{}, fmt.Errorf("invalid fix log time %q", ts)
		}
		e.TimeOfDay += time.Duration(n) * units[i]
	}
	us, err := strconv.Atoi(frac)
	if err != nil || us < 0 {
		return Entry{}, fmt.Errorf("invalid fix log time %q", ts)
	}
	e.TimeOfDay += time.Duration(us) * time.Microsecond

	fields := strings.Split(pos, ",")
	if len(fields) != 3 {
		return Entry{}, fmt.Errorf("invalid fix log position %q", pos)
	}
	vals := make([]float64, 3)
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return Entry{}, fmt.Errorf("invalid fix log position %q: %w", pos, err)
		}
		vals[i] = v
	}
	e.Lat, e.Lon, e.Alt = vals[0], vals[1], vals[2]
	return e, nil
}

// ReadAll parses every non-blank line of r.
func ReadAll(r io.Reader) ([]Entry, error) {
	s := bufio.NewScanner(r)
	var out []Entry
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" {
			continue
		}
		e, err := ParseLine(line)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
