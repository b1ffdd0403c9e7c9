package gps

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gpsclock/internal/nmea"
)

// scriptedReader returns one chunk per Read call.
type scriptedReader struct {
	chunks []string
	errs   []error
}

func (r *scriptedReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		return 0, io.ErrUnexpectedEOF
	}
	n := copy(p, r.chunks[0])
	err := r.errs[0]
	r.chunks, r.errs = r.chunks[1:], r.errs[1:]
	return n, err
}

type timeoutErr struct{}

func (timeoutErr) Error() string { return "i/o timeout" }
func (timeoutErr) Timeout() bool { return true }

func TestChunkReader(t *testing.T) {
	r := newChunkReader(&scriptedReader{
		chunks: []string{"ab", "", "", "c"},
		errs:   []error{nil, nil, timeoutErr{}, nil},
	})

	want := []struct {
		b   byte
		err error
	}{
		{'a', nil}, {'b', nil}, {0, ErrReadTimeout}, {0, ErrReadTimeout}, {'c', nil}, {0, io.ErrUnexpectedEOF},
	}
	for i, w := range want {
		b, err := r.ReadByte()
		if !errors.Is(err, w.err) || b != w.b {
			t.Fatalf("read %d: got (%q,%v) want (%q,%v)", i, b, err, w.b, w.err)
		}
	}
}

func TestChunkReader_Discard(t *testing.T) {
	r := newChunkReader(&scriptedReader{chunks: []string{"abc", "d"}, errs: []error{nil, nil}})
	if b, _ := r.ReadByte(); b != 'a' {
		t.Fatalf("b=%q", b)
	}
	r.discard()
	if b, _ := r.ReadByte(); b != 'd' {
		t.Fatalf("after discard b=%q", b)
	}
}

func TestOpenSource_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "capture.nmea")
	frame := nmea.Frame(rmcPayload)
	if err := os.WriteFile(path, []byte(frame), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	src, err := OpenSource(SourceConfig{Driver: "file", Device: path})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer src.Close()

	buf := make([]byte, 0, len(frame))
	for {
		b, err := src.ReadByte()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		buf = append(buf, b)
	}
	if string(buf) != frame {
		t.Fatalf("got %q", buf)
	}
	if err := src.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
}

func TestOpenSource_Errors(t *testing.T) {
	_, err := OpenSource(SourceConfig{Driver: "file", Device: filepath.Join(t.TempDir(), "missing")})
	if !errors.Is(err, ErrDevice) {
		t.Fatalf("err=%v", err)
	}
	_, err = OpenSource(SourceConfig{Driver: "carrier-pigeon"})
	if !errors.Is(err, ErrDevice) {
		t.Fatalf("err=%v", err)
	}
}

func TestPositionApply_AltitudeMaxAge(t *testing.T) {
	gga, err := nmea.Decode("GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,280.2,M,,,,")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	rmc, err := nmea.Decode(rmcPayload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var mem altitudeMemo
	p := InitialPosition()
	p.apply(gga, t0, &mem, 5*time.Second)

	p.apply(rmc, t0.Add(5*time.Second), &mem, 5*time.Second)
	if !p.ZValid || p.Alt != 280.2 {
		t.Fatalf("within max age: %+v", p)
	}

	p.apply(rmc, t0.Add(6*time.Second), &mem, 5*time.Second)
	if p.ZValid || p.Alt != 0 {
		t.Fatalf("past max age: %+v", p)
	}
}

func TestPositionApply_InvalidPositionIsNotCarried(t *testing.T) {
	var mem altitudeMemo
	p := InitialPosition()
	fs, _ := nmea.Decode(rmcPayload)
	p.apply(fs, time.Now(), &mem, 0)
	if !p.XYValid {
		t.Fatalf("expected valid")
	}

	noRef, err := nmea.Decode("GPGGA,123519,4807.038,,01131.000,E,1,08,0.9,280.2,M,,,,")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	p.apply(noRef, time.Now(), &mem, 0)
	if p.XYValid || p.Lat != 0 || p.TValid {
		t.Fatalf("position carried over: %+v", p)
	}
}

func TestTailBuffer(t *testing.T) {
	tb := newTailBuffer(2, 4)
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tb.add(at, "framing", "one")
	tb.add(at, "decode", "two")
	tb.add(at, "decode", "three-long")

	got := tb.snapshot()
	if len(got) != 2 || got[0].Message != "two" || got[1].Message != "thre" {
		t.Fatalf("got %+v", got)
	}

	var nilTB *tailBuffer
	nilTB.add(at, "x", "y")
	if nilTB.snapshot() != nil {
		t.Fatalf("nil buffer snapshot")
	}
}
