package gps

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

var (
	// ErrReadTimeout is returned by Source.ReadByte when no byte arrived
	// within the inter-byte timeout.
	ErrReadTimeout = errors.New("gps read timeout")
	// ErrDevice wraps unrecoverable byte source failures.
	ErrDevice = errors.New("gps device")
)

// Source is a byte stream from a GPS receiver.
//
// ReadByte returns io.EOF when a finite source is exhausted.
type Source interface {
	ReadByte() (byte, error)
	// Flush discards input received but not yet read.
	Flush() error
	Close() error
}

// SourceConfig selects and configures a byte source.
type SourceConfig struct {
	// Driver is one of "termios", "bugst", "gpsd" or "file".
	Driver      string
	Device      string
	Baud        int
	ReadTimeout time.Duration
	GPSDAddr    string
}

// OpenSource opens the configured byte source. Errors wrap ErrDevice.
func OpenSource(cfg SourceConfig) (Source, error) {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = time.Second
	}

	var (
		src Source
		err error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "termios":
		src, err = openTermios(cfg.Device, cfg.Baud, cfg.ReadTimeout)
	case "bugst":
		src, err = openBugst(cfg.Device, cfg.Baud, cfg.ReadTimeout)
	case "gpsd":
		src, err = openGPSD(cfg.GPSDAddr, cfg.ReadTimeout)
	case "file":
		src, err = openFile(cfg.Device)
	default:
		err = fmt.Errorf("unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: open %s %s: %v", ErrDevice, cfg.Driver, cfg.Device, err)
	}
	return src, nil
}

// chunkReader serves single bytes from reads of a device that returns
// (0, nil) when its read timeout expires.
type chunkReader struct {
	r   io.Reader
	buf []byte
	pos int
	n   int
}

func newChunkReader(r io.Reader) *chunkReader {
	return &chunkReader{r: r, buf: make([]byte, 256)}
}

func (c *chunkReader) ReadByte() (byte, error) {
	if c.pos >= c.n {
		n, err := c.r.Read(c.buf)
		if n <= 0 {
			if err == nil || isTimeout(err) {
				return 0, ErrReadTimeout
			}
			return 0, err
		}
		c.pos, c.n = 0, n
	}
	b := c.buf[c.pos]
	c.pos++
	return b, nil
}

// discard drops buffered bytes.
func (c *chunkReader) discard() {
	c.pos, c.n = 0, 0
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
