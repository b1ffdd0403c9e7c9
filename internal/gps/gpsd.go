package gps

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"strings"
	"sync"
	"time"
)

const (
	gpsdDefaultAddr = "127.0.0.1:2947"
	gpsdMinBackoff  = 250 * time.Millisecond
	gpsdMaxBackoff  = 10 * time.Second
	// gpsdMaxControl caps how much of a JSON control line is kept for logging.
	gpsdMaxControl = 4096
)

// dialGPSD connects to gpsd over TCP.
func dialGPSD(ctx context.Context, addr string) (net.Conn, error) {
	if strings.TrimSpace(addr) == "" {
		addr = gpsdDefaultAddr
	}
	d := &net.Dialer{Timeout: 2 * time.Second}
	return d.DialContext(ctx, "tcp", addr)
}

// gpsdWatch asks gpsd to pass the receiver's NMEA through unmodified.
func gpsdWatch(conn net.Conn) error {
	_, err := conn.Write([]byte("?WATCH={\"enable\":true,\"raw\":1}\n"))
	return err
}

// gpsdSource streams raw NMEA from gpsd. gpsd interleaves JSON control
// messages (lines starting with '{'); those are logged and never reach the
// caller. A dropped connection is redialed with backoff and surfaces as
// read timeouts meanwhile.
type gpsdSource struct {
	addr    string
	timeout time.Duration

	mu     sync.Mutex
	conn   net.Conn
	closed bool
	done   chan struct{}

	r           *bufio.Reader
	backoff     time.Duration
	atLineStart bool
	inControl   bool
	control     []byte
}

func openGPSD(addr string, readTimeout time.Duration) (Source, error) {
	if strings.TrimSpace(addr) == "" {
		addr = gpsdDefaultAddr
	}
	s := &gpsdSource{
		addr:        addr,
		timeout:     readTimeout,
		done:        make(chan struct{}),
		backoff:     gpsdMinBackoff,
		atLineStart: true,
	}
	if err := s.connect(); err != nil {
		return nil, err
	}
	log.Printf("gps enabled source=gpsd addr=%s", addr)
	return s, nil
}

func (s *gpsdSource) connect() error {
	conn, err := dialGPSD(context.Background(), s.addr)
	if err != nil {
		return fmt.Errorf("gpsd dial failed addr=%s: %w", s.addr, err)
	}
	if err := gpsdWatch(conn); err != nil {
		_ = conn.Close()
		return fmt.Errorf("gpsd watch failed: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		_ = conn.Close()
		return net.ErrClosed
	}
	s.conn = conn
	s.r = bufio.NewReaderSize(conn, 4096)
	s.atLineStart = true
	s.inControl = false
	return nil
}

func (s *gpsdSource) current() (net.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, net.ErrClosed
	}
	return s.conn, nil
}

func (s *gpsdSource) ReadByte() (byte, error) {
	for {
		conn, err := s.current()
		if err != nil {
			return 0, err
		}
		if conn == nil {
			if err := s.reconnect(); err != nil {
				return 0, err
			}
			continue
		}

		if s.r.Buffered() == 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.timeout))
		}
		b, err := s.r.ReadByte()
		if err != nil {
			if isTimeout(err) {
				return 0, ErrReadTimeout
			}
			if _, cerr := s.current(); cerr != nil {
				return 0, cerr
			}
			log.Printf("gpsd read stopped addr=%s: %v", s.addr, err)
			s.drop(conn)
			continue
		}

		if s.inControl {
			if b == '\n' {
				s.handleControl()
				s.inControl = false
				s.atLineStart = true
			} else if len(s.control) < gpsdMaxControl {
				s.control = append(s.control, b)
			}
			continue
		}
		if s.atLineStart && b == '{' {
			s.inControl = true
			s.control = append(s.control[:0], b)
			continue
		}
		s.atLineStart = b == '\n'
		return b, nil
	}
}

// reconnect waits out the backoff and dials once. A failed attempt reports a
// read timeout so the caller marks the fix stale and keeps going.
func (s *gpsdSource) reconnect() error {
	wait := s.backoff
	if wait > s.timeout {
		wait = s.timeout
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-s.done:
		return net.ErrClosed
	case <-t.C:
	}

	if err := s.connect(); err != nil {
		if s.backoff < gpsdMaxBackoff {
			s.backoff *= 2
		}
		log.Printf("%v", err)
		return ErrReadTimeout
	}
	s.backoff = gpsdMinBackoff
	log.Printf("gpsd reconnected addr=%s", s.addr)
	return nil
}

func (s *gpsdSource) drop(conn net.Conn) {
	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	s.mu.Unlock()
	_ = conn.Close()
}

func (s *gpsdSource) handleControl() {
	msg, err := describeGPSDControl(s.control)
	if err != nil {
		log.Printf("%v", err)
		return
	}
	if msg != "" {
		log.Print(msg)
	}
}

func (s *gpsdSource) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.r != nil {
		_, _ = s.r.Discard(s.r.Buffered())
	}
	s.inControl = false
	s.atLineStart = false
	return nil
}

func (s *gpsdSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

type gpsdMsgBase struct {
	Class string `json:"class"`
}

type gpsdVersion struct {
	Release    string `json:"release"`
	ProtoMajor int    `json:"proto_major"`
	ProtoMinor int    `json:"proto_minor"`
}

type gpsdDevices struct {
	Devices []struct {
		Path   string `json:"path"`
		Driver string `json:"driver"`
		Bps    int    `json:"bps"`
	} `json:"devices"`
}

type gpsdError struct {
	Message string `json:"message"`
}

// describeGPSDControl summarizes a gpsd JSON control message for the log.
// Classes of no interest yield "".
func describeGPSDControl(line []byte) (string, error) {
	var base gpsdMsgBase
	if err := json.Unmarshal(line, &base); err != nil {
		return "", fmt.Errorf("gpsd json parse failed: %v", err)
	}

	switch strings.ToUpper(strings.TrimSpace(base.Class)) {
	case "VERSION":
		var v gpsdVersion
		if err := json.Unmarshal(line, &v); err != nil {
			return "", fmt.Errorf("gpsd version parse failed: %v", err)
		}
		return fmt.Sprintf("gpsd version release=%s proto=%d.%d", v.Release, v.ProtoMajor, v.ProtoMinor), nil
	case "DEVICES":
		var d gpsdDevices
		if err := json.Unmarshal(line, &d); err != nil {
			return "", fmt.Errorf("gpsd devices parse failed: %v", err)
		}
		parts := make([]string, 0, len(d.Devices))
		for _, dev := range d.Devices {
			parts = append(parts, fmt.Sprintf("%s(%s@%d)", dev.Path, dev.Driver, dev.Bps))
		}
		return fmt.Sprintf("gpsd devices=%s", strings.Join(parts, ",")), nil
	case "ERROR":
		var e gpsdError
		if err := json.Unmarshal(line, &e); err != nil {
			return "", fmt.Errorf("gpsd error parse failed: %v", err)
		}
		return fmt.Sprintf("gpsd error message=%q", e.Message), nil
	default:
		// WATCH, TPV and friends carry nothing the raw stream lacks.
		return "", nil
	}
}
