//go:build linux

package gps

import (
	"fmt"
	"log"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// termiosSource reads a tty configured directly through termios ioctls.
type termiosSource struct {
	f  *os.File
	fd int
	*chunkReader
}

func openTermios(path string, baud int, readTimeout time.Duration) (Source, error) {
	f, err := openSerial(path, baud, readTimeout)
	if err != nil {
		return nil, err
	}
	log.Printf("gps serial open driver=termios device=%s baud=%d read_timeout=%s", path, baud, readTimeout)
	fd := int(f.Fd())
	return &termiosSource{f: f, fd: fd, chunkReader: newChunkReader(fdReader(fd))}, nil
}

// fdReader reads the tty directly: os.File reports the (0, nil) of an expired
// VTIME as io.EOF.
type fdReader int

func (fd fdReader) Read(p []byte) (int, error) {
	for {
		n, err := unix.Read(int(fd), p)
		if err != unix.EINTR {
			return n, err
		}
	}
}

func (s *termiosSource) Flush() error {
	s.discard()
	return unix.IoctlSetInt(s.fd, unix.TCFLSH, unix.TCIFLUSH)
}

func (s *termiosSource) Close() error {
	return s.f.Close()
}

// dcdGate watches the carrier-detect line of the same tty.
func (s *termiosSource) dcdGate() (Gate, error) {
	bits, err := unix.IoctlGetInt(s.fd, unix.TIOCMGET)
	if err != nil {
		return nil, fmt.Errorf("TIOCMGET: %w", err)
	}
	g := newEdgeGate(nil)
	go watchDCD(s.fd, bits&unix.TIOCM_CD != 0, g)
	return g, nil
}

// watchDCD blocks in TIOCMIWAIT until the carrier line changes and reports
// low-to-high transitions. It returns once the gate is closed or the tty fails;
// a close is noticed at the next line change.
func watchDCD(fd int, high bool, g *edgeGate) {
	for {
		if err := unix.IoctlSetInt(fd, unix.TIOCMIWAIT, unix.TIOCM_CD); err != nil {
			g.fail(fmt.Errorf("TIOCMIWAIT: %w", err))
			return
		}
		at := time.Now()
		if g.closed() {
			return
		}
		bits, err := unix.IoctlGetInt(fd, unix.TIOCMGET)
		if err != nil {
			g.fail(fmt.Errorf("TIOCMGET: %w", err))
			return
		}
		now := bits&unix.TIOCM_CD != 0
		if now && !high {
			g.push(at)
		}
		high = now
	}
}

func openSerial(path string, baud int, readTimeout time.Duration) (*os.File, error) {
	flag := unix.O_RDWR | unix.O_NOCTTY
	fd, err := unix.Open(path, flag, 0)
	if err != nil {
		return nil, err
	}

	ok := false
	defer func() {
		if !ok {
			_ = unix.Close(fd)
		}
	}()

	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return nil, err
	}

	spd, err := baudToUnix(baud)
	if err != nil {
		return nil, err
	}

	// Raw 8N1, no flow control, carrier changes do not hang up the port.
	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON | unix.IXOFF
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB | unix.CSTOPB | unix.CRTSCTS
	t.Cflag |= unix.CS8 | unix.CLOCAL | unix.CREAD

	// VMIN=0 turns VTIME into an inter-byte timeout (deciseconds, max 25.5s).
	t.Cc[unix.VMIN] = 0
	t.Cc[unix.VTIME] = vtime(readTimeout)

	t.Cflag &^= unix.CBAUD
	t.Cflag |= spd
	t.Ispeed = spd
	t.Ospeed = spd

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, t); err != nil {
		return nil, err
	}

	f := os.NewFile(uintptr(fd), path)
	if f == nil {
		return nil, fmt.Errorf("os.NewFile failed")
	}
	ok = true
	return f, nil
}

func vtime(d time.Duration) uint8 {
	ds := (d + 99*time.Millisecond) / (100 * time.Millisecond)
	switch {
	case ds < 1:
		return 1
	case ds > 255:
		return 255
	default:
		return uint8(ds)
	}
}

func baudToUnix(baud int) (uint32, error) {
	switch baud {
	case 4800:
		return unix.B4800, nil
	case 9600:
		return unix.B9600, nil
	case 19200:
		return unix.B19200, nil
	case 38400:
		return unix.B38400, nil
	case 57600:
		return unix.B57600, nil
	case 115200:
		return unix.B115200, nil
	case 230400:
		return unix.B230400, nil
	default:
		return 0, fmt.Errorf("unsupported baud %d", baud)
	}
}
