package gps

import (
	"fmt"
	"log"
	"time"

	"go.bug.st/serial"
)

// dcdPollInterval bounds the timestamp error of the polled carrier gate.
const dcdPollInterval = 2 * time.Millisecond

// bugstSource reads a serial port through go.bug.st/serial, which works where
// the termios driver does not (macOS, Windows).
type bugstSource struct {
	port serial.Port
	*chunkReader
}

func openBugst(device string, baud int, readTimeout time.Duration) (Source, error) {
	port, err := serial.Open(device, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, err
	}
	if err := port.SetReadTimeout(readTimeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("set read timeout: %w", err)
	}
	log.Printf("gps serial open driver=bugst device=%s baud=%d read_timeout=%s", device, baud, readTimeout)
	return &bugstSource{port: port, chunkReader: newChunkReader(port)}, nil
}

func (s *bugstSource) Flush() error {
	s.discard()
	return s.port.ResetInputBuffer()
}

func (s *bugstSource) Close() error {
	return s.port.Close()
}

// dcdGate polls the carrier-detect bit; the library has no blocking wait for
// modem line changes.
func (s *bugstSource) dcdGate() (Gate, error) {
	bits, err := s.port.GetModemStatusBits()
	if err != nil {
		return nil, fmt.Errorf("modem status: %w", err)
	}
	g := newEdgeGate(nil)
	go pollDCD(s.port, bits.DCD, g)
	return g, nil
}

func pollDCD(port serial.Port, high bool, g *edgeGate) {
	t := time.NewTicker(dcdPollInterval)
	defer t.Stop()
	for {
		select {
		case <-g.done:
			return
		case <-t.C:
		}
		bits, err := port.GetModemStatusBits()
		if err != nil {
			g.fail(fmt.Errorf("modem status: %w", err))
			return
		}
		if bits.DCD && !high {
			g.push(time.Now())
		}
		high = bits.DCD
	}
}
