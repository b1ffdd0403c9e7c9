//go:build linux

package gps

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// openGPIOGate requests rising-edge events on a GPIO line wired to the
// receiver's PPS output.
//
// With chipPath empty, line is a BCM number and the chips are searched for a
// line named "GPIO<line>", as on Raspberry Pi kernels. Otherwise line is the
// offset on chipPath.
func openGPIOGate(chipPath string, line int) (Gate, error) {
	if line < 0 {
		return nil, fmt.Errorf("invalid gpio line %d", line)
	}

	g := newEdgeGate(nil)
	handler := func(evt gpiocdev.LineEvent) {
		if evt.Type == gpiocdev.LineEventRisingEdge {
			g.push(time.Now())
		}
	}

	if strings.TrimSpace(chipPath) != "" {
		chip, l, err := requestPPSLine(chipPath, line, handler)
		if err != nil {
			return nil, err
		}
		g.onClose = closeLine(chip, l)
		log.Printf("pulse gpio chip=%s offset=%d", chipPath, line)
		return g, nil
	}

	lineName := fmt.Sprintf("GPIO%d", line)
	for _, chipPath := range chipCandidates() {
		chip, err := gpiocdev.NewChip(chipPath)
		if err != nil {
			continue
		}
		offset, err := chip.FindLine(lineName)
		_ = chip.Close()
		if err != nil {
			continue
		}
		c, l, err := requestPPSLine(chipPath, offset, handler)
		if err != nil {
			continue
		}
		g.onClose = closeLine(c, l)
		log.Printf("pulse gpio chip=%s line=%s offset=%d", chipPath, lineName, offset)
		return g, nil
	}
	return nil, fmt.Errorf("gpio line %q not found (or busy)", lineName)
}

func requestPPSLine(chipPath string, offset int, handler gpiocdev.EventHandler) (*gpiocdev.Chip, *gpiocdev.Line, error) {
	chip, err := gpiocdev.NewChip(chipPath)
	if err != nil {
		return nil, nil, err
	}
	l, err := chip.RequestLine(offset,
		gpiocdev.AsInput,
		gpiocdev.WithRisingEdge,
		gpiocdev.WithEventHandler(handler),
		gpiocdev.WithConsumer("gpsclock-pps"))
	if err != nil {
		_ = chip.Close()
		return nil, nil, err
	}
	return chip, l, nil
}

func closeLine(chip *gpiocdev.Chip, l *gpiocdev.Line) func() error {
	return func() error {
		err := l.Close()
		_ = chip.Close()
		return err
	}
}

// chipCandidates lists likely chips first; Pi 5 kernels may expose the header
// on gpiochip4.
func chipCandidates() []string {
	out := []string{"/dev/gpiochip0", "/dev/gpiochip4"}
	entries, _ := os.ReadDir("/dev")
	for _, e := range entries {
		name := e.Name()
		p := filepath.Join("/dev", name)
		if strings.HasPrefix(name, "gpiochip") && p != out[0] && p != out[1] {
			out = append(out, p)
		}
	}
	return out
}
