package gps

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

var (
	// ErrPulseTimeout is returned by Gate.Wait when no rising edge arrived in time.
	ErrPulseTimeout = errors.New("pulse timeout")
	ErrGateClosed   = errors.New("pulse gate closed")
)

// Gate reports the rising edges of a pulse-per-second signal.
type Gate interface {
	// Wait blocks until the next rising edge and returns the host time it was seen.
	Wait(ctx context.Context, timeout time.Duration) (time.Time, error)
	// Rearmed reports, without blocking, whether a rising edge arrived since
	// the last Wait returned.
	Rearmed() bool
	Close() error
}

// GateConfig selects the pulse backend.
type GateConfig struct {
	// Source is "dcd" (carrier detect of the serial source) or "gpio".
	Source   string
	GPIOChip string
	GPIOLine int
}

// dcdSource is implemented by byte sources that can watch their own DCD line.
type dcdSource interface {
	dcdGate() (Gate, error)
}

// OpenGate opens the configured pulse gate. The dcd gate shares src's device.
func OpenGate(cfg GateConfig, src Source) (Gate, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Source)) {
	case "", "dcd":
		ds, ok := src.(dcdSource)
		if !ok {
			return nil, fmt.Errorf("%w: pulse source dcd needs a serial driver", ErrDevice)
		}
		g, err := ds.dcdGate()
		if err != nil {
			return nil, fmt.Errorf("%w: dcd gate: %v", ErrDevice, err)
		}
		return g, nil
	case "gpio":
		g, err := openGPIOGate(cfg.GPIOChip, cfg.GPIOLine)
		if err != nil {
			return nil, fmt.Errorf("%w: gpio gate: %v", ErrDevice, err)
		}
		return g, nil
	default:
		return nil, fmt.Errorf("%w: unknown pulse source %q", ErrDevice, cfg.Source)
	}
}

// edgeGate turns edges pushed by a watcher goroutine into Gate semantics.
// Only the most recent unconsumed edge is kept.
type edgeGate struct {
	edges chan time.Time
	done  chan struct{}

	doneOnce  sync.Once
	closeOnce sync.Once
	onClose   func() error

	mu  sync.Mutex
	err error
}

func newEdgeGate(onClose func() error) *edgeGate {
	return &edgeGate{
		edges:   make(chan time.Time, 1),
		done:    make(chan struct{}),
		onClose: onClose,
	}
}

// push records a rising edge seen at the given time.
func (g *edgeGate) push(at time.Time) {
	for {
		select {
		case g.edges <- at:
			return
		default:
		}
		select {
		case <-g.edges:
		default:
		}
	}
}

// fail records a watcher failure and unblocks Wait.
func (g *edgeGate) fail(err error) {
	g.mu.Lock()
	if g.err == nil {
		g.err = err
	}
	g.mu.Unlock()
	g.doneOnce.Do(func() { close(g.done) })
}

func (g *edgeGate) closed() bool {
	select {
	case <-g.done:
		return true
	default:
		return false
	}
}

func (g *edgeGate) Wait(ctx context.Context, timeout time.Duration) (time.Time, error) {
	// Edges seen before the caller started waiting belong to an earlier interval.
	select {
	case <-g.edges:
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case at := <-g.edges:
		return at, nil
	case <-timer.C:
		return time.Time{}, ErrPulseTimeout
	case <-ctx.Done():
		return time.Time{}, ctx.Err()
	case <-g.done:
		g.mu.Lock()
		err := g.err
		g.mu.Unlock()
		if err == nil {
			err = ErrGateClosed
		}
		return time.Time{}, err
	}
}

func (g *edgeGate) Rearmed() bool {
	select {
	case <-g.edges:
		return true
	default:
		return false
	}
}

func (g *edgeGate) Close() error {
	g.doneOnce.Do(func() { close(g.done) })
	var err error
	g.closeOnce.Do(func() {
		if g.onClose != nil {
			err = g.onClose()
		}
	})
	return err
}
