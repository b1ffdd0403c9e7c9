package clock

import (
	"fmt"
	"log"
	"time"
)

// Adjuster moves the host clock.
type Adjuster interface {
	// Slew gradually adds d to the clock.
	Slew(d time.Duration) error
	// Step sets the clock to t immediately.
	Step(t time.Time) error
}

// Apply executes a on adj. NoAction and DeferLargeChange are no-ops.
func Apply(adj Adjuster, a Action) error {
	switch a.Kind {
	case SmoothAdjust:
		if err := adj.Slew(a.Delta); err != nil {
			return fmt.Errorf("clock slew %s: %w", a.Delta, err)
		}
	case HardSet:
		if err := adj.Step(a.SetTo); err != nil {
			return fmt.Errorf("clock step to %s: %w", a.SetTo.UTC().Format(time.RFC3339Nano), err)
		}
	}
	return nil
}

// DryRun logs the adjustments it would make.
type DryRun struct{}

func (DryRun) Slew(d time.Duration) error {
	sec, usec := SplitDelta(d)
	log.Printf("clock dry-run slew delta=%s sec=%d usec=%d", d, sec, usec)
	return nil
}

func (DryRun) Step(t time.Time) error {
	log.Printf("clock dry-run step to=%s", t.UTC().Format(time.RFC3339Nano))
	return nil
}

// New returns the system adjuster, or DryRun when dryRun is set or the
// platform cannot adjust the clock.
func New(dryRun bool) Adjuster {
	if dryRun {
		return DryRun{}
	}
	return newSystem()
}
