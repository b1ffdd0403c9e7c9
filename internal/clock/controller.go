package clock

import (
	"time"
)

// largeChangeWindow bounds how far two consecutive large deltas may disagree
// (in whole seconds) before a hard set is trusted.
const largeChangeWindow = 10

type ActionKind int

const (
	NoAction ActionKind = iota
	SmoothAdjust
	HardSet
	DeferLargeChange
)

func (k ActionKind) String() string {
	switch k {
	case SmoothAdjust:
		return "smooth_adjust"
	case HardSet:
		return "hard_set"
	case DeferLargeChange:
		return "defer_large_change"
	default:
		return "none"
	}
}

// Action is the controller's decision for one evaluation.
type Action struct {
	Kind ActionKind
	// Delta is the slew amount for SmoothAdjust (gps minus reference).
	Delta time.Duration
	// SetTo is the absolute wall time for HardSet.
	SetTo time.Time
}

// Applied reports whether the action changes the host clock.
func (a Action) Applied() bool {
	return a.Kind == SmoothAdjust || a.Kind == HardSet
}

type Config struct {
	// Enable turns time-setting on at all.
	Enable bool
	// Force makes the first evaluation a HardSet regardless of magnitude.
	Force bool
	// OneShot disables time-setting after the first applied action.
	OneShot bool
}

// Controller decides how to move the host clock toward GPS time.
//
// Not safe for concurrent use; the acquisition loop owns it.
type Controller struct {
	enabled bool
	force   bool
	oneShot bool

	// open is true while the current interval has not been evaluated yet.
	open bool

	pending bool
	prevSec int64
}

func NewController(cfg Config) *Controller {
	return &Controller{
		enabled: cfg.Enable,
		force:   cfg.Force,
		oneShot: cfg.OneShot,
	}
}

// Enabled reports whether time-setting is still active.
func (c *Controller) Enabled() bool {
	return c.enabled
}

// OpenInterval arms a single evaluation for the next pulse interval or read window.
func (c *Controller) OpenInterval() {
	c.open = c.enabled
}

// Reset forgets a pending large change. Called whenever a window is aborted
// so a stale first observation cannot confirm a later, unrelated one.
func (c *Controller) Reset() {
	c.pending = false
	c.prevSec = 0
}

// Evaluate compares gps against ref (the host time at which gps was true) and
// returns the action to take. now is the current host time, used to carry a
// HardSet target forward by the processing latency.
func (c *Controller) Evaluate(gps, ref, now time.Time) Action {
	if !c.enabled || !c.open {
		return Action{}
	}
	c.open = false

	act := c.decide(gps, ref, now)
	if c.oneShot && act.Applied() {
		c.enabled = false
	}
	return act
}

func (c *Controller) decide(gps, ref, now time.Time) Action {
	delta := gps.Sub(ref).Truncate(time.Microsecond)
	setTo := gps.Add(now.Sub(ref))

	if c.force {
		c.force = false
		c.Reset()
		return Action{Kind: HardSet, Delta: delta, SetTo: setTo}
	}

	if delta > -time.Second && delta < time.Second {
		c.Reset()
		return Action{Kind: SmoothAdjust, Delta: delta}
	}

	sec, _ := SplitDelta(delta)
	if !c.pending {
		c.pending = true
		c.prevSec = sec
		return Action{Kind: DeferLargeChange, Delta: delta}
	}

	diff := c.prevSec - sec
	c.Reset()
	if diff < 0 {
		diff = -diff
	}
	if diff < largeChangeWindow {
		return Action{Kind: HardSet, Delta: delta, SetTo: setTo}
	}
	return Action{Kind: DeferLargeChange, Delta: delta}
}

// SplitDelta normalizes d into whole seconds plus microseconds in [0, 1e6),
// so -1.5s becomes (-2, 500000).
func SplitDelta(d time.Duration) (sec int64, usec int64) {
	us := d.Microseconds()
	sec = us / 1_000_000
	usec = us % 1_000_000
	if usec < 0 {
		sec--
		usec += 1_000_000
	}
	return sec, usec
}
