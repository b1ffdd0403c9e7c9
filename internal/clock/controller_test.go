package clock

import (
	"errors"
	"testing"
	"time"
)

var ref = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// evalDelta opens a fresh interval and evaluates a GPS time delta ahead of ref.
func evalDelta(c *Controller, d time.Duration) Action {
	c.OpenInterval()
	return c.Evaluate(ref.Add(d), ref, ref.Add(200*time.Millisecond))
}

func TestController_SmallDeltaSlews(t *testing.T) {
	c := NewController(Config{Enable: true})
	act := evalDelta(c, 250*time.Millisecond)
	if act.Kind != SmoothAdjust {
		t.Fatalf("kind=%s", act.Kind)
	}
	if act.Delta != 250*time.Millisecond {
		t.Fatalf("delta=%s", act.Delta)
	}

	act = evalDelta(c, -999*time.Millisecond)
	if act.Kind != SmoothAdjust {
		t.Fatalf("negative small delta kind=%s", act.Kind)
	}
}

func TestController_ConsistentLargeDeltaHardSets(t *testing.T) {
	c := NewController(Config{Enable: true})
	if act := evalDelta(c, 5*time.Second); act.Kind != DeferLargeChange {
		t.Fatalf("first kind=%s", act.Kind)
	}
	act := evalDelta(c, 7*time.Second)
	if act.Kind != HardSet {
		t.Fatalf("second kind=%s", act.Kind)
	}
	// gps + (now - ref)
	want := ref.Add(7*time.Second + 200*time.Millisecond)
	if !act.SetTo.Equal(want) {
		t.Fatalf("setTo=%v want %v", act.SetTo, want)
	}
}

func TestController_InconsistentLargeDeltaDefersAgain(t *testing.T) {
	c := NewController(Config{Enable: true})
	if act := evalDelta(c, 5*time.Second); act.Kind != DeferLargeChange {
		t.Fatalf("first kind=%s", act.Kind)
	}
	if act := evalDelta(c, 40*time.Second); act.Kind != DeferLargeChange {
		t.Fatalf("second kind=%s", act.Kind)
	}
	// Both observations were discarded; a third starts over.
	if act := evalDelta(c, 41*time.Second); act.Kind != DeferLargeChange {
		t.Fatalf("third kind=%s", act.Kind)
	}
	if act := evalDelta(c, 42*time.Second); act.Kind != HardSet {
		t.Fatalf("fourth kind=%s", act.Kind)
	}
}

func TestController_NegativeLargeDeltaIsSymmetric(t *testing.T) {
	c := NewController(Config{Enable: true})
	evalDelta(c, -5*time.Second)
	if act := evalDelta(c, -8*time.Second); act.Kind != HardSet {
		t.Fatalf("kind=%s", act.Kind)
	}
}

func TestController_SmallDeltaClearsPending(t *testing.T) {
	c := NewController(Config{Enable: true})
	evalDelta(c, 5*time.Second)
	evalDelta(c, 100*time.Millisecond)
	if act := evalDelta(c, 6*time.Second); act.Kind != DeferLargeChange {
		t.Fatalf("kind=%s", act.Kind)
	}
}

func TestController_ResetClearsPending(t *testing.T) {
	c := NewController(Config{Enable: true})
	evalDelta(c, 5*time.Second)
	c.Reset()
	if act := evalDelta(c, 6*time.Second); act.Kind != DeferLargeChange {
		t.Fatalf("kind=%s", act.Kind)
	}
}

func TestController_OneEvaluationPerInterval(t *testing.T) {
	c := NewController(Config{Enable: true})
	c.OpenInterval()
	if act := c.Evaluate(ref.Add(5*time.Second), ref, ref); act.Kind != DeferLargeChange {
		t.Fatalf("kind=%s", act.Kind)
	}
	if act := c.Evaluate(ref.Add(5*time.Second), ref, ref); act.Kind != NoAction {
		t.Fatalf("second evaluation in same interval kind=%s", act.Kind)
	}
}

func TestController_ClosedWithoutOpenInterval(t *testing.T) {
	c := NewController(Config{Enable: true})
	if act := c.Evaluate(ref, ref, ref); act.Kind != NoAction {
		t.Fatalf("kind=%s", act.Kind)
	}
}

func TestController_Disabled(t *testing.T) {
	c := NewController(Config{Enable: false, Force: true})
	if act := evalDelta(c, time.Hour); act.Kind != NoAction {
		t.Fatalf("kind=%s", act.Kind)
	}
}

func TestController_ForceIsOneShot(t *testing.T) {
	c := NewController(Config{Enable: true, Force: true})
	act := evalDelta(c, 10*time.Millisecond)
	if act.Kind != HardSet {
		t.Fatalf("forced kind=%s", act.Kind)
	}
	if act := evalDelta(c, time.Hour); act.Kind != DeferLargeChange {
		t.Fatalf("after force kind=%s", act.Kind)
	}
}

func TestController_OneShotDisablesAfterApplied(t *testing.T) {
	c := NewController(Config{Enable: true, OneShot: true})
	evalDelta(c, 5*time.Second)
	if !c.Enabled() {
		t.Fatalf("defer must not consume the one shot")
	}
	if act := evalDelta(c, 5*time.Second); act.Kind != HardSet {
		t.Fatalf("kind=%s", act.Kind)
	}
	if c.Enabled() {
		t.Fatalf("expected disabled after hard set")
	}
	if act := evalDelta(c, 100*time.Millisecond); act.Kind != NoAction {
		t.Fatalf("kind=%s", act.Kind)
	}
}

func TestSplitDelta(t *testing.T) {
	cases := []struct {
		d        time.Duration
		sec, use int64
	}{
		{d: 1500 * time.Millisecond, sec: 1, use: 500_000},
		{d: -1500 * time.Millisecond, sec: -2, use: 500_000},
		{d: -time.Second, sec: -1, use: 0},
		{d: 999 * time.Microsecond, sec: 0, use: 999},
		{d: 0, sec: 0, use: 0},
	}
	for _, tc := range cases {
		sec, usec := SplitDelta(tc.d)
		if sec != tc.sec || usec != tc.use {
			t.Fatalf("SplitDelta(%s)=(%d,%d) want (%d,%d)", tc.d, sec, usec, tc.sec, tc.use)
		}
	}
}

type fakeAdjuster struct {
	slews []time.Duration
	steps []time.Time
	err   error
}

func (f *fakeAdjuster) Slew(d time.Duration) error {
	f.slews = append(f.slews, d)
	return f.err
}

func (f *fakeAdjuster) Step(t time.Time) error {
	f.steps = append(f.steps, t)
	return f.err
}

func TestApply(t *testing.T) {
	adj := &fakeAdjuster{}
	if err := Apply(adj, Action{Kind: SmoothAdjust, Delta: time.Millisecond}); err != nil {
		t.Fatalf("slew: %v", err)
	}
	if err := Apply(adj, Action{Kind: HardSet, SetTo: ref}); err != nil {
		t.Fatalf("step: %v", err)
	}
	if err := Apply(adj, Action{Kind: DeferLargeChange}); err != nil {
		t.Fatalf("defer: %v", err)
	}
	if len(adj.slews) != 1 || len(adj.steps) != 1 || !adj.steps[0].Equal(ref) {
		t.Fatalf("slews=%v steps=%v", adj.slews, adj.steps)
	}

	boom := errors.New("eperm")
	adj.err = boom
	if err := Apply(adj, Action{Kind: HardSet, SetTo: ref}); !errors.Is(err, boom) {
		t.Fatalf("err=%v", err)
	}
}
