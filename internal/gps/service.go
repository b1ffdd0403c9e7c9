package gps

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"gpsclock/internal/clock"
	"gpsclock/internal/metrics"
	"gpsclock/internal/nmea"
)

const (
	defaultMaxSentences   = 4
	defaultPulseTimeout   = 10 * time.Second
	defaultStaleThreshold = 30 * time.Second
	watchdogInterval      = time.Second
)

// Config controls the acquisition loop.
type Config struct {
	// PulseTimeout bounds the wait for each pulse when a Gate is present.
	PulseTimeout time.Duration
	// MaxSentences ends a read window after this many completed frames.
	MaxSentences    int
	RequireChecksum bool
	RejectPre2000   bool

	// SetClock enables clock discipline; ForceClock makes the first
	// adjustment a hard set.
	SetClock   bool
	ForceClock bool
	// OneShotUnpulsed stops adjusting after the first applied change when
	// there is no pulse gate.
	OneShotUnpulsed bool

	StaleThreshold time.Duration
	// AltitudeMaxAge limits altitude carry-over; 0 carries indefinitely.
	AltitudeMaxAge time.Duration

	// Debug logs every accepted sentence.
	Debug bool
}

// Publisher receives every committed position.
type Publisher interface {
	Update(Position) error
}

// FixLogger records accepted fixes.
type FixLogger interface {
	Write(Position) error
}

// Deps are the collaborators of a Service. Gate and FixLog may be nil.
type Deps struct {
	Source    Source
	Gate      Gate
	Publisher Publisher
	Adjuster  clock.Adjuster
	FixLog    FixLogger
}

type Service struct {
	cfg  Config
	deps Deps
	ctl  *clock.Controller
	dec  nmea.Decoder
	now  func() time.Time

	state fixState
	diag  *tailBuffer

	frames        atomic.Uint64
	discards      atomic.Uint64
	decodeErrors  atomic.Uint64
	fixes         atomic.Uint64
	pulses        atomic.Uint64
	pulseTimeouts atomic.Uint64
	missedPulses  atomic.Uint64
	clockEnabled  atomic.Bool
	lastClock     atomic.Value // ClockSnapshot
}

func New(cfg Config, deps Deps) *Service {
	if cfg.MaxSentences <= 0 {
		cfg.MaxSentences = defaultMaxSentences
	}
	if cfg.PulseTimeout <= 0 {
		cfg.PulseTimeout = defaultPulseTimeout
	}
	if cfg.StaleThreshold <= 0 {
		cfg.StaleThreshold = defaultStaleThreshold
	}
	if deps.Adjuster == nil {
		deps.Adjuster = clock.DryRun{}
	}

	s := &Service{
		cfg:  cfg,
		deps: deps,
		ctl: clock.NewController(clock.Config{
			Enable:  cfg.SetClock,
			Force:   cfg.ForceClock,
			OneShot: cfg.OneShotUnpulsed && deps.Gate == nil,
		}),
		dec:  nmea.Decoder{RejectPre2000: cfg.RejectPre2000},
		now:  time.Now,
		diag: newTailBuffer(50, 512),
	}
	s.state.pos = InitialPosition()
	s.state.pub = deps.Publisher
	s.state.fixLog = deps.FixLog
	s.clockEnabled.Store(cfg.SetClock)
	s.lastClock.Store(ClockSnapshot{})
	return s
}

// Run acquires fixes until ctx is cancelled, the source ends, or the device
// fails. An exhausted file source and cancellation return nil; device and
// channel failures return errors wrapping ErrDevice or the publisher's error.
func (s *Service) Run(ctx context.Context) error {
	if err := s.state.publishCurrent(); err != nil {
		return fmt.Errorf("initial publish: %w", err)
	}

	// Closing the source and gate is what unblocks a pending read or wait.
	stop := context.AfterFunc(ctx, func() {
		_ = s.deps.Source.Close()
		if s.deps.Gate != nil {
			_ = s.deps.Gate.Close()
		}
	})
	defer stop()

	var wg sync.WaitGroup
	wdCtx, cancelWatchdog := context.WithCancel(ctx)
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.watchdog(wdCtx)
	}()
	defer func() {
		cancelWatchdog()
		wg.Wait()
	}()

	gated := s.deps.Gate != nil
	log.Printf("gps acquisition started pulse=%t set_clock=%t max_sentences=%d", gated, s.cfg.SetClock, s.cfg.MaxSentences)

	for {
		if ctx.Err() != nil {
			return nil
		}

		var pulse time.Time
		if gated {
			at, ok, err := s.waitPulse(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			if !ok {
				continue
			}
			pulse = at
		}

		err := s.readWindow(ctx, pulse, gated)
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			log.Printf("gps source exhausted; stopping")
			return nil
		case ctx.Err() != nil:
			return nil
		default:
			return err
		}
	}
}

// waitPulse flushes stale input and waits for the next rising edge.
// ok is false after a timeout, which has already been handled.
func (s *Service) waitPulse(ctx context.Context) (time.Time, bool, error) {
	if err := s.deps.Source.Flush(); err != nil {
		log.Printf("gps flush failed: %v", err)
	}

	at, err := s.deps.Gate.Wait(ctx, s.cfg.PulseTimeout)
	switch {
	case err == nil:
	case errors.Is(err, ErrPulseTimeout):
		s.pulseTimeouts.Add(1)
		metrics.Pulse("timeout")
		log.Printf("gps pulse timed out after %s time=%s", s.cfg.PulseTimeout, s.now().UTC().Format("15:04:05.000000"))
		s.state.markStale()
		return time.Time{}, false, nil
	case ctx.Err() != nil:
		return time.Time{}, false, ctx.Err()
	default:
		return time.Time{}, false, fmt.Errorf("%w: pulse gate: %v", ErrDevice, err)
	}

	s.pulses.Add(1)
	metrics.Pulse("pulse")
	// Bytes queued before the pulse belong to the previous second.
	if err := s.deps.Source.Flush(); err != nil {
		log.Printf("gps flush failed: %v", err)
	}
	return at, true, nil
}

// readWindow reads frames until MaxSentences completed or the window aborts.
func (s *Service) readWindow(ctx context.Context, pulse time.Time, gated bool) error {
	framer := nmea.NewFramer(s.cfg.RequireChecksum)
	s.ctl.OpenInterval()

	completed := 0
	for completed < s.cfg.MaxSentences {
		if gated && s.deps.Gate.Rearmed() {
			s.missedPulses.Add(1)
			metrics.Pulse("missed")
			log.Printf("gps missed pulse: window not finished before next pulse (frames=%d)", completed)
			s.ctl.Reset()
			return nil
		}

		b, err := s.deps.Source.ReadByte()
		at := s.now()
		if err != nil {
			switch {
			case errors.Is(err, ErrReadTimeout):
				log.Printf("gps read timeout; marking stale")
				s.state.markStale()
				s.ctl.Reset()
				return nil
			case errors.Is(err, io.EOF):
				return io.EOF
			case ctx.Err() != nil:
				return nil
			default:
				s.ctl.Reset()
				return fmt.Errorf("%w: read: %v", ErrDevice, err)
			}
		}

		ev := framer.Submit(b, at)
		switch ev.Kind {
		case nmea.FrameDiscarded:
			s.discards.Add(1)
			metrics.Frame(nmea.Reason(ev.Reason))
			s.diag.add(at, "framing", ev.Reason.Error())
			log.Printf("gps frame discarded: %v", ev.Reason)
			if gated {
				s.ctl.Reset()
				return nil
			}
		case nmea.FrameReady:
			completed++
			s.frames.Add(1)
			metrics.Frame("ready")
			s.handleFrame(ev, pulse, gated)
		}
	}
	return nil
}

func (s *Service) handleFrame(ev nmea.Event, pulse time.Time, gated bool) {
	if s.cfg.Debug {
		log.Printf("gps sentence %s", nmea.Describe(ev.Payload))
	}

	fs, err := s.dec.Decode(ev.Payload)
	if err != nil {
		s.decodeErrors.Add(1)
		metrics.DecodeError(nmea.Reason(err))
		s.diag.add(s.now(), "decode", err.Error())
		log.Printf("gps decode failed: %v", err)
		return
	}
	metrics.Fix(fs.Type.String(), fs.Active())
	if !fs.Active() {
		return
	}

	sys := s.now()
	if fs.TimeOK && s.ctl.Enabled() {
		ref := pulse
		if !gated {
			ref = ev.Start
		}
		if act := s.ctl.Evaluate(fs.Time, ref, sys); act.Kind != clock.NoAction {
			if s.applyClock(act) && act.Kind == clock.HardSet {
				// The adjuster may not have moved the clock (dry run), so read it back.
				sys = s.now()
			}
		}
		s.clockEnabled.Store(s.ctl.Enabled())
	}

	s.fixes.Add(1)
	s.state.accept(fs, sys, s.cfg.AltitudeMaxAge)
}

// applyClock executes act and reports whether the host clock was changed.
func (s *Service) applyClock(act clock.Action) bool {
	metrics.ClockAction(act.Kind.String(), act.Delta)
	s.lastClock.Store(ClockSnapshot{
		Action:  act.Kind.String(),
		DeltaMS: float64(act.Delta) / float64(time.Millisecond),
		AtUTC:   s.now().UTC().Format(time.RFC3339Nano),
	})

	switch act.Kind {
	case clock.DeferLargeChange:
		log.Printf("clock delaying time change of 1 second or more delta=%s", act.Delta)
		return false
	case clock.HardSet:
		log.Printf("clock attempting time change delta=%s to=%s", act.Delta, act.SetTo.UTC().Format(time.RFC3339Nano))
	}
	if err := clock.Apply(s.deps.Adjuster, act); err != nil {
		log.Printf("%v", err)
		return false
	}
	return true
}

func (s *Service) watchdog(ctx context.Context) {
	t := time.NewTicker(watchdogInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.checkFreshness(s.now())
		}
	}
}

// checkFreshness marks the record stale once the last fix is older than the
// threshold, and reports whether it did.
func (s *Service) checkFreshness(now time.Time) bool {
	return s.state.expire(now, s.cfg.StaleThreshold)
}

// Position returns the current record.
func (s *Service) Position() Position {
	return s.state.snapshot()
}

// ClockSnapshot describes the last clock discipline decision.
type ClockSnapshot struct {
	Action  string  `json:"action,omitempty"`
	DeltaMS float64 `json:"delta_ms,omitempty"`
	AtUTC   string  `json:"at_utc,omitempty"`
}

// Status is the service's view for the status page.
type Status struct {
	Position      Position      `json:"position"`
	Pulse         bool          `json:"pulse"`
	ClockEnabled  bool          `json:"clock_enabled"`
	LastClock     ClockSnapshot `json:"last_clock"`
	Frames        uint64        `json:"frames"`
	Discards      uint64        `json:"discards"`
	DecodeErrors  uint64        `json:"decode_errors"`
	Fixes         uint64        `json:"fixes"`
	Pulses        uint64        `json:"pulses"`
	PulseTimeouts uint64        `json:"pulse_timeouts"`
	MissedPulses  uint64        `json:"missed_pulses"`
	FixAgeSec     float64       `json:"fix_age_sec,omitempty"`
	Recent        []Diagnostic  `json:"recent_errors"`
}

func (s *Service) Status() Status {
	pos := s.state.snapshot()
	st := Status{
		Position:      pos,
		Pulse:         s.deps.Gate != nil,
		ClockEnabled:  s.clockEnabled.Load(),
		LastClock:     s.lastClock.Load().(ClockSnapshot),
		Frames:        s.frames.Load(),
		Discards:      s.discards.Load(),
		DecodeErrors:  s.decodeErrors.Load(),
		Fixes:         s.fixes.Load(),
		Pulses:        s.pulses.Load(),
		PulseTimeouts: s.pulseTimeouts.Load(),
		MissedPulses:  s.missedPulses.Load(),
		Recent:        s.diag.snapshot(),
	}
	if !pos.SysTime.IsZero() {
		st.FixAgeSec = s.now().Sub(pos.SysTime).Seconds()
	}
	return st
}

// fixState owns the published record. Every mutation and the publish that
// follows it happen under mu, so stale-marking never interleaves with a commit.
type fixState struct {
	mu     sync.Mutex
	pos    Position
	alt    altitudeMemo
	pub    Publisher
	fixLog FixLogger
}

func (f *fixState) snapshot() Position {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pos
}

func (f *fixState) publishCurrent() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.publishLocked()
}

func (f *fixState) publishLocked() error {
	if f.pub == nil {
		return nil
	}
	err := f.pub.Update(f.pos)
	metrics.Publish(err)
	return err
}

func (f *fixState) accept(fs nmea.FieldSet, sys time.Time, maxAge time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.pos.apply(fs, sys, &f.alt, maxAge)
	if f.fixLog != nil {
		if err := f.fixLog.Write(f.pos); err != nil {
			log.Printf("fix log write failed: %v", err)
		}
	}
	if err := f.publishLocked(); err != nil {
		log.Printf("gps publish failed: %v", err)
	}
}

// markStale marks the record stale and republishes it unconditionally.
func (f *fixState) markStale() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.pos.Stale {
		metrics.StaleTransition()
	}
	f.pos.Stale = true
	if err := f.publishLocked(); err != nil {
		log.Printf("gps publish failed: %v", err)
	}
}

func (f *fixState) expire(now time.Time, threshold time.Duration) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.pos.SysTime.IsZero() {
		return false
	}
	age := now.Sub(f.pos.SysTime)
	metrics.FixAge(age)
	if f.pos.Stale || age <= threshold {
		return false
	}
	f.pos.Stale = true
	metrics.StaleTransition()
	log.Printf("gps fix stale age=%s", age.Round(time.Millisecond))
	if err := f.publishLocked(); err != nil {
		log.Printf("gps publish failed: %v", err)
	}
	return true
}
