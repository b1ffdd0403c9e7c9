// Package faker produces synthetic fixes for exercising publishers and
// subscribers without a receiver attached.
package faker

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"gpsclock/internal/gps"
	"gpsclock/internal/nmea"
)

type Kind string

const (
	KindStatic Kind = "static"
	KindLine   Kind = "line"
)

// flakyValidRatio is the share of fixes reported fresh in flaky mode.
const flakyValidRatio = 0.75

type Config struct {
	Kind Kind
	// Lon/Lat is the static position or the start of the line.
	Lon, Lat       float64
	EndLon, EndLat float64
	// Duration is how long the line takes from start to end.
	Duration time.Duration
	Flaky    bool
	// Seed drives the flaky generator; 0 picks one from the clock.
	Seed int64
}

type Faker struct {
	cfg   Config
	rng   *rand.Rand
	start time.Time
}

// New returns a faker whose line (if any) starts at start.
func New(cfg Config, start time.Time) (*Faker, error) {
	switch cfg.Kind {
	case "", KindStatic:
		cfg.Kind = KindStatic
	case KindLine:
		if cfg.Duration <= 0 {
			return nil, fmt.Errorf("line generator needs a positive duration")
		}
	default:
		return nil, fmt.Errorf("unknown generator kind %q", cfg.Kind)
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Faker{cfg: cfg, rng: rand.New(rand.NewSource(seed)), start: start}, nil
}

// Position returns the synthetic fix at now. Both timestamps are now; in
// flaky mode roughly a quarter of the fixes are marked stale.
func (f *Faker) Position(now time.Time) gps.Position {
	lon, lat := f.cfg.Lon, f.cfg.Lat
	if f.cfg.Kind == KindLine {
		frac := float64(now.Sub(f.start)) / float64(f.cfg.Duration)
		frac = math.Max(0, math.Min(1, frac))
		lon += frac * (f.cfg.EndLon - f.cfg.Lon)
		lat += frac * (f.cfg.EndLat - f.cfg.Lat)
	}
	return gps.Position{
		Lon:     lon,
		Lat:     lat,
		XYValid: true,
		ZValid:  true,
		TValid:  true,
		GPSTime: now.UTC(),
		SysTime: now.UTC(),
		Stale:   f.cfg.Flaky && f.rng.Float64() >= flakyValidRatio,
	}
}

// Run emits one fix per interval until ctx is done or emit fails.
func (f *Faker) Run(ctx context.Context, interval time.Duration, emit func(gps.Position) error) error {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := emit(f.Position(time.Now())); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Sentences renders p as framed RMC and GGA sentences. A stale fix is
// rendered void so a logger reading them ignores it.
func Sentences(p gps.Position) []string {
	t := p.GPSTime.UTC()
	hms := fmt.Sprintf("%02d%02d%02d.%02d", t.Hour(), t.Minute(), t.Second(), t.Nanosecond()/int(10*time.Millisecond))
	lat, ns := degMin(p.Lat, 2, 'N', 'S')
	lon, ew := degMin(p.Lon, 3, 'E', 'W')

	status, quality := "A", 1
	if p.Stale || !p.XYValid {
		status, quality = "V", 0
	}

	rmc := fmt.Sprintf("GPRMC,%s,%s,%s,%c,%s,%c,0.0,0.0,%02d%02d%02d,,",
		hms, status, lat, ns, lon, ew, t.Day(), int(t.Month()), t.Year()%100)
	gga := fmt.Sprintf("GPGGA,%s,%s,%c,%s,%c,%d,08,1.0,%.1f,M,0.0,M,,",
		hms, lat, ns, lon, ew, quality, p.Alt)
	return []string{nmea.Frame(rmc), nmea.Frame(gga)}
}

// degMin formats v as NMEA degrees and decimal minutes.
func degMin(v float64, degDigits int, pos, neg byte) (string, byte) {
	ref := pos
	if v < 0 {
		ref = neg
		v = -v
	}
	totalMin := math.Round(v*60*1e4) / 1e4
	deg := math.Floor(totalMin / 60)
	min := totalMin - deg*60
	return fmt.Sprintf("%0*d%07.4f", degDigits, int(deg), min), ref
}
