//go:build linux

package clock

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// adjOffsetSingleshot is the adjtime(3)-compatible mode: slew by Offset
// microseconds once, then stop.
const adjOffsetSingleshot = 0x8001

type system struct{}

func newSystem() Adjuster { return system{} }

func (system) Slew(d time.Duration) error {
	var tx unix.Timex
	tx.Modes = adjOffsetSingleshot
	setInt(&tx.Offset, d.Microseconds())
	if _, err := unix.Adjtimex(&tx); err != nil {
		return fmt.Errorf("adjtimex: %w", err)
	}
	return nil
}

func (system) Step(t time.Time) error {
	tv := unix.NsecToTimeval(t.UnixNano())
	if err := unix.Settimeofday(&tv); err != nil {
		return fmt.Errorf("settimeofday: %w", err)
	}
	return nil
}

// setInt assigns v to a Timex field whose width differs between 32 and 64 bit targets.
func setInt[T ~int32 | ~int64](dst *T, v int64) {
	*dst = T(v)
}
