//go:build !linux

package gps

import (
	"fmt"
	"time"
)

func openTermios(path string, baud int, readTimeout time.Duration) (Source, error) {
	return nil, fmt.Errorf("termios serial not supported on this platform; use driver bugst")
}
