//go:build !linux

package clock

import "log"

// Stub implementation for non-Linux platforms.
func newSystem() Adjuster {
	log.Printf("clock adjust unsupported on this platform; using dry-run")
	return DryRun{}
}
