//go:build !linux

package gps

import "fmt"

func openGPIOGate(chipPath string, line int) (Gate, error) {
	return nil, fmt.Errorf("gpio pulse gate unsupported on this platform")
}
