//go:build !linux

package sensor

import "fmt"

// StopButton is only available on Linux.
type StopButton struct{}

// NewStopButton always fails on non-Linux platforms.
func NewStopButton(pinNum int) (*StopButton, error) {
	return nil, fmt.Errorf("stop button requires linux")
}

// Pressed is never reachable on non-Linux platforms.
func (*StopButton) Pressed() bool { return false }

// Close is never reachable on non-Linux platforms.
func (*StopButton) Close() error { return nil }
