//go:build linux

package sensor

import (
	"log/slog"
	"sync"

	"github.com/stianeikeland/go-rpio/v4"

	"github.com/kennelworks/hushd/internal/util"
)

// StopButton is a momentary switch wired between a GPIO pin and ground.
// Pressing it cancels a running playback.
type StopButton struct {
	mu     sync.Mutex
	pin    rpio.Pin
	closed bool
}

// NewStopButton claims the given BCM pin as a pulled-up input.
func NewStopButton(pinNum int) (*StopButton, error) {
	if err := rpio.Open(); err != nil {
		return nil, util.WrapError("open gpio memory", err)
	}

	pin := rpio.Pin(pinNum)
	pin.Input()
	pin.PullUp()

	return &StopButton{pin: pin}, nil
}

// Pressed reports whether the button is currently held down.
func (b *StopButton) Pressed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false
	}
	return b.pin.Read() == rpio.Low
}

// Close releases the pin.
func (b *StopButton) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	b.pin.PullOff()
	if err := rpio.Close(); err != nil {
		slog.Warn("failed to close gpio memory", "error", err)
	}
	return nil
}
