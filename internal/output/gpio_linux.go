//go:build linux

package output

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/stianeikeland/go-rpio/v4"

	"github.com/kennelworks/hushd/internal/types"
	"github.com/kennelworks/hushd/internal/util"
)

// pwmCycle is the PWM cycle length: one step per 8-bit level plus the
// zero step.
const pwmCycle = types.OutputMax + 1

// pwmClockHz gives a 62.5kHz PWM carrier at 8-bit resolution, well
// above the audible range.
const pwmClockHz = pwmCycle * 62500

// GPIO drives a hardware PWM pin as a crude 8-bit DAC. A low-pass
// filter between the pin and the amplifier turns the duty cycle into an
// analog level.
type GPIO struct {
	mu     sync.Mutex
	pin    rpio.Pin
	closed bool
}

// NewGPIO claims the given BCM pin for PWM output.
func NewGPIO(pinNum int) (*GPIO, error) {
	if err := rpio.Open(); err != nil {
		return nil, util.WrapError("open gpio memory", err)
	}

	pin := rpio.Pin(pinNum)
	pin.Mode(rpio.Pwm)
	pin.Freq(pwmClockHz)
	pin.DutyCycle(0, pwmCycle)

	return &GPIO{pin: pin}, nil
}

// Enable is a no-op; the pin is ready once claimed.
func (g *GPIO) Enable() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return fmt.Errorf("gpio sink closed")
	}
	return nil
}

// Write sets the PWM duty cycle to the sample level.
func (g *GPIO) Write(level uint8) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return fmt.Errorf("gpio sink closed")
	}
	g.pin.DutyCycle(uint32(level), pwmCycle)
	return nil
}

// Silence drives the pin to zero duty.
func (g *GPIO) Silence() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil
	}
	g.pin.DutyCycle(0, pwmCycle)
	return nil
}

// Close silences the pin and releases the GPIO mapping.
func (g *GPIO) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil
	}
	g.closed = true
	g.pin.DutyCycle(0, pwmCycle)
	g.pin.Output()
	g.pin.Low()
	if err := rpio.Close(); err != nil {
		// Another rpio user may have unmapped first; only at shutdown.
		slog.Warn("failed to close gpio memory", "error", err)
	}
	return nil
}

var _ Sink = (*GPIO)(nil)
