//go:build !linux

package output

import "fmt"

// GPIO is only available on Linux.
type GPIO struct{}

// NewGPIO always fails on non-Linux platforms.
func NewGPIO(pinNum int) (*GPIO, error) {
	return nil, fmt.Errorf("gpio output backend requires linux")
}

func (*GPIO) Enable() error     { return fmt.Errorf("gpio output backend requires linux") }
func (*GPIO) Write(uint8) error { return fmt.Errorf("gpio output backend requires linux") }
func (*GPIO) Silence() error    { return nil }
func (*GPIO) Close() error      { return nil }
