//go:build !linux

package sensor

import "fmt"

// SPI is only available on Linux, where the GPIO memory range exists.
type SPI struct{}

// NewSPI always fails on non-Linux platforms.
func NewSPI(channel int) (*SPI, error) {
	return nil, fmt.Errorf("spi sensor backend requires linux")
}

// Read is never reachable on non-Linux platforms.
func (s *SPI) Read() (int, error) {
	return 0, fmt.Errorf("spi sensor backend requires linux")
}

// Close is never reachable on non-Linux platforms.
func (s *SPI) Close() error {
	return nil
}
