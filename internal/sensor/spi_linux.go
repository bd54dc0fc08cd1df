//go:build linux

package sensor

import (
	"fmt"
	"sync"

	"github.com/stianeikeland/go-rpio/v4"

	"github.com/kennelworks/hushd/internal/util"
)

// spiClockHz keeps the MCP3008 within its rated conversion speed at 3.3V.
const spiClockHz = 1350000

// SPI reads an MCP3008 analog-to-digital converter on the SPI0 bus.
// The chip returns 10-bit conversions, so adc_max should be 1023 when
// this backend is selected.
type SPI struct {
	mu      sync.Mutex
	channel byte
	closed  bool
}

// NewSPI opens the SPI bus and prepares single-ended reads from the
// given MCP3008 channel (0-7).
func NewSPI(channel int) (*SPI, error) {
	if channel < 0 || channel > 7 {
		return nil, fmt.Errorf("invalid spi channel %d: must be 0-7", channel)
	}
	if err := rpio.Open(); err != nil {
		return nil, util.WrapError("open gpio memory", err)
	}
	if err := rpio.SpiBegin(rpio.Spi0); err != nil {
		_ = rpio.Close()
		return nil, util.WrapError("begin spi bus", err)
	}
	rpio.SpiSpeed(spiClockHz)
	rpio.SpiChipSelect(0)

	return &SPI{channel: byte(channel)}, nil
}

// Read performs one single-ended conversion and returns the raw count.
func (s *SPI) Read() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, fmt.Errorf("spi sampler closed")
	}

	// Start bit, single-ended mode, channel select; the chip clocks the
	// 10-bit result back in the last two bytes.
	buf := []byte{0x01, 0x80 | s.channel<<4, 0x00}
	rpio.SpiExchange(buf)

	return int(buf[1]&0x03)<<8 | int(buf[2]), nil
}

// Close releases the SPI bus.
func (s *SPI) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	rpio.SpiEnd(rpio.Spi0)
	return rpio.Close()
}
