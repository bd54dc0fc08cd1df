package sensor

import (
	"sync"
	"time"
)

// DefaultPeakHold is how long the peak indicator holds before falling.
const DefaultPeakHold = 3 * time.Second

// Meter tracks recent sensor levels for the dashboard: the last raw
// reading, a rolling average, and a peak that holds for a short time
// before decaying. All values are raw ADC counts. Safe for concurrent use.
type Meter struct {
	mu     sync.Mutex
	window []int
	idx    int
	filled int
	last   int
	peak   int
	peakAt time.Time
	hold   time.Duration
}

// NewMeter creates a meter averaging over windowSize samples.
func NewMeter(windowSize int, hold time.Duration) *Meter {
	if windowSize < 1 {
		windowSize = 1
	}
	if hold <= 0 {
		hold = DefaultPeakHold
	}
	return &Meter{
		window: make([]int, windowSize),
		hold:   hold,
	}
}

// Update records one reading.
func (m *Meter) Update(v int, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.last = v
	m.window[m.idx] = v
	m.idx = (m.idx + 1) % len(m.window)
	if m.filled < len(m.window) {
		m.filled++
	}

	if v >= m.peak {
		m.peak = v
		m.peakAt = now
	} else if now.Sub(m.peakAt) > m.hold {
		m.peak = v
		m.peakAt = now
	}
}

// Snapshot returns the last raw reading, the rolling average and the
// held peak.
func (m *Meter) Snapshot() (raw, avg, peak int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.filled > 0 {
		sum := 0
		for i := 0; i < m.filled; i++ {
			sum += m.window[i]
		}
		avg = sum / m.filled
	}
	return m.last, avg, m.peak
}

// Reset clears all tracked levels.
func (m *Meter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.window {
		m.window[i] = 0
	}
	m.idx = 0
	m.filled = 0
	m.last = 0
	m.peak = 0
	m.peakAt = time.Time{}
}
