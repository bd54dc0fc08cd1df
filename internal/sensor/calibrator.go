package sensor

import (
	"context"
	"math"
	"time"

	"github.com/kennelworks/hushd/internal/types"
	"github.com/kennelworks/hushd/internal/util"
)

// CalibrationConfig describes one calibration run.
type CalibrationConfig struct {
	// Settle is how long to wait before the first sample so the
	// sensor circuit stabilizes after power-on.
	Settle time.Duration
	// Samples is the number of ambient readings to average.
	Samples int
	// Interval is the pause between consecutive readings.
	Interval time.Duration
	// Factor is the multiplier applied to the ambient mean.
	Factor float64
	// MinThreshold is the floor the computed threshold is clamped to.
	MinThreshold int
}

// Calibrator measures the ambient noise floor and derives the trigger
// threshold from it. A quiet room yields a sensitive threshold, a noisy
// one a tolerant threshold.
type Calibrator struct {
	sampler Sampler
	sleep   func(time.Duration)
	now     func() time.Time
}

// CalibratorOption adjusts calibrator behavior.
type CalibratorOption func(*Calibrator)

// WithCalibratorClock replaces the wall clock and sleep functions.
func WithCalibratorClock(now func() time.Time, sleep func(time.Duration)) CalibratorOption {
	return func(c *Calibrator) {
		c.now = now
		c.sleep = sleep
	}
}

// NewCalibrator creates a calibrator reading from the given sampler.
func NewCalibrator(sampler Sampler, opts ...CalibratorOption) *Calibrator {
	c := &Calibrator{
		sampler: sampler,
		sleep:   time.Sleep,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run performs one calibration pass and returns the resulting threshold.
// A sampler error aborts the run; the caller decides whether to retry.
func (c *Calibrator) Run(ctx context.Context, cfg CalibrationConfig) (types.ThresholdInfo, error) {
	if cfg.Settle > 0 {
		c.sleep(cfg.Settle)
	}

	var sum float64
	for i := 0; i < cfg.Samples; i++ {
		if err := ctx.Err(); err != nil {
			return types.ThresholdInfo{}, err
		}
		v, err := c.sampler.Read()
		if err != nil {
			return types.ThresholdInfo{}, util.WrapError("read calibration sample", err)
		}
		sum += float64(v)
		if i < cfg.Samples-1 && cfg.Interval > 0 {
			c.sleep(cfg.Interval)
		}
	}

	mean := sum / float64(cfg.Samples)
	threshold := int(math.Round(mean * cfg.Factor))
	clamped := false
	if threshold < cfg.MinThreshold {
		threshold = cfg.MinThreshold
		clamped = true
	}

	return types.ThresholdInfo{
		Threshold:    threshold,
		Mean:         mean,
		Samples:      cfg.Samples,
		Clamped:      clamped,
		CalibratedAt: c.now(),
	}, nil
}
