package sensor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestCalibratorComputesThresholdFromAmbientMean(t *testing.T) {
	sampler := NewScripted(30, 40, 50, 40, 40)
	var slept []time.Duration
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	cal := NewCalibrator(sampler, WithCalibratorClock(fixedClock(now), func(d time.Duration) {
		slept = append(slept, d)
	}))

	info, err := cal.Run(context.Background(), CalibrationConfig{
		Settle:       time.Second,
		Samples:      5,
		Interval:     10 * time.Millisecond,
		Factor:       2.5,
		MinThreshold: 50,
	})
	require.NoError(t, err)

	assert.Equal(t, 100, info.Threshold) // mean 40 * 2.5
	assert.InDelta(t, 40.0, info.Mean, 0.001)
	assert.Equal(t, 5, info.Samples)
	assert.False(t, info.Clamped)
	assert.Equal(t, now, info.CalibratedAt)

	// One settle pause, then an interval between consecutive samples.
	require.Len(t, slept, 5)
	assert.Equal(t, time.Second, slept[0])
	for _, d := range slept[1:] {
		assert.Equal(t, 10*time.Millisecond, d)
	}
}

func TestCalibratorClampsQuietRoomToFloor(t *testing.T) {
	sampler := NewLoopingScripted(0, 1, 0)
	cal := NewCalibrator(sampler, WithCalibratorClock(fixedClock(time.Now()), func(time.Duration) {}))

	info, err := cal.Run(context.Background(), CalibrationConfig{
		Samples:      100,
		Factor:       2.5,
		MinThreshold: 50,
	})
	require.NoError(t, err)

	assert.Equal(t, 50, info.Threshold, "near-silence must clamp to the floor")
	assert.True(t, info.Clamped)
}

func TestCalibratorRoundsThreshold(t *testing.T) {
	// Mean 41 * 2.5 = 102.5, rounds to 103.
	sampler := NewLoopingScripted(41)
	cal := NewCalibrator(sampler, WithCalibratorClock(fixedClock(time.Now()), func(time.Duration) {}))

	info, err := cal.Run(context.Background(), CalibrationConfig{
		Samples:      10,
		Factor:       2.5,
		MinThreshold: 50,
	})
	require.NoError(t, err)
	assert.Equal(t, 103, info.Threshold)
}

func TestCalibratorAbortsOnSamplerError(t *testing.T) {
	sampler := NewScripted(10, 20) // third read fails
	cal := NewCalibrator(sampler, WithCalibratorClock(fixedClock(time.Now()), func(time.Duration) {}))

	_, err := cal.Run(context.Background(), CalibrationConfig{
		Samples:      5,
		Factor:       2.5,
		MinThreshold: 50,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrScriptExhausted)
}

func TestCalibratorHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cal := NewCalibrator(NewLoopingScripted(10), WithCalibratorClock(fixedClock(time.Now()), func(time.Duration) {}))
	_, err := cal.Run(ctx, CalibrationConfig{Samples: 5, Factor: 2.5})
	assert.ErrorIs(t, err, context.Canceled)
}
