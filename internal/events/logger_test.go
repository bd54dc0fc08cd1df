package events

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerWritesAndReadsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events", "device.log")

	logger, err := NewLogger(path)
	require.NoError(t, err)

	events := []*DeviceEvent{
		{Event: EventCalibrated, Threshold: 120, Message: "threshold calibrated"},
		{Event: EventTriggered, Level: 260, Threshold: 120, RisingMs: 2050},
		{Event: EventPlayback, Outcome: "completed", PlayedMs: 12000},
	}
	for _, ev := range events {
		require.NoError(t, logger.Log(ev))
	}
	require.NoError(t, logger.Close())

	got, err := ReadLast(path, 10)
	require.NoError(t, err)
	require.Len(t, got, 3)

	// Newest first.
	assert.Equal(t, EventPlayback, got[0].Event)
	assert.Equal(t, "completed", got[0].Outcome)
	assert.Equal(t, EventTriggered, got[1].Event)
	assert.Equal(t, 260, got[1].Level)
	assert.Equal(t, EventCalibrated, got[2].Event)

	for _, ev := range got {
		assert.False(t, ev.Timestamp.IsZero(), "timestamp filled in on log")
	}
}

func TestReadLastLimits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.log")
	logger, err := NewLogger(path)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, logger.Log(&DeviceEvent{
			Event:     EventTriggered,
			Level:     i,
			Timestamp: time.Date(2026, 8, 21, 10, i, 0, 0, time.UTC),
		}))
	}
	require.NoError(t, logger.Close())

	got, err := ReadLast(path, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 4, got[0].Level)
	assert.Equal(t, 3, got[1].Level)
}

func TestReadLastMissingFile(t *testing.T) {
	got, err := ReadLast(filepath.Join(t.TempDir(), "absent.log"), 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}
