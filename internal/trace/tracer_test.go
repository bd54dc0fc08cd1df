package trace

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readTraceFile(t *testing.T, dir string) File {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)

	var doc File
	require.NoError(t, json.Unmarshal(data, &doc))
	return doc
}

func TestTracerCapturesAroundEpisode(t *testing.T) {
	dir := t.TempDir()
	tr := New(dir, 2*time.Second, time.Second)

	var savedID int64
	var savedPath string
	var savedSize int64
	tr.SetOnSaved(func(id int64, path string, size int64) {
		savedID = id
		savedPath = path
		savedSize = size
	})

	base := time.Date(2026, 8, 21, 14, 0, 0, 0, time.UTC)

	// Ambient samples; the first is older than the pre window and must
	// be trimmed away.
	tr.Observe(10, base.Add(-3*time.Second))
	tr.Observe(20, base.Add(-1500*time.Millisecond))
	tr.Observe(30, base.Add(-500*time.Millisecond))

	tr.Begin(Meta{
		Device:       "Hushd",
		EpisodeID:    7,
		TriggeredAt:  base,
		Threshold:    100,
		TriggerLevel: 250,
		RisingMs:     2100,
	})
	assert.True(t, tr.Active())

	// Samples observed while the capture is open land in the trace.
	tr.Observe(260, base.Add(10*time.Millisecond))
	tr.Observe(240, base.Add(20*time.Millisecond))

	tr.PlaybackEnded("completed", "", 5000, base.Add(5*time.Second))

	// Post window: one sample inside, one at the deadline finalizes.
	tr.Observe(40, base.Add(5500*time.Millisecond))
	tr.Observe(35, base.Add(6*time.Second))

	tr.Flush()
	assert.False(t, tr.Active())

	doc := readTraceFile(t, dir)
	assert.Equal(t, int64(7), doc.EpisodeID)
	assert.Equal(t, "Hushd", doc.Device)
	assert.Equal(t, 100, doc.Threshold)
	assert.Equal(t, 250, doc.TriggerLevel)
	assert.Equal(t, "completed", doc.Outcome)
	assert.Equal(t, int64(5000), doc.PlayedMs)

	require.Len(t, doc.Samples, 6)
	assert.Equal(t, int64(-1500), doc.Samples[0].OffsetMs, "pre-trigger samples have negative offsets")
	assert.Equal(t, 20, doc.Samples[0].Level)
	assert.Equal(t, int64(6000), doc.Samples[5].OffsetMs)

	assert.Equal(t, int64(7), savedID)
	assert.Equal(t, filepath.Join(dir, "noise_2026-08-21_14-00-00.json"), savedPath)
	assert.Positive(t, savedSize)
}

func TestTracerFlushCutsPostWindowShort(t *testing.T) {
	dir := t.TempDir()
	tr := New(dir, time.Second, 10*time.Second)

	base := time.Date(2026, 8, 21, 15, 0, 0, 0, time.UTC)
	tr.Observe(50, base.Add(-100*time.Millisecond))
	tr.Begin(Meta{EpisodeID: 1, TriggeredAt: base})
	tr.PlaybackEnded("cancelled", "cancelled", 1000, base.Add(time.Second))

	// Shutdown before the post window elapses.
	tr.Flush()

	doc := readTraceFile(t, dir)
	assert.Equal(t, "cancelled", doc.Outcome)
	require.Len(t, doc.Samples, 1)
}

func TestTracerBeginWhileCapturingFlushesPrevious(t *testing.T) {
	dir := t.TempDir()
	tr := New(dir, time.Second, time.Minute)

	base := time.Date(2026, 8, 21, 16, 0, 0, 0, time.UTC)
	tr.Begin(Meta{EpisodeID: 1, TriggeredAt: base})
	tr.Observe(100, base.Add(10*time.Millisecond))

	tr.Begin(Meta{EpisodeID: 2, TriggeredAt: base.Add(time.Minute)})
	tr.Flush()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "both episodes produce a trace file")
}

func TestTracerObserveWithoutCapture(t *testing.T) {
	dir := t.TempDir()
	tr := New(dir, time.Second, time.Second)

	tr.Observe(10, time.Now())
	tr.Flush()

	entries, err := os.ReadDir(dir)
	if err == nil {
		assert.Empty(t, entries, "no capture, no files")
	}
}
