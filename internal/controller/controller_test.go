package controller

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kennelworks/hushd/internal/config"
	"github.com/kennelworks/hushd/internal/events"
	"github.com/kennelworks/hushd/internal/history"
	"github.com/kennelworks/hushd/internal/media"
	"github.com/kennelworks/hushd/internal/notify"
	"github.com/kennelworks/hushd/internal/output"
	"github.com/kennelworks/hushd/internal/trace"
	"github.com/kennelworks/hushd/internal/types"
)

// shortAsset completes in well under a tick, longAsset stays alive for
// seconds so cancellation paths have something to cancel.
const (
	shortAsset = 64
	longAsset  = 2_000_000
)

// levelSource is a sampler whose reading the test adjusts at will.
type levelSource struct {
	mu    sync.Mutex
	level int
	err   error
}

func (s *levelSource) Read() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	return s.level, nil
}

func (s *levelSource) Set(level int) {
	s.mu.Lock()
	s.level = level
	s.mu.Unlock()
}

func (s *levelSource) SetErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *levelSource) Close() error { return nil }

// pressButton is a cancel button the test can press.
type pressButton struct {
	mu      sync.Mutex
	pressed bool
}

func (b *pressButton) Pressed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pressed
}

func (b *pressButton) Press() {
	b.mu.Lock()
	b.pressed = true
	b.mu.Unlock()
}

func (b *pressButton) Close() error { return nil }

func buildWAV(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(36+len(data)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1)) // mono
	_ = binary.Write(&buf, binary.LittleEndian, uint32(8000))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(8000))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(8))
	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(data)))
	buf.Write(data)
	return buf.Bytes()
}

// harness bundles a controller with the collaborators the tests inspect.
// Timings are compressed: 1ms ticks, a 25ms debounce window and a 1us
// sample delay keep each scenario fast while preserving the real ordering.
type harness struct {
	ctrl     *Controller
	cfg      *config.Config
	source   *levelSource
	sink     *output.Recorder
	history  *history.Store
	events   *events.Logger
	button   *pressButton
	traceDir string
}

func newHarness(t *testing.T, assetBytes int) *harness {
	t.Helper()
	dir := t.TempDir()

	mediaDir := filepath.Join(dir, "media")
	require.NoError(t, os.MkdirAll(mediaDir, 0o755))
	data := make([]byte, assetBytes)
	for i := range data {
		data[i] = byte(i % 256)
	}
	require.NoError(t, os.WriteFile(filepath.Join(mediaDir, "calm.wav"), buildWAV(t, data), 0o644))

	cfg := config.New(filepath.Join(dir, "config.json"))
	cfg.Calibration.SettleMs = 1
	cfg.Calibration.Samples = 2
	cfg.Calibration.IntervalMs = 1
	cfg.Calibration.MinThreshold = 30
	cfg.Detection.TriggerMs = 25
	cfg.Detection.TickMs = 1
	cfg.Playback.MediaDir = mediaDir
	cfg.Playback.SampleDelayUs = 1

	hist, err := history.Open(filepath.Join(dir, "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = hist.Close() })

	evlog, err := events.NewLogger(filepath.Join(dir, "events.log"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = evlog.Close() })

	source := &levelSource{level: 10}
	sink := output.NewRecorder()
	button := &pressButton{}
	notifier := notify.NewNotifier(cfg)
	t.Cleanup(notifier.Close)

	traceDir := filepath.Join(dir, "traces")
	ctrl := New(Deps{
		Config:   cfg,
		Sampler:  source,
		Store:    media.NewDirStore(mediaDir),
		Sink:     sink,
		Notifier: notifier,
		Tracer:   trace.New(traceDir, time.Second, 20*time.Millisecond),
		History:  hist,
		Events:   evlog,
		Button:   button,
	})

	return &harness{
		ctrl:     ctrl,
		cfg:      cfg,
		source:   source,
		sink:     sink,
		history:  hist,
		events:   evlog,
		button:   button,
		traceDir: traceDir,
	}
}

func waitForState(t *testing.T, ctrl *Controller, want types.ControllerState) {
	t.Helper()
	require.Eventually(t, func() bool {
		return ctrl.State() == want
	}, 5*time.Second, 2*time.Millisecond, "never reached state %s", want)
}

// waitForOutcome polls history until the oldest episode carries the given
// outcome. Playback results land in history shortly after the state flips
// back to monitoring, so tests wait on the row, not on the state.
func waitForOutcome(t *testing.T, hist *history.Store, want types.PlaybackOutcome) types.Episode {
	t.Helper()
	var ep types.Episode
	require.Eventually(t, func() bool {
		eps, err := hist.ListEpisodes(10)
		if err != nil || len(eps) == 0 {
			return false
		}
		ep = eps[len(eps)-1]
		return ep.Outcome == want
	}, 5*time.Second, 2*time.Millisecond, "no episode with outcome %s", want)
	return ep
}

func TestStartCalibratesAndMonitors(t *testing.T) {
	h := newHarness(t, shortAsset)
	require.NoError(t, h.ctrl.Start())
	defer func() { _ = h.ctrl.Stop() }()

	waitForState(t, h.ctrl, types.StateMonitoring)

	thr := h.ctrl.Threshold()
	// Ambient mean 10 x 2.5 = 25, clamped up to the 30 floor.
	assert.Equal(t, 30, thr.Threshold)
	assert.True(t, thr.Clamped)
	assert.InDelta(t, 10.0, thr.Mean, 0.01)
	assert.Equal(t, 2, thr.Samples)
	assert.False(t, thr.CalibratedAt.IsZero())

	assert.ErrorIs(t, h.ctrl.Start(), ErrAlreadyRunning)

	require.Eventually(t, func() bool {
		return h.ctrl.Levels().Raw == 10
	}, 5*time.Second, 2*time.Millisecond)

	levels := h.ctrl.Levels()
	assert.Equal(t, 30, levels.Threshold)
	assert.False(t, levels.Loud)

	st := h.ctrl.Status()
	assert.Equal(t, types.StateMonitoring, st.State)
	assert.Zero(t, st.Episodes)
	assert.False(t, st.Playing)
}

func TestSustainedNoisePlaysAndRearms(t *testing.T) {
	h := newHarness(t, shortAsset)
	require.NoError(t, h.ctrl.Start())
	defer func() { _ = h.ctrl.Stop() }()
	waitForState(t, h.ctrl, types.StateMonitoring)

	h.source.Set(500)

	first := waitForOutcome(t, h.history, types.OutcomeCompleted)
	assert.Equal(t, 500, first.TriggerLevel)
	assert.Equal(t, 30, first.Threshold)
	assert.GreaterOrEqual(t, first.RisingMs, int64(25))
	assert.Equal(t, int64(shortAsset), first.BytesPlayed)
	assert.Empty(t, first.Reason)

	assert.Positive(t, h.sink.Silences())
	assert.NotEmpty(t, h.sink.Levels())

	// The noise never stopped. A second episode must still wait out a
	// full debounce window before firing.
	require.Eventually(t, func() bool {
		n, err := h.history.CountEpisodes()
		return err == nil && n >= 2
	}, 5*time.Second, 2*time.Millisecond)

	h.source.Set(10)
}

func TestPlaybackBlocksCommands(t *testing.T) {
	h := newHarness(t, longAsset)
	require.NoError(t, h.ctrl.Start())
	defer func() { _ = h.ctrl.Stop() }()
	waitForState(t, h.ctrl, types.StateMonitoring)

	h.source.Set(500)
	waitForState(t, h.ctrl, types.StatePlaying)

	assert.ErrorIs(t, h.ctrl.Recalibrate(), ErrPlaybackActive)
	assert.ErrorIs(t, h.ctrl.TestPlayback(), ErrPlaybackActive)
	assert.True(t, h.ctrl.IsPlaying())

	// The source stays loud through several debounce windows. Nothing is
	// detected while the track plays, so no second episode starts.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int64(1), h.ctrl.Status().Episodes)
	assert.True(t, h.ctrl.IsPlaying())

	h.source.Set(10)
	h.button.Press()

	ep := waitForOutcome(t, h.history, types.OutcomeCancelled)
	assert.Equal(t, "cancelled", ep.Reason)
}

func TestStopPlaybackRequest(t *testing.T) {
	h := newHarness(t, longAsset)
	require.NoError(t, h.ctrl.Start())
	defer func() { _ = h.ctrl.Stop() }()
	waitForState(t, h.ctrl, types.StateMonitoring)

	h.source.Set(500)
	waitForState(t, h.ctrl, types.StatePlaying)
	h.source.Set(10)

	h.ctrl.StopPlayback()

	ep := waitForOutcome(t, h.history, types.OutcomeCancelled)
	assert.Equal(t, "cancelled", ep.Reason)
	assert.Positive(t, h.sink.Silences())
}

func TestTestPlaybackSkipsHistory(t *testing.T) {
	h := newHarness(t, shortAsset)
	require.NoError(t, h.ctrl.Start())
	defer func() { _ = h.ctrl.Stop() }()
	waitForState(t, h.ctrl, types.StateMonitoring)

	require.NoError(t, h.ctrl.TestPlayback())

	require.Eventually(t, func() bool {
		return !h.ctrl.IsPlaying() && len(h.sink.Levels()) == shortAsset
	}, 5*time.Second, 2*time.Millisecond)

	count, err := h.history.CountEpisodes()
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Zero(t, h.ctrl.Status().Episodes)
}

func TestRecalibrateAppliesNewThreshold(t *testing.T) {
	h := newHarness(t, shortAsset)
	require.NoError(t, h.ctrl.Start())
	defer func() { _ = h.ctrl.Stop() }()
	waitForState(t, h.ctrl, types.StateMonitoring)

	// A louder room, still under the current threshold, raises the
	// computed threshold above the floor.
	h.source.Set(20)
	require.NoError(t, h.ctrl.Recalibrate())

	thr := h.ctrl.Threshold()
	assert.Equal(t, 50, thr.Threshold) // 20 x 2.5
	assert.False(t, thr.Clamped)
	assert.InDelta(t, 20.0, thr.Mean, 0.01)
	assert.Equal(t, types.StateMonitoring, h.ctrl.State())
}

func TestRecalibrateFailureKeepsThreshold(t *testing.T) {
	h := newHarness(t, shortAsset)
	require.NoError(t, h.ctrl.Start())
	defer func() { _ = h.ctrl.Stop() }()
	waitForState(t, h.ctrl, types.StateMonitoring)

	h.source.SetErr(errors.New("sensor gone"))
	require.Error(t, h.ctrl.Recalibrate())
	h.source.SetErr(nil)

	thr := h.ctrl.Threshold()
	assert.Equal(t, 30, thr.Threshold)
	assert.Equal(t, types.StateMonitoring, h.ctrl.State())
}

func TestStorageFailureHaltsForever(t *testing.T) {
	h := newHarness(t, shortAsset)
	missing := filepath.Join(t.TempDir(), "gone")

	ctrl := New(Deps{
		Config:   h.cfg,
		Sampler:  h.source,
		Store:    media.NewDirStore(missing),
		Sink:     h.sink,
		Notifier: notify.NewNotifier(h.cfg),
		Tracer:   trace.New(filepath.Join(t.TempDir(), "traces"), time.Second, time.Second),
		History:  h.history,
		Events:   h.events,
	})

	err := ctrl.Start()
	require.Error(t, err)
	assert.ErrorIs(t, err, media.ErrStorageUnavailable)
	assert.Equal(t, types.StateHalted, ctrl.State())

	st := ctrl.Status()
	assert.Contains(t, st.HaltReason, "media storage unavailable")

	// Halted is permanent: no restart, no commands.
	assert.ErrorIs(t, ctrl.Start(), ErrHalted)
	assert.ErrorIs(t, ctrl.Recalibrate(), ErrHalted)
	assert.ErrorIs(t, ctrl.TestPlayback(), ErrHalted)

	evs, err := events.ReadLast(h.events.Path(), 10)
	require.NoError(t, err)
	var halted bool
	for _, ev := range evs {
		if ev.Event == events.EventHalted {
			halted = true
		}
	}
	assert.True(t, halted, "halted event not logged")
}

func TestStopDuringPlaybackCancelsRun(t *testing.T) {
	h := newHarness(t, longAsset)
	require.NoError(t, h.ctrl.Start())
	waitForState(t, h.ctrl, types.StateMonitoring)

	h.source.Set(500)
	waitForState(t, h.ctrl, types.StatePlaying)

	require.NoError(t, h.ctrl.Stop())
	assert.Equal(t, types.StateStopped, h.ctrl.State())

	// Stop waits for the cancelled run, so the outcome is recorded.
	eps, err := h.history.ListEpisodes(1)
	require.NoError(t, err)
	require.Len(t, eps, 1)
	assert.Equal(t, types.OutcomeCancelled, eps[0].Outcome)

	require.NoError(t, h.ctrl.Stop()) // idempotent
}

func TestCommandsRejectedWhenStopped(t *testing.T) {
	h := newHarness(t, shortAsset)
	assert.ErrorIs(t, h.ctrl.Recalibrate(), ErrNotRunning)
	assert.ErrorIs(t, h.ctrl.TestPlayback(), ErrNotRunning)
	h.ctrl.StopPlayback() // no-op
	assert.Equal(t, types.StateStopped, h.ctrl.State())
	require.NoError(t, h.ctrl.Stop())
}

func TestTraceWrittenForEpisode(t *testing.T) {
	h := newHarness(t, longAsset)
	h.cfg.Traces.Enabled = true

	require.NoError(t, h.ctrl.Start())
	waitForState(t, h.ctrl, types.StateMonitoring)

	h.source.Set(500)
	waitForState(t, h.ctrl, types.StatePlaying)
	h.source.Set(10)

	h.ctrl.StopPlayback()
	waitForOutcome(t, h.history, types.OutcomeCancelled)

	// Stop flushes the capture, cutting the post window short.
	require.NoError(t, h.ctrl.Stop())

	files, err := os.ReadDir(h.traceDir)
	require.NoError(t, err)
	require.NotEmpty(t, files, "no trace file written")
	assert.Contains(t, files[0].Name(), "noise_")
}
