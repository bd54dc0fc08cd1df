// Package controller runs the noise monitoring engine. It calibrates the
// ambient threshold at boot, samples the sensor on a fixed tick, and plays
// the calming track when sustained noise crosses the threshold.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kennelworks/hushd/internal/config"
	"github.com/kennelworks/hushd/internal/events"
	"github.com/kennelworks/hushd/internal/history"
	"github.com/kennelworks/hushd/internal/media"
	"github.com/kennelworks/hushd/internal/notify"
	"github.com/kennelworks/hushd/internal/output"
	"github.com/kennelworks/hushd/internal/playback"
	"github.com/kennelworks/hushd/internal/sensor"
	"github.com/kennelworks/hushd/internal/trace"
	"github.com/kennelworks/hushd/internal/types"
	"github.com/kennelworks/hushd/internal/util"
)

// meterWindow is the number of samples the dashboard average covers.
const meterWindow = 100

// snapshotRefresh is how often the monitor loop re-reads the configuration.
// Ticks between refreshes reuse the cached snapshot to keep the hot path
// off the config mutex.
const snapshotRefresh = time.Second

// readFailureEventStreak is the consecutive-failure count at which a sensor
// read problem is recorded as a device event.
const readFailureEventStreak = 100

// Sentinel errors for controller operations.
var (
	ErrAlreadyRunning = errors.New("controller already running")
	ErrNotRunning     = errors.New("controller not running")
	ErrHalted         = errors.New("controller halted")
	ErrCalibrating    = errors.New("calibration in progress")
	ErrPlaybackActive = errors.New("playback in progress")
)

// Button reports a physical cancel control.
type Button interface {
	Pressed() bool
	Close() error
}

// commandKind selects a monitor loop command.
type commandKind int

const (
	cmdRecalibrate commandKind = iota
	cmdTestPlayback
)

// command is a request processed between ticks by the monitor loop.
type command struct {
	kind   commandKind
	result chan error
}

// Deps carries the collaborators the controller drives.
type Deps struct {
	Config   *config.Config
	Sampler  sensor.Sampler
	Store    media.Store
	Sink     output.Sink
	Notifier *notify.Notifier
	Tracer   *trace.Tracer
	History  *history.Store
	Events   *events.Logger
	Button   Button // optional cancel button
}

// Controller owns the calibrate-monitor-play lifecycle.
type Controller struct {
	config   *config.Config
	sampler  sensor.Sampler
	store    media.Store
	player   *playback.Player
	notifier *notify.Notifier
	tracer   *trace.Tracer
	history  *history.Store
	events   *events.Logger
	button   Button

	detector   *sensor.Detector
	meter      *sensor.Meter
	calibrator *sensor.Calibrator

	commands     chan command
	stopPlayback atomic.Bool
	wg           sync.WaitGroup

	mu              sync.RWMutex
	state           types.ControllerState
	stopChan        chan struct{}
	stopCalibration context.CancelFunc
	startTime       time.Time
	lastError       string
	haltReason      string
	threshold       types.ThresholdInfo
	episodes        int64
	current         *types.Episode // nil while idle; nil episode pointer with playing state means a test run
	playingSince    time.Time
	readFailures    int
	sensorLevels    types.SensorLevels
	lastKnownLevels types.SensorLevels // Cache for TryRLock fallback
}

// New creates a Controller from its dependencies. Start must be called
// before it begins monitoring.
func New(d Deps) *Controller {
	return &Controller{
		config:     d.Config,
		sampler:    d.Sampler,
		store:      d.Store,
		player:     playback.New(d.Store, d.Sink),
		notifier:   d.Notifier,
		tracer:     d.Tracer,
		history:    d.History,
		events:     d.Events,
		button:     d.Button,
		detector:   sensor.NewDetector(),
		meter:      sensor.NewMeter(meterWindow, sensor.DefaultPeakHold),
		calibrator: sensor.NewCalibrator(d.Sampler),
		state:      types.StateStopped,
		commands:   make(chan command),
	}
}

// State returns the current controller state.
func (c *Controller) State() types.ControllerState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// IsPlaying reports whether the calming track is being played.
func (c *Controller) IsPlaying() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state == types.StatePlaying
}

// Threshold returns the result of the last completed calibration.
func (c *Controller) Threshold() types.ThresholdInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.threshold
}

// Levels returns the sensor levels from the most recent tick.
func (c *Controller) Levels() types.SensorLevels {
	if !c.mu.TryRLock() {
		return c.lastKnownLevels
	}
	defer c.mu.RUnlock()

	if c.state == types.StateStopped || c.state == types.StateHalted {
		return types.SensorLevels{Threshold: c.threshold.Threshold}
	}
	return c.sensorLevels
}

// Status returns a summary of the controller's operational state.
func (c *Controller) Status() types.ControllerStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	uptime := ""
	switch c.state {
	case types.StateCalibrating, types.StateMonitoring, types.StatePlaying:
		uptime = time.Since(c.startTime).Truncate(time.Second).String()
	}

	playingFor := ""
	if c.state == types.StatePlaying {
		playingFor = time.Since(c.playingSince).Truncate(time.Second).String()
	}

	return types.ControllerStatus{
		State:      c.state,
		Uptime:     uptime,
		LastError:  c.lastError,
		HaltReason: c.haltReason,
		Threshold:  c.threshold,
		Episodes:   c.episodes,
		Playing:    c.state == types.StatePlaying,
		PlayingFor: playingFor,
	}
}

// Start checks media storage, then calibrates and monitors in the
// background. A storage failure halts the controller permanently; only a
// restart clears the halted state.
func (c *Controller) Start() error {
	c.mu.Lock()
	switch c.state {
	case types.StateCalibrating, types.StateMonitoring, types.StatePlaying:
		c.mu.Unlock()
		return ErrAlreadyRunning
	case types.StateHalted:
		c.mu.Unlock()
		return ErrHalted
	}

	c.state = types.StateCalibrating
	c.stopChan = make(chan struct{})
	c.startTime = time.Now()
	c.lastError = ""
	c.haltReason = ""
	c.episodes = 0
	c.readFailures = 0
	c.stopPlayback.Store(false)
	c.detector.Reset()
	c.meter.Reset()
	c.mu.Unlock()

	snap := c.config.Snapshot()
	c.logEvent(&events.DeviceEvent{
		Event:   events.EventStarted,
		Message: fmt.Sprintf("sensor=%s output=%s", snap.SensorBackend, snap.OutputBackend),
	})

	if err := c.store.Available(); err != nil {
		c.halt("media storage unavailable: " + err.Error())
		return err
	}

	c.wg.Add(1)
	go c.run()

	return nil
}

// Stop cancels playback, stops the monitor loop and flushes the tracer.
func (c *Controller) Stop() error {
	c.mu.Lock()
	if c.state == types.StateStopped || c.state == types.StateHalted {
		c.mu.Unlock()
		return nil
	}
	stopCh := c.stopChan
	cancelCal := c.stopCalibration
	c.mu.Unlock()

	c.stopPlayback.Store(true)
	if cancelCal != nil {
		cancelCal()
	}
	if stopCh != nil {
		close(stopCh)
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("controller stopped")
	case <-time.After(types.ShutdownTimeout):
		slog.Warn("controller did not stop in time")
	}

	c.tracer.Flush()

	c.mu.Lock()
	c.state = types.StateStopped
	c.stopChan = nil
	c.stopCalibration = nil
	c.mu.Unlock()

	c.logEvent(&events.DeviceEvent{Event: events.EventStopped})
	return nil
}

// Recalibrate re-measures the ambient threshold. It fails while playback
// is active; detection pauses for the duration of the measurement.
func (c *Controller) Recalibrate() error {
	return c.post(cmdRecalibrate)
}

// TestPlayback plays the configured track outside of noise detection.
// The run is not recorded as an episode.
func (c *Controller) TestPlayback() error {
	return c.post(cmdTestPlayback)
}

// StopPlayback requests cancellation of the active playback run. The run
// stops at the next sample boundary. A no-op when nothing is playing.
func (c *Controller) StopPlayback() {
	c.mu.RLock()
	playing := c.state == types.StatePlaying
	c.mu.RUnlock()

	if playing {
		c.stopPlayback.Store(true)
		slog.Info("playback stop requested")
	}
}

// post submits a command to the monitor loop and waits for the result.
func (c *Controller) post(kind commandKind) error {
	c.mu.RLock()
	state := c.state
	stopCh := c.stopChan
	c.mu.RUnlock()

	switch state {
	case types.StateStopped:
		return ErrNotRunning
	case types.StateHalted:
		return ErrHalted
	case types.StateCalibrating:
		return ErrCalibrating
	case types.StatePlaying:
		return ErrPlaybackActive
	}

	cmd := command{kind: kind, result: make(chan error, 1)}
	select {
	case c.commands <- cmd:
	case <-stopCh:
		return ErrNotRunning
	}

	select {
	case err := <-cmd.result:
		return err
	case <-stopCh:
		return ErrNotRunning
	}
}

// halt parks the controller in the halted state. Nothing runs until the
// process is restarted.
func (c *Controller) halt(reason string) {
	c.mu.Lock()
	c.state = types.StateHalted
	c.haltReason = reason
	c.lastError = reason
	c.mu.Unlock()

	slog.Error("controller halted", "reason", reason)
	c.logEvent(&events.DeviceEvent{Event: events.EventHalted, Error: reason})
}

// run calibrates with retries, then monitors until stopped.
func (c *Controller) run() {
	defer c.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.mu.Lock()
	c.stopCalibration = cancel
	c.mu.Unlock()

	backoff := util.NewBackoff(types.InitialRetryDelay, types.MaxRetryDelay)

	var lastErr error
	for attempt := 1; attempt <= types.MaxCalibrationRetries; attempt++ {
		info, err := c.calibrate(ctx)
		if err == nil {
			c.finishCalibration(info)
			c.monitorLoop()
			return
		}
		if c.stopping() {
			return
		}

		lastErr = err
		retryDelay := backoff.Next()
		slog.Error("calibration failed, retrying",
			"attempt", attempt, "max_retries", types.MaxCalibrationRetries, "delay", retryDelay, "error", err)

		c.mu.Lock()
		c.lastError = err.Error()
		c.mu.Unlock()

		select {
		case <-c.stopChan:
			return
		case <-time.After(retryDelay):
		}
	}

	c.halt(fmt.Sprintf("calibration failed after %d attempts: %s", types.MaxCalibrationRetries, lastErr))
}

// calibrate runs one threshold measurement with the current settings.
func (c *Controller) calibrate(ctx context.Context) (types.ThresholdInfo, error) {
	snap := c.config.Snapshot()
	return c.calibrator.Run(ctx, sensor.CalibrationConfig{
		Settle:       time.Duration(snap.SettleMs) * time.Millisecond,
		Samples:      snap.Samples,
		Interval:     time.Duration(snap.IntervalMs) * time.Millisecond,
		Factor:       snap.Factor,
		MinThreshold: snap.MinThreshold,
	})
}

// finishCalibration stores the result and moves to monitoring.
func (c *Controller) finishCalibration(info types.ThresholdInfo) {
	c.mu.Lock()
	c.threshold = info
	c.state = types.StateMonitoring
	c.lastError = ""
	c.mu.Unlock()

	slog.Info("calibration complete",
		"threshold", info.Threshold, "mean", info.Mean, "samples", info.Samples, "clamped", info.Clamped)
	c.logEvent(&events.DeviceEvent{
		Event:     events.EventCalibrated,
		Threshold: info.Threshold,
		Message:   fmt.Sprintf("mean=%.1f clamped=%t", info.Mean, info.Clamped),
	})
}

// monitorLoop samples the sensor on a fixed tick until stopped. Playback
// and commands run inside the loop goroutine, so detection never overlaps
// either: ticks that fire while they hold the loop are dropped.
func (c *Controller) monitorLoop() {
	snap := c.config.Snapshot()
	ticker := time.NewTicker(time.Duration(snap.TickMs) * time.Millisecond)
	defer ticker.Stop()
	snapAge := time.Now()

	// The ticker buffers one tick while playback or a command holds the
	// loop. Its timestamp predates the pause and would backdate the next
	// rise, so it is discarded.
	dropStaleTick := func() {
		select {
		case <-ticker.C:
		default:
		}
	}

	for {
		select {
		case <-c.stopChan:
			return
		case cmd := <-c.commands:
			c.handleCommand(cmd)
			dropStaleTick()
		case now := <-ticker.C:
			if now.Sub(snapAge) >= snapshotRefresh {
				snap = c.config.Snapshot()
				snapAge = now
			}
			if c.tick(&snap, now) {
				dropStaleTick()
			}
		}
	}
}

// tick processes one sensor sample. It returns true when the sample
// triggered playback, which holds the loop until the run ends.
func (c *Controller) tick(snap *config.Snapshot, now time.Time) bool {
	sample, err := c.sampler.Read()
	if err != nil {
		c.noteReadFailure(err)
		return false
	}

	c.mu.Lock()
	c.readFailures = 0
	threshold := c.threshold.Threshold
	c.mu.Unlock()

	c.meter.Update(sample, now)
	if snap.TracesEnabled {
		c.tracer.Observe(sample, now)
	}

	ev := c.detector.Update(sample, sensor.DetectorConfig{
		Threshold: threshold,
		Window:    time.Duration(snap.TriggerMs) * time.Millisecond,
	}, now)

	c.publishLevels(snap, sample, threshold, ev)

	if ev.Triggered {
		c.handleTrigger(snap, sample, threshold, ev, now)
		return true
	}
	return false
}

// noteReadFailure tracks consecutive sensor read errors. Failures are
// throttled in the log and recorded as a device event once per streak.
func (c *Controller) noteReadFailure(err error) {
	c.mu.Lock()
	c.readFailures++
	streak := c.readFailures
	c.lastError = err.Error()
	c.mu.Unlock()

	if streak == 1 || streak%500 == 0 {
		slog.Warn("sensor read failed", "consecutive", streak, "error", err)
	}
	if streak == readFailureEventStreak {
		c.logEvent(&events.DeviceEvent{Event: events.EventError, Error: err.Error()})
	}
}

// publishLevels stores the dashboard levels for this tick.
func (c *Controller) publishLevels(snap *config.Snapshot, sample, threshold int, ev sensor.Event) {
	raw, avg, peak := c.meter.Snapshot()

	percent := 0.0
	if snap.ADCMax > 0 {
		percent = float64(raw) / float64(snap.ADCMax) * 100
	}

	levels := types.SensorLevels{
		Raw:       raw,
		Average:   float64(avg),
		Peak:      peak,
		Percent:   percent,
		Threshold: threshold,
		Loud:      sample > threshold,
		RisingMs:  ev.RisingFor.Milliseconds(),
	}

	c.mu.Lock()
	c.sensorLevels = levels
	c.lastKnownLevels = levels
	c.mu.Unlock()
}

// handleTrigger starts a playback episode for a debounced noise trigger.
func (c *Controller) handleTrigger(snap *config.Snapshot, sample, threshold int, ev sensor.Event, now time.Time) {
	ep := &types.Episode{
		StartedAt:    now,
		TriggerLevel: sample,
		Threshold:    threshold,
		RisingMs:     ev.RisingFor.Milliseconds(),
	}

	slog.Info("noise trigger",
		"level", ep.TriggerLevel, "threshold", ep.Threshold, "rising_ms", ep.RisingMs)
	c.logEvent(&events.DeviceEvent{
		Event:     events.EventTriggered,
		Level:     ep.TriggerLevel,
		Threshold: ep.Threshold,
		RisingMs:  ep.RisingMs,
	})

	if err := c.history.InsertEpisode(ep); err != nil {
		slog.Error("failed to record episode", "error", err)
	}
	c.notifier.EpisodeTriggered(ep)

	if snap.TracesEnabled {
		c.tracer.Begin(trace.Meta{
			Device:       snap.DeviceName,
			EpisodeID:    ep.ID,
			TriggeredAt:  now,
			Threshold:    ep.Threshold,
			TriggerLevel: ep.TriggerLevel,
			RisingMs:     ep.RisingMs,
		})
	}

	c.mu.Lock()
	c.episodes++
	c.current = ep
	c.state = types.StatePlaying
	c.playingSince = now
	c.mu.Unlock()

	c.runPlayback(snap)
}

// runPlayback executes one playback run in the loop goroutine. Nothing
// ticks until the run has finished and been recorded.
func (c *Controller) runPlayback(snap *config.Snapshot) {
	c.stopPlayback.Store(false)

	params := playback.Params{
		Asset:        snap.Asset,
		Volume:       snap.Volume,
		ChunkBytes:   snap.ChunkBytes,
		SampleDelay:  time.Duration(snap.SampleDelayUs) * time.Microsecond,
		MaxPlay:      time.Duration(snap.MaxPlayMs) * time.Millisecond,
		ShouldCancel: c.playbackCancelled,
	}

	c.finishPlayback(c.player.Play(params), snap)
}

// playbackCancelled is the cancel predicate polled once per sample.
func (c *Controller) playbackCancelled() bool {
	if c.stopPlayback.Load() {
		return true
	}
	return c.button != nil && c.button.Pressed()
}

// finishPlayback records the outcome of a playback run and re-arms
// detection. A nil current episode marks a test run, which is logged but
// not recorded in history or fanned out.
func (c *Controller) finishPlayback(res playback.Result, snap *config.Snapshot) {
	now := time.Now()

	c.mu.Lock()
	ep := c.current
	c.current = nil
	c.state = types.StateMonitoring
	c.playingSince = time.Time{}
	if res.Err != nil {
		c.lastError = res.Err.Error()
	}
	c.mu.Unlock()

	// Fresh debounce window after every run.
	c.detector.Reset()

	if ep == nil {
		c.logEvent(&events.DeviceEvent{
			Event:    events.EventPlayback,
			Message:  "test playback",
			Outcome:  string(res.Outcome),
			Reason:   res.Reason,
			PlayedMs: res.Elapsed.Milliseconds(),
		})
		return
	}

	ep.Outcome = res.Outcome
	ep.Reason = res.Reason
	ep.DurationMs = res.Elapsed.Milliseconds()
	ep.BytesPlayed = res.Bytes

	if ep.ID > 0 {
		if err := c.history.UpdateOutcome(ep.ID, ep.Outcome, ep.Reason, ep.DurationMs, ep.BytesPlayed); err != nil {
			slog.Error("failed to update episode outcome", "id", ep.ID, "error", err)
		}
	}

	c.logEvent(&events.DeviceEvent{
		Event:    events.EventPlayback,
		Level:    ep.TriggerLevel,
		Outcome:  string(ep.Outcome),
		Reason:   ep.Reason,
		PlayedMs: ep.DurationMs,
	})
	c.notifier.EpisodeEnded(ep)

	if snap.TracesEnabled {
		c.tracer.PlaybackEnded(string(ep.Outcome), ep.Reason, ep.DurationMs, now)
	}
}

// handleCommand runs a loop command. Ticks are paused while it executes.
// Test playback acknowledges before the run so the caller is not held for
// the full track.
func (c *Controller) handleCommand(cmd command) {
	switch cmd.kind {
	case cmdRecalibrate:
		cmd.result <- c.recalibrate()
	case cmdTestPlayback:
		snap := c.config.Snapshot()
		c.mu.Lock()
		c.current = nil
		c.state = types.StatePlaying
		c.playingSince = time.Now()
		c.mu.Unlock()
		slog.Info("test playback started")
		cmd.result <- nil
		c.runPlayback(&snap)
	}
}

// recalibrate re-measures the threshold from inside the monitor loop.
// A failed attempt keeps the previous threshold.
func (c *Controller) recalibrate() error {
	c.mu.RLock()
	stopCh := c.stopChan
	c.mu.RUnlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	c.mu.Lock()
	c.state = types.StateCalibrating
	c.mu.Unlock()

	info, err := c.calibrate(ctx)
	if err != nil {
		c.mu.Lock()
		c.state = types.StateMonitoring
		c.lastError = err.Error()
		c.mu.Unlock()
		slog.Error("recalibration failed", "error", err)
		return err
	}

	c.detector.Reset()
	c.finishCalibration(info)
	return nil
}

// stopping reports whether shutdown has been requested.
func (c *Controller) stopping() bool {
	select {
	case <-c.stopChan:
		return true
	default:
		return false
	}
}

// logEvent appends to the device event log, logging failures.
func (c *Controller) logEvent(ev *events.DeviceEvent) {
	if err := c.events.Log(ev); err != nil {
		slog.Warn("failed to write device event", "event", string(ev.Event), "error", err)
	}
}

// TriggerTestWebhook sends a test webhook to verify configuration.
func (c *Controller) TriggerTestWebhook() error {
	cfg := c.config.Snapshot()
	return notify.SendTestWebhook(cfg.WebhookURL, cfg.DeviceName)
}

// TriggerTestEmail sends a test email to verify configuration.
func (c *Controller) TriggerTestEmail() error {
	cfg := c.config.Snapshot()
	return notify.SendTestEmail(notify.BuildGraphConfig(cfg), cfg.DeviceName)
}

// TriggerTestLog writes a test entry to verify log file configuration.
func (c *Controller) TriggerTestLog() error {
	return notify.WriteTestLog(c.config.Snapshot().LogPath)
}

// TriggerTestZabbix sends a test trapper item to verify configuration.
func (c *Controller) TriggerTestZabbix() error {
	cfg := c.config.Snapshot()
	return notify.SendTestZabbix(cfg.ZabbixServer, cfg.ZabbixPort, cfg.ZabbixHost, cfg.ZabbixKey)
}

// TriggerTestNATS publishes a test fleet event to verify configuration.
func (c *Controller) TriggerTestNATS() error {
	return c.notifier.TestNATS()
}

// TriggerTestPush sends a test browser push to verify configuration.
func (c *Controller) TriggerTestPush() error {
	return c.notifier.TestPush()
}
