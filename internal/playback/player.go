// Package playback streams a stored WAV asset to the analog output with
// per-sample pacing, a hard duration cap and unconditional cleanup.
package playback

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/kennelworks/hushd/internal/media"
	"github.com/kennelworks/hushd/internal/output"
	"github.com/kennelworks/hushd/internal/types"
)

// defaultChunkBytes is the fallback read size when params carry none.
const defaultChunkBytes = 512

// Failure and stop reasons recorded on episodes and in the noise log.
const (
	ReasonStorageUnavailable = "storage_unavailable"
	ReasonAssetNotFound      = "asset_not_found"
	ReasonInvalidFormat      = "invalid_format"
	ReasonOutputError        = "output_error"
	ReasonReadError          = "read_error"
	ReasonCancelled          = "cancelled"
	ReasonMaxDuration        = "max_duration"
)

// Params describes one playback run. Values come from the current
// configuration snapshot so settings changes apply to the next run.
type Params struct {
	// Asset is the file name to play from the store.
	Asset string
	// Volume scales every sample: 0 mutes, 255 passes through.
	Volume int
	// ChunkBytes is the read size per storage access.
	ChunkBytes int
	// SampleDelay is the pause after each sample write.
	SampleDelay time.Duration
	// MaxPlay caps the run; checked after every chunk.
	MaxPlay time.Duration
	// ShouldCancel is polled once per sample. A true return stops the
	// run at the next sample boundary.
	ShouldCancel func() bool
}

// Result reports how a playback run ended.
type Result struct {
	Outcome types.PlaybackOutcome
	// Reason qualifies the outcome: a failure class, max_duration for
	// capped runs, cancelled for stopped ones. Empty when completed.
	Reason string
	// Err is the underlying error for failed runs.
	Err error
	// Header is the parsed WAV header, zero when validation failed.
	Header media.Header
	// Bytes is the number of audio samples written to the sink.
	Bytes int64
	// Elapsed is the audible duration of the run.
	Elapsed time.Duration
}

// Player executes playback runs against a store and a sink.
type Player struct {
	store media.Store
	sink  output.Sink
	now   func() time.Time
	sleep func(time.Duration)
}

// Option adjusts player behavior.
type Option func(*Player)

// WithClock replaces the wall clock and sleep functions.
func WithClock(now func() time.Time, sleep func(time.Duration)) Option {
	return func(p *Player) {
		p.now = now
		p.sleep = sleep
	}
}

// New creates a player.
func New(store media.Store, sink output.Sink, opts ...Option) *Player {
	p := &Player{
		store: store,
		sink:  sink,
		now:   time.Now,
		sleep: time.Sleep,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Play runs one playback to completion and returns how it ended. The
// output is silenced and the asset closed no matter which path the run
// takes out.
func (p *Player) Play(params Params) Result {
	if params.ChunkBytes <= 0 {
		params.ChunkBytes = defaultChunkBytes
	}
	if params.Volume < 0 {
		params.Volume = 0
	}
	if params.Volume > types.OutputMax {
		params.Volume = types.OutputMax
	}
	cancelled := params.ShouldCancel
	if cancelled == nil {
		cancelled = func() bool { return false }
	}

	if err := p.store.Available(); err != nil {
		slog.Error("playback aborted: storage unavailable", "asset", params.Asset, "error", err)
		return Result{Outcome: types.OutcomeFailed, Reason: ReasonStorageUnavailable, Err: err}
	}

	asset, err := p.store.Open(params.Asset)
	if err != nil {
		reason := ReasonStorageUnavailable
		if errors.Is(err, media.ErrNotFound) {
			reason = ReasonAssetNotFound
		}
		slog.Error("playback aborted: cannot open asset", "asset", params.Asset, "reason", reason, "error", err)
		return Result{Outcome: types.OutcomeFailed, Reason: reason, Err: err}
	}

	// From here on the asset is open and the run may have driven the
	// output, so cleanup is unconditional.
	silenced := false
	defer func() {
		if !silenced {
			if err := p.sink.Silence(); err != nil {
				slog.Warn("failed to silence output after playback", "error", err)
			}
		}
		if err := asset.Close(); err != nil {
			slog.Warn("failed to close asset after playback", "asset", params.Asset, "error", err)
		}
	}()

	header, err := media.ReadHeader(asset)
	if err != nil {
		slog.Error("playback aborted: invalid asset", "asset", params.Asset, "error", err)
		return Result{Outcome: types.OutcomeFailed, Reason: ReasonInvalidFormat, Err: err}
	}

	if err := p.sink.Enable(); err != nil {
		slog.Error("playback aborted: output unavailable", "asset", params.Asset, "error", err)
		return Result{Outcome: types.OutcomeFailed, Reason: ReasonOutputError, Err: err}
	}

	slog.Info("playback started",
		"asset", params.Asset,
		"size", asset.Size(),
		"channels", header.Channels,
		"sample_rate", header.SampleRate,
		"bits", header.BitsPerSample,
		"volume", params.Volume,
	)

	start := p.now()
	buf := make([]byte, params.ChunkBytes)
	var written int64

	finish := func(outcome types.PlaybackOutcome, reason string, err error) Result {
		if serr := p.sink.Silence(); serr != nil {
			slog.Warn("failed to silence output after playback", "error", serr)
		}
		silenced = true
		res := Result{
			Outcome: outcome,
			Reason:  reason,
			Err:     err,
			Header:  header,
			Bytes:   written,
			Elapsed: p.now().Sub(start),
		}
		slog.Info("playback finished",
			"asset", params.Asset,
			"outcome", string(outcome),
			"reason", reason,
			"bytes", written,
			"elapsed_ms", res.Elapsed.Milliseconds(),
		)
		return res
	}

	for {
		n, readErr := asset.Read(buf)
		for _, b := range buf[:n] {
			if cancelled() {
				return finish(types.OutcomeCancelled, ReasonCancelled, nil)
			}
			level := uint8(int(b) * params.Volume / types.OutputMax)
			if err := p.sink.Write(level); err != nil {
				return finish(types.OutcomeFailed, ReasonOutputError, err)
			}
			written++
			if params.SampleDelay > 0 {
				p.sleep(params.SampleDelay)
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return finish(types.OutcomeCompleted, "", nil)
			}
			return finish(types.OutcomeFailed, ReasonReadError, readErr)
		}

		if params.MaxPlay > 0 && p.now().Sub(start) > params.MaxPlay {
			return finish(types.OutcomeCapped, ReasonMaxDuration, nil)
		}
	}
}
