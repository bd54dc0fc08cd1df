// Package trace captures the sensor levels around a noise episode and
// writes them to disk for later analysis, optionally shipping them to
// S3-compatible storage.
package trace

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Sample is one sensor reading relative to the trigger moment.
type Sample struct {
	// OffsetMs is milliseconds since the trigger; negative samples
	// come from the pre-trigger window.
	OffsetMs int64 `json:"t_ms"`
	// Level is the raw sensor reading.
	Level int `json:"v"`
}

// Meta identifies the episode a trace belongs to.
type Meta struct {
	Device       string    `json:"device"`
	EpisodeID    int64     `json:"episode_id"`
	TriggeredAt  time.Time `json:"triggered_at"`
	Threshold    int       `json:"threshold"`
	TriggerLevel int       `json:"trigger_level"`
	RisingMs     int64     `json:"rising_ms"`
	Outcome      string    `json:"outcome,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	PlayedMs     int64     `json:"played_ms,omitempty"`
}

// File is the on-disk trace document.
type File struct {
	Meta
	Samples []Sample `json:"samples"`
}

type entry struct {
	at    time.Time
	level int
}

// Tracer keeps a rolling window of recent sensor levels. When an
// episode triggers it freezes the pre-trigger window, collects whatever
// is observed until a post window after playback has elapsed, and
// writes the result to disk in the background.
type Tracer struct {
	mu           sync.Mutex
	dir          string
	pre          time.Duration
	post         time.Duration
	ring         []entry
	capturing    bool
	meta         Meta
	captured     []entry
	postDeadline time.Time
	onSaved      func(episodeID int64, path string, size int64)
	writes       sync.WaitGroup
}

// New creates a tracer writing to dir with the given pre and post
// trigger windows.
func New(dir string, pre, post time.Duration) *Tracer {
	return &Tracer{dir: dir, pre: pre, post: post}
}

// SetOnSaved registers a callback invoked after each trace file lands
// on disk. The callback runs on the writer goroutine.
func (t *Tracer) SetOnSaved(fn func(episodeID int64, path string, size int64)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onSaved = fn
}

// Configure applies new capture settings. A capture in progress keeps
// its original windows.
func (t *Tracer) Configure(dir string, pre, post time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dir = dir
	t.pre = pre
	t.post = post
}

// Observe records one sensor reading. Must be called on every sampling
// tick, including during the post-playback window.
func (t *Tracer) Observe(level int, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ring = append(t.ring, entry{at: now, level: level})
	cutoff := now.Add(-t.pre)
	drop := 0
	for drop < len(t.ring) && t.ring[drop].at.Before(cutoff) {
		drop++
	}
	if drop > 0 {
		t.ring = append(t.ring[:0], t.ring[drop:]...)
	}

	if !t.capturing {
		return
	}
	t.captured = append(t.captured, entry{at: now, level: level})
	if !t.postDeadline.IsZero() && !now.Before(t.postDeadline) {
		t.finalizeLocked()
	}
}

// Begin starts capturing an episode. The rolling window becomes the
// pre-trigger part of the trace. An unfinished capture is flushed
// first.
func (t *Tracer) Begin(meta Meta) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.capturing {
		t.finalizeLocked()
	}

	t.meta = meta
	t.captured = append([]entry(nil), t.ring...)
	t.capturing = true
	t.postDeadline = time.Time{}
}

// PlaybackEnded records the episode outcome and schedules the capture
// to finalize after the post window.
func (t *Tracer) PlaybackEnded(outcome, reason string, playedMs int64, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.capturing {
		return
	}
	t.meta.Outcome = outcome
	t.meta.Reason = reason
	t.meta.PlayedMs = playedMs
	t.postDeadline = now.Add(t.post)
}

// Active reports whether a capture is in progress.
func (t *Tracer) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.capturing
}

// Flush finalizes a capture in progress, cutting the post window short.
// Used at shutdown.
func (t *Tracer) Flush() {
	t.mu.Lock()
	if t.capturing {
		t.finalizeLocked()
	}
	t.mu.Unlock()
	t.writes.Wait()
}

// finalizeLocked snapshots the capture and writes it in the background.
func (t *Tracer) finalizeLocked() {
	doc := File{
		Meta:    t.meta,
		Samples: make([]Sample, 0, len(t.captured)),
	}
	for _, e := range t.captured {
		doc.Samples = append(doc.Samples, Sample{
			OffsetMs: e.at.Sub(t.meta.TriggeredAt).Milliseconds(),
			Level:    e.level,
		})
	}

	dir := t.dir
	onSaved := t.onSaved

	t.capturing = false
	t.captured = nil
	t.postDeadline = time.Time{}

	t.writes.Add(1)
	go func() {
		defer t.writes.Done()
		path, size, err := writeTraceFile(dir, doc)
		if err != nil {
			slog.Error("failed to write trace file", "episode_id", doc.EpisodeID, "error", err)
			return
		}
		slog.Info("trace written", "episode_id", doc.EpisodeID, "path", path, "size", size, "samples", len(doc.Samples))
		if onSaved != nil {
			onSaved(doc.EpisodeID, path, size)
		}
	}()
}

func writeTraceFile(dir string, doc File) (string, int64, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, err
	}

	name := "noise_" + doc.TriggeredAt.Format("2006-01-02_15-04-05") + ".json"
	path := filepath.Join(dir, name)

	data, err := json.Marshal(doc)
	if err != nil {
		return "", 0, err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", 0, err
	}
	return path, int64(len(data)), nil
}
