// Package output drives the analog signal path the calming audio is
// played through. Backends exist for PWM pins, audio output devices and
// a null sink for headless development.
package output

import (
	"sync"
)

// Sink is a destination for 8-bit audio levels. Write is called once
// per sample at the playback rate; implementations must keep it cheap.
type Sink interface {
	// Enable prepares the sink for a playback run.
	Enable() error
	// Write emits one scaled sample in the range 0-255.
	Write(level uint8) error
	// Silence drives the output to its resting level. Called
	// unconditionally when playback ends, however it ends.
	Silence() error
	// Close releases the underlying device.
	Close() error
}

// Null discards all samples. Used when no output hardware is attached.
type Null struct{}

// NewNull creates a sink that swallows everything.
func NewNull() *Null { return &Null{} }

func (*Null) Enable() error     { return nil }
func (*Null) Write(uint8) error { return nil }
func (*Null) Silence() error    { return nil }
func (*Null) Close() error      { return nil }

// Recorder captures everything written to it. It backs the playback and
// controller test suites.
type Recorder struct {
	mu       sync.Mutex
	enabled  bool
	levels   []uint8
	silences int
	closed   bool

	// WriteErr, when set, is returned by the next Write call.
	WriteErr error
	// EnableErr, when set, is returned by Enable.
	EnableErr error
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Enable() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.EnableErr != nil {
		return r.EnableErr
	}
	r.enabled = true
	return nil
}

func (r *Recorder) Write(level uint8) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.WriteErr != nil {
		return r.WriteErr
	}
	r.levels = append(r.levels, level)
	return nil
}

func (r *Recorder) Silence() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.silences++
	return nil
}

func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// Enabled reports whether Enable has been called.
func (r *Recorder) Enabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enabled
}

// Levels returns a copy of the samples written so far.
func (r *Recorder) Levels() []uint8 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]uint8, len(r.levels))
	copy(out, r.levels)
	return out
}

// Silences reports how many times the output was driven to rest.
func (r *Recorder) Silences() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.silences
}

// Closed reports whether Close has been called.
func (r *Recorder) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// MaxLevel returns the loudest sample written, for scaling assertions.
func (r *Recorder) MaxLevel() uint8 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var maxv uint8
	for _, v := range r.levels {
		if v > maxv {
			maxv = v
		}
	}
	return maxv
}

var _ Sink = (*Null)(nil)
var _ Sink = (*Recorder)(nil)
