package sensor

import (
	"errors"
	"sync"
)

// ErrScriptExhausted is returned by a non-looping scripted sampler once
// every sample has been consumed.
var ErrScriptExhausted = errors.New("scripted sampler exhausted")

// Scripted replays a fixed sequence of readings. It backs the replay
// backend and the test suites.
type Scripted struct {
	mu      sync.Mutex
	samples []int
	pos     int
	loop    bool
	closed  bool
}

// NewScripted creates a sampler that returns the given samples in order
// and then fails with ErrScriptExhausted.
func NewScripted(samples ...int) *Scripted {
	return &Scripted{samples: samples}
}

// NewLoopingScripted creates a sampler that cycles through the given
// samples forever.
func NewLoopingScripted(samples ...int) *Scripted {
	return &Scripted{samples: samples, loop: true}
}

// Read returns the next scripted sample.
func (s *Scripted) Read() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, errors.New("scripted sampler closed")
	}
	if len(s.samples) == 0 {
		return 0, ErrScriptExhausted
	}
	if s.pos >= len(s.samples) {
		if !s.loop {
			return 0, ErrScriptExhausted
		}
		s.pos = 0
	}
	v := s.samples[s.pos]
	s.pos++
	return v, nil
}

// Remaining reports how many scripted samples are left before the
// sampler is exhausted. Looping samplers always report the full length.
func (s *Scripted) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loop {
		return len(s.samples)
	}
	if s.pos > len(s.samples) {
		return 0
	}
	return len(s.samples) - s.pos
}

// Close marks the sampler closed; subsequent reads fail.
func (s *Scripted) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
