package sensor

import (
	"sync"
	"time"
)

// DetectorConfig carries the detection parameters for a single Update call.
// Callers pass a fresh snapshot on each tick so configuration changes take
// effect without restarting the detector.
type DetectorConfig struct {
	// Threshold is the calibrated trigger level in raw ADC counts.
	// A sample must be strictly above it to count as loud.
	Threshold int
	// Window is how long the level must stay above the threshold
	// before a trigger fires.
	Window time.Duration
}

// Event describes the detector state after an Update call.
type Event struct {
	// Triggered is true on the single update where the loud episode
	// crossed the debounce window.
	Triggered bool
	// Rising is true while the level is above the threshold but the
	// window has not elapsed yet.
	Rising bool
	// RisingFor is how long the current episode has been above the
	// threshold. Zero when idle.
	RisingFor time.Duration
}

// Detector tracks sustained loud noise against a calibrated threshold.
// The level must stay strictly above the threshold for the full debounce
// window before a trigger fires; any sample at or below the threshold
// restarts the wait. After firing the detector stays latched and reports
// nothing until Reset is called.
type Detector struct {
	mu        sync.Mutex
	rising    bool
	riseStart time.Time
	fired     bool
}

// NewDetector creates a detector in the idle state.
func NewDetector() *Detector {
	return &Detector{}
}

// Update processes one sample and returns the resulting event.
func (d *Detector) Update(sample int, cfg DetectorConfig, now time.Time) Event {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.fired {
		return Event{}
	}

	if sample <= cfg.Threshold {
		d.rising = false
		d.riseStart = time.Time{}
		return Event{}
	}

	if !d.rising {
		d.rising = true
		d.riseStart = now
		return Event{Rising: true}
	}

	elapsed := now.Sub(d.riseStart)
	if elapsed > cfg.Window {
		d.rising = false
		d.riseStart = time.Time{}
		d.fired = true
		return Event{Triggered: true, RisingFor: elapsed}
	}

	return Event{Rising: true, RisingFor: elapsed}
}

// Reset re-arms the detector after a trigger has been handled.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rising = false
	d.riseStart = time.Time{}
	d.fired = false
}

// Rising reports whether an unconfirmed loud episode is in progress and
// how long it has lasted.
func (d *Detector) Rising(now time.Time) (bool, time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.rising {
		return false, 0
	}
	return true, now.Sub(d.riseStart)
}
