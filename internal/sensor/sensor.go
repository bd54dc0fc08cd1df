// Package sensor provides noise sensor sampling, calibration and detection.
package sensor

// A Sampler produces raw noise sensor readings.
type Sampler interface {
	// Read returns one raw sample in [0, ADCMax].
	Read() (int, error)
	// Close releases the sampler's resources.
	Close() error
}

// Func adapts a plain function to the Sampler interface.
type Func func() (int, error)

// Read calls f.
func (f Func) Read() (int, error) { return f() }

// Close is a no-op.
func (f Func) Close() error { return nil }
