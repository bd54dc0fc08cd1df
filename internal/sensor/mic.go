package sensor

import (
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/kennelworks/hushd/internal/util"
)

const (
	// micSampleRate is the capture rate for the microphone backend.
	micSampleRate = 16000
	// micFrames is the number of frames read per sample: 10ms of audio,
	// matching one control loop tick.
	micFrames = 160
)

// Mic samples ambient loudness from an audio input device. Each Read
// captures a short frame, computes its RMS amplitude and scales it to
// the configured ADC range so the rest of the pipeline sees the same
// units as a hardware sensor.
type Mic struct {
	mu     sync.Mutex
	stream *portaudio.Stream
	buf    []int16
	adcMax int
	closed bool
}

// NewMic opens the named input device, or the system default when name
// is empty. adcMax is the top of the reported sample range.
func NewMic(name string, adcMax int) (*Mic, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, util.WrapError("initialize audio subsystem", err)
	}

	m := &Mic{
		buf:    make([]int16, micFrames),
		adcMax: adcMax,
	}

	var err error
	if name == "" {
		m.stream, err = portaudio.OpenDefaultStream(1, 0, micSampleRate, len(m.buf), m.buf)
	} else {
		var dev *portaudio.DeviceInfo
		dev, err = findInputDevice(name)
		if err == nil {
			params := portaudio.HighLatencyParameters(dev, nil)
			params.Input.Channels = 1
			params.SampleRate = micSampleRate
			params.FramesPerBuffer = len(m.buf)
			m.stream, err = portaudio.OpenStream(params, m.buf)
		}
	}
	if err != nil {
		terminateAudio()
		return nil, util.WrapError("open microphone stream", err)
	}

	if err := m.stream.Start(); err != nil {
		_ = m.stream.Close()
		terminateAudio()
		return nil, util.WrapError("start microphone stream", err)
	}

	return m, nil
}

// Read captures one frame and returns its loudness in ADC counts.
func (m *Mic) Read() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, fmt.Errorf("microphone sampler closed")
	}

	// Input overflow just means we fell behind; the frame is still usable.
	if err := m.stream.Read(); err != nil && err != portaudio.InputOverflowed {
		return 0, util.WrapError("read microphone frame", err)
	}

	var sum float64
	for _, s := range m.buf {
		v := float64(s)
		sum += v * v
	}
	rms := math.Sqrt(sum / float64(len(m.buf)))

	level := int(math.Round(rms / 32767.0 * float64(m.adcMax)))
	if level > m.adcMax {
		level = m.adcMax
	}
	return level, nil
}

// Close stops the stream and releases the audio subsystem.
func (m *Mic) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	var firstErr error
	if err := m.stream.Stop(); err != nil {
		firstErr = err
	}
	if err := m.stream.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	terminateAudio()
	return firstErr
}

func findInputDevice(name string) (*portaudio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, util.WrapError("list audio devices", err)
	}
	for _, dev := range devices {
		if dev.MaxInputChannels > 0 && dev.Name == name {
			return dev, nil
		}
	}
	return nil, fmt.Errorf("input device %q not found", name)
}

func terminateAudio() {
	if err := portaudio.Terminate(); err != nil {
		slog.Warn("failed to terminate audio subsystem", "error", err)
	}
}
