package output

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/kennelworks/hushd/internal/util"
)

const (
	// speakerRate matches the 125µs per-sample pacing of the player.
	speakerRate = 8000
	// speakerFrames is the device buffer size in frames.
	speakerFrames = 512
	// restLevel is the midpoint of unsigned 8-bit PCM, the speaker's
	// resting position.
	restLevel = 128
)

// Speaker plays samples through the default audio output device. The
// incoming bytes are treated as unsigned 8-bit PCM at 8kHz.
type Speaker struct {
	mu     sync.Mutex
	stream *portaudio.Stream
	buf    []float32
	fill   int
	closed bool
}

// NewSpeaker initializes the audio subsystem. The device itself is
// opened lazily on the first Enable so an idle controller does not hold
// it.
func NewSpeaker() (*Speaker, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, util.WrapError("initialize audio subsystem", err)
	}
	return &Speaker{buf: make([]float32, speakerFrames)}, nil
}

// Enable opens and starts the output stream if needed.
func (s *Speaker) Enable() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("speaker sink closed")
	}
	if s.stream != nil {
		return nil
	}

	stream, err := portaudio.OpenDefaultStream(0, 1, speakerRate, len(s.buf), s.buf)
	if err != nil {
		return util.WrapError("open speaker stream", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return util.WrapError("start speaker stream", err)
	}
	s.stream = stream
	s.fill = 0
	return nil
}

// Write queues one sample, flushing to the device when a full buffer
// has accumulated.
func (s *Speaker) Write(level uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream == nil {
		return fmt.Errorf("speaker sink not enabled")
	}

	s.buf[s.fill] = pcmToFloat(level)
	s.fill++
	if s.fill < len(s.buf) {
		return nil
	}
	s.fill = 0
	return s.flushLocked()
}

// Silence pads and flushes any pending samples and leaves the line at
// the resting level.
func (s *Speaker) Silence() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream == nil {
		return nil
	}
	for i := s.fill; i < len(s.buf); i++ {
		s.buf[i] = 0
	}
	s.fill = 0
	return s.flushLocked()
}

// Close stops the stream and releases the audio subsystem.
func (s *Speaker) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var firstErr error
	if s.stream != nil {
		if err := s.stream.Stop(); err != nil {
			firstErr = err
		}
		if err := s.stream.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		s.stream = nil
	}
	if err := portaudio.Terminate(); err != nil {
		slog.Warn("failed to terminate audio subsystem", "error", err)
	}
	return firstErr
}

func (s *Speaker) flushLocked() error {
	// Underflow means we were late delivering samples; the stream keeps
	// going, so it is not worth failing the playback over.
	if err := s.stream.Write(); err != nil && err != portaudio.OutputUnderflowed {
		return util.WrapError("write speaker buffer", err)
	}
	return nil
}

func pcmToFloat(level uint8) float32 {
	return (float32(level) - restLevel) / restLevel
}

var _ Sink = (*Speaker)(nil)
