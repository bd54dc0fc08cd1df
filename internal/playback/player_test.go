package playback

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kennelworks/hushd/internal/media"
	"github.com/kennelworks/hushd/internal/output"
	"github.com/kennelworks/hushd/internal/types"
)

// fakeClock advances time only when the player sleeps, making pacing
// and cap behavior deterministic.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func buildWAV(data []byte) []byte {
	buf := make([]byte, media.HeaderSize+len(data))
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+len(data)))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1)
	binary.LittleEndian.PutUint16(buf[22:24], 1)
	binary.LittleEndian.PutUint32(buf[24:28], 8000)
	binary.LittleEndian.PutUint32(buf[28:32], 8000)
	binary.LittleEndian.PutUint16(buf[32:34], 1)
	binary.LittleEndian.PutUint16(buf[34:36], 8)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(len(data)))
	copy(buf[44:], data)
	return buf
}

type stubAsset struct {
	r      *bytes.Reader
	size   int64
	closed bool
	// readErr, when set, fails every read after the reader drains.
	readErr error
}

func newStubAsset(content []byte) *stubAsset {
	return &stubAsset{r: bytes.NewReader(content), size: int64(len(content))}
}

func (a *stubAsset) Read(p []byte) (int, error) {
	n, err := a.r.Read(p)
	if a.readErr != nil && n == 0 {
		return 0, a.readErr
	}
	return n, err
}

func (a *stubAsset) Close() error { a.closed = true; return nil }
func (a *stubAsset) Name() string { return "stub.wav" }
func (a *stubAsset) Size() int64  { return a.size }

type stubStore struct {
	availErr error
	openErr  error
	asset    *stubAsset
}

func (s *stubStore) Available() error { return s.availErr }
func (s *stubStore) Open(string) (media.Asset, error) {
	if s.openErr != nil {
		return nil, s.openErr
	}
	return s.asset, nil
}
func (s *stubStore) List() ([]string, error) { return nil, nil }

func cancelAfter(n int) func() bool {
	count := 0
	return func() bool {
		count++
		return count > n
	}
}

func newTestPlayer(store media.Store, sink output.Sink) (*Player, *fakeClock) {
	clock := newFakeClock()
	return New(store, sink, WithClock(clock.Now, clock.Sleep)), clock
}

func TestPlayCompletesAndScalesVolume(t *testing.T) {
	data := []byte{0, 128, 255, 51}
	store := &stubStore{asset: newStubAsset(buildWAV(data))}
	sink := output.NewRecorder()
	player, _ := newTestPlayer(store, sink)

	res := player.Play(Params{
		Asset:       "stub.wav",
		Volume:      180,
		ChunkBytes:  512,
		SampleDelay: 125 * time.Microsecond,
		MaxPlay:     30 * time.Second,
	})

	assert.Equal(t, types.OutcomeCompleted, res.Outcome)
	assert.Empty(t, res.Reason)
	assert.NoError(t, res.Err)
	assert.Equal(t, int64(4), res.Bytes)
	assert.Equal(t, 8000, res.Header.SampleRate)

	// Arduino-style integer scaling: v * volume / 255.
	assert.Equal(t, []uint8{0, 90, 180, 36}, sink.Levels())
	assert.True(t, sink.Enabled())
	assert.Equal(t, 1, sink.Silences(), "output silenced exactly once")
	assert.True(t, store.asset.closed, "asset closed after playback")
}

func TestPlayFullVolumePassesThrough(t *testing.T) {
	data := []byte{0, 1, 254, 255}
	store := &stubStore{asset: newStubAsset(buildWAV(data))}
	sink := output.NewRecorder()
	player, _ := newTestPlayer(store, sink)

	res := player.Play(Params{Asset: "stub.wav", Volume: 255})
	assert.Equal(t, types.OutcomeCompleted, res.Outcome)
	assert.Equal(t, data, []byte(sink.Levels()))
}

func TestPlayPacesEachSample(t *testing.T) {
	data := make([]byte, 100)
	store := &stubStore{asset: newStubAsset(buildWAV(data))}
	player, clock := newTestPlayer(store, output.NewRecorder())
	start := clock.Now()

	res := player.Play(Params{Asset: "stub.wav", Volume: 255, SampleDelay: 125 * time.Microsecond})

	assert.Equal(t, types.OutcomeCompleted, res.Outcome)
	assert.Equal(t, 100*125*time.Microsecond, clock.Now().Sub(start))
	assert.Equal(t, res.Elapsed, clock.Now().Sub(start))
}

func TestPlayCapsAtMaxDuration(t *testing.T) {
	// 8 samples per chunk at 1ms each: the cap lands after chunk two.
	data := make([]byte, 100)
	for i := range data {
		data[i] = 200
	}
	store := &stubStore{asset: newStubAsset(buildWAV(data))}
	sink := output.NewRecorder()
	player, _ := newTestPlayer(store, sink)

	res := player.Play(Params{
		Asset:       "stub.wav",
		Volume:      255,
		ChunkBytes:  8,
		SampleDelay: time.Millisecond,
		MaxPlay:     10 * time.Millisecond,
	})

	assert.Equal(t, types.OutcomeCapped, res.Outcome)
	assert.Equal(t, ReasonMaxDuration, res.Reason)
	assert.Equal(t, int64(16), res.Bytes, "cap is checked at chunk boundaries")
	assert.Equal(t, 1, sink.Silences())
	assert.True(t, store.asset.closed)
}

func TestPlayCancelsAtSampleBoundary(t *testing.T) {
	data := make([]byte, 50)
	store := &stubStore{asset: newStubAsset(buildWAV(data))}
	sink := output.NewRecorder()
	player, _ := newTestPlayer(store, sink)

	res := player.Play(Params{
		Asset:        "stub.wav",
		Volume:       255,
		ShouldCancel: cancelAfter(10),
	})

	assert.Equal(t, types.OutcomeCancelled, res.Outcome)
	assert.Equal(t, ReasonCancelled, res.Reason)
	assert.Equal(t, int64(10), res.Bytes)
	assert.Equal(t, 1, sink.Silences())
	assert.True(t, store.asset.closed)
}

func TestPlayFailureClasses(t *testing.T) {
	t.Run("storage unavailable", func(t *testing.T) {
		store := &stubStore{availErr: fmt.Errorf("%w: not mounted", media.ErrStorageUnavailable)}
		sink := output.NewRecorder()
		player, _ := newTestPlayer(store, sink)

		res := player.Play(Params{Asset: "stub.wav"})
		assert.Equal(t, types.OutcomeFailed, res.Outcome)
		assert.Equal(t, ReasonStorageUnavailable, res.Reason)
		assert.ErrorIs(t, res.Err, media.ErrStorageUnavailable)
		assert.Zero(t, sink.Silences(), "nothing was driven, nothing to silence")
	})

	t.Run("asset not found", func(t *testing.T) {
		store := &stubStore{openErr: fmt.Errorf("%w: calm.wav", media.ErrNotFound)}
		player, _ := newTestPlayer(store, output.NewRecorder())

		res := player.Play(Params{Asset: "calm.wav"})
		assert.Equal(t, types.OutcomeFailed, res.Outcome)
		assert.Equal(t, ReasonAssetNotFound, res.Reason)
	})

	t.Run("invalid format", func(t *testing.T) {
		bad := buildWAV([]byte{1, 2, 3})
		copy(bad[0:4], "JUNK")
		store := &stubStore{asset: newStubAsset(bad)}
		sink := output.NewRecorder()
		player, _ := newTestPlayer(store, sink)

		res := player.Play(Params{Asset: "stub.wav"})
		assert.Equal(t, types.OutcomeFailed, res.Outcome)
		assert.Equal(t, ReasonInvalidFormat, res.Reason)
		assert.ErrorIs(t, res.Err, media.ErrInvalidFormat)
		assert.True(t, store.asset.closed, "asset closed even when validation fails")
		assert.Equal(t, 1, sink.Silences())
	})

	t.Run("truncated header", func(t *testing.T) {
		store := &stubStore{asset: newStubAsset([]byte("RIFF"))}
		player, _ := newTestPlayer(store, output.NewRecorder())

		res := player.Play(Params{Asset: "stub.wav"})
		assert.Equal(t, types.OutcomeFailed, res.Outcome)
		assert.Equal(t, ReasonInvalidFormat, res.Reason)
	})

	t.Run("output enable failure", func(t *testing.T) {
		store := &stubStore{asset: newStubAsset(buildWAV([]byte{1}))}
		sink := output.NewRecorder()
		sink.EnableErr = assert.AnError
		player, _ := newTestPlayer(store, sink)

		res := player.Play(Params{Asset: "stub.wav"})
		assert.Equal(t, types.OutcomeFailed, res.Outcome)
		assert.Equal(t, ReasonOutputError, res.Reason)
		assert.True(t, store.asset.closed)
	})

	t.Run("output write failure", func(t *testing.T) {
		store := &stubStore{asset: newStubAsset(buildWAV([]byte{1, 2}))}
		sink := output.NewRecorder()
		sink.WriteErr = assert.AnError
		player, _ := newTestPlayer(store, sink)

		res := player.Play(Params{Asset: "stub.wav", Volume: 255})
		assert.Equal(t, types.OutcomeFailed, res.Outcome)
		assert.Equal(t, ReasonOutputError, res.Reason)
		assert.Zero(t, res.Bytes)
	})

	t.Run("read failure mid stream", func(t *testing.T) {
		asset := newStubAsset(buildWAV(nil))
		asset.readErr = assert.AnError
		store := &stubStore{asset: asset}
		sink := output.NewRecorder()
		player, _ := newTestPlayer(store, sink)

		res := player.Play(Params{Asset: "stub.wav"})
		assert.Equal(t, types.OutcomeFailed, res.Outcome)
		assert.Equal(t, ReasonReadError, res.Reason)
		assert.Equal(t, 1, sink.Silences())
		assert.True(t, asset.closed)
	})
}

func TestPlayAgainstRealDirectory(t *testing.T) {
	dir := t.TempDir()
	data := []byte{10, 20, 30, 40, 50}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "calm.wav"), buildWAV(data), 0o644))

	sink := output.NewRecorder()
	player, _ := newTestPlayer(media.NewDirStore(dir), sink)

	res := player.Play(Params{Asset: "calm.wav", Volume: 255, ChunkBytes: 2})
	assert.Equal(t, types.OutcomeCompleted, res.Outcome)
	assert.Equal(t, int64(len(data)), res.Bytes)
	assert.Equal(t, data, []byte(sink.Levels()))
}
