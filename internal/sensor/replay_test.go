package sensor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeReplayFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "samples.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNewReplay(t *testing.T) {
	t.Run("loads and loops samples", func(t *testing.T) {
		path := writeReplayFile(t, "# ambient recording\n10\n20\n\n30\n")
		s, err := NewReplay(path)
		require.NoError(t, err)

		got := make([]int, 0, 4)
		for i := 0; i < 4; i++ {
			v, err := s.Read()
			require.NoError(t, err)
			got = append(got, v)
		}
		assert.Equal(t, []int{10, 20, 30, 10}, got)
	})

	t.Run("rejects malformed lines", func(t *testing.T) {
		path := writeReplayFile(t, "10\nnot-a-number\n")
		_, err := NewReplay(path)
		assert.ErrorContains(t, err, "line 2")
	})

	t.Run("rejects empty files", func(t *testing.T) {
		path := writeReplayFile(t, "# nothing here\n")
		_, err := NewReplay(path)
		assert.ErrorContains(t, err, "no samples")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := NewReplay(filepath.Join(t.TempDir(), "absent.txt"))
		assert.Error(t, err)
	})
}
