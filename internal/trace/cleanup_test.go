package trace

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemoveExpired(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 8, 21, 3, 0, 0, 0, time.UTC)

	files := []string{
		"noise_2026-08-01_10-00-00.json", // 20 days old, expired
		"noise_2026-08-20_10-00-00.json", // 1 day old, kept
		"README.txt",                     // no date, kept
	}
	for _, name := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0o644))
	}

	deleted := RemoveExpired(dir, 14, now)
	assert.Equal(t, 1, deleted)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"noise_2026-08-20_10-00-00.json", "README.txt"}, names)
}

func TestRemoveExpiredMissingDirectory(t *testing.T) {
	deleted := RemoveExpired(filepath.Join(t.TempDir(), "absent"), 14, time.Now())
	assert.Zero(t, deleted)
}

func TestRemoveExpiredBoundary(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC)

	// Exactly at the cutoff survives; strictly before it goes.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "noise_2026-08-07_00-00-00.json"), []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "noise_2026-08-06_23-59-59.json"), []byte("{}"), 0o644))

	deleted := RemoveExpired(dir, 14, now)
	assert.Equal(t, 1, deleted)

	_, err := os.Stat(filepath.Join(dir, "noise_2026-08-07_00-00-00.json"))
	assert.NoError(t, err)
}
