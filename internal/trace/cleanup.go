package trace

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/kennelworks/hushd/internal/config"
	"github.com/kennelworks/hushd/internal/util"
)

// StartRetentionLoop schedules a daily sweep at 03:00 that removes
// trace files older than the configured retention. A retention of 0
// keeps files forever.
func StartRetentionLoop(cfg *config.Config, stopCh <-chan struct{}) {
	go func() {
		for {
			now := time.Now()
			next := time.Date(now.Year(), now.Month(), now.Day(), 3, 0, 0, 0, now.Location())
			if now.After(next) {
				next = next.Add(24 * time.Hour)
			}

			slog.Info("trace retention: next run scheduled", "at", next.Format(time.DateTime))

			select {
			case <-time.After(next.Sub(now)):
				snap := cfg.Snapshot()
				if snap.TraceRetentionDays > 0 {
					RemoveExpired(snap.TraceDir, snap.TraceRetentionDays, time.Now())
				}
			case <-stopCh:
				slog.Info("trace retention stopped")
				return
			}
		}
	}()
}

// RemoveExpired deletes trace files in dir whose filename date is older
// than retentionDays. Files without a parseable date are left alone.
func RemoveExpired(dir string, retentionDays int, now time.Time) int {
	cutoff := now.AddDate(0, 0, -retentionDays)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("trace retention: failed to read directory", "dir", dir, "error", err)
		}
		return 0
	}

	deleted := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		fileDate, ok := util.ExtractDateFromFilename(entry.Name())
		if !ok {
			continue
		}
		if !fileDate.Before(cutoff) {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		if err := os.Remove(path); err != nil {
			slog.Warn("trace retention: failed to delete file", "path", path, "error", err)
			continue
		}
		deleted++
		slog.Debug("trace retention: deleted file", "file", entry.Name())
	}

	if deleted > 0 {
		slog.Info("trace retention: deleted expired traces", "dir", dir, "count", deleted)
	}
	return deleted
}
