package notify

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/kennelworks/hushd/internal/types"
	"github.com/kennelworks/hushd/internal/util"
)

// LogNoiseStart records a noise trigger.
func LogNoiseStart(logPath string, ep *types.Episode) error {
	return appendLogEntry(logPath, &types.NoiseLogEntry{
		Timestamp: timestampUTC(),
		Event:     "noise_trigger",
		Level:     ep.TriggerLevel,
		Threshold: ep.Threshold,
		RisingMs:  ep.RisingMs,
	})
}

// LogPlaybackEnd records the end of a playback episode with optional trace info.
func LogPlaybackEnd(logPath string, ep *types.Episode) error {
	entry := &types.NoiseLogEntry{
		Timestamp: timestampUTC(),
		Event:     "playback_end",
		Level:     ep.TriggerLevel,
		Threshold: ep.Threshold,
		Outcome:   string(ep.Outcome),
		Reason:    ep.Reason,
		PlayedMs:  ep.DurationMs,
		Bytes:     ep.BytesPlayed,
	}

	if ep.TracePath != "" {
		entry.TracePath = ep.TracePath
		entry.TraceSize = ep.TraceSize
	}

	return appendLogEntry(logPath, entry)
}

// WriteTestLog writes a test log entry.
func WriteTestLog(logPath string) error {
	if logPath == "" {
		return fmt.Errorf("log file path not configured")
	}

	return appendLogEntry(logPath, &types.NoiseLogEntry{
		Timestamp: timestampUTC(),
		Event:     "test",
		Threshold: 0,
	})
}

// appendLogEntry appends a log entry to the file.
func appendLogEntry(logPath string, entry *types.NoiseLogEntry) error {
	if !util.IsConfigured(logPath) {
		return nil
	}

	jsonData, err := json.Marshal(entry)
	if err != nil {
		return util.WrapError("marshal log entry", err)
	}

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return util.WrapError("open log file", err)
	}
	defer util.SafeCloseFunc(f, "log file")()

	if _, err := f.Write(jsonData); err != nil {
		return util.WrapError("write log entry", err)
	}
	if _, err := f.WriteString("\n"); err != nil {
		return util.WrapError("write newline", err)
	}

	return nil
}
