// Package main provides a noise-reactive comfort device controller that samples an
// analog room sensor, detects sustained loud noise and answers it with a calming track.
//
// Usage:
//
//	hushd [-config path/to/config.json]
//
// If -config is not specified, hushd looks for config.json in the same
// directory as the binary.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/kennelworks/hushd/internal/config"
	"github.com/kennelworks/hushd/internal/controller"
	"github.com/kennelworks/hushd/internal/events"
	"github.com/kennelworks/hushd/internal/history"
	"github.com/kennelworks/hushd/internal/media"
	"github.com/kennelworks/hushd/internal/notify"
	"github.com/kennelworks/hushd/internal/output"
	"github.com/kennelworks/hushd/internal/sensor"
	"github.com/kennelworks/hushd/internal/trace"
	"github.com/kennelworks/hushd/internal/util"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: config.json next to binary)")
	showVersion := flag.Bool("version", false, "Print version information and exit")
	flag.Parse()

	if *showVersion {
		slog.Info("version info", "version", Version, "commit", Commit, "build_time", BuildTime)
		return
	}

	if *configPath == "" {
		execPath, err := os.Executable()
		if err != nil {
			slog.Error("failed to get executable path", "error", err)
			os.Exit(1)
		}
		*configPath = filepath.Join(filepath.Dir(execPath), "config.json")
	}

	slog.Info("using config file", "path", *configPath)

	cfg := config.New(*configPath)
	if err := cfg.Load(); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	snap := cfg.Snapshot()

	hist, err := history.Open(snap.HistoryPath)
	if err != nil {
		slog.Error("failed to open episode history", "path", snap.HistoryPath, "error", err)
		os.Exit(1)
	}

	// The device event log lives next to the history database.
	eventLogPath := filepath.Join(filepath.Dir(snap.HistoryPath), "events.log")
	eventLog, err := events.NewLogger(eventLogPath)
	if err != nil {
		slog.Error("failed to open device event log", "path", eventLogPath, "error", err)
		os.Exit(1)
	}

	store := media.NewDirStore(snap.MediaDir)

	sampler, err := buildSampler(&snap)
	if err != nil {
		slog.Error("failed to initialize sensor", "backend", snap.SensorBackend, "error", err)
		os.Exit(1)
	}

	sink, err := buildSink(&snap)
	if err != nil {
		slog.Error("failed to initialize output", "backend", snap.OutputBackend, "error", err)
		os.Exit(1)
	}

	notifier := notify.NewNotifier(cfg)
	notifier.SetSubscriptionStore(hist)

	tracer := trace.New(snap.TraceDir,
		time.Duration(snap.TracePreSeconds)*time.Second,
		time.Duration(snap.TracePostSeconds)*time.Second)

	uploader := trace.NewUploader(cfg, notifier)
	uploader.SetOnUploaded(func(localPath string) {
		if err := hist.MarkTraceUploaded(localPath); err != nil {
			slog.Error("failed to mark trace uploaded", "path", localPath, "error", err)
		}
	})
	uploader.Start()

	tracer.SetOnSaved(func(episodeID int64, path string, size int64) {
		if err := hist.SetTrace(episodeID, path, size); err != nil {
			slog.Error("failed to attach trace to episode", "episode", episodeID, "error", err)
		}
		uploader.Enqueue(path)
	})

	var button controller.Button
	if snap.StopButtonPin > 0 {
		b, err := sensor.NewStopButton(snap.StopButtonPin)
		if err != nil {
			slog.Warn("stop button unavailable", "pin", snap.StopButtonPin, "error", err)
		} else {
			button = b
		}
	}

	ctrl := controller.New(controller.Deps{
		Config:   cfg,
		Sampler:  sampler,
		Store:    store,
		Sink:     sink,
		Notifier: notifier,
		Tracer:   tracer,
		History:  hist,
		Events:   eventLog,
		Button:   button,
	})

	// A media storage failure leaves the controller halted with the reason
	// visible on the dashboard; the web server still comes up.
	if err := ctrl.Start(); err != nil {
		slog.Error("controller did not start", "error", err)
	}

	retentionStop := make(chan struct{})
	go trace.StartRetentionLoop(cfg, retentionStop)

	srv := NewServer(cfg, ctrl, notifier, hist, store, eventLog)

	// Start web server.
	httpServer := srv.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, util.ShutdownSignals()...)
	<-sigChan

	slog.Info("shutting down")

	// Stop version checker goroutine
	srv.version.Stop()
	close(retentionStop)

	// Shut down HTTP server.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	if err := ctrl.Stop(); err != nil {
		slog.Error("error stopping controller", "error", err)
	}

	uploader.Stop()
	notifier.Close()

	if err := sampler.Close(); err != nil {
		slog.Error("error closing sensor", "error", err)
	}
	if err := sink.Close(); err != nil {
		slog.Error("error closing output", "error", err)
	}
	if button != nil {
		if err := button.Close(); err != nil {
			slog.Error("error closing stop button", "error", err)
		}
	}

	if err := hist.Close(); err != nil {
		slog.Error("error closing episode history", "error", err)
	}
	if err := eventLog.Close(); err != nil {
		slog.Error("error closing device event log", "error", err)
	}

	slog.Info("shutdown complete")
}

// buildSampler constructs the sensor backend named in the config.
func buildSampler(snap *config.Snapshot) (sensor.Sampler, error) {
	switch snap.SensorBackend {
	case "spi":
		return sensor.NewSPI(snap.SPIChannel)
	case "mic":
		return sensor.NewMic(snap.MicDevice, snap.ADCMax)
	case "replay":
		return sensor.NewReplay(snap.ReplayPath)
	default:
		return nil, fmt.Errorf("unknown sensor backend: %s", snap.SensorBackend)
	}
}

// buildSink constructs the output backend named in the config.
func buildSink(snap *config.Snapshot) (output.Sink, error) {
	switch snap.OutputBackend {
	case "gpio":
		return output.NewGPIO(snap.PWMPin)
	case "speaker":
		return output.NewSpeaker()
	case "null":
		return output.NewNull(), nil
	default:
		return nil, fmt.Errorf("unknown output backend: %s", snap.OutputBackend)
	}
}
