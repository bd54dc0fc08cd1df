package server

import (
	"log/slog"

	"github.com/kennelworks/hushd/internal/config"
	"github.com/kennelworks/hushd/internal/sensor"
	"github.com/kennelworks/hushd/internal/trace"
	"github.com/kennelworks/hushd/internal/types"
)

// --- Controller action handlers ---

// handleRecalibrate processes a controller/recalibrate command.
// Calibration takes a settle period plus the full sampling window, so the
// action runs async and reports the new threshold when done.
func (h *CommandHandler) handleRecalibrate(cmd WSCommand, send chan<- any) {
	HandleActionAsync(cmd, send, func() (any, error) {
		if err := h.controller.Recalibrate(); err != nil {
			return nil, err
		}
		return h.controller.Threshold(), nil
	})
}

// handleTestPlayback processes a controller/test-playback command.
func (h *CommandHandler) handleTestPlayback(cmd WSCommand, send chan<- any) {
	HandleActionAsync(cmd, send, func() (any, error) {
		return nil, h.controller.TestPlayback()
	})
}

// handleStopPlayback processes a controller/stop-playback command.
func (h *CommandHandler) handleStopPlayback(cmd WSCommand, send chan<- any) {
	h.controller.StopPlayback()
	SendSuccess(send, cmd.Type, nil)
}

// --- Sensor handlers ---

// handleSensorUpdate processes a sensor/update command.
func (h *CommandHandler) handleSensorUpdate(cmd WSCommand, send chan<- any) {
	HandleCommand(h, cmd, send, func(req *SensorUpdateRequest) error {
		if req.MicDevice == "" {
			return nil // No change requested
		}

		slog.Info("sensor/update: changing input device", "device", req.MicDevice)
		// The sampler is built at process start; the new device is picked
		// up on the next restart.
		return h.cfg.SetMicDevice(req.MicDevice)
	})
}

// --- Detection handlers ---

// handleDetectionUpdate processes a detection/update command.
func (h *CommandHandler) handleDetectionUpdate(cmd WSCommand, send chan<- any) {
	HandleCommand(h, cmd, send, func(req *DetectionUpdateRequest) error {
		if req.TriggerMs != nil {
			if err := h.cfg.SetTriggerMs(*req.TriggerMs); err != nil {
				return err
			}
		}
		return nil
	})
}

// --- Calibration handlers ---

// handleCalibrationUpdate processes a calibration/update command.
// The new floor applies on the next calibration run.
func (h *CommandHandler) handleCalibrationUpdate(cmd WSCommand, send chan<- any) {
	HandleCommand(h, cmd, send, func(req *CalibrationUpdateRequest) error {
		if req.MinThreshold != nil {
			if err := h.cfg.SetMinThreshold(*req.MinThreshold); err != nil {
				return err
			}
		}
		return nil
	})
}

// --- Playback handlers ---

// handlePlaybackUpdate processes a playback/update command.
func (h *CommandHandler) handlePlaybackUpdate(cmd WSCommand, send chan<- any) {
	HandleCommand(h, cmd, send, func(req *PlaybackUpdateRequest) error {
		if req.Asset != "" {
			if err := h.cfg.SetAsset(req.Asset); err != nil {
				return err
			}
		}
		if req.Volume != nil {
			if err := h.cfg.SetVolume(*req.Volume); err != nil {
				return err
			}
		}
		if req.MaxPlayMs != nil {
			if err := h.cfg.SetMaxPlayMs(*req.MaxPlayMs); err != nil {
				return err
			}
		}
		return nil
	})
}

// --- Trace handlers ---

// handleTracesUpdate processes a traces/update command.
func (h *CommandHandler) handleTracesUpdate(cmd WSCommand, send chan<- any) {
	HandleCommand(h, cmd, send, func(req *TracesUpdateRequest) error {
		snap := h.cfg.Snapshot()

		// Use current values as defaults if not provided
		enabled := snap.TracesEnabled
		retentionDays := snap.TraceRetentionDays

		if req.Enabled != nil {
			enabled = *req.Enabled
		}
		if req.RetentionDays != nil {
			retentionDays = *req.RetentionDays
		}

		return h.cfg.SetTraces(enabled, retentionDays)
	})
}

// handleS3Update processes a traces/s3/update command.
func (h *CommandHandler) handleS3Update(cmd WSCommand, send chan<- any) {
	HandleCommand(h, cmd, send, func(req *S3UpdateRequest) error {
		// Preserve the stored secret if not provided
		secret := req.SecretAccessKey
		if secret == "" {
			secret = h.cfg.Snapshot().S3SecretAccessKey
		}
		return h.cfg.SetS3Config(req.Endpoint, req.Bucket, req.AccessKeyID, secret)
	})
}

// handleS3Test processes a traces/s3/test command. It verifies the stored
// S3 settings by writing and deleting a probe object.
func (h *CommandHandler) handleS3Test(cmd WSCommand, send chan<- any) {
	HandleActionAsync(cmd, send, func() (any, error) {
		return nil, trace.TestS3Connection(h.cfg)
	})
}

// --- Notification handlers ---

// handleWebhookUpdate processes a notifications/webhook/update command.
func (h *CommandHandler) handleWebhookUpdate(cmd WSCommand, send chan<- any) {
	HandleCommand(h, cmd, send, func(req *WebhookUpdateRequest) error {
		return h.cfg.SetWebhookURL(req.URL)
	})
}

// handleLogUpdate processes a notifications/log/update command.
func (h *CommandHandler) handleLogUpdate(cmd WSCommand, send chan<- any) {
	HandleCommand(h, cmd, send, func(req *LogUpdateRequest) error {
		return h.cfg.SetLogPath(req.Path)
	})
}

// handleEmailUpdate processes a notifications/email/update command.
func (h *CommandHandler) handleEmailUpdate(cmd WSCommand, send chan<- any) {
	HandleCommand(h, cmd, send, func(req *EmailUpdateRequest) error {
		if err := h.cfg.SetGraphConfig(
			req.TenantID,
			req.ClientID,
			req.ClientSecret,
			req.FromAddress,
			req.Recipients,
		); err != nil {
			return err
		}
		h.notifier.InvalidateGraphClient()
		return nil
	})
}

// handleZabbixUpdate processes a notifications/zabbix/update command.
func (h *CommandHandler) handleZabbixUpdate(cmd WSCommand, send chan<- any) {
	HandleCommand(h, cmd, send, func(req *ZabbixUpdateRequest) error {
		return h.cfg.SetZabbixConfig(req.Server, req.Port, req.Host, req.Key)
	})
}

// handleNATSUpdate processes a notifications/nats/update command.
func (h *CommandHandler) handleNATSUpdate(cmd WSCommand, send chan<- any) {
	HandleCommand(h, cmd, send, func(req *NATSUpdateRequest) error {
		return h.cfg.SetNATSConfig(req.URL, req.Subject)
	})
}

// handlePushUpdate processes a notifications/push/update command.
func (h *CommandHandler) handlePushUpdate(cmd WSCommand, send chan<- any) {
	HandleCommand(h, cmd, send, func(req *PushUpdateRequest) error {
		// Preserve the stored private key if not provided
		private := req.PrivateKey
		if private == "" {
			private = h.cfg.Snapshot().PushPrivateKey
		}
		return h.cfg.SetPushConfig(req.PublicKey, private, req.Contact)
	})
}

// --- Config handlers ---

// handleConfigGet processes a config/get command.
func (h *CommandHandler) handleConfigGet(send chan<- any) {
	trySend(send, "config", types.WSConfigResponse{
		Type:   "config",
		Config: BuildConfigResponse(h.cfg),
	})
}

// BuildConfigResponse assembles the sanitized configuration view served to
// the frontend over both the WebSocket and the REST API.
func BuildConfigResponse(cfg *config.Config) types.APIConfigResponse {
	snap := cfg.Snapshot()

	devices, err := sensor.ListInputDevices()
	if err != nil {
		slog.Debug("input device listing unavailable", "error", err)
	}

	return types.APIConfigResponse{
		SensorBackend: snap.SensorBackend,
		MicDevice:     snap.MicDevice,
		ADCMax:        snap.ADCMax,
		Devices:       devices,

		SettleMs:     snap.SettleMs,
		Samples:      snap.Samples,
		IntervalMs:   snap.IntervalMs,
		Factor:       snap.Factor,
		MinThreshold: snap.MinThreshold,

		TriggerMs: snap.TriggerMs,
		TickMs:    snap.TickMs,

		MediaDir:  snap.MediaDir,
		Asset:     snap.Asset,
		Volume:    snap.Volume,
		MaxPlayMs: snap.MaxPlayMs,

		OutputBackend: snap.OutputBackend,

		Traces: types.TraceConfig{
			Enabled:       snap.TracesEnabled,
			RetentionDays: snap.TraceRetentionDays,
		},
		S3Endpoint:    snap.S3Endpoint,
		S3Bucket:      snap.S3Bucket,
		S3AccessKeyID: snap.S3AccessKeyID,
		S3HasSecret:   snap.S3SecretAccessKey != "",

		WebhookURL:       snap.WebhookURL,
		LogPath:          snap.LogPath,
		GraphTenantID:    snap.GraphTenantID,
		GraphClientID:    snap.GraphClientID,
		GraphFromAddress: snap.GraphFromAddress,
		GraphRecipients:  snap.GraphRecipients,
		GraphHasSecret:   snap.GraphClientSecret != "",
		ZabbixServer:     snap.ZabbixServer,
		ZabbixPort:       snap.ZabbixPort,
		ZabbixHost:       snap.ZabbixHost,
		ZabbixKey:        snap.ZabbixKey,
		NATSURL:          snap.NATSURL,
		NATSSubject:      snap.NATSSubject,
		PushPublicKey:    snap.PushPublicKey,
		PushHasKeys:      snap.PushPublicKey != "" && snap.PushPrivateKey != "",
		PushContact:      snap.PushContact,

		DeviceName: snap.DeviceName,
	}
}
