package server

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/kennelworks/hushd/internal/config"
	"github.com/kennelworks/hushd/internal/controller"
	"github.com/kennelworks/hushd/internal/notify"
)

// MaxLogEntries is the maximum number of episode log entries to return.
const MaxLogEntries = 100

// WSCommand is a command received from a WebSocket client.
type WSCommand struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// CommandHandler processes WebSocket commands.
type CommandHandler struct {
	cfg        *config.Config
	controller *controller.Controller
	notifier   *notify.Notifier
}

// NewCommandHandler creates a new command handler.
func NewCommandHandler(cfg *config.Config, ctrl *controller.Controller, notifier *notify.Notifier) *CommandHandler {
	return &CommandHandler{
		cfg:        cfg,
		controller: ctrl,
		notifier:   notifier,
	}
}

// Handle processes a WebSocket command and performs the requested action.
// Commands use slash-style format: namespace/action (e.g., "detection/update",
// "controller/recalibrate")
func (h *CommandHandler) Handle(cmd WSCommand, send chan<- any, triggerStatusUpdate func()) {
	// Parse command into namespace and action
	parts := strings.SplitN(cmd.Type, "/", 3)
	namespace := parts[0]
	action := ""
	if len(parts) > 1 {
		action = parts[1]
	}
	subaction := ""
	if len(parts) > 2 {
		subaction = parts[2]
	}

	switch namespace {
	case "controller":
		h.handleController(action, cmd, send)
	case "sensor":
		h.handleSensor(action, cmd, send)
	case "detection":
		h.handleDetection(action, cmd, send)
	case "calibration":
		h.handleCalibration(action, cmd, send)
	case "playback":
		h.handlePlayback(action, cmd, send)
	case "traces":
		h.handleTraces(action, subaction, cmd, send)
	case "notifications":
		h.handleNotifications(action, subaction, cmd, send)
	case "config":
		h.handleConfig(action, send)
	case "status":
		h.handleStatus(action)
	default:
		slog.Warn("unknown WebSocket command", "type", cmd.Type)
	}

	triggerStatusUpdate()
}

// --- Namespace handlers ---

// handleController routes controller/* commands
func (h *CommandHandler) handleController(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "recalibrate":
		h.handleRecalibrate(cmd, send)
	case "test-playback":
		h.handleTestPlayback(cmd, send)
	case "stop-playback":
		h.handleStopPlayback(cmd, send)
	default:
		slog.Warn("unknown controller action", "action", action)
	}
}

// handleSensor routes sensor/* commands
func (h *CommandHandler) handleSensor(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "update":
		h.handleSensorUpdate(cmd, send)
	default:
		slog.Warn("unknown sensor action", "action", action)
	}
}

// handleDetection routes detection/* commands
func (h *CommandHandler) handleDetection(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "update":
		h.handleDetectionUpdate(cmd, send)
	default:
		slog.Warn("unknown detection action", "action", action)
	}
}

// handleCalibration routes calibration/* commands
func (h *CommandHandler) handleCalibration(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "update":
		h.handleCalibrationUpdate(cmd, send)
	default:
		slog.Warn("unknown calibration action", "action", action)
	}
}

// handlePlayback routes playback/* commands
func (h *CommandHandler) handlePlayback(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "update":
		h.handlePlaybackUpdate(cmd, send)
	default:
		slog.Warn("unknown playback action", "action", action)
	}
}

// handleTraces routes traces/* and traces/s3/* commands
func (h *CommandHandler) handleTraces(action, subaction string, cmd WSCommand, send chan<- any) {
	switch action {
	case "update":
		h.handleTracesUpdate(cmd, send)
	case "s3":
		switch subaction {
		case "update":
			h.handleS3Update(cmd, send)
		case "test":
			h.handleS3Test(cmd, send)
		default:
			slog.Warn("unknown traces/s3 action", "subaction", subaction)
		}
	default:
		slog.Warn("unknown traces action", "action", action)
	}
}

// handleNotifications routes notifications/*/* commands
func (h *CommandHandler) handleNotifications(action, subaction string, cmd WSCommand, send chan<- any) {
	switch action {
	case "webhook":
		switch subaction {
		case "update":
			h.handleWebhookUpdate(cmd, send)
		case "test":
			h.handleTest(send, "test_webhook")
		default:
			slog.Warn("unknown webhook action", "subaction", subaction)
		}
	case "log":
		switch subaction {
		case "update":
			h.handleLogUpdate(cmd, send)
		case "test":
			h.handleTest(send, "test_log")
		case "view":
			h.handleViewNoiseLog(send)
		default:
			slog.Warn("unknown log action", "subaction", subaction)
		}
	case "email":
		switch subaction {
		case "update":
			h.handleEmailUpdate(cmd, send)
		case "test":
			h.handleTest(send, "test_email")
		default:
			slog.Warn("unknown email action", "subaction", subaction)
		}
	case "zabbix":
		switch subaction {
		case "update":
			h.handleZabbixUpdate(cmd, send)
		case "test":
			h.handleTest(send, "test_zabbix")
		default:
			slog.Warn("unknown zabbix action", "subaction", subaction)
		}
	case "nats":
		switch subaction {
		case "update":
			h.handleNATSUpdate(cmd, send)
		case "test":
			h.handleTest(send, "test_nats")
		default:
			slog.Warn("unknown nats action", "subaction", subaction)
		}
	case "push":
		switch subaction {
		case "update":
			h.handlePushUpdate(cmd, send)
		case "test":
			h.handleTest(send, "test_push")
		default:
			slog.Warn("unknown push action", "subaction", subaction)
		}
	default:
		slog.Warn("unknown notifications action", "action", action)
	}
}

// handleConfig routes config/* commands
func (h *CommandHandler) handleConfig(action string, send chan<- any) {
	switch action {
	case "get":
		h.handleConfigGet(send)
	default:
		slog.Warn("unknown config action", "action", action)
	}
}

// handleStatus routes status/* commands
func (h *CommandHandler) handleStatus(action string) {
	switch action {
	case "get":
		// Status is sent automatically, but explicit get triggers immediate update
		slog.Debug("status/get received, status update will be triggered")
	default:
		slog.Warn("unknown status action", "action", action)
	}
}
