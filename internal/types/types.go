// Package types provides shared type definitions used across the controller.
package types

import (
	"time"
)

// ControllerState represents the current state of the noise controller.
type ControllerState string

const (
	// StateStopped indicates the controller is not running.
	StateStopped ControllerState = "stopped"
	// StateCalibrating indicates the ambient threshold is being measured.
	StateCalibrating ControllerState = "calibrating"
	// StateMonitoring indicates the controller is sampling the sensor.
	StateMonitoring ControllerState = "monitoring"
	// StatePlaying indicates the calming track is being played.
	StatePlaying ControllerState = "playing"
	// StateHalted indicates a fatal boot failure; requires restart.
	StateHalted ControllerState = "halted"
)

// PlaybackOutcome describes how a playback run ended.
type PlaybackOutcome string

const (
	// OutcomeCompleted indicates the track played to the end.
	OutcomeCompleted PlaybackOutcome = "completed"
	// OutcomeCancelled indicates the cancel source stopped playback.
	OutcomeCancelled PlaybackOutcome = "cancelled"
	// OutcomeCapped indicates the maximum play duration was reached.
	OutcomeCapped PlaybackOutcome = "capped"
	// OutcomeFailed indicates playback ended on a recoverable error.
	OutcomeFailed PlaybackOutcome = "failed"
)

const (
	// InitialRetryDelay is the starting delay between calibration retries.
	InitialRetryDelay = 3000 * time.Millisecond
	// MaxRetryDelay is the maximum delay between calibration retries.
	MaxRetryDelay = 60000 * time.Millisecond
	// MaxCalibrationRetries is the maximum number of calibration attempts.
	MaxCalibrationRetries = 10
)

const (
	// ShutdownTimeout is the duration to wait for graceful shutdown.
	ShutdownTimeout = 3000 * time.Millisecond
)

// Sensor and output scale constants.
const (
	// DefaultADCMax is the highest raw value a 12-bit sensor produces.
	DefaultADCMax = 4095
	// ADCMax10Bit is the highest raw value a 10-bit sensor produces.
	ADCMax10Bit = 1023
	// OutputMax is the highest level the output stage accepts.
	OutputMax = 255
)

// Episode represents one noise episode from trigger to playback end.
type Episode struct {
	ID           int64           `json:"id"`                   // History row ID (0 until stored)
	StartedAt    time.Time       `json:"started_at"`           // Trigger time
	TriggerLevel int             `json:"trigger_level"`        // Raw sample that completed the debounce
	Threshold    int             `json:"threshold"`            // Threshold in effect
	RisingMs     int64           `json:"rising_ms"`            // Time above threshold before the trigger
	Outcome      PlaybackOutcome `json:"outcome"`              // How playback ended
	Reason       string          `json:"reason,omitempty"`     // Failure class or cap/cancel detail
	DurationMs   int64           `json:"duration_ms"`          // Playback elapsed time
	BytesPlayed  int64           `json:"bytes_played"`         // Body bytes written to the output
	TracePath    string          `json:"trace_path,omitempty"` // Episode trace file, if captured
	TraceSize    int64           `json:"trace_size,omitempty"` // Trace file size in bytes
	Uploaded     bool            `json:"uploaded,omitempty"`   // Trace uploaded to S3
}

// ThresholdInfo describes the result of the last calibration.
type ThresholdInfo struct {
	Threshold    int       `json:"threshold"`              // round(mean * factor), possibly clamped
	Mean         float64   `json:"mean"`                   // Mean of the calibration window
	Samples      int       `json:"samples"`                // Number of samples taken
	Clamped      bool      `json:"clamped,omitzero"`       // True if raised to the minimum threshold
	CalibratedAt time.Time `json:"calibrated_at,omitzero"` // When calibration finished
}

// SensorLevels contains current sensor level measurements.
type SensorLevels struct {
	Raw       int     `json:"raw"`                // Most recent raw sample
	Average   float64 `json:"average"`            // Rolling average over the meter window
	Peak      int     `json:"peak"`               // Peak-held raw value
	Percent   float64 `json:"percent"`            // Raw sample as a percentage of the ADC range
	Threshold int     `json:"threshold"`          // Current detection threshold
	Loud      bool    `json:"loud,omitzero"`      // True while above the threshold
	RisingMs  int64   `json:"rising_ms,omitzero"` // How long the level has been above threshold
}

// ControllerStatus contains a summary of the controller's operational state.
type ControllerStatus struct {
	State      ControllerState `json:"state"`                // Current controller state
	Uptime     string          `json:"uptime,omitzero"`      // Time since start
	LastError  string          `json:"last_error,omitzero"`  // Most recent error
	HaltReason string          `json:"halt_reason,omitzero"` // Why the controller halted
	Threshold  ThresholdInfo   `json:"threshold"`            // Last calibration result
	Episodes   int64           `json:"episodes"`             // Episodes since start
	Playing    bool            `json:"playing,omitzero"`     // Playback in progress
	PlayingFor string          `json:"playing_for,omitzero"` // Elapsed playback time
}

// Device represents an available sensor input device.
type Device struct {
	ID   string `json:"id"`   // Device identifier
	Name string `json:"name"` // Device display name
}

// WSStatusResponse is sent to clients with full controller status.
type WSStatusResponse struct {
	Type          string           `json:"type"`                    // Message type identifier
	Controller    ControllerStatus `json:"controller"`              // Controller status
	DeviceName    string           `json:"device_name"`             // Configured device name
	SensorBackend string           `json:"sensor_backend"`          // Active sampler backend
	OutputBackend string           `json:"output_backend"`          // Active sink backend
	Asset         string           `json:"asset"`                   // Configured calming track
	TriggerMs     int64            `json:"trigger_ms"`              // Debounce duration
	MaxPlayMs     int64            `json:"max_play_ms"`             // Playback duration cap
	Volume        int              `json:"volume"`                  // Output volume ceiling
	WebhookURL    string           `json:"webhook_url"`             // Webhook for alerts
	LogPath       string           `json:"log_path"`                // Episode log file path
	ZabbixServer  string           `json:"zabbix_server,omitempty"` // Zabbix server address
	ZabbixPort    int              `json:"zabbix_port,omitempty"`   // Zabbix server port
	ZabbixHost    string           `json:"zabbix_host,omitempty"`   // Zabbix host name
	ZabbixKey     string           `json:"zabbix_key,omitempty"`    // Zabbix item key
	GraphTenantID string           `json:"graph_tenant_id"`         // Azure AD tenant ID
	GraphClientID string           `json:"graph_client_id"`         // App registration client ID
	GraphFrom     string           `json:"graph_from_address"`      // Shared mailbox address
	GraphTo       string           `json:"graph_recipients"`        // Comma-separated recipients
	GraphExpiry   SecretExpiryInfo `json:"graph_secret_expiry"`     // Client secret expiration info
	NATSURL       string           `json:"nats_url,omitempty"`      // Fleet telemetry server
	NATSSubject   string           `json:"nats_subject,omitempty"`  // Fleet telemetry subject
	Traces        TraceConfig      `json:"traces"`                  // Episode trace configuration
	Devices       []Device         `json:"devices"`                 // Available sensor input devices
	Version       VersionInfo      `json:"version"`                 // Version information
}

// WSLevelsResponse is sent to clients with sensor level updates.
type WSLevelsResponse struct {
	Type   string       `json:"type"`   // Message type identifier
	Levels SensorLevels `json:"levels"` // Current sensor levels
}

// WSTestResult is sent to clients after a test operation completes.
type WSTestResult struct {
	Type     string `json:"type"`            // Message type identifier
	TestType string `json:"test_type"`       // Type of test performed
	Success  bool   `json:"success"`         // Test succeeded
	Error    string `json:"error,omitempty"` // Error message if failed
}

// WSNoiseLogResult is sent to clients with episode log entries.
type WSNoiseLogResult struct {
	Type    string          `json:"type"`              // Message type identifier
	Success bool            `json:"success"`           // Operation succeeded
	Error   string          `json:"error,omitempty"`   // Error message if failed
	Entries []NoiseLogEntry `json:"entries,omitempty"` // Log entries
	Path    string          `json:"path,omitempty"`    // Log file path
}

// TraceConfig contains configuration for episode trace capture.
type TraceConfig struct {
	Enabled       bool `json:"enabled"`        // Whether trace capture is active
	RetentionDays int  `json:"retention_days"` // Days to keep trace files
}

// DefaultTraceRetentionDays is the default number of days to keep episode traces.
const DefaultTraceRetentionDays = 14

// NoiseLogEntry represents a single entry in the episode log file.
type NoiseLogEntry struct {
	Timestamp string `json:"timestamp"`            // RFC3339 timestamp
	Event     string `json:"event"`                // Event type (noise_trigger, playback_end)
	Level     int    `json:"level,omitempty"`      // Raw sample at the trigger
	Threshold int    `json:"threshold"`            // Threshold in effect
	RisingMs  int64  `json:"rising_ms,omitempty"`  // Debounce duration before the trigger
	Outcome   string `json:"outcome,omitempty"`    // Playback outcome (playback_end only)
	Reason    string `json:"reason,omitempty"`     // Failure class or cap/cancel detail
	PlayedMs  int64  `json:"played_ms,omitempty"`  // Playback elapsed time
	Bytes     int64  `json:"bytes,omitempty"`      // Body bytes written
	TracePath string `json:"trace_path,omitempty"` // Episode trace file
	TraceSize int64  `json:"trace_size,omitempty"` // Trace file size in bytes
}

// GraphConfig contains Microsoft Graph API settings for email notifications.
type GraphConfig struct {
	TenantID     string `json:"tenant_id,omitempty"`     // Azure AD tenant ID
	ClientID     string `json:"client_id,omitempty"`     // App registration client ID
	ClientSecret string `json:"client_secret,omitempty"` // App registration client secret
	FromAddress  string `json:"from_address,omitempty"`  // Shared mailbox address (sender)
	Recipients   string `json:"recipients,omitempty"`    // Comma-separated recipients
}

// ZabbixConfig contains settings for sending trapper items to a Zabbix server.
type ZabbixConfig struct {
	Server string `json:"server,omitempty"`
	Port   int    `json:"port,omitempty"`
	Host   string `json:"host,omitempty"`
	Key    string `json:"key,omitempty"`
}

// PushConfig contains Web Push (VAPID) settings for browser notifications.
type PushConfig struct {
	PublicKey  string `json:"public_key,omitempty"`  // VAPID public key
	PrivateKey string `json:"private_key,omitempty"` // VAPID private key
	Contact    string `json:"contact,omitempty"`     // mailto: contact for the push service
}

// SecretExpiryInfo contains client secret expiration data.
type SecretExpiryInfo struct {
	ExpiresAt   string `json:"expires_at,omitempty"`   // RFC3339 expiration timestamp
	ExpiresSoon bool   `json:"expires_soon,omitempty"` // True if expires within 30 days
	DaysLeft    int    `json:"days_left,omitempty"`    // Days until expiration
	Error       string `json:"error,omitempty"`        // Error message if check failed
}

// VersionInfo contains version comparison data.
type VersionInfo struct {
	Current     string `json:"current"`              // Current version
	Latest      string `json:"latest,omitempty"`     // Latest available version
	UpdateAvail bool   `json:"update_available"`     // Update is available
	Commit      string `json:"commit,omitempty"`     // Git commit hash
	BuildTime   string `json:"build_time,omitempty"` // Build timestamp
}
