package server

// Request types for WebSocket commands with validation tags.
// These types define the expected input for each command and use
// go-playground/validator struct tags for automatic validation.

// --- Sensor settings ---

// SensorUpdateRequest is the request body for sensor/update.
// The selected device takes effect the next time the controller starts.
type SensorUpdateRequest struct {
	MicDevice string `json:"mic_device" validate:"omitempty,max=256"`
}

// --- Detection settings ---

// DetectionUpdateRequest is the request body for detection/update.
type DetectionUpdateRequest struct {
	TriggerMs *int64 `json:"trigger_ms" validate:"omitempty,gte=100,lte=600000"`
}

// --- Calibration settings ---

// CalibrationUpdateRequest is the request body for calibration/update.
type CalibrationUpdateRequest struct {
	MinThreshold *int `json:"min_threshold" validate:"omitempty,gte=0,lte=4095"`
}

// --- Playback settings ---

// PlaybackUpdateRequest is the request body for playback/update.
type PlaybackUpdateRequest struct {
	Asset     string `json:"asset" validate:"omitempty,max=255"`
	Volume    *int   `json:"volume" validate:"omitempty,gte=0,lte=255"`
	MaxPlayMs *int64 `json:"max_play_ms" validate:"omitempty,gte=1000,lte=600000"`
}

// --- Trace settings ---

// TracesUpdateRequest is the request body for traces/update.
type TracesUpdateRequest struct {
	Enabled       *bool `json:"enabled"`
	RetentionDays *int  `json:"retention_days" validate:"omitempty,gte=1,lte=365"`
}

// S3UpdateRequest is the request body for traces/s3/update.
// An empty secret keeps the stored one so the dashboard never has to echo it.
type S3UpdateRequest struct {
	Endpoint        string `json:"endpoint" validate:"omitempty,max=2048"`
	Bucket          string `json:"bucket" validate:"omitempty,max=63"`
	AccessKeyID     string `json:"access_key_id" validate:"omitempty,max=128"`
	SecretAccessKey string `json:"secret_access_key" validate:"omitempty,max=256"`
}

// --- Notification settings ---

// WebhookUpdateRequest is the request body for notifications/webhook/update.
type WebhookUpdateRequest struct {
	URL string `json:"url" validate:"omitempty,max=2048"`
}

// LogUpdateRequest is the request body for notifications/log/update.
type LogUpdateRequest struct {
	Path string `json:"path" validate:"omitempty,max=4096"`
}

// EmailUpdateRequest is the request body for notifications/email/update.
type EmailUpdateRequest struct {
	TenantID     string `json:"tenant_id" validate:"omitempty,max=100"`
	ClientID     string `json:"client_id" validate:"omitempty,max=100"`
	ClientSecret string `json:"client_secret" validate:"omitempty,max=500"`
	FromAddress  string `json:"from_address" validate:"omitempty,max=254"`
	Recipients   string `json:"recipients" validate:"omitempty,max=1000"`
}

// ZabbixUpdateRequest is the request body for notifications/zabbix/update.
type ZabbixUpdateRequest struct {
	Server string `json:"server" validate:"omitempty,max=253"`
	Port   int    `json:"port" validate:"omitempty,gte=1,lte=65535"`
	Host   string `json:"host" validate:"omitempty,max=253"`
	Key    string `json:"key" validate:"omitempty,max=256"`
}

// NATSUpdateRequest is the request body for notifications/nats/update.
type NATSUpdateRequest struct {
	URL     string `json:"url" validate:"omitempty,max=2048"`
	Subject string `json:"subject" validate:"omitempty,max=256"`
}

// PushUpdateRequest is the request body for notifications/push/update.
type PushUpdateRequest struct {
	PublicKey  string `json:"public_key" validate:"omitempty,max=256"`
	PrivateKey string `json:"private_key" validate:"omitempty,max=256"`
	Contact    string `json:"contact" validate:"omitempty,startswith=mailto:,max=261"`
}
