package types

// WSConfigResponse is sent in response to config/get.
// Contains the full configuration without runtime state.
type WSConfigResponse struct {
	Type   string      `json:"type"` // "config"
	Config interface{} `json:"config"`
}

// WSCommandResult is the standard response for command execution.
type WSCommandResult struct {
	Type    string           `json:"type"`            // "<command>_result"
	Success bool             `json:"success"`         // true if command succeeded
	Error   *ValidationError `json:"error,omitempty"` // Validation errors if failed
	Data    interface{}      `json:"data,omitempty"`  // Optional response data
}

// APIConfigResponse is the sanitized configuration view for the frontend.
// Secrets are reported as presence flags, never echoed back.
type APIConfigResponse struct {
	// Sensor
	SensorBackend string   `json:"sensor_backend"` // Active sampler backend
	MicDevice     string   `json:"mic_device"`     // Selected input device (mic backend)
	ADCMax        int      `json:"adc_max"`        // Sensor raw value ceiling
	Devices       []Device `json:"devices"`        // Available input devices

	// Calibration
	SettleMs     int64   `json:"settle_ms"`     // Quiet period before sampling
	Samples      int     `json:"samples"`       // Calibration sample count
	IntervalMs   int64   `json:"interval_ms"`   // Delay between calibration samples
	Factor       float64 `json:"factor"`        // Threshold multiplier
	MinThreshold int     `json:"min_threshold"` // Threshold floor

	// Detection
	TriggerMs int64 `json:"trigger_ms"` // Debounce window
	TickMs    int64 `json:"tick_ms"`    // Monitor tick interval

	// Playback
	MediaDir  string `json:"media_dir"`   // Calming track directory
	Asset     string `json:"asset"`       // Track filename
	Volume    int    `json:"volume"`      // Output level ceiling
	MaxPlayMs int64  `json:"max_play_ms"` // Playback duration cap

	// Output
	OutputBackend string `json:"output_backend"` // Active sink backend

	// Traces
	Traces        TraceConfig `json:"traces"`           // Trace capture settings
	S3Endpoint    string      `json:"s3_endpoint"`      // Trace upload endpoint
	S3Bucket      string      `json:"s3_bucket"`        // Trace upload bucket
	S3AccessKeyID string      `json:"s3_access_key_id"` // Trace upload access key
	S3HasSecret   bool        `json:"s3_has_secret"`    // Secret key is stored

	// Notifications
	WebhookURL       string `json:"webhook_url"`        // Webhook for alerts
	LogPath          string `json:"log_path"`           // Episode log file
	GraphTenantID    string `json:"graph_tenant_id"`    // Azure AD tenant ID
	GraphClientID    string `json:"graph_client_id"`    // App registration client ID
	GraphFromAddress string `json:"graph_from_address"` // Shared mailbox address
	GraphRecipients  string `json:"graph_recipients"`   // Comma-separated recipients
	GraphHasSecret   bool   `json:"graph_has_secret"`   // Client secret is stored
	ZabbixServer     string `json:"zabbix_server"`      // Zabbix server address
	ZabbixPort       int    `json:"zabbix_port"`        // Zabbix trapper port
	ZabbixHost       string `json:"zabbix_host"`        // Monitored host name
	ZabbixKey        string `json:"zabbix_key"`         // Trapper item key
	NATSURL          string `json:"nats_url"`           // Fleet telemetry server
	NATSSubject      string `json:"nats_subject"`       // Fleet telemetry subject
	PushPublicKey    string `json:"push_public_key"`    // VAPID public key
	PushHasKeys      bool   `json:"push_has_keys"`      // VAPID key pair is stored
	PushContact      string `json:"push_contact"`       // Push service contact

	// Branding
	DeviceName string `json:"device_name"` // Device display name
}
