// Package config provides application configuration management.
package config

import (
	"cmp"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/kennelworks/hushd/internal/types"
	"github.com/kennelworks/hushd/internal/util"
)

// Configuration defaults are used when values are not specified.
const (
	DefaultWebPort          = 8080
	DefaultWebUsername      = "admin"
	DefaultWebPassword      = "hushd"
	DefaultDeviceName       = "Hushd"
	DefaultDeviceColorLight = "#2F7D5D"
	DefaultDeviceColorDark  = "#3FA87C"

	DefaultSensorBackend = "mic"
	DefaultADCMax        = types.DefaultADCMax
	DefaultSPIChannel    = 0

	DefaultSettleMs              = 1000
	DefaultCalibrationSamples    = 100
	DefaultCalibrationIntervalMs = 10
	DefaultCalibrationFactor     = 2.5
	DefaultMinThreshold          = 50

	DefaultTriggerMs = 2000
	DefaultTickMs    = 10

	DefaultMediaDir      = "/media/hushd"
	DefaultAsset         = "calm.wav"
	DefaultVolume        = 180
	DefaultChunkBytes    = 512
	DefaultSampleDelayUs = 125
	DefaultMaxPlayMs     = 30000

	DefaultOutputBackend = "speaker"
	DefaultPWMPin        = 18

	DefaultTraceDir         = "/var/lib/hushd/traces"
	DefaultTracePreSeconds  = 10
	DefaultTracePostSeconds = 5

	DefaultHistoryPath = "/var/lib/hushd/history.db"
)

// Validation patterns define regular expressions for configuration value validation.
var (
	// Device name: any printable characters except control chars (blocks CRLF injection in emails)
	deviceNamePattern  = regexp.MustCompile(`^[^\x00-\x1F\x7F]+$`)
	deviceColorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)
)

// Known backend identifiers.
var (
	sensorBackends = map[string]bool{"spi": true, "mic": true, "replay": true}
	outputBackends = map[string]bool{"gpio": true, "speaker": true, "null": true}
)

// SystemConfig holds system-level settings that require restart.
type SystemConfig struct {
	Port        int    `json:"port"`         // HTTP server port
	Username    string `json:"username"`     // Login username
	Password    string `json:"password"`     // Login password
	HistoryPath string `json:"history_path"` // SQLite episode history database
}

// WebConfig holds device branding settings.
type WebConfig struct {
	DeviceName string `json:"device_name"` // Device display name
	ColorLight string `json:"color_light"` // Theme color for light mode (#RRGGBB)
	ColorDark  string `json:"color_dark"`  // Theme color for dark mode (#RRGGBB)
}

// SensorConfig holds sensor input settings.
type SensorConfig struct {
	Backend    string `json:"backend"`               // spi, mic or replay
	ADCMax     int    `json:"adc_max"`               // Highest raw value the sensor produces
	SPIChannel int    `json:"spi_channel"`           // MCP3008 channel (spi backend)
	MicDevice  string `json:"mic_device,omitempty"`  // Input device identifier (mic backend)
	ReplayPath string `json:"replay_path,omitempty"` // Sample file (replay backend)
}

// CalibrationConfig holds ambient threshold calibration parameters.
type CalibrationConfig struct {
	SettleMs     int64   `json:"settle_ms"`     // Quiet period before sampling starts
	Samples      int     `json:"samples"`       // Number of calibration samples
	IntervalMs   int64   `json:"interval_ms"`   // Delay between calibration samples
	Factor       float64 `json:"factor"`        // Threshold multiplier over the ambient mean
	MinThreshold int     `json:"min_threshold"` // Floor for the computed threshold
}

// DetectionConfig holds noise detection timing parameters.
type DetectionConfig struct {
	TriggerMs int64 `json:"trigger_ms"` // Sustained time above threshold before a trigger
	TickMs    int64 `json:"tick_ms"`    // Monitor loop tick interval
}

// PlaybackConfig holds calming track playback settings.
type PlaybackConfig struct {
	MediaDir      string `json:"media_dir"`       // Directory holding the calming track
	Asset         string `json:"asset"`           // Track filename within the media directory
	Volume        int    `json:"volume"`          // Output level ceiling (0-255)
	ChunkBytes    int    `json:"chunk_bytes"`     // Bytes read from the asset per chunk
	SampleDelayUs int64  `json:"sample_delay_us"` // Pacing delay per sample (125us = ~8kHz)
	MaxPlayMs     int64  `json:"max_play_ms"`     // Hard cap on playback duration
}

// OutputConfig holds output stage settings.
type OutputConfig struct {
	Backend       string `json:"backend"`         // gpio, speaker or null
	PWMPin        int    `json:"pwm_pin"`         // PWM output pin (gpio backend)
	StopButtonPin int    `json:"stop_button_pin"` // Cancel button input pin (0 = disabled)
}

// TracesConfig holds episode trace capture settings.
type TracesConfig struct {
	Enabled       bool   `json:"enabled"`        // Whether trace capture is active
	Dir           string `json:"dir"`            // Directory for trace files
	PreSeconds    int    `json:"pre_seconds"`    // Sensor history kept before the trigger
	PostSeconds   int    `json:"post_seconds"`   // Sensor tail captured after playback
	RetentionDays int    `json:"retention_days"` // Days to keep trace files
}

// S3Config holds S3-compatible storage settings for trace upload.
type S3Config struct {
	Endpoint        string `json:"endpoint,omitempty"`          // Custom S3 endpoint (empty for AWS)
	Bucket          string `json:"bucket,omitempty"`            // S3 bucket name
	AccessKeyID     string `json:"access_key_id,omitempty"`     // Access key ID
	SecretAccessKey string `json:"secret_access_key,omitempty"` // Secret access key
}

// WebhookConfig holds webhook notification settings.
type WebhookConfig struct {
	URL string `json:"url"` // Webhook URL for noise alerts
}

// LogConfig holds episode log file settings.
type LogConfig struct {
	Path string `json:"path"` // Log file path for noise events
}

// EmailConfig holds Microsoft Graph email notification settings.
type EmailConfig struct {
	TenantID     string `json:"tenant_id"`     // Azure AD tenant ID
	ClientID     string `json:"client_id"`     // App registration client ID
	ClientSecret string `json:"client_secret"` // App registration client secret
	FromAddress  string `json:"from_address"`  // Shared mailbox sender address
	Recipients   string `json:"recipients"`    // Comma-separated recipient addresses
}

// ZabbixNotifyConfig holds Zabbix trapper settings.
type ZabbixNotifyConfig struct {
	Server string `json:"server"` // Zabbix server address
	Port   int    `json:"port"`   // Zabbix trapper port
	Host   string `json:"host"`   // Monitored host name
	Key    string `json:"key"`    // Trapper item key
}

// NATSConfig holds fleet telemetry settings.
type NATSConfig struct {
	URL     string `json:"url"`     // NATS server URL
	Subject string `json:"subject"` // Publish subject for episode events
}

// PushNotifyConfig holds Web Push (VAPID) settings.
type PushNotifyConfig struct {
	PublicKey  string `json:"public_key"`  // VAPID public key
	PrivateKey string `json:"private_key"` // VAPID private key
	Contact    string `json:"contact"`     // mailto: contact for the push service
}

// NotificationsConfig holds all notification channel settings.
type NotificationsConfig struct {
	Webhook WebhookConfig      `json:"webhook"` // Webhook settings
	Log     LogConfig          `json:"log"`     // Log file settings
	Email   EmailConfig        `json:"email"`   // Email settings
	Zabbix  ZabbixNotifyConfig `json:"zabbix"`  // Zabbix settings
	NATS    NATSConfig         `json:"nats"`    // Fleet telemetry settings
	Push    PushNotifyConfig   `json:"push"`    // Web Push settings
}

// Config holds all application configuration. It is safe for concurrent use.
type Config struct {
	System        SystemConfig        `json:"system"`
	Web           WebConfig           `json:"web"`
	Sensor        SensorConfig        `json:"sensor"`
	Calibration   CalibrationConfig   `json:"calibration"`
	Detection     DetectionConfig     `json:"detection"`
	Playback      PlaybackConfig      `json:"playback"`
	Output        OutputConfig        `json:"output"`
	Traces        TracesConfig        `json:"traces"`
	S3            S3Config            `json:"s3"`
	Notifications NotificationsConfig `json:"notifications"`

	mu       sync.RWMutex
	filePath string
}

// New creates a new Config with default values.
func New(filePath string) *Config {
	return &Config{
		System: SystemConfig{
			Port:        DefaultWebPort,
			Username:    DefaultWebUsername,
			Password:    DefaultWebPassword,
			HistoryPath: DefaultHistoryPath,
		},
		Web: WebConfig{
			DeviceName: DefaultDeviceName,
			ColorLight: DefaultDeviceColorLight,
			ColorDark:  DefaultDeviceColorDark,
		},
		Sensor: SensorConfig{
			Backend: DefaultSensorBackend,
			ADCMax:  DefaultADCMax,
		},
		Calibration: CalibrationConfig{
			SettleMs:     DefaultSettleMs,
			Samples:      DefaultCalibrationSamples,
			IntervalMs:   DefaultCalibrationIntervalMs,
			Factor:       DefaultCalibrationFactor,
			MinThreshold: DefaultMinThreshold,
		},
		Detection: DetectionConfig{
			TriggerMs: DefaultTriggerMs,
			TickMs:    DefaultTickMs,
		},
		Playback: PlaybackConfig{
			MediaDir:      DefaultMediaDir,
			Asset:         DefaultAsset,
			Volume:        DefaultVolume,
			ChunkBytes:    DefaultChunkBytes,
			SampleDelayUs: DefaultSampleDelayUs,
			MaxPlayMs:     DefaultMaxPlayMs,
		},
		Output: OutputConfig{
			Backend: DefaultOutputBackend,
			PWMPin:  DefaultPWMPin,
		},
		Traces: TracesConfig{
			Dir:           DefaultTraceDir,
			PreSeconds:    DefaultTracePreSeconds,
			PostSeconds:   DefaultTracePostSeconds,
			RetentionDays: types.DefaultTraceRetentionDays,
		},
		filePath: filePath,
	}
}

// Load reads config from file, creating a default if none exists.
func (c *Config) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.filePath)
	if os.IsNotExist(err) {
		return c.saveLocked()
	}
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	if err := json.Unmarshal(data, c); err != nil {
		return util.WrapError("parse config", err)
	}

	c.applyDefaults()

	if err := c.validate(); err != nil {
		return err
	}

	return nil
}

// validate checks all configuration fields for correctness.
func (c *Config) validate() error {
	name := c.Web.DeviceName
	if name == "" || len(name) > 30 || !deviceNamePattern.MatchString(name) {
		return fmt.Errorf("invalid device_name %q: must be 1-30 printable characters", name)
	}
	if !deviceColorPattern.MatchString(c.Web.ColorLight) {
		return fmt.Errorf("invalid color_light %q: must be hex format (#RRGGBB)", c.Web.ColorLight)
	}
	if !deviceColorPattern.MatchString(c.Web.ColorDark) {
		return fmt.Errorf("invalid color_dark %q: must be hex format (#RRGGBB)", c.Web.ColorDark)
	}
	if !sensorBackends[c.Sensor.Backend] {
		return fmt.Errorf("invalid sensor backend %q: must be spi, mic or replay", c.Sensor.Backend)
	}
	if !outputBackends[c.Output.Backend] {
		return fmt.Errorf("invalid output backend %q: must be gpio, speaker or null", c.Output.Backend)
	}
	if c.Sensor.ADCMax <= 0 {
		return fmt.Errorf("invalid adc_max %d: must be positive", c.Sensor.ADCMax)
	}
	if c.Calibration.Factor <= 0 {
		return fmt.Errorf("invalid calibration factor %v: must be positive", c.Calibration.Factor)
	}
	if c.Calibration.Samples <= 0 {
		return fmt.Errorf("invalid calibration samples %d: must be positive", c.Calibration.Samples)
	}
	if c.Detection.TriggerMs <= 0 {
		return fmt.Errorf("invalid trigger_ms %d: must be positive", c.Detection.TriggerMs)
	}
	if c.Playback.Volume < 0 || c.Playback.Volume > types.OutputMax {
		return fmt.Errorf("invalid volume %d: must be 0-%d", c.Playback.Volume, types.OutputMax)
	}
	if err := util.ValidatePath("media_dir", c.Playback.MediaDir); err != nil {
		return err
	}
	if c.Traces.Enabled {
		if err := util.ValidatePath("traces.dir", c.Traces.Dir); err != nil {
			return err
		}
	}
	return nil
}

// applyDefaults sets default values for zero-value fields.
func (c *Config) applyDefaults() {
	// System defaults
	if c.System.Port == 0 {
		c.System.Port = DefaultWebPort
	}
	if c.System.Username == "" {
		c.System.Username = DefaultWebUsername
	}
	if c.System.Password == "" {
		c.System.Password = DefaultWebPassword
	}
	if c.System.HistoryPath == "" {
		c.System.HistoryPath = DefaultHistoryPath
	}
	// Web defaults
	if c.Web.DeviceName == "" {
		c.Web.DeviceName = DefaultDeviceName
	}
	if c.Web.ColorLight == "" {
		c.Web.ColorLight = DefaultDeviceColorLight
	}
	if c.Web.ColorDark == "" {
		c.Web.ColorDark = DefaultDeviceColorDark
	}
	// Sensor defaults
	if c.Sensor.Backend == "" {
		c.Sensor.Backend = DefaultSensorBackend
	}
	if c.Sensor.ADCMax == 0 {
		c.Sensor.ADCMax = DefaultADCMax
	}
	// Calibration defaults
	if c.Calibration.SettleMs == 0 {
		c.Calibration.SettleMs = DefaultSettleMs
	}
	if c.Calibration.Samples == 0 {
		c.Calibration.Samples = DefaultCalibrationSamples
	}
	if c.Calibration.IntervalMs == 0 {
		c.Calibration.IntervalMs = DefaultCalibrationIntervalMs
	}
	if c.Calibration.Factor == 0 {
		c.Calibration.Factor = DefaultCalibrationFactor
	}
	if c.Calibration.MinThreshold == 0 {
		c.Calibration.MinThreshold = DefaultMinThreshold
	}
	// Detection defaults
	if c.Detection.TriggerMs == 0 {
		c.Detection.TriggerMs = DefaultTriggerMs
	}
	if c.Detection.TickMs == 0 {
		c.Detection.TickMs = DefaultTickMs
	}
	// Playback defaults
	if c.Playback.MediaDir == "" {
		c.Playback.MediaDir = DefaultMediaDir
	}
	if c.Playback.Asset == "" {
		c.Playback.Asset = DefaultAsset
	}
	if c.Playback.Volume == 0 {
		c.Playback.Volume = DefaultVolume
	}
	if c.Playback.ChunkBytes == 0 {
		c.Playback.ChunkBytes = DefaultChunkBytes
	}
	if c.Playback.SampleDelayUs == 0 {
		c.Playback.SampleDelayUs = DefaultSampleDelayUs
	}
	if c.Playback.MaxPlayMs == 0 {
		c.Playback.MaxPlayMs = DefaultMaxPlayMs
	}
	// Output defaults
	if c.Output.Backend == "" {
		c.Output.Backend = DefaultOutputBackend
	}
	if c.Output.PWMPin == 0 {
		c.Output.PWMPin = DefaultPWMPin
	}
	// Trace defaults
	if c.Traces.Dir == "" {
		c.Traces.Dir = DefaultTraceDir
	}
	if c.Traces.PreSeconds == 0 {
		c.Traces.PreSeconds = DefaultTracePreSeconds
	}
	if c.Traces.PostSeconds == 0 {
		c.Traces.PostSeconds = DefaultTracePostSeconds
	}
	if c.Traces.RetentionDays == 0 {
		c.Traces.RetentionDays = types.DefaultTraceRetentionDays
	}
	// Zabbix default trapper port
	if c.Notifications.Zabbix.Port == 0 {
		c.Notifications.Zabbix.Port = 10051
	}
}

// saveLocked persists configuration. Caller must hold c.mu.
func (c *Config) saveLocked() error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return util.WrapError("marshal config", err)
	}

	dir := filepath.Dir(c.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return util.WrapError("create config directory", err)
	}

	if err := os.WriteFile(c.filePath, data, 0o600); err != nil {
		return util.WrapError("write config", err)
	}

	return nil
}

// --- Getters for individual settings ---

// LogPath returns the configured episode log file path.
func (c *Config) LogPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Notifications.Log.Path
}

// GraphConfig returns a copy of the current Graph/Email configuration.
func (c *Config) GraphConfig() types.GraphConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return types.GraphConfig{
		TenantID:     c.Notifications.Email.TenantID,
		ClientID:     c.Notifications.Email.ClientID,
		ClientSecret: c.Notifications.Email.ClientSecret,
		FromAddress:  c.Notifications.Email.FromAddress,
		Recipients:   c.Notifications.Email.Recipients,
	}
}

// --- Setters for individual settings ---

// SetMicDevice updates the microphone input device and saves the configuration.
func (c *Config) SetMicDevice(device string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Sensor.MicDevice = device
	return c.saveLocked()
}

// SetTriggerMs updates the debounce duration and saves the configuration.
func (c *Config) SetTriggerMs(ms int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Detection.TriggerMs = ms
	return c.saveLocked()
}

// SetVolume updates the output level ceiling and saves the configuration.
func (c *Config) SetVolume(volume int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Playback.Volume = volume
	return c.saveLocked()
}

// SetMaxPlayMs updates the playback duration cap and saves the configuration.
func (c *Config) SetMaxPlayMs(ms int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Playback.MaxPlayMs = ms
	return c.saveLocked()
}

// SetAsset updates the calming track filename and saves the configuration.
func (c *Config) SetAsset(asset string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Playback.Asset = asset
	return c.saveLocked()
}

// SetMinThreshold updates the calibration floor and saves the configuration.
func (c *Config) SetMinThreshold(threshold int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calibration.MinThreshold = threshold
	return c.saveLocked()
}

// SetWebhookURL updates the webhook URL and saves the configuration.
func (c *Config) SetWebhookURL(url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Notifications.Webhook.URL = url
	return c.saveLocked()
}

// SetLogPath updates the episode log file path and saves the configuration.
func (c *Config) SetLogPath(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Notifications.Log.Path = path
	return c.saveLocked()
}

// SetGraphConfig updates all Microsoft Graph/Email configuration fields and saves.
func (c *Config) SetGraphConfig(tenantID, clientID, clientSecret, fromAddress, recipients string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Notifications.Email.TenantID = tenantID
	c.Notifications.Email.ClientID = clientID
	c.Notifications.Email.ClientSecret = clientSecret
	c.Notifications.Email.FromAddress = fromAddress
	c.Notifications.Email.Recipients = recipients
	return c.saveLocked()
}

// SetZabbixConfig updates all Zabbix configuration fields and saves.
func (c *Config) SetZabbixConfig(server string, port int, host, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Notifications.Zabbix.Server = server
	c.Notifications.Zabbix.Port = port
	c.Notifications.Zabbix.Host = host
	c.Notifications.Zabbix.Key = key
	return c.saveLocked()
}

// SetNATSConfig updates the fleet telemetry settings and saves.
func (c *Config) SetNATSConfig(url, subject string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Notifications.NATS.URL = url
	c.Notifications.NATS.Subject = subject
	return c.saveLocked()
}

// SetPushConfig updates the Web Push VAPID settings and saves.
func (c *Config) SetPushConfig(publicKey, privateKey, contact string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Notifications.Push.PublicKey = publicKey
	c.Notifications.Push.PrivateKey = privateKey
	c.Notifications.Push.Contact = contact
	return c.saveLocked()
}

// SetTraces updates episode trace capture settings and saves.
func (c *Config) SetTraces(enabled bool, retentionDays int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Traces.Enabled = enabled
	if retentionDays > 0 {
		c.Traces.RetentionDays = retentionDays
	}
	return c.saveLocked()
}

// SetS3Config updates the trace upload storage settings and saves.
func (c *Config) SetS3Config(endpoint, bucket, accessKeyID, secretAccessKey string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.S3.Endpoint = endpoint
	c.S3.Bucket = bucket
	c.S3.AccessKeyID = accessKeyID
	c.S3.SecretAccessKey = secretAccessKey
	return c.saveLocked()
}

// --- Snapshot for atomic reads ---

// Snapshot is a point-in-time copy of configuration values.
type Snapshot struct {
	// System
	WebPort     int
	WebUser     string
	WebPassword string
	HistoryPath string

	// Web/Branding
	DeviceName       string
	DeviceColorLight string
	DeviceColorDark  string

	// Sensor
	SensorBackend string
	ADCMax        int
	SPIChannel    int
	MicDevice     string
	ReplayPath    string

	// Calibration
	SettleMs     int64
	Samples      int
	IntervalMs   int64
	Factor       float64
	MinThreshold int

	// Detection
	TriggerMs int64
	TickMs    int64

	// Playback
	MediaDir      string
	Asset         string
	Volume        int
	ChunkBytes    int
	SampleDelayUs int64
	MaxPlayMs     int64

	// Output
	OutputBackend string
	PWMPin        int
	StopButtonPin int

	// Traces
	TracesEnabled      bool
	TraceDir           string
	TracePreSeconds    int
	TracePostSeconds   int
	TraceRetentionDays int

	// S3
	S3Endpoint        string
	S3Bucket          string
	S3AccessKeyID     string
	S3SecretAccessKey string

	// Notifications
	WebhookURL        string
	LogPath           string
	GraphTenantID     string
	GraphClientID     string
	GraphClientSecret string
	GraphFromAddress  string
	GraphRecipients   string
	ZabbixServer      string
	ZabbixPort        int
	ZabbixHost        string
	ZabbixKey         string
	NATSURL           string
	NATSSubject       string
	PushPublicKey     string
	PushPrivateKey    string
	PushContact       string
}

// Snapshot returns a point-in-time copy of all configuration values.
func (c *Config) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		// System
		WebPort:     c.System.Port,
		WebUser:     c.System.Username,
		WebPassword: c.System.Password,
		HistoryPath: c.System.HistoryPath,

		// Web/Branding
		DeviceName:       c.Web.DeviceName,
		DeviceColorLight: c.Web.ColorLight,
		DeviceColorDark:  c.Web.ColorDark,

		// Sensor
		SensorBackend: c.Sensor.Backend,
		ADCMax:        cmp.Or(c.Sensor.ADCMax, DefaultADCMax),
		SPIChannel:    c.Sensor.SPIChannel,
		MicDevice:     c.Sensor.MicDevice,
		ReplayPath:    c.Sensor.ReplayPath,

		// Calibration (with defaults)
		SettleMs:     cmp.Or(c.Calibration.SettleMs, int64(DefaultSettleMs)),
		Samples:      cmp.Or(c.Calibration.Samples, DefaultCalibrationSamples),
		IntervalMs:   cmp.Or(c.Calibration.IntervalMs, int64(DefaultCalibrationIntervalMs)),
		Factor:       cmp.Or(c.Calibration.Factor, DefaultCalibrationFactor),
		MinThreshold: cmp.Or(c.Calibration.MinThreshold, DefaultMinThreshold),

		// Detection (with defaults)
		TriggerMs: cmp.Or(c.Detection.TriggerMs, int64(DefaultTriggerMs)),
		TickMs:    cmp.Or(c.Detection.TickMs, int64(DefaultTickMs)),

		// Playback (with defaults)
		MediaDir:      c.Playback.MediaDir,
		Asset:         cmp.Or(c.Playback.Asset, DefaultAsset),
		Volume:        c.Playback.Volume,
		ChunkBytes:    cmp.Or(c.Playback.ChunkBytes, DefaultChunkBytes),
		SampleDelayUs: cmp.Or(c.Playback.SampleDelayUs, int64(DefaultSampleDelayUs)),
		MaxPlayMs:     cmp.Or(c.Playback.MaxPlayMs, int64(DefaultMaxPlayMs)),

		// Output
		OutputBackend: c.Output.Backend,
		PWMPin:        cmp.Or(c.Output.PWMPin, DefaultPWMPin),
		StopButtonPin: c.Output.StopButtonPin,

		// Traces
		TracesEnabled:      c.Traces.Enabled,
		TraceDir:           c.Traces.Dir,
		TracePreSeconds:    cmp.Or(c.Traces.PreSeconds, DefaultTracePreSeconds),
		TracePostSeconds:   cmp.Or(c.Traces.PostSeconds, DefaultTracePostSeconds),
		TraceRetentionDays: cmp.Or(c.Traces.RetentionDays, types.DefaultTraceRetentionDays),

		// S3
		S3Endpoint:        c.S3.Endpoint,
		S3Bucket:          c.S3.Bucket,
		S3AccessKeyID:     c.S3.AccessKeyID,
		S3SecretAccessKey: c.S3.SecretAccessKey,

		// Notifications
		WebhookURL:        c.Notifications.Webhook.URL,
		LogPath:           c.Notifications.Log.Path,
		GraphTenantID:     c.Notifications.Email.TenantID,
		GraphClientID:     c.Notifications.Email.ClientID,
		GraphClientSecret: c.Notifications.Email.ClientSecret,
		GraphFromAddress:  c.Notifications.Email.FromAddress,
		GraphRecipients:   c.Notifications.Email.Recipients,
		ZabbixServer:      c.Notifications.Zabbix.Server,
		ZabbixPort:        cmp.Or(c.Notifications.Zabbix.Port, 10051),
		ZabbixHost:        c.Notifications.Zabbix.Host,
		ZabbixKey:         c.Notifications.Zabbix.Key,
		NATSURL:           c.Notifications.NATS.URL,
		NATSSubject:       c.Notifications.NATS.Subject,
		PushPublicKey:     c.Notifications.Push.PublicKey,
		PushPrivateKey:    c.Notifications.Push.PrivateKey,
		PushContact:       c.Notifications.Push.Contact,
	}
}

// HasWebhook reports whether a webhook URL is configured.
func (s *Snapshot) HasWebhook() bool {
	return s.WebhookURL != ""
}

// HasGraph reports whether Microsoft Graph email notifications are configured.
func (s *Snapshot) HasGraph() bool {
	return s.GraphTenantID != "" && s.GraphClientID != "" && s.GraphClientSecret != "" &&
		s.GraphFromAddress != "" && s.GraphRecipients != ""
}

// HasLogPath reports whether an episode log path is configured.
func (s *Snapshot) HasLogPath() bool {
	return s.LogPath != ""
}

// HasZabbix reports whether Zabbix notifications are configured.
func (s *Snapshot) HasZabbix() bool {
	return s.ZabbixServer != "" && s.ZabbixHost != "" && s.ZabbixKey != ""
}

// HasNATS reports whether fleet telemetry is configured.
func (s *Snapshot) HasNATS() bool {
	return s.NATSURL != "" && s.NATSSubject != ""
}

// HasPush reports whether Web Push notifications are configured.
func (s *Snapshot) HasPush() bool {
	return s.PushPublicKey != "" && s.PushPrivateKey != ""
}

// HasS3 reports whether trace upload storage is configured.
func (s *Snapshot) HasS3() bool {
	return s.S3Bucket != "" && s.S3AccessKeyID != "" && s.S3SecretAccessKey != ""
}
