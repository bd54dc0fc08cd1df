package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConfig(t *testing.T) *Config {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "config.json"))
}

func TestNewDefaults(t *testing.T) {
	cfg := newTestConfig(t)
	snap := cfg.Snapshot()

	assert.Equal(t, 8080, snap.WebPort)
	assert.Equal(t, "admin", snap.WebUser)
	assert.Equal(t, "hushd", snap.WebPassword)
	assert.Equal(t, "/var/lib/hushd/history.db", snap.HistoryPath)

	assert.Equal(t, "Hushd", snap.DeviceName)
	assert.Equal(t, "#2F7D5D", snap.DeviceColorLight)
	assert.Equal(t, "#3FA87C", snap.DeviceColorDark)

	assert.Equal(t, "mic", snap.SensorBackend)
	assert.Equal(t, DefaultADCMax, snap.ADCMax)

	assert.Equal(t, int64(1000), snap.SettleMs)
	assert.Equal(t, 100, snap.Samples)
	assert.Equal(t, int64(10), snap.IntervalMs)
	assert.Equal(t, 2.5, snap.Factor)
	assert.Equal(t, 50, snap.MinThreshold)

	assert.Equal(t, int64(2000), snap.TriggerMs)
	assert.Equal(t, int64(10), snap.TickMs)

	assert.Equal(t, "/media/hushd", snap.MediaDir)
	assert.Equal(t, "calm.wav", snap.Asset)
	assert.Equal(t, 180, snap.Volume)
	assert.Equal(t, 512, snap.ChunkBytes)
	assert.Equal(t, int64(125), snap.SampleDelayUs)
	assert.Equal(t, int64(30000), snap.MaxPlayMs)

	assert.Equal(t, "speaker", snap.OutputBackend)
	assert.Equal(t, 18, snap.PWMPin)
	assert.Zero(t, snap.StopButtonPin, "cancel button is disabled by default")

	assert.False(t, snap.TracesEnabled)
	assert.Equal(t, "/var/lib/hushd/traces", snap.TraceDir)
	assert.Equal(t, 10, snap.TracePreSeconds)
	assert.Equal(t, 5, snap.TracePostSeconds)
}

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg := New(path)
	require.NoError(t, cfg.Load())

	data, err := os.ReadFile(path)
	require.NoError(t, err, "first load writes the default config")

	var parsed map[string]any
	require.NoError(t, json.Unmarshal(data, &parsed))
	assert.Contains(t, parsed, "system")
	assert.Contains(t, parsed, "calibration")
	assert.Contains(t, parsed, "playback")
}

func TestLoadAppliesDefaultsToSparseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	sparse := `{"web": {"device_name": "Nursery"}, "detection": {"trigger_ms": 1500}}`
	require.NoError(t, os.WriteFile(path, []byte(sparse), 0o600))

	cfg := New(path)
	require.NoError(t, cfg.Load())
	snap := cfg.Snapshot()

	assert.Equal(t, "Nursery", snap.DeviceName)
	assert.Equal(t, int64(1500), snap.TriggerMs)
	assert.Equal(t, 8080, snap.WebPort, "missing fields fall back to defaults")
	assert.Equal(t, "mic", snap.SensorBackend)
	assert.Equal(t, 2.5, snap.Factor)
	assert.Equal(t, 10051, snap.ZabbixPort, "standard trapper port is the default")
}

func TestLoadRejectsMalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{nope"), 0o600))

	cfg := New(path)
	assert.Error(t, cfg.Load())
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"device name too long", `{"web": {"device_name": "0123456789012345678901234567890"}}`},
		{"device name control chars", `{"web": {"device_name": "badname"}}`},
		{"bad light color", `{"web": {"color_light": "green"}}`},
		{"bad dark color", `{"web": {"color_dark": "#12345"}}`},
		{"unknown sensor backend", `{"sensor": {"backend": "i2c"}}`},
		{"unknown output backend", `{"output": {"backend": "dac"}}`},
		{"negative adc max", `{"sensor": {"adc_max": -1}}`},
		{"negative calibration factor", `{"calibration": {"factor": -2}}`},
		{"volume above ceiling", `{"playback": {"volume": 300}}`},
		{"media dir traversal", `{"playback": {"media_dir": "/media/../etc"}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.json")
			require.NoError(t, os.WriteFile(path, []byte(tc.body), 0o600))
			cfg := New(path)
			assert.Error(t, cfg.Load())
		})
	}
}

func TestSettersPersistAcrossReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := New(path)
	require.NoError(t, cfg.Load())

	require.NoError(t, cfg.SetTriggerMs(3500))
	require.NoError(t, cfg.SetVolume(90))
	require.NoError(t, cfg.SetAsset("lullaby.wav"))
	require.NoError(t, cfg.SetMinThreshold(80))
	require.NoError(t, cfg.SetMicDevice("2"))
	require.NoError(t, cfg.SetMaxPlayMs(15000))
	require.NoError(t, cfg.SetWebhookURL("https://hooks.example.com/noise"))
	require.NoError(t, cfg.SetLogPath("/var/log/hushd/episodes.log"))
	require.NoError(t, cfg.SetZabbixConfig("zabbix.example.com", 10051, "nursery-pi", "hushd.episode"))
	require.NoError(t, cfg.SetNATSConfig("nats://fleet.example.com:4222", "hushd.events"))
	require.NoError(t, cfg.SetTraces(true, 21))
	require.NoError(t, cfg.SetS3Config("https://s3.example.com", "hushd-traces", "AKID", "secret"))

	reloaded := New(path)
	require.NoError(t, reloaded.Load())
	snap := reloaded.Snapshot()

	assert.Equal(t, int64(3500), snap.TriggerMs)
	assert.Equal(t, 90, snap.Volume)
	assert.Equal(t, "lullaby.wav", snap.Asset)
	assert.Equal(t, 80, snap.MinThreshold)
	assert.Equal(t, "2", snap.MicDevice)
	assert.Equal(t, int64(15000), snap.MaxPlayMs)
	assert.Equal(t, "https://hooks.example.com/noise", snap.WebhookURL)
	assert.Equal(t, "/var/log/hushd/episodes.log", snap.LogPath)
	assert.Equal(t, "zabbix.example.com", snap.ZabbixServer)
	assert.Equal(t, "nursery-pi", snap.ZabbixHost)
	assert.True(t, snap.TracesEnabled)
	assert.Equal(t, 21, snap.TraceRetentionDays)
	assert.Equal(t, "hushd-traces", snap.S3Bucket)
}

func TestSetTracesKeepsRetentionWhenZero(t *testing.T) {
	cfg := newTestConfig(t)
	require.NoError(t, cfg.SetTraces(true, 0))

	snap := cfg.Snapshot()
	assert.True(t, snap.TracesEnabled)
	assert.Positive(t, snap.TraceRetentionDays, "zero retention keeps the previous value")
}

func TestSetGraphConfig(t *testing.T) {
	cfg := newTestConfig(t)
	require.NoError(t, cfg.SetGraphConfig("tenant", "client", "secret", "alerts@example.com", "a@example.com,b@example.com"))

	gc := cfg.GraphConfig()
	assert.Equal(t, "tenant", gc.TenantID)
	assert.Equal(t, "client", gc.ClientID)
	assert.Equal(t, "secret", gc.ClientSecret)
	assert.Equal(t, "alerts@example.com", gc.FromAddress)
	assert.Equal(t, "a@example.com,b@example.com", gc.Recipients)
}

func TestSnapshotHasHelpers(t *testing.T) {
	cfg := newTestConfig(t)
	snap := cfg.Snapshot()

	assert.False(t, snap.HasWebhook())
	assert.False(t, snap.HasGraph())
	assert.False(t, snap.HasLogPath())
	assert.False(t, snap.HasZabbix())
	assert.False(t, snap.HasNATS())
	assert.False(t, snap.HasPush())
	assert.False(t, snap.HasS3())

	require.NoError(t, cfg.SetWebhookURL("https://hooks.example.com"))
	require.NoError(t, cfg.SetLogPath("/var/log/hushd/episodes.log"))
	require.NoError(t, cfg.SetGraphConfig("t", "c", "s", "from@example.com", "to@example.com"))
	require.NoError(t, cfg.SetZabbixConfig("zabbix.example.com", 10051, "host", "key"))
	require.NoError(t, cfg.SetNATSConfig("nats://localhost:4222", "hushd.events"))
	require.NoError(t, cfg.SetPushConfig("pub", "priv", "mailto:ops@example.com"))
	require.NoError(t, cfg.SetS3Config("", "bucket", "akid", "secret"))

	snap = cfg.Snapshot()
	assert.True(t, snap.HasWebhook())
	assert.True(t, snap.HasGraph())
	assert.True(t, snap.HasLogPath())
	assert.True(t, snap.HasZabbix())
	assert.True(t, snap.HasNATS())
	assert.True(t, snap.HasPush())
	assert.True(t, snap.HasS3(), "S3 needs bucket and credentials but not an endpoint")
}

func TestHasGraphRequiresAllFields(t *testing.T) {
	cfg := newTestConfig(t)
	require.NoError(t, cfg.SetGraphConfig("tenant", "client", "", "from@example.com", "to@example.com"))
	snap := cfg.Snapshot()
	assert.False(t, snap.HasGraph(), "a missing secret leaves email unconfigured")
}
