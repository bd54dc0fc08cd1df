package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"slices"
	"strconv"
	"strings"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/kennelworks/hushd/internal/config"
	"github.com/kennelworks/hushd/internal/events"
	"github.com/kennelworks/hushd/internal/notify"
	"github.com/kennelworks/hushd/internal/sensor"
	"github.com/kennelworks/hushd/internal/server"
	"github.com/kennelworks/hushd/internal/trace"
	"github.com/kennelworks/hushd/internal/types"
)

// API response helpers

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) readJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// parseJSON reads and parses JSON from request body.
// Returns parsed value and true on success, zero value and false on failure.
func parseJSON[T any](s *Server, w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	if err := s.readJSON(r, &v); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return v, false
	}
	return v, true
}

// coalesce returns the first non-zero value from the provided values.
func coalesce[T comparable](values ...T) T {
	var zero T
	for _, v := range values {
		if v != zero {
			return v
		}
	}
	return zero
}

// handleAPIConfig returns the full configuration for the frontend.
// GET /api/config
func (s *Server) handleAPIConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	s.writeJSON(w, http.StatusOK, server.BuildConfigResponse(s.config))
}

// handleAPIDevices returns available sensor input devices.
// GET /api/devices
func (s *Server) handleAPIDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	devices, err := sensor.ListInputDevices()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
	})
}

// handleAPIEpisodes returns recent noise episodes from history.
// GET /api/episodes?limit=N
func (s *Server) handleAPIEpisodes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			s.writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	episodes, err := s.history.ListEpisodes(limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	total, err := s.history.CountEpisodes()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"episodes": episodes,
		"total":    total,
	})
}

// handleAPIEvents returns recent device events.
// GET /api/events
func (s *Server) handleAPIEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	evs, err := events.ReadLast(s.events.Path(), 100)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"events": evs,
	})
}

// handleAPIAssets returns the calming tracks available in the media directory.
// GET /api/assets
func (s *Server) handleAPIAssets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	assets, err := s.media.List()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"assets": assets,
		"dir":    s.media.Dir(),
	})
}

// SettingsUpdateRequest is the request body for POST /api/settings.
type SettingsUpdateRequest struct {
	// Sensor
	MicDevice *string `json:"mic_device"`

	// Detection and calibration
	TriggerMs    *int64 `json:"trigger_ms"`
	MinThreshold *int   `json:"min_threshold"`

	// Playback
	Asset     *string `json:"asset"`
	Volume    *int    `json:"volume"`
	MaxPlayMs *int64  `json:"max_play_ms"`

	// Traces
	TracesEnabled      *bool `json:"traces_enabled"`
	TraceRetentionDays *int  `json:"trace_retention_days"`

	// S3 trace upload
	S3Endpoint        *string `json:"s3_endpoint"`
	S3Bucket          *string `json:"s3_bucket"`
	S3AccessKeyID     *string `json:"s3_access_key_id"`
	S3SecretAccessKey *string `json:"s3_secret_access_key"`

	// Webhook
	WebhookURL *string `json:"webhook_url"`

	// Log
	LogPath *string `json:"log_path"`

	// Email (Graph)
	GraphTenantID     *string `json:"graph_tenant_id"`
	GraphClientID     *string `json:"graph_client_id"`
	GraphClientSecret *string `json:"graph_client_secret"`
	GraphFromAddress  *string `json:"graph_from_address"`
	GraphRecipients   *string `json:"graph_recipients"`

	// Zabbix
	ZabbixServer *string `json:"zabbix_server"`
	ZabbixPort   *int    `json:"zabbix_port"`
	ZabbixHost   *string `json:"zabbix_host"`
	ZabbixKey    *string `json:"zabbix_key"`

	// Fleet telemetry
	NATSURL     *string `json:"nats_url"`
	NATSSubject *string `json:"nats_subject"`

	// Web Push
	PushPublicKey  *string `json:"push_public_key"`
	PushPrivateKey *string `json:"push_private_key"`
	PushContact    *string `json:"push_contact"`
}

// handleAPISettings updates all settings atomically.
// POST /api/settings
func (s *Server) handleAPISettings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	req, ok := parseJSON[SettingsUpdateRequest](s, w, r)
	if !ok {
		return
	}

	cfg := s.config.Snapshot()
	graphChanged := req.GraphTenantID != nil || req.GraphClientID != nil || req.GraphClientSecret != nil ||
		req.GraphFromAddress != nil || req.GraphRecipients != nil

	// Apply all settings in groups
	if err := s.applySensorSettings(&req); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := s.applyDetectionSettings(&req); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := s.applyPlaybackSettings(&req); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := s.applyTraceSettings(&req, &cfg); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := s.applyNotificationSettings(&req, &cfg); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Drop the cached Graph client so the next email uses the new credentials
	if graphChanged {
		s.notifier.InvalidateGraphClient()
	}

	s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// applySensorSettings applies sensor input settings from the request.
func (s *Server) applySensorSettings(req *SettingsUpdateRequest) error {
	if req.MicDevice != nil {
		if err := s.config.SetMicDevice(*req.MicDevice); err != nil {
			return err
		}
	}
	return nil
}

// applyDetectionSettings applies detection and calibration settings from the request.
func (s *Server) applyDetectionSettings(req *SettingsUpdateRequest) error {
	if req.TriggerMs != nil {
		if err := s.config.SetTriggerMs(*req.TriggerMs); err != nil {
			return err
		}
	}

	if req.MinThreshold != nil {
		if err := s.config.SetMinThreshold(*req.MinThreshold); err != nil {
			return err
		}
	}

	return nil
}

// applyPlaybackSettings applies calming track settings from the request.
func (s *Server) applyPlaybackSettings(req *SettingsUpdateRequest) error {
	if req.Asset != nil {
		if err := s.config.SetAsset(*req.Asset); err != nil {
			return err
		}
	}

	if req.Volume != nil {
		if err := s.config.SetVolume(*req.Volume); err != nil {
			return err
		}
	}

	if req.MaxPlayMs != nil {
		if err := s.config.SetMaxPlayMs(*req.MaxPlayMs); err != nil {
			return err
		}
	}

	return nil
}

// applyTraceSettings applies episode trace settings from the request.
func (s *Server) applyTraceSettings(req *SettingsUpdateRequest, cfg *config.Snapshot) error {
	if req.TracesEnabled != nil || req.TraceRetentionDays != nil {
		enabled := cfg.TracesEnabled
		retention := cfg.TraceRetentionDays
		if req.TracesEnabled != nil {
			enabled = *req.TracesEnabled
		}
		if req.TraceRetentionDays != nil {
			retention = *req.TraceRetentionDays
		}
		if err := s.config.SetTraces(enabled, retention); err != nil {
			return err
		}
	}

	if req.S3Endpoint == nil && req.S3Bucket == nil && req.S3AccessKeyID == nil && req.S3SecretAccessKey == nil {
		return nil
	}

	endpoint := cfg.S3Endpoint
	bucket := cfg.S3Bucket
	accessKey := cfg.S3AccessKeyID
	secretKey := cfg.S3SecretAccessKey
	if req.S3Endpoint != nil {
		endpoint = *req.S3Endpoint
	}
	if req.S3Bucket != nil {
		bucket = *req.S3Bucket
	}
	if req.S3AccessKeyID != nil {
		accessKey = *req.S3AccessKeyID
	}
	if req.S3SecretAccessKey != nil {
		secretKey = *req.S3SecretAccessKey
	}
	return s.config.SetS3Config(endpoint, bucket, accessKey, secretKey)
}

// applyNotificationSettings applies notification settings from the request.
func (s *Server) applyNotificationSettings(req *SettingsUpdateRequest, cfg *config.Snapshot) error {
	if req.WebhookURL != nil {
		if err := s.config.SetWebhookURL(*req.WebhookURL); err != nil {
			return err
		}
	}

	if req.LogPath != nil {
		if err := s.config.SetLogPath(*req.LogPath); err != nil {
			return err
		}
	}

	if err := s.applyZabbixSettings(req, cfg); err != nil {
		return err
	}

	if err := s.applyGraphSettings(req, cfg); err != nil {
		return err
	}

	if err := s.applyNATSSettings(req, cfg); err != nil {
		return err
	}

	return s.applyPushSettings(req, cfg)
}

// applyZabbixSettings applies Zabbix notification settings.
func (s *Server) applyZabbixSettings(req *SettingsUpdateRequest, cfg *config.Snapshot) error {
	if req.ZabbixServer == nil && req.ZabbixPort == nil && req.ZabbixHost == nil && req.ZabbixKey == nil {
		return nil
	}

	zabbixServer := cfg.ZabbixServer
	port := cfg.ZabbixPort
	host := cfg.ZabbixHost
	key := cfg.ZabbixKey
	if req.ZabbixServer != nil {
		zabbixServer = *req.ZabbixServer
	}
	if req.ZabbixPort != nil {
		port = *req.ZabbixPort
	}
	if req.ZabbixHost != nil {
		host = *req.ZabbixHost
	}
	if req.ZabbixKey != nil {
		key = *req.ZabbixKey
	}
	return s.config.SetZabbixConfig(zabbixServer, port, host, key)
}

// applyGraphSettings applies Microsoft Graph email settings.
func (s *Server) applyGraphSettings(req *SettingsUpdateRequest, cfg *config.Snapshot) error {
	if req.GraphTenantID == nil && req.GraphClientID == nil && req.GraphClientSecret == nil &&
		req.GraphFromAddress == nil && req.GraphRecipients == nil {
		return nil
	}

	tenantID := cfg.GraphTenantID
	clientID := cfg.GraphClientID
	clientSecret := cfg.GraphClientSecret
	fromAddr := cfg.GraphFromAddress
	recipients := cfg.GraphRecipients
	if req.GraphTenantID != nil {
		tenantID = *req.GraphTenantID
	}
	if req.GraphClientID != nil {
		clientID = *req.GraphClientID
	}
	if req.GraphClientSecret != nil {
		clientSecret = *req.GraphClientSecret
	}
	if req.GraphFromAddress != nil {
		fromAddr = *req.GraphFromAddress
	}
	if req.GraphRecipients != nil {
		recipients = *req.GraphRecipients
	}
	return s.config.SetGraphConfig(tenantID, clientID, clientSecret, fromAddr, recipients)
}

// applyNATSSettings applies fleet telemetry settings.
func (s *Server) applyNATSSettings(req *SettingsUpdateRequest, cfg *config.Snapshot) error {
	if req.NATSURL == nil && req.NATSSubject == nil {
		return nil
	}

	url := cfg.NATSURL
	subject := cfg.NATSSubject
	if req.NATSURL != nil {
		url = *req.NATSURL
	}
	if req.NATSSubject != nil {
		subject = *req.NATSSubject
	}
	return s.config.SetNATSConfig(url, subject)
}

// applyPushSettings applies Web Push VAPID settings.
func (s *Server) applyPushSettings(req *SettingsUpdateRequest, cfg *config.Snapshot) error {
	if req.PushPublicKey == nil && req.PushPrivateKey == nil && req.PushContact == nil {
		return nil
	}

	publicKey := cfg.PushPublicKey
	privateKey := cfg.PushPrivateKey
	contact := cfg.PushContact
	if req.PushPublicKey != nil {
		publicKey = *req.PushPublicKey
	}
	if req.PushPrivateKey != nil {
		privateKey = *req.PushPrivateKey
	}
	if req.PushContact != nil {
		contact = *req.PushContact
	}
	return s.config.SetPushConfig(publicKey, privateKey, contact)
}

// handleAPICalibrate re-runs ambient calibration.
// POST /api/calibrate
func (s *Server) handleAPICalibrate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if err := s.controller.Recalibrate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"threshold": s.controller.Threshold(),
	})
}

// handleAPIPlaybackTest starts a playback test run.
// POST /api/playback/test
func (s *Server) handleAPIPlaybackTest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if err := s.controller.TestPlayback(); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleAPIPlaybackStop requests that the current playback stop.
// POST /api/playback/stop
func (s *Server) handleAPIPlaybackStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	s.controller.StopPlayback()
	s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Notification test endpoints

// NotificationTestRequest is the request body for testing notifications.
type NotificationTestRequest struct {
	// Webhook
	WebhookURL string `json:"webhook_url,omitempty"`

	// Log
	LogPath string `json:"log_path,omitempty"`

	// Email
	GraphTenantID     string `json:"graph_tenant_id,omitempty"`
	GraphClientID     string `json:"graph_client_id,omitempty"`
	GraphClientSecret string `json:"graph_client_secret,omitempty"`
	GraphFromAddress  string `json:"graph_from_address,omitempty"`
	GraphRecipients   string `json:"graph_recipients,omitempty"`

	// Zabbix
	ZabbixServer string `json:"zabbix_server,omitempty"`
	ZabbixPort   int    `json:"zabbix_port,omitempty"`
	ZabbixHost   string `json:"zabbix_host,omitempty"`
	ZabbixKey    string `json:"zabbix_key,omitempty"`

	// Fleet telemetry
	NATSURL     string `json:"nats_url,omitempty"`
	NATSSubject string `json:"nats_subject,omitempty"`

	// Web Push
	PushPublicKey  string `json:"push_public_key,omitempty"`
	PushPrivateKey string `json:"push_private_key,omitempty"`
	PushContact    string `json:"push_contact,omitempty"`
}

func (s *Server) handleAPITestWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	req, ok := parseJSON[NotificationTestRequest](s, w, r)
	if !ok {
		return
	}

	cfg := s.config.Snapshot()
	url := coalesce(req.WebhookURL, cfg.WebhookURL)

	if url == "" {
		s.writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": "No webhook URL configured"})
		return
	}

	if err := notify.SendTestWebhook(url, cfg.DeviceName); err != nil {
		s.writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": err.Error()})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleAPITestLog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	req, ok := parseJSON[NotificationTestRequest](s, w, r)
	if !ok {
		return
	}

	path := coalesce(req.LogPath, s.config.Snapshot().LogPath)

	if path == "" {
		s.writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": "No log path configured"})
		return
	}

	if err := notify.WriteTestLog(path); err != nil {
		s.writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": err.Error()})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleAPITestEmail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	req, ok := parseJSON[NotificationTestRequest](s, w, r)
	if !ok {
		return
	}

	// Use request values or fall back to saved config
	cfg := s.config.Snapshot()
	tenantID := coalesce(req.GraphTenantID, cfg.GraphTenantID)
	clientID := coalesce(req.GraphClientID, cfg.GraphClientID)
	clientSecret := coalesce(req.GraphClientSecret, cfg.GraphClientSecret)
	fromAddress := coalesce(req.GraphFromAddress, cfg.GraphFromAddress)
	recipients := coalesce(req.GraphRecipients, cfg.GraphRecipients)

	if tenantID == "" || clientID == "" || clientSecret == "" {
		s.writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": "Email not fully configured"})
		return
	}

	graphCfg := &notify.GraphConfig{
		TenantID:     tenantID,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		FromAddress:  fromAddress,
		Recipients:   recipients,
	}

	if err := notify.SendTestEmail(graphCfg, cfg.DeviceName); err != nil {
		s.writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": err.Error()})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleAPITestZabbix(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	req, ok := parseJSON[NotificationTestRequest](s, w, r)
	if !ok {
		return
	}

	// Use request values or fall back to saved config
	cfg := s.config.Snapshot()
	zabbixServer := coalesce(req.ZabbixServer, cfg.ZabbixServer)
	port := coalesce(req.ZabbixPort, cfg.ZabbixPort)
	host := coalesce(req.ZabbixHost, cfg.ZabbixHost)
	key := coalesce(req.ZabbixKey, cfg.ZabbixKey)

	if zabbixServer == "" || host == "" || key == "" {
		s.writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": "Zabbix not fully configured"})
		return
	}

	if err := notify.SendTestZabbix(zabbixServer, port, host, key); err != nil {
		s.writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": err.Error()})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleAPITestNATS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	req, ok := parseJSON[NotificationTestRequest](s, w, r)
	if !ok {
		return
	}

	// Use request values or fall back to saved config
	cfg := s.config.Snapshot()
	url := coalesce(req.NATSURL, cfg.NATSURL)
	subject := coalesce(req.NATSSubject, cfg.NATSSubject)

	if url == "" || subject == "" {
		s.writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": "Fleet telemetry not fully configured"})
		return
	}

	// A throwaway publisher so unsaved settings can be tested
	pub := notify.NewNATSPublisher()
	defer pub.Close()

	if err := pub.PublishTest(url, subject, cfg.DeviceName); err != nil {
		s.writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": err.Error()})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleAPITestPush(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	req, ok := parseJSON[NotificationTestRequest](s, w, r)
	if !ok {
		return
	}

	// Use request values or fall back to saved config
	cfg := s.config.Snapshot()
	pushCfg := notify.PushConfig{
		PublicKey:  coalesce(req.PushPublicKey, cfg.PushPublicKey),
		PrivateKey: coalesce(req.PushPrivateKey, cfg.PushPrivateKey),
		Contact:    coalesce(req.PushContact, cfg.PushContact),
	}

	if pushCfg.PublicKey == "" || pushCfg.PrivateKey == "" {
		s.writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": "Push not fully configured"})
		return
	}

	if err := notify.SendTestPush(pushCfg, s.history, cfg.DeviceName); err != nil {
		s.writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": err.Error()})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleAPITestS3 tests connectivity with the saved S3 settings.
// POST /api/test/s3
func (s *Server) handleAPITestS3(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if err := trace.TestS3Connection(s.config); err != nil {
		s.writeJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Web Push subscription endpoints

// handleAPIPushKey returns the VAPID public key for browser subscription.
// GET /api/push/key
func (s *Server) handleAPIPushKey(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	cfg := s.config.Snapshot()
	s.writeJSON(w, http.StatusOK, map[string]string{
		"key": cfg.PushPublicKey,
	})
}

// handleAPIPushSubscribe stores a browser push subscription.
// POST /api/push/subscribe
func (s *Server) handleAPIPushSubscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	sub, ok := parseJSON[webpush.Subscription](s, w, r)
	if !ok {
		return
	}

	if sub.Endpoint == "" {
		s.writeError(w, http.StatusBadRequest, "endpoint is required")
		return
	}

	if err := s.history.SaveSubscription(&sub); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleAPIPushUnsubscribe removes a browser push subscription.
// POST /api/push/unsubscribe
func (s *Server) handleAPIPushUnsubscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	req, ok := parseJSON[struct {
		Endpoint string `json:"endpoint"`
	}](s, w, r)
	if !ok {
		return
	}

	if req.Endpoint == "" {
		s.writeError(w, http.StatusBadRequest, "endpoint is required")
		return
	}

	if err := s.history.DeleteSubscription(req.Endpoint); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleAPIViewLog returns the episode log entries.
// GET /api/log
func (s *Server) handleAPIViewLog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	logPath := s.config.LogPath()
	if logPath == "" {
		s.writeJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"error":   "Log file path not configured",
		})
		return
	}

	entries, err := readNoiseLog(logPath, 100)
	if err != nil {
		s.writeJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"entries": entries,
		"path":    logPath,
	})
}

// readNoiseLog reads the last N entries from the episode log file.
func readNoiseLog(logPath string, maxEntries int) ([]types.NoiseLogEntry, error) {
	data, err := os.ReadFile(logPath)
	if os.IsNotExist(err) {
		return []types.NoiseLogEntry{}, nil
	}
	if err != nil {
		return nil, err
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) == 0 || (len(lines) == 1 && lines[0] == "") {
		return []types.NoiseLogEntry{}, nil
	}

	start := max(0, len(lines)-maxEntries)
	lines = lines[start:]

	entries := make([]types.NoiseLogEntry, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		var entry types.NoiseLogEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			slog.Warn("failed to parse episode log entry", "line", line, "error", err)
			continue
		}
		entries = append(entries, entry)
	}

	// Reverse to show newest first
	slices.Reverse(entries)

	return entries, nil
}
