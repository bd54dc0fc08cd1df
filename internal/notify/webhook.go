package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/kennelworks/hushd/internal/types"
	"github.com/kennelworks/hushd/internal/util"
)

// WebhookPayload represents the data sent to webhook endpoints.
type WebhookPayload struct {
	Event       string `json:"event"`
	Level       int    `json:"level,omitempty"`
	Threshold   int    `json:"threshold,omitempty"`
	RisingMs    int64  `json:"rising_ms,omitempty"`
	Outcome     string `json:"outcome,omitempty"`
	Reason      string `json:"reason,omitempty"`
	PlayedMs    int64  `json:"played_ms,omitempty"`
	BytesPlayed int64  `json:"bytes_played,omitempty"`
	Message     string `json:"message,omitempty"`
	Timestamp   string `json:"timestamp"`
}

// SendNoiseWebhook notifies the configured webhook that sustained noise was detected.
func SendNoiseWebhook(webhookURL string, ep *types.Episode) error {
	return sendWebhook(webhookURL, &WebhookPayload{
		Event:     "noise_detected",
		Level:     ep.TriggerLevel,
		Threshold: ep.Threshold,
		RisingMs:  ep.RisingMs,
		Timestamp: timestampUTC(),
	})
}

// SendPlaybackWebhook notifies the configured webhook that a playback episode ended.
func SendPlaybackWebhook(webhookURL string, ep *types.Episode) error {
	return sendWebhook(webhookURL, &WebhookPayload{
		Event:       "playback_ended",
		Level:       ep.TriggerLevel,
		Threshold:   ep.Threshold,
		Outcome:     string(ep.Outcome),
		Reason:      ep.Reason,
		PlayedMs:    ep.DurationMs,
		BytesPlayed: ep.BytesPlayed,
		Timestamp:   timestampUTC(),
	})
}

// SendTestWebhook sends a test webhook notification.
func SendTestWebhook(webhookURL, deviceName string) error {
	if webhookURL == "" {
		return fmt.Errorf("webhook URL not configured")
	}

	return sendWebhook(webhookURL, &WebhookPayload{
		Event:     "test",
		Message:   "This is a test notification from " + deviceName,
		Timestamp: timestampUTC(),
	})
}

// sendWebhook delivers a notification to the configured webhook endpoint.
func sendWebhook(webhookURL string, payload *WebhookPayload) error {
	if !util.IsConfigured(webhookURL) {
		return nil // Silently skip if not configured
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return util.WrapError("marshal payload", err)
	}

	client := &http.Client{Timeout: 10000 * time.Millisecond}
	resp, err := client.Post(webhookURL, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return util.WrapError("send webhook request", err)
	}
	defer util.SafeCloseFunc(resp.Body, "webhook response body")()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}
