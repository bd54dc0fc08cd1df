package notify

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/kennelworks/hushd/internal/types"
	"github.com/kennelworks/hushd/internal/util"
)

// pushTTL is how long push services may queue an undelivered notification.
const pushTTL = 60

// SubscriptionStore provides the saved browser push subscriptions.
type SubscriptionStore interface {
	Subscriptions() ([]webpush.Subscription, error)
	DeleteSubscription(endpoint string) error
}

// PushConfig contains VAPID keys and the subscriber contact address.
type PushConfig struct {
	PublicKey  string
	PrivateKey string
	Contact    string
}

// pushMessage is the JSON payload delivered to the service worker.
type pushMessage struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Tag   string `json:"tag,omitempty"`
}

// SendNoisePush notifies all subscribed browsers that sustained noise was detected.
func SendNoisePush(cfg PushConfig, store SubscriptionStore, ep *types.Episode) error {
	return sendPush(cfg, store, pushMessage{
		Title: AppName,
		Body:  fmt.Sprintf("Noise detected: level %d over threshold %d", ep.TriggerLevel, ep.Threshold),
		Tag:   "noise",
	})
}

// SendPlaybackPush notifies all subscribed browsers that a playback episode ended.
func SendPlaybackPush(cfg PushConfig, store SubscriptionStore, ep *types.Episode) error {
	body := "Playback " + string(ep.Outcome)
	if ep.Reason != "" {
		body += " (" + ep.Reason + ")"
	}
	if ep.DurationMs > 0 {
		body += " after " + util.FormatDuration(ep.DurationMs)
	}
	return sendPush(cfg, store, pushMessage{
		Title: AppName,
		Body:  body,
		Tag:   "playback",
	})
}

// SendTestPush sends a test notification to all subscribed browsers.
func SendTestPush(cfg PushConfig, store SubscriptionStore, deviceName string) error {
	if cfg.PublicKey == "" || cfg.PrivateKey == "" {
		return fmt.Errorf("push VAPID keys not configured")
	}

	subs, err := store.Subscriptions()
	if err != nil {
		return util.WrapError("load push subscriptions", err)
	}
	if len(subs) == 0 {
		return fmt.Errorf("no push subscriptions registered")
	}

	return sendPush(cfg, store, pushMessage{
		Title: AppName,
		Body:  "This is a test notification from " + deviceName,
		Tag:   "test",
	})
}

// sendPush delivers a message to every saved subscription.
// Subscriptions rejected as gone by the push service are removed.
func sendPush(cfg PushConfig, store SubscriptionStore, msg pushMessage) error {
	if cfg.PublicKey == "" || cfg.PrivateKey == "" {
		return nil
	}

	subs, err := store.Subscriptions()
	if err != nil {
		return util.WrapError("load push subscriptions", err)
	}
	if len(subs) == 0 {
		return nil
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return util.WrapError("marshal push payload", err)
	}

	opts := &webpush.Options{
		Subscriber:      cfg.Contact,
		VAPIDPublicKey:  cfg.PublicKey,
		VAPIDPrivateKey: cfg.PrivateKey,
		TTL:             pushTTL,
	}

	var lastErr error
	for i := range subs {
		sub := subs[i]
		resp, err := webpush.SendNotification(payload, &sub, opts)
		if err != nil {
			lastErr = err
			continue
		}

		// 404/410 means the browser dropped the subscription
		if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
			if err := store.DeleteSubscription(sub.Endpoint); err != nil {
				slog.Warn("failed to remove stale push subscription", "endpoint", sub.Endpoint, "error", err)
			}
		} else if resp.StatusCode >= 400 {
			lastErr = fmt.Errorf("push service returned status %d", resp.StatusCode)
		}
		_ = resp.Body.Close()
	}

	if lastErr != nil {
		return util.WrapError("send push notification", lastErr)
	}
	return nil
}
