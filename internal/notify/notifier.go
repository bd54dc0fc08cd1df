package notify

import (
	"fmt"
	"sync"

	"github.com/kennelworks/hushd/internal/config"
	"github.com/kennelworks/hushd/internal/types"
	"github.com/kennelworks/hushd/internal/util"
)

// Notifier fans device events out to the configured notification channels.
// Episodes are discrete (the detector re-arms only after playback), so every
// trigger and every playback result is delivered without dedup state.
type Notifier struct {
	cfg *config.Config

	// mu protects the cached clients below
	mu sync.Mutex

	// Cached Graph client for email notifications
	graphClient *GraphClient

	expiry  *SecretExpiryChecker
	natsPub *NATSPublisher
	subs    SubscriptionStore
}

// NewNotifier returns a Notifier configured with the given config.
func NewNotifier(cfg *config.Config) *Notifier {
	gc := cfg.GraphConfig()
	return &Notifier{
		cfg:     cfg,
		expiry:  NewSecretExpiryChecker(&gc),
		natsPub: NewNATSPublisher(),
	}
}

// SetSubscriptionStore wires the push subscription store.
// Push notifications are skipped until one is set.
func (n *Notifier) SetSubscriptionStore(subs SubscriptionStore) {
	n.mu.Lock()
	n.subs = subs
	n.mu.Unlock()
}

// InvalidateGraphClient clears the cached Graph client and expiry info.
// Call this when Graph configuration changes.
func (n *Notifier) InvalidateGraphClient() {
	n.mu.Lock()
	n.graphClient = nil
	n.mu.Unlock()

	gc := n.cfg.GraphConfig()
	n.expiry.UpdateConfig(&gc)
}

// GraphSecretExpiry returns the cached client secret expiration info.
func (n *Notifier) GraphSecretExpiry() types.SecretExpiryInfo {
	return n.expiry.GetInfo()
}

// Close releases the NATS connection if one was established.
func (n *Notifier) Close() {
	n.natsPub.Close()
}

// getOrCreateGraphClient returns the cached Graph client, creating it if needed.
func (n *Notifier) getOrCreateGraphClient(cfg *GraphConfig) (*GraphClient, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.graphClient != nil {
		return n.graphClient, nil
	}

	client, err := NewGraphClient(cfg)
	if err != nil {
		return nil, err
	}
	n.graphClient = client
	return client, nil
}

// subscriptionStore returns the wired push subscription store, if any.
func (n *Notifier) subscriptionStore() SubscriptionStore {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.subs
}

// BuildGraphConfig creates a GraphConfig from the config snapshot.
//
//nolint:gocritic // hugeParam: copy is acceptable for infrequent notification events
func BuildGraphConfig(cfg config.Snapshot) *GraphConfig {
	return &GraphConfig{
		TenantID:     cfg.GraphTenantID,
		ClientID:     cfg.GraphClientID,
		ClientSecret: cfg.GraphClientSecret,
		FromAddress:  cfg.GraphFromAddress,
		Recipients:   cfg.GraphRecipients,
	}
}

// BuildPushConfig creates a PushConfig from the config snapshot.
//
//nolint:gocritic // hugeParam: copy is acceptable for infrequent notification events
func BuildPushConfig(cfg config.Snapshot) PushConfig {
	return PushConfig{
		PublicKey:  cfg.PushPublicKey,
		PrivateKey: cfg.PushPrivateKey,
		Contact:    cfg.PushContact,
	}
}

// EpisodeTriggered notifies all configured channels that sustained noise
// crossed the threshold and playback is starting.
func (n *Notifier) EpisodeTriggered(ep *types.Episode) {
	cfg := n.cfg.Snapshot()
	e := *ep

	if cfg.HasWebhook() {
		go util.LogNotifyResult(
			func() error { return SendNoiseWebhook(cfg.WebhookURL, &e) },
			"Noise webhook",
		)
	}
	if cfg.HasZabbix() {
		go util.LogNotifyResult(
			func() error { return SendNoiseZabbix(cfg.ZabbixServer, cfg.ZabbixPort, cfg.ZabbixHost, cfg.ZabbixKey, &e) },
			"Noise zabbix",
		)
	}
	if cfg.HasLogPath() {
		go util.LogNotifyResult(
			func() error { return LogNoiseStart(cfg.LogPath, &e) },
			"Noise log",
		)
	}
	if subs := n.subscriptionStore(); subs != nil && cfg.HasPush() {
		go util.LogNotifyResult(
			func() error { return SendNoisePush(BuildPushConfig(cfg), subs, &e) },
			"Noise push",
		)
	}
	if cfg.HasNATS() {
		go util.LogNotifyResult(
			func() error { return n.natsPub.PublishNoise(cfg.NATSURL, cfg.NATSSubject, cfg.DeviceName, &e) },
			"Noise nats",
		)
	}
}

// EpisodeEnded notifies all configured channels of the playback result.
func (n *Notifier) EpisodeEnded(ep *types.Episode) {
	cfg := n.cfg.Snapshot()
	e := *ep

	if cfg.HasWebhook() {
		go util.LogNotifyResult(
			func() error { return SendPlaybackWebhook(cfg.WebhookURL, &e) },
			"Playback webhook",
		)
	}
	if cfg.HasZabbix() {
		go util.LogNotifyResult(
			func() error { return SendPlaybackZabbix(cfg.ZabbixServer, cfg.ZabbixPort, cfg.ZabbixHost, cfg.ZabbixKey, &e) },
			"Playback zabbix",
		)
	}
	if cfg.HasLogPath() {
		go util.LogNotifyResult(
			func() error { return LogPlaybackEnd(cfg.LogPath, &e) },
			"Playback log",
		)
	}
	if subs := n.subscriptionStore(); subs != nil && cfg.HasPush() {
		go util.LogNotifyResult(
			func() error { return SendPlaybackPush(BuildPushConfig(cfg), subs, &e) },
			"Playback push",
		)
	}
	if cfg.HasNATS() {
		go util.LogNotifyResult(
			func() error { return n.natsPub.PublishPlayback(cfg.NATSURL, cfg.NATSSubject, cfg.DeviceName, &e) },
			"Playback nats",
		)
	}
}

// TestNATS publishes a test event to verify the fleet telemetry settings.
func (n *Notifier) TestNATS() error {
	cfg := n.cfg.Snapshot()
	return n.natsPub.PublishTest(cfg.NATSURL, cfg.NATSSubject, cfg.DeviceName)
}

// TestPush sends a test notification to every stored push subscription.
func (n *Notifier) TestPush() error {
	subs := n.subscriptionStore()
	if subs == nil {
		return fmt.Errorf("push subscription store not available")
	}
	cfg := n.cfg.Snapshot()
	return SendTestPush(BuildPushConfig(cfg), subs, cfg.DeviceName)
}

// TraceUploadAbandoned sends an alert email when a trace upload exhausts
// its retries. Email is the only channel for abandonment alerts.
func (n *Notifier) TraceUploadAbandoned(filename, s3Key string, attempts int, lastError string) {
	cfg := n.cfg.Snapshot()
	if !cfg.HasGraph() {
		return
	}

	p := UploadAbandonedParams{
		Filename:   filename,
		S3Key:      s3Key,
		RetryCount: attempts,
		LastError:  lastError,
	}

	go util.LogNotifyResult(
		func() error { return n.sendUploadAbandonedWithClient(BuildGraphConfig(cfg), cfg.DeviceName, p) },
		"Upload abandoned email",
	)
}

// sendUploadAbandonedWithClient sends the abandonment alert using the cached Graph client.
func (n *Notifier) sendUploadAbandonedWithClient(cfg *GraphConfig, deviceName string, p UploadAbandonedParams) error {
	if !IsConfigured(cfg) {
		return nil
	}

	client, err := n.getOrCreateGraphClient(cfg)
	if err != nil {
		return util.WrapError("create Graph client", err)
	}

	subject := "[ALERT] Trace Upload Abandoned - " + deviceName
	body := fmt.Sprintf(
		"A noise trace upload was abandoned at %s.\n\n"+
			"Device: %s\n"+
			"File: %s\n"+
			"S3 key: %s\n"+
			"Retries: %d\n"+
			"Last error: %s\n\n"+
			"The file could not be uploaded to S3 after exhausting all retries.",
		util.HumanTime(), deviceName, p.Filename, p.S3Key, p.RetryCount, p.LastError,
	)

	recipients := ParseRecipients(cfg.Recipients)
	if len(recipients) == 0 {
		return fmt.Errorf("no valid recipients")
	}

	if err := client.SendMail(recipients, subject, body); err != nil {
		return util.WrapError("send email via Graph", err)
	}

	return nil
}
