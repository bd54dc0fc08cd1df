package notify

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kennelworks/hushd/internal/types"
	"github.com/kennelworks/hushd/internal/util"
)

const (
	natsConnectTimeout = 5 * time.Second
	natsReconnectWait  = 2 * time.Second
)

// natsEvent is the JSON payload published to the fleet subject.
type natsEvent struct {
	Device      string `json:"device"`
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

// NATSPublisher publishes device events to a NATS subject.
// The connection is established lazily on first publish and reused.
type NATSPublisher struct {
	mu   sync.Mutex
	conn *nats.Conn
	url  string
}

// NewNATSPublisher creates a publisher. No connection is made until publish.
func NewNATSPublisher() *NATSPublisher {
	return &NATSPublisher{}
}

// getOrConnect returns a live connection, dialing if needed.
// A URL change invalidates the cached connection.
func (p *NATSPublisher) getOrConnect(url string) (*nats.Conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn != nil && p.url == url && p.conn.IsConnected() {
		return p.conn, nil
	}

	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}

	conn, err := nats.Connect(url,
		nats.Name("hushd"),
		nats.Timeout(natsConnectTimeout),
		nats.ReconnectWait(natsReconnectWait),
	)
	if err != nil {
		return nil, util.WrapError("connect to nats", err)
	}

	p.conn = conn
	p.url = url
	return conn, nil
}

// publish marshals the event and publishes it to subject.
func (p *NATSPublisher) publish(url, subject string, event natsEvent) error {
	if url == "" || subject == "" {
		return nil
	}

	conn, err := p.getOrConnect(url)
	if err != nil {
		return err
	}

	data, err := json.Marshal(event)
	if err != nil {
		return util.WrapError("marshal nats event", err)
	}

	if err := conn.Publish(subject, data); err != nil {
		return util.WrapError("publish nats event", err)
	}
	return conn.Flush()
}

// PublishNoise publishes a noise trigger to the fleet subject.
func (p *NATSPublisher) PublishNoise(url, subject, device string, ep *types.Episode) error {
	return p.publish(url, subject, natsEvent{
		Device:    device,
		Event:     "noise_detected",
		Level:     ep.TriggerLevel,
		Threshold: ep.Threshold,
		RisingMs:  ep.RisingMs,
		Timestamp: timestampUTC(),
	})
}

// PublishPlayback publishes a playback result to the fleet subject.
func (p *NATSPublisher) PublishPlayback(url, subject, device string, ep *types.Episode) error {
	return p.publish(url, subject, natsEvent{
		Device:      device,
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

// PublishTest publishes a test event to verify NATS config.
func (p *NATSPublisher) PublishTest(url, subject, device string) error {
	if url == "" || subject == "" {
		return fmt.Errorf("nats URL or subject not configured")
	}
	return p.publish(url, subject, natsEvent{
		Device:    device,
		Event:     "test",
		Message:   "This is a test event from " + device,
		Timestamp: timestampUTC(),
	})
}

// Close drains and closes the connection if one was established.
func (p *NATSPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
}
