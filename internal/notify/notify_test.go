package notify

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kennelworks/hushd/internal/config"
	"github.com/kennelworks/hushd/internal/types"
)

func testEpisode() *types.Episode {
	return &types.Episode{
		StartedAt:    time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC),
		TriggerLevel: 612,
		Threshold:    487,
		RisingMs:     2150,
		Outcome:      types.OutcomeCompleted,
		Reason:       "",
		DurationMs:   8200,
		BytesPlayed:  65536,
	}
}

func TestSendNoiseWebhook(t *testing.T) {
	received := make(chan WebhookPayload, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var p WebhookPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		received <- p
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	require.NoError(t, SendNoiseWebhook(srv.URL, testEpisode()))

	p := <-received
	assert.Equal(t, "noise_detected", p.Event)
	assert.Equal(t, 612, p.Level)
	assert.Equal(t, 487, p.Threshold)
	assert.Equal(t, int64(2150), p.RisingMs)
	assert.NotEmpty(t, p.Timestamp)
}

func TestSendPlaybackWebhook(t *testing.T) {
	received := make(chan WebhookPayload, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p WebhookPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		received <- p
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	ep := testEpisode()
	ep.Outcome = types.OutcomeCapped
	ep.Reason = "max_duration"
	require.NoError(t, SendPlaybackWebhook(srv.URL, ep))

	p := <-received
	assert.Equal(t, "playback_ended", p.Event)
	assert.Equal(t, "capped", p.Outcome)
	assert.Equal(t, "max_duration", p.Reason)
	assert.Equal(t, int64(8200), p.PlayedMs)
	assert.Equal(t, int64(65536), p.BytesPlayed)
}

func TestSendTestWebhook(t *testing.T) {
	received := make(chan WebhookPayload, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p WebhookPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		received <- p
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	require.NoError(t, SendTestWebhook(srv.URL, "Nursery Pi"))

	p := <-received
	assert.Equal(t, "test", p.Event)
	assert.Contains(t, p.Message, "Nursery Pi")

	assert.Error(t, SendTestWebhook("", "Nursery Pi"))
}

func TestSendWebhookErrors(t *testing.T) {
	t.Run("server error status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		err := SendNoiseWebhook(srv.URL, testEpisode())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "500")
	})

	t.Run("unconfigured URL is a no-op", func(t *testing.T) {
		require.NoError(t, SendNoiseWebhook("", testEpisode()))
	})
}

// zabbixTestServer accepts a single sender connection and replies with info.
func zabbixTestServer(t *testing.T, info string) (host string, port int, got <-chan zabbixRequest) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	reqCh := make(chan zabbixRequest, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()

		header := make([]byte, zabbixHeaderSize)
		if _, err := io.ReadFull(conn, header); err != nil {
			return
		}
		bodyLen := binary.LittleEndian.Uint64(header[5:])
		body := make([]byte, bodyLen)
		if _, err := io.ReadFull(conn, body); err != nil {
			return
		}

		var req zabbixRequest
		if err := json.Unmarshal(body, &req); err == nil {
			reqCh <- req
		}

		reply, _ := json.Marshal(zabbixResponse{Response: "success", Info: info})
		out := make([]byte, zabbixHeaderSize+len(reply))
		copy(out[0:5], zabbixMagic[:])
		binary.LittleEndian.PutUint64(out[5:zabbixHeaderSize], uint64(len(reply)))
		copy(out[zabbixHeaderSize:], reply)
		_, _ = conn.Write(out)
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return "127.0.0.1", addr.Port, reqCh
}

func TestSendNoiseZabbix(t *testing.T) {
	host, port, got := zabbixTestServer(t, "processed: 1; failed: 0; total: 1; seconds spent: 0.000042")

	err := SendNoiseZabbix(host, port, "nursery-pi", "hushd.noise", testEpisode())
	require.NoError(t, err)

	req := <-got
	require.Len(t, req.Data, 1)
	assert.Equal(t, "sender data", req.Request)
	assert.Equal(t, "nursery-pi", req.Data[0].Host)
	assert.Equal(t, "hushd.noise", req.Data[0].Key)
	assert.Equal(t, "event=NOISE level=612 threshold=487 rising_ms=2150", req.Data[0].Value)
}

func TestSendPlaybackZabbix(t *testing.T) {
	host, port, got := zabbixTestServer(t, "processed: 1; failed: 0; total: 1; seconds spent: 0.000042")

	ep := testEpisode()
	ep.Outcome = types.OutcomeCancelled
	ep.Reason = "cancelled"
	require.NoError(t, SendPlaybackZabbix(host, port, "nursery-pi", "hushd.noise", ep))

	req := <-got
	assert.Equal(t, "event=PLAYBACK outcome=cancelled duration_ms=8200 bytes=65536 reason=cancelled", req.Data[0].Value)
}

func TestSendZabbixRejections(t *testing.T) {
	t.Run("no items processed", func(t *testing.T) {
		host, port, _ := zabbixTestServer(t, "processed: 0; failed: 0; total: 0; seconds spent: 0.000001")

		err := SendTestZabbix(host, port, "nursery-pi", "hushd.noise")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "processed no items")
	})

	t.Run("missing config is a no-op", func(t *testing.T) {
		require.NoError(t, SendTestZabbix("", 10051, "", ""))
	})

	t.Run("connection refused", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		port := ln.Addr().(*net.TCPAddr).Port
		require.NoError(t, ln.Close())

		err = SendTestZabbix("127.0.0.1", port, "nursery-pi", "hushd.noise")
		assert.Error(t, err)
	})
}

func TestLogEntries(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "noise.log")

	ep := testEpisode()
	require.NoError(t, LogNoiseStart(logPath, ep))

	ep.TracePath = "/var/lib/hushd/traces/noise_2026-03-14_09-26-53.json"
	ep.TraceSize = 2048
	require.NoError(t, LogPlaybackEnd(logPath, ep))
	require.NoError(t, WriteTestLog(logPath))

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	lines := bytes.Split(bytes.TrimSpace(data), []byte("\n"))
	require.Len(t, lines, 3)

	var start types.NoiseLogEntry
	require.NoError(t, json.Unmarshal(lines[0], &start))
	assert.Equal(t, "noise_trigger", start.Event)
	assert.Equal(t, 612, start.Level)
	assert.Equal(t, 487, start.Threshold)
	assert.Equal(t, int64(2150), start.RisingMs)
	assert.NotEmpty(t, start.Timestamp)

	var end types.NoiseLogEntry
	require.NoError(t, json.Unmarshal(lines[1], &end))
	assert.Equal(t, "playback_end", end.Event)
	assert.Equal(t, "completed", end.Outcome)
	assert.Equal(t, int64(8200), end.PlayedMs)
	assert.Equal(t, int64(65536), end.Bytes)
	assert.Equal(t, ep.TracePath, end.TracePath)
	assert.Equal(t, int64(2048), end.TraceSize)

	var test types.NoiseLogEntry
	require.NoError(t, json.Unmarshal(lines[2], &test))
	assert.Equal(t, "test", test.Event)
}

func TestWriteTestLogUnconfigured(t *testing.T) {
	assert.Error(t, WriteTestLog(""))
}

func TestParseRecipients(t *testing.T) {
	assert.Equal(t, []string{"a@example.com", "b@example.com"},
		ParseRecipients("a@example.com, b@example.com"))
	assert.Equal(t, []string{"a@example.com"},
		ParseRecipients(" a@example.com ,, "))
	assert.Nil(t, ParseRecipients(""))
}

func TestValidateConfig(t *testing.T) {
	valid := &GraphConfig{
		TenantID:     "12345678-1234-1234-1234-123456789abc",
		ClientID:     "87654321-4321-4321-4321-cba987654321",
		ClientSecret: "secret",
		FromAddress:  "alerts@example.com",
		Recipients:   "ops@example.com",
	}
	assert.NoError(t, ValidateConfig(valid))
	assert.True(t, IsConfigured(valid))

	t.Run("rejects malformed tenant GUID", func(t *testing.T) {
		cfg := *valid
		cfg.TenantID = "not-a-guid"
		err := ValidateConfig(&cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "tenant ID")
	})

	t.Run("requires recipients", func(t *testing.T) {
		cfg := *valid
		cfg.Recipients = ""
		assert.Error(t, ValidateConfig(&cfg))
		assert.False(t, IsConfigured(&cfg))
	})

	t.Run("lenient validation for client creation", func(t *testing.T) {
		cfg := *valid
		cfg.TenantID = "contoso.onmicrosoft.com"
		_, err := NewGraphClient(&cfg)
		assert.NoError(t, err)
	})
}

type stubSubscriptionStore struct {
	subs    []webpush.Subscription
	subsErr error
	deleted []string
}

func (s *stubSubscriptionStore) Subscriptions() ([]webpush.Subscription, error) {
	return s.subs, s.subsErr
}

func (s *stubSubscriptionStore) DeleteSubscription(endpoint string) error {
	s.deleted = append(s.deleted, endpoint)
	return nil
}

func TestSendPush(t *testing.T) {
	t.Run("skips when keys missing", func(t *testing.T) {
		store := &stubSubscriptionStore{subs: []webpush.Subscription{{Endpoint: "https://push.example/1"}}}
		require.NoError(t, SendNoisePush(PushConfig{}, store, testEpisode()))
	})

	t.Run("skips when no subscriptions", func(t *testing.T) {
		cfg := PushConfig{PublicKey: "pub", PrivateKey: "priv", Contact: "mailto:ops@example.com"}
		require.NoError(t, SendNoisePush(cfg, &stubSubscriptionStore{}, testEpisode()))
	})

	t.Run("test push requires keys", func(t *testing.T) {
		err := SendTestPush(PushConfig{}, &stubSubscriptionStore{}, "Nursery Pi")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "VAPID")
	})

	t.Run("test push requires subscriptions", func(t *testing.T) {
		cfg := PushConfig{PublicKey: "pub", PrivateKey: "priv"}
		err := SendTestPush(cfg, &stubSubscriptionStore{}, "Nursery Pi")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no push subscriptions")
	})

	t.Run("store error surfaces", func(t *testing.T) {
		cfg := PushConfig{PublicKey: "pub", PrivateKey: "priv"}
		store := &stubSubscriptionStore{subsErr: fmt.Errorf("db closed")}
		err := SendTestPush(cfg, store, "Nursery Pi")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "db closed")
	})
}

func TestNotifierEpisodeFanout(t *testing.T) {
	received := make(chan WebhookPayload, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p WebhookPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		received <- p
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := config.New(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, cfg.SetWebhookURL(srv.URL))

	n := NewNotifier(cfg)
	defer n.Close()

	ep := testEpisode()
	n.EpisodeTriggered(ep)

	select {
	case p := <-received:
		assert.Equal(t, "noise_detected", p.Event)
		assert.Equal(t, 612, p.Level)
	case <-time.After(5 * time.Second):
		t.Fatal("noise webhook never arrived")
	}

	n.EpisodeEnded(ep)

	select {
	case p := <-received:
		assert.Equal(t, "playback_ended", p.Event)
		assert.Equal(t, "completed", p.Outcome)
	case <-time.After(5 * time.Second):
		t.Fatal("playback webhook never arrived")
	}
}

func TestNotifierSkipsUnconfiguredChannels(t *testing.T) {
	cfg := config.New(filepath.Join(t.TempDir(), "config.json"))
	n := NewNotifier(cfg)
	defer n.Close()

	// Nothing configured: fan-out must be a silent no-op.
	n.EpisodeTriggered(testEpisode())
	n.EpisodeEnded(testEpisode())
	n.TraceUploadAbandoned("noise_2026-03-14_09-26-53.json", "traces/noise_2026-03-14_09-26-53.json", 12, "connection refused")
}

func TestBuildConfigs(t *testing.T) {
	cfg := config.New(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, cfg.SetGraphConfig("tenant", "client", "secret", "from@example.com", "to@example.com"))
	require.NoError(t, cfg.SetPushConfig("pubkey", "privkey", "mailto:ops@example.com"))

	snap := cfg.Snapshot()

	graph := BuildGraphConfig(snap)
	assert.Equal(t, "tenant", graph.TenantID)
	assert.Equal(t, "client", graph.ClientID)
	assert.Equal(t, "secret", graph.ClientSecret)
	assert.Equal(t, "from@example.com", graph.FromAddress)
	assert.Equal(t, "to@example.com", graph.Recipients)

	push := BuildPushConfig(snap)
	assert.Equal(t, "pubkey", push.PublicKey)
	assert.Equal(t, "privkey", push.PrivateKey)
	assert.Equal(t, "mailto:ops@example.com", push.Contact)
}

func TestNATSPublisherUnconfigured(t *testing.T) {
	p := NewNATSPublisher()
	defer p.Close()

	require.NoError(t, p.PublishNoise("", "", "Nursery Pi", testEpisode()))
	assert.Error(t, p.PublishTest("", "", "Nursery Pi"))
}
