package history

import (
	"path/filepath"
	"testing"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kennelworks/hushd/internal/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestEpisodeLifecycle(t *testing.T) {
	s := openTestStore(t)

	ep := &types.Episode{
		StartedAt:    time.Date(2026, 8, 21, 14, 0, 0, 0, time.UTC),
		TriggerLevel: 250,
		Threshold:    100,
		RisingMs:     2100,
	}
	require.NoError(t, s.InsertEpisode(ep))
	assert.Positive(t, ep.ID)

	require.NoError(t, s.UpdateOutcome(ep.ID, types.OutcomeCompleted, "", 12500, 100000))
	require.NoError(t, s.SetTrace(ep.ID, "/traces/noise_2026-08-21_14-00-00.json", 4096))
	require.NoError(t, s.MarkTraceUploaded("/traces/noise_2026-08-21_14-00-00.json"))

	episodes, err := s.ListEpisodes(10)
	require.NoError(t, err)
	require.Len(t, episodes, 1)

	got := episodes[0]
	assert.Equal(t, ep.ID, got.ID)
	assert.Equal(t, 250, got.TriggerLevel)
	assert.Equal(t, 100, got.Threshold)
	assert.Equal(t, int64(2100), got.RisingMs)
	assert.Equal(t, types.OutcomeCompleted, got.Outcome)
	assert.Equal(t, int64(12500), got.DurationMs)
	assert.Equal(t, int64(100000), got.BytesPlayed)
	assert.Equal(t, "/traces/noise_2026-08-21_14-00-00.json", got.TracePath)
	assert.Equal(t, int64(4096), got.TraceSize)
	assert.True(t, got.Uploaded)
	assert.True(t, got.StartedAt.Equal(ep.StartedAt))

	count, err := s.CountEpisodes()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestListEpisodesOrderAndLimit(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2026, 8, 21, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		ep := &types.Episode{
			StartedAt:    base.Add(time.Duration(i) * time.Hour),
			TriggerLevel: 100 + i,
			Threshold:    100,
		}
		require.NoError(t, s.InsertEpisode(ep))
	}

	episodes, err := s.ListEpisodes(3)
	require.NoError(t, err)
	require.Len(t, episodes, 3)

	assert.Equal(t, 104, episodes[0].TriggerLevel, "newest first")
	assert.Equal(t, 103, episodes[1].TriggerLevel)
	assert.Equal(t, 102, episodes[2].TriggerLevel)
}

func TestPushSubscriptions(t *testing.T) {
	s := openTestStore(t)

	sub := &webpush.Subscription{
		Endpoint: "https://push.example.com/sub/1",
		Keys: webpush.Keys{
			Auth:   "auth-secret",
			P256dh: "p256dh-key",
		},
	}
	require.NoError(t, s.SaveSubscription(sub))

	// Saving the same endpoint again replaces, not duplicates.
	sub.Keys.Auth = "rotated-secret"
	require.NoError(t, s.SaveSubscription(sub))

	subs, err := s.Subscriptions()
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "https://push.example.com/sub/1", subs[0].Endpoint)
	assert.Equal(t, "rotated-secret", subs[0].Keys.Auth)
	assert.Equal(t, "p256dh-key", subs[0].Keys.P256dh)

	require.NoError(t, s.DeleteSubscription(sub.Endpoint))
	subs, err = s.Subscriptions()
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestMarkTraceUploadedUnknownPath(t *testing.T) {
	s := openTestStore(t)
	assert.NoError(t, s.MarkTraceUploaded("/traces/absent.json"))
}
