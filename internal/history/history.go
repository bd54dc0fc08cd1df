// Package history persists noise episodes and push subscriptions in a
// local SQLite database.
package history

import (
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"

	webpush "github.com/SherClockHolmes/webpush-go"
	_ "github.com/mattn/go-sqlite3"

	"github.com/kennelworks/hushd/internal/types"
	"github.com/kennelworks/hushd/internal/util"
)

const schema = `
CREATE TABLE IF NOT EXISTS episodes (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	started_at TIMESTAMP NOT NULL,
	trigger_level INTEGER NOT NULL,
	threshold INTEGER NOT NULL,
	rising_ms INTEGER NOT NULL,
	outcome TEXT NOT NULL DEFAULT '',
	reason TEXT NOT NULL DEFAULT '',
	duration_ms INTEGER NOT NULL DEFAULT 0,
	bytes_played INTEGER NOT NULL DEFAULT 0,
	trace_path TEXT NOT NULL DEFAULT '',
	trace_size INTEGER NOT NULL DEFAULT 0,
	uploaded INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_episodes_started_at ON episodes(started_at DESC);

CREATE TABLE IF NOT EXISTS push_subscriptions (
	endpoint TEXT PRIMARY KEY,
	data TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// Store wraps the SQLite database holding episodes and subscriptions.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, util.WrapError("create history directory", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, util.WrapError("open history database", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, util.WrapError("initialize history schema", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// InsertEpisode stores a freshly triggered episode and fills in its ID.
func (s *Store) InsertEpisode(ep *types.Episode) error {
	res, err := s.db.Exec(
		`INSERT INTO episodes (started_at, trigger_level, threshold, rising_ms, outcome, reason, duration_ms, bytes_played)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ep.StartedAt, ep.TriggerLevel, ep.Threshold, ep.RisingMs,
		string(ep.Outcome), ep.Reason, ep.DurationMs, ep.BytesPlayed,
	)
	if err != nil {
		return util.WrapError("insert episode", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return util.WrapError("read episode id", err)
	}
	ep.ID = id
	return nil
}

// UpdateOutcome records how an episode's playback ended.
func (s *Store) UpdateOutcome(id int64, outcome types.PlaybackOutcome, reason string, durationMs, bytesPlayed int64) error {
	_, err := s.db.Exec(
		`UPDATE episodes SET outcome = ?, reason = ?, duration_ms = ?, bytes_played = ? WHERE id = ?`,
		string(outcome), reason, durationMs, bytesPlayed, id,
	)
	return util.WrapError("update episode outcome", err)
}

// SetTrace attaches a trace file to an episode.
func (s *Store) SetTrace(id int64, path string, size int64) error {
	_, err := s.db.Exec(
		`UPDATE episodes SET trace_path = ?, trace_size = ? WHERE id = ?`,
		path, size, id,
	)
	return util.WrapError("set episode trace", err)
}

// MarkTraceUploaded flags the episode owning the given trace file as
// uploaded.
func (s *Store) MarkTraceUploaded(tracePath string) error {
	_, err := s.db.Exec(
		`UPDATE episodes SET uploaded = 1 WHERE trace_path = ?`,
		tracePath,
	)
	return util.WrapError("mark trace uploaded", err)
}

// ListEpisodes returns the most recent episodes, newest first.
func (s *Store) ListEpisodes(limit int) ([]types.Episode, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(
		`SELECT id, started_at, trigger_level, threshold, rising_ms, outcome, reason, duration_ms, bytes_played, trace_path, trace_size, uploaded
		 FROM episodes ORDER BY started_at DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, util.WrapError("list episodes", err)
	}
	defer util.SafeCloseFunc(rows, "episode rows")()

	var episodes []types.Episode
	for rows.Next() {
		var ep types.Episode
		var outcome string
		if err := rows.Scan(
			&ep.ID, &ep.StartedAt, &ep.TriggerLevel, &ep.Threshold, &ep.RisingMs,
			&outcome, &ep.Reason, &ep.DurationMs, &ep.BytesPlayed,
			&ep.TracePath, &ep.TraceSize, &ep.Uploaded,
		); err != nil {
			return nil, util.WrapError("scan episode", err)
		}
		ep.Outcome = types.PlaybackOutcome(outcome)
		episodes = append(episodes, ep)
	}
	return episodes, rows.Err()
}

// CountEpisodes returns the total number of recorded episodes.
func (s *Store) CountEpisodes() (int64, error) {
	var count int64
	err := s.db.QueryRow(`SELECT COUNT(*) FROM episodes`).Scan(&count)
	return count, util.WrapError("count episodes", err)
}

// SaveSubscription stores a browser push subscription, replacing any
// previous one for the same endpoint.
func (s *Store) SaveSubscription(sub *webpush.Subscription) error {
	data, err := json.Marshal(sub)
	if err != nil {
		return util.WrapError("encode push subscription", err)
	}
	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO push_subscriptions (endpoint, data) VALUES (?, ?)`,
		sub.Endpoint, string(data),
	)
	return util.WrapError("save push subscription", err)
}

// Subscriptions returns all stored push subscriptions.
func (s *Store) Subscriptions() ([]webpush.Subscription, error) {
	rows, err := s.db.Query(`SELECT data FROM push_subscriptions`)
	if err != nil {
		return nil, util.WrapError("list push subscriptions", err)
	}
	defer util.SafeCloseFunc(rows, "subscription rows")()

	var subs []webpush.Subscription
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, util.WrapError("scan push subscription", err)
		}
		var sub webpush.Subscription
		if err := json.Unmarshal([]byte(data), &sub); err != nil {
			return nil, util.WrapError("decode push subscription", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// DeleteSubscription removes the subscription with the given endpoint.
// Called when a push delivery reports the endpoint gone.
func (s *Store) DeleteSubscription(endpoint string) error {
	_, err := s.db.Exec(`DELETE FROM push_subscriptions WHERE endpoint = ?`, endpoint)
	return util.WrapError("delete push subscription", err)
}
