// Package sqlite persists seatwatch state in a single SQLite database file.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/agentstation/seatwatch"
	"github.com/agentstation/seatwatch/pkg/catalog"
	"github.com/agentstation/seatwatch/pkg/constants"
	"github.com/agentstation/seatwatch/pkg/errors"
	"github.com/agentstation/seatwatch/pkg/events"
	"github.com/agentstation/seatwatch/pkg/livefeed"
	"github.com/agentstation/seatwatch/pkg/logging"
	"github.com/agentstation/seatwatch/pkg/notify"
	"github.com/agentstation/seatwatch/pkg/subscriptions"
)

//go:embed migrations.sql
var migrations string

// Config configures the database.
type Config struct {
	Path        string
	BusyTimeout time.Duration
	Logger      *zerolog.Logger
}

// Store implements every seatwatch store on SQLite.
type Store struct {
	db     *sql.DB
	logger *zerolog.Logger
}

var _ seatwatch.Backend = (*Store)(nil)

// Open opens (creating if needed) the database at cfg.Path and applies
// migrations.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, &errors.ConfigError{Component: "sqlite", Message: "database path is required"}
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), constants.DirPermissions); err != nil {
			return nil, errors.NewConfigError("sqlite", "create database directory", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.WrapStore("open", "database", path, err)
	}
	// SQLite serializes writers; one connection avoids SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.ExecContext(ctx, "PRAGMA journal_mode = WAL")
	_, _ = db.ExecContext(ctx, "PRAGMA synchronous = NORMAL")

	if _, err := db.ExecContext(ctx, migrations); err != nil {
		_ = db.Close()
		return nil, errors.WrapStore("migrate", "database", path, err)
	}

	s := &Store{db: db, logger: logging.OrNop(cfg.Logger)}
	s.logger.Debug().Str("path", path).Msg("Opened database")
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// LastRun implements guard.RunStateStore.
func (s *Store) LastRun(ctx context.Context, key string) (time.Time, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT last_run FROM run_state WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, errors.NewNotFoundError("run_state", key)
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339Nano, raw)
}

// SetLastRun implements guard.RunStateStore.
func (s *Store) SetLastRun(ctx context.Context, key string, ts time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO run_state(key, last_run) VALUES(?, ?)
		 ON CONFLICT(key) DO UPDATE SET last_run = excluded.last_run`,
		key, formatTime(ts))
	return err
}

// LastSnapshot returns the stored catalog for semester/prefix.
func (s *Store) LastSnapshot(ctx context.Context, semester, prefix string) (catalog.Catalog, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM snapshots WHERE semester = ? AND prefix = ?`, semester, prefix).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("snapshot", semester+"/"+prefix)
	}
	if err != nil {
		return nil, err
	}
	return catalog.Decode(body)
}

// SaveSnapshot replaces the stored catalog for semester/prefix.
func (s *Store) SaveSnapshot(ctx context.Context, semester, prefix string, c catalog.Catalog) error {
	body, err := catalog.Encode(c, semester, prefix)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO snapshots(semester, prefix, body, updated_at) VALUES(?, ?, ?, ?)
		 ON CONFLICT(semester, prefix) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
		semester, prefix, body, formatTime(time.Now()))
	return err
}

// AppendEvents stores evs under key in one transaction. Re-appending an
// event id overwrites it.
func (s *Store) AppendEvents(ctx context.Context, key string, evs []events.Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO events(key, id, ts, body) VALUES(?, ?, ?, ?)
		 ON CONFLICT(key, id) DO UPDATE SET ts = excluded.ts, body = excluded.body`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, ev := range evs {
		body, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, key, ev.ID, ev.Timestamp.UnixNano(), string(body)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Events returns the history stored under key, oldest first.
func (s *Store) Events(ctx context.Context, key string) ([]events.Event, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT body FROM events WHERE key = ? ORDER BY ts, id`, key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []events.Event
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var ev events.Event
		if err := json.Unmarshal([]byte(body), &ev); err != nil {
			return nil, errors.WrapParse("json", "events/"+key, err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Subscribers implements subscriptions.Store.
func (s *Store) Subscribers(ctx context.Context, semester string, scope subscriptions.Scope, key string) ([]subscriptions.Subscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, settings, updated_at FROM subscriptions
		 WHERE semester = ? AND scope = ? AND key = ? ORDER BY user_id`,
		semester, string(scope), key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []subscriptions.Subscription{}
	for rows.Next() {
		sub := subscriptions.Subscription{Semester: semester, Scope: scope, Key: key}
		var settings, updated string
		if err := rows.Scan(&sub.UserID, &settings, &updated); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(settings), &sub.Settings); err != nil {
			return nil, errors.WrapParse("json", "subscriptions/"+sub.UserID, err)
		}
		sub.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
		out = append(out, sub)
	}
	return out, rows.Err()
}

// Subscribe implements subscriptions.Writer.
func (s *Store) Subscribe(ctx context.Context, sub subscriptions.Subscription) error {
	if err := sub.Validate(); err != nil {
		return err
	}
	if sub.Settings == nil {
		sub.Settings = subscriptions.Settings{}
	}
	settings, err := json.Marshal(sub.Settings)
	if err != nil {
		return err
	}
	if sub.UpdatedAt.IsZero() {
		sub.UpdatedAt = time.Now()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO subscriptions(semester, scope, key, user_id, settings, updated_at) VALUES(?, ?, ?, ?, ?, ?)
		 ON CONFLICT(semester, scope, key, user_id) DO UPDATE SET settings = excluded.settings, updated_at = excluded.updated_at`,
		sub.Semester, string(sub.Scope), sub.Key, sub.UserID, string(settings), formatTime(sub.UpdatedAt))
	return err
}

// Unsubscribe implements subscriptions.Writer.
func (s *Store) Unsubscribe(ctx context.Context, semester string, scope subscriptions.Scope, key, userID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM subscriptions WHERE semester = ? AND scope = ? AND key = ? AND user_id = ?`,
		semester, string(scope), key, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewNotFoundError("subscription", string(scope)+":"+key+":"+userID)
	}
	return nil
}

// Profile implements notify.ProfileStore.
func (s *Store) Profile(ctx context.Context, userID string) (notify.Profile, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM profiles WHERE user_id = ?`, userID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return notify.Profile{}, errors.NewNotFoundError("profile", userID)
	}
	if err != nil {
		return notify.Profile{}, err
	}
	var p notify.Profile
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		return notify.Profile{}, errors.WrapParse("json", "profiles/"+userID, err)
	}
	return p, nil
}

// SaveProfile creates or replaces a profile.
func (s *Store) SaveProfile(ctx context.Context, p notify.Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	body, err := json.Marshal(p)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO profiles(user_id, body) VALUES(?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET body = excluded.body`,
		p.UserID, string(body))
	return err
}

// Channels implements notify.CommunityStore.
func (s *Store) Channels(ctx context.Context, semester string, scope subscriptions.Scope, key string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT url FROM community_channels WHERE semester = ? AND scope = ? AND key = ? ORDER BY url`,
		semester, string(scope), key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, err
		}
		out = append(out, url)
	}
	return out, rows.Err()
}

// AddCommunityChannel registers a shared channel for a department or the
// everything scope.
func (s *Store) AddCommunityChannel(ctx context.Context, semester string, scope subscriptions.Scope, key, url string) error {
	if scope != subscriptions.ScopeDepartment && scope != subscriptions.ScopeEverything {
		return errors.NewValidationError("scope", string(scope), "community channels attach to department or everything")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO community_channels(semester, scope, key, url) VALUES(?, ?, ?, ?)
		 ON CONFLICT DO NOTHING`,
		semester, string(scope), key, url)
	return err
}

// Append implements livefeed.Store.
func (s *Store) Append(ctx context.Context, entries []livefeed.Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, e := range entries {
		body, err := json.Marshal(e)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO feed(event_id, observed_at, body) VALUES(?, ?, ?)
			 ON CONFLICT(event_id) DO UPDATE SET observed_at = excluded.observed_at, body = excluded.body`,
			e.EventID, e.ObservedAt.UnixNano(), string(body)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// PruneBefore implements livefeed.Store.
func (s *Store) PruneBefore(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM feed WHERE event_id IN (
		   SELECT event_id FROM feed WHERE observed_at < ? ORDER BY observed_at LIMIT ?
		 )`,
		cutoff.UnixNano(), limit)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Recent implements livefeed.Store.
func (s *Store) Recent(ctx context.Context, limit int) ([]livefeed.Entry, error) {
	if limit <= 0 {
		limit = constants.MaxPageSize
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT body FROM feed ORDER BY observed_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []livefeed.Entry
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var e livefeed.Entry
		if err := json.Unmarshal([]byte(body), &e); err != nil {
			return nil, errors.WrapParse("json", "feed", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
