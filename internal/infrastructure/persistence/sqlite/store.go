// Package sqlite implements store.Store on an embedded SQLite database
// (pure Go driver, no CGO). Suited to single-node deployments and tests.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	// Pure Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"

	"github.com/youlearn/youlearn-progress/internal/domain/achievement"
	"github.com/youlearn/youlearn-progress/internal/domain/activity"
	"github.com/youlearn/youlearn-progress/internal/domain/progression"
	"github.com/youlearn/youlearn-progress/internal/domain/shared"
	"github.com/youlearn/youlearn-progress/internal/domain/store"
	"github.com/youlearn/youlearn-progress/internal/domain/user"
)

const (
	// Fixed width so that text order is time order.
	timeLayout = "2006-01-02T15:04:05.000000000Z"
	dateLayout = "2006-01-02"
)

// Store is a SQLite-backed store.Store.
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open connects to the database at dsn (":memory:" for an ephemeral one),
// applies pragmas and creates the schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection serialises writers and keeps :memory: databases alive.
	db.SetMaxOpenConns(1)

	if err := applyPragmas(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	username      TEXT NOT NULL UNIQUE,
	email         TEXT NOT NULL,
	display_name  TEXT NOT NULL,
	age           INTEGER NOT NULL,
	parent_email  TEXT NOT NULL DEFAULT '',
	password_hash TEXT NOT NULL DEFAULT '',
	created_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS progressions (
	user_id         TEXT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
	cumulative_xp   INTEGER NOT NULL DEFAULT 0 CHECK (cumulative_xp >= 0),
	login_streak    INTEGER NOT NULL DEFAULT 0 CHECK (login_streak >= 0),
	best_streak     INTEGER NOT NULL DEFAULT 0 CHECK (best_streak >= 0),
	last_login_date TEXT,
	updated_at      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS activity_events (
	id               TEXT PRIMARY KEY,
	user_id          TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	kind             TEXT NOT NULL,
	topic            TEXT NOT NULL DEFAULT '',
	score            INTEGER NOT NULL DEFAULT 0,
	max_score        INTEGER NOT NULL DEFAULT 0,
	duration_seconds INTEGER NOT NULL DEFAULT 0,
	started_at       TEXT,
	ended_at         TEXT,
	login_date       TEXT,
	occurred_at      TEXT NOT NULL,
	xp_awarded       INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_activity_events_user ON activity_events(user_id, occurred_at);

CREATE TABLE IF NOT EXISTS achievements (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	description TEXT NOT NULL,
	emoji       TEXT NOT NULL DEFAULT '',
	category    TEXT NOT NULL,
	metric      TEXT NOT NULL,
	threshold   INTEGER NOT NULL,
	points      INTEGER NOT NULL CHECK (points >= 0)
);

CREATE TABLE IF NOT EXISTS user_achievements (
	user_id        TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	achievement_id TEXT NOT NULL,
	earned_at      TEXT NOT NULL,
	points         INTEGER NOT NULL,
	PRIMARY KEY (user_id, achievement_id)
);
`

// DB returns the underlying *sql.DB for raw queries.
func (s *Store) DB() *sql.DB { return s.db }

// Close implements store.Store.
func (s *Store) Close() error { return s.db.Close() }

// Atomic implements store.Store.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return s.withTx(ctx, nil, fn)
}

// View implements store.Store.
func (s *Store) View(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return s.withTx(ctx, &sql.TxOptions{ReadOnly: true}, fn)
}

func (s *Store) withTx(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context, tx store.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(ctx, &sqlTx{tx: tx}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Catalog implements store.Store.
func (s *Store) Catalog() achievement.CatalogRepository {
	return catalogRepo{db: s.db}
}

// ══════════════════════════════════════════════════════════════════════════════
// TRANSACTION-BOUND REPOSITORIES
// ══════════════════════════════════════════════════════════════════════════════

type sqlTx struct {
	tx *sql.Tx
}

func (t *sqlTx) Users() user.Repository              { return userRepo{t.tx} }
func (t *sqlTx) Progress() progression.Repository    { return progressRepo{t.tx} }
func (t *sqlTx) Activities() activity.Repository     { return activityRepo{t.tx} }
func (t *sqlTx) Grants() achievement.GrantRepository { return grantRepo{t.tx} }

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

// parseTime also accepts RFC 3339 values written before the fixed layout.
func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, err = time.Parse(time.RFC3339Nano, s)
	}
	return t.UTC(), err
}

func nullTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(t), Valid: true}
}

// ── users ────────────────────────────────────────────────────────────────────

type userRepo struct{ tx *sql.Tx }

func (r userRepo) Create(ctx context.Context, u *user.User) error {
	_, err := r.tx.ExecContext(ctx, `
		INSERT INTO users (id, username, email, display_name, age, parent_email, password_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID(), u.Username(), u.Email(), u.DisplayName(), u.Age(), u.ParentEmail(), u.PasswordHash(), formatTime(u.CreatedAt()),
	)
	if isUniqueViolation(err) {
		return shared.ErrUserAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r userRepo) GetByID(ctx context.Context, id string) (*user.User, error) {
	var (
		username, email, displayName, parentEmail, hash, createdAt string
		age                                                        int
	)
	err := r.tx.QueryRowContext(ctx, `
		SELECT username, email, display_name, age, parent_email, password_hash, created_at
		FROM users WHERE id = ?`, id,
	).Scan(&username, &email, &displayName, &age, &parentEmail, &hash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	created, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	return user.Restore(id, username, email, displayName, age, parentEmail, hash, created)
}

func (r userRepo) Update(ctx context.Context, u *user.User) error {
	res, err := r.tx.ExecContext(ctx, `
		UPDATE users
		SET email = ?, display_name = ?, age = ?, parent_email = ?, password_hash = ?
		WHERE id = ?`,
		u.Email(), u.DisplayName(), u.Age(), u.ParentEmail(), u.PasswordHash(), u.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return shared.ErrUserNotFound
	}
	return nil
}

// ── progression ──────────────────────────────────────────────────────────────

type progressRepo struct{ tx *sql.Tx }

func (r progressRepo) Create(ctx context.Context, st *progression.State) error {
	_, err := r.tx.ExecContext(ctx, `
		INSERT INTO progressions (user_id, cumulative_xp, login_streak, best_streak, last_login_date, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		st.UserID(), st.CumulativeXP(), st.LoginStreak(), st.BestStreak(), loginDate(st), formatTime(st.UpdatedAt()),
	)
	if isUniqueViolation(err) {
		return shared.ErrUserAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("failed to create progression: %w", err)
	}
	return nil
}

// GetForUpdate needs no row lock: the single connection already serialises transactions.
func (r progressRepo) GetForUpdate(ctx context.Context, userID string) (*progression.State, error) {
	return r.Get(ctx, userID)
}

func (r progressRepo) Get(ctx context.Context, userID string) (*progression.State, error) {
	var (
		xp, streak, best int
		lastLogin        sql.NullString
		updatedAt        string
	)
	err := r.tx.QueryRowContext(ctx, `
		SELECT cumulative_xp, login_streak, best_streak, last_login_date, updated_at
		FROM progressions WHERE user_id = ?`, userID,
	).Scan(&xp, &streak, &best, &lastLogin, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get progression: %w", err)
	}

	var last *time.Time
	if lastLogin.Valid {
		d, err := time.Parse(dateLayout, lastLogin.String)
		if err != nil {
			return nil, err
		}
		last = &d
	}
	updated, err := parseTime(updatedAt)
	if err != nil {
		return nil, err
	}
	return progression.RestoreState(userID, xp, streak, best, last, updated)
}

func (r progressRepo) Save(ctx context.Context, st *progression.State) error {
	res, err := r.tx.ExecContext(ctx, `
		UPDATE progressions
		SET cumulative_xp = ?, login_streak = ?, best_streak = ?, last_login_date = ?, updated_at = ?
		WHERE user_id = ?`,
		st.CumulativeXP(), st.LoginStreak(), st.BestStreak(), loginDate(st), formatTime(st.UpdatedAt()), st.UserID(),
	)
	if err != nil {
		return fmt.Errorf("failed to save progression: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return shared.ErrUserNotFound
	}
	return nil
}

func loginDate(st *progression.State) sql.NullString {
	d := st.LastLoginDate()
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.UTC().Format(dateLayout), Valid: true}
}

// ── activities ───────────────────────────────────────────────────────────────

type activityRepo struct{ tx *sql.Tx }

func (r activityRepo) Append(ctx context.Context, e *activity.Event) error {
	var date sql.NullString
	if !e.Date.IsZero() {
		date = sql.NullString{String: e.Date.UTC().Format(dateLayout), Valid: true}
	}
	_, err := r.tx.ExecContext(ctx, `
		INSERT INTO activity_events (
			id, user_id, kind, topic, score, max_score, duration_seconds,
			started_at, ended_at, login_date, occurred_at, xp_awarded
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, string(e.Kind), e.Topic, e.Score, e.MaxScore, e.DurationSeconds,
		nullTime(e.StartedAt), nullTime(e.EndedAt), date, formatTime(e.OccurredAt), e.XPAwarded,
	)
	if err != nil {
		return fmt.Errorf("failed to append activity: %w", err)
	}
	return nil
}

func (r activityRepo) ListByUser(ctx context.Context, userID string) (activity.History, error) {
	rows, err := r.tx.QueryContext(ctx, `
		SELECT id, kind, topic, score, max_score, duration_seconds,
		       started_at, ended_at, login_date, occurred_at, xp_awarded
		FROM activity_events
		WHERE user_id = ?
		ORDER BY occurred_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list activities: %w", err)
	}
	defer rows.Close()

	var out activity.History
	for rows.Next() {
		var (
			e                           activity.Event
			kind, occurredAt            string
			startedAt, endedAt, loginOn sql.NullString
		)
		if err := rows.Scan(&e.ID, &kind, &e.Topic, &e.Score, &e.MaxScore, &e.DurationSeconds,
			&startedAt, &endedAt, &loginOn, &occurredAt, &e.XPAwarded); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		e.UserID = userID
		e.Kind = activity.Kind(kind)
		if e.OccurredAt, err = parseTime(occurredAt); err != nil {
			return nil, err
		}
		if startedAt.Valid {
			if e.StartedAt, err = parseTime(startedAt.String); err != nil {
				return nil, err
			}
		}
		if endedAt.Valid {
			if e.EndedAt, err = parseTime(endedAt.String); err != nil {
				return nil, err
			}
		}
		if loginOn.Valid {
			if e.Date, err = time.Parse(dateLayout, loginOn.String); err != nil {
				return nil, err
			}
		}
		out = append(out, activity.Restore(e))
	}
	return out.Sorted(), rows.Err()
}

// ── grants ───────────────────────────────────────────────────────────────────

type grantRepo struct{ tx *sql.Tx }

func (r grantRepo) Insert(ctx context.Context, g achievement.Grant) (bool, error) {
	res, err := r.tx.ExecContext(ctx, `
		INSERT INTO user_achievements (user_id, achievement_id, earned_at, points)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, achievement_id) DO NOTHING`,
		g.UserID, g.AchievementID, formatTime(g.EarnedAt), g.Points,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert grant: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r grantRepo) ListByUser(ctx context.Context, userID string) ([]achievement.Grant, error) {
	rows, err := r.tx.QueryContext(ctx, `
		SELECT achievement_id, earned_at, points
		FROM user_achievements
		WHERE user_id = ?
		ORDER BY earned_at DESC, achievement_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list grants: %w", err)
	}
	defer rows.Close()

	var out []achievement.Grant
	for rows.Next() {
		g := achievement.Grant{UserID: userID}
		var earnedAt string
		if err := rows.Scan(&g.AchievementID, &earnedAt, &g.Points); err != nil {
			return nil, fmt.Errorf("failed to scan grant: %w", err)
		}
		if g.EarnedAt, err = parseTime(earnedAt); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// ── catalog ──────────────────────────────────────────────────────────────────

type catalogRepo struct{ db *sql.DB }

func (r catalogRepo) Seed(ctx context.Context, defs []achievement.Definition) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	inserted := 0
	for _, d := range defs {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO achievements (id, name, description, emoji, category, metric, threshold, points)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO NOTHING`,
			d.ID, d.Name, d.Description, d.Emoji, string(d.Category), string(d.Metric), d.Threshold, d.Points,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to seed %s: %w", d.ID, err)
		}
		if n, _ := res.RowsAffected(); n == 1 {
			inserted++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return inserted, nil
}

func (r catalogRepo) List(ctx context.Context) ([]achievement.Definition, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, description, emoji, category, metric, threshold, points
		FROM achievements ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list achievements: %w", err)
	}
	defer rows.Close()

	var out []achievement.Definition
	for rows.Next() {
		var d achievement.Definition
		var category, metric string
		if err := rows.Scan(&d.ID, &d.Name, &d.Description, &d.Emoji, &category, &metric, &d.Threshold, &d.Points); err != nil {
			return nil, fmt.Errorf("failed to scan achievement: %w", err)
		}
		d.Category = achievement.Category(category)
		d.Metric = achievement.Metric(metric)
		out = append(out, d)
	}
	return out, rows.Err()
}
