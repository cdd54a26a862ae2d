package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/youlearn/youlearn-progress/internal/domain/achievement"
	"github.com/youlearn/youlearn-progress/internal/domain/activity"
	"github.com/youlearn/youlearn-progress/internal/domain/progression"
	"github.com/youlearn/youlearn-progress/internal/domain/shared"
	"github.com/youlearn/youlearn-progress/internal/domain/store"
	"github.com/youlearn/youlearn-progress/internal/domain/user"
)

// Store implements store.Store on PostgreSQL.
type Store struct {
	conn *Connection
}

var _ store.Store = (*Store)(nil)

// NewStore wraps an open connection.
func NewStore(conn *Connection) *Store {
	return &Store{conn: conn}
}

// Atomic implements store.Store.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	err := s.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		return fn(ctx, pgTx{q: tx, forUpdate: true})
	})
	if IsSerializationFailure(err) {
		return shared.WrapError("store", "Atomic", shared.ErrConflict, "transaction aborted by a concurrent write", err)
	}
	return err
}

// View implements store.Store.
func (s *Store) View(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return s.conn.WithTx(ctx, ReadOnlyTxOptions(), func(tx pgx.Tx) error {
		return fn(ctx, pgTx{q: tx})
	})
}

// Catalog implements store.Store.
func (s *Store) Catalog() achievement.CatalogRepository {
	return catalogRepo{conn: s.conn}
}

// Close implements store.Store.
func (s *Store) Close() error {
	s.conn.Close()
	return nil
}

type pgTx struct {
	q         Querier
	forUpdate bool
}

func (t pgTx) Users() user.Repository              { return userRepo{t.q} }
func (t pgTx) Progress() progression.Repository    { return progressRepo{q: t.q, forUpdate: t.forUpdate} }
func (t pgTx) Activities() activity.Repository     { return activityRepo{t.q} }
func (t pgTx) Grants() achievement.GrantRepository { return grantRepo{t.q} }

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

// ══════════════════════════════════════════════════════════════════════════════
// USERS
// ══════════════════════════════════════════════════════════════════════════════

type userRepo struct{ q Querier }

func (r userRepo) Create(ctx context.Context, u *user.User) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO users (id, username, email, display_name, age, parent_email, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		u.ID(), u.Username(), u.Email(), u.DisplayName(), u.Age(), u.ParentEmail(), u.PasswordHash(), u.CreatedAt(),
	)
	if IsUniqueViolation(err) {
		return shared.ErrUserAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r userRepo) GetByID(ctx context.Context, id string) (*user.User, error) {
	var (
		username, email, displayName, parentEmail, hash string
		age                                             int
		createdAt                                       time.Time
	)
	err := r.q.QueryRow(ctx, `
		SELECT username, email, display_name, age, parent_email, password_hash, created_at
		FROM users WHERE id = $1`, id,
	).Scan(&username, &email, &displayName, &age, &parentEmail, &hash, &createdAt)
	if IsNoRows(err) {
		return nil, shared.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user.Restore(id, username, email, displayName, age, parentEmail, hash, createdAt.UTC())
}

func (r userRepo) Update(ctx context.Context, u *user.User) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE users
		SET email = $2, display_name = $3, age = $4, parent_email = $5, password_hash = $6
		WHERE id = $1`,
		u.ID(), u.Email(), u.DisplayName(), u.Age(), u.ParentEmail(), u.PasswordHash(),
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrUserNotFound
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESSIONS
// ══════════════════════════════════════════════════════════════════════════════

type progressRepo struct {
	q         Querier
	forUpdate bool
}

func (r progressRepo) Create(ctx context.Context, st *progression.State) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO progressions (user_id, cumulative_xp, login_streak, best_streak, last_login_date, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		st.UserID(), st.CumulativeXP(), st.LoginStreak(), st.BestStreak(), st.LastLoginDate(), st.UpdatedAt(),
	)
	if IsUniqueViolation(err) {
		return shared.ErrUserAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("failed to create progression: %w", err)
	}
	return nil
}

func (r progressRepo) GetForUpdate(ctx context.Context, userID string) (*progression.State, error) {
	q := `
		SELECT cumulative_xp, login_streak, best_streak, last_login_date, updated_at
		FROM progressions WHERE user_id = $1`
	if r.forUpdate {
		q += " FOR UPDATE"
	}
	return r.get(ctx, q, userID)
}

func (r progressRepo) Get(ctx context.Context, userID string) (*progression.State, error) {
	return r.get(ctx, `
		SELECT cumulative_xp, login_streak, best_streak, last_login_date, updated_at
		FROM progressions WHERE user_id = $1`, userID)
}

func (r progressRepo) get(ctx context.Context, query, userID string) (*progression.State, error) {
	var (
		xp, streak, best int
		lastLogin        *time.Time
		updatedAt        time.Time
	)
	err := r.q.QueryRow(ctx, query, userID).Scan(&xp, &streak, &best, &lastLogin, &updatedAt)
	if IsNoRows(err) {
		return nil, shared.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get progression: %w", err)
	}
	if lastLogin != nil {
		d := lastLogin.UTC()
		lastLogin = &d
	}
	return progression.RestoreState(userID, xp, streak, best, lastLogin, updatedAt.UTC())
}

func (r progressRepo) Save(ctx context.Context, st *progression.State) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE progressions
		SET cumulative_xp = $2, login_streak = $3, best_streak = $4, last_login_date = $5, updated_at = $6
		WHERE user_id = $1`,
		st.UserID(), st.CumulativeXP(), st.LoginStreak(), st.BestStreak(), st.LastLoginDate(), st.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to save progression: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrUserNotFound
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ACTIVITY EVENTS
// ══════════════════════════════════════════════════════════════════════════════

type activityRepo struct{ q Querier }

func (r activityRepo) Append(ctx context.Context, e *activity.Event) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO activity_events (
			id, user_id, kind, topic, score, max_score, duration_seconds,
			started_at, ended_at, login_date, occurred_at, xp_awarded
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		e.ID, e.UserID, string(e.Kind), e.Topic, e.Score, e.MaxScore, e.DurationSeconds,
		nullableTime(e.StartedAt), nullableTime(e.EndedAt), nullableTime(e.Date), e.OccurredAt, e.XPAwarded,
	)
	if IsForeignKeyViolation(err) {
		return shared.ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to append activity: %w", err)
	}
	return nil
}

func (r activityRepo) ListByUser(ctx context.Context, userID string) (activity.History, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, kind, topic, score, max_score, duration_seconds,
		       started_at, ended_at, login_date, occurred_at, xp_awarded
		FROM activity_events
		WHERE user_id = $1
		ORDER BY occurred_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list activities: %w", err)
	}
	defer rows.Close()

	var out activity.History
	for rows.Next() {
		var (
			e                           activity.Event
			kind                        string
			startedAt, endedAt, loginOn *time.Time
		)
		if err := rows.Scan(&e.ID, &kind, &e.Topic, &e.Score, &e.MaxScore, &e.DurationSeconds,
			&startedAt, &endedAt, &loginOn, &e.OccurredAt, &e.XPAwarded); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		e.UserID = userID
		e.Kind = activity.Kind(kind)
		e.OccurredAt = e.OccurredAt.UTC()
		if startedAt != nil {
			e.StartedAt = startedAt.UTC()
		}
		if endedAt != nil {
			e.EndedAt = endedAt.UTC()
		}
		if loginOn != nil {
			e.Date = loginOn.UTC()
		}
		out = append(out, activity.Restore(e))
	}
	return out, rows.Err()
}

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT GRANTS
// ══════════════════════════════════════════════════════════════════════════════

type grantRepo struct{ q Querier }

func (r grantRepo) Insert(ctx context.Context, g achievement.Grant) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		INSERT INTO user_achievements (user_id, achievement_id, earned_at, points)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, achievement_id) DO NOTHING`,
		g.UserID, g.AchievementID, g.EarnedAt, g.Points,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert grant: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r grantRepo) ListByUser(ctx context.Context, userID string) ([]achievement.Grant, error) {
	rows, err := r.q.Query(ctx, `
		SELECT achievement_id, earned_at, points
		FROM user_achievements
		WHERE user_id = $1
		ORDER BY earned_at DESC, achievement_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list grants: %w", err)
	}
	defer rows.Close()

	var out []achievement.Grant
	for rows.Next() {
		g := achievement.Grant{UserID: userID}
		if err := rows.Scan(&g.AchievementID, &g.EarnedAt, &g.Points); err != nil {
			return nil, fmt.Errorf("failed to scan grant: %w", err)
		}
		g.EarnedAt = g.EarnedAt.UTC()
		out = append(out, g)
	}
	return out, rows.Err()
}

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG
// ══════════════════════════════════════════════════════════════════════════════

type catalogRepo struct{ conn *Connection }

func (r catalogRepo) Seed(ctx context.Context, defs []achievement.Definition) (int, error) {
	inserted := 0
	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, d := range defs {
			batch.Queue(`
				INSERT INTO achievements (id, name, description, emoji, category, metric, threshold, points)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				ON CONFLICT (id) DO NOTHING`,
				d.ID, d.Name, d.Description, d.Emoji, string(d.Category), string(d.Metric), d.Threshold, d.Points,
			)
		}
		results := tx.SendBatch(ctx, batch)
		defer results.Close()

		for _, d := range defs {
			tag, err := results.Exec()
			if err != nil {
				return fmt.Errorf("failed to seed %s: %w", d.ID, err)
			}
			inserted += int(tag.RowsAffected())
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

func (r catalogRepo) List(ctx context.Context) ([]achievement.Definition, error) {
	rows, err := r.conn.Pool().Query(ctx, `
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
