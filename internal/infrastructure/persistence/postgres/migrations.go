package postgres

// GetMigrations returns all embedded migrations.
func GetMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_users_and_progressions", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_activity_events", UpSQL: migration002Up, DownSQL: migration002Down},
		{Version: 3, Name: "create_achievements", UpSQL: migration003Up, DownSQL: migration003Down},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: USERS AND PROGRESSIONS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    username VARCHAR(32) NOT NULL UNIQUE,
    email VARCHAR(254) NOT NULL,
    display_name VARCHAR(100) NOT NULL,
    age SMALLINT NOT NULL,
    parent_email VARCHAR(254) NOT NULL DEFAULT '',
    password_hash TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_age CHECK (age BETWEEN 5 AND 12)
);

-- One progression row per user; the engine locks it for every write.
CREATE TABLE IF NOT EXISTS progressions (
    user_id TEXT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
    cumulative_xp INTEGER NOT NULL DEFAULT 0,
    login_streak INTEGER NOT NULL DEFAULT 0,
    best_streak INTEGER NOT NULL DEFAULT 0,
    last_login_date DATE,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_xp CHECK (cumulative_xp >= 0),
    CONSTRAINT valid_streak CHECK (login_streak >= 0 AND best_streak >= login_streak)
);

CREATE INDEX IF NOT EXISTS idx_progressions_xp ON progressions(cumulative_xp DESC);
`

const migration001Down = `
DROP TABLE IF EXISTS progressions;
DROP TABLE IF EXISTS users;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: ACTIVITY EVENTS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE TABLE IF NOT EXISTS activity_events (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    kind VARCHAR(20) NOT NULL,
    topic VARCHAR(100) NOT NULL DEFAULT '',
    score INTEGER NOT NULL DEFAULT 0,
    max_score INTEGER NOT NULL DEFAULT 0,
    duration_seconds BIGINT NOT NULL DEFAULT 0,
    started_at TIMESTAMP WITH TIME ZONE,
    ended_at TIMESTAMP WITH TIME ZONE,
    login_date DATE,
    occurred_at TIMESTAMP WITH TIME ZONE NOT NULL,
    xp_awarded INTEGER NOT NULL DEFAULT 0,

    CONSTRAINT valid_kind CHECK (kind IN ('chat_turn', 'quiz_attempt', 'learning_session', 'login')),
    CONSTRAINT valid_score CHECK (score >= 0 AND score <= max_score OR kind != 'quiz_attempt'),
    CONSTRAINT valid_duration CHECK (duration_seconds >= 0)
);

CREATE INDEX IF NOT EXISTS idx_activity_events_user_time ON activity_events(user_id, occurred_at);
CREATE INDEX IF NOT EXISTS idx_activity_events_user_kind ON activity_events(user_id, kind);
`

const migration002Down = `
DROP TABLE IF EXISTS activity_events;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: ACHIEVEMENTS
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
CREATE TABLE IF NOT EXISTS achievements (
    id VARCHAR(50) PRIMARY KEY,
    name VARCHAR(100) NOT NULL,
    description TEXT NOT NULL,
    emoji VARCHAR(16) NOT NULL DEFAULT '',
    category VARCHAR(20) NOT NULL,
    metric VARCHAR(30) NOT NULL,
    threshold INTEGER NOT NULL,
    points INTEGER NOT NULL,

    CONSTRAINT valid_points CHECK (points >= 0)
);

-- The primary key is what makes a grant happen at most once.
CREATE TABLE IF NOT EXISTS user_achievements (
    user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    achievement_id VARCHAR(50) NOT NULL,
    earned_at TIMESTAMP WITH TIME ZONE NOT NULL,
    points INTEGER NOT NULL,

    PRIMARY KEY (user_id, achievement_id)
);

CREATE INDEX IF NOT EXISTS idx_user_achievements_earned ON user_achievements(user_id, earned_at DESC);
`

const migration003Down = `
DROP TABLE IF EXISTS user_achievements;
DROP TABLE IF EXISTS achievements;
`
