// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"time"

	"github.com/youlearn/youlearn-progress/internal/domain/achievement"
	"github.com/youlearn/youlearn-progress/internal/domain/activity"
	"github.com/youlearn/youlearn-progress/internal/domain/progression"
	"github.com/youlearn/youlearn-progress/internal/domain/shared"
	"github.com/youlearn/youlearn-progress/internal/domain/stats"
	"github.com/youlearn/youlearn-progress/internal/domain/store"
	"github.com/youlearn/youlearn-progress/pkg/logger"
	"github.com/youlearn/youlearn-progress/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET STATS QUERY
// Dashboard rollup: level, XP, streak, quiz and learning-time stats,
// unlocked achievements, daily XP series and activity calendar.
// Everything is recomputed from history; the cache only saves the scan.
// ══════════════════════════════════════════════════════════════════════════════

// Default window sizes.
const (
	DefaultSeriesDays   = 7
	DefaultCalendarDays = 30
	MaxWindowDays       = 366
)

// GetStatsQuery contains the query parameters.
type GetStatsQuery struct {
	UserID string

	// SeriesDays is the length of the daily XP series (default 7).
	SeriesDays int

	// CalendarDays is the length of the activity calendar (default 30).
	CalendarDays int
}

// Validate validates the query.
func (q GetStatsQuery) Validate() error {
	if q.UserID == "" {
		return shared.ErrEmptyUserID
	}
	if q.SeriesDays < 0 || q.SeriesDays > MaxWindowDays || q.CalendarDays < 0 || q.CalendarDays > MaxWindowDays {
		return shared.Validationf("stats", "GetStats", "window must be between 0 and %d days", MaxWindowDays)
	}
	return nil
}

func (q GetStatsQuery) isDefault() bool {
	return (q.SeriesDays == 0 || q.SeriesDays == DefaultSeriesDays) &&
		(q.CalendarDays == 0 || q.CalendarDays == DefaultCalendarDays)
}

// EarnedAchievement is an unlocked achievement as shown on the dashboard.
type EarnedAchievement struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Emoji       string    `json:"emoji"`
	Category    string    `json:"category"`
	Points      int       `json:"points"`
	EarnedAt    time.Time `json:"earned_at"`
}

// Stats is the query result.
type Stats struct {
	UserID              string                 `json:"user_id"`
	Level               int                    `json:"level"`
	TotalXP             int                    `json:"total_xp"`
	ProgressWithinLevel float64                `json:"progress_within_level"`
	XPToNextLevel       int                    `json:"xp_to_next_level"`
	LoginStreak         int                    `json:"login_streak"`
	BestStreak          int                    `json:"best_streak"`
	LastLoginDate       *time.Time             `json:"last_login_date,omitempty"`
	QuizStats           stats.QuizStats        `json:"quiz_stats"`
	LearningTime        stats.LearningTime     `json:"learning_time"`
	Achievements        []EarnedAchievement    `json:"achievements"`
	Aggregates          achievement.Aggregates `json:"aggregates"`
	DailyXP             []stats.DailyXP        `json:"daily_xp"`
	Calendar            []stats.ActiveDay      `json:"calendar"`
	GeneratedAt         time.Time              `json:"generated_at"`
}

// StatsCache stores computed stats for the default windows.
type StatsCache interface {
	// GetStats fills dst and reports whether an entry was found.
	GetStats(ctx context.Context, userID string, dst *Stats) (bool, error)

	// SetStats stores stats for userID.
	SetStats(ctx context.Context, userID string, s *Stats) error
}

// GetStatsHandler handles GetStatsQuery.
type GetStatsHandler struct {
	store   store.Store
	catalog *achievement.Catalog
	cache   StatsCache
	clock   timeutil.Clock
	log     *logger.Logger
}

// NewGetStatsHandler creates a new GetStatsHandler. cache may be nil.
func NewGetStatsHandler(st store.Store, catalog *achievement.Catalog, cache StatsCache, clock timeutil.Clock, log *logger.Logger) *GetStatsHandler {
	if catalog == nil {
		catalog = achievement.DefaultCatalog()
	}
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &GetStatsHandler{
		store:   st,
		catalog: catalog,
		cache:   cache,
		clock:   clock,
		log:     log.With(logger.Component("get_stats")),
	}
}

// Handle executes the query.
func (h *GetStatsHandler) Handle(ctx context.Context, q GetStatsQuery) (*Stats, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	useCache := h.cache != nil && q.isDefault()

	if useCache {
		var cached Stats
		found, err := h.cache.GetStats(ctx, q.UserID, &cached)
		if err != nil {
			h.log.Warn("stats cache read failed", logger.UserID(q.UserID), logger.Err(err))
		} else if found {
			return &cached, nil
		}
	}

	var (
		state   *progression.State
		history activity.History
		grants  []achievement.Grant
	)
	err := h.store.View(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		if state, err = tx.Progress().Get(ctx, q.UserID); err != nil {
			return err
		}
		if history, err = tx.Activities().ListByUser(ctx, q.UserID); err != nil {
			return err
		}
		grants, err = tx.Grants().ListByUser(ctx, q.UserID)
		return err
	})
	if err != nil {
		return nil, err
	}

	result := h.build(q, state, history, grants)

	if useCache {
		if err := h.cache.SetStats(ctx, q.UserID, result); err != nil {
			h.log.Warn("stats cache write failed", logger.UserID(q.UserID), logger.Err(err))
		}
	}
	return result, nil
}

func (h *GetStatsHandler) build(q GetStatsQuery, state *progression.State, history activity.History, grants []achievement.Grant) *Stats {
	now := h.clock.Now().UTC()
	seriesDays, calendarDays := q.SeriesDays, q.CalendarDays
	if seriesDays == 0 {
		seriesDays = DefaultSeriesDays
	}
	if calendarDays == 0 {
		calendarDays = DefaultCalendarDays
	}

	return &Stats{
		UserID:              state.UserID(),
		Level:               state.Level(),
		TotalXP:             state.CumulativeXP(),
		ProgressWithinLevel: state.ProgressWithinLevel(),
		XPToNextLevel:       progression.XPToNextLevel(state.CumulativeXP()),
		LoginStreak:         state.LoginStreak(),
		BestStreak:          state.BestStreak(),
		LastLoginDate:       state.LastLoginDate(),
		QuizStats:           stats.SummarizeQuizzes(history),
		LearningTime:        stats.SplitLearningTime(stats.TotalLearningSeconds(history)),
		Achievements:        h.earned(grants),
		Aggregates:          achievement.ComputeAggregates(history, state),
		DailyXP:             stats.DailyXPSeries(history, grants, now, seriesDays),
		Calendar:            stats.ActiveDaysCalendar(history, now, calendarDays),
		GeneratedAt:         now,
	}
}

// earned maps grants (newest first) to display entries. Grants whose
// definition is no longer in the catalog keep their id and points.
func (h *GetStatsHandler) earned(grants []achievement.Grant) []EarnedAchievement {
	out := make([]EarnedAchievement, 0, len(grants))
	for _, g := range grants {
		e := EarnedAchievement{ID: g.AchievementID, Points: g.Points, EarnedAt: g.EarnedAt}
		if def, ok := h.catalog.Get(g.AchievementID); ok {
			e.Name = def.Name
			e.Description = def.Description
			e.Emoji = def.Emoji
			e.Category = string(def.Category)
		}
		out = append(out, e)
	}
	return out
}
