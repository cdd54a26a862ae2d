package command

import (
	"context"
	"time"

	"github.com/youlearn/youlearn-progress/internal/application/saga"
	"github.com/youlearn/youlearn-progress/internal/domain/activity"
	"github.com/youlearn/youlearn-progress/internal/domain/progression"
	"github.com/youlearn/youlearn-progress/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD LOGIN COMMAND
// Advances the daily login streak. Same-day logins are a no-op.
// ══════════════════════════════════════════════════════════════════════════════

// RecordLoginCommand records a login on a calendar day.
type RecordLoginCommand struct {
	UserID string

	// Date is the login day (defaults to today if zero).
	Date time.Time

	CorrelationID string
}

// RecordLoginResult contains the streak after the login.
type RecordLoginResult struct {
	UserID          string                  `json:"user_id"`
	LoginStreak     int                     `json:"login_streak"`
	BestStreak      int                     `json:"best_streak"`
	StreakUpdated   bool                    `json:"streak_updated"`
	StreakReset     bool                    `json:"streak_reset"`
	NewAchievements []saga.AchievementAward `json:"new_achievements"`
}

// RecordLoginHandler handles RecordLoginCommand.
type RecordLoginHandler struct {
	unit *progressUnit
}

// NewRecordLoginHandler creates a new RecordLoginHandler.
func NewRecordLoginHandler(deps Deps) *RecordLoginHandler {
	return &RecordLoginHandler{unit: newProgressUnit(deps, "record_login")}
}

// Handle records the login.
func (h *RecordLoginHandler) Handle(ctx context.Context, cmd RecordLoginCommand) (*RecordLoginResult, error) {
	date := cmd.Date
	if date.IsZero() {
		date = h.unit.deps.Clock.Now()
	}
	ev, err := activity.NewLogin(cmd.UserID, date)
	if err != nil {
		return nil, err
	}

	out, err := h.unit.apply(ctx, ev, func(*activity.Event) (int, error) {
		return progression.LoginXP, nil
	}, cmd.CorrelationID)
	if err != nil {
		h.unit.log.Debug("login rejected", logger.UserID(cmd.UserID), logger.Err(err))
		return nil, err
	}

	res := &RecordLoginResult{
		UserID:          cmd.UserID,
		LoginStreak:     out.state.LoginStreak(),
		BestStreak:      out.state.BestStreak(),
		StreakUpdated:   out.streak.Changed,
		StreakReset:     out.streak.Reset,
		NewAchievements: []saga.AchievementAward{},
	}
	if out.flow != nil {
		res.NewAchievements = out.flow.NewAchievements
	}

	if res.StreakUpdated {
		h.unit.log.Info("login streak updated",
			logger.UserID(cmd.UserID),
			logger.Int("streak", res.LoginStreak),
			logger.Bool("reset", res.StreakReset),
		)
	}
	return res, nil
}
