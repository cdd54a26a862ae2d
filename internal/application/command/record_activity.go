package command

import (
	"context"
	"time"

	"github.com/youlearn/youlearn-progress/internal/domain/activity"
	"github.com/youlearn/youlearn-progress/internal/domain/progression"
	"github.com/youlearn/youlearn-progress/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD ACTIVITY COMMANDS
// Chat turns, quiz attempts and learning sessions: each produces XP and may
// unlock achievements.
// ══════════════════════════════════════════════════════════════════════════════

// RecordChatTurnCommand records one chat exchange.
type RecordChatTurnCommand struct {
	UserID string

	// At is when the turn happened (defaults to now if zero).
	At time.Time

	CorrelationID string
}

// RecordQuizAttemptCommand records a graded quiz.
type RecordQuizAttemptCommand struct {
	UserID   string
	Topic    string
	Score    int
	MaxScore int

	// At is when the quiz was submitted (defaults to now if zero).
	At time.Time

	CorrelationID string
}

// Validate validates the command.
func (c RecordQuizAttemptCommand) Validate() error {
	_, err := activity.NewQuizAttempt(c.UserID, c.Topic, c.Score, c.MaxScore, time.Now())
	return err
}

// RecordLearningSessionCommand records a timed learning session.
type RecordLearningSessionCommand struct {
	UserID          string
	Topic           string
	DurationSeconds int64
	StartedAt       time.Time
	EndedAt         time.Time

	CorrelationID string
}

// Validate validates the command.
func (c RecordLearningSessionCommand) Validate() error {
	_, err := activity.NewLearningSession(c.UserID, c.Topic, c.DurationSeconds, c.StartedAt, c.EndedAt)
	return err
}

// RecordActivityHandler handles chat-turn, quiz and session commands.
type RecordActivityHandler struct {
	unit *progressUnit
}

// NewRecordActivityHandler creates a new RecordActivityHandler.
func NewRecordActivityHandler(deps Deps) *RecordActivityHandler {
	return &RecordActivityHandler{unit: newProgressUnit(deps, "record_activity")}
}

func (h *RecordActivityHandler) at(t time.Time) time.Time {
	if t.IsZero() {
		return h.unit.deps.Clock.Now()
	}
	return t
}

// HandleChatTurn records a chat turn.
func (h *RecordActivityHandler) HandleChatTurn(ctx context.Context, cmd RecordChatTurnCommand) (*ActivityResult, error) {
	ev, err := activity.NewChatTurn(cmd.UserID, h.at(cmd.At))
	if err != nil {
		return nil, err
	}
	return h.record(ctx, ev, func(*activity.Event) (int, error) {
		return progression.ChatTurnXP, nil
	}, cmd.CorrelationID)
}

// HandleQuizAttempt records a quiz attempt. XP is round(10 * score / max).
func (h *RecordActivityHandler) HandleQuizAttempt(ctx context.Context, cmd RecordQuizAttemptCommand) (*ActivityResult, error) {
	ev, err := activity.NewQuizAttempt(cmd.UserID, cmd.Topic, cmd.Score, cmd.MaxScore, h.at(cmd.At))
	if err != nil {
		return nil, err
	}
	return h.record(ctx, ev, func(e *activity.Event) (int, error) {
		return progression.QuizXP(e.Score, e.MaxScore)
	}, cmd.CorrelationID)
}

// HandleLearningSession records a learning session. XP is min(minutes, 20).
func (h *RecordActivityHandler) HandleLearningSession(ctx context.Context, cmd RecordLearningSessionCommand) (*ActivityResult, error) {
	ev, err := activity.NewLearningSession(cmd.UserID, cmd.Topic, cmd.DurationSeconds, cmd.StartedAt, cmd.EndedAt)
	if err != nil {
		return nil, err
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = h.unit.deps.Clock.Now().UTC()
	}
	return h.record(ctx, ev, func(e *activity.Event) (int, error) {
		return progression.SessionXP(e.DurationSeconds), nil
	}, cmd.CorrelationID)
}

func (h *RecordActivityHandler) record(ctx context.Context, ev *activity.Event, rule xpRule, correlationID string) (*ActivityResult, error) {
	start := time.Now()
	out, err := h.unit.apply(ctx, ev, rule, correlationID)
	if err != nil {
		h.unit.log.Debug("activity rejected",
			logger.UserID(ev.UserID),
			logger.String("kind", ev.Kind.String()),
			logger.Err(err),
		)
		return nil, err
	}

	res := out.activityResult()
	h.unit.log.Info("activity recorded",
		logger.UserID(ev.UserID),
		logger.String("kind", ev.Kind.String()),
		logger.XPAmount(res.XPEarned),
		logger.UserLevel(res.Level),
		logger.Int("new_achievements", len(res.NewAchievements)),
		logger.Latency(time.Since(start)),
	)
	return res, nil
}
