// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/youlearn/youlearn-progress/internal/application/saga"
	"github.com/youlearn/youlearn-progress/internal/domain/achievement"
	"github.com/youlearn/youlearn-progress/internal/domain/activity"
	"github.com/youlearn/youlearn-progress/internal/domain/progression"
	"github.com/youlearn/youlearn-progress/internal/domain/shared"
	"github.com/youlearn/youlearn-progress/internal/domain/store"
	"github.com/youlearn/youlearn-progress/pkg/keylock"
	"github.com/youlearn/youlearn-progress/pkg/logger"
	"github.com/youlearn/youlearn-progress/pkg/retry"
	"github.com/youlearn/youlearn-progress/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS UNIT OF WORK
// Every write runs the same sequence inside a per-user critical section:
// lock → begin tx → load state → streak (login) → append event → award XP →
// evaluate & grant achievements → save state → commit → unlock → publish.
// ══════════════════════════════════════════════════════════════════════════════

// Locker serialises progression writes per user.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// StatsInvalidator drops cached stats after a write.
type StatsInvalidator interface {
	Invalidate(ctx context.Context, userID string) error
}

// Deps are the collaborators shared by all progress command handlers.
type Deps struct {
	Store     store.Store
	Catalog   *achievement.Catalog
	Locker    Locker
	Publisher shared.EventPublisher
	Cache     StatsInvalidator
	Clock     timeutil.Clock
	Logger    *logger.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Catalog == nil {
		d.Catalog = achievement.DefaultCatalog()
	}
	if d.Locker == nil {
		d.Locker = keylock.New()
	}
	if d.Clock == nil {
		d.Clock = timeutil.SystemClock{}
	}
	if d.Logger == nil {
		d.Logger = logger.Nop()
	}
	return d
}

// LockKey is the lock name for a user's progression.
func LockKey(userID string) string {
	return "progress:" + userID
}

// ActivityResult is returned by every activity-recording command.
type ActivityResult struct {
	UserID          string                  `json:"user_id"`
	XPEarned        int                     `json:"xp_earned"`
	TotalXP         int                     `json:"total_xp"`
	Level           int                     `json:"level"`
	LeveledUp       bool                    `json:"leveled_up"`
	NewAchievements []saga.AchievementAward `json:"new_achievements"`
	RecordedAt      time.Time               `json:"recorded_at"`

	// Events contains domain events published after commit.
	Events []shared.Event `json:"-"`
}

// unitOutcome carries what happened inside the transaction.
type unitOutcome struct {
	state      *progression.State
	xpEarned   int
	leveledUp  bool
	streak     progression.StreakTransition
	skipped    bool
	flow       *saga.AchievementFlowResult
	events     []shared.Event
	recordedAt time.Time
}

// progressUnit runs the shared write sequence.
type progressUnit struct {
	deps    Deps
	flow    *saga.AchievementFlow
	retrier *retry.Retrier
	log     *logger.Logger
}

func newProgressUnit(deps Deps, component string) *progressUnit {
	deps = deps.withDefaults()
	return &progressUnit{
		deps:    deps,
		flow:    saga.NewAchievementFlow(deps.Catalog, deps.Logger),
		retrier: retry.StoreRetrier(retryOnConflict),
		log:     deps.Logger.With(logger.Component(component)),
	}
}

// retryOnConflict retries transactions the store aborted on a write conflict.
func retryOnConflict(err error) retry.ErrorClass {
	if errors.Is(err, shared.ErrConflict) {
		return retry.Retry
	}
	return retry.Stop
}

// xpRule computes the XP for an event.
type xpRule func(e *activity.Event) (int, error)

// apply records ev for its user. For logins the streak state machine runs
// first; a same-day repeat login leaves everything untouched.
func (u *progressUnit) apply(ctx context.Context, ev *activity.Event, rule xpRule, correlationID string) (*unitOutcome, error) {
	userID := ev.UserID

	unlock, err := u.deps.Locker.Lock(ctx, LockKey(userID))
	if err != nil {
		return nil, shared.WrapError("progression", "Lock", shared.ErrUnavailable, "failed to acquire user lock", err)
	}
	defer unlock()

	now := u.deps.Clock.Now().UTC()
	var out *unitOutcome

	err = u.retrier.Do(ctx, func(ctx context.Context) error {
		out = &unitOutcome{recordedAt: now}
		return u.deps.Store.Atomic(ctx, func(ctx context.Context, tx store.Tx) error {
			return u.run(ctx, tx, ev, rule, out)
		})
	})
	if err != nil {
		return nil, err
	}

	if out.skipped {
		return out, nil
	}
	if out.flow != nil && out.flow.HasNewAchievements() {
		ids := make([]string, 0, len(out.flow.NewAchievements))
		for _, a := range out.flow.NewAchievements {
			ids = append(ids, a.ID)
		}
		u.log.Info("achievements unlocked",
			logger.UserID(userID),
			logger.Strings("achievements", ids),
			logger.XPAmount(out.flow.TotalXPBonus),
		)
	}
	u.afterCommit(ctx, userID, out.events, correlationID)
	return out, nil
}

// run is the transactional body of apply. It may run more than once when the
// store reports a conflict, so it only writes to out and tx.
func (u *progressUnit) run(ctx context.Context, tx store.Tx, ev *activity.Event, rule xpRule, out *unitOutcome) error {
	userID := ev.UserID
	now := out.recordedAt

	state, err := tx.Progress().GetForUpdate(ctx, userID)
	if err != nil {
		return err
	}
	levelBefore := state.Level()
	var events []shared.Event

	if ev.Kind == activity.KindLogin {
		t, err := state.RecordLogin(ev.Date)
		if err != nil {
			return err
		}
		out.streak = t
		if !t.Changed {
			out.skipped = true
			out.state = state
			return nil
		}
		events = append(events, shared.NewStreakUpdatedEvent(userID, t.Current, t.Best, t.Reset, now))
	}

	xp, err := rule(ev)
	if err != nil {
		return err
	}
	ev.XPAwarded = xp
	if err := tx.Activities().Append(ctx, ev); err != nil {
		return fmt.Errorf("append activity: %w", err)
	}
	events = append(events, shared.NewActivityRecordedEvent(userID, ev.Kind.String(), ev.Topic, xp, now))

	newXP, _, err := state.AwardXP(xp, now)
	if err != nil {
		return err
	}
	if xp > 0 {
		events = append(events, shared.NewXPGainedEvent(userID, xp, newXP, ev.Kind.String(), now))
	}

	flow, err := u.flow.Run(ctx, tx, state, now)
	if err != nil {
		return err
	}
	events = append(events, flow.Events...)

	if state.Level() > levelBefore {
		out.leveledUp = true
		events = append(events, shared.NewLevelUpEvent(userID, levelBefore, state.Level(), state.CumulativeXP(), now))
	}

	if err := tx.Progress().Save(ctx, state); err != nil {
		return fmt.Errorf("save progression: %w", err)
	}

	out.state = state
	out.xpEarned = xp
	out.flow = flow
	out.events = events
	return nil
}

// afterCommit publishes events and invalidates cached stats. Failures are
// logged: the progression change is already durable.
func (u *progressUnit) afterCommit(ctx context.Context, userID string, events []shared.Event, correlationID string) {
	if u.deps.Cache != nil {
		if err := u.deps.Cache.Invalidate(ctx, userID); err != nil {
			u.log.Warn("failed to invalidate stats cache", logger.UserID(userID), logger.Err(err))
		}
	}
	if u.deps.Publisher == nil {
		return
	}
	for _, e := range events {
		if correlationID != "" {
			e = withCorrelation(e, correlationID)
		}
		if err := u.deps.Publisher.Publish(e); err != nil {
			u.log.Warn("failed to publish event",
				logger.UserID(userID),
				logger.String("event_type", string(e.EventType())),
				logger.Err(err),
			)
		}
	}
}

func (o *unitOutcome) activityResult() *ActivityResult {
	res := &ActivityResult{
		UserID:          o.state.UserID(),
		XPEarned:        o.xpEarned,
		TotalXP:         o.state.CumulativeXP(),
		Level:           o.state.Level(),
		LeveledUp:       o.leveledUp,
		NewAchievements: []saga.AchievementAward{},
		Events:          o.events,
		RecordedAt:      o.recordedAt,
	}
	if o.flow != nil {
		res.NewAchievements = o.flow.NewAchievements
	}
	return res
}

func withCorrelation(e shared.Event, id string) shared.Event {
	switch ev := e.(type) {
	case shared.ActivityRecordedEvent:
		ev.BaseEvent = ev.WithCorrelationID(id)
		return ev
	case shared.XPGainedEvent:
		ev.BaseEvent = ev.WithCorrelationID(id)
		return ev
	case shared.LevelUpEvent:
		ev.BaseEvent = ev.WithCorrelationID(id)
		return ev
	case shared.StreakUpdatedEvent:
		ev.BaseEvent = ev.WithCorrelationID(id)
		return ev
	case shared.AchievementUnlockedEvent:
		ev.BaseEvent = ev.WithCorrelationID(id)
		return ev
	}
	return e
}
