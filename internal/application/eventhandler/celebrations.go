// Package eventhandler contains subscribers to domain events published by
// the progress engine after a commit.
package eventhandler

import (
	"fmt"
	"sync"
	"time"

	"github.com/youlearn/youlearn-progress/internal/domain/shared"
	"github.com/youlearn/youlearn-progress/pkg/logger"
)

// CelebrationKind discriminates celebrations.
type CelebrationKind string

const (
	CelebrationAchievement CelebrationKind = "achievement"
	CelebrationLevelUp     CelebrationKind = "level_up"
	CelebrationStreak      CelebrationKind = "streak"
)

// Celebration is a message shown to the child the next time the app asks.
type Celebration struct {
	Kind    CelebrationKind `json:"kind"`
	Title   string          `json:"title"`
	Message string          `json:"message"`
	Emoji   string          `json:"emoji,omitempty"`
	Points  int             `json:"points,omitempty"`
	Level   int             `json:"level,omitempty"`
	At      time.Time       `json:"at"`
}

// DefaultCelebrationLimit is how many undelivered celebrations are kept per user.
const DefaultCelebrationLimit = 20

// CelebrationFeed queues celebrations per user until they are drained.
// Unlocks, level-ups and streak milestones feed it.
type CelebrationFeed struct {
	mu     sync.Mutex
	byUser map[string][]Celebration
	limit  int
	log    *logger.Logger
}

// NewCelebrationFeed creates a feed keeping at most limit entries per user.
func NewCelebrationFeed(limit int, log *logger.Logger) *CelebrationFeed {
	if limit <= 0 {
		limit = DefaultCelebrationLimit
	}
	if log == nil {
		log = logger.Nop()
	}
	return &CelebrationFeed{
		byUser: make(map[string][]Celebration),
		limit:  limit,
		log:    log.With(logger.Component("celebrations")),
	}
}

// Register subscribes the feed to the events it reacts to.
func (f *CelebrationFeed) Register(sub shared.EventSubscriber) error {
	if err := sub.Subscribe(shared.EventAchievementUnlocked, f.OnAchievementUnlocked); err != nil {
		return err
	}
	if err := sub.Subscribe(shared.EventLevelUp, f.OnLevelUp); err != nil {
		return err
	}
	return sub.Subscribe(shared.EventStreakUpdated, f.OnStreakUpdated)
}

// OnAchievementUnlocked queues a celebration for a fresh grant.
func (f *CelebrationFeed) OnAchievementUnlocked(e shared.Event) error {
	ev, ok := e.(shared.AchievementUnlockedEvent)
	if !ok {
		return fmt.Errorf("unexpected event %T", e)
	}
	f.push(ev.AggregateID(), Celebration{
		Kind:    CelebrationAchievement,
		Title:   ev.Name,
		Message: fmt.Sprintf("You earned %s and %d bonus XP!", ev.Name, ev.Points),
		Emoji:   ev.Emoji,
		Points:  ev.Points,
		At:      ev.OccurredAt(),
	})
	return nil
}

// OnLevelUp queues a celebration for a new level.
func (f *CelebrationFeed) OnLevelUp(e shared.Event) error {
	ev, ok := e.(shared.LevelUpEvent)
	if !ok {
		return fmt.Errorf("unexpected event %T", e)
	}
	f.push(ev.AggregateID(), Celebration{
		Kind:    CelebrationLevelUp,
		Title:   fmt.Sprintf("Level %d", ev.NewLevel),
		Message: fmt.Sprintf("Amazing! You reached level %d!", ev.NewLevel),
		Emoji:   "🎉",
		Level:   ev.NewLevel,
		At:      ev.OccurredAt(),
	})
	return nil
}

// OnStreakUpdated celebrates every seventh consecutive day.
func (f *CelebrationFeed) OnStreakUpdated(e shared.Event) error {
	ev, ok := e.(shared.StreakUpdatedEvent)
	if !ok {
		return fmt.Errorf("unexpected event %T", e)
	}
	if ev.WasReset || ev.Streak == 0 || ev.Streak%7 != 0 {
		return nil
	}
	f.push(ev.AggregateID(), Celebration{
		Kind:    CelebrationStreak,
		Title:   fmt.Sprintf("%d day streak", ev.Streak),
		Message: fmt.Sprintf("You have learned %d days in a row!", ev.Streak),
		Emoji:   "🔥",
		At:      ev.OccurredAt(),
	})
	return nil
}

func (f *CelebrationFeed) push(userID string, c Celebration) {
	f.mu.Lock()
	defer f.mu.Unlock()

	q := append(f.byUser[userID], c)
	if dropped := len(q) - f.limit; dropped > 0 {
		q = q[dropped:]
		f.log.Debug("dropped old celebrations", logger.UserID(userID), logger.Int("dropped", dropped))
	}
	f.byUser[userID] = q
}

// Peek returns the queued celebrations without removing them, oldest first.
func (f *CelebrationFeed) Peek(userID string) []Celebration {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Celebration, len(f.byUser[userID]))
	copy(out, f.byUser[userID])
	return out
}

// Drain returns and removes the queued celebrations, oldest first.
func (f *CelebrationFeed) Drain(userID string) []Celebration {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.byUser[userID]
	delete(f.byUser, userID)
	if out == nil {
		out = []Celebration{}
	}
	return out
}
