package eventhandler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/youlearn/youlearn-progress/internal/domain/shared"
	"github.com/youlearn/youlearn-progress/internal/infrastructure/messaging"
	"github.com/youlearn/youlearn-progress/pkg/logger"
)

var at = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func newSyncBus(t *testing.T, feed *CelebrationFeed) *messaging.InMemoryEventBus {
	t.Helper()
	bus := messaging.NewInMemoryEventBus(messaging.InMemoryEventBusConfig{AsyncMode: false})
	require.NoError(t, feed.Register(bus))
	require.NoError(t, bus.SubscribeAll(EventLogger(logger.Nop())))
	return bus
}

func TestCelebrationFeed_QueuesAndDrains(t *testing.T) {
	feed := NewCelebrationFeed(0, nil)
	bus := newSyncBus(t, feed)

	require.NoError(t, bus.Publish(shared.NewAchievementUnlockedEvent("u1", "quiz_novice", "Quiz Novice", "🎯", 50, at)))
	require.NoError(t, bus.Publish(shared.NewLevelUpEvent("u1", 1, 2, 120, at)))
	require.NoError(t, bus.Publish(shared.NewXPGainedEvent("u1", 10, 130, "quiz_attempt", at)))

	got := feed.Peek("u1")
	require.Len(t, got, 2)
	assert.Equal(t, CelebrationAchievement, got[0].Kind)
	assert.Equal(t, 50, got[0].Points)
	assert.Equal(t, CelebrationLevelUp, got[1].Kind)
	assert.Equal(t, 2, got[1].Level)

	assert.Len(t, feed.Drain("u1"), 2)
	assert.Empty(t, feed.Drain("u1"))
	assert.Empty(t, feed.Peek("u2"))
}

func TestCelebrationFeed_StreakMilestones(t *testing.T) {
	feed := NewCelebrationFeed(0, nil)
	bus := newSyncBus(t, feed)

	for streak := 1; streak <= 14; streak++ {
		require.NoError(t, bus.Publish(shared.NewStreakUpdatedEvent("u1", streak, streak, false, at)))
	}
	require.NoError(t, bus.Publish(shared.NewStreakUpdatedEvent("u1", 1, 14, true, at)))

	got := feed.Drain("u1")
	require.Len(t, got, 2)
	assert.Equal(t, "7 day streak", got[0].Title)
	assert.Equal(t, "14 day streak", got[1].Title)
}

func TestCelebrationFeed_Limit(t *testing.T) {
	feed := NewCelebrationFeed(3, nil)
	for lvl := 2; lvl <= 6; lvl++ {
		require.NoError(t, feed.OnLevelUp(shared.NewLevelUpEvent("u1", lvl-1, lvl, lvl*100, at)))
	}
	got := feed.Drain("u1")
	require.Len(t, got, 3)
	assert.Equal(t, 4, got[0].Level)
	assert.Equal(t, 6, got[2].Level)
}

func TestCelebrationFeed_WrongEventType(t *testing.T) {
	feed := NewCelebrationFeed(0, nil)
	assert.Error(t, feed.OnLevelUp(shared.NewXPGainedEvent("u1", 1, 1, "chat_turn", at)))
}
