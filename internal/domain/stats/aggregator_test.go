package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/youlearn/youlearn-progress/internal/domain/achievement"
	"github.com/youlearn/youlearn-progress/internal/domain/activity"
	"github.com/youlearn/youlearn-progress/pkg/timeutil"
)

var now = time.Date(2026, 6, 10, 18, 0, 0, 0, time.UTC)

func quizAt(t *testing.T, topic string, score, max int, at time.Time, xp int) *activity.Event {
	t.Helper()
	e, err := activity.NewQuizAttempt("u1", topic, score, max, at)
	require.NoError(t, err)
	e.XPAwarded = xp
	return e
}

func TestSummarizeQuizzes(t *testing.T) {
	h := activity.History{
		quizAt(t, "a", 1, 3, now.Add(-3*time.Hour), 3),
		quizAt(t, "b", 3, 3, now.Add(-2*time.Hour), 10),
		quizAt(t, "c", 0, 4, now.Add(-1*time.Hour), 0),
	}
	s := SummarizeQuizzes(h)
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 1, s.Perfect)
	assert.Equal(t, 44.44, s.AverageScore)
	require.Len(t, s.Recent, 3)
	assert.Equal(t, "c", s.Recent[0].Topic)
	assert.Equal(t, 33.33, s.Recent[2].Percent)
}

func TestSummarizeQuizzes_Empty(t *testing.T) {
	s := SummarizeQuizzes(nil)
	assert.Zero(t, s.Total)
	assert.Zero(t, s.AverageScore)
	assert.Empty(t, s.Recent)
}

func TestRecentQuizzes_Limit(t *testing.T) {
	var h activity.History
	for i := 0; i < 8; i++ {
		h = append(h, quizAt(t, "t", 1, 1, now.Add(time.Duration(i)*time.Minute), 10))
	}
	got := RecentQuizzes(h, RecentQuizLimit)
	require.Len(t, got, RecentQuizLimit)
	assert.Equal(t, now.Add(7*time.Minute), got[0].At)
}

func TestSplitLearningTime(t *testing.T) {
	assert.Equal(t, LearningTime{TotalSeconds: 3725, Hours: 1, Minutes: 2}, SplitLearningTime(3725))
	assert.Equal(t, LearningTime{}, SplitLearningTime(0))
}

func TestDailyXPSeries(t *testing.T) {
	yesterday := now.AddDate(0, 0, -1)
	h := activity.History{
		quizAt(t, "a", 5, 5, yesterday, 10),
		quizAt(t, "a", 2, 5, now, 4),
	}
	chat, err := activity.NewChatTurn("u1", now)
	require.NoError(t, err)
	chat.XPAwarded = 1
	h = append(h, chat)

	old := quizAt(t, "a", 5, 5, now.AddDate(0, 0, -30), 10)
	h = append(h, old)

	grants := []achievement.Grant{{UserID: "u1", AchievementID: "x", EarnedAt: now, Points: 50}}

	series := DailyXPSeries(h, grants, now, 3)
	require.Len(t, series, 3)
	assert.Equal(t, timeutil.Date(2026, 6, 8), series[0].Date)
	assert.Equal(t, 0, series[0].XP)
	assert.Equal(t, 10, series[1].XP)
	assert.Equal(t, 55, series[2].XP)

	assert.Empty(t, DailyXPSeries(h, nil, now, 0))
}

func TestActiveDaysCalendar(t *testing.T) {
	login, err := activity.NewLogin("u1", now.AddDate(0, 0, -2))
	require.NoError(t, err)
	h := activity.History{
		login,
		quizAt(t, "a", 1, 1, now, 10),
		quizAt(t, "b", 1, 1, now, 10),
	}

	cal := ActiveDaysCalendar(h, now, 4)
	require.Len(t, cal, 4)
	assert.False(t, cal[0].Active)
	assert.True(t, cal[1].Active)
	assert.Equal(t, 1, cal[1].Events)
	assert.False(t, cal[2].Active)
	assert.Equal(t, 2, cal[3].Events)
}
