// Package stats computes read-only rollups over a user's history.
// Every function is pure: the same history and now always yield the same result.
package stats

import (
	"math"
	"time"

	"github.com/youlearn/youlearn-progress/internal/domain/achievement"
	"github.com/youlearn/youlearn-progress/internal/domain/activity"
	"github.com/youlearn/youlearn-progress/pkg/timeutil"
)

// RecentQuizLimit is how many recent quizzes a dashboard shows.
const RecentQuizLimit = 5

// DailyXP is the XP earned on one calendar day.
type DailyXP struct {
	Date time.Time `json:"date"`
	XP   int       `json:"xp"`
}

// ActiveDay is one cell of the activity calendar.
type ActiveDay struct {
	Date   time.Time `json:"date"`
	Events int       `json:"events"`
	Active bool      `json:"active"`
}

// LearningTime splits total learning time for display.
type LearningTime struct {
	TotalSeconds int64 `json:"total_seconds"`
	Hours        int   `json:"hours"`
	Minutes      int   `json:"minutes"`
}

// QuizSummary is a single past quiz attempt.
type QuizSummary struct {
	Topic    string    `json:"topic"`
	Score    int       `json:"score"`
	MaxScore int       `json:"max_score"`
	Percent  float64   `json:"percent"`
	At       time.Time `json:"at"`
}

// QuizStats summarises quiz activity.
type QuizStats struct {
	Total        int           `json:"total"`
	Perfect      int           `json:"perfect"`
	AverageScore float64       `json:"average_score"`
	Recent       []QuizSummary `json:"recent"`
}

// AverageQuizScore returns the mean percentage over all quiz attempts, rounded
// to two decimals. Zero when there are none.
func AverageQuizScore(h activity.History) float64 {
	quizzes := h.OfKind(activity.KindQuizAttempt)
	if len(quizzes) == 0 {
		return 0
	}
	var sum float64
	for _, q := range quizzes {
		sum += q.ScorePercent()
	}
	return round2(sum / float64(len(quizzes)))
}

// TotalLearningSeconds sums learning-session durations.
func TotalLearningSeconds(h activity.History) int64 {
	return h.LearningSeconds()
}

// SplitLearningTime converts seconds into hours and leftover minutes.
func SplitLearningTime(totalSeconds int64) LearningTime {
	return LearningTime{
		TotalSeconds: totalSeconds,
		Hours:        int(totalSeconds / 3600),
		Minutes:      int(totalSeconds % 3600 / 60),
	}
}

// RecentQuizzes returns up to n quiz attempts, newest first.
func RecentQuizzes(h activity.History, n int) []QuizSummary {
	quizzes := h.Sorted().OfKind(activity.KindQuizAttempt)
	out := make([]QuizSummary, 0, n)
	for i := len(quizzes) - 1; i >= 0 && len(out) < n; i-- {
		q := quizzes[i]
		out = append(out, QuizSummary{
			Topic:    q.Topic,
			Score:    q.Score,
			MaxScore: q.MaxScore,
			Percent:  round2(q.ScorePercent()),
			At:       q.OccurredAt,
		})
	}
	return out
}

// SummarizeQuizzes builds QuizStats.
func SummarizeQuizzes(h activity.History) QuizStats {
	return QuizStats{
		Total:        h.QuizCount(),
		Perfect:      h.PerfectCount(),
		AverageScore: AverageQuizScore(h),
		Recent:       RecentQuizzes(h, RecentQuizLimit),
	}
}

// DailyXPSeries returns XP per day for the last days ending today, oldest
// first. Achievement bonus points count on the day they were earned.
func DailyXPSeries(h activity.History, grants []achievement.Grant, now time.Time, days int) []DailyXP {
	window := timeutil.LastNDays(now, days)
	byDay := make(map[string]int, len(window))
	for _, e := range h {
		byDay[timeutil.DateKey(e.Day())] += e.XPAwarded
	}
	for _, g := range grants {
		byDay[timeutil.DateKey(g.EarnedAt)] += g.Points
	}

	out := make([]DailyXP, len(window))
	for i, d := range window {
		out[i] = DailyXP{Date: d, XP: byDay[timeutil.DateKey(d)]}
	}
	return out
}

// ActiveDaysCalendar returns one cell per day for the last days ending today,
// oldest first. A day is active when it has at least one event of any kind.
func ActiveDaysCalendar(h activity.History, now time.Time, days int) []ActiveDay {
	window := timeutil.LastNDays(now, days)
	counts := make(map[string]int, len(window))
	for _, e := range h {
		counts[timeutil.DateKey(e.Day())]++
	}

	out := make([]ActiveDay, len(window))
	for i, d := range window {
		n := counts[timeutil.DateKey(d)]
		out[i] = ActiveDay{Date: d, Events: n, Active: n > 0}
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
