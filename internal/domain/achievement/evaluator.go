package achievement

import (
	"sort"

	"github.com/youlearn/youlearn-progress/internal/domain/activity"
	"github.com/youlearn/youlearn-progress/internal/domain/progression"
)

// ══════════════════════════════════════════════════════════════════════════════
// EVALUATOR
// ══════════════════════════════════════════════════════════════════════════════

// Aggregates are recomputed from the full history on every evaluation, so the
// result does not depend on event ordering or replays.
type Aggregates struct {
	QuizAttempts    int
	PerfectScores   int
	MaxLoginStreak  int
	LearningMinutes int
	DistinctTopics  int
	Level           int
}

// ComputeAggregates derives aggregates from the history and the current state.
func ComputeAggregates(history activity.History, state *progression.State) Aggregates {
	maxStreak := progression.MaxStreak(history.LoginDays())
	level := 1
	if state != nil {
		if state.BestStreak() > maxStreak {
			maxStreak = state.BestStreak()
		}
		level = state.Level()
	}
	return Aggregates{
		QuizAttempts:    history.QuizCount(),
		PerfectScores:   history.PerfectCount(),
		MaxLoginStreak:  maxStreak,
		LearningMinutes: int(history.LearningSeconds() / 60),
		DistinctTopics:  history.DistinctTopics(),
		Level:           level,
	}
}

// Value returns the aggregate a metric refers to.
func (a Aggregates) Value(m Metric) (int, bool) {
	switch m {
	case MetricQuizAttempts:
		return a.QuizAttempts, true
	case MetricPerfectScores:
		return a.PerfectScores, true
	case MetricLearningMinutes:
		return a.LearningMinutes, true
	case MetricLoginStreak:
		return a.MaxLoginStreak, true
	case MetricLevel:
		return a.Level, true
	case MetricDistinctTopics:
		return a.DistinctTopics, true
	}
	return 0, false
}

// Satisfied reports whether the definition's predicate holds.
func (d Definition) Satisfied(a Aggregates) bool {
	v, ok := a.Value(d.Metric)
	return ok && v >= d.Threshold
}

// Evaluate returns the ids of catalog entries satisfied by a that are not in
// alreadyGranted, sorted by id. It has no side effects.
func Evaluate(a Aggregates, catalog *Catalog, alreadyGranted map[string]bool) []string {
	var out []string
	for _, d := range catalog.All() {
		if alreadyGranted[d.ID] {
			continue
		}
		if d.Satisfied(a) {
			out = append(out, d.ID)
		}
	}
	sort.Strings(out)
	return out
}
