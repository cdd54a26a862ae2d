package activity

import (
	"context"
	"sort"
	"time"

	"github.com/youlearn/youlearn-progress/pkg/timeutil"
)

// Repository defines append-only persistence of a user's event history.
// Implemented by the infrastructure layer.
type Repository interface {
	// Append stores a new event. Events are never updated or deleted.
	Append(ctx context.Context, e *Event) error

	// ListByUser returns the user's full history, oldest first.
	ListByUser(ctx context.Context, userID string) (History, error)
}

// History is a user's event log, oldest first.
type History []*Event

// Sorted returns a copy ordered by OccurredAt, ties broken by ID.
func (h History) Sorted() History {
	out := make(History, len(h))
	copy(out, h)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].OccurredAt.Equal(out[j].OccurredAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].OccurredAt.Before(out[j].OccurredAt)
	})
	return out
}

// OfKind returns the events of the given kind, preserving order.
func (h History) OfKind(kind Kind) History {
	var out History
	for _, e := range h {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// QuizCount returns the number of quiz attempts.
func (h History) QuizCount() int {
	return len(h.OfKind(KindQuizAttempt))
}

// PerfectCount returns the number of quiz attempts with full marks.
func (h History) PerfectCount() int {
	n := 0
	for _, e := range h {
		if e.IsPerfect() {
			n++
		}
	}
	return n
}

// LearningSeconds sums the duration of all learning sessions.
func (h History) LearningSeconds() int64 {
	var total int64
	for _, e := range h {
		if e.Kind == KindLearningSession {
			total += e.DurationSeconds
		}
	}
	return total
}

// DistinctTopics counts distinct topics across quizzes and learning sessions.
func (h History) DistinctTopics() int {
	seen := make(map[string]struct{})
	for _, e := range h {
		if e.Topic == "" {
			continue
		}
		if e.Kind == KindQuizAttempt || e.Kind == KindLearningSession {
			seen[e.Topic] = struct{}{}
		}
	}
	return len(seen)
}

// LoginDays returns the distinct login days, oldest first.
func (h History) LoginDays() []time.Time {
	seen := make(map[string]struct{})
	var days []time.Time
	for _, e := range h {
		if e.Kind != KindLogin {
			continue
		}
		key := timeutil.DateKey(e.Date)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		days = append(days, timeutil.StartOfDay(e.Date))
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days
}
