// Package activity contains the activity event model: what a learner did
// (chat turn, quiz attempt, learning session, login). Events are append-only.
// This is a pure domain layer with zero external dependencies besides uuid.
package activity

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/youlearn/youlearn-progress/internal/domain/shared"
	"github.com/youlearn/youlearn-progress/pkg/timeutil"
)

// Kind discriminates activity events.
type Kind string

const (
	KindChatTurn        Kind = "chat_turn"
	KindQuizAttempt     Kind = "quiz_attempt"
	KindLearningSession Kind = "learning_session"
	KindLogin           Kind = "login"
)

// IsValid checks if the kind is known.
func (k Kind) IsValid() bool {
	switch k {
	case KindChatTurn, KindQuizAttempt, KindLearningSession, KindLogin:
		return true
	}
	return false
}

// String returns the string representation of Kind.
func (k Kind) String() string {
	return string(k)
}

// Event is a single recorded activity. Only the fields relevant to Kind are set.
type Event struct {
	ID     string
	UserID string
	Kind   Kind
	Topic  string

	// Quiz attempts.
	Score    int
	MaxScore int

	// Learning sessions.
	DurationSeconds int64
	StartedAt       time.Time
	EndedAt         time.Time

	// Logins: the calendar day.
	Date time.Time

	OccurredAt time.Time

	// XPAwarded is the XP this event produced. Set once by the engine before the
	// event is appended.
	XPAwarded int
}

// MaxTopicLength is the longest accepted topic, in characters.
const MaxTopicLength = 100

// NormalizeTopic trims and lower-cases a topic.
func NormalizeTopic(topic string) string {
	return strings.ToLower(strings.TrimSpace(topic))
}

// validTopic normalizes topic and checks it is present and not too long.
func validTopic(op, topic string) (string, error) {
	topic = NormalizeTopic(topic)
	if topic == "" {
		return "", shared.Validationf("activity", op, "topic is required")
	}
	if utf8.RuneCountInString(topic) > MaxTopicLength {
		return "", shared.Validationf("activity", op, "topic must be at most %d characters", MaxTopicLength)
	}
	return topic, nil
}

func newEvent(userID string, kind Kind, at time.Time) (*Event, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, shared.ErrEmptyUserID
	}
	return &Event{
		ID:         uuid.NewString(),
		UserID:     userID,
		Kind:       kind,
		OccurredAt: at.UTC(),
	}, nil
}

// NewChatTurn records a single chat exchange.
func NewChatTurn(userID string, at time.Time) (*Event, error) {
	return newEvent(userID, KindChatTurn, at)
}

// NewQuizAttempt records a graded quiz. maxScore must be positive and
// score must lie in [0, maxScore].
func NewQuizAttempt(userID, topic string, score, maxScore int, at time.Time) (*Event, error) {
	if maxScore <= 0 {
		return nil, shared.ErrInvalidMaxScore
	}
	if score < 0 || score > maxScore {
		return nil, shared.ErrScoreOutOfRange
	}
	topic, err := validTopic("NewQuizAttempt", topic)
	if err != nil {
		return nil, err
	}

	e, err := newEvent(userID, KindQuizAttempt, at)
	if err != nil {
		return nil, err
	}
	e.Topic = topic
	e.Score = score
	e.MaxScore = maxScore
	return e, nil
}

// NewLearningSession records a timed learning session.
// When both bounds are set, durationSeconds must equal their difference in whole
// seconds; a zero duration is derived from the bounds.
func NewLearningSession(userID, topic string, durationSeconds int64, startedAt, endedAt time.Time) (*Event, error) {
	if durationSeconds < 0 {
		return nil, shared.NewDomainError("activity", "Validate", shared.ErrNegativeValue, "duration cannot be negative")
	}

	hasBounds := !startedAt.IsZero() && !endedAt.IsZero()
	if hasBounds {
		if endedAt.Before(startedAt) {
			return nil, shared.ErrSessionEndsBefore
		}
		span := int64(endedAt.Sub(startedAt) / time.Second)
		if durationSeconds == 0 {
			durationSeconds = span
		} else if durationSeconds != span {
			return nil, shared.ErrDurationMismatch
		}
	}

	topic, err := validTopic("NewLearningSession", topic)
	if err != nil {
		return nil, err
	}

	at := endedAt
	if at.IsZero() {
		at = startedAt
	}
	e, err := newEvent(userID, KindLearningSession, at)
	if err != nil {
		return nil, err
	}
	e.Topic = topic
	e.DurationSeconds = durationSeconds
	if hasBounds {
		e.StartedAt = startedAt.UTC()
		e.EndedAt = endedAt.UTC()
	}
	return e, nil
}

// NewLogin records a login on the calendar day of date.
func NewLogin(userID string, date time.Time) (*Event, error) {
	if date.IsZero() {
		return nil, shared.Validationf("activity", "NewLogin", "login date is required")
	}
	day := timeutil.StartOfDay(date)
	e, err := newEvent(userID, KindLogin, day)
	if err != nil {
		return nil, err
	}
	e.Date = day
	return e, nil
}

// Restore rebuilds an event from storage without re-running validation.
func Restore(e Event) *Event {
	out := e
	return &out
}

// IsPerfect reports whether a quiz attempt scored full marks.
func (e *Event) IsPerfect() bool {
	return e.Kind == KindQuizAttempt && e.MaxScore > 0 && e.Score == e.MaxScore
}

// ScorePercent returns the quiz score as a percentage.
func (e *Event) ScorePercent() float64 {
	if e.Kind != KindQuizAttempt || e.MaxScore <= 0 {
		return 0
	}
	return float64(e.Score) * 100 / float64(e.MaxScore)
}

// Day returns the calendar day the event belongs to.
func (e *Event) Day() time.Time {
	if e.Kind == KindLogin {
		return e.Date
	}
	return timeutil.StartOfDay(e.OccurredAt)
}
