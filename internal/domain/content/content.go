// Package content describes the quiz and topic generator the chat app asks
// for learning material. The progress engine never depends on it.
package content

import (
	"context"
	"strings"

	"github.com/youlearn/youlearn-progress/internal/domain/shared"
)

// Source tells whether content came from the generator or the built-in fallback.
type Source string

const (
	SourceGenerated Source = "generated"
	SourceFallback  Source = "fallback"
)

// QuizOptionCount is the number of answer options every quiz has.
const QuizOptionCount = 4

// MaxTopics caps topics extracted from a single message.
const MaxTopics = 3

// Quiz is a single multiple-choice question.
type Quiz struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Correct  string   `json:"correct"`
	Topic    string   `json:"topic,omitempty"`
}

// Validate checks the quiz shape: a question, four distinct options and a
// correct answer equal to one of them.
func (q Quiz) Validate() error {
	if strings.TrimSpace(q.Question) == "" {
		return shared.Validationf("content", "Quiz", "question is empty")
	}
	if len(q.Options) != QuizOptionCount {
		return shared.Validationf("content", "Quiz", "quiz must have exactly %d options, got %d", QuizOptionCount, len(q.Options))
	}
	seen := make(map[string]bool, len(q.Options))
	found := false
	for _, o := range q.Options {
		key := strings.ToLower(strings.TrimSpace(o))
		if key == "" {
			return shared.Validationf("content", "Quiz", "empty option")
		}
		if seen[key] {
			return shared.Validationf("content", "Quiz", "duplicate option %q", o)
		}
		seen[key] = true
		if o == q.Correct {
			found = true
		}
	}
	if !found {
		return shared.Validationf("content", "Quiz", "correct answer %q is not one of the options", q.Correct)
	}
	return nil
}

// QuizResult is a quiz tagged with where it came from.
type QuizResult struct {
	Quiz   Quiz   `json:"quiz"`
	Source Source `json:"source"`
	// Reason explains a fallback.
	Reason string `json:"reason,omitempty"`
}

// TopicsResult is a list of topics tagged with where it came from.
type TopicsResult struct {
	Topics []string `json:"topics"`
	Source Source   `json:"source"`
	Reason string   `json:"reason,omitempty"`
}

// Generator produces quizzes and extracts topics. Implementations degrade to
// fallback content instead of failing; an error means the request itself was
// invalid or ctx ended.
type Generator interface {
	GenerateQuiz(ctx context.Context, topic string, age int) (QuizResult, error)
	ExtractTopics(ctx context.Context, message string) (TopicsResult, error)
}

// AnswerResult is the feedback for an answered quiz.
type AnswerResult struct {
	Correct  bool   `json:"correct"`
	Message  string `json:"message"`
	Score    int    `json:"score"`
	MaxScore int    `json:"max_score"`
}

// CheckAnswer compares answer with the correct option, ignoring case and
// surrounding space. Score/MaxScore can be recorded as a quiz attempt.
func CheckAnswer(q Quiz, answer string) AnswerResult {
	if strings.EqualFold(strings.TrimSpace(answer), strings.TrimSpace(q.Correct)) {
		return AnswerResult{
			Correct:  true,
			Message:  "🎉 Great job! That's correct! You're so smart! 🌟",
			Score:    1,
			MaxScore: 1,
		}
	}
	return AnswerResult{
		Message:  "Nice try! 💫 The correct answer is " + q.Correct + ". Let's learn from this! 📚",
		MaxScore: 1,
	}
}
