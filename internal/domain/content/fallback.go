package content

import (
	"context"
	"strings"
	"sync/atomic"
)

var fallbackQuizzes = []Quiz{
	{
		Question: "What makes a rainbow appear in the sky? 🌈",
		Options:  []string{"Sunlight and Rain", "Magic Dust", "Wind", "Clouds"},
		Correct:  "Sunlight and Rain",
		Topic:    "weather",
	},
	{
		Question: "Which animal is known as the king of the jungle? 🦁",
		Options:  []string{"Lion", "Tiger", "Elephant", "Giraffe"},
		Correct:  "Lion",
		Topic:    "animals",
	},
	{
		Question: "What do astronauts travel in to go to space? 🚀",
		Options:  []string{"Spaceship", "Car", "Boat", "Bicycle"},
		Correct:  "Spaceship",
		Topic:    "planets",
	},
}

// FallbackQuizzes returns a copy of the built-in quiz bank.
func FallbackQuizzes() []Quiz {
	out := make([]Quiz, len(fallbackQuizzes))
	for i, q := range fallbackQuizzes {
		q.Options = append([]string(nil), q.Options...)
		out[i] = q
	}
	return out
}

// FallbackQuiz returns the n-th built-in quiz, wrapping around. A quiz whose
// topic matches is preferred.
func FallbackQuiz(topic string, n int) Quiz {
	bank := FallbackQuizzes()
	topic = strings.ToLower(strings.TrimSpace(topic))
	for _, q := range bank {
		if topic != "" && q.Topic == topic {
			return q
		}
	}
	if n < 0 {
		n = -n
	}
	return bank[n%len(bank)]
}

type keywordTopic struct {
	topic    string
	keywords []string
}

// Ordered so extraction is deterministic.
var topicKeywords = []keywordTopic{
	{"addition", []string{"addition", "plus", "sum", "add"}},
	{"subtraction", []string{"subtraction", "minus", "subtract", "difference"}},
	{"multiplication", []string{"multiplication", "times", "multiply", "product"}},
	{"division", []string{"division", "divide", "quotient"}},
	{"planets", []string{"planets", "mars", "jupiter", "saturn", "solar system"}},
	{"dinosaurs", []string{"dinosaurs", "t-rex", "triceratops", "prehistoric"}},
	{"volcanoes", []string{"volcanoes", "lava", "eruption", "magma"}},
	{"weather", []string{"weather", "rain", "snow", "wind", "storm"}},
	{"animals", []string{"animals", "lions", "tigers", "elephants", "pets"}},
	{"human body", []string{"body", "heart", "brain", "muscles", "bones"}},
	{"plants", []string{"plants", "trees", "flowers", "seeds", "leaves"}},
}

// KeywordTopics finds up to MaxTopics known topics mentioned in message by
// substring match.
func KeywordTopics(message string) []string {
	message = strings.ToLower(message)
	topics := []string{}
	for _, kt := range topicKeywords {
		for _, kw := range kt.keywords {
			if strings.Contains(message, kw) {
				topics = append(topics, kt.topic)
				break
			}
		}
		if len(topics) == MaxTopics {
			break
		}
	}
	return topics
}

// StaticGenerator serves only built-in content. It is used when no LLM is
// configured.
type StaticGenerator struct {
	next atomic.Int64
}

var _ Generator = (*StaticGenerator)(nil)

// GenerateQuiz implements Generator.
func (g *StaticGenerator) GenerateQuiz(ctx context.Context, topic string, _ int) (QuizResult, error) {
	if err := ctx.Err(); err != nil {
		return QuizResult{}, err
	}
	n := int(g.next.Add(1) - 1)
	return QuizResult{Quiz: FallbackQuiz(topic, n), Source: SourceFallback, Reason: "generator disabled"}, nil
}

// ExtractTopics implements Generator.
func (g *StaticGenerator) ExtractTopics(ctx context.Context, message string) (TopicsResult, error) {
	if err := ctx.Err(); err != nil {
		return TopicsResult{}, err
	}
	return TopicsResult{Topics: KeywordTopics(message), Source: SourceFallback, Reason: "generator disabled"}, nil
}
