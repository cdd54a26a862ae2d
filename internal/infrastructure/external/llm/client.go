package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/youlearn/youlearn-progress/internal/domain/content"
	"github.com/youlearn/youlearn-progress/pkg/circuitbreaker"
	"github.com/youlearn/youlearn-progress/pkg/logger"
	"github.com/youlearn/youlearn-progress/pkg/retry"
)

const quizSystemPrompt = `You write multiple-choice quiz questions for children.
Answer with a single JSON object and nothing else:
{"question": "...", "options": ["...", "...", "...", "..."], "correct": "..."}
Use exactly four options. "correct" must be copied exactly from "options".
Keep the language simple and friendly, and add one fun emoji to the question.`

const topicsSystemPrompt = `You find learning topics in a child's chat message.
Answer with a single JSON object and nothing else: {"topics": ["..."]}
Use at most three short lower-case topics, for example "addition", "planets", "volcanoes".
Return an empty list when the message has no learning topic.`

// Client is a content.Generator backed by a chat completion API.
type Client struct {
	api     *openai.Client
	cfg     Config
	retrier *retry.Retrier
	breaker *circuitbreaker.CircuitBreaker
	limiter *rateLimiter
	log     *logger.Logger

	fallbackSeq atomic.Int64
}

var _ content.Generator = (*Client)(nil)

// New creates a client. An empty API key is rejected; callers without a key
// use content.StaticGenerator instead.
func New(cfg Config, log *logger.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("llm: api key is required")
	}
	cfg = cfg.withDefaults()
	if log == nil {
		log = logger.Nop()
	}
	log = log.With(logger.Component("llm"))

	oc := openai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = cfg.BaseURL

	c := &Client{
		api:     openai.NewClientWithConfig(oc),
		cfg:     cfg,
		limiter: newRateLimiter(cfg.RequestsPerMinute, cfg.Burst, nil),
		log:     log,
	}
	c.retrier = retry.ContentRetrier(classify,
		retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
			log.Warn("completion failed, retrying",
				logger.Int("attempt", attempt), logger.Duration("delay", delay), logger.Err(err))
		}),
	)
	c.breaker = circuitbreaker.ContentBreaker(func(name string, from, to circuitbreaker.State) {
		log.Warn("circuit breaker state change",
			logger.String("breaker", name), logger.String("from", from.String()), logger.String("to", to.String()))
	})
	return c, nil
}

// Breaker exposes the breaker for health reporting.
func (c *Client) Breaker() *circuitbreaker.CircuitBreaker { return c.breaker }

// GenerateQuiz asks the model for a quiz on topic pitched at age.
func (c *Client) GenerateQuiz(ctx context.Context, topic string, age int) (content.QuizResult, error) {
	if err := ctx.Err(); err != nil {
		return content.QuizResult{}, err
	}
	topic = strings.ToLower(strings.TrimSpace(topic))
	if topic == "" {
		return c.fallbackQuiz(topic, "no topic given"), nil
	}

	prompt := fmt.Sprintf("Create a quiz question about %s for a %d year old child.", topic, age)
	raw, err := c.complete(ctx, quizSystemPrompt, prompt)
	if err != nil {
		return c.fallbackQuiz(topic, c.reason("GenerateQuiz", err)), nil
	}

	var quiz content.Quiz
	if err := decode("quiz", quizSchema, raw, &quiz); err != nil {
		return c.fallbackQuiz(topic, c.reason("GenerateQuiz", err)), nil
	}
	quiz.Topic = topic
	if err := quiz.Validate(); err != nil {
		return c.fallbackQuiz(topic, c.reason("GenerateQuiz", err)), nil
	}
	return content.QuizResult{Quiz: quiz, Source: content.SourceGenerated}, nil
}

// ExtractTopics asks the model for the topics of message. The keyword map is
// the fallback.
func (c *Client) ExtractTopics(ctx context.Context, message string) (content.TopicsResult, error) {
	if err := ctx.Err(); err != nil {
		return content.TopicsResult{}, err
	}
	if strings.TrimSpace(message) == "" {
		return content.TopicsResult{Topics: []string{}, Source: content.SourceFallback, Reason: "empty message"}, nil
	}

	raw, err := c.complete(ctx, topicsSystemPrompt, message)
	if err != nil {
		return c.fallbackTopics(message, c.reason("ExtractTopics", err)), nil
	}

	var out struct {
		Topics []string `json:"topics"`
	}
	if err := decode("topics", topicsSchema, raw, &out); err != nil {
		return c.fallbackTopics(message, c.reason("ExtractTopics", err)), nil
	}
	return content.TopicsResult{Topics: cleanTopics(out.Topics), Source: content.SourceGenerated}, nil
}

// complete runs one chat completion through the limiter, breaker and retrier.
func (c *Client) complete(ctx context.Context, system, user string) (string, error) {
	if !c.limiter.Allow() {
		return "", ErrRateLimited
	}

	req := openai.ChatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	var out string
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		text, err := retry.DoValue(ctx, c.retrier, func(ctx context.Context) (string, error) {
			callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
			defer cancel()

			start := time.Now()
			resp, err := c.api.CreateChatCompletion(callCtx, req)
			if err != nil {
				return "", mapAPIError(err)
			}
			c.log.Debug("completion done",
				logger.String("model", resp.Model),
				logger.Int("total_tokens", resp.Usage.TotalTokens),
				logger.Latency(time.Since(start)))
			if len(resp.Choices) == 0 {
				return "", retry.Permanent(ErrEmptyResponse)
			}
			return resp.Choices[0].Message.Content, nil
		})
		out = text
		return err
	})
	return out, err
}

func (c *Client) reason(op string, err error) string {
	c.log.Warn("content generation degraded to fallback", logger.Operation(op), logger.Err(err))
	switch {
	case errors.Is(err, circuitbreaker.ErrOpen):
		return "generator temporarily disabled"
	case errors.Is(err, ErrRateLimited):
		return "rate limited"
	case errors.Is(err, context.DeadlineExceeded):
		return "generator timed out"
	case errors.Is(err, ErrUnavailable):
		return "generator unavailable"
	}
	var invalid *InvalidResponseError
	if errors.As(err, &invalid) {
		return "invalid generator response"
	}
	return "generator error"
}

func (c *Client) fallbackQuiz(topic, reason string) content.QuizResult {
	n := int(c.fallbackSeq.Add(1) - 1)
	return content.QuizResult{Quiz: content.FallbackQuiz(topic, n), Source: content.SourceFallback, Reason: reason}
}

func (c *Client) fallbackTopics(message, reason string) content.TopicsResult {
	return content.TopicsResult{Topics: content.KeywordTopics(message), Source: content.SourceFallback, Reason: reason}
}

func cleanTopics(in []string) []string {
	out := []string{}
	seen := make(map[string]bool)
	for _, t := range in {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
		if len(out) == content.MaxTopics {
			break
		}
	}
	return out
}
