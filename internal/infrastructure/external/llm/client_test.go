package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/youlearn/youlearn-progress/internal/domain/content"
	"github.com/youlearn/youlearn-progress/pkg/circuitbreaker"
	"github.com/youlearn/youlearn-progress/pkg/logger"
	"github.com/youlearn/youlearn-progress/pkg/retry"
)

func completion(text string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 1234567890,
		"model":   DefaultModel,
		"choices": []map[string]any{
			{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": text},
				"finish_reason": "stop",
			},
		},
		"usage": map[string]any{"prompt_tokens": 40, "completion_tokens": 25, "total_tokens": 65},
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := DefaultConfig("test-key")
	cfg.BaseURL = server.URL + "/v1"
	cfg.RequestsPerMinute = 0
	c, err := New(cfg, logger.Nop())
	require.NoError(t, err)
	c.retrier = retry.New(
		retry.WithMaxAttempts(2),
		retry.WithBackoff(time.Millisecond, time.Millisecond),
		retry.WithClassifier(classify),
	)
	return c
}

func replyJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

func TestNew_RequiresKey(t *testing.T) {
	_, err := New(Config{}, nil)
	assert.Error(t, err)
}

func TestGenerateQuiz_Generated(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		_ = json.NewDecoder(r.Body).Decode(&got)
		replyJSON(w, completion(`{"question":"What is 2+3? ➕","options":["4","5","6","7"],"correct":"5"}`))
	})

	res, err := c.GenerateQuiz(context.Background(), " Addition ", 8)
	require.NoError(t, err)
	assert.Equal(t, content.SourceGenerated, res.Source)
	assert.Empty(t, res.Reason)
	assert.Equal(t, "5", res.Quiz.Correct)
	assert.Equal(t, "addition", res.Quiz.Topic)
	assert.Equal(t, DefaultModel, got["model"])
}

func TestGenerateQuiz_FencedJSON(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		replyJSON(w, completion("```json\n{\"question\":\"q?\",\"options\":[\"a\",\"b\",\"c\",\"d\"],\"correct\":\"b\"}\n```"))
	})

	res, err := c.GenerateQuiz(context.Background(), "letters", 7)
	require.NoError(t, err)
	assert.Equal(t, content.SourceGenerated, res.Source)
	assert.Equal(t, "b", res.Quiz.Correct)
}

func TestGenerateQuiz_FallbackOnBadContent(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"not json", "Here is a fun quiz!"},
		{"three options", `{"question":"q","options":["a","b","c"],"correct":"a"}`},
		{"correct not an option", `{"question":"q","options":["a","b","c","d"],"correct":"z"}`},
		{"missing field", `{"question":"q","options":["a","b","c","d"]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				replyJSON(w, completion(tt.reply))
			})
			res, err := c.GenerateQuiz(context.Background(), "animals", 8)
			require.NoError(t, err)
			assert.Equal(t, content.SourceFallback, res.Source)
			assert.NotEmpty(t, res.Reason)
			assert.Equal(t, "Lion", res.Quiz.Correct)
		})
	}
}

func TestGenerateQuiz_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			replyJSON(w, map[string]any{"error": map[string]any{"message": "overloaded"}})
			return
		}
		replyJSON(w, completion(`{"question":"q?","options":["a","b","c","d"],"correct":"a"}`))
	})

	res, err := c.GenerateQuiz(context.Background(), "letters", 6)
	require.NoError(t, err)
	assert.Equal(t, content.SourceGenerated, res.Source)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGenerateQuiz_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		replyJSON(w, map[string]any{"error": map[string]any{"message": "bad key"}})
	})

	res, err := c.GenerateQuiz(context.Background(), "letters", 6)
	require.NoError(t, err)
	assert.Equal(t, content.SourceFallback, res.Source)
	assert.Equal(t, "generator error", res.Reason)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGenerateQuiz_BreakerOpens(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	for i := 0; i < 3; i++ {
		res, err := c.GenerateQuiz(context.Background(), "space", 9)
		require.NoError(t, err)
		assert.Equal(t, "generator unavailable", res.Reason)
	}
	assert.Equal(t, circuitbreaker.StateOpen, c.Breaker().State())

	before := calls.Load()
	res, err := c.GenerateQuiz(context.Background(), "space", 9)
	require.NoError(t, err)
	assert.Equal(t, "generator temporarily disabled", res.Reason)
	assert.Equal(t, before, calls.Load())
}

func TestGenerateQuiz_EmptyTopicSkipsProvider(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("provider must not be called")
	})
	res, err := c.GenerateQuiz(context.Background(), "  ", 8)
	require.NoError(t, err)
	assert.Equal(t, content.SourceFallback, res.Source)
}

func TestGenerateQuiz_CancelledContext(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.GenerateQuiz(ctx, "space", 9)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExtractTopics(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		replyJSON(w, completion(`{"topics":["Planets"," planets ","gravity","stars","moons"]}`))
	})
	res, err := c.ExtractTopics(context.Background(), "why does mars look red?")
	require.NoError(t, err)
	assert.Equal(t, content.SourceGenerated, res.Source)
	assert.Equal(t, []string{"planets", "gravity", "stars"}, res.Topics)
}

func TestExtractTopics_KeywordFallback(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		replyJSON(w, completion(`{"subjects":[]}`))
	})
	res, err := c.ExtractTopics(context.Background(), "the volcano had hot lava")
	require.NoError(t, err)
	assert.Equal(t, content.SourceFallback, res.Source)
	assert.Equal(t, []string{"volcanoes"}, res.Topics)
}

func TestRateLimiter(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := newRateLimiter(60, 2, func() time.Time { return now })

	assert.True(t, rl.Allow())
	assert.True(t, rl.Allow())
	assert.False(t, rl.Allow())

	now = now.Add(time.Second)
	assert.True(t, rl.Allow())
	assert.False(t, rl.Allow())

	var disabled *rateLimiter
	assert.True(t, disabled.Allow())
	assert.Nil(t, newRateLimiter(0, 5, nil))
}

func TestGenerateQuiz_LocalRateLimit(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		replyJSON(w, completion(`{"question":"q?","options":["a","b","c","d"],"correct":"a"}`))
	})
	c.limiter = newRateLimiter(1, 1, nil)

	first, err := c.GenerateQuiz(context.Background(), "letters", 6)
	require.NoError(t, err)
	assert.Equal(t, content.SourceGenerated, first.Source)

	second, err := c.GenerateQuiz(context.Background(), "letters", 6)
	require.NoError(t, err)
	assert.Equal(t, content.SourceFallback, second.Source)
	assert.Equal(t, "rate limited", second.Reason)
	assert.Equal(t, int32(1), calls.Load())
}
