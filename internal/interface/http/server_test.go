package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/youlearn/youlearn-progress/config"
	"github.com/youlearn/youlearn-progress/internal/application"
	"github.com/youlearn/youlearn-progress/internal/application/command"
	"github.com/youlearn/youlearn-progress/internal/application/eventhandler"
	"github.com/youlearn/youlearn-progress/internal/infrastructure/messaging"
	"github.com/youlearn/youlearn-progress/internal/infrastructure/persistence/memory"
	"github.com/youlearn/youlearn-progress/pkg/timeutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type testServer struct {
	t    *testing.T
	srv  *Server
	feed *eventhandler.CelebrationFeed
}

func newTestServer(t *testing.T, features *config.FeatureFlags) *testServer {
	t.Helper()
	bus := messaging.NewInMemoryEventBus(messaging.InMemoryEventBusConfig{AsyncMode: false})
	feed := eventhandler.NewCelebrationFeed(0, nil)
	require.NoError(t, feed.Register(bus))

	app := application.New(command.Deps{
		Store:     memory.New(),
		Publisher: bus,
		Clock:     timeutil.FixedClock{T: now},
	}, nil)

	cfg := DefaultConfig()
	cfg.RateLimitPerMinute = 0
	srv := NewServer(cfg, Dependencies{App: app, Celebrations: feed, Features: features})
	return &testServer{t: t, srv: srv, feed: feed}
}

func (ts *testServer) do(method, path string, body any) (int, envelope) {
	ts.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(ts.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(w, req)

	var env envelope
	require.NoError(ts.t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func (ts *testServer) register(username string) string {
	ts.t.Helper()
	code, env := ts.do(http.MethodPost, "/api/v1/users", map[string]any{
		"username": username,
		"email":    username + "@example.com",
		"age":      9,
	})
	require.Equal(ts.t, http.StatusCreated, code)
	var res command.RegisterUserResult
	require.NoError(ts.t, json.Unmarshal(env.Data, &res))
	require.NotEmpty(ts.t, res.UserID)
	return res.UserID
}

func TestServer_RegisterAndRecordQuiz(t *testing.T) {
	ts := newTestServer(t, nil)
	id := ts.register("maya")

	code, env := ts.do(http.MethodPost, "/api/v1/users/"+id+"/quiz-attempts", map[string]any{
		"topic": "Planets", "score": 7, "max_score": 10,
	})
	require.Equal(t, http.StatusOK, code)
	var res command.ActivityResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, 7, res.XPEarned)
	assert.Equal(t, 7, res.TotalXP)
	assert.Equal(t, 1, res.Level)

	code, env = ts.do(http.MethodGet, "/api/v1/users/"+id+"/stats?series_days=3", nil)
	require.Equal(t, http.StatusOK, code)
	var stats struct {
		TotalXP int `json:"total_xp"`
		DailyXP []struct {
			XP int `json:"xp"`
		} `json:"daily_xp"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, 7, stats.TotalXP)
	assert.Len(t, stats.DailyXP, 3)
}

func TestServer_ErrorMapping(t *testing.T) {
	ts := newTestServer(t, nil)
	id := ts.register("leo")

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"invalid user", http.MethodPost, "/api/v1/users", map[string]any{"username": "x", "email": "bad", "age": 9}, http.StatusBadRequest, "validation_error"},
		{"duplicate user", http.MethodPost, "/api/v1/users", map[string]any{"username": "leo", "email": "leo2@example.com", "age": 9}, http.StatusConflict, "already_exists"},
		{"unknown user", http.MethodPost, "/api/v1/users/nope/chat-turns", nil, http.StatusNotFound, "not_found"},
		{"missing score", http.MethodPost, "/api/v1/users/" + id + "/quiz-attempts", map[string]any{"topic": "math"}, http.StatusBadRequest, "validation_error"},
		{"score above max", http.MethodPost, "/api/v1/users/" + id + "/quiz-attempts", map[string]any{"topic": "math", "score": 4, "max_score": 3}, http.StatusBadRequest, "validation_error"},
		{"bad date", http.MethodPost, "/api/v1/users/" + id + "/logins", map[string]any{"date": "10/03/2026"}, http.StatusBadRequest, "validation_error"},
		{"bad window", http.MethodGet, "/api/v1/users/" + id + "/stats?series_days=abc", nil, http.StatusBadRequest, "validation_error"},
		{"window too large", http.MethodGet, "/api/v1/users/" + id + "/stats?calendar_days=999", nil, http.StatusBadRequest, "validation_error"},
		{"topic too long", http.MethodPost, "/api/v1/users/" + id + "/quiz-attempts", map[string]any{"topic": strings.Repeat("t", 101), "score": 1, "max_score": 1}, http.StatusBadRequest, "validation_error"},
		{"unknown profile", http.MethodGet, "/api/v1/users/nope", nil, http.StatusNotFound, "not_found"},
		{"profile age out of range", http.MethodPatch, "/api/v1/users/" + id, map[string]any{"age": 30}, http.StatusBadRequest, "validation_error"},
		{"bad celebrations value", http.MethodPatch, "/api/v1/users/" + id, map[string]any{"celebrations": "maybe"}, http.StatusBadRequest, "validation_error"},
		{"no route", http.MethodGet, "/api/v1/nothing", nil, http.StatusNotFound, "not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := ts.do(tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, status)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.code, env.Error.Code)
		})
	}
}

func TestServer_LoginStreak(t *testing.T) {
	ts := newTestServer(t, nil)
	id := ts.register("zoe")

	for _, day := range []string{"2026-03-08", "2026-03-09", "2026-03-10"} {
		code, _ := ts.do(http.MethodPost, "/api/v1/users/"+id+"/logins", map[string]any{"date": day})
		require.Equal(t, http.StatusOK, code)
	}

	code, env := ts.do(http.MethodPost, "/api/v1/users/"+id+"/logins", nil)
	require.Equal(t, http.StatusOK, code)
	var res command.RecordLoginResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, 3, res.LoginStreak)
	assert.False(t, res.StreakUpdated)

	code, env = ts.do(http.MethodPost, "/api/v1/users/"+id+"/logins", map[string]any{"date": "2026-03-01"})
	assert.Equal(t, http.StatusConflict, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "temporal_inconsistency", env.Error.Code)
}

func TestServer_QuizFlow(t *testing.T) {
	ts := newTestServer(t, nil)
	id := ts.register("sam")

	code, env := ts.do(http.MethodPost, "/api/v1/quizzes", map[string]any{"topic": "animals", "age": 40})
	require.Equal(t, http.StatusOK, code)
	var generated struct {
		Quiz   map[string]any `json:"quiz"`
		Source string         `json:"source"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &generated))
	assert.Equal(t, "fallback", generated.Source)

	quiz := map[string]any{
		"question": "Which animal is known as the king of the jungle?",
		"options":  []string{"Tiger", "Lion", "Bear", "Wolf"},
		"correct":  "Lion",
		"topic":    "animals",
	}

	code, env = ts.do(http.MethodPost, "/api/v1/quizzes/check", map[string]any{"quiz": quiz, "answer": "tiger"})
	require.Equal(t, http.StatusOK, code)
	var check struct {
		Correct bool `json:"correct"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &check))
	assert.False(t, check.Correct)

	code, env = ts.do(http.MethodPost, "/api/v1/users/"+id+"/quiz-answers", map[string]any{"quiz": quiz, "answer": " lion "})
	require.Equal(t, http.StatusOK, code)
	var answered quizAnswerResponse
	require.NoError(t, json.Unmarshal(env.Data, &answered))
	assert.True(t, answered.Answer.Correct)
	require.NotNil(t, answered.Progress)
	assert.Equal(t, 10, answered.Progress.XPEarned)

	quiz["options"] = []string{"Lion", "Lion", "Bear", "Wolf"}
	code, _ = ts.do(http.MethodPost, "/api/v1/quizzes/check", map[string]any{"quiz": quiz, "answer": "Lion"})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestServer_ExtractTopics(t *testing.T) {
	ts := newTestServer(t, nil)

	code, env := ts.do(http.MethodPost, "/api/v1/topics", map[string]any{"message": "Why do lions roar at the moon?"})
	require.Equal(t, http.StatusOK, code)
	var res struct {
		Topics []string `json:"topics"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.NotEmpty(t, res.Topics)
	assert.LessOrEqual(t, len(res.Topics), 3)
}

func TestServer_Celebrations(t *testing.T) {
	ts := newTestServer(t, nil)
	id := ts.register("ava")

	for i := 0; i < 3; i++ {
		code, _ := ts.do(http.MethodPost, "/api/v1/users/"+id+"/quiz-attempts", map[string]any{
			"topic": "weather", "score": 5, "max_score": 5,
		})
		require.Equal(t, http.StatusOK, code)
	}

	code, env := ts.do(http.MethodGet, "/api/v1/users/"+id+"/celebrations?peek=true", nil)
	require.Equal(t, http.StatusOK, code)
	var peeked []eventhandler.Celebration
	require.NoError(t, json.Unmarshal(env.Data, &peeked))
	kinds := make([]eventhandler.CelebrationKind, 0, len(peeked))
	for _, c := range peeked {
		kinds = append(kinds, c.Kind)
	}
	assert.Contains(t, kinds, eventhandler.CelebrationAchievement)

	_, env = ts.do(http.MethodGet, "/api/v1/users/"+id+"/celebrations", nil)
	var drained []eventhandler.Celebration
	require.NoError(t, json.Unmarshal(env.Data, &drained))
	assert.Len(t, drained, len(peeked))
	assert.Empty(t, ts.feed.Peek(id))
}

func TestServer_CelebrationsDisabled(t *testing.T) {
	flags := config.NewFeatureFlags()
	require.NoError(t, flags.DisableFeature(config.FeatureCelebrations))
	ts := newTestServer(t, flags)
	id := ts.register("kai")

	code, _ := ts.do(http.MethodPost, "/api/v1/users/"+id+"/quiz-attempts", map[string]any{
		"topic": "weather", "score": 1, "max_score": 1,
	})
	require.Equal(t, http.StatusOK, code)

	code, env := ts.do(http.MethodGet, "/api/v1/users/"+id+"/celebrations", nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[]`, string(env.Data))
}

func TestServer_ListAchievements(t *testing.T) {
	ts := newTestServer(t, nil)

	code, env := ts.do(http.MethodGet, "/api/v1/achievements", nil)
	require.Equal(t, http.StatusOK, code)
	var entries []catalogEntry
	require.NoError(t, json.Unmarshal(env.Data, &entries))
	assert.Len(t, entries, 15)
	for _, e := range entries {
		assert.NotEmpty(t, e.ID)
		assert.NotEmpty(t, e.Metric)
	}
}

func TestServer_Health(t *testing.T) {
	ts := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestServer_Profile(t *testing.T) {
	ts := newTestServer(t, config.NewFeatureFlags())
	id := ts.register("juno")

	code, env := ts.do(http.MethodGet, "/api/v1/users/"+id, nil)
	require.Equal(t, http.StatusOK, code)
	var p struct {
		UserID       string `json:"user_id"`
		Username     string `json:"username"`
		DisplayName  string `json:"display_name"`
		Age          int    `json:"age"`
		ParentEmail  string `json:"parent_email"`
		HasPassword  bool   `json:"has_password"`
		Celebrations bool   `json:"celebrations"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &p))
	assert.Equal(t, id, p.UserID)
	assert.Equal(t, "juno", p.DisplayName)
	assert.True(t, p.Celebrations)

	code, env = ts.do(http.MethodPatch, "/api/v1/users/"+id, map[string]any{
		"display_name": "Juno Star",
		"age":          10,
		"parent_email": "dad@example.com",
		"new_password": "rocket ship",
		"celebrations": "off",
	})
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &p))
	assert.Equal(t, "Juno Star", p.DisplayName)
	assert.Equal(t, 10, p.Age)
	assert.Equal(t, "dad@example.com", p.ParentEmail)
	assert.True(t, p.HasPassword)
	assert.False(t, p.Celebrations)
	assert.Equal(t, "juno", p.Username)

	code, env = ts.do(http.MethodPatch, "/api/v1/users/"+id, map[string]any{
		"current_password": "wrong guess",
		"new_password":     "another one",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "validation_error", env.Error.Code)

	code, env = ts.do(http.MethodPatch, "/api/v1/users/"+id, map[string]any{"celebrations": "default"})
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &p))
	assert.True(t, p.Celebrations)
	assert.Equal(t, "Juno Star", p.DisplayName)
}

func TestServer_LearningTip(t *testing.T) {
	ts := newTestServer(t, nil)

	code, env := ts.do(http.MethodPost, "/api/v1/tips", map[string]any{"message": "How do volcanoes erupt with lava?"})
	require.Equal(t, http.StatusOK, code)
	var tip struct {
		Subject string   `json:"subject"`
		Tip     string   `json:"tip"`
		Topics  []string `json:"topics"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &tip))
	assert.Equal(t, "science", tip.Subject)
	assert.Equal(t, []string{"volcanoes"}, tip.Topics)
	assert.NotEmpty(t, tip.Tip)

	code, env = ts.do(http.MethodPost, "/api/v1/tips", map[string]any{"topics": []string{"reading"}})
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &tip))
	assert.Equal(t, "language", tip.Subject)

	code, env = ts.do(http.MethodPost, "/api/v1/tips", nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &tip))
	assert.Equal(t, "general", tip.Subject)
	assert.Equal(t, "Keep being curious and asking questions! 🌟", tip.Tip)
}
