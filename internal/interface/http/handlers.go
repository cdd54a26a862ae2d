package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/youlearn/youlearn-progress/config"
	"github.com/youlearn/youlearn-progress/internal/application/command"
	"github.com/youlearn/youlearn-progress/internal/application/eventhandler"
	"github.com/youlearn/youlearn-progress/internal/application/query"
	"github.com/youlearn/youlearn-progress/internal/domain/content"
	"github.com/youlearn/youlearn-progress/internal/domain/shared"
	"github.com/youlearn/youlearn-progress/internal/interface/http/handlers"
	"github.com/youlearn/youlearn-progress/pkg/logger"
	"github.com/youlearn/youlearn-progress/pkg/timeutil"
)

// Learner ages accepted for quiz prompts.
const (
	defaultQuizAge = 8
	minQuizAge     = 5
	maxQuizAge     = 12
)

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST BODIES
// ══════════════════════════════════════════════════════════════════════════════

type registerUserRequest struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Age         int    `json:"age"`
	ParentEmail string `json:"parent_email"`
	Password    string `json:"password"`
}

type updateProfileRequest struct {
	DisplayName     *string `json:"display_name"`
	Email           *string `json:"email"`
	Age             *int    `json:"age"`
	ParentEmail     *string `json:"parent_email"`
	CurrentPassword string  `json:"current_password"`
	NewPassword     string  `json:"new_password"`

	// Celebrations is "on", "off" or "default".
	Celebrations string `json:"celebrations"`
}

type profileResponse struct {
	*query.Profile
	Celebrations bool `json:"celebrations"`
}

type chatTurnRequest struct {
	At *time.Time `json:"at"`
}

type quizAttemptRequest struct {
	Topic    string     `json:"topic"`
	Score    *int       `json:"score"`
	MaxScore *int       `json:"max_score"`
	At       *time.Time `json:"at"`
}

type learningSessionRequest struct {
	Topic           string     `json:"topic"`
	DurationSeconds int64      `json:"duration_seconds"`
	StartedAt       *time.Time `json:"started_at"`
	EndedAt         *time.Time `json:"ended_at"`
}

type loginRequest struct {
	// Date is YYYY-MM-DD; empty means today.
	Date string `json:"date"`
}

type generateQuizRequest struct {
	Topic string `json:"topic"`
	Age   int    `json:"age"`
}

type checkAnswerRequest struct {
	Quiz   content.Quiz `json:"quiz"`
	Answer string       `json:"answer"`
}

type extractTopicsRequest struct {
	Message string `json:"message"`
}

type learningTipRequest struct {
	Message string   `json:"message"`
	Topics  []string `json:"topics"`
}

type catalogEntry struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Emoji       string `json:"emoji"`
	Category    string `json:"category"`
	Metric      string `json:"metric"`
	Threshold   int    `json:"threshold"`
	Points      int    `json:"points"`
}

type quizAnswerResponse struct {
	Answer   content.AnswerResult    `json:"answer"`
	Progress *command.ActivityResult `json:"progress"`
}

// bind decodes an optional JSON body. An empty body leaves dst untouched.
func bind(c *gin.Context, dst any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		handlers.RespondErrorWithDetails(c, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return false
	}
	return true
}

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRegisterUser handles POST /api/v1/users
func (s *Server) handleRegisterUser(c *gin.Context) {
	var req registerUserRequest
	if !bind(c, &req) {
		return
	}
	res, err := s.deps.App.RegisterUser.Handle(c.Request.Context(), command.RegisterUserCommand{
		Username:    req.Username,
		Email:       req.Email,
		DisplayName: req.DisplayName,
		Age:         req.Age,
		ParentEmail: req.ParentEmail,
		Password:    req.Password,
	})
	if err != nil {
		s.respondDomainError(c, err)
		return
	}
	handlers.Respond(c, http.StatusCreated, res)
}

// handleGetProfile handles GET /api/v1/users/:id
func (s *Server) handleGetProfile(c *gin.Context) {
	p, err := s.deps.App.GetProfile.Handle(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondDomainError(c, err)
		return
	}
	handlers.Respond(c, http.StatusOK, s.profileResponse(p))
}

// handleUpdateProfile handles PATCH /api/v1/users/:id
func (s *Server) handleUpdateProfile(c *gin.Context) {
	var req updateProfileRequest
	if !bind(c, &req) {
		return
	}
	switch req.Celebrations {
	case "", "on", "off", "default":
	default:
		handlers.RespondError(c, http.StatusBadRequest, "validation_error", "celebrations must be on, off or default")
		return
	}
	p, err := s.deps.App.UpdateProfile.Handle(c.Request.Context(), command.UpdateProfileCommand{
		UserID:          c.Param("id"),
		DisplayName:     req.DisplayName,
		Email:           req.Email,
		Age:             req.Age,
		ParentEmail:     req.ParentEmail,
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
	})
	if err != nil {
		s.respondDomainError(c, err)
		return
	}
	if s.deps.Features != nil {
		switch req.Celebrations {
		case "on":
			s.deps.Features.SetUserOverride(p.UserID, config.FeatureCelebrations, true)
		case "off":
			s.deps.Features.SetUserOverride(p.UserID, config.FeatureCelebrations, false)
		case "default":
			s.deps.Features.ClearUserOverrides(p.UserID)
		}
	}
	handlers.Respond(c, http.StatusOK, s.profileResponse(p))
}

func (s *Server) profileResponse(p *query.Profile) profileResponse {
	return profileResponse{Profile: p, Celebrations: s.celebrationsOn(p.UserID)}
}

func (s *Server) celebrationsOn(userID string) bool {
	if s.deps.Celebrations == nil {
		return false
	}
	return s.deps.Features == nil || s.deps.Features.IsEnabled(config.FeatureCelebrations, &config.FeatureContext{UserID: userID})
}

// handleChatTurn handles POST /api/v1/users/:id/chat-turns
func (s *Server) handleChatTurn(c *gin.Context) {
	var req chatTurnRequest
	if !bind(c, &req) {
		return
	}
	res, err := s.deps.App.RecordActivity.HandleChatTurn(c.Request.Context(), command.RecordChatTurnCommand{
		UserID:        c.Param("id"),
		At:            timeOrZero(req.At),
		CorrelationID: handlers.RequestIDFrom(c),
	})
	if err != nil {
		s.respondDomainError(c, err)
		return
	}
	handlers.Respond(c, http.StatusOK, res)
}

// handleQuizAttempt handles POST /api/v1/users/:id/quiz-attempts
func (s *Server) handleQuizAttempt(c *gin.Context) {
	var req quizAttemptRequest
	if !bind(c, &req) {
		return
	}
	if req.Score == nil || req.MaxScore == nil {
		handlers.RespondError(c, http.StatusBadRequest, "validation_error", "score and max_score are required")
		return
	}
	res, err := s.deps.App.RecordActivity.HandleQuizAttempt(c.Request.Context(), command.RecordQuizAttemptCommand{
		UserID:        c.Param("id"),
		Topic:         req.Topic,
		Score:         *req.Score,
		MaxScore:      *req.MaxScore,
		At:            timeOrZero(req.At),
		CorrelationID: handlers.RequestIDFrom(c),
	})
	if err != nil {
		s.respondDomainError(c, err)
		return
	}
	handlers.Respond(c, http.StatusOK, res)
}

// handleLearningSession handles POST /api/v1/users/:id/learning-sessions
func (s *Server) handleLearningSession(c *gin.Context) {
	var req learningSessionRequest
	if !bind(c, &req) {
		return
	}
	res, err := s.deps.App.RecordActivity.HandleLearningSession(c.Request.Context(), command.RecordLearningSessionCommand{
		UserID:          c.Param("id"),
		Topic:           req.Topic,
		DurationSeconds: req.DurationSeconds,
		StartedAt:       timeOrZero(req.StartedAt),
		EndedAt:         timeOrZero(req.EndedAt),
		CorrelationID:   handlers.RequestIDFrom(c),
	})
	if err != nil {
		s.respondDomainError(c, err)
		return
	}
	handlers.Respond(c, http.StatusOK, res)
}

// handleLogin handles POST /api/v1/users/:id/logins
func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if !bind(c, &req) {
		return
	}
	var date time.Time
	if req.Date != "" {
		d, err := timeutil.ParseDate(req.Date)
		if err != nil {
			handlers.RespondError(c, http.StatusBadRequest, "validation_error", "date must be YYYY-MM-DD")
			return
		}
		date = d
	}
	res, err := s.deps.App.RecordLogin.Handle(c.Request.Context(), command.RecordLoginCommand{
		UserID:        c.Param("id"),
		Date:          date,
		CorrelationID: handlers.RequestIDFrom(c),
	})
	if err != nil {
		s.respondDomainError(c, err)
		return
	}
	handlers.Respond(c, http.StatusOK, res)
}

// handleQuizAnswer handles POST /api/v1/users/:id/quiz-answers: it checks the
// answer and records the result as a one-point quiz attempt.
func (s *Server) handleQuizAnswer(c *gin.Context) {
	var req checkAnswerRequest
	if !bind(c, &req) {
		return
	}
	if err := req.Quiz.Validate(); err != nil {
		s.respondDomainError(c, err)
		return
	}
	answer := content.CheckAnswer(req.Quiz, req.Answer)

	topic := req.Quiz.Topic
	if strings.TrimSpace(topic) == "" {
		topic = "general"
	}
	progress, err := s.deps.App.RecordActivity.HandleQuizAttempt(c.Request.Context(), command.RecordQuizAttemptCommand{
		UserID:        c.Param("id"),
		Topic:         topic,
		Score:         answer.Score,
		MaxScore:      answer.MaxScore,
		CorrelationID: handlers.RequestIDFrom(c),
	})
	if err != nil {
		s.respondDomainError(c, err)
		return
	}
	handlers.Respond(c, http.StatusOK, quizAnswerResponse{Answer: answer, Progress: progress})
}

// handleGetStats handles GET /api/v1/users/:id/stats
func (s *Server) handleGetStats(c *gin.Context) {
	seriesDays, ok := queryInt(c, "series_days")
	if !ok {
		return
	}
	calendarDays, ok := queryInt(c, "calendar_days")
	if !ok {
		return
	}
	res, err := s.deps.App.GetStats.Handle(c.Request.Context(), query.GetStatsQuery{
		UserID:       c.Param("id"),
		SeriesDays:   seriesDays,
		CalendarDays: calendarDays,
	})
	if err != nil {
		s.respondDomainError(c, err)
		return
	}
	handlers.Respond(c, http.StatusOK, res)
}

// handleCelebrations handles GET /api/v1/users/:id/celebrations. Queued
// celebrations are removed unless peek=true.
func (s *Server) handleCelebrations(c *gin.Context) {
	userID := c.Param("id")
	if !s.celebrationsOn(userID) {
		handlers.Respond(c, http.StatusOK, []eventhandler.Celebration{})
		return
	}
	if c.Query("peek") == "true" {
		handlers.Respond(c, http.StatusOK, s.deps.Celebrations.Peek(userID))
		return
	}
	handlers.Respond(c, http.StatusOK, s.deps.Celebrations.Drain(userID))
}

// handleListAchievements handles GET /api/v1/achievements
func (s *Server) handleListAchievements(c *gin.Context) {
	defs := s.deps.App.Catalog.All()
	out := make([]catalogEntry, 0, len(defs))
	for _, d := range defs {
		out = append(out, catalogEntry{
			ID:          d.ID,
			Name:        d.Name,
			Description: d.Description,
			Emoji:       d.Emoji,
			Category:    string(d.Category),
			Metric:      string(d.Metric),
			Threshold:   d.Threshold,
			Points:      d.Points,
		})
	}
	handlers.Respond(c, http.StatusOK, out)
}

// ══════════════════════════════════════════════════════════════════════════════
// CONTENT HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGenerateQuiz handles POST /api/v1/quizzes
func (s *Server) handleGenerateQuiz(c *gin.Context) {
	var req generateQuizRequest
	if !bind(c, &req) {
		return
	}
	age := req.Age
	switch {
	case age == 0:
		age = defaultQuizAge
	case age < minQuizAge:
		age = minQuizAge
	case age > maxQuizAge:
		age = maxQuizAge
	}
	res, err := s.deps.Content.GenerateQuiz(c.Request.Context(), req.Topic, age)
	if err != nil {
		s.respondDomainError(c, err)
		return
	}
	handlers.Respond(c, http.StatusOK, res)
}

// handleCheckAnswer handles POST /api/v1/quizzes/check without recording progress.
func (s *Server) handleCheckAnswer(c *gin.Context) {
	var req checkAnswerRequest
	if !bind(c, &req) {
		return
	}
	if err := req.Quiz.Validate(); err != nil {
		s.respondDomainError(c, err)
		return
	}
	handlers.Respond(c, http.StatusOK, content.CheckAnswer(req.Quiz, req.Answer))
}

// handleExtractTopics handles POST /api/v1/topics
func (s *Server) handleExtractTopics(c *gin.Context) {
	var req extractTopicsRequest
	if !bind(c, &req) {
		return
	}
	res, err := s.deps.Content.ExtractTopics(c.Request.Context(), req.Message)
	if err != nil {
		s.respondDomainError(c, err)
		return
	}
	handlers.Respond(c, http.StatusOK, res)
}

// handleLearningTip handles POST /api/v1/tips. Topics are extracted from
// message when none are given.
func (s *Server) handleLearningTip(c *gin.Context) {
	var req learningTipRequest
	if !bind(c, &req) {
		return
	}
	topics := req.Topics
	if len(topics) == 0 && strings.TrimSpace(req.Message) != "" {
		res, err := s.deps.Content.ExtractTopics(c.Request.Context(), req.Message)
		if err != nil {
			s.respondDomainError(c, err)
			return
		}
		topics = res.Topics
	}
	handlers.Respond(c, http.StatusOK, s.tips.Next(topics))
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// respondDomainError maps domain errors onto HTTP statuses.
func (s *Server) respondDomainError(c *gin.Context, err error) {
	switch {
	case shared.IsValidation(err):
		handlers.RespondError(c, http.StatusBadRequest, "validation_error", err.Error())
	case shared.IsTemporalInconsistency(err):
		handlers.RespondError(c, http.StatusConflict, "temporal_inconsistency", err.Error())
	case shared.IsNotFound(err):
		handlers.RespondError(c, http.StatusNotFound, "not_found", err.Error())
	case shared.IsAlreadyExists(err):
		handlers.RespondError(c, http.StatusConflict, "already_exists", err.Error())
	case errors.Is(err, shared.ErrConflict):
		handlers.RespondError(c, http.StatusConflict, "conflict", "Concurrent update, please retry")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, shared.ErrUnavailable), errors.Is(err, shared.ErrTimeout):
		handlers.RespondError(c, http.StatusServiceUnavailable, "unavailable", "Service temporarily unavailable")
	default:
		logger.FromContext(c.Request.Context()).Error("request failed",
			logger.String("path", c.FullPath()), logger.Err(err))
		handlers.RespondError(c, http.StatusInternalServerError, "internal_error", "Internal server error")
	}
}

// queryInt parses an optional integer query parameter, answering 400 on garbage.
func queryInt(c *gin.Context, key string) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		handlers.RespondError(c, http.StatusBadRequest, "validation_error", key+" must be an integer")
		return 0, false
	}
	return v, true
}
