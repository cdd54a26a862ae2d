package command

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/youlearn/youlearn-progress/internal/domain/achievement"
	"github.com/youlearn/youlearn-progress/internal/domain/shared"
	"github.com/youlearn/youlearn-progress/internal/domain/user"
	"github.com/youlearn/youlearn-progress/internal/infrastructure/persistence/memory"
	"github.com/youlearn/youlearn-progress/pkg/timeutil"
)

var now = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *recordingPublisher) Publish(e shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) ofType(t shared.EventType) []shared.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []shared.Event
	for _, e := range p.events {
		if e.EventType() == t {
			out = append(out, e)
		}
	}
	return out
}

type recordingCache struct {
	mu          sync.Mutex
	invalidated []string
}

func (c *recordingCache) Invalidate(_ context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, userID)
	return nil
}

type fixture struct {
	store    *memory.Store
	pub      *recordingPublisher
	cache    *recordingCache
	register *RegisterUserHandler
	activity *RecordActivityHandler
	login    *RecordLoginHandler
	profile  *UpdateProfileHandler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: memory.New(), pub: &recordingPublisher{}, cache: &recordingCache{}}
	deps := Deps{
		Store:     f.store,
		Publisher: f.pub,
		Cache:     f.cache,
		Clock:     timeutil.FixedClock{T: now},
	}
	f.register = NewRegisterUserHandler(deps)
	f.activity = NewRecordActivityHandler(deps)
	f.login = NewRecordLoginHandler(deps)
	f.profile = NewUpdateProfileHandler(deps)
	return f
}

func (f *fixture) newUser(t *testing.T, username string) string {
	t.Helper()
	res, err := f.register.Handle(context.Background(), RegisterUserCommand{
		Username: username,
		Email:    username + "@example.com",
		Age:      10,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Level)
	assert.Zero(t, res.TotalXP)
	return res.UserID
}

func TestRegisterUser(t *testing.T) {
	f := newFixture(t)
	f.newUser(t, "mia")

	require.Len(t, f.pub.ofType(shared.EventUserRegistered), 1)

	_, err := f.register.Handle(context.Background(), RegisterUserCommand{Username: "MIA", Email: "other@example.com", Age: 10})
	assert.True(t, shared.IsAlreadyExists(err))

	_, err = f.register.Handle(context.Background(), RegisterUserCommand{Username: "tim", Email: "tim@example.com", Age: 10, Password: "short"})
	assert.True(t, shared.IsValidation(err))
}

func TestRecordQuizAttempt_XPAndLevel(t *testing.T) {
	f := newFixture(t)
	id := f.newUser(t, "ben")
	ctx := context.Background()

	res, err := f.activity.HandleQuizAttempt(ctx, RecordQuizAttemptCommand{UserID: id, Topic: "math", Score: 2, MaxScore: 3, CorrelationID: "req-1"})
	require.NoError(t, err)
	assert.Equal(t, 7, res.XPEarned)
	assert.Equal(t, 7, res.TotalXP)
	assert.False(t, res.LeveledUp)
	assert.Empty(t, res.NewAchievements)
	assert.Equal(t, now, res.RecordedAt)

	for i := 0; i < 92; i++ {
		_, err = f.activity.HandleChatTurn(ctx, RecordChatTurnCommand{UserID: id})
		require.NoError(t, err)
	}
	res, err = f.activity.HandleChatTurn(ctx, RecordChatTurnCommand{UserID: id})
	require.NoError(t, err)
	assert.Equal(t, 1, res.XPEarned)
	assert.Equal(t, 100, res.TotalXP)
	assert.Equal(t, 2, res.Level)
	assert.True(t, res.LeveledUp)

	levelUps := f.pub.ofType(shared.EventLevelUp)
	require.Len(t, levelUps, 1)
	assert.Equal(t, 2, levelUps[0].(shared.LevelUpEvent).NewLevel)

	recorded := f.pub.ofType(shared.EventActivityRecorded)
	require.NotEmpty(t, recorded)
	assert.Equal(t, "req-1", recorded[0].(shared.ActivityRecordedEvent).CorrelationID)
	assert.Contains(t, f.cache.invalidated, id)
}

func TestRecordQuizAttempt_Rejects(t *testing.T) {
	f := newFixture(t)
	id := f.newUser(t, "ada")
	ctx := context.Background()

	_, err := f.activity.HandleQuizAttempt(ctx, RecordQuizAttemptCommand{UserID: id, Topic: "math", Score: 4, MaxScore: 3})
	assert.True(t, shared.IsValidation(err))

	_, err = f.activity.HandleQuizAttempt(ctx, RecordQuizAttemptCommand{UserID: "ghost", Topic: "math", Score: 1, MaxScore: 3})
	assert.True(t, shared.IsNotFound(err))

	assert.Empty(t, f.pub.ofType(shared.EventActivityRecorded))
}

func TestAchievementsGrantedOnce(t *testing.T) {
	f := newFixture(t)
	id := f.newUser(t, "eli")
	ctx := context.Background()

	var res *ActivityResult
	var err error
	for i := 0; i < 5; i++ {
		res, err = f.activity.HandleQuizAttempt(ctx, RecordQuizAttemptCommand{UserID: id, Topic: "math", Score: 1, MaxScore: 2})
		require.NoError(t, err)
	}
	require.Len(t, res.NewAchievements, 1)
	assert.Equal(t, achievement.QuizNovice, res.NewAchievements[0].ID)
	assert.Equal(t, 25+50, res.TotalXP)

	res, err = f.activity.HandleQuizAttempt(ctx, RecordQuizAttemptCommand{UserID: id, Topic: "math", Score: 1, MaxScore: 2})
	require.NoError(t, err)
	assert.Empty(t, res.NewAchievements)
	assert.Equal(t, 80, res.TotalXP)

	assert.Len(t, f.pub.ofType(shared.EventAchievementUnlocked), 1)
}

func TestRecordLearningSession_Capped(t *testing.T) {
	f := newFixture(t)
	id := f.newUser(t, "ivy")

	res, err := f.activity.HandleLearningSession(context.Background(), RecordLearningSessionCommand{
		UserID:    id,
		Topic:     "dinosaurs",
		StartedAt: now.Add(-2 * time.Hour),
		EndedAt:   now,
	})
	require.NoError(t, err)
	assert.Equal(t, 20, res.XPEarned)
	require.Len(t, res.NewAchievements, 1)
	assert.Equal(t, achievement.LearningExplorer, res.NewAchievements[0].ID)
}

func TestRecordLearningSession_TwentyFiveMinutes(t *testing.T) {
	f := newFixture(t)
	id := f.newUser(t, "ada")

	res, err := f.activity.HandleLearningSession(context.Background(), RecordLearningSessionCommand{
		UserID:          id,
		Topic:           "volcanoes",
		DurationSeconds: 1500,
	})
	require.NoError(t, err)
	assert.Equal(t, 20, res.XPEarned)
	assert.Equal(t, 20, res.TotalXP)
	assert.Empty(t, res.NewAchievements)
}

func TestRecordLogin_Streak(t *testing.T) {
	f := newFixture(t)
	id := f.newUser(t, "leo")
	ctx := context.Background()

	var res *RecordLoginResult
	var err error
	for d := 1; d <= 3; d++ {
		res, err = f.login.Handle(ctx, RecordLoginCommand{UserID: id, Date: timeutil.Date(2026, 3, d)})
		require.NoError(t, err)
	}
	assert.Equal(t, 3, res.LoginStreak)
	require.Len(t, res.NewAchievements, 1)
	assert.Equal(t, achievement.Streak3, res.NewAchievements[0].ID)

	res, err = f.login.Handle(ctx, RecordLoginCommand{UserID: id, Date: timeutil.Date(2026, 3, 3).Add(5 * time.Hour)})
	require.NoError(t, err)
	assert.False(t, res.StreakUpdated)
	assert.Equal(t, 3, res.LoginStreak)

	_, err = f.login.Handle(ctx, RecordLoginCommand{UserID: id, Date: timeutil.Date(2026, 2, 27)})
	assert.True(t, shared.IsTemporalInconsistency(err))

	res, err = f.login.Handle(ctx, RecordLoginCommand{UserID: id, Date: timeutil.Date(2026, 3, 9)})
	require.NoError(t, err)
	assert.True(t, res.StreakReset)
	assert.Equal(t, 1, res.LoginStreak)
	assert.Equal(t, 3, res.BestStreak)

	assert.Len(t, f.pub.ofType(shared.EventStreakUpdated), 4)
}

func TestConcurrentWritesAreSerialised(t *testing.T) {
	f := newFixture(t)
	id := f.newUser(t, "max")
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.activity.HandleChatTurn(ctx, RecordChatTurnCommand{UserID: id})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	res, err := f.activity.HandleChatTurn(ctx, RecordChatTurnCommand{UserID: id})
	require.NoError(t, err)
	assert.Equal(t, 41, res.TotalXP)
}

func TestSeedCatalog_Idempotent(t *testing.T) {
	h := NewSeedCatalogHandler(Deps{Store: memory.New()})

	res, err := h.Handle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 15, res.Defined)
	assert.Equal(t, 15, res.Inserted)

	res, err = h.Handle(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Inserted)
}

func TestUpdateProfile(t *testing.T) {
	f := newFixture(t)
	id := f.newUser(t, "ravi")
	ctx := context.Background()

	name, age, parent := "Ravi K", 11, "mum@example.com"
	p, err := f.profile.Handle(ctx, UpdateProfileCommand{UserID: id, DisplayName: &name, Age: &age, ParentEmail: &parent})
	require.NoError(t, err)
	assert.Equal(t, "Ravi K", p.DisplayName)
	assert.Equal(t, 11, p.Age)
	assert.Equal(t, "mum@example.com", p.ParentEmail)
	assert.Equal(t, "ravi@example.com", p.Email)
	assert.False(t, p.HasPassword)

	// One bad field rejects the whole update.
	badAge := 40
	other := "Someone Else"
	_, err = f.profile.Handle(ctx, UpdateProfileCommand{UserID: id, DisplayName: &other, Age: &badAge})
	assert.ErrorIs(t, err, user.ErrInvalidAge)

	none := ""
	p, err = f.profile.Handle(ctx, UpdateProfileCommand{UserID: id, ParentEmail: &none})
	require.NoError(t, err)
	assert.Equal(t, "Ravi K", p.DisplayName)
	assert.Empty(t, p.ParentEmail)

	_, err = f.profile.Handle(ctx, UpdateProfileCommand{UserID: "missing", DisplayName: &name})
	assert.True(t, shared.IsNotFound(err))
}

func TestUpdateProfile_Password(t *testing.T) {
	f := newFixture(t)
	id := f.newUser(t, "ola")
	ctx := context.Background()

	p, err := f.profile.Handle(ctx, UpdateProfileCommand{UserID: id, NewPassword: "first secret"})
	require.NoError(t, err)
	assert.True(t, p.HasPassword)

	_, err = f.profile.Handle(ctx, UpdateProfileCommand{UserID: id, NewPassword: "second secret"})
	assert.ErrorIs(t, err, user.ErrWrongPassword)

	_, err = f.profile.Handle(ctx, UpdateProfileCommand{UserID: id, CurrentPassword: "first secret", NewPassword: "tiny"})
	assert.ErrorIs(t, err, user.ErrWeakPassword)

	_, err = f.profile.Handle(ctx, UpdateProfileCommand{UserID: id, CurrentPassword: "first secret", NewPassword: "second secret"})
	require.NoError(t, err)
}
