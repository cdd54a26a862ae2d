package achievement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/youlearn/youlearn-progress/internal/domain/activity"
	"github.com/youlearn/youlearn-progress/internal/domain/progression"
	"github.com/youlearn/youlearn-progress/internal/domain/shared"
	"github.com/youlearn/youlearn-progress/pkg/timeutil"
)

var now = time.Date(2026, 2, 14, 15, 0, 0, 0, time.UTC)

type fakeGrants struct {
	rows map[string]Grant
	err  error
}

func (f *fakeGrants) Insert(_ context.Context, g Grant) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.rows == nil {
		f.rows = make(map[string]Grant)
	}
	key := g.UserID + "/" + g.AchievementID
	if _, ok := f.rows[key]; ok {
		return false, nil
	}
	f.rows[key] = g
	return true, nil
}

func (f *fakeGrants) ListByUser(_ context.Context, userID string) ([]Grant, error) {
	var out []Grant
	for _, g := range f.rows {
		if g.UserID == userID {
			out = append(out, g)
		}
	}
	return out, nil
}

func quiz(t *testing.T, topic string, score, max int) *activity.Event {
	t.Helper()
	e, err := activity.NewQuizAttempt("u1", topic, score, max, now)
	require.NoError(t, err)
	return e
}

func TestDefaultCatalog(t *testing.T) {
	c := DefaultCatalog()
	assert.Equal(t, 15, c.Len())

	all := c.All()
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].ID, all[i].ID)
	}
	def, ok := c.Get(QuizNovice)
	require.True(t, ok)
	assert.Equal(t, 5, def.Threshold)
	assert.Equal(t, 50, def.Points)

	all[0].Points = 9999
	again, _ := c.Get(all[0].ID)
	assert.NotEqual(t, 9999, again.Points)
}

func TestNewCatalog_Rejects(t *testing.T) {
	_, err := NewCatalog([]Definition{{ID: ""}})
	assert.True(t, shared.IsValidation(err))

	_, err = NewCatalog([]Definition{{ID: "a"}, {ID: "a"}})
	assert.True(t, shared.IsAlreadyExists(err))

	_, err = NewCatalog([]Definition{{ID: "a", Points: -1}})
	assert.True(t, shared.IsValidation(err))
}

func TestComputeAggregates(t *testing.T) {
	history := activity.History{
		quiz(t, "planets", 5, 5),
		quiz(t, "planets", 3, 5),
		quiz(t, "animals", 4, 4),
	}
	session, err := activity.NewLearningSession("u1", "Weather", 0, now, now.Add(61*time.Minute))
	require.NoError(t, err)
	history = append(history, session)
	for _, d := range []int{1, 2, 3, 5} {
		login, err := activity.NewLogin("u1", timeutil.Date(2026, 2, d))
		require.NoError(t, err)
		history = append(history, login)
	}

	state, err := progression.NewState("u1", now)
	require.NoError(t, err)
	_, _, err = state.AwardXP(420, now)
	require.NoError(t, err)

	a := ComputeAggregates(history, state)
	assert.Equal(t, Aggregates{
		QuizAttempts:    3,
		PerfectScores:   2,
		MaxLoginStreak:  3,
		LearningMinutes: 61,
		DistinctTopics:  3,
		Level:           5,
	}, a)

	got := Evaluate(a, DefaultCatalog(), map[string]bool{TopicExplorer: true})
	assert.Equal(t, []string{LearningExplorer, Level5, Streak3}, got)
}

func TestComputeAggregates_NilState(t *testing.T) {
	a := ComputeAggregates(nil, nil)
	assert.Equal(t, 1, a.Level)
	assert.Empty(t, Evaluate(a, DefaultCatalog(), nil))
}

func TestEvaluate_ThresholdIsInclusive(t *testing.T) {
	c := DefaultCatalog()
	assert.Empty(t, Evaluate(Aggregates{QuizAttempts: 4, Level: 1}, c, nil))
	assert.Equal(t, []string{QuizNovice}, Evaluate(Aggregates{QuizAttempts: 5, Level: 1}, c, nil))
}

func TestLedger_GrantOnce(t *testing.T) {
	repo := &fakeGrants{}
	ledger := NewLedger(DefaultCatalog(), repo)
	state, err := progression.NewState("u1", now)
	require.NoError(t, err)
	_, _, err = state.AwardXP(60, now)
	require.NoError(t, err)

	res, err := ledger.Grant(context.Background(), state, QuizNovice, now)
	require.NoError(t, err)
	assert.Equal(t, Granted, res.Outcome)
	assert.Equal(t, 110, res.NewXP)
	assert.True(t, res.LeveledUp)
	assert.Equal(t, 50, res.Grant.Points)

	res, err = ledger.Grant(context.Background(), state, QuizNovice, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, AlreadyGranted, res.Outcome)
	assert.Equal(t, 110, state.CumulativeXP())
	assert.Equal(t, "already_granted", res.Outcome.String())

	grants, err := repo.ListByUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, GrantedSet(grants)[QuizNovice])
}

func TestLedger_Errors(t *testing.T) {
	state, err := progression.NewState("u1", now)
	require.NoError(t, err)

	_, err = NewLedger(DefaultCatalog(), &fakeGrants{}).Grant(context.Background(), state, "nope", now)
	assert.True(t, shared.IsNotFound(err))

	failing := &fakeGrants{err: errors.New("disk full")}
	_, err = NewLedger(DefaultCatalog(), failing).Grant(context.Background(), state, QuizNovice, now)
	assert.ErrorIs(t, err, shared.ErrUnavailable)
	assert.Equal(t, 0, state.CumulativeXP())
}
