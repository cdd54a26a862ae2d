package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/youlearn/youlearn-progress/internal/domain/achievement"
	"github.com/youlearn/youlearn-progress/internal/domain/activity"
	"github.com/youlearn/youlearn-progress/internal/domain/progression"
	"github.com/youlearn/youlearn-progress/internal/domain/shared"
	"github.com/youlearn/youlearn-progress/internal/domain/store"
	"github.com/youlearn/youlearn-progress/internal/domain/user"
	"github.com/youlearn/youlearn-progress/pkg/timeutil"
)

var now = time.Date(2026, 8, 3, 11, 45, 0, 0, time.UTC)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func createUser(t *testing.T, st *Store, username string) *user.User {
	t.Helper()
	u, err := user.NewUser(user.NewUserParams{Username: username, Email: username + "@example.com", Age: 9}, now)
	require.NoError(t, err)
	state, err := progression.NewState(u.ID(), now)
	require.NoError(t, err)
	require.NoError(t, st.Atomic(context.Background(), func(ctx context.Context, tx store.Tx) error {
		if err := tx.Users().Create(ctx, u); err != nil {
			return err
		}
		return tx.Progress().Create(ctx, state)
	}))
	return u
}

func TestStore_UserRoundTrip(t *testing.T) {
	st := openTestStore(t)
	u := createUser(t, st, "robin")

	err := st.View(context.Background(), func(ctx context.Context, tx store.Tx) error {
		got, err := tx.Users().GetByID(ctx, u.ID())
		require.NoError(t, err)
		assert.Equal(t, "robin", got.Username())
		assert.Equal(t, "robin@example.com", got.Email())
		assert.Equal(t, 9, got.Age())
		assert.True(t, now.Equal(got.CreatedAt()))

		_, err = tx.Users().GetByID(ctx, "missing")
		assert.True(t, shared.IsNotFound(err))
		return nil
	})
	require.NoError(t, err)

	dup, err := user.NewUser(user.NewUserParams{Username: "robin", Email: "r2@example.com", Age: 9}, now)
	require.NoError(t, err)
	err = st.Atomic(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.Users().Create(ctx, dup)
	})
	assert.True(t, shared.IsAlreadyExists(err))
}

func TestStore_ProgressionRoundTrip(t *testing.T) {
	st := openTestStore(t)
	u := createUser(t, st, "sky")
	ctx := context.Background()

	require.NoError(t, st.Atomic(ctx, func(ctx context.Context, tx store.Tx) error {
		state, err := tx.Progress().GetForUpdate(ctx, u.ID())
		if err != nil {
			return err
		}
		if _, _, err := state.AwardXP(130, now); err != nil {
			return err
		}
		if _, err := state.RecordLogin(now); err != nil {
			return err
		}
		return tx.Progress().Save(ctx, state)
	}))

	require.NoError(t, st.View(ctx, func(ctx context.Context, tx store.Tx) error {
		state, err := tx.Progress().Get(ctx, u.ID())
		require.NoError(t, err)
		assert.Equal(t, 130, state.CumulativeXP())
		assert.Equal(t, 2, state.Level())
		assert.Equal(t, 1, state.LoginStreak())
		require.NotNil(t, state.LastLoginDate())
		assert.Equal(t, timeutil.StartOfDay(now), *state.LastLoginDate())
		return nil
	}))
}

func TestStore_AtomicRollsBack(t *testing.T) {
	st := openTestStore(t)
	u := createUser(t, st, "jo")
	ctx := context.Background()
	boom := errors.New("boom")

	err := st.Atomic(ctx, func(ctx context.Context, tx store.Tx) error {
		ev, err := activity.NewChatTurn(u.ID(), now)
		require.NoError(t, err)
		require.NoError(t, tx.Activities().Append(ctx, ev))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	require.NoError(t, st.View(ctx, func(ctx context.Context, tx store.Tx) error {
		h, err := tx.Activities().ListByUser(ctx, u.ID())
		require.NoError(t, err)
		assert.Empty(t, h)
		return nil
	}))
}

func TestStore_ActivityRoundTrip(t *testing.T) {
	st := openTestStore(t)
	u := createUser(t, st, "kim")
	ctx := context.Background()

	quiz, err := activity.NewQuizAttempt(u.ID(), "space", 3, 4, now)
	require.NoError(t, err)
	quiz.XPAwarded = 8
	session, err := activity.NewLearningSession(u.ID(), "art", 0, now.Add(-30*time.Minute), now.Add(time.Minute))
	require.NoError(t, err)
	login, err := activity.NewLogin(u.ID(), now)
	require.NoError(t, err)

	require.NoError(t, st.Atomic(ctx, func(ctx context.Context, tx store.Tx) error {
		for _, e := range []*activity.Event{session, login, quiz} {
			if err := tx.Activities().Append(ctx, e); err != nil {
				return err
			}
		}
		return nil
	}))

	require.NoError(t, st.View(ctx, func(ctx context.Context, tx store.Tx) error {
		h, err := tx.Activities().ListByUser(ctx, u.ID())
		require.NoError(t, err)
		require.Len(t, h, 3)
		assert.Equal(t, 1, h.QuizCount())
		assert.Equal(t, int64(31*60), h.LearningSeconds())
		assert.Len(t, h.LoginDays(), 1)

		q := h.OfKind(activity.KindQuizAttempt)[0]
		assert.Equal(t, 3, q.Score)
		assert.Equal(t, 4, q.MaxScore)
		assert.Equal(t, 8, q.XPAwarded)
		assert.True(t, now.Equal(q.OccurredAt))
		return nil
	}))
}

func TestStore_GrantsAndCatalog(t *testing.T) {
	st := openTestStore(t)
	u := createUser(t, st, "pat")
	ctx := context.Background()

	n, err := st.Catalog().Seed(ctx, achievement.DefaultDefinitions())
	require.NoError(t, err)
	assert.Equal(t, 15, n)
	n, err = st.Catalog().Seed(ctx, achievement.DefaultDefinitions())
	require.NoError(t, err)
	assert.Zero(t, n)

	defs, err := st.Catalog().List(ctx)
	require.NoError(t, err)
	assert.Len(t, defs, 15)

	g := achievement.Grant{UserID: u.ID(), AchievementID: achievement.Streak3, EarnedAt: now, Points: 30}
	require.NoError(t, st.Atomic(ctx, func(ctx context.Context, tx store.Tx) error {
		inserted, err := tx.Grants().Insert(ctx, g)
		require.NoError(t, err)
		assert.True(t, inserted)

		inserted, err = tx.Grants().Insert(ctx, g)
		require.NoError(t, err)
		assert.False(t, inserted)

		later := g
		later.AchievementID = achievement.Level5
		later.EarnedAt = now.Add(time.Hour)
		_, err = tx.Grants().Insert(ctx, later)
		return err
	}))

	require.NoError(t, st.View(ctx, func(ctx context.Context, tx store.Tx) error {
		grants, err := tx.Grants().ListByUser(ctx, u.ID())
		require.NoError(t, err)
		require.Len(t, grants, 2)
		assert.Equal(t, achievement.Level5, grants[0].AchievementID)
		return nil
	}))
}

func TestFormatTime_TextOrderIsTimeOrder(t *testing.T) {
	whole := time.Date(2026, 8, 3, 11, 45, 5, 0, time.UTC)
	later := whole.Add(100 * time.Millisecond)

	a, b := formatTime(whole), formatTime(later)
	assert.Len(t, b, len(a))
	assert.Less(t, a, b)

	parsed, err := parseTime(a)
	require.NoError(t, err)
	assert.True(t, whole.Equal(parsed))

	legacy, err := parseTime("2026-08-03T11:45:05.1Z")
	require.NoError(t, err)
	assert.True(t, later.Equal(legacy))
}

func TestStore_GrantsNewestFirstWithinSecond(t *testing.T) {
	st := openTestStore(t)
	u := createUser(t, st, "quinn")
	ctx := context.Background()
	whole := time.Date(2026, 8, 3, 11, 45, 5, 0, time.UTC)

	require.NoError(t, st.Atomic(ctx, func(ctx context.Context, tx store.Tx) error {
		for _, g := range []achievement.Grant{
			{UserID: u.ID(), AchievementID: achievement.QuizNovice, EarnedAt: whole, Points: 50},
			{UserID: u.ID(), AchievementID: achievement.SharpShooter, EarnedAt: whole.Add(100 * time.Millisecond), Points: 75},
		} {
			if _, err := tx.Grants().Insert(ctx, g); err != nil {
				return err
			}
		}
		return nil
	}))

	require.NoError(t, st.View(ctx, func(ctx context.Context, tx store.Tx) error {
		grants, err := tx.Grants().ListByUser(ctx, u.ID())
		require.NoError(t, err)
		require.Len(t, grants, 2)
		assert.Equal(t, achievement.SharpShooter, grants[0].AchievementID)
		assert.Equal(t, achievement.QuizNovice, grants[1].AchievementID)
		return nil
	}))
}

func TestStore_UserUpdate(t *testing.T) {
	st := openTestStore(t)
	u := createUser(t, st, "sky")
	ctx := context.Background()

	require.NoError(t, u.SetDisplayName("Sky Walker"))
	require.NoError(t, u.SetAge(11))
	require.NoError(t, u.SetParentEmail("parent@example.com"))
	require.NoError(t, st.Atomic(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.Users().Update(ctx, u)
	}))

	require.NoError(t, st.View(ctx, func(ctx context.Context, tx store.Tx) error {
		got, err := tx.Users().GetByID(ctx, u.ID())
		require.NoError(t, err)
		assert.Equal(t, "Sky Walker", got.DisplayName())
		assert.Equal(t, 11, got.Age())
		assert.Equal(t, "parent@example.com", got.ParentEmail())
		assert.Equal(t, "sky", got.Username())
		return nil
	}))

	ghost, err := user.NewUser(user.NewUserParams{Username: "ghost", Email: "ghost@example.com", Age: 9}, now)
	require.NoError(t, err)
	err = st.Atomic(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.Users().Update(ctx, ghost)
	})
	assert.True(t, shared.IsNotFound(err))
}
