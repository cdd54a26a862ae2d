package progression

import (
	"context"
	"time"

	"github.com/youlearn/youlearn-progress/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// USER PROGRESSION STATE
// ══════════════════════════════════════════════════════════════════════════════

// State is the per-user progression record. It is mutated only through
// AwardXP and RecordLogin.
type State struct {
	userID        string
	cumulativeXP  shared.XP
	loginStreak   int
	bestStreak    int
	lastLoginDate *time.Time
	updatedAt     time.Time
}

// NewState creates a zeroed progression for a freshly registered user.
func NewState(userID string, now time.Time) (*State, error) {
	if userID == "" {
		return nil, shared.ErrEmptyUserID
	}
	return &State{userID: userID, updatedAt: now.UTC()}, nil
}

// RestoreState rebuilds a State from storage.
func RestoreState(userID string, cumulativeXP, loginStreak, bestStreak int, lastLoginDate *time.Time, updatedAt time.Time) (*State, error) {
	if userID == "" {
		return nil, shared.ErrEmptyUserID
	}
	if cumulativeXP < 0 || loginStreak < 0 || bestStreak < 0 {
		return nil, shared.NewDomainError("progression", "Restore", shared.ErrNegativeValue, "stored progression has negative values")
	}
	s := &State{
		userID:       userID,
		cumulativeXP: shared.XP(cumulativeXP),
		loginStreak:  loginStreak,
		bestStreak:   bestStreak,
		updatedAt:    updatedAt,
	}
	if lastLoginDate != nil {
		d := *lastLoginDate
		s.lastLoginDate = &d
	}
	return s, nil
}

func (s *State) UserID() string       { return s.userID }
func (s *State) CumulativeXP() int    { return s.cumulativeXP.Int() }
func (s *State) Level() int           { return s.cumulativeXP.Level().Int() }
func (s *State) LoginStreak() int     { return s.loginStreak }
func (s *State) BestStreak() int      { return s.bestStreak }
func (s *State) UpdatedAt() time.Time { return s.updatedAt }

// LastLoginDate returns a copy of the last login day, or nil.
func (s *State) LastLoginDate() *time.Time {
	if s.lastLoginDate == nil {
		return nil
	}
	d := *s.lastLoginDate
	return &d
}

// ProgressWithinLevel returns the percentage through the current level.
func (s *State) ProgressWithinLevel() float64 {
	return s.cumulativeXP.ProgressWithinLevel()
}

// Clone returns an independent copy.
func (s *State) Clone() *State {
	c := *s
	c.lastLoginDate = s.LastLoginDate()
	return &c
}

// AwardXP adds a non-negative amount and reports whether the level went up.
func (s *State) AwardXP(amount int, now time.Time) (newCumulativeXP int, leveledUp bool, err error) {
	if amount < 0 {
		return s.cumulativeXP.Int(), false, shared.ErrNegativeXP
	}
	before := s.cumulativeXP.Level()
	s.cumulativeXP = s.cumulativeXP.Add(amount)
	s.updatedAt = now.UTC()
	return s.cumulativeXP.Int(), s.cumulativeXP.Level() > before, nil
}

// Repository persists progression records. Implemented by the infrastructure layer.
type Repository interface {
	// Create stores a new progression; ErrAlreadyExists if one is present.
	Create(ctx context.Context, s *State) error

	// GetForUpdate loads the progression and, where supported, locks it
	// until the surrounding transaction ends. ErrNotFound if absent.
	GetForUpdate(ctx context.Context, userID string) (*State, error)

	// Get loads the progression without locking.
	Get(ctx context.Context, userID string) (*State, error)

	// Save overwrites the progression.
	Save(ctx context.Context, s *State) error
}
