package achievement

import (
	"context"
	"time"

	"github.com/youlearn/youlearn-progress/internal/domain/progression"
	"github.com/youlearn/youlearn-progress/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GRANT LEDGER
// ══════════════════════════════════════════════════════════════════════════════

// Grant records that a user unlocked an achievement. Immutable.
type Grant struct {
	UserID        string
	AchievementID string
	EarnedAt      time.Time
	Points        int
}

// Outcome is the result of a grant attempt.
type Outcome int

const (
	Granted Outcome = iota + 1
	AlreadyGranted
)

// String returns the string representation of Outcome.
func (o Outcome) String() string {
	switch o {
	case Granted:
		return "granted"
	case AlreadyGranted:
		return "already_granted"
	default:
		return "unknown"
	}
}

// GrantRepository persists grants. The (user, achievement) pair is unique.
type GrantRepository interface {
	// Insert stores g unless the pair already exists. It reports whether a row was written.
	Insert(ctx context.Context, g Grant) (bool, error)

	// ListByUser returns the user's grants, newest first.
	ListByUser(ctx context.Context, userID string) ([]Grant, error)
}

// GrantResult describes a single grant call.
type GrantResult struct {
	Outcome   Outcome
	Grant     Grant
	NewXP     int
	LeveledUp bool
}

// Ledger awards achievements at most once per user.
type Ledger struct {
	catalog *Catalog
	grants  GrantRepository
}

// NewLedger creates a ledger over the given catalog and repository.
func NewLedger(catalog *Catalog, grants GrantRepository) *Ledger {
	return &Ledger{catalog: catalog, grants: grants}
}

// Grant records the achievement for state's user and, on a fresh grant, adds
// its points through state.AwardXP. It never re-evaluates achievements, so a
// level reached through bonus points is picked up on the next external event.
// The caller persists state within the same transaction as the grant row.
func (l *Ledger) Grant(ctx context.Context, state *progression.State, achievementID string, now time.Time) (GrantResult, error) {
	def, ok := l.catalog.Get(achievementID)
	if !ok {
		return GrantResult{}, shared.NotFoundf("achievement", "Grant", "achievement %q not found", achievementID)
	}

	g := Grant{
		UserID:        state.UserID(),
		AchievementID: def.ID,
		EarnedAt:      now.UTC(),
		Points:        def.Points,
	}

	inserted, err := l.grants.Insert(ctx, g)
	if err != nil {
		return GrantResult{}, shared.WrapError("achievement", "Grant", shared.ErrUnavailable, "failed to store grant", err)
	}
	if !inserted {
		return GrantResult{Outcome: AlreadyGranted, Grant: g, NewXP: state.CumulativeXP()}, nil
	}

	newXP, leveledUp, err := state.AwardXP(def.Points, now)
	if err != nil {
		return GrantResult{}, err
	}
	return GrantResult{Outcome: Granted, Grant: g, NewXP: newXP, LeveledUp: leveledUp}, nil
}

// GrantedSet turns a grant list into a lookup set.
func GrantedSet(grants []Grant) map[string]bool {
	set := make(map[string]bool, len(grants))
	for _, g := range grants {
		set[g.AchievementID] = true
	}
	return set
}
