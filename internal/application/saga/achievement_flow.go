// Package saga contains multi-step business processes that orchestrate
// several domain operations inside one progression transaction.
package saga

import (
	"context"
	"fmt"
	"time"

	"github.com/youlearn/youlearn-progress/internal/domain/achievement"
	"github.com/youlearn/youlearn-progress/internal/domain/progression"
	"github.com/youlearn/youlearn-progress/internal/domain/shared"
	"github.com/youlearn/youlearn-progress/internal/domain/store"
	"github.com/youlearn/youlearn-progress/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT FLOW
// Flow: Load History → Load Grants → Compute Aggregates → Evaluate → Grant
// Runs inside the caller's transaction and per-user lock. Granting adds bonus
// XP but never re-enters evaluation.
// ══════════════════════════════════════════════════════════════════════════════

// AchievementFlowStep names a step of the flow, for error reporting.
type AchievementFlowStep string

const (
	StepLoadHistory       AchievementFlowStep = "load_history"
	StepLoadGrants        AchievementFlowStep = "load_grants"
	StepEvaluate          AchievementFlowStep = "evaluate"
	StepGrantAchievements AchievementFlowStep = "grant_achievements"
)

// AchievementAward describes one freshly unlocked achievement.
type AchievementAward struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Emoji       string    `json:"emoji"`
	Category    string    `json:"category"`
	Points      int       `json:"points"`
	EarnedAt    time.Time `json:"earned_at"`
}

// AchievementFlowResult is the outcome of one run.
type AchievementFlowResult struct {
	Aggregates      achievement.Aggregates
	NewAchievements []AchievementAward
	TotalXPBonus    int
	Events          []shared.Event
}

// HasNewAchievements returns true if any achievements were unlocked.
func (r *AchievementFlowResult) HasNewAchievements() bool {
	return len(r.NewAchievements) > 0
}

// AchievementFlow evaluates and grants achievements for one user.
type AchievementFlow struct {
	catalog *achievement.Catalog
	log     *logger.Logger
}

// NewAchievementFlow creates a flow over the given catalog.
func NewAchievementFlow(catalog *achievement.Catalog, log *logger.Logger) *AchievementFlow {
	if log == nil {
		log = logger.Nop()
	}
	return &AchievementFlow{
		catalog: catalog,
		log:     log.With(logger.Component("achievement_flow")),
	}
}

// Run executes the flow for state's user within tx. state is mutated with any
// bonus XP; the caller saves it.
func (f *AchievementFlow) Run(ctx context.Context, tx store.Tx, state *progression.State, now time.Time) (*AchievementFlowResult, error) {
	userID := state.UserID()
	result := &AchievementFlowResult{NewAchievements: []AchievementAward{}}

	// Step 1: history
	history, err := tx.Activities().ListByUser(ctx, userID)
	if err != nil {
		return nil, f.wrap(StepLoadHistory, err)
	}

	// Step 2: existing grants
	grants, err := tx.Grants().ListByUser(ctx, userID)
	if err != nil {
		return nil, f.wrap(StepLoadGrants, err)
	}

	// Step 3: evaluate against recomputed aggregates
	result.Aggregates = achievement.ComputeAggregates(history, state)
	candidates := achievement.Evaluate(result.Aggregates, f.catalog, achievement.GrantedSet(grants))
	if len(candidates) == 0 {
		return result, nil
	}

	// Step 4: grant
	ledger := achievement.NewLedger(f.catalog, tx.Grants())
	for _, id := range candidates {
		res, err := ledger.Grant(ctx, state, id, now)
		if err != nil {
			if shared.IsNotFound(err) {
				f.log.Warn("skipping unknown achievement", logger.UserID(userID), logger.AchievementID(id), logger.Err(err))
				continue
			}
			return nil, f.wrap(StepGrantAchievements, err)
		}
		if res.Outcome == achievement.AlreadyGranted {
			continue
		}

		def, _ := f.catalog.Get(id)
		result.NewAchievements = append(result.NewAchievements, AchievementAward{
			ID:          def.ID,
			Name:        def.Name,
			Description: def.Description,
			Emoji:       def.Emoji,
			Category:    string(def.Category),
			Points:      def.Points,
			EarnedAt:    res.Grant.EarnedAt,
		})
		result.TotalXPBonus += def.Points
		result.Events = append(result.Events,
			shared.NewAchievementUnlockedEvent(userID, def.ID, def.Name, def.Emoji, def.Points, now),
			shared.NewXPGainedEvent(userID, def.Points, res.NewXP, "achievement:"+def.ID, now),
		)

		f.log.Info("achievement unlocked",
			logger.UserID(userID),
			logger.AchievementID(def.ID),
			logger.XPAmount(def.Points),
		)
	}

	return result, nil
}

func (f *AchievementFlow) wrap(step AchievementFlowStep, err error) error {
	return fmt.Errorf("achievement_flow: step %s: %w", step, err)
}
