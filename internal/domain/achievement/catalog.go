// Package achievement holds the achievement catalog, the pure unlock evaluator
// and the grant ledger that awards each achievement at most once per user.
package achievement

import (
	"context"
	"fmt"
	"sort"

	"github.com/youlearn/youlearn-progress/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG
// ══════════════════════════════════════════════════════════════════════════════

// Category groups achievements for display.
type Category string

const (
	CategoryQuiz         Category = "quiz"
	CategoryLearningTime Category = "learning_time"
	CategoryStreak       Category = "streak"
	CategoryLevel        Category = "level"
	CategoryTopic        Category = "topic"
)

// Metric is the aggregate a definition's threshold is compared against.
type Metric string

const (
	MetricQuizAttempts    Metric = "quiz_attempts"
	MetricPerfectScores   Metric = "perfect_scores"
	MetricLearningMinutes Metric = "learning_minutes"
	MetricLoginStreak     Metric = "login_streak"
	MetricLevel           Metric = "level"
	MetricDistinctTopics  Metric = "distinct_topics"
)

// Definition describes one unlockable achievement.
type Definition struct {
	ID          string
	Name        string
	Description string
	Emoji       string
	Category    Category
	Metric      Metric
	Threshold   int
	Points      int
}

// Canonical achievement ids referenced outside the catalog.
const (
	QuizNovice         = "quiz_novice"
	QuizEnthusiast     = "quiz_enthusiast"
	QuizMaster         = "quiz_master"
	SharpShooter       = "sharp_shooter"
	Perfectionist      = "perfectionist"
	LearningExplorer   = "learning_explorer"
	LearningEnthusiast = "learning_enthusiast"
	LearningMaster     = "learning_master"
	Streak3            = "streak_3"
	Streak7            = "streak_7"
	Streak30           = "streak_30"
	Level5             = "level_5"
	Level10            = "level_10"
	TopicExplorer      = "topic_explorer"
	TopicAdventurer    = "topic_adventurer"
)

// DefaultDefinitions returns the canonical achievement set.
func DefaultDefinitions() []Definition {
	return []Definition{
		{QuizNovice, "Quiz Beginner", "Complete 5 quizzes", "📝", CategoryQuiz, MetricQuizAttempts, 5, 50},
		{QuizEnthusiast, "Quiz Enthusiast", "Complete 20 quizzes", "🧠", CategoryQuiz, MetricQuizAttempts, 20, 100},
		{QuizMaster, "Quiz Master", "Complete 50 quizzes", "🏆", CategoryQuiz, MetricQuizAttempts, 50, 200},
		{SharpShooter, "Sharp Shooter", "Get a perfect score 3 times", "🎯", CategoryQuiz, MetricPerfectScores, 3, 75},
		{Perfectionist, "Perfectionist", "Get a perfect score 10 times", "💯", CategoryQuiz, MetricPerfectScores, 10, 150},
		{LearningExplorer, "Learning Explorer", "Spend 1 hour learning", "🔭", CategoryLearningTime, MetricLearningMinutes, 60, 50},
		{LearningEnthusiast, "Learning Enthusiast", "Spend 5 hours learning", "📚", CategoryLearningTime, MetricLearningMinutes, 300, 100},
		{LearningMaster, "Learning Master", "Spend 10 hours learning", "🎓", CategoryLearningTime, MetricLearningMinutes, 600, 200},
		{Streak3, "Warming Up", "Log in 3 days in a row", "🔥", CategoryStreak, MetricLoginStreak, 3, 30},
		{Streak7, "Week on Fire", "Log in 7 days in a row", "🌟", CategoryStreak, MetricLoginStreak, 7, 70},
		{Streak30, "Unstoppable", "Log in 30 days in a row", "💪", CategoryStreak, MetricLoginStreak, 30, 300},
		{Level5, "Rising Star", "Reach level 5", "⭐", CategoryLevel, MetricLevel, 5, 50},
		{Level10, "Superstar", "Reach level 10", "🚀", CategoryLevel, MetricLevel, 10, 100},
		{TopicExplorer, "Curious Mind", "Study 3 different topics", "🧭", CategoryTopic, MetricDistinctTopics, 3, 30},
		{TopicAdventurer, "Knowledge Adventurer", "Study 10 different topics", "🗺️", CategoryTopic, MetricDistinctTopics, 10, 100},
	}
}

// Catalog is an immutable, id-ordered registry of definitions.
type Catalog struct {
	defs  []Definition
	index map[string]int
}

// NewCatalog validates defs and builds a catalog.
func NewCatalog(defs []Definition) (*Catalog, error) {
	c := &Catalog{
		defs:  make([]Definition, 0, len(defs)),
		index: make(map[string]int, len(defs)),
	}
	for _, d := range defs {
		if d.ID == "" {
			return nil, shared.Validationf("achievement", "NewCatalog", "definition id is required")
		}
		if _, dup := c.index[d.ID]; dup {
			return nil, shared.WrapError("achievement", "NewCatalog", shared.ErrAlreadyExists, "duplicate achievement id", fmt.Errorf("%s", d.ID))
		}
		if d.Points < 0 || d.Threshold < 0 {
			return nil, shared.Validationf("achievement", "NewCatalog", "%s: points and threshold must be non-negative", d.ID)
		}
		c.defs = append(c.defs, d)
	}
	sort.SliceStable(c.defs, func(i, j int) bool { return c.defs[i].ID < c.defs[j].ID })
	for i, d := range c.defs {
		c.index[d.ID] = i
	}
	return c, nil
}

// DefaultCatalog returns the canonical catalog.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(DefaultDefinitions())
	if err != nil {
		panic(err)
	}
	return c
}

// Get looks up a definition by id.
func (c *Catalog) Get(id string) (Definition, bool) {
	i, ok := c.index[id]
	if !ok {
		return Definition{}, false
	}
	return c.defs[i], true
}

// All returns a copy of all definitions ordered by id.
func (c *Catalog) All() []Definition {
	out := make([]Definition, len(c.defs))
	copy(out, c.defs)
	return out
}

// Len returns the number of definitions.
func (c *Catalog) Len() int { return len(c.defs) }

// CatalogRepository persists catalog definitions so grants can reference them.
type CatalogRepository interface {
	// Seed inserts definitions whose id is not yet stored and returns how many were inserted.
	Seed(ctx context.Context, defs []Definition) (int, error)

	// List returns all stored definitions.
	List(ctx context.Context) ([]Definition, error)
}
