// Package progression owns a user's XP, level and login streak.
// Level is always derived from cumulative XP via shared.XP; nothing stores it.
package progression

import (
	"math"

	"github.com/youlearn/youlearn-progress/internal/domain/shared"
)

// XP award rules.
const (
	// QuizMaxXP is awarded for a perfect quiz; partial scores scale linearly.
	QuizMaxXP = 10

	// SessionXPCapMinutes caps learning-session XP at one point per minute up to this many.
	SessionXPCapMinutes = 20

	// ChatTurnXP is awarded for every chat exchange.
	ChatTurnXP = 1

	// LoginXP is awarded for a login. Logins drive streaks, not XP.
	LoginXP = 0
)

// LevelOf maps cumulative XP to a level.
func LevelOf(cumulativeXP int) int {
	return shared.XP(cumulativeXP).Level().Int()
}

// ProgressWithinLevel returns the percentage through the current level, in [0,100).
func ProgressWithinLevel(cumulativeXP int) float64 {
	return shared.XP(cumulativeXP).ProgressWithinLevel()
}

// XPToNextLevel returns the XP still needed for the next level.
func XPToNextLevel(cumulativeXP int) int {
	return shared.XP(cumulativeXP).ToNextLevel()
}

// QuizXP computes round(QuizMaxXP * score / maxScore), rounding half away from zero.
func QuizXP(score, maxScore int) (int, error) {
	if maxScore <= 0 {
		return 0, shared.ErrInvalidMaxScore
	}
	if score < 0 || score > maxScore {
		return 0, shared.ErrScoreOutOfRange
	}
	return int(math.Round(float64(QuizMaxXP) * float64(score) / float64(maxScore))), nil
}

// SessionXP computes min(duration in whole minutes, SessionXPCapMinutes).
func SessionXP(durationSeconds int64) int {
	if durationSeconds <= 0 {
		return 0
	}
	minutes := durationSeconds / 60
	if minutes > SessionXPCapMinutes {
		return SessionXPCapMinutes
	}
	return int(minutes)
}
