package shared

import "math"

// ══════════════════════════════════════════════════════════════════════════════
// XP Value Object (Experience Points)
// ══════════════════════════════════════════════════════════════════════════════

// XP represents cumulative experience points.
type XP int

// XPPerLevel is the width of every level. Level is always derived from XP
// through this constant and nothing else.
const XPPerLevel = 100

// Int returns the raw integer value.
func (x XP) Int() int {
	return int(x)
}

// Add returns x plus amount. Amount must be non-negative; callers validate.
func (x XP) Add(amount int) XP {
	return XP(int(x) + amount)
}

// Level maps cumulative XP to a level: 1 + floor(xp / XPPerLevel).
func (x XP) Level() Level {
	if x < 0 {
		return 1
	}
	return Level(1 + int(x)/XPPerLevel)
}

// ProgressWithinLevel returns the percentage progress through the current level, in [0,100).
func (x XP) ProgressWithinLevel() float64 {
	if x < 0 {
		return 0
	}
	within := int(x) % XPPerLevel
	return math.Round(float64(within)*10000/XPPerLevel) / 100
}

// ToNextLevel returns how much XP is missing to reach the next level.
func (x XP) ToNextLevel() int {
	return x.Level().RequiredXP() + XPPerLevel - int(x)
}

// ══════════════════════════════════════════════════════════════════════════════
// Level Value Object
// ══════════════════════════════════════════════════════════════════════════════

// Level represents a progression tier. Always >= 1.
type Level int

// Int returns the raw integer value.
func (l Level) Int() int {
	return int(l)
}

// RequiredXP returns the cumulative XP at which this level starts.
func (l Level) RequiredXP() int {
	if l <= 1 {
		return 0
	}
	return (int(l) - 1) * XPPerLevel
}
