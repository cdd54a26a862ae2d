package progression

import (
	"sort"
	"time"

	"github.com/youlearn/youlearn-progress/internal/domain/shared"
	"github.com/youlearn/youlearn-progress/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// LOGIN STREAK
// ══════════════════════════════════════════════════════════════════════════════

// StreakTransition describes what a login did to the streak.
type StreakTransition struct {
	Previous int
	Current  int
	Best     int

	// Changed is false for a repeated login on the same day.
	Changed bool

	// Reset is true when the streak restarted at 1 after a gap.
	Reset bool
}

// RecordLogin advances the streak state machine for a login on today:
//
//	same day       -> no-op
//	next day       -> streak + 1
//	gap or first   -> streak = 1
//	earlier day    -> TemporalInconsistency, state unchanged
func (s *State) RecordLogin(today time.Time) (StreakTransition, error) {
	day := timeutil.StartOfDay(today)
	t := StreakTransition{Previous: s.loginStreak, Current: s.loginStreak, Best: s.bestStreak}

	if s.lastLoginDate == nil {
		s.loginStreak = 1
	} else {
		switch diff := timeutil.DaysBetween(*s.lastLoginDate, day); {
		case diff < 0:
			return t, shared.ErrLoginBeforeLastSeen
		case diff == 0:
			return t, nil
		case diff == 1:
			s.loginStreak++
		default:
			s.loginStreak = 1
			t.Reset = t.Previous > 0
		}
	}

	if s.loginStreak > s.bestStreak {
		s.bestStreak = s.loginStreak
	}
	s.lastLoginDate = &day

	t.Current = s.loginStreak
	t.Best = s.bestStreak
	t.Changed = true
	return t, nil
}

// MaxStreak replays a set of login days and returns the longest run of
// consecutive days. Input may be unordered and contain duplicates.
func MaxStreak(days []time.Time) int {
	replay := &State{}
	best := 0
	for _, d := range sortedDistinctDays(days) {
		// Sorted input never goes backwards.
		_, _ = replay.RecordLogin(d)
		if replay.bestStreak > best {
			best = replay.bestStreak
		}
	}
	return best
}

func sortedDistinctDays(days []time.Time) []time.Time {
	seen := make(map[string]time.Time, len(days))
	for _, d := range days {
		seen[timeutil.DateKey(d)] = timeutil.StartOfDay(d)
	}
	out := make([]time.Time, 0, len(seen))
	for _, d := range seen {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
