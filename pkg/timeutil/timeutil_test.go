package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartOfDay(t *testing.T) {
	almaty := time.FixedZone("ALMT", 5*60*60)
	in := time.Date(2026, 1, 2, 3, 30, 0, 0, almaty) // 2026-01-01 22:30 UTC

	assert.Equal(t, Date(2026, 1, 1), StartOfDay(in))
	assert.True(t, IsSameDay(in, Date(2026, 1, 1).Add(23*time.Hour)))
}

func TestDaysBetween(t *testing.T) {
	tests := []struct {
		name   string
		t1, t2 time.Time
		want   int
	}{
		{"same day", Date(2026, 3, 1).Add(time.Hour), Date(2026, 3, 1).Add(20 * time.Hour), 0},
		{"next day", Date(2026, 3, 1).Add(23 * time.Hour), Date(2026, 3, 2), 1},
		{"across month", Date(2026, 2, 27), Date(2026, 3, 2), 3},
		{"backwards", Date(2026, 3, 5), Date(2026, 3, 1), -4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DaysBetween(tt.t1, tt.t2))
		})
	}
}

func TestParseDateAndKey(t *testing.T) {
	d, err := ParseDate("2026-07-14")
	require.NoError(t, err)
	assert.Equal(t, Date(2026, 7, 14), d)
	assert.Equal(t, "2026-07-14", DateKey(d))

	_, err = ParseDate("14/07/2026")
	assert.Error(t, err)
}

func TestLastNDays(t *testing.T) {
	days := LastNDays(time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC), 3)
	assert.Equal(t, []time.Time{Date(2026, 2, 28), Date(2026, 3, 1), Date(2026, 3, 2)}, days)
	assert.Nil(t, LastNDays(time.Now(), 0))
}

func TestFixedClock(t *testing.T) {
	at := Date(2030, 1, 1)
	var c Clock = FixedClock{T: at}
	assert.Equal(t, at, c.Now())
	assert.Equal(t, time.UTC, SystemClock{}.Now().Location())
}
