// FilePath: internal/schedule/schedule_test.go
package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_CompactForm(t *testing.T) {
	s, err := Parse("08:00,16:00 daily")
	require.NoError(t, err)
	assert.Equal(t, 2, s.SlotCount())
	assert.Equal(t, []int{8 * 60, 16 * 60}, s.Slots())
}

func TestParse_CompactFormWithoutKeyword(t *testing.T) {
	s, err := Parse("06:30,12:00,18:30")
	require.NoError(t, err)
	assert.Equal(t, 3, s.SlotCount())
	assert.Equal(t, []int{6*60 + 30, 12 * 60, 18*60 + 30}, s.Slots())
}

func TestParse_CronForm(t *testing.T) {
	s, err := Parse("0 8,16 * * *")
	require.NoError(t, err)
	assert.Equal(t, 2, s.SlotCount())
	assert.Equal(t, []int{8 * 60, 16 * 60}, s.Slots())
}

func TestParse_SortsAndDeduplicates(t *testing.T) {
	s, err := Parse("16:00,08:00,16:00")
	require.NoError(t, err)
	assert.Equal(t, []int{8 * 60, 16 * 60}, s.Slots())
}

func TestParse_Invalid(t *testing.T) {
	for _, expr := range []string{"", "25:00", "08:61", "nonsense", "08;00"} {
		_, err := Parse(expr)
		assert.Error(t, err, "expr %q", expr)
	}
}

func TestNearest_PicksClosestSlot(t *testing.T) {
	s, err := Parse("08:00,16:00 daily")
	require.NoError(t, err)

	at := time.Date(2026, 3, 14, 8, 10, 0, 0, time.UTC)
	idx, dist := s.Nearest(at)
	assert.Equal(t, 1, idx)
	assert.Equal(t, 10*time.Minute, dist)

	at = time.Date(2026, 3, 14, 15, 40, 0, 0, time.UTC)
	idx, dist = s.Nearest(at)
	assert.Equal(t, 2, idx)
	assert.Equal(t, 20*time.Minute, dist)
}

// A wake at 11:00 against 08:00/16:00 maps to the morning slot but lies far
// outside any reasonable tolerance window.
func TestNearest_BetweenSlots(t *testing.T) {
	s, err := Parse("08:00,16:00 daily")
	require.NoError(t, err)

	at := time.Date(2026, 3, 14, 11, 0, 0, 0, time.UTC)
	idx, dist := s.Nearest(at)
	assert.Equal(t, 1, idx)
	assert.Equal(t, 3*time.Hour, dist)
	assert.Greater(t, dist, s.Tolerance(90*time.Minute))
}

func TestNearest_WrapsAroundMidnight(t *testing.T) {
	s, err := Parse("23:30,06:00")
	require.NoError(t, err)

	// 00:15 is 45 minutes past 23:30 across midnight. Slots sort by
	// time-of-day, so 23:30 is the second slot.
	at := time.Date(2026, 3, 14, 0, 15, 0, 0, time.UTC)
	idx, dist := s.Nearest(at)
	assert.Equal(t, 2, idx)
	assert.Equal(t, 45*time.Minute, dist)
}

func TestTolerance_HalfMinGapCapped(t *testing.T) {
	s, err := Parse("08:00,16:00 daily")
	require.NoError(t, err)

	// Min gap is 8h; half of it exceeds the cap.
	assert.Equal(t, 90*time.Minute, s.Tolerance(90*time.Minute))
	assert.Equal(t, 4*time.Hour, s.Tolerance(0))
}

func TestTolerance_DenseScheduleBelowCap(t *testing.T) {
	s, err := Parse("08:00,09:00,10:00")
	require.NoError(t, err)

	// Min gap is 1h, half of it is under the cap.
	assert.Equal(t, 30*time.Minute, s.Tolerance(90*time.Minute))
}

func TestTolerance_SingleSlotUsesCap(t *testing.T) {
	s, err := Parse("12:00")
	require.NoError(t, err)

	assert.Equal(t, 90*time.Minute, s.Tolerance(90*time.Minute))
	assert.Equal(t, 12*time.Hour, s.Tolerance(0))
}

func TestNextWake_SameDay(t *testing.T) {
	s, err := Parse("08:00,16:00 daily")
	require.NoError(t, err)

	after := time.Date(2026, 3, 14, 8, 30, 0, 0, time.UTC)
	next := s.NextWake(after)
	assert.Equal(t, time.Date(2026, 3, 14, 16, 0, 0, 0, time.UTC), next)
}

func TestNextWake_RollsToNextDay(t *testing.T) {
	s, err := Parse("08:00,16:00 daily")
	require.NoError(t, err)

	after := time.Date(2026, 3, 14, 17, 0, 0, 0, time.UTC)
	next := s.NextWake(after)
	assert.Equal(t, time.Date(2026, 3, 15, 8, 0, 0, 0, time.UTC), next)
}

func TestNextWake_ExactSlotIsStrictlyAfter(t *testing.T) {
	s, err := Parse("08:00")
	require.NoError(t, err)

	after := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)
	next := s.NextWake(after)
	assert.Equal(t, time.Date(2026, 3, 15, 8, 0, 0, 0, time.UTC), next)
}

func TestNextWake_KeepsLocation(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	s, err := Parse("08:00,16:00 daily")
	require.NoError(t, err)

	after := time.Date(2026, 3, 14, 12, 0, 0, 0, loc)
	next := s.NextWake(after)
	assert.Equal(t, loc, next.Location())
	assert.Equal(t, 16, next.Hour())
}
