package schedule

import (
	"testing"
	"time"

	"github.com/example/octiv-sniper/internal/domain/booking"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d, hh, mm, ss int) time.Time {
	return time.Date(y, m, d, hh, mm, ss, 0, time.UTC)
}

func TestNextOccurrenceIsMinimalMatch(t *testing.T) {
	t.Parallel()
	c := Calculator{AdvanceDays: 4, Location: time.UTC}
	start := date(2024, time.June, 3, 0, 0, 0) // Monday

	clocks := []string{"00:00", "07:00", "12:30", "23:59"}
	for h := 0; h < 24*8; h += 5 {
		now := start.Add(time.Duration(h)*time.Hour + 17*time.Minute + 3*time.Second)
		for d := time.Sunday; d <= time.Saturday; d++ {
			for _, clock := range clocks {
				got, err := c.NextOccurrence(now, booking.Weekday(d), clock)
				require.NoError(t, err)
				hour, minute, _ := booking.ParseClock(clock)

				assert.True(t, got.After(now), "now=%s day=%s clock=%s got=%s", now, d, clock, got)
				assert.Equal(t, d, got.Weekday())
				assert.Equal(t, hour, got.Hour())
				assert.Equal(t, minute, got.Minute())
				assert.Zero(t, got.Second())
				assert.False(t, got.AddDate(0, 0, -7).After(now), "not minimal: now=%s got=%s", now, got)
			}
		}
	}
}

func TestNextOccurrenceSameDay(t *testing.T) {
	t.Parallel()
	c := Calculator{Location: time.UTC}

	before := date(2024, time.June, 10, 6, 59, 59) // Monday
	got, err := c.NextOccurrence(before, booking.Weekday(time.Monday), "07:00")
	require.NoError(t, err)
	assert.Equal(t, date(2024, time.June, 10, 7, 0, 0), got)

	exact := date(2024, time.June, 10, 7, 0, 0)
	got, err = c.NextOccurrence(exact, booking.Weekday(time.Monday), "07:00")
	require.NoError(t, err)
	assert.Equal(t, date(2024, time.June, 17, 7, 0, 0), got)

	after := date(2024, time.June, 10, 7, 0, 1)
	got, err = c.NextOccurrence(after, booking.Weekday(time.Monday), "07:00")
	require.NoError(t, err)
	assert.Equal(t, date(2024, time.June, 17, 7, 0, 0), got)
}

func TestNextOccurrenceRejectsBadClock(t *testing.T) {
	t.Parallel()
	c := Calculator{Location: time.UTC}
	_, err := c.NextOccurrence(time.Now(), booking.Weekday(time.Monday), "7:00")
	require.Error(t, err)
	_, err = c.NextOccurrence(time.Now(), booking.Weekday(time.Monday), "24:00")
	require.Error(t, err)
}

func TestWindowOpen(t *testing.T) {
	t.Parallel()
	classDate := date(2024, time.June, 10, 7, 0, 0)
	got := WindowOpen(classDate, 4, 60*time.Minute)
	assert.Equal(t, date(2024, time.June, 6, 8, 0, 0), got)
	assert.Equal(t, time.Thursday, got.Weekday())
}

func TestAttemptIsThirtySecondsBeforeOpen(t *testing.T) {
	t.Parallel()
	c := Calculator{AdvanceDays: 4, Location: time.UTC}
	classDate := date(2024, time.June, 10, 7, 0, 0)
	for i := 0; i < 20; i++ {
		sb := c.Plan(booking.Slot{Day: booking.Weekday(time.Monday), Time: "07:00", ClassName: "WOD"}, classDate)
		assert.Equal(t, 30*time.Second, sb.OpensAt.Sub(sb.AttemptAt))
		classDate = classDate.Add(37*time.Hour + 13*time.Minute)
		c.AdvanceDays = i % 9
	}
}

func TestWednesdayScenario(t *testing.T) {
	t.Parallel()
	c := Calculator{AdvanceDays: 4, Location: time.UTC}
	now := date(2024, time.June, 5, 10, 0, 0) // Wednesday
	slot := booking.Slot{Day: booking.Weekday(time.Monday), Time: "07:00", ClassName: "WOD"}

	sb, err := c.First(now, slot)
	require.NoError(t, err)
	assert.Equal(t, date(2024, time.June, 10, 7, 0, 0), sb.ClassDate)
	assert.Equal(t, date(2024, time.June, 6, 8, 0, 0), sb.OpensAt)
	assert.Equal(t, date(2024, time.June, 6, 7, 59, 30), sb.AttemptAt)
}

func TestFirstRollsPastAttemptForward(t *testing.T) {
	t.Parallel()
	c := Calculator{AdvanceDays: 4, Location: time.UTC}
	// Friday: next Monday's window opened on Thursday already.
	now := date(2024, time.June, 7, 9, 0, 0)
	slot := booking.Slot{Day: booking.Weekday(time.Monday), Time: "07:00", ClassName: "WOD"}

	up, err := c.Upcoming(now, slot)
	require.NoError(t, err)
	assert.False(t, up.AttemptAt.After(now))

	sb, err := c.First(now, slot)
	require.NoError(t, err)
	assert.Equal(t, date(2024, time.June, 17, 7, 0, 0), sb.ClassDate)
	assert.True(t, sb.AttemptAt.After(now))
}

func TestAdvanceIsSevenDays(t *testing.T) {
	t.Parallel()
	c := Calculator{AdvanceDays: 4, Location: time.UTC}
	sb := c.Plan(booking.Slot{Day: booking.Weekday(time.Tuesday), Time: "18:30", ClassName: "Gym"}, date(2024, time.June, 11, 18, 30, 0))
	next := c.Advance(sb)
	assert.Equal(t, 7*24*time.Hour, next.ClassDate.Sub(sb.ClassDate))
	assert.Equal(t, 7*24*time.Hour, next.AttemptAt.Sub(sb.AttemptAt))
	assert.Equal(t, sb.Slot, next.Slot)
}

func TestViewSortedByAttempt(t *testing.T) {
	t.Parallel()
	c := Calculator{AdvanceDays: 4, Location: time.UTC}
	now := date(2024, time.June, 5, 10, 0, 0)
	slots := []booking.Slot{
		{Day: booking.Weekday(time.Friday), Time: "18:00", ClassName: "Gymnastics"},
		{Day: booking.Weekday(time.Monday), Time: "07:00", ClassName: "WOD"},
		{Day: booking.Weekday(time.Sunday), Time: "09:00", ClassName: "Open gym"},
	}
	view, err := c.View(now, slots)
	require.NoError(t, err)
	require.Len(t, view, 3)
	for i := 1; i < len(view); i++ {
		assert.False(t, view[i].AttemptAt.Before(view[i-1].AttemptAt))
	}
}

func TestFormatUntil(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "2d 3h 4m", FormatUntil(2*24*time.Hour+3*time.Hour+4*time.Minute+5*time.Second))
	assert.Equal(t, "1h 0m", FormatUntil(time.Hour))
	assert.Equal(t, "5m 7s", FormatUntil(5*time.Minute+7*time.Second))
	assert.Equal(t, "9s", FormatUntil(9*time.Second))
	assert.Equal(t, "0s", FormatUntil(-time.Second))
}
