// Package schedule maps weekly slots to absolute class dates and booking
// window instants. Everything here is pure given a clock reading.
package schedule

import (
	"fmt"
	"sort"
	"time"

	"github.com/example/octiv-sniper/internal/domain/booking"
	"github.com/robfig/cron/v3"
)

const (
	DefaultAdvanceDays   = 4
	DefaultClassDuration = 60 * time.Minute

	week = 7
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Calculator holds the provider's window rules.
type Calculator struct {
	AdvanceDays   int
	ClassDuration time.Duration
	Location      *time.Location
}

func (c Calculator) loc() *time.Location {
	if c.Location == nil {
		return time.Local
	}
	return c.Location
}

func (c Calculator) duration() time.Duration {
	if c.ClassDuration <= 0 {
		return DefaultClassDuration
	}
	return c.ClassDuration
}

// NextOccurrence returns the earliest instant after now that falls on the
// slot's weekday and time of day. A match earlier today, or exactly now,
// moves to next week.
func (c Calculator) NextOccurrence(now time.Time, day booking.Weekday, clock string) (time.Time, error) {
	hour, minute, err := booking.ParseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	sched, err := parser.Parse(fmt.Sprintf("%d %d * * %d", minute, hour, int(day)))
	if err != nil {
		return time.Time{}, fmt.Errorf("weekly schedule: %w", err)
	}
	next := sched.Next(now.In(c.loc()))
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("no occurrence of %s %s after %s", day, clock, now.Format(time.RFC3339))
	}
	return next, nil
}

// WindowOpen is the instant booking opens for a class: advanceDays calendar
// days earlier, shifted by one class duration.
func WindowOpen(classDate time.Time, advanceDays int, classDuration time.Duration) time.Time {
	return classDate.AddDate(0, 0, -advanceDays).Add(classDuration)
}

// AttemptAt is when the attempt engine starts firing for a window.
func AttemptAt(opensAt time.Time) time.Time {
	return opensAt.Add(-booking.Anticipation)
}

// Plan builds the cycle descriptor for a known class date.
func (c Calculator) Plan(slot booking.Slot, classDate time.Time) booking.ScheduledBooking {
	opens := WindowOpen(classDate, c.AdvanceDays, c.duration())
	return booking.ScheduledBooking{
		Slot:      slot,
		ClassDate: classDate,
		OpensAt:   opens,
		AttemptAt: AttemptAt(opens),
	}
}

// Advance returns the following week's cycle.
func (c Calculator) Advance(sb booking.ScheduledBooking) booking.ScheduledBooking {
	return c.Plan(sb.Slot, sb.ClassDate.AddDate(0, 0, week))
}

// Upcoming is the slot's next class descriptor without any roll-forward.
// Its attempt instant may already be in the past.
func (c Calculator) Upcoming(now time.Time, slot booking.Slot) (booking.ScheduledBooking, error) {
	classDate, err := c.NextOccurrence(now, slot.Day, slot.Time)
	if err != nil {
		return booking.ScheduledBooking{}, err
	}
	return c.Plan(slot, classDate), nil
}

// First returns the first armable cycle for a slot: the next class, rolled
// forward by whole weeks until the attempt instant is strictly after now.
func (c Calculator) First(now time.Time, slot booking.Slot) (booking.ScheduledBooking, error) {
	sb, err := c.Upcoming(now, slot)
	if err != nil {
		return booking.ScheduledBooking{}, err
	}
	return c.RollForward(now, sb), nil
}

// RollForward advances sb week by week until its attempt instant is after now.
func (c Calculator) RollForward(now time.Time, sb booking.ScheduledBooking) booking.ScheduledBooking {
	for !sb.AttemptAt.After(now) {
		sb = c.Advance(sb)
	}
	return sb
}

// View lists the upcoming cycle of every slot sorted by attempt instant.
// Slots whose attempt instant has passed are kept as-is so callers can show them as passed.
func (c Calculator) View(now time.Time, slots []booking.Slot) ([]booking.ScheduledBooking, error) {
	out := make([]booking.ScheduledBooking, 0, len(slots))
	for _, s := range slots {
		sb, err := c.Upcoming(now, s)
		if err != nil {
			return nil, fmt.Errorf("slot %s: %w", s, err)
		}
		out = append(out, sb)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].AttemptAt.Before(out[j].AttemptAt) })
	return out, nil
}

// DateString formats a class date the way the provider filters on it.
func DateString(t time.Time) string { return t.Format("2006-01-02") }

// FormatUntil renders a countdown like "2d 3h 4m".
func FormatUntil(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	mins := secs / 60
	hours := mins / 60
	days := hours / 24
	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm", days, hours%24, mins%60)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, mins%60)
	case mins > 0:
		return fmt.Sprintf("%dm %ds", mins, secs%60)
	default:
		return fmt.Sprintf("%ds", secs)
	}
}
