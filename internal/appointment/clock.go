package appointment

import (
	"fmt"
	"strings"
	"time"
)

// TimeOfDay is a wall-clock time expressed in minutes since midnight.
type TimeOfDay int

const minutesPerDay = 24 * 60

// ParseTimeOfDay accepts "HH:MM" (and "HH:MM:SS" with zero seconds).
// "24:00" is end of day.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	if s == "24:00" || s == "24:00:00" {
		return minutesPerDay, nil
	}
	layout := "15:04"
	if strings.Count(s, ":") == 2 {
		layout = "15:04:05"
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid time of day %q, use HH:MM", ErrInvalidInput, s)
	}
	if t.Second() != 0 {
		return 0, fmt.Errorf("%w: time of day %q must be on a minute boundary", ErrInvalidInput, s)
	}
	return TimeOfDay(t.Hour()*60 + t.Minute()), nil
}

func (t TimeOfDay) Valid() bool {
	return t >= 0 && t <= minutesPerDay
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// On returns the instant at this time of day on the civil date of day, in loc.
func (t TimeOfDay) On(day time.Time, loc *time.Location) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), int(t)/60, int(t)%60, 0, 0, loc)
}

// TimeOfDayOf returns the wall-clock minute of at in loc, and false when at is
// not on a whole minute.
func TimeOfDayOf(at time.Time, loc *time.Location) (TimeOfDay, bool) {
	local := at.In(loc)
	if local.Second() != 0 || local.Nanosecond() != 0 {
		return 0, false
	}
	return TimeOfDay(local.Hour()*60 + local.Minute()), true
}

// DateOf returns the civil date of at in loc, as midnight UTC.
func DateOf(at time.Time, loc *time.Location) time.Time {
	local := at.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseWeekday accepts full English day names in any case ("MONDAY", "monday").
func ParseWeekday(s string) (time.Weekday, error) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), s) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("%w: invalid day of week %q", ErrInvalidInput, s)
}
