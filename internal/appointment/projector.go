package appointment

import (
	"sort"
	"time"
)

// ProjectSlots expands weekly availability into concrete slots for days
// civil dates starting at the date of now in loc. Slots of today that start
// at or before now are left out. A slot is BOOKED when one of booked starts
// exactly at its start; booked must only contain occupying appointments.
//
// Grid times that do not exist on a day (skipped by a daylight saving jump)
// produce no slot, and no slot starts before the previous one ends.
//
// Days without slots are omitted. Nothing is produced when no slot duration
// is configured.
func ProjectSlots(avail WeeklyAvailability, booked []Appointment, now time.Time, days int, loc *time.Location) []DaySlots {
	if avail.SlotDurationMinutes == nil || *avail.SlotDurationMinutes <= 0 || days <= 0 {
		return nil
	}
	step := *avail.SlotDurationMinutes

	taken := make(map[int64]struct{}, len(booked))
	for _, a := range booked {
		taken[a.ScheduledAt.Unix()] = struct{}{}
	}

	rules := sortedRules(avail.Rules)
	today := now.In(loc)

	var out []DaySlots
	for i := 0; i < days; i++ {
		day := time.Date(today.Year(), today.Month(), today.Day()+i, 0, 0, 0, 0, loc)

		var slots []Slot
		var lastEnd time.Time
		for _, r := range rules {
			if r.Weekday != day.Weekday() {
				continue
			}
			for m := r.Start; m+TimeOfDay(step) <= r.End; m += TimeOfDay(step) {
				start := m.On(day, loc)
				if tod, ok := TimeOfDayOf(start, loc); !ok || tod != m {
					continue
				}
				if !start.After(now) || start.Before(lastEnd) {
					continue
				}
				status := SlotAvailable
				if _, ok := taken[start.Unix()]; ok {
					status = SlotBooked
				}
				lastEnd = start.Add(time.Duration(step) * time.Minute)
				slots = append(slots, Slot{
					Start:  start,
					End:    lastEnd,
					Status: status,
				})
			}
		}

		if len(slots) > 0 {
			out = append(out, DaySlots{
				Date:  time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC),
				Slots: slots,
			})
		}
	}
	return out
}

// IsBookableStart reports whether at is the start of a slot produced by the
// provider's weekly availability: inside a rule for that weekday, ending by
// the rule end, and aligned to the slot grid anchored at the rule start.
func IsBookableStart(avail WeeklyAvailability, at time.Time, loc *time.Location) bool {
	if avail.SlotDurationMinutes == nil || *avail.SlotDurationMinutes <= 0 {
		return false
	}
	step := TimeOfDay(*avail.SlotDurationMinutes)

	tod, ok := TimeOfDayOf(at, loc)
	if !ok {
		return false
	}
	weekday := at.In(loc).Weekday()

	for _, r := range avail.Rules {
		if r.Weekday != weekday {
			continue
		}
		if tod >= r.Start && tod+step <= r.End && (tod-r.Start)%step == 0 {
			return true
		}
	}
	return false
}

func sortedRules(rules []AvailabilityRule) []AvailabilityRule {
	out := append([]AvailabilityRule(nil), rules...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Weekday != out[j].Weekday {
			return out[i].Weekday < out[j].Weekday
		}
		return out[i].Start < out[j].Start
	})
	return out
}

// validateRules checks a replacement schedule before it is stored.
func validateRules(slotMinutes int, rules []AvailabilityRule) error {
	if slotMinutes < MinSlotDurationMinutes {
		return invalidInput("slot duration must be at least %d minutes", MinSlotDurationMinutes)
	}
	if slotMinutes > minutesPerDay {
		return invalidInput("slot duration must not exceed one day")
	}

	sorted := sortedRules(rules)
	for i, r := range sorted {
		if r.Weekday < time.Sunday || r.Weekday > time.Saturday {
			return invalidInput("invalid day of week %d", r.Weekday)
		}
		if !r.Start.Valid() || !r.End.Valid() {
			return invalidInput("availability times must be within one day")
		}
		if r.Start >= r.End {
			return invalidInput("start time %s must be before end time %s on %s", r.Start, r.End, r.Weekday)
		}
		if i > 0 && sorted[i-1].Weekday == r.Weekday && sorted[i-1].End > r.Start {
			return invalidInput("overlapping availability on %s: %s-%s and %s-%s",
				r.Weekday, sorted[i-1].Start, sorted[i-1].End, r.Start, r.End)
		}
	}
	return nil
}
