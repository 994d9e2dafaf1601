package models

import "strings"

// Weekday is a lowercase English day name as stored in selected_days
type Weekday string

const (
	WeekdaySaturday  Weekday = "saturday"
	WeekdaySunday    Weekday = "sunday"
	WeekdayMonday    Weekday = "monday"
	WeekdayTuesday   Weekday = "tuesday"
	WeekdayWednesday Weekday = "wednesday"
	WeekdayThursday  Weekday = "thursday"
	WeekdayFriday    Weekday = "friday"
)

// SelectableWeekdays are the days a student may ride. Friday has no service.
var SelectableWeekdays = []Weekday{
	WeekdaySaturday,
	WeekdaySunday,
	WeekdayMonday,
	WeekdayTuesday,
	WeekdayWednesday,
	WeekdayThursday,
}

// byDayOfWeek maps a slot day_of_week (0 = Sunday) to its name
var byDayOfWeek = [7]Weekday{
	WeekdaySunday,
	WeekdayMonday,
	WeekdayTuesday,
	WeekdayWednesday,
	WeekdayThursday,
	WeekdayFriday,
	WeekdaySaturday,
}

// ParseWeekday normalizes a day name. The second return is false for unknown names.
func ParseWeekday(s string) (Weekday, bool) {
	d := Weekday(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range byDayOfWeek {
		if d == known {
			return d, true
		}
	}
	return "", false
}

// IsSelectable reports whether the day may appear in a subscription
func (d Weekday) IsSelectable() bool {
	for _, s := range SelectableWeekdays {
		if d == s {
			return true
		}
	}
	return false
}

// WeekdayFromDayOfWeek converts a slot day_of_week into a day name
func WeekdayFromDayOfWeek(day int) (Weekday, bool) {
	if day < 0 || day > 6 {
		return "", false
	}
	return byDayOfWeek[day], true
}
