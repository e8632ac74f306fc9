package timetable

import (
	"fmt"
	"time"
)

// All campus clocks run in one timezone regardless of where the service
// is deployed.
var location = mustLoadLocation()

func mustLoadLocation() *time.Location {
	loc, err := time.LoadLocation("Asia/Shanghai")
	if err != nil {
		return time.FixedZone("CST", 8*60*60)
	}
	return loc
}

func Location() *time.Location {
	return location
}

// StartOfDay truncates to campus-local midnight.
func StartOfDay(t time.Time) time.Time {
	t = t.In(location)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, location)
}

// DayIndex maps a date to the schedule day axis, Monday=0 .. Sunday=6.
func DayIndex(t time.Time) int {
	return (int(t.In(location).Weekday()) + 6) % 7
}

// startOfWeek truncates to the Monday of the ISO week.
func startOfWeek(t time.Time) time.Time {
	return StartOfDay(t).AddDate(0, 0, -DayIndex(t))
}

// WeeksSince counts whole ISO weeks between the weeks containing the two
// dates. A date in the semester's first week yields 0.
func WeeksSince(t, since time.Time) int {
	return int(startOfWeek(t).Sub(startOfWeek(since)).Hours() / (7 * 24))
}

// TimeOfDay places an "H:MM" clock onto the given date.
func TimeOfDay(date time.Time, clock string) (time.Time, error) {
	hour, minute, err := splitClock(clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("timetable: bad clock %q: %w", clock, err)
	}

	d := date.In(location)
	return time.Date(d.Year(), d.Month(), d.Day(), hour, minute, 0, 0, location), nil
}

// ParseDate parses a "yyyy-MM-dd" campus-local date.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation("2006-01-02", s, location)
}

// FormatDate renders a campus-local "yyyy-MM-dd" date.
func FormatDate(t time.Time) string {
	return t.In(location).Format("2006-01-02")
}
