package timetable

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"

	"classtable-service/internal/models"
)

// Period is one bell-schedule entry. Clock strings are "H:MM" wall time.
// A negative ID marks a non-enrollable pseudo-period (lunch break).
type Period struct {
	ID          int
	Start       string
	Finish      string
	Description string
}

// The per-college bell tables are institutional constants, reproduced
// verbatim. Do not derive or "fix" them.
var collegeTimeTable = map[models.College][]Period{
	models.CollegeSJTU: {
		{ID: 0, Start: "8:00", Finish: "8:45"},
		{ID: 1, Start: "8:55", Finish: "9:40"},
		{ID: 2, Start: "10:00", Finish: "10:45"},
		{ID: 3, Start: "10:55", Finish: "11:40"},
		{ID: 4, Start: "12:00", Finish: "12:45"},
		{ID: 5, Start: "12:55", Finish: "13:40"},
		{ID: 6, Start: "14:00", Finish: "14:45"},
		{ID: 7, Start: "14:55", Finish: "15:40"},
		{ID: 8, Start: "16:00", Finish: "16:45"},
		{ID: 9, Start: "16:55", Finish: "17:40"},
		{ID: 10, Start: "18:00", Finish: "18:45"},
		{ID: 11, Start: "18:55", Finish: "19:40"},
		{ID: 12, Start: "20:00", Finish: "20:45"},
		{ID: 13, Start: "20:55", Finish: "21:30"},
	},
	models.CollegeSJTUG: {
		{ID: 0, Start: "8:00", Finish: "8:45"},
		{ID: 1, Start: "8:55", Finish: "9:40"},
		{ID: 2, Start: "10:00", Finish: "10:45"},
		{ID: 3, Start: "10:55", Finish: "11:40"},
		{ID: 4, Start: "12:00", Finish: "12:45"},
		{ID: 5, Start: "12:55", Finish: "13:40"},
		{ID: 6, Start: "14:00", Finish: "14:45"},
		{ID: 7, Start: "14:55", Finish: "15:40"},
		{ID: 8, Start: "16:00", Finish: "16:45"},
		{ID: 9, Start: "16:55", Finish: "17:40"},
		{ID: 10, Start: "18:00", Finish: "18:45"},
		{ID: 11, Start: "18:55", Finish: "19:40"},
		{ID: 12, Start: "19:41", Finish: "20:20"},
		{ID: 13, Start: "20:25", Finish: "21:10"},
		{ID: 14, Start: "21:15", Finish: "22:00"},
	},
	models.CollegeSHSMU: {
		{ID: 0, Start: "8:00", Finish: "8:40"},
		{ID: 1, Start: "8:50", Finish: "9:30"},
		{ID: 2, Start: "9:40", Finish: "10:20"},
		{ID: 3, Start: "10:30", Finish: "11:10"},
		{ID: 4, Start: "11:20", Finish: "12:00"},
		{ID: -1, Start: "12:00", Finish: "13:30", Description: "午休"},
		{ID: 5, Start: "13:30", Finish: "14:10"},
		{ID: 6, Start: "14:20", Finish: "15:00"},
		{ID: 7, Start: "15:10", Finish: "15:50"},
		{ID: 8, Start: "16:00", Finish: "16:40"},
		{ID: 9, Start: "16:50", Finish: "17:30"},
		{ID: 10, Start: "17:40", Finish: "18:20"},
		{ID: 11, Start: "18:30", Finish: "19:10"},
		{ID: 12, Start: "19:20", Finish: "20:00"},
		{ID: 13, Start: "20:10", Finish: "20:50"},
	},
}

// Periods returns the bell table for the college, in bell order.
func Periods(college models.College) []Period {
	return collegeTimeTable[college]
}

// PeriodByID returns the bell entry with the given index.
func PeriodByID(college models.College, id int) (Period, bool) {
	for _, p := range collegeTimeTable[college] {
		if p.ID == id {
			return p, true
		}
	}
	return Period{}, false
}

// PeriodAt returns the period whose canonical start clock equals the
// query clock, minute-exact. This is deliberately NOT a containment
// check: "8:01" matches nothing even while period 0 is in session. The
// upstream timetable feeds always carry exact bell starts, and the rest
// of the pipeline depends on this literal comparison.
func PeriodAt(college models.College, clock string) (Period, bool) {
	want, err := clockMinutes(clock)
	if err != nil {
		return Period{}, false
	}

	for _, p := range collegeTimeTable[college] {
		got, err := clockMinutes(p.Start)
		if err != nil {
			continue
		}
		if got == want {
			return p, true
		}
	}

	return Period{}, false
}

// Hours returns the first period's start hour and the last period's
// finish hour, rounded up to the next whole hour when the finish minute
// is non-zero. Used for proportional day layout.
func Hours(college models.College) (int, int) {
	periods := collegeTimeTable[college]
	if len(periods) == 0 {
		return 0, 0
	}

	first := periods[0]
	last := periods[len(periods)-1]

	startHour, _, _ := splitClock(first.Start)
	finishHour, finishMinute, _ := splitClock(last.Finish)
	if finishMinute > 0 {
		finishHour++
	}

	return startHour, finishHour
}

// splitClock accepts "H:MM" and "H:MM:SS"; seconds are ignored.
func splitClock(clock string) (int, int, error) {
	parts := strings.Split(clock, ":")
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("malformed clock %q", clock)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, err
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, err
	}

	return hour, minute, nil
}

func clockMinutes(clock string) (int, error) {
	hour, minute, err := splitClock(clock)
	if err != nil {
		return 0, err
	}
	return hour*100 + minute, nil
}

// ClassColors is the fixed section color palette. Import assigns colors
// from a shuffled copy sized to the fetch, so re-syncs may recolor.
var ClassColors = []string{
	"#CB1B45",
	"#DB4D6D",
	"#C73E3A",
	"#F75C2F",
	"#1B813E",
	"#2D6D4B",
	"#268785",
	"#336774",
	"#006284",
	"#4E4F97",
	"#005CAF",
	"#66327C",
	"#622954",
	"#C1328E",
}

// RandomColors returns the first n entries of a shuffled palette copy.
// n must not exceed len(ClassColors).
func RandomColors(n int) []string {
	shuffled := make([]string, len(ClassColors))
	copy(shuffled, ClassColors)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	return shuffled[:n]
}
