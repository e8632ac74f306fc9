// Package coalesce folds per-period meeting marks into contiguous spans.
// Every source adapter feeds its raw marks through Runs so the
// run-length rules live in exactly one place.
package coalesce

import (
	"sort"

	"classtable-service/internal/models"
)

// Runs annotates marks with IsStart/Length so that each maximal run of
// consecutive periods on the same week/day/classroom becomes one span.
// The first mark of a run gets IsStart=true and Length=run size; the
// absorbed continuation marks stay in the result with IsStart=false and
// Length=0 (overlap and continuation queries need them persisted).
//
// A differing classroom breaks a run even when the periods are adjacent.
func Runs(marks []models.Schedule) []models.Schedule {
	if len(marks) == 0 {
		return nil
	}

	sorted := make([]models.Schedule, len(marks))
	copy(sorted, marks)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Week != sorted[j].Week {
			return sorted[i].Week < sorted[j].Week
		}
		if sorted[i].Day != sorted[j].Day {
			return sorted[i].Day < sorted[j].Day
		}
		return sorted[i].Period < sorted[j].Period
	})

	continuation := make(map[int]bool, len(sorted))

	for i := range sorted {
		if continuation[i] {
			sorted[i].IsStart = false
			sorted[i].Length = 0
			continue
		}

		sorted[i].IsStart = true
		length := 1
		for hasMark(sorted, sorted[i], length) {
			continuation[i+length] = true
			length++
		}
		sorted[i].Length = length
	}

	return sorted
}

func hasMark(marks []models.Schedule, start models.Schedule, offset int) bool {
	for _, m := range marks {
		if m.Week == start.Week &&
			m.Day == start.Day &&
			m.Classroom == start.Classroom &&
			m.Period == start.Period+offset {
			return true
		}
	}
	return false
}
