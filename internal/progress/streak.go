package progress

import (
	"sort"
	"time"

	"github.com/medmentor/backend/internal/models"
)

// Truncate returns midnight of t's calendar day in t's location.
func Truncate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DayNumber maps the calendar date of t (in its own location) to a day count,
// so dates recorded in different zones compare by their label.
func DayNumber(t time.Time) int64 {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400
}

// SameDay compares calendar dates, ignoring time of day.
func SameDay(a, b time.Time) bool {
	return DayNumber(a) == DayNumber(b)
}

// RecomputeStreak counts consecutive study days ending today or yesterday.
//
// Today is lenient: if there is no entry for today yet (or today's entry has no
// study), the walk starts at yesterday without breaking the streak. Any older
// missing day or day without study ends the count.
func RecomputeStreak(history []models.DailyProgress, today time.Time) int {
	todayN := DayNumber(today)

	sorted := make([]models.DailyProgress, 0, len(history))
	for _, e := range history {
		if DayNumber(e.Date) > todayN {
			continue
		}
		sorted = append(sorted, e)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return DayNumber(sorted[i].Date) > DayNumber(sorted[j].Date)
	})

	streak := 0
	idx := 0
	for offset := int64(0); idx < len(sorted); offset++ {
		expected := todayN - offset
		e := sorted[idx]

		if offset == 0 {
			if DayNumber(e.Date) == expected {
				idx++
				if e.StudyStreak {
					streak++
				}
			}
			continue
		}

		if DayNumber(e.Date) != expected || !e.StudyStreak {
			break
		}
		streak++
		idx++
	}
	return streak
}
