package progress

import (
	"fmt"
	"math"

	"github.com/medmentor/backend/internal/models"
)

// TimeEstimate is the remaining study time for a course at the user's pace.
type TimeEstimate struct {
	RemainingMinutes int
	AdjustedMinutes  int
	Sessions         int
	Complete         bool
}

// EstimateRemaining sums durations of lessons not yet completed and scales
// them by the preferred playback speed.
func (e *Engine) EstimateRemaining(course *models.Course, rec *models.ProgressRecord) TimeEstimate {
	remaining := 0
	if course != nil {
		for _, m := range course.Modules {
			for _, l := range m.Lessons {
				if rec.HasLesson(l.ID) || l.DurationMinutes <= 0 {
					continue
				}
				remaining += l.DurationMinutes
			}
		}
	}
	if remaining == 0 {
		return TimeEstimate{Complete: true}
	}

	speed := rec.PreferredSpeed
	if speed <= 0 {
		speed = 1
	}
	adjusted := int(math.Ceil(float64(remaining) / speed))

	est := TimeEstimate{RemainingMinutes: remaining, AdjustedMinutes: adjusted}
	if rec.AverageSessionDuration > 0 {
		est.Sessions = int(math.Ceil(float64(adjusted) / float64(rec.AverageSessionDuration)))
	}
	return est
}

// EstimateTimeRemaining formats EstimateRemaining as "XhYmin".
func (e *Engine) EstimateTimeRemaining(course *models.Course, rec *models.ProgressRecord) string {
	return e.EstimateRemaining(course, rec).String()
}

func (t TimeEstimate) String() string {
	if t.Complete {
		return "course complete"
	}
	s := FormatMinutes(t.AdjustedMinutes)
	if t.Sessions > 0 {
		noun := "sessions"
		if t.Sessions == 1 {
			noun = "session"
		}
		s += fmt.Sprintf(" (~%d %s)", t.Sessions, noun)
	}
	return s
}

// FormatMinutes renders 135 as "2h15min" and 45 as "45min".
func FormatMinutes(minutes int) string {
	if minutes < 0 {
		minutes = 0
	}
	h, m := minutes/60, minutes%60
	if h == 0 {
		return fmt.Sprintf("%dmin", m)
	}
	return fmt.Sprintf("%dh%dmin", h, m)
}
