package progress

import (
	"math"

	"github.com/medmentor/backend/internal/models"
)

// Level derives the tier from total XP: floor(sqrt(xp/100)) + 1.
func Level(totalXP int) int {
	if totalXP <= 0 {
		return 1
	}
	return int(math.Floor(math.Sqrt(float64(totalXP)/100))) + 1
}

// TypeMultiplier weights lesson XP by how demanding the lesson format is.
func TypeMultiplier(t models.LessonType) float64 {
	switch t {
	case models.LessonPractical, "procedure", "pratica":
		return 1.5
	case models.LessonVideo:
		return 1.0
	case models.LessonReading, "ebook", "leitura":
		return 0.8
	default:
		return 1.0
	}
}

// LessonXP returns the XP for completing a lesson: duration × multiplier × 2.
func LessonXP(lesson models.Lesson) int {
	minutes := lesson.DurationMinutes
	if minutes < 0 {
		minutes = 0
	}
	return int(math.Round(float64(minutes) * TypeMultiplier(lesson.Type) * 2))
}

// awardXP adds XP and keeps the derived level in step.
func awardXP(rec *models.ProgressRecord, xp int) {
	if xp <= 0 {
		rec.Level = Level(rec.TotalXP)
		return
	}
	rec.TotalXP += xp
	rec.Level = Level(rec.TotalXP)
}
