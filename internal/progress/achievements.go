package progress

import "github.com/medmentor/backend/internal/models"

// Achievement ids used by the trigger operations.
const (
	AchLateStudy   = "coruja-noturna"
	AchEarlyStudy  = "madrugador"
	AchSpeed       = "velocista"
	AchPerfectWeek = "semana-perfeita"
)

// SpeedThreshold is the minimum playback speed for the speed achievement.
const SpeedThreshold = 2.0

var defaultAchievements = []models.Achievement{
	{ID: "primeira-aula", Title: "First Lesson", Description: "Complete your first lesson", Icon: "play-circle", Category: "progress", Rarity: models.RarityCommon, Points: 10,
		Requirement: models.Requirement{Type: models.ReqLessonsCompleted, Target: 1}},
	{ID: "dez-aulas", Title: "Getting Into Rhythm", Description: "Complete 10 lessons", Icon: "list-checks", Category: "progress", Rarity: models.RarityCommon, Points: 50,
		Requirement: models.Requirement{Type: models.ReqLessonsCompleted, Target: 10}},
	{ID: "cinquenta-aulas", Title: "Resident", Description: "Complete 50 lessons", Icon: "stethoscope", Category: "progress", Rarity: models.RarityRare, Points: 200,
		Requirement: models.Requirement{Type: models.ReqLessonsCompleted, Target: 50}},
	{ID: "sequencia-3-dias", Title: "On a Roll", Description: "3-day study streak", Icon: "flame", Category: "consistency", Rarity: models.RarityCommon, Points: 30,
		Requirement: models.Requirement{Type: models.ReqStreakDays, Target: 3}},
	{ID: "sequencia-7-dias", Title: "Week on Call", Description: "7-day study streak", Icon: "flame", Category: "consistency", Rarity: models.RarityRare, Points: 75,
		Requirement: models.Requirement{Type: models.ReqStreakDays, Target: 7}},
	{ID: "sequencia-30-dias", Title: "Unstoppable", Description: "30-day study streak", Icon: "flame", Category: "consistency", Rarity: models.RarityEpic, Points: 300,
		Requirement: models.Requirement{Type: models.ReqStreakDays, Target: 30}},
	{ID: "anotador", Title: "Note Taker", Description: "Take 10 notes", Icon: "notebook-pen", Category: "engagement", Rarity: models.RarityCommon, Points: 40,
		Requirement: models.Requirement{Type: models.ReqNotesTaken, Target: 10}},
	{ID: "foco-total", Title: "Deep Focus", Description: "Average study sessions of 60 minutes", Icon: "timer", Category: "engagement", Rarity: models.RarityRare, Points: 60,
		Requirement: models.Requirement{Type: models.ReqContinuousStudy, Target: 60}},
	{ID: "modulo-completo", Title: "Module Done", Description: "Complete a full module", Icon: "layers", Category: "mastery", Rarity: models.RarityRare, Points: 100,
		Requirement: models.Requirement{Type: models.ReqModuleComplete, Target: 1}},
	{ID: "curso-completo", Title: "Graduate", Description: "Complete every lesson of a course", Icon: "graduation-cap", Category: "mastery", Rarity: models.RarityLegendary, Points: 500,
		Requirement: models.Requirement{Type: models.ReqCourseComplete, Target: 1}},
	{ID: AchLateStudy, Title: "Night Owl", Description: "Study late at night", Icon: "moon", Category: "special", Rarity: models.RarityCommon, Points: 25,
		Requirement: models.Requirement{Type: models.ReqLateStudy, Target: 1}},
	{ID: AchEarlyStudy, Title: "Early Bird", Description: "Study early in the morning", Icon: "sunrise", Category: "special", Rarity: models.RarityCommon, Points: 25,
		Requirement: models.Requirement{Type: models.ReqEarlyStudy, Target: 1}},
	{ID: AchSpeed, Title: "Speed Learner", Description: "Watch a lesson at 2x speed", Icon: "fast-forward", Category: "special", Rarity: models.RarityCommon, Points: 30,
		Requirement: models.Requirement{Type: models.ReqSpeedLearning, Target: 1}},
	{ID: AchPerfectWeek, Title: "Perfect Week", Description: "Meet your daily goal 7 days in a row", Icon: "calendar-check", Category: "consistency", Rarity: models.RarityEpic, Points: 150,
		Requirement: models.Requirement{Type: models.ReqPerfectWeek, Target: 7}},
}

// Catalog is read-only reference data. Callers get copies, so nothing they do
// can leak into another user's check.
type Catalog struct {
	items []models.Achievement
	byID  map[string]int
}

// NewCatalog builds a catalog from definitions; later duplicates of an id are ignored.
func NewCatalog(defs []models.Achievement) *Catalog {
	c := &Catalog{byID: make(map[string]int, len(defs))}
	for _, d := range defs {
		if d.ID == "" {
			continue
		}
		if _, dup := c.byID[d.ID]; dup {
			continue
		}
		c.byID[d.ID] = len(c.items)
		c.items = append(c.items, d)
	}
	return c
}

// DefaultCatalog returns the platform's built-in achievements.
func DefaultCatalog() *Catalog {
	return NewCatalog(defaultAchievements)
}

func (c *Catalog) All() []models.Achievement {
	out := make([]models.Achievement, len(c.items))
	copy(out, c.items)
	return out
}

func (c *Catalog) ByID(id string) (models.Achievement, bool) {
	i, ok := c.byID[id]
	if !ok {
		return models.Achievement{}, false
	}
	return c.items[i], true
}

// currentValue measures the record against a requirement type. The second
// return is false when the requirement cannot be evaluated by a scan.
func currentValue(rec *models.ProgressRecord, req models.Requirement, course *models.Course) (int, bool) {
	switch req.Type {
	case models.ReqLessonsCompleted:
		return len(rec.LessonsCompleted), true
	case models.ReqStreakDays:
		return rec.Streak, true
	case models.ReqNotesTaken:
		return rec.NotesCount, true
	case models.ReqContinuousStudy:
		return rec.AverageSessionDuration, true
	case models.ReqModuleComplete:
		return len(rec.ModulesCompleted), true
	case models.ReqCourseComplete:
		if course == nil {
			return 0, false
		}
		ids := course.LessonIDs()
		if len(ids) == 0 {
			return 0, false
		}
		for _, id := range ids {
			if !rec.HasLesson(id) {
				return 0, true
			}
		}
		return 1, true
	default:
		return 0, false
	}
}
