package models

type LessonType string

const (
	LessonVideo     LessonType = "video"
	LessonPractical LessonType = "practical"
	LessonReading   LessonType = "reading"
)

type Lesson struct {
	ID              string     `json:"id" toml:"id"`
	Title           string     `json:"title" toml:"title"`
	Type            LessonType `json:"type" toml:"type"`
	DurationMinutes int        `json:"duration_minutes" toml:"duration"`
}

type Module struct {
	ID      string   `json:"id" toml:"id"`
	Title   string   `json:"title" toml:"title"`
	Lessons []Lesson `json:"lessons" toml:"lessons"`
}

// Course is the structure used for module/course completion and estimates.
type Course struct {
	ID      string   `json:"id" toml:"id"`
	Title   string   `json:"title" toml:"title"`
	Modules []Module `json:"modules" toml:"modules"`
}

// FindLesson returns the lesson with the given id, if the course has it.
func (c *Course) FindLesson(lessonID string) (Lesson, bool) {
	if c == nil {
		return Lesson{}, false
	}
	for _, m := range c.Modules {
		for _, l := range m.Lessons {
			if l.ID == lessonID {
				return l, true
			}
		}
	}
	return Lesson{}, false
}

// LessonIDs returns every lesson id reachable from the course.
func (c *Course) LessonIDs() []string {
	if c == nil {
		return nil
	}
	var ids []string
	for _, m := range c.Modules {
		for _, l := range m.Lessons {
			ids = append(ids, l.ID)
		}
	}
	return ids
}
