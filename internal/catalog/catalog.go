// Package catalog serves course structures (modules, lessons, durations)
// loaded from a TOML file.
package catalog

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/medmentor/backend/internal/models"
)

type fileCatalog struct {
	Courses []models.Course `toml:"courses"`
}

// Catalog is read-only after construction.
type Catalog struct {
	courses []models.Course
	byID    map[string]int
}

func New(courses []models.Course) (*Catalog, error) {
	c := &Catalog{byID: make(map[string]int, len(courses))}
	for _, course := range courses {
		if err := validate(course); err != nil {
			return nil, err
		}
		if _, dup := c.byID[course.ID]; dup {
			return nil, fmt.Errorf("duplicate course id %q", course.ID)
		}
		c.byID[course.ID] = len(c.courses)
		c.courses = append(c.courses, course)
	}
	return c, nil
}

// LoadFile reads courses from path. A missing file yields an empty catalog.
func LoadFile(path string) (*Catalog, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return New(nil)
		}
		return nil, fmt.Errorf("failed to stat catalog: %w", err)
	}
	var fc fileCatalog
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}
	return New(fc.Courses)
}

// Course returns a copy of the course so callers cannot edit shared state.
func (c *Catalog) Course(id string) (*models.Course, bool) {
	i, ok := c.byID[id]
	if !ok {
		return nil, false
	}
	course := clone(c.courses[i])
	return &course, true
}

func (c *Catalog) All() []models.Course {
	out := make([]models.Course, 0, len(c.courses))
	for _, course := range c.courses {
		out = append(out, clone(course))
	}
	return out
}

func (c *Catalog) Len() int { return len(c.courses) }

func validate(course models.Course) error {
	if course.ID == "" {
		return fmt.Errorf("course without id")
	}
	seen := map[string]bool{}
	for _, m := range course.Modules {
		if m.ID == "" {
			return fmt.Errorf("course %s: module without id", course.ID)
		}
		for _, l := range m.Lessons {
			if l.ID == "" {
				return fmt.Errorf("course %s module %s: lesson without id", course.ID, m.ID)
			}
			if seen[l.ID] {
				return fmt.Errorf("course %s: duplicate lesson id %q", course.ID, l.ID)
			}
			if l.DurationMinutes < 0 {
				return fmt.Errorf("course %s lesson %s: negative duration", course.ID, l.ID)
			}
			seen[l.ID] = true
		}
	}
	return nil
}

func clone(c models.Course) models.Course {
	out := c
	out.Modules = make([]models.Module, len(c.Modules))
	for i, m := range c.Modules {
		m.Lessons = append([]models.Lesson(nil), m.Lessons...)
		out.Modules[i] = m
	}
	return out
}
