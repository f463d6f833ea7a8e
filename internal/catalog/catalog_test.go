package catalog

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gorilla/mux"

	"github.com/medmentor/backend/internal/models"
)

func TestLoadSampleCatalog(t *testing.T) {
	c, err := LoadFile(filepath.Join("..", "..", "config", "courses.toml"))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	course, ok := c.Course("cardiologia-basica")
	if !ok {
		t.Fatal("cardiologia-basica missing")
	}
	if len(course.Modules) != 2 {
		t.Errorf("modules = %d, want 2", len(course.Modules))
	}
	l, ok := course.FindLesson("ecg-practice")
	if !ok || l.Type != models.LessonPractical || l.DurationMinutes != 30 {
		t.Errorf("ecg-practice = %+v, want practical 30min", l)
	}
}

func TestLoadFileMissing(t *testing.T) {
	c, err := LoadFile(filepath.Join(t.TempDir(), "none.toml"))
	if err != nil {
		t.Fatalf("LoadFile(missing): %v", err)
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
}

func TestNewValidates(t *testing.T) {
	lesson := func(id string, d int) models.Lesson { return models.Lesson{ID: id, DurationMinutes: d} }
	tests := []struct {
		name    string
		courses []models.Course
	}{
		{"missing id", []models.Course{{Title: "x"}}},
		{"duplicate course", []models.Course{{ID: "a"}, {ID: "a"}}},
		{"duplicate lesson", []models.Course{{ID: "a", Modules: []models.Module{
			{ID: "m1", Lessons: []models.Lesson{lesson("l1", 5)}},
			{ID: "m2", Lessons: []models.Lesson{lesson("l1", 5)}},
		}}}},
		{"negative duration", []models.Course{{ID: "a", Modules: []models.Module{
			{ID: "m1", Lessons: []models.Lesson{lesson("l1", -1)}},
		}}}},
	}
	for _, tt := range tests {
		if _, err := New(tt.courses); err == nil {
			t.Errorf("%s: New accepted invalid catalog", tt.name)
		}
	}
}

func TestCourseReturnsCopy(t *testing.T) {
	c, err := New([]models.Course{{ID: "a", Modules: []models.Module{
		{ID: "m1", Lessons: []models.Lesson{{ID: "l1", DurationMinutes: 5}}},
	}}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, _ := c.Course("a")
	got.Modules[0].Lessons[0].DurationMinutes = 99

	again, _ := c.Course("a")
	if again.Modules[0].Lessons[0].DurationMinutes != 5 {
		t.Error("editing a returned course changed the catalog")
	}
}

func TestHandler(t *testing.T) {
	c, _ := New([]models.Course{{ID: "a", Title: "A"}, {ID: "b", Title: "B"}})
	h := NewHandler(c)
	r := mux.NewRouter()
	r.HandleFunc("/courses", h.ListCourses).Methods("GET")
	r.HandleFunc("/courses/{courseID}", h.GetCourse).Methods("GET")

	tests := []struct {
		path string
		want int
	}{
		{"/courses", http.StatusOK},
		{"/courses/b", http.StatusOK},
		{"/courses/zzz", http.StatusNotFound},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if rec.Code != tt.want {
			t.Errorf("GET %s = %d, want %d", tt.path, rec.Code, tt.want)
		}
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/courses", nil))
	var list []models.Course
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil || len(list) != 2 {
		t.Errorf("list = %v, %v; want 2 courses", list, err)
	}
}
