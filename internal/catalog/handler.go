package catalog

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/medmentor/backend/internal/models"
)

type Handler struct {
	catalog *Catalog
}

func NewHandler(c *Catalog) *Handler {
	return &Handler{catalog: c}
}

// GET /api/v1/courses
func (h *Handler) ListCourses(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.catalog.All())
}

// GET /api/v1/courses/{courseID}
func (h *Handler) GetCourse(w http.ResponseWriter, r *http.Request) {
	course, ok := h.catalog.Course(mux.Vars(r)["courseID"])
	if !ok {
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "Course not found"})
		return
	}
	writeJSON(w, http.StatusOK, course)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
