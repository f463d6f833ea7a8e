package tracking

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/medmentor/backend/internal/auth"
	"github.com/medmentor/backend/internal/models"
	"github.com/medmentor/backend/internal/remote"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Register mounts the progress and sync routes on an authenticated router.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/progress", h.ListProgress).Methods("GET")
	r.HandleFunc("/progress/{courseID}", h.GetProgress).Methods("GET")
	r.HandleFunc("/progress/{courseID}", h.SaveProgress).Methods("PUT")
	r.HandleFunc("/progress/{courseID}/lessons/{lessonID}/complete", h.CompleteLesson).Methods("POST")
	r.HandleFunc("/progress/{courseID}/daily", h.UpdateDailyProgress).Methods("PUT")
	r.HandleFunc("/progress/{courseID}/daily-goal", h.SetDailyGoal).Methods("PUT")
	r.HandleFunc("/progress/{courseID}/estimate", h.GetEstimate).Methods("GET")
	r.HandleFunc("/progress/{courseID}/achievements", h.GetAchievementProgress).Methods("GET")
	r.HandleFunc("/progress/{courseID}/achievements/check", h.CheckAchievements).Methods("POST")
	r.HandleFunc("/progress/{courseID}/triggers/{kind}", h.Trigger).Methods("POST")

	r.HandleFunc("/achievements", h.ListEarned).Methods("GET")
	r.HandleFunc("/achievements/catalog", h.GetCatalog).Methods("GET")

	r.HandleFunc("/sync/status", h.GetSyncStatus).Methods("GET")
	r.HandleFunc("/sync/queue", h.GetQueue).Methods("GET")
	r.HandleFunc("/sync/drain", h.Drain).Methods("POST")
}

func getUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := auth.UserID(r.Context())
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return "", false
	}
	return userID, true
}

// ── Progress ────────────────────────────────────────────

func (h *Handler) ListProgress(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserID(w, r)
	if !ok {
		return
	}

	recs, err := h.service.ListProgress(r.Context(), userID)
	if err != nil {
		writeError(w, err, "Failed to list progress")
		return
	}

	writeJSON(w, http.StatusOK, recs)
}

func (h *Handler) GetProgress(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserID(w, r)
	if !ok {
		return
	}

	rec, err := h.service.LoadProgress(r.Context(), userID, mux.Vars(r)["courseID"])
	if err != nil {
		writeError(w, err, "Failed to load progress")
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) SaveProgress(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserID(w, r)
	if !ok {
		return
	}

	var req models.ProgressUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}
	req.UserID = userID
	req.CourseID = mux.Vars(r)["courseID"]

	resp, err := h.service.SaveProgress(r.Context(), req)
	if err != nil {
		writeError(w, err, "Failed to save progress")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) CompleteLesson(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserID(w, r)
	if !ok {
		return
	}

	vars := mux.Vars(r)
	resp, err := h.service.MarkLessonCompleted(r.Context(), userID, vars["courseID"], vars["lessonID"])
	if err != nil {
		writeError(w, err, "Failed to complete lesson")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) UpdateDailyProgress(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserID(w, r)
	if !ok {
		return
	}

	var req models.DailyProgressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}

	resp, err := h.service.UpdateDailyProgress(r.Context(), userID, mux.Vars(r)["courseID"], req)
	if err != nil {
		writeError(w, err, "Failed to update daily progress")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) SetDailyGoal(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserID(w, r)
	if !ok {
		return
	}

	var req models.SetDailyGoalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}

	rec, err := h.service.SetDailyGoal(r.Context(), userID, mux.Vars(r)["courseID"], req.Target)
	if err != nil {
		writeError(w, err, "Failed to set daily goal")
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) GetEstimate(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserID(w, r)
	if !ok {
		return
	}

	resp, err := h.service.EstimateTimeRemaining(r.Context(), userID, mux.Vars(r)["courseID"])
	if err != nil {
		writeError(w, err, "Failed to estimate remaining time")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// ── Achievements ────────────────────────────────────────

func (h *Handler) GetAchievementProgress(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserID(w, r)
	if !ok {
		return
	}

	statuses, err := h.service.AchievementProgress(r.Context(), userID, mux.Vars(r)["courseID"])
	if err != nil {
		writeError(w, err, "Failed to get achievements")
		return
	}

	writeJSON(w, http.StatusOK, statuses)
}

func (h *Handler) CheckAchievements(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserID(w, r)
	if !ok {
		return
	}

	resp, err := h.service.CheckAchievements(r.Context(), userID, mux.Vars(r)["courseID"])
	if err != nil {
		writeError(w, err, "Failed to check achievements")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Trigger handles late, early, speed and perfect-week. Speed expects a
// SpeedRequest body.
func (h *Handler) Trigger(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserID(w, r)
	if !ok {
		return
	}

	vars := mux.Vars(r)
	ctx, courseID := r.Context(), vars["courseID"]

	var (
		unlocked *models.UnlockedAchievement
		err      error
	)
	switch vars["kind"] {
	case "late":
		unlocked, err = h.service.TriggerLateStudy(ctx, userID, courseID)
	case "early":
		unlocked, err = h.service.TriggerEarlyStudy(ctx, userID, courseID)
	case "perfect-week":
		unlocked, err = h.service.TriggerPerfectWeek(ctx, userID, courseID)
	case "speed":
		var req models.SpeedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
			return
		}
		unlocked, err = h.service.TriggerSpeedAchievement(ctx, userID, courseID, req.Speed)
	default:
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "Unknown trigger"})
		return
	}
	if err != nil {
		writeError(w, err, "Failed to run trigger")
		return
	}

	unlockedList := []models.UnlockedAchievement{}
	if unlocked != nil {
		unlockedList = append(unlockedList, *unlocked)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"achievements_unlocked": unlockedList})
}

func (h *Handler) ListEarned(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserID(w, r)
	if !ok {
		return
	}

	earned, err := h.service.ListEarned(r.Context(), userID)
	switch {
	case errors.Is(err, ErrNoLedger):
		writeJSON(w, http.StatusNotImplemented, models.ErrorResponse{Error: err.Error()})
		return
	case remote.IsOffline(err):
		writeJSON(w, http.StatusServiceUnavailable, models.ErrorResponse{Error: "Achievement ledger unavailable offline"})
		return
	case err != nil:
		writeError(w, err, "Failed to list achievements")
		return
	}

	writeJSON(w, http.StatusOK, earned)
}

func (h *Handler) GetCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Catalog())
}

// ── Sync ────────────────────────────────────────────────

func (h *Handler) GetSyncStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserID(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, h.service.GetSyncStatus(userID))
}

func (h *Handler) GetQueue(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserID(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, h.service.PendingFor(userID))
}

// Drain retries the caller's own queued operations.
func (h *Handler) Drain(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserID(w, r)
	if !ok {
		return
	}

	res, err := h.service.DrainUser(r.Context(), userID)
	if err != nil {
		writeError(w, err, "Failed to drain queue")
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// writeError maps service errors to status codes. Anything unexpected is a 500
// with a generic message.
func writeError(w http.ResponseWriter, err error, fallback string) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: verr.Error()})
	case errors.Is(err, ErrUnknownCourse):
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "Course not found"})
	default:
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: fallback})
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
