package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/medmentor/backend/internal/models"
)

const (
	dayLayout     = "2006-01-02"
	instantLayout = time.RFC3339Nano
)

// Codec owns date handling for persisted records. Calendar days are stored as
// bare "YYYY-MM-DD" labels and come back as midnight in Location; instants are
// RFC3339 and keep their offset.
type Codec struct {
	Location *time.Location
}

func (c Codec) loc() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

type dailyWire struct {
	Date             string `json:"date"`
	MinutesWatched   int    `json:"minutes_watched"`
	LessonsCompleted int    `json:"lessons_completed"`
	GoalMet          bool   `json:"goal_met"`
	StudyStreak      bool   `json:"study_streak"`
}

type positionWire struct {
	PositionSeconds int    `json:"position_seconds"`
	DurationSeconds int    `json:"duration_seconds"`
	UpdatedAt       string `json:"updated_at,omitempty"`
}

type recordWire struct {
	UserID                 string                  `json:"user_id"`
	CourseID               string                  `json:"course_id"`
	LessonsCompleted       []string                `json:"lessons_completed"`
	ModulesCompleted       []string                `json:"modules_completed"`
	TimeSpent              int                     `json:"time_spent"`
	Streak                 int                     `json:"streak"`
	LongestStreak          int                     `json:"longest_streak"`
	DailyGoal              int                     `json:"daily_goal"`
	DailyProgressHistory   []dailyWire             `json:"daily_progress_history"`
	Achievements           []string                `json:"achievements"`
	TotalXP                int                     `json:"total_xp"`
	Level                  int                     `json:"level"`
	NotesCount             int                     `json:"notes_count"`
	BookmarksCount         int                     `json:"bookmarks_count"`
	AverageSessionDuration int                     `json:"average_session_duration"`
	SessionCount           int                     `json:"session_count"`
	TotalSessionMinutes    int                     `json:"total_session_minutes"`
	PreferredSpeed         float64                 `json:"preferred_speed"`
	LessonPositions        map[string]positionWire `json:"lesson_positions,omitempty"`
	StartDate              string                  `json:"start_date,omitempty"`
	LastAccessed           string                  `json:"last_accessed,omitempty"`
	UpdatedAt              string                  `json:"updated_at,omitempty"`
}

type operationWire struct {
	ID         string      `json:"id"`
	Type       string      `json:"type"`
	Key        string      `json:"key"`
	Record     *recordWire `json:"record"`
	CreatedAt  string      `json:"created_at"`
	RetryCount int         `json:"retry_count"`
	LastError  string      `json:"last_error,omitempty"`
}

// ── Progress records ────────────────────────────────────

func (c Codec) EncodeProgress(rec *models.ProgressRecord) ([]byte, error) {
	if rec == nil {
		return nil, fmt.Errorf("encode progress: nil record")
	}
	b, err := json.Marshal(c.toWire(rec))
	if err != nil {
		return nil, fmt.Errorf("encode progress: %w", err)
	}
	return b, nil
}

func (c Codec) DecodeProgress(data []byte) (*models.ProgressRecord, error) {
	var w recordWire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode progress: %w", err)
	}
	rec, err := c.fromWire(&w)
	if err != nil {
		return nil, fmt.Errorf("decode progress: %w", err)
	}
	return rec, nil
}

// ── Offline queue ───────────────────────────────────────

func (c Codec) EncodeQueue(ops []models.OfflineOperation) ([]byte, error) {
	out := make([]operationWire, 0, len(ops))
	for _, op := range ops {
		w := operationWire{
			ID:         op.ID,
			Type:       string(op.Type),
			Key:        op.Key,
			CreatedAt:  formatInstant(op.CreatedAt),
			RetryCount: op.RetryCount,
			LastError:  op.LastError,
		}
		if op.Record != nil {
			w.Record = c.toWire(op.Record)
		}
		out = append(out, w)
	}
	b, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode queue: %w", err)
	}
	return b, nil
}

func (c Codec) DecodeQueue(data []byte) ([]models.OfflineOperation, error) {
	var in []operationWire
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("decode queue: %w", err)
	}
	ops := make([]models.OfflineOperation, 0, len(in))
	for _, w := range in {
		created, err := parseInstant(w.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("decode queue op %s: %w", w.ID, err)
		}
		op := models.OfflineOperation{
			ID:         w.ID,
			Type:       models.OperationType(w.Type),
			Key:        w.Key,
			CreatedAt:  created,
			RetryCount: w.RetryCount,
			LastError:  w.LastError,
		}
		if w.Record != nil {
			if op.Record, err = c.fromWire(w.Record); err != nil {
				return nil, fmt.Errorf("decode queue op %s: %w", w.ID, err)
			}
		}
		ops = append(ops, op)
	}
	return ops, nil
}

// ── Typed helpers ───────────────────────────────────────

// LoadProgress reads and decodes a record; ErrNotFound passes through.
func LoadProgress(ctx context.Context, s Store, c Codec, key string) (*models.ProgressRecord, error) {
	data, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return c.DecodeProgress(data)
}

func SaveProgress(ctx context.Context, s Store, c Codec, key string, rec *models.ProgressRecord) error {
	data, err := c.EncodeProgress(rec)
	if err != nil {
		return err
	}
	return s.Put(ctx, key, data)
}

// LoadQueue returns the persisted queue, empty when nothing was saved yet.
func LoadQueue(ctx context.Context, s Store, c Codec) ([]models.OfflineOperation, error) {
	data, err := s.Get(ctx, QueueKey)
	if errors.Is(err, ErrNotFound) {
		return []models.OfflineOperation{}, nil
	}
	if err != nil {
		return nil, err
	}
	return c.DecodeQueue(data)
}

// SaveQueue writes the queue back. An empty queue removes the key.
func SaveQueue(ctx context.Context, s Store, c Codec, ops []models.OfflineOperation) error {
	if len(ops) == 0 {
		return s.Delete(ctx, QueueKey)
	}
	data, err := c.EncodeQueue(ops)
	if err != nil {
		return err
	}
	return s.Put(ctx, QueueKey, data)
}

// ── Wire conversion ─────────────────────────────────────

func (c Codec) toWire(r *models.ProgressRecord) *recordWire {
	w := &recordWire{
		UserID:                 r.UserID,
		CourseID:               r.CourseID,
		LessonsCompleted:       r.LessonsCompleted,
		ModulesCompleted:       r.ModulesCompleted,
		TimeSpent:              r.TimeSpent,
		Streak:                 r.Streak,
		LongestStreak:          r.LongestStreak,
		DailyGoal:              r.DailyGoal,
		DailyProgressHistory:   make([]dailyWire, 0, len(r.DailyProgressHistory)),
		Achievements:           r.Achievements,
		TotalXP:                r.TotalXP,
		Level:                  r.Level,
		NotesCount:             r.NotesCount,
		BookmarksCount:         r.BookmarksCount,
		AverageSessionDuration: r.AverageSessionDuration,
		SessionCount:           r.SessionCount,
		TotalSessionMinutes:    r.TotalSessionMinutes,
		PreferredSpeed:         r.PreferredSpeed,
		StartDate:              formatInstant(r.StartDate),
		LastAccessed:           formatInstant(r.LastAccessed),
		UpdatedAt:              formatInstant(r.UpdatedAt),
	}
	for _, d := range r.DailyProgressHistory {
		w.DailyProgressHistory = append(w.DailyProgressHistory, dailyWire{
			Date:             d.Date.Format(dayLayout),
			MinutesWatched:   d.MinutesWatched,
			LessonsCompleted: d.LessonsCompletedThatDay,
			GoalMet:          d.GoalMet,
			StudyStreak:      d.StudyStreak,
		})
	}
	if len(r.LessonPositions) > 0 {
		w.LessonPositions = make(map[string]positionWire, len(r.LessonPositions))
		for id, p := range r.LessonPositions {
			w.LessonPositions[id] = positionWire{
				PositionSeconds: p.PositionSeconds,
				DurationSeconds: p.DurationSeconds,
				UpdatedAt:       formatInstant(p.UpdatedAt),
			}
		}
	}
	return w
}

func (c Codec) fromWire(w *recordWire) (*models.ProgressRecord, error) {
	r := &models.ProgressRecord{
		UserID:                 w.UserID,
		CourseID:               w.CourseID,
		LessonsCompleted:       nonNil(w.LessonsCompleted),
		ModulesCompleted:       nonNil(w.ModulesCompleted),
		TimeSpent:              w.TimeSpent,
		Streak:                 w.Streak,
		LongestStreak:          w.LongestStreak,
		DailyGoal:              w.DailyGoal,
		DailyProgressHistory:   make([]models.DailyProgress, 0, len(w.DailyProgressHistory)),
		Achievements:           nonNil(w.Achievements),
		TotalXP:                w.TotalXP,
		Level:                  w.Level,
		NotesCount:             w.NotesCount,
		BookmarksCount:         w.BookmarksCount,
		AverageSessionDuration: w.AverageSessionDuration,
		SessionCount:           w.SessionCount,
		TotalSessionMinutes:    w.TotalSessionMinutes,
		PreferredSpeed:         w.PreferredSpeed,
		LessonPositions:        make(map[string]models.LessonPosition, len(w.LessonPositions)),
	}

	var err error
	if r.StartDate, err = parseInstant(w.StartDate); err != nil {
		return nil, fmt.Errorf("start_date: %w", err)
	}
	if r.LastAccessed, err = parseInstant(w.LastAccessed); err != nil {
		return nil, fmt.Errorf("last_accessed: %w", err)
	}
	if r.UpdatedAt, err = parseInstant(w.UpdatedAt); err != nil {
		return nil, fmt.Errorf("updated_at: %w", err)
	}

	for _, d := range w.DailyProgressHistory {
		date, err := time.ParseInLocation(dayLayout, d.Date, c.loc())
		if err != nil {
			return nil, fmt.Errorf("daily date %q: %w", d.Date, err)
		}
		r.DailyProgressHistory = append(r.DailyProgressHistory, models.DailyProgress{
			Date:                    date,
			MinutesWatched:          d.MinutesWatched,
			LessonsCompletedThatDay: d.LessonsCompleted,
			GoalMet:                 d.GoalMet,
			StudyStreak:             d.StudyStreak,
		})
	}
	for id, p := range w.LessonPositions {
		updated, err := parseInstant(p.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("lesson %s position: %w", id, err)
		}
		r.LessonPositions[id] = models.LessonPosition{
			PositionSeconds: p.PositionSeconds,
			DurationSeconds: p.DurationSeconds,
			UpdatedAt:       updated,
		}
	}
	return r, nil
}

func formatInstant(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(instantLayout)
}

func parseInstant(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(instantLayout, s)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
