package models

import "time"

// ── Core Progress Structs ─────────────────────────────────

// ProgressRecord is the per user × course study state. Streak is derived and
// recomputed on load; LongestStreak and TotalXP only ever grow.
type ProgressRecord struct {
	UserID                 string                    `json:"user_id"`
	CourseID               string                    `json:"course_id"`
	LessonsCompleted       []string                  `json:"lessons_completed"`
	ModulesCompleted       []string                  `json:"modules_completed"`
	TimeSpent              int                       `json:"time_spent"`
	Streak                 int                       `json:"streak"`
	LongestStreak          int                       `json:"longest_streak"`
	DailyGoal              int                       `json:"daily_goal"`
	DailyProgressHistory   []DailyProgress           `json:"daily_progress_history"`
	Achievements           []string                  `json:"achievements"`
	TotalXP                int                       `json:"total_xp"`
	Level                  int                       `json:"level"`
	NotesCount             int                       `json:"notes_count"`
	BookmarksCount         int                       `json:"bookmarks_count"`
	AverageSessionDuration int                       `json:"average_session_duration"`
	SessionCount           int                       `json:"session_count"`
	TotalSessionMinutes    int                       `json:"total_session_minutes"`
	PreferredSpeed         float64                   `json:"preferred_speed"`
	LessonPositions        map[string]LessonPosition `json:"lesson_positions,omitempty"`
	StartDate              time.Time                 `json:"start_date"`
	LastAccessed           time.Time                 `json:"last_accessed"`
	UpdatedAt              time.Time                 `json:"updated_at"`
}

// DailyProgress is one calendar day of study. Date is truncated to midnight.
type DailyProgress struct {
	Date                    time.Time `json:"date"`
	MinutesWatched          int       `json:"minutes_watched"`
	LessonsCompletedThatDay int       `json:"lessons_completed"`
	GoalMet                 bool      `json:"goal_met"`
	StudyStreak             bool      `json:"study_streak"`
}

// LessonPosition is the video resume point for a single lesson.
type LessonPosition struct {
	PositionSeconds int       `json:"position_seconds"`
	DurationSeconds int       `json:"duration_seconds"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// DefaultDailyGoal is the daily study target in minutes for new records.
const DefaultDailyGoal = 30

// NewProgressRecord returns the lazily created default record for a course.
func NewProgressRecord(userID, courseID string, dailyGoal int, now time.Time) *ProgressRecord {
	if dailyGoal <= 0 {
		dailyGoal = DefaultDailyGoal
	}
	return &ProgressRecord{
		UserID:               userID,
		CourseID:             courseID,
		LessonsCompleted:     []string{},
		ModulesCompleted:     []string{},
		DailyGoal:            dailyGoal,
		DailyProgressHistory: []DailyProgress{},
		Achievements:         []string{},
		Level:                1,
		PreferredSpeed:       1,
		LessonPositions:      map[string]LessonPosition{},
		StartDate:            now,
		LastAccessed:         now,
		UpdatedAt:            now,
	}
}

// HasLesson reports whether lessonID is in LessonsCompleted.
func (r *ProgressRecord) HasLesson(lessonID string) bool {
	return contains(r.LessonsCompleted, lessonID)
}

// HasModule reports whether moduleID is in ModulesCompleted.
func (r *ProgressRecord) HasModule(moduleID string) bool {
	return contains(r.ModulesCompleted, moduleID)
}

// HasAchievement reports whether the achievement was already unlocked.
func (r *ProgressRecord) HasAchievement(id string) bool {
	return contains(r.Achievements, id)
}

// Clone returns a deep copy so snapshots queued for sync are not mutated later.
func (r *ProgressRecord) Clone() *ProgressRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.LessonsCompleted = append([]string{}, r.LessonsCompleted...)
	c.ModulesCompleted = append([]string{}, r.ModulesCompleted...)
	c.Achievements = append([]string{}, r.Achievements...)
	c.DailyProgressHistory = append([]DailyProgress{}, r.DailyProgressHistory...)
	c.LessonPositions = make(map[string]LessonPosition, len(r.LessonPositions))
	for k, v := range r.LessonPositions {
		c.LessonPositions[k] = v
	}
	return &c
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// ── Offline Queue ─────────────────────────────────────────

type OperationType string

const (
	OpSaveProgress  OperationType = "save-progress"
	OpMarkCompleted OperationType = "mark-completed"
)

// OfflineOperation is a pending remote write. Record is a snapshot taken when
// the operation was queued.
type OfflineOperation struct {
	ID         string          `json:"id"`
	Type       OperationType   `json:"type"`
	Key        string          `json:"key"`
	Record     *ProgressRecord `json:"record"`
	CreatedAt  time.Time       `json:"created_at"`
	RetryCount int             `json:"retry_count"`
	LastError  string          `json:"last_error,omitempty"`
}

// EarnedAchievement is one row of the remote achievement ledger.
type EarnedAchievement struct {
	CourseID      string    `json:"course_id"`
	AchievementID string    `json:"achievement_id"`
	EarnedAt      time.Time `json:"earned_at"`
}

// SyncStatus is the read model behind the UI "syncing..." indicator.
type SyncStatus struct {
	IsOnline              bool       `json:"is_online"`
	PendingOperationCount int        `json:"pending_operation_count"`
	IsSyncing             bool       `json:"is_syncing"`
	DroppedOperationCount int        `json:"dropped_operation_count"`
	LastSyncAt            *time.Time `json:"last_sync_at,omitempty"`
	LastError             string     `json:"last_error,omitempty"`
}
