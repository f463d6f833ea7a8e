package models

import "time"

// ── Achievement Catalog ───────────────────────────────────

type RequirementType string

const (
	ReqLessonsCompleted RequirementType = "lessons_completed"
	ReqStreakDays       RequirementType = "streak_days"
	ReqNotesTaken       RequirementType = "notes_taken"
	ReqContinuousStudy  RequirementType = "continuous_study"
	ReqModuleComplete   RequirementType = "module_complete"
	ReqCourseComplete   RequirementType = "course_complete"

	// Event-driven requirements, only unlocked through trigger operations.
	ReqLateStudy     RequirementType = "late_study"
	ReqEarlyStudy    RequirementType = "early_study"
	ReqSpeedLearning RequirementType = "speed_learning"
	ReqPerfectWeek   RequirementType = "perfect_week"
)

// EventDriven reports whether the requirement depends on event-time context
// and is therefore skipped by the catalog scan.
func (t RequirementType) EventDriven() bool {
	switch t {
	case ReqLateStudy, ReqEarlyStudy, ReqSpeedLearning, ReqPerfectWeek:
		return true
	}
	return false
}

type Requirement struct {
	Type   RequirementType `json:"type"`
	Target int             `json:"target"`
}

type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

// Achievement is static catalog data, never per-user state.
type Achievement struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Icon        string      `json:"icon"`
	Category    string      `json:"category"`
	Rarity      Rarity      `json:"rarity"`
	Points      int         `json:"points"`
	Requirement Requirement `json:"requirement"`
}

// UnlockedAchievement is the per-user fact of having earned an achievement.
type UnlockedAchievement struct {
	Achievement
	UnlockedAt time.Time `json:"unlocked_at"`
}

// AchievementStatus is a transient view of how close a user is to an
// achievement. It is computed per call and never written back to the catalog.
type AchievementStatus struct {
	Achievement
	Current   int  `json:"current"`
	Unlocked  bool `json:"unlocked"`
	Evaluable bool `json:"evaluable"`
}

// ── Request Types ─────────────────────────────────────────

// ProgressUpdate is one UI event: minutes watched, a completion, a speed change.
type ProgressUpdate struct {
	UserID          string  `json:"user_id"`
	CourseID        string  `json:"course_id"`
	LessonID        string  `json:"lesson_id"`
	MinutesWatched  int     `json:"minutes_watched"`
	PositionSeconds int     `json:"position_seconds"`
	DurationSeconds int     `json:"duration_seconds"`
	Completed       bool    `json:"completed"`
	PlaybackSpeed   float64 `json:"playback_speed,omitempty"`
	SessionMinutes  int     `json:"session_minutes,omitempty"`
	NotesAdded      int     `json:"notes_added,omitempty"`
	BookmarksAdded  int     `json:"bookmarks_added,omitempty"`
}

type DailyProgressRequest struct {
	MinutesWatched   int `json:"minutes_watched"`
	LessonsCompleted int `json:"lessons_completed"`
}

type SetDailyGoalRequest struct {
	Target int `json:"target"`
}

type SpeedRequest struct {
	Speed float64 `json:"speed"`
}

// ── Response Types ────────────────────────────────────────

type SaveProgressResponse struct {
	Record               *ProgressRecord       `json:"record"`
	AchievementsUnlocked []UnlockedAchievement `json:"achievements_unlocked"`
	Queued               bool                  `json:"queued"`
}

type LessonCompleteResponse struct {
	Record               *ProgressRecord       `json:"record"`
	XPAwarded            int                   `json:"xp_awarded"`
	ModulesCompleted     []string              `json:"modules_completed"`
	AchievementsUnlocked []UnlockedAchievement `json:"achievements_unlocked"`
}

type AchievementsResponse struct {
	Unlocked []UnlockedAchievement `json:"unlocked"`
	TotalXP  int                   `json:"total_xp"`
	Level    int                   `json:"level"`
}

type EstimateResponse struct {
	RemainingMinutes int    `json:"remaining_minutes"`
	AdjustedMinutes  int    `json:"adjusted_minutes"`
	Sessions         int    `json:"sessions,omitempty"`
	Complete         bool   `json:"complete"`
	Text             string `json:"text"`
}

type DrainResponse struct {
	Attempted int  `json:"attempted"`
	Synced    int  `json:"synced"`
	Retried   int  `json:"retried"`
	Dropped   int  `json:"dropped"`
	Deferred  int  `json:"deferred"`
	Skipped   bool `json:"skipped"`
}
