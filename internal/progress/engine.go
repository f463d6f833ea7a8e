// Package progress derives streaks, achievements, XP and levels from a
// ProgressRecord. It does no I/O; the only outside input is the clock.
package progress

import (
	"sort"

	"github.com/medmentor/backend/internal/clock"
	"github.com/medmentor/backend/internal/models"
)

// DefaultHistoryCap is how many distinct days of DailyProgress are kept.
const DefaultHistoryCap = 90

type Engine struct {
	catalog    *Catalog
	clock      clock.Clock
	historyCap int
}

func NewEngine(catalog *Catalog, clk clock.Clock, historyCap int) *Engine {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	if clk == nil {
		clk = clock.System{}
	}
	if historyCap <= 0 {
		historyCap = DefaultHistoryCap
	}
	return &Engine{catalog: catalog, clock: clk, historyCap: historyCap}
}

func (e *Engine) Catalog() *Catalog { return e.catalog }

// ── Achievements ────────────────────────────────────────

// CheckAchievements unlocks every scan-evaluable achievement the record now
// qualifies for. Running it again on an unchanged record returns nothing.
func (e *Engine) CheckAchievements(rec *models.ProgressRecord, course *models.Course) []models.UnlockedAchievement {
	unlocked := []models.UnlockedAchievement{}
	now := e.clock.Now()

	for _, a := range e.catalog.All() {
		if a.Requirement.Type.EventDriven() || rec.HasAchievement(a.ID) {
			continue
		}
		current, ok := currentValue(rec, a.Requirement, course)
		if !ok || current < a.Requirement.Target {
			continue
		}
		if e.unlock(rec, a) {
			unlocked = append(unlocked, models.UnlockedAchievement{Achievement: a, UnlockedAt: now})
		}
	}
	return unlocked
}

// AchievementProgress reports current/target for the whole catalog without
// touching the record or the catalog.
func (e *Engine) AchievementProgress(rec *models.ProgressRecord, course *models.Course) []models.AchievementStatus {
	all := e.catalog.All()
	out := make([]models.AchievementStatus, 0, len(all))
	for _, a := range all {
		st := models.AchievementStatus{Achievement: a, Unlocked: rec.HasAchievement(a.ID)}
		if !a.Requirement.Type.EventDriven() {
			st.Current, st.Evaluable = currentValue(rec, a.Requirement, course)
		}
		if st.Unlocked && st.Current < a.Requirement.Target {
			st.Current = a.Requirement.Target
		}
		out = append(out, st)
	}
	return out
}

// unlock appends the id and awards its points once.
func (e *Engine) unlock(rec *models.ProgressRecord, a models.Achievement) bool {
	if rec.HasAchievement(a.ID) {
		return false
	}
	rec.Achievements = append(rec.Achievements, a.ID)
	awardXP(rec, a.Points)
	return true
}

func (e *Engine) unlockByID(rec *models.ProgressRecord, id string) *models.UnlockedAchievement {
	a, ok := e.catalog.ByID(id)
	if !ok {
		return nil
	}
	if !e.unlock(rec, a) {
		return nil
	}
	return &models.UnlockedAchievement{Achievement: a, UnlockedAt: e.clock.Now()}
}

// ── Triggers ────────────────────────────────────────────

// TriggerLateStudy unlocks the night study achievement. The caller has
// already decided that now is inside the late window.
func (e *Engine) TriggerLateStudy(rec *models.ProgressRecord) *models.UnlockedAchievement {
	return e.unlockByID(rec, AchLateStudy)
}

// TriggerEarlyStudy unlocks the early morning achievement.
func (e *Engine) TriggerEarlyStudy(rec *models.ProgressRecord) *models.UnlockedAchievement {
	return e.unlockByID(rec, AchEarlyStudy)
}

// TriggerSpeedAchievement unlocks the speed achievement when speed >= 2.0.
func (e *Engine) TriggerSpeedAchievement(rec *models.ProgressRecord, speed float64) *models.UnlockedAchievement {
	if speed < SpeedThreshold {
		return nil
	}
	return e.unlockByID(rec, AchSpeed)
}

// TriggerPerfectWeek unlocks when the 7 most recent days on record all met
// the goal. Fewer than 7 recorded days never qualifies.
func (e *Engine) TriggerPerfectWeek(rec *models.ProgressRecord) *models.UnlockedAchievement {
	h := sortedHistory(rec.DailyProgressHistory)
	if len(h) < 7 {
		return nil
	}
	for _, d := range h[len(h)-7:] {
		if !d.GoalMet {
			return nil
		}
	}
	return e.unlockByID(rec, AchPerfectWeek)
}

// ── Lessons ─────────────────────────────────────────────

// LessonResult describes what a completion changed.
type LessonResult struct {
	AlreadyCompleted bool
	XPAwarded        int
	ModulesCompleted []string
}

// MarkLessonCompleted records a completion, derives finished modules and
// awards lesson XP. Completing the same lesson twice is a no-op.
func (e *Engine) MarkLessonCompleted(rec *models.ProgressRecord, lessonID string, course *models.Course) LessonResult {
	if lessonID == "" || rec.HasLesson(lessonID) {
		return LessonResult{AlreadyCompleted: lessonID != ""}
	}
	rec.LessonsCompleted = append(rec.LessonsCompleted, lessonID)

	res := LessonResult{ModulesCompleted: []string{}}
	if course != nil {
		for _, m := range course.Modules {
			if len(m.Lessons) == 0 || rec.HasModule(m.ID) {
				continue
			}
			done := true
			for _, l := range m.Lessons {
				if !rec.HasLesson(l.ID) {
					done = false
					break
				}
			}
			if done {
				rec.ModulesCompleted = append(rec.ModulesCompleted, m.ID)
				res.ModulesCompleted = append(res.ModulesCompleted, m.ID)
			}
		}
	}

	if lesson, ok := course.FindLesson(lessonID); ok {
		res.XPAwarded = LessonXP(lesson)
	}
	awardXP(rec, res.XPAwarded)
	return res
}

// ── Daily Progress ──────────────────────────────────────

// UpdateDailyProgress upserts today's entry, trims history to the cap and
// refreshes the streak counters.
func (e *Engine) UpdateDailyProgress(rec *models.ProgressRecord, minutesWatchedToday, lessonsCompletedToday int) {
	if minutesWatchedToday < 0 {
		minutesWatchedToday = 0
	}
	if lessonsCompletedToday < 0 {
		lessonsCompletedToday = 0
	}
	today := Truncate(e.clock.Now())
	entry := models.DailyProgress{
		Date:                    today,
		MinutesWatched:          minutesWatchedToday,
		LessonsCompletedThatDay: lessonsCompletedToday,
		GoalMet:                 minutesWatchedToday >= rec.DailyGoal,
		StudyStreak:             minutesWatchedToday > 0,
	}

	replaced := false
	for i := range rec.DailyProgressHistory {
		if SameDay(today, rec.DailyProgressHistory[i].Date) {
			rec.DailyProgressHistory[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		rec.DailyProgressHistory = append(rec.DailyProgressHistory, entry)
	}

	h := sortedHistory(rec.DailyProgressHistory)
	if len(h) > e.historyCap {
		h = h[len(h)-e.historyCap:]
	}
	rec.DailyProgressHistory = h

	e.RefreshStreak(rec)
}

// Today returns today's entry, or a zero entry dated today.
func (e *Engine) Today(rec *models.ProgressRecord) models.DailyProgress {
	today := Truncate(e.clock.Now())
	for _, d := range rec.DailyProgressHistory {
		if SameDay(today, d.Date) {
			return d
		}
	}
	return models.DailyProgress{Date: today}
}

// RefreshStreak recomputes the streak from history and raises the high-water mark.
func (e *Engine) RefreshStreak(rec *models.ProgressRecord) {
	rec.Streak = RecomputeStreak(rec.DailyProgressHistory, e.clock.Now())
	if rec.Streak > rec.LongestStreak {
		rec.LongestStreak = rec.Streak
	}
	rec.Level = Level(rec.TotalXP)
}

func sortedHistory(h []models.DailyProgress) []models.DailyProgress {
	out := append([]models.DailyProgress{}, h...)
	sort.SliceStable(out, func(i, j int) bool {
		return DayNumber(out[i].Date) < DayNumber(out[j].Date)
	})
	return out
}
