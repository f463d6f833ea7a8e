package progress

import (
	"testing"
	"time"

	"github.com/medmentor/backend/internal/clock"
	"github.com/medmentor/backend/internal/models"
)

func testCourse() *models.Course {
	return &models.Course{
		ID:    "cardio",
		Title: "Cardiology",
		Modules: []models.Module{
			{ID: "m1", Lessons: []models.Lesson{
				{ID: "l1", Type: models.LessonVideo, DurationMinutes: 10},
				{ID: "l2", Type: models.LessonPractical, DurationMinutes: 20},
			}},
			{ID: "m2", Lessons: []models.Lesson{
				{ID: "l3", Type: models.LessonReading, DurationMinutes: 15},
			}},
		},
	}
}

func newTestEngine() (*Engine, *clock.Fixed) {
	clk := clock.NewFixed(testToday)
	return NewEngine(nil, clk, 0), clk
}

func newTestRecord() *models.ProgressRecord {
	return models.NewProgressRecord("u1", "cardio", 30, testToday)
}

func TestCheckAchievementsIdempotent(t *testing.T) {
	e, _ := newTestEngine()
	rec := newTestRecord()
	rec.LessonsCompleted = []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}
	rec.NotesCount = 12

	first := e.CheckAchievements(rec, nil)
	if len(first) != 3 {
		t.Fatalf("first check unlocked %d achievements, want 3 (primeira-aula, dez-aulas, anotador)", len(first))
	}
	if rec.TotalXP != 10+50+40 {
		t.Errorf("TotalXP = %d, want 100", rec.TotalXP)
	}
	if rec.Level != 2 {
		t.Errorf("Level = %d, want 2", rec.Level)
	}

	xp := rec.TotalXP
	second := e.CheckAchievements(rec, nil)
	if len(second) != 0 {
		t.Errorf("second check unlocked %d achievements, want 0", len(second))
	}
	if second == nil {
		t.Error("second check returned nil, want empty slice")
	}
	if rec.TotalXP != xp {
		t.Errorf("TotalXP changed on second check: %d -> %d", xp, rec.TotalXP)
	}
}

func TestCheckAchievementsSkipsEventDriven(t *testing.T) {
	e, _ := newTestEngine()
	rec := newTestRecord()
	for i := 0; i < 7; i++ {
		rec.DailyProgressHistory = append(rec.DailyProgressHistory, day(i, true))
		rec.DailyProgressHistory[i].GoalMet = true
	}

	for _, u := range e.CheckAchievements(rec, nil) {
		if u.Requirement.Type.EventDriven() {
			t.Errorf("scan unlocked event-driven achievement %q", u.ID)
		}
	}
	for _, id := range []string{AchLateStudy, AchEarlyStudy, AchSpeed, AchPerfectWeek} {
		if rec.HasAchievement(id) {
			t.Errorf("scan unlocked %q", id)
		}
	}
}

func TestCheckAchievementsCourseComplete(t *testing.T) {
	e, _ := newTestEngine()
	course := testCourse()

	rec := newTestRecord()
	rec.LessonsCompleted = []string{"l1", "l2", "l3"}

	// No course structure means course_complete cannot be evaluated.
	e.CheckAchievements(rec, nil)
	if rec.HasAchievement("curso-completo") {
		t.Fatal("curso-completo unlocked without a course structure")
	}

	e.CheckAchievements(rec, course)
	if !rec.HasAchievement("curso-completo") {
		t.Error("curso-completo not unlocked with every lesson done")
	}

	partial := newTestRecord()
	partial.LessonsCompleted = []string{"l1", "l3"}
	e.CheckAchievements(partial, course)
	if partial.HasAchievement("curso-completo") {
		t.Error("curso-completo unlocked with l2 missing")
	}
}

func TestAchievementProgressLeavesCatalogUntouched(t *testing.T) {
	e, _ := newTestEngine()
	before := e.Catalog().All()

	rec := newTestRecord()
	rec.LessonsCompleted = []string{"l1", "l2", "l3", "l4"}
	statuses := e.AchievementProgress(rec, nil)

	if len(statuses) != len(before) {
		t.Fatalf("got %d statuses, want %d", len(statuses), len(before))
	}
	for _, st := range statuses {
		if st.ID == "dez-aulas" && st.Current != 4 {
			t.Errorf("dez-aulas current = %d, want 4", st.Current)
		}
		if st.Unlocked {
			t.Errorf("%q reported unlocked on a fresh record", st.ID)
		}
	}
	if len(rec.Achievements) != 0 || rec.TotalXP != 0 {
		t.Errorf("AchievementProgress mutated the record: %v, xp %d", rec.Achievements, rec.TotalXP)
	}

	statuses[0].Title = "changed"
	if a, _ := e.Catalog().ByID(before[0].ID); a.Title != before[0].Title {
		t.Errorf("catalog entry mutated through a status: %q", a.Title)
	}
}

func TestNewCatalogDropsDuplicates(t *testing.T) {
	c := NewCatalog([]models.Achievement{
		{ID: "a", Points: 1},
		{ID: "a", Points: 2},
		{ID: "", Points: 3},
		{ID: "b", Points: 4},
	})
	if got := len(c.All()); got != 2 {
		t.Fatalf("len(All()) = %d, want 2", got)
	}
	if a, _ := c.ByID("a"); a.Points != 1 {
		t.Errorf("ByID(a).Points = %d, want 1", a.Points)
	}
}

func TestTriggerSpeedAchievement(t *testing.T) {
	tests := []struct {
		speed float64
		want  bool
	}{
		{1.0, false},
		{1.75, false},
		{2.0, true},
		{2.5, true},
	}

	for _, tt := range tests {
		e, _ := newTestEngine()
		rec := newTestRecord()
		got := e.TriggerSpeedAchievement(rec, tt.speed) != nil
		if got != tt.want {
			t.Errorf("TriggerSpeedAchievement(%v) unlocked = %v, want %v", tt.speed, got, tt.want)
		}
	}
}

func TestTriggersAwardOnce(t *testing.T) {
	e, _ := newTestEngine()
	rec := newTestRecord()

	if u := e.TriggerLateStudy(rec); u == nil || u.ID != AchLateStudy {
		t.Fatalf("TriggerLateStudy = %v, want %s", u, AchLateStudy)
	}
	if rec.TotalXP != 25 {
		t.Errorf("TotalXP = %d, want 25", rec.TotalXP)
	}
	if u := e.TriggerLateStudy(rec); u != nil {
		t.Errorf("second TriggerLateStudy = %v, want nil", u)
	}
	if rec.TotalXP != 25 {
		t.Errorf("TotalXP after repeat = %d, want 25", rec.TotalXP)
	}

	if u := e.TriggerEarlyStudy(rec); u == nil || !u.UnlockedAt.Equal(testToday) {
		t.Errorf("TriggerEarlyStudy = %v, want unlock at %v", u, testToday)
	}
}

func TestTriggerPerfectWeek(t *testing.T) {
	week := func(n int, missOldest bool) []models.DailyProgress {
		var h []models.DailyProgress
		for i := 0; i < n; i++ {
			d := day(i, true)
			d.GoalMet = !(missOldest && i == n-1)
			h = append(h, d)
		}
		return h
	}

	tests := []struct {
		name    string
		history []models.DailyProgress
		want    bool
	}{
		{"six days", week(6, false), false},
		{"seven days", week(7, false), true},
		{"seven days one missed", week(7, true), false},
		{"eight days oldest missed", week(8, true), true},
	}

	for _, tt := range tests {
		e, _ := newTestEngine()
		rec := newTestRecord()
		rec.DailyProgressHistory = tt.history
		got := e.TriggerPerfectWeek(rec) != nil
		if got != tt.want {
			t.Errorf("%s: TriggerPerfectWeek unlocked = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestPerfectWeekThroughDailyUpdates(t *testing.T) {
	e, clk := newTestEngine()
	rec := newTestRecord()

	for i := 0; i < 6; i++ {
		e.UpdateDailyProgress(rec, 45, 1)
		clk.Advance(24 * time.Hour)
	}
	if u := e.TriggerPerfectWeek(rec); u != nil {
		t.Fatal("perfect week unlocked after six days")
	}

	e.UpdateDailyProgress(rec, 45, 1)
	if u := e.TriggerPerfectWeek(rec); u == nil || u.ID != AchPerfectWeek {
		t.Fatalf("perfect week not unlocked after seven days: %v", u)
	}
	if rec.Streak != 7 {
		t.Errorf("Streak = %d, want 7", rec.Streak)
	}
}

func TestMarkLessonCompletedDerivesModules(t *testing.T) {
	e, _ := newTestEngine()
	course := testCourse()
	rec := newTestRecord()

	res := e.MarkLessonCompleted(rec, "l1", course)
	if len(rec.ModulesCompleted) != 0 {
		t.Fatalf("ModulesCompleted = %v after l1, want none", rec.ModulesCompleted)
	}
	if res.XPAwarded != 20 {
		t.Errorf("l1 XP = %d, want 20", res.XPAwarded)
	}

	res = e.MarkLessonCompleted(rec, "l2", course)
	if len(res.ModulesCompleted) != 1 || res.ModulesCompleted[0] != "m1" {
		t.Errorf("l2 completed modules = %v, want [m1]", res.ModulesCompleted)
	}
	if res.XPAwarded != 60 {
		t.Errorf("l2 XP = %d, want 60", res.XPAwarded)
	}

	xp := rec.TotalXP
	res = e.MarkLessonCompleted(rec, "l2", course)
	if !res.AlreadyCompleted || res.XPAwarded != 0 {
		t.Errorf("repeat completion = %+v, want AlreadyCompleted with no XP", res)
	}
	if len(rec.ModulesCompleted) != 1 {
		t.Errorf("ModulesCompleted = %v after repeat, want [m1]", rec.ModulesCompleted)
	}
	if len(rec.LessonsCompleted) != 2 {
		t.Errorf("LessonsCompleted = %v, want 2 entries", rec.LessonsCompleted)
	}
	if rec.TotalXP != xp {
		t.Errorf("TotalXP changed on repeat: %d -> %d", xp, rec.TotalXP)
	}
}

func TestMarkLessonCompletedUnknownLesson(t *testing.T) {
	e, _ := newTestEngine()
	rec := newTestRecord()

	res := e.MarkLessonCompleted(rec, "ghost", testCourse())
	if res.XPAwarded != 0 {
		t.Errorf("unknown lesson XP = %d, want 0", res.XPAwarded)
	}
	if !rec.HasLesson("ghost") {
		t.Error("unknown lesson not recorded as completed")
	}
	if rec.Level != 1 {
		t.Errorf("Level = %d, want 1", rec.Level)
	}
}

func TestUpdateDailyProgressReplacesSameDay(t *testing.T) {
	e, clk := newTestEngine()
	rec := newTestRecord()

	e.UpdateDailyProgress(rec, 10, 0)
	clk.Advance(2 * time.Hour)
	e.UpdateDailyProgress(rec, 35, 2)

	if len(rec.DailyProgressHistory) != 1 {
		t.Fatalf("history has %d entries, want 1", len(rec.DailyProgressHistory))
	}
	got := rec.DailyProgressHistory[0]
	if got.MinutesWatched != 35 || got.LessonsCompletedThatDay != 2 || !got.GoalMet || !got.StudyStreak {
		t.Errorf("today = %+v, want 35 minutes, 2 lessons, goal met", got)
	}
	if !got.Date.Equal(Truncate(testToday)) {
		t.Errorf("today date = %v, want midnight", got.Date)
	}
}

func TestUpdateDailyProgressClampsNegatives(t *testing.T) {
	e, _ := newTestEngine()
	rec := newTestRecord()

	e.UpdateDailyProgress(rec, -20, -1)
	got := e.Today(rec)
	if got.MinutesWatched != 0 || got.LessonsCompletedThatDay != 0 || got.StudyStreak {
		t.Errorf("today = %+v, want zeroed entry", got)
	}
	if rec.Streak != 0 {
		t.Errorf("Streak = %d, want 0", rec.Streak)
	}
}

func TestUpdateDailyProgressCapsHistory(t *testing.T) {
	e, clk := newTestEngine()
	rec := newTestRecord()
	start := Truncate(clk.Now())

	for i := 0; i < 95; i++ {
		e.UpdateDailyProgress(rec, 5, 0)
		clk.Advance(24 * time.Hour)
	}

	h := rec.DailyProgressHistory
	if len(h) != DefaultHistoryCap {
		t.Fatalf("history has %d entries, want %d", len(h), DefaultHistoryCap)
	}
	if want := start.AddDate(0, 0, 5); !SameDay(h[0].Date, want) {
		t.Errorf("oldest kept = %v, want %v", h[0].Date, want)
	}
	if want := start.AddDate(0, 0, 94); !SameDay(h[len(h)-1].Date, want) {
		t.Errorf("newest kept = %v, want %v", h[len(h)-1].Date, want)
	}
	// The streak can only see what the cap keeps.
	if rec.LongestStreak != DefaultHistoryCap {
		t.Errorf("LongestStreak = %d, want %d", rec.LongestStreak, DefaultHistoryCap)
	}
}

func TestLongestStreakIsHighWaterMark(t *testing.T) {
	e, clk := newTestEngine()
	rec := newTestRecord()

	for i := 0; i < 4; i++ {
		e.UpdateDailyProgress(rec, 10, 0)
		clk.Advance(24 * time.Hour)
	}
	clk.Advance(48 * time.Hour)
	e.UpdateDailyProgress(rec, 10, 0)

	if rec.Streak != 1 {
		t.Errorf("Streak = %d, want 1", rec.Streak)
	}
	if rec.LongestStreak != 4 {
		t.Errorf("LongestStreak = %d, want 4", rec.LongestStreak)
	}
}
