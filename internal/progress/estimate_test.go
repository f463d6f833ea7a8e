package progress

import "testing"

func TestFormatMinutes(t *testing.T) {
	tests := []struct {
		minutes int
		want    string
	}{
		{0, "0min"},
		{45, "45min"},
		{60, "1h0min"},
		{135, "2h15min"},
		{-10, "0min"},
	}

	for _, tt := range tests {
		got := FormatMinutes(tt.minutes)
		if got != tt.want {
			t.Errorf("FormatMinutes(%d) = %q, want %q", tt.minutes, got, tt.want)
		}
	}
}

func TestEstimateTimeRemaining(t *testing.T) {
	tests := []struct {
		name      string
		completed []string
		speed     float64
		avg       int
		want      string
	}{
		{"nothing done", nil, 1, 0, "45min"},
		{"double speed", nil, 2, 0, "23min"},
		{"zero speed treated as normal", nil, 0, 0, "45min"},
		{"with sessions", nil, 1, 20, "45min (~3 sessions)"},
		{"one session", []string{"l2", "l3"}, 1, 30, "10min (~1 session)"},
		{"all done", []string{"l1", "l2", "l3"}, 1, 20, "course complete"},
	}

	e, _ := newTestEngine()
	for _, tt := range tests {
		rec := newTestRecord()
		rec.LessonsCompleted = tt.completed
		rec.PreferredSpeed = tt.speed
		rec.AverageSessionDuration = tt.avg

		got := e.EstimateTimeRemaining(testCourse(), rec)
		if got != tt.want {
			t.Errorf("%s: EstimateTimeRemaining = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestEstimateRemainingNilCourse(t *testing.T) {
	e, _ := newTestEngine()
	est := e.EstimateRemaining(nil, newTestRecord())
	if !est.Complete {
		t.Errorf("EstimateRemaining(nil) = %+v, want Complete", est)
	}
}
