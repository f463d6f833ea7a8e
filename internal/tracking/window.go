package tracking

import "time"

// StudyWindow decides which hours count as late night and early morning.
// Ranges are [start, end) in local hours and may wrap past midnight.
type StudyWindow struct {
	LateStart  int
	LateEnd    int
	EarlyStart int
	EarlyEnd   int
}

func DefaultStudyWindow() StudyWindow {
	return StudyWindow{LateStart: 22, LateEnd: 4, EarlyStart: 4, EarlyEnd: 7}
}

func (w StudyWindow) IsLate(t time.Time) bool {
	return inHours(t.Hour(), w.LateStart, w.LateEnd)
}

func (w StudyWindow) IsEarly(t time.Time) bool {
	return inHours(t.Hour(), w.EarlyStart, w.EarlyEnd)
}

func inHours(h, start, end int) bool {
	if start == end {
		return false
	}
	if start < end {
		return h >= start && h < end
	}
	return h >= start || h < end
}
