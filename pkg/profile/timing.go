package profile

import "time"

// Timing records when a unit of work started and ended.
type Timing struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// Duration returns the elapsed time between start and end, or zero when the
// work has not both started and ended.
func (t Timing) Duration() time.Duration {
	if t.StartTime.IsZero() || t.EndTime.IsZero() || t.EndTime.Before(t.StartTime) {
		return 0
	}
	return t.EndTime.Sub(t.StartTime)
}
