package domain

import "time"

// Counter names one of the daily job outcome counters.
type Counter string

const (
	CounterSubmitted Counter = "jobs_submitted"
	CounterCompleted Counter = "jobs_completed"
	CounterFailed    Counter = "jobs_failed"
	CounterRetrieved Counter = "jobs_retrieved"
	CounterReaped    Counter = "jobs_reaped"
)

// AnalyticsDaily stores aggregated job counters for a specific day.
type AnalyticsDaily struct {
	Day       time.Time `json:"day"`
	Submitted int       `json:"jobs_submitted"`
	Completed int       `json:"jobs_completed"`
	Failed    int       `json:"jobs_failed"`
	Retrieved int       `json:"jobs_retrieved"`
	Reaped    int       `json:"jobs_reaped"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Day truncates t to the UTC calendar day used as the analytics key.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
