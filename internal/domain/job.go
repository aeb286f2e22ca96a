package domain

import "time"

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further transitions are allowed out of s.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// CanTransition enforces pending -> processing -> {completed | failed}.
// A pending job may also fail directly (rejected before processing starts).
func CanTransition(from, to JobStatus) bool {
	switch from {
	case JobStatusPending:
		return to == JobStatusProcessing || to == JobStatusFailed
	case JobStatusProcessing:
		return to == JobStatusProcessing || to == JobStatusCompleted || to == JobStatusFailed
	default:
		return false
	}
}

// Job is the lifecycle record of one retrieve/transcode request.
type Job struct {
	ID             string
	SourceURL      string
	Platform       Platform
	Format         Format
	Quality        Quality
	Status         JobStatus
	Progress       int
	Title          string
	OutputPath     string
	DownloadHandle string
	ErrorMessage   string
	CreatedAt      time.Time
	CompletedAt    *time.Time
	ExpiresAt      time.Time
}

// NewJob carries the immutable parameters chosen at intake.
type NewJob struct {
	SourceURL string
	Platform  Platform
	Format    Format
	Quality   Quality
}

// Expired reports whether the job is eligible for reaping at now.
func (j Job) Expired(now time.Time) bool {
	return !j.ExpiresAt.After(now)
}

// Clone returns a copy that shares no pointers with j.
func (j Job) Clone() Job {
	if j.CompletedAt != nil {
		at := *j.CompletedAt
		j.CompletedAt = &at
	}
	return j
}
