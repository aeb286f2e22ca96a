package domain

import (
	"context"
	"time"
)

// JobRepository is the authoritative table of job records. Lookups of an
// absent id report ErrNotFound.
type JobRepository interface {
	Create(ctx context.Context, job NewJob) (Job, error)
	Get(ctx context.Context, id string) (Job, error)
	SetStatus(ctx context.Context, id string, status JobStatus, progress *int) error
	SetOutput(ctx context.Context, id, artifactPath string) error
	SetDownloadHandle(ctx context.Context, id, handle string) error
	SetTitle(ctx context.Context, id, title string) error
	SetError(ctx context.Context, id, message string) error
	ListExpired(ctx context.Context, now time.Time) ([]Job, error)
	Delete(ctx context.Context, id string) error
}

// AnalyticsRepository updates and reads daily job counters.
type AnalyticsRepository interface {
	IncrementCounters(ctx context.Context, day time.Time, counters map[Counter]int) error
	GetSummary(ctx context.Context, day time.Time) (*AnalyticsDaily, error)
}
