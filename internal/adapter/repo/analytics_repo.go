package repo

import (
	"context"
	"time"

	"viddownloader/internal/domain"
	"viddownloader/internal/infra"
	"viddownloader/internal/sqlinline"
)

// AnalyticsRepositoryPG implements domain.AnalyticsRepository using PostgreSQL.
type AnalyticsRepositoryPG struct {
	db infra.SQLExecutor
}

// NewAnalyticsRepository constructs the repository.
func NewAnalyticsRepository(db infra.SQLExecutor) *AnalyticsRepositoryPG {
	return &AnalyticsRepositoryPG{db: db}
}

// EnsureSchema creates the counters table when it is missing.
func (r *AnalyticsRepositoryPG) EnsureSchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx, sqlinline.QCreateJobCountersTable)
	return err
}

// IncrementCounters upserts counters for the provided day.
func (r *AnalyticsRepositoryPG) IncrementCounters(ctx context.Context, day time.Time, counters map[domain.Counter]int) error {
	_, err := r.db.Exec(ctx, sqlinline.QIncrementJobCounters,
		domain.Day(day),
		counters[domain.CounterSubmitted],
		counters[domain.CounterCompleted],
		counters[domain.CounterFailed],
		counters[domain.CounterRetrieved],
		counters[domain.CounterReaped],
	)
	return err
}

// GetSummary returns the counters of a day. A day without activity yields a
// zero summary rather than an error.
func (r *AnalyticsRepositoryPG) GetSummary(ctx context.Context, day time.Time) (*domain.AnalyticsDaily, error) {
	day = domain.Day(day)
	var summary domain.AnalyticsDaily
	err := r.db.QueryRow(ctx, sqlinline.QSelectJobCounters, day).Scan(
		&summary.Day,
		&summary.Submitted,
		&summary.Completed,
		&summary.Failed,
		&summary.Retrieved,
		&summary.Reaped,
		&summary.UpdatedAt,
	)
	if err != nil {
		if infra.IsNoRows(err) {
			return &domain.AnalyticsDaily{Day: day}, nil
		}
		return nil, err
	}
	return &summary, nil
}

var _ domain.AnalyticsRepository = (*AnalyticsRepositoryPG)(nil)
