package service

import (
	"context"
	"time"

	"viddownloader/internal/domain"
	"viddownloader/internal/infra"
)

const recordTimeout = 2 * time.Second

// Analytics records job outcome counters. Failures are logged, never
// returned, so counting can not affect a job.
type Analytics struct {
	repo   domain.AnalyticsRepository
	logger infra.Logger
	now    func() time.Time
}

func NewAnalytics(repo domain.AnalyticsRepository, logger infra.Logger) *Analytics {
	return &Analytics{repo: repo, logger: infra.Component(logger, "analytics"), now: time.Now}
}

// Record adds one to counter for today.
func (a *Analytics) Record(ctx context.Context, counter domain.Counter) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := a.repo.IncrementCounters(ctx, a.now(), map[domain.Counter]int{counter: 1}); err != nil {
		a.logger.Warn().Err(err).Str("counter", string(counter)).Msg("record counter")
	}
}

// Today returns the counters of the current UTC day.
func (a *Analytics) Today(ctx context.Context) (*domain.AnalyticsDaily, error) {
	return a.repo.GetSummary(ctx, a.now())
}
