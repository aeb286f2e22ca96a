package repo

import (
	"context"
	"sync"
	"time"

	"viddownloader/internal/domain"
)

// MemoryAnalyticsRepository keeps daily counters in process memory. It is
// used when no DATABASE_URL is configured.
type MemoryAnalyticsRepository struct {
	mu   sync.Mutex
	days map[time.Time]*domain.AnalyticsDaily
	now  func() time.Time
}

func NewMemoryAnalyticsRepository() *MemoryAnalyticsRepository {
	return &MemoryAnalyticsRepository{
		days: make(map[time.Time]*domain.AnalyticsDaily),
		now:  time.Now,
	}
}

func (r *MemoryAnalyticsRepository) IncrementCounters(_ context.Context, day time.Time, counters map[domain.Counter]int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := domain.Day(day)
	row, ok := r.days[key]
	if !ok {
		row = &domain.AnalyticsDaily{Day: key}
		r.days[key] = row
	}
	row.Submitted += counters[domain.CounterSubmitted]
	row.Completed += counters[domain.CounterCompleted]
	row.Failed += counters[domain.CounterFailed]
	row.Retrieved += counters[domain.CounterRetrieved]
	row.Reaped += counters[domain.CounterReaped]
	row.UpdatedAt = r.now().UTC()
	return nil
}

func (r *MemoryAnalyticsRepository) GetSummary(_ context.Context, day time.Time) (*domain.AnalyticsDaily, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := domain.Day(day)
	row, ok := r.days[key]
	if !ok {
		return &domain.AnalyticsDaily{Day: key}, nil
	}
	out := *row
	return &out, nil
}

var _ domain.AnalyticsRepository = (*MemoryAnalyticsRepository)(nil)
