package repo

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"viddownloader/internal/domain"
)

// MemoryJobRepository implements domain.JobRepository with a mutex-guarded
// map. Every method is a short, key-scoped critical section and callers only
// ever receive copies of the stored records.
type MemoryJobRepository struct {
	mu   sync.RWMutex
	jobs map[string]*domain.Job
	ttl  time.Duration
	now  func() time.Time
}

// NewJobRepository creates an empty in-memory job table whose records expire
// ttl after creation.
func NewJobRepository(ttl time.Duration) *MemoryJobRepository {
	return &MemoryJobRepository{
		jobs: make(map[string]*domain.Job),
		ttl:  ttl,
		now:  time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (r *MemoryJobRepository) WithClock(now func() time.Time) *MemoryJobRepository {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
	return r
}

// Create inserts a pending job with a fresh id.
func (r *MemoryJobRepository) Create(_ context.Context, in domain.NewJob) (domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	created := r.now().UTC()
	job := &domain.Job{
		ID:        uuid.NewString(),
		SourceURL: in.SourceURL,
		Platform:  in.Platform,
		Format:    in.Format,
		Quality:   in.Quality,
		Status:    domain.JobStatusPending,
		Progress:  0,
		CreatedAt: created,
		ExpiresAt: created.Add(r.ttl),
	}
	r.jobs[job.ID] = job
	return job.Clone(), nil
}

// Get returns a copy of the job or domain.ErrNotFound.
func (r *MemoryJobRepository) Get(_ context.Context, id string) (domain.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[id]
	if !ok {
		return domain.Job{}, domain.ErrNotFound
	}
	return job.Clone(), nil
}

// SetStatus moves the job along the state machine. While processing,
// progress never decreases and stays below 100; completion forces 100 and
// requires the artifact fields to be populated. Failure goes through SetError
// so that it always carries a message.
func (r *MemoryJobRepository) SetStatus(_ context.Context, id string, status domain.JobStatus, progress *int) error {
	return r.update(id, func(job *domain.Job) error {
		if status == domain.JobStatusFailed {
			return fmt.Errorf("%w: use SetError to fail a job", domain.ErrInvalidTransition)
		}
		if !domain.CanTransition(job.Status, status) {
			return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, job.Status, status)
		}
		if status == domain.JobStatusCompleted && (job.OutputPath == "" || job.DownloadHandle == "") {
			return fmt.Errorf("%w: completed without artifact", domain.ErrInvalidTransition)
		}
		job.Status = status
		switch {
		case status == domain.JobStatusCompleted:
			job.Progress = 100
		case progress != nil:
			job.Progress = max(job.Progress, clampProgress(*progress))
		}
		if status.Terminal() {
			r.markCompleted(job)
		}
		return nil
	})
}

// SetOutput records the artifact location of a job that is still running.
func (r *MemoryJobRepository) SetOutput(_ context.Context, id, artifactPath string) error {
	return r.update(id, func(job *domain.Job) error {
		if job.Status.Terminal() {
			return fmt.Errorf("%w: job is %s", domain.ErrInvalidTransition, job.Status)
		}
		job.OutputPath = artifactPath
		return nil
	})
}

// SetDownloadHandle records the retrieval reference of a job that is still running.
func (r *MemoryJobRepository) SetDownloadHandle(_ context.Context, id, handle string) error {
	return r.update(id, func(job *domain.Job) error {
		if job.Status.Terminal() {
			return fmt.Errorf("%w: job is %s", domain.ErrInvalidTransition, job.Status)
		}
		job.DownloadHandle = handle
		return nil
	})
}

// SetTitle records the display title of a job that is still running.
func (r *MemoryJobRepository) SetTitle(_ context.Context, id, title string) error {
	return r.update(id, func(job *domain.Job) error {
		if job.Status.Terminal() {
			return fmt.Errorf("%w: job is %s", domain.ErrInvalidTransition, job.Status)
		}
		job.Title = title
		return nil
	})
}

// SetError fails the job. Progress stays at its last value and any artifact
// fields are cleared so that exactly one outcome is recorded.
func (r *MemoryJobRepository) SetError(_ context.Context, id, message string) error {
	return r.update(id, func(job *domain.Job) error {
		if job.Status.Terminal() {
			return fmt.Errorf("%w: job is %s", domain.ErrInvalidTransition, job.Status)
		}
		if message == "" {
			message = "processing failed"
		}
		job.Status = domain.JobStatusFailed
		job.ErrorMessage = message
		job.OutputPath = ""
		job.DownloadHandle = ""
		r.markCompleted(job)
		return nil
	})
}

// ListExpired returns every job with ExpiresAt <= now, oldest first.
func (r *MemoryJobRepository) ListExpired(_ context.Context, now time.Time) ([]domain.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var expired []domain.Job
	for _, job := range r.jobs {
		if job.Expired(now) {
			expired = append(expired, job.Clone())
		}
	}
	sort.Slice(expired, func(i, j int) bool {
		return expired[i].CreatedAt.Before(expired[j].CreatedAt)
	})
	return expired, nil
}

// Delete removes the job. Deleting an absent id is not an error.
func (r *MemoryJobRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.jobs, id)
	return nil
}

// CountByStatus reports how many jobs are held per status.
func (r *MemoryJobRepository) CountByStatus() map[domain.JobStatus]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[domain.JobStatus]int, 4)
	for _, job := range r.jobs {
		counts[job.Status]++
	}
	return counts
}

func (r *MemoryJobRepository) update(id string, fn func(job *domain.Job) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	return fn(job)
}

// markCompleted sets CompletedAt once; callers hold r.mu.
func (r *MemoryJobRepository) markCompleted(job *domain.Job) {
	if job.CompletedAt != nil {
		return
	}
	at := r.now().UTC()
	job.CompletedAt = &at
}

// clampProgress keeps unfinished jobs in [0, 99]; only completion reaches 100.
func clampProgress(p int) int {
	return min(max(p, 0), 99)
}

var _ domain.JobRepository = (*MemoryJobRepository)(nil)
