package worker

import (
	"context"
	"time"

	"viddownloader/internal/domain"
	"viddownloader/internal/infra"
)

// ArtifactRemover deletes whatever files a job left behind. Removing files
// that do not exist must succeed.
type ArtifactRemover interface {
	RemoveJobArtifacts(ctx context.Context, id string) error
}

// ReaperConfig wires a Reaper.
type ReaperConfig struct {
	Jobs      domain.JobRepository
	Artifacts ArtifactRemover
	Recorder  Recorder
	Interval  time.Duration
	Logger    infra.Logger
}

// Reaper deletes expired jobs and their artifacts on a fixed interval,
// whatever their status.
type Reaper struct {
	jobs      domain.JobRepository
	artifacts ArtifactRemover
	recorder  Recorder
	interval  time.Duration
	logger    infra.Logger
	now       func() time.Time
}

func NewReaper(cfg ReaperConfig) *Reaper {
	recorder := cfg.Recorder
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Reaper{
		jobs:      cfg.Jobs,
		artifacts: cfg.Artifacts,
		recorder:  recorder,
		interval:  cfg.Interval,
		logger:    infra.Component(cfg.Logger, "reaper"),
		now:       time.Now,
	}
}

// Run sweeps once per interval until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info().Dur("interval", r.interval).Msg("reaper started")
	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("reaper stopped")
			return nil
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep removes every job expired at the current time and returns how many
// records it deleted. Artifacts go first so a failed file removal leaves the
// record in place for the next sweep.
func (r *Reaper) Sweep(ctx context.Context) int {
	expired, err := r.jobs.ListExpired(ctx, r.now())
	if err != nil {
		r.logger.Error().Err(err).Msg("list expired jobs")
		return 0
	}

	removed := 0
	for _, job := range expired {
		logger := r.logger.With().Str("job_id", job.ID).Str("status", string(job.Status)).Logger()
		if err := r.artifacts.RemoveJobArtifacts(ctx, job.ID); err != nil {
			logger.Error().Err(err).Msg("remove expired artifact")
			continue
		}
		if err := r.jobs.Delete(ctx, job.ID); err != nil {
			logger.Error().Err(err).Msg("delete expired job")
			continue
		}
		removed++
		r.recorder.Record(ctx, domain.CounterReaped)
		logger.Debug().Msg("job expired")
	}
	if removed > 0 {
		r.logger.Info().Int("removed", removed).Msg("expired jobs reaped")
	}
	return removed
}
