package worker

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"

	"viddownloader/internal/domain"
	"viddownloader/internal/infra"
	"viddownloader/internal/providers/ytdlp"
)

// FallbackTitle is stored when the metadata lookup succeeds without a title.
const FallbackTitle = "Untitled video"

const (
	progressStarted  = 5
	progressLookedUp = 10
	progressBandTop  = 90
)

// Downloader is the external tool boundary.
type Downloader interface {
	FetchTitle(ctx context.Context, sourceURL string) (string, error)
	Download(ctx context.Context, req ytdlp.DownloadRequest) error
}

// Artifacts resolves and cleans up artifact files.
type Artifacts interface {
	PathFor(id, ext string) (string, error)
	Verify(path string) (fs.FileInfo, error)
	RemoveJobArtifacts(ctx context.Context, id string) error
}

// Recorder counts job outcomes. Implementations must not block.
type Recorder interface {
	Record(ctx context.Context, counter domain.Counter)
}

// JobDescriptor is what the queue needs to run a job.
type JobDescriptor struct {
	ID        string
	SourceURL string
	Format    domain.Format
	Quality   domain.Quality
}

// QueueConfig wires a Queue.
type QueueConfig struct {
	Jobs         domain.JobRepository
	Downloader   Downloader
	Artifacts    Artifacts
	Recorder     Recorder
	Logger       infra.Logger
	MaxPending   int
	ProgressStep int
	RoutePrefix  string
}

// Queue is a FIFO of pending jobs drained by exactly one worker goroutine.
type Queue struct {
	jobs         domain.JobRepository
	downloader   Downloader
	artifacts    Artifacts
	recorder     Recorder
	logger       infra.Logger
	maxPending   int
	progressStep int
	routePrefix  string

	mu      sync.Mutex
	pending []JobDescriptor
	busy    bool
	wake    chan struct{}
}

// NewQueue constructs an idle queue. Nothing is processed until Run is called.
func NewQueue(cfg QueueConfig) *Queue {
	step := cfg.ProgressStep
	if step <= 0 {
		step = 1
	}
	recorder := cfg.Recorder
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Queue{
		jobs:         cfg.Jobs,
		downloader:   cfg.Downloader,
		artifacts:    cfg.Artifacts,
		recorder:     recorder,
		logger:       infra.Component(cfg.Logger, "queue"),
		maxPending:   cfg.MaxPending,
		progressStep: step,
		routePrefix:  strings.TrimRight(cfg.RoutePrefix, "/"),
		wake:         make(chan struct{}, 1),
	}
}

// Enqueue appends a job to the tail of the FIFO and wakes the worker.
func (q *Queue) Enqueue(job JobDescriptor) error {
	q.mu.Lock()
	if q.maxPending > 0 && len(q.pending) >= q.maxPending {
		q.mu.Unlock()
		return domain.ErrQueueFull
	}
	q.pending = append(q.pending, job)
	depth := len(q.pending)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	q.logger.Debug().Str("job_id", job.ID).Int("depth", depth).Msg("job enqueued")
	return nil
}

// Len reports the number of jobs waiting to start.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Busy reports whether a job is being processed right now.
func (q *Queue) Busy() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.busy
}

// Run drains the FIFO one job at a time until ctx is cancelled. After every
// job, successful or not, the next pending job starts immediately.
func (q *Queue) Run(ctx context.Context) error {
	q.logger.Info().Msg("worker started")
	defer q.logger.Info().Msg("worker stopped")
	for {
		job, ok := q.next()
		if !ok {
			select {
			case <-ctx.Done():
				return nil
			case <-q.wake:
				continue
			}
		}
		q.process(ctx, job)
		q.finish()
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (q *Queue) next() (JobDescriptor, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.busy || len(q.pending) == 0 {
		return JobDescriptor{}, false
	}
	job := q.pending[0]
	q.pending[0] = JobDescriptor{}
	q.pending = q.pending[1:]
	q.busy = true
	return job, true
}

func (q *Queue) finish() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.busy = false
}

// process runs one job to a terminal state. Every failure, panics included,
// is recorded on the job and never escapes to the loop.
func (q *Queue) process(parent context.Context, job JobDescriptor) {
	logger := q.logger.With().Str("job_id", job.ID).Logger()
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("job panicked")
			q.fail(parent, logger, job, "internal error while processing")
		}
	}()

	if err := domain.ValidateSourceURL(job.SourceURL); err != nil {
		q.fail(parent, logger, job, err.Error())
		return
	}

	step := "start"
	if err := q.setProgress(ctx, job.ID, progressStarted); err != nil {
		q.abandon(parent, logger, job, step, err)
		return
	}

	step = ytdlp.StageLookup
	title, err := q.downloader.FetchTitle(ctx, job.SourceURL)
	if err != nil {
		q.failWith(parent, logger, job, step, err)
		return
	}
	if title == "" {
		title = FallbackTitle
	}
	if err := q.jobs.SetTitle(ctx, job.ID, title); err != nil {
		q.abandon(parent, logger, job, step, err)
		return
	}
	if err := q.setProgress(ctx, job.ID, progressLookedUp); err != nil {
		q.abandon(parent, logger, job, step, err)
		return
	}

	step = ytdlp.StageDownload
	output, err := q.artifacts.PathFor(job.ID, string(job.Format))
	if err != nil {
		q.failWith(parent, logger, job, step, err)
		return
	}
	reporter := &progressReporter{
		step:    q.progressStep,
		written: progressLookedUp,
		write: func(p int) error {
			return q.setProgress(ctx, job.ID, p)
		},
		gone: cancel,
	}
	err = q.downloader.Download(ctx, ytdlp.DownloadRequest{
		SourceURL:  job.SourceURL,
		Format:     job.Format,
		Quality:    job.Quality,
		OutputPath: output,
		OnProgress: reporter.observe,
	})
	if reporter.vanished() {
		q.abandon(parent, logger, job, step, domain.ErrNotFound)
		return
	}
	if err != nil {
		q.failWith(parent, logger, job, step, err)
		return
	}

	step = ytdlp.StageVerify
	info, err := q.artifacts.Verify(output)
	if err != nil {
		q.failWith(parent, logger, job, step, fmt.Errorf("%w: %w", domain.ErrDownloadFailed, err))
		return
	}

	handle := q.routePrefix + "/" + job.ID
	if err := q.complete(ctx, job.ID, output, handle); err != nil {
		q.abandon(parent, logger, job, step, err)
		return
	}
	q.recorder.Record(parent, domain.CounterCompleted)
	logger.Info().Int64("bytes", info.Size()).Str("output", output).Msg("job completed")
}

func (q *Queue) setProgress(ctx context.Context, id string, progress int) error {
	return q.jobs.SetStatus(ctx, id, domain.JobStatusProcessing, &progress)
}

func (q *Queue) complete(ctx context.Context, id, output, handle string) error {
	if err := q.jobs.SetOutput(ctx, id, output); err != nil {
		return err
	}
	if err := q.jobs.SetDownloadHandle(ctx, id, handle); err != nil {
		return err
	}
	return q.jobs.SetStatus(ctx, id, domain.JobStatusCompleted, nil)
}

// failWith records a pipeline failure with a client-safe message.
func (q *Queue) failWith(ctx context.Context, logger infra.Logger, job JobDescriptor, step string, err error) {
	logger.Error().Err(err).Str("stage", step).Msg("job failed")
	q.fail(ctx, logger, job, failureDetail(step, err))
}

func (q *Queue) fail(ctx context.Context, logger infra.Logger, job JobDescriptor, message string) {
	ctx = context.WithoutCancel(ctx)
	err := q.jobs.SetError(ctx, job.ID, message)
	switch {
	case err == nil:
		q.recorder.Record(ctx, domain.CounterFailed)
	case !errors.Is(err, domain.ErrNotFound):
		logger.Error().Err(err).Msg("record job failure")
	}
	// a failed job is never retrieved, so partial or misnamed output goes now
	q.cleanup(ctx, logger, job)
}

// abandon handles a job whose record vanished or refused an update while it
// was running, typically because the reaper removed it.
func (q *Queue) abandon(ctx context.Context, logger infra.Logger, job JobDescriptor, step string, err error) {
	if errors.Is(err, domain.ErrNotFound) {
		logger.Warn().Str("stage", step).Msg("job removed while processing")
		q.cleanup(context.WithoutCancel(ctx), logger, job)
		return
	}
	q.failWith(ctx, logger, job, step, err)
}

func (q *Queue) cleanup(ctx context.Context, logger infra.Logger, job JobDescriptor) {
	if err := q.artifacts.RemoveJobArtifacts(ctx, job.ID); err != nil {
		logger.Error().Err(err).Msg("remove orphaned artifact")
	}
}

func failureDetail(step string, err error) string {
	var perr *ytdlp.ProcessError
	switch {
	case errors.As(err, &perr):
		return perr.Detail()
	case errors.Is(err, domain.ErrInvalidSource),
		errors.Is(err, domain.ErrUnsupportedFormat),
		errors.Is(err, domain.ErrUnsupportedQuality):
		return err.Error()
	case step == ytdlp.StageLookup:
		return "metadata lookup failed"
	case step == ytdlp.StageVerify:
		return "output file verification failed"
	default:
		return "download failed"
	}
}

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, domain.Counter) {}
