package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"viddownloader/internal/domain"
	"viddownloader/internal/infra"
	"viddownloader/internal/worker"
	"viddownloader/pkg/filename"
)

// Enqueuer hands accepted jobs to the worker.
type Enqueuer interface {
	Enqueue(job worker.JobDescriptor) error
}

// ArtifactStore opens and removes artifacts.
type ArtifactStore interface {
	Open(path string) (*os.File, fs.FileInfo, error)
	RemoveJobArtifacts(ctx context.Context, id string) error
}

// Downloads is the client-facing side of the job lifecycle: intake, status
// polling and single-use retrieval.
type Downloads struct {
	jobs      domain.JobRepository
	queue     Enqueuer
	artifacts ArtifactStore
	recorder  worker.Recorder
	logger    infra.Logger

	mu     sync.Mutex
	claims map[string]struct{}
}

func NewDownloads(jobs domain.JobRepository, queue Enqueuer, artifacts ArtifactStore, recorder worker.Recorder, logger infra.Logger) *Downloads {
	if recorder == nil {
		recorder = discardRecorder{}
	}
	return &Downloads{
		jobs:      jobs,
		queue:     queue,
		artifacts: artifacts,
		recorder:  recorder,
		logger:    infra.Component(logger, "downloads"),
		claims:    make(map[string]struct{}),
	}
}

// SubmitRequest is the raw intake payload.
type SubmitRequest struct {
	URL      string
	Format   string
	Quality  string
	Platform string
}

// Submit validates the request, records a pending job and queues it. A
// rejected request never produces a job id.
func (s *Downloads) Submit(ctx context.Context, req SubmitRequest) (domain.Job, error) {
	sourceURL := strings.TrimSpace(req.URL)
	if err := domain.ValidateSourceURL(sourceURL); err != nil {
		return domain.Job{}, err
	}
	format, err := domain.ParseFormat(req.Format)
	if err != nil {
		return domain.Job{}, err
	}
	quality, err := domain.ParseQuality(req.Quality)
	if err != nil {
		return domain.Job{}, err
	}

	job, err := s.jobs.Create(ctx, domain.NewJob{
		SourceURL: sourceURL,
		Platform:  domain.ParsePlatform(req.Platform, sourceURL),
		Format:    format,
		Quality:   quality,
	})
	if err != nil {
		return domain.Job{}, fmt.Errorf("create job: %w", err)
	}
	err = s.queue.Enqueue(worker.JobDescriptor{
		ID:        job.ID,
		SourceURL: job.SourceURL,
		Format:    job.Format,
		Quality:   job.Quality,
	})
	if err != nil {
		if derr := s.jobs.Delete(context.WithoutCancel(ctx), job.ID); derr != nil {
			s.logger.Warn().Err(derr).Str("job_id", job.ID).Msg("roll back rejected job")
		}
		return domain.Job{}, err
	}

	s.recorder.Record(ctx, domain.CounterSubmitted)
	s.logger.Info().
		Str("job_id", job.ID).
		Str("platform", string(job.Platform)).
		Str("format", string(job.Format)).
		Str("quality", string(job.Quality)).
		Msg("job accepted")
	return job, nil
}

// Status projects the current record of a job.
func (s *Downloads) Status(ctx context.Context, id string) (domain.StatusView, error) {
	job, err := s.jobs.Get(ctx, id)
	if err != nil {
		return domain.StatusView{}, err
	}
	return domain.ProjectStatus(job), nil
}

// Artifact is an opened, claimed artifact ready to stream. Exactly one of
// Consume or Release must be called.
type Artifact struct {
	File        *os.File
	Size        int64
	ModTime     time.Time
	ContentType string
	Filename    string

	jobID string
	owner *Downloads
	once  sync.Once
}

// OpenArtifact claims the artifact of a completed job. A job that is not
// completed, whose file is gone, or that is already being retrieved reports
// domain.ErrNotReady.
func (s *Downloads) OpenArtifact(ctx context.Context, id string) (*Artifact, error) {
	job, err := s.jobs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != domain.JobStatusCompleted || job.OutputPath == "" {
		return nil, domain.ErrNotReady
	}
	if !s.claim(id) {
		return nil, domain.ErrNotReady
	}

	f, info, err := s.artifacts.Open(job.OutputPath)
	if err != nil {
		s.release(id)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.ErrNotReady
		}
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	return &Artifact{
		File:        f,
		Size:        info.Size(),
		ModTime:     info.ModTime(),
		ContentType: ContentType(job.OutputPath),
		Filename:    filename.FromTitle(job.Title, string(job.Format)),
		jobID:       id,
		owner:       s,
	}, nil
}

// Consume finishes a fully transferred retrieval: the artifact and the job
// are deleted so the job cannot be retrieved again.
func (a *Artifact) Consume(ctx context.Context) {
	a.once.Do(func() {
		_ = a.File.Close()
		s := a.owner
		logger := s.logger.With().Str("job_id", a.jobID).Logger()
		if err := s.artifacts.RemoveJobArtifacts(ctx, a.jobID); err != nil {
			logger.Error().Err(err).Msg("remove retrieved artifact")
		}
		if err := s.jobs.Delete(ctx, a.jobID); err != nil {
			logger.Error().Err(err).Msg("delete retrieved job")
		}
		s.release(a.jobID)
		s.recorder.Record(ctx, domain.CounterRetrieved)
		logger.Info().Int64("bytes", a.Size).Msg("artifact retrieved")
	})
}

// Release gives up the claim after an incomplete transfer; the job stays
// retrievable.
func (a *Artifact) Release() {
	a.once.Do(func() {
		_ = a.File.Close()
		a.owner.release(a.jobID)
	})
}

func (s *Downloads) claim(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.claims[id]; busy {
		return false
	}
	s.claims[id] = struct{}{}
	return true
}

func (s *Downloads) release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.claims, id)
}

var contentTypes = map[string]string{
	".mp4":  "video/mp4",
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".webm": "video/webm",
}

// ContentType picks the response type from the artifact extension.
func ContentType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

type discardRecorder struct{}

func (discardRecorder) Record(context.Context, domain.Counter) {}
