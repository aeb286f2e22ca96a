package worker

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"viddownloader/internal/adapter/repo"
	"viddownloader/internal/domain"
	"viddownloader/internal/infra"
	"viddownloader/internal/providers/ytdlp"
	"viddownloader/internal/storage"
)

type fakeBehavior struct {
	title    string
	titleErr error
	progress []int
	delay    time.Duration
	content  []byte
	err      error
	panic    bool
	hook     func(req ytdlp.DownloadRequest)
}

type fakeDownloader struct {
	mu        sync.Mutex
	behaviors map[string]fakeBehavior
	events    []string
	active    int
	maxActive int
}

func newFakeDownloader() *fakeDownloader {
	return &fakeDownloader{behaviors: make(map[string]fakeBehavior)}
}

func (f *fakeDownloader) set(url string, b fakeBehavior) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.behaviors[url] = b
}

func (f *fakeDownloader) behavior(url string) fakeBehavior {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.behaviors[url]
	if !ok {
		return fakeBehavior{title: "clip", content: []byte("media")}
	}
	return b
}

func (f *fakeDownloader) record(event string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakeDownloader) Events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

func (f *fakeDownloader) FetchTitle(_ context.Context, sourceURL string) (string, error) {
	f.record("lookup " + sourceURL)
	b := f.behavior(sourceURL)
	return b.title, b.titleErr
}

func (f *fakeDownloader) Download(ctx context.Context, req ytdlp.DownloadRequest) error {
	b := f.behavior(req.SourceURL)

	f.mu.Lock()
	f.active++
	f.maxActive = max(f.maxActive, f.active)
	f.events = append(f.events, "start "+req.SourceURL)
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.active--
		f.events = append(f.events, "end "+req.SourceURL)
		f.mu.Unlock()
	}()

	if b.panic {
		panic("tool exploded")
	}
	if b.hook != nil {
		b.hook(req)
	}
	for _, p := range b.progress {
		if req.OnProgress != nil {
			req.OnProgress(p)
		}
	}
	if b.delay > 0 {
		select {
		case <-time.After(b.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if b.err != nil {
		return b.err
	}
	if b.content != nil {
		return os.WriteFile(req.OutputPath, b.content, 0o644)
	}
	return nil
}

// recordingRepo observes every state write made by the worker.
type recordingRepo struct {
	*repo.MemoryJobRepository

	mu            sync.Mutex
	progress      map[string][]int
	order         []string
	maxProcessing int
}

func (r *recordingRepo) SetStatus(ctx context.Context, id string, status domain.JobStatus, progress *int) error {
	err := r.MemoryJobRepository.SetStatus(ctx, id, status, progress)
	if err != nil {
		return err
	}
	job, _ := r.MemoryJobRepository.Get(ctx, id)
	processing := r.MemoryJobRepository.CountByStatus()[domain.JobStatusProcessing]

	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress[id] = append(r.progress[id], job.Progress)
	r.order = append(r.order, fmt.Sprintf("%s:%s", id, status))
	r.maxProcessing = max(r.maxProcessing, processing)
	return nil
}

func (r *recordingRepo) SetError(ctx context.Context, id, message string) error {
	err := r.MemoryJobRepository.SetError(ctx, id, message)
	if err == nil {
		r.mu.Lock()
		r.order = append(r.order, fmt.Sprintf("%s:%s", id, domain.JobStatusFailed))
		r.mu.Unlock()
	}
	return err
}

func (r *recordingRepo) Progress(id string) []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.progress[id]...)
}

func (r *recordingRepo) Order() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

type countingRecorder struct {
	mu     sync.Mutex
	counts map[domain.Counter]int
}

func (c *countingRecorder) Record(_ context.Context, counter domain.Counter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[counter]++
}

func (c *countingRecorder) Count(counter domain.Counter) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[counter]
}

type harness struct {
	jobs     *recordingRepo
	store    *storage.FileStore
	dl       *fakeDownloader
	recorder *countingRecorder
	queue    *Queue
}

func newHarness(t *testing.T, maxPending int) *harness {
	t.Helper()
	store, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	h := &harness{
		jobs:     &recordingRepo{MemoryJobRepository: repo.NewJobRepository(time.Hour), progress: map[string][]int{}},
		store:    store,
		dl:       newFakeDownloader(),
		recorder: &countingRecorder{counts: map[domain.Counter]int{}},
	}
	h.queue = NewQueue(QueueConfig{
		Jobs:         h.jobs,
		Downloader:   h.dl,
		Artifacts:    store,
		Recorder:     h.recorder,
		Logger:       infra.NopLogger(),
		MaxPending:   maxPending,
		ProgressStep: 5,
		RoutePrefix:  "/api/download/",
	})
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.queue.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func (h *harness) submit(t *testing.T, url string, format domain.Format) domain.Job {
	t.Helper()
	job, err := h.jobs.Create(context.Background(), domain.NewJob{
		SourceURL: url,
		Platform:  domain.DetectPlatform(url),
		Format:    format,
		Quality:   domain.Quality720p,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := h.queue.Enqueue(JobDescriptor{ID: job.ID, SourceURL: url, Format: format, Quality: domain.Quality720p}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	return job
}

func (h *harness) waitIdle(t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if h.queue.Len() == 0 && !h.queue.Busy() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("queue did not drain: len=%d busy=%v", h.queue.Len(), h.queue.Busy())
}

func (h *harness) get(t *testing.T, id string) domain.Job {
	t.Helper()
	job, err := h.jobs.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get %s: %v", id, err)
	}
	return job
}
