package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"viddownloader/internal/adapter/repo"
	"viddownloader/internal/domain"
	"viddownloader/internal/infra"
	"viddownloader/internal/storage"
)

type reaperFixture struct {
	jobs     *repo.MemoryJobRepository
	store    *storage.FileStore
	recorder *countingRecorder
	reaper   *Reaper

	mu  sync.Mutex
	now time.Time
}

func newReaperFixture(t *testing.T, ttl, interval time.Duration) *reaperFixture {
	t.Helper()
	store, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	f := &reaperFixture{
		store:    store,
		recorder: &countingRecorder{counts: map[domain.Counter]int{}},
		now:      time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	f.jobs = repo.NewJobRepository(ttl).WithClock(f.clock)
	f.reaper = NewReaper(ReaperConfig{
		Jobs:      f.jobs,
		Artifacts: store,
		Recorder:  f.recorder,
		Interval:  interval,
		Logger:    infra.NopLogger(),
	})
	f.reaper.now = f.clock
	return f
}

func (f *reaperFixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *reaperFixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func (f *reaperFixture) completedJob(t *testing.T) (domain.Job, string) {
	t.Helper()
	ctx := context.Background()
	job, err := f.jobs.Create(ctx, domain.NewJob{SourceURL: "https://example.com/v", Format: domain.FormatMP4, Quality: domain.Quality720p})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	path, _ := f.store.PathFor(job.ID, "mp4")
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}
	p := 50
	_ = f.jobs.SetStatus(ctx, job.ID, domain.JobStatusProcessing, &p)
	_ = f.jobs.SetOutput(ctx, job.ID, path)
	_ = f.jobs.SetDownloadHandle(ctx, job.ID, "/api/download/"+job.ID)
	if err := f.jobs.SetStatus(ctx, job.ID, domain.JobStatusCompleted, nil); err != nil {
		t.Fatalf("complete: %v", err)
	}
	return job, path
}

func TestSweepRemovesExpiredJobsAndArtifacts(t *testing.T) {
	f := newReaperFixture(t, time.Minute, time.Second)
	ctx := context.Background()

	old, oldPath := f.completedJob(t)
	f.advance(30 * time.Second)
	pending, err := f.jobs.Create(ctx, domain.NewJob{SourceURL: "https://example.com/p"})
	if err != nil {
		t.Fatal(err)
	}
	f.advance(31 * time.Second)
	fresh, freshPath := f.completedJob(t)

	if n := f.reaper.Sweep(ctx); n != 1 {
		t.Fatalf("first sweep removed %d, want 1", n)
	}
	if _, err := f.jobs.Get(ctx, old.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expired job still present: %v", err)
	}
	if _, err := os.Stat(oldPath); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expired artifact still on disk: %v", err)
	}
	if _, err := f.jobs.Get(ctx, pending.ID); err != nil {
		t.Fatalf("unexpired pending job removed: %v", err)
	}

	f.advance(time.Minute)
	if n := f.reaper.Sweep(ctx); n != 2 {
		t.Fatalf("second sweep removed %d, want 2", n)
	}
	if _, err := os.Stat(freshPath); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("artifact of %s still on disk", fresh.ID)
	}
	if n := f.reaper.Sweep(ctx); n != 0 {
		t.Fatalf("idle sweep removed %d", n)
	}
	if f.recorder.Count(domain.CounterReaped) != 3 {
		t.Fatalf("reaped counter = %d", f.recorder.Count(domain.CounterReaped))
	}
}

func TestSweepToleratesMissingArtifact(t *testing.T) {
	f := newReaperFixture(t, time.Minute, time.Second)
	ctx := context.Background()

	job, path := f.completedJob(t)
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	f.advance(2 * time.Minute)
	if n := f.reaper.Sweep(ctx); n != 1 {
		t.Fatalf("sweep removed %d, want 1", n)
	}
	if _, err := f.jobs.Get(ctx, job.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("job still present: %v", err)
	}
}

type failingRemover struct{}

func (failingRemover) RemoveJobArtifacts(context.Context, string) error {
	return errors.New("permission denied")
}

func TestSweepKeepsRecordWhenArtifactRemovalFails(t *testing.T) {
	f := newReaperFixture(t, time.Minute, time.Second)
	f.reaper.artifacts = failingRemover{}
	ctx := context.Background()

	job, _ := f.completedJob(t)
	f.advance(2 * time.Minute)
	if n := f.reaper.Sweep(ctx); n != 0 {
		t.Fatalf("sweep removed %d, want 0", n)
	}
	if _, err := f.jobs.Get(ctx, job.ID); err != nil {
		t.Fatalf("record must stay for the next sweep: %v", err)
	}
}

func TestReaperRunExpiresUnpolledJob(t *testing.T) {
	store, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	jobs := repo.NewJobRepository(30 * time.Millisecond)
	reaper := NewReaper(ReaperConfig{Jobs: jobs, Artifacts: store, Interval: 10 * time.Millisecond, Logger: infra.NopLogger()})

	job, err := jobs.Create(context.Background(), domain.NewJob{SourceURL: "https://example.com/short"})
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(store.BasePath(), job.ID+".mp4")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = reaper.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := jobs.Get(context.Background(), job.ID); errors.Is(err, domain.ErrNotFound) {
			if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
				t.Fatalf("artifact survived the job: %v", err)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("job was not reaped")
}
