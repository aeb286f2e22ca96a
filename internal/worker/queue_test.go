package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"viddownloader/internal/domain"
	"viddownloader/internal/providers/ytdlp"
)

func TestQueueCompletesJob(t *testing.T) {
	h := newHarness(t, 10)
	url := "https://www.youtube.com/watch?v=ok"
	h.dl.set(url, fakeBehavior{title: "Big Buck Bunny", progress: []int{0, 10, 25, 50, 75, 100}, content: []byte("mp4 bytes")})

	job := h.submit(t, url, domain.FormatMP4)
	if got := h.get(t, job.ID); got.Status != domain.JobStatusPending || got.Progress >= 100 {
		t.Fatalf("unexpected state before worker start: %+v", got)
	}

	h.start(t)
	h.waitIdle(t)

	got := h.get(t, job.ID)
	if got.Status != domain.JobStatusCompleted || got.Progress != 100 {
		t.Fatalf("expected completed at 100, got %s %d", got.Status, got.Progress)
	}
	if got.DownloadHandle != "/api/download/"+job.ID {
		t.Fatalf("download handle = %q", got.DownloadHandle)
	}
	if got.Title != "Big Buck Bunny" || got.ErrorMessage != "" || got.CompletedAt == nil {
		t.Fatalf("unexpected completed job: %+v", got)
	}
	if filepath.Base(got.OutputPath) != job.ID+".mp4" {
		t.Fatalf("output path = %q", got.OutputPath)
	}
	if data, err := os.ReadFile(got.OutputPath); err != nil || string(data) != "mp4 bytes" {
		t.Fatalf("artifact = %q, %v", data, err)
	}

	want := []int{5, 10, 18, 30, 50, 70, 90, 100}
	if progress := h.jobs.Progress(job.ID); !slices.Equal(progress, want) {
		t.Fatalf("progress writes = %v, want %v", progress, want)
	}
	if h.recorder.Count(domain.CounterCompleted) != 1 {
		t.Fatal("completion not recorded")
	}
}

func TestQueueLookupFailureStopsPipeline(t *testing.T) {
	h := newHarness(t, 10)
	url := "https://vimeo.com/1"
	h.dl.set(url, fakeBehavior{titleErr: &ytdlp.ProcessError{
		Stage:      ytdlp.StageLookup,
		Message:    "metadata lookup failed",
		ExitCode:   1,
		StderrTail: []string{"ERROR: Unsupported URL"},
		Err:        domain.ErrLookupFailed,
	}})

	job := h.submit(t, url, domain.FormatMP4)
	h.start(t)
	h.waitIdle(t)

	got := h.get(t, job.ID)
	if got.Status != domain.JobStatusFailed {
		t.Fatalf("status = %s", got.Status)
	}
	if !strings.Contains(got.ErrorMessage, "lookup") {
		t.Fatalf("error message should mention lookup: %q", got.ErrorMessage)
	}
	if got.Progress > 10 || got.DownloadHandle != "" || got.OutputPath != "" {
		t.Fatalf("unexpected failed job: %+v", got)
	}
	for _, e := range h.dl.Events() {
		if strings.HasPrefix(e, "start ") {
			t.Fatalf("download must not run after lookup failure: %v", h.dl.Events())
		}
	}
	if h.recorder.Count(domain.CounterFailed) != 1 {
		t.Fatal("failure not recorded")
	}
}

func TestQueueEmptyTitleUsesFallback(t *testing.T) {
	h := newHarness(t, 10)
	url := "https://example.com/v"
	h.dl.set(url, fakeBehavior{title: "", content: []byte("x")})

	job := h.submit(t, url, domain.FormatMP3)
	h.start(t)
	h.waitIdle(t)

	got := h.get(t, job.ID)
	if got.Status != domain.JobStatusCompleted || got.Title != FallbackTitle {
		t.Fatalf("unexpected job: %+v", got)
	}
	if filepath.Ext(got.OutputPath) != ".mp3" {
		t.Fatalf("output path = %q", got.OutputPath)
	}
}

func TestQueueFIFOAndSingleWorker(t *testing.T) {
	h := newHarness(t, 10)
	slow, fast := "https://example.com/slow", "https://example.com/fast"
	h.dl.set(slow, fakeBehavior{title: "A", delay: 100 * time.Millisecond, progress: []int{50}, content: []byte("a")})
	h.dl.set(fast, fakeBehavior{title: "B", delay: 20 * time.Millisecond, progress: []int{50}, content: []byte("b")})

	a := h.submit(t, slow, domain.FormatMP4)
	b := h.submit(t, fast, domain.FormatMP4)
	h.start(t)
	h.waitIdle(t)

	want := []string{"start " + slow, "end " + slow, "start " + fast, "end " + fast}
	var downloads []string
	for _, e := range h.dl.Events() {
		if !strings.HasPrefix(e, "lookup ") {
			downloads = append(downloads, e)
		}
	}
	if !slices.Equal(downloads, want) {
		t.Fatalf("download order = %v, want %v", downloads, want)
	}

	order := h.jobs.Order()
	aDone := slices.Index(order, a.ID+":completed")
	bStart := slices.Index(order, b.ID+":processing")
	if aDone < 0 || bStart < 0 || bStart < aDone {
		t.Fatalf("B started before A finished: %v", order)
	}
	if h.jobs.maxProcessing != 1 || h.dl.maxActive != 1 {
		t.Fatalf("more than one job processed at once: store=%d tool=%d", h.jobs.maxProcessing, h.dl.maxActive)
	}
}

func TestQueueDownloadFailureFreezesProgress(t *testing.T) {
	h := newHarness(t, 10)
	url := "https://example.com/broken"
	h.dl.set(url, fakeBehavior{
		title:    "Broken",
		progress: []int{40},
		err: &ytdlp.ProcessError{
			Stage:      ytdlp.StageDownload,
			Message:    "download failed",
			ExitCode:   1,
			StderrTail: []string{"ERROR: HTTP Error 403: Forbidden"},
			Err:        domain.ErrDownloadFailed,
		},
	})
	next := "https://example.com/next"

	job := h.submit(t, url, domain.FormatMP4)
	after := h.submit(t, next, domain.FormatMP4)
	h.start(t)
	h.waitIdle(t)

	got := h.get(t, job.ID)
	if got.Status != domain.JobStatusFailed || got.Progress != 42 {
		t.Fatalf("unexpected failed job: %s %d", got.Status, got.Progress)
	}
	if got.ErrorMessage != "download failed: HTTP Error 403: Forbidden" {
		t.Fatalf("error message = %q", got.ErrorMessage)
	}
	if h.get(t, after.ID).Status != domain.JobStatusCompleted {
		t.Fatal("queue must continue after a failure")
	}
}

func TestQueueFailureRemovesLeftoverFiles(t *testing.T) {
	h := newHarness(t, 10)
	url := "https://example.com/partial"
	h.dl.set(url, fakeBehavior{
		title: "Partial",
		hook: func(req ytdlp.DownloadRequest) {
			base := strings.TrimSuffix(req.OutputPath, filepath.Ext(req.OutputPath))
			_ = os.WriteFile(base+".webm", []byte("stray"), 0o644)
			_ = os.WriteFile(req.OutputPath+".part", []byte("half"), 0o644)
		},
		err: &ytdlp.ProcessError{Stage: ytdlp.StageDownload, Message: "download failed", ExitCode: 1, Err: domain.ErrDownloadFailed},
	})

	job := h.submit(t, url, domain.FormatMP4)
	h.start(t)
	h.waitIdle(t)

	if got := h.get(t, job.ID); got.Status != domain.JobStatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	left, err := filepath.Glob(filepath.Join(h.store.BasePath(), job.ID+".*"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(left) != 0 {
		t.Fatalf("failed job left files behind: %v", left)
	}
}

func TestQueueMissingArtifactFails(t *testing.T) {
	h := newHarness(t, 10)
	url := "https://example.com/nothing"
	h.dl.set(url, fakeBehavior{title: "Nothing"})

	job := h.submit(t, url, domain.FormatMP4)
	h.start(t)
	h.waitIdle(t)

	got := h.get(t, job.ID)
	if got.Status != domain.JobStatusFailed || got.ErrorMessage != "output file verification failed" {
		t.Fatalf("unexpected job: %+v", got)
	}
}

func TestQueueRecoversFromPanic(t *testing.T) {
	h := newHarness(t, 10)
	url := "https://example.com/panic"
	h.dl.set(url, fakeBehavior{title: "P", panic: true})

	job := h.submit(t, url, domain.FormatMP4)
	after := h.submit(t, "https://example.com/fine", domain.FormatMP4)
	h.start(t)
	h.waitIdle(t)

	if got := h.get(t, job.ID); got.Status != domain.JobStatusFailed || got.ErrorMessage != "internal error while processing" {
		t.Fatalf("unexpected job: %+v", got)
	}
	if h.get(t, after.ID).Status != domain.JobStatusCompleted {
		t.Fatal("queue must survive a panicking job")
	}
}

func TestQueueRejectsMalformedSource(t *testing.T) {
	h := newHarness(t, 10)
	job := h.submit(t, "-o /etc/passwd", domain.FormatMP4)
	h.start(t)
	h.waitIdle(t)

	got := h.get(t, job.ID)
	if got.Status != domain.JobStatusFailed || !strings.Contains(got.ErrorMessage, "invalid source url") {
		t.Fatalf("unexpected job: %+v", got)
	}
	if len(h.dl.Events()) != 0 {
		t.Fatalf("tool must not run for a malformed source: %v", h.dl.Events())
	}
}

func TestQueueJobRemovedWhileDownloading(t *testing.T) {
	h := newHarness(t, 10)
	url := "https://example.com/reaped"
	var job domain.Job
	h.dl.set(url, fakeBehavior{
		title: "R",
		hook: func(req ytdlp.DownloadRequest) {
			_ = os.WriteFile(req.OutputPath+".part", []byte("partial"), 0o644)
			_ = h.jobs.Delete(context.Background(), job.ID)
		},
		progress: []int{50},
		delay:    5 * time.Second,
	})

	job = h.submit(t, url, domain.FormatMP4)
	h.start(t)
	start := time.Now()
	h.waitIdle(t)

	if time.Since(start) > 3*time.Second {
		t.Fatal("download was not cancelled after the job disappeared")
	}
	if _, err := h.jobs.Get(context.Background(), job.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected job to stay deleted, got %v", err)
	}
	matches, _ := filepath.Glob(filepath.Join(h.store.BasePath(), job.ID+".*"))
	if len(matches) != 0 {
		t.Fatalf("orphaned artifacts left behind: %v", matches)
	}
}

func TestQueueFull(t *testing.T) {
	h := newHarness(t, 1)
	if err := h.queue.Enqueue(JobDescriptor{ID: "a", SourceURL: "https://example.com/a"}); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	if err := h.queue.Enqueue(JobDescriptor{ID: "b", SourceURL: "https://example.com/b"}); !errors.Is(err, domain.ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if h.queue.Len() != 1 || h.queue.Busy() {
		t.Fatalf("len=%d busy=%v", h.queue.Len(), h.queue.Busy())
	}
}

func TestQueueRunStopsOnCancel(t *testing.T) {
	h := newHarness(t, 10)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.queue.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestMapProgress(t *testing.T) {
	tests := []struct{ raw, want int }{
		{-5, 10}, {0, 10}, {1, 10}, {2, 11}, {50, 50}, {99, 89}, {100, 90}, {150, 90},
	}
	for _, tt := range tests {
		if got := MapProgress(tt.raw); got != tt.want {
			t.Fatalf("MapProgress(%d) = %d, want %d", tt.raw, got, tt.want)
		}
	}
}

func TestFailureDetail(t *testing.T) {
	tests := []struct {
		step string
		err  error
		want string
	}{
		{ytdlp.StageLookup, errors.New("exec: not found"), "metadata lookup failed"},
		{ytdlp.StageDownload, errors.New("pipe closed"), "download failed"},
		{ytdlp.StageVerify, errors.New("stat"), "output file verification failed"},
		{ytdlp.StageDownload, &ytdlp.ProcessError{Message: "download timed out"}, "download timed out"},
	}
	for _, tt := range tests {
		if got := failureDetail(tt.step, tt.err); got != tt.want {
			t.Fatalf("failureDetail(%s, %v) = %q, want %q", tt.step, tt.err, got, tt.want)
		}
	}
}
