package worker

import (
	"errors"
	"sync"

	"viddownloader/internal/domain"
)

// MapProgress maps the tool's raw 0-100 signal into the 10-90 band a job
// occupies while downloading.
func MapProgress(raw int) int {
	raw = min(max(raw, 0), 100)
	return min(progressLookedUp+raw*8/10, progressBandTop)
}

// progressReporter writes mapped progress through to the store whenever it
// has advanced by at least step since the last write.
type progressReporter struct {
	step  int
	write func(int) error
	gone  func()

	mu      sync.Mutex
	written int
	missing bool
}

func (r *progressReporter) observe(raw int) {
	p := MapProgress(raw)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.missing || p < r.written+r.step {
		return
	}
	if err := r.write(p); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			r.missing = true
			r.gone()
		}
		return
	}
	r.written = p
}

func (r *progressReporter) vanished() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.missing
}
