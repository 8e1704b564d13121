package sync

import (
	"log/slog"
	"sync"
	"time"
)

// Watch-mode auto-sync gives up on a path after suppressAfter failed
// uploads inside suppressWindow. The window slides: once the oldest
// failure ages out, the path is retried.
const (
	suppressAfter  = 3
	suppressWindow = 30 * time.Minute
)

// failureTracker remembers recent upload failures per relative path.
// Explicit `docsync sync` runs ignore it; only watch passes consult it.
type failureTracker struct {
	mu       sync.Mutex
	failures map[string][]time.Time
	logger   *slog.Logger
	nowFunc  func() time.Time
}

func newFailureTracker(logger *slog.Logger) *failureTracker {
	return &failureTracker{
		failures: make(map[string][]time.Time),
		logger:   logger,
		nowFunc:  time.Now,
	}
}

// recent drops failures older than the window and returns what is left.
// Caller holds mu.
func (ft *failureTracker) recent(path string) []time.Time {
	cutoff := ft.nowFunc().Add(-suppressWindow)

	kept := ft.failures[path][:0]
	for _, at := range ft.failures[path] {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}

	if len(kept) == 0 {
		delete(ft.failures, path)
		return nil
	}

	ft.failures[path] = kept

	return kept
}

// shouldSkip reports whether path is currently suppressed.
func (ft *failureTracker) shouldSkip(path string) bool {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	return len(ft.recent(path)) >= suppressAfter
}

func (ft *failureTracker) recordFailure(path string, err error) {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	times := append(ft.recent(path), ft.nowFunc())
	ft.failures[path] = times

	if len(times) == suppressAfter {
		ft.logger.Warn("upload keeps failing, pausing auto-sync for this file",
			slog.String("path", path),
			slog.Int("failures", len(times)),
			slog.String("last_error", err.Error()),
			slog.Time("retry_after", times[0].Add(suppressWindow)),
		)
	}
}

func (ft *failureTracker) recordSuccess(path string) {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	delete(ft.failures, path)
}

// suppressed lists the paths currently skipped by watch passes.
func (ft *failureTracker) suppressed() []string {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	var out []string

	for path := range ft.failures {
		if len(ft.recent(path)) >= suppressAfter {
			out = append(out, path)
		}
	}

	return out
}
