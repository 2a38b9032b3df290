package sync

import (
	"log/slog"
	gosync "sync"
	"time"
)

// After suppressStrikes consecutive failures a path is benched for
// suppressWindow; a success, or the window expiring, clears it.
const (
	suppressStrikes = 3
	suppressWindow  = 30 * time.Minute
)

// strike is the failure history of one path.
type strike struct {
	count  int
	reason string
	at     time.Time
}

// failureTracker benches paths that keep failing so the supervisor does not
// hammer the adapter with the same doomed action every cycle. Thread-safe.
type failureTracker struct {
	mu      gosync.Mutex
	strikes map[string]strike
	logger  *slog.Logger
	nowFunc func() time.Time // injectable for tests
}

func newFailureTracker(logger *slog.Logger) *failureTracker {
	return &failureTracker{
		strikes: make(map[string]strike),
		logger:  logger,
		nowFunc: time.Now,
	}
}

// expired reports whether a strike record is old enough to forget.
func (ft *failureTracker) expired(rec strike) bool {
	return ft.nowFunc().Sub(rec.at) > suppressWindow
}

// shouldSkip reports whether path is currently benched.
func (ft *failureTracker) shouldSkip(path string) bool {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	rec, ok := ft.strikes[path]
	if !ok {
		return false
	}

	if ft.expired(rec) {
		delete(ft.strikes, path)
		return false
	}

	return rec.count >= suppressStrikes
}

// recordFailure adds a strike against path. Strikes older than the window
// are forgotten first, so only a sustained failure streak benches a path.
func (ft *failureTracker) recordFailure(path, reason string) {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	rec := ft.strikes[path]
	if ft.expired(rec) {
		rec = strike{}
	}

	rec.count++
	rec.reason = reason
	rec.at = ft.nowFunc()
	ft.strikes[path] = rec

	if rec.count == suppressStrikes {
		ft.logger.Warn("path benched after repeated failures",
			"path", path,
			"failures", rec.count,
			"last_error", reason,
			"bench_window", suppressWindow,
		)
	}
}

// recordSuccess clears path's strike history.
func (ft *failureTracker) recordSuccess(path string) {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	delete(ft.strikes, path)
}
