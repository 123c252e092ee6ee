package store

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Watcher polls a store's version and calls back when it moves. It makes
// writes from other processes sharing the backend visible locally.
type Watcher struct {
	store    *Store
	interval time.Duration
	logger   *slog.Logger

	version atomic.Int64
	checks  atomic.Int64
	changes atomic.Int64
}

// NewWatcher returns a watcher polling every interval (default 1s).
func NewWatcher(s *Store, interval time.Duration, logger *slog.Logger) *Watcher {
	if interval <= 0 {
		interval = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{store: s, interval: interval, logger: logger}
}

// Version returns the last observed version.
func (w *Watcher) Version() int64 { return w.version.Load() }

// Observe records a version seen through another path (for example a local
// write) so it does not trigger a callback.
func (w *Watcher) Observe(v int64) {
	for {
		cur := w.version.Load()
		if v <= cur || w.version.CompareAndSwap(cur, v) {
			return
		}
	}
}

// Run blocks until ctx is cancelled. onChange receives each new version.
func (w *Watcher) Run(ctx context.Context, onChange func(version int64)) {
	if v, err := w.store.Version(ctx); err != nil {
		w.logger.Warn("watch: initial version check failed", "error", err)
	} else {
		w.Observe(v)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Debug("watch: started", "interval", w.interval)
	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("watch: stopped")
			return
		case <-ticker.C:
			w.checks.Add(1)
			cur, err := w.store.Version(ctx)
			if err != nil {
				if ctx.Err() == nil {
					w.logger.Warn("watch: version check failed", "error", err)
				}
				continue
			}
			if cur == w.version.Load() {
				continue
			}
			w.version.Store(cur)
			w.changes.Add(1)
			w.logger.Debug("watch: version changed", "version", cur)
			onChange(cur)
		}
	}
}
