package status

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrStopped is returned by ForceRefresh when the updater has already shut
// down; callers must not be left waiting on a stopping updater.
var ErrStopped = errors.New("status updater stopped")

// defaultUpdateInterval is the periodic refresh cadence
const defaultUpdateInterval = 5 * time.Second

// UpdaterOption configures an Updater
type UpdaterOption func(*Updater)

// WithUpdateInterval overrides the periodic refresh cadence
func WithUpdateInterval(d time.Duration) UpdaterOption {
	return func(u *Updater) {
		if d > 0 {
			u.interval = d
		}
	}
}

// Updater periodically refreshes the cache in the background. The
// coordinator pauses it around mutating actions so a background refresh can
// never observe a half-mutated infrastructure, and forces a synchronous
// refresh right after a mutation so the new state is visible immediately.
//
// The interval is measured from the end of the previous refresh, not from
// wall-clock ticks, so a slow refresh does not cause back-to-back refreshes.
type Updater struct {
	cache    *Cache
	interval time.Duration

	mu     sync.Mutex
	paused bool

	refreshCh chan chan error
	done      chan struct{}
}

// NewUpdater creates an updater for the cache. It starts active; call Run to
// begin refreshing.
func NewUpdater(cache *Cache, opts ...UpdaterOption) *Updater {
	u := &Updater{
		cache:     cache,
		interval:  defaultUpdateInterval,
		refreshCh: make(chan chan error),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Pause suppresses periodic refreshing. Idempotent; ForceRefresh still works
// while paused.
func (u *Updater) Pause() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.paused = true
}

// Resume re-enables periodic refreshing. Idempotent.
func (u *Updater) Resume() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.paused = false
}

// isPaused reports whether periodic refreshing is currently suppressed
func (u *Updater) isPaused() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.paused
}

// ForceRefresh requests an out-of-band synchronous refresh, regardless of
// whether the updater is paused. It blocks until the refresh is committed and
// returns its error, or ErrStopped if the updater shut down first.
func (u *Updater) ForceRefresh(ctx context.Context) error {
	reply := make(chan error, 1)

	select {
	case u.refreshCh <- reply:
	case <-u.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-reply:
		return err
	case <-u.done:
		return ErrStopped
	}
}

// Run refreshes the cache until the context is cancelled. The first refresh
// happens immediately so consumers see a populated snapshot early.
func (u *Updater) Run(ctx context.Context) {
	defer close(u.done)

	slog.Debug("Status updater starting", "interval", u.interval)
	u.refresh(ctx)

	timer := time.NewTimer(u.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Debug("Status updater stopping")
			return
		case reply := <-u.refreshCh:
			reply <- u.cache.Refresh(ctx)
			// An on-demand refresh restarts the staleness clock
			resetTimer(timer, u.interval)
		case <-timer.C:
			if !u.isPaused() {
				u.refresh(ctx)
			}
			timer.Reset(u.interval)
		}
	}
}

// refresh runs a periodic refresh; failures are logged and retried on the
// next tick since refreshes are frequent and best-effort
func (u *Updater) refresh(ctx context.Context) {
	if err := u.cache.Refresh(ctx); err != nil {
		slog.Error("Status refresh failed", "error", err)
	}
}

// resetTimer safely re-arms a timer that may have already fired
func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
