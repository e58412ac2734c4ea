// Package coordinator runs the single execution loop that serializes every
// mutating request against the container infrastructure.
package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/exact-lab/dockerhood/internal/request"
	"github.com/exact-lab/dockerhood/internal/status"
)

// defaultResponsiveness bounds how long the loop waits before re-checking
// the queue and the stop request
const defaultResponsiveness = 500 * time.Millisecond

// Coordinator drains the request queue and executes actions one at a time.
// Exactly one action executes at any instant system-wide; this is the core
// correctness property of the whole layer.
type Coordinator interface {
	// Start runs the execution loop. Blocks until the context is
	// cancelled or a request asks for a process shutdown.
	Start(ctx context.Context) error

	// Stop cancels the loop and waits for it to finish
	Stop() error
}

// defaultCoordinator is the default implementation of Coordinator
type defaultCoordinator struct {
	manager        *request.Manager
	updater        *status.Updater
	responsiveness time.Duration

	// shutdown cancels the process-wide context; called exactly once when
	// a request asks the whole service to terminate
	shutdown context.CancelFunc

	// Lifecycle management
	cancelFunc context.CancelFunc
	done       chan struct{}
}

// Option is a function that configures the coordinator
type Option func(*defaultCoordinator)

// WithResponsiveness overrides the idle polling interval
func WithResponsiveness(d time.Duration) Option {
	return func(c *defaultCoordinator) {
		if d > 0 {
			c.responsiveness = d
		}
	}
}

// New creates a coordinator with injected dependencies. shutdown is invoked
// when an executed request demands process termination.
func New(manager *request.Manager, updater *status.Updater, shutdown context.CancelFunc, opts ...Option) Coordinator {
	c := &defaultCoordinator{
		manager:        manager,
		updater:        updater,
		responsiveness: defaultResponsiveness,
		shutdown:       shutdown,
		done:           make(chan struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Start runs the execution loop
func (c *defaultCoordinator) Start(ctx context.Context) error {
	slog.Info("Starting request coordinator", "responsiveness", c.responsiveness)

	loopCtx, cancel := context.WithCancel(ctx)
	c.cancelFunc = cancel
	defer func() {
		close(c.done)
		slog.Info("Request coordinator shutting down")
	}()

	for {
		req := c.manager.Next()
		if req == nil {
			select {
			case <-loopCtx.Done():
				return nil
			case <-time.After(c.responsiveness):
			}
			continue
		}

		if c.executeRequest(loopCtx, req) {
			// A request demanded termination: mark the whole process as
			// stopping and leave without the post-mutation refresh, like
			// any other teardown path.
			slog.Info("Shutdown requested by request", "request_id", req.ID())
			c.shutdown()
			return nil
		}

		select {
		case <-loopCtx.Done():
			return nil
		default:
		}
	}
}

// Stop cancels the loop and waits for it to finish
func (c *defaultCoordinator) Stop() error {
	if c.cancelFunc != nil {
		slog.Info("Stopping request coordinator")
		c.cancelFunc()
		<-c.done
	}
	return nil
}

// executeRequest runs one request with the background updater suspended, and
// re-synchronizes the cache before background polling resumes. Returns
// whether the request demanded process termination.
func (c *defaultCoordinator) executeRequest(ctx context.Context, req *request.Request) bool {
	slog.Debug("Executing request", "request_id", req.ID())

	// Suspend periodic refreshing so a background poll can never observe
	// the infrastructure mid-mutation
	c.updater.Pause()

	if terminate := req.Execute(); terminate {
		return true
	}

	// Make the mutation's outcome visible immediately instead of waiting
	// for the next periodic tick
	if err := c.updater.ForceRefresh(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("Post-request status refresh failed", "request_id", req.ID(), "error", err)
	}

	c.updater.Resume()

	slog.Debug("Request executed", "request_id", req.ID(), "state", req.State())
	return false
}
