package request

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	// defaultSweepInterval is how often the reaper checks for stale requests
	defaultSweepInterval = time.Hour

	// defaultDiscardAfter is how long a request is retained before the
	// reaper evicts it, regardless of its state
	defaultDiscardAfter = 24 * time.Hour
)

// ManagerOption configures a Manager
type ManagerOption func(*Manager)

// WithSweepInterval overrides how often the reaper runs
func WithSweepInterval(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.sweepInterval = d
		}
	}
}

// WithDiscardAfter overrides the request retention period
func WithDiscardAfter(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.discardAfter = d
		}
	}
}

// Manager is a thread-safe queue and registry of requests. Producers submit
// actions through Create and poll their outcome; the coordinator drains the
// queue through Next. A background reaper evicts requests purely by age, so
// a request that was never picked up is still discarded once it is older
// than the retention period.
type Manager struct {
	sweepInterval time.Duration
	discardAfter  time.Duration

	// mu guards queue and requests together: every queued id has a map
	// entry, and an id removed from the map leaves the queue in the same
	// critical section.
	mu       sync.Mutex
	queue    []string
	requests map[string]*Request
}

// NewManager creates an empty request manager
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		sweepInterval: defaultSweepInterval,
		discardAfter:  defaultDiscardAfter,
		requests:      make(map[string]*Request),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create wraps the action in a new pending request, appends it to the queue
// tail and returns its id. It never blocks on execution.
func (m *Manager) Create(action Action) string {
	req := New(action)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, req.id)
	m.requests[req.id] = req

	slog.Debug("Request queued", "request_id", req.id, "queue_length", len(m.queue))
	return req.id
}

// Next pops the queue head and returns the corresponding request, or nil if
// the queue is empty. It never blocks; the coordinator backs off and retries.
func (m *Manager) Next() *Request {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.queue) == 0 {
		return nil
	}

	id := m.queue[0]
	m.queue = m.queue[1:]
	return m.requests[id]
}

// Status returns the state of the request with the given id. The boolean is
// false when the id is unknown, either never created or already reaped.
func (m *Manager) Status(id string) (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.requests[id]
	if !ok {
		return StateUnknown, false
	}
	return req.State(), true
}

// Answer returns the result of the request with the given id. The boolean is
// false when the id is unknown.
func (m *Manager) Answer(id string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.requests[id]
	if !ok {
		return nil, false
	}
	return req.Answer(), true
}

// Run executes the reaper loop until the context is cancelled. Outstanding
// requests are left as-is on shutdown.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Debug("Request reaper stopping")
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

// sweep walks every registered request and evicts the ones older than the
// retention period, irrespective of their state
func (m *Manager) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()

	slog.Debug("Sweeping old requests", "count", len(m.requests))

	kept := m.queue[:0]
	for _, id := range m.queue {
		if m.requests[id].Age() > m.discardAfter {
			continue
		}
		kept = append(kept, id)
	}
	m.queue = kept

	for id, req := range m.requests {
		if req.Age() > m.discardAfter {
			slog.Debug("Discarding old request", "request_id", id, "age", req.Age())
			delete(m.requests, id)
		}
	}
}
