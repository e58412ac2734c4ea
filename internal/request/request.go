// Package request contains the request objects submitted by the interfaces
// and the manager that queues them for the coordinator.
package request

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrShutdown is the distinguished signal an action returns to request that
// the whole process terminates. A request whose action returns it is still
// marked Executed, not Failed.
var ErrShutdown = errors.New("shutdown requested")

// State represents the lifecycle phase of a request
type State string

const (
	// StatePending means the request is queued and has not been picked up yet
	StatePending State = "Pending"

	// StateExecuting means the coordinator is currently running the action
	StateExecuting State = "Executing"

	// StateExecuted means the action completed successfully
	StateExecuted State = "Executed"

	// StateFailed means the action returned an error
	StateFailed State = "Failed"

	// StateUnknown is reported for ids that were never created or have
	// already been discarded by the reaper
	StateUnknown State = "Unknown"
)

// Action is a zero-argument unit of work. Ownership transfers to the request;
// the coordinator invokes it exactly once. Returning an error that wraps
// ErrShutdown terminates the process after the request is marked Executed.
type Action func() (any, error)

// Request tracks one submitted action through its lifecycle. The id and
// creation time are immutable; state and answer are only mutated by the
// coordinator during Execute and may be read concurrently by pollers.
type Request struct {
	id        string
	createdAt time.Time
	action    Action

	mu     sync.Mutex
	state  State
	answer any
}

// New creates a pending request wrapping the given action
func New(action Action) *Request {
	return &Request{
		id:        uuid.NewString(),
		createdAt: time.Now(),
		action:    action,
		state:     StatePending,
	}
}

// ID returns the process-unique identifier of the request
func (r *Request) ID() string {
	return r.id
}

// Age returns the time elapsed since the request was created
func (r *Request) Age() time.Duration {
	return time.Since(r.createdAt)
}

// State returns the current lifecycle state
func (r *Request) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Answer returns the result of the action. It is nil until the request
// reaches a terminal state; for failed requests it holds the error text.
func (r *Request) Answer() any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.answer
}

// Execute runs the action exactly once. The state moves to Executing for the
// duration of the call and ends in Executed or Failed. The returned boolean
// reports whether the action asked for a process shutdown; such a request is
// marked Executed, not Failed.
func (r *Request) Execute() bool {
	r.setState(StateExecuting)

	answer, err := r.action()
	switch {
	case err == nil:
		r.finish(StateExecuted, answer)
	case errors.Is(err, ErrShutdown):
		r.finish(StateExecuted, answer)
		return true
	default:
		r.finish(StateFailed, errorLine(err))
	}
	return false
}

func (r *Request) setState(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = s
}

func (r *Request) finish(s State, answer any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = s
	r.answer = answer
}

// errorLine renders an error as a single line, keeping only the first line
// of multi-line messages
func errorLine(err error) string {
	msg := err.Error()
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	return msg
}
