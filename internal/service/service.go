// Package service exposes the request submission and status polling surface
// the interface front-ends use. It translates named operations into request
// actions so that no interface ever touches the Docker engines directly.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/exact-lab/dockerhood/internal/docker"
	"github.com/exact-lab/dockerhood/internal/request"
	"github.com/exact-lab/dockerhood/internal/status"
)

var (
	// ErrUnknownOperation is returned for operation names not in the catalog
	ErrUnknownOperation = errors.New("unknown operation")

	// ErrMissingParameter is returned when a required parameter is absent
	ErrMissingParameter = errors.New("missing parameter")
)

// Operation names a unit of work an interface may submit
type Operation string

const (
	// OpStartLinker starts (creating if needed) the linker container
	OpStartLinker Operation = "start-linker"
	// OpStopLinker stops the linker container
	OpStopLinker Operation = "stop-linker"
	// OpRemoveLinker deletes the linker container
	OpRemoveLinker Operation = "remove-linker"

	// OpStartMaster starts the master container on a host
	OpStartMaster Operation = "start-master"
	// OpStopMaster stops the master container
	OpStopMaster Operation = "stop-master"
	// OpRemoveMaster deletes the master container
	OpRemoveMaster Operation = "remove-master"

	// OpCreateWorker creates and starts a worker for a queue on a host
	OpCreateWorker Operation = "create-worker"
	// OpStartWorker starts a stopped worker
	OpStartWorker Operation = "start-worker"
	// OpStopWorker stops a running worker
	OpStopWorker Operation = "stop-worker"
	// OpRemoveWorker deletes a worker
	OpRemoveWorker Operation = "remove-worker"
	// OpStopAllWorkers stops all workers, optionally filtered by queue/host
	OpStopAllWorkers Operation = "stop-all-workers"
	// OpRemoveAllWorkers deletes all workers, optionally filtered by queue/host
	OpRemoveAllWorkers Operation = "remove-all-workers"

	// OpRemoveImage removes a deployment image tag from a host
	OpRemoveImage Operation = "remove-image"

	// OpShutdown terminates the whole process after the request executes
	OpShutdown Operation = "shutdown"
)

// Params carries the operation parameters supplied by the interface
type Params struct {
	// Host names the target host, where the operation takes one
	Host string `json:"host,omitempty"`

	// Queue names the target queue, where the operation takes one
	Queue string `json:"queue,omitempty"`

	// Worker is the worker container name, where the operation takes one
	Worker string `json:"worker,omitempty"`

	// Image is the image tag, for image operations
	Image string `json:"image,omitempty"`
}

// Service is the contract between the interface front-ends and the
// orchestration core: submit an operation, poll its outcome, read the
// cached infrastructure snapshot.
//
//go:generate mockgen -destination=mocks/mock_service.go -package=mocks github.com/exact-lab/dockerhood/internal/service Service
type Service interface {
	// Submit queues the operation for the coordinator and returns the
	// request id immediately. It fails only on malformed submissions;
	// execution errors surface later through Status and Answer.
	Submit(op Operation, params Params) (string, error)

	// Status returns the lifecycle state of a request; StateUnknown for
	// ids never created or already discarded.
	Status(id string) request.State

	// Answer returns the result of a request. The boolean is false for
	// unknown ids.
	Answer(id string) (any, bool)

	// Snapshot returns the cached infrastructure snapshot without
	// touching the Docker engines.
	Snapshot() *status.Snapshot
}

// defaultService is the default implementation of Service
type defaultService struct {
	// ctx is the process context captured for actions, which execute
	// later on the coordinator goroutine and take no arguments
	ctx     context.Context
	manager *request.Manager
	cache   *status.Cache
	fleet   *docker.Fleet
}

// New creates a service with injected dependencies. The context is captured
// into actions and bounds their Docker calls for the process lifetime.
func New(ctx context.Context, manager *request.Manager, cache *status.Cache, fleet *docker.Fleet) Service {
	return &defaultService{
		ctx:     ctx,
		manager: manager,
		cache:   cache,
		fleet:   fleet,
	}
}

func (s *defaultService) Submit(op Operation, params Params) (string, error) {
	action, err := s.buildAction(op, params)
	if err != nil {
		return "", err
	}
	return s.manager.Create(action), nil
}

func (s *defaultService) Status(id string) request.State {
	state, ok := s.manager.Status(id)
	if !ok {
		return request.StateUnknown
	}
	return state
}

func (s *defaultService) Answer(id string) (any, bool) {
	return s.manager.Answer(id)
}

func (s *defaultService) Snapshot() *status.Snapshot {
	return s.cache.Snapshot()
}

// buildAction maps an operation name and its parameters to a closure over
// the fleet. Parameter presence is checked here so malformed submissions
// fail fast; whether the named host, queue or worker actually exists is
// checked at execution time, like every other infrastructure condition.
func (s *defaultService) buildAction(op Operation, p Params) (request.Action, error) {
	switch op {
	case OpStartLinker:
		return func() (any, error) {
			return "linker started", s.fleet.StartLinker(s.ctx)
		}, nil
	case OpStopLinker:
		return func() (any, error) {
			return "linker stopped", s.fleet.StopLinker(s.ctx)
		}, nil
	case OpRemoveLinker:
		return func() (any, error) {
			return "linker removed", s.fleet.RemoveLinker(s.ctx)
		}, nil

	case OpStartMaster:
		if p.Host == "" {
			return nil, fmt.Errorf("%w: host is required for %s", ErrMissingParameter, op)
		}
		return func() (any, error) {
			return fmt.Sprintf("master started on %s", p.Host), s.fleet.StartMaster(s.ctx, p.Host)
		}, nil
	case OpStopMaster:
		return func() (any, error) {
			return "master stopped", s.fleet.StopMaster(s.ctx)
		}, nil
	case OpRemoveMaster:
		return func() (any, error) {
			return "master removed", s.fleet.RemoveMaster(s.ctx)
		}, nil

	case OpCreateWorker:
		if p.Queue == "" || p.Host == "" {
			return nil, fmt.Errorf("%w: queue and host are required for %s", ErrMissingParameter, op)
		}
		return func() (any, error) {
			name, err := s.fleet.CreateWorker(s.ctx, p.Queue, p.Host)
			if err != nil {
				return nil, err
			}
			return name, nil
		}, nil
	case OpStartWorker:
		if p.Worker == "" {
			return nil, fmt.Errorf("%w: worker is required for %s", ErrMissingParameter, op)
		}
		return func() (any, error) {
			return fmt.Sprintf("worker %s started", p.Worker), s.fleet.StartWorker(s.ctx, p.Worker)
		}, nil
	case OpStopWorker:
		if p.Worker == "" {
			return nil, fmt.Errorf("%w: worker is required for %s", ErrMissingParameter, op)
		}
		return func() (any, error) {
			return fmt.Sprintf("worker %s stopped", p.Worker), s.fleet.StopWorker(s.ctx, p.Worker)
		}, nil
	case OpRemoveWorker:
		if p.Worker == "" {
			return nil, fmt.Errorf("%w: worker is required for %s", ErrMissingParameter, op)
		}
		return func() (any, error) {
			return fmt.Sprintf("worker %s removed", p.Worker), s.fleet.RemoveWorker(s.ctx, p.Worker)
		}, nil

	case OpStopAllWorkers:
		return func() (any, error) {
			count, err := s.fleet.StopAllWorkers(s.ctx, docker.WorkerFilter{Queue: p.Queue, Host: p.Host})
			if err != nil {
				return nil, err
			}
			return fmt.Sprintf("%d workers stopped", count), nil
		}, nil
	case OpRemoveAllWorkers:
		return func() (any, error) {
			count, err := s.fleet.RemoveAllWorkers(s.ctx, docker.WorkerFilter{Queue: p.Queue, Host: p.Host})
			if err != nil {
				return nil, err
			}
			return fmt.Sprintf("%d workers removed", count), nil
		}, nil

	case OpRemoveImage:
		if p.Host == "" || p.Image == "" {
			return nil, fmt.Errorf("%w: host and image are required for %s", ErrMissingParameter, op)
		}
		return func() (any, error) {
			return fmt.Sprintf("image %s removed from %s", p.Image, p.Host), s.fleet.RemoveImage(s.ctx, p.Host, p.Image)
		}, nil

	case OpShutdown:
		return func() (any, error) {
			return "shutting down", request.ErrShutdown
		}, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownOperation, op)
	}
}
