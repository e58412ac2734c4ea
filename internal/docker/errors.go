package docker

import "errors"

// Domain errors surfaced to request submitters as the failed request's
// answer text.
var (
	// ErrUnknownHost means the named host is not in the configuration
	ErrUnknownHost = errors.New("unknown host")

	// ErrUnknownQueue means the named queue is not in the configuration
	ErrUnknownQueue = errors.New("unknown queue")

	// ErrAlreadyRunning means the container is already up
	ErrAlreadyRunning = errors.New("container is already running")

	// ErrNotRunning means the container is not up
	ErrNotRunning = errors.New("container is not running")

	// ErrContainerNotFound means the container has not been created
	ErrContainerNotFound = errors.New("container not found")

	// ErrImageMissing means the image required to create a container is
	// not present on the target host
	ErrImageMissing = errors.New("image missing on host")

	// ErrImageNotFound means the named image is not present on the host
	ErrImageNotFound = errors.New("image not found on host")

	// ErrSingletonExists means a second instance of a singleton container
	// was requested on a different host
	ErrSingletonExists = errors.New("only one instance allowed")

	// ErrQueueFull means every worker name for the queue is taken
	ErrQueueFull = errors.New("queue is full")
)
