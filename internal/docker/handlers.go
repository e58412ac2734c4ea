package docker

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/go-connections/nat"
)

// maxWorkersPerQueue caps the 3-digit worker name suffix
const maxWorkersPerQueue = 254

// StartLinker starts the linker container on its configured host, creating
// it first if it does not exist yet
func (f *Fleet) StartLinker(ctx context.Context) error {
	slog.Info("Starting linker", "host", f.cfg.LinkerHost)

	eng := f.linkerEngine()
	state, err := listContainers(ctx, eng)
	if err != nil {
		return fmt.Errorf("host %s: %w", f.cfg.LinkerHost, err)
	}

	name := f.linkerName()
	if state.running[name] {
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, name)
	}

	if !state.names[name] {
		ok, err := imageExists(ctx, eng, name)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: image %s on host %s", ErrImageMissing, name, f.cfg.LinkerHost)
		}

		// The linker forwards the static network port plus one port per
		// queue, all bound one-to-one on the host
		exposed := nat.PortSet{}
		bindings := nat.PortMap{}
		ports := []int{f.cfg.LinkerPort}
		for _, q := range f.cfg.Queues {
			ports = append(ports, q.Port)
		}
		for _, p := range ports {
			if p == 0 {
				continue
			}
			port := nat.Port(fmt.Sprintf("%d/tcp", p))
			exposed[port] = struct{}{}
			bindings[port] = []nat.PortBinding{{HostPort: strconv.Itoa(p)}}
		}

		slog.Debug("Creating linker container", "name", name, "ports", ports)
		_, err = eng.ContainerCreate(ctx,
			&container.Config{
				Image:        name,
				Hostname:     "linker",
				ExposedPorts: exposed,
			},
			&container.HostConfig{
				PortBindings: bindings,
				Privileged:   true,
			},
			nil, nil, name,
		)
		if err != nil {
			return fmt.Errorf("failed to create linker container: %w", err)
		}
	}

	if err := eng.ContainerStart(ctx, name, container.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start linker container: %w", err)
	}

	slog.Info("Linker started")
	return nil
}

// StopLinker stops the running linker container
func (f *Fleet) StopLinker(ctx context.Context) error {
	slog.Info("Stopping linker")

	eng := f.linkerEngine()
	state, err := listContainers(ctx, eng)
	if err != nil {
		return fmt.Errorf("host %s: %w", f.cfg.LinkerHost, err)
	}

	name := f.linkerName()
	if !state.names[name] {
		return fmt.Errorf("%w: %s", ErrContainerNotFound, name)
	}
	if !state.running[name] {
		return fmt.Errorf("%w: %s", ErrNotRunning, name)
	}

	if err := eng.ContainerStop(ctx, name, container.StopOptions{}); err != nil {
		return fmt.Errorf("failed to stop linker container: %w", err)
	}

	slog.Info("Linker stopped")
	return nil
}

// RemoveLinker deletes the linker container, stopping it first if running
func (f *Fleet) RemoveLinker(ctx context.Context) error {
	slog.Info("Removing linker")

	eng := f.linkerEngine()
	state, err := listContainers(ctx, eng)
	if err != nil {
		return fmt.Errorf("host %s: %w", f.cfg.LinkerHost, err)
	}

	name := f.linkerName()
	if !state.names[name] {
		return fmt.Errorf("%w: %s", ErrContainerNotFound, name)
	}
	if state.running[name] {
		if err := eng.ContainerStop(ctx, name, container.StopOptions{}); err != nil {
			return fmt.Errorf("failed to stop linker container: %w", err)
		}
	}

	if err := eng.ContainerRemove(ctx, name, container.RemoveOptions{}); err != nil {
		return fmt.Errorf("failed to remove linker container: %w", err)
	}

	slog.Info("Linker removed")
	return nil
}

// StartMaster starts the master container on the named host, creating it if
// it does not exist anywhere. The master is a singleton: if it already lives
// on a different host the call fails.
func (f *Fleet) StartMaster(ctx context.Context, hostName string) error {
	host, ok := f.cfg.Host(hostName)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownHost, hostName)
	}
	slog.Info("Starting master", "host", host.Name)

	eng := f.engines[host.Name]
	name := f.masterName()

	currentHost, err := f.MasterHost(ctx)
	if err != nil {
		return err
	}

	switch currentHost {
	case "":
		ok, err := imageExists(ctx, eng, name)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: image %s on host %s", ErrImageMissing, name, host.Name)
		}

		slog.Debug("Creating master container", "name", name, "host", host.Name)
		_, err = eng.ContainerCreate(ctx,
			&container.Config{
				Image:    name,
				Hostname: "master",
			},
			&container.HostConfig{Privileged: true},
			nil, nil, name,
		)
		if err != nil {
			return fmt.Errorf("failed to create master container: %w", err)
		}

	case host.Name:
		state, err := listContainers(ctx, eng)
		if err != nil {
			return fmt.Errorf("host %s: %w", host.Name, err)
		}
		if state.running[name] {
			return fmt.Errorf("%w: %s on host %s", ErrAlreadyRunning, name, host.Name)
		}

	default:
		return fmt.Errorf("%w: a master already exists on host %s, remove it before creating one on %s",
			ErrSingletonExists, currentHost, host.Name)
	}

	if err := eng.ContainerStart(ctx, name, container.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start master container: %w", err)
	}

	slog.Info("Master started", "host", host.Name)
	return nil
}

// StopMaster stops the running master container, wherever it lives
func (f *Fleet) StopMaster(ctx context.Context) error {
	slog.Info("Stopping master")

	host, err := f.MasterHost(ctx)
	if err != nil {
		return err
	}
	if host == "" {
		return fmt.Errorf("%w: %s", ErrContainerNotFound, f.masterName())
	}

	eng := f.engines[host]
	state, err := listContainers(ctx, eng)
	if err != nil {
		return fmt.Errorf("host %s: %w", host, err)
	}
	if !state.running[f.masterName()] {
		return fmt.Errorf("%w: %s", ErrNotRunning, f.masterName())
	}

	if err := eng.ContainerStop(ctx, f.masterName(), container.StopOptions{}); err != nil {
		return fmt.Errorf("failed to stop master container: %w", err)
	}

	slog.Info("Master stopped", "host", host)
	return nil
}

// RemoveMaster deletes the master container, stopping it first if running
func (f *Fleet) RemoveMaster(ctx context.Context) error {
	slog.Info("Removing master")

	host, err := f.MasterHost(ctx)
	if err != nil {
		return err
	}
	if host == "" {
		return fmt.Errorf("%w: %s", ErrContainerNotFound, f.masterName())
	}

	eng := f.engines[host]
	state, err := listContainers(ctx, eng)
	if err != nil {
		return fmt.Errorf("host %s: %w", host, err)
	}
	name := f.masterName()
	if state.running[name] {
		if err := eng.ContainerStop(ctx, name, container.StopOptions{}); err != nil {
			return fmt.Errorf("failed to stop master container: %w", err)
		}
	}

	if err := eng.ContainerRemove(ctx, name, container.RemoveOptions{}); err != nil {
		return fmt.Errorf("failed to remove master container: %w", err)
	}

	slog.Info("Master removed", "host", host)
	return nil
}

// CreateWorker creates and starts a new worker container for the queue on
// the named host, picking the lowest free 3-digit name suffix. Returns the
// new worker's container name.
func (f *Fleet) CreateWorker(ctx context.Context, queueName, hostName string) (string, error) {
	queue, ok := f.cfg.Queue(queueName)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownQueue, queueName)
	}
	host, ok := f.cfg.Host(hostName)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownHost, hostName)
	}
	slog.Info("Creating worker", "queue", queue.Name, "host", host.Name)

	workers, err := f.Workers(ctx, WorkerFilter{})
	if err != nil {
		return "", err
	}
	taken := make(map[string]bool, len(workers))
	for _, w := range workers {
		taken[w.Name] = true
	}

	var name string
	for i := 1; i <= maxWorkersPerQueue; i++ {
		candidate := fmt.Sprintf("%s_%s_worker%03d", f.cfg.Project, queue.Name, i)
		if !taken[candidate] {
			name = candidate
			break
		}
	}
	if name == "" {
		return "", fmt.Errorf("%w: %s", ErrQueueFull, queue.Name)
	}

	eng := f.engines[host.Name]
	imageName := f.workerImageName(queue.Name)
	ok, err = imageExists(ctx, eng, imageName)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: image %s on host %s", ErrImageMissing, imageName, host.Name)
	}

	slog.Debug("Creating worker container", "name", name, "host", host.Name)
	_, err = eng.ContainerCreate(ctx,
		&container.Config{Image: imageName},
		&container.HostConfig{Privileged: true},
		nil, nil, name,
	)
	if err != nil {
		return "", fmt.Errorf("failed to create worker container: %w", err)
	}

	if err := eng.ContainerStart(ctx, name, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("failed to start worker container: %w", err)
	}

	slog.Info("Worker created", "worker", name, "queue", queue.Name, "host", host.Name)
	return name, nil
}

// findWorker locates a worker container by name
func (f *Fleet) findWorker(ctx context.Context, workerName string) (*workerLocation, error) {
	workers, err := f.Workers(ctx, WorkerFilter{})
	if err != nil {
		return nil, err
	}
	for _, w := range workers {
		if w.Name == workerName {
			return &workerLocation{host: w.Host, running: w.Running}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrContainerNotFound, workerName)
}

type workerLocation struct {
	host    string
	running bool
}

// StartWorker starts a stopped worker container
func (f *Fleet) StartWorker(ctx context.Context, workerName string) error {
	slog.Info("Starting worker", "worker", workerName)

	loc, err := f.findWorker(ctx, workerName)
	if err != nil {
		return err
	}
	if loc.running {
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, workerName)
	}

	if err := f.engines[loc.host].ContainerStart(ctx, workerName, container.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start worker %s: %w", workerName, err)
	}

	slog.Info("Worker started", "worker", workerName, "host", loc.host)
	return nil
}

// StopWorker stops a running worker container
func (f *Fleet) StopWorker(ctx context.Context, workerName string) error {
	slog.Info("Stopping worker", "worker", workerName)

	loc, err := f.findWorker(ctx, workerName)
	if err != nil {
		return err
	}
	if !loc.running {
		return fmt.Errorf("%w: %s", ErrNotRunning, workerName)
	}

	if err := f.engines[loc.host].ContainerStop(ctx, workerName, container.StopOptions{}); err != nil {
		return fmt.Errorf("failed to stop worker %s: %w", workerName, err)
	}

	slog.Info("Worker stopped", "worker", workerName, "host", loc.host)
	return nil
}

// RemoveWorker deletes a worker container, stopping it first if running
func (f *Fleet) RemoveWorker(ctx context.Context, workerName string) error {
	slog.Info("Removing worker", "worker", workerName)

	loc, err := f.findWorker(ctx, workerName)
	if err != nil {
		return err
	}
	if loc.running {
		if err := f.engines[loc.host].ContainerStop(ctx, workerName, container.StopOptions{}); err != nil {
			return fmt.Errorf("failed to stop worker %s: %w", workerName, err)
		}
	}

	if err := f.engines[loc.host].ContainerRemove(ctx, workerName, container.RemoveOptions{}); err != nil {
		return fmt.Errorf("failed to remove worker %s: %w", workerName, err)
	}

	slog.Info("Worker removed", "worker", workerName, "host", loc.host)
	return nil
}

// StopAllWorkers stops every running worker matching the filter. Returns the
// number of workers stopped.
func (f *Fleet) StopAllWorkers(ctx context.Context, filter WorkerFilter) (int, error) {
	slog.Info("Stopping all workers", "queue", filter.Queue, "host", filter.Host)

	filter.OnlyRunning = true
	workers, err := f.Workers(ctx, filter)
	if err != nil {
		return 0, err
	}

	for _, w := range workers {
		if err := f.engines[w.Host].ContainerStop(ctx, w.Name, container.StopOptions{}); err != nil {
			return 0, fmt.Errorf("failed to stop worker %s: %w", w.Name, err)
		}
		slog.Debug("Worker stopped", "worker", w.Name)
	}

	slog.Info("All matching workers stopped", "count", len(workers))
	return len(workers), nil
}

// RemoveAllWorkers deletes every worker matching the filter, stopping the
// running ones first. Returns the number of workers removed.
func (f *Fleet) RemoveAllWorkers(ctx context.Context, filter WorkerFilter) (int, error) {
	slog.Info("Removing all workers", "queue", filter.Queue, "host", filter.Host)

	workers, err := f.Workers(ctx, filter)
	if err != nil {
		return 0, err
	}

	for _, w := range workers {
		if w.Running {
			if err := f.engines[w.Host].ContainerStop(ctx, w.Name, container.StopOptions{}); err != nil {
				return 0, fmt.Errorf("failed to stop worker %s: %w", w.Name, err)
			}
		}
		if err := f.engines[w.Host].ContainerRemove(ctx, w.Name, container.RemoveOptions{}); err != nil {
			return 0, fmt.Errorf("failed to remove worker %s: %w", w.Name, err)
		}
		slog.Debug("Worker removed", "worker", w.Name)
	}

	slog.Info("All matching workers removed", "count", len(workers))
	return len(workers), nil
}

// RemoveImage deletes an image tag from one host. Only the deployment's own
// images (project-prefixed tags) can be removed.
func (f *Fleet) RemoveImage(ctx context.Context, hostName, tag string) error {
	host, ok := f.cfg.Host(hostName)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownHost, hostName)
	}
	slog.Info("Removing image", "image", tag, "host", host.Name)

	tags, err := f.Images(ctx, host.Name)
	if err != nil {
		return err
	}
	found := false
	for _, t := range tags {
		if t == tag || t == tag+":latest" {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: %s on host %s", ErrImageNotFound, tag, host.Name)
	}

	if _, err := f.engines[host.Name].ImageRemove(ctx, tag, image.RemoveOptions{}); err != nil {
		return fmt.Errorf("failed to remove image %s: %w", tag, err)
	}

	slog.Info("Image removed", "image", tag, "host", host.Name)
	return nil
}
