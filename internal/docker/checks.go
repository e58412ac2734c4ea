package docker

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"

	"github.com/exact-lab/dockerhood/internal/status"
)

// containerState is the snapshot of one host's containers: which exist and
// which of those are running
type containerState struct {
	names   map[string]bool
	running map[string]bool
}

// listContainers returns the container state of one host. Names come back
// from the engine with a leading slash that is stripped here.
func listContainers(ctx context.Context, eng Engine) (*containerState, error) {
	summaries, err := eng.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	state := &containerState{
		names:   make(map[string]bool, len(summaries)),
		running: make(map[string]bool),
	}
	for _, summary := range summaries {
		if len(summary.Names) == 0 {
			continue
		}
		name := strings.TrimPrefix(summary.Names[0], "/")
		state.names[name] = true
		if summary.State == "running" {
			state.running[name] = true
		}
	}
	return state, nil
}

// linkerName returns the linker container name for this deployment
func (f *Fleet) linkerName() string {
	return f.cfg.Project + "_linker"
}

// masterName returns the master container name for this deployment
func (f *Fleet) masterName() string {
	return f.cfg.Project + "_master"
}

// workerImageName returns the worker image tag for a queue
func (f *Fleet) workerImageName(queue string) string {
	return fmt.Sprintf("%s_%s_worker", f.cfg.Project, queue)
}

// workerMask matches worker container names and captures their queue
func (f *Fleet) workerMask() *regexp.Regexp {
	return regexp.MustCompile(
		fmt.Sprintf(`^%s_(?P<queue>[a-z0-9-]+)_worker\d{3}$`, regexp.QuoteMeta(f.cfg.Project)),
	)
}

// LinkerExists reports whether the linker container has been created on the
// host expected to run it
func (f *Fleet) LinkerExists(ctx context.Context) (bool, error) {
	state, err := listContainers(ctx, f.linkerEngine())
	if err != nil {
		return false, err
	}
	return state.names[f.linkerName()], nil
}

// LinkerRunning reports whether the linker container is up
func (f *Fleet) LinkerRunning(ctx context.Context) (bool, error) {
	state, err := listContainers(ctx, f.linkerEngine())
	if err != nil {
		return false, err
	}
	return state.running[f.linkerName()], nil
}

// MasterHost returns the name of the host holding the master container, or
// empty if it has not been created anywhere
func (f *Fleet) MasterHost(ctx context.Context) (string, error) {
	for _, h := range f.cfg.Hosts {
		state, err := listContainers(ctx, f.engines[h.Name])
		if err != nil {
			return "", fmt.Errorf("host %s: %w", h.Name, err)
		}
		if state.names[f.masterName()] {
			return h.Name, nil
		}
	}
	return "", nil
}

// MasterRunning reports whether the master container is up on any host
func (f *Fleet) MasterRunning(ctx context.Context) (bool, error) {
	host, err := f.MasterHost(ctx)
	if err != nil || host == "" {
		return false, err
	}
	state, err := listContainers(ctx, f.engines[host])
	if err != nil {
		return false, fmt.Errorf("host %s: %w", host, err)
	}
	return state.running[f.masterName()], nil
}

// WorkerFilter restricts which workers a query returns
type WorkerFilter struct {
	// Queue restricts to workers of one queue (normalized before use)
	Queue string

	// Host restricts to workers on one host
	Host string

	// OnlyRunning drops stopped workers
	OnlyRunning bool
}

// Workers returns the worker containers across the fleet, optionally
// filtered. A running worker's entry includes its container hostname.
func (f *Fleet) Workers(ctx context.Context, filter WorkerFilter) ([]status.Worker, error) {
	if filter.Queue != "" {
		queue, ok := f.cfg.Queue(filter.Queue)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownQueue, filter.Queue)
		}
		filter.Queue = queue.Name
	}
	if filter.Host != "" {
		host, ok := f.cfg.Host(filter.Host)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownHost, filter.Host)
		}
		filter.Host = host.Name
	}

	mask := f.workerMask()
	var workers []status.Worker
	for _, h := range f.cfg.Hosts {
		if filter.Host != "" && filter.Host != h.Name {
			continue
		}

		state, err := listContainers(ctx, f.engines[h.Name])
		if err != nil {
			return nil, fmt.Errorf("host %s: %w", h.Name, err)
		}

		for name := range state.names {
			match := mask.FindStringSubmatch(name)
			if match == nil {
				continue
			}
			queue := match[mask.SubexpIndex("queue")]
			if filter.Queue != "" && filter.Queue != queue {
				continue
			}

			worker := status.Worker{
				Name:    name,
				Host:    h.Name,
				Queue:   queue,
				Running: state.running[name],
			}
			if !worker.Running && filter.OnlyRunning {
				continue
			}
			if worker.Running {
				inspect, err := f.engines[h.Name].ContainerInspect(ctx, name)
				if err != nil {
					return nil, fmt.Errorf("failed to inspect worker %s: %w", name, err)
				}
				if inspect.Config != nil {
					worker.Hostname = inspect.Config.Hostname
				}
			}
			workers = append(workers, worker)
		}
	}
	return workers, nil
}

// Images returns the deployment's image tags on one host, i.e. the tags
// prefixed with the project name
func (f *Fleet) Images(ctx context.Context, host string) ([]string, error) {
	eng, err := f.Engine(host)
	if err != nil {
		return nil, err
	}

	summaries, err := eng.ImageList(ctx, image.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list images on host %s: %w", host, err)
	}

	prefix := f.cfg.Project + "_"
	var tags []string
	for _, summary := range summaries {
		for _, tag := range summary.RepoTags {
			if strings.HasPrefix(tag, prefix) {
				tags = append(tags, tag)
			}
		}
	}
	return tags, nil
}

// imageExists reports whether a tag is present on the host. Untagged
// references default to :latest, mirroring the engine's own resolution.
func imageExists(ctx context.Context, eng Engine, name string) (bool, error) {
	if !strings.Contains(name, ":") {
		name += ":latest"
	}

	summaries, err := eng.ImageList(ctx, image.ListOptions{})
	if err != nil {
		return false, fmt.Errorf("failed to list images: %w", err)
	}
	for _, summary := range summaries {
		for _, tag := range summary.RepoTags {
			if tag == name {
				return true, nil
			}
		}
	}

	slog.Debug("Image not present", "image", name)
	return false, nil
}
