// Package docker talks to the remote Docker engines of the deployment. It
// holds the per-host clients, the read-only checks feeding the status
// snapshot, and the container lifecycle handlers executed by requests.
package docker

import (
	"context"
	"fmt"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/exact-lab/dockerhood/internal/config"
)

// Engine is the subset of the Docker Engine API this service uses.
// *client.Client satisfies it.
//
//go:generate mockgen -destination=mocks/mock_engine.go -package=mocks github.com/exact-lab/dockerhood/internal/docker Engine
type Engine interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig,
		networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string,
	) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error)
	ImageList(ctx context.Context, options image.ListOptions) ([]image.Summary, error)
	ImageRemove(ctx context.Context, imageID string, options image.RemoveOptions) ([]image.DeleteResponse, error)
}

// Fleet holds one Docker engine client per configured host
type Fleet struct {
	cfg     *config.Config
	engines map[string]Engine
}

// NewFleet creates a client for every configured host. Clients negotiate the
// API version on first use, so unreachable hosts fail at call time, not here.
func NewFleet(cfg *config.Config) (*Fleet, error) {
	engines := make(map[string]Engine, len(cfg.Hosts))
	for _, h := range cfg.Hosts {
		cli, err := client.NewClientWithOpts(
			client.WithHost(h.Endpoint),
			client.WithAPIVersionNegotiation(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create Docker client for host %s: %w", h.Name, err)
		}
		engines[h.Name] = cli
	}
	return &Fleet{cfg: cfg, engines: engines}, nil
}

// NewFleetWithEngines creates a fleet from pre-built engine clients, keyed by
// host name. Used by tests to substitute mocks.
func NewFleetWithEngines(cfg *config.Config, engines map[string]Engine) *Fleet {
	return &Fleet{cfg: cfg, engines: engines}
}

// Engine returns the client for the named host
func (f *Fleet) Engine(host string) (Engine, error) {
	eng, ok := f.engines[host]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownHost, host)
	}
	return eng, nil
}

// linkerEngine returns the client for the host expected to run the linker
func (f *Fleet) linkerEngine() Engine {
	return f.engines[f.cfg.LinkerHost]
}
