// Package status caches a snapshot of the container infrastructure so that
// read-only queries never hit the remote Docker engines directly.
package status

import (
	"context"
	"time"
)

// Worker describes one worker container as last observed
type Worker struct {
	// Name is the container name on the Docker host
	Name string `json:"name"`

	// Host is the name of the host running the container
	Host string `json:"host"`

	// Queue is the queue the worker belongs to
	Queue string `json:"queue"`

	// Running reports whether the container is currently up
	Running bool `json:"running"`

	// Hostname is the hostname inside the container; empty while stopped
	Hostname string `json:"hostname,omitempty"`
}

// Snapshot is the cached view of the infrastructure. It is internally
// consistent only as of CollectedAt; consumers accept staleness bounded by
// the refresh interval and by the synchronous refresh the coordinator
// requests after every mutation.
type Snapshot struct {
	// CollectedAt is when this snapshot was taken
	CollectedAt time.Time `json:"collected_at"`

	// LinkerExists reports whether the linker container has been created
	LinkerExists bool `json:"linker_exists"`

	// LinkerRunning reports whether the linker container is up
	LinkerRunning bool `json:"linker_running"`

	// MasterHost is the host running the master container, empty if none
	MasterHost string `json:"master_host,omitempty"`

	// MasterRunning reports whether the master container is up
	MasterRunning bool `json:"master_running"`

	// Workers lists every worker container across all hosts
	Workers []Worker `json:"workers"`

	// Images maps each host name to the deployment's image tags present there
	Images map[string][]string `json:"images"`
}

// MasterExists reports whether a master container was found on any host
func (s *Snapshot) MasterExists() bool {
	return s.MasterHost != ""
}

// clone returns a deep copy so cached state is never aliased by readers
func (s *Snapshot) clone() *Snapshot {
	out := *s
	out.Workers = make([]Worker, len(s.Workers))
	copy(out.Workers, s.Workers)
	out.Images = make(map[string][]string, len(s.Images))
	for host, tags := range s.Images {
		out.Images[host] = append([]string(nil), tags...)
	}
	return &out
}

// Provider re-derives a snapshot by querying the external infrastructure.
// Collecting may take non-trivial wall-clock time since it talks to remote
// Docker engines.
//
//go:generate mockgen -destination=mocks/mock_provider.go -package=mocks github.com/exact-lab/dockerhood/internal/status Provider
type Provider interface {
	Collect(ctx context.Context) (*Snapshot, error)
}
