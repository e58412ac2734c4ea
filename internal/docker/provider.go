package docker

import (
	"context"
	"fmt"
	"time"

	"github.com/exact-lab/dockerhood/internal/status"
)

// Provider derives the status snapshot by querying every host in the fleet.
// It implements status.Provider.
type Provider struct {
	fleet *Fleet
}

// NewProvider creates a snapshot provider backed by the fleet
func NewProvider(fleet *Fleet) *Provider {
	return &Provider{fleet: fleet}
}

// Collect queries all hosts and assembles a fresh snapshot
func (p *Provider) Collect(ctx context.Context) (*status.Snapshot, error) {
	snap := &status.Snapshot{
		CollectedAt: time.Now(),
		Images:      make(map[string][]string, len(p.fleet.cfg.Hosts)),
	}

	var err error
	if snap.LinkerExists, err = p.fleet.LinkerExists(ctx); err != nil {
		return nil, fmt.Errorf("linker check: %w", err)
	}
	if snap.LinkerRunning, err = p.fleet.LinkerRunning(ctx); err != nil {
		return nil, fmt.Errorf("linker check: %w", err)
	}

	if snap.MasterHost, err = p.fleet.MasterHost(ctx); err != nil {
		return nil, fmt.Errorf("master check: %w", err)
	}
	if snap.MasterHost != "" {
		if snap.MasterRunning, err = p.fleet.MasterRunning(ctx); err != nil {
			return nil, fmt.Errorf("master check: %w", err)
		}
	}

	if snap.Workers, err = p.fleet.Workers(ctx, WorkerFilter{}); err != nil {
		return nil, fmt.Errorf("worker check: %w", err)
	}

	for _, h := range p.fleet.cfg.Hosts {
		tags, err := p.fleet.Images(ctx, h.Name)
		if err != nil {
			return nil, fmt.Errorf("image check: %w", err)
		}
		snap.Images[h.Name] = tags
	}

	return snap, nil
}
