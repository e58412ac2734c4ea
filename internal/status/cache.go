package status

import (
	"context"
	"fmt"
	"sync"
)

// Cache holds the last completed snapshot. It is written only by whoever
// calls Refresh (the updater goroutine) and read by everybody else.
type Cache struct {
	provider Provider

	mu       sync.RWMutex
	snapshot *Snapshot
}

// NewCache creates a cache backed by the given provider. The cache starts
// empty; the updater performs the first refresh when it starts.
func NewCache(provider Provider) *Cache {
	return &Cache{
		provider: provider,
		snapshot: &Snapshot{Images: map[string][]string{}},
	}
}

// Refresh synchronously re-collects the snapshot from the provider and
// commits it. On error the previous snapshot is kept.
func (c *Cache) Refresh(ctx context.Context) error {
	snap, err := c.provider.Collect(ctx)
	if err != nil {
		return fmt.Errorf("failed to collect infrastructure status: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot = snap
	return nil
}

// Snapshot returns a copy of the last completed snapshot. It never blocks on
// a refresh in progress.
func (c *Cache) Snapshot() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot.clone()
}
