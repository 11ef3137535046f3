package terminal

import (
	"context"
	"sync"

	"github.com/libraryterminal/archive/internal/store"
)

// IndexCache remembers, per collection, the ordered document identifiers of
// the last listing so that user-visible 1-based ordinals can be translated
// back into store identifiers. The cache is advisory: another client can
// mutate a collection after the listing, and ordinal commands still resolve
// against the cached ordering. That staleness window is part of the design,
// not something to hide behind fresh reads.
type IndexCache struct {
	mu      sync.Mutex
	store   *store.Store
	entries map[string][]string
}

// NewIndexCache constructs an empty cache bound to the given store.
func NewIndexCache(documents *store.Store) *IndexCache {
	return &IndexCache{
		store:   documents,
		entries: make(map[string][]string),
	}
}

// Refresh lists the collection in ascending timestamp order, replaces the
// cached identifier sequence for it, and returns the snapshots for
// rendering.
func (c *IndexCache) Refresh(ctx context.Context, collection string) ([]store.Snapshot, error) {
	snapshots, err := c.store.List(ctx, collection)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(snapshots))
	for _, snapshot := range snapshots {
		ids = append(ids, snapshot.ID)
	}

	c.mu.Lock()
	c.entries[collection] = ids
	c.mu.Unlock()

	return snapshots, nil
}

// Append records a locally created document at the tail of the cached
// ordering. Fresh documents carry the newest timestamp, so the tail is
// where the next listing would place them anyway. Appends from this session
// only; external additions still require a Refresh.
func (c *IndexCache) Append(collection, id string) {
	c.mu.Lock()
	c.entries[collection] = append(c.entries[collection], id)
	c.mu.Unlock()
}

// Resolve translates a 1-based ordinal into the cached document identifier.
// It fails for non-positive ordinals, ordinals beyond the cached sequence,
// and collections that have never been listed.
func (c *IndexCache) Resolve(collection string, ordinal int) (string, bool) {
	if ordinal < 1 {
		return "", false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ids := c.entries[collection]
	if ordinal > len(ids) {
		return "", false
	}
	return ids[ordinal-1], true
}
