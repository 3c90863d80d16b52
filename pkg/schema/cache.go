package schema

import (
	"context"
	"fmt"
	"sync"

	"github.com/datazip-inc/binlogdir/constants"
	"github.com/datazip-inc/binlogdir/logger"
	"github.com/datazip-inc/binlogdir/types"
)

// Cache holds at most capacity snapshots and evicts the oldest inserted one.
// One lock guards both the entries and store fall-through, so a token missing
// from the cache is loaded from the store once even under concurrent Gets.
type Cache struct {
	mu       sync.Mutex
	capacity int
	store    Store
	entries  map[string]*types.SchemaSnapshot
	order    []string
}

func NewCache(capacity int, store Store) *Cache {
	if capacity <= 0 {
		capacity = constants.DefaultSchemaCacheCapacity
	}
	return &Cache{
		capacity: capacity,
		store:    store,
		entries:  make(map[string]*types.SchemaSnapshot, capacity),
	}
}

func (c *Cache) Get(ctx context.Context, token string) (*types.SchemaSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if snapshot, found := c.entries[token]; found {
		return snapshot, nil
	}
	if c.store == nil {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, token)
	}

	logger.Debugf("schema cache miss for %s, loading from store", token)
	snapshot, err := c.store.Load(ctx, token)
	if err != nil {
		return nil, err
	}
	c.insert(token, snapshot)
	return snapshot, nil
}

// Put writes through to the store before caching
func (c *Cache) Put(ctx context.Context, token string, snapshot *types.SchemaSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.store != nil {
		if err := c.store.Save(ctx, token, snapshot); err != nil {
			return fmt.Errorf("failed to save schema snapshot %s: %s", token, err)
		}
	}
	c.insert(token, snapshot)
	return nil
}

func (c *Cache) insert(token string, snapshot *types.SchemaSnapshot) {
	if _, found := c.entries[token]; found {
		c.entries[token] = snapshot
		return
	}
	for len(c.order) >= c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
		logger.Debugf("evicted schema snapshot %s", oldest)
	}
	c.entries[token] = snapshot
	c.order = append(c.order, token)
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
