package query

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"sheer/internal/engine"
	"sheer/internal/metrics"
)

// MappingCache memoizes the engine mapping per document type for the life
// of the process. Concurrent misses for one type share a single fetch.
type MappingCache struct {
	engine engine.Engine
	index  string

	mu     sync.RWMutex
	byType map[string]engine.Mapping
	group  singleflight.Group
}

func NewMappingCache(eng engine.Engine, index string) *MappingCache {
	return &MappingCache{
		engine: eng,
		index:  index,
		byType: make(map[string]engine.Mapping),
	}
}

// ForType returns the mapping for typename, fetching it on first use.
// Fetch failures are returned as-is and not cached.
func (c *MappingCache) ForType(ctx context.Context, typename string) (engine.Mapping, error) {
	if m, ok := c.cached(typename); ok {
		metrics.MappingCacheHit()
		return m, nil
	}

	// the shared fetch outlives any one caller; each caller still stops
	// waiting when its own ctx is done
	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(typename, func() (any, error) {
		if m, ok := c.cached(typename); ok {
			return m, nil
		}
		metrics.MappingCacheMiss()
		m, err := c.engine.GetMapping(fetchCtx, c.index, typename)
		if err != nil {
			return nil, fmt.Errorf("mapping for type %q: %w", typename, err)
		}
		c.mu.Lock()
		c.byType[typename] = m
		c.mu.Unlock()
		return m, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(engine.Mapping), nil
	}
}

func (c *MappingCache) cached(typename string) (engine.Mapping, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.byType[typename]
	return m, ok
}

// Clear drops every cached mapping. Needed after a schema change.
func (c *MappingCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byType = make(map[string]engine.Mapping)
}

func (c *MappingCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byType)
}
