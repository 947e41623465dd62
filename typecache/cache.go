// Package typecache is the in-process, TTL-bounded cache of resolved resource
// type configurations. It is the only mutable in-process state the store
// holds: read-mostly, written only on miss, with entries independently
// replaceable.
package typecache

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/singleflight"

	"github.com/resourcedb/resourcedb"
)

// DefaultTTL bounds how stale a cached type configuration may get before the
// registry is consulted again.
const DefaultTTL = time.Minute

type entry struct {
	cfg     *resourcedb.ResourceTypeConfig
	expires time.Time
}

// Cache resolves effective type configurations through the external registry
// and keeps them for a TTL. Concurrent readers are cheap; a miss refreshes
// through a single-writer-per-key flight so a hot type never stampedes the
// registry.
type Cache struct {
	registry resourcedb.TypeRegistry
	ttl      time.Duration
	clock    clock.Clock

	mu      sync.RWMutex
	entries map[string]entry
	group   singleflight.Group
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		c.ttl = ttl
	}
}

// WithClock substitutes the wall clock for tests.
func WithClock(cl clock.Clock) Option {
	return func(c *Cache) {
		c.clock = cl
	}
}

// New returns a cache backed by the given registry.
func New(registry resourcedb.TypeRegistry, opts ...Option) *Cache {
	c := &Cache{
		registry: registry,
		ttl:      DefaultTTL,
		clock:    clock.New(),
		entries:  make(map[string]entry),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Config returns the effective configuration for typ, consulting the registry
// on a miss or an expired entry. Registry failures are not cached.
func (c *Cache) Config(ctx context.Context, typ string) (*resourcedb.ResourceTypeConfig, error) {
	c.mu.RLock()
	e, ok := c.entries[typ]
	c.mu.RUnlock()
	if ok && c.clock.Now().Before(e.expires) {
		return e.cfg, nil
	}

	v, err, _ := c.group.Do(typ, func() (interface{}, error) {
		// re-check under the flight: a concurrent refresh may have landed
		c.mu.RLock()
		e, ok := c.entries[typ]
		c.mu.RUnlock()
		if ok && c.clock.Now().Before(e.expires) {
			return e.cfg, nil
		}

		cfg, err := resourcedb.ResolveTypeConfig(ctx, c.registry, typ)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.entries[typ] = entry{cfg: cfg, expires: c.clock.Now().Add(c.ttl)}
		c.mu.Unlock()
		return cfg, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*resourcedb.ResourceTypeConfig), nil
}

// Invalidate drops the entry for typ, forcing the next Config through the
// registry.
func (c *Cache) Invalidate(typ string) {
	c.mu.Lock()
	delete(c.entries, typ)
	c.mu.Unlock()
}
