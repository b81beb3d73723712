// Package tokencache holds short-lived credentials shared by outbound transports.
package tokencache

import (
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

const (
	DefaultTTL        = 30 * time.Minute
	DefaultMaxEntries = 1000
)

// Options bounds the cache by entry count and default lifetime.
type Options struct {
	TTL        time.Duration
	MaxEntries int64
}

// Cache is a size-bounded string cache with per-entry expiry.
// It is safe for concurrent use; readers may briefly miss a value that was
// just written.
type Cache struct {
	store *ristretto.Cache[string, string]
	ttl   time.Duration
}

func New(opts Options) (*Cache, error) {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}

	store, err := ristretto.NewCache(&ristretto.Config[string, string]{
		NumCounters:        opts.MaxEntries * 10,
		MaxCost:            opts.MaxEntries,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create token cache: %w", err)
	}

	return &Cache{store: store, ttl: opts.TTL}, nil
}

// Get returns the cached value for key if present and not expired.
func (c *Cache) Get(key string) (string, bool) {
	return c.store.Get(key)
}

// Put stores value under key for the default TTL.
func (c *Cache) Put(key, value string) bool {
	return c.PutWithTTL(key, value, c.ttl)
}

// PutWithTTL stores value under key; ttl is capped at the cache default.
func (c *Cache) PutWithTTL(key, value string, ttl time.Duration) bool {
	if ttl <= 0 || ttl > c.ttl {
		ttl = c.ttl
	}
	ok := c.store.SetWithTTL(key, value, 1, ttl)
	c.store.Wait()
	return ok
}

// Delete evicts key so the next Get misses.
func (c *Cache) Delete(key string) {
	c.store.Del(key)
	c.store.Wait()
}

func (c *Cache) Close() {
	c.store.Close()
}
