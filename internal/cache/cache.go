// Package cache keeps short-lived per-user read models in ristretto.
package cache

import (
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/GregMSThompson/moneyloop/internal/metrics"
)

// UserCache holds one value per user, tagged with the store version it was
// loaded at. A lookup only hits when the caller's current store version
// matches, so entries written by another instance are never served.
type UserCache[V any] struct {
	name  string
	ttl   time.Duration
	store *ristretto.Cache[string, entry[V]]
}

type entry[V any] struct {
	version string
	value   V
}

// NewUserCache returns a disabled cache when ttl is not positive.
func NewUserCache[V any](name string, ttl time.Duration, maxEntries int64) (*UserCache[V], error) {
	c := &UserCache[V]{name: name, ttl: ttl}
	if ttl <= 0 {
		return c, nil
	}
	store, err := ristretto.NewCache(&ristretto.Config[string, entry[V]]{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
		// Cost counts entries, not bytes.
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	c.store = store
	return c, nil
}

// Get returns the value cached for uid if it was loaded at version. A
// mismatched entry is dropped.
func (c *UserCache[V]) Get(uid, version string) (V, bool) {
	var zero V
	if c.store == nil {
		return zero, false
	}
	e, ok := c.store.Get(uid)
	if !ok {
		metrics.RecordCacheLookup(c.name, metrics.CacheMiss)
		return zero, false
	}
	if e.version != version {
		metrics.RecordCacheLookup(c.name, metrics.CacheStale)
		c.store.Del(uid)
		return zero, false
	}
	metrics.RecordCacheLookup(c.name, metrics.CacheHit)
	return e.value, true
}

// Set stores v as loaded at version.
func (c *UserCache[V]) Set(uid, version string, v V) {
	if c.store == nil {
		return
	}
	c.store.SetWithTTL(uid, entry[V]{version: version, value: v}, 1, c.ttl)
	c.store.Wait()
}

// Invalidate drops the local entry. Other instances notice the change
// through the store version.
func (c *UserCache[V]) Invalidate(uid string) {
	if c.store != nil {
		c.store.Del(uid)
	}
}

func (c *UserCache[V]) Close() {
	if c.store != nil {
		c.store.Close()
	}
}
