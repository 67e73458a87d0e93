package transport

import (
	"fmt"

	"github.com/hashicorp/golang-lru/arc/v2"
	"golang.org/x/sync/singleflight"
)

// CacheKey identifies a cached backend value by the credentials it was
// resolved with and the object it describes. Client handles leave Object empty.
type CacheKey struct {
	Identity string
	Object   string
}

func (k CacheKey) String() string {
	return k.Identity + "\x00" + k.Object
}

// HandleCache is a bounded, process-wide cache of values that are expensive to
// build, such as authenticated clients or object metadata. Concurrent misses
// for the same key share a single construction.
type HandleCache[V any] struct {
	cache *arc.ARCCache[CacheKey, V]
	group singleflight.Group
}

// NewHandleCache creates a cache holding at most size values
func NewHandleCache[V any](size int) (*HandleCache[V], error) {
	cache, err := arc.NewARC[CacheKey, V](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create handle cache: %w", err)
	}
	return &HandleCache[V]{cache: cache}, nil
}

// Get returns the cached value for key
func (h *HandleCache[V]) Get(key CacheKey) (V, bool) {
	return h.cache.Get(key)
}

// Add stores a value, replacing any previous one
func (h *HandleCache[V]) Add(key CacheKey, value V) {
	h.cache.Add(key, value)
}

// GetOrCreate returns the cached value for key, building and caching it with
// create on a miss. Failed constructions are not cached.
func (h *HandleCache[V]) GetOrCreate(key CacheKey, create func() (V, error)) (V, error) {
	if v, ok := h.cache.Get(key); ok {
		return v, nil
	}

	v, err, _ := h.group.Do(key.String(), func() (any, error) {
		if v, ok := h.cache.Get(key); ok {
			return v, nil
		}
		v, err := create()
		if err != nil {
			return v, err
		}
		h.cache.Add(key, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return v.(V), nil
}

// Invalidate drops every cached value. Holders of a value keep using it, only
// later lookups rebuild.
func (h *HandleCache[V]) Invalidate() {
	h.cache.Purge()
}

// Len returns the number of cached values
func (h *HandleCache[V]) Len() int {
	return h.cache.Len()
}
