// Package chunkcache holds the byte chunks fetched for one open remote object.
//
// Chunks are keyed by their start offset and kept merged: every Put coalesces
// the new bytes with any touching or overlapping entry, so a run of cached
// bytes always lives in exactly one chunk. Merging always produces a new
// buffer; stored slices are never mutated.
//
// A cache may be bounded by a byte budget. Least recently used chunks are
// evicted first and an eviction only ever shows up as a cache miss.
package chunkcache

import (
	"slices"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"cogrange/src/ranges"
)

type entry struct {
	chunk   ranges.Chunk
	lastUse atomic.Uint64
}

func (e *entry) end() uint64 {
	return e.chunk.End()
}

// Cache is safe for concurrent use.
type Cache struct {
	mu       sync.RWMutex
	entries  []*entry // sorted by offset, pairwise non-touching
	size     uint64
	maxBytes uint64
	clock    atomic.Uint64

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// Stats is a snapshot of cache activity
type Stats struct {
	Chunks    int    `json:"chunks"`
	Bytes     uint64 `json:"bytes"`
	Hits      int64  `json:"hits"`
	Misses    int64  `json:"misses"`
	Evictions int64  `json:"evictions"`
}

// New creates a cache holding at most maxBytes bytes, 0 means unbounded.
// The most recently stored chunk is never evicted, even when it alone
// exceeds the budget.
func New(maxBytes uint64) *Cache {
	return &Cache{maxBytes: maxBytes}
}

func (c *Cache) tick() uint64 {
	return c.clock.Add(1)
}

// Put stores bytes fetched at offset, merging them with cached neighbours
func (c *Cache) Put(offset uint64, b []byte) {
	if len(b) == 0 {
		return
	}

	// private copy so callers may reuse their buffer
	added := ranges.Chunk{Offset: offset, Bytes: slices.Clone(b)}
	addedRange := added.Range()

	c.mu.Lock()
	defer c.mu.Unlock()

	// entries that touch the new chunk form one contiguous run in the sorted slice
	first := sort.Search(len(c.entries), func(i int) bool {
		e := c.entries[i]
		return e.chunk.Range().Touches(addedRange) || e.chunk.Offset > addedRange.End
	})
	last := first
	for last < len(c.entries) && c.entries[last].chunk.Range().Touches(addedRange) {
		last++
	}

	// existing bytes come first so they win any overlap at an equal offset
	group := make([]ranges.Chunk, 0, last-first+1)
	for _, e := range c.entries[first:last] {
		group = append(group, e.chunk)
		c.size -= uint64(len(e.chunk.Bytes))
	}
	group = append(group, added)

	merged := ranges.CoalesceChunks(group)
	if len(merged) != 1 {
		// cannot happen: every member touches the added chunk
		logrus.Warnf("chunk cache merge at offset %d produced %d chunks", offset, len(merged))
	}

	replacement := make([]*entry, 0, len(merged))
	now := c.tick()
	for _, chunk := range merged {
		e := &entry{chunk: chunk}
		e.lastUse.Store(now)
		replacement = append(replacement, e)
		c.size += uint64(len(chunk.Bytes))
	}

	c.entries = slices.Replace(c.entries, first, last, replacement...)
	c.evictLocked(replacement)
}

// evictLocked drops least recently used chunks until the budget holds,
// never touching the entries in keep.
func (c *Cache) evictLocked(keep []*entry) {
	if c.maxBytes == 0 {
		return
	}

	for c.size > c.maxBytes {
		victim := -1
		for i, e := range c.entries {
			if slices.Contains(keep, e) {
				continue
			}
			if victim == -1 || e.lastUse.Load() < c.entries[victim].lastUse.Load() {
				victim = i
			}
		}
		if victim == -1 {
			return
		}

		evicted := c.entries[victim]
		c.size -= uint64(len(evicted.chunk.Bytes))
		c.entries = slices.Delete(c.entries, victim, victim+1)
		c.evictions.Add(1)
		logrus.Debugf("Evicted chunk %v (%d bytes) from chunk cache", evicted.chunk.Range(), len(evicted.chunk.Bytes))
	}
}

// Get returns the chunk stored exactly at offset
func (c *Cache) Get(offset uint64) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	i := sort.Search(len(c.entries), func(i int) bool {
		return c.entries[i].chunk.Offset >= offset
	})
	if i < len(c.entries) && c.entries[i].chunk.Offset == offset {
		e := c.entries[i]
		e.lastUse.Store(c.tick())
		c.hits.Add(1)
		return e.chunk.Bytes, true
	}

	c.misses.Add(1)
	return nil, false
}

// Missing returns the sub-ranges of r that are not cached yet, in ascending
// order. A fully cached range yields nil.
func (c *Cache) Missing(r ranges.ByteRange) []ranges.ByteRange {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var missing []ranges.ByteRange
	cursor := r.Start

	i := sort.Search(len(c.entries), func(i int) bool {
		return c.entries[i].end() >= r.Start
	})
	for ; i < len(c.entries); i++ {
		e := c.entries[i]
		if e.chunk.Offset > r.End {
			break
		}
		if e.chunk.Offset > cursor {
			missing = append(missing, ranges.ByteRange{Start: cursor, End: e.chunk.Offset - 1})
		}
		if e.end() >= r.End {
			return missing
		}
		cursor = e.end() + 1
	}

	return append(missing, ranges.ByteRange{Start: cursor, End: r.End})
}

// Slice returns a copy of the bytes of r when the whole range is cached
func (c *Cache) Slice(r ranges.ByteRange) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	i := sort.Search(len(c.entries), func(i int) bool {
		return c.entries[i].end() >= r.Start
	})
	if i == len(c.entries) {
		c.misses.Add(1)
		return nil, false
	}

	e := c.entries[i]
	if e.chunk.Offset > r.Start || e.end() < r.End {
		c.misses.Add(1)
		return nil, false
	}

	e.lastUse.Store(c.tick())
	c.hits.Add(1)
	from := r.Start - e.chunk.Offset
	return slices.Clone(e.chunk.Bytes[from : from+r.Length()]), true
}

// Chunks returns a snapshot of the cached chunks keyed by offset
func (c *Cache) Chunks() map[uint64][]byte {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[uint64][]byte, len(c.entries))
	for _, e := range c.entries {
		out[e.chunk.Offset] = e.chunk.Bytes
	}
	return out
}

// Len returns the number of cached chunks
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Size returns the number of cached bytes
func (c *Cache) Size() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.size
}

// Stats returns a snapshot of cache activity
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Stats{
		Chunks:    len(c.entries),
		Bytes:     c.size,
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}
