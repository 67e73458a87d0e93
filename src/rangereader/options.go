package rangereader

import (
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"cogrange/src/tileindex"
)

// DefaultConcurrency is the pool size of a reader created without a shared pool
const DefaultConcurrency = 16

// Option customizes a RangeReader
type Option func(*RangeReader)

// WithPool makes the reader draw fetch slots from a pool shared with other
// readers of the same backend.
func WithPool(pool *semaphore.Weighted) Option {
	return func(rr *RangeReader) {
		rr.pool = pool
	}
}

// WithConcurrency gives the reader a private pool of n fetch slots
func WithConcurrency(n int64) Option {
	return func(rr *RangeReader) {
		if n > 0 {
			rr.pool = semaphore.NewWeighted(n)
		}
	}
}

// WithTimeout bounds every single transport fetch, 0 disables the bound
func WithTimeout(d time.Duration) Option {
	return func(rr *RangeReader) {
		rr.timeout = d
	}
}

// WithCacheLimit bounds the chunk cache to maxBytes, 0 means unbounded
func WithCacheLimit(maxBytes uint64) Option {
	return func(rr *RangeReader) {
		rr.cacheLimit = maxBytes
	}
}

// WithTileIndex seeds the reader with a tile layout known up front
func WithTileIndex(idx *tileindex.TileRangeIndex) Option {
	return func(rr *RangeReader) {
		rr.index = idx
	}
}

// WithLogger replaces the base logger the reader derives its entry from
func WithLogger(entry *logrus.Entry) Option {
	return func(rr *RangeReader) {
		rr.log = entry
	}
}
