// Package rangereader is the read path the image-format layer talks to.
//
// A RangeReader is one session on one remote object. It fetches the object
// header once, answers arbitrary sets of byte ranges by fetching only what its
// chunk cache does not already hold, coalesces the remainder into as few
// requests as possible and runs those concurrently on a bounded pool.
package rangereader

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"cogrange/src/chunkcache"
	"cogrange/src/ranges"
	"cogrange/src/tileindex"
	"cogrange/src/transport"
)

// State is the lifecycle stage of a reader
type State int32

const (
	StateUnopened State = iota
	StateHeaderKnown
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnopened:
		return "unopened"
	case StateHeaderKnown:
		return "header-known"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return "State(" + strconv.Itoa(int(s)) + ")"
	}
}

// Stats is a snapshot of reader activity
type Stats struct {
	Session      string           `json:"session"`
	State        string           `json:"state"`
	Fetches      int64            `json:"fetches"`
	BytesFetched int64            `json:"bytes_fetched"`
	CachedReads  int64            `json:"cached_reads"`
	FileSize     int64            `json:"file_size"`
	Cache        chunkcache.Stats `json:"cache"`
}

// maxEnd is the last offset a fetch may address, transports carry offsets
// and lengths as int64
const maxEnd = math.MaxInt64 - 1

// RangeReader is safe for concurrent use.
type RangeReader struct {
	id        string
	log       *logrus.Entry
	transport transport.Transport

	pool       *semaphore.Weighted
	timeout    time.Duration
	cacheLimit uint64

	index *tileindex.TileRangeIndex
	cache *chunkcache.Cache

	headerLength uint64
	headerGroup  singleflight.Group

	mu    sync.RWMutex
	state State
	// header memo: the longest header served so far, complete means the
	// object ended inside it
	header         []byte
	headerComplete bool

	size         atomic.Int64
	fetches      atomic.Int64
	bytesFetched atomic.Int64
	cachedReads  atomic.Int64
}

// New binds a reader to an open transport. No request is made.
func New(t transport.Transport, headerLength uint64, opts ...Option) *RangeReader {
	rr := &RangeReader{
		id:           uuid.NewString(),
		log:          logrus.NewEntry(logrus.StandardLogger()),
		transport:    t,
		headerLength: headerLength,
	}
	rr.size.Store(transport.UnknownSize)

	for _, opt := range opts {
		opt(rr)
	}

	if rr.pool == nil {
		rr.pool = semaphore.NewWeighted(DefaultConcurrency)
	}
	if rr.index == nil {
		rr.index = tileindex.New(headerLength)
	}
	rr.cache = chunkcache.New(rr.cacheLimit)
	rr.log = rr.log.WithField("session", rr.id)

	return rr
}

// ID returns the session id used in log lines
func (rr *RangeReader) ID() string {
	return rr.id
}

// TileIndex returns the tile layout of this session
func (rr *RangeReader) TileIndex() *tileindex.TileRangeIndex {
	return rr.index
}

// State returns the current lifecycle stage
func (rr *RangeReader) State() State {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	return rr.state
}

func (rr *RangeReader) checkOpen() error {
	if rr.State() == StateClosed {
		return ranges.ErrClosed
	}
	return nil
}

func (rr *RangeReader) advance(to State) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	if rr.state != StateClosed && rr.state < to {
		rr.state = to
	}
}

// ReadHeader reads the header with the length the reader was opened with
func (rr *RangeReader) ReadHeader(ctx context.Context) ([]byte, error) {
	return rr.ReadHeaderLength(ctx, rr.headerLength)
}

// ReadHeaderLength returns the first n bytes of the object, fewer when the
// object is shorter. Once tiles are registered n is clamped so the header
// never extends into tile data.
//
// Only one fetch happens under concurrent first calls, later calls are served
// from memory. The shared fetch outlives a caller that gives up, it is bounded
// by the per-fetch timeout instead.
func (rr *RangeReader) ReadHeaderLength(ctx context.Context, n uint64) ([]byte, error) {
	if err := rr.checkOpen(); err != nil {
		return nil, err
	}

	if rr.index.Len() > 0 {
		n = min(n, rr.index.HeaderLength())
	}
	if n == 0 {
		return []byte{}, nil
	}
	if n > maxEnd {
		return nil, fmt.Errorf("%w: header length %d is not addressable", ranges.ErrInvalidRange, n)
	}

	if header, ok := rr.memoizedHeader(n); ok {
		return header, nil
	}

	detached := context.WithoutCancel(ctx)
	ch := rr.headerGroup.DoChan(strconv.FormatUint(n, 10), func() (any, error) {
		if header, ok := rr.memoizedHeader(n); ok {
			return header, nil
		}
		return rr.fetchHeader(detached, n)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, fmt.Errorf("failed to read header of %d bytes: %w", n, ctx.Err())
	}
	if res.Err != nil {
		return nil, fmt.Errorf("failed to read header of %d bytes: %w", n, res.Err)
	}
	if res.Shared {
		rr.log.Debugf("Header read of %d bytes shared with a concurrent caller", n)
	}

	rr.advance(StateHeaderKnown)
	return slices.Clone(res.Val.([]byte)), nil
}

func (rr *RangeReader) memoizedHeader(n uint64) ([]byte, bool) {
	rr.mu.RLock()
	defer rr.mu.RUnlock()

	if uint64(len(rr.header)) >= n {
		return slices.Clone(rr.header[:n]), true
	}
	if rr.headerComplete {
		return slices.Clone(rr.header), true
	}
	return nil, false
}

// fetchHeader fetches [0, n], one byte past the header, so a later read that
// starts right after the header finds it cached.
func (rr *RangeReader) fetchHeader(ctx context.Context, n uint64) ([]byte, error) {
	local, err := rr.gather(ctx, []ranges.ByteRange{{Start: 0, End: n}})
	if errors.Is(err, ranges.ErrInvalidRange) {
		// nothing at offset 0, the object is empty
		rr.mu.Lock()
		if len(rr.header) == 0 {
			rr.header = []byte{}
			rr.headerComplete = true
		}
		rr.mu.Unlock()
		rr.size.Store(0)
		rr.log.Debug("Object is empty, header has no bytes")
		return []byte{}, nil
	}
	if err != nil {
		return nil, err
	}

	data, ok := local.Get(0)
	if !ok {
		return nil, fmt.Errorf("%w: no header bytes returned", ranges.ErrTransport)
	}

	complete := uint64(len(data)) <= n
	header := data[:min(n, uint64(len(data)))]

	rr.mu.Lock()
	if len(header) > len(rr.header) {
		rr.header = slices.Clone(header)
		rr.headerComplete = complete
	}
	rr.mu.Unlock()

	rr.log.Debugf("Fetched header of %d bytes", len(header))
	return header, nil
}

// Read returns the bytes of every requested range keyed by range start.
// Either every range is delivered in full or an error is returned. When two
// ranges share a start the longer one is returned.
func (rr *RangeReader) Read(ctx context.Context, rs []ranges.ByteRange) (map[uint64][]byte, error) {
	if err := rr.checkOpen(); err != nil {
		return nil, err
	}

	for _, r := range rs {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		if r.End > maxEnd {
			return nil, fmt.Errorf("%w: %v is beyond the addressable offsets", ranges.ErrInvalidRange, r)
		}
	}
	if size := rr.size.Load(); size >= 0 {
		for _, r := range rs {
			if r.End >= uint64(size) {
				return nil, fmt.Errorf("%w: %v ends beyond the object (%d bytes)", ranges.ErrInvalidRange, r, size)
			}
		}
	}

	result := make(map[uint64][]byte, len(rs))
	if len(rs) == 0 {
		return result, nil
	}

	local, err := rr.gather(ctx, rs)
	if err != nil {
		return nil, err
	}

	for _, r := range rs {
		if existing, ok := result[r.Start]; ok && uint64(len(existing)) >= r.Length() {
			continue
		}
		data, ok := local.Slice(r)
		if !ok {
			return nil, fmt.Errorf("%w: %v ends beyond the object", ranges.ErrInvalidRange, r)
		}
		result[r.Start] = data
	}

	rr.advance(StateReady)
	return result, nil
}

// ReadTiles reads the given tiles through the tile index, keyed by tile index
func (rr *RangeReader) ReadTiles(ctx context.Context, tileIndices ...uint64) (map[uint64][]byte, error) {
	rs, err := rr.index.Ranges(tileIndices...)
	if err != nil {
		return nil, err
	}

	data, err := rr.Read(ctx, rs)
	if err != nil {
		return nil, err
	}

	tiles := make(map[uint64][]byte, len(tileIndices))
	for i, tileIndex := range tileIndices {
		tiles[tileIndex] = data[rs[i].Start]
	}
	return tiles, nil
}

// gather collects the bytes of rs into a private, unbounded cache: whatever
// the shared cache already holds is copied, the rest is fetched. Copying up
// front keeps a concurrent eviction from losing bytes this call relies on.
// Ranges running past the end of the object come back short.
func (rr *RangeReader) gather(ctx context.Context, rs []ranges.ByteRange) (*chunkcache.Cache, error) {
	local := chunkcache.New(0)

	var missing []ranges.ByteRange
	for _, r := range rs {
		gaps := rr.cache.Missing(r)
		for _, cached := range subtract(r, gaps) {
			data, ok := rr.cache.Slice(cached)
			if !ok {
				// evicted since Missing
				missing = append(missing, cached)
				continue
			}
			local.Put(cached.Start, data)
		}
		missing = append(missing, gaps...)
	}

	if len(missing) == 0 {
		rr.cachedReads.Add(1)
		return local, nil
	}

	composed, err := ranges.Compose(missing)
	if err != nil {
		return nil, err
	}

	if err := rr.fetchAll(ctx, composed, local); err != nil {
		return nil, err
	}
	return local, nil
}

// subtract returns the parts of r not covered by gaps, which must be sorted
// and lie inside r.
func subtract(r ranges.ByteRange, gaps []ranges.ByteRange) []ranges.ByteRange {
	var out []ranges.ByteRange
	cursor := r.Start
	for _, gap := range gaps {
		if gap.Start > cursor {
			out = append(out, ranges.ByteRange{Start: cursor, End: gap.Start - 1})
		}
		if gap.End == r.End {
			return out
		}
		cursor = gap.End + 1
	}
	return append(out, ranges.ByteRange{Start: cursor, End: r.End})
}

// fetchAll runs one fetch per range on the pool and waits for all of them.
// The first failure cancels the fetches still running. Bytes of fetches that
// completed stay cached either way.
func (rr *RangeReader) fetchAll(ctx context.Context, rs []ranges.ByteRange, local *chunkcache.Cache) error {
	rr.log.Debugf("Fetching %d ranges", len(rs))

	g, gctx := errgroup.WithContext(ctx)
	for _, r := range rs {
		r := r
		g.Go(func() error {
			data, err := rr.fetch(gctx, r)
			if err != nil {
				return err
			}
			rr.cache.Put(r.Start, data)
			local.Put(r.Start, data)
			return nil
		})
	}
	return g.Wait()
}

func (rr *RangeReader) fetch(ctx context.Context, r ranges.ByteRange) ([]byte, error) {
	if err := rr.pool.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("fetch %v: %w", r, err)
	}
	defer rr.pool.Release(1)

	fetchCtx := ctx
	if rr.timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, rr.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := rr.transport.Fetch(fetchCtx, r)
	rr.fetches.Add(1)
	if err != nil {
		if ctx.Err() == nil && errors.Is(fetchCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w: fetch %v exceeded %v: %w", ranges.ErrTimeout, r, rr.timeout, err)
		}
		rr.log.Debugf("Fetch %v failed: %v", r, err)
		return nil, err
	}

	if resp.Size >= 0 {
		rr.size.Store(resp.Size)
	}
	rr.bytesFetched.Add(int64(len(resp.Data)))
	rr.log.Debugf("Fetched %v (%d bytes) in %v", r, len(resp.Data), time.Since(start))

	return resp.Data, nil
}

// FileSize returns the object size once a fetch or probe has revealed it
func (rr *RangeReader) FileSize() (uint64, bool) {
	size := rr.size.Load()
	if size < 0 {
		return 0, false
	}
	return uint64(size), true
}

// ResolveFileSize returns the object size, asking the backend when no fetch
// has revealed it yet.
func (rr *RangeReader) ResolveFileSize(ctx context.Context) (uint64, error) {
	if err := rr.checkOpen(); err != nil {
		return 0, err
	}
	if size, ok := rr.FileSize(); ok {
		return size, nil
	}

	sizer, ok := rr.transport.(transport.Sizer)
	if !ok {
		return 0, fmt.Errorf("object size is unknown and the backend cannot report it")
	}

	size, err := sizer.Size(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve object size: %w", err)
	}
	rr.size.Store(size)
	return uint64(size), nil
}

// Stats returns a snapshot of reader activity
func (rr *RangeReader) Stats() Stats {
	return Stats{
		Session:      rr.id,
		State:        rr.State().String(),
		Fetches:      rr.fetches.Load(),
		BytesFetched: rr.bytesFetched.Load(),
		CachedReads:  rr.cachedReads.Load(),
		FileSize:     rr.size.Load(),
		Cache:        rr.cache.Stats(),
	}
}

// Close releases the transport. Cached bytes are kept but every later call
// fails with ranges.ErrClosed. Closing twice is a no-op.
func (rr *RangeReader) Close() error {
	rr.mu.Lock()
	if rr.state == StateClosed {
		rr.mu.Unlock()
		return nil
	}
	rr.state = StateClosed
	rr.mu.Unlock()

	rr.log.Debug("Closing reader")
	if err := rr.transport.Close(); err != nil {
		return fmt.Errorf("failed to close transport: %w", err)
	}
	return nil
}
