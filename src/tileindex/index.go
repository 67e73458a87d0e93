// Package tileindex maps tile identifiers to the byte ranges they occupy in a
// remote object and back again.
//
// The index also owns the logical header length of the object: it starts at a
// configured default and is clamped down to the offset of the first tile that
// would otherwise fall inside it, so header reads never run into tile data.
package tileindex

import (
	"fmt"
	"sort"
	"sync"

	"cogrange/src/ranges"
)

// TileRange locates one tile in the object. Values handed out by the index
// are shared and must be treated as read-only.
type TileRange struct {
	TileIndex uint64           `json:"tile_index" yaml:"tile_index"`
	Range     ranges.ByteRange `json:"range" yaml:"range"`
}

// TileRangeIndex is safe for concurrent use.
type TileRangeIndex struct {
	mu           sync.RWMutex
	headerLength uint64
	byIndex      map[uint64]*TileRange
	// sorted by Range.Start, pairwise non-overlapping
	sorted []*TileRange
}

// New creates an empty index with the given default header length
func New(defaultHeaderLength uint64) *TileRangeIndex {
	return &TileRangeIndex{
		headerLength: defaultHeaderLength,
		byIndex:      make(map[uint64]*TileRange),
	}
}

// AddTileRange registers the tile stored at [offset, offset+length).
//
// Registering an index again replaces its previous range. A tile whose range
// overlaps a tile registered under another index is rejected, the earlier
// registration wins. The header length only ever shrinks.
func (idx *TileRangeIndex) AddTileRange(tileIndex, offset, length uint64) error {
	r, err := ranges.RangeFromOffset(offset, length)
	if err != nil {
		return fmt.Errorf("failed to register tile %d: %w", tileIndex, err)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if other := idx.overlapping(r, tileIndex); other != nil {
		return fmt.Errorf("%w: tile %d at %v overlaps tile %d at %v",
			ranges.ErrInvalidRange, tileIndex, r, other.TileIndex, other.Range)
	}

	if previous, ok := idx.byIndex[tileIndex]; ok {
		idx.removeSorted(previous)
	}

	tile := &TileRange{TileIndex: tileIndex, Range: r}
	idx.byIndex[tileIndex] = tile
	idx.insertSorted(tile)

	if offset < idx.headerLength {
		idx.headerLength = offset
	}

	return nil
}

// overlapping returns a tile registered under another index that overlaps r
func (idx *TileRangeIndex) overlapping(r ranges.ByteRange, tileIndex uint64) *TileRange {
	i := sort.Search(len(idx.sorted), func(i int) bool {
		return idx.sorted[i].Range.End >= r.Start
	})
	for ; i < len(idx.sorted) && idx.sorted[i].Range.Start <= r.End; i++ {
		if idx.sorted[i].TileIndex != tileIndex {
			return idx.sorted[i]
		}
	}
	return nil
}

func (idx *TileRangeIndex) insertSorted(tile *TileRange) {
	i := sort.Search(len(idx.sorted), func(i int) bool {
		return idx.sorted[i].Range.Start > tile.Range.Start
	})
	idx.sorted = append(idx.sorted, nil)
	copy(idx.sorted[i+1:], idx.sorted[i:])
	idx.sorted[i] = tile
}

func (idx *TileRangeIndex) removeSorted(tile *TileRange) {
	for i, t := range idx.sorted {
		if t == tile {
			idx.sorted = append(idx.sorted[:i], idx.sorted[i+1:]...)
			return
		}
	}
}

// TileIndex returns the tile owning the byte at position. Positions inside the
// header or in unindexed gaps report false.
func (idx *TileRangeIndex) TileIndex(position uint64) (uint64, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	tile := idx.find(position)
	if tile == nil {
		return 0, false
	}
	return tile.TileIndex, true
}

func (idx *TileRangeIndex) find(position uint64) *TileRange {
	i := sort.Search(len(idx.sorted), func(i int) bool {
		return idx.sorted[i].Range.End >= position
	})
	if i < len(idx.sorted) && idx.sorted[i].Range.Contains(position) {
		return idx.sorted[i]
	}
	return nil
}

// TileRangeAt resolves the tile containing a byte offset
func (idx *TileRangeIndex) TileRangeAt(offset uint64) (*TileRange, bool) {
	tileIndex, ok := idx.TileIndex(offset)
	if !ok {
		return nil, false
	}
	return idx.TileRange(tileIndex)
}

// TileRange looks a tile up by its index
func (idx *TileRangeIndex) TileRange(tileIndex uint64) (*TileRange, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	tile, ok := idx.byIndex[tileIndex]
	return tile, ok
}

// Ranges returns the byte ranges of the given tiles in argument order
func (idx *TileRangeIndex) Ranges(tileIndices ...uint64) ([]ranges.ByteRange, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	out := make([]ranges.ByteRange, 0, len(tileIndices))
	for _, tileIndex := range tileIndices {
		tile, ok := idx.byIndex[tileIndex]
		if !ok {
			return nil, fmt.Errorf("%w: tile %d is not indexed", ranges.ErrNotFound, tileIndex)
		}
		out = append(out, tile.Range)
	}
	return out, nil
}

// HeaderLength returns the current, possibly clamped, header length
func (idx *TileRangeIndex) HeaderLength() uint64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.headerLength
}

// Len returns the number of registered tiles
func (idx *TileRangeIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.byIndex)
}

// Tiles returns the registered tiles ordered by offset
func (idx *TileRangeIndex) Tiles() []*TileRange {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	out := make([]*TileRange, len(idx.sorted))
	copy(out, idx.sorted)
	return out
}
