package ranges

import (
	"slices"
)

// Chunk is a run of fetched bytes starting at Offset
type Chunk struct {
	Offset uint64
	Bytes  []byte
}

// End returns the offset of the last byte held by the chunk.
// Only meaningful for non-empty chunks.
func (c Chunk) End() uint64 {
	return c.Offset + uint64(len(c.Bytes)) - 1
}

// Range returns the byte range covered by a non-empty chunk
func (c Chunk) Range() ByteRange {
	return ByteRange{Start: c.Offset, End: c.End()}
}

// MergeChunks coalesces overlapping, touching and contained chunks into the
// fewest larger chunks. Where chunks overlap, the bytes of the chunk with the
// earlier offset are kept. Nil and empty input yield an empty map and a single
// entry is returned as is.
func MergeChunks(chunks map[uint64][]byte) map[uint64][]byte {
	if len(chunks) == 0 {
		return map[uint64][]byte{}
	}
	if len(chunks) == 1 {
		out := make(map[uint64][]byte, 1)
		for offset, b := range chunks {
			out[offset] = b
		}
		return out
	}

	list := make([]Chunk, 0, len(chunks))
	for offset, b := range chunks {
		list = append(list, Chunk{Offset: offset, Bytes: b})
	}

	merged := CoalesceChunks(list)
	out := make(map[uint64][]byte, len(merged))
	for _, c := range merged {
		out[c.Offset] = c.Bytes
	}
	return out
}

// CoalesceChunks is the slice form of MergeChunks. Chunks sharing an offset
// keep their input order, so the first one listed wins the overlap.
// Empty chunks cover nothing and are dropped.
func CoalesceChunks(chunks []Chunk) []Chunk {
	sorted := make([]Chunk, 0, len(chunks))
	for _, c := range chunks {
		if len(c.Bytes) > 0 {
			sorted = append(sorted, c)
		}
	}
	if len(sorted) == 0 {
		return nil
	}

	slices.SortStableFunc(sorted, func(a, b Chunk) int {
		switch {
		case a.Offset < b.Offset:
			return -1
		case a.Offset > b.Offset:
			return 1
		default:
			return 0
		}
	})

	var out []Chunk
	current := sorted[0]
	extended := false

	for _, next := range sorted[1:] {
		if !current.Range().Touches(next.Range()) {
			out = append(out, current)
			current = next
			extended = false
			continue
		}

		currentEnd := current.End()
		if next.End() <= currentEnd {
			// contained: nothing to splice
			continue
		}

		tail := next.Bytes[currentEnd+1-next.Offset:]
		if !extended {
			// never append into a caller-owned backing array
			buf := make([]byte, len(current.Bytes), len(current.Bytes)+len(tail))
			copy(buf, current.Bytes)
			current.Bytes = buf
			extended = true
		}
		current.Bytes = append(current.Bytes, tail...)
	}

	return append(out, current)
}
