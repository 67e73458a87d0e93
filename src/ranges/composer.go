package ranges

import (
	"slices"
)

// ContiguousRangeComposer accumulates byte ranges into the minimal set of
// non-overlapping, non-adjacent ranges that cover all of them.
type ContiguousRangeComposer struct {
	ranges []ByteRange
}

// NewContiguousRangeComposer creates a composer seeded with one range
func NewContiguousRangeComposer(initialStart, initialEnd uint64) (*ContiguousRangeComposer, error) {
	initial, err := NewByteRange(initialStart, initialEnd)
	if err != nil {
		return nil, err
	}

	return &ContiguousRangeComposer{
		ranges: []ByteRange{initial},
	}, nil
}

// AddRange adds a range, growing every held range it touches
func (c *ContiguousRangeComposer) AddRange(start, end uint64) error {
	added, err := NewByteRange(start, end)
	if err != nil {
		return err
	}

	c.Add(added)
	return nil
}

// Add adds an already validated range
func (c *ContiguousRangeComposer) Add(added ByteRange) {
	merged := added

	// A merge can make a held range that did not touch the new one touch the union,
	// so keep absorbing until a pass makes no change.
	for {
		absorbed := false
		kept := make([]ByteRange, 0, len(c.ranges))
		for _, held := range c.ranges {
			if held.Touches(merged) {
				merged = merged.Union(held)
				absorbed = true
				continue
			}
			kept = append(kept, held)
		}
		c.ranges = kept
		if !absorbed {
			break
		}
	}

	c.ranges = append(c.ranges, merged)
}

// Ranges returns the composed ranges in ascending start order
func (c *ContiguousRangeComposer) Ranges() []ByteRange {
	out := slices.Clone(c.ranges)
	slices.SortFunc(out, func(a, b ByteRange) int {
		switch {
		case a.Start < b.Start:
			return -1
		case a.Start > b.Start:
			return 1
		default:
			return 0
		}
	})
	return out
}

// Len returns the number of composed ranges
func (c *ContiguousRangeComposer) Len() int {
	return len(c.ranges)
}

// Compose is a convenience over the composer for a batch of ranges.
// An empty input yields no ranges.
func Compose(input []ByteRange) ([]ByteRange, error) {
	if len(input) == 0 {
		return nil, nil
	}

	composer, err := NewContiguousRangeComposer(input[0].Start, input[0].End)
	if err != nil {
		return nil, err
	}
	for _, r := range input[1:] {
		if err := composer.AddRange(r.Start, r.End); err != nil {
			return nil, err
		}
	}
	return composer.Ranges(), nil
}
