package ranges

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ByteRange represents an end-inclusive byte range of a remote object.
type ByteRange struct {
	Start uint64 `json:"start" yaml:"start"`
	End   uint64 `json:"end" yaml:"end"`
}

// NewByteRange creates a new ByteRange, rejecting inverted ranges
func NewByteRange(start, end uint64) (ByteRange, error) {
	r := ByteRange{Start: start, End: end}
	if err := r.Validate(); err != nil {
		return ByteRange{}, err
	}
	return r, nil
}

// RangeFromOffset builds the range covering length bytes starting at offset
func RangeFromOffset(offset, length uint64) (ByteRange, error) {
	if length == 0 {
		return ByteRange{}, fmt.Errorf("%w: zero-length range at offset %d", ErrInvalidRange, offset)
	}
	if offset > math.MaxUint64-(length-1) {
		return ByteRange{}, fmt.Errorf("%w: range at offset %d with length %d overflows", ErrInvalidRange, offset, length)
	}
	return ByteRange{Start: offset, End: offset + length - 1}, nil
}

// ParseByteRange parses the "start-end" notation used on the command line
func ParseByteRange(s string) (ByteRange, error) {
	startStr, endStr, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return ByteRange{}, fmt.Errorf("%w: '%s' is not in start-end form", ErrInvalidRange, s)
	}

	start, err := strconv.ParseUint(startStr, 10, 64)
	if err != nil {
		return ByteRange{}, fmt.Errorf("%w: failed to parse start of '%s': %v", ErrInvalidRange, s, err)
	}
	end, err := strconv.ParseUint(endStr, 10, 64)
	if err != nil {
		return ByteRange{}, fmt.Errorf("%w: failed to parse end of '%s': %v", ErrInvalidRange, s, err)
	}

	return NewByteRange(start, end)
}

// Validate checks that the range is not inverted
func (r ByteRange) Validate() error {
	if r.End < r.Start {
		return fmt.Errorf("%w: end %d is before start %d", ErrInvalidRange, r.End, r.Start)
	}
	return nil
}

// Length returns the number of bytes covered by the range
func (r ByteRange) Length() uint64 {
	return r.End - r.Start + 1
}

// Contains checks if a position is within the range
func (r ByteRange) Contains(pos uint64) bool {
	return pos >= r.Start && pos <= r.End
}

// ContainsRange checks if other lies entirely inside the range
func (r ByteRange) ContainsRange(other ByteRange) bool {
	return r.Start <= other.Start && other.End <= r.End
}

// Overlaps reports whether the two ranges share at least one byte
func (r ByteRange) Overlaps(other ByteRange) bool {
	return r.Start <= other.End && other.Start <= r.End
}

// Touches reports whether the two ranges overlap or are directly adjacent,
// which makes them candidates for a merge.
func (r ByteRange) Touches(other ByteRange) bool {
	return followsOrOverlaps(r, other) && followsOrOverlaps(other, r)
}

// followsOrOverlaps is the one-sided check b.Start <= a.End + 1
func followsOrOverlaps(a, b ByteRange) bool {
	return a.End == math.MaxUint64 || b.Start <= a.End+1
}

// Union returns the smallest range covering both ranges
func (r ByteRange) Union(other ByteRange) ByteRange {
	return ByteRange{Start: min(r.Start, other.Start), End: max(r.End, other.End)}
}

// HeaderValue formats the range as an HTTP Range header value
func (r ByteRange) HeaderValue() string {
	return fmt.Sprintf("bytes=%d-%d", r.Start, r.End)
}

func (r ByteRange) String() string {
	return fmt.Sprintf("[%d,%d]", r.Start, r.End)
}
