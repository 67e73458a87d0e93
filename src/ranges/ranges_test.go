package ranges

import (
	"bytes"
	"errors"
	"math"
	"reflect"
	"testing"
)

func TestByteRangeTouches(t *testing.T) {
	tests := []struct {
		name string
		a, b ByteRange
		want bool
	}{
		{"adjacent", ByteRange{0, 3}, ByteRange{4, 7}, true},
		{"adjacent reversed", ByteRange{4, 7}, ByteRange{0, 3}, true},
		{"overlap", ByteRange{0, 5}, ByteRange{3, 9}, true},
		{"contained", ByteRange{0, 10}, ByteRange{2, 3}, true},
		{"one byte gap", ByteRange{0, 3}, ByteRange{5, 7}, false},
		{"max uint64", ByteRange{10, math.MaxUint64}, ByteRange{math.MaxUint64, math.MaxUint64}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Touches(tt.b); got != tt.want {
				t.Errorf("Touches(%v, %v): got %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestNewByteRangeRejectsInverted(t *testing.T) {
	_, err := NewByteRange(10, 9)
	if !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}

	r, err := NewByteRange(7, 7)
	if err != nil {
		t.Fatalf("single byte range failed: %v", err)
	}
	if r.Length() != 1 {
		t.Errorf("Length: got %d, want 1", r.Length())
	}
}

func TestRangeFromOffset(t *testing.T) {
	r, err := RangeFromOffset(200, 50)
	if err != nil {
		t.Fatalf("RangeFromOffset failed: %v", err)
	}
	if r != (ByteRange{200, 249}) {
		t.Errorf("got %v, want [200,249]", r)
	}

	if _, err := RangeFromOffset(200, 0); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("zero length: expected ErrInvalidRange, got %v", err)
	}
	if _, err := RangeFromOffset(math.MaxUint64, 2); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("overflow: expected ErrInvalidRange, got %v", err)
	}
}

func TestParseByteRange(t *testing.T) {
	r, err := ParseByteRange("500-1500")
	if err != nil {
		t.Fatalf("ParseByteRange failed: %v", err)
	}
	if r != (ByteRange{500, 1500}) {
		t.Errorf("got %v, want [500,1500]", r)
	}
	if r.HeaderValue() != "bytes=500-1500" {
		t.Errorf("HeaderValue: got %s", r.HeaderValue())
	}

	for _, bad := range []string{"", "12", "a-4", "4-b", "9-3"} {
		if _, err := ParseByteRange(bad); !errors.Is(err, ErrInvalidRange) {
			t.Errorf("ParseByteRange(%q): expected ErrInvalidRange, got %v", bad, err)
		}
	}
}

func TestComposerTouchingRangesMerge(t *testing.T) {
	c, err := NewContiguousRangeComposer(0, 3)
	if err != nil {
		t.Fatalf("NewContiguousRangeComposer failed: %v", err)
	}
	if err := c.AddRange(4, 7); err != nil {
		t.Fatalf("AddRange failed: %v", err)
	}

	want := []ByteRange{{0, 7}}
	if got := c.Ranges(); !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestComposerCascadingMerge(t *testing.T) {
	c, _ := NewContiguousRangeComposer(0, 9)
	_ = c.AddRange(20, 29)
	_ = c.AddRange(40, 49)
	if c.Len() != 3 {
		t.Fatalf("expected 3 disjoint ranges, got %d", c.Len())
	}

	// bridges all three
	_ = c.AddRange(10, 39)

	want := []ByteRange{{0, 49}}
	if got := c.Ranges(); !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestComposerOrderIndependent(t *testing.T) {
	a := ByteRange{100, 199}
	b := ByteRange{0, 49}
	c := ByteRange{50, 60}
	d := ByteRange{500, 600}

	orders := [][]ByteRange{
		{a, b, c, d},
		{c, d, a, b},
		{d, c, b, a},
		{b, a, d, c},
	}

	want := []ByteRange{{0, 60}, {100, 199}, {500, 600}}
	for _, order := range orders {
		got, err := Compose(order)
		if err != nil {
			t.Fatalf("Compose(%v) failed: %v", order, err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("Compose(%v): got %v, want %v", order, got, want)
		}
	}
}

func TestComposerRejectsInverted(t *testing.T) {
	if _, err := NewContiguousRangeComposer(5, 1); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("seed: expected ErrInvalidRange, got %v", err)
	}

	c, _ := NewContiguousRangeComposer(0, 1)
	if err := c.AddRange(9, 3); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("AddRange: expected ErrInvalidRange, got %v", err)
	}
	if c.Len() != 1 {
		t.Errorf("rejected range must not be held, got %d ranges", c.Len())
	}
}

func seq(from, to byte) []byte {
	var b []byte
	for i := from; i <= to; i++ {
		b = append(b, i)
	}
	return b
}

func TestMergeChunksEmptyAndSingle(t *testing.T) {
	if got := MergeChunks(nil); got == nil || len(got) != 0 {
		t.Errorf("nil input: got %v, want empty map", got)
	}
	if got := MergeChunks(map[uint64][]byte{}); len(got) != 0 {
		t.Errorf("empty input: got %v, want empty map", got)
	}

	single := map[uint64][]byte{42: {1, 2, 3}}
	got := MergeChunks(single)
	if !reflect.DeepEqual(got, single) {
		t.Errorf("single input: got %v, want %v", got, single)
	}
}

func TestMergeChunksOverlap(t *testing.T) {
	got := MergeChunks(map[uint64][]byte{
		0: {0, 1, 2, 3},
		3: {3, 4, 5},
	})

	if len(got) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(got))
	}
	if !bytes.Equal(got[0], seq(0, 5)) {
		t.Errorf("merged content: got %v, want %v", got[0], seq(0, 5))
	}
}

func TestMergeChunksContainment(t *testing.T) {
	got := MergeChunks(map[uint64][]byte{
		0: {0, 1, 2, 3},
		2: {2, 3},
	})

	if len(got) != 1 || len(got[0]) != 4 {
		t.Fatalf("expected single [0,3] chunk, got %v", got)
	}
}

func TestMergeChunksDisjointPreserved(t *testing.T) {
	got := MergeChunks(map[uint64][]byte{
		0:   {0, 1},
		100: {100, 101},
	})

	if len(got) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(got))
	}
}

func TestMergeChunksCombination(t *testing.T) {
	input := map[uint64][]byte{
		0:   {0, 1, 2, 3},
		2:   {2, 3, 4, 5},
		1:   {1, 2},
		10:  {10, 11, 12, 13},
		14:  {14, 15, 16, 17},
		100: {100, 101},
	}

	got := MergeChunks(input)
	want := map[uint64][]byte{
		0:   seq(0, 5),
		10:  seq(10, 17),
		100: {100, 101},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}

	// inputs are never modified
	if !bytes.Equal(input[0], []byte{0, 1, 2, 3}) {
		t.Errorf("input chunk was mutated: %v", input[0])
	}
}

func TestMergeChunksIdempotent(t *testing.T) {
	inputs := []map[uint64][]byte{
		{0: {0, 1, 2, 3}, 2: {2, 3, 4, 5}, 10: {10, 11}},
		{5: {5}, 6: {6}, 7: {7}, 9: {9}},
		{0: seq(0, 20), 3: {3, 4}, 21: {21}},
	}

	for _, input := range inputs {
		once := MergeChunks(input)
		twice := MergeChunks(once)
		if !reflect.DeepEqual(once, twice) {
			t.Errorf("merge not idempotent for %v: %v vs %v", input, once, twice)
		}
	}
}

// Overlapping chunks are expected to agree. When they do not, the chunk with
// the earlier offset keeps its bytes; nothing should depend on this.
func TestMergeChunksDisagreeingOverlapKeepsEarlierOffset(t *testing.T) {
	got := MergeChunks(map[uint64][]byte{
		0: {0, 1, 2, 3},
		2: {0xEE, 0xEE, 4},
	})

	want := []byte{0, 1, 2, 3, 4}
	if !bytes.Equal(got[0], want) {
		t.Errorf("got %v, want %v", got[0], want)
	}
}

func TestCoalesceChunksSameOffsetFirstWins(t *testing.T) {
	got := CoalesceChunks([]Chunk{
		{Offset: 0, Bytes: []byte{1, 1}},
		{Offset: 0, Bytes: []byte{2, 2, 2}},
		{Offset: 9, Bytes: nil},
	})

	if len(got) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(got))
	}
	if !bytes.Equal(got[0].Bytes, []byte{1, 1, 2}) {
		t.Errorf("got %v, want [1 1 2]", got[0].Bytes)
	}
}
