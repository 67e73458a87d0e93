package sources

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"cogrange/src/ranges"
)

// ReadRequest is one line of a batch input
type ReadRequest struct {
	ID      string      `json:"id,omitempty"`
	Locator string      `json:"locator"`
	Ranges  [][2]uint64 `json:"ranges,omitempty"`
	Tiles   []uint64    `json:"tiles,omitempty"`
	// Header asks for the header bytes; HeaderLength 0 means the configured default
	Header       bool   `json:"header,omitempty"`
	HeaderLength uint64 `json:"header_length,omitempty"`
}

// ByteRanges converts the [start, end] pairs of the request
func (r *ReadRequest) ByteRanges() ([]ranges.ByteRange, error) {
	out := make([]ranges.ByteRange, 0, len(r.Ranges))
	for _, pair := range r.Ranges {
		br, err := ranges.NewByteRange(pair[0], pair[1])
		if err != nil {
			return nil, err
		}
		out = append(out, br)
	}
	return out, nil
}

// Validate checks the request names an object and asks for something
func (r *ReadRequest) Validate() error {
	if r.Locator == "" {
		return fmt.Errorf("request has no locator")
	}
	if len(r.Ranges) == 0 && len(r.Tiles) == 0 && !r.Header {
		return fmt.Errorf("request for %s has no ranges, tiles or header", r.Locator)
	}
	return nil
}

// SourceItem represents an item from a request source
type SourceItem struct {
	Type    SourceItemType `json:"type"`
	Request *ReadRequest   `json:"request,omitempty"`
}

type SourceItemType string

const (
	// SourceItemTypeRequest - A read request to run
	SourceItemTypeRequest SourceItemType = "request"
	// SourceItemTypeClose - The source is closed, can't read more from it
	SourceItemTypeClose SourceItemType = "close"
)

// Source represents a read request source
type Source interface {
	// GetOne gets a request from the source
	GetOne(ctx context.Context) (*SourceItem, error)

	// Close closes the source and releases resources
	Close() error
}

// newRequestID names requests that arrive without an id
func newRequestID() string {
	return uuid.NewString()
}

// ConnectToSource opens the file at input, or stdin when input is nil
func ConnectToSource(input *string) (Source, error) {
	if input != nil && *input != "" {
		return NewBufSourceFromPath(*input)
	}
	return NewBufSourceFromStdin(), nil
}
