// Package transport performs byte-range fetches against the backends a remote
// object can live on: local files, plain HTTP(S) servers, S3, GCS and Azure
// Blob Storage.
//
// A Transport is bound to exactly one object and is selected once, when its
// locator is parsed. Expensive backend state (authenticated clients, object
// sizes) lives in process-wide caches owned by a Factory, which exposes an
// explicit Invalidate hook.
package transport

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"cogrange/src/ranges"
)

// Kind identifies a backend
type Kind string

const (
	KindFile  Kind = "file"
	KindHTTP  Kind = "http"
	KindS3    Kind = "s3"
	KindGCS   Kind = "gcs"
	KindAzure Kind = "azure"
)

// UnknownSize marks a Response whose total object size was not reported
const UnknownSize int64 = -1

// Response carries the bytes of one fetched range
type Response struct {
	// Data holds the requested bytes. It is shorter than the requested range
	// only when the object ends before the range does.
	Data []byte
	// Size is the total object size when the backend reported it, UnknownSize otherwise
	Size int64
}

// Transport fetches byte ranges of a single remote object.
// Fetch is called concurrently and must be safe for that.
type Transport interface {
	Fetch(ctx context.Context, r ranges.ByteRange) (Response, error)
	Close() error
}

// Sizer is implemented by transports that can report the object size without
// fetching data, usually with a metadata request.
type Sizer interface {
	Size(ctx context.Context) (int64, error)
}

// wrapError classifies an error that is not one of the backend specific
// cases every adapter checks first. Context errors are left as they are so
// callers can tell a deadline from a cancellation.
func wrapError(err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", msg, err)
	case errors.Is(err, ranges.ErrNotFound),
		errors.Is(err, ranges.ErrUnauthenticated),
		errors.Is(err, ranges.ErrInvalidRange),
		errors.Is(err, ranges.ErrTransport):
		return fmt.Errorf("%s: %w", msg, err)
	default:
		return fmt.Errorf("%w: %s: %w", ranges.ErrTransport, msg, err)
	}
}

// checkLength verifies that a backend returned the bytes that were asked for.
// A short body is accepted only when it ends exactly at the end of the object.
func checkLength(r ranges.ByteRange, data []byte, size int64) error {
	got := uint64(len(data))
	if got == r.Length() {
		return nil
	}
	if got > r.Length() {
		return fmt.Errorf("%w: range %v returned %d bytes", ranges.ErrTransport, r, got)
	}
	if size >= 0 && r.Start+got == uint64(size) {
		return nil
	}
	return fmt.Errorf("%w: short read for range %v: got %d of %d bytes", ranges.ErrTransport, r, got, r.Length())
}

// ParseContentRange parses a Content-Range header value such as
// "bytes 0-99/1234", "bytes 0-99/*" or "bytes */1234". The returned size is
// UnknownSize when the total is "*", the range is zero when absent.
func ParseContentRange(value string) (ranges.ByteRange, int64, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(value), "bytes ")
	if !ok {
		return ranges.ByteRange{}, UnknownSize, fmt.Errorf("invalid content range %q", value)
	}

	span, total, ok := strings.Cut(rest, "/")
	if !ok {
		return ranges.ByteRange{}, UnknownSize, fmt.Errorf("invalid content range %q", value)
	}

	size := UnknownSize
	if total != "*" {
		n, err := strconv.ParseInt(total, 10, 64)
		if err != nil || n < 0 {
			return ranges.ByteRange{}, UnknownSize, fmt.Errorf("invalid content range size %q", value)
		}
		size = n
	}

	if span == "*" {
		return ranges.ByteRange{}, size, nil
	}

	r, err := ranges.ParseByteRange(span)
	if err != nil {
		return ranges.ByteRange{}, UnknownSize, fmt.Errorf("invalid content range %q: %w", value, err)
	}
	return r, size, nil
}
