package ranges

import "errors"

// Failure categories shared by the cache, the reader and every transport.
// Backend errors are wrapped so that errors.Is works against these values.
var (
	// ErrNotFound - the remote object or a credential-resolved resource is absent
	ErrNotFound = errors.New("not found")
	// ErrTransport - network or IO failure during a fetch
	ErrTransport = errors.New("transport failure")
	// ErrTimeout - a fetch exceeded the configured duration
	ErrTimeout = errors.New("fetch timed out")
	// ErrInvalidRange - malformed, inverted or unsatisfiable byte range
	ErrInvalidRange = errors.New("invalid range")
	// ErrUnauthenticated - credential resolution or authorization failed
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrClosed - the reader was used after Close
	ErrClosed = errors.New("reader closed")
)
