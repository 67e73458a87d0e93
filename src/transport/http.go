package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"cogrange/src/config"
	"cogrange/src/ranges"
)

// NewHTTPClient builds a client whose connection pool follows cfg. Request
// deadlines come from the caller's context.
func NewHTTPClient(cfg config.BackendConfig) *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: cfg.KeepAlive,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          cfg.MaxIdleConnections,
		MaxIdleConnsPerHost:   cfg.MaxRequestsPerHost,
		MaxConnsPerHost:       cfg.MaxRequestsPerHost,
		IdleConnTimeout:       cfg.KeepAlive,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
		// transparent gzip would break byte offsets
		DisableCompression: true,
	}
	return &http.Client{Transport: transport}
}

// HTTPTransport reads ranges of an object served over HTTP(S)
type HTTPTransport struct {
	client   *http.Client
	url      string
	username string
	password string
}

// NewHTTPTransport binds a shared client to one HTTP locator. No request is made.
func NewHTTPTransport(client *http.Client, loc Locator) *HTTPTransport {
	return &HTTPTransport{
		client:   client,
		url:      loc.URL.String(),
		username: loc.Username,
		password: loc.Password,
	}
}

func (ht *HTTPTransport) newRequest(ctx context.Context, method string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, ht.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", ht.url, err)
	}
	if ht.username != "" {
		req.SetBasicAuth(ht.username, ht.password)
	}
	return req, nil
}

func (ht *HTTPTransport) Fetch(ctx context.Context, r ranges.ByteRange) (Response, error) {
	req, err := ht.newRequest(ctx, http.MethodGet)
	if err != nil {
		return Response{}, err
	}
	req.Header.Set("Range", r.HeaderValue())

	resp, err := ht.client.Do(req)
	if err != nil {
		return Response{}, wrapError(err, "range request %v to %s failed", r, ht.url)
	}
	defer drainAndClose(resp.Body)

	switch resp.StatusCode {
	case http.StatusPartialContent:
		got, size, err := ParseContentRange(resp.Header.Get("Content-Range"))
		if err != nil {
			return Response{}, fmt.Errorf("%w: %s: %w", ranges.ErrTransport, ht.url, err)
		}
		if got.Start != r.Start {
			return Response{}, fmt.Errorf("%w: asked %s for %v, got %v", ranges.ErrTransport, ht.url, r, got)
		}
		return ht.readBody(resp.Body, r, size)

	case http.StatusOK:
		// the server ignored the Range header and sends the whole object
		logrus.Debugf("%s does not honour range requests, skipping to offset %d", ht.url, r.Start)
		if _, err := io.CopyN(io.Discard, resp.Body, int64(r.Start)); err != nil {
			return Response{}, statusRangeError(r, ht.url, err, resp.ContentLength)
		}
		return ht.readBody(resp.Body, r, resp.ContentLength)

	case http.StatusRequestedRangeNotSatisfiable:
		return Response{}, fmt.Errorf("%w: %v not satisfiable by %s (%s)",
			ranges.ErrInvalidRange, r, ht.url, resp.Header.Get("Content-Range"))

	default:
		return Response{}, statusError(resp.StatusCode, ht.url)
	}
}

func (ht *HTTPTransport) readBody(body io.Reader, r ranges.ByteRange, size int64) (Response, error) {
	data, err := io.ReadAll(io.LimitReader(body, int64(r.Length())))
	if err != nil {
		return Response{}, wrapError(err, "failed to read %v from %s", r, ht.url)
	}
	if err := checkLength(r, data, size); err != nil {
		return Response{}, fmt.Errorf("%s: %w", ht.url, err)
	}
	return Response{Data: data, Size: size}, nil
}

func statusRangeError(r ranges.ByteRange, url string, err error, size int64) error {
	if err == io.EOF && size >= 0 && r.Start >= uint64(size) {
		return fmt.Errorf("%w: %v starts beyond end of %s (%d bytes)", ranges.ErrInvalidRange, r, url, size)
	}
	return wrapError(err, "failed to skip to %v in %s", r, url)
}

// Size asks the server for the object size with a HEAD request
func (ht *HTTPTransport) Size(ctx context.Context) (int64, error) {
	req, err := ht.newRequest(ctx, http.MethodHead)
	if err != nil {
		return UnknownSize, err
	}

	resp, err := ht.client.Do(req)
	if err != nil {
		return UnknownSize, wrapError(err, "HEAD %s failed", ht.url)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return UnknownSize, statusError(resp.StatusCode, ht.url)
	}
	if resp.ContentLength < 0 {
		return UnknownSize, fmt.Errorf("%w: %s did not report a content length", ranges.ErrTransport, ht.url)
	}
	return resp.ContentLength, nil
}

// Close is a no-op, the client is shared between transports
func (ht *HTTPTransport) Close() error {
	return nil
}

func statusError(code int, url string) error {
	switch code {
	case http.StatusNotFound, http.StatusGone:
		return fmt.Errorf("%w: %s returned %d", ranges.ErrNotFound, url, code)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s returned %d", ranges.ErrUnauthenticated, url, code)
	default:
		return fmt.Errorf("%w: %s returned %d %s", ranges.ErrTransport, url, code, http.StatusText(code))
	}
}

func drainAndClose(body io.ReadCloser) {
	// a drained body lets the connection go back to the pool
	io.Copy(io.Discard, io.LimitReader(body, 64<<10))
	body.Close()
}
