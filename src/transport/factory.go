package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	"cloud.google.com/go/storage"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"

	"cogrange/src/config"
	"cogrange/src/ranges"
)

// Factory opens transports for locators. It owns the process-wide caches of
// backend clients and object sizes shared by every transport it creates.
//
// A client evicted from the cache may still serve open transports, so it is
// not closed then. Every client holding resources of its own is closed by
// Close, cached or not.
type Factory struct {
	cfg     *config.Config
	clients *HandleCache[any]
	sizes   *HandleCache[int64]

	mu      sync.Mutex
	closers []io.Closer
}

// NewFactory creates a factory whose caches hold cfg.HandleCacheSize entries each
func NewFactory(cfg *config.Config) (*Factory, error) {
	clients, err := NewHandleCache[any](cfg.HandleCacheSize)
	if err != nil {
		return nil, err
	}
	sizes, err := NewHandleCache[int64](cfg.HandleCacheSize)
	if err != nil {
		return nil, err
	}
	return &Factory{cfg: cfg, clients: clients, sizes: sizes}, nil
}

// Config returns the configuration the factory was built with
func (f *Factory) Config() *config.Config {
	return f.cfg
}

// Open binds a transport to loc. Remote backends make no request here, the
// object size is resolved lazily on first use.
func (f *Factory) Open(ctx context.Context, loc Locator) (Transport, error) {
	var (
		t        Transport
		identity string
		err      error
	)

	switch loc.Kind {
	case KindFile:
		// sizes of local files are cheap and may change, skip the metadata cache
		ft, err := OpenFile(loc.Path)
		if err != nil {
			return nil, err
		}
		return ft, nil

	case KindHTTP:
		identity = "http"
		var client *http.Client
		client, err = clientFor(f, CacheKey{Identity: identity}, func() (*http.Client, error) {
			return NewHTTPClient(f.cfg.HTTP), nil
		})
		if err == nil {
			if loc.Username != "" {
				identity = "http|" + loc.Username
			}
			t = NewHTTPTransport(client, loc)
		}

	case KindS3:
		identity = s3Identity(f.cfg.S3)
		var client *s3.Client
		client, err = clientFor(f, CacheKey{Identity: identity}, func() (*s3.Client, error) {
			return NewS3Client(ctx, f.cfg.S3)
		})
		if err == nil {
			t = NewS3Transport(client, loc.Bucket, loc.Key)
		}

	case KindGCS:
		identity = gcsIdentity(f.cfg.GCS)
		var client *storage.Client
		client, err = clientFor(f, CacheKey{Identity: identity}, func() (*storage.Client, error) {
			return NewGCSClient(ctx, f.cfg.GCS)
		})
		if err == nil {
			t = NewGCSTransport(client, loc.Bucket, loc.Key)
		}

	case KindAzure:
		identity = azureIdentity(f.cfg.Azure)
		var client *azblob.Client
		client, err = clientFor(f, CacheKey{Identity: identity}, func() (*azblob.Client, error) {
			return NewAzureClient(f.cfg.Azure)
		})
		if err == nil {
			t = NewAzureTransport(client, loc.Bucket, loc.Key)
		}

	default:
		return nil, fmt.Errorf("unsupported backend %q", loc.Kind)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", loc, err)
	}

	return &sizeCaching{
		Transport: t,
		sizes:     f.sizes,
		key:       CacheKey{Identity: identity, Object: loc.ObjectID()},
	}, nil
}

// clientFor looks a typed client up in the shared client cache
func clientFor[C any](f *Factory, key CacheKey, create func() (C, error)) (C, error) {
	v, err := f.clients.GetOrCreate(key, func() (any, error) {
		c, err := create()
		if err != nil {
			return c, err
		}
		if closer, ok := any(c).(io.Closer); ok {
			f.mu.Lock()
			f.closers = append(f.closers, closer)
			f.mu.Unlock()
		}
		return c, nil
	})
	if err != nil {
		var zero C
		return zero, err
	}
	return v.(C), nil
}

// Invalidate drops every cached client and object size. Transports that are
// already open keep working, the next Open builds fresh clients.
func (f *Factory) Invalidate() {
	logrus.Infof("Invalidating %d cached backend clients and %d object sizes", f.clients.Len(), f.sizes.Len())
	f.clients.Invalidate()
	f.sizes.Invalidate()
}

// Close releases every client the factory built that holds resources of its
// own, including those already evicted or invalidated.
func (f *Factory) Close() error {
	f.mu.Lock()
	closers := f.closers
	f.closers = nil
	f.mu.Unlock()

	var firstErr error
	for _, closer := range closers {
		if err := closer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	f.clients.Invalidate()
	f.sizes.Invalidate()
	return firstErr
}

// sizeCaching records object sizes learned from fetches and size probes in
// the shared metadata cache.
type sizeCaching struct {
	Transport
	sizes *HandleCache[int64]
	key   CacheKey
}

func (s *sizeCaching) Fetch(ctx context.Context, r ranges.ByteRange) (Response, error) {
	resp, err := s.Transport.Fetch(ctx, r)
	if err == nil && resp.Size >= 0 {
		s.sizes.Add(s.key, resp.Size)
	}
	return resp, err
}

func (s *sizeCaching) Size(ctx context.Context) (int64, error) {
	sizer, ok := s.Transport.(Sizer)
	if !ok {
		if size, ok := s.sizes.Get(s.key); ok {
			return size, nil
		}
		return UnknownSize, fmt.Errorf("backend cannot report object size")
	}
	return s.sizes.GetOrCreate(s.key, func() (int64, error) {
		return sizer.Size(ctx)
	})
}
