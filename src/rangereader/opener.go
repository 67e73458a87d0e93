package rangereader

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"cogrange/src/config"
	"cogrange/src/transport"
)

// Opener opens readers on any supported backend. Readers of the same backend
// share one bounded fetch pool and the factory's client caches.
type Opener struct {
	cfg     *config.Config
	factory *transport.Factory
	pools   map[transport.Kind]*semaphore.Weighted
}

// NewOpener creates an opener with one pool per backend sized from cfg
func NewOpener(cfg *config.Config) (*Opener, error) {
	factory, err := transport.NewFactory(cfg)
	if err != nil {
		return nil, err
	}

	pools := make(map[transport.Kind]*semaphore.Weighted)
	for _, kind := range []transport.Kind{transport.KindFile, transport.KindHTTP, transport.KindS3, transport.KindGCS, transport.KindAzure} {
		pools[kind] = semaphore.NewWeighted(int64(backendConfig(cfg, kind).MaxConcurrentRequests))
	}

	return &Opener{cfg: cfg, factory: factory, pools: pools}, nil
}

func backendConfig(cfg *config.Config, kind transport.Kind) config.BackendConfig {
	switch kind {
	case transport.KindHTTP:
		return cfg.HTTP
	case transport.KindS3:
		return cfg.S3.BackendConfig
	case transport.KindGCS:
		return cfg.GCS.BackendConfig
	case transport.KindAzure:
		return cfg.Azure.BackendConfig
	default:
		return cfg.File
	}
}

// Open binds a reader to locator. A headerLength of 0 uses the configured
// default. Remote backends are not contacted until the first read.
func (o *Opener) Open(ctx context.Context, locator string, headerLength uint64, opts ...Option) (*RangeReader, error) {
	loc, err := transport.ParseLocator(locator)
	if err != nil {
		return nil, err
	}

	t, err := o.factory.Open(ctx, loc)
	if err != nil {
		return nil, err
	}

	if headerLength == 0 {
		headerLength = o.cfg.HeaderLength
	}

	backend := backendConfig(o.cfg, loc.Kind)
	base := []Option{
		WithPool(o.pools[loc.Kind]),
		WithTimeout(backend.RequestTimeout),
		WithCacheLimit(o.cfg.CacheMaxBytes),
		WithLogger(logrus.WithFields(logrus.Fields{
			"locator": loc.String(),
			"backend": string(loc.Kind),
		})),
	}

	rr := New(t, headerLength, append(base, opts...)...)
	rr.log.Debugf("Opened reader with header length %d", headerLength)
	return rr, nil
}

// InvalidateCaches drops the process-wide client and metadata caches of every
// backend. Open readers are unaffected.
func (o *Opener) InvalidateCaches() {
	o.factory.Invalidate()
}

// Close releases cached backend clients
func (o *Opener) Close() error {
	if err := o.factory.Close(); err != nil {
		return fmt.Errorf("failed to close backend clients: %w", err)
	}
	return nil
}
