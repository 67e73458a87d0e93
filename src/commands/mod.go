package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"cogrange/src/catalog"
	"cogrange/src/config"
	"cogrange/src/rangereader"
	"cogrange/src/ranges"
)

// Env holds what the commands share: configuration, the reader opener, the
// optional tile catalog and the output stream.
type Env struct {
	Config  *config.Config
	Opener  *rangereader.Opener
	Catalog *catalog.Catalog

	mu  sync.Mutex
	enc *json.Encoder
}

// NewEnv creates the command environment. cat may be nil when no database
// was configured; commands that need it then fail.
func NewEnv(cfg *config.Config, cat *catalog.Catalog, out io.Writer) (*Env, error) {
	opener, err := rangereader.NewOpener(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create reader opener: %w", err)
	}

	return &Env{
		Config:  cfg,
		Opener:  opener,
		Catalog: cat,
		enc:     json.NewEncoder(out),
	}, nil
}

// Close releases cached backend clients
func (e *Env) Close() error {
	return e.Opener.Close()
}

// emit writes v as one JSON line
func (e *Env) emit(v any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.enc.Encode(v); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (e *Env) requireCatalog(command string) (*catalog.Catalog, error) {
	if e.Catalog == nil {
		return nil, fmt.Errorf("%s needs the tile catalog: database url must be provided using either --db or DATABASE_URL env var", command)
	}
	return e.Catalog, nil
}

// openReader opens a reader on locator. When the catalog holds a layout for
// it the reader starts with that tile index, and a headerLength of 0 takes
// the registered header length.
func (e *Env) openReader(ctx context.Context, locator string, headerLength uint64, opts ...rangereader.Option) (*rangereader.RangeReader, error) {
	if e.Catalog != nil {
		m, err := e.Catalog.Load(ctx, locator)
		switch {
		case err == nil:
			idx, err := m.BuildIndex(e.Config.HeaderLength)
			if err != nil {
				return nil, fmt.Errorf("invalid layout registered for %s: %w", locator, err)
			}
			if headerLength == 0 {
				headerLength = idx.HeaderLength()
			}
			opts = append(opts, rangereader.WithTileIndex(idx))
			logrus.Debugf("Seeded %s with %d registered tiles", locator, idx.Len())
		case errors.Is(err, ranges.ErrNotFound):
		default:
			return nil, err
		}
	}

	return e.Opener.Open(ctx, locator, headerLength, opts...)
}

// closeReader closes rr, logging instead of failing the command
func closeReader(rr *rangereader.RangeReader) {
	if err := rr.Close(); err != nil {
		logrus.Warnf("Failed to close reader %s: %v", rr.ID(), err)
	}
}

// HeaderOutput is printed by header and batch requests asking for the header
type HeaderOutput struct {
	ID      string `json:"id,omitempty"`
	Locator string `json:"locator"`
	Length  int    `json:"length"`
	Data    []byte `json:"data"`
}

// StatOutput is printed by stat
type StatOutput struct {
	Locator string `json:"locator"`
	Backend string `json:"backend"`
	Size    uint64 `json:"size"`
}

// RangeOutput carries the bytes of one requested range
type RangeOutput struct {
	ID      string `json:"id,omitempty"`
	Locator string `json:"locator"`
	Start   uint64 `json:"start"`
	End     uint64 `json:"end"`
	Data    []byte `json:"data"`
}

// TileOutput describes one tile, with its bytes when they were read
type TileOutput struct {
	ID      string `json:"id,omitempty"`
	Locator string `json:"locator"`
	Tile    uint64 `json:"tile"`
	Start   uint64 `json:"start"`
	End     uint64 `json:"end"`
	Data    []byte `json:"data,omitempty"`
}

// StatsOutput reports reader activity
type StatsOutput struct {
	Locator string            `json:"locator"`
	Stats   rangereader.Stats `json:"stats"`
}

// ErrorOutput reports a failed batch request
type ErrorOutput struct {
	ID      string `json:"id"`
	Locator string `json:"locator"`
	Error   string `json:"error"`
}
