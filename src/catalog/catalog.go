package catalog

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"cogrange/src/database"
	"cogrange/src/ranges"
)

// Catalog persists manifests in a SQLite or PostgreSQL database
type Catalog struct {
	db database.DBAdapter
}

// New creates a catalog on an adapter whose schema is initialized
func New(db database.DBAdapter) *Catalog {
	return &Catalog{db: db}
}

// both drivers store BIGINT, which is signed
func toInt64(v uint64, what string) (int64, error) {
	if v > math.MaxInt64 {
		return 0, fmt.Errorf("%s %d does not fit in the catalog", what, v)
	}
	return int64(v), nil
}

// Save registers m, replacing any layout stored for the same locator
func (c *Catalog) Save(ctx context.Context, m *Manifest) error {
	if err := m.Validate(); err != nil {
		return err
	}

	headerLength, err := toInt64(m.HeaderLength, "header length")
	if err != nil {
		return err
	}

	err = c.db.InTx(ctx, func(q database.Querier) error {
		err := q.Exec(ctx,
			`INSERT INTO manifests(locator, header_length, registered_at) VALUES ($1, $2, $3)
			 ON CONFLICT (locator) DO UPDATE SET header_length = excluded.header_length, registered_at = excluded.registered_at`,
			m.Locator, headerLength, time.Now().Unix())
		if err != nil {
			return fmt.Errorf("failed to upsert manifest: %w", err)
		}

		if err := q.Exec(ctx, "DELETE FROM manifest_tiles WHERE locator = $1", m.Locator); err != nil {
			return fmt.Errorf("failed to clear previous tiles: %w", err)
		}

		for _, tile := range m.Tiles {
			index, err := toInt64(tile.Index, "tile index")
			if err != nil {
				return err
			}
			offset, err := toInt64(tile.Offset, "tile offset")
			if err != nil {
				return err
			}
			length, err := toInt64(tile.Length, "tile length")
			if err != nil {
				return err
			}
			if err := q.Exec(ctx,
				"INSERT INTO manifest_tiles(locator, tile_index, offset_value, length) VALUES ($1, $2, $3, $4)",
				m.Locator, index, offset, length); err != nil {
				return fmt.Errorf("failed to insert tile %d: %w", tile.Index, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save manifest for %s: %w", m.Locator, err)
	}

	logrus.Infof("Registered %d tiles for %s", len(m.Tiles), m.Locator)
	return nil
}

// Load returns the manifest stored for locator, tiles ordered by offset
func (c *Catalog) Load(ctx context.Context, locator string) (*Manifest, error) {
	var headerLength int64
	err := c.db.QueryRow(ctx, "SELECT header_length FROM manifests WHERE locator = $1", locator).Scan(&headerLength)
	if database.IsNoRows(err) {
		return nil, fmt.Errorf("%w: no manifest registered for %s", ranges.ErrNotFound, locator)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get manifest for %s: %w", locator, err)
	}

	rows, err := c.db.Query(ctx,
		"SELECT tile_index, offset_value, length FROM manifest_tiles WHERE locator = $1 ORDER BY offset_value",
		locator)
	if err != nil {
		return nil, fmt.Errorf("failed to query tiles for %s: %w", locator, err)
	}
	defer rows.Close()

	m := &Manifest{Locator: locator, HeaderLength: uint64(headerLength)}
	for rows.Next() {
		var index, offset, length int64
		if err := rows.Scan(&index, &offset, &length); err != nil {
			return nil, fmt.Errorf("failed to scan tile: %w", err)
		}
		m.Tiles = append(m.Tiles, TileEntry{Index: uint64(index), Offset: uint64(offset), Length: uint64(length)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return m, nil
}

// Delete removes the manifest stored for locator
func (c *Catalog) Delete(ctx context.Context, locator string) error {
	var found bool
	err := c.db.InTx(ctx, func(q database.Querier) error {
		var n int
		if err := q.QueryRow(ctx, "SELECT COUNT(*) FROM manifests WHERE locator = $1", locator).Scan(&n); err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		found = true

		if err := q.Exec(ctx, "DELETE FROM manifest_tiles WHERE locator = $1", locator); err != nil {
			return err
		}
		return q.Exec(ctx, "DELETE FROM manifests WHERE locator = $1", locator)
	})
	if err != nil {
		return fmt.Errorf("failed to delete manifest for %s: %w", locator, err)
	}
	if !found {
		return fmt.Errorf("%w: no manifest registered for %s", ranges.ErrNotFound, locator)
	}

	logrus.Infof("Dropped manifest for %s", locator)
	return nil
}

// List returns the registered locators in order
func (c *Catalog) List(ctx context.Context) ([]string, error) {
	rows, err := c.db.Query(ctx, "SELECT locator FROM manifests ORDER BY locator")
	if err != nil {
		return nil, fmt.Errorf("failed to list manifests: %w", err)
	}
	defer rows.Close()

	var locators []string
	for rows.Next() {
		var locator string
		if err := rows.Scan(&locator); err != nil {
			return nil, fmt.Errorf("failed to scan locator: %w", err)
		}
		locators = append(locators, locator)
	}
	return locators, rows.Err()
}
