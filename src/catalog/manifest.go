// Package catalog stores tile layouts of remote objects so a reader can be
// opened with its tile index already populated.
//
// A layout is produced by whatever parses the image format. The catalog only
// keeps the (tile index, offset, length) triples and the header length, never
// object bytes.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"cogrange/src/tileindex"
)

// TileEntry locates one tile in the object
type TileEntry struct {
	Index  uint64 `json:"index" yaml:"index"`
	Offset uint64 `json:"offset" yaml:"offset"`
	Length uint64 `json:"length" yaml:"length"`
}

// Manifest describes the tile layout of one object
type Manifest struct {
	Locator string `json:"locator" yaml:"locator"`
	// HeaderLength of 0 means the configured default
	HeaderLength uint64      `json:"header_length" yaml:"header_length"`
	Tiles        []TileEntry `json:"tiles" yaml:"tiles"`
}

// LoadManifestFromPath reads a manifest from a YAML or JSON file
func LoadManifestFromPath(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest file: %w", err)
	}

	var m Manifest
	if yamlErr := yaml.Unmarshal(data, &m); yamlErr != nil {
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("failed to parse manifest as YAML or JSON: %w", yamlErr)
		}
	}

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest %s: %w", path, err)
	}

	logrus.Debugf("Loaded manifest for %s with %d tiles", m.Locator, len(m.Tiles))
	return &m, nil
}

// Validate checks that the manifest names an object and that its tiles form
// a valid index
func (m *Manifest) Validate() error {
	if m.Locator == "" {
		return fmt.Errorf("manifest has no locator")
	}
	_, err := m.BuildIndex(m.HeaderLength)
	return err
}

// BuildIndex creates a tile index from the manifest. defaultHeaderLength
// applies when the manifest does not set one.
func (m *Manifest) BuildIndex(defaultHeaderLength uint64) (*tileindex.TileRangeIndex, error) {
	headerLength := m.HeaderLength
	if headerLength == 0 {
		headerLength = defaultHeaderLength
	}

	idx := tileindex.New(headerLength)
	for _, tile := range m.Tiles {
		if err := idx.AddTileRange(tile.Index, tile.Offset, tile.Length); err != nil {
			return nil, err
		}
	}
	return idx, nil
}
