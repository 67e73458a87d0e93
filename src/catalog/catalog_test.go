package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"cogrange/src/database"
	"cogrange/src/ranges"
)

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	db, err := database.CreateDatabaseAdapter(context.Background(), "sqlite:"+filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("CreateDatabaseAdapter failed: %v", err)
	}
	t.Cleanup(db.Close)
	return New(db)
}

func sampleManifest() *Manifest {
	return &Manifest{
		Locator:      "s3://imagery/scene.tif",
		HeaderLength: 8192,
		Tiles: []TileEntry{
			{Index: 1, Offset: 9000, Length: 500},
			{Index: 0, Offset: 8192, Length: 808},
		},
	}
}

func TestSaveAndLoad(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	if err := c.Save(ctx, sampleManifest()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := c.Load(ctx, "s3://imagery/scene.tif")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	want := &Manifest{
		Locator:      "s3://imagery/scene.tif",
		HeaderLength: 8192,
		Tiles: []TileEntry{
			{Index: 0, Offset: 8192, Length: 808},
			{Index: 1, Offset: 9000, Length: 500},
		},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Load: got %+v, want %+v", got, want)
	}
}

func TestSaveReplacesLayout(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	if err := c.Save(ctx, sampleManifest()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	replacement := &Manifest{
		Locator: "s3://imagery/scene.tif",
		Tiles:   []TileEntry{{Index: 5, Offset: 100, Length: 10}},
	}
	if err := c.Save(ctx, replacement); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}

	got, err := c.Load(ctx, replacement.Locator)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(got.Tiles) != 1 || got.Tiles[0].Index != 5 || got.HeaderLength != 0 {
		t.Errorf("Load after replace: got %+v", got)
	}
}

func TestRejectsOverlappingTiles(t *testing.T) {
	c := newTestCatalog(t)
	m := &Manifest{
		Locator: "bad.tif",
		Tiles:   []TileEntry{{Index: 0, Offset: 100, Length: 50}, {Index: 1, Offset: 120, Length: 50}},
	}
	if err := c.Save(context.Background(), m); !errors.Is(err, ranges.ErrInvalidRange) {
		t.Errorf("expected ErrInvalidRange, got %v", err)
	}
}

func TestDeleteAndList(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	for _, loc := range []string{"b.tif", "a.tif"} {
		if err := c.Save(ctx, &Manifest{Locator: loc, Tiles: []TileEntry{{Index: 0, Offset: 0, Length: 1}}}); err != nil {
			t.Fatalf("Save(%s) failed: %v", loc, err)
		}
	}

	locators, err := c.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if !reflect.DeepEqual(locators, []string{"a.tif", "b.tif"}) {
		t.Errorf("List: got %v", locators)
	}

	if err := c.Delete(ctx, "a.tif"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := c.Load(ctx, "a.tif"); !errors.Is(err, ranges.ErrNotFound) {
		t.Errorf("Load after Delete: expected ErrNotFound, got %v", err)
	}
	if err := c.Delete(ctx, "a.tif"); !errors.Is(err, ranges.ErrNotFound) {
		t.Errorf("second Delete: expected ErrNotFound, got %v", err)
	}
}

func TestLoadManifestFromPath(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "scene.yaml")
	err := os.WriteFile(yamlPath, []byte(`
locator: https://example.com/scene.tif
header_length: 4096
tiles:
  - {index: 0, offset: 4096, length: 1000}
  - {index: 1, offset: 5096, length: 1000}
`), 0o644)
	if err != nil {
		t.Fatal(err)
	}

	m, err := LoadManifestFromPath(yamlPath)
	if err != nil {
		t.Fatalf("LoadManifestFromPath failed: %v", err)
	}
	if m.Locator != "https://example.com/scene.tif" || len(m.Tiles) != 2 {
		t.Errorf("manifest: got %+v", m)
	}

	idx, err := m.BuildIndex(16384)
	if err != nil {
		t.Fatalf("BuildIndex failed: %v", err)
	}
	if idx.HeaderLength() != 4096 {
		t.Errorf("HeaderLength: got %d, want 4096", idx.HeaderLength())
	}
	if tile, ok := idx.TileIndex(5100); !ok || tile != 1 {
		t.Errorf("TileIndex(5100): got %d/%v, want 1", tile, ok)
	}

	noLocator := filepath.Join(dir, "empty.json")
	os.WriteFile(noLocator, []byte(`{"tiles": []}`), 0o644)
	if _, err := LoadManifestFromPath(noLocator); err == nil {
		t.Error("expected error for manifest without locator")
	}
}
