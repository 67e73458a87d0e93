package sources

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cogrange/src/ranges"
)

func TestBufSourceReadsRequests(t *testing.T) {
	input := `{"id": "a", "locator": "s3://b/k.tif", "ranges": [[0, 99], [200, 299]]}

{"locator": "gs://b/o.tif", "tiles": [1, 2], "header": true}
`
	src := NewBufSourceFromReader(strings.NewReader(input))
	defer src.Close()
	ctx := context.Background()

	item, err := src.GetOne(ctx)
	if err != nil {
		t.Fatalf("GetOne failed: %v", err)
	}
	if item.Type != SourceItemTypeRequest || item.Request.ID != "a" {
		t.Fatalf("first item: got %+v", item)
	}
	brs, err := item.Request.ByteRanges()
	if err != nil {
		t.Fatalf("ByteRanges failed: %v", err)
	}
	if len(brs) != 2 || brs[1].Start != 200 || brs[1].End != 299 {
		t.Errorf("ByteRanges: got %v", brs)
	}

	item, err = src.GetOne(ctx)
	if err != nil {
		t.Fatalf("GetOne failed: %v", err)
	}
	if item.Request.ID == "" {
		t.Error("expected a generated id")
	}
	if !item.Request.Header || len(item.Request.Tiles) != 2 {
		t.Errorf("second request: got %+v", item.Request)
	}

	item, err = src.GetOne(ctx)
	if err != nil {
		t.Fatalf("GetOne failed: %v", err)
	}
	if item.Type != SourceItemTypeClose {
		t.Errorf("expected close, got %s", item.Type)
	}
}

func TestBufSourceRejectsGarbage(t *testing.T) {
	src := NewBufSourceFromReader(strings.NewReader("{\"locator\": \"a\"}\nnot json\n"))
	ctx := context.Background()

	if _, err := src.GetOne(ctx); err != nil {
		t.Fatalf("first line: %v", err)
	}
	_, err := src.GetOne(ctx)
	if err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Errorf("expected parse error on line 2, got %v", err)
	}
}

func TestRequestValidation(t *testing.T) {
	tests := []struct {
		name string
		req  ReadRequest
		ok   bool
	}{
		{"ranges", ReadRequest{Locator: "a", Ranges: [][2]uint64{{0, 1}}}, true},
		{"header only", ReadRequest{Locator: "a", Header: true}, true},
		{"no locator", ReadRequest{Tiles: []uint64{1}}, false},
		{"nothing asked", ReadRequest{Locator: "a"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err == nil) != tt.ok {
				t.Errorf("Validate: got %v, want ok=%v", err, tt.ok)
			}
		})
	}

	inverted := ReadRequest{Locator: "a", Ranges: [][2]uint64{{10, 5}}}
	if _, err := inverted.ByteRanges(); !errors.Is(err, ranges.ErrInvalidRange) {
		t.Errorf("inverted range: expected ErrInvalidRange, got %v", err)
	}
}

func TestConnectToSourceFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "requests.jsonl")
	if err := os.WriteFile(path, []byte(`{"locator": "x.tif", "header": true}`+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	src, err := ConnectToSource(&path)
	if err != nil {
		t.Fatalf("ConnectToSource failed: %v", err)
	}
	defer src.Close()

	item, err := src.GetOne(context.Background())
	if err != nil || item.Request.Locator != "x.tif" {
		t.Errorf("GetOne: got %+v, %v", item, err)
	}

	missing := filepath.Join(t.TempDir(), "missing.jsonl")
	if _, err := ConnectToSource(&missing); err == nil {
		t.Error("expected error for missing file")
	}
}
