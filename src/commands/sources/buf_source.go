package sources

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// long manifests of tiles fit on one line
const maxLineSize = 16 << 20

// BufSource reads JSONL read requests from a file or stdin
type BufSource struct {
	reader  io.ReadCloser
	scanner *bufio.Scanner
	isStdin bool
	line    int
}

// NewBufSourceFromPath creates a new BufSource from a file path
func NewBufSourceFromPath(path string) (*BufSource, error) {
	logrus.Debugf("Reading requests from '%s'", path)

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", path, err)
	}

	return newBufSource(file, false), nil
}

// NewBufSourceFromStdin creates a new BufSource from stdin
func NewBufSourceFromStdin() *BufSource {
	logrus.Debug("Reading requests from stdin")
	return newBufSource(os.Stdin, true)
}

// NewBufSourceFromReader creates a new BufSource from any reader
func NewBufSourceFromReader(r io.Reader) *BufSource {
	return newBufSource(io.NopCloser(r), false)
}

func newBufSource(reader io.ReadCloser, isStdin bool) *BufSource {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &BufSource{
		reader:  reader,
		scanner: scanner,
		isStdin: isStdin,
	}
}

// GetOne implements Source interface
func (bs *BufSource) GetOne(ctx context.Context) (*SourceItem, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if !bs.scanner.Scan() {
			if err := bs.scanner.Err(); err != nil {
				return nil, fmt.Errorf("scanner error: %w", err)
			}
			return &SourceItem{Type: SourceItemTypeClose}, nil
		}
		bs.line++

		line := strings.TrimSpace(bs.scanner.Text())
		if line == "" {
			continue
		}

		var req ReadRequest
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			return nil, fmt.Errorf("failed to parse request on line %d: %w", bs.line, err)
		}
		if req.ID == "" {
			req.ID = newRequestID()
		}

		return &SourceItem{
			Type:    SourceItemTypeRequest,
			Request: &req,
		}, nil
	}
}

// Close closes the underlying reader if it's not stdin
func (bs *BufSource) Close() error {
	if !bs.isStdin && bs.reader != nil {
		return bs.reader.Close()
	}
	return nil
}
