package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/sirupsen/logrus"

	"cogrange/src/ranges"
)

// FileTransport reads ranges of a local file
type FileTransport struct {
	path string
	file *os.File
	size int64
}

// OpenFile opens path for range reads
func OpenFile(path string) (*FileTransport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, classifyFileError(err, "failed to open %s", path)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, classifyFileError(err, "failed to stat %s", path)
	}
	if info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("%w: %s is a directory", ranges.ErrNotFound, path)
	}

	logrus.Debugf("Opened file %s (%d bytes)", path, info.Size())
	return &FileTransport{path: path, file: f, size: info.Size()}, nil
}

func classifyFileError(err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %s: %w", ranges.ErrNotFound, msg, err)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %s: %w", ranges.ErrUnauthenticated, msg, err)
	default:
		return wrapError(err, "%s", msg)
	}
}

func (ft *FileTransport) Fetch(ctx context.Context, r ranges.ByteRange) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, fmt.Errorf("fetch %v from %s: %w", r, ft.path, err)
	}
	if r.Start >= uint64(ft.size) {
		return Response{}, fmt.Errorf("%w: %v starts beyond end of %s (%d bytes)", ranges.ErrInvalidRange, r, ft.path, ft.size)
	}

	length := min(r.Length(), uint64(ft.size)-r.Start)
	buf := make([]byte, length)
	n, err := ft.file.ReadAt(buf, int64(r.Start))
	if err != nil && !errors.Is(err, io.EOF) {
		return Response{}, classifyFileError(err, "failed to read %v from %s", r, ft.path)
	}

	data := buf[:n]
	if err := checkLength(r, data, ft.size); err != nil {
		return Response{}, fmt.Errorf("%s changed while reading: %w", ft.path, err)
	}
	return Response{Data: data, Size: ft.size}, nil
}

func (ft *FileTransport) Size(ctx context.Context) (int64, error) {
	return ft.size, nil
}

func (ft *FileTransport) Close() error {
	return ft.file.Close()
}
