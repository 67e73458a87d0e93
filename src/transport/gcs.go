package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"cloud.google.com/go/storage"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"cogrange/src/config"
	"cogrange/src/ranges"
)

func gcsIdentity(cfg config.GCSConfig) string {
	return fmt.Sprintf("gcs|%s|%t|%s", cfg.Endpoint, cfg.Anonymous, cfg.CredentialsFile)
}

// NewGCSClient creates a Cloud Storage client using application default
// credentials unless a credentials file or anonymous access is configured.
func NewGCSClient(ctx context.Context, cfg config.GCSConfig) (*storage.Client, error) {
	logrus.Infof("Creating GCS client at endpoint %q", cfg.Endpoint)

	var opts []option.ClientOption
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	switch {
	case cfg.Anonymous:
		opts = append(opts, option.WithoutAuthentication(), option.WithHTTPClient(NewHTTPClient(cfg.BackendConfig)))
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create GCS client: %w", ranges.ErrUnauthenticated, err)
	}
	return client, nil
}

// GCSTransport reads ranges of one Cloud Storage object
type GCSTransport struct {
	object *storage.ObjectHandle
	name   string
}

// NewGCSTransport binds a shared client to one object. No request is made.
func NewGCSTransport(client *storage.Client, bucket, object string) *GCSTransport {
	return &GCSTransport{
		object: client.Bucket(bucket).Object(object),
		name:   "gs://" + bucket + "/" + object,
	}
}

func (gt *GCSTransport) Fetch(ctx context.Context, r ranges.ByteRange) (Response, error) {
	logrus.Debugf("GCS range read %s %v", gt.name, r)

	reader, err := gt.object.NewRangeReader(ctx, int64(r.Start), int64(r.Length()))
	if err != nil {
		return Response{}, classifyGCSError(err, "failed to read %v of %s", r, gt.name)
	}
	defer reader.Close()

	size := reader.Attrs.Size
	if reader.Attrs.StartOffset != int64(r.Start) {
		return Response{}, fmt.Errorf("%w: asked %s for offset %d, got %d",
			ranges.ErrTransport, gt.name, r.Start, reader.Attrs.StartOffset)
	}

	data, err := io.ReadAll(io.LimitReader(reader, int64(r.Length())))
	if err != nil {
		return Response{}, classifyGCSError(err, "failed to read %v of %s", r, gt.name)
	}
	if err := checkLength(r, data, size); err != nil {
		return Response{}, fmt.Errorf("%s: %w", gt.name, err)
	}

	return Response{Data: data, Size: size}, nil
}

// Size fetches the object attributes
func (gt *GCSTransport) Size(ctx context.Context) (int64, error) {
	attrs, err := gt.object.Attrs(ctx)
	if err != nil {
		return UnknownSize, classifyGCSError(err, "failed to get attributes of %s", gt.name)
	}
	return attrs.Size, nil
}

// Close is a no-op, the client is shared between transports
func (gt *GCSTransport) Close() error {
	return nil
}

func classifyGCSError(err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)

	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return fmt.Errorf("%w: %s: %w", ranges.ErrNotFound, msg, err)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s: %w", ranges.ErrNotFound, msg, err)
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %s: %w", ranges.ErrUnauthenticated, msg, err)
		case http.StatusRequestedRangeNotSatisfiable:
			return fmt.Errorf("%w: %s: %w", ranges.ErrInvalidRange, msg, err)
		}
	}

	return wrapError(err, "%s", msg)
}
