package transport

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/sirupsen/logrus"

	"cogrange/src/config"
	"cogrange/src/ranges"
)

// s3Identity keys S3 clients by everything that changes how requests are signed or routed
func s3Identity(cfg config.S3Config) string {
	return fmt.Sprintf("s3|%s|%s|%s|%t", cfg.Endpoint, cfg.Region, cfg.AccessKeyID, cfg.UsePathStyle)
}

// NewS3Client creates a client for AWS S3 or an S3-compatible store such as
// MinIO. Static keys are used when configured, the default AWS credential
// chain otherwise.
func NewS3Client(ctx context.Context, cfg config.S3Config) (*s3.Client, error) {
	logrus.Infof("Creating S3 client for region %s at endpoint %q", cfg.Region, cfg.Endpoint)

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithHTTPClient(NewHTTPClient(cfg.BackendConfig)),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load AWS config: %w", ranges.ErrUnauthenticated, err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		// keeps the bucket out of the hostname, which MinIO needs
		o.UsePathStyle = cfg.UsePathStyle
	})

	return client, nil
}

// S3Transport reads ranges of one S3 object
type S3Transport struct {
	client *s3.Client
	bucket string
	key    string
}

// NewS3Transport binds a shared client to one object. No request is made.
func NewS3Transport(client *s3.Client, bucket, key string) *S3Transport {
	return &S3Transport{client: client, bucket: bucket, key: key}
}

func (st *S3Transport) name() string {
	return "s3://" + st.bucket + "/" + st.key
}

func (st *S3Transport) Fetch(ctx context.Context, r ranges.ByteRange) (Response, error) {
	logrus.Debugf("S3 GetObject %s %s", st.name(), r.HeaderValue())

	result, err := st.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(st.bucket),
		Key:    aws.String(st.key),
		Range:  aws.String(r.HeaderValue()),
	})
	if err != nil {
		return Response{}, classifyS3Error(err, "failed to get %v of %s", r, st.name())
	}
	defer result.Body.Close()

	size := UnknownSize
	if result.ContentRange != nil {
		got, total, err := ParseContentRange(*result.ContentRange)
		if err != nil {
			return Response{}, fmt.Errorf("%w: %s: %w", ranges.ErrTransport, st.name(), err)
		}
		if got.Start != r.Start {
			return Response{}, fmt.Errorf("%w: asked %s for %v, got %v", ranges.ErrTransport, st.name(), r, got)
		}
		size = total
	}

	data, err := io.ReadAll(io.LimitReader(result.Body, int64(r.Length())))
	if err != nil {
		return Response{}, wrapError(err, "failed to read %v of %s", r, st.name())
	}
	if err := checkLength(r, data, size); err != nil {
		return Response{}, fmt.Errorf("%s: %w", st.name(), err)
	}

	return Response{Data: data, Size: size}, nil
}

// Size issues a HeadObject request
func (st *S3Transport) Size(ctx context.Context) (int64, error) {
	result, err := st.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(st.bucket),
		Key:    aws.String(st.key),
	})
	if err != nil {
		return UnknownSize, classifyS3Error(err, "failed to head %s", st.name())
	}
	if result.ContentLength == nil {
		return UnknownSize, fmt.Errorf("%w: %s did not report a content length", ranges.ErrTransport, st.name())
	}
	return *result.ContentLength, nil
}

// Close is a no-op, the client is shared between transports
func (st *S3Transport) Close() error {
	return nil
}

func classifyS3Error(err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)

	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return fmt.Errorf("%w: %s: %w", ranges.ErrNotFound, msg, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NoSuchBucket", "NotFound":
			return fmt.Errorf("%w: %s: %w", ranges.ErrNotFound, msg, err)
		case "AccessDenied", "Forbidden", "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken":
			return fmt.Errorf("%w: %s: %w", ranges.ErrUnauthenticated, msg, err)
		case "InvalidRange":
			return fmt.Errorf("%w: %s: %w", ranges.ErrInvalidRange, msg, err)
		}
	}

	return wrapError(err, "%s", msg)
}
