package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/sirupsen/logrus"

	"cogrange/src/config"
	"cogrange/src/ranges"
)

func azureIdentity(cfg config.AzureConfig) string {
	return fmt.Sprintf("azure|%s|%s|%t", azureServiceURL(cfg), cfg.AccountName, cfg.ConnectionString != "")
}

func azureServiceURL(cfg config.AzureConfig) string {
	if cfg.ServiceURL != "" {
		return cfg.ServiceURL
	}
	return fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.AccountName)
}

// NewAzureClient creates a Blob Storage client from a connection string, a
// shared account key, or without credentials for public and SAS URLs.
func NewAzureClient(cfg config.AzureConfig) (*azblob.Client, error) {
	opts := &azblob.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Transport: NewHTTPClient(cfg.BackendConfig),
		},
	}

	switch {
	case cfg.ConnectionString != "":
		logrus.Info("Creating Azure client from connection string")
		client, err := azblob.NewClientFromConnectionString(cfg.ConnectionString, opts)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid Azure connection string: %w", ranges.ErrUnauthenticated, err)
		}
		return client, nil

	case cfg.AccountName != "" && cfg.AccountKey != "":
		logrus.Infof("Creating Azure client for account %s", cfg.AccountName)
		cred, err := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid Azure shared key: %w", ranges.ErrUnauthenticated, err)
		}
		client, err := azblob.NewClientWithSharedKeyCredential(azureServiceURL(cfg), cred, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to create Azure client: %w", err)
		}
		return client, nil

	case cfg.AccountName != "" || cfg.ServiceURL != "":
		logrus.Infof("Creating anonymous Azure client for %s", azureServiceURL(cfg))
		client, err := azblob.NewClientWithNoCredential(azureServiceURL(cfg), opts)
		if err != nil {
			return nil, fmt.Errorf("failed to create Azure client: %w", err)
		}
		return client, nil

	default:
		return nil, fmt.Errorf("%w: no Azure account, service URL or connection string configured", ranges.ErrUnauthenticated)
	}
}

// AzureTransport reads ranges of one blob
type AzureTransport struct {
	blob *blob.Client
	name string
}

// NewAzureTransport binds a shared client to one blob. No request is made.
func NewAzureTransport(client *azblob.Client, container, blobName string) *AzureTransport {
	return &AzureTransport{
		blob: client.ServiceClient().NewContainerClient(container).NewBlobClient(blobName),
		name: "az://" + container + "/" + blobName,
	}
}

func (at *AzureTransport) Fetch(ctx context.Context, r ranges.ByteRange) (Response, error) {
	logrus.Debugf("Azure DownloadStream %s %v", at.name, r)

	resp, err := at.blob.DownloadStream(ctx, &blob.DownloadStreamOptions{
		Range: blob.HTTPRange{Offset: int64(r.Start), Count: int64(r.Length())},
	})
	if err != nil {
		return Response{}, classifyAzureError(err, "failed to download %v of %s", r, at.name)
	}
	defer resp.Body.Close()

	size := UnknownSize
	if resp.ContentRange != nil {
		got, total, err := ParseContentRange(*resp.ContentRange)
		if err != nil {
			return Response{}, fmt.Errorf("%w: %s: %w", ranges.ErrTransport, at.name, err)
		}
		if got.Start != r.Start {
			return Response{}, fmt.Errorf("%w: asked %s for %v, got %v", ranges.ErrTransport, at.name, r, got)
		}
		size = total
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, int64(r.Length())))
	if err != nil {
		return Response{}, classifyAzureError(err, "failed to read %v of %s", r, at.name)
	}
	if err := checkLength(r, data, size); err != nil {
		return Response{}, fmt.Errorf("%s: %w", at.name, err)
	}

	return Response{Data: data, Size: size}, nil
}

// Size fetches the blob properties
func (at *AzureTransport) Size(ctx context.Context) (int64, error) {
	props, err := at.blob.GetProperties(ctx, nil)
	if err != nil {
		return UnknownSize, classifyAzureError(err, "failed to get properties of %s", at.name)
	}
	if props.ContentLength == nil {
		return UnknownSize, fmt.Errorf("%w: %s did not report a content length", ranges.ErrTransport, at.name)
	}
	return *props.ContentLength, nil
}

// Close is a no-op, the client is shared between transports
func (at *AzureTransport) Close() error {
	return nil
}

func classifyAzureError(err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)

	switch {
	case bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound, bloberror.ResourceNotFound):
		return fmt.Errorf("%w: %s: %w", ranges.ErrNotFound, msg, err)
	case bloberror.HasCode(err, bloberror.AuthenticationFailed, bloberror.AuthorizationFailure,
		bloberror.InsufficientAccountPermissions, bloberror.NoAuthenticationInformation):
		return fmt.Errorf("%w: %s: %w", ranges.ErrUnauthenticated, msg, err)
	case bloberror.HasCode(err, bloberror.InvalidRange):
		return fmt.Errorf("%w: %s: %w", ranges.ErrInvalidRange, msg, err)
	}

	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.StatusCode {
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
