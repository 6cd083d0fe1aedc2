package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	apperrors "go-qr-inspector/internal/errors"
)

type azureModelSource struct {
	client *azblob.Client
}

// NewAzureModelSource fetches model artifacts from Azure blob storage.
// References are URLs of the form https://host/container?blob=name.
func NewAzureModelSource(accountName, accountKey string) (ModelSource, error) {
	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, apperrors.NewModelLoadError("building azure credential", err)
	}

	client, err := azblob.NewClientWithSharedKeyCredential(
		fmt.Sprintf("https://%s.blob.core.windows.net", accountName),
		credential,
		nil,
	)
	if err != nil {
		return nil, apperrors.NewModelLoadError("building azure client", err)
	}
	return &azureModelSource{client: client}, nil
}

func (s *azureModelSource) Fetch(ctx context.Context, ref string) ([]byte, error) {
	parsedURL, err := url.Parse(ref)
	if err != nil || len(parsedURL.Path) < 2 {
		return nil, apperrors.NewModelLoadError(fmt.Sprintf("invalid blob reference %q", ref), err)
	}

	containerName := parsedURL.Path[1:]
	blobName := parsedURL.Query().Get("blob")
	if blobName == "" {
		return nil, apperrors.NewModelLoadError("blob reference missing blob query parameter", nil)
	}

	downloadResponse, err := s.client.DownloadStream(ctx, containerName, blobName, nil)
	if err != nil {
		return nil, apperrors.NewModelLoadError("downloading blob", err)
	}
	retryReader := downloadResponse.Body
	defer retryReader.Close()

	data, err := io.ReadAll(retryReader)
	if err != nil {
		return nil, apperrors.NewModelLoadError("reading blob stream", err)
	}
	return data, nil
}
