package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "go-qr-inspector/internal/errors"
)

// MaxImageBytes caps how much image data one fetch will read.
const MaxImageBytes = 10 * 1024 * 1024

// ImageFetcher retrieves raw encoded image bytes from a URL. Decoding is the
// pipeline's job so that undecodable content surfaces as a DecodeError, not a
// fetch error.
type ImageFetcher interface {
	FetchImage(ctx context.Context, url string) ([]byte, error)
}

type httpImageFetcher struct {
	client *http.Client
}

// NewHTTPImageFetcher creates a fetcher with sane connection limits.
func NewHTTPImageFetcher() ImageFetcher {
	return &httpImageFetcher{
		client: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        16,
				MaxIdleConnsPerHost: 8,
				IdleConnTimeout:     60 * time.Second,
			},
		},
	}
}

// FetchImage downloads the image, verifying status, declared content type,
// and size cap.
func (f *httpImageFetcher) FetchImage(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperrors.NewValidationError("invalid image URL", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, apperrors.NewNetworkError("fetching image", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.NewNetworkError(
			fmt.Sprintf("image fetch returned status %d", resp.StatusCode), nil)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.HasPrefix(contentType, "image/") &&
		!strings.HasPrefix(contentType, "application/octet-stream") {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("unexpected content type %q", contentType), nil)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxImageBytes+1))
	if err != nil {
		return nil, apperrors.NewNetworkError("reading image body", err)
	}
	if len(data) > MaxImageBytes {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("image exceeds %d byte limit", MaxImageBytes), nil)
	}
	if len(data) == 0 {
		return nil, apperrors.NewValidationError("image response was empty", nil)
	}
	return data, nil
}
