package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	apperrors "go-qr-inspector/internal/errors"
)

// ModelSource retrieves a model artifact (weights document or label file) by
// reference. Sources are only used once at startup; a failed fetch is a fatal
// model-load error.
type ModelSource interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

type localModelSource struct{}

// NewLocalModelSource reads artifacts from the local filesystem.
func NewLocalModelSource() ModelSource {
	return &localModelSource{}
}

func (s *localModelSource) Fetch(_ context.Context, ref string) ([]byte, error) {
	data, err := os.ReadFile(ref)
	if err != nil {
		return nil, apperrors.NewModelLoadError(fmt.Sprintf("reading %s", ref), err)
	}
	return data, nil
}

type httpModelSource struct {
	client *http.Client
}

// NewHTTPModelSource downloads artifacts over HTTP.
func NewHTTPModelSource() ModelSource {
	return &httpModelSource{
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

func (s *httpModelSource) Fetch(ctx context.Context, ref string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, apperrors.NewModelLoadError("invalid model artifact URL", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, apperrors.NewModelLoadError("downloading model artifact", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.NewModelLoadError(
			fmt.Sprintf("model artifact download returned status %d", resp.StatusCode), nil)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.NewModelLoadError("reading model artifact body", err)
	}
	return data, nil
}
