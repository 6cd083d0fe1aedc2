package storage

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	apperrors "go-qr-inspector/internal/errors"
)

func TestFetchImage_Success(t *testing.T) {
	payload := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(payload)
	}))
	defer server.Close()

	data, err := NewHTTPImageFetcher().FetchImage(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("FetchImage failed: %v", err)
	}
	if !bytes.Equal(data, payload) {
		t.Errorf("Fetched bytes differ from served bytes")
	}
}

func TestFetchImage_OctetStreamAccepted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write([]byte("raw"))
	}))
	defer server.Close()

	if _, err := NewHTTPImageFetcher().FetchImage(context.Background(), server.URL); err != nil {
		t.Errorf("Octet-stream responses should be accepted, got %v", err)
	}
}

func TestFetchImage_Failures(t *testing.T) {
	testCases := []struct {
		name     string
		handler  http.HandlerFunc
		wantType apperrors.ErrorType
	}{
		{
			"NotFound",
			func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			},
			apperrors.ErrorTypeNetwork,
		},
		{
			"WrongContentType",
			func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/html")
				w.Write([]byte("<html>not an image</html>"))
			},
			apperrors.ErrorTypeValidation,
		},
		{
			"EmptyBody",
			func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "image/png")
			},
			apperrors.ErrorTypeValidation,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(tc.handler)
			defer server.Close()

			_, err := NewHTTPImageFetcher().FetchImage(context.Background(), server.URL)
			if err == nil {
				t.Fatal("Expected an error")
			}
			if !apperrors.IsType(err, tc.wantType) {
				t.Errorf("Expected error type %s, got %v", tc.wantType, err)
			}
		})
	}
}

func TestFetchImage_SizeCap(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		big := make([]byte, MaxImageBytes+1)
		w.Write(big)
	}))
	defer server.Close()

	_, err := NewHTTPImageFetcher().FetchImage(context.Background(), server.URL)
	if err == nil {
		t.Fatal("Expected an error for an oversized image")
	}
	if !apperrors.IsType(err, apperrors.ErrorTypeValidation) {
		t.Errorf("Expected a validation error, got %v", err)
	}
}

func TestFetchImage_UnreachableHost(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := NewHTTPImageFetcher().FetchImage(context.Background(), url)
	if err == nil {
		t.Fatal("Expected an error for a closed server")
	}
	if !apperrors.IsType(err, apperrors.ErrorTypeNetwork) {
		t.Errorf("Expected a network error, got %v", err)
	}
}
