package transport

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"go-qr-inspector/internal/analyzer"
	"go-qr-inspector/internal/classifier"
	"go-qr-inspector/internal/config"
	apperrors "go-qr-inspector/internal/errors"
	"go-qr-inspector/internal/observer"
	"go-qr-inspector/internal/pipeline"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// stubFetcher serves canned bytes for one URL and fails everything else.
type stubFetcher struct {
	url  string
	data []byte
}

func (f *stubFetcher) FetchImage(_ context.Context, url string) ([]byte, error) {
	if url == f.url {
		return f.data, nil
	}
	return nil, apperrors.NewNetworkError(fmt.Sprintf("no stub for %s", url), nil)
}

func testHandler(t *testing.T, fetcher *stubFetcher) http.Handler {
	return testHandlerWithBodyLimit(t, fetcher, 10*1024*1024)
}

func testHandlerWithBodyLimit(t *testing.T, fetcher *stubFetcher, bodyLimit int64) http.Handler {
	t.Helper()

	fanIn := analyzer.ModelInputSize * analyzer.ModelInputSize
	weights := make([][]float64, fanIn)
	for i := range weights {
		weights[i] = []float64{0}
	}
	modelData, err := json.Marshal(map[string]any{
		"format_version": 1,
		"input_shape":    []int{analyzer.ModelInputSize, analyzer.ModelInputSize, 1},
		"output":         "logit",
		"layers": []map[string]any{
			{"type": "flatten"},
			{"type": "dense", "weights": weights, "bias": []float64{2.0}},
		},
	})
	if err != nil {
		t.Fatalf("Failed to marshal model artifact: %v", err)
	}
	clf, err := classifier.Load(modelData, []byte("malicious\nbenign\n"), classifier.DefaultThreshold)
	if err != nil {
		t.Fatalf("Failed to load classifier: %v", err)
	}

	pipe := pipeline.New(analyzer.NewQRLikelihoodDetector(), clf, nil)
	t.Cleanup(func() { pipe.Close() })

	cfg := &config.Config{
		RequestTimeout:     10 * time.Second,
		MaxRequestBodySize: bodyLimit,
	}
	if fetcher == nil {
		fetcher = &stubFetcher{}
	}
	return NewHandler(pipe, fetcher, observer.NewStatsObserver(), cfg)
}

func flatGrayPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 200, 200))
	for i := range img.Pix {
		img.Pix[i] = 128
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("Failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

func postJSON(t *testing.T, handler http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	handler := testHandler(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Health response is not JSON: %v", err)
	}
	if body["status"] != "available" {
		t.Errorf("Unexpected health status %v", body["status"])
	}
}

func TestAnalyze_BadRequests(t *testing.T) {
	handler := testHandler(t, nil)

	testCases := []struct {
		name string
		body string
	}{
		{"MalformedJSON", "{not json"},
		{"NoImage", `{}`},
		{"BothSources", `{"url":"https://example.com/a.png","image_data":"aGk="}`},
		{"BadBase64", `{"image_data":"!!!not-base64!!!"}`},
		{"BadScheme", `{"url":"ftp://example.com/a.png"}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := postJSON(t, handler, "/analyze", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("Expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestAnalyze_UndecodableImage(t *testing.T) {
	handler := testHandler(t, nil)

	garbage := base64.StdEncoding.EncodeToString([]byte("definitely not an image"))
	rec := postJSON(t, handler, "/analyze", fmt.Sprintf(`{"image_data":%q}`, garbage))

	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("Expected 422 for undecodable bytes, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestAnalyze_InlineImage(t *testing.T) {
	handler := testHandler(t, nil)

	encoded := base64.StdEncoding.EncodeToString(flatGrayPNG(t))
	rec := postJSON(t, handler, "/analyze", fmt.Sprintf(`{"image_data":%q}`, encoded))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp AnalysisResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Response is not an AnalysisResponse: %v", err)
	}
	if resp.RequestID == "" {
		t.Error("Response is missing a request id")
	}
	if resp.Result.HasQRCode {
		t.Error("Flat gray frame should not report a QR code")
	}
	if resp.Result.Classification != nil {
		t.Error("Classification must be absent without a QR code")
	}
}

func TestAnalyze_FetchedImage(t *testing.T) {
	const imageURL = "https://images.example.com/frame.png"
	handler := testHandler(t, &stubFetcher{url: imageURL, data: flatGrayPNG(t)})

	rec := postJSON(t, handler, "/analyze", fmt.Sprintf(`{"url":%q}`, imageURL))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestAnalyze_FetchFailure(t *testing.T) {
	handler := testHandler(t, &stubFetcher{})

	rec := postJSON(t, handler, "/analyze", `{"url":"https://images.example.com/missing.png"}`)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("Expected 502 for a failed fetch, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestAnalyzeBatch(t *testing.T) {
	handler := testHandler(t, nil)

	good := base64.StdEncoding.EncodeToString(flatGrayPNG(t))
	bad := base64.StdEncoding.EncodeToString([]byte("junk"))
	body := fmt.Sprintf(`{"items":[{"image_data":%q},{"image_data":%q},{}]}`, good, bad)

	rec := postJSON(t, handler, "/analyze/batch", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		RequestID string              `json:"request_id"`
		Results   []BatchItemResponse `json:"results"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Response is not a batch response: %v", err)
	}
	if len(resp.Results) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(resp.Results))
	}
	if resp.Results[0].Error != "" || resp.Results[0].Result == nil {
		t.Errorf("Item 0 should succeed, got %+v", resp.Results[0])
	}
	if resp.Results[1].Error == "" {
		t.Error("Item 1 should carry a decode error")
	}
	if resp.Results[2].Error == "" {
		t.Error("Item 2 should carry a validation error")
	}
}

func TestAnalyzeBatch_Limits(t *testing.T) {
	handler := testHandler(t, nil)

	if rec := postJSON(t, handler, "/analyze/batch", `{"items":[]}`); rec.Code != http.StatusBadRequest {
		t.Errorf("Empty batch should be rejected, got %d", rec.Code)
	}

	var items []string
	for i := 0; i < 17; i++ {
		items = append(items, `{"image_data":"aGk="}`)
	}
	oversized := fmt.Sprintf(`{"items":[%s]}`, strings.Join(items, ","))
	if rec := postJSON(t, handler, "/analyze/batch", oversized); rec.Code != http.StatusBadRequest {
		t.Errorf("Oversized batch should be rejected, got %d", rec.Code)
	}
}

func TestRequestSizeLimit(t *testing.T) {
	handler := testHandlerWithBodyLimit(t, nil, 1024)

	big := strings.Repeat("a", 4096)
	rec := postJSON(t, handler, "/analyze", fmt.Sprintf(`{"image_data":%q}`, big))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Oversized body should be rejected, got %d", rec.Code)
	}
}
