package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"reflect"
	"testing"

	"go-qr-inspector/internal/analyzer"
	"go-qr-inspector/internal/classifier"
	apperrors "go-qr-inspector/internal/errors"
	"go-qr-inspector/internal/observer"
)

// testClassifier builds a classifier whose raw logit is fixed at the given
// value: a flatten layer into a dense layer with zero weights and the logit
// as bias.
func testClassifier(t *testing.T, logit float64) *classifier.SecurityClassifier {
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
			{"type": "dense", "weights": weights, "bias": []float64{logit}},
		},
	})
	if err != nil {
		t.Fatalf("Failed to marshal model artifact: %v", err)
	}

	clf, err := classifier.Load(modelData, []byte("malicious\nbenign\n"), classifier.DefaultThreshold)
	if err != nil {
		t.Fatalf("Failed to load test classifier: %v", err)
	}
	return clf
}

func newTestPipeline(t *testing.T, logit float64, events observer.Subject) *SecurityPipeline {
	t.Helper()
	p := New(analyzer.NewQRLikelihoodDetector(), testClassifier(t, logit), events)
	t.Cleanup(func() { p.Close() })
	return p
}

func pngBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("Failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

// qrLikeImage draws three finder-like nested squares on a white canvas, the
// pattern the detector's heuristics are tuned to recognize.
func qrLikeImage() *image.Gray {
	const size = 210
	module := size / 35
	img := image.NewGray(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.SetGray(x, y, color.Gray{Y: 255})
		}
	}
	centers := [][2]int{{35, 35}, {175, 35}, {35, 175}}
	for _, c := range centers {
		half := 7 * module / 2
		for dy := -half; dy <= half; dy++ {
			for dx := -half; dx <= half; dx++ {
				r := dx
				if dx < 0 {
					r = -dx
				}
				if dy > r {
					r = dy
				} else if -dy > r {
					r = -dy
				}
				v := uint8(0)
				if r >= 3*module/2 && r < 5*module/2 {
					v = 255
				}
				img.SetGray(c[0]+dx, c[1]+dy, color.Gray{Y: v})
			}
		}
	}
	return img
}

func flatGrayImage() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, 200, 200))
	for i := range img.Pix {
		img.Pix[i] = 128
	}
	return img
}

func TestAnalyze_GarbageBytes(t *testing.T) {
	p := newTestPipeline(t, 0, nil)

	_, err := p.Analyze(context.Background(), []byte("definitely not an image"), "")
	if err == nil {
		t.Fatal("Expected a decode error for garbage bytes")
	}
	if !apperrors.IsType(err, apperrors.ErrorTypeDecode) {
		t.Errorf("Expected a decode error, got %v", err)
	}
}

func TestAnalyze_NoQRCodeShortCircuits(t *testing.T) {
	p := newTestPipeline(t, 4, nil)

	result, err := p.Analyze(context.Background(), pngBytes(t, flatGrayImage()), "")
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if result.HasQRCode {
		t.Error("Flat gray frame should not look like a QR code")
	}
	if result.Classification != nil {
		t.Error("Classification must stay nil when no QR code is detected")
	}
	if !result.Consistent() {
		t.Error("Result violates the classification-presence invariant")
	}
	if result.Detection.Reason == "" {
		t.Error("Negative detection should still explain itself")
	}
}

func TestAnalyze_QRCodeClassified(t *testing.T) {
	p := newTestPipeline(t, 4, nil)

	result, err := p.Analyze(context.Background(), pngBytes(t, qrLikeImage()), "")
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if !result.HasQRCode {
		t.Fatalf("Synthetic finder patterns should be detected, reason: %s", result.Detection.Reason)
	}
	if result.Classification == nil {
		t.Fatal("Detected QR code must carry a classification")
	}
	if !result.Consistent() {
		t.Error("Result violates the classification-presence invariant")
	}
	if !result.Classification.IsMalicious {
		t.Error("Logit 4 should classify as malicious")
	}
	if result.Classification.Confidence < 0.5 || result.Classification.Confidence > 1 {
		t.Errorf("Confidence %f outside [0.5,1]", result.Classification.Confidence)
	}
}

func TestAnalyze_ContentFindings(t *testing.T) {
	p := newTestPipeline(t, -4, nil)

	result, err := p.Analyze(context.Background(), pngBytes(t, qrLikeImage()), "http://bit.ly/x")
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if result.QRContent != "http://bit.ly/x" {
		t.Errorf("QRContent not carried through, got %q", result.QRContent)
	}
	if len(result.ContentFindings) == 0 {
		t.Error("Shortened http payload should raise content findings")
	}
	if result.Classification == nil || result.Classification.IsMalicious {
		t.Error("Content findings must not flip a benign classifier verdict")
	}
}

func TestAnalyze_Idempotent(t *testing.T) {
	p := newTestPipeline(t, 2, nil)
	data := pngBytes(t, qrLikeImage())

	first, err := p.Analyze(context.Background(), data, "")
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	second, err := p.Analyze(context.Background(), data, "")
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	// Wall-clock fields differ per call; everything else must not.
	second.Timestamp = first.Timestamp
	first.ProcessingTimeSec = 0
	second.ProcessingTimeSec = 0
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Identical input produced different results:\n%+v\n%+v", first, second)
	}
}

func TestAnalyze_CanceledContext(t *testing.T) {
	p := newTestPipeline(t, 0, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Analyze(ctx, pngBytes(t, qrLikeImage()), "")
	if err == nil {
		t.Fatal("Expected an error for a canceled context")
	}
	if !apperrors.IsType(err, apperrors.ErrorTypeProcessing) {
		t.Errorf("Expected a processing error, got %v", err)
	}
}

func TestAnalyze_EmitsEvents(t *testing.T) {
	stats := observer.NewStatsObserver()
	subject := observer.NewEventSubject()
	subject.Subscribe(stats)
	p := newTestPipeline(t, 0, subject)

	if _, err := p.Analyze(context.Background(), pngBytes(t, qrLikeImage()), ""); err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if _, err := p.Analyze(context.Background(), pngBytes(t, flatGrayImage()), ""); err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if _, err := p.Analyze(context.Background(), []byte("junk"), ""); err == nil {
		t.Fatal("Expected a decode error")
	}

	counts := stats.Snapshot()
	if counts[observer.AnalysisStarted] != 3 {
		t.Errorf("Expected 3 started events, got %d", counts[observer.AnalysisStarted])
	}
	if counts[observer.QRDetected] != 1 || counts[observer.AnalysisCompleted] != 1 {
		t.Errorf("Expected one detected and one completed event, got %v", counts)
	}
	if counts[observer.QRNotDetected] != 1 {
		t.Errorf("Expected one not-detected event, got %d", counts[observer.QRNotDetected])
	}
	if counts[observer.AnalysisFailed] != 1 {
		t.Errorf("Expected one failed event, got %d", counts[observer.AnalysisFailed])
	}
}

func TestAnalyzeBatch_PreservesOrder(t *testing.T) {
	p := newTestPipeline(t, 1, nil)

	items := []BatchItem{
		{Data: pngBytes(t, qrLikeImage())},
		{Data: []byte("junk")},
		{Data: pngBytes(t, flatGrayImage())},
		{Data: pngBytes(t, qrLikeImage())},
	}

	results := p.AnalyzeBatch(context.Background(), items)
	if len(results) != len(items) {
		t.Fatalf("Expected %d results, got %d", len(items), len(results))
	}

	for i, res := range results {
		if res.Index != i {
			t.Errorf("Result %d carries index %d", i, res.Index)
		}
	}
	if results[0].Err != nil || !results[0].Result.HasQRCode {
		t.Error("Item 0 should succeed with a QR code")
	}
	if results[1].Err == nil {
		t.Error("Item 1 should fail to decode")
	}
	if results[2].Err != nil || results[2].Result.HasQRCode {
		t.Error("Item 2 should succeed without a QR code")
	}
	if results[3].Err != nil || !results[3].Result.HasQRCode {
		t.Error("Item 3 should succeed with a QR code")
	}
}

func TestAnalyzeBatch_Empty(t *testing.T) {
	p := newTestPipeline(t, 0, nil)
	if results := p.AnalyzeBatch(context.Background(), nil); len(results) != 0 {
		t.Errorf("Empty batch should yield no results, got %d", len(results))
	}
}
