// Package pipeline orchestrates the full analysis: decode, QR-likelihood
// detection, and — only when a QR-like pattern is present — preprocessing and
// classification.
package pipeline

import (
	"bytes"
	"context"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"go-qr-inspector/internal/analyzer"
	"go-qr-inspector/internal/classifier"
	"go-qr-inspector/internal/content"
	apperrors "go-qr-inspector/internal/errors"
	"go-qr-inspector/internal/logger"
	"go-qr-inspector/internal/observer"
	"go-qr-inspector/pkg/models"
)

// SecurityPipeline turns raw image bytes into a security verdict. The loaded
// classifier is the only long-lived resource; everything else is a pure
// function over the inputs, so one pipeline is safe for concurrent Analyze
// calls.
type SecurityPipeline struct {
	detector     analyzer.QRLikelihoodDetector
	preprocessor analyzer.Preprocessor
	quality      analyzer.QualityChecker
	classifier   *classifier.SecurityClassifier
	inspector    *content.Inspector
	events       observer.Subject
	pool         *WorkerPool
}

// New wires a pipeline around an already-loaded classifier.
func New(detector analyzer.QRLikelihoodDetector, clf *classifier.SecurityClassifier, events observer.Subject) *SecurityPipeline {
	pool := NewWorkerPool(0)
	pool.Start()
	return &SecurityPipeline{
		detector:     detector,
		preprocessor: analyzer.NewPreprocessor(),
		quality:      analyzer.NewQualityChecker(),
		classifier:   clf,
		inspector:    content.NewInspector(),
		events:       events,
		pool:         pool,
	}
}

// Close releases the batch worker pool.
func (p *SecurityPipeline) Close() error {
	p.pool.Close()
	return nil
}

// Analyze runs the full sequence on one image. qrContent is the payload an
// external barcode decoder extracted, or empty. No stage retries: decoding,
// preprocessing, or inference failure aborts the call with a typed error,
// while "no QR found" is a normal negative result.
func (p *SecurityPipeline) Analyze(ctx context.Context, data []byte, qrContent string) (models.SecurityResult, error) {
	start := time.Now()
	p.notify(ctx, observer.AnalysisStarted, nil, nil)

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		decodeErr := apperrors.NewDecodeError("input bytes are not a decodable image", err)
		p.notify(ctx, observer.AnalysisFailed, nil, decodeErr)
		return models.SecurityResult{}, decodeErr
	}

	gray := analyzer.ToGray(img)
	result := models.SecurityResult{
		QRContent: qrContent,
		Quality:   p.quality.Check(gray),
		Timestamp: start,
	}
	if qrContent != "" {
		result.ContentFindings = p.inspector.Inspect(qrContent)
	}

	result.Detection = p.detector.Detect(gray)
	result.HasQRCode = result.Detection.HasQRCode

	logger.WithComponent("pipeline").WithFields(logrus.Fields{
		"format":     format,
		"has_qr":     result.HasQRCode,
		"confidence": result.Detection.Confidence,
	}).Debug("Detection stage finished")

	if !result.HasQRCode {
		// Short-circuit: the classifier is meaningless on non-QR imagery
		// and skipping it keeps live-preview calls cheap.
		p.notify(ctx, observer.QRNotDetected, &result, nil)
		result.ProcessingTimeSec = time.Since(start).Seconds()
		return result, nil
	}
	p.notify(ctx, observer.QRDetected, &result, nil)

	if err := ctx.Err(); err != nil {
		return models.SecurityResult{}, apperrors.NewProcessingError("analysis canceled", err)
	}

	tensor, err := p.preprocessor.Preprocess(img)
	if err != nil {
		p.notify(ctx, observer.AnalysisFailed, &result, err)
		return models.SecurityResult{}, err
	}

	classification, err := p.classifier.Classify(tensor)
	if err != nil {
		p.notify(ctx, observer.AnalysisFailed, &result, err)
		return models.SecurityResult{}, err
	}
	result.Classification = &classification

	result.ProcessingTimeSec = time.Since(start).Seconds()
	p.notify(ctx, observer.AnalysisCompleted, &result, nil)
	return result, nil
}

// BatchItem is one input of a batch request.
type BatchItem struct {
	Data      []byte
	QRContent string
}

// BatchResult pairs one batch item's outcome with its input index.
type BatchResult struct {
	Index  int
	Result models.SecurityResult
	Err    error
}

// AnalyzeBatch runs independent Analyze calls over the worker pool and
// returns results ordered by input index.
func (p *SecurityPipeline) AnalyzeBatch(ctx context.Context, items []BatchItem) []BatchResult {
	results := make([]BatchResult, len(items))
	var wg sync.WaitGroup

	for i, item := range items {
		wg.Add(1)
		i, item := i, item
		p.pool.Submit(func() {
			defer wg.Done()
			res, err := p.Analyze(ctx, item.Data, item.QRContent)
			results[i] = BatchResult{Index: i, Result: res, Err: err}
		})
	}

	wg.Wait()
	return results
}

func (p *SecurityPipeline) notify(ctx context.Context, eventType observer.EventType, result *models.SecurityResult, err error) {
	if p.events == nil {
		return
	}
	event := observer.AnalysisEvent{
		EventType: eventType,
		Timestamp: time.Now(),
		Success:   err == nil,
	}
	if err != nil {
		event.ErrorMessage = err.Error()
	}
	if result != nil {
		event.HasQRCode = result.HasQRCode
		event.Confidence = result.Detection.Confidence
	}
	p.events.NotifyObservers(ctx, event)
}
