package transport

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"go-qr-inspector/internal/config"
	apperrors "go-qr-inspector/internal/errors"
	"go-qr-inspector/internal/logger"
	"go-qr-inspector/internal/observer"
	"go-qr-inspector/internal/pipeline"
	"go-qr-inspector/internal/storage"
	"go-qr-inspector/pkg/models"
)

const maxBatchItems = 16

// AnalysisRequest carries one image by URL or as base64 bytes, plus the
// payload an external barcode decoder extracted, if any.
type AnalysisRequest struct {
	URL       string `json:"url,omitempty"`
	ImageData string `json:"image_data,omitempty"`
	QRContent string `json:"qr_content,omitempty"`
}

// BatchAnalysisRequest is a bounded list of analysis requests.
type BatchAnalysisRequest struct {
	Items []AnalysisRequest `json:"items" binding:"required"`
}

// AnalysisResponse wraps a result with the request correlation id.
type AnalysisResponse struct {
	RequestID string                `json:"request_id"`
	Result    models.SecurityResult `json:"result"`
}

// BatchItemResponse is one element of a batch response; exactly one of
// Result or Error is set.
type BatchItemResponse struct {
	Index  int                    `json:"index"`
	Result *models.SecurityResult `json:"result,omitempty"`
	Error  string                 `json:"error,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// NewHandler configures the HTTP surface around the pipeline.
func NewHandler(pipe *pipeline.SecurityPipeline, fetcher storage.ImageFetcher, stats *observer.StatsObserver, cfg *config.Config) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), requestSizeLimiter(cfg.MaxRequestBodySize))

	r.GET("/health", healthCheck(stats))
	r.POST("/analyze", analyzeImage(pipe, fetcher, cfg))
	r.POST("/analyze/batch", analyzeBatch(pipe, fetcher, cfg))

	return r
}

func analyzeImage(pipe *pipeline.SecurityPipeline, fetcher storage.ImageFetcher, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := uuid.NewString()
		start := time.Now()
		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.RequestTimeout)
		defer cancel()

		var req AnalysisRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "invalid request format", err)
			return
		}

		data, err := resolveImageBytes(ctx, fetcher, req)
		if err != nil {
			respondError(c, apperrors.GetStatusCode(err), "could not obtain image bytes", err)
			return
		}

		result, err := pipe.Analyze(ctx, data, req.QRContent)
		if err != nil {
			respondError(c, apperrors.GetStatusCode(err), "analysis failed", err)
			return
		}

		logger.WithFields(logrus.Fields{
			"request_id":         requestID,
			"has_qr":             result.HasQRCode,
			"processing_time_ms": time.Since(start).Milliseconds(),
		}).Info("Analysis request completed")

		c.JSON(http.StatusOK, AnalysisResponse{RequestID: requestID, Result: result})
	}
}

func analyzeBatch(pipe *pipeline.SecurityPipeline, fetcher storage.ImageFetcher, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := uuid.NewString()
		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.RequestTimeout)
		defer cancel()

		var req BatchAnalysisRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "invalid request format", err)
			return
		}
		if len(req.Items) == 0 || len(req.Items) > maxBatchItems {
			respondError(c, http.StatusBadRequest,
				fmt.Sprintf("batch must contain 1-%d items", maxBatchItems), nil)
			return
		}

		items := make([]pipeline.BatchItem, len(req.Items))
		responses := make([]BatchItemResponse, len(req.Items))
		for i, item := range req.Items {
			data, err := resolveImageBytes(ctx, fetcher, item)
			if err != nil {
				responses[i] = BatchItemResponse{Index: i, Error: err.Error()}
				continue
			}
			items[i] = pipeline.BatchItem{Data: data, QRContent: item.QRContent}
		}

		// Only items whose bytes resolved are analyzed; the rest already
		// carry their fetch error.
		var runnable []pipeline.BatchItem
		var runnableIdx []int
		for i := range items {
			if responses[i].Error == "" {
				runnable = append(runnable, items[i])
				runnableIdx = append(runnableIdx, i)
			}
		}

		for _, br := range pipe.AnalyzeBatch(ctx, runnable) {
			idx := runnableIdx[br.Index]
			if br.Err != nil {
				responses[idx] = BatchItemResponse{Index: idx, Error: br.Err.Error()}
				continue
			}
			result := br.Result
			responses[idx] = BatchItemResponse{Index: idx, Result: &result}
		}

		logger.WithFields(logrus.Fields{
			"request_id": requestID,
			"items":      len(req.Items),
		}).Info("Batch analysis completed")

		c.JSON(http.StatusOK, gin.H{"request_id": requestID, "results": responses})
	}
}

func healthCheck(stats *observer.StatsObserver) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "available",
			"time":   time.Now().UTC().Format(time.RFC3339),
			"events": stats.Snapshot(),
		})
	}
}

// resolveImageBytes turns a request into raw bytes: exactly one of url and
// image_data must be set.
func resolveImageBytes(ctx context.Context, fetcher storage.ImageFetcher, req AnalysisRequest) ([]byte, error) {
	switch {
	case req.URL != "" && req.ImageData != "":
		return nil, apperrors.NewValidationError("provide either url or image_data, not both", nil)
	case req.URL != "":
		if err := validateImageURL(req.URL); err != nil {
			return nil, err
		}
		return fetcher.FetchImage(ctx, req.URL)
	case req.ImageData != "":
		data, err := base64.StdEncoding.DecodeString(req.ImageData)
		if err != nil {
			return nil, apperrors.NewValidationError("image_data is not valid base64", err)
		}
		if len(data) == 0 {
			return nil, apperrors.NewValidationError("image_data is empty", nil)
		}
		return data, nil
	default:
		return nil, apperrors.NewValidationError("either url or image_data is required", nil)
	}
}

func validateImageURL(imageURL string) error {
	parsedURL, err := url.Parse(imageURL)
	if err != nil {
		return apperrors.NewValidationError("invalid URL format", err)
	}
	if parsedURL.Host == "" {
		return apperrors.NewValidationError("URL must have a valid host", nil)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return apperrors.NewValidationError("URL scheme must be http or https", nil)
	}
	return nil
}

func requestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

func respondError(c *gin.Context, code int, message string, err error) {
	logger.WithError(err).WithFields(logrus.Fields{
		"status_code": code,
		"message":     message,
		"path":        c.Request.URL.Path,
	}).Error("Request failed")

	var detail string
	if err != nil {
		detail = fmt.Sprintf("%s: %v", message, err)
	} else {
		detail = message
	}
	c.AbortWithStatusJSON(code, ErrorResponse{
		Error:   http.StatusText(code),
		Message: detail,
	})
}
