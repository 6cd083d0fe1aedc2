package container

import (
	"context"
	"fmt"
	"net/http"

	"go-qr-inspector/internal/classifier"
	"go-qr-inspector/internal/config"
	"go-qr-inspector/internal/factory"
	"go-qr-inspector/internal/logger"
	"go-qr-inspector/internal/observer"
	"go-qr-inspector/internal/pipeline"
	"go-qr-inspector/internal/storage"
	"go-qr-inspector/internal/transport"
)

// Container holds all application dependencies
type Container struct {
	config   *config.Config
	pipeline *pipeline.SecurityPipeline
	stats    *observer.StatsObserver
	handler  http.Handler
}

// NewContainer builds the dependency graph. The classifier is loaded and
// validated here, so a broken model artifact keeps the process from starting.
func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	modelSource, err := factory.NewModelSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("building model source: %w", err)
	}

	modelData, err := modelSource.Fetch(ctx, cfg.ModelRef)
	if err != nil {
		return nil, err
	}
	labelData, err := modelSource.Fetch(ctx, cfg.LabelsRef)
	if err != nil {
		return nil, err
	}

	clf, err := classifier.Load(modelData, labelData, cfg.ClassifierThreshold)
	if err != nil {
		return nil, err
	}

	detector, err := factory.NewDetector(cfg)
	if err != nil {
		return nil, fmt.Errorf("building detector: %w", err)
	}

	events := observer.NewEventSubject()
	events.Subscribe(observer.NewLoggingObserver(logger.Logger))
	stats := observer.NewStatsObserver()
	events.Subscribe(stats)

	pipe := pipeline.New(detector, clf, events)
	fetcher := storage.NewHTTPImageFetcher()
	handler := transport.NewHandler(pipe, fetcher, stats, cfg)

	return &Container{
		config:   cfg,
		pipeline: pipe,
		stats:    stats,
		handler:  handler,
	}, nil
}

// Handler returns the HTTP handler
func (c *Container) Handler() http.Handler {
	return c.handler
}

// Config returns the configuration
func (c *Container) Config() *config.Config {
	return c.config
}

// Close releases pipeline resources.
func (c *Container) Close() error {
	return c.pipeline.Close()
}
