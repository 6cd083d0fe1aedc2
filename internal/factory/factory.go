package factory

import (
	"fmt"

	"go-qr-inspector/internal/analyzer"
	"go-qr-inspector/internal/config"
	"go-qr-inspector/internal/storage"
)

// NewModelSource creates the artifact source the configuration asks for.
func NewModelSource(cfg *config.Config) (storage.ModelSource, error) {
	switch cfg.ModelSource {
	case config.ModelSourceLocal:
		return storage.NewLocalModelSource(), nil
	case config.ModelSourceHTTP:
		return storage.NewHTTPModelSource(), nil
	case config.ModelSourceAzure:
		return storage.NewAzureModelSource(cfg.AzureAccountName, cfg.AzureAccountKey)
	default:
		return nil, fmt.Errorf("unsupported model source: %s", cfg.ModelSource)
	}
}

// NewDetector creates the likelihood detector with the configured tuning.
func NewDetector(cfg *config.Config) (analyzer.QRLikelihoodDetector, error) {
	detectionCfg, err := cfg.DetectionConfig()
	if err != nil {
		return nil, err
	}
	return analyzer.NewQRLikelihoodDetectorWithConfig(detectionCfg), nil
}
