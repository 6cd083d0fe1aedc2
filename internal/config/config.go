package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"go-qr-inspector/internal/analyzer"
)

// ModelSourceType selects where model artifacts are fetched from at startup.
type ModelSourceType string

const (
	ModelSourceLocal ModelSourceType = "local"
	ModelSourceHTTP  ModelSourceType = "http"
	ModelSourceAzure ModelSourceType = "azure"
)

type Config struct {
	Host               string
	Port               string
	RequestTimeout     time.Duration
	MaxRequestBodySize int64

	// Model artifacts
	ModelSource      ModelSourceType
	ModelRef         string
	LabelsRef        string
	AzureAccountName string
	AzureAccountKey  string

	// Decision tuning
	ClassifierThreshold  float64
	DetectionProfile     string
	DetectionWeightsFile string
}

func (c *Config) ServerAddress() string {
	return net.JoinHostPort(strings.TrimSpace(c.Host), strings.TrimSpace(c.Port))
}

func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Host:               getEnvOrDefault("HOST", "0.0.0.0"),
		Port:               getEnvOrDefault("PORT", "8080"),
		RequestTimeout:     parseDurationOrDefault("REQUEST_TIMEOUT", 30*time.Second),
		MaxRequestBodySize: parseIntOrDefault("MAX_REQUEST_BODY_SIZE", 10*1024*1024),

		ModelSource:      ModelSourceType(getEnvOrDefault("MODEL_SOURCE", string(ModelSourceLocal))),
		ModelRef:         getEnvOrDefault("MODEL_PATH", "artifacts/qr_security_model.json"),
		LabelsRef:        getEnvOrDefault("LABELS_PATH", "artifacts/labels.txt"),
		AzureAccountName: os.Getenv("AZURE_ACCOUNT_NAME"),
		AzureAccountKey:  os.Getenv("AZURE_ACCOUNT_KEY"),

		ClassifierThreshold:  parseFloatOrDefault("CLASSIFIER_THRESHOLD", 0.5),
		DetectionProfile:     getEnvOrDefault("DETECTION_PROFILE", "default"),
		DetectionWeightsFile: os.Getenv("DETECTION_WEIGHTS_FILE"),
	}

	p, err := strconv.Atoi(strings.TrimSpace(cfg.Port))
	if err != nil || p < 1 || p > 65535 {
		return nil, fmt.Errorf("invalid PORT: %q", cfg.Port)
	}
	if cfg.MaxRequestBodySize <= 0 {
		return nil, fmt.Errorf("MAX_REQUEST_BODY_SIZE must be > 0 (got %d)", cfg.MaxRequestBodySize)
	}
	if cfg.RequestTimeout <= 0 {
		return nil, fmt.Errorf("REQUEST_TIMEOUT must be > 0 (got %s)", cfg.RequestTimeout)
	}
	if cfg.ClassifierThreshold <= 0 || cfg.ClassifierThreshold >= 1 {
		return nil, fmt.Errorf("CLASSIFIER_THRESHOLD must be in (0,1) (got %g)", cfg.ClassifierThreshold)
	}
	switch cfg.ModelSource {
	case ModelSourceLocal, ModelSourceHTTP:
	case ModelSourceAzure:
		if cfg.AzureAccountName == "" || cfg.AzureAccountKey == "" {
			return nil, fmt.Errorf("azure model source requires AZURE_ACCOUNT_NAME and AZURE_ACCOUNT_KEY")
		}
	default:
		return nil, fmt.Errorf("unknown MODEL_SOURCE %q", cfg.ModelSource)
	}
	switch cfg.DetectionProfile {
	case "default", "strict", "lenient":
	default:
		return nil, fmt.Errorf("unknown DETECTION_PROFILE %q", cfg.DetectionProfile)
	}
	return cfg, nil
}

// DetectionConfig resolves the detector tuning: the named profile, optionally
// overridden by a YAML weights file.
func (c *Config) DetectionConfig() (analyzer.DetectionConfig, error) {
	var base analyzer.DetectionConfig
	switch c.DetectionProfile {
	case "strict":
		base = analyzer.StrictDetectionConfig()
	case "lenient":
		base = analyzer.LenientDetectionConfig()
	default:
		base = analyzer.DefaultDetectionConfig()
	}

	if c.DetectionWeightsFile == "" {
		return base, nil
	}

	data, err := os.ReadFile(c.DetectionWeightsFile)
	if err != nil {
		return base, fmt.Errorf("reading detection weights file: %w", err)
	}
	if err := yaml.Unmarshal(data, &base); err != nil {
		return base, fmt.Errorf("parsing detection weights file: %w", err)
	}
	if !base.Valid() {
		return base, fmt.Errorf("detection weights file %s produced an invalid configuration", c.DetectionWeightsFile)
	}
	return base, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(strings.TrimSpace(value)); err == nil && duration > 0 {
			return duration
		}
	}
	return defaultValue
}

func parseIntOrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func parseFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
