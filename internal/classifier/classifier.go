package classifier

import (
	"math"
	"os"

	"go-qr-inspector/internal/analyzer"
	apperrors "go-qr-inspector/internal/errors"
	"go-qr-inspector/internal/logger"
	"go-qr-inspector/pkg/models"
)

// DefaultThreshold is the probability at or above which a code is called
// malicious. The tie at exactly the threshold goes to malicious (>=), so the
// boundary is deterministic and errs toward caution.
const DefaultThreshold = 0.5

// SecurityClassifier wraps the pretrained binary CNN. It is an explicit owned
// resource: construct once via Load and share by reference. Weights are
// read-only after loading, so concurrent Classify calls are safe.
type SecurityClassifier struct {
	model     *Model
	threshold float64
}

// Load builds a classifier from raw model and label artifact bytes. Any
// validation failure is a fatal ModelLoadError; there is no degraded mode.
func Load(modelData, labelData []byte, threshold float64) (*SecurityClassifier, error) {
	if threshold <= 0 || threshold >= 1 {
		threshold = DefaultThreshold
	}

	if err := ValidateLabels(labelData); err != nil {
		return nil, apperrors.NewModelLoadError("label file incompatible with this build", err)
	}

	model, err := ParseModel(modelData)
	if err != nil {
		return nil, apperrors.NewModelLoadError("model artifact rejected", err)
	}

	logger.WithComponent("classifier").WithField("threshold", threshold).
		Info("Model loaded and shape-validated")

	return &SecurityClassifier{model: model, threshold: threshold}, nil
}

// LoadFromFiles reads the model and label artifacts from disk.
func LoadFromFiles(modelPath, labelsPath string, threshold float64) (*SecurityClassifier, error) {
	modelData, err := os.ReadFile(modelPath)
	if err != nil {
		return nil, apperrors.NewModelLoadError("reading model artifact", err)
	}
	labelData, err := os.ReadFile(labelsPath)
	if err != nil {
		return nil, apperrors.NewModelLoadError("reading label file", err)
	}
	return Load(modelData, labelData, threshold)
}

// Threshold returns the configured decision threshold.
func (c *SecurityClassifier) Threshold() float64 {
	return c.threshold
}

// Classify runs one forward pass and derives the full decision: sigmoid over
// the raw logit, thresholded verdict, decision-boundary confidence, and risk
// level. Failures here are per-call inference errors, not fatal.
func (c *SecurityClassifier) Classify(t *analyzer.Tensor) (models.ClassificationResult, error) {
	logit, err := c.model.Forward(t)
	if err != nil {
		return models.ClassificationResult{}, apperrors.NewInferenceError("forward pass failed", err)
	}
	if math.IsNaN(logit) || math.IsInf(logit, 0) {
		return models.ClassificationResult{}, apperrors.NewInferenceError("model produced a non-finite output", nil)
	}

	probability := sigmoid(logit)
	isMalicious := probability >= c.threshold

	// Distance from indecision, not the raw class probability: confidence
	// means "how sure the model is of whichever class it picked".
	confidence := math.Max(probability, 1-probability)

	return models.ClassificationResult{
		IsMalicious: isMalicious,
		RawOutput:   logit,
		Probability: probability,
		Threshold:   c.threshold,
		Confidence:  confidence,
		RiskLevel:   riskLevel(isMalicious, confidence),
	}, nil
}

// riskLevel maps the verdict and confidence onto the advisory risk bands.
// Monotonic in confidence for a fixed verdict; a benign verdict never maps
// above low risk.
func riskLevel(isMalicious bool, confidence float64) models.RiskLevel {
	if isMalicious {
		switch {
		case confidence > 0.9:
			return models.RiskVeryHigh
		case confidence > 0.75:
			return models.RiskHigh
		case confidence > 0.6:
			return models.RiskMedium
		default:
			return models.RiskUncertain
		}
	}
	switch {
	case confidence > 0.9:
		return models.RiskVeryLow
	case confidence > 0.6:
		return models.RiskLow
	default:
		return models.RiskUncertain
	}
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
