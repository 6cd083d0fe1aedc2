package analyzer

import (
	"image"

	"go-qr-inspector/pkg/models"
)

// QRLikelihoodDetector decides whether a grayscale image contains a
// QR-code-like visual pattern.
type QRLikelihoodDetector interface {
	Detect(gray *image.Gray) models.DetectionResult
}

// Preprocessor turns a decoded image into the normalized tensor the
// classifier expects.
type Preprocessor interface {
	Preprocess(img image.Image) (*Tensor, error)
}

// QualityChecker produces an advisory usability snapshot of an input frame.
type QualityChecker interface {
	Check(gray *image.Gray) models.FrameQuality
}
