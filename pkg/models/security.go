package models

import "time"

// RiskLevel describes how dangerous a classified QR code is considered to be.
type RiskLevel string

const (
	RiskVeryHigh  RiskLevel = "very_high_risk"
	RiskHigh      RiskLevel = "high_risk"
	RiskMedium    RiskLevel = "medium_risk"
	RiskLow       RiskLevel = "low_risk"
	RiskVeryLow   RiskLevel = "very_low_risk"
	RiskUncertain RiskLevel = "uncertain"
)

// DetectionResult is the outcome of the QR-likelihood heuristics. It is a plain
// value: "no QR code found" is a normal negative result, never an error.
type DetectionResult struct {
	HasQRCode   bool    `json:"has_qr_code"`
	Confidence  float64 `json:"confidence"`
	Reason      string  `json:"reason"`
	ImageWidth  int     `json:"image_width,omitempty"`
	ImageHeight int     `json:"image_height,omitempty"`

	// Individual heuristic sub-scores, kept for diagnostics.
	Scores DetectionScores `json:"scores"`
}

// DetectionScores holds the per-heuristic sub-scores, each in [0,1].
type DetectionScores struct {
	Contrast      float64 `json:"contrast"`
	FinderPattern float64 `json:"finder_pattern"`
	Modular       float64 `json:"modular"`
	Edge          float64 `json:"edge"`
	SquareRegion  float64 `json:"square_region"`
	Combined      float64 `json:"combined"`
}

// ClassificationResult is the outcome of one classifier forward pass.
// RawOutput is the model's raw logit; Probability is sigmoid(RawOutput).
type ClassificationResult struct {
	IsMalicious bool      `json:"is_malicious"`
	RawOutput   float64   `json:"raw_output"`
	Probability float64   `json:"probability"`
	Threshold   float64   `json:"threshold"`
	Confidence  float64   `json:"confidence"`
	RiskLevel   RiskLevel `json:"risk_level"`
}

// ContentFinding is an advisory flag raised by payload heuristics on the
// externally decoded QR content string. Findings never change the classifier
// verdict; they are extra context for the caller.
type ContentFinding struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// FrameQuality is a snapshot of how usable the input frame was. Advisory only:
// a blurry frame is still analyzed, the caller decides whether to retake it.
type FrameQuality struct {
	Width         int     `json:"width"`
	Height        int     `json:"height"`
	Brightness    float64 `json:"brightness"`
	LaplacianVar  float64 `json:"laplacian_variance"`
	Blurry        bool    `json:"blurry"`
	LowResolution bool    `json:"low_resolution"`
}

// SecurityResult is the top-level verdict handed back to the caller.
// Classification is non-nil exactly when HasQRCode is true.
type SecurityResult struct {
	HasQRCode         bool                  `json:"has_qr_code"`
	Detection         DetectionResult       `json:"detection"`
	Classification    *ClassificationResult `json:"classification,omitempty"`
	QRContent         string                `json:"qr_content,omitempty"`
	ContentFindings   []ContentFinding      `json:"content_findings,omitempty"`
	Quality           FrameQuality          `json:"quality"`
	Timestamp         time.Time             `json:"timestamp"`
	ProcessingTimeSec float64               `json:"processing_time_sec"`
}

// Consistent reports whether the classification-presence invariant holds:
// a classification exists if and only if a QR code was detected.
func (r SecurityResult) Consistent() bool {
	return r.HasQRCode == (r.Classification != nil)
}
