package analyzer

// DetectionWeights holds the fixed weights combining the five heuristic
// sub-scores into the overall QR-likelihood confidence. Weights should sum to
// roughly 1; Normalize rescales them so the combined score stays in [0,1].
type DetectionWeights struct {
	Contrast      float64 `yaml:"contrast"`
	FinderPattern float64 `yaml:"finder_pattern"`
	Modular       float64 `yaml:"modular"`
	Edge          float64 `yaml:"edge"`
	SquareRegion  float64 `yaml:"square_region"`
}

// DetectionThresholds holds the decision bars of the disjunctive positive
// policy. Any one qualifying condition suffices; see qr_detector.go.
type DetectionThresholds struct {
	Combined       float64 `yaml:"combined"`        // moderate bar on the weighted sum
	FinderStrong   float64 `yaml:"finder_strong"`   // finder bar when paired with contrast
	FinderAlone    float64 `yaml:"finder_alone"`    // finder bar sufficient on its own
	ContrastPaired float64 `yaml:"contrast_paired"` // contrast bar paired with finder
	ContrastStrong float64 `yaml:"contrast_strong"` // contrast bar paired with modular
	ModularWeak    float64 `yaml:"modular_weak"`    // minimum modular structure
}

// DetectionConfig bundles weights and thresholds so the detector is one
// parameterized implementation instead of several competing tunings.
type DetectionConfig struct {
	Weights    DetectionWeights    `yaml:"weights"`
	Thresholds DetectionThresholds `yaml:"thresholds"`

	// MaxContrastSamples caps how many pixels the contrast heuristic sorts.
	MaxContrastSamples int `yaml:"max_contrast_samples"`

	// MinFinderDimension is the smallest short side (pixels) on which
	// finder-pattern probing is meaningful; below it that sub-score is 0.
	MinFinderDimension int `yaml:"min_finder_dimension"`
}

// DefaultDetectionConfig returns the tuned default configuration.
func DefaultDetectionConfig() DetectionConfig {
	return DetectionConfig{
		Weights: DetectionWeights{
			Contrast:      0.25,
			FinderPattern: 0.35,
			Modular:       0.15,
			Edge:          0.10,
			SquareRegion:  0.15,
		},
		Thresholds: DetectionThresholds{
			Combined:       0.45,
			FinderStrong:   0.65,
			FinderAlone:    0.80,
			ContrastPaired: 0.40,
			ContrastStrong: 0.75,
			ModularWeak:    0.25,
		},
		MaxContrastSamples: 4096,
		MinFinderDimension: 50,
	}
}

// StrictDetectionConfig raises every bar; fewer false positives at the cost
// of missing marginal captures. Useful for gallery imports where the user can
// retry with a better photo.
func StrictDetectionConfig() DetectionConfig {
	cfg := DefaultDetectionConfig()
	cfg.Thresholds.Combined = 0.55
	cfg.Thresholds.FinderStrong = 0.75
	cfg.Thresholds.FinderAlone = 0.90
	cfg.Thresholds.ContrastStrong = 0.85
	return cfg
}

// LenientDetectionConfig lowers the bars for live-preview frames, where a
// missed QR code just means waiting for the next frame.
func LenientDetectionConfig() DetectionConfig {
	cfg := DefaultDetectionConfig()
	cfg.Thresholds.Combined = 0.38
	cfg.Thresholds.FinderStrong = 0.55
	cfg.Thresholds.FinderAlone = 0.70
	return cfg
}

// WithWeights replaces the sub-score weights.
func (c DetectionConfig) WithWeights(w DetectionWeights) DetectionConfig {
	c.Weights = w
	return c
}

// WithThresholds replaces the decision thresholds.
func (c DetectionConfig) WithThresholds(t DetectionThresholds) DetectionConfig {
	c.Thresholds = t
	return c
}

// Normalize rescales the weights to sum to 1 so the combined score stays a
// convex combination of sub-scores.
func (c DetectionConfig) Normalize() DetectionConfig {
	sum := c.Weights.Contrast + c.Weights.FinderPattern + c.Weights.Modular +
		c.Weights.Edge + c.Weights.SquareRegion
	if sum <= 0 {
		return DefaultDetectionConfig()
	}
	c.Weights.Contrast /= sum
	c.Weights.FinderPattern /= sum
	c.Weights.Modular /= sum
	c.Weights.Edge /= sum
	c.Weights.SquareRegion /= sum
	return c
}

// Valid reports whether the configuration is usable by the detector.
func (c DetectionConfig) Valid() bool {
	sum := c.Weights.Contrast + c.Weights.FinderPattern + c.Weights.Modular +
		c.Weights.Edge + c.Weights.SquareRegion
	if sum <= 0 {
		return false
	}
	t := c.Thresholds
	for _, bar := range []float64{t.Combined, t.FinderStrong, t.FinderAlone,
		t.ContrastPaired, t.ContrastStrong, t.ModularWeak} {
		if bar < 0 || bar > 1 {
			return false
		}
	}
	return c.MaxContrastSamples > 0 && c.MinFinderDimension > 0
}
