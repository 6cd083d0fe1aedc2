package analyzer

import (
	"fmt"
	"image"
	"sort"
	"strings"

	"go-qr-inspector/pkg/models"
)

// Luminance cutoffs shared by the heuristics. binarizeAt is the fixed
// black/white split for run-length scans; veryDark/veryLight bound the
// bimodality bands of the contrast and square-region heuristics.
const (
	binarizeAt    = 127
	veryDark      = 80
	veryLight     = 200
	minUsableSide = 3
)

// qrLikelihoodDetector scores a grayscale image with five independent
// heuristics and combines them through a disjunctive decision policy: QR
// codes photographed under varied lighting and distance satisfy different
// subsets of evidence strongly, so requiring all signals at once misses real
// codes while a single weighted sum fires on any high-contrast texture.
type qrLikelihoodDetector struct {
	cfg DetectionConfig
}

// NewQRLikelihoodDetector creates a detector with the default tuning.
func NewQRLikelihoodDetector() QRLikelihoodDetector {
	return NewQRLikelihoodDetectorWithConfig(DefaultDetectionConfig())
}

// NewQRLikelihoodDetectorWithConfig creates a detector with explicit weights
// and thresholds. Invalid configurations fall back to the defaults.
func NewQRLikelihoodDetectorWithConfig(cfg DetectionConfig) QRLikelihoodDetector {
	if !cfg.Valid() {
		cfg = DefaultDetectionConfig()
	}
	return &qrLikelihoodDetector{cfg: cfg.Normalize()}
}

// Detect runs all heuristics and returns the combined verdict. Never errors:
// unusable inputs come back as a negative result with a diagnostic reason.
func (d *qrLikelihoodDetector) Detect(gray *image.Gray) models.DetectionResult {
	bounds := gray.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	if width < minUsableSide || height < minUsableSide {
		return models.DetectionResult{
			HasQRCode:   false,
			Confidence:  0,
			Reason:      "image too small to analyze",
			ImageWidth:  width,
			ImageHeight: height,
		}
	}

	stats := ComputeStats(gray)

	scores := models.DetectionScores{
		Contrast:      d.contrastScore(gray, stats),
		FinderPattern: d.finderPatternScore(gray),
		Modular:       d.modularScore(gray),
		Edge:          d.edgeScore(gray),
		SquareRegion:  d.squareRegionScore(gray),
	}

	w := d.cfg.Weights
	scores.Combined = w.Contrast*scores.Contrast +
		w.FinderPattern*scores.FinderPattern +
		w.Modular*scores.Modular +
		w.Edge*scores.Edge +
		w.SquareRegion*scores.SquareRegion

	hasQR, reason := d.decide(scores)

	return models.DetectionResult{
		HasQRCode:   hasQR,
		Confidence:  scores.Combined,
		Reason:      reason,
		ImageWidth:  width,
		ImageHeight: height,
		Scores:      scores,
	}
}

// decide applies the disjunctive positive policy: any one qualifying
// condition suffices.
func (d *qrLikelihoodDetector) decide(s models.DetectionScores) (bool, string) {
	t := d.cfg.Thresholds

	switch {
	case s.Combined > t.Combined:
		return true, fmt.Sprintf("combined evidence %.2f above %.2f", s.Combined, t.Combined)
	case s.FinderPattern > t.FinderAlone:
		return true, fmt.Sprintf("dominant finder-pattern evidence %.2f", s.FinderPattern)
	case s.FinderPattern > t.FinderStrong && s.Contrast > t.ContrastPaired:
		return true, fmt.Sprintf("finder patterns %.2f with supporting contrast %.2f",
			s.FinderPattern, s.Contrast)
	case s.Contrast > t.ContrastStrong && s.Modular > t.ModularWeak:
		return true, fmt.Sprintf("strong contrast %.2f with modular structure %.2f",
			s.Contrast, s.Modular)
	}

	var failed []string
	if s.Contrast <= t.ContrastPaired {
		failed = append(failed, fmt.Sprintf("weak black/white separation (%.2f)", s.Contrast))
	}
	if s.FinderPattern <= t.FinderStrong {
		failed = append(failed, fmt.Sprintf("no finder patterns (%.2f)", s.FinderPattern))
	}
	if s.Modular <= t.ModularWeak {
		failed = append(failed, fmt.Sprintf("no modular structure (%.2f)", s.Modular))
	}
	if len(failed) == 0 {
		failed = append(failed, "individual signals present but below qualifying bars")
	}
	return false, fmt.Sprintf("combined evidence %.2f below %.2f: %s",
		s.Combined, t.Combined, strings.Join(failed, "; "))
}

// contrastScore measures black/white separation on a bounded pixel sample:
// interquartile range, full range, and the fraction of pixels in the very
// dark or very light bands. QR codes need strong separation, so a small
// absolute range forces the score toward 0 regardless of the other terms.
func (d *qrLikelihoodDetector) contrastScore(gray *image.Gray, stats ImageStats) float64 {
	bounds := gray.Bounds()
	total := bounds.Dx() * bounds.Dy()
	if total == 0 {
		return 0
	}

	step := 1
	if total > d.cfg.MaxContrastSamples {
		step = total / d.cfg.MaxContrastSamples
	}

	width := bounds.Dx()
	samples := make([]int, 0, d.cfg.MaxContrastSamples+1)
	bimodal := 0
	for i := 0; i < total; i += step {
		x := bounds.Min.X + i%width
		y := bounds.Min.Y + i/width
		v := int(gray.GrayAt(x, y).Y)
		samples = append(samples, v)
		if v < veryDark || v > veryLight {
			bimodal++
		}
	}
	if len(samples) == 0 {
		return 0
	}
	sort.Ints(samples)

	n := len(samples)
	iqr := float64(samples[(3*n)/4] - samples[n/4])
	fullRange := float64(samples[n-1] - samples[0])
	bimodalFrac := float64(bimodal) / float64(n)

	score := 0.3*clamp01(iqr/128) + 0.3*clamp01(fullRange/255) + 0.4*bimodalFrac

	// Below this range there is no usable dark/light split at all.
	if fullRange < 90 {
		score *= 0.15
	}
	return clamp01(score)
}

// finderPatternScore probes candidate squares at the proportional positions
// of the four QR corner markers and the center, at several sizes. A true
// finder pattern (1:1:3:1:1 module ratio) shows concentric square rings that
// alternate dark, light, dark from the center out.
func (d *qrLikelihoodDetector) finderPatternScore(gray *image.Gray) float64 {
	bounds := gray.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	minDim := minInt(width, height)
	if minDim < d.cfg.MinFinderDimension {
		return 0
	}

	positions := [][2]int{
		{width / 6, height / 6},
		{5 * width / 6, height / 6},
		{width / 6, 5 * height / 6},
		{5 * width / 6, 5 * height / 6},
		{width / 2, height / 2},
	}
	sizes := []int{minDim / 5, minDim / 7, minDim / 10, minDim / 14}

	qualified := 0
	for _, pos := range positions {
		for _, size := range sizes {
			half := size / 2
			if half < 5 {
				continue
			}
			if d.isFinderPatternAt(gray, bounds.Min.X+pos[0], bounds.Min.Y+pos[1], half) {
				qualified++
				break
			}
		}
	}

	score := float64(qualified) / float64(len(positions))
	// A real QR code shows three distinct corner markers; two or more
	// qualifying regions is strong evidence.
	if qualified >= 2 {
		score = clamp01(score * 1.5)
	}
	return score
}

// isFinderPatternAt samples concentric square rings around (cx, cy) and
// checks the dark fractions for the dark-light-dark signature or its exact
// inverse.
func (d *qrLikelihoodDetector) isFinderPatternAt(gray *image.Gray, cx, cy, half int) bool {
	bounds := gray.Bounds()
	if cx-half < bounds.Min.X || cx+half >= bounds.Max.X ||
		cy-half < bounds.Min.Y || cy+half >= bounds.Max.Y {
		return false
	}

	innerEdge := 3 * half / 7
	middleEdge := 5 * half / 7

	var darkCount, totalCount [3]int
	for dy := -half; dy <= half; dy++ {
		for dx := -half; dx <= half; dx++ {
			ring := 2
			r := maxInt(absInt(dx), absInt(dy))
			if r <= innerEdge {
				ring = 0
			} else if r <= middleEdge {
				ring = 1
			}
			totalCount[ring]++
			if gray.GrayAt(cx+dx, cy+dy).Y < 128 {
				darkCount[ring]++
			}
		}
	}

	var frac [3]float64
	for i := range frac {
		if totalCount[i] == 0 {
			return false
		}
		frac[i] = float64(darkCount[i]) / float64(totalCount[i])
	}

	normal := frac[0] > 0.6 && frac[1] < 0.4 && frac[2] > 0.6
	inverted := frac[0] < 0.4 && frac[1] > 0.6 && frac[2] < 0.4
	return normal || inverted
}

// modularScore samples horizontal and vertical lines, binarizes them, and
// inspects run lengths between polarity transitions. Genuine QR modules give
// runs of fairly uniform length and a transition density in a bounded band;
// both under- and over-transitioning are penalized.
func (d *qrLikelihoodDetector) modularScore(gray *image.Gray) float64 {
	bounds := gray.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	const lines = 8
	var sum float64
	count := 0

	for i := 1; i <= lines; i++ {
		y := bounds.Min.Y + height*i/(lines+1)
		line := make([]bool, width)
		for x := 0; x < width; x++ {
			line[x] = gray.GrayAt(bounds.Min.X+x, y).Y < binarizeAt
		}
		sum += scoreLine(line)
		count++
	}
	for i := 1; i <= lines; i++ {
		x := bounds.Min.X + width*i/(lines+1)
		line := make([]bool, height)
		for y := 0; y < height; y++ {
			line[y] = gray.GrayAt(x, bounds.Min.Y+y).Y < binarizeAt
		}
		sum += scoreLine(line)
		count++
	}

	if count == 0 {
		return 0
	}
	return clamp01(sum / float64(count))
}

// scoreLine scores one binarized scan line: run-length uniformity around the
// median run plus a transition-density band term.
func scoreLine(line []bool) float64 {
	if len(line) == 0 {
		return 0
	}

	var runs []int
	runLen := 1
	transitions := 0
	for i := 1; i < len(line); i++ {
		if line[i] == line[i-1] {
			runLen++
			continue
		}
		runs = append(runs, runLen)
		runLen = 1
		transitions++
	}
	runs = append(runs, runLen)

	// Fewer than a handful of runs is a stripe or a blank line, not modules.
	if len(runs) < 5 {
		return 0
	}

	sorted := append([]int(nil), runs...)
	sort.Ints(sorted)
	median := sorted[len(sorted)/2]

	uniform := 0
	for _, r := range runs {
		if absInt(r-median) <= 2 {
			uniform++
		}
	}
	uniformity := float64(uniform) / float64(len(runs))

	density := float64(transitions) / float64(len(line))
	var band float64
	switch {
	case density >= 0.10 && density <= 0.40:
		band = 1
	case density < 0.10:
		band = density / 0.10
	default:
		band = clamp01(1 - (density-0.40)/0.30)
	}

	return 0.6*uniformity + 0.4*band
}

// edgeScore looks for the geometry a QR code imposes: long strong
// horizontal/vertical edge runs from the outer boundary and module grid, and
// corner regions whose edge density sits in a mid band (alignment markers are
// neither solid nor empty).
func (d *qrLikelihoodDetector) edgeScore(gray *image.Gray) float64 {
	bounds := gray.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width < minUsableSide || height < minUsableSide {
		return 0
	}

	const scanLines = 10
	strongLines := 0

	for i := 1; i <= scanLines; i++ {
		y := bounds.Min.Y + height*i/(scanLines+1)
		if y <= bounds.Min.Y || y >= bounds.Max.Y-1 {
			continue
		}
		edgy := 0
		for x := bounds.Min.X + 1; x < bounds.Max.X-1; x++ {
			if absInt(sobelY(gray, x, y)) > 300 {
				edgy++
			}
		}
		if float64(edgy)/float64(width) > 0.5 {
			strongLines++
		}
	}
	for i := 1; i <= scanLines; i++ {
		x := bounds.Min.X + width*i/(scanLines+1)
		if x <= bounds.Min.X || x >= bounds.Max.X-1 {
			continue
		}
		edgy := 0
		for y := bounds.Min.Y + 1; y < bounds.Max.Y-1; y++ {
			if absInt(sobelX(gray, x, y)) > 300 {
				edgy++
			}
		}
		if float64(edgy)/float64(height) > 0.5 {
			strongLines++
		}
	}

	// Four boundary lines (top, bottom, left, right) is full evidence.
	boundary := clamp01(float64(strongLines) / 4)

	corner := d.cornerEdgeScore(gray)
	return 0.5*boundary + 0.5*corner
}

// cornerEdgeScore measures edge density inside the four corner windows and
// rewards the mid-range band consistent with marker structure.
func (d *qrLikelihoodDetector) cornerEdgeScore(gray *image.Gray) float64 {
	bounds := gray.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	win := minInt(width, height) / 5
	if win < 8 {
		return 0
	}

	corners := [][2]int{
		{bounds.Min.X, bounds.Min.Y},
		{bounds.Max.X - win, bounds.Min.Y},
		{bounds.Min.X, bounds.Max.Y - win},
		{bounds.Max.X - win, bounds.Max.Y - win},
	}

	qualifying := 0
	for _, c := range corners {
		edges, total := 0, 0
		for y := c[1] + 1; y < c[1]+win-1; y++ {
			for x := c[0] + 1; x < c[0]+win-1; x++ {
				gx := sobelX(gray, x, y)
				gy := sobelY(gray, x, y)
				if gx*gx+gy*gy > 300*300 {
					edges++
				}
				total++
			}
		}
		if total == 0 {
			continue
		}
		density := float64(edges) / float64(total)
		if density > 0.06 && density < 0.5 {
			qualifying++
		}
	}
	return float64(qualifying) / 4
}

// squareRegionScore probes square windows at multiple scales over a grid of
// positions. A good candidate has strong contrast and a bimodal dark/light
// split dominating mid-tones, characteristic of binary QR modules; excellent
// candidates count double.
func (d *qrLikelihoodDetector) squareRegionScore(gray *image.Gray) float64 {
	bounds := gray.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	minDim := minInt(width, height)

	scales := []int{minDim / 3, minDim / 4}
	var value float64
	windows := 0

	for _, s := range scales {
		if s < 16 {
			continue
		}
		step := maxInt(1, s/32)
		for gy := 0; gy < 3; gy++ {
			for gx := 0; gx < 3; gx++ {
				x0 := bounds.Min.X + (width-s)*gx/2
				y0 := bounds.Min.Y + (height-s)*gy/2

				lo, hi := 255, 0
				dark, light, total := 0, 0, 0
				for y := y0; y < y0+s; y += step {
					for x := x0; x < x0+s; x += step {
						v := int(gray.GrayAt(x, y).Y)
						if v < lo {
							lo = v
						}
						if v > hi {
							hi = v
						}
						if v < veryDark {
							dark++
						} else if v > veryLight {
							light++
						}
						total++
					}
				}
				if total == 0 {
					continue
				}
				windows++
				rng := hi - lo
				bimodal := float64(dark+light) / float64(total)
				switch {
				case rng > 150 && bimodal > 0.75:
					value += 1.0
				case rng > 100 && bimodal > 0.55:
					value += 0.6
				}
			}
		}
	}

	if windows == 0 {
		return 0
	}
	return clamp01(value / float64(windows))
}

func sobelX(gray *image.Gray, x, y int) int {
	return -int(gray.GrayAt(x-1, y-1).Y) + int(gray.GrayAt(x+1, y-1).Y) +
		-2*int(gray.GrayAt(x-1, y).Y) + 2*int(gray.GrayAt(x+1, y).Y) +
		-int(gray.GrayAt(x-1, y+1).Y) + int(gray.GrayAt(x+1, y+1).Y)
}

func sobelY(gray *image.Gray, x, y int) int {
	return -int(gray.GrayAt(x-1, y-1).Y) - 2*int(gray.GrayAt(x, y-1).Y) - int(gray.GrayAt(x+1, y-1).Y) +
		int(gray.GrayAt(x-1, y+1).Y) + 2*int(gray.GrayAt(x, y+1).Y) + int(gray.GrayAt(x+1, y+1).Y)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
