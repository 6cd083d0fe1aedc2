package analyzer

import (
	"image"

	"gonum.org/v1/gonum/stat"

	"go-qr-inspector/pkg/models"
)

// Advisory usability bounds for a captured frame. A frame outside these is
// still analyzed; the caller decides whether to ask for a retake.
const (
	blurVarianceFloor = 60.0
	minFrameSide      = 120
)

// qualityChecker computes a small usability snapshot of an input frame:
// resolution, brightness, and a Laplacian-variance blur metric.
type qualityChecker struct{}

// NewQualityChecker creates a frame quality checker.
func NewQualityChecker() QualityChecker {
	return &qualityChecker{}
}

// Check computes the snapshot. Pure function over the input frame.
func (q *qualityChecker) Check(gray *image.Gray) models.FrameQuality {
	bounds := gray.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	quality := models.FrameQuality{
		Width:         width,
		Height:        height,
		LowResolution: width < minFrameSide || height < minFrameSide,
	}
	if width == 0 || height == 0 {
		quality.Blurry = true
		return quality
	}

	var sum float64
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			sum += float64(gray.GrayAt(x, y).Y)
		}
	}
	quality.Brightness = sum / float64(width*height)

	quality.LaplacianVar = laplacianVariance(gray)
	quality.Blurry = quality.LaplacianVar < blurVarianceFloor
	return quality
}

// laplacianVariance applies the [0,1,0; 1,-4,1; 0,1,0] kernel and returns the
// variance of the responses, a standard sharpness measure.
func laplacianVariance(gray *image.Gray) float64 {
	bounds := gray.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width < 3 || height < 3 {
		return 0
	}

	data := make([]float64, 0, (width-2)*(height-2))
	for y := bounds.Min.Y + 1; y < bounds.Max.Y-1; y++ {
		for x := bounds.Min.X + 1; x < bounds.Max.X-1; x++ {
			center := float64(gray.GrayAt(x, y).Y)
			response := -4*center +
				float64(gray.GrayAt(x, y-1).Y) + float64(gray.GrayAt(x, y+1).Y) +
				float64(gray.GrayAt(x-1, y).Y) + float64(gray.GrayAt(x+1, y).Y)
			data = append(data, response)
		}
	}
	if len(data) == 0 {
		return 0
	}
	return stat.Variance(data, nil)
}
