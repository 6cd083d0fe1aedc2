package analyzer

import (
	"image"
	"image/color"
	"image/draw"

	xdraw "golang.org/x/image/draw"

	apperrors "go-qr-inspector/internal/errors"
)

// ModelInputSize is the fixed square side of the classifier's input tensor.
const ModelInputSize = 69

const (
	cropPadding    = 10
	minContentSide = 20
)

// Tensor is a dense 4D float64 buffer in [batch, height, width, channels]
// layout, matching the classifier's expected input shape.
type Tensor struct {
	Data  []float64
	Shape [4]int
}

// NewTensor allocates a zeroed tensor of the given shape.
func NewTensor(batch, height, width, channels int) *Tensor {
	return &Tensor{
		Data:  make([]float64, batch*height*width*channels),
		Shape: [4]int{batch, height, width, channels},
	}
}

// At returns the value at [b][y][x][c].
func (t *Tensor) At(b, y, x, c int) float64 {
	return t.Data[((b*t.Shape[1]+y)*t.Shape[2]+x)*t.Shape[3]+c]
}

// Set writes the value at [b][y][x][c].
func (t *Tensor) Set(b, y, x, c int, v float64) {
	t.Data[((b*t.Shape[1]+y)*t.Shape[2]+x)*t.Shape[3]+c] = v
}

// preprocessor deterministically converts an arbitrary decoded image into the
// normalized [1, 69, 69, 1] tensor the classifier expects. Every step is
// side-effect-free on the input; identical input bytes always produce an
// identical tensor.
type preprocessor struct {
	inputSize int
}

// NewPreprocessor creates a preprocessor targeting the model input size.
func NewPreprocessor() Preprocessor {
	return &preprocessor{inputSize: ModelInputSize}
}

// Preprocess performs, in order: grayscale conversion, Otsu-guided content
// crop, Catmull-Rom resize, min-max contrast stretch, and [0,1]
// normalization.
func (p *preprocessor) Preprocess(img image.Image) (*Tensor, error) {
	if img == nil {
		return nil, apperrors.NewDecodeError("nil image", nil)
	}
	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return nil, apperrors.NewDecodeError("empty image", nil)
	}

	gray := ToGray(img)
	cropped := p.extractContentRegion(gray)
	resized := p.resize(cropped)
	stretched := stretchContrast(resized)

	tensor := NewTensor(1, p.inputSize, p.inputSize, 1)
	for y := 0; y < p.inputSize; y++ {
		for x := 0; x < p.inputSize; x++ {
			tensor.Set(0, y, x, 0, float64(stretched.GrayAt(x, y).Y)/255.0)
		}
	}
	return tensor, nil
}

// ToGray converts any image to 8-bit grayscale using the standard perceptual
// luminance weighting (the stdlib gray color model, not a channel average).
func ToGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	bounds := img.Bounds()
	gray := image.NewGray(bounds)
	draw.Draw(gray, bounds, img, bounds.Min, draw.Src)
	return gray
}

// extractContentRegion crops to the bounding box of pixels strongly darker
// than the Otsu threshold, padded by a fixed margin. When no sufficient
// content exists the fallback is a centered square crop of the whole image.
func (p *preprocessor) extractContentRegion(gray *image.Gray) *image.Gray {
	bounds := gray.Bounds()
	stats := ComputeStats(gray)

	minX, minY := bounds.Max.X, bounds.Max.Y
	maxX, maxY := bounds.Min.X-1, bounds.Min.Y-1
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if gray.GrayAt(x, y).Y < stats.OtsuThreshold {
				if x < minX {
					minX = x
				}
				if x > maxX {
					maxX = x
				}
				if y < minY {
					minY = y
				}
				if y > maxY {
					maxY = y
				}
			}
		}
	}

	if maxX-minX+1 < minContentSide || maxY-minY+1 < minContentSide {
		return centeredSquareCrop(gray)
	}

	box := image.Rect(minX-cropPadding, minY-cropPadding, maxX+1+cropPadding, maxY+1+cropPadding)
	box = box.Intersect(bounds)
	return cropGray(gray, box)
}

// centeredSquareCrop takes the largest centered square of the image.
func centeredSquareCrop(gray *image.Gray) *image.Gray {
	bounds := gray.Bounds()
	side := minInt(bounds.Dx(), bounds.Dy())
	x0 := bounds.Min.X + (bounds.Dx()-side)/2
	y0 := bounds.Min.Y + (bounds.Dy()-side)/2
	return cropGray(gray, image.Rect(x0, y0, x0+side, y0+side))
}

func cropGray(gray *image.Gray, box image.Rectangle) *image.Gray {
	out := image.NewGray(image.Rect(0, 0, box.Dx(), box.Dy()))
	draw.Draw(out, out.Bounds(), gray, box.Min, draw.Src)
	return out
}

// resize scales to the model input size with Catmull-Rom interpolation,
// the cubic kernel x/image provides.
func (p *preprocessor) resize(gray *image.Gray) *image.Gray {
	out := image.NewGray(image.Rect(0, 0, p.inputSize, p.inputSize))
	xdraw.CatmullRom.Scale(out, out.Bounds(), gray, gray.Bounds(), xdraw.Src, nil)
	return out
}

// stretchContrast applies a deterministic min-max stretch to the full 0..255
// range. Chosen over histogram equalization because it is monotone and
// matches the stretch applied at training time; a flat image is returned
// unchanged.
func stretchContrast(gray *image.Gray) *image.Gray {
	bounds := gray.Bounds()
	lo, hi := 255, 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			v := int(gray.GrayAt(x, y).Y)
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
	}
	if hi <= lo {
		return gray
	}

	out := image.NewGray(bounds)
	scale := 255.0 / float64(hi-lo)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			v := float64(int(gray.GrayAt(x, y).Y)-lo) * scale
			if v < 0 {
				v = 0
			} else if v > 255 {
				v = 255
			}
			out.SetGray(x, y, color.Gray{Y: uint8(v + 0.5)})
		}
	}
	return out
}
