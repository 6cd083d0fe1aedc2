package classifier

import (
	"encoding/json"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"go-qr-inspector/internal/analyzer"
)

// The model artifact is a JSON weights document for a small sequential CNN.
// Output convention, fixed once for the whole system: the final dense layer
// is linear and emits a RAW LOGIT; the classifier applies an explicit sigmoid.
// The artifact must declare `"output": "logit"` or loading fails.

const supportedFormatVersion = 1

type layerSpec struct {
	Type       string          `json:"type"`
	Activation string          `json:"activation,omitempty"`
	Kernel     [][][][]float64 `json:"kernel,omitempty"` // [kh][kw][cin][cout]
	Weights    [][]float64     `json:"weights,omitempty"` // [in][out]
	Bias       []float64       `json:"bias,omitempty"`
	Size       int             `json:"size,omitempty"` // pool window
}

type modelSpec struct {
	FormatVersion int         `json:"format_version"`
	InputShape    []int       `json:"input_shape"`
	Output        string      `json:"output"`
	Layers        []layerSpec `json:"layers"`
}

// Model is a loaded, shape-validated network. Weights are immutable after
// Load, so concurrent Forward calls are safe.
type Model struct {
	inputH, inputW, inputC int
	layers                 []layerSpec
}

// ParseModel decodes and validates a model artifact. Every shape in the layer
// chain is checked here so inference can never hit a dimension mismatch; a
// bad artifact is a packaging error and must fail loading.
func ParseModel(data []byte) (*Model, error) {
	var spec modelSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parsing model artifact: %w", err)
	}
	if spec.FormatVersion != supportedFormatVersion {
		return nil, fmt.Errorf("unsupported model format version %d", spec.FormatVersion)
	}
	if spec.Output != "logit" {
		return nil, fmt.Errorf("unsupported output convention %q, want \"logit\"", spec.Output)
	}
	if len(spec.InputShape) != 3 {
		return nil, fmt.Errorf("input shape has rank %d, want 3", len(spec.InputShape))
	}

	m := &Model{
		inputH: spec.InputShape[0],
		inputW: spec.InputShape[1],
		inputC: spec.InputShape[2],
		layers: spec.Layers,
	}
	if m.inputH != analyzer.ModelInputSize || m.inputW != analyzer.ModelInputSize || m.inputC != 1 {
		return nil, fmt.Errorf("model expects input %dx%dx%d, this build requires %dx%dx1",
			m.inputH, m.inputW, m.inputC, analyzer.ModelInputSize, analyzer.ModelInputSize)
	}
	if err := m.validateChain(); err != nil {
		return nil, err
	}
	return m, nil
}

// validateChain walks the declared layers and checks that each one's weights
// are consistent with the shape flowing into it, and that the network ends in
// a single scalar.
func (m *Model) validateChain() error {
	h, w, c := m.inputH, m.inputW, m.inputC
	flat := 0
	flattened := false

	for i, layer := range m.layers {
		switch layer.Type {
		case "conv2d":
			if flattened {
				return fmt.Errorf("layer %d: conv2d after flatten", i)
			}
			kh, kw, cin, cout, err := kernelDims(layer.Kernel)
			if err != nil {
				return fmt.Errorf("layer %d: %w", i, err)
			}
			if cin != c {
				return fmt.Errorf("layer %d: kernel expects %d input channels, have %d", i, cin, c)
			}
			if len(layer.Bias) != cout {
				return fmt.Errorf("layer %d: bias length %d, want %d", i, len(layer.Bias), cout)
			}
			if h < kh || w < kw {
				return fmt.Errorf("layer %d: %dx%d input too small for %dx%d kernel", i, h, w, kh, kw)
			}
			h, w, c = h-kh+1, w-kw+1, cout
		case "maxpool":
			if flattened {
				return fmt.Errorf("layer %d: maxpool after flatten", i)
			}
			if layer.Size < 2 {
				return fmt.Errorf("layer %d: pool size %d", i, layer.Size)
			}
			h, w = h/layer.Size, w/layer.Size
			if h == 0 || w == 0 {
				return fmt.Errorf("layer %d: pooling collapses the feature map", i)
			}
		case "flatten":
			if flattened {
				return fmt.Errorf("layer %d: duplicate flatten", i)
			}
			flat = h * w * c
			flattened = true
		case "dense":
			if !flattened {
				return fmt.Errorf("layer %d: dense before flatten", i)
			}
			if len(layer.Weights) != flat {
				return fmt.Errorf("layer %d: weights expect %d inputs, have %d", i, len(layer.Weights), flat)
			}
			if flat == 0 || len(layer.Weights[0]) == 0 {
				return fmt.Errorf("layer %d: empty dense weights", i)
			}
			out := len(layer.Weights[0])
			for r, row := range layer.Weights {
				if len(row) != out {
					return fmt.Errorf("layer %d: ragged weights at row %d", i, r)
				}
			}
			if len(layer.Bias) != out {
				return fmt.Errorf("layer %d: bias length %d, want %d", i, len(layer.Bias), out)
			}
			flat = out
		default:
			return fmt.Errorf("layer %d: unknown type %q", i, layer.Type)
		}
	}

	if !flattened || flat != 1 {
		return fmt.Errorf("network must end in a single scalar output, ends in %d", flat)
	}
	return nil
}

func kernelDims(kernel [][][][]float64) (kh, kw, cin, cout int, err error) {
	if len(kernel) == 0 || len(kernel[0]) == 0 || len(kernel[0][0]) == 0 || len(kernel[0][0][0]) == 0 {
		return 0, 0, 0, 0, fmt.Errorf("empty conv kernel")
	}
	return len(kernel), len(kernel[0]), len(kernel[0][0]), len(kernel[0][0][0]), nil
}

// Forward runs one inference pass and returns the raw logit. The tensor must
// already match the validated input shape.
func (m *Model) Forward(t *analyzer.Tensor) (float64, error) {
	if t.Shape != [4]int{1, m.inputH, m.inputW, m.inputC} {
		return 0, fmt.Errorf("tensor shape %v, model expects [1 %d %d %d]",
			t.Shape, m.inputH, m.inputW, m.inputC)
	}

	h, w, c := m.inputH, m.inputW, m.inputC
	feat := append([]float64(nil), t.Data...)
	var flat []float64

	for _, layer := range m.layers {
		switch layer.Type {
		case "conv2d":
			feat, h, w, c = convolve(feat, h, w, c, layer)
		case "maxpool":
			feat, h, w = maxPool(feat, h, w, c, layer.Size)
		case "flatten":
			flat = feat
		case "dense":
			flat = denseForward(flat, layer)
		}
	}

	if len(flat) != 1 {
		return 0, fmt.Errorf("forward pass produced %d outputs, want 1", len(flat))
	}
	return flat[0], nil
}

// convolve applies a valid (no padding) stride-1 convolution with optional
// ReLU. Feature maps are flat slices in [h][w][c] layout.
func convolve(in []float64, h, w, c int, layer layerSpec) ([]float64, int, int, int) {
	kh := len(layer.Kernel)
	kw := len(layer.Kernel[0])
	cout := len(layer.Kernel[0][0][0])
	oh, ow := h-kh+1, w-kw+1

	out := make([]float64, oh*ow*cout)
	for y := 0; y < oh; y++ {
		for x := 0; x < ow; x++ {
			for oc := 0; oc < cout; oc++ {
				sum := layer.Bias[oc]
				for ky := 0; ky < kh; ky++ {
					for kx := 0; kx < kw; kx++ {
						for ic := 0; ic < c; ic++ {
							sum += in[((y+ky)*w+(x+kx))*c+ic] * layer.Kernel[ky][kx][ic][oc]
						}
					}
				}
				if layer.Activation == "relu" && sum < 0 {
					sum = 0
				}
				out[(y*ow+x)*cout+oc] = sum
			}
		}
	}
	return out, oh, ow, cout
}

// maxPool applies non-overlapping size x size max pooling.
func maxPool(in []float64, h, w, c, size int) ([]float64, int, int) {
	oh, ow := h/size, w/size
	out := make([]float64, oh*ow*c)
	for y := 0; y < oh; y++ {
		for x := 0; x < ow; x++ {
			for ic := 0; ic < c; ic++ {
				best := in[((y*size)*w+(x*size))*c+ic]
				for py := 0; py < size; py++ {
					for px := 0; px < size; px++ {
						v := in[((y*size+py)*w+(x*size+px))*c+ic]
						if v > best {
							best = v
						}
					}
				}
				out[(y*ow+x)*c+ic] = best
			}
		}
	}
	return out, oh, ow
}

// denseForward computes x*W + b as a gonum vector-matrix product, with
// optional ReLU.
func denseForward(in []float64, layer layerSpec) []float64 {
	rows := len(layer.Weights)
	cols := len(layer.Weights[0])

	weights := mat.NewDense(rows, cols, nil)
	for r, row := range layer.Weights {
		weights.SetRow(r, row)
	}

	var out mat.Dense
	out.Mul(mat.NewDense(1, rows, in), weights)

	result := make([]float64, cols)
	for i := 0; i < cols; i++ {
		v := out.At(0, i) + layer.Bias[i]
		if layer.Activation == "relu" && v < 0 {
			v = 0
		}
		result[i] = v
	}
	return result
}
