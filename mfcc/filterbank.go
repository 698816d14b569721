package mfcc

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// FilterSpec holds the quantized spectral bins of one triangular filter.
type FilterSpec struct {
	Start  int
	Center int
	End    int
}

// Degenerate reports whether two of the three bins coincide.
func (f FilterSpec) Degenerate() bool {
	return f.Start == f.Center || f.Center == f.End
}

// FilterbankSpec describes the filterbank to build.
type FilterbankSpec struct {
	NumSpectralBins int
	NumBands        int
	MinHz           float64
	MaxHz           float64
	SampleRate      int
	FFTSize         int
	Scale           MelScale
	// Width stretches each filter's outer edges about its center frequency.
	// Zero means 1 (plain triangles).
	Width float64
}

// Filterbank is an immutable numSpectralBins x numBands weight matrix.
// Column k is the triangular filter of band k.
type Filterbank struct {
	weights    *mat.Dense
	filters    []FilterSpec
	degenerate []int
	// first/last nonzero bin per band, end exclusive
	spans [][2]int
}

// BuildFilterbank computes the Mel filterbank described by spec.
func BuildFilterbank(spec FilterbankSpec) (*Filterbank, error) {
	if spec.NumBands < 2 {
		return nil, configErrorf("num bands must be at least 2, got %d", spec.NumBands)
	}
	if spec.SampleRate <= 0 {
		return nil, configErrorf("invalid sample rate: %dHz", spec.SampleRate)
	}
	if spec.FFTSize <= 0 {
		return nil, configErrorf("invalid fft size: %d", spec.FFTSize)
	}
	if spec.NumSpectralBins != spec.FFTSize/2+1 {
		return nil, shapeErrorf("spectral bins %d do not match fft size %d", spec.NumSpectralBins, spec.FFTSize)
	}
	if err := checkFrequencyBounds(spec.MinHz, spec.MaxHz, spec.SampleRate); err != nil {
		return nil, err
	}
	if !spec.Scale.valid() {
		return nil, configErrorf("unknown mel scale: %d", spec.Scale)
	}
	width := spec.Width
	if width == 0 {
		width = 1
	}
	if width < 0 || math.IsNaN(width) || math.IsInf(width, 0) {
		return nil, configErrorf("invalid filter width: %g", spec.Width)
	}

	centers := spec.Scale.CenterFrequencies(spec.NumBands, spec.MinHz, spec.MaxHz)
	toBin := func(hz float64) int {
		bin := int(math.Floor(0.5 + hz/float64(spec.SampleRate)*float64(spec.FFTSize)))
		return min(max(bin, 0), spec.NumSpectralBins-1)
	}

	fb := &Filterbank{
		weights: mat.NewDense(spec.NumSpectralBins, spec.NumBands, nil),
		filters: make([]FilterSpec, spec.NumBands),
		spans:   make([][2]int, spec.NumBands),
	}
	for k := range spec.NumBands {
		lo, mid, hi := centers[k], centers[k+1], centers[k+2]
		f := FilterSpec{
			Start:  toBin(mid + width*(lo-mid)),
			Center: toBin(mid),
			End:    toBin(mid + width*(hi-mid)),
		}
		fb.filters[k] = f
		if f.Degenerate() {
			fb.degenerate = append(fb.degenerate, k)
		}
		fb.spans[k] = fb.setFilter(k, f)
	}

	return fb, nil
}

// setFilter writes one column and returns its nonzero bin range.
func (fb *Filterbank) setFilter(k int, f FilterSpec) [2]int {
	if f.Degenerate() {
		if f.Start == f.End {
			return [2]int{f.Center, f.Center}
		}
		fb.weights.Set(f.Center, k, 1)
		return [2]int{f.Center, f.Center + 1}
	}

	rise := float64(f.Center - f.Start)
	for j := f.Start + 1; j < f.Center; j++ {
		fb.weights.Set(j, k, float64(j-f.Start)/rise)
	}
	fb.weights.Set(f.Center, k, 1)
	fall := float64(f.End - f.Center)
	for j := f.Center + 1; j < f.End; j++ {
		fb.weights.Set(j, k, float64(f.End-j)/fall)
	}
	return [2]int{f.Start + 1, f.End}
}

// NumBands returns the number of filters.
func (fb *Filterbank) NumBands() int {
	return len(fb.filters)
}

// NumSpectralBins returns the expected spectrum length.
func (fb *Filterbank) NumSpectralBins() int {
	r, _ := fb.weights.Dims()
	return r
}

// Filters returns a copy of the quantized filter bins.
func (fb *Filterbank) Filters() []FilterSpec {
	out := make([]FilterSpec, len(fb.filters))
	copy(out, fb.filters)
	return out
}

// Degenerate returns the indices of bands whose bins collapsed.
func (fb *Filterbank) Degenerate() []int {
	out := make([]int, len(fb.degenerate))
	copy(out, fb.degenerate)
	return out
}

// Matrix returns a copy of the weights. The filterbank itself is shared
// between pipelines and never changes.
func (fb *Filterbank) Matrix() *mat.Dense {
	return mat.DenseCopyOf(fb.weights)
}

// Column copies the weights of band k.
func (fb *Filterbank) Column(k int) []float64 {
	return mat.Col(nil, k, fb.weights)
}
