package mfcc

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

const (
	defaultDeltaWindow      = 2
	defaultDeltaDeltaWindow = 4
)

// DeltaBoundary selects how Delta indexes frames past either end of the sequence.
type DeltaBoundary int

const (
	// BoundaryWrap indexes frames modulo the frame count, so the first frame
	// differences against the last.
	BoundaryWrap DeltaBoundary = iota
	// BoundaryClamp repeats the first and last frames instead of wrapping.
	BoundaryClamp
)

func (b DeltaBoundary) String() string {
	switch b {
	case BoundaryWrap:
		return "wrap"
	case BoundaryClamp:
		return "clamp"
	default:
		return "unknown"
	}
}

// ParseDeltaBoundary maps "wrap" or "clamp" to a DeltaBoundary.
func ParseDeltaBoundary(name string) (DeltaBoundary, error) {
	switch name {
	case "", "wrap":
		return BoundaryWrap, nil
	case "clamp":
		return BoundaryClamp, nil
	default:
		return 0, configErrorf("unknown delta boundary %q", name)
	}
}

// Delta computes, for every frame column n of features (coefficients x frames),
// (features[:, n+w/2] - features[:, n-w/2]) / w with circular frame indexing.
// window must be even and positive.
func Delta(features *mat.Dense, window int) (*mat.Dense, error) {
	return DeltaWithBoundary(features, window, BoundaryWrap)
}

// DeltaWithBoundary is Delta with an explicit boundary policy.
func DeltaWithBoundary(features *mat.Dense, window int, boundary DeltaBoundary) (*mat.Dense, error) {
	if err := checkDeltaWindow("delta", window); err != nil {
		return nil, err
	}
	if features == nil || features.IsEmpty() {
		return nil, errInsufficientFrames("delta")
	}

	rows, frameCount := features.Dims()
	half := window / 2
	var index func(int) int
	switch boundary {
	case BoundaryWrap:
		index = func(n int) int {
			n %= frameCount
			if n < 0 {
				n += frameCount
			}
			return n
		}
	case BoundaryClamp:
		index = func(n int) int {
			return min(max(n, 0), frameCount-1)
		}
	default:
		return nil, configErrorf("unknown delta boundary: %d", boundary)
	}

	delta := mat.NewDense(rows, frameCount, nil)
	scale := 1 / float64(window)
	for k := range rows {
		src := features.RawRowView(k)
		dst := delta.RawRowView(k)
		for n := range dst {
			dst[n] = (src[index(n+half)] - src[index(n-half)]) * scale
		}
	}

	return delta, nil
}

// StackFeatures stacks static, delta and delta-delta blocks vertically into a
// 3*rows x frames matrix. deltaWindow and deltaDeltaWindow must be even.
func StackFeatures(static *mat.Dense, deltaWindow, deltaDeltaWindow int, boundary DeltaBoundary) (*mat.Dense, error) {
	if static == nil || static.IsEmpty() {
		return nil, errInsufficientFrames("feature stacking")
	}
	if err := checkDeltaWindow("delta-delta", deltaDeltaWindow); err != nil {
		return nil, err
	}

	delta1, err := DeltaWithBoundary(static, deltaWindow, boundary)
	if err != nil {
		return nil, err
	}
	delta2, err := DeltaWithBoundary(delta1, deltaDeltaWindow, boundary)
	if err != nil {
		return nil, err
	}

	rows, frameCount := static.Dims()
	out := mat.NewDense(3*rows, frameCount, nil)
	out.Slice(0, rows, 0, frameCount).(*mat.Dense).Copy(static)
	out.Slice(rows, 2*rows, 0, frameCount).(*mat.Dense).Copy(delta1)
	out.Slice(2*rows, 3*rows, 0, frameCount).(*mat.Dense).Copy(delta2)
	return out, nil
}

func checkDeltaWindow(name string, window int) error {
	if window <= 0 || window%2 != 0 {
		return configErrorf("invalid %s window: %d (must be even and positive)", name, window)
	}
	return nil
}

func errInsufficientFrames(stage string) error {
	return errors.Wrapf(ErrInsufficientData, "no frames for %s", stage)
}
