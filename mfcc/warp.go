package mfcc

import (
	"gonum.org/v1/gonum/mat"
)

// Warp applies the filterbank to one power spectrum and returns the Mel band
// energies (fbᵀ · power).
func Warp(power []float64, fb *Filterbank) ([]float64, error) {
	if fb == nil {
		return nil, shapeErrorf("filterbank is nil")
	}
	if len(power) != fb.NumSpectralBins() {
		return nil, shapeErrorf("spectrum has %d bins, filterbank expects %d", len(power), fb.NumSpectralBins())
	}
	var energies mat.VecDense
	energies.MulVec(fb.weights.T(), mat.NewVecDense(len(power), power))
	return energies.RawVector().Data, nil
}

// WarpInto is Warp without allocation. It only visits each filter's nonzero
// bins. dst must have NumBands elements.
func WarpInto(dst, power []float64, fb *Filterbank) error {
	if fb == nil {
		return shapeErrorf("filterbank is nil")
	}
	if len(power) != fb.NumSpectralBins() {
		return shapeErrorf("spectrum has %d bins, filterbank expects %d", len(power), fb.NumSpectralBins())
	}
	if len(dst) != fb.NumBands() {
		return shapeErrorf("energy buffer has %d bands, filterbank has %d", len(dst), fb.NumBands())
	}
	for k, span := range fb.spans {
		sum := 0.0
		for j := span[0]; j < span[1]; j++ {
			sum += power[j] * fb.weights.At(j, k)
		}
		dst[k] = sum
	}
	return nil
}
