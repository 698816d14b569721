package mfcc

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// CepstralMeanNormalize subtracts from every coefficient row its mean over
// all frames, in place, and returns the removed means.
// m is coefficients x frames.
func CepstralMeanNormalize(m *mat.Dense) ([]float64, error) {
	if m == nil || m.IsEmpty() {
		return nil, errInsufficientFrames("cepstral mean normalization")
	}
	rows, _ := m.Dims()
	means := make([]float64, rows)
	for i := range rows {
		row := m.RawRowView(i)
		mean := stat.Mean(row, nil)
		for j := range row {
			row[j] -= mean
		}
		means[i] = mean
	}
	return means, nil
}

// ApplyLifter scales row i of m by weights[i], in place.
func ApplyLifter(m *mat.Dense, weights []float64) error {
	rows, _ := m.Dims()
	if len(weights) != rows {
		return shapeErrorf("lifter has %d weights for %d coefficient rows", len(weights), rows)
	}
	for i, w := range weights {
		row := m.RawRowView(i)
		for j := range row {
			row[j] *= w
		}
	}
	return nil
}
