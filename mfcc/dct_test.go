package mfcc

import (
	"math"
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func randomEnergies(rng *rand.Rand, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Exp(rng.NormFloat64() * 3)
	}
	return out
}

func TestDCTMatrix_Orthonormal(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	for _, size := range []int{1, 2, 13, 40} {
		d := DCTMatrix(size)
		inv := InverseDCTMatrix(size)

		var gram mat.Dense
		gram.Mul(d, d.T())
		assert.True(t, mat.EqualApprox(&gram, eye(size), 1e-12), "size %d", size)

		var roundTrip mat.Dense
		roundTrip.Mul(inv, d)
		assert.True(t, mat.EqualApprox(&roundTrip, eye(size), 1e-12), "size %d", size)

		assert.True(t, mat.EqualApprox(inv, d.T(), 1e-15), "size %d", size)
	}
}

func eye(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := range n {
		m.Set(i, i, 1)
	}
	return m
}

func TestCepstralTransform_Reconstruction(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	const numBands = 40
	rng := rand.New(rand.NewSource(7))
	energies := randomEnergies(rng, numBands)
	logE := make([]float64, numBands)
	for i, e := range energies {
		logE[i] = math.Log(e)
	}

	full, err := NewCepstralTransform(numBands, numBands, 0)
	require.NoError(t, err)
	cepstra, err := full.Forward(energies)
	require.NoError(t, err)
	back, err := full.Inverse(cepstra, numBands)
	require.NoError(t, err)
	assert.InDeltaSlice(t, logE, back, 1e-9)

	prevErr := math.Inf(1)
	for numCep := 1; numCep <= numBands; numCep++ {
		tr, err := NewCepstralTransform(numBands, numCep, 0)
		require.NoError(t, err)
		c, err := tr.Forward(energies)
		require.NoError(t, err)
		require.Len(t, c, numCep)
		assert.InDeltaSlice(t, cepstra[:numCep], c, 1e-9)

		approx, err := tr.Inverse(c, numBands)
		require.NoError(t, err)
		dist := floats.Distance(approx, logE, 2)
		assert.Less(t, dist, prevErr, "numCep %d", numCep)
		prevErr = dist
	}
	assert.InDelta(t, 0, prevErr, 1e-9)
}

func TestCepstralTransform_FloorsNonPositive(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	tr, err := NewCepstralTransform(4, 4, 1e-6)
	require.NoError(t, err)

	floored, err := tr.Forward([]float64{0, -3, math.NaN(), 1e-9})
	require.NoError(t, err)
	want, err := tr.Forward([]float64{1e-6, 1e-6, 1e-6, 1e-6})
	require.NoError(t, err)
	assert.InDeltaSlice(t, want, floored, 1e-12)
	for _, v := range floored {
		assert.False(t, math.IsNaN(v) || math.IsInf(v, 0))
	}
}

func TestCepstralTransform_Errors(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	_, err := NewCepstralTransform(10, 11, 0)
	assert.True(t, errors.Is(err, ErrConfiguration))
	_, err = NewCepstralTransform(10, 0, 0)
	assert.True(t, errors.Is(err, ErrConfiguration))

	tr, err := NewCepstralTransform(10, 5, 0)
	require.NoError(t, err)
	_, err = tr.Forward(make([]float64, 9))
	assert.True(t, errors.Is(err, ErrShape))

	_, err = tr.Inverse(make([]float64, 5), 4)
	assert.True(t, errors.Is(err, ErrShape))
	_, err = tr.Inverse(make([]float64, 5), 0)
	assert.True(t, errors.Is(err, ErrConfiguration))
}

func TestCepstralTransform_InverseLongerTarget(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	tr, err := NewCepstralTransform(40, 13, 0)
	require.NoError(t, err)

	// only C0: a flat envelope at C0/sqrt(n)
	c := make([]float64, 13)
	c[0] = math.Sqrt(128)
	env, err := tr.Inverse(c, 128)
	require.NoError(t, err)
	require.Len(t, env, 128)
	for _, v := range env {
		assert.InDelta(t, 1.0, v, 1e-12)
	}

	first, err := tr.InverseMatrix(40)
	require.NoError(t, err)
	assert.True(t, mat.Equal(first, InverseDCTMatrix(40)))

	// callers get their own copy
	first.Zero()
	again, err := tr.InverseMatrix(40)
	require.NoError(t, err)
	assert.NotSame(t, first, again)
	assert.True(t, mat.Equal(again, InverseDCTMatrix(40)))
}

func TestLifter(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	w := Lifter(13, 22)
	require.Len(t, w, 13)
	assert.Equal(t, 1.0, w[0])
	assert.InDelta(t, 1+11*math.Sin(math.Pi*5/22), w[5], 1e-12)
	for _, v := range w {
		assert.GreaterOrEqual(t, v, 1.0)
	}

	for _, v := range Lifter(5, 0) {
		assert.Equal(t, 1.0, v)
	}
}
