package mfcc

import (
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"gonum.org/v1/gonum/floats"
)

func TestMelScale_Invertible(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	freqs := []float64{0, 1, 50, 100, 300, 1_000, 4_000, 8_000, 22_050}
	for _, scale := range []MelScale{MelScaleHTK, MelScaleNatural} {
		t.Run(scale.String(), func(t *testing.T) {
			for _, freq := range freqs {
				back := scale.MelToHz(scale.HzToMel(freq))
				assert.InDelta(t, freq, back, 1e-9*math.Max(1, freq))
			}
			// 1000Hz 부근이 대략 1000 mel 근처에 온다.
			assert.InDelta(t, 1_000.0, scale.HzToMel(1_000), 0.1)
		})
	}
}

func TestParseMelScale(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	s, err := ParseMelScale("natural")
	require.NoError(t, err)
	assert.Equal(t, MelScaleNatural, s)

	s, err = ParseMelScale("")
	require.NoError(t, err)
	assert.Equal(t, MelScaleHTK, s)

	_, err = ParseMelScale("bark")
	assert.True(t, errors.Is(err, ErrConfiguration))
}

func TestCenterFrequencies(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	points := MelScaleHTK.CenterFrequencies(40, 20, 8_000)
	require.Len(t, points, 42)
	assert.Equal(t, 20.0, points[0])
	assert.Equal(t, 8_000.0, points[41])

	mels := make([]float64, len(points))
	for i, hz := range points {
		mels[i] = MelScaleHTK.HzToMel(hz)
		if i > 0 {
			assert.Greater(t, points[i], points[i-1])
		}
	}
	step := mels[1] - mels[0]
	for i := 1; i < len(mels); i++ {
		assert.InDelta(t, step, mels[i]-mels[i-1], 1e-6)
	}
}

func defaultFilterbankSpec() FilterbankSpec {
	return FilterbankSpec{
		NumSpectralBins: 257,
		NumBands:        40,
		MinHz:           0,
		MaxHz:           8_000,
		SampleRate:      16_000,
		FFTSize:         512,
	}
}

func TestBuildFilterbank_PeakIsOne(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	fb, err := BuildFilterbank(defaultFilterbankSpec())
	require.NoError(t, err)
	assert.Equal(t, 40, fb.NumBands())
	assert.Equal(t, 257, fb.NumSpectralBins())
	assert.Empty(t, fb.Degenerate())

	r, c := fb.Matrix().Dims()
	assert.Equal(t, 257, r)
	assert.Equal(t, 40, c)

	for k, f := range fb.Filters() {
		col := fb.Column(k)
		for j, w := range col {
			require.False(t, math.IsNaN(w), "band %d bin %d", k, j)
			assert.GreaterOrEqual(t, w, 0.0)
			assert.LessOrEqual(t, w, 1.0)
			if j <= f.Start || j >= f.End {
				assert.Zero(t, w, "band %d bin %d outside [%d, %d]", k, j, f.Start, f.End)
			}
		}
		assert.Equal(t, 1.0, floats.Max(col), "band %d", k)
		assert.Equal(t, 1.0, col[f.Center], "band %d", k)
		assert.Less(t, f.Start, f.Center)
		assert.Less(t, f.Center, f.End)
	}
}

func TestBuildFilterbank_Degenerate(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	spec := defaultFilterbankSpec()
	spec.FFTSize = 64
	spec.NumSpectralBins = 33

	fb, err := BuildFilterbank(spec)
	require.NoError(t, err)
	degenerate := fb.Degenerate()
	require.NotEmpty(t, degenerate)

	filters := fb.Filters()
	for _, k := range degenerate {
		f := filters[k]
		require.True(t, f.Degenerate())
		col := fb.Column(k)
		for _, w := range col {
			require.False(t, math.IsNaN(w) || math.IsInf(w, 0))
		}
		if f.Start == f.End {
			assert.Zero(t, floats.Sum(col), "band %d", k)
			continue
		}
		assert.Equal(t, 1.0, floats.Sum(col), "band %d", k)
		assert.Equal(t, 1.0, col[f.Center], "band %d", k)
	}
}

func TestBuildFilterbank_Width(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	plain, err := BuildFilterbank(defaultFilterbankSpec())
	require.NoError(t, err)

	spec := defaultFilterbankSpec()
	spec.Width = 2
	wide, err := BuildFilterbank(spec)
	require.NoError(t, err)

	mid := 20
	p, w := plain.Filters()[mid], wide.Filters()[mid]
	assert.Equal(t, p.Center, w.Center)
	assert.Less(t, w.Start, p.Start)
	assert.Greater(t, w.End, p.End)
}

func TestBuildFilterbank_Invalid(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	tests := []struct {
		name   string
		modify func(*FilterbankSpec)
		target error
	}{
		{"max above nyquist", func(s *FilterbankSpec) { s.MaxHz = 9_000 }, ErrConfiguration},
		{"min not below max", func(s *FilterbankSpec) { s.MinHz = 8_000 }, ErrConfiguration},
		{"negative min", func(s *FilterbankSpec) { s.MinHz = -1 }, ErrConfiguration},
		{"one band", func(s *FilterbankSpec) { s.NumBands = 1 }, ErrConfiguration},
		{"unknown scale", func(s *FilterbankSpec) { s.Scale = MelScale(7) }, ErrConfiguration},
		{"negative width", func(s *FilterbankSpec) { s.Width = -1 }, ErrConfiguration},
		{"bins mismatch", func(s *FilterbankSpec) { s.NumSpectralBins = 256 }, ErrShape},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := defaultFilterbankSpec()
			tt.modify(&spec)
			_, err := BuildFilterbank(spec)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.target), "got %v", err)
		})
	}
}

func TestWarp(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	fb, err := BuildFilterbank(defaultFilterbankSpec())
	require.NoError(t, err)

	power := make([]float64, fb.NumSpectralBins())
	for i := range power {
		power[i] = 1 + math.Sin(float64(i)/7)
	}

	energies, err := Warp(power, fb)
	require.NoError(t, err)
	require.Len(t, energies, fb.NumBands())

	into := make([]float64, fb.NumBands())
	require.NoError(t, WarpInto(into, power, fb))
	assert.InDeltaSlice(t, energies, into, 1e-9)

	for k := range energies {
		assert.InDelta(t, floats.Dot(fb.Column(k), power), energies[k], 1e-9)
	}

	_, err = Warp(power[:10], fb)
	assert.True(t, errors.Is(err, ErrShape))
	assert.True(t, errors.Is(WarpInto(into[:3], power, fb), ErrShape))
}
