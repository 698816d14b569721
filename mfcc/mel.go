package mfcc

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// MelScale selects the Hz <-> Mel warping formula.
// Both forms place 1000 Hz near 1000 Mel; they differ only in log base.
type MelScale int

const (
	// MelScaleHTK is 2595*log10(1+hz/700).
	MelScaleHTK MelScale = iota
	// MelScaleNatural is 1127.01048*ln(1+hz/700).
	MelScaleNatural
)

const (
	melBreakHz    = 700.0
	melHTKFactor  = 2_595.0
	melNatFactor  = 1_127.01048
	maxMelScaleID = MelScaleNatural
)

func (s MelScale) String() string {
	switch s {
	case MelScaleHTK:
		return "htk"
	case MelScaleNatural:
		return "natural"
	default:
		return "unknown"
	}
}

// ParseMelScale maps a scale name ("htk", "natural") to a MelScale.
func ParseMelScale(name string) (MelScale, error) {
	switch name {
	case "", "htk":
		return MelScaleHTK, nil
	case "natural", "ln":
		return MelScaleNatural, nil
	default:
		return 0, configErrorf("unknown mel scale %q", name)
	}
}

func (s MelScale) valid() bool {
	return s >= MelScaleHTK && s <= maxMelScaleID
}

// HzToMel converts a frequency in Hz to Mel.
// https://en.wikipedia.org/wiki/Mel_scale
func (s MelScale) HzToMel(hz float64) float64 {
	if s == MelScaleNatural {
		return melNatFactor * math.Log1p(hz/melBreakHz)
	}
	return melHTKFactor * math.Log10(1+hz/melBreakHz)
}

// MelToHz converts a Mel value back to Hz.
func (s MelScale) MelToHz(mel float64) float64 {
	if s == MelScaleNatural {
		return melBreakHz * math.Expm1(mel/melNatFactor)
	}
	return melBreakHz * (math.Pow(10, mel/melHTKFactor) - 1)
}

// CenterFrequencies returns numBands+2 frequencies in Hz, evenly spaced on
// the Mel axis between minHz and maxHz inclusive. The first and last points
// only bound the outer filters.
func (s MelScale) CenterFrequencies(numBands int, minHz, maxHz float64) []float64 {
	points := make([]float64, numBands+2)
	floats.Span(points, s.HzToMel(minHz), s.HzToMel(maxHz))
	for i, mel := range points {
		points[i] = s.MelToHz(mel)
	}
	// Span is exact at the ends on the Mel axis; pin them in Hz too.
	points[0] = minHz
	points[len(points)-1] = maxHz
	return points
}

func checkFrequencyBounds(minHz, maxHz float64, sampleRate int) error {
	nyquist := float64(sampleRate) / 2
	switch {
	case math.IsNaN(minHz) || math.IsNaN(maxHz):
		return configErrorf("frequency bounds must be numbers")
	case minHz < 0:
		return configErrorf("min frequency %gHz is negative", minHz)
	case maxHz > nyquist:
		return configErrorf("max frequency %gHz exceeds nyquist %gHz", maxHz, nyquist)
	case minHz >= maxHz:
		return configErrorf("min frequency %gHz must be below max frequency %gHz", minHz, maxHz)
	}
	return nil
}
