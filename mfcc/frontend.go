package mfcc

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
	"github.com/pkg/errors"
)

// SpectrumKind selects what the front end emits per frequency bin.
type SpectrumKind int

const (
	// PowerSpectrum emits |X|^2.
	PowerSpectrum SpectrumKind = iota
	// MagnitudeSpectrum emits |X|.
	MagnitudeSpectrum
)

func (k SpectrumKind) String() string {
	switch k {
	case PowerSpectrum:
		return "power"
	case MagnitudeSpectrum:
		return "magnitude"
	default:
		return "unknown"
	}
}

// ParseSpectrumKind maps "power" or "magnitude" to a SpectrumKind.
func ParseSpectrumKind(name string) (SpectrumKind, error) {
	switch name {
	case "", "power":
		return PowerSpectrum, nil
	case "magnitude", "mag":
		return MagnitudeSpectrum, nil
	default:
		return 0, configErrorf("unknown spectrum kind %q", name)
	}
}

// Spectrogram is the per-frame spectra handed to the warping stage. Every
// frame holds FFTSize/2+1 nonnegative values. Callers that own their FFT
// build one directly and pass it to Pipeline.ComputeSpectrogram.
type Spectrogram struct {
	// Zero skips the sample rate check.
	SampleRate int
	FFTSize    int
	// Zero skips the hop check.
	HopSize int
	Frames  [][]float64
}

// NumBins returns FFTSize/2+1.
func (s *Spectrogram) NumBins() int {
	return s.FFTSize/2 + 1
}

// FrontEnd frames a signal and produces one spectrum per frame.
// It is immutable after construction and safe for concurrent use.
type FrontEnd struct {
	frameLen int
	hopLen   int
	fftSize  int
	kind     SpectrumKind
	window   []float64
}

// NewFrontEnd creates a front end with a symmetric Hamming window of frameLen
// samples, zero-padded to fftSize.
func NewFrontEnd(frameLen, hopLen, fftSize int, kind SpectrumKind) (*FrontEnd, error) {
	switch {
	case frameLen < 2:
		return nil, configErrorf("frame length must be at least 2 samples, got %d", frameLen)
	case hopLen < 1:
		return nil, configErrorf("hop length must be positive, got %d", hopLen)
	case fftSize < frameLen:
		return nil, configErrorf("fft size %d is shorter than frame length %d", fftSize, frameLen)
	case kind != PowerSpectrum && kind != MagnitudeSpectrum:
		return nil, configErrorf("unknown spectrum kind: %d", kind)
	}
	return &FrontEnd{
		frameLen: frameLen,
		hopLen:   hopLen,
		fftSize:  fftSize,
		kind:     kind,
		window:   window.Hamming(frameLen),
	}, nil
}

// FrameLen returns the analysis window length in samples.
func (f *FrontEnd) FrameLen() int { return f.frameLen }

// HopLen returns the frame step in samples.
func (f *FrontEnd) HopLen() int { return f.hopLen }

// FFTSize returns the transform length.
func (f *FrontEnd) FFTSize() int { return f.fftSize }

// NumBins returns the spectrum length per frame.
func (f *FrontEnd) NumBins() int { return f.fftSize/2 + 1 }

// NumFrames returns how many full frames fit in n samples.
func (f *FrontEnd) NumFrames(n int) int {
	if n < f.frameLen {
		return 0
	}
	return 1 + (n-f.frameLen)/f.hopLen
}

// FrameSpectrum windows frame i of signal, zero-pads it into scratch
// (FFTSize long) and writes its spectrum into dst (NumBins long).
func (f *FrontEnd) FrameSpectrum(dst, scratch, signal []float64, i int) error {
	start := i * f.hopLen
	if i < 0 || start+f.frameLen > len(signal) {
		return errors.Wrapf(ErrInsufficientData, "frame %d exceeds signal of %d samples", i, len(signal))
	}
	if len(dst) != f.NumBins() || len(scratch) != f.fftSize {
		return shapeErrorf("spectrum buffers are %d/%d long, want %d/%d", len(dst), len(scratch), f.NumBins(), f.fftSize)
	}

	segment := signal[start : start+f.frameLen]
	for j, w := range f.window {
		scratch[j] = segment[j] * w
	}
	clear(scratch[f.frameLen:])

	spectrum := fft.FFTReal(scratch)
	for j := range dst {
		mag := cmplx.Abs(spectrum[j])
		if f.kind == PowerSpectrum {
			mag *= mag
		}
		dst[j] = mag
	}
	return nil
}

// Spectrogram computes every frame's spectrum sequentially. SampleRate is
// left zero since the front end does not know it; Pipeline.ComputeSpectrogram
// accepts that.
func (f *FrontEnd) Spectrogram(signal []float64) (*Spectrogram, error) {
	numFrames := f.NumFrames(len(signal))
	if numFrames == 0 {
		return nil, errSignalTooShort(len(signal), f.frameLen)
	}
	out := &Spectrogram{
		FFTSize: f.fftSize,
		HopSize: f.hopLen,
		Frames:  make([][]float64, numFrames),
	}
	scratch := make([]float64, f.fftSize)
	for i := range out.Frames {
		out.Frames[i] = make([]float64, f.NumBins())
		if err := f.FrameSpectrum(out.Frames[i], scratch, signal, i); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// PreEmphasize applies y[n] = x[n] - coeff*x[n-1] with y[0] = x[0].
func PreEmphasize(samples []float64, coeff float64) []float64 {
	out := make([]float64, len(samples))
	if len(samples) == 0 {
		return out
	}
	out[0] = samples[0]
	for i := 1; i < len(samples); i++ {
		out[i] = samples[i] - coeff*samples[i-1]
	}
	return out
}

func nextPow2(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << int(math.Ceil(math.Log2(float64(n))))
}

func errSignalTooShort(have, need int) error {
	return errors.Wrapf(ErrInsufficientData, "input too short to compute MFCCs: need at least %d samples, got %d", need, have)
}
