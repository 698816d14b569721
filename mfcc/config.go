package mfcc

import (
	"math"
	"time"

	"go.uber.org/multierr"
)

const (
	defaultWindowDuration = 25 * time.Millisecond
	defaultHopDuration    = 10 * time.Millisecond
	defaultNumBands       = 40
	defaultNumCep         = 13
	defaultPreEmphasis    = 0.97
)

// Config는 MFCC 파이프라인 설정을 담는다.
// 0 값으로 남겨 둔 필드는 DefaultConfig의 기본값으로 채워진다.
type Config struct {
	WindowDuration time.Duration
	HopDuration    time.Duration

	NumBands int
	NumCep   int
	MinHz    float64
	// 0이면 나이퀴스트 주파수를 사용한다.
	MaxHz float64

	// true이면 C0(에너지 계수)를 0으로 만든다.
	DropEnergyCoefficient bool
	DeltaWindow           int
	DeltaDeltaWindow      int
	DeltaBoundary         DeltaBoundary

	// 0이면 기본값 0.97을 쓴다. 프리엠퍼시스를 끄려면 DisablePreEmphasis를 쓴다.
	PreEmphasis        float64
	DisablePreEmphasis bool

	MelScale    MelScale
	FilterWidth float64
	Spectrum    SpectrumKind
	// 0이면 FFT 크기는 프레임 길이 이상인 가장 작은 2의 거듭제곱이다.
	FFTSize     int
	EnergyFloor float64

	// 0이면 리프터링을 하지 않는다.
	Lifter float64
	// 0보다 크면 CMN된 켑스트럼에서 이 길이의 스펙트럼 포락선을 복원한다.
	EnvelopeLength int

	// true이면 퇴화한 필터가 있을 때 경고 대신 ErrNumericDegeneracy를 반환한다.
	StrictFilters bool
	// 프레임 단계의 병렬도. 0이면 GOMAXPROCS, 1이면 순차 실행.
	Workers int
}

// DefaultConfig는 기본 MFCC 설정을 반환한다.
func DefaultConfig() Config {
	return Config{
		WindowDuration:   defaultWindowDuration,
		HopDuration:      defaultHopDuration,
		NumBands:         defaultNumBands,
		NumCep:           defaultNumCep,
		DeltaWindow:      defaultDeltaWindow,
		DeltaDeltaWindow: defaultDeltaDeltaWindow,
		PreEmphasis:      defaultPreEmphasis,
		MelScale:         MelScaleHTK,
		FilterWidth:      1,
		Spectrum:         PowerSpectrum,
		EnergyFloor:      defaultEnergyFloor,
	}
}

type resolvedConfig struct {
	Config
	sampleRate int
	frameLen   int
	hopLen     int
	fftSize    int
}

func samplesFor(d time.Duration, sampleRate int) int {
	return int(int64(d) * int64(sampleRate) / int64(time.Second))
}

func resolveConfig(sampleRate int, cfg Config) (resolvedConfig, error) {
	if sampleRate <= 0 {
		return resolvedConfig{}, configErrorf("invalid sample rate: %dHz", sampleRate)
	}

	def := DefaultConfig()
	if cfg.WindowDuration == 0 {
		cfg.WindowDuration = def.WindowDuration
	}
	if cfg.HopDuration == 0 {
		cfg.HopDuration = def.HopDuration
	}
	if cfg.NumBands == 0 {
		cfg.NumBands = def.NumBands
	}
	if cfg.NumCep == 0 {
		cfg.NumCep = def.NumCep
	}
	if cfg.MaxHz == 0 {
		cfg.MaxHz = float64(sampleRate) / 2
	}
	if cfg.DeltaWindow == 0 {
		cfg.DeltaWindow = def.DeltaWindow
	}
	if cfg.DeltaDeltaWindow == 0 {
		cfg.DeltaDeltaWindow = def.DeltaDeltaWindow
	}
	if cfg.DisablePreEmphasis {
		cfg.PreEmphasis = 0
	} else if cfg.PreEmphasis == 0 {
		cfg.PreEmphasis = def.PreEmphasis
	}
	if cfg.FilterWidth == 0 {
		cfg.FilterWidth = def.FilterWidth
	}
	if cfg.EnergyFloor == 0 {
		cfg.EnergyFloor = def.EnergyFloor
	}

	r := resolvedConfig{
		Config:     cfg,
		sampleRate: sampleRate,
		frameLen:   samplesFor(cfg.WindowDuration, sampleRate),
		hopLen:     samplesFor(cfg.HopDuration, sampleRate),
	}
	r.fftSize = cfg.FFTSize
	if r.fftSize == 0 {
		r.fftSize = nextPow2(r.frameLen)
	}

	return r, r.validate()
}

// validate reports every violation at once.
func (r resolvedConfig) validate() error {
	var err error
	if r.frameLen < 2 {
		err = multierr.Append(err, configErrorf("window %s is shorter than 2 samples at %dHz", r.WindowDuration, r.sampleRate))
	}
	if r.hopLen < 1 {
		err = multierr.Append(err, configErrorf("hop %s is shorter than 1 sample at %dHz", r.HopDuration, r.sampleRate))
	}
	if r.fftSize < r.frameLen {
		err = multierr.Append(err, configErrorf("fft size %d is shorter than frame length %d", r.fftSize, r.frameLen))
	}
	if r.NumBands < 2 {
		err = multierr.Append(err, configErrorf("num bands must be at least 2, got %d", r.NumBands))
	}
	if r.NumCep < 1 || r.NumCep > r.NumBands {
		err = multierr.Append(err, configErrorf("num cepstra must be in [1, %d], got %d", r.NumBands, r.NumCep))
	}
	err = multierr.Append(err, checkFrequencyBounds(r.MinHz, r.MaxHz, r.sampleRate))
	err = multierr.Append(err, checkDeltaWindow("delta", r.DeltaWindow))
	err = multierr.Append(err, checkDeltaWindow("delta-delta", r.DeltaDeltaWindow))
	if r.DeltaBoundary != BoundaryWrap && r.DeltaBoundary != BoundaryClamp {
		err = multierr.Append(err, configErrorf("unknown delta boundary: %d", r.DeltaBoundary))
	}
	if math.IsNaN(r.PreEmphasis) || r.PreEmphasis < 0 || r.PreEmphasis >= 1 {
		err = multierr.Append(err, configErrorf("pre-emphasis must be in [0, 1), got %g", r.PreEmphasis))
	}
	if !r.MelScale.valid() {
		err = multierr.Append(err, configErrorf("unknown mel scale: %d", r.MelScale))
	}
	if !(r.FilterWidth > 0) || math.IsInf(r.FilterWidth, 0) {
		err = multierr.Append(err, configErrorf("invalid filter width: %g", r.FilterWidth))
	}
	if r.Spectrum != PowerSpectrum && r.Spectrum != MagnitudeSpectrum {
		err = multierr.Append(err, configErrorf("unknown spectrum kind: %d", r.Spectrum))
	}
	if !(r.EnergyFloor > 0) || math.IsInf(r.EnergyFloor, 0) {
		err = multierr.Append(err, configErrorf("energy floor must be positive, got %g", r.EnergyFloor))
	}
	if r.Lifter < 0 || math.IsNaN(r.Lifter) {
		err = multierr.Append(err, configErrorf("invalid lifter: %g", r.Lifter))
	}
	if r.EnvelopeLength < 0 || (r.EnvelopeLength > 0 && r.EnvelopeLength < r.NumCep) {
		err = multierr.Append(err, configErrorf("envelope length %d cannot hold %d cepstra", r.EnvelopeLength, r.NumCep))
	}
	if r.Workers < 0 {
		err = multierr.Append(err, configErrorf("invalid worker count: %d", r.Workers))
	}
	return err
}
