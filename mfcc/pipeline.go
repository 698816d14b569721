package mfcc

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// Signal은 모노 오디오 신호와 그 샘플레이트다.
type Signal struct {
	Samples    []float64
	SampleRate int
}

// setup holds what one pipeline computes with. The filterbank and transform
// come from the shared caches and are never modified.
type setup struct {
	frontEnd   *FrontEnd
	filterbank *Filterbank
	transform  *CepstralTransform
	// EnvelopeLength x NumCep slice of the inverse DCT; nil when disabled.
	envelope mat.Matrix
}

// setupCacheSize bounds each shared cache. Least recently used entries go first.
const setupCacheSize = 64

type filterbankKey struct {
	sampleRate int
	fftSize    int
	numBands   int
	minHz      float64
	maxHz      float64
	scale      MelScale
	width      float64
}

type transformKey struct {
	numBands int
	numCep   int
	floor    float64
}

var (
	filterbanks = newCache[filterbankKey, *Filterbank]()
	transforms  = newCache[transformKey, *CepstralTransform]()
)

func newCache[K comparable, V any]() *lru.Cache[K, V] {
	c, err := lru.New[K, V](setupCacheSize)
	if err != nil {
		panic(err)
	}
	return c
}

func loadFilterbank(r resolvedConfig, logger *slog.Logger) (*Filterbank, error) {
	key := filterbankKey{
		sampleRate: r.sampleRate,
		fftSize:    r.fftSize,
		numBands:   r.NumBands,
		minHz:      r.MinHz,
		maxHz:      r.MaxHz,
		scale:      r.MelScale,
		width:      r.FilterWidth,
	}
	if fb, ok := filterbanks.Get(key); ok {
		return fb, nil
	}

	fb, err := BuildFilterbank(FilterbankSpec{
		NumSpectralBins: r.fftSize/2 + 1,
		NumBands:        r.NumBands,
		MinHz:           r.MinHz,
		MaxHz:           r.MaxHz,
		SampleRate:      r.sampleRate,
		FFTSize:         r.fftSize,
		Scale:           r.MelScale,
		Width:           r.FilterWidth,
	})
	if err != nil {
		return nil, err
	}
	logger.Debug("built mel filterbank",
		"sample_rate", r.sampleRate,
		"fft_size", r.fftSize,
		"bands", r.NumBands,
	)
	if prev, ok, _ := filterbanks.PeekOrAdd(key, fb); ok {
		return prev, nil
	}
	return fb, nil
}

func loadTransform(r resolvedConfig) (*CepstralTransform, error) {
	key := transformKey{numBands: r.NumBands, numCep: r.NumCep, floor: r.EnergyFloor}
	if tr, ok := transforms.Get(key); ok {
		return tr, nil
	}

	tr, err := NewCepstralTransform(r.NumBands, r.NumCep, r.EnergyFloor)
	if err != nil {
		return nil, err
	}
	if prev, ok, _ := transforms.PeekOrAdd(key, tr); ok {
		return prev, nil
	}
	return tr, nil
}

func loadSetup(r resolvedConfig, logger *slog.Logger) (*setup, error) {
	frontEnd, err := NewFrontEnd(r.frameLen, r.hopLen, r.fftSize, r.Spectrum)
	if err != nil {
		return nil, err
	}
	fb, err := loadFilterbank(r, logger)
	if err != nil {
		return nil, err
	}
	transform, err := loadTransform(r)
	if err != nil {
		return nil, err
	}

	s := &setup{frontEnd: frontEnd, filterbank: fb, transform: transform}
	if r.EnvelopeLength > 0 {
		basis, err := transform.inverseBasis(r.EnvelopeLength)
		if err != nil {
			return nil, err
		}
		s.envelope = basis.Slice(0, r.EnvelopeLength, 0, r.NumCep)
	}
	return s, nil
}

type pipelineOptions struct {
	logger        *slog.Logger
	meterProvider metric.MeterProvider
}

// Option은 NewPipeline의 선택 인자다.
type Option func(*pipelineOptions)

// WithLogger는 파이프라인이 사용할 로거를 지정한다. 기본값은 slog.Default()다.
func WithLogger(logger *slog.Logger) Option {
	return func(o *pipelineOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMeterProvider는 메트릭을 기록할 MeterProvider를 지정한다.
// 기본값은 otel.GetMeterProvider()다.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *pipelineOptions) {
		if mp != nil {
			o.meterProvider = mp
		}
	}
}

// Pipeline은 재사용 가능한 MFCC 계산기다. 생성 후에는 변경되지 않으며
// 여러 고루틴에서 동시에 Compute를 호출해도 안전하다.
type Pipeline struct {
	cfg     resolvedConfig
	setup   *setup
	lifter  []float64
	logger  *slog.Logger
	metrics *metrics
}

// NewPipeline은 설정을 검증하고 필터뱅크와 DCT 행렬을 준비한다.
// 필터뱅크와 DCT 행렬은 같은 파라미터를 쓰는 파이프라인끼리 공유되며
// 최근에 쓰인 것부터 setupCacheSize개까지 캐시된다.
func NewPipeline(sampleRate int, cfg Config, opts ...Option) (*Pipeline, error) {
	o := pipelineOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.meterProvider == nil {
		o.meterProvider = otel.GetMeterProvider()
	}

	resolved, err := resolveConfig(sampleRate, cfg)
	if err != nil {
		return nil, err
	}
	met, err := newMetrics(o.meterProvider)
	if err != nil {
		return nil, errors.Wrap(err, "create metrics failed")
	}
	s, err := loadSetup(resolved, o.logger)
	if err != nil {
		return nil, err
	}

	if degenerate := s.filterbank.Degenerate(); len(degenerate) > 0 {
		if resolved.StrictFilters {
			return nil, errors.Wrapf(ErrNumericDegeneracy,
				"%d of %d filters collapsed at %dHz with fft size %d: bands %v",
				len(degenerate), resolved.NumBands, sampleRate, resolved.fftSize, degenerate)
		}
		o.logger.Warn("degenerate mel filters",
			"bands", degenerate,
			"num_bands", resolved.NumBands,
			"sample_rate", sampleRate,
			"fft_size", resolved.fftSize,
		)
		met.recordDegenerate(context.Background(), len(degenerate), sampleRate)
	}

	p := &Pipeline{
		cfg:     resolved,
		setup:   s,
		logger:  o.logger,
		metrics: met,
	}
	if resolved.Lifter > 0 {
		p.lifter = Lifter(resolved.NumCep, resolved.Lifter)
	}
	return p, nil
}

// Config는 기본값이 채워진 설정을 반환한다.
func (p *Pipeline) Config() Config { return p.cfg.Config }

// SampleRate는 파이프라인의 샘플레이트를 반환한다.
func (p *Pipeline) SampleRate() int { return p.cfg.sampleRate }

// FrameLen은 분석 창의 길이를 샘플 단위로 반환한다.
func (p *Pipeline) FrameLen() int { return p.cfg.frameLen }

// HopSize는 프레임 홉 길이를 샘플 단위로 반환한다.
func (p *Pipeline) HopSize() int { return p.cfg.hopLen }

// FFTSize는 FFT 길이를 반환한다.
func (p *Pipeline) FFTSize() int { return p.cfg.fftSize }

// FrontEnd는 공유되는 스펙트럼 프런트엔드를 반환한다.
func (p *Pipeline) FrontEnd() *FrontEnd { return p.setup.frontEnd }

// Filterbank는 공유되는 멜 필터뱅크를 반환한다.
func (p *Pipeline) Filterbank() *Filterbank { return p.setup.filterbank }

// Transform은 공유되는 켑스트럼 변환을 반환한다.
func (p *Pipeline) Transform() *CepstralTransform { return p.setup.transform }

// Compute는 샘플에서 특징 행렬을 계산한다.
// 샘플이 한 프레임보다 짧으면 ErrInsufficientData를 반환한다.
func (p *Pipeline) Compute(ctx context.Context, samples []float64) (fm *FeatureMatrix, err error) {
	start := time.Now()
	numFrames := 0
	defer func() {
		p.metrics.recordCompute(ctx, "signal", numFrames, time.Since(start), err)
	}()

	frontEnd := p.setup.frontEnd
	numFrames = frontEnd.NumFrames(len(samples))
	if numFrames == 0 {
		return nil, errSignalTooShort(len(samples), p.cfg.frameLen)
	}

	signal := samples
	if p.cfg.PreEmphasis > 0 {
		signal = PreEmphasize(samples, p.cfg.PreEmphasis)
	}

	// frames x numCep; transposed once all workers are done.
	cepstra := mat.NewDense(numFrames, p.cfg.NumCep, nil)
	err = p.forEachFrame(ctx, numFrames, func(w *frameWorker, n int) error {
		if err := frontEnd.FrameSpectrum(w.spectrum, w.scratch, signal, n); err != nil {
			return err
		}
		return w.cepstrum(cepstra.RawRowView(n), w.spectrum)
	})
	if err != nil {
		return nil, err
	}
	return p.finish(ctx, cepstra)
}

// ComputeSpectrogram은 호출자가 계산한 스펙트럼에서 특징 행렬을 계산한다.
// FFT 크기나 빈 개수, 0이 아닌 샘플레이트나 홉 길이가 파이프라인과
// 맞지 않으면 ErrShape를 반환한다. FrontEnd.Spectrogram의 결과는
// 그대로 넘겨도 된다.
func (p *Pipeline) ComputeSpectrogram(ctx context.Context, spec *Spectrogram) (fm *FeatureMatrix, err error) {
	start := time.Now()
	numFrames := 0
	defer func() {
		p.metrics.recordCompute(ctx, "spectrogram", numFrames, time.Since(start), err)
	}()

	if spec == nil || len(spec.Frames) == 0 {
		return nil, errInsufficientFrames("spectrogram")
	}
	switch {
	case spec.SampleRate != 0 && spec.SampleRate != p.cfg.sampleRate:
		return nil, shapeErrorf("spectrogram sample rate %dHz, pipeline expects %dHz", spec.SampleRate, p.cfg.sampleRate)
	case spec.FFTSize != p.cfg.fftSize:
		return nil, shapeErrorf("spectrogram fft size %d, pipeline expects %d", spec.FFTSize, p.cfg.fftSize)
	case spec.HopSize != 0 && spec.HopSize != p.cfg.hopLen:
		return nil, shapeErrorf("spectrogram hop %d, pipeline expects %d", spec.HopSize, p.cfg.hopLen)
	}
	bins := spec.NumBins()
	for i, frame := range spec.Frames {
		if len(frame) != bins {
			return nil, shapeErrorf("spectrogram frame %d has %d bins, want %d", i, len(frame), bins)
		}
	}

	numFrames = len(spec.Frames)
	cepstra := mat.NewDense(numFrames, p.cfg.NumCep, nil)
	err = p.forEachFrame(ctx, numFrames, func(w *frameWorker, n int) error {
		return w.cepstrum(cepstra.RawRowView(n), spec.Frames[n])
	})
	if err != nil {
		return nil, err
	}
	return p.finish(ctx, cepstra)
}

// finish runs the whole-sequence stages on frames x numCep cepstra.
func (p *Pipeline) finish(ctx context.Context, cepstra *mat.Dense) (*FeatureMatrix, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	static := mat.DenseCopyOf(cepstra.T())
	if p.cfg.DropEnergyCoefficient {
		clear(static.RawRowView(0))
	}
	means, err := CepstralMeanNormalize(static)
	if err != nil {
		return nil, err
	}

	_, numFrames := static.Dims()
	var envelope *mat.Dense
	if p.setup.envelope != nil {
		envelope = mat.NewDense(p.cfg.EnvelopeLength, numFrames, nil)
		envelope.Mul(p.setup.envelope, static)
	}

	if p.lifter != nil {
		if err := ApplyLifter(static, p.lifter); err != nil {
			return nil, err
		}
	}

	stacked, err := StackFeatures(static, p.cfg.DeltaWindow, p.cfg.DeltaDeltaWindow, p.cfg.DeltaBoundary)
	if err != nil {
		return nil, err
	}

	return &FeatureMatrix{
		data:       stacked,
		numCep:     p.cfg.NumCep,
		sampleRate: p.cfg.sampleRate,
		hopLen:     p.cfg.hopLen,
		frameLen:   p.cfg.frameLen,
		means:      means,
		envelope:   envelope,
	}, nil
}

// frameWorker owns the scratch buffers of one goroutine.
type frameWorker struct {
	setup    *setup
	scratch  []float64
	spectrum []float64
	energies []float64
	logBuf   []float64
}

func (p *Pipeline) newWorker() *frameWorker {
	bands := p.cfg.NumBands
	return &frameWorker{
		setup:    p.setup,
		scratch:  make([]float64, p.cfg.fftSize),
		spectrum: make([]float64, p.setup.frontEnd.NumBins()),
		energies: make([]float64, bands),
		logBuf:   make([]float64, bands),
	}
}

func (w *frameWorker) cepstrum(dst, spectrum []float64) error {
	if err := WarpInto(w.energies, spectrum, w.setup.filterbank); err != nil {
		return err
	}
	return w.setup.transform.ForwardInto(dst, w.energies, w.logBuf)
}

func (p *Pipeline) workerCount(numFrames int) int {
	workers := p.cfg.Workers
	if workers == 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return max(1, min(workers, numFrames))
}

// forEachFrame calls fn for every frame index, split into contiguous blocks
// across workers. ctx is checked between frames.
func (p *Pipeline) forEachFrame(ctx context.Context, numFrames int, fn func(w *frameWorker, n int) error) error {
	workers := p.workerCount(numFrames)
	if workers == 1 {
		w := p.newWorker()
		for n := range numFrames {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(w, n); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	block := (numFrames + workers - 1) / workers
	for lo := 0; lo < numFrames; lo += block {
		hi := min(lo+block, numFrames)
		g.Go(func() error {
			w := p.newWorker()
			for n := lo; n < hi; n++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				if err := fn(w, n); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// Compute는 신호와 설정으로 파이프라인을 만들어 한 번 계산한다.
func Compute(ctx context.Context, sig Signal, cfg Config, opts ...Option) (*FeatureMatrix, error) {
	p, err := NewPipeline(sig.SampleRate, cfg, opts...)
	if err != nil {
		return nil, err
	}
	return p.Compute(ctx, sig.Samples)
}
