package mfcc

import (
	"time"

	"gonum.org/v1/gonum/mat"
)

// FeatureMatrix는 (3*numCep) x 프레임 수 크기의 특징 행렬이다.
// 0..numCep 행은 정적 계수, 그다음 numCep 행은 delta, 마지막 numCep 행은
// delta-delta이며 열 하나가 프레임 하나다.
type FeatureMatrix struct {
	data       *mat.Dense
	numCep     int
	sampleRate int
	hopLen     int
	frameLen   int
	means      []float64
	envelope   *mat.Dense
}

// Matrix는 전체 특징 행렬을 반환한다. 반환된 행렬을 수정하면 FeatureMatrix도 바뀐다.
func (f *FeatureMatrix) Matrix() *mat.Dense {
	return f.data
}

// NumCoefficients는 블록당 계수 개수(numCep)를 반환한다.
func (f *FeatureMatrix) NumCoefficients() int {
	return f.numCep
}

// NumFrames는 프레임(열) 수를 반환한다.
func (f *FeatureMatrix) NumFrames() int {
	_, c := f.data.Dims()
	return c
}

// Static은 CMN이 적용된 정적 계수 블록을 반환한다.
func (f *FeatureMatrix) Static() mat.Matrix {
	return f.block(0)
}

// Delta는 1차 delta 블록을 반환한다.
func (f *FeatureMatrix) Delta() mat.Matrix {
	return f.block(1)
}

// DeltaDelta는 2차 delta 블록을 반환한다.
func (f *FeatureMatrix) DeltaDelta() mat.Matrix {
	return f.block(2)
}

func (f *FeatureMatrix) block(i int) mat.Matrix {
	return f.data.Slice(i*f.numCep, (i+1)*f.numCep, 0, f.NumFrames())
}

// Frame은 i번째 프레임의 3*numCep 특징 벡터를 복사해 반환한다.
func (f *FeatureMatrix) Frame(i int) []float64 {
	return mat.Col(nil, i, f.data)
}

// Frames는 프레임마다 한 행씩, 프레임 x 특징 형태로 복사해 반환한다.
func (f *FeatureMatrix) Frames() [][]float64 {
	out := make([][]float64, f.NumFrames())
	for i := range out {
		out[i] = f.Frame(i)
	}
	return out
}

// FrameTime은 i번째 프레임 중앙의 시각을 반환한다.
func (f *FeatureMatrix) FrameTime(i int) time.Duration {
	if f.sampleRate <= 0 {
		return 0
	}
	center := int64(i*f.hopLen) + int64(f.frameLen)/2
	return time.Duration(center * int64(time.Second) / int64(f.sampleRate))
}

// SampleRate는 입력 신호의 샘플레이트를 반환한다.
func (f *FeatureMatrix) SampleRate() int {
	return f.sampleRate
}

// HopSize는 프레임 간격을 샘플 단위로 반환한다.
func (f *FeatureMatrix) HopSize() int {
	return f.hopLen
}

// CepstralMeans는 CMN에서 제거된 계수별 평균을 반환한다.
func (f *FeatureMatrix) CepstralMeans() []float64 {
	out := make([]float64, len(f.means))
	copy(out, f.means)
	return out
}

// Envelope는 Config.EnvelopeLength가 설정된 경우 프레임마다 복원한
// 로그 멜 포락선(EnvelopeLength x 프레임 수)을 반환한다. 설정하지 않았으면 nil이다.
func (f *FeatureMatrix) Envelope() *mat.Dense {
	return f.envelope
}
