package audio

import (
	"io"
	"math"
	"os"

	"github.com/mewkiz/flac"
	"github.com/pkg/errors"
)

// ReadFlac는 FLAC 파일을 읽어 채널 평균 모노 샘플과 샘플레이트를 반환한다.
func ReadFlac(path string) (samples []float64, sampleRate int, err error) {
	err = withFile(path, func(f *os.File) error {
		samples, sampleRate, err = DecodeFlac(f)
		return err
	})
	if err != nil {
		return nil, 0, errors.Wrapf(err, "read flac %s failed", path)
	}
	return samples, sampleRate, nil
}

// DecodeFlac는 r에서 FLAC 스트림을 끝까지 디코딩한다.
func DecodeFlac(r io.Reader) ([]float64, int, error) {
	stream, err := flac.New(r)
	if err != nil {
		return nil, 0, errors.Wrap(err, "parse flac header failed")
	}

	info := stream.Info
	channels := int(info.NChannels)
	bits := int(info.BitsPerSample)
	if channels <= 0 || info.SampleRate == 0 || bits <= 0 {
		return nil, 0, errors.Errorf("invalid flac stream info: %d channels, %dHz, %d bits", channels, info.SampleRate, bits)
	}
	full := math.Ldexp(1, bits-1)

	var samples []float64
	if info.NSamples > 0 {
		samples = make([]float64, 0, info.NSamples)
	}
	for {
		frame, err := stream.ParseNext()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, errors.Wrap(err, "decode flac frame failed")
		}
		if len(frame.Subframes) != channels {
			return nil, 0, errors.Errorf("flac frame has %d subframes, stream has %d channels", len(frame.Subframes), channels)
		}
		block := mixDown(int(frame.BlockSize), channels, func(i, c int) float64 {
			return float64(frame.Subframes[c].Samples[i]) / full
		})
		samples = append(samples, block...)
	}

	if len(samples) == 0 {
		return nil, 0, errors.New("flac stream has no samples")
	}
	return samples, int(info.SampleRate), nil
}
