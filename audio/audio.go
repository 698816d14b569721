// Package audio는 WAV/FLAC 파일을 모노 float64 샘플로 읽는다.
package audio

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// ErrUnsupportedFormat은 확장자나 인코딩을 처리할 수 없을 때 반환된다.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// Read는 확장자(.wav, .flac)에 따라 파일을 디코딩해 채널 평균 모노 샘플과
// 샘플레이트를 반환한다. 샘플은 [-1, 1] 범위로 정규화된다.
func Read(path string) ([]float64, int, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".wav", ".wave":
		return ReadWav(path)
	case ".flac":
		return ReadFlac(path)
	default:
		return nil, 0, errors.Wrapf(ErrUnsupportedFormat, "extension %q", ext)
	}
}

func withFile(path string, fn func(f *os.File) error) (err error) {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s failed", path)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			err = multierr.Append(err, closeErr)
		}
	}()
	return fn(f)
}

// mixDown averages interleaved or planar samples into one channel.
func mixDown(frames, channels int, sample func(frame, ch int) float64) []float64 {
	out := make([]float64, frames)
	scale := 1 / float64(channels)
	for i := range out {
		sum := 0.0
		for c := range channels {
			sum += sample(i, c)
		}
		out[i] = sum * scale
	}
	return out
}
