package cli

import (
	"bytes"
	"encoding/binary"
	"encoding/csv"
	"encoding/json"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
	"go.uber.org/goleak"
	"gopkg.in/yaml.v3"

	"github.com/zrma/melcep/mfcc"
)

func writeSineWav(t *testing.T, path string, sampleRate, n int) {
	t.Helper()

	f, err := os.Create(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	data := make([]int, n)
	for i := range data {
		data[i] = int(8_000 * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate)))
	}
	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	require.NoError(t, enc.Write(&audio.IntBuffer{
		Data:           data,
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out, errOut bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	err := cmd.Execute()
	return out.String(), err
}

func readFeaturesF16(r io.Reader) ([][]float32, error) {
	var header struct {
		Magic  [4]byte
		Frames uint32
		Width  uint32
	}
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, err
	}
	if header.Magic != f16Magic {
		return nil, errors.Errorf("bad magic %q", header.Magic[:])
	}
	frames := make([][]float32, header.Frames)
	buf := make([]uint16, header.Width)
	for n := range frames {
		if err := binary.Read(r, binary.LittleEndian, buf); err != nil {
			return nil, err
		}
		frames[n] = make([]float32, header.Width)
		for i, bits := range buf {
			frames[n][i] = float16.Frombits(bits).Float32()
		}
	}
	return frames, nil
}

func TestExtract_JSON(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	path := filepath.Join(t.TempDir(), "sine.wav")
	writeSineWav(t, path, 16_000, 16_000)

	out, err := run(t, "extract", path)
	require.NoError(t, err)

	var doc featureDocument
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, path, doc.Source)
	assert.Equal(t, 16_000, doc.SampleRate)
	assert.Equal(t, 160, doc.HopSize)
	assert.Equal(t, 13, doc.NumCoefficients)
	assert.Equal(t, 98, doc.NumFrames)
	require.Len(t, doc.Frames, 98)
	assert.Len(t, doc.Frames[0], 39)
}

func TestExtract_FlagsAndFormats(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	dir := t.TempDir()
	path := filepath.Join(dir, "sine.wav")
	writeSineWav(t, path, 16_000, 8_000)

	t.Run("csv", func(t *testing.T) {
		out, err := run(t, "extract", path, "--format", "csv", "--ceps", "12", "--drop-c0")
		require.NoError(t, err)
		records, err := csv.NewReader(strings.NewReader(out)).ReadAll()
		require.NoError(t, err)
		require.Len(t, records, 1+48)
		assert.Equal(t, featureHeader(12), records[0])
		assert.Equal(t, "0.0000", records[1][0])
		assert.Equal(t, "0.0100", records[2][0])
		assert.Equal(t, "0", records[1][1])
	})

	t.Run("yaml", func(t *testing.T) {
		out, err := run(t, "extract", path, "-f", "yaml", "--bands", "26")
		require.NoError(t, err)
		var doc featureDocument
		require.NoError(t, yaml.Unmarshal([]byte(out), &doc))
		assert.Equal(t, 48, doc.NumFrames)
		assert.Len(t, doc.Frames, 48)
	})

	t.Run("f16 to file", func(t *testing.T) {
		target := filepath.Join(dir, "features.f16")
		_, err := run(t, "extract", path, "-f", "f16", "-o", target)
		require.NoError(t, err)

		f, err := os.Open(target)
		require.NoError(t, err)
		defer f.Close()
		frames, err := readFeaturesF16(f)
		require.NoError(t, err)
		require.Len(t, frames, 48)
		assert.Len(t, frames[0], 39)
	})

	t.Run("unknown format", func(t *testing.T) {
		_, err := run(t, "extract", path, "-f", "xml")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "xml")
	})

	t.Run("invalid config", func(t *testing.T) {
		_, err := run(t, "extract", path, "--max-hz", "9000")
		require.Error(t, err)
		assert.True(t, errors.Is(err, mfcc.ErrConfiguration))
	})
}

func TestExtract_ConfigFileAndEnv(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	dir := t.TempDir()
	path := filepath.Join(dir, "sine.wav")
	writeSineWav(t, path, 16_000, 8_000)

	config := filepath.Join(dir, "melcep.yaml")
	require.NoError(t, os.WriteFile(config, []byte("ceps: 10\nhop: 20ms\nmel-scale: natural\n"), 0o644))

	out, err := run(t, "--config", config, "extract", path)
	require.NoError(t, err)
	var doc featureDocument
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, 10, doc.NumCoefficients)
	assert.Equal(t, 320, doc.HopSize)

	// flags win over the environment, the environment over the file
	t.Setenv("MELCEP_CEPS", "8")
	out, err = run(t, "--config", config, "extract", path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, 8, doc.NumCoefficients)

	out, err = run(t, "--config", config, "extract", path, "--ceps", "6")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, 6, doc.NumCoefficients)
}

func TestExtract_PreEmphasisZero(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	path := filepath.Join(t.TempDir(), "sine.wav")
	writeSineWav(t, path, 16_000, 8_000)

	extract := func(args ...string) featureDocument {
		out, err := run(t, append([]string{"extract", path}, args...)...)
		require.NoError(t, err)
		var doc featureDocument
		require.NoError(t, json.Unmarshal([]byte(out), &doc))
		return doc
	}

	off := extract("--no-preemphasis")
	assert.Equal(t, off.Frames, extract("--preemphasis", "0").Frames)
	assert.NotEqual(t, off.Frames, extract().Frames)
}

func TestExtract_MissingFile(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	_, err := run(t, "extract", filepath.Join(t.TempDir(), "missing.wav"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestFilterbank(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	out, err := run(t, "filterbank", "--sample-rate", "16000", "--bands", "20")
	require.NoError(t, err)

	var doc filterbankDocument
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, 16_000, doc.SampleRate)
	assert.Equal(t, 512, doc.FFTSize)
	assert.Equal(t, "htk", doc.MelScale)
	require.Len(t, doc.Filters, 20)
	for _, f := range doc.Filters {
		assert.False(t, f.Degenerate)
		assert.Contains(t, f.Weights, 1.0)
		assert.Len(t, f.Weights, f.End-f.Start+1)
	}
}

func TestFilterbank_Degenerate(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	out, err := run(t, "filterbank", "--fft-size", "64", "--window", "4ms", "-f", "csv", "--log-level", "error")
	require.NoError(t, err)
	records, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 41)

	degenerate := 0
	for _, r := range records[1:] {
		if r[5] == "true" {
			degenerate++
		}
	}
	assert.Positive(t, degenerate)

	_, err = run(t, "filterbank", "--window", "4ms", "--strict-filters", "--log-level", "error")
	require.Error(t, err)
	assert.True(t, errors.Is(err, mfcc.ErrNumericDegeneracy))
}

func TestRoot_InvalidLogLevel(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	_, err := run(t, "filterbank", "--log-level", "loud")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log level")
}
