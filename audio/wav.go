package audio

import (
	"encoding/binary"
	"io"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/pkg/errors"
)

const (
	fmtPCM        = 1
	fmtIEEEFloat  = 3
	fmtExtensible = 0xFFFE

	maxFmtChunk = 1 << 10
)

// KSDATAFORMAT_SUBTYPE_PCM / _IEEE_FLOAT share this GUID tail.
var subFormatTail = [14]byte{0x00, 0x00, 0x00, 0x00, 0x10, 0x00, 0x80, 0x00, 0x00, 0xAA, 0x00, 0x38, 0x9B, 0x71}

type chunkHeader struct {
	ID   [4]byte
	Size uint32
}

// riffInfo is what go-audio's decoder does not expose: the real format tag
// behind WAVE_FORMAT_EXTENSIBLE and the declared data size.
type riffInfo struct {
	format    uint16
	validBits int
	dataSize  int
}

func (i riffInfo) float() bool { return i.format == fmtIEEEFloat }
func (i riffInfo) pcm() bool   { return i.format == fmtPCM }

func scanRIFF(r io.ReadSeeker) (riffInfo, error) {
	var info riffInfo
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return info, errors.Wrap(err, "rewind failed")
	}
	var head [12]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return info, errors.Wrap(err, "read RIFF header failed")
	}
	if string(head[0:4]) != "RIFF" || string(head[8:12]) != "WAVE" {
		return info, errors.Wrap(ErrUnsupportedFormat, "not a RIFF/WAVE stream")
	}

	haveFmt, haveData := false, false
	for !(haveFmt && haveData) {
		var ch chunkHeader
		if err := binary.Read(r, binary.LittleEndian, &ch); err != nil {
			return info, errors.Wrap(err, "read chunk header failed")
		}
		size := int64(ch.Size)

		switch string(ch.ID[:]) {
		case "fmt ":
			if ch.Size < 16 || ch.Size > maxFmtChunk {
				return info, errors.Errorf("bad fmt chunk size: %d", ch.Size)
			}
			body := make([]byte, ch.Size)
			if _, err := io.ReadFull(r, body); err != nil {
				return info, errors.Wrap(err, "read fmt chunk failed")
			}
			if err := info.parseFmt(body); err != nil {
				return info, err
			}
			haveFmt = true
			size = 0
		case "data":
			info.dataSize = int(ch.Size)
			haveData = true
		}

		// chunks are word aligned
		skip := size + int64(ch.Size&1)
		if haveFmt && haveData || skip == 0 {
			continue
		}
		if _, err := r.Seek(skip, io.SeekCurrent); err != nil {
			return info, errors.Wrapf(err, "skip %q chunk failed", ch.ID[:])
		}
	}
	return info, nil
}

func (i *riffInfo) parseFmt(body []byte) error {
	i.format = binary.LittleEndian.Uint16(body[0:2])
	if i.format != fmtExtensible {
		return nil
	}
	// cbSize(2) validBits(2) channelMask(4) subFormat(16)
	if len(body) < 40 || binary.LittleEndian.Uint16(body[16:18]) < 22 {
		return errors.New("truncated extensible fmt chunk")
	}
	i.validBits = int(binary.LittleEndian.Uint16(body[18:20]))
	var tail [14]byte
	copy(tail[:], body[26:40])
	if tail != subFormatTail {
		return errors.Wrapf(ErrUnsupportedFormat, "unknown extensible sub-format %x", body[24:40])
	}
	i.format = binary.LittleEndian.Uint16(body[24:26])
	return nil
}

// ReadWav는 정수 PCM(8/16/24/32비트)과 IEEE float(32/64비트) WAV 파일을 읽는다.
func ReadWav(path string) (samples []float64, sampleRate int, err error) {
	err = withFile(path, func(f *os.File) error {
		samples, sampleRate, err = DecodeWav(f)
		return err
	})
	if err != nil {
		return nil, 0, errors.Wrapf(err, "read wav %s failed", path)
	}
	return samples, sampleRate, nil
}

// DecodeWav는 r에서 WAV 스트림을 디코딩한다.
func DecodeWav(r io.ReadSeeker) ([]float64, int, error) {
	info, err := scanRIFF(r)
	if err != nil {
		return nil, 0, err
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, 0, errors.Wrap(err, "rewind failed")
	}

	dec := wav.NewDecoder(r)
	if err := dec.FwdToPCM(); err != nil {
		return nil, 0, errors.Wrap(err, "decode wav header failed")
	}
	channels := int(dec.NumChans)
	sampleRate := int(dec.SampleRate)
	bitDepth := int(dec.BitDepth)
	switch {
	case channels <= 0:
		return nil, 0, errors.Errorf("invalid channel count: %d", channels)
	case sampleRate <= 0:
		return nil, 0, errors.Errorf("invalid sample rate: %dHz", sampleRate)
	case bitDepth <= 0:
		return nil, 0, errors.New("unknown bit depth")
	}

	var samples []float64
	switch {
	case info.float():
		samples, err = decodeFloat(dec, channels, bitDepth, info.dataSize)
	case info.pcm():
		var buf *audio.IntBuffer
		if buf, err = dec.FullPCMBuffer(); err != nil {
			return nil, 0, errors.Wrap(err, "decode pcm failed")
		}
		samples, err = decodeInt(buf.Data, channels, bitDepth, info)
	default:
		return nil, 0, errors.Wrapf(ErrUnsupportedFormat, "wav format tag %#x", info.format)
	}
	if err != nil {
		return nil, 0, err
	}
	return samples, sampleRate, nil
}

func decodeInt(data []int, channels, bitDepth int, info riffInfo) ([]float64, error) {
	width := (bitDepth + 7) / 8
	if info.dataSize > 0 {
		if info.dataSize%width != 0 {
			return nil, errors.Errorf("data chunk of %d bytes is not a multiple of %d-byte samples", info.dataSize, width)
		}
		declared := info.dataSize / width
		if declared > len(data) {
			return nil, errors.Errorf("wav data truncated: %d of %d samples", len(data), declared)
		}
		data = data[:declared]
	}
	if len(data)%channels != 0 {
		return nil, errors.Errorf("%d samples do not split into %d channels", len(data), channels)
	}
	if info.validBits > bitDepth {
		return nil, errors.Errorf("valid bits %d exceed container %d", info.validBits, bitDepth)
	}

	bits := bitDepth
	if info.validBits > 0 && info.validBits < bitDepth && lsbAligned(data, info.validBits, bitDepth) {
		bits = info.validBits
	}
	full := math.Ldexp(1, bits-1)
	// 8-bit PCM is unsigned around 0x80.
	bias := 0.0
	if bits == 8 {
		bias = full
	}

	return mixDown(len(data)/channels, channels, func(i, c int) float64 {
		return (float64(data[i*channels+c]) - bias) / full
	}), nil
}

// lsbAligned reports whether extensible PCM keeps its valid bits at the
// bottom of the container. Writers disagree, so look at the samples: the
// data must fit validBits and use bits below the container's padding.
func lsbAligned(data []int, validBits, bitDepth int) bool {
	pad := bitDepth - validBits
	if pad <= 0 || pad >= 63 {
		return false
	}
	limit := int64(1)<<(validBits-1) - 1
	padMask := int64(1)<<pad - 1

	usesLow := false
	for _, s := range data {
		v := int64(s)
		if v > limit || -v > limit {
			return false
		}
		if v&padMask != 0 {
			usesLow = true
		}
	}
	return usesLow
}

func decodeFloat(dec *wav.Decoder, channels, bitDepth, dataSize int) ([]float64, error) {
	if dec.PCMChunk == nil {
		return nil, errors.New("missing data chunk")
	}
	var read func([]byte) float64
	switch bitDepth {
	case 32:
		read = func(b []byte) float64 { return float64(math.Float32frombits(binary.LittleEndian.Uint32(b))) }
	case 64:
		read = func(b []byte) float64 { return math.Float64frombits(binary.LittleEndian.Uint64(b)) }
	default:
		return nil, errors.Wrapf(ErrUnsupportedFormat, "%d-bit float", bitDepth)
	}

	size := dec.PCMSize
	if dataSize > 0 {
		if dataSize > size {
			return nil, errors.Errorf("data chunk declares %d bytes, only %d available", dataSize, size)
		}
		size = dataSize
	}
	raw := make([]byte, size)
	if _, err := io.ReadFull(dec.PCMChunk, raw); err != nil {
		return nil, errors.Wrap(err, "read float samples failed")
	}

	width := bitDepth / 8
	frameBytes := width * channels
	if len(raw)%frameBytes != 0 {
		return nil, errors.Errorf("%d bytes do not split into %d-byte frames", len(raw), frameBytes)
	}
	for off := 0; off < len(raw); off += width {
		if v := read(raw[off : off+width]); math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, errors.Errorf("non-finite float sample at byte %d", off)
		}
	}

	return mixDown(len(raw)/frameBytes, channels, func(i, c int) float64 {
		off := i*frameBytes + c*width
		return read(raw[off : off+width])
	}), nil
}
