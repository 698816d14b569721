package cli

import (
	"encoding/binary"
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"

	"github.com/pkg/errors"
	"github.com/x448/float16"
	"gopkg.in/yaml.v3"

	"github.com/zrma/melcep/mfcc"
)

const (
	formatJSON = "json"
	formatCSV  = "csv"
	formatYAML = "yaml"
	formatF16  = "f16"
)

// f16Magic starts every half-precision feature dump.
var f16Magic = [4]byte{'M', 'F', '1', '6'}

type featureDocument struct {
	Source          string      `json:"source,omitempty" yaml:"source,omitempty"`
	SampleRate      int         `json:"sample_rate" yaml:"sample_rate"`
	HopSize         int         `json:"hop_size" yaml:"hop_size"`
	NumCoefficients int         `json:"num_coefficients" yaml:"num_coefficients"`
	NumFrames       int         `json:"num_frames" yaml:"num_frames"`
	Frames          [][]float64 `json:"frames" yaml:"frames,flow"`
}

func newFeatureDocument(source string, fm *mfcc.FeatureMatrix) featureDocument {
	return featureDocument{
		Source:          source,
		SampleRate:      fm.SampleRate(),
		HopSize:         fm.HopSize(),
		NumCoefficients: fm.NumCoefficients(),
		NumFrames:       fm.NumFrames(),
		Frames:          fm.Frames(),
	}
}

func writeFeatures(w io.Writer, format string, doc featureDocument) error {
	switch format {
	case formatCSV:
		return writeFeaturesCSV(w, doc)
	case formatF16:
		return writeFeaturesF16(w, doc)
	default:
		return encodeDocument(w, format, doc)
	}
}

// encodeDocument writes v as indented JSON or YAML.
func encodeDocument(w io.Writer, format string, v any) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return errors.Wrap(enc.Encode(v), "encode json failed")
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return errors.Wrap(err, "encode yaml failed")
		}
		return errors.Wrap(enc.Close(), "flush yaml failed")
	default:
		return errors.Errorf("unknown output format %q", format)
	}
}

func featureHeader(numCep int) []string {
	header := make([]string, 0, 1+3*numCep)
	header = append(header, "time_s")
	for _, prefix := range []string{"c", "d", "dd"} {
		for i := range numCep {
			header = append(header, prefix+strconv.Itoa(i))
		}
	}
	return header
}

func writeFeaturesCSV(w io.Writer, doc featureDocument) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(featureHeader(doc.NumCoefficients)); err != nil {
		return errors.Wrap(err, "write csv header failed")
	}
	row := make([]string, 1+3*doc.NumCoefficients)
	for n, frame := range doc.Frames {
		row[0] = strconv.FormatFloat(float64(n*doc.HopSize)/float64(doc.SampleRate), 'f', 4, 64)
		for i, v := range frame {
			row[i+1] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := cw.Write(row); err != nil {
			return errors.Wrapf(err, "write csv frame %d failed", n)
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "flush csv failed")
}

// writeFeaturesF16 writes magic, uint32 frames, uint32 features per frame,
// then frame-major IEEE 754 half floats, all little endian.
func writeFeaturesF16(w io.Writer, doc featureDocument) error {
	width := 3 * doc.NumCoefficients
	header := struct {
		Magic  [4]byte
		Frames uint32
		Width  uint32
	}{f16Magic, uint32(len(doc.Frames)), uint32(width)}
	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		return errors.Wrap(err, "write f16 header failed")
	}

	buf := make([]uint16, width)
	for n, frame := range doc.Frames {
		if len(frame) != width {
			return errors.Errorf("frame %d has %d features, want %d", n, len(frame), width)
		}
		for i, v := range frame {
			buf[i] = float16.Fromfloat32(float32(v)).Bits()
		}
		if err := binary.Write(w, binary.LittleEndian, buf); err != nil {
			return errors.Wrapf(err, "write f16 frame %d failed", n)
		}
	}
	return nil
}
