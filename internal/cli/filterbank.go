package cli

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/zrma/melcep/mfcc"
)

const keySampleRate = "sample-rate"

type filterDocument struct {
	Band       int       `json:"band" yaml:"band"`
	Start      int       `json:"start" yaml:"start"`
	Center     int       `json:"center" yaml:"center"`
	End        int       `json:"end" yaml:"end"`
	CenterHz   float64   `json:"center_hz" yaml:"center_hz"`
	Degenerate bool      `json:"degenerate" yaml:"degenerate"`
	Weights    []float64 `json:"weights" yaml:"weights,flow"`
}

type filterbankDocument struct {
	SampleRate int              `json:"sample_rate" yaml:"sample_rate"`
	FFTSize    int              `json:"fft_size" yaml:"fft_size"`
	MelScale   string           `json:"mel_scale" yaml:"mel_scale"`
	Filters    []filterDocument `json:"filters" yaml:"filters"`
}

func newFilterbankCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "filterbank",
		Short: "Print the mel filterbank for a sample rate and settings",
		Long: `Print each triangular filter's quantized bins and nonzero weights.
Filters whose bins collapsed at the chosen FFT size are flagged degenerate.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runFilterbank(cmd)
		},
	}
	cmd.Flags().Int(keySampleRate, 16_000, "sample rate in Hz")
	cmd.Flags().StringP(keyFormat, "f", formatJSON, "output format (json, csv, yaml)")
	addMFCCFlags(cmd.Flags())
	return cmd
}

func (a *app) runFilterbank(cmd *cobra.Command) error {
	cfg, err := mfccConfig(a.v)
	if err != nil {
		return err
	}
	p, err := mfcc.NewPipeline(a.v.GetInt(keySampleRate), cfg, mfcc.WithLogger(a.logger))
	if err != nil {
		return err
	}
	return writeFilterbank(cmd.OutOrStdout(), a.v.GetString(keyFormat), describeFilterbank(p))
}

func describeFilterbank(p *mfcc.Pipeline) filterbankDocument {
	fb := p.Filterbank()
	resolved := p.Config()
	centers := resolved.MelScale.CenterFrequencies(fb.NumBands(), resolved.MinHz, resolved.MaxHz)

	doc := filterbankDocument{
		SampleRate: p.SampleRate(),
		FFTSize:    p.FFTSize(),
		MelScale:   resolved.MelScale.String(),
	}
	for k, f := range fb.Filters() {
		col := fb.Column(k)
		lo, hi := f.Start, min(f.End+1, len(col))
		doc.Filters = append(doc.Filters, filterDocument{
			Band:       k,
			Start:      f.Start,
			Center:     f.Center,
			End:        f.End,
			CenterHz:   centers[k+1],
			Degenerate: f.Degenerate(),
			Weights:    col[lo:hi],
		})
	}
	return doc
}

func writeFilterbank(w io.Writer, format string, doc filterbankDocument) error {
	switch format {
	case formatCSV:
		cw := csv.NewWriter(w)
		_ = cw.Write([]string{"band", "start", "center", "end", "center_hz", "degenerate"})
		for _, f := range doc.Filters {
			_ = cw.Write([]string{
				strconv.Itoa(f.Band),
				strconv.Itoa(f.Start),
				strconv.Itoa(f.Center),
				strconv.Itoa(f.End),
				strconv.FormatFloat(f.CenterHz, 'f', 2, 64),
				strconv.FormatBool(f.Degenerate),
			})
		}
		cw.Flush()
		return errors.Wrap(cw.Error(), "write csv failed")
	default:
		return encodeDocument(w, format, doc)
	}
}
