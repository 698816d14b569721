package cli

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/zrma/melcep/audio"
	"github.com/zrma/melcep/mfcc"
)

const (
	keyOut    = "out"
	keyFormat = "format"
)

func newExtractCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract FILE",
		Short: "Compute MFCC, delta and delta-delta features for an audio file",
		Long: `Decode a WAV or FLAC file to mono and write one feature vector per frame:
numCep static coefficients after cepstral mean normalization, then their
deltas and delta-deltas.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runExtract(cmd, args[0])
		},
	}
	cmd.Flags().StringP(keyOut, "o", "", "output file (default stdout)")
	cmd.Flags().StringP(keyFormat, "f", formatJSON, "output format (json, csv, yaml, f16)")
	addMFCCFlags(cmd.Flags())
	return cmd
}

func (a *app) runExtract(cmd *cobra.Command, path string) (err error) {
	cfg, err := mfccConfig(a.v)
	if err != nil {
		return err
	}
	format := a.v.GetString(keyFormat)
	switch format {
	case formatJSON, formatCSV, formatYAML, formatF16:
	default:
		return errors.Errorf("unknown output format %q", format)
	}

	start := time.Now()
	samples, sampleRate, err := audio.Read(path)
	if err != nil {
		return err
	}
	a.logger.Debug("decoded audio", "path", path, "samples", len(samples), "sample_rate", sampleRate)

	fm, err := mfcc.Compute(cmd.Context(), mfcc.Signal{Samples: samples, SampleRate: sampleRate}, cfg, mfcc.WithLogger(a.logger))
	if err != nil {
		return errors.Wrapf(err, "extract features from %s failed", path)
	}
	a.logger.Info("extracted features",
		"path", path,
		"frames", fm.NumFrames(),
		"coefficients", fm.NumCoefficients(),
		"elapsed", time.Since(start),
	)

	out := cmd.OutOrStdout()
	if name := a.v.GetString(keyOut); name != "" {
		f, createErr := os.Create(name)
		if createErr != nil {
			return errors.Wrapf(createErr, "create %s failed", name)
		}
		defer func() {
			if closeErr := f.Close(); closeErr != nil {
				err = multierr.Append(err, closeErr)
			}
		}()
		out = f
	}
	return writeFeatures(out, format, newFeatureDocument(path, fm))
}
