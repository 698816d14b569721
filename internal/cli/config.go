package cli

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/multierr"

	"github.com/zrma/melcep/mfcc"
)

const (
	keyBands            = "bands"
	keyCeps             = "ceps"
	keyMinHz            = "min-hz"
	keyMaxHz            = "max-hz"
	keyDropC0           = "drop-c0"
	keyDeltaWindow      = "delta-window"
	keyDeltaDeltaWindow = "delta-delta-window"
	keyDeltaBoundary    = "delta-boundary"
	keyPreEmphasis      = "preemphasis"
	keyNoPreEmphasis    = "no-preemphasis"
	keyWindow           = "window"
	keyHop              = "hop"
	keyFFTSize          = "fft-size"
	keyMelScale         = "mel-scale"
	keyWidth            = "width"
	keySpectrum         = "spectrum"
	keyLifter           = "lifter"
	keyEnvelope         = "envelope"
	keyStrict           = "strict-filters"
	keyWorkers          = "workers"
)

func setDefaults(v *viper.Viper) {
	def := mfcc.DefaultConfig()
	v.SetDefault("log-level", "info")
	v.SetDefault(keyBands, def.NumBands)
	v.SetDefault(keyCeps, def.NumCep)
	v.SetDefault(keyMinHz, def.MinHz)
	v.SetDefault(keyMaxHz, 0.0)
	v.SetDefault(keyDeltaWindow, def.DeltaWindow)
	v.SetDefault(keyDeltaDeltaWindow, def.DeltaDeltaWindow)
	v.SetDefault(keyDeltaBoundary, def.DeltaBoundary.String())
	v.SetDefault(keyPreEmphasis, def.PreEmphasis)
	v.SetDefault(keyWindow, def.WindowDuration)
	v.SetDefault(keyHop, def.HopDuration)
	v.SetDefault(keyMelScale, def.MelScale.String())
	v.SetDefault(keyWidth, def.FilterWidth)
	v.SetDefault(keySpectrum, def.Spectrum.String())
}

// addMFCCFlags registers the pipeline settings shared by every command.
func addMFCCFlags(fs *pflag.FlagSet) {
	def := mfcc.DefaultConfig()
	fs.Int(keyBands, def.NumBands, "number of mel bands")
	fs.Int(keyCeps, def.NumCep, "number of cepstral coefficients")
	fs.Float64(keyMinHz, def.MinHz, "lowest filterbank frequency in Hz")
	fs.Float64(keyMaxHz, 0, "highest filterbank frequency in Hz (0 = nyquist)")
	fs.Bool(keyDropC0, false, "zero the energy coefficient C0")
	fs.Int(keyDeltaWindow, def.DeltaWindow, "delta window in frames (even)")
	fs.Int(keyDeltaDeltaWindow, def.DeltaDeltaWindow, "delta-delta window in frames (even)")
	fs.String(keyDeltaBoundary, def.DeltaBoundary.String(), "delta boundary policy (wrap, clamp)")
	fs.Float64(keyPreEmphasis, def.PreEmphasis, "pre-emphasis coefficient in [0, 1) (0 = off)")
	fs.Bool(keyNoPreEmphasis, false, "disable pre-emphasis, same as --preemphasis 0")
	fs.Duration(keyWindow, def.WindowDuration, "analysis window length")
	fs.Duration(keyHop, def.HopDuration, "frame hop")
	fs.Int(keyFFTSize, 0, "FFT size (0 = next power of two above the window)")
	fs.String(keyMelScale, def.MelScale.String(), "mel scale (htk, natural)")
	fs.Float64(keyWidth, def.FilterWidth, "filter width factor")
	fs.String(keySpectrum, def.Spectrum.String(), "spectrum kind (power, magnitude)")
	fs.Float64(keyLifter, 0, "cepstral lifter L (0 = off)")
	fs.Int(keyEnvelope, 0, "recover a spectral envelope of this length per frame (0 = off)")
	fs.Bool(keyStrict, false, "fail instead of warning on degenerate filters")
	fs.Int(keyWorkers, 0, "frame workers (0 = GOMAXPROCS)")
}

// mfccConfig reads the pipeline settings out of v. The preemphasis key always
// has a default, so a zero there was asked for and turns pre-emphasis off.
func mfccConfig(v *viper.Viper) (mfcc.Config, error) {
	cfg := mfcc.Config{
		NumBands:              v.GetInt(keyBands),
		NumCep:                v.GetInt(keyCeps),
		MinHz:                 v.GetFloat64(keyMinHz),
		MaxHz:                 v.GetFloat64(keyMaxHz),
		DropEnergyCoefficient: v.GetBool(keyDropC0),
		DeltaWindow:           v.GetInt(keyDeltaWindow),
		DeltaDeltaWindow:      v.GetInt(keyDeltaDeltaWindow),
		PreEmphasis:           v.GetFloat64(keyPreEmphasis),
		DisablePreEmphasis:    v.GetBool(keyNoPreEmphasis) || v.GetFloat64(keyPreEmphasis) == 0,
		WindowDuration:        v.GetDuration(keyWindow),
		HopDuration:           v.GetDuration(keyHop),
		FFTSize:               v.GetInt(keyFFTSize),
		FilterWidth:           v.GetFloat64(keyWidth),
		Lifter:                v.GetFloat64(keyLifter),
		EnvelopeLength:        v.GetInt(keyEnvelope),
		StrictFilters:         v.GetBool(keyStrict),
		Workers:               v.GetInt(keyWorkers),
	}

	var err, parseErr error
	cfg.MelScale, parseErr = mfcc.ParseMelScale(v.GetString(keyMelScale))
	err = multierr.Append(err, parseErr)
	cfg.Spectrum, parseErr = mfcc.ParseSpectrumKind(v.GetString(keySpectrum))
	err = multierr.Append(err, parseErr)
	cfg.DeltaBoundary, parseErr = mfcc.ParseDeltaBoundary(v.GetString(keyDeltaBoundary))
	err = multierr.Append(err, parseErr)
	return cfg, err
}
