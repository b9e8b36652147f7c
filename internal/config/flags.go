package config

import (
	"time"

	"github.com/spf13/pflag"
)

// Flags holds command-line overrides. Only flags the user actually set are
// applied, so file and environment values survive unspecified flags.
type Flags struct {
	LogLevel    string
	DeviceID    string
	MetricsAddr string
	Threshold   float64
	SubBand     float64
	Debounce    time.Duration
	FFTSize     int
	Candles     int
	Recipient   string
}

// Register binds the override flags to fs
func (f *Flags) Register(fs *pflag.FlagSet) {
	def := Default()
	fs.StringVar(&f.LogLevel, "log-level", def.LogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&f.DeviceID, "device", def.Audio.DeviceID, "input device name (default device when empty)")
	fs.StringVar(&f.MetricsAddr, "metrics-addr", def.MetricsAddr, "serve Prometheus metrics on this address")
	fs.Float64Var(&f.Threshold, "threshold", def.Detector.Threshold, "blow threshold on the 0-255 level scale")
	fs.Float64Var(&f.SubBand, "sub-band", def.Detector.SubBand, "fraction of the lowest frequency bins averaged into the level")
	fs.DurationVar(&f.Debounce, "debounce", def.Detector.Debounce.Std(), "minimum time between two blows")
	fs.IntVar(&f.FFTSize, "fft-size", def.Detector.FFTSize, "analysis transform size (power of two)")
	fs.IntVar(&f.Candles, "candles", def.Candles.Total, "number of candles on the cake")
	fs.StringVar(&f.Recipient, "recipient", def.Card.Recipient, "name printed on the greeting card")
}

// Apply copies every flag that was changed on fs into cfg
func (f *Flags) Apply(cfg *Config, fs *pflag.FlagSet) {
	if fs.Changed("log-level") {
		cfg.LogLevel = f.LogLevel
	}
	if fs.Changed("device") {
		cfg.Audio.DeviceID = f.DeviceID
	}
	if fs.Changed("metrics-addr") {
		cfg.MetricsAddr = f.MetricsAddr
	}
	if fs.Changed("threshold") {
		cfg.Detector.Threshold = f.Threshold
	}
	if fs.Changed("sub-band") {
		cfg.Detector.SubBand = f.SubBand
	}
	if fs.Changed("debounce") {
		cfg.Detector.Debounce = Duration(f.Debounce)
	}
	if fs.Changed("fft-size") {
		cfg.Detector.FFTSize = f.FFTSize
	}
	if fs.Changed("candles") {
		cfg.Candles.Total = f.Candles
	}
	if fs.Changed("recipient") {
		cfg.Card.Recipient = f.Recipient
	}
}
