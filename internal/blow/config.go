package blow

import (
	"fmt"
	"time"

	"github.com/petems/birthday-tray/internal/config"
)

// Config tunes the detector. The threshold is only meaningful together with
// the sub-band it was tuned against: a narrow low band reads quieter than a
// wide one, so change them together.
type Config struct {
	DeviceID   string
	SampleRate int

	// FFTSize is the analysis transform size. Bins cover 0..SampleRate/2.
	FFTSize int
	// SubBand is the fraction of the lowest bins averaged into the level.
	// Breath noise concentrates at low frequencies; 0.25 of a 256-point
	// transform at 44.1 kHz covers roughly 0-5.5 kHz.
	SubBand float64
	// Threshold is the level (0-255) a frame must exceed to count as a blow.
	Threshold float64
	// Debounce suppresses further blows for this long after one fires.
	Debounce time.Duration
	// FrameInterval is the sampling cadence.
	FrameInterval time.Duration
	// Smoothing is the spectrum time constant in [0, 1).
	Smoothing float64
}

// DefaultConfig returns the tuning the detector ships with
func DefaultConfig() Config {
	return Config{
		SampleRate:    44100,
		FFTSize:       256,
		SubBand:       0.25,
		Threshold:     30,
		Debounce:      150 * time.Millisecond,
		FrameInterval: 16 * time.Millisecond,
		Smoothing:     0.8,
	}
}

// ConfigFrom maps the file configuration onto detector tuning
func ConfigFrom(c *config.Config) Config {
	return Config{
		DeviceID:      c.Audio.DeviceID,
		SampleRate:    c.Audio.SampleRate,
		FFTSize:       c.Detector.FFTSize,
		SubBand:       c.Detector.SubBand,
		Threshold:     c.Detector.Threshold,
		Debounce:      c.Detector.Debounce.Std(),
		FrameInterval: c.Detector.FrameInterval.Std(),
		Smoothing:     c.Detector.Smoothing,
	}
}

func (c Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("blow: sample rate must be positive")
	}
	if c.FFTSize < 32 || c.FFTSize > 32768 || c.FFTSize&(c.FFTSize-1) != 0 {
		return fmt.Errorf("blow: fft size must be a power of two in [32, 32768], got %d", c.FFTSize)
	}
	if c.SubBand <= 0 || c.SubBand > 1 {
		return fmt.Errorf("blow: sub band must be in (0, 1], got %g", c.SubBand)
	}
	if c.Threshold < 0 || c.Threshold > MaxLevel {
		return fmt.Errorf("blow: threshold must be in [0, %d], got %g", MaxLevel, c.Threshold)
	}
	if c.Debounce < 0 {
		return fmt.Errorf("blow: debounce must not be negative")
	}
	if c.FrameInterval <= 0 {
		return fmt.Errorf("blow: frame interval must be positive")
	}
	if c.Smoothing < 0 || c.Smoothing >= 1 {
		return fmt.Errorf("blow: smoothing must be in [0, 1), got %g", c.Smoothing)
	}
	return nil
}

// subBandBins is the number of low bins averaged, at least one
func (c Config) subBandBins(binCount int) int {
	n := int(float64(binCount) * c.SubBand)
	if n < 1 {
		n = 1
	}
	if n > binCount {
		n = binCount
	}
	return n
}
