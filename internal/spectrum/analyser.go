// Package spectrum turns a stream of mono samples into byte-scaled
// frequency magnitudes, one value per bin in [0, 255].
package spectrum

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

const (
	DefaultMinDecibels = -100.0
	DefaultMaxDecibels = -30.0
	DefaultSmoothing   = 0.8
)

// Options configures an Analyser
type Options struct {
	FFTSize     int
	SampleRate  int
	Smoothing   float64 // time constant in [0, 1); 0 disables smoothing
	MinDecibels float64
	MaxDecibels float64
}

// Analyser keeps the last FFTSize samples and reports their spectrum.
// It is not safe for concurrent use.
type Analyser struct {
	opts Options
	fft  *fourier.FFT

	ring   []float64
	pos    int
	frame  []float64
	coeffs []complex128
	smooth []float64
}

// New creates an Analyser. FFTSize must be a power of two in [32, 32768].
func New(opts Options) (*Analyser, error) {
	n := opts.FFTSize
	if n < 32 || n > 32768 || n&(n-1) != 0 {
		return nil, fmt.Errorf("spectrum: fft size must be a power of two in [32, 32768], got %d", n)
	}
	if opts.SampleRate <= 0 {
		return nil, fmt.Errorf("spectrum: sample rate must be positive")
	}
	if opts.Smoothing < 0 || opts.Smoothing >= 1 {
		return nil, fmt.Errorf("spectrum: smoothing must be in [0, 1), got %g", opts.Smoothing)
	}
	if opts.MinDecibels == 0 && opts.MaxDecibels == 0 {
		opts.MinDecibels, opts.MaxDecibels = DefaultMinDecibels, DefaultMaxDecibels
	}
	if opts.MinDecibels >= opts.MaxDecibels {
		return nil, fmt.Errorf("spectrum: min decibels must be below max decibels")
	}

	return &Analyser{
		opts:   opts,
		fft:    fourier.NewFFT(n),
		ring:   make([]float64, n),
		frame:  make([]float64, n),
		coeffs: make([]complex128, n/2+1),
		smooth: make([]float64, n/2),
	}, nil
}

// FrequencyBinCount is half the transform size
func (a *Analyser) FrequencyBinCount() int {
	return a.opts.FFTSize / 2
}

// BinFrequency returns the centre frequency of bin i in Hz
func (a *Analyser) BinFrequency(i int) float64 {
	return float64(i) * float64(a.opts.SampleRate) / float64(a.opts.FFTSize)
}

// Write appends samples, overwriting the oldest ones
func (a *Analyser) Write(samples []float32) {
	n := len(a.ring)
	if len(samples) >= n {
		samples = samples[len(samples)-n:]
	}
	for _, s := range samples {
		a.ring[a.pos] = float64(s)
		a.pos = (a.pos + 1) % n
	}
}

// ByteFrequencyData fills dst with the current spectrum scaled to 0..255
// and returns it. dst is grown to FrequencyBinCount if needed.
func (a *Analyser) ByteFrequencyData(dst []uint8) []uint8 {
	bins := a.FrequencyBinCount()
	if cap(dst) < bins {
		dst = make([]uint8, bins)
	}
	dst = dst[:bins]

	// unroll the ring oldest-first
	n := copy(a.frame, a.ring[a.pos:])
	copy(a.frame[n:], a.ring[:a.pos])
	window.Blackman(a.frame)

	a.coeffs = a.fft.Coefficients(a.coeffs, a.frame)

	tau := a.opts.Smoothing
	scale := 1 / float64(a.opts.FFTSize)
	span := a.opts.MaxDecibels - a.opts.MinDecibels
	for i := 0; i < bins; i++ {
		mag := cmplx.Abs(a.coeffs[i]) * scale
		a.smooth[i] = tau*a.smooth[i] + (1-tau)*mag

		db := a.opts.MinDecibels
		if a.smooth[i] > 0 {
			db = 20 * math.Log10(a.smooth[i])
		}
		v := 255 * (db - a.opts.MinDecibels) / span
		switch {
		case v <= 0:
			dst[i] = 0
		case v >= 255:
			dst[i] = 255
		default:
			dst[i] = uint8(v)
		}
	}
	return dst
}
