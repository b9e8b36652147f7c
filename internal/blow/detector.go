// Package blow turns live microphone input into a level meter and a
// debounced stream of "blow" events.
//
// A Detector is Idle until Start succeeds, then Listening until Stop is
// called or the input device goes away. A failed Start leaves it Idle; there
// is no retry. While Listening, every frame publishes a level in [0, 255]
// to the Listener, followed by at most one Event derived from the same
// frame.
package blow

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/petems/birthday-tray/internal/audio"
	"github.com/petems/birthday-tray/internal/spectrum"
)

// Event is one detected blow
type Event struct {
	SessionID string
	Level     float64
	At        time.Time
}

// Listener receives detector output. Callbacks run on the detector's
// sampling goroutine, one at a time and in frame order. They must return
// quickly and must not call Stop.
type Listener interface {
	OnLevel(level float64)
	OnBlow(Event)
	// OnDeviceLost is called when the input stream ends without Stop.
	// The detector is already Idle when it runs.
	OnDeviceLost()
}

// Option configures a Detector
type Option func(*Detector)

// WithClock replaces the wall clock, for tests
func WithClock(c clockwork.Clock) Option {
	return func(d *Detector) { d.clock = c }
}

// WithLogger sets the detector's logger
func WithLogger(log zerolog.Logger) Option {
	return func(d *Detector) { d.log = log }
}

type Detector struct {
	capture     audio.Capture
	clock       clockwork.Clock
	log         zerolog.Logger
	frameBuffer int

	cfg atomic.Pointer[Config]

	mu   sync.Mutex
	sess *session
	// stopping is the done channel of a session that Stop has detached but
	// whose loop may still hold the capture stream
	stopping chan struct{}
}

// session is the state of one Listening period. It exclusively owns the
// capture stream while it lives.
type session struct {
	id       string
	cancel   context.CancelFunc
	done     chan struct{}
	listener Listener
}

// New creates an idle detector reading from capture
func New(cfg Config, capture audio.Capture, opts ...Option) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d := &Detector{
		capture:     capture,
		clock:       clockwork.NewRealClock(),
		log:         zerolog.Nop(),
		frameBuffer: 8,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.cfg.Store(&cfg)
	return d, nil
}

// Config returns the current tuning
func (d *Detector) Config() Config {
	return *d.cfg.Load()
}

// Tune replaces the tuning. Threshold, debounce, sub-band and frame interval
// take effect on the next frame; device, sample rate, transform size and
// smoothing apply from the next Start.
func (d *Detector) Tune(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	d.cfg.Store(&cfg)
	d.log.Info().
		Float64("threshold", cfg.Threshold).
		Float64("sub_band", cfg.SubBand).
		Dur("debounce", cfg.Debounce).
		Msg("Detector retuned")
	return nil
}

// Running reports whether a session is Listening
func (d *Detector) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sess != nil
}

// Start opens the input device and begins sampling, delivering output to l.
// It is a no-op while already Listening. Errors wrap one of the audio start
// sentinels; see KindOf.
func (d *Detector) Start(ctx context.Context, l Listener) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	// A new stream must not open before the previous session released its own
	for d.sess == nil && d.stopping != nil {
		stopping := d.stopping
		d.mu.Unlock()
		select {
		case <-stopping:
		case <-ctx.Done():
			d.mu.Lock()
			return ctx.Err()
		}
		d.mu.Lock()
		if d.stopping == stopping {
			d.stopping = nil
		}
	}

	if d.sess != nil {
		return nil
	}

	cfg := d.Config()
	analyser, err := spectrum.New(spectrum.Options{
		FFTSize:    cfg.FFTSize,
		SampleRate: cfg.SampleRate,
		Smoothing:  cfg.Smoothing,
	})
	if err != nil {
		return err
	}

	// The session outlives the caller's context; only Stop or device loss end it.
	sessCtx, cancel := context.WithCancel(context.Background())
	frames := make(chan []float32, d.frameBuffer)

	if err := d.capture.Start(sessCtx, cfg.DeviceID, cfg.SampleRate, frames); err != nil {
		cancel()
		d.log.Warn().Err(err).Stringer("kind", KindOf(err)).Msg("Could not start listening")
		return fmt.Errorf("start listening: %w", err)
	}

	s := &session{
		id:       uuid.NewString(),
		cancel:   cancel,
		done:     make(chan struct{}),
		listener: l,
	}
	d.sess = s

	d.log.Info().
		Str("session", s.id).
		Int("fft_size", cfg.FFTSize).
		Float64("threshold", cfg.Threshold).
		Msg("Listening started")

	go d.run(sessCtx, s, analyser, frames)
	return nil
}

// Stop ends the session and releases the input stream. When it returns no
// further Listener callbacks will happen. Safe to call while Idle.
func (d *Detector) Stop() {
	d.mu.Lock()
	s := d.sess
	d.sess = nil
	if s != nil {
		d.stopping = s.done
	}
	d.mu.Unlock()

	if s == nil {
		return
	}
	s.cancel()
	<-s.done
	d.log.Info().Str("session", s.id).Msg("Listening stopped")
}

func (d *Detector) run(ctx context.Context, s *session, analyser *spectrum.Analyser, frames <-chan []float32) {
	lost := false
	defer func() {
		s.cancel()
		if err := d.capture.Stop(); err != nil {
			d.log.Warn().Err(err).Str("session", s.id).Msg("Failed to stop capture")
		}

		d.mu.Lock()
		current := d.sess == s
		if current {
			d.sess = nil
		}
		d.mu.Unlock()

		if lost && current {
			d.log.Warn().Str("session", s.id).Msg("Input device lost")
			s.listener.OnDeviceLost()
		}
		close(s.done)
	}()

	interval := d.Config().FrameInterval
	ticker := d.clock.NewTicker(interval)
	defer ticker.Stop()

	p := newFrameProcessor(analyser)

	for {
		select {
		case <-ctx.Done():
			return

		case samples, ok := <-frames:
			if !ok {
				lost = ctx.Err() == nil
				return
			}
			analyser.Write(samples)

		case now := <-ticker.Chan():
			if ctx.Err() != nil {
				return
			}
			cfg := d.Config()
			if cfg.FrameInterval != interval {
				interval = cfg.FrameInterval
				ticker.Reset(interval)
			}

			level, fired := p.process(now, cfg)
			s.listener.OnLevel(level)
			if fired {
				d.log.Debug().Str("session", s.id).Float64("level", level).Msg("Blow detected")
				s.listener.OnBlow(Event{SessionID: s.id, Level: level, At: now})
			}
		}
	}
}

// frameProcessor reduces one analysis frame to a level and a trigger decision
type frameProcessor struct {
	analyser *spectrum.Analyser
	gate     Gate
	bins     []uint8
}

func newFrameProcessor(a *spectrum.Analyser) *frameProcessor {
	return &frameProcessor{
		analyser: a,
		bins:     make([]uint8, a.FrequencyBinCount()),
	}
}

func (p *frameProcessor) process(now time.Time, cfg Config) (float64, bool) {
	p.gate.Threshold = cfg.Threshold
	p.gate.Debounce = cfg.Debounce

	p.bins = p.analyser.ByteFrequencyData(p.bins)
	level := Level(p.bins, cfg.subBandBins(len(p.bins)))
	return level, p.gate.Offer(level, now)
}
