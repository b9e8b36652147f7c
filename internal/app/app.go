package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/petems/birthday-tray/internal/audio"
	"github.com/petems/birthday-tray/internal/blow"
	"github.com/petems/birthday-tray/internal/candles"
	"github.com/petems/birthday-tray/internal/card"
	"github.com/petems/birthday-tray/internal/config"
	"github.com/petems/birthday-tray/internal/metrics"
)

// StatusUpdater is an interface for updating status (e.g., tray icon)
type StatusUpdater interface {
	SetIdle()
	SetListening()
	SetLevel(percent int)
	SetCandles(blown, total int)
	SetCelebrating()
	SetError(kind blow.FailureKind)
}

// Detector is the part of blow.Detector the app drives
type Detector interface {
	Start(ctx context.Context, l blow.Listener) error
	Stop()
	Running() bool
	Config() blow.Config
	Tune(blow.Config) error
}

type Config struct {
	Detector      Detector
	Capture       audio.Capture // device listing only; the detector owns the stream
	Candles       *candles.Counter
	Card          card.Deliverer // Optional - can be nil
	Metrics       *metrics.Recorder
	Config        *config.Config
	Logger        zerolog.Logger
	StatusUpdater StatusUpdater // Optional - can be nil
}

// App is the UI controller: it owns the candle count and celebration and
// reacts to detector output. It implements blow.Listener.
type App struct {
	det     Detector
	capture audio.Capture
	candles *candles.Counter
	card    card.Deliverer
	metrics *metrics.Recorder
	log     zerolog.Logger
	status  StatusUpdater

	mu       sync.Mutex
	cfg      *config.Config
	fallback bool
	percent  int
	stopped  chan struct{} // closed once the celebration has stopped the detector
}

func New(cfg Config) *App {
	m := cfg.Metrics
	if m == nil {
		m = metrics.New()
	}
	a := &App{
		det:     cfg.Detector,
		capture: cfg.Capture,
		candles: cfg.Candles,
		card:    cfg.Card,
		metrics: m,
		log:     cfg.Logger,
		status:  cfg.StatusUpdater,
		cfg:     cfg.Config,
		percent: -1,
	}
	a.metrics.Candles(a.candles.Blown(), a.candles.Total())
	return a
}

// SetStatusUpdater attaches the UI after construction (tray and app refer to each other)
func (a *App) SetStatusUpdater(s StatusUpdater) {
	a.mu.Lock()
	a.status = s
	a.mu.Unlock()
	a.withStatus(func(s StatusUpdater) {
		s.SetCandles(a.candles.Blown(), a.candles.Total())
		s.SetIdle()
	})
}

func (a *App) withStatus(fn func(StatusUpdater)) {
	a.mu.Lock()
	s := a.status
	a.mu.Unlock()
	if s != nil {
		fn(s)
	}
}

// StartListening opens the microphone. It must be triggered by a user
// action. On failure the manual fallback is enabled and the error kind is
// reported once; the experience carries on without audio.
func (a *App) StartListening(ctx context.Context) error {
	if a.candles.Celebrated() {
		a.log.Info().Msg("All candles are already out")
		return nil
	}

	if err := a.det.Start(ctx, a); err != nil {
		kind := blow.KindOf(err)
		a.log.Error().Err(err).Stringer("kind", kind).Msg("Microphone unavailable, manual blowing enabled")

		a.mu.Lock()
		a.fallback = true
		a.mu.Unlock()

		a.metrics.Failure(kind.String())
		a.withStatus(func(s StatusUpdater) { s.SetError(kind) })
		return err
	}

	a.mu.Lock()
	a.fallback = false
	a.mu.Unlock()

	a.metrics.Listening(true)
	a.withStatus(func(s StatusUpdater) { s.SetListening() })
	return nil
}

// StopListening releases the microphone. Safe when not listening.
func (a *App) StopListening() {
	wasRunning := a.det.Running()
	a.det.Stop()
	a.metrics.Listening(false)

	a.mu.Lock()
	a.percent = -1
	a.mu.Unlock()

	if wasRunning && !a.candles.Celebrated() {
		a.withStatus(func(s StatusUpdater) { s.SetIdle() })
	}
}

// IsListening reports whether the microphone is open
func (a *App) IsListening() bool {
	return a.det.Running()
}

// Fallback reports whether the last start attempt failed, leaving manual
// blowing as the way forward
func (a *App) Fallback() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fallback
}

// OnLevel implements blow.Listener
func (a *App) OnLevel(level float64) {
	a.metrics.Level(level)

	a.mu.Lock()
	percent := blow.MeterPercent(level, a.cfg.MeterScale)
	changed := percent != a.percent
	a.percent = percent
	a.mu.Unlock()

	if changed {
		a.withStatus(func(s StatusUpdater) { s.SetLevel(percent) })
	}
}

// OnBlow implements blow.Listener
func (a *App) OnBlow(e blow.Event) {
	a.log.Debug().Str("session", e.SessionID).Float64("level", e.Level).Msg("Blow")
	a.blow(metrics.SourceMic)
}

// OnDeviceLost implements blow.Listener
func (a *App) OnDeviceLost() {
	a.log.Warn().Msg("Microphone disconnected")
	a.metrics.Listening(false)

	a.mu.Lock()
	a.fallback = true
	a.mu.Unlock()

	a.withStatus(func(s StatusUpdater) { s.SetError(blow.FailureDeviceUnavailable) })
}

// ManualBlow counts a blow without the microphone
func (a *App) ManualBlow() {
	a.blow(metrics.SourceManual)
}

func (a *App) blow(source string) {
	blown, celebrate := a.candles.Blow()
	a.metrics.Blow(source)
	a.metrics.Candles(blown, a.candles.Total())
	a.log.Info().Str("source", source).Int("blown", blown).Int("total", a.candles.Total()).Msg("Candles out")

	a.withStatus(func(s StatusUpdater) { s.SetCandles(blown, a.candles.Total()) })

	if celebrate {
		a.celebrate()
	}
}

// celebrate runs once per lit cake. It may be reached from the detector's
// sampling goroutine, so the detector is stopped from another goroutine.
func (a *App) celebrate() {
	a.log.Info().Msg("All candles out, celebrating")
	a.metrics.Celebration()
	a.withStatus(func(s StatusUpdater) { s.SetCelebrating() })

	stopped := make(chan struct{})
	a.mu.Lock()
	a.stopped = stopped
	a.mu.Unlock()
	go func() {
		defer close(stopped)
		a.det.Stop()
		a.metrics.Listening(false)
	}()

	a.mu.Lock()
	deliver := a.card != nil && a.cfg.Card.CopyToClipboard
	c := card.FromConfig(a.cfg.Card)
	a.mu.Unlock()

	if !deliver {
		return
	}
	text, err := a.card.Deliver(c)
	if err != nil {
		a.log.Warn().Err(err).Msg("Could not deliver greeting card")
		return
	}
	a.log.Info().Str("card", text).Msg("Greeting card copied to clipboard")
}

// Relight puts the candles back so the cake can be blown out again
func (a *App) Relight() {
	a.waitCelebrationStop()
	a.candles.Relight()
	a.metrics.Candles(0, a.candles.Total())
	a.log.Info().Msg("Candles relit")

	a.withStatus(func(s StatusUpdater) {
		s.SetCandles(0, a.candles.Total())
		if a.det.Running() {
			s.SetListening()
		} else {
			s.SetIdle()
		}
	})
}

// waitCelebrationStop blocks until a pending celebration stop has finished
func (a *App) waitCelebrationStop() {
	a.mu.Lock()
	stopped := a.stopped
	a.mu.Unlock()
	if stopped != nil {
		<-stopped
	}
}

// Candles returns how many candles are out and how many there are
func (a *App) Candles() (blown, total int) {
	return a.candles.Blown(), a.candles.Total()
}

// OnHotkey is the keyboard gesture: the first press opens the microphone,
// and once the microphone has failed each press blows manually.
func (a *App) OnHotkey(pressed bool) {
	if !pressed {
		return
	}
	switch {
	case a.Fallback():
		a.ManualBlow()
	case !a.IsListening():
		a.StartListening(context.Background())
	}
}

// ApplyConfig hot-applies a reloaded configuration
func (a *App) ApplyConfig(cfg *config.Config) error {
	if err := a.det.Tune(blow.ConfigFrom(cfg)); err != nil {
		return err
	}
	a.mu.Lock()
	a.cfg = cfg
	a.mu.Unlock()
	return nil
}

// Config returns the active configuration
func (a *App) Config() *config.Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

// SetDevice selects the input device used from the next StartListening
func (a *App) SetDevice(id string) error {
	if a.det.Running() {
		return fmt.Errorf("cannot change device while listening")
	}

	a.mu.Lock()
	cfg := a.cfg.Clone()
	a.mu.Unlock()

	cfg.Audio.DeviceID = id
	if err := a.ApplyConfig(cfg); err != nil {
		return err
	}
	return cfg.Save()
}

func (a *App) ListDevices() ([]audio.AudioDevice, error) {
	if a.capture == nil {
		return nil, fmt.Errorf("no audio backend")
	}
	return a.capture.ListDevices()
}

// Shutdown releases the microphone (the component-unmount release path)
func (a *App) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		a.det.Stop()
		a.waitCelebrationStop()
		close(done)
	}()

	select {
	case <-done:
		a.metrics.Listening(false)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
