package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/petems/birthday-tray/internal/app"
	"github.com/petems/birthday-tray/internal/audio"
	"github.com/petems/birthday-tray/internal/blow"
	"github.com/petems/birthday-tray/internal/candles"
	"github.com/petems/birthday-tray/internal/card"
	"github.com/petems/birthday-tray/internal/config"
	"github.com/petems/birthday-tray/internal/hotkey"
	"github.com/petems/birthday-tray/internal/logging"
	"github.com/petems/birthday-tray/internal/metrics"
	"github.com/petems/birthday-tray/internal/permissions"
	"github.com/petems/birthday-tray/internal/tray"
)

var (
	// Version is set via ldflags at build time
	Version = "dev"
	// Commit is set via ldflags at build time
	Commit = "unknown"
)

const shutdownTimeout = 3 * time.Second

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// options are the flags shared by every command
type options struct {
	configPath string
	overrides  config.Flags
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:          "birthday-tray",
		Short:        "A birthday cake in your menu bar: blow into the microphone to put the candles out",
		Version:      fmt.Sprintf("%s (%s) %s/%s", Version, Commit, runtime.GOOS, runtime.GOARCH),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTray(cmd, opts)
		},
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default "+config.DefaultPath()+")")
	opts.overrides.Register(root.PersistentFlags())

	root.AddCommand(newListenCommand(opts), newDevicesCommand(opts))
	return root
}

// loadConfig applies defaults, file, environment and changed flags in that order
func loadConfig(opts *options, fs *pflag.FlagSet) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	opts.overrides.Apply(cfg, fs)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// components is everything a running cake needs besides its UI
type components struct {
	cfg     *config.Config
	log     zerolog.Logger
	capture audio.Capture
	metrics *metrics.Recorder
	app     *app.App
}

func build(cfg *config.Config, log zerolog.Logger, status app.StatusUpdater) (*components, error) {
	// An unusable audio subsystem surfaces at StartListening, not here
	capture := audio.New(log)

	detector, err := blow.New(blow.ConfigFrom(cfg), capture, blow.WithLogger(log))
	if err != nil {
		capture.Close()
		return nil, fmt.Errorf("initialize detector: %w", err)
	}

	m := metrics.New()
	application := app.New(app.Config{
		Detector:      detector,
		Capture:       capture,
		Candles:       candles.New(cfg.Candles.Total, candles.WithMaxStep(cfg.Candles.MaxStep)),
		Card:          card.NewClipboard(),
		Metrics:       m,
		Config:        cfg,
		Logger:        log,
		StatusUpdater: status,
	})

	return &components{cfg: cfg, log: log, capture: capture, metrics: m, app: application}, nil
}

// background starts the metrics endpoint and config hot reload; both stop with ctx
func (c *components) background(ctx context.Context, opts *options, fs *pflag.FlagSet) {
	if c.cfg.MetricsAddr != "" {
		go func() {
			if err := c.metrics.Serve(ctx, c.cfg.MetricsAddr, c.log); err != nil {
				c.log.Error().Err(err).Str("addr", c.cfg.MetricsAddr).Msg("Metrics server failed")
			}
		}()
	}

	watcher := config.NewWatcher(c.cfg,
		func(old, updated *config.Config) {
			if err := c.app.ApplyConfig(updated); err != nil {
				c.log.Warn().Err(err).Msg("Reloaded config rejected")
			}
		},
		config.WithOverlay(func(cfg *config.Config) { opts.overrides.Apply(cfg, fs) }),
		config.WithLogger(c.log),
	)
	go func() {
		if err := watcher.Run(ctx); err != nil {
			c.log.Warn().Err(err).Msg("Config hot reload disabled")
		}
	}()
}

// registerHotkey binds the blow gesture. Hotkeys are a convenience, so
// failures are logged and the returned manager may be nil.
func (c *components) registerHotkey() hotkey.Manager {
	if !permissions.Accessibility(true) {
		c.log.Warn().Msg("Accessibility permission not granted, hotkey disabled")
		return nil
	}

	hk, err := hotkey.New()
	if err != nil {
		c.log.Warn().Err(err).Msg("Hotkeys unavailable")
		return nil
	}
	accel := c.cfg.PlatformHotkey()
	if err := hk.Register(accel, c.app.OnHotkey); err != nil {
		c.log.Warn().Err(err).Str("hotkey", accel).Msg("Failed to register hotkey")
		hk.Close()
		return nil
	}
	c.log.Info().Str("hotkey", accel).Msg("Hotkey registered")
	return hk
}

// close releases the microphone and audio backend
func (c *components) close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := c.app.Shutdown(ctx); err != nil {
		c.log.Error().Err(err).Msg("Shutdown error")
	}
	if err := c.capture.Close(); err != nil {
		c.log.Warn().Err(err).Msg("Failed to close audio backend")
	}
}

func runTray(cmd *cobra.Command, opts *options) error {
	cfg, err := loadConfig(opts, cmd.Flags())
	if err != nil {
		bootLog := logging.New()
		bootLog.Error().Err(err).Msg("Failed to load config")
		return err
	}

	// Initialize logger with configured level
	log := logging.NewWithLevel(cfg.LogLevel)

	c, err := build(cfg, log, nil)
	if err != nil {
		log.Error().Err(err).Msg("Startup failed")
		return err
	}
	defer c.close()

	// Tray and app refer to each other
	trayUI := tray.New(c.app, Version, Commit, log)
	c.app.SetStatusUpdater(trayUI)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c.background(ctx, opts, cmd.Flags())
	if hk := c.registerHotkey(); hk != nil {
		defer hk.Close()
	}

	log.Info().Int("candles", cfg.Candles.Total).Msg("BirthdayTray starting...")

	// Start tray UI - MUST run on main thread
	return trayUI.Run(ctx)
}
