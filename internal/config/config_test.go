package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("BIRTHDAY_THRESHOLD", "")
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Detector, cfg.Detector)
	assert.Equal(t, 17, cfg.Candles.Total)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
log_level = "debug"

[detector]
threshold = 45.0
sub_band = 0.5
debounce = "200ms"
fft_size = 512

[candles]
total = 21
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 45.0, cfg.Detector.Threshold)
	assert.Equal(t, 0.5, cfg.Detector.SubBand)
	assert.Equal(t, 200*time.Millisecond, cfg.Detector.Debounce.Std())
	assert.Equal(t, 512, cfg.Detector.FFTSize)
	assert.Equal(t, 21, cfg.Candles.Total)
	// untouched keys keep their defaults
	assert.Equal(t, 3, cfg.Candles.MaxStep)
	assert.Equal(t, path, cfg.Path())
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "detector = [")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"BIRTHDAY_THRESHOLD": "22.5",
		"BIRTHDAY_DEBOUNCE":  "300ms",
		"BIRTHDAY_DEVICE":    "USB Mic",
		"BIRTHDAY_CANDLES":   "30",
	}
	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}))

	assert.Equal(t, 22.5, cfg.Detector.Threshold)
	assert.Equal(t, 300*time.Millisecond, cfg.Detector.Debounce.Std())
	assert.Equal(t, "USB Mic", cfg.Audio.DeviceID)
	assert.Equal(t, 30, cfg.Candles.Total)
}

func TestApplyEnvBadNumber(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(func(k string) (string, bool) {
		if k == "BIRTHDAY_FFT_SIZE" {
			return "lots", true
		}
		return "", false
	})
	assert.ErrorContains(t, err, "BIRTHDAY_FFT_SIZE")
}

func TestFlagsOnlyApplyWhenChanged(t *testing.T) {
	cfg := Default()
	cfg.Detector.Threshold = 40 // as if from the file
	cfg.Audio.DeviceID = "From File"

	var f Flags
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	f.Register(fs)
	require.NoError(t, fs.Parse([]string{"--device", "Flag Mic", "--debounce", "90ms"}))
	f.Apply(cfg, fs)

	assert.Equal(t, "Flag Mic", cfg.Audio.DeviceID)
	assert.Equal(t, 90*time.Millisecond, cfg.Detector.Debounce.Std())
	assert.Equal(t, 40.0, cfg.Detector.Threshold, "unset flag must not clobber file value")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"fft not power of two", func(c *Config) { c.Detector.FFTSize = 300 }},
		{"fft too small", func(c *Config) { c.Detector.FFTSize = 16 }},
		{"sub band zero", func(c *Config) { c.Detector.SubBand = 0 }},
		{"sub band above one", func(c *Config) { c.Detector.SubBand = 1.5 }},
		{"threshold out of range", func(c *Config) { c.Detector.Threshold = 300 }},
		{"negative debounce", func(c *Config) { c.Detector.Debounce = Duration(-time.Millisecond) }},
		{"zero frame interval", func(c *Config) { c.Detector.FrameInterval = 0 }},
		{"smoothing one", func(c *Config) { c.Detector.Smoothing = 1 }},
		{"no candles", func(c *Config) { c.Candles.Total = 0 }},
		{"zero step", func(c *Config) { c.Candles.MaxStep = 0 }},
		{"zero meter scale", func(c *Config) { c.MeterScale = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSaveRoundTripKeepsDurations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.toml")
	cfg := Default()
	cfg.path = path
	cfg.Detector.Debounce = Duration(175 * time.Millisecond)
	require.NoError(t, cfg.Save())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "175ms")

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Detector, loaded.Detector)
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "[detector]\nthreshold = 30.0\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	changed := make(chan *Config, 1)
	w := NewWatcher(cfg, func(old, new *Config) {
		select {
		case changed <- new:
		default:
		}
	}, WithDebounce(20*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// give the watcher time to register the directory
	time.Sleep(50 * time.Millisecond)
	writeConfig(t, dir, "[detector]\nthreshold = 12.0\n")

	select {
	case got := <-changed:
		assert.Equal(t, 12.0, got.Detector.Threshold)
		w.mu.Lock()
		assert.Same(t, got, w.current)
		w.mu.Unlock()
	case <-time.After(3 * time.Second):
		t.Fatal("config change was not observed")
	}

	cancel()
	require.NoError(t, <-done)
}

func TestWatcherIgnoresInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "[detector]\nthreshold = 30.0\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	w := NewWatcher(cfg, func(old, new *Config) {
		t.Error("invalid config must not be delivered")
	})
	w.path = path
	writeConfig(t, dir, "[detector]\nfft_size = 100\n")
	w.reload()

	assert.Same(t, cfg, w.current)
}

func TestWatcherOverlayReapplied(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "[detector]\nthreshold = 30.0\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	var got *Config
	w := NewWatcher(cfg, func(old, new *Config) { got = new },
		WithOverlay(func(c *Config) { c.Audio.DeviceID = "pinned" }))
	writeConfig(t, dir, "[audio]\ndevice_id = \"other\"\n")
	w.reload()

	require.NotNil(t, got)
	assert.Equal(t, "pinned", got.Audio.DeviceID)
}
