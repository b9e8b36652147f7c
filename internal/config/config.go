package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

type Config struct {
	LogLevel     string         `toml:"log_level"`
	Hotkey       string         `toml:"hotkey"`
	HotkeyDarwin string         `toml:"hotkey_darwin"`
	MetricsAddr  string         `toml:"metrics_addr"` // empty disables the /metrics listener
	MeterScale   float64        `toml:"meter_scale"`  // displayPercent = min(level*scale, 100)
	Audio        AudioConfig    `toml:"audio"`
	Detector     DetectorConfig `toml:"detector"`
	Candles      CandlesConfig  `toml:"candles"`
	Card         CardConfig     `toml:"card"`

	path string
}

type AudioConfig struct {
	DeviceID   string `toml:"device_id"`
	SampleRate int    `toml:"sample_rate"`
}

type DetectorConfig struct {
	FFTSize       int      `toml:"fft_size"`
	SubBand       float64  `toml:"sub_band"` // fraction of the lowest bins averaged into the level
	Threshold     float64  `toml:"threshold"`
	Debounce      Duration `toml:"debounce"`
	FrameInterval Duration `toml:"frame_interval"`
	Smoothing     float64  `toml:"smoothing"`
}

type CandlesConfig struct {
	Total   int `toml:"total"`
	MaxStep int `toml:"max_step"`
}

type CardConfig struct {
	Recipient       string `toml:"recipient"`
	Message         string `toml:"message"`
	From            string `toml:"from"`
	CopyToClipboard bool   `toml:"copy_to_clipboard"`
}

// Duration is a time.Duration that reads and writes as "150ms" in TOML.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		LogLevel:     "info",
		Hotkey:       "Alt+Space",
		HotkeyDarwin: "Ctrl+Space",
		MeterScale:   3,
		Audio: AudioConfig{
			DeviceID:   "",
			SampleRate: 44100,
		},
		Detector: DetectorConfig{
			FFTSize:       256,
			SubBand:       0.25,
			Threshold:     30,
			Debounce:      Duration(150 * time.Millisecond),
			FrameInterval: Duration(16 * time.Millisecond),
			Smoothing:     0.8,
		},
		Candles: CandlesConfig{
			Total:   17,
			MaxStep: 3,
		},
		Card: CardConfig{
			Recipient:       "you",
			Message:         "Wishing you a year full of light.",
			CopyToClipboard: true,
		},
	}
}

// Load reads the config at path (DefaultPath when empty) over the defaults,
// then applies BIRTHDAY_* environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	cfg := Default()
	cfg.path = path

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Path returns the file this config was loaded from
func (c *Config) Path() string {
	if c.path == "" {
		return DefaultPath()
	}
	return c.path
}

// Save writes the config to disk
func (c *Config) Save() error {
	path := c.Path()

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Clone returns a copy that can be mutated independently
func (c *Config) Clone() *Config {
	cp := *c
	return &cp
}

// Validate rejects tuning values the detector cannot run with
func (c *Config) Validate() error {
	d := c.Detector
	if d.FFTSize < 32 || d.FFTSize > 32768 || d.FFTSize&(d.FFTSize-1) != 0 {
		return fmt.Errorf("detector.fft_size must be a power of two in [32, 32768], got %d", d.FFTSize)
	}
	if d.SubBand <= 0 || d.SubBand > 1 {
		return fmt.Errorf("detector.sub_band must be in (0, 1], got %g", d.SubBand)
	}
	if d.Threshold < 0 || d.Threshold > 255 {
		return fmt.Errorf("detector.threshold must be in [0, 255], got %g", d.Threshold)
	}
	if d.Debounce < 0 {
		return fmt.Errorf("detector.debounce must not be negative")
	}
	if d.FrameInterval <= 0 {
		return fmt.Errorf("detector.frame_interval must be positive")
	}
	if d.Smoothing < 0 || d.Smoothing >= 1 {
		return fmt.Errorf("detector.smoothing must be in [0, 1), got %g", d.Smoothing)
	}
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio.sample_rate must be positive")
	}
	if c.Candles.Total < 1 {
		return fmt.Errorf("candles.total must be at least 1")
	}
	if c.Candles.MaxStep < 1 {
		return fmt.Errorf("candles.max_step must be at least 1")
	}
	if c.MeterScale <= 0 {
		return fmt.Errorf("meter_scale must be positive")
	}
	return nil
}

// PlatformHotkey returns the appropriate hotkey for the current platform
func (c *Config) PlatformHotkey() string {
	if runtime.GOOS == "darwin" && c.HotkeyDarwin != "" {
		return c.HotkeyDarwin
	}
	return c.Hotkey
}

// ApplyEnv applies BIRTHDAY_* overrides using lookup (os.LookupEnv in production)
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("BIRTHDAY_LOG_LEVEL", &c.LogLevel)
	str("BIRTHDAY_DEVICE", &c.Audio.DeviceID)
	str("BIRTHDAY_METRICS_ADDR", &c.MetricsAddr)
	str("BIRTHDAY_RECIPIENT", &c.Card.Recipient)
	str("BIRTHDAY_FROM", &c.Card.From)

	if v, ok := lookup("BIRTHDAY_THRESHOLD"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("BIRTHDAY_THRESHOLD: %w", err)
		}
		c.Detector.Threshold = f
	}
	if v, ok := lookup("BIRTHDAY_SUB_BAND"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("BIRTHDAY_SUB_BAND: %w", err)
		}
		c.Detector.SubBand = f
	}
	if v, ok := lookup("BIRTHDAY_DEBOUNCE"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("BIRTHDAY_DEBOUNCE: %w", err)
		}
		c.Detector.Debounce = Duration(d)
	}
	if v, ok := lookup("BIRTHDAY_FFT_SIZE"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("BIRTHDAY_FFT_SIZE: %w", err)
		}
		c.Detector.FFTSize = n
	}
	if v, ok := lookup("BIRTHDAY_CANDLES"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("BIRTHDAY_CANDLES: %w", err)
		}
		c.Candles.Total = n
	}
	return nil
}

// DefaultPath returns the platform-specific config file path
func DefaultPath() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Application Support"
	case "windows":
		base = os.Getenv("APPDATA")
	default: // linux
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.config"
		}
	}

	return filepath.Join(base, "birthday-tray", "config.toml")
}
