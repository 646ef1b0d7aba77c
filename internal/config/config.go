// Package config loads the CanvasBoard settings file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration is a time.Duration written as a Go duration string ("150ms").
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Gesture tunes the per-element gesture reconciler.
type Gesture struct {
	TextDragThreshold  float64 `toml:"text_drag_threshold"`
	MediaDragThreshold float64 `toml:"media_drag_threshold"`
	MinScale           float64 `toml:"min_scale"`
	MaxScale           float64 `toml:"max_scale"`
}

// Capture holds the capture settle timings.
type Capture struct {
	SettleDelay     Duration `toml:"settle_delay"`
	RestoreDelay    Duration `toml:"restore_delay"`
	SnapshotTimeout Duration `toml:"snapshot_timeout"`
}

// Layout is the surface size assumed before the UI reports a measurement.
type Layout struct {
	FallbackWidth  float64 `toml:"fallback_width"`
	FallbackHeight float64 `toml:"fallback_height"`
}

// Storage controls where exported images go.
type Storage struct {
	Directory string `toml:"directory"`
	Format    string `toml:"format"`
	Quality   int    `toml:"quality"`
	PDF       bool   `toml:"pdf"`
}

// Mirror configures the live viewer feed.
type Mirror struct {
	Enabled   bool `toml:"enabled"`
	Port      int  `toml:"port"`
	Advertise bool `toml:"advertise"`
}

// Log configures the shared logger.
type Log struct {
	Level string `toml:"level"`
}

// Config is the whole settings file.
type Config struct {
	Gesture Gesture `toml:"gesture"`
	Capture Capture `toml:"capture"`
	Layout  Layout  `toml:"layout"`
	Storage Storage `toml:"storage"`
	Mirror  Mirror  `toml:"mirror"`
	Log     Log     `toml:"log"`
}

// Default returns the built-in settings.
func Default() *Config {
	dir := "."
	if home, err := os.UserHomeDir(); err == nil {
		dir = filepath.Join(home, "Pictures", "CanvasBoard")
	}
	return &Config{
		Gesture: Gesture{
			TextDragThreshold:  5,
			MediaDragThreshold: 3,
			MinScale:           0.1,
			MaxScale:           10,
		},
		Capture: Capture{
			SettleDelay:     Duration{100 * time.Millisecond},
			RestoreDelay:    Duration{150 * time.Millisecond},
			SnapshotTimeout: Duration{5 * time.Second},
		},
		Layout: Layout{
			FallbackWidth:  360,
			FallbackHeight: 640,
		},
		Storage: Storage{
			Directory: dir,
			Format:    "png",
			Quality:   90,
		},
		Mirror: Mirror{
			Port:      8888,
			Advertise: true,
		},
		Log: Log{Level: "info"},
	}
}

// Path returns the default settings file location.
func Path() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "canvasboard", "config.toml")
}

// Load reads the settings file at path. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return Default(), fmt.Errorf("config: decode %s: %w", path, err)
	}
	cfg.Validate()
	return cfg, nil
}

// Validate resets out-of-range values to their defaults.
func (c *Config) Validate() {
	d := Default()

	if c.Gesture.TextDragThreshold <= 0 {
		c.Gesture.TextDragThreshold = d.Gesture.TextDragThreshold
	}
	if c.Gesture.MediaDragThreshold <= 0 {
		c.Gesture.MediaDragThreshold = d.Gesture.MediaDragThreshold
	}
	if c.Gesture.MinScale <= 0 || c.Gesture.MaxScale < c.Gesture.MinScale {
		c.Gesture.MinScale = d.Gesture.MinScale
		c.Gesture.MaxScale = d.Gesture.MaxScale
	}

	if c.Capture.SettleDelay.Duration < 0 {
		c.Capture.SettleDelay = d.Capture.SettleDelay
	}
	if c.Capture.RestoreDelay.Duration < 0 {
		c.Capture.RestoreDelay = d.Capture.RestoreDelay
	}
	if c.Capture.SnapshotTimeout.Duration <= 0 {
		c.Capture.SnapshotTimeout = d.Capture.SnapshotTimeout
	}

	if c.Layout.FallbackWidth <= 0 || c.Layout.FallbackHeight <= 0 {
		c.Layout = d.Layout
	}

	format := strings.ToLower(c.Storage.Format)
	switch format {
	case "png", "jpg":
		c.Storage.Format = format
	case "jpeg":
		c.Storage.Format = "jpg"
	default:
		c.Storage.Format = d.Storage.Format
	}
	if c.Storage.Quality < 1 || c.Storage.Quality > 100 {
		c.Storage.Quality = d.Storage.Quality
	}
	if c.Storage.Directory == "" || strings.Contains(c.Storage.Directory, "..") {
		c.Storage.Directory = d.Storage.Directory
	}
	if strings.HasPrefix(c.Storage.Directory, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			c.Storage.Directory = filepath.Join(home, strings.TrimPrefix(c.Storage.Directory, "~"))
		}
	}

	if c.Mirror.Port <= 0 || c.Mirror.Port > 65535 {
		c.Mirror.Port = d.Mirror.Port
	}
}

// Save writes the settings to path, creating its directory.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(c)
}
