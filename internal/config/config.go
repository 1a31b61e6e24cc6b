// Package config loads cutline settings from a YAML file and the
// environment.
//
// Precedence, lowest first: built-in defaults, the YAML file, CUTLINE_*
// environment variables. Command-line flags are applied by the caller.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/cutline/internal/playback"
)

// Config holds every tunable setting.
type Config struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	Playback PlaybackConfig `yaml:"playback"`
	Server   ServerConfig   `yaml:"server"`
	Store    StoreConfig    `yaml:"store"`
	Media    MediaConfig    `yaml:"media"`
}

// PlaybackConfig tunes the scheduler.
type PlaybackConfig struct {
	TickInterval    time.Duration `yaml:"tick_interval"`
	DistancePerTime float64       `yaml:"distance_per_time"`
	Tolerance       float64       `yaml:"tolerance"`
	EndPolicy       string        `yaml:"end_policy"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// StoreConfig configures the session journal. An empty Path disables it.
type StoreConfig struct {
	Path     string `yaml:"path"`
	HighRate bool   `yaml:"high_rate"`
}

// MediaConfig configures the simulated media backend.
type MediaConfig struct {
	CheckFiles bool `yaml:"check_files"`
	Width      int  `yaml:"width"`
	Height     int  `yaml:"height"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "text",
		Playback: PlaybackConfig{
			TickInterval:    playback.DefaultTickInterval,
			DistancePerTime: playback.DefaultDistancePerTime,
			Tolerance:       playback.DefaultTolerance,
			EndPolicy:       string(playback.EndStop),
		},
		Server: ServerConfig{Addr: "127.0.0.1:8080"},
		Media:  MediaConfig{Width: 1920, Height: 1080},
	}
}

// Load reads path over the defaults, then applies the environment. An empty
// path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("CUTLINE_LOG_LEVEL", &c.LogLevel)
	str("CUTLINE_LOG_FORMAT", &c.LogFormat)
	str("CUTLINE_ADDR", &c.Server.Addr)
	str("CUTLINE_STORE", &c.Store.Path)
	str("CUTLINE_END_POLICY", &c.Playback.EndPolicy)

	if v, ok := lookup("CUTLINE_TICK_INTERVAL"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("CUTLINE_TICK_INTERVAL: %w", err)
		}
		c.Playback.TickInterval = d
	}
	if v, ok := lookup("CUTLINE_CHECK_FILES"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("CUTLINE_CHECK_FILES: %w", err)
		}
		c.Media.CheckFiles = b
	}
	return nil
}

// Validate rejects settings the scheduler cannot run with.
func (c *Config) Validate() error {
	if c.Playback.TickInterval <= 0 {
		return fmt.Errorf("playback.tick_interval must be positive, got %v", c.Playback.TickInterval)
	}
	if c.Playback.DistancePerTime <= 0 {
		return fmt.Errorf("playback.distance_per_time must be positive, got %v", c.Playback.DistancePerTime)
	}
	if c.Playback.Tolerance < 0 {
		return fmt.Errorf("playback.tolerance must not be negative, got %v", c.Playback.Tolerance)
	}
	if _, err := playback.ParseEndPolicy(c.Playback.EndPolicy); err != nil {
		return fmt.Errorf("playback.end_policy: %w", err)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("log_format must be text or json, got %q", c.LogFormat)
	}
	return nil
}

// PlaybackOptions converts the playback section into scheduler options.
func (c *Config) PlaybackOptions() []playback.Option {
	policy, err := playback.ParseEndPolicy(c.Playback.EndPolicy)
	if err != nil {
		policy = playback.EndStop
	}
	return []playback.Option{
		playback.WithTickInterval(c.Playback.TickInterval),
		playback.WithDistancePerTime(c.Playback.DistancePerTime),
		playback.WithTolerance(c.Playback.Tolerance),
		playback.WithEndPolicy(policy),
	}
}
