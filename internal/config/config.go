// Package config loads the shared controller and agent settings.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the settings for both binaries. Fields a binary does not use
// are ignored.
type Config struct {
	// Address is the controller host. The controller binds it; the agent
	// dials it unless discovery is used.
	Address       string `yaml:"address"`
	ControlPort   int    `yaml:"control_port"`
	BulkPort      int    `yaml:"bulk_port"`
	DiscoveryPort int    `yaml:"discovery_port"`
	Discovery     bool   `yaml:"discovery"`
	WebSocket     bool   `yaml:"websocket"`
	Name          string `yaml:"name"`

	Quality         int           `yaml:"quality"`
	CaptureInterval time.Duration `yaml:"capture_interval"`
	Display         int           `yaml:"display"`
	Pattern         bool          `yaml:"pattern"`

	KeepaliveTimeout time.Duration `yaml:"keepalive_timeout"`
	AnnounceInterval time.Duration `yaml:"announce_interval"`
	ReconnectDelay   time.Duration `yaml:"reconnect_delay"`

	RenderInterval     time.Duration `yaml:"render_interval"`
	MaxMessagesPerTick int           `yaml:"max_messages_per_tick"`
	ViewportWidth      int           `yaml:"viewport_width"`
	ViewportHeight     int           `yaml:"viewport_height"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Address:            "127.0.0.1",
		ControlPort:        12120,
		BulkPort:           5000,
		DiscoveryPort:      4000,
		Quality:            50,
		CaptureInterval:    100 * time.Millisecond,
		KeepaliveTimeout:   15 * time.Second,
		AnnounceInterval:   5 * time.Second,
		ReconnectDelay:     5 * time.Second,
		RenderInterval:     16 * time.Millisecond,
		MaxMessagesPerTick: 16,
		ViewportWidth:      1600,
		ViewportHeight:     900,
	}
}

// DefaultPath returns ~/.screenstream/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".screenstream", "config.yaml")
	}
	return filepath.Join(home, ".screenstream", "config.yaml")
}

// Load reads a YAML file over the defaults. A missing file yields the
// defaults with no error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path as YAML, creating parent directories.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate checks ranges and returns every problem found.
func (c *Config) Validate() error {
	var errs []error

	for name, port := range map[string]int{
		"control_port":   c.ControlPort,
		"bulk_port":      c.BulkPort,
		"discovery_port": c.DiscoveryPort,
	} {
		if port < 0 || port > 65535 {
			errs = append(errs, fmt.Errorf("%s %d out of range", name, port))
		}
	}
	if c.Quality < 1 || c.Quality > 100 {
		errs = append(errs, fmt.Errorf("quality %d out of range 1..100", c.Quality))
	}
	for name, d := range map[string]time.Duration{
		"capture_interval":  c.CaptureInterval,
		"keepalive_timeout": c.KeepaliveTimeout,
		"announce_interval": c.AnnounceInterval,
		"reconnect_delay":   c.ReconnectDelay,
		"render_interval":   c.RenderInterval,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.ViewportWidth <= 0 || c.ViewportHeight <= 0 {
		errs = append(errs, fmt.Errorf("viewport %dx%d must be positive", c.ViewportWidth, c.ViewportHeight))
	}
	if c.Display < 0 {
		errs = append(errs, fmt.Errorf("display %d must not be negative", c.Display))
	}

	return errors.Join(errs...)
}

// ControlAddress joins Address and ControlPort.
func (c *Config) ControlAddress() string {
	return net.JoinHostPort(c.Address, strconv.Itoa(c.ControlPort))
}
