// Package config loads the flowcapture YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jmrcs97/FlowCapture-sub000/compile"
	"github.com/jmrcs97/FlowCapture-sub000/interpret"
	"github.com/jmrcs97/FlowCapture-sub000/locator"
	"github.com/jmrcs97/FlowCapture-sub000/session"
	"github.com/jmrcs97/FlowCapture-sub000/settle"
)

// Config is the top-level configuration.
type Config struct {
	Locator   locator.Config   `yaml:"locator"`
	Settle    SettleConfig     `yaml:"settle"`
	Session   session.Config   `yaml:"session"`
	Interpret interpret.Config `yaml:"interpret"`
	Compile   compile.Options  `yaml:"compile"`
	Browser   BrowserConfig    `yaml:"browser"`
	Store     StoreConfig      `yaml:"store"`
	HTTP      HTTPConfig       `yaml:"http"`
}

// SettleConfig is the stabilization monitor section plus the frame
// interval driving it.
type SettleConfig struct {
	settle.Config `yaml:",inline"`

	// FrameInterval is the tick period of the live frame scheduler.
	FrameInterval time.Duration `yaml:"frame_interval"`
}

// BrowserConfig controls the Chrome instance.
type BrowserConfig struct {
	RemoteURL        string        `yaml:"remote_url"`
	Stealth          string        `yaml:"stealth"` // headless | headful | off
	ViewportWidth    int           `yaml:"viewport_width"`
	ViewportHeight   int           `yaml:"viewport_height"`
	ResourceBlocking []string      `yaml:"resource_blocking"`
	NavigateTimeout  time.Duration `yaml:"navigate_timeout"`
}

// StoreConfig locates the trace database. An empty path disables
// persistence.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// HTTPConfig configures the control server.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// applyDefaults fills the sections owned by this package. Component
// sections keep their zero values and are defaulted by their packages.
func (c *Config) applyDefaults() {
	if c.Settle.FrameInterval <= 0 {
		c.Settle.FrameInterval = 16 * time.Millisecond
	}
	if c.Browser.Stealth == "" {
		c.Browser.Stealth = "headless"
	}
	if c.Browser.ViewportWidth <= 0 {
		c.Browser.ViewportWidth = 1280
	}
	if c.Browser.ViewportHeight <= 0 {
		c.Browser.ViewportHeight = 800
	}
	if c.Browser.NavigateTimeout <= 0 {
		c.Browser.NavigateTimeout = 30 * time.Second
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = "127.0.0.1:8420"
	}
	if c.Compile.ViewportHeight <= 0 {
		c.Compile.ViewportHeight = c.Browser.ViewportHeight
	}
}

// SessionConfig returns the session section with the settle section
// attached.
func (c *Config) SessionConfig() session.Config {
	s := c.Session
	s.Settle = c.Settle.Config
	return s
}
