package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// TraceLevel selects how much detail the failure replay records.
type TraceLevel string

const (
	TraceNone    TraceLevel = "none"
	TraceMinimal TraceLevel = "minimal"
	TraceFull    TraceLevel = "full"
)

// Enabled reports whether failure replay is active at all.
func (l TraceLevel) Enabled() bool {
	return l == TraceMinimal || l == TraceFull
}

// Config represents the tonctl configuration
type Config struct {
	Network struct {
		GlobalConfigURL string `yaml:"globalConfigURL"` // lite server list, e.g. https://ton.org/global.config.json
		Timeout         string `yaml:"timeout"`
		MaxRetries      int    `yaml:"maxRetries"`
		RateLimit       int    `yaml:"rateLimit"` // submissions per second, 0 disables
	} `yaml:"network"`

	Message struct {
		Lifetime int `yaml:"lifetime"` // seconds until an encoded message expires
	} `yaml:"message"`

	Call struct {
		AsyncCall bool `yaml:"asyncCall"` // fire-and-forget submission
		LocalRun  bool `yaml:"localRun"`  // emulate before submitting
		IsJSON    bool `yaml:"isJson"`    // machine-readable output only
	} `yaml:"call"`

	Debug struct {
		FailMode    TraceLevel `yaml:"failMode"` // "none" | "minimal" | "full"
		TracePath   string     `yaml:"tracePath"`
		ArchivePath string     `yaml:"archivePath"` // badger dir for replay snapshots, empty disables
	} `yaml:"debug"`

	Emulator struct {
		RedisAddr string `yaml:"redisAddr"`
		Queue     string `yaml:"queue"`
		Timeout   string `yaml:"timeout"`
	} `yaml:"emulator"`

	Governance struct {
		ConfigAddress string `yaml:"configAddress"` // config-holder account
		KeyFile       string `yaml:"keyFile"`       // governance private key
	} `yaml:"governance"`
}

// Default returns a configuration with all defaults applied and no file read.
func Default() *Config {
	c := &Config{}
	c.setDefaults()
	return c
}

// Load reads and parses a YAML configuration file
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	config.setDefaults()

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default values for empty fields
func (c *Config) setDefaults() {
	if c.Network.GlobalConfigURL == "" {
		c.Network.GlobalConfigURL = "https://ton.org/global.config.json"
	}
	if c.Network.Timeout == "" {
		c.Network.Timeout = "30s"
	}
	if c.Network.MaxRetries == 0 {
		c.Network.MaxRetries = 3
	}

	if c.Message.Lifetime == 0 {
		c.Message.Lifetime = 60
	}

	if c.Debug.FailMode == "" {
		c.Debug.FailMode = TraceNone
	}
	if c.Debug.TracePath == "" {
		c.Debug.TracePath = "./trace.log"
	}

	if c.Emulator.RedisAddr == "" {
		c.Emulator.RedisAddr = "localhost:6379"
	}
	if c.Emulator.Queue == "" {
		c.Emulator.Queue = "tonctl_emulator_tasks"
	}
	if c.Emulator.Timeout == "" {
		c.Emulator.Timeout = "30s"
	}

	if c.Governance.ConfigAddress == "" {
		c.Governance.ConfigAddress = "-1:5555555555555555555555555555555555555555555555555555555555555555"
	}
}

// validate performs basic validation of config values
func (c *Config) validate() error {
	if _, err := time.ParseDuration(c.Network.Timeout); err != nil {
		return fmt.Errorf("invalid network timeout %s: %w", c.Network.Timeout, err)
	}
	if c.Network.MaxRetries < 0 {
		return fmt.Errorf("maxRetries cannot be negative, got %d", c.Network.MaxRetries)
	}
	if c.Network.RateLimit < 0 {
		return fmt.Errorf("rateLimit cannot be negative, got %d", c.Network.RateLimit)
	}

	if c.Message.Lifetime < 1 {
		return fmt.Errorf("message lifetime must be at least 1 second, got %d", c.Message.Lifetime)
	}

	switch c.Debug.FailMode {
	case TraceNone, TraceMinimal, TraceFull:
	default:
		return fmt.Errorf("debug failMode must be 'none', 'minimal' or 'full', got %s", c.Debug.FailMode)
	}
	if c.Debug.TracePath == "" {
		return fmt.Errorf("debug trace path cannot be empty")
	}

	if _, err := time.ParseDuration(c.Emulator.Timeout); err != nil {
		return fmt.Errorf("invalid emulator timeout %s: %w", c.Emulator.Timeout, err)
	}

	if c.Governance.ConfigAddress == "" {
		return fmt.Errorf("governance config address cannot be empty")
	}

	return nil
}

// NetworkTimeout returns the network timeout as a time.Duration
func (c *Config) NetworkTimeout() time.Duration {
	d, err := time.ParseDuration(c.Network.Timeout)
	if err != nil {
		// This should not happen if validation passed
		return 30 * time.Second
	}
	return d
}

// EmulatorTimeout returns the emulator timeout as a time.Duration
func (c *Config) EmulatorTimeout() time.Duration {
	d, err := time.ParseDuration(c.Emulator.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// Lifetime returns the message lifetime as a time.Duration
func (c *Config) Lifetime() time.Duration {
	return time.Duration(c.Message.Lifetime) * time.Second
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf("Config{Network: %s, Lifetime: %ds, Async: %t, LocalRun: %t, FailMode: %s}",
		c.Network.GlobalConfigURL, c.Message.Lifetime, c.Call.AsyncCall, c.Call.LocalRun, c.Debug.FailMode)
}
