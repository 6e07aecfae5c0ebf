package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"synthmcp/k2000"
)

// Supported values of Family.
const (
	FamilyK4    = "k4"
	FamilyK2000 = "k2000"
)

// Supported values of Form.
const (
	FormNibble   = "nibble"
	FormSevenBit = "sevenbit"
)

// EnvPath overrides the config file location.
const EnvPath = "SYNTHMCP_CONFIG"

// Config is the main configuration structure
type Config struct {
	// Port is matched, ignoring case, against MIDI port names.
	Port   string `yaml:"port"`
	Family string `yaml:"family"`
	// Channel is the MIDI channel as shown on the front panel (1–16).
	Channel  int `yaml:"channel"`
	DeviceID int `yaml:"device_id"`
	// Form is the body encoding used for K2000 writes and reads.
	Form              string        `yaml:"form"`
	ReplyTimeout      time.Duration `yaml:"reply_timeout"`
	DependencyTimeout time.Duration `yaml:"dependency_timeout"`
	Debug             bool          `yaml:"debug"`
}

// Default returns a config for a K4 on channel 1.
func Default() *Config {
	return &Config{
		Port:              "k4",
		Family:            FamilyK4,
		Channel:           1,
		DeviceID:          0,
		Form:              FormNibble,
		ReplyTimeout:      5 * time.Second,
		DependencyTimeout: 5 * time.Second,
	}
}

// DefaultPath returns $SYNTHMCP_CONFIG, or config.yaml under
// ~/.config/synthmcp.
func DefaultPath() (string, error) {
	if p := os.Getenv(EnvPath); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "synthmcp", "config.yaml"), nil
}

// Load reads the config at path. A missing file yields the defaults; keys
// absent from the file keep their default values.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config to path, creating its directory.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Validate reports the first key holding an unusable value.
func (c *Config) Validate() error {
	switch c.Family {
	case FamilyK4, FamilyK2000:
	default:
		return fmt.Errorf("family must be %q or %q, got %q", FamilyK4, FamilyK2000, c.Family)
	}
	if c.Channel < 1 || c.Channel > 16 {
		return fmt.Errorf("channel must be in range 1–16, got %d", c.Channel)
	}
	if c.DeviceID < 0 || c.DeviceID > 127 {
		return fmt.Errorf("device_id must be in range 0–127, got %d", c.DeviceID)
	}
	switch c.Form {
	case FormNibble, FormSevenBit:
	default:
		return fmt.Errorf("form must be %q or %q, got %q", FormNibble, FormSevenBit, c.Form)
	}
	if c.ReplyTimeout <= 0 {
		return fmt.Errorf("reply_timeout must be positive, got %s", c.ReplyTimeout)
	}
	if c.DependencyTimeout <= 0 {
		return fmt.Errorf("dependency_timeout must be positive, got %s", c.DependencyTimeout)
	}
	return nil
}

// MIDIChannel is Channel as a 0-based wire value.
func (c *Config) MIDIChannel() uint8 {
	return uint8(c.Channel - 1)
}

// FormByte is Form as the K2000 form selector.
func (c *Config) FormByte() byte {
	if c.Form == FormSevenBit {
		return k2000.FormSevenBit
	}
	return k2000.FormNibble
}
