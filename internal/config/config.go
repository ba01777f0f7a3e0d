// Package config loads brokerbot settings files. TOML, YAML and JSON share
// one schema; durations are Go duration strings.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/danmuck/brokerbot/internal/bot"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

var (
	ErrUnsupportedFormat = errors.New("config: unsupported format")
	ErrInvalid           = errors.New("config: invalid")
)

type FileConfig struct {
	Endpoint      string          `toml:"endpoint" yaml:"endpoint" json:"endpoint"`
	ProbeEndpoint string          `toml:"probe_endpoint" yaml:"probe_endpoint" json:"probe_endpoint"`
	AdminAddr     string          `toml:"admin_addr" yaml:"admin_addr" json:"admin_addr"`
	AdminToken    string          `toml:"admin_token" yaml:"admin_token" json:"admin_token"`
	CORSOrigins   []string        `toml:"cors_origins" yaml:"cors_origins" json:"cors_origins"`
	Timezone      string          `toml:"timezone" yaml:"timezone" json:"timezone"`
	Seed          uint64          `toml:"seed" yaml:"seed" json:"seed"`
	Session       SessionConfig   `toml:"session" yaml:"session" json:"session"`
	Transport     TransportConfig `toml:"transport" yaml:"transport" json:"transport"`
}

type SessionConfig struct {
	Username        string `toml:"username" yaml:"username" json:"username"`
	BurstSize       int    `toml:"burst_size" yaml:"burst_size" json:"burst_size"`
	MessageLength   int    `toml:"message_length" yaml:"message_length" json:"message_length"`
	PublishDelayMin string `toml:"publish_delay_min" yaml:"publish_delay_min" json:"publish_delay_min"`
	PublishDelayMax string `toml:"publish_delay_max" yaml:"publish_delay_max" json:"publish_delay_max"`
	IdleDelayMin    string `toml:"idle_delay_min" yaml:"idle_delay_min" json:"idle_delay_min"`
	IdleDelayMax    string `toml:"idle_delay_max" yaml:"idle_delay_max" json:"idle_delay_max"`
	MaxCycles       int    `toml:"max_cycles" yaml:"max_cycles" json:"max_cycles"`
}

type TransportConfig struct {
	ConnectTimeout string `toml:"connect_timeout" yaml:"connect_timeout" json:"connect_timeout"`
	ReadTimeout    string `toml:"read_timeout" yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout   string `toml:"write_timeout" yaml:"write_timeout" json:"write_timeout"`
	PollInterval   string `toml:"poll_interval" yaml:"poll_interval" json:"poll_interval"`
	// MaxConnectAttempts is nil when unset; an explicit 0 retries forever.
	MaxConnectAttempts *int `toml:"max_connect_attempts" yaml:"max_connect_attempts" json:"max_connect_attempts"`
}

// LoadFile reads path, picking the decoder by extension.
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config load failed (%s): %w", path, err)
	}

	var cfg FileConfig
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		err = toml.Unmarshal(data, &cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	case ".json":
		err = json.Unmarshal(data, &cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return &cfg, nil
}

// Load reads and validates path.
func Load(path string) (*FileConfig, error) {
	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (f *FileConfig) Validate() error {
	if _, err := f.ToServiceConfig(); err != nil {
		return err
	}
	s := f.Session
	switch {
	case s.BurstSize < 0:
		return fmt.Errorf("%w: session.burst_size must be non-negative", ErrInvalid)
	case s.MessageLength < 0:
		return fmt.Errorf("%w: session.message_length must be non-negative", ErrInvalid)
	case s.MaxCycles < 0:
		return fmt.Errorf("%w: session.max_cycles must be non-negative", ErrInvalid)
	case f.Transport.MaxConnectAttempts != nil && *f.Transport.MaxConnectAttempts < 0:
		return fmt.Errorf("%w: transport.max_connect_attempts must be non-negative", ErrInvalid)
	}
	if tz := strings.TrimSpace(f.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("%w: timezone %q: %v", ErrInvalid, tz, err)
		}
	}
	return nil
}

// ToServiceConfig overlays the set fields onto bot.DefaultServiceConfig.
func (f *FileConfig) ToServiceConfig() (bot.ServiceConfig, error) {
	cfg := bot.DefaultServiceConfig()

	if v := strings.TrimSpace(f.Endpoint); v != "" {
		cfg.Endpoint = v
	}
	cfg.ProbeEndpoint = strings.TrimSpace(f.ProbeEndpoint)
	cfg.AdminAddr = strings.TrimSpace(f.AdminAddr)
	cfg.AdminToken = strings.TrimSpace(f.AdminToken)
	if len(f.CORSOrigins) > 0 {
		cfg.CORSOrigins = append([]string(nil), f.CORSOrigins...)
	}
	if v := strings.TrimSpace(f.Timezone); v != "" {
		cfg.Timezone = v
	}
	cfg.Seed = f.Seed

	s := f.Session
	cfg.Driver.Username = strings.TrimSpace(s.Username)
	if s.BurstSize > 0 {
		cfg.Driver.BurstSize = s.BurstSize
	}
	if s.MessageLength > 0 {
		cfg.Driver.MessageLength = s.MessageLength
	}
	if s.MaxCycles > 0 {
		cfg.Driver.MaxCycles = s.MaxCycles
	}
	durations := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"session.publish_delay_min", s.PublishDelayMin, &cfg.Driver.PublishDelayMin},
		{"session.publish_delay_max", s.PublishDelayMax, &cfg.Driver.PublishDelayMax},
		{"session.idle_delay_min", s.IdleDelayMin, &cfg.Driver.IdleDelayMin},
		{"session.idle_delay_max", s.IdleDelayMax, &cfg.Driver.IdleDelayMax},
		{"transport.connect_timeout", f.Transport.ConnectTimeout, &cfg.Transport.ConnectTimeout},
		{"transport.read_timeout", f.Transport.ReadTimeout, &cfg.Transport.ReadTimeout},
		{"transport.write_timeout", f.Transport.WriteTimeout, &cfg.Transport.WriteTimeout},
		{"transport.poll_interval", f.Transport.PollInterval, &cfg.Transport.PollInterval},
	}
	for _, d := range durations {
		if err := parseDuration(d.name, d.raw, d.dst); err != nil {
			return bot.ServiceConfig{}, err
		}
	}
	if n := f.Transport.MaxConnectAttempts; n != nil && *n >= 0 {
		cfg.Transport.MaxConnectAttempts = *n
	}
	if err := cfg.Driver.Validate(); err != nil {
		return bot.ServiceConfig{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return cfg, nil
}

func parseDuration(name, raw string, dst *time.Duration) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalid, name, err)
	}
	if d < 0 {
		return fmt.Errorf("%w: %s must be non-negative", ErrInvalid, name)
	}
	*dst = d
	return nil
}
