// Package config loads and validates the YAML configuration shared by
// the runtime host and supervisor binaries.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration for YAML "150ms"/"15s" strings.
type Duration struct{ time.Duration }

// UnmarshalYAML decodes a duration string, expanding ${VAR:default}
// tokens first.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string (e.g. \"150ms\"): %w", err)
	}
	s = expandEnvDefault(s)
	if s == "" {
		d.Duration = 0
		return nil
	}
	dd, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = dd
	return nil
}

// Config is the runtime host's configuration document.
type Config struct {
	LogLevel string `yaml:"logLevel"`

	Store struct {
		Path         string   `yaml:"path"`
		LeaseTTL     Duration `yaml:"leaseTTL"`
		TickInterval Duration `yaml:"tickInterval"`
	} `yaml:"store"`

	Signing struct {
		KID      string `yaml:"kid"`
		SeedPath string `yaml:"seedPath"`
	} `yaml:"signing"`

	Host struct {
		Listen string `yaml:"listen"`
	} `yaml:"host"`
}

// Load reads path, expands ${VAR}/${VAR:default} tokens on string
// fields, applies defaults, and validates.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	cfg.LogLevel = expandEnvDefault(cfg.LogLevel)
	cfg.Store.Path = expandEnvDefault(cfg.Store.Path)
	cfg.Signing.KID = expandEnvDefault(cfg.Signing.KID)
	cfg.Signing.SeedPath = expandEnvDefault(cfg.Signing.SeedPath)
	cfg.Host.Listen = expandEnvDefault(cfg.Host.Listen)

	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(c *Config) {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Store.Path == "" {
		c.Store.Path = "./data/aurea.db"
	}
	if c.Store.LeaseTTL.Duration == 0 {
		c.Store.LeaseTTL = Duration{Duration: 15 * time.Second}
	}
	if c.Store.TickInterval.Duration == 0 {
		c.Store.TickInterval = Duration{Duration: 150 * time.Millisecond}
	}
	if c.Host.Listen == "" {
		c.Host.Listen = ":8090"
	}
}

func validate(c *Config) error {
	if c.Store.Path == "" {
		return fmt.Errorf("config: store.path is required")
	}
	if c.Signing.KID == "" {
		return fmt.Errorf("config: signing.kid is required")
	}
	if c.Store.LeaseTTL.Duration <= 0 {
		return fmt.Errorf("config: store.leaseTTL must be positive")
	}
	return nil
}

// --- env expansion with ${VAR} and ${VAR:default} ---

var envRe = regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

func expandEnvDefault(s string) string {
	if s == "" {
		return s
	}
	return envRe.ReplaceAllStringFunc(s, func(m string) string {
		parts := envRe.FindStringSubmatch(m)
		if len(parts) != 3 {
			return m
		}
		name, def := parts[1], parts[2]
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return def
	})
}
