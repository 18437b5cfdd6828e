package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// SupervisorConfig mirrors the flags listed in spec.md §6's supervisor
// CLI: every field is overridable by the matching command-line flag.
type SupervisorConfig struct {
	Cmd                          []string `yaml:"cmd"`
	Listen                       string   `yaml:"listen"`
	DB                           string   `yaml:"db"`
	KeysDir                      string   `yaml:"keysDir"`
	LogsDir                      string   `yaml:"logsDir"`
	MaxRestarts                  int      `yaml:"maxRestarts"`
	HealthURL                    string   `yaml:"healthURL"`
	HealthGraceMs                int      `yaml:"healthGraceMs"`
	HealthIntervalMs             int      `yaml:"healthIntervalMs"`
	HealthTimeoutMs              int      `yaml:"healthTimeoutMs"`
	MaxConsecutiveHealthFailures int      `yaml:"maxConsecutiveHealthFailures"`
}

// LoadSupervisor reads a supervisor config document, applying the same
// defaults the CLI flags fall back to when unset.
func LoadSupervisor(path string) (*SupervisorConfig, error) {
	var cfg SupervisorConfig
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse yaml: %w", err)
		}
	}
	ApplySupervisorDefaults(&cfg)
	if len(cfg.Cmd) == 0 {
		return nil, fmt.Errorf("config: supervisor.cmd is required")
	}
	return &cfg, nil
}

// ApplySupervisorDefaults fills in zero-valued fields, including
// deriving HealthURL from Listen per spec.md §6: "Default health URL
// is derived by replacing the listen host with 127.0.0.1 and
// appending /healthz."
func ApplySupervisorDefaults(c *SupervisorConfig) {
	if c.Listen == "" {
		c.Listen = ":8090"
	}
	if c.HealthURL == "" {
		c.HealthURL = deriveHealthURL(c.Listen)
	}
	if c.MaxRestarts == 0 {
		c.MaxRestarts = 10
	}
	if c.HealthGraceMs == 0 {
		c.HealthGraceMs = 2000
	}
	if c.HealthIntervalMs == 0 {
		c.HealthIntervalMs = 2000
	}
	if c.HealthTimeoutMs == 0 {
		c.HealthTimeoutMs = 1000
	}
	if c.MaxConsecutiveHealthFailures == 0 {
		c.MaxConsecutiveHealthFailures = 3
	}
	if c.DB == "" {
		c.DB = "./data/aurea.db"
	}
	if c.KeysDir == "" {
		c.KeysDir = "./keys"
	}
	if c.LogsDir == "" {
		c.LogsDir = "./logs"
	}
}

func deriveHealthURL(listen string) string {
	host := strings.TrimPrefix(listen, ":")
	if idx := strings.LastIndex(listen, ":"); idx >= 0 {
		host = listen[idx+1:]
	}
	return "http://127.0.0.1:" + host + "/healthz"
}
