// Package config handles CLI configuration loading.
package config

import (
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config represents the CLI configuration.
type Config struct {
	DefaultModel string                    `yaml:"default_model"`
	Stream       bool                      `yaml:"stream"`
	UsageLog     string                    `yaml:"usage_log,omitempty"`
	Providers    map[string]ProviderConfig `yaml:"providers"`
}

// ProviderConfig holds per-provider overrides.
type ProviderConfig struct {
	APIKeyRef string `yaml:"api_key_ref"`
	BaseURL   string `yaml:"base_url,omitempty"`
}

// DefaultConfigPath returns the default configuration file path.
// - macOS/Linux: ~/.relay/config.yaml
// - Windows: %USERPROFILE%\.relay\config.yaml
func DefaultConfigPath() string {
	return filepath.Join(homeDir(), ".relay", "config.yaml")
}

// DefaultUsageLogPath returns the default usage log file path.
func DefaultUsageLogPath() string {
	return filepath.Join(homeDir(), ".relay", "usage.log")
}

func homeDir() string {
	var home string
	if runtime.GOOS == "windows" {
		home = os.Getenv("USERPROFILE")
	} else {
		home = os.Getenv("HOME")
	}
	if home == "" {
		return "."
	}
	return home
}

// LoadConfig loads configuration from the specified path. A missing file is
// not an error; an unreadable or unparsable one is.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{
		Providers: make(map[string]ProviderConfig),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if cfg.Providers == nil {
		cfg.Providers = make(map[string]ProviderConfig)
	}

	return cfg, nil
}

// GetProvider returns the config for the given provider name, or nil when
// the provider is not configured.
func (c *Config) GetProvider(name string) *ProviderConfig {
	if c.Providers == nil {
		return nil
	}
	if pc, ok := c.Providers[name]; ok {
		return &pc
	}
	return nil
}
