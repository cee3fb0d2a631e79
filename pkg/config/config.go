// Package config handles configuration loading and management.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/dcnick3/xoss-sync/pkg/core"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Default config file locations.
var configPaths = []string{
	"./xoss-sync.yaml",
	"./xoss-sync.yml",
	"~/.config/xoss-sync/config.yaml",
	"/etc/xoss-sync/config.yaml",
}

// Load loads configuration from file.
func Load(path string) (*core.Config, error) {
	// If path is specified, use it directly
	if path != "" {
		return loadFile(path)
	}

	// Try default paths
	for _, p := range configPaths {
		// Expand home directory
		if p[0] == '~' {
			home, err := os.UserHomeDir()
			if err == nil {
				p = filepath.Join(home, p[2:])
			}
		}

		if _, err := os.Stat(p); err == nil {
			return loadFile(p)
		}
	}

	// Return default config if no file found
	return DefaultConfig(), nil
}

// loadFile loads configuration from a specific file.
func loadFile(path string) (*core.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := *DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate validates the configuration.
func Validate(cfg *core.Config) error {
	validate := validator.New()
	return validate.Struct(cfg)
}

// Save saves configuration to file.
func Save(path string, cfg *core.Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// DefaultConfig returns a configuration that runs with zero setup
// beyond picking a device, per spec.md's "no configuration required
// beyond device selection" requirement.
func DefaultConfig() *core.Config {
	return &core.Config{
		Device: core.DeviceConfig{
			ScanTimeout: 10 * time.Second,
		},
		Logging: core.LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
		Metrics: core.MetricsConfig{
			Enabled:  true,
			Endpoint: "/metrics",
		},
		API: core.APIConfig{
			Enabled: false,
			Port:    8080,
		},
		WS: core.WSConfig{
			Enabled: false,
			Port:    8081,
		},
		MQTT: core.MQTTConfig{
			Enabled:        false,
			ClientID:       "xoss-sync",
			ConnectTimeout: 10 * time.Second,
		},
		History: core.HistoryConfig{
			Enabled: true,
			Path:    "./xoss-sync-history.db",
		},
	}
}
