// Package core holds the top-level configuration shape for xoss-sync,
// the struct every other package's configuration is carried inside.
package core

import "time"

// Config is the full, validated application configuration (C13),
// loaded from a YAML file by pkg/config.
type Config struct {
	Device  DeviceConfig  `yaml:"device" json:"device"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
	API     APIConfig     `yaml:"api" json:"api"`
	WS      WSConfig      `yaml:"ws" json:"ws"`
	MQTT    MQTTConfig    `yaml:"mqtt" json:"mqtt"`
	History HistoryConfig `yaml:"history" json:"history"`
}

// DeviceConfig selects which XOSS device to connect to.
type DeviceConfig struct {
	// Name is the advertised local name to scan for, e.g. "XOSS G+".
	Name string `yaml:"name" json:"name"`

	// Address is the device's MAC/UUID address, taking precedence over
	// Name when both are set.
	Address string `yaml:"address" json:"address"`

	// ScanTimeout bounds how long to wait for the device to be found.
	ScanTimeout time.Duration `yaml:"scan_timeout" json:"scan_timeout"`
}

// LoggingConfig controls the structured logger (pkg/logger).
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" json:"format" validate:"omitempty,oneof=text json"`
	Output string `yaml:"output" json:"output" validate:"omitempty,oneof=stdout file"`
	File   string `yaml:"file" json:"file"`
}

// MetricsConfig describes the Prometheus metrics exposition (C12).
// Collection is unconditional, and neither field is read by the API
// server: it serves /metrics at that fixed path whenever it runs.
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Endpoint string `yaml:"endpoint" json:"endpoint"`
}

// APIConfig controls the REST status/control API (C10).
type APIConfig struct {
	Enabled bool       `yaml:"enabled" json:"enabled"`
	Port    int        `yaml:"port" json:"port" validate:"omitempty,min=1,max=65535"`
	Auth    AuthConfig `yaml:"auth" json:"auth"`
}

// AuthConfig configures API-key/JWT authentication for the API.
type AuthConfig struct {
	Enabled   bool         `yaml:"enabled" json:"enabled"`
	JWTSecret string       `yaml:"jwt_secret" json:"jwt_secret"`
	Users     []UserConfig `yaml:"users" json:"users"`
}

// UserConfig is one API key entry.
type UserConfig struct {
	Name string `yaml:"name" json:"name"`
	Key  string `yaml:"key" json:"key"`
	Role string `yaml:"role" json:"role"` // "admin", "viewer"
}

// WSConfig controls the progress-stream WebSocket server (C11).
type WSConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	Port    int  `yaml:"port" json:"port" validate:"omitempty,min=1,max=65535"`
}

// MQTTConfig controls the telemetry publisher (C9). It mirrors
// pkg/xoss/telemetry.Config; the two stay separate so the telemetry
// package doesn't depend on pkg/core.
type MQTTConfig struct {
	Enabled        bool          `yaml:"enabled" json:"enabled"`
	Broker         string        `yaml:"broker" json:"broker" validate:"required_if=Enabled true"`
	ClientID       string        `yaml:"client_id" json:"client_id"`
	Username       string        `yaml:"username" json:"username"`
	Password       string        `yaml:"password" json:"password"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" json:"connect_timeout"`
	QOS            byte          `yaml:"qos" json:"qos" validate:"max=2"`
}

// HistoryConfig controls the sync-history audit log (C8).
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
}
