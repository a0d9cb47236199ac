// Package config loads aquire configuration from file and environment.
package config

import "time"

// Default configuration values.
const (
	DefaultPolicy = "device"

	DefaultPollInterval = 5 * time.Second

	DefaultThermalFair     = 70.0
	DefaultThermalSerious  = 85.0
	DefaultThermalCritical = 95.0

	DefaultLogLevel      = "info"
	DefaultLogMaxSize    = "5MB"
	DefaultLogMaxBackups = 3

	DefaultMetricsAddr = "127.0.0.1:9464"

	DefaultTelemetryCapacity = 200

	// EnvPrefix prefixes environment overrides, e.g. AQUIRE_POLICY.
	EnvPrefix = "AQUIRE"
)

// DefaultComponentLevels are the per-component log levels written to a new
// config file.
var DefaultComponentLevels = map[string]string{
	"profile": "info",
	"signals": "info",
	"prefs":   "warn",
	"daemon":  "info",
	"tui":     "info",
}
