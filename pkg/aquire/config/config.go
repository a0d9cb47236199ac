package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/dustin/go-humanize"
	"github.com/jamesainslie/aquire/pkg/aquire/logging"
	"github.com/jamesainslie/aquire/pkg/aquire/signals"
	"github.com/jamesainslie/aquire/pkg/aquire/tuner"
	"github.com/jamesainslie/aquire/pkg/aquire/types"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSize    string `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
}

// LoggingConfig configures application logging.
type LoggingConfig struct {
	Level        string            `mapstructure:"level" yaml:"level"`
	Path         string            `mapstructure:"path" yaml:"path"`
	ConsoleLevel string            `mapstructure:"console_level" yaml:"console_level"`
	Rotation     RotationConfig    `mapstructure:"rotation" yaml:"rotation"`
	Components   map[string]string `mapstructure:"components" yaml:"components"`
}

// ThermalConfig holds the temperature thresholds, in degrees Celsius.
type ThermalConfig struct {
	Fair     float64 `mapstructure:"fair" yaml:"fair"`
	Serious  float64 `mapstructure:"serious" yaml:"serious"`
	Critical float64 `mapstructure:"critical" yaml:"critical"`
}

// SignalsConfig selects and configures signal sources.
type SignalsConfig struct {
	// Sources names the sources to register. Empty selects the platform
	// defaults.
	Sources      []string      `mapstructure:"sources" yaml:"sources"`
	File         string        `mapstructure:"file" yaml:"file"`
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	Thermal      ThermalConfig `mapstructure:"thermal" yaml:"thermal"`
}

// MarshalYAML writes the poll interval as a duration string.
func (s SignalsConfig) MarshalYAML() (any, error) {
	return struct {
		Sources      []string      `yaml:"sources"`
		File         string        `yaml:"file"`
		PollInterval string        `yaml:"poll_interval"`
		Thermal      ThermalConfig `yaml:"thermal"`
	}{s.Sources, s.File, s.PollInterval.String(), s.Thermal}, nil
}

// DevicesConfig extends the built-in hardware identifier sets.
type DevicesConfig struct {
	Low  []string `mapstructure:"low" yaml:"low"`
	High []string `mapstructure:"high" yaml:"high"`
}

// DaemonConfig configures aquired's files.
type DaemonConfig struct {
	// Binary is the aquired executable; empty searches next to aquire and PATH.
	Binary     string `mapstructure:"binary" yaml:"binary"`
	SocketPath string `mapstructure:"socket_path" yaml:"socket_path"`
	PIDPath    string `mapstructure:"pid_path" yaml:"pid_path"`
	StatusPath string `mapstructure:"status_path" yaml:"status_path"`
	StatePath  string `mapstructure:"state_path" yaml:"state_path"`
}

// Config represents the application configuration.
type Config struct {
	// Policy is "device" (hardware tier plus preference) or "signals"
	// (tier derived from live signals).
	Policy string `mapstructure:"policy" yaml:"policy"`

	Store struct {
		Path string `mapstructure:"path" yaml:"path"`
	} `mapstructure:"store" yaml:"store"`

	Signals SignalsConfig `mapstructure:"signals" yaml:"signals"`
	Devices DevicesConfig `mapstructure:"devices" yaml:"devices"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	Metrics struct {
		Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
		Addr    string `mapstructure:"addr" yaml:"addr"`
	} `mapstructure:"metrics" yaml:"metrics"`

	Telemetry struct {
		Capacity int `mapstructure:"capacity" yaml:"capacity"`
	} `mapstructure:"telemetry" yaml:"telemetry"`

	Daemon DaemonConfig `mapstructure:"daemon" yaml:"daemon"`
}

// Load reads config.yaml from ConfigDir, falling back to defaults when the
// file is absent. Environment variables prefixed AQUIRE_ override both
// (AQUIRE_SIGNALS_FILE sets signals.file).
func Load() (*Config, error) {
	dir, err := ConfigDir()
	if err != nil {
		return nil, err
	}
	return load(filepath.Join(dir, "config.yaml"), false)
}

// LoadFile reads the named file. Unlike Load a missing file is an error.
func LoadFile(path string) (*Config, error) {
	return load(path, true)
}

func load(path string, required bool) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		missing := errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)
		if required || !missing {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// AutomaticEnv only covers keys viper already knows, and a string is
	// not split into a list.
	if raw := os.Getenv(EnvPrefix + "_SIGNALS_SOURCES"); raw != "" {
		cfg.Signals.Sources = strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ' ' })
	}

	for _, p := range []*string{&cfg.Store.Path, &cfg.Signals.File, &cfg.Logging.Path,
		&cfg.Daemon.Binary, &cfg.Daemon.SocketPath, &cfg.Daemon.PIDPath,
		&cfg.Daemon.StatusPath, &cfg.Daemon.StatePath} {
		expanded, err := ExpandPath(*p)
		if err != nil {
			return nil, err
		}
		*p = expanded
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("policy", DefaultPolicy)
	v.SetDefault("store.path", DefaultStorePath())

	v.SetDefault("signals.sources", []string{})
	v.SetDefault("signals.file", "")
	v.SetDefault("signals.poll_interval", DefaultPollInterval)
	v.SetDefault("signals.thermal.fair", DefaultThermalFair)
	v.SetDefault("signals.thermal.serious", DefaultThermalSerious)
	v.SetDefault("signals.thermal.critical", DefaultThermalCritical)

	v.SetDefault("devices.low", []string{})
	v.SetDefault("devices.high", []string{})

	v.SetDefault("logging.level", DefaultLogLevel)
	v.SetDefault("logging.path", "")
	v.SetDefault("logging.console_level", "")
	v.SetDefault("logging.rotation.max_size", DefaultLogMaxSize)
	v.SetDefault("logging.rotation.max_backups", DefaultLogMaxBackups)
	v.SetDefault("logging.components", DefaultComponentLevels)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", DefaultMetricsAddr)

	v.SetDefault("telemetry.capacity", DefaultTelemetryCapacity)

	v.SetDefault("daemon.binary", "")
	v.SetDefault("daemon.socket_path", DefaultSocketPath())
	v.SetDefault("daemon.pid_path", DefaultPIDPath())
	v.SetDefault("daemon.status_path", DefaultStatusPath())
	v.SetDefault("daemon.state_path", DefaultStatePath())
}

// Validate checks values that have a fixed vocabulary or ordering.
func (c *Config) Validate() error {
	if _, err := types.ParsePolicy(c.Policy); err != nil {
		return fmt.Errorf("policy: %w", err)
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if c.Logging.Rotation.MaxSize != "" {
		if _, err := humanize.ParseBytes(c.Logging.Rotation.MaxSize); err != nil {
			return fmt.Errorf("logging.rotation.max_size: %w", err)
		}
	}
	th := c.Signals.Thermal
	if !(th.Fair < th.Serious && th.Serious < th.Critical) {
		return fmt.Errorf("signals.thermal: thresholds must increase (fair %.1f, serious %.1f, critical %.1f)",
			th.Fair, th.Serious, th.Critical)
	}
	return nil
}

// PolicyValue returns the parsed policy.
func (c *Config) PolicyValue() types.Policy {
	p, _ := types.ParsePolicy(c.Policy)
	return p
}

// Classifier builds a device classifier including the configured
// identifiers.
func (c *Config) Classifier() *tuner.Classifier {
	return tuner.NewClassifier(c.Devices.Low, c.Devices.High)
}

// SignalOptions converts the signals section for signals.New.
func (c *Config) SignalOptions() signals.Options {
	return signals.Options{
		File:         c.Signals.File,
		PollInterval: c.Signals.PollInterval,
		Thermal: signals.ThermalThresholds{
			Fair:     c.Signals.Thermal.Fair,
			Serious:  c.Signals.Thermal.Serious,
			Critical: c.Signals.Thermal.Critical,
		},
	}
}

// LoggingConfig converts the logging section for logging.Init.
func (c *Config) LoggingConfig() logging.Config {
	var maxSize int64
	if n, err := humanize.ParseBytes(c.Logging.Rotation.MaxSize); err == nil {
		maxSize = int64(n)
	}
	return logging.Config{
		Level:        c.Logging.Level,
		Path:         c.Logging.Path,
		ConsoleLevel: c.Logging.ConsoleLevel,
		Components:   c.Logging.Components,
		Rotation: logging.RotationConfig{
			MaxSize:    maxSize,
			MaxBackups: c.Logging.Rotation.MaxBackups,
		},
	}
}

// ConfigDir returns $XDG_CONFIG_HOME/aquire, or ~/.config/aquire.
func ConfigDir() (string, error) {
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return filepath.Join(xdgConfigHome, "aquire"), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "aquire"), nil
}

// ConfigPath returns the default config file path.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Default returns the configuration Load produces without a file.
func Default() *Config {
	var cfg Config
	cfg.Policy = DefaultPolicy
	cfg.Store.Path = DefaultStorePath()
	cfg.Signals.Sources = []string{}
	cfg.Signals.PollInterval = DefaultPollInterval
	cfg.Signals.Thermal = ThermalConfig{
		Fair:     DefaultThermalFair,
		Serious:  DefaultThermalSerious,
		Critical: DefaultThermalCritical,
	}
	cfg.Devices = DevicesConfig{Low: []string{}, High: []string{}}
	cfg.Logging = LoggingConfig{
		Level:      DefaultLogLevel,
		Rotation:   RotationConfig{MaxSize: DefaultLogMaxSize, MaxBackups: DefaultLogMaxBackups},
		Components: DefaultComponentLevels,
	}
	cfg.Metrics.Addr = DefaultMetricsAddr
	cfg.Telemetry.Capacity = DefaultTelemetryCapacity
	cfg.Daemon = DaemonConfig{
		SocketPath: DefaultSocketPath(),
		PIDPath:    DefaultPIDPath(),
		StatusPath: DefaultStatusPath(),
		StatePath:  DefaultStatePath(),
	}
	return &cfg
}

const defaultHeader = `# aquire configuration
#
# policy: device  - hardware tier plus your preference, throttled by system signals
# policy: signals - tier derived from live power/thermal signals only
#
# signals.sources: empty selects the platform defaults; known sources are
# static, file and thermal. Every key can be overridden with AQUIRE_<KEY>,
# e.g. AQUIRE_SIGNALS_FILE=/run/aquire/signals.yaml.

`

// WriteDefault writes the default configuration to path, or to ConfigPath
// when path is empty. An existing file is left alone and reported as false.
func WriteDefault(path string) (bool, error) {
	if path == "" {
		var err error
		if path, err = ConfigPath(); err != nil {
			return false, err
		}
	}

	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("failed to check config file: %w", err)
	}

	body, err := yaml.Marshal(Default())
	if err != nil {
		return false, fmt.Errorf("encoding default config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, append([]byte(defaultHeader), body...), 0o644); err != nil {
		return false, fmt.Errorf("failed to write default config: %w", err)
	}
	return true, nil
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, path[1:]), nil
}

// DataDir returns $XDG_DATA_HOME/aquire/ for the preference store.
func DataDir() string {
	return filepath.Join(xdg.DataHome, "aquire")
}

// StateDir returns $XDG_STATE_HOME/aquire/ for logs and daemon files.
func StateDir() string {
	return filepath.Join(xdg.StateHome, "aquire")
}

// DefaultStorePath returns the preference store directory.
func DefaultStorePath() string {
	return filepath.Join(DataDir(), "prefs")
}

// DefaultSocketPath returns the daemon control socket path.
func DefaultSocketPath() string {
	return filepath.Join(StateDir(), "aquired.sock")
}

// DefaultPIDPath returns the daemon PID file path.
func DefaultPIDPath() string {
	return filepath.Join(StateDir(), "aquired.pid")
}

// DefaultStatusPath returns the daemon status file path.
func DefaultStatusPath() string {
	return filepath.Join(StateDir(), "aquired.status.json")
}

// DefaultStatePath returns the published tuning state file path.
func DefaultStatePath() string {
	return filepath.Join(StateDir(), "tuning.json")
}
