// Package config loads hub settings from YAML with environment overrides.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete hub configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
	Relay    RelayConfig    `yaml:"relay"`
	License  LicenseConfig  `yaml:"license"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	// StaticDir, when set, is served at / for the operator console.
	StaticDir string `yaml:"static_dir"`
}

// DatabaseConfig holds the license database location.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// RelayConfig tunes per-connection behaviour.
type RelayConfig struct {
	DefaultLab     string `yaml:"default_lab"`
	SendBuffer     int    `yaml:"send_buffer"`
	MaxMessageSize int64  `yaml:"max_message_size"`

	WriteWait time.Duration `yaml:"-"`
	PongWait  time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	WriteWaitRaw string `yaml:"write_wait"`
	PongWaitRaw  string `yaml:"pong_wait"`
}

// LicenseConfig controls the agent license gate and its admin API.
type LicenseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	MaxHardware int    `yaml:"max_hardware"`
	AdminToken  string `yaml:"admin_token"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: ":8080",
		},
		Database: DatabaseConfig{
			Path: "data/licenses.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Relay: RelayConfig{
			DefaultLab:     "DEFAULT",
			SendBuffer:     256,
			MaxMessageSize: 4 << 20,
			WriteWait:      10 * time.Second,
			PongWait:       60 * time.Second,
		},
		License: LicenseConfig{
			MaxHardware: 1,
		},
	}
}

// Load reads a configuration file and layers it over Default. An empty path
// skips the file. ${VAR} references in the file are expanded, then the PORT
// and DB_PATH environment variables override the listener and database.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		expandedData := expandEnvVars(string(data))
		if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}

		if err := parseDurations(cfg); err != nil {
			return nil, fmt.Errorf("parsing durations: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

var envRef = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} with the variable's value, or the empty
// string when unset.
func expandEnvVars(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envRef.FindStringSubmatch(match)[1])
	})
}

func applyEnv(cfg *Config) {
	if port := getEnv("PORT", ""); port != "" {
		cfg.Server.Addr = ":" + strings.TrimPrefix(port, ":")
	}
	cfg.Database.Path = getEnv("DB_PATH", cfg.Database.Path)
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Validate returns an error describing the first invalid field.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}

	if c.License.Enabled && c.Database.Path == "" {
		return fmt.Errorf("database.path is required when license is enabled")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}

	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not text or json", c.Logging.Format)
	}

	if c.Relay.SendBuffer <= 0 {
		return fmt.Errorf("relay.send_buffer must be positive")
	}
	if c.Relay.MaxMessageSize <= 0 {
		return fmt.Errorf("relay.max_message_size must be positive")
	}
	if c.Relay.WriteWait <= 0 {
		return fmt.Errorf("relay.write_wait must be positive")
	}
	if c.Relay.PongWait <= 0 {
		return fmt.Errorf("relay.pong_wait must be positive")
	}

	if c.License.MaxHardware < 0 {
		return fmt.Errorf("license.max_hardware must not be negative")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Relay.WriteWaitRaw != "" {
		cfg.Relay.WriteWait, err = time.ParseDuration(cfg.Relay.WriteWaitRaw)
		if err != nil {
			return fmt.Errorf("parsing write_wait %q: %w", cfg.Relay.WriteWaitRaw, err)
		}
	}

	if cfg.Relay.PongWaitRaw != "" {
		cfg.Relay.PongWait, err = time.ParseDuration(cfg.Relay.PongWaitRaw)
		if err != nil {
			return fmt.Errorf("parsing pong_wait %q: %w", cfg.Relay.PongWaitRaw, err)
		}
	}

	return nil
}
