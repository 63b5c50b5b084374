package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Database drivers.
const (
	DriverRedis  = "redis"
	DriverValkey = "valkey"
	DriverNone   = "none"
)

// Config holds the hitdex service configuration.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Auth     AuthConfig     `yaml:"auth"`
	Database DatabaseConfig `yaml:"database"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Engine   EngineConfig   `yaml:"engine"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds the archive database connection. Driver "none" disables the archive.
type DatabaseConfig struct {
	Driver           string   `yaml:"driver"`
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// ArchiveConfig holds snapshot archive settings.
type ArchiveConfig struct {
	TTLHours  int    `yaml:"ttl_hours"`
	KeyPrefix string `yaml:"key_prefix"`
}

// EngineConfig holds per-session engine settings.
type EngineConfig struct {
	FilterDepth       int     `yaml:"filter_depth"`
	MaxEditDistance   int     `yaml:"max_edit_distance"`
	EditDistanceRatio float64 `yaml:"edit_distance_ratio"`
	VerifyIndex       bool    `yaml:"verify_index"`
	EventLogSize      int     `yaml:"event_log_size"`
	IdleTimeoutSec    int     `yaml:"idle_timeout_sec"`
	SweepIntervalSec  int     `yaml:"sweep_interval_sec"`
}

// IngestConfig holds per-session ingest limits. Zero rate means unlimited.
type IngestConfig struct {
	RatePerSec float64 `yaml:"rate_per_sec"`
	Burst      int     `yaml:"burst"`
	MaxBatch   int     `yaml:"max_batch"`
}

// ArchiveTTL returns the archive TTL as a duration.
func (c ArchiveConfig) ArchiveTTL() time.Duration { return time.Duration(c.TTLHours) * time.Hour }

// IdleTimeout returns the idle timeout as a duration.
func (c EngineConfig) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutSec) * time.Second
}

// SweepInterval returns the sweeper period as a duration.
func (c EngineConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSec) * time.Second
}

// Load reads configuration from config/<env>.yaml.
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}
	return Parse(data)
}

// Parse decodes YAML with ${VAR} expansion, applies defaults and validates.
func Parse(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(expandEnvVars(data), &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DriverNone
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Archive.TTLHours <= 0 {
		c.Archive.TTLHours = 24
	}
	if c.Archive.KeyPrefix == "" {
		c.Archive.KeyPrefix = "hitdex:"
	}
	if c.Engine.FilterDepth <= 0 {
		c.Engine.FilterDepth = 3
	}
	if c.Engine.MaxEditDistance <= 0 {
		c.Engine.MaxEditDistance = 4
	}
	if c.Engine.EditDistanceRatio <= 0 {
		c.Engine.EditDistanceRatio = 0.10
	}
	if c.Engine.EventLogSize <= 0 {
		c.Engine.EventLogSize = 1024
	}
	if c.Engine.IdleTimeoutSec <= 0 {
		c.Engine.IdleTimeoutSec = 1800
	}
	if c.Engine.SweepIntervalSec <= 0 {
		c.Engine.SweepIntervalSec = 60
	}
	if c.Ingest.MaxBatch <= 0 {
		c.Ingest.MaxBatch = 1000
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Database.Driver {
	case DriverRedis, DriverValkey:
		if len(c.Database.Addrs) == 0 {
			return errors.New("database.addrs is required")
		}
	case DriverNone:
	default:
		return fmt.Errorf("database.driver must be %q, %q or %q, got %q",
			DriverRedis, DriverValkey, DriverNone, c.Database.Driver)
	}
	if c.Engine.EditDistanceRatio >= 1 {
		return fmt.Errorf("engine.edit_distance_ratio must be below 1, got %g", c.Engine.EditDistanceRatio)
	}
	if c.Ingest.RatePerSec < 0 || c.Ingest.Burst < 0 {
		return errors.New("ingest.rate_per_sec and ingest.burst must not be negative")
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := env + ".yaml"

	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// Relative to the source file, for tests run from a package directory.
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1])
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
