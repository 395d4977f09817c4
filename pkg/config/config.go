package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/gobwas/glob"
	"gopkg.in/yaml.v3"
)

// Storage backend names.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendS3     = "s3"
)

// DefaultCheckpointInterval bounds how much profile data is lost if the build
// terminates abnormally.
const DefaultCheckpointInterval = 5 * time.Minute

// Config represents the configuration of the build profiler
type Config struct {
	// Enabled gates all profiler behaviour. When false the listener is inert.
	Enabled bool `yaml:"enabled" env:"MAVEN_BUILD_SCANNER"`

	// CheckpointInterval is the minimum time between two checkpoints
	CheckpointInterval time.Duration `yaml:"checkpoint_interval" env:"BUILD_SCANNER_CHECKPOINT_INTERVAL"`

	// ViewerURL is the base URL of the profile viewer printed at session end
	ViewerURL string `yaml:"viewer_url" env:"BUILD_SCANNER_VIEWER_URL"`

	// RedactProperties are glob patterns; user properties whose key matches
	// are masked in the reconstructed command line
	RedactProperties []string `yaml:"redact_properties" env:"BUILD_SCANNER_REDACT_PROPERTIES" envSeparator:","`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging"`

	// Storage configuration
	Storage StorageConfig `yaml:"storage"`
}

// LoggingConfig defines logging configuration
type LoggingConfig struct {
	// Level is one of debug, info, warn, error
	Level string `yaml:"level" env:"BUILD_SCANNER_LOG_LEVEL"`

	// Dir, when set, makes the profiler also log to a per-session file in Dir
	Dir string `yaml:"dir" env:"BUILD_SCANNER_LOG_DIR"`
}

// StorageConfig selects and configures the profile storage backend
type StorageConfig struct {
	Backend    string   `yaml:"backend" env:"BUILD_SCANNER_STORAGE"`
	Dir        string   `yaml:"dir" env:"BUILD_SCANNER_STORAGE_DIR"`
	SQLitePath string   `yaml:"sqlite_path" env:"BUILD_SCANNER_SQLITE_PATH"`
	S3         S3Config `yaml:"s3"`
}

// S3Config defines the S3 (or S3-compatible) bucket profiles are written to
type S3Config struct {
	Bucket         string `yaml:"bucket" env:"BUILD_SCANNER_S3_BUCKET"`
	Prefix         string `yaml:"prefix" env:"BUILD_SCANNER_S3_PREFIX"`
	Region         string `yaml:"region" env:"BUILD_SCANNER_S3_REGION"`
	Endpoint       string `yaml:"endpoint" env:"BUILD_SCANNER_S3_ENDPOINT"`
	ForcePathStyle bool   `yaml:"force_path_style" env:"BUILD_SCANNER_S3_FORCE_PATH_STYLE"`
}

// DefaultConfig returns a default configuration suitable for most use cases.
// The profiler is disabled until explicitly enabled.
func DefaultConfig() *Config {
	base := ".buildscan"
	if homeDir, err := os.UserHomeDir(); err == nil {
		base = filepath.Join(homeDir, ".buildscan")
	}

	return &Config{
		Enabled:            false,
		CheckpointInterval: DefaultCheckpointInterval,
		ViewerURL:          "http://localhost:3000",
		RedactProperties: []string{
			"*password*",
			"*secret*",
			"*token*",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Storage: StorageConfig{
			Backend:    BackendFile,
			Dir:        filepath.Join(base, "profiles"),
			SQLitePath: filepath.Join(base, "buildscan.db"),
			S3: S3Config{
				Prefix: "buildscan",
			},
		},
	}
}

// Load builds the effective configuration: defaults, then the optional YAML
// file at path, then environment variables.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadFile overlays the YAML file at path onto c.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// ApplyEnv overlays environment variables onto c. Unset variables leave the
// current values untouched.
func (c *Config) ApplyEnv() error {
	if err := env.Parse(c); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.CheckpointInterval < 0 {
		return errors.New("checkpoint_interval cannot be negative")
	}

	for _, pattern := range c.RedactProperties {
		if _, err := glob.Compile(pattern); err != nil {
			return fmt.Errorf("invalid redact pattern '%s': %w", pattern, err)
		}
	}

	// Set default level if not specified
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s (must be 'debug', 'info', 'warn', or 'error')", c.Logging.Level)
	}

	switch c.Storage.Backend {
	case BackendFile:
		if c.Storage.Dir == "" {
			return errors.New("storage.dir is required for the file backend")
		}
	case BackendSQLite:
		if c.Storage.SQLitePath == "" {
			return errors.New("storage.sqlite_path is required for the sqlite backend")
		}
	case BackendS3:
		if c.Storage.S3.Bucket == "" {
			return errors.New("storage.s3.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("invalid storage backend: %q (must be 'file', 'sqlite' or 's3')", c.Storage.Backend)
	}

	return nil
}
