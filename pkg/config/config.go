package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	LogLevel string `yaml:"log_level" json:"log_level" default:"info"`

	ScanTimeout     time.Duration `yaml:"scan_timeout" json:"scan_timeout" default:"10s"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout" json:"connect_timeout" default:"30s"`
	SyncTimeout     time.Duration `yaml:"sync_timeout" json:"sync_timeout" default:"60s"`
	MTU             int           `yaml:"mtu" json:"mtu" default:"185"`
	AllowDuplicates bool          `yaml:"allow_duplicates" json:"allow_duplicates" default:"true"`

	ActivityLogSize int `yaml:"activity_log_size" json:"activity_log_size" default:"200"`
	ObserverBuffer  int `yaml:"observer_buffer" json:"observer_buffer" default:"16"`

	// DecodeLogRate limits how many decode failures per second reach the activity log.
	DecodeLogRate  float64 `yaml:"decode_log_rate" json:"decode_log_rate" default:"1"`
	DecodeLogBurst int     `yaml:"decode_log_burst" json:"decode_log_burst" default:"5"`

	DatabasePath string `yaml:"database_path" json:"database_path"`
	OutputFormat string `yaml:"output_format" json:"output_format" default:"table"`

	Breaker BreakerConfig `yaml:"breaker" json:"breaker"`
}

// BreakerConfig tunes the circuit breaker around connection attempts.
type BreakerConfig struct {
	MaxFailures uint32        `yaml:"max_failures" json:"max_failures" default:"3"`
	Cooldown    time.Duration `yaml:"cooldown" json:"cooldown" default:"30s"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load returns the defaults overlaid with the YAML file at path.
// An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every out-of-range setting at once.
func (c *Config) Validate() error {
	var errs []error
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if c.ScanTimeout <= 0 {
		errs = append(errs, errors.New("scan_timeout must be > 0"))
	}
	if c.ConnectTimeout <= 0 {
		errs = append(errs, errors.New("connect_timeout must be > 0"))
	}
	if c.SyncTimeout <= 0 {
		errs = append(errs, errors.New("sync_timeout must be > 0"))
	}
	if c.MTU != 0 && (c.MTU < 23 || c.MTU > 517) {
		errs = append(errs, fmt.Errorf("mtu %d out of range [23,517]", c.MTU))
	}
	if c.ActivityLogSize <= 0 {
		errs = append(errs, errors.New("activity_log_size must be > 0"))
	}
	if c.ObserverBuffer <= 0 {
		errs = append(errs, errors.New("observer_buffer must be > 0"))
	}
	if c.DecodeLogRate <= 0 || c.DecodeLogBurst <= 0 {
		errs = append(errs, errors.New("decode_log_rate and decode_log_burst must be > 0"))
	}
	if c.Breaker.MaxFailures == 0 {
		errs = append(errs, errors.New("breaker.max_failures must be > 0"))
	}
	switch strings.ToLower(c.OutputFormat) {
	case "table", "json":
	default:
		errs = append(errs, fmt.Errorf("output_format %q must be table or json", c.OutputFormat))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Level returns the parsed log level, falling back to info.
func (c *Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.Level())

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
