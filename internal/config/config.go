// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Engine types understood by the engine factory.
const (
	EngineHelper  = "helper"
	EngineFixture = "fixture"
)

// Config is the root configuration for a scan run.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Scan     ScanConfig     `mapstructure:"scan" yaml:"scan"`
	Engine   EngineConfig   `mapstructure:"engine" yaml:"engine"`
	Report   ReportConfig   `mapstructure:"report" yaml:"report"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
}

type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// ScanConfig controls directory traversal and the worker pool.
type ScanConfig struct {
	// Concurrency is the number of engine handles used in parallel. 1 keeps
	// the scan strictly sequential.
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency"`
	// FailOnError turns per-file failures into a non-zero exit status.
	FailOnError bool     `mapstructure:"fail_on_error" yaml:"fail_on_error"`
	SkipDirs    []string `mapstructure:"skip_dirs" yaml:"skip_dirs"`
}

// EngineConfig selects and tunes the document engine.
type EngineConfig struct {
	Type           string        `mapstructure:"type" yaml:"type"`
	HelperPath     string        `mapstructure:"helper_path" yaml:"helper_path"`
	HelperArgs     []string      `mapstructure:"helper_args" yaml:"helper_args"`
	StartupTimeout time.Duration `mapstructure:"startup_timeout" yaml:"startup_timeout"`
	FixturePath    string        `mapstructure:"fixture_path" yaml:"fixture_path"`
	SearchPaths    []string      `mapstructure:"search_paths" yaml:"search_paths"`
	SearchFilters  int           `mapstructure:"search_filters" yaml:"search_filters"`
	// MaxOpenRate caps document opens per second across all handles. Zero
	// disables throttling.
	MaxOpenRate float64 `mapstructure:"max_open_rate" yaml:"max_open_rate"`
}

type ReportConfig struct {
	Format  string `mapstructure:"format" yaml:"format"`
	Quoting string `mapstructure:"quoting" yaml:"quoting"`
}

// DatabaseConfig enables edge persistence when URL is set.
type DatabaseConfig struct {
	URL   string `mapstructure:"url" yaml:"url"`
	Table string `mapstructure:"table" yaml:"table"`
}

// MetricsConfig enables the Prometheus textfile export when Textfile is set.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile" yaml:"textfile"`
}

// NewDefaultConfig returns a configuration populated only with defaults.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults registers every default value on v.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "cadrefs")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Scan --
	v.SetDefault("scan.concurrency", 1)
	v.SetDefault("scan.fail_on_error", false)
	v.SetDefault("scan.skip_dirs", []string{})

	// -- Engine --
	v.SetDefault("engine.type", EngineHelper)
	v.SetDefault("engine.helper_path", "cadrefs-engine")
	v.SetDefault("engine.helper_args", []string{})
	v.SetDefault("engine.startup_timeout", "30s")
	v.SetDefault("engine.search_filters", 0)
	v.SetDefault("engine.max_open_rate", 0.0)

	// -- Report --
	v.SetDefault("report.format", "csv")
	v.SetDefault("report.quoting", "escape")

	// -- Database --
	v.SetDefault("database.url", "")
	v.SetDefault("database.table", "cad_references")

	// -- Metrics --
	v.SetDefault("metrics.textfile", "")
}

// NewConfigFromViper decodes, normalizes and validates the configuration held
// by v.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// The connection string usually carries credentials, so it has its own
	// variable in addition to the prefixed one.
	_ = v.BindEnv("database.url", "CADREFS_DATABASE_URL", "DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// normalize lowercases the enumerated settings so "CSV" and "csv" mean the same.
func (c *Config) normalize() {
	c.Report.Format = strings.ToLower(strings.TrimSpace(c.Report.Format))
	c.Report.Quoting = strings.ToLower(strings.TrimSpace(c.Report.Quoting))
	c.Engine.Type = strings.ToLower(strings.TrimSpace(c.Engine.Type))
}

func (c *Config) expandPaths() error {
	for _, p := range []*string{
		&c.Logger.LogFile,
		&c.Engine.HelperPath,
		&c.Engine.FixturePath,
		&c.Metrics.Textfile,
	} {
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("failed to expand path %q: %w", *p, err)
		}
		*p = expanded
	}
	for i, p := range c.Engine.SearchPaths {
		expanded, err := homedir.Expand(p)
		if err != nil {
			return fmt.Errorf("failed to expand search path %q: %w", p, err)
		}
		c.Engine.SearchPaths[i] = expanded
	}
	return nil
}

// Validate checks the configuration for values the scan cannot run with.
func (c *Config) Validate() error {
	if c.Scan.Concurrency <= 0 {
		return fmt.Errorf("scan.concurrency must be a positive integer")
	}
	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("engine configuration invalid: %w", err)
	}
	if err := c.Report.Validate(); err != nil {
		return fmt.Errorf("report configuration invalid: %w", err)
	}
	if c.Database.URL != "" && strings.TrimSpace(c.Database.Table) == "" {
		return fmt.Errorf("database.table is required when database.url is set")
	}
	return nil
}

// Validate checks the engine section.
func (e *EngineConfig) Validate() error {
	switch e.Type {
	case EngineHelper:
		if e.HelperPath == "" {
			return fmt.Errorf("helper_path is required for the helper engine")
		}
		if e.StartupTimeout <= 0 {
			return fmt.Errorf("startup_timeout must be a positive duration")
		}
	case EngineFixture:
		if e.FixturePath == "" {
			return fmt.Errorf("fixture_path is required for the fixture engine")
		}
	default:
		return fmt.Errorf("unknown engine type %q", e.Type)
	}
	if e.MaxOpenRate < 0 {
		return fmt.Errorf("max_open_rate must not be negative")
	}
	return nil
}

// Validate checks the report section.
func (r *ReportConfig) Validate() error {
	switch strings.ToLower(r.Format) {
	case "csv", "json", "graphml":
	default:
		return fmt.Errorf("unsupported format %q", r.Format)
	}
	switch strings.ToLower(r.Quoting) {
	case "escape", "legacy":
	default:
		return fmt.Errorf("unsupported quoting mode %q", r.Quoting)
	}
	return nil
}
