// Package config provides configuration types and defaults for registrar.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zjrosen/registrar/internal/log"
	"github.com/zjrosen/registrar/internal/tracing"
)

// AppName names the config directory and env prefix.
const AppName = "registrar"

// Config holds all configuration options for registrar.
type Config struct {
	Log      LogConfig       `mapstructure:"log" yaml:"log"`
	Tracing  tracing.Config  `mapstructure:"tracing" yaml:"tracing"`
	Registry RegistryConfig  `mapstructure:"registry" yaml:"registry"`
	Flags    map[string]bool `mapstructure:"flags" yaml:"flags"`
}

// LogConfig controls the category logger.
type LogConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`   // empty logs to stderr
	Level   string `mapstructure:"level" yaml:"level"` // debug, info, warn, error
}

// RegistryConfig controls how the CLI drives its registry.
type RegistryConfig struct {
	// ValidateOnStart fails startup when a declared contract has no factory.
	ValidateOnStart bool `mapstructure:"validate_on_start" yaml:"validate_on_start"`

	// TestContractsOnStart builds every declared contract at startup.
	TestContractsOnStart bool `mapstructure:"test_contracts_on_start" yaml:"test_contracts_on_start"`

	// ResetOnConfigChange tears down every object when the config file changes.
	ResetOnConfigChange bool `mapstructure:"reset_on_config_change" yaml:"reset_on_config_change"`

	// WatchDebounce coalesces bursts of config file writes.
	WatchDebounce time.Duration `mapstructure:"watch_debounce" yaml:"watch_debounce"`
}

// Defaults returns the default configuration.
func Defaults() Config {
	return Config{
		Log: LogConfig{
			Enabled: false,
			Path:    "",
			Level:   "info",
		},
		Tracing: tracing.DefaultConfig(),
		Registry: RegistryConfig{
			ValidateOnStart:      true,
			TestContractsOnStart: false,
			ResetOnConfigChange:  true,
			WatchDebounce:        500 * time.Millisecond,
		},
		Flags: map[string]bool{},
	}
}

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	var errs []error
	if _, ok := log.ParseLevel(c.Log.Level); !ok {
		errs = append(errs, fmt.Errorf("log.level: unknown level %q", c.Log.Level))
	}
	if err := c.Tracing.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Registry.WatchDebounce < 0 {
		errs = append(errs, fmt.Errorf("registry.watch_debounce must not be negative"))
	}
	return errors.Join(errs...)
}

// Dir returns ~/.config/registrar, or "" when the home directory is unknown.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", AppName)
}

// DefaultConfigPath returns the user level config file path.
func DefaultConfigPath() string {
	dir := Dir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "config.yaml")
}

// ProjectConfigPath is the config file looked up relative to the working
// directory before the user level one.
func ProjectConfigPath() string {
	return filepath.Join("."+AppName, "config.yaml")
}

// DefaultTracesFilePath returns where the file exporter writes when
// tracing.file_path is empty.
func DefaultTracesFilePath() string {
	dir := Dir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "traces", "traces.jsonl")
}

// DefaultConfigTemplate returns the default config as a YAML string with comments.
func DefaultConfigTemplate() string {
	return `# Registrar Configuration

# Category logger. Leave path empty to log to stderr.
log:
  enabled: false
  path: ""
  level: info # debug, info, warn, error

# OpenTelemetry tracing of builds, resets and contract checks.
tracing:
  enabled: false
  exporter: file # none, file, stdout, otlp
  file_path: "" # default: ~/.config/registrar/traces/traces.jsonl
  otlp_endpoint: localhost:4317
  sample_rate: 1
  service_name: registrar

registry:
  validate_on_start: true
  test_contracts_on_start: false
  reset_on_config_change: true
  watch_debounce: 500ms

# Feature flags: strict-contracts, exclusive-reload-hooks, test-contracts-on-reload
flags: {}
`
}

// WriteDefaultConfig creates a config file with default settings.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}
