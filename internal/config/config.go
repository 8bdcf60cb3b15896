// Package config provides configuration types and defaults for playbook.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zjrosen/playbook/internal/log"
)

// Config holds all configuration options for playbook.
type Config struct {
	Database     DatabaseConfig     `mapstructure:"database"`
	Templates    TemplatesConfig    `mapstructure:"templates"`
	Verification VerificationConfig `mapstructure:"verification"`
	Onboarding   OnboardingConfig   `mapstructure:"onboarding"`
	Server       ServerConfig       `mapstructure:"server"`
	Tracing      TracingConfig      `mapstructure:"tracing"`
}

// DatabaseConfig holds the record store location.
type DatabaseConfig struct {
	// Path is the SQLite database file.
	// Default: ~/.playbook/playbook.db
	Path string `mapstructure:"path"`
}

// TemplatesConfig controls where playbook templates come from.
type TemplatesConfig struct {
	// Source selects the template store: "embedded" (catalog files, default)
	// or "records" (playbook_templates table in the record store).
	Source string `mapstructure:"source"`

	// UserDir is an optional directory of YAML templates that override the
	// embedded catalog by id.
	UserDir string `mapstructure:"user_dir"`

	// Watch reloads UserDir on change while the server is running.
	Watch bool `mapstructure:"watch"`

	// CacheTTL is how long templates read from the record store are cached.
	// Default: 5m
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// VerificationConfig controls how step verification rules run.
type VerificationConfig struct {
	// Parallelism bounds concurrent rule evaluations per check.
	// Default: 4
	Parallelism int `mapstructure:"parallelism"`

	// Strict fails startup when a template uses a step type with no rule.
	Strict bool `mapstructure:"strict"`

	// ManualOnly lists step types that are only ever completed by hand.
	ManualOnly []string `mapstructure:"manual_only"`
}

// OnboardingConfig holds onboarding settings.
type OnboardingConfig struct {
	// TemplateID pins the onboarding template when several templates carry
	// the onboarding category.
	TemplateID string `mapstructure:"template_id"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr string `mapstructure:"addr"` // host:port, default "127.0.0.1:8420"
}

// TracingConfig holds distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether distributed tracing is active.
	// Default: false
	Enabled bool `mapstructure:"enabled"`

	// Exporter selects the trace export backend.
	// Options: "none", "file", "stdout", "otlp"
	// Default: "file"
	Exporter string `mapstructure:"exporter"`

	// FilePath is the output file for "file" exporter.
	// Default: ~/.config/playbook/traces/traces.jsonl
	FilePath string `mapstructure:"file_path"`

	// OTLPEndpoint is the collector endpoint for "otlp" exporter.
	// Default: "localhost:4317"
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`

	// SampleRate controls trace sampling (0.0 to 1.0).
	// Default: 1.0
	SampleRate float64 `mapstructure:"sample_rate"`
}

// Template sources.
const (
	SourceEmbedded = "embedded"
	SourceRecords  = "records"
)

// DefaultDatabasePath returns ~/.playbook/playbook.db, or playbook.db in the
// working directory if the home directory is unavailable.
func DefaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "playbook.db"
	}
	return filepath.Join(home, ".playbook", "playbook.db")
}

// DefaultTracesFilePath returns the default path for trace file export.
// Returns ~/.config/playbook/traces/traces.jsonl or empty string if home dir unavailable.
func DefaultTracesFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "playbook", "traces", "traces.jsonl")
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		Database: DatabaseConfig{
			Path: DefaultDatabasePath(),
		},
		Templates: TemplatesConfig{
			Source:   SourceEmbedded,
			CacheTTL: 5 * time.Minute,
		},
		Verification: VerificationConfig{
			Parallelism: 4,
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8420",
		},
		Tracing: TracingConfig{
			Enabled:      false,
			Exporter:     "file",
			FilePath:     "", // Derived from home dir at runtime
			OTLPEndpoint: "localhost:4317",
			SampleRate:   1.0,
		},
	}
}

// Validate checks every section of the configuration.
func Validate(cfg Config) error {
	if err := ValidateDatabase(cfg.Database); err != nil {
		return err
	}
	if err := ValidateTemplates(cfg.Templates); err != nil {
		return err
	}
	if err := ValidateVerification(cfg.Verification); err != nil {
		return err
	}
	return ValidateTracing(cfg.Tracing)
}

// ValidateDatabase checks database configuration for errors.
func ValidateDatabase(db DatabaseConfig) error {
	if db.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	return nil
}

// ValidateTemplates checks template source configuration for errors.
// Returns nil if the configuration is valid (empty values use defaults).
func ValidateTemplates(t TemplatesConfig) error {
	switch t.Source {
	case "", SourceEmbedded, SourceRecords:
	default:
		return fmt.Errorf("templates.source must be \"embedded\" or \"records\", got %q", t.Source)
	}

	if t.CacheTTL < 0 {
		return fmt.Errorf("templates.cache_ttl must not be negative, got %v", t.CacheTTL)
	}

	if t.Watch && t.UserDir == "" {
		return fmt.Errorf("templates.user_dir is required when templates.watch is enabled")
	}

	return nil
}

// ValidateVerification checks verification configuration for errors.
func ValidateVerification(v VerificationConfig) error {
	if v.Parallelism < 0 {
		return fmt.Errorf("verification.parallelism must not be negative, got %d", v.Parallelism)
	}
	for i, st := range v.ManualOnly {
		if st == "" {
			return fmt.Errorf("verification.manual_only[%d] must not be empty", i)
		}
	}
	return nil
}

// ValidateTracing checks tracing configuration for errors.
// Returns nil if the configuration is valid (empty values use defaults).
func ValidateTracing(tracing TracingConfig) error {
	if tracing.SampleRate < 0.0 || tracing.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", tracing.SampleRate)
	}

	if tracing.Exporter != "" {
		switch tracing.Exporter {
		case "none", "file", "stdout", "otlp":
		default:
			return fmt.Errorf("tracing.exporter must be \"none\", \"file\", \"stdout\", or \"otlp\", got %q", tracing.Exporter)
		}
	}

	// Only validate path requirements when tracing is enabled
	if tracing.Enabled {
		if tracing.Exporter == "file" && tracing.FilePath == "" {
			return fmt.Errorf("tracing.file_path is required when exporter is \"file\"")
		}
		if tracing.Exporter == "otlp" && tracing.OTLPEndpoint == "" {
			return fmt.Errorf("tracing.otlp_endpoint is required when exporter is \"otlp\"")
		}
	}

	return nil
}

// DefaultConfigTemplate returns the default config as a YAML string with comments.
func DefaultConfigTemplate() string {
	return `# Playbook Configuration

# Record store (SQLite)
database:
  # path: ~/.playbook/playbook.db

# Playbook templates
templates:
  source: embedded      # "embedded" (built-in catalog) or "records" (playbook_templates table)
  # user_dir: ~/.config/playbook/templates   # YAML templates that override the catalog by id
  watch: false          # Reload user_dir on change while serving
  cache_ttl: 5m         # Cache lifetime for templates read from the record store

# Step verification
verification:
  parallelism: 4        # Concurrent rule evaluations per check
  strict: false         # Fail startup when a template step type has no rule
  # manual_only:        # Step types that are only ever completed by hand
  #   - welcome

# Onboarding
onboarding:
  # template_id: onboarding-v1   # Pin when several onboarding templates exist

# HTTP server (playbook serve)
server:
  addr: 127.0.0.1:8420

# Distributed tracing
# tracing:
#   enabled: true
#   exporter: file                 # none, file, stdout, otlp
#   file_path: ~/.config/playbook/traces/traces.jsonl
#   otlp_endpoint: localhost:4317
#   sample_rate: 1.0
`
}

// WriteDefaultConfig creates a config file at the given path with default settings and comments.
// Creates the parent directory if it doesn't exist.
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
