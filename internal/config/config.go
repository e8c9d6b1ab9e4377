// Package config provides configuration types and defaults for assetcache.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zjrosen/assetcache/internal/log"
)

// Config holds all configuration options for assetcache.
type Config struct {
	Root       string         `mapstructure:"root"`
	Extensions []string       `mapstructure:"extensions"` // empty = every registered kind
	Scan       ScanConfig     `mapstructure:"scan"`
	Watch      WatchConfig    `mapstructure:"watch"`
	Index      IndexConfig    `mapstructure:"index"`
	Envelope   EnvelopeConfig `mapstructure:"envelope"`
	Tracing    TracingConfig  `mapstructure:"tracing"`
	Log        LogConfig      `mapstructure:"log"`
}

// ScanConfig controls tree population.
type ScanConfig struct {
	// Concurrency bounds how many files are processed at once.
	// Default: 4
	Concurrency int `mapstructure:"concurrency"`
}

// WatchConfig controls the file watcher used by `assetcache watch`.
type WatchConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Debounce time.Duration `mapstructure:"debounce"`
}

// IndexConfig controls the persistent location index.
type IndexConfig struct {
	// Enabled keeps identifier/path bindings in a sqlite database so ids
	// survive restarts.
	Enabled bool `mapstructure:"enabled"`

	// Path of the database file. Relative paths are resolved against Root.
	// Default: .assetcache/index.db
	Path string `mapstructure:"path"`
}

// EnvelopeConfig controls envelope output.
type EnvelopeConfig struct {
	Pretty bool `mapstructure:"pretty"`
}

// TracingConfig holds distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether tracing is active.
	// Default: false
	Enabled bool `mapstructure:"enabled"`

	// Exporter selects the trace export backend.
	// Options: "none", "file", "stdout", "otlp"
	// Default: "file"
	Exporter string `mapstructure:"exporter"`

	// FilePath is the output file for "file" exporter.
	// Default: ~/.config/assetcache/traces/traces.jsonl
	FilePath string `mapstructure:"file_path"`

	// OTLPEndpoint is the collector endpoint for "otlp" exporter.
	// Default: "localhost:4317"
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`

	// SampleRate controls trace sampling (0.0 to 1.0).
	// Default: 1.0
	SampleRate float64 `mapstructure:"sample_rate"`
}

// LogConfig controls the debug log.
type LogConfig struct {
	Path  string `mapstructure:"path"`  // empty = no log file unless --debug
	Level string `mapstructure:"level"` // debug, info, warn, error
}

// DefaultIndexPath is the index location relative to the scanned root.
const DefaultIndexPath = ".assetcache/index.db"

// DefaultTracesFilePath returns the default path for trace file export.
// Returns ~/.config/assetcache/traces/traces.jsonl or empty string if home dir unavailable.
func DefaultTracesFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "assetcache", "traces", "traces.jsonl")
}

// IndexPath returns the index database path with relative paths resolved
// against the root.
func (c Config) IndexPath() string {
	p := c.Index.Path
	if p == "" {
		p = DefaultIndexPath
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Root, p)
}

// Validate checks the whole configuration.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Root) == "" {
		return fmt.Errorf("root is required")
	}
	for i, ext := range c.Extensions {
		if strings.TrimSpace(strings.TrimPrefix(ext, ".")) == "" {
			return fmt.Errorf("extensions[%d]: empty extension", i)
		}
	}
	if c.Scan.Concurrency < 1 {
		return fmt.Errorf("scan.concurrency must be at least 1, got %d", c.Scan.Concurrency)
	}
	if c.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must not be negative, got %s", c.Watch.Debounce)
	}
	if err := ValidateLog(c.Log); err != nil {
		return err
	}
	return ValidateTracing(c.Tracing)
}

// ValidateLog checks the log level name.
func ValidateLog(l LogConfig) error {
	switch strings.ToLower(l.Level) {
	case "", "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("log.level must be \"debug\", \"info\", \"warn\", or \"error\", got %q", l.Level)
	}
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

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		Root: ".",
		Scan: ScanConfig{
			Concurrency: 4,
		},
		Watch: WatchConfig{
			Enabled:  true,
			Debounce: 200 * time.Millisecond,
		},
		Index: IndexConfig{
			Enabled: true,
			Path:    DefaultIndexPath,
		},
		Envelope: EnvelopeConfig{
			Pretty: true,
		},
		Tracing: TracingConfig{
			Enabled:      false,
			Exporter:     "file",
			FilePath:     DefaultTracesFilePath(),
			OTLPEndpoint: "localhost:4317",
			SampleRate:   1.0,
		},
		Log: LogConfig{
			Level: "debug",
		},
	}
}

// DefaultConfigTemplate returns the default configuration as a YAML string with comments.
func DefaultConfigTemplate() string {
	return `# assetcache configuration

# Directory that is scanned and watched. Relative to the working directory.
root: .

# Source extensions to track. Empty tracks every registered kind
# (see: assetcache kinds).
extensions: []

scan:
  # Files processed in parallel while populating.
  concurrency: 4

watch:
  enabled: true
  # Quiet period before a burst of file events is handled.
  debounce: 200ms

# Persistent identifier <-> path bindings. Without the index every run
# mints fresh identifiers for files that do not embed one.
index:
  enabled: true
  path: .assetcache/index.db

envelope:
  # Indent exported envelopes.
  pretty: true

log:
  # Log file path. Empty logs only with --debug (to stderr).
  path: ""
  level: debug

# Tracing configuration
# tracing:
#   enabled: false
#   exporter: file          # none, file, stdout, otlp
#   file_path: ~/.config/assetcache/traces/traces.jsonl
#   otlp_endpoint: localhost:4317
#   sample_rate: 1.0
#
# Example: Send traces to Jaeger via OTLP
# tracing:
#   enabled: true
#   exporter: otlp
#   otlp_endpoint: jaeger.internal:4317
#   sample_rate: 0.1
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
