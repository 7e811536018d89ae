package config

// Configuration loading and validation for tlvscope

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tonylturner/tlvscope/internal/dissector"
	"github.com/tonylturner/tlvscope/internal/errors"
	"github.com/tonylturner/tlvscope/internal/logging"
)

// DefaultPath is the config file looked up when none is named.
const DefaultPath = "tlvscope.yaml"

// EngineConfig bounds the work done per frame and the number of workers.
type EngineConfig struct {
	MaxDepth   int `yaml:"max_depth"`
	StepBudget int `yaml:"step_budget"` // 0 = unlimited
	Workers    int `yaml:"workers"`
}

// LoggingConfig selects the log level and an optional log file.
type LoggingConfig struct {
	Level  string `yaml:"level"`            // "silent", "error", "info", "verbose", "debug"
	File   string `yaml:"file,omitempty"`   // also log to this file
	Format string `yaml:"format,omitempty"` // "text" or "json"
}

// Binding aliases a registered protocol onto another table key.
type Binding struct {
	Table    string `yaml:"table"`
	Key      string `yaml:"key"`
	Protocol string `yaml:"protocol"`
}

func (b Binding) String() string {
	return fmt.Sprintf("%s=%s -> %s", b.Table, b.Key, b.Protocol)
}

// OutputConfig controls how dissections are printed.
type OutputConfig struct {
	Format string `yaml:"format"` // "text" or "json"
	Color  bool   `yaml:"color"`
	Hex    bool   `yaml:"hex"`
}

// Config represents the tlvscope configuration
type Config struct {
	Engine   EngineConfig  `yaml:"engine"`
	Logging  LoggingConfig `yaml:"logging"`
	Catalogs []string      `yaml:"catalogs,omitempty"`
	Bindings []Binding     `yaml:"bindings,omitempty"`
	Output   OutputConfig  `yaml:"output"`

	// Path is the file the config was read from, empty for defaults.
	Path string `yaml:"-"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Engine.MaxDepth == 0 {
		cfg.Engine.MaxDepth = dissector.DefaultMaxDepth
	}
	if cfg.Engine.Workers == 0 {
		cfg.Engine.Workers = 4
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Output.Format == "" {
		cfg.Output.Format = "text"
	}
}

// Load reads the configuration at path. A missing file yields the defaults
// unless explicit is set, in which case the user named the file and its
// absence is an error. Catalog paths are resolved against the directory of
// the config file.
func Load(path string, explicit bool) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return Default(), nil
		}
		if os.IsNotExist(err) {
			return nil, errors.WrapConfigError(
				fmt.Errorf("config file not found: %s", path),
				path,
			)
		}
		return nil, errors.WrapConfigError(
			fmt.Errorf("read config file: %w", err),
			path,
		)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, errors.WrapConfigError(err, path)
	}
	cfg.Path = path
	dir := filepath.Dir(path)
	for i, c := range cfg.Catalogs {
		if !filepath.IsAbs(c) {
			cfg.Catalogs[i] = filepath.Join(dir, c)
		}
	}
	return cfg, nil
}

// Parse decodes, defaults and validates a YAML document.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	applyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// Validate checks a configuration whose defaults have been applied.
func Validate(cfg *Config) error {
	if cfg.Engine.MaxDepth < 0 {
		return fmt.Errorf("engine.max_depth must be >= 0, got %d", cfg.Engine.MaxDepth)
	}
	if cfg.Engine.StepBudget < 0 {
		return fmt.Errorf("engine.step_budget must be >= 0, got %d", cfg.Engine.StepBudget)
	}
	if cfg.Engine.Workers < 0 {
		return fmt.Errorf("engine.workers must be >= 0, got %d", cfg.Engine.Workers)
	}
	if _, err := logging.ParseLevel(cfg.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %q", cfg.Logging.Format)
	}
	if cfg.Output.Format != "text" && cfg.Output.Format != "json" {
		return fmt.Errorf("output.format must be 'text' or 'json', got %q", cfg.Output.Format)
	}
	for i, c := range cfg.Catalogs {
		if strings.TrimSpace(c) == "" {
			return fmt.Errorf("catalogs[%d]: path is required", i)
		}
	}
	seen := make(map[string]bool)
	for i, b := range cfg.Bindings {
		if err := validateBinding(b, i); err != nil {
			return err
		}
		id := b.Table + "=" + b.Key
		if seen[id] {
			return fmt.Errorf("bindings[%d]: duplicate binding for %s", i, id)
		}
		seen[id] = true
	}
	return nil
}

func validateBinding(b Binding, index int) error {
	if b.Table == "" {
		return fmt.Errorf("bindings[%d]: table is required", index)
	}
	if b.Key == "" {
		return fmt.Errorf("bindings[%d]: key is required", index)
	}
	if b.Protocol == "" {
		return fmt.Errorf("bindings[%d]: protocol is required", index)
	}
	return nil
}

// Limits returns the per-frame limits of the engine section.
func (c *Config) Limits() dissector.Limits {
	return dissector.Limits{MaxDepth: c.Engine.MaxDepth, StepBudget: c.Engine.StepBudget}
}

// ApplyBindings adds the configured bindings to b. Unknown tables or
// protocols surface as errors from b.Build.
func (c *Config) ApplyBindings(b *dissector.Builder) {
	for _, bind := range c.Bindings {
		b.Alias(bind.Table, bind.Key, bind.Protocol)
	}
}

// NewLogger builds the logger described by the logging section.
func (c *Config) NewLogger() (*logging.Logger, error) {
	level, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		return nil, err
	}
	return logging.NewLoggerWithOptions(level, c.Logging.File, c.Logging.Format, 1)
}
