package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// DefaultPath is where commands look for the configuration file
const DefaultPath = "config/config.yaml"

// Config represents the complete application configuration
type Config struct {
	Paths  PathsConfig  `yaml:"paths" toml:"paths"`
	Engine EngineConfig `yaml:"engine" toml:"engine"`
	Log    LogConfig    `yaml:"log" toml:"log"`
}

// PathsConfig contains file locations
type PathsConfig struct {
	OutputDirectory string `yaml:"output_directory" toml:"output_directory"`
	HistoryDatabase string `yaml:"history_database" toml:"history_database"`
}

// EngineConfig tunes the trim engine and its worker pool
type EngineConfig struct {
	BufferSize    int  `yaml:"buffer_size" toml:"buffer_size"`
	Workers       int  `yaml:"workers" toml:"workers"`
	EagerProgress bool `yaml:"eager_progress" toml:"eager_progress"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Default returns the configuration used when no file exists
func Default() Config {
	return Config{
		Paths: PathsConfig{
			HistoryDatabase: "clipmux.db",
		},
		Engine: EngineConfig{
			BufferSize: 10 * 1024 * 1024,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Validate checks that the configuration values are usable
func (c Config) Validate() error {
	if c.Engine.BufferSize <= 0 {
		return fmt.Errorf("engine.buffer_size must be positive, got %d", c.Engine.BufferSize)
	}
	if c.Engine.Workers < 0 {
		return fmt.Errorf("engine.workers must not be negative, got %d", c.Engine.Workers)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error; got %q", c.Log.Level)
	}

	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format must be console or json, got %q", c.Log.Format)
	}

	return nil
}

// Load reads and parses the configuration from the specified file. Files
// ending in .toml are decoded as TOML, anything else as YAML. Keys missing
// from the file keep their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if isTOML(path) {
		err = toml.Unmarshal(data, &cfg)
	} else {
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}

	return &cfg, nil
}

// Save writes the configuration to the specified file, in TOML or YAML
// depending on the extension
func Save(cfg *Config, path string) error {
	var (
		data []byte
		err  error
	)
	if isTOML(path) {
		data, err = toml.Marshal(cfg)
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ResolveOutput places a bare destination name inside the output directory
func (c Config) ResolveOutput(destination string) string {
	if c.Paths.OutputDirectory == "" || filepath.IsAbs(destination) || strings.ContainsRune(destination, os.PathSeparator) {
		return destination
	}
	return filepath.Join(c.Paths.OutputDirectory, destination)
}

func (c *Config) normalize() {
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}
