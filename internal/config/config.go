// Package config loads cascade configuration from YAML with environment
// overrides. A missing file yields the defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/talgya/cascade/internal/buffer"
	"github.com/talgya/cascade/internal/params"
)

// DefaultPath is where the CLI looks for a config file.
const DefaultPath = "cascade.yaml"

// Config holds all cascade configuration.
type Config struct {
	Cascade CascadeConfig `yaml:"cascade"`
	Buffer  BufferConfig  `yaml:"buffer"`
	Storage StorageConfig `yaml:"storage"`
	API     APIConfig     `yaml:"api"`
	Logging LoggingConfig `yaml:"logging"`
}

// CascadeConfig configures the run parameters.
type CascadeConfig struct {
	Alpha  float64 `yaml:"alpha"`
	Layers int     `yaml:"layers"`
	Phase  string  `yaml:"phase"` // layer, flat
}

// BufferConfig selects the buffer provider and dispersion strategy.
type BufferConfig struct {
	Provider string `yaml:"provider"` // heap, pool, noise
	Seed     int64  `yaml:"seed"`
	Parallel bool   `yaml:"parallel"`
	Workers  int    `yaml:"workers"`
}

// StorageConfig configures run persistence.
type StorageConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// APIConfig configures the HTTP API.
type APIConfig struct {
	Port     int    `yaml:"port"`
	AdminKey string `yaml:"admin_key"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json, auto
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Cascade: CascadeConfig{
			Alpha:  params.DefaultAlpha,
			Layers: params.DefaultLayers,
			Phase:  params.PhaseLayer.String(),
		},
		Buffer: BufferConfig{
			Provider: string(buffer.KindHeap),
			Seed:     42,
			Parallel: false,
			Workers:  4,
		},
		Storage: StorageConfig{
			Enabled: true,
			Path:    "data/cascade.db",
		},
		API: APIConfig{
			Port: 8033,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// Load loads configuration from a YAML file and applies env overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides reads CASCADE_* variables. Empty variables are ignored.
func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("CASCADE_ALPHA"); v != "" {
		alpha, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("CASCADE_ALPHA %q: %w", v, params.ErrInvalidArgument)
		}
		c.Cascade.Alpha = alpha
	}
	if v := os.Getenv("CASCADE_LAYERS"); v != "" {
		layers, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CASCADE_LAYERS %q: %w", v, params.ErrInvalidArgument)
		}
		c.Cascade.Layers = layers
	}
	if v := os.Getenv("CASCADE_DB"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("CASCADE_ADMIN_KEY"); v != "" {
		c.API.AdminKey = v
	}
	if v := os.Getenv("CASCADE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	return nil
}

// Params converts the cascade section into validated run parameters.
func (c *Config) Params() (params.Params, error) {
	phase, err := params.ParsePhaseMode(c.Cascade.Phase)
	if err != nil {
		return params.Params{}, err
	}
	p := params.Params{
		Alpha:  c.Cascade.Alpha,
		Layers: c.Cascade.Layers,
		Phase:  phase,
	}
	if err := p.Validate(); err != nil {
		return params.Params{}, err
	}
	return p, nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if _, err := c.Params(); err != nil {
		return fmt.Errorf("cascade: %w", err)
	}
	switch buffer.Kind(c.Buffer.Provider) {
	case "", buffer.KindHeap, buffer.KindPool, buffer.KindNoise:
	default:
		return fmt.Errorf("buffer provider %q: %w", c.Buffer.Provider, params.ErrInvalidArgument)
	}
	if c.Buffer.Parallel && c.Buffer.Workers < 1 {
		return fmt.Errorf("buffer workers %d: %w", c.Buffer.Workers, params.ErrInvalidArgument)
	}
	if c.Storage.Enabled && c.Storage.Path == "" {
		return fmt.Errorf("storage path is empty: %w", params.ErrInvalidArgument)
	}
	if c.API.Port < 0 || c.API.Port > 65535 {
		return fmt.Errorf("api port %d: %w", c.API.Port, params.ErrInvalidArgument)
	}
	return nil
}
