package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Defaults applied by ApplyDefaults.
const (
	DefaultAddr          = ":8080"
	DefaultGrammar       = "steps"
	DefaultLogLevel      = "info"
	DefaultMaxQueueDepth = 32
	DefaultMaxWait       = 30 * time.Second
	DefaultMaxBodyBytes  = 1 << 20
)

// Duration is a time.Duration that reads as "120s" in every format.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) { return []byte(time.Duration(d).String()), nil }

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return fmt.Errorf("duration %q: %w", b, err)
	}
	*d = Duration(v)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Tier is one row of the acceleration table.
type Tier struct {
	MinMemoryMB    int64 `json:"min_memory_mb" yaml:"min_memory_mb" toml:"min_memory_mb"`
	DiscreteLayers int   `json:"discrete_layers" yaml:"discrete_layers" toml:"discrete_layers"`
	UnifiedLayers  int   `json:"unified_layers" yaml:"unified_layers" toml:"unified_layers"`
}

// Device overrides probed device values.
type Device struct {
	MemoryMB    *int64 `json:"memory_mb" yaml:"memory_mb" toml:"memory_mb"`
	Accelerated *bool  `json:"accelerated" yaml:"accelerated" toml:"accelerated"`
	Unified     *bool  `json:"unified" yaml:"unified" toml:"unified"`
}

// Cloud configures the remote backend.
type Cloud struct {
	StepsURL       string   `json:"steps_url" yaml:"steps_url" toml:"steps_url"`
	RawURL         string   `json:"raw_url" yaml:"raw_url" toml:"raw_url"`
	APIKey         string   `json:"api_key" yaml:"api_key" toml:"api_key"`
	Legacy         bool     `json:"legacy" yaml:"legacy" toml:"legacy"`
	ConnectTimeout Duration `json:"connect_timeout" yaml:"connect_timeout" toml:"connect_timeout"`
}

// CORS enables cross-origin access to the HTTP API.
type CORS struct {
	Enabled bool     `json:"enabled" yaml:"enabled" toml:"enabled"`
	Origins []string `json:"origins" yaml:"origins" toml:"origins"`
	Methods []string `json:"methods" yaml:"methods" toml:"methods"`
	Headers []string `json:"headers" yaml:"headers" toml:"headers"`
}

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and are replaced by ApplyDefaults.
type Config struct {
	Addr      string `json:"addr" yaml:"addr" toml:"addr"`
	ModelsDir string `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	Model     string `json:"model" yaml:"model" toml:"model"`
	// RawAdapter selects free-text generation: "engine" (default) or "llama".
	RawAdapter string `json:"raw_adapter" yaml:"raw_adapter" toml:"raw_adapter"`

	Grammar      string   `json:"grammar" yaml:"grammar" toml:"grammar"`
	BundleRoot   string   `json:"bundle_root" yaml:"bundle_root" toml:"bundle_root"`
	ChatTemplate string   `json:"chat_template" yaml:"chat_template" toml:"chat_template"`
	SystemPrompt string   `json:"system_prompt" yaml:"system_prompt" toml:"system_prompt"`
	Terminators  []string `json:"terminators" yaml:"terminators" toml:"terminators"`

	ContextCeiling int      `json:"context_ceiling" yaml:"context_ceiling" toml:"context_ceiling"`
	MaxAttempts    int      `json:"max_attempts" yaml:"max_attempts" toml:"max_attempts"`
	AttemptTimeout Duration `json:"attempt_timeout" yaml:"attempt_timeout" toml:"attempt_timeout"`
	Acceleration   []Tier   `json:"acceleration" yaml:"acceleration" toml:"acceleration"`
	Device         Device   `json:"device" yaml:"device" toml:"device"`

	Cloud Cloud `json:"cloud" yaml:"cloud" toml:"cloud"`

	MaxQueueDepth int      `json:"max_queue_depth" yaml:"max_queue_depth" toml:"max_queue_depth"`
	MaxWait       Duration `json:"max_wait" yaml:"max_wait" toml:"max_wait"`
	MaxBodyBytes  int64    `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
	CORS          CORS     `json:"cors" yaml:"cors" toml:"cors"`
	LogLevel      string   `json:"log_level" yaml:"log_level" toml:"log_level"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// ApplyDefaults fills unset fields. Engine-level tunables (ceiling,
// attempts, timeouts, tiers) keep their zero value and are defaulted by the
// engine itself.
func (c *Config) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.Grammar == "" {
		c.Grammar = DefaultGrammar
	}
	if c.RawAdapter == "" {
		c.RawAdapter = "engine"
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.MaxQueueDepth <= 0 {
		c.MaxQueueDepth = DefaultMaxQueueDepth
	}
	if c.MaxWait <= 0 {
		c.MaxWait = Duration(DefaultMaxWait)
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
}

// Validate reports settings that can never work.
func (c Config) Validate() error {
	switch c.RawAdapter {
	case "", "engine", "llama":
	default:
		return fmt.Errorf("raw_adapter must be engine or llama, got %q", c.RawAdapter)
	}
	if c.ContextCeiling < 0 || c.MaxAttempts < 0 {
		return fmt.Errorf("context_ceiling and max_attempts must not be negative")
	}
	if c.AttemptTimeout < 0 || c.MaxWait < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	if c.MaxQueueDepth < 0 || c.MaxBodyBytes < 0 {
		return fmt.Errorf("max_queue_depth and max_body_bytes must not be negative")
	}
	for i, t := range c.Acceleration {
		if t.MinMemoryMB < 0 || t.DiscreteLayers < 0 || t.UnifiedLayers < 0 {
			return fmt.Errorf("acceleration[%d]: values must not be negative", i)
		}
		if i > 0 && t.MinMemoryMB <= c.Acceleration[i-1].MinMemoryMB {
			return fmt.Errorf("acceleration[%d]: min_memory_mb must increase", i)
		}
	}
	return nil
}
