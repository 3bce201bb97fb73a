package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Formats accepted by the format setting.
var Formats = []string{"text", "json", "yaml", "msgpack", "cbor"}

// Config holds all configuration for bcf
type Config struct {
	// Workers bounds concurrent method analyses in batch mode
	Workers int `yaml:"workers" env:"BCF_WORKERS"`

	// CacheSize is the maximum number of cached method results; 0 disables caching
	CacheSize int `yaml:"cache_size" env:"BCF_CACHE_SIZE"`

	// CacheFile persists the result cache between runs when set
	CacheFile string `yaml:"cache_file" env:"BCF_CACHE_FILE"`

	// MaxVisits bounds dataflow revisits of a single block
	MaxVisits int `yaml:"max_visits" env:"BCF_MAX_VISITS"`

	// Output
	Format string `yaml:"format" env:"BCF_FORMAT"`

	// Logging
	LogLevel string `yaml:"log_level" env:"BCF_LOG_LEVEL"`
	JSONLogs bool   `yaml:"json_logs" env:"BCF_JSON_LOGS"`
	Verbose  bool   `yaml:"verbose" env:"BCF_VERBOSE"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Workers:   runtime.NumCPU(),
		CacheSize: 1024,
		CacheFile: "",
		MaxVisits: 256,
		Format:    "text",
		LogLevel:  "info",
		JSONLogs:  false,
		Verbose:   false,
	}
}

// GlobalConfigFilePath returns the global config file path (~/.bcf/config.yaml)
func GlobalConfigFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".bcf/config.yaml"
	}
	return filepath.Join(home, ".bcf", "config.yaml")
}

// ProjectConfigFilePath returns the project-level config file path (./.bcf/config.yaml)
func ProjectConfigFilePath() string {
	return ".bcf/config.yaml"
}

// Load reads configuration with the following priority (highest to lowest):
// 1. Environment variables
// 2. Project-level config (./.bcf/config.yaml)
// 3. Global config (~/.bcf/config.yaml)
// 4. Defaults
func Load() (*Config, error) {
	cfg := DefaultConfig()

	for _, path := range []string{GlobalConfigFilePath(), ProjectConfigFilePath()} {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile reads configuration from a specific YAML file path
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	if data, err := os.ReadFile(path); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to the specified YAML file path.
// It creates parent directories if they don't exist.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BCF_WORKERS"); v != "" {
		if i := parseInt(v); i > 0 {
			cfg.Workers = i
		}
	}
	if v := os.Getenv("BCF_CACHE_SIZE"); v != "" {
		if i := parseInt(v); i >= 0 {
			cfg.CacheSize = i
		}
	}
	if v := os.Getenv("BCF_CACHE_FILE"); v != "" {
		cfg.CacheFile = v
	}
	if v := os.Getenv("BCF_MAX_VISITS"); v != "" {
		if i := parseInt(v); i > 0 {
			cfg.MaxVisits = i
		}
	}
	if v := os.Getenv("BCF_FORMAT"); v != "" {
		cfg.Format = v
	}
	if v := os.Getenv("BCF_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("BCF_JSON_LOGS"); v != "" {
		cfg.JSONLogs = parseBool(v)
	}
	if v := os.Getenv("BCF_VERBOSE"); v != "" {
		cfg.Verbose = parseBool(v)
	}
}

// Validate checks that the configuration has valid required fields
func (c *Config) Validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("cache_size must be non-negative")
	}
	if c.MaxVisits <= 0 {
		return fmt.Errorf("max_visits must be positive")
	}

	validFormat := false
	for _, f := range Formats {
		if c.Format == f {
			validFormat = true
			break
		}
	}
	if !validFormat {
		return fmt.Errorf("invalid format: %s (must be one of text, json, yaml, msgpack, cbor)", c.Format)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level: %s (must be debug, info, warn or error)", c.LogLevel)
	}

	return nil
}

// parseInt attempts to parse a string as int, returning -1 on failure
func parseInt(s string) int {
	var i int
	if _, err := fmt.Sscanf(s, "%d", &i); err != nil {
		return -1
	}
	return i
}

func parseBool(s string) bool {
	return s == "true" || s == "1" || s == "yes"
}
