package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		name     string
		got      interface{}
		expected interface{}
	}{
		{"Workers", cfg.Workers, runtime.NumCPU()},
		{"CacheSize", cfg.CacheSize, 1024},
		{"CacheFile", cfg.CacheFile, ""},
		{"MaxVisits", cfg.MaxVisits, 256},
		{"Format", cfg.Format, "text"},
		{"LogLevel", cfg.LogLevel, "info"},
		{"JSONLogs", cfg.JSONLogs, false},
		{"Verbose", cfg.Verbose, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("DefaultConfig().%s = %v, want %v", tt.name, tt.got, tt.expected)
			}
		})
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() = %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(c *Config)
		errContains string
	}{
		{name: "defaults", mutate: func(c *Config) {}},
		{name: "cache disabled", mutate: func(c *Config) { c.CacheSize = 0 }},
		{name: "zero workers", mutate: func(c *Config) { c.Workers = 0 }, errContains: "workers"},
		{name: "negative cache", mutate: func(c *Config) { c.CacheSize = -1 }, errContains: "cache_size"},
		{name: "zero visits", mutate: func(c *Config) { c.MaxVisits = 0 }, errContains: "max_visits"},
		{name: "bad format", mutate: func(c *Config) { c.Format = "xml" }, errContains: "invalid format"},
		{name: "bad level", mutate: func(c *Config) { c.LogLevel = "trace" }, errContains: "invalid log_level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errContains == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q", tt.errContains)
			}
			if !strings.Contains(err.Error(), tt.errContains) {
				t.Errorf("Validate() error = %v, want it to contain %q", err, tt.errContains)
			}
		})
	}
}

func TestSaveAndLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Workers = 3
	cfg.CacheFile = "/tmp/bcf.cache"
	cfg.Format = "yaml"
	cfg.JSONLogs = true

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}
	if *loaded != *cfg {
		t.Errorf("LoadFromFile() = %+v, want %+v", loaded, cfg)
	}
}

func TestLoadFromFile_PartialKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("workers: 2\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}
	if cfg.Workers != 2 {
		t.Errorf("Workers = %d, want 2", cfg.Workers)
	}
	if cfg.MaxVisits != 256 {
		t.Errorf("MaxVisits = %d, want default 256", cfg.MaxVisits)
	}
}

func TestLoadFromFile_Errors(t *testing.T) {
	dir := t.TempDir()

	if _, err := LoadFromFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("workers: [\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFromFile(bad); err == nil || !strings.Contains(err.Error(), "failed to parse") {
		t.Errorf("expected parse error, got %v", err)
	}

	invalid := filepath.Join(dir, "invalid.yaml")
	if err := os.WriteFile(invalid, []byte("format: xml\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFromFile(invalid); err == nil {
		t.Error("expected validation error")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("BCF_WORKERS", "7")
	t.Setenv("BCF_CACHE_SIZE", "0")
	t.Setenv("BCF_CACHE_FILE", "/var/cache/bcf")
	t.Setenv("BCF_MAX_VISITS", "nope")
	t.Setenv("BCF_FORMAT", "cbor")
	t.Setenv("BCF_LOG_LEVEL", "debug")
	t.Setenv("BCF_JSON_LOGS", "yes")
	t.Setenv("BCF_VERBOSE", "1")

	cfg := DefaultConfig()
	applyEnvOverrides(cfg)

	if cfg.Workers != 7 {
		t.Errorf("Workers = %d, want 7", cfg.Workers)
	}
	if cfg.CacheSize != 0 {
		t.Errorf("CacheSize = %d, want 0", cfg.CacheSize)
	}
	if cfg.CacheFile != "/var/cache/bcf" {
		t.Errorf("CacheFile = %q", cfg.CacheFile)
	}
	if cfg.MaxVisits != 256 {
		t.Errorf("MaxVisits = %d, unparsable override should be ignored", cfg.MaxVisits)
	}
	if cfg.Format != "cbor" || cfg.LogLevel != "debug" {
		t.Errorf("Format/LogLevel = %q/%q", cfg.Format, cfg.LogLevel)
	}
	if !cfg.JSONLogs || !cfg.Verbose {
		t.Errorf("JSONLogs/Verbose = %v/%v, want true/true", cfg.JSONLogs, cfg.Verbose)
	}
}

func TestLoad_ProjectOverridesGlobal(t *testing.T) {
	home := t.TempDir()
	project := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("BCF_WORKERS", "")

	if err := os.MkdirAll(filepath.Join(home, ".bcf"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(home, ".bcf", "config.yaml"), []byte("workers: 2\nformat: json\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(project, ".bcf"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(project, ".bcf", "config.yaml"), []byte("workers: 5\n"), 0644); err != nil {
		t.Fatal(err)
	}

	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(project); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(wd)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Workers != 5 {
		t.Errorf("Workers = %d, want project value 5", cfg.Workers)
	}
	if cfg.Format != "json" {
		t.Errorf("Format = %q, want global value json", cfg.Format)
	}
}
