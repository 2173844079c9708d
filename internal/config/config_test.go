package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestDefaultConfig verifies default configuration values
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.MaxConcurrency != 4 {
		t.Errorf("MaxConcurrency = %d, want 4", cfg.MaxConcurrency)
	}
	if cfg.TaskTimeout != 30*time.Minute {
		t.Errorf("TaskTimeout = %v, want 30m", cfg.TaskTimeout)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if cfg.EnvPrefix != "BRIEFFLOW" {
		t.Errorf("EnvPrefix = %q, want BRIEFFLOW", cfg.EnvPrefix)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}

// TestLoadConfigValidFile tests loading a valid YAML config file
func TestLoadConfigValidFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `max_concurrency: 8
task_timeout: 5m
max_retries: 0
log_level: debug
database: postgres://localhost/briefflow
environment: production
review_poll_interval: 500ms
metrics_addr: ":9090"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.MaxConcurrency != 8 {
		t.Errorf("MaxConcurrency = %d, want 8", cfg.MaxConcurrency)
	}
	if cfg.TaskTimeout != 5*time.Minute {
		t.Errorf("TaskTimeout = %v, want 5m", cfg.TaskTimeout)
	}
	if cfg.MaxRetries != 0 {
		t.Errorf("MaxRetries = %d, want 0 (explicitly set)", cfg.MaxRetries)
	}
	if cfg.Database != "postgres://localhost/briefflow" {
		t.Errorf("Database = %q", cfg.Database)
	}
	if cfg.Environment != "production" {
		t.Errorf("Environment = %q, want production", cfg.Environment)
	}
	if cfg.ReviewPollInterval != 500*time.Millisecond {
		t.Errorf("ReviewPollInterval = %v, want 500ms", cfg.ReviewPollInterval)
	}
	if cfg.MetricsAddr != ":9090" {
		t.Errorf("MetricsAddr = %q", cfg.MetricsAddr)
	}
	// untouched keys keep defaults
	if cfg.SettingsDir != "configs" {
		t.Errorf("SettingsDir = %q, want default", cfg.SettingsDir)
	}
}

// TestLoadConfigFileNotExists tests fallback to defaults when file doesn't exist
func TestLoadConfigFileNotExists(t *testing.T) {
	cfg, err := LoadConfig("/nonexistent/path/config.yaml")
	if err != nil {
		t.Fatalf("LoadConfig() should not error on missing file, got: %v", err)
	}
	if cfg.MaxConcurrency != 4 {
		t.Errorf("MaxConcurrency = %d, want 4 (default)", cfg.MaxConcurrency)
	}
}

// TestLoadConfigInvalidYAML tests error handling for malformed YAML
func TestLoadConfigInvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	invalidYAML := `
max_concurrency: 5
task_timeout: [this is not valid
`
	if err := os.WriteFile(configPath, []byte(invalidYAML), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	if _, err := LoadConfig(configPath); err == nil {
		t.Error("LoadConfig() expected error for invalid YAML, got nil")
	}
}

func TestLoadConfigInvalidDuration(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("task_timeout: soon\n"), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	if _, err := LoadConfig(configPath); err == nil {
		t.Error("expected error for invalid duration")
	}
}

func TestLoadConfigFromDir(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(tmpDir, ".briefflow"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, ".briefflow", "config.yaml"), []byte("log_level: warn\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfigFromDir(tmpDir)
	if err != nil {
		t.Fatalf("LoadConfigFromDir() error = %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn", cfg.LogLevel)
	}
}

func TestMergeWithFlags(t *testing.T) {
	cfg := DefaultConfig()
	maxConc := 2
	db := "other.db"
	env := "staging"
	empty := ""

	cfg.MergeWithFlags(&maxConc, &db, nil, &env, &empty, nil, nil)

	if cfg.MaxConcurrency != 2 {
		t.Errorf("MaxConcurrency = %d, want 2", cfg.MaxConcurrency)
	}
	if cfg.Database != "other.db" {
		t.Errorf("Database = %q", cfg.Database)
	}
	if cfg.Environment != "staging" {
		t.Errorf("Environment = %q", cfg.Environment)
	}
	if cfg.LogDir != DefaultConfig().LogDir {
		t.Errorf("empty flag should not override LogDir, got %q", cfg.LogDir)
	}

	negative := -1
	cfg.MergeWithFlags(&negative, nil, nil, nil, nil, nil, nil)
	if cfg.MaxConcurrency != 2 {
		t.Errorf("-1 means use config, got %d", cfg.MaxConcurrency)
	}
}

func TestApplyEnvironment(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ApplyEnvironment(func(key string) string {
		if key == "BRIEFFLOW_ENV" {
			return "production"
		}
		return ""
	})
	if cfg.Environment != "production" {
		t.Errorf("Environment = %q, want production", cfg.Environment)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"zero concurrency", func(c *Config) { c.MaxConcurrency = 0 }, true},
		{"negative retries", func(c *Config) { c.MaxRetries = -1 }, true},
		{"negative timeout", func(c *Config) { c.TaskTimeout = -time.Second }, true},
		{"zero poll interval", func(c *Config) { c.ReviewPollInterval = 0 }, true},
		{"empty database", func(c *Config) { c.Database = "" }, true},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, true},
		{"trace level", func(c *Config) { c.LogLevel = "trace" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadSettings(t *testing.T) {
	tmpDir := t.TempDir()
	base := "summarize:\n  max_words: 120\n  llm:\n    model: llama3\n"
	env := "summarize:\n  llm:\n    model: llama3:70b\n"
	if err := os.WriteFile(filepath.Join(tmpDir, "settings.yaml"), []byte(base), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, "settings.production.yaml"), []byte(env), 0644); err != nil {
		t.Fatal(err)
	}

	s, err := LoadSettings(tmpDir, "production")
	if err != nil {
		t.Fatalf("LoadSettings() error = %v", err)
	}

	eff, err := s.Resolver(nil, "").Resolve(summarySchema, "summarization", "summarize", nil, nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got := eff.String("llm.model", ""); got != "llama3:70b" {
		t.Errorf("llm.model = %q, want environment value", got)
	}
	if got := eff.Int("max_words", 0); got != 120 {
		t.Errorf("max_words = %d, want 120", got)
	}

	missing, err := LoadSettings(t.TempDir(), "development")
	if err != nil {
		t.Fatalf("missing settings files should not error: %v", err)
	}
	if len(missing.Base) != 0 || len(missing.Environment) != 0 {
		t.Errorf("expected empty settings")
	}
}

func TestLoadSettingsMalformed(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmpDir, "settings.yaml"), []byte("a: [b"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadSettings(tmpDir, ""); err == nil {
		t.Error("expected error for malformed settings")
	}
}
