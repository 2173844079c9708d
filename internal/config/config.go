package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultEnvPrefix is the prefix of environment variables that override task parameters.
const DefaultEnvPrefix = "BRIEFFLOW"

// Config represents briefflow configuration options
type Config struct {
	// MaxConcurrency is the number of worker slots for independent tasks
	MaxConcurrency int `yaml:"max_concurrency"`

	// TaskTimeout bounds a single task attempt when the task does not set its own (0 = none)
	TaskTimeout time.Duration `yaml:"task_timeout"`

	// MaxRetries is the default retry bound for recoverable task failures
	MaxRetries int `yaml:"max_retries"`

	// LogLevel sets the logging verbosity (trace, debug, info, warn, error)
	LogLevel string `yaml:"log_level"`

	// LogDir is the directory where run logs will be written
	LogDir string `yaml:"log_dir"`

	// Database is the ledger location: a SQLite file path or a postgres:// URL
	Database string `yaml:"database"`

	// WorkflowFile is the workflow definition file (YAML or HCL)
	WorkflowFile string `yaml:"workflow_file"`

	// SettingsDir holds settings.yaml and settings.<environment>.yaml
	SettingsDir string `yaml:"settings_dir"`

	// Environment selects the environment-specific settings file
	Environment string `yaml:"environment"`

	// EnvPrefix is the prefix for task parameter environment variables
	EnvPrefix string `yaml:"env_prefix"`

	// ReviewPollInterval is how often a waiting review checks the ledger for decisions
	ReviewPollInterval time.Duration `yaml:"review_poll_interval"`

	// AMQPURL enables run event publishing when set
	AMQPURL string `yaml:"amqp_url"`

	// MetricsAddr enables the Prometheus listener when set (e.g. ":9090")
	MetricsAddr string `yaml:"metrics_addr"`
}

// DefaultConfig returns a Config with sensible default values
func DefaultConfig() *Config {
	return &Config{
		MaxConcurrency:     4,
		TaskTimeout:        30 * time.Minute,
		MaxRetries:         2,
		LogLevel:           "info",
		LogDir:             filepath.Join(".briefflow", "logs"),
		Database:           filepath.Join(".briefflow", "ledger.db"),
		WorkflowFile:       filepath.Join("configs", "workflow_configs.yaml"),
		SettingsDir:        "configs",
		Environment:        "development",
		EnvPrefix:          DefaultEnvPrefix,
		ReviewPollInterval: 2 * time.Second,
	}
}

// LoadConfig loads configuration from the specified file path
// If the file doesn't exist, returns default configuration without error
// If the file exists but is malformed, returns an error
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Durations are strings in YAML; only keys present in the file are applied
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	type yamlConfig struct {
		MaxConcurrency     int    `yaml:"max_concurrency"`
		TaskTimeout        string `yaml:"task_timeout"`
		MaxRetries         int    `yaml:"max_retries"`
		LogLevel           string `yaml:"log_level"`
		LogDir             string `yaml:"log_dir"`
		Database           string `yaml:"database"`
		WorkflowFile       string `yaml:"workflow_file"`
		SettingsDir        string `yaml:"settings_dir"`
		Environment        string `yaml:"environment"`
		EnvPrefix          string `yaml:"env_prefix"`
		ReviewPollInterval string `yaml:"review_poll_interval"`
		AMQPURL            string `yaml:"amqp_url"`
		MetricsAddr        string `yaml:"metrics_addr"`
	}

	var yamlCfg yamlConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	present := func(key string) bool {
		_, ok := raw[key]
		return ok
	}

	if present("max_concurrency") {
		cfg.MaxConcurrency = yamlCfg.MaxConcurrency
	}
	if present("task_timeout") {
		d, err := parseDuration(yamlCfg.TaskTimeout)
		if err != nil {
			return nil, fmt.Errorf("invalid task_timeout format %q: %w", yamlCfg.TaskTimeout, err)
		}
		cfg.TaskTimeout = d
	}
	if present("max_retries") {
		cfg.MaxRetries = yamlCfg.MaxRetries
	}
	if yamlCfg.LogLevel != "" {
		cfg.LogLevel = yamlCfg.LogLevel
	}
	if yamlCfg.LogDir != "" {
		cfg.LogDir = yamlCfg.LogDir
	}
	if yamlCfg.Database != "" {
		cfg.Database = yamlCfg.Database
	}
	if yamlCfg.WorkflowFile != "" {
		cfg.WorkflowFile = yamlCfg.WorkflowFile
	}
	if yamlCfg.SettingsDir != "" {
		cfg.SettingsDir = yamlCfg.SettingsDir
	}
	if yamlCfg.Environment != "" {
		cfg.Environment = yamlCfg.Environment
	}
	if yamlCfg.EnvPrefix != "" {
		cfg.EnvPrefix = yamlCfg.EnvPrefix
	}
	if present("review_poll_interval") {
		d, err := parseDuration(yamlCfg.ReviewPollInterval)
		if err != nil {
			return nil, fmt.Errorf("invalid review_poll_interval format %q: %w", yamlCfg.ReviewPollInterval, err)
		}
		cfg.ReviewPollInterval = d
	}
	if present("amqp_url") {
		cfg.AMQPURL = yamlCfg.AMQPURL
	}
	if present("metrics_addr") {
		cfg.MetricsAddr = yamlCfg.MetricsAddr
	}

	return cfg, nil
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" || s == "0" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

// LoadConfigFromDir loads configuration from .briefflow/config.yaml in the specified directory
// If the directory or file doesn't exist, returns default configuration without error
func LoadConfigFromDir(dir string) (*Config, error) {
	return LoadConfig(filepath.Join(dir, ".briefflow", "config.yaml"))
}

// ApplyEnvironment applies process-level overrides that are not task parameters.
// BRIEFFLOW_ENV selects the settings environment.
func (c *Config) ApplyEnvironment(getenv func(string) string) {
	if v := getenv(c.EnvPrefix + "_ENV"); v != "" {
		c.Environment = v
	}
}

// MergeWithFlags merges CLI flags into the configuration
// Non-nil flag values override configuration values
func (c *Config) MergeWithFlags(maxConcurrency *int, database, workflowFile, environment, logDir, logLevel, metricsAddr *string) {
	if maxConcurrency != nil && *maxConcurrency >= 0 {
		c.MaxConcurrency = *maxConcurrency
	}
	if database != nil && *database != "" {
		c.Database = *database
	}
	if workflowFile != nil && *workflowFile != "" {
		c.WorkflowFile = *workflowFile
	}
	if environment != nil && *environment != "" {
		c.Environment = *environment
	}
	if logDir != nil && *logDir != "" {
		c.LogDir = *logDir
	}
	if logLevel != nil && *logLevel != "" {
		c.LogLevel = *logLevel
	}
	if metricsAddr != nil && *metricsAddr != "" {
		c.MetricsAddr = *metricsAddr
	}
}

// Validate checks that configuration values are valid
func (c *Config) Validate() error {
	if c.MaxConcurrency < 1 {
		return fmt.Errorf("max_concurrency must be at least 1, got %d", c.MaxConcurrency)
	}
	if c.TaskTimeout < 0 {
		return fmt.Errorf("task_timeout must be non-negative, got %v", c.TaskTimeout)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be non-negative, got %d", c.MaxRetries)
	}
	if c.ReviewPollInterval <= 0 {
		return fmt.Errorf("review_poll_interval must be positive, got %v", c.ReviewPollInterval)
	}
	if c.Database == "" {
		return fmt.Errorf("database must not be empty")
	}
	if c.EnvPrefix == "" {
		return fmt.Errorf("env_prefix must not be empty")
	}

	validLevels := map[string]bool{
		"trace": true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("invalid log_level %q: must be one of trace, debug, info, warn, error", c.LogLevel)
	}

	return nil
}
