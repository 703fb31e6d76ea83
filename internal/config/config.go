// Package config loads openlares settings.
//
// Sources, highest precedence first:
//  1. CLI flags (set via SetOverride)
//  2. Environment: OPENLARES_* (e.g. OPENLARES_AGENT_BACKEND), plus
//     DATABASE_URL for database.url
//  3. Project config: ./openlares.yaml
//  4. Global config: ~/.config/openlares/config.yaml
//  5. Built-in defaults
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// ProjectConfigFile is looked up in the working directory.
const ProjectConfigFile = "openlares.yaml"

// Config is the root of openlares.yaml.
type Config struct {
	// Version is the configuration schema version (currently "1")
	Version string `yaml:"version" mapstructure:"version" validate:"required,eq=1"`

	Database DatabaseConfig `yaml:"database" mapstructure:"database"`

	// Agent selects the backend tasks are dispatched to
	Agent AgentConfig `yaml:"agent" mapstructure:"agent"`

	Executor ExecutorConfig `yaml:"executor" mapstructure:"executor"`

	Serve ServeConfig `yaml:"serve" mapstructure:"serve"`
}

// DatabaseConfig locates the store.
type DatabaseConfig struct {
	// URL is a postgres:// URL, a sqlite:// URL or a path to a SQLite file
	URL string `yaml:"url" mapstructure:"url"`
}

// AgentConfig configures the agent client.
type AgentConfig struct {
	Backend string `yaml:"backend" mapstructure:"backend" validate:"required,oneof=gateway anthropic ollama cli"`

	// URL is the gateway base URL, the Ollama host, or an Anthropic endpoint override
	URL   string `yaml:"url,omitempty" mapstructure:"url" validate:"omitempty,url"`
	Token string `yaml:"token,omitempty" mapstructure:"token"`
	Model string `yaml:"model,omitempty" mapstructure:"model"`

	MaxTokens int `yaml:"max_tokens,omitempty" mapstructure:"max_tokens" validate:"gte=0"`

	// Command is the CLI binary for the cli backend
	Command string `yaml:"command,omitempty" mapstructure:"command"`
	WorkDir string `yaml:"work_dir,omitempty" mapstructure:"work_dir"`

	RequestTimeout string `yaml:"request_timeout,omitempty" mapstructure:"request_timeout" validate:"omitempty,duration"`
}

// ExecutorConfig tunes the task executor.
type ExecutorConfig struct {
	AgentID string `yaml:"agent_id" mapstructure:"agent_id" validate:"required"`

	// Projects limits the executor to these project names or IDs
	Projects []string `yaml:"projects,omitempty" mapstructure:"projects"`

	PollInterval     string `yaml:"poll_interval" mapstructure:"poll_interval" validate:"required,duration"`
	ExecutionTimeout string `yaml:"execution_timeout" mapstructure:"execution_timeout" validate:"required,duration"`
	HistoryTimeout   string `yaml:"history_timeout" mapstructure:"history_timeout" validate:"required,duration"`
}

// ServeConfig configures the long-running service.
type ServeConfig struct {
	// MetricsAddr serves /metrics when set (e.g. ":9090")
	MetricsAddr string `yaml:"metrics_addr,omitempty" mapstructure:"metrics_addr"`

	// SweepSchedule is a cron spec for the stale-claim sweep
	SweepSchedule string `yaml:"sweep_schedule" mapstructure:"sweep_schedule" validate:"required,cronspec"`
}

// PollIntervalDuration returns the parsed poll interval.
func (e ExecutorConfig) PollIntervalDuration() time.Duration {
	return mustDuration(e.PollInterval)
}

// ExecutionTimeoutDuration returns the parsed execution timeout.
func (e ExecutorConfig) ExecutionTimeoutDuration() time.Duration {
	return mustDuration(e.ExecutionTimeout)
}

// HistoryTimeoutDuration returns the parsed history fetch timeout.
func (e ExecutorConfig) HistoryTimeoutDuration() time.Duration {
	return mustDuration(e.HistoryTimeout)
}

// RequestTimeoutDuration returns the parsed request timeout, zero if unset.
func (a AgentConfig) RequestTimeoutDuration() time.Duration {
	return mustDuration(a.RequestTimeout)
}

// mustDuration parses a validated duration; invalid input yields zero.
func mustDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}

// ValidationError represents a configuration validation error with field details.
type ValidationError struct {
	Field   string
	Tag     string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Message)
	}
	return strings.Join(msgs, "; ")
}

// Loader handles configuration loading from multiple sources.
type Loader struct {
	v         *viper.Viper
	validator *validator.Validate
	overrides map[string]interface{}
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("OPENLARES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("database.url", "OPENLARES_DATABASE_URL", "DATABASE_URL")

	validate := validator.New()
	_ = validate.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
		d, err := time.ParseDuration(fl.Field().String())
		return err == nil && d > 0
	})
	_ = validate.RegisterValidation("cronspec", func(fl validator.FieldLevel) bool {
		_, err := cron.ParseStandard(fl.Field().String())
		return err == nil
	})

	return &Loader{
		v:         v,
		validator: validate,
		overrides: make(map[string]interface{}),
	}
}

// SetOverride sets a CLI override value that takes highest precedence.
// Use dot notation for nested keys (e.g., "agent.backend").
func (l *Loader) SetOverride(key string, value interface{}) {
	l.overrides[key] = value
}

// Load reads the global and project config files, the environment and the
// overrides, and returns the validated result.
func (l *Loader) Load() (*Config, error) {
	l.setDefaults()

	globalPath := l.globalConfigPath()
	if globalPath != "" && fileExists(globalPath) {
		if err := l.loadConfigFile(globalPath); err != nil {
			return nil, fmt.Errorf("loading global config %s: %w", globalPath, err)
		}
	}

	if fileExists(ProjectConfigFile) {
		if err := l.loadConfigFile(ProjectConfigFile); err != nil {
			return nil, fmt.Errorf("loading project config %s: %w", ProjectConfigFile, err)
		}
	}

	return l.finish()
}

// LoadFromPath loads configuration from a specific file path on top of the
// defaults, the environment and the overrides.
func (l *Loader) LoadFromPath(path string) (*Config, error) {
	l.setDefaults()

	if err := l.loadConfigFile(path); err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}
	return l.finish()
}

func (l *Loader) finish() (*Config, error) {
	for key, value := range l.overrides {
		l.v.Set(key, value)
	}

	cfg := &Config{}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := l.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration against the schema.
// Returns ValidationErrors with detailed information about any issues.
func (l *Loader) Validate(cfg *Config) error {
	var errs ValidationErrors

	err := l.validator.Struct(cfg)
	if err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			for _, e := range validationErrs {
				errs = append(errs, ValidationError{
					Field:   e.Namespace(),
					Tag:     e.Tag(),
					Value:   e.Value(),
					Message: formatValidationError(e),
				})
			}
		} else {
			return fmt.Errorf("validation error: %w", err)
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (l *Loader) setDefaults() {
	d := DefaultConfig()

	l.v.SetDefault("version", d.Version)
	l.v.SetDefault("database.url", d.Database.URL)
	l.v.SetDefault("agent.backend", d.Agent.Backend)
	l.v.SetDefault("agent.url", d.Agent.URL)
	l.v.SetDefault("agent.token", d.Agent.Token)
	l.v.SetDefault("agent.model", d.Agent.Model)
	l.v.SetDefault("agent.max_tokens", d.Agent.MaxTokens)
	l.v.SetDefault("agent.command", d.Agent.Command)
	l.v.SetDefault("agent.work_dir", d.Agent.WorkDir)
	l.v.SetDefault("agent.request_timeout", d.Agent.RequestTimeout)
	l.v.SetDefault("executor.agent_id", d.Executor.AgentID)
	l.v.SetDefault("executor.projects", d.Executor.Projects)
	l.v.SetDefault("executor.poll_interval", d.Executor.PollInterval)
	l.v.SetDefault("executor.execution_timeout", d.Executor.ExecutionTimeout)
	l.v.SetDefault("executor.history_timeout", d.Executor.HistoryTimeout)
	l.v.SetDefault("serve.metrics_addr", d.Serve.MetricsAddr)
	l.v.SetDefault("serve.sweep_schedule", d.Serve.SweepSchedule)
}

func (l *Loader) loadConfigFile(path string) error {
	l.v.SetConfigFile(path)
	return l.v.MergeInConfig()
}

func (l *Loader) globalConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "openlares", "config.yaml")
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func formatValidationError(e validator.FieldError) string {
	field := strings.TrimPrefix(e.Namespace(), "Config.")

	switch e.Tag() {
	case "required":
		return fmt.Sprintf("'%s' is required", field)
	case "eq":
		return fmt.Sprintf("'%s' must be '%s' (got '%v')", field, e.Param(), e.Value())
	case "oneof":
		return fmt.Sprintf("'%s' must be one of [%s] (got '%v')", field, e.Param(), e.Value())
	case "gte":
		return fmt.Sprintf("'%s' must be at least %s (got '%v')", field, e.Param(), e.Value())
	case "url":
		return fmt.Sprintf("'%s' must be a URL (got '%v')", field, e.Value())
	case "duration":
		return fmt.Sprintf("'%s' must be a positive duration such as 5s or 30m (got '%v')", field, e.Value())
	case "cronspec":
		return fmt.Sprintf("'%s' must be a cron schedule (got '%v')", field, e.Value())
	default:
		return fmt.Sprintf("'%s' failed validation '%s'", field, e.Tag())
	}
}

// DefaultConfig returns a new Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: "1",
		Agent: AgentConfig{
			Backend: "gateway",
			URL:     "http://localhost:18789",
			Command: "claude",
		},
		Executor: ExecutorConfig{
			AgentID:          "main",
			PollInterval:     "5s",
			ExecutionTimeout: "30m",
			HistoryTimeout:   "10s",
		},
		Serve: ServeConfig{
			SweepSchedule: "*/5 * * * *",
		},
	}
}

// WriteDefault writes the default configuration to the specified path.
func WriteDefault(path string) error {
	return Write(DefaultConfig(), path)
}

// Write writes the configuration to the specified path.
func Write(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0600)
}

// Load is a convenience function that creates a Loader and loads the config.
func Load() (*Config, error) {
	return NewLoader().Load()
}

// Exists checks if a configuration file exists at the given path.
func Exists(path string) bool {
	return fileExists(path)
}

// GlobalConfigPath returns the path to the global configuration file.
func GlobalConfigPath() string {
	return NewLoader().globalConfigPath()
}
