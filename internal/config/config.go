// Package config handles configuration loading and management for Waggle.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for Waggle.
type Config struct {
	Anthropic    AnthropicConfig    `mapstructure:"anthropic"`
	Bedrock      BedrockConfig      `mapstructure:"bedrock"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Timeouts     TimeoutsConfig     `mapstructure:"timeouts"`
	Audit        AuditConfig        `mapstructure:"audit"`
	Breaker      BreakerConfig      `mapstructure:"breaker"`
	Sandbox      SandboxConfig      `mapstructure:"sandbox"`
	Convergence  ConvergenceConfig  `mapstructure:"convergence"`
	Research     ResearchConfig     `mapstructure:"research"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// BedrockConfig holds AWS Bedrock settings for running the same models
// through an AWS account instead of the Anthropic API.
type BedrockConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Region  string `mapstructure:"region"`
}

// OrchestratorConfig holds settings for phase execution.
type OrchestratorConfig struct {
	// MaxParallel caps concurrent in-flight delegations within one phase.
	MaxParallel int `mapstructure:"max_parallel"`
	// TargetPhases is the phase count the dependency graph builder aims for.
	TargetPhases int `mapstructure:"target_phases"`
	// AuditPassRate is the aggregate pass rate a run must reach, in [0,1].
	AuditPassRate float64 `mapstructure:"audit_pass_rate"`
}

// TimeoutsConfig holds timeout settings.
type TimeoutsConfig struct {
	// Delegation bounds a single task delegation end to end.
	Delegation time.Duration `mapstructure:"delegation"`
	// Sandbox bounds a single sandboxed execution.
	Sandbox time.Duration `mapstructure:"sandbox"`
}

// AuditConfig holds audit pipeline settings.
type AuditConfig struct {
	// TheaterThreshold is the weighted score at or above which the theater
	// stage fails.
	TheaterThreshold float64 `mapstructure:"theater_threshold"`
	// MaxRetries is the pipeline retry budget.
	MaxRetries int `mapstructure:"max_retries"`
	// RetryBackoff is the base backoff, doubled on each retry.
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	// ResumeFromFailedStage re-runs only the failed stage and later ones on
	// retry instead of restarting from the first stage.
	ResumeFromFailedStage bool `mapstructure:"resume_from_failed_stage"`
}

// BreakerConfig holds circuit breaker settings for sandbox calls.
type BreakerConfig struct {
	// FailureThreshold is the consecutive failure count that opens the breaker.
	FailureThreshold int `mapstructure:"failure_threshold"`
	// Cooldown is how long the breaker stays open before a half-open trial.
	Cooldown time.Duration `mapstructure:"cooldown"`
	// SuccessThreshold is the consecutive half-open successes needed to close.
	SuccessThreshold int `mapstructure:"success_threshold"`
}

// SandboxConfig holds execution sandbox settings.
type SandboxConfig struct {
	// MemoryBytes caps the memory available to a sandboxed execution.
	MemoryBytes int64 `mapstructure:"memory_bytes"`
	// WorkDir is the directory sandboxed code is written to and run from.
	// Empty means a temporary directory per execution.
	WorkDir string `mapstructure:"work_dir"`
}

// ConvergenceConfig holds convergence loop settings.
type ConvergenceConfig struct {
	// MaxIterations is the iteration cap before the loop fails.
	MaxIterations int `mapstructure:"max_iterations"`
	// TargetFailureRate is the failure-rate percentage the loop converges to.
	TargetFailureRate float64 `mapstructure:"target_failure_rate"`
}

// ResearchConfig holds knowledge retrieval settings.
type ResearchConfig struct {
	// DBPath is the artifact store location. Empty means .waggle/research.db.
	DBPath string `mapstructure:"db_path"`
	// SearchLimit is the default result count per query.
	SearchLimit int `mapstructure:"search_limit"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY)
// 2. Project config (.waggle.yaml in current directory or parent)
// 3. User config (~/.config/waggle/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Load user config from XDG path
	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	// Load project config if present
	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			// Merge project config (takes precedence)
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	// Environment variable overrides
	v.AutomaticEnv()
	v.SetEnvPrefix("")

	// Map specific environment variables
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("bedrock.region", "AWS_REGION")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand ${VAR} references
	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// Save writes the current configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configPath := filepath.Join(userConfigDir, "config.yaml")

	v := viper.New()
	v.SetConfigFile(configPath)

	v.Set("anthropic.api_key", cfg.Anthropic.APIKey)
	v.Set("anthropic.model", cfg.Anthropic.Model)
	v.Set("bedrock.enabled", cfg.Bedrock.Enabled)
	v.Set("bedrock.region", cfg.Bedrock.Region)
	v.Set("orchestrator.max_parallel", cfg.Orchestrator.MaxParallel)
	v.Set("orchestrator.target_phases", cfg.Orchestrator.TargetPhases)
	v.Set("orchestrator.audit_pass_rate", cfg.Orchestrator.AuditPassRate)
	v.Set("timeouts.delegation", cfg.Timeouts.Delegation.String())
	v.Set("timeouts.sandbox", cfg.Timeouts.Sandbox.String())
	v.Set("audit.theater_threshold", cfg.Audit.TheaterThreshold)
	v.Set("audit.max_retries", cfg.Audit.MaxRetries)
	v.Set("audit.retry_backoff", cfg.Audit.RetryBackoff.String())
	v.Set("audit.resume_from_failed_stage", cfg.Audit.ResumeFromFailedStage)
	v.Set("breaker.failure_threshold", cfg.Breaker.FailureThreshold)
	v.Set("breaker.cooldown", cfg.Breaker.Cooldown.String())
	v.Set("breaker.success_threshold", cfg.Breaker.SuccessThreshold)
	v.Set("sandbox.memory_bytes", cfg.Sandbox.MemoryBytes)
	v.Set("sandbox.work_dir", cfg.Sandbox.WorkDir)
	v.Set("convergence.max_iterations", cfg.Convergence.MaxIterations)
	v.Set("convergence.target_failure_rate", cfg.Convergence.TargetFailureRate)
	v.Set("research.db_path", cfg.Research.DBPath)
	v.Set("research.search_limit", cfg.Research.SearchLimit)

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	// Anthropic defaults
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-20250514")

	// Bedrock defaults
	v.SetDefault("bedrock.enabled", false)
	v.SetDefault("bedrock.region", "")

	// Orchestrator defaults
	v.SetDefault("orchestrator.max_parallel", 4)
	v.SetDefault("orchestrator.target_phases", 5)
	v.SetDefault("orchestrator.audit_pass_rate", 0.8)

	// Timeout defaults
	v.SetDefault("timeouts.delegation", "10m")
	v.SetDefault("timeouts.sandbox", "30s")

	// Audit defaults
	v.SetDefault("audit.theater_threshold", 10)
	v.SetDefault("audit.max_retries", 3)
	v.SetDefault("audit.retry_backoff", "1s")
	v.SetDefault("audit.resume_from_failed_stage", false)

	// Breaker defaults
	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.cooldown", "60s")
	v.SetDefault("breaker.success_threshold", 2)

	// Sandbox defaults
	v.SetDefault("sandbox.memory_bytes", int64(512*1024*1024))
	v.SetDefault("sandbox.work_dir", "")

	// Convergence defaults
	v.SetDefault("convergence.max_iterations", 10)
	v.SetDefault("convergence.target_failure_rate", 5.0)

	// Research defaults
	v.SetDefault("research.db_path", "")
	v.SetDefault("research.search_limit", 5)
}

// getUserConfigDir returns the XDG config directory for Waggle.
func getUserConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "waggle")
	}

	// Fall back to ~/.config/waggle
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "waggle")
	}
	return filepath.Join(home, ".config", "waggle")
}

// findProjectConfig searches for .waggle.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".waggle.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Anthropic: AnthropicConfig{
			APIKey: "",
			Model:  "claude-sonnet-4-20250514",
		},
		Bedrock: BedrockConfig{
			Enabled: false,
			Region:  "",
		},
		Orchestrator: OrchestratorConfig{
			MaxParallel:   4,
			TargetPhases:  5,
			AuditPassRate: 0.8,
		},
		Timeouts: TimeoutsConfig{
			Delegation: 10 * time.Minute,
			Sandbox:    30 * time.Second,
		},
		Audit: AuditConfig{
			TheaterThreshold:      10,
			MaxRetries:            3,
			RetryBackoff:          time.Second,
			ResumeFromFailedStage: false,
		},
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			Cooldown:         60 * time.Second,
			SuccessThreshold: 2,
		},
		Sandbox: SandboxConfig{
			MemoryBytes: 512 * 1024 * 1024,
			WorkDir:     "",
		},
		Convergence: ConvergenceConfig{
			MaxIterations:     10,
			TargetFailureRate: 5.0,
		},
		Research: ResearchConfig{
			DBPath:      "",
			SearchLimit: 5,
		},
	}
}
