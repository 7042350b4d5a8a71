package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/waggle/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify Waggle configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/waggle/config.yaml
Project-specific overrides can be placed in .waggle.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}

		switch len(args) {
		case 0:
			displayAllConfig(cfg)
		case 1:
			displayConfigKey(cfg, args[0])
		default:
			setConfigKey(cfg, args[0], args[1])
		}
	},
}

// displayAllConfig prints all configuration values.
func displayAllConfig(cfg *config.Config) {
	fmt.Printf("anthropic.api_key: %s\n", config.MaskAPIKey(cfg.Anthropic.APIKey))
	fmt.Printf("anthropic.model: %s\n", cfg.Anthropic.Model)
	fmt.Printf("bedrock.enabled: %t\n", cfg.Bedrock.Enabled)
	fmt.Printf("bedrock.region: %s\n", cfg.Bedrock.Region)
	fmt.Printf("orchestrator.max_parallel: %d\n", cfg.Orchestrator.MaxParallel)
	fmt.Printf("orchestrator.target_phases: %d\n", cfg.Orchestrator.TargetPhases)
	fmt.Printf("orchestrator.audit_pass_rate: %.2f\n", cfg.Orchestrator.AuditPassRate)
	fmt.Printf("timeouts.delegation: %s\n", cfg.Timeouts.Delegation)
	fmt.Printf("timeouts.sandbox: %s\n", cfg.Timeouts.Sandbox)
	fmt.Printf("audit.theater_threshold: %.1f\n", cfg.Audit.TheaterThreshold)
	fmt.Printf("audit.max_retries: %d\n", cfg.Audit.MaxRetries)
	fmt.Printf("audit.retry_backoff: %s\n", cfg.Audit.RetryBackoff)
	fmt.Printf("audit.resume_from_failed_stage: %t\n", cfg.Audit.ResumeFromFailedStage)
	fmt.Printf("breaker.failure_threshold: %d\n", cfg.Breaker.FailureThreshold)
	fmt.Printf("breaker.cooldown: %s\n", cfg.Breaker.Cooldown)
	fmt.Printf("breaker.success_threshold: %d\n", cfg.Breaker.SuccessThreshold)
	fmt.Printf("sandbox.memory_bytes: %d\n", cfg.Sandbox.MemoryBytes)
	fmt.Printf("convergence.max_iterations: %d\n", cfg.Convergence.MaxIterations)
	fmt.Printf("convergence.target_failure_rate: %.1f\n", cfg.Convergence.TargetFailureRate)
	fmt.Printf("research.search_limit: %d\n", cfg.Research.SearchLimit)
}

// displayConfigKey prints a single configuration value.
func displayConfigKey(cfg *config.Config, key string) {
	value, err := getConfigValue(cfg, key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(value)
}

// setConfigKey sets a configuration value and saves the config.
func setConfigKey(cfg *config.Config, key, value string) {
	if err := setConfigValue(cfg, key, value); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := config.Save(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Set %s = %s\n", key, value)
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.Config, key string) (string, error) {
	switch strings.ToLower(key) {
	case "anthropic.api_key":
		return config.MaskAPIKey(cfg.Anthropic.APIKey), nil
	case "anthropic.model":
		return cfg.Anthropic.Model, nil
	case "bedrock.enabled":
		return strconv.FormatBool(cfg.Bedrock.Enabled), nil
	case "bedrock.region":
		return cfg.Bedrock.Region, nil
	case "orchestrator.max_parallel":
		return strconv.Itoa(cfg.Orchestrator.MaxParallel), nil
	case "orchestrator.target_phases":
		return strconv.Itoa(cfg.Orchestrator.TargetPhases), nil
	case "orchestrator.audit_pass_rate":
		return strconv.FormatFloat(cfg.Orchestrator.AuditPassRate, 'f', -1, 64), nil
	case "timeouts.delegation":
		return cfg.Timeouts.Delegation.String(), nil
	case "timeouts.sandbox":
		return cfg.Timeouts.Sandbox.String(), nil
	case "audit.theater_threshold":
		return strconv.FormatFloat(cfg.Audit.TheaterThreshold, 'f', -1, 64), nil
	case "audit.max_retries":
		return strconv.Itoa(cfg.Audit.MaxRetries), nil
	case "audit.retry_backoff":
		return cfg.Audit.RetryBackoff.String(), nil
	case "audit.resume_from_failed_stage":
		return strconv.FormatBool(cfg.Audit.ResumeFromFailedStage), nil
	case "breaker.failure_threshold":
		return strconv.Itoa(cfg.Breaker.FailureThreshold), nil
	case "breaker.cooldown":
		return cfg.Breaker.Cooldown.String(), nil
	case "breaker.success_threshold":
		return strconv.Itoa(cfg.Breaker.SuccessThreshold), nil
	case "sandbox.memory_bytes":
		return strconv.FormatInt(cfg.Sandbox.MemoryBytes, 10), nil
	case "convergence.max_iterations":
		return strconv.Itoa(cfg.Convergence.MaxIterations), nil
	case "convergence.target_failure_rate":
		return strconv.FormatFloat(cfg.Convergence.TargetFailureRate, 'f', -1, 64), nil
	case "research.search_limit":
		return strconv.Itoa(cfg.Research.SearchLimit), nil
	default:
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.Config, key, value string) error {
	switch strings.ToLower(key) {
	case "anthropic.api_key":
		cfg.Anthropic.APIKey = value
	case "anthropic.model":
		cfg.Anthropic.Model = value
	case "bedrock.enabled":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean for bedrock.enabled: %w", err)
		}
		cfg.Bedrock.Enabled = b
	case "bedrock.region":
		cfg.Bedrock.Region = value
	case "orchestrator.max_parallel":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for max_parallel: %w", err)
		}
		cfg.Orchestrator.MaxParallel = n
	case "orchestrator.target_phases":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for target_phases: %w", err)
		}
		cfg.Orchestrator.TargetPhases = n
	case "orchestrator.audit_pass_rate":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid value for audit_pass_rate: %w", err)
		}
		cfg.Orchestrator.AuditPassRate = f
	case "timeouts.delegation":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for timeouts.delegation: %w", err)
		}
		cfg.Timeouts.Delegation = d
	case "timeouts.sandbox":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for timeouts.sandbox: %w", err)
		}
		cfg.Timeouts.Sandbox = d
	case "audit.theater_threshold":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid value for theater_threshold: %w", err)
		}
		cfg.Audit.TheaterThreshold = f
	case "audit.max_retries":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for max_retries: %w", err)
		}
		cfg.Audit.MaxRetries = n
	case "audit.retry_backoff":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for retry_backoff: %w", err)
		}
		cfg.Audit.RetryBackoff = d
	case "audit.resume_from_failed_stage":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean for resume_from_failed_stage: %w", err)
		}
		cfg.Audit.ResumeFromFailedStage = b
	case "breaker.failure_threshold":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for failure_threshold: %w", err)
		}
		cfg.Breaker.FailureThreshold = n
	case "breaker.cooldown":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for cooldown: %w", err)
		}
		cfg.Breaker.Cooldown = d
	case "breaker.success_threshold":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for success_threshold: %w", err)
		}
		cfg.Breaker.SuccessThreshold = n
	case "sandbox.memory_bytes":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid value for memory_bytes: %w", err)
		}
		cfg.Sandbox.MemoryBytes = n
	case "convergence.max_iterations":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for max_iterations: %w", err)
		}
		cfg.Convergence.MaxIterations = n
	case "convergence.target_failure_rate":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid value for target_failure_rate: %w", err)
		}
		cfg.Convergence.TargetFailureRate = f
	case "research.search_limit":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for search_limit: %w", err)
		}
		cfg.Research.SearchLimit = n
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}
