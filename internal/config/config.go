// Package config defines the workstream configuration, loaded through
// viper from the repository's .work/config.yaml, the user's config
// directory, and WORK_* environment variables, in that order of
// precedence.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the complete workstream configuration.
type Config struct {
	Agent        AgentConfig        `mapstructure:"agent"`
	Synthesis    SynthesisConfig    `mapstructure:"synthesis"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Tracker      TrackerConfig      `mapstructure:"tracker"`
	Lock         LockConfig         `mapstructure:"lock"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// AgentConfig controls the working agent spawned per thread.
type AgentConfig struct {
	// Command is the agent CLI binary.
	Command string `mapstructure:"command"`
	// Models is the ordered retry chain; the runner falls through to the
	// next model only on early failure.
	Models []string `mapstructure:"models"`
	// EarlyFailureThresholdSeconds separates cold-start failures (retried
	// with the next model) from genuine failures (not retried).
	EarlyFailureThresholdSeconds int `mapstructure:"early_failure_threshold_seconds"`
	// ExtraArgs are appended to every agent invocation.
	ExtraArgs []string `mapstructure:"extra_args"`
}

// SynthesisConfig controls the optional post-session synthesis pass.
type SynthesisConfig struct {
	// Enabled turns on the second headless agent pass after each thread.
	Enabled bool `mapstructure:"enabled"`
	// Command is the synthesis agent CLI; empty reuses agent.command.
	Command string `mapstructure:"command"`
	// Model used for the synthesis pass.
	Model string `mapstructure:"model"`
}

// OrchestratorConfig controls batch execution.
type OrchestratorConfig struct {
	// MaxThreadsPerBatch is the hard upper bound on threads started at
	// once.
	MaxThreadsPerBatch int `mapstructure:"max_threads_per_batch"`
	// VisiblePanes is the size of the on-screen grid; threads beyond it
	// are paged.
	VisiblePanes int `mapstructure:"visible_panes"`
	// StaggerMs is the delay between pane spawns at batch start.
	StaggerMs int `mapstructure:"stagger_ms"`
	// PollIntervalMs is the completion-marker polling interval.
	PollIntervalMs int `mapstructure:"poll_interval_ms"`
	// Notifications controls completion sounds.
	Notifications NotificationConfig `mapstructure:"notifications"`
}

// NotificationConfig controls completion notifications.
type NotificationConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	UseSound  bool   `mapstructure:"use_sound"`
	SoundPath string `mapstructure:"sound_path"`
}

// TrackerConfig controls the external issue tracker mirror.
type TrackerConfig struct {
	// Provider currently supports "github" and "none".
	Provider string `mapstructure:"provider"`
	// Repo is "owner/name"; empty lets gh infer it.
	Repo string `mapstructure:"repo"`
}

// LockConfig tunes the ledger lock.
type LockConfig struct {
	StaleAfterSeconds int `mapstructure:"stale_after_seconds"`
	RetryIntervalMs   int `mapstructure:"retry_interval_ms"`
	MaxRetries        int `mapstructure:"max_retries"`
}

// LoggingConfig controls the debug log.
type LoggingConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Level   string `mapstructure:"level"`
}

// Stagger returns the pane-spawn stagger as a duration.
func (c *OrchestratorConfig) Stagger() time.Duration {
	return time.Duration(c.StaggerMs) * time.Millisecond
}

// PollInterval returns the marker polling interval as a duration.
func (c *OrchestratorConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// EarlyFailureThreshold returns the retry-chain threshold as a duration.
func (c *AgentConfig) EarlyFailureThreshold() time.Duration {
	return time.Duration(c.EarlyFailureThresholdSeconds) * time.Second
}

// StaleAfter returns the lock staleness timeout as a duration.
func (c *LockConfig) StaleAfter() time.Duration {
	return time.Duration(c.StaleAfterSeconds) * time.Second
}

// RetryInterval returns the lock retry interval as a duration.
func (c *LockConfig) RetryInterval() time.Duration {
	return time.Duration(c.RetryIntervalMs) * time.Millisecond
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Agent: AgentConfig{
			Command:                      "claude",
			Models:                       []string{},
			EarlyFailureThresholdSeconds: 15,
			ExtraArgs:                    []string{},
		},
		Synthesis: SynthesisConfig{
			Enabled: false,
			Command: "",
			Model:   "",
		},
		Orchestrator: OrchestratorConfig{
			MaxThreadsPerBatch: 12,
			VisiblePanes:       4,
			StaggerMs:          1500,
			PollIntervalMs:     500,
			Notifications: NotificationConfig{
				Enabled:   true,
				UseSound:  false,
				SoundPath: "",
			},
		},
		Tracker: TrackerConfig{
			Provider: "github",
			Repo:     "",
		},
		Lock: LockConfig{
			StaleAfterSeconds: 30,
			RetryIntervalMs:   100,
			MaxRetries:        50,
		},
		Logging: LoggingConfig{
			Enabled: true,
			Level:   "info",
		},
	}
}

// SetDefaults registers default values with viper.
func SetDefaults() {
	defaults := Default()

	viper.SetDefault("agent.command", defaults.Agent.Command)
	viper.SetDefault("agent.models", defaults.Agent.Models)
	viper.SetDefault("agent.early_failure_threshold_seconds", defaults.Agent.EarlyFailureThresholdSeconds)
	viper.SetDefault("agent.extra_args", defaults.Agent.ExtraArgs)

	viper.SetDefault("synthesis.enabled", defaults.Synthesis.Enabled)
	viper.SetDefault("synthesis.command", defaults.Synthesis.Command)
	viper.SetDefault("synthesis.model", defaults.Synthesis.Model)

	viper.SetDefault("orchestrator.max_threads_per_batch", defaults.Orchestrator.MaxThreadsPerBatch)
	viper.SetDefault("orchestrator.visible_panes", defaults.Orchestrator.VisiblePanes)
	viper.SetDefault("orchestrator.stagger_ms", defaults.Orchestrator.StaggerMs)
	viper.SetDefault("orchestrator.poll_interval_ms", defaults.Orchestrator.PollIntervalMs)
	viper.SetDefault("orchestrator.notifications.enabled", defaults.Orchestrator.Notifications.Enabled)
	viper.SetDefault("orchestrator.notifications.use_sound", defaults.Orchestrator.Notifications.UseSound)
	viper.SetDefault("orchestrator.notifications.sound_path", defaults.Orchestrator.Notifications.SoundPath)

	viper.SetDefault("tracker.provider", defaults.Tracker.Provider)
	viper.SetDefault("tracker.repo", defaults.Tracker.Repo)

	viper.SetDefault("lock.stale_after_seconds", defaults.Lock.StaleAfterSeconds)
	viper.SetDefault("lock.retry_interval_ms", defaults.Lock.RetryIntervalMs)
	viper.SetDefault("lock.max_retries", defaults.Lock.MaxRetries)

	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
}

// Load reads the configuration from viper and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	return &cfg, nil
}

// Get returns the current configuration, falling back to defaults when
// loading fails.
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Init wires viper's search paths and environment binding. repoRoot may
// be empty when running outside a repository.
func Init(repoRoot string) {
	SetDefaults()
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	if repoRoot != "" {
		viper.AddConfigPath(filepath.Join(repoRoot, ".work"))
	}
	viper.AddConfigPath(ConfigDir())
	viper.SetEnvPrefix("work")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	// A missing config file is fine; defaults and env cover everything.
	_ = viper.ReadInConfig()
}

// ConfigDir returns the user's workstream config directory.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "workstream")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".workstream"
	}
	return filepath.Join(home, ".config", "workstream")
}

// ConfigFile returns the path to the user config file.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
