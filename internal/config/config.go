package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/yamakatsunamamugi/autoai/internal/detect"
	"github.com/yamakatsunamamugi/autoai/internal/guard"
	"github.com/yamakatsunamamugi/autoai/internal/logging"
	"github.com/yamakatsunamamugi/autoai/internal/orchestrator"
	"github.com/yamakatsunamamugi/autoai/internal/retry"
)

// Config represents the complete autoai configuration
type Config struct {
	Retry     RetryConfig     `mapstructure:"retry"`
	Detection DetectionConfig `mapstructure:"detection"`
	Guard     GuardConfig     `mapstructure:"guard"`
	Session   SessionConfig   `mapstructure:"session"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// RetryConfig controls the tiered escalation ladder
type RetryConfig struct {
	// MaxAttempts is the global per-operation attempt ceiling (default: 20)
	MaxAttempts int `mapstructure:"max_attempts"`
	// RateLimitedMaxAttempts is the raised ceiling applied while failures
	// classify as rate limiting (default: 30)
	RateLimitedMaxAttempts int `mapstructure:"rate_limited_max_attempts"`
	// LocalDelaysSeconds are the backoff delays for in-place retries
	LocalDelaysSeconds []int `mapstructure:"local_delays_seconds"`
	// RefreshDelaysSeconds are the backoff delays for the refresh tier
	RefreshDelaysSeconds []int `mapstructure:"refresh_delays_seconds"`
	// ResetDelaysSeconds are the backoff delays for the reset tier
	ResetDelaysSeconds []int `mapstructure:"reset_delays_seconds"`
}

// DetectionConfig controls completion detection timing
type DetectionConfig struct {
	// PollIntervalMs is how often progress is sampled (in milliseconds)
	PollIntervalMs int `mapstructure:"poll_interval_ms"`
	// StabilityWindowSeconds is how long the artifact length must hold
	// stable to count as complete
	StabilityWindowSeconds int `mapstructure:"stability_window_seconds"`
	// SettleDelaySeconds is the initial wait before artifact polling starts
	SettleDelaySeconds int `mapstructure:"settle_delay_seconds"`
	// AppearWindowSeconds bounds how long multi-phase mode waits for the
	// progress indicator to first appear
	AppearWindowSeconds int `mapstructure:"appear_window_seconds"`
	// ConfirmationWindowSeconds is how long the cleared indicator must
	// persist before multi-phase completion is reported
	ConfirmationWindowSeconds int `mapstructure:"confirmation_window_seconds"`
	// ExtendedMaxWaitMinutes is the second-phase budget for multi-phase mode
	ExtendedMaxWaitMinutes int `mapstructure:"extended_max_wait_minutes"`

	// Per-mode budgets for the primary work phase
	StreamingMaxWaitMinutes  int `mapstructure:"streaming_max_wait_minutes"`
	ArtifactMaxWaitMinutes   int `mapstructure:"artifact_max_wait_minutes"`
	MultiPhaseMaxWaitMinutes int `mapstructure:"multiphase_max_wait_minutes"`
}

// GuardConfig controls duplicate-execution admission
type GuardConfig struct {
	// StaleAfterMinutes is how old a session holder may be before it is
	// treated as abandoned and evicted (default: 15)
	StaleAfterMinutes int `mapstructure:"stale_after_minutes"`
}

// SessionConfig controls where and how tasks run
type SessionConfig struct {
	// WorkDir is the working directory shared with the driven service.
	// If empty, defaults to ".autoai/sessions" relative to the current
	// directory. Supports ~ for home directory expansion.
	WorkDir string `mapstructure:"work_dir"`
	// Mode is the default completion shape: "streaming", "artifact", or
	// "multiphase" (default: "streaming")
	Mode string `mapstructure:"mode"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Enabled controls whether debug logging is enabled (default: true)
	Enabled bool `mapstructure:"enabled"`
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb"`
	// MaxBackups is the number of backup log files to keep (default: 3)
	MaxBackups int `mapstructure:"max_backups"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Retry: RetryConfig{
			MaxAttempts:            20,
			RateLimitedMaxAttempts: 30,
			LocalDelaysSeconds:     []int{1, 2, 3, 5, 8},
			RefreshDelaysSeconds:   []int{10, 20, 30},
			ResetDelaysSeconds:     []int{30, 60, 120},
		},
		Detection: DetectionConfig{
			PollIntervalMs:            2000,
			StabilityWindowSeconds:    15,
			SettleDelaySeconds:        5,
			AppearWindowSeconds:       30,
			ConfirmationWindowSeconds: 10,
			ExtendedMaxWaitMinutes:    40,
			StreamingMaxWaitMinutes:   10,
			ArtifactMaxWaitMinutes:    15,
			MultiPhaseMaxWaitMinutes:  10,
		},
		Guard: GuardConfig{
			StaleAfterMinutes: 15,
		},
		Session: SessionConfig{
			WorkDir: "",
			Mode:    "streaming",
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// RetrySettings converts to the retry package's runtime configuration
func (c *RetryConfig) RetrySettings() retry.Config {
	return retry.Config{
		MaxAttempts:            c.MaxAttempts,
		RateLimitedMaxAttempts: c.RateLimitedMaxAttempts,
		LocalDelays:            secondsToDurations(c.LocalDelaysSeconds),
		RefreshDelays:          secondsToDurations(c.RefreshDelaysSeconds),
		ResetDelays:            secondsToDurations(c.ResetDelaysSeconds),
	}
}

// DetectSettings converts to the detect package's runtime configuration
func (c *DetectionConfig) DetectSettings() detect.Config {
	return detect.Config{
		PollInterval:       time.Duration(c.PollIntervalMs) * time.Millisecond,
		StabilityWindow:    time.Duration(c.StabilityWindowSeconds) * time.Second,
		SettleDelay:        time.Duration(c.SettleDelaySeconds) * time.Second,
		AppearWindow:       time.Duration(c.AppearWindowSeconds) * time.Second,
		ConfirmationWindow: time.Duration(c.ConfirmationWindowSeconds) * time.Second,
		ExtendedMaxWait:    time.Duration(c.ExtendedMaxWaitMinutes) * time.Minute,
	}
}

// StaleAfter returns the guard staleness threshold (0 means the guard default)
func (c *GuardConfig) StaleAfter() time.Duration {
	if c.StaleAfterMinutes <= 0 {
		return guard.DefaultStaleAfter
	}
	return time.Duration(c.StaleAfterMinutes) * time.Minute
}

// RotationSettings converts to the logging package's rotation configuration
func (c *LoggingConfig) RotationSettings() logging.RotationConfig {
	return logging.RotationConfig{
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
	}
}

// OrchestratorSettings assembles the orchestrator's runtime configuration
func (c *Config) OrchestratorSettings() orchestrator.Config {
	return orchestrator.Config{
		Retry:             c.Retry.RetrySettings(),
		Detect:            c.Detection.DetectSettings(),
		StaleAfter:        c.Guard.StaleAfter(),
		StreamingMaxWait:  time.Duration(c.Detection.StreamingMaxWaitMinutes) * time.Minute,
		ArtifactMaxWait:   time.Duration(c.Detection.ArtifactMaxWaitMinutes) * time.Minute,
		MultiPhaseMaxWait: time.Duration(c.Detection.MultiPhaseMaxWaitMinutes) * time.Minute,
	}
}

// ResolveWorkDir returns the resolved session working directory.
// If WorkDir is empty, it returns the default path relative to baseDir.
// If WorkDir starts with ~, it expands to the user's home directory.
// If WorkDir is a relative path, it's resolved relative to baseDir.
func (c *SessionConfig) ResolveWorkDir(baseDir string) string {
	if c.WorkDir == "" {
		return filepath.Join(baseDir, ".autoai", "sessions")
	}

	path := c.WorkDir

	if len(path) >= 2 && path[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		home, err := os.UserHomeDir()
		if err == nil {
			path = home
		}
	}

	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}

	return path
}

func secondsToDurations(seconds []int) []time.Duration {
	out := make([]time.Duration, 0, len(seconds))
	for _, s := range seconds {
		out = append(out, time.Duration(s)*time.Second)
	}
	return out
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Retry defaults
	viper.SetDefault("retry.max_attempts", defaults.Retry.MaxAttempts)
	viper.SetDefault("retry.rate_limited_max_attempts", defaults.Retry.RateLimitedMaxAttempts)
	viper.SetDefault("retry.local_delays_seconds", defaults.Retry.LocalDelaysSeconds)
	viper.SetDefault("retry.refresh_delays_seconds", defaults.Retry.RefreshDelaysSeconds)
	viper.SetDefault("retry.reset_delays_seconds", defaults.Retry.ResetDelaysSeconds)

	// Detection defaults
	viper.SetDefault("detection.poll_interval_ms", defaults.Detection.PollIntervalMs)
	viper.SetDefault("detection.stability_window_seconds", defaults.Detection.StabilityWindowSeconds)
	viper.SetDefault("detection.settle_delay_seconds", defaults.Detection.SettleDelaySeconds)
	viper.SetDefault("detection.appear_window_seconds", defaults.Detection.AppearWindowSeconds)
	viper.SetDefault("detection.confirmation_window_seconds", defaults.Detection.ConfirmationWindowSeconds)
	viper.SetDefault("detection.extended_max_wait_minutes", defaults.Detection.ExtendedMaxWaitMinutes)
	viper.SetDefault("detection.streaming_max_wait_minutes", defaults.Detection.StreamingMaxWaitMinutes)
	viper.SetDefault("detection.artifact_max_wait_minutes", defaults.Detection.ArtifactMaxWaitMinutes)
	viper.SetDefault("detection.multiphase_max_wait_minutes", defaults.Detection.MultiPhaseMaxWaitMinutes)

	// Guard defaults
	viper.SetDefault("guard.stale_after_minutes", defaults.Guard.StaleAfterMinutes)

	// Session defaults
	viper.SetDefault("session.work_dir", defaults.Session.WorkDir)
	viper.SetDefault("session.mode", defaults.Session.Mode)

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
}

// Load reads the configuration from viper into a Config struct and validates it
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

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "autoai")
	}
	// Fall back to ~/.config/autoai
	home, err := os.UserHomeDir()
	if err != nil {
		return ".autoai"
	}
	return filepath.Join(home, ".config", "autoai")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
