package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/yamakatsunamamugi/autoai/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or modify autoai configuration",
	Long: `View or modify autoai configuration.

Without arguments, displays the current configuration.
Use subcommands to modify settings or create a config file.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the user's config file.

Keys use dot notation, e.g.:
  autoai config set retry.max_attempts 25
  autoai config set detection.poll_interval_ms 1000
  autoai config set session.mode artifact

Valid keys:
  retry.max_attempts                    - Per-operation attempt ceiling
  retry.rate_limited_max_attempts       - Raised ceiling under rate limiting
  detection.poll_interval_ms            - Progress sampling interval
  detection.stability_window_seconds    - Artifact stability window
  detection.streaming_max_wait_minutes  - Streaming completion budget
  detection.artifact_max_wait_minutes   - Artifact completion budget
  detection.multiphase_max_wait_minutes - Multi-phase first-phase budget
  guard.stale_after_minutes             - Session holder staleness threshold
  session.work_dir                      - Session working directory
  session.mode                          - Default completion mode
  logging.level                         - Log level (debug/info/warn/error)`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a default config file at ~/.config/autoai/config.yaml with all available options.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	fmt.Println("Current configuration:")
	fmt.Println()

	// Show where config is being read from
	if viper.ConfigFileUsed() != "" {
		fmt.Printf("Config file: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Printf("Config file: (none - using defaults)\n")
	}
	fmt.Println()

	fmt.Println("retry:")
	fmt.Printf("  max_attempts: %d\n", cfg.Retry.MaxAttempts)
	fmt.Printf("  rate_limited_max_attempts: %d\n", cfg.Retry.RateLimitedMaxAttempts)
	fmt.Printf("  local_delays_seconds: %v\n", cfg.Retry.LocalDelaysSeconds)
	fmt.Printf("  refresh_delays_seconds: %v\n", cfg.Retry.RefreshDelaysSeconds)
	fmt.Printf("  reset_delays_seconds: %v\n", cfg.Retry.ResetDelaysSeconds)

	fmt.Println("detection:")
	fmt.Printf("  poll_interval_ms: %d\n", cfg.Detection.PollIntervalMs)
	fmt.Printf("  stability_window_seconds: %d\n", cfg.Detection.StabilityWindowSeconds)
	fmt.Printf("  settle_delay_seconds: %d\n", cfg.Detection.SettleDelaySeconds)
	fmt.Printf("  appear_window_seconds: %d\n", cfg.Detection.AppearWindowSeconds)
	fmt.Printf("  confirmation_window_seconds: %d\n", cfg.Detection.ConfirmationWindowSeconds)
	fmt.Printf("  extended_max_wait_minutes: %d\n", cfg.Detection.ExtendedMaxWaitMinutes)
	fmt.Printf("  streaming_max_wait_minutes: %d\n", cfg.Detection.StreamingMaxWaitMinutes)
	fmt.Printf("  artifact_max_wait_minutes: %d\n", cfg.Detection.ArtifactMaxWaitMinutes)
	fmt.Printf("  multiphase_max_wait_minutes: %d\n", cfg.Detection.MultiPhaseMaxWaitMinutes)

	fmt.Println("guard:")
	fmt.Printf("  stale_after_minutes: %d\n", cfg.Guard.StaleAfterMinutes)

	fmt.Println("session:")
	fmt.Printf("  work_dir: %s\n", cfg.Session.WorkDir)
	fmt.Printf("  mode: %s\n", cfg.Session.Mode)

	fmt.Println("logging:")
	fmt.Printf("  enabled: %v\n", cfg.Logging.Enabled)
	fmt.Printf("  level: %s\n", cfg.Logging.Level)

	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key := args[0]
	value := args[1]

	// Validate the key exists
	validKeys := map[string]string{
		"retry.max_attempts":                    "int",
		"retry.rate_limited_max_attempts":       "int",
		"detection.poll_interval_ms":            "int",
		"detection.stability_window_seconds":    "int",
		"detection.settle_delay_seconds":        "int",
		"detection.appear_window_seconds":       "int",
		"detection.confirmation_window_seconds": "int",
		"detection.extended_max_wait_minutes":   "int",
		"detection.streaming_max_wait_minutes":  "int",
		"detection.artifact_max_wait_minutes":   "int",
		"detection.multiphase_max_wait_minutes": "int",
		"guard.stale_after_minutes":             "int",
		"session.work_dir":                      "string",
		"session.mode":                          "string",
		"logging.enabled":                       "bool",
		"logging.level":                         "string",
	}

	keyType, ok := validKeys[key]
	if !ok {
		return fmt.Errorf("unknown configuration key: %s\nRun 'autoai config set --help' to see valid keys", key)
	}

	// Validate the value based on type
	var typedValue interface{}
	switch keyType {
	case "string":
		if key == "session.mode" && !contains(config.ValidModes(), value) {
			return fmt.Errorf("invalid value for %s: %s\nValid options: %s",
				key, value, strings.Join(config.ValidModes(), ", "))
		}
		if key == "logging.level" && !contains(config.ValidLogLevels(), value) {
			return fmt.Errorf("invalid value for %s: %s\nValid options: %s",
				key, value, strings.Join(config.ValidLogLevels(), ", "))
		}
		typedValue = value
	case "bool":
		if value != "true" && value != "false" {
			return fmt.Errorf("invalid value for %s: expected true or false", key)
		}
		typedValue = value == "true"
	case "int":
		intVal, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for %s: expected integer", key)
		}
		if intVal < 0 {
			return fmt.Errorf("invalid value for %s: must be non-negative", key)
		}
		typedValue = intVal
	}

	// Ensure config directory exists
	configDir := config.ConfigDir()
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Set the value in viper
	viper.Set(key, typedValue)

	// Write to config file
	configFile := config.ConfigFile()
	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Printf("Set %s = %v\n", key, typedValue)
	fmt.Printf("Config saved to %s\n", configFile)

	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configDir := config.ConfigDir()
	configFile := config.ConfigFile()

	// Check if config file already exists
	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists at %s\nUse 'autoai config set' to modify values", configFile)
	}

	// Create config directory
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Generate a commented config file
	configContent := `# Autoai Configuration

# Tiered retry escalation
retry:
  # Per-operation attempt ceiling
  max_attempts: 20
  # Raised ceiling applied while failures classify as rate limiting
  rate_limited_max_attempts: 30
  # Backoff schedules per tier (saturating: the last value repeats)
  local_delays_seconds: [1, 2, 3, 5, 8]
  refresh_delays_seconds: [10, 20, 30]
  reset_delays_seconds: [30, 60, 120]

# Completion detection
detection:
  # How often progress is sampled
  poll_interval_ms: 2000
  # How long artifact output must hold stable to count as complete
  stability_window_seconds: 15
  # Initial wait before artifact polling starts
  settle_delay_seconds: 5
  # How long multi-phase mode waits for the indicator to first appear
  appear_window_seconds: 30
  # How long the cleared indicator must persist before completion
  confirmation_window_seconds: 10
  # Second-phase budget for multi-phase mode
  extended_max_wait_minutes: 40
  # Per-mode budgets for the primary work phase
  streaming_max_wait_minutes: 10
  artifact_max_wait_minutes: 15
  multiphase_max_wait_minutes: 10

# Duplicate-submission protection
guard:
  # How old a session holder may be before it is presumed crashed
  stale_after_minutes: 15

# Session settings
session:
  # Working directory shared with the driven service
  # (default: .autoai/sessions relative to the current directory)
  work_dir: ""
  # Default completion mode: streaming, artifact, multiphase
  mode: streaming

# Debug logging
logging:
  enabled: true
  level: info
  max_size_mb: 10
  max_backups: 3
`

	if err := os.WriteFile(configFile, []byte(configContent), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Printf("Created config file at %s\n", configFile)
	fmt.Println("Edit this file to customize autoai's behavior.")

	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	configFile := config.ConfigFile()

	if viper.ConfigFileUsed() != "" {
		fmt.Printf("Active config: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Printf("Default path: %s (not created)\n", configFile)
	}

	// Also show config search paths
	fmt.Println("\nSearch paths:")
	fmt.Printf("  1. %s\n", filepath.Join(config.ConfigDir(), "config.yaml"))
	fmt.Printf("  2. $HOME/.config/autoai/config.yaml\n")
	fmt.Printf("  3. ./config.yaml (current directory)\n")
	fmt.Println("\nEnvironment variables: AUTOAI_* (e.g., AUTOAI_RETRY_MAX_ATTEMPTS)")

	return nil
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
