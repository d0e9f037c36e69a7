package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "retry.max_attempts")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidModes returns the list of valid completion modes
func ValidModes() []string {
	return []string{"streaming", "artifact", "multiphase", "multi-phase"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateRetry()...)
	errors = append(errors, c.validateDetection()...)
	errors = append(errors, c.validateGuard()...)
	errors = append(errors, c.validateSession()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

// validateRetry validates the RetryConfig
func (c *Config) validateRetry() []ValidationError {
	var errors []ValidationError

	if c.Retry.MaxAttempts < 1 {
		errors = append(errors, ValidationError{
			Field:   "retry.max_attempts",
			Value:   c.Retry.MaxAttempts,
			Message: "must be at least 1",
		})
	}
	if c.Retry.RateLimitedMaxAttempts < c.Retry.MaxAttempts {
		errors = append(errors, ValidationError{
			Field:   "retry.rate_limited_max_attempts",
			Value:   c.Retry.RateLimitedMaxAttempts,
			Message: "must not be lower than retry.max_attempts",
		})
	}

	schedules := []struct {
		field  string
		delays []int
	}{
		{"retry.local_delays_seconds", c.Retry.LocalDelaysSeconds},
		{"retry.refresh_delays_seconds", c.Retry.RefreshDelaysSeconds},
		{"retry.reset_delays_seconds", c.Retry.ResetDelaysSeconds},
	}
	for _, s := range schedules {
		if len(s.delays) == 0 {
			errors = append(errors, ValidationError{
				Field:   s.field,
				Value:   s.delays,
				Message: "must contain at least one delay",
			})
			continue
		}
		for _, d := range s.delays {
			if d < 0 {
				errors = append(errors, ValidationError{
					Field:   s.field,
					Value:   d,
					Message: "delays must be non-negative",
				})
				break
			}
		}
	}

	return errors
}

// validateDetection validates the DetectionConfig
func (c *Config) validateDetection() []ValidationError {
	var errors []ValidationError

	if c.Detection.PollIntervalMs < 1 {
		errors = append(errors, ValidationError{
			Field:   "detection.poll_interval_ms",
			Value:   c.Detection.PollIntervalMs,
			Message: "must be at least 1",
		})
	}
	if c.Detection.StabilityWindowSeconds < 1 {
		errors = append(errors, ValidationError{
			Field:   "detection.stability_window_seconds",
			Value:   c.Detection.StabilityWindowSeconds,
			Message: "must be at least 1",
		})
	}
	if c.Detection.SettleDelaySeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "detection.settle_delay_seconds",
			Value:   c.Detection.SettleDelaySeconds,
			Message: "must be non-negative",
		})
	}
	if c.Detection.AppearWindowSeconds < 1 {
		errors = append(errors, ValidationError{
			Field:   "detection.appear_window_seconds",
			Value:   c.Detection.AppearWindowSeconds,
			Message: "must be at least 1",
		})
	}
	if c.Detection.ConfirmationWindowSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "detection.confirmation_window_seconds",
			Value:   c.Detection.ConfirmationWindowSeconds,
			Message: "must be non-negative",
		})
	}

	budgets := []struct {
		field string
		value int
	}{
		{"detection.extended_max_wait_minutes", c.Detection.ExtendedMaxWaitMinutes},
		{"detection.streaming_max_wait_minutes", c.Detection.StreamingMaxWaitMinutes},
		{"detection.artifact_max_wait_minutes", c.Detection.ArtifactMaxWaitMinutes},
		{"detection.multiphase_max_wait_minutes", c.Detection.MultiPhaseMaxWaitMinutes},
	}
	for _, b := range budgets {
		if b.value < 1 {
			errors = append(errors, ValidationError{
				Field:   b.field,
				Value:   b.value,
				Message: "must be at least 1",
			})
		}
	}

	return errors
}

// validateGuard validates the GuardConfig
func (c *Config) validateGuard() []ValidationError {
	var errors []ValidationError

	if c.Guard.StaleAfterMinutes < 0 {
		errors = append(errors, ValidationError{
			Field:   "guard.stale_after_minutes",
			Value:   c.Guard.StaleAfterMinutes,
			Message: "must be non-negative (0 uses the built-in default)",
		})
	}

	return errors
}

// validateSession validates the SessionConfig
func (c *Config) validateSession() []ValidationError {
	var errors []ValidationError

	if c.Session.Mode != "" && !slices.Contains(ValidModes(), c.Session.Mode) {
		errors = append(errors, ValidationError{
			Field:   "session.mode",
			Value:   c.Session.Mode,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidModes(), ", ")),
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}
	if c.Logging.MaxSizeMB < 1 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be at least 1",
		})
	}
	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}
