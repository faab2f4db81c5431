package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// ValidLogLevels returns the accepted logging.level values.
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks c and returns every problem found.
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError

	positive := func(field string, v int) {
		if v <= 0 {
			errs = append(errs, ValidationError{Field: field, Value: v, Message: "must be positive"})
		}
	}

	positive("engine.retry_interval_ms", c.Engine.RetryIntervalMs)
	positive("schedule.low_memory_compaction_seconds", c.Schedule.LowMemoryCompactionSeconds)
	positive("schedule.compaction_seconds", c.Schedule.CompactionSeconds)
	positive("schedule.ping_seconds", c.Schedule.PingSeconds)

	if c.Schedule.LowMemoryClass < 0 {
		errs = append(errs, ValidationError{
			Field:   "schedule.low_memory_class",
			Value:   c.Schedule.LowMemoryClass,
			Message: "must not be negative",
		})
	}
	if c.Probe.MemoryClass < 0 {
		errs = append(errs, ValidationError{
			Field:   "probe.memory_class",
			Value:   c.Probe.MemoryClass,
			Message: "must not be negative",
		})
	}
	if !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	return errs
}
