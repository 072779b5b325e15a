package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a single configuration validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s (value: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors aggregates multiple ValidationError values so callers can
// see every problem in one pass instead of stopping at the first.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	messages := make([]string, 0, len(e))
	for _, err := range e {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("multiple validation errors: %s", strings.Join(messages, "; "))
}

// ValidateExtended performs the full range/consistency check beyond
// Validate's fast-fail checks, collecting every violation it finds rather
// than returning on the first.
func (c *RuntimeConfig) ValidateExtended() error {
	var errs ValidationErrors

	errs = append(errs, c.validateScheduler()...)
	errs = append(errs, c.validateHypervisor()...)
	errs = append(errs, c.validateMetrics()...)

	if len(errs) == 0 {
		return nil
	}
	return errs
}

func (c *RuntimeConfig) validateScheduler() ValidationErrors {
	var errs ValidationErrors
	s := c.Scheduler
	if s.MaxPrio <= 0 {
		errs = append(errs, ValidationError{Field: "scheduler.max_prio", Value: s.MaxPrio, Message: "must be positive"})
	}
	if s.MaxPrefetch < 1 {
		errs = append(errs, ValidationError{Field: "scheduler.max_prefetch", Value: s.MaxPrefetch, Message: "must be at least 1"})
	}
	return errs
}

func (c *RuntimeConfig) validateHypervisor() ValidationErrors {
	var errs ValidationErrors
	h := c.Hypervisor
	if h.DefaultMinWorkers < 0 {
		errs = append(errs, ValidationError{Field: "hypervisor.default_min_workers", Value: h.DefaultMinWorkers, Message: "must be non-negative"})
	}
	if h.DefaultMaxWorkers < h.DefaultMinWorkers {
		errs = append(errs, ValidationError{Field: "hypervisor.default_max_workers", Value: h.DefaultMaxWorkers, Message: "must be >= default_min_workers"})
	}
	if h.DefaultGranularity <= 0 {
		errs = append(errs, ValidationError{Field: "hypervisor.default_granularity", Value: h.DefaultGranularity, Message: "must be positive"})
	}
	if h.MinTasks < 0 {
		errs = append(errs, ValidationError{Field: "hypervisor.min_tasks", Value: h.MinTasks, Message: "must be non-negative"})
	}
	switch h.Policy {
	case "idle", "app_driven", "gflops_rate":
	default:
		errs = append(errs, ValidationError{Field: "hypervisor.policy", Value: h.Policy, Message: "must be one of idle, app_driven, gflops_rate"})
	}
	return errs
}

func (c *RuntimeConfig) validateMetrics() ValidationErrors {
	var errs ValidationErrors
	m := c.Metrics
	if m.Enabled && m.Listen == "" {
		errs = append(errs, ValidationError{Field: "metrics.listen", Value: m.Listen, Message: "must be set when metrics are enabled"})
	}
	return errs
}
