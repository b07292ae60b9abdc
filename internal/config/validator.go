package config

import (
	"fmt"
	"strings"
)

// ValidationErrors aggregates every config problem found in one pass so
// the user can fix them all at once.
type ValidationErrors []error

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("invalid configuration:\n  - %s", strings.Join(msgs, "\n  - "))
}

// ValidProviders lists the supported tracker providers.
func ValidProviders() []string {
	return []string{"github", "none"}
}

// Validate checks the configuration and returns every violation found.
func (c *Config) Validate() []error {
	var errs []error

	if c.Agent.Command == "" {
		errs = append(errs, fmt.Errorf("agent.command must not be empty"))
	}
	if c.Agent.EarlyFailureThresholdSeconds < 0 {
		errs = append(errs, fmt.Errorf("agent.early_failure_threshold_seconds must be >= 0, got %d",
			c.Agent.EarlyFailureThresholdSeconds))
	}

	if c.Orchestrator.MaxThreadsPerBatch < 1 {
		errs = append(errs, fmt.Errorf("orchestrator.max_threads_per_batch must be >= 1, got %d",
			c.Orchestrator.MaxThreadsPerBatch))
	}
	if c.Orchestrator.VisiblePanes < 1 || c.Orchestrator.VisiblePanes > 4 {
		errs = append(errs, fmt.Errorf("orchestrator.visible_panes must be between 1 and 4, got %d",
			c.Orchestrator.VisiblePanes))
	}
	if c.Orchestrator.VisiblePanes > c.Orchestrator.MaxThreadsPerBatch {
		errs = append(errs, fmt.Errorf("orchestrator.visible_panes (%d) exceeds max_threads_per_batch (%d)",
			c.Orchestrator.VisiblePanes, c.Orchestrator.MaxThreadsPerBatch))
	}
	if c.Orchestrator.StaggerMs < 0 {
		errs = append(errs, fmt.Errorf("orchestrator.stagger_ms must be >= 0, got %d", c.Orchestrator.StaggerMs))
	}
	if c.Orchestrator.PollIntervalMs < 50 {
		errs = append(errs, fmt.Errorf("orchestrator.poll_interval_ms must be >= 50, got %d",
			c.Orchestrator.PollIntervalMs))
	}

	validProvider := false
	for _, p := range ValidProviders() {
		if c.Tracker.Provider == p {
			validProvider = true
			break
		}
	}
	if !validProvider {
		errs = append(errs, fmt.Errorf("tracker.provider must be one of %s, got %q",
			strings.Join(ValidProviders(), ", "), c.Tracker.Provider))
	}

	if c.Lock.StaleAfterSeconds < 1 {
		errs = append(errs, fmt.Errorf("lock.stale_after_seconds must be >= 1, got %d", c.Lock.StaleAfterSeconds))
	}
	if c.Lock.RetryIntervalMs < 1 {
		errs = append(errs, fmt.Errorf("lock.retry_interval_ms must be >= 1, got %d", c.Lock.RetryIntervalMs))
	}
	if c.Lock.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("lock.max_retries must be >= 0, got %d", c.Lock.MaxRetries))
	}

	switch strings.ToUpper(c.Logging.Level) {
	case "DEBUG", "INFO", "WARN", "ERROR", "":
	default:
		errs = append(errs, fmt.Errorf("logging.level must be one of DEBUG, INFO, WARN, ERROR, got %q",
			c.Logging.Level))
	}

	return errs
}
