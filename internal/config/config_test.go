package config

import (
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if errs := cfg.Validate(); len(errs) > 0 {
		t.Fatalf("default config invalid: %v", ValidationErrors(errs))
	}
}

func TestDurationAccessors(t *testing.T) {
	cfg := Default()
	if cfg.Orchestrator.Stagger() != 1500*time.Millisecond {
		t.Errorf("Stagger = %v", cfg.Orchestrator.Stagger())
	}
	if cfg.Orchestrator.PollInterval() != 500*time.Millisecond {
		t.Errorf("PollInterval = %v", cfg.Orchestrator.PollInterval())
	}
	if cfg.Agent.EarlyFailureThreshold() != 15*time.Second {
		t.Errorf("EarlyFailureThreshold = %v", cfg.Agent.EarlyFailureThreshold())
	}
	if cfg.Lock.StaleAfter() != 30*time.Second {
		t.Errorf("StaleAfter = %v", cfg.Lock.StaleAfter())
	}
}

func TestValidateCollectsAllViolations(t *testing.T) {
	cfg := Default()
	cfg.Agent.Command = ""
	cfg.Orchestrator.VisiblePanes = 9
	cfg.Tracker.Provider = "jira"
	cfg.Lock.StaleAfterSeconds = 0

	errs := cfg.Validate()
	if len(errs) != 4 {
		t.Fatalf("len(errs) = %d, want 4: %v", len(errs), errs)
	}
	combined := ValidationErrors(errs).Error()
	for _, want := range []string{"agent.command", "visible_panes", "tracker.provider", "stale_after_seconds"} {
		if !strings.Contains(combined, want) {
			t.Errorf("combined error missing %q:\n%s", want, combined)
		}
	}
}

func TestValidateVisiblePanesVersusBatchBound(t *testing.T) {
	cfg := Default()
	cfg.Orchestrator.MaxThreadsPerBatch = 2
	cfg.Orchestrator.VisiblePanes = 4
	errs := cfg.Validate()
	if len(errs) != 1 || !strings.Contains(errs[0].Error(), "exceeds") {
		t.Errorf("errs = %v", errs)
	}
}

func TestValidateLogLevel(t *testing.T) {
	cfg := Default()
	cfg.Logging.Level = "verbose"
	if errs := cfg.Validate(); len(errs) != 1 {
		t.Errorf("errs = %v", errs)
	}
	cfg.Logging.Level = "debug"
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("lowercase level rejected: %v", errs)
	}
}
