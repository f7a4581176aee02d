package config

import (
	"fmt"
	"net/url"
	"strings"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError blocks execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is surfaced but does not block.
	SeverityWarning IssueSeverity = "warning"
)

// Issue is a single validation finding. Path is the configuration key.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// Validate checks cfg without mutating it.
func Validate(cfg Config) []Issue {
	var issues []Issue

	if strings.TrimSpace(cfg.URL) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "url",
			Message:  "a database URL is required (--url or PGSLICE_URL)",
		})
	} else if u, err := url.Parse(cfg.URL); err == nil && u.Scheme != "" && u.Scheme != "postgres" && u.Scheme != "postgresql" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "url",
			Message:  fmt.Sprintf("unsupported scheme %q; pgslice only talks to Postgres", u.Scheme),
		})
	}

	if strings.TrimSpace(cfg.Schema) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "schema",
			Message:  "schema must not be empty",
		})
	}
	if cfg.BatchSize <= 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "batch_size",
			Message:  fmt.Sprintf("batch size must be positive, got %d", cfg.BatchSize),
		})
	}
	if cfg.Sleep < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "sleep",
			Message:  "sleep must not be negative",
		})
	}
	if strings.TrimSpace(cfg.LockTimeout) == "" {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "lock_timeout",
			Message:  "no lock timeout; swap may queue behind long transactions",
		})
	}

	issues = append(issues, validateMetrics(cfg.Metrics)...)
	return issues
}

func validateMetrics(m Metrics) []Issue {
	var issues []Issue
	switch m.Backend {
	case "", "none":
	case "prometheus":
		if strings.TrimSpace(m.PushgatewayURL) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "metrics.pushgateway_url",
				Message:  "prometheus backend requires a Pushgateway URL",
			})
		}
	case "datadog":
		if strings.TrimSpace(m.DatadogAddr) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "metrics.datadog_addr",
				Message:  "datadog backend requires a DogStatsD address",
			})
		}
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "metrics.backend",
			Message:  fmt.Sprintf("unknown metrics backend %q (want none, prometheus or datadog)", m.Backend),
		})
	}
	return issues
}

// Errors returns only the blocking issues.
func Errors(issues []Issue) []Issue {
	var out []Issue
	for _, i := range issues {
		if i.Severity == SeverityError {
			out = append(out, i)
		}
	}
	return out
}
