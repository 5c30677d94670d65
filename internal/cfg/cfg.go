// Package cfg holds the application configuration registered alongside the
// go-core package configs in main.
package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
)

// Config adds sift-specific configuration fields to the common
// cfg.Registerable and cfg.Validatable interfaces.
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	DatabaseURL           string
	ClaudeAPIKey          string
	ClaudeModel           string
	WebhookURL            string
	AdminToken            string
	RateLimit             int
	RateWindowSeconds     int
	RunLogListLimit       int
	SimulateEmailFailure  bool
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL (empty = in-memory store)")
	fs.StringVar(&c.ClaudeAPIKey, "claude-api-key", "", "API key for the Claude analysis backend (empty = deterministic mock provider)")
	fs.StringVar(&c.ClaudeModel, "claude-model", "claude-sonnet-4-20250514", "Claude model to use")
	fs.StringVar(&c.WebhookURL, "webhook-url", "", "endpoint for ticket event notifications (empty = webhooks disabled)")
	fs.StringVar(&c.AdminToken, "admin-token", "", "bearer token protecting admin API routes")
	fs.IntVar(&c.RateLimit, "rate-limit", 5, "max ticket submissions per client per window")
	fs.IntVar(&c.RateWindowSeconds, "rate-window-seconds", 60, "rate limit window in seconds")
	fs.IntVar(&c.RunLogListLimit, "run-log-list-limit", 200, "max run-log entries returned by the logs endpoint")
	fs.BoolVar(&c.SimulateEmailFailure, "simulate-email-failure", false, "force the email transport to fail (outbox testing)")
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}

	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	if c.WebhookURL != "" {
		if u, err := url.Parse(c.WebhookURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("invalid WEBHOOK_URL %q", c.WebhookURL))
		}
	}

	// Admin routes are useless without a token; require one so they can
	// never be exposed unauthenticated by accident.
	if c.AdminToken == "" {
		errs = append(errs, errors.New("ADMIN_TOKEN is required"))
	}

	if c.RateLimit <= 0 {
		errs = append(errs, fmt.Errorf("invalid RATE_LIMIT %d (must be positive)", c.RateLimit))
	}
	if c.RateWindowSeconds <= 0 {
		errs = append(errs, fmt.Errorf("invalid RATE_WINDOW_SECONDS %d (must be positive)", c.RateWindowSeconds))
	}
	if c.RunLogListLimit <= 0 {
		errs = append(errs, fmt.Errorf("invalid RUN_LOG_LIST_LIMIT %d (must be positive)", c.RunLogListLimit))
	}

	if c.ClaudeAPIKey != "" && c.ClaudeModel == "" {
		errs = append(errs, errors.New("CLAUDE_MODEL is required when CLAUDE_API_KEY is set"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
