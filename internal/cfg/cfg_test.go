package cfg

import (
	"flag"
	"math"
	"strings"
	"testing"
)

// validBase returns a Config with all required fields set to valid values.
func validBase() Config {
	return Config{
		DrainSeconds:          60,
		ShutdownBudgetSeconds: 90,
		APIPort:               8080,
		ClaudeAPIKey:          "sk-test-key",
		ClaudeModel:           "claude-sonnet-4-20250514",
		AdminToken:            "test-token-123",
		RateLimit:             5,
		RateWindowSeconds:     60,
		RunLogListLimit:       200,
	}
}

func TestRegisterFlags_Defaults(t *testing.T) {
	t.Parallel()

	var c Config
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.RegisterFlags(fs)

	if err := fs.Parse(nil); err != nil {
		t.Fatalf("parse empty args: %v", err)
	}

	if c.DrainSeconds != 60 {
		t.Errorf("DrainSeconds = %d, want 60", c.DrainSeconds)
	}
	if c.ShutdownBudgetSeconds != 90 {
		t.Errorf("ShutdownBudgetSeconds = %d, want 90", c.ShutdownBudgetSeconds)
	}
	if c.APIPort != 8080 {
		t.Errorf("APIPort = %d, want 8080", c.APIPort)
	}
	if c.ClaudeModel != "claude-sonnet-4-20250514" {
		t.Errorf("ClaudeModel = %q, want %q", c.ClaudeModel, "claude-sonnet-4-20250514")
	}
	if c.RateLimit != 5 {
		t.Errorf("RateLimit = %d, want 5", c.RateLimit)
	}
	if c.RateWindowSeconds != 60 {
		t.Errorf("RateWindowSeconds = %d, want 60", c.RateWindowSeconds)
	}
	if c.DatabaseURL != "" {
		t.Errorf("DatabaseURL = %q, want empty", c.DatabaseURL)
	}
	if c.SimulateEmailFailure {
		t.Error("SimulateEmailFailure = true, want false")
	}
}

func TestRegisterFlags_Override(t *testing.T) {
	t.Parallel()

	var c Config
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.RegisterFlags(fs)

	args := []string{
		"-drain-seconds", "30",
		"-shutdown-budget-seconds", "120",
		"-http-port", "9090",
		"-database-url", "postgres://sift:pw@db:5432/sift",
		"-claude-api-key", "sk-override",
		"-webhook-url", "https://hooks.example.com/sift",
		"-admin-token", "tok-override",
		"-rate-limit", "10",
		"-simulate-email-failure",
	}
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse args: %v", err)
	}

	if c.DrainSeconds != 30 {
		t.Errorf("DrainSeconds = %d, want 30", c.DrainSeconds)
	}
	if c.ShutdownBudgetSeconds != 120 {
		t.Errorf("ShutdownBudgetSeconds = %d, want 120", c.ShutdownBudgetSeconds)
	}
	if c.APIPort != 9090 {
		t.Errorf("APIPort = %d, want 9090", c.APIPort)
	}
	if c.DatabaseURL != "postgres://sift:pw@db:5432/sift" {
		t.Errorf("DatabaseURL = %q, want override", c.DatabaseURL)
	}
	if c.ClaudeAPIKey != "sk-override" {
		t.Errorf("ClaudeAPIKey = %q, want %q", c.ClaudeAPIKey, "sk-override")
	}
	if c.WebhookURL != "https://hooks.example.com/sift" {
		t.Errorf("WebhookURL = %q, want override", c.WebhookURL)
	}
	if c.AdminToken != "tok-override" {
		t.Errorf("AdminToken = %q, want %q", c.AdminToken, "tok-override")
	}
	if c.RateLimit != 10 {
		t.Errorf("RateLimit = %d, want 10", c.RateLimit)
	}
	if !c.SimulateEmailFailure {
		t.Error("SimulateEmailFailure = false, want true")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		mutate    func(*Config)
		wantErr   bool
		errSubstr []string // substrings that must appear in error message
	}{
		{
			name:    "base is valid",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name: "empty claude key selects mock and is valid",
			mutate: func(c *Config) {
				c.ClaudeAPIKey = ""
				c.ClaudeModel = ""
			},
			wantErr: false,
		},
		{
			name:    "empty webhook url is valid",
			mutate:  func(c *Config) { c.WebhookURL = "" },
			wantErr: false,
		},
		{
			name:    "webhook url with scheme and host is valid",
			mutate:  func(c *Config) { c.WebhookURL = "https://hooks.example.com/sift" },
			wantErr: false,
		},
		{
			name:      "webhook url missing scheme",
			mutate:    func(c *Config) { c.WebhookURL = "hooks.example.com/sift" },
			wantErr:   true,
			errSubstr: []string{"WEBHOOK_URL"},
		},
		{
			name:      "drain zero",
			mutate:    func(c *Config) { c.DrainSeconds = 0 },
			wantErr:   true,
			errSubstr: []string{"DRAIN_SECONDS"},
		},
		{
			name:      "drain above max",
			mutate:    func(c *Config) { c.DrainSeconds = 301; c.ShutdownBudgetSeconds = 302 },
			wantErr:   true,
			errSubstr: []string{"DRAIN_SECONDS"},
		},
		{
			name:      "budget zero",
			mutate:    func(c *Config) { c.ShutdownBudgetSeconds = 0 },
			wantErr:   true,
			errSubstr: []string{"SHUTDOWN_BUDGET_SECONDS"},
		},
		{
			name:      "budget equals drain",
			mutate:    func(c *Config) { c.ShutdownBudgetSeconds = c.DrainSeconds },
			wantErr:   true,
			errSubstr: []string{"must be greater than"},
		},
		{
			name:      "port zero",
			mutate:    func(c *Config) { c.APIPort = 0 },
			wantErr:   true,
			errSubstr: []string{"HTTP_PORT"},
		},
		{
			name:      "port above max",
			mutate:    func(c *Config) { c.APIPort = 65536 },
			wantErr:   true,
			errSubstr: []string{"HTTP_PORT"},
		},
		{
			name:      "empty admin token",
			mutate:    func(c *Config) { c.AdminToken = "" },
			wantErr:   true,
			errSubstr: []string{"ADMIN_TOKEN"},
		},
		{
			name:      "rate limit zero",
			mutate:    func(c *Config) { c.RateLimit = 0 },
			wantErr:   true,
			errSubstr: []string{"RATE_LIMIT"},
		},
		{
			name:      "rate window negative",
			mutate:    func(c *Config) { c.RateWindowSeconds = -1 },
			wantErr:   true,
			errSubstr: []string{"RATE_WINDOW_SECONDS"},
		},
		{
			name:      "run log list limit zero",
			mutate:    func(c *Config) { c.RunLogListLimit = 0 },
			wantErr:   true,
			errSubstr: []string{"RUN_LOG_LIST_LIMIT"},
		},
		{
			name: "claude key without model",
			mutate: func(c *Config) {
				c.ClaudeAPIKey = "sk-test"
				c.ClaudeModel = ""
			},
			wantErr:   true,
			errSubstr: []string{"CLAUDE_MODEL"},
		},
		{
			name: "all fields invalid accumulates",
			mutate: func(c *Config) {
				*c = Config{}
			},
			wantErr:   true,
			errSubstr: []string{"DRAIN_SECONDS", "SHUTDOWN_BUDGET_SECONDS", "HTTP_PORT", "ADMIN_TOKEN", "RATE_LIMIT", "RATE_WINDOW_SECONDS", "RUN_LOG_LIST_LIMIT"},
		},
		{
			name: "extreme negative values",
			mutate: func(c *Config) {
				c.DrainSeconds = math.MinInt32
				c.ShutdownBudgetSeconds = math.MinInt32
				c.APIPort = math.MinInt32
			},
			wantErr:   true,
			errSubstr: []string{"DRAIN_SECONDS", "SHUTDOWN_BUDGET_SECONDS", "HTTP_PORT"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := validBase()
			tt.mutate(&c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				errMsg := err.Error()
				for _, sub := range tt.errSubstr {
					if !strings.Contains(errMsg, sub) {
						t.Errorf("error %q does not contain %q", errMsg, sub)
					}
				}
			}
		})
	}
}
