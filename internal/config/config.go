// Package config loads the orchestrator's environment-driven settings via
// viper, the way the rest of the retrieved pack configures its services.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Server holds the thin HTTP/WS adapter's own settings.
type Server struct {
	Port         string
	CORSOrigin   string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Config is the orchestrator's full configuration, sourced from environment
// variables per spec.md §6, with sane defaults when unset.
type Config struct {
	Server Server

	MaxConcurrentExecutions int

	BatchDeadline       time.Duration
	BatchStdinDeadline  time.Duration
	InteractiveDeadline time.Duration
	StopGrace           time.Duration

	// AuditDatabaseURL, if set, enables the best-effort execution audit
	// recorder. Empty disables it entirely — the orchestrator runs fine
	// without a database, since persisting code or output is a non-goal
	// and the audit recorder never stores either.
	AuditDatabaseURL string
}

// Load reads configuration from the environment, applying the defaults
// spec.md §6 names (PORT=3000, MAX_CONCURRENT_EXECUTIONS=5, CORS_ORIGIN=*).
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("")
	v.AutomaticEnv()

	v.SetDefault("PORT", "3000")
	v.SetDefault("MAX_CONCURRENT_EXECUTIONS", 5)
	v.SetDefault("CORS_ORIGIN", "*")
	v.SetDefault("BATCH_DEADLINE_SECONDS", 10)
	v.SetDefault("BATCH_STDIN_DEADLINE_SECONDS", 15)
	v.SetDefault("INTERACTIVE_DEADLINE_SECONDS", 300)
	v.SetDefault("STOP_GRACE_SECONDS", 10)
	v.SetDefault("HTTP_READ_TIMEOUT_SECONDS", 10)
	v.SetDefault("HTTP_WRITE_TIMEOUT_SECONDS", 30)
	v.SetDefault("HTTP_IDLE_TIMEOUT_SECONDS", 60)
	v.SetDefault("AUDIT_DATABASE_URL", "")

	maxConcurrent := v.GetInt("MAX_CONCURRENT_EXECUTIONS")
	if maxConcurrent < 1 {
		return nil, fmt.Errorf("config: MAX_CONCURRENT_EXECUTIONS must be >= 1, got %d", maxConcurrent)
	}

	return &Config{
		Server: Server{
			Port:         v.GetString("PORT"),
			CORSOrigin:   v.GetString("CORS_ORIGIN"),
			ReadTimeout:  time.Duration(v.GetInt("HTTP_READ_TIMEOUT_SECONDS")) * time.Second,
			WriteTimeout: time.Duration(v.GetInt("HTTP_WRITE_TIMEOUT_SECONDS")) * time.Second,
			IdleTimeout:  time.Duration(v.GetInt("HTTP_IDLE_TIMEOUT_SECONDS")) * time.Second,
		},
		MaxConcurrentExecutions: maxConcurrent,
		BatchDeadline:           time.Duration(v.GetInt("BATCH_DEADLINE_SECONDS")) * time.Second,
		BatchStdinDeadline:      time.Duration(v.GetInt("BATCH_STDIN_DEADLINE_SECONDS")) * time.Second,
		InteractiveDeadline:     time.Duration(v.GetInt("INTERACTIVE_DEADLINE_SECONDS")) * time.Second,
		StopGrace:               time.Duration(v.GetInt("STOP_GRACE_SECONDS")) * time.Second,
		AuditDatabaseURL:        v.GetString("AUDIT_DATABASE_URL"),
	}, nil
}
