// Nivesh - Investment Tracking and Referral Accrual Backend
// Copyright 2026 Nivesh Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/niveshhq/nivesh

// Package config holds all application configuration, loaded with Koanf v2
// from layered sources (highest priority wins):
//
//  1. Environment variables
//  2. Optional YAML config file (config.yaml)
//  3. Built-in defaults
//
// Config is immutable after Load() and safe for concurrent read access.
package config

import "time"

// Config holds all application configuration.
type Config struct {
	Store     StoreConfig     `koanf:"store"`
	Accrual   AccrualConfig   `koanf:"accrual"`
	Maturity  MaturityConfig  `koanf:"maturity"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	Server    ServerConfig    `koanf:"server"`
	Notify    NotifyConfig    `koanf:"notify"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// StoreConfig configures the Badger-backed account store.
type StoreConfig struct {
	// Path is the Badger data directory. Required unless InMemory is set.
	Path string `koanf:"path"`

	// InMemory runs Badger without persistence. Test and development only.
	InMemory bool `koanf:"in_memory"`

	// OpTimeout bounds every individual store call.
	OpTimeout time.Duration `koanf:"op_timeout"`

	// GCInterval is how often the value-log GC service runs.
	GCInterval time.Duration `koanf:"gc_interval"`

	// GCDiscardRatio is passed to Badger's RunValueLogGC.
	GCDiscardRatio float64 `koanf:"gc_discard_ratio"`
}

// AccrualConfig configures the interest accrual engine and its schedule.
//
// Tier2Rate deliberately has no default: the operator must pin an explicit
// value, and Validate() rejects a configuration without one.
type AccrualConfig struct {
	Enabled bool `koanf:"enabled"`

	// Cron is a standard 5-field cron expression for cycle firing times.
	Cron string `koanf:"cron"`

	// Timezone is the IANA zone name the cron expression is evaluated in.
	Timezone string `koanf:"timezone"`

	// BaseRate is the per-cycle interest rate applied to each account's
	// own invested amount.
	BaseRate float64 `koanf:"base_rate"`

	// Tier1Rate..Tier3Rate weight the invested amounts found one, two and
	// three referral levels below an account.
	Tier1Rate float64 `koanf:"tier1_rate"`
	Tier2Rate float64 `koanf:"tier2_rate"`
	Tier3Rate float64 `koanf:"tier3_rate"`

	// CycleTimeout is the deadline for one full accrual cycle.
	CycleTimeout time.Duration `koanf:"cycle_timeout"`

	// MinCycleGap is the minimum wall-clock distance between two applied
	// cycles. A cycle starting earlier than this after the persisted
	// watermark is refused, which is what makes reruns safe.
	MinCycleGap time.Duration `koanf:"min_cycle_gap"`
}

// MaturityConfig configures the investment maturity sweeper.
type MaturityConfig struct {
	Enabled bool `koanf:"enabled"`

	Cron     string `koanf:"cron"`
	Timezone string `koanf:"timezone"`

	// Window is the minimum age of a transaction before its principal is
	// released from the account's invested amount.
	Window time.Duration `koanf:"window"`

	// SweepTimeout is the deadline for one full sweep.
	SweepTimeout time.Duration `koanf:"sweep_timeout"`
}

// SchedulerConfig configures the schedule monitor.
type SchedulerConfig struct {
	// MonitorInterval is how often the monitor polls each schedule's
	// running state and restarts stopped ones.
	MonitorInterval time.Duration `koanf:"monitor_interval"`
}

// ServerConfig configures the read-only ops HTTP server.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`

	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`

	CORSOrigins []string `koanf:"cors_origins"`
}

// NotifyConfig configures cycle alerting and summaries.
type NotifyConfig struct {
	Email EmailConfig `koanf:"email"`
	SMS   SMSConfig   `koanf:"sms"`

	// AlertEmails receive cycle-failure alerts and summaries.
	AlertEmails []string `koanf:"alert_emails"`

	// AlertPhone receives SMS alerts on failed cycles, if SMS is enabled.
	AlertPhone string `koanf:"alert_phone"`

	// SummaryEnabled additionally emails a report after successful cycles.
	SummaryEnabled bool `koanf:"summary_enabled"`
}

// EmailConfig holds SMTP delivery settings.
type EmailConfig struct {
	Enabled      bool   `koanf:"enabled"`
	SMTPHost     string `koanf:"smtp_host"`
	SMTPPort     int    `koanf:"smtp_port"`
	SMTPUser     string `koanf:"smtp_user"`
	SMTPPassword string `koanf:"smtp_password"`
	SMTPFrom     string `koanf:"smtp_from"`
	SMTPFromName string `koanf:"smtp_from_name"`
	UseTLS       bool   `koanf:"use_tls"`
}

// SMSConfig holds SMS gateway settings. The gateway is an external HTTP
// API; calls go through a circuit breaker and an outbound rate limiter.
type SMSConfig struct {
	Enabled    bool          `koanf:"enabled"`
	GatewayURL string        `koanf:"gateway_url"`
	APIKey     string        `koanf:"api_key"`
	SenderID   string        `koanf:"sender_id"`
	Timeout    time.Duration `koanf:"timeout"`

	// RatePerSecond and Burst bound outbound sends.
	RatePerSecond float64 `koanf:"rate_per_second"`
	Burst         int     `koanf:"burst"`
}

// LoggingConfig holds log level and output format.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}
