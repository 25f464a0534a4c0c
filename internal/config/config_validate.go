// Nivesh - Investment Tracking and Referral Accrual Backend
// Copyright 2026 Nivesh Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/niveshhq/nivesh

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/niveshhq/nivesh/internal/scheduler"
)

// Validate checks the configuration for invalid or inconsistent values.
// It is called after all sources are layered, so it sees the final
// effective configuration.
func (c *Config) Validate() error {
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if err := c.Accrual.Validate(); err != nil {
		return fmt.Errorf("accrual: %w", err)
	}
	if err := c.Maturity.Validate(); err != nil {
		return fmt.Errorf("maturity: %w", err)
	}
	if err := c.Scheduler.Validate(); err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Notify.Validate(); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	return nil
}

// Validate checks store configuration.
func (c *StoreConfig) Validate() error {
	if !c.InMemory && strings.TrimSpace(c.Path) == "" {
		return fmt.Errorf("path is required unless in_memory is set")
	}
	if c.OpTimeout <= 0 {
		return fmt.Errorf("op_timeout must be positive, got %v", c.OpTimeout)
	}
	if c.GCInterval <= 0 {
		return fmt.Errorf("gc_interval must be positive, got %v", c.GCInterval)
	}
	if c.GCDiscardRatio <= 0 || c.GCDiscardRatio >= 1 {
		return fmt.Errorf("gc_discard_ratio must be in (0, 1), got %v", c.GCDiscardRatio)
	}
	return nil
}

// Validate checks accrual configuration. The second-tier rate carries no
// default: an operator running accrual must pin it explicitly.
func (c *AccrualConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	if _, err := scheduler.ParseCron(c.Cron); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", c.Cron, err)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}

	if c.BaseRate <= 0 || c.BaseRate >= 1 {
		return fmt.Errorf("base_rate must be in (0, 1), got %v", c.BaseRate)
	}
	if c.Tier1Rate < 0 || c.Tier1Rate >= 1 {
		return fmt.Errorf("tier1_rate must be in [0, 1), got %v", c.Tier1Rate)
	}
	if c.Tier2Rate <= 0 {
		return fmt.Errorf("tier2_rate must be set explicitly when accrual is enabled")
	}
	if c.Tier2Rate >= 1 {
		return fmt.Errorf("tier2_rate must be in (0, 1), got %v", c.Tier2Rate)
	}
	if c.Tier3Rate < 0 || c.Tier3Rate >= 1 {
		return fmt.Errorf("tier3_rate must be in [0, 1), got %v", c.Tier3Rate)
	}

	if c.CycleTimeout <= 0 {
		return fmt.Errorf("cycle_timeout must be positive, got %v", c.CycleTimeout)
	}
	if c.MinCycleGap < 0 {
		return fmt.Errorf("min_cycle_gap cannot be negative, got %v", c.MinCycleGap)
	}
	return nil
}

// Validate checks maturity sweep configuration.
func (c *MaturityConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	if _, err := scheduler.ParseCron(c.Cron); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", c.Cron, err)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	if c.Window <= 0 {
		return fmt.Errorf("window must be positive, got %v", c.Window)
	}
	if c.SweepTimeout <= 0 {
		return fmt.Errorf("sweep_timeout must be positive, got %v", c.SweepTimeout)
	}
	return nil
}

// Validate checks scheduler configuration.
func (c *SchedulerConfig) Validate() error {
	if c.MonitorInterval <= 0 {
		return fmt.Errorf("monitor_interval must be positive, got %v", c.MonitorInterval)
	}
	return nil
}

// Validate checks HTTP server configuration.
func (c *ServerConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be in range 1-65535, got %d", c.Port)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", c.Timeout)
	}
	if !c.RateLimitDisabled {
		if c.RateLimitReqs <= 0 {
			return fmt.Errorf("rate_limit_reqs must be positive, got %d", c.RateLimitReqs)
		}
		if c.RateLimitWindow <= 0 {
			return fmt.Errorf("rate_limit_window must be positive, got %v", c.RateLimitWindow)
		}
	}
	return nil
}

// Validate checks notification configuration.
func (c *NotifyConfig) Validate() error {
	if c.Email.Enabled {
		if strings.TrimSpace(c.Email.SMTPHost) == "" {
			return fmt.Errorf("email: smtp_host is required when email is enabled")
		}
		if c.Email.SMTPPort < 1 || c.Email.SMTPPort > 65535 {
			return fmt.Errorf("email: smtp_port must be in range 1-65535, got %d", c.Email.SMTPPort)
		}
		if strings.TrimSpace(c.Email.SMTPFrom) == "" {
			return fmt.Errorf("email: smtp_from is required when email is enabled")
		}
		if len(c.AlertEmails) == 0 && !c.SummaryEnabled {
			return fmt.Errorf("email: enabled but no alert_emails configured")
		}
	}

	if c.SMS.Enabled {
		if strings.TrimSpace(c.SMS.GatewayURL) == "" {
			return fmt.Errorf("sms: gateway_url is required when sms is enabled")
		}
		if strings.TrimSpace(c.SMS.APIKey) == "" {
			return fmt.Errorf("sms: api_key is required when sms is enabled")
		}
		if c.SMS.Timeout <= 0 {
			return fmt.Errorf("sms: timeout must be positive, got %v", c.SMS.Timeout)
		}
		if c.SMS.RatePerSecond <= 0 {
			return fmt.Errorf("sms: rate_per_second must be positive, got %v", c.SMS.RatePerSecond)
		}
		if c.SMS.Burst <= 0 {
			return fmt.Errorf("sms: burst must be positive, got %d", c.SMS.Burst)
		}
	}

	return nil
}

// Validate checks logging configuration.
func (c *LoggingConfig) Validate() error {
	switch strings.ToLower(c.Level) {
	case "trace", "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return fmt.Errorf("invalid log level %q", c.Level)
	}
	switch strings.ToLower(c.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log format %q", c.Format)
	}
	return nil
}
