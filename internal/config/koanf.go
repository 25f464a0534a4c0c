// Nivesh - Investment Tracking and Referral Accrual Backend
// Copyright 2026 Nivesh Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/niveshhq/nivesh

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/nivesh/config.yaml",
	"/etc/nivesh/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with all sensible defaults. These are
// applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Path:           "/data/nivesh",
			InMemory:       false,
			OpTimeout:      10 * time.Second,
			GCInterval:     10 * time.Minute,
			GCDiscardRatio: 0.5,
		},
		Accrual: AccrualConfig{
			Enabled:   true,
			Cron:      "30 0 * * *", // daily at 00:30
			Timezone:  "UTC",
			BaseRate:  0.012,
			Tier1Rate: 0.003,
			Tier2Rate: 0, // no default on purpose - operator must pin it
			Tier3Rate: 0.001,

			CycleTimeout: 5 * time.Minute,
			MinCycleGap:  12 * time.Hour,
		},
		Maturity: MaturityConfig{
			Enabled:      true,
			Cron:         "0 2 * * *", // daily at 02:00
			Timezone:     "UTC",
			Window:       8760 * time.Hour, // one year
			SweepTimeout: 10 * time.Minute,
		},
		Scheduler: SchedulerConfig{
			MonitorInterval: time.Minute,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			Timeout:         30 * time.Second,
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{},
		},
		Notify: NotifyConfig{
			Email: EmailConfig{
				Enabled:      false,
				SMTPPort:     587,
				SMTPFromName: "Nivesh",
				UseTLS:       true,
			},
			SMS: SMSConfig{
				Enabled:       false,
				Timeout:       30 * time.Second,
				RatePerSecond: 1,
				Burst:         5,
			},
			SummaryEnabled: false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load loads configuration using Koanf v2 with layered sources:
//
//  1. Defaults: built-in sensible defaults
//  2. Config file: optional YAML file (if present)
//  3. Environment variables: override any setting
func Load() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: optional config file
	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: environment variables (highest priority)
	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths. Returns
// the first file found, or empty string.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths defines which config paths are parsed as
// comma-separated slices when sourced from env vars.
var sliceConfigPaths = []string{
	"server.cors_origins",
	"notify.alert_emails",
}

// processSliceFields converts comma-separated string values to slices for
// known slice fields. Env vars come in as strings, the config expects
// slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		// Already a slice (from YAML file)
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to koanf config paths.
// Unmapped variables are skipped so random environment variables cannot
// pollute the configuration.
//
// Examples:
//   - STORE_PATH -> store.path
//   - ACCRUAL_TIER2_RATE -> accrual.tier2_rate
//   - MATURITY_WINDOW -> maturity.window
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Store mappings
		"store_path":             "store.path",
		"store_in_memory":        "store.in_memory",
		"store_op_timeout":       "store.op_timeout",
		"store_gc_interval":      "store.gc_interval",
		"store_gc_discard_ratio": "store.gc_discard_ratio",

		// Accrual mappings
		"accrual_enabled":       "accrual.enabled",
		"accrual_cron":          "accrual.cron",
		"accrual_timezone":      "accrual.timezone",
		"accrual_base_rate":     "accrual.base_rate",
		"accrual_tier1_rate":    "accrual.tier1_rate",
		"accrual_tier2_rate":    "accrual.tier2_rate",
		"accrual_tier3_rate":    "accrual.tier3_rate",
		"accrual_cycle_timeout": "accrual.cycle_timeout",
		"accrual_min_cycle_gap": "accrual.min_cycle_gap",

		// Maturity mappings
		"maturity_enabled":       "maturity.enabled",
		"maturity_cron":          "maturity.cron",
		"maturity_timezone":      "maturity.timezone",
		"maturity_window":        "maturity.window",
		"maturity_sweep_timeout": "maturity.sweep_timeout",

		// Scheduler mappings
		"scheduler_monitor_interval": "scheduler.monitor_interval",

		// Server mappings
		"http_host":           "server.host",
		"http_port":           "server.port",
		"http_timeout":        "server.timeout",
		"rate_limit_requests": "server.rate_limit_reqs",
		"rate_limit_window":   "server.rate_limit_window",
		"disable_rate_limit":  "server.rate_limit_disabled",
		"cors_origins":        "server.cors_origins",

		// Notify mappings
		"smtp_enabled":           "notify.email.enabled",
		"smtp_host":              "notify.email.smtp_host",
		"smtp_port":              "notify.email.smtp_port",
		"smtp_user":              "notify.email.smtp_user",
		"smtp_password":          "notify.email.smtp_password",
		"smtp_from":              "notify.email.smtp_from",
		"smtp_from_name":         "notify.email.smtp_from_name",
		"smtp_use_tls":           "notify.email.use_tls",
		"sms_enabled":            "notify.sms.enabled",
		"sms_gateway_url":        "notify.sms.gateway_url",
		"sms_api_key":            "notify.sms.api_key",
		"sms_sender_id":          "notify.sms.sender_id",
		"sms_timeout":            "notify.sms.timeout",
		"sms_rate_per_second":    "notify.sms.rate_per_second",
		"sms_burst":              "notify.sms.burst",
		"notify_alert_emails":    "notify.alert_emails",
		"notify_alert_phone":     "notify.alert_phone",
		"notify_summary_enabled": "notify.summary_enabled",

		// Logging mappings
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}

	return ""
}
