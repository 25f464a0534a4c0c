// Nivesh - Investment Tracking and Referral Accrual Backend
// Copyright 2026 Nivesh Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/niveshhq/nivesh

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// withTier2 sets the one env var without which an accrual-enabled config
// cannot validate.
func withTier2(t *testing.T) {
	t.Helper()
	t.Setenv("ACCRUAL_TIER2_RATE", "0.002")
}

func TestLoadDefaults(t *testing.T) {
	withTier2(t)
	t.Setenv("STORE_IN_MEMORY", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Accrual.BaseRate != 0.012 {
		t.Errorf("BaseRate = %v, want 0.012", cfg.Accrual.BaseRate)
	}
	if cfg.Accrual.Tier1Rate != 0.003 {
		t.Errorf("Tier1Rate = %v, want 0.003", cfg.Accrual.Tier1Rate)
	}
	if cfg.Accrual.Tier2Rate != 0.002 {
		t.Errorf("Tier2Rate = %v, want 0.002 from env", cfg.Accrual.Tier2Rate)
	}
	if cfg.Accrual.Tier3Rate != 0.001 {
		t.Errorf("Tier3Rate = %v, want 0.001", cfg.Accrual.Tier3Rate)
	}
	if cfg.Accrual.Cron != "30 0 * * *" {
		t.Errorf("Accrual.Cron = %q, want daily at 00:30", cfg.Accrual.Cron)
	}
	if cfg.Maturity.Window != 8760*time.Hour {
		t.Errorf("Maturity.Window = %v, want 8760h", cfg.Maturity.Window)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want info", cfg.Logging.Level)
	}
}

func TestLoadRequiresTier2Rate(t *testing.T) {
	t.Setenv("STORE_IN_MEMORY", "true")

	if _, err := Load(); err == nil {
		t.Fatal("Load should fail when accrual.tier2_rate is not pinned")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	withTier2(t)
	t.Setenv("STORE_IN_MEMORY", "true")
	t.Setenv("ACCRUAL_BASE_RATE", "0.02")
	t.Setenv("MATURITY_WINDOW", "720h")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("NOTIFY_ALERT_EMAILS", "ops@example.com, admin@example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Accrual.BaseRate != 0.02 {
		t.Errorf("BaseRate = %v, want 0.02", cfg.Accrual.BaseRate)
	}
	if cfg.Maturity.Window != 720*time.Hour {
		t.Errorf("Maturity.Window = %v, want 720h", cfg.Maturity.Window)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	want := []string{"ops@example.com", "admin@example.com"}
	if len(cfg.Notify.AlertEmails) != len(want) {
		t.Fatalf("AlertEmails = %v, want %v", cfg.Notify.AlertEmails, want)
	}
	for i := range want {
		if cfg.Notify.AlertEmails[i] != want[i] {
			t.Errorf("AlertEmails[%d] = %q, want %q", i, cfg.Notify.AlertEmails[i], want[i])
		}
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
store:
  in_memory: true
accrual:
  tier2_rate: 0.0025
  cron: "0 1 * * *"
server:
  port: 3000
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Accrual.Tier2Rate != 0.0025 {
		t.Errorf("Tier2Rate = %v, want 0.0025 from file", cfg.Accrual.Tier2Rate)
	}
	if cfg.Accrual.Cron != "0 1 * * *" {
		t.Errorf("Accrual.Cron = %q, want from file", cfg.Accrual.Cron)
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("Server.Port = %d, want 3000", cfg.Server.Port)
	}
	// Untouched sections keep defaults.
	if cfg.Accrual.BaseRate != 0.012 {
		t.Errorf("BaseRate = %v, want default 0.012", cfg.Accrual.BaseRate)
	}
}

func TestEnvBeatsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
store:
  in_memory: true
accrual:
  tier2_rate: 0.0025
server:
  port: 3000
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("HTTP_PORT", "4000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 4000 {
		t.Errorf("Server.Port = %d, want env override 4000", cfg.Server.Port)
	}
}

func TestValidateStore(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing path", func(c *Config) { c.Store.InMemory = false; c.Store.Path = "" }, true},
		{"in-memory without path", func(c *Config) { c.Store.InMemory = true; c.Store.Path = "" }, false},
		{"bad gc ratio", func(c *Config) { c.Store.GCDiscardRatio = 1.5 }, true},
		{"zero op timeout", func(c *Config) { c.Store.OpTimeout = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.Accrual.Tier2Rate = 0.002
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateAccrual(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*AccrualConfig)
		wantErr bool
	}{
		{"valid", func(c *AccrualConfig) {}, false},
		{"disabled skips checks", func(c *AccrualConfig) { c.Enabled = false; c.Tier2Rate = 0 }, false},
		{"unset tier2", func(c *AccrualConfig) { c.Tier2Rate = 0 }, true},
		{"tier2 too large", func(c *AccrualConfig) { c.Tier2Rate = 1.5 }, true},
		{"zero base rate", func(c *AccrualConfig) { c.BaseRate = 0 }, true},
		{"negative tier1", func(c *AccrualConfig) { c.Tier1Rate = -0.1 }, true},
		{"bad cron", func(c *AccrualConfig) { c.Cron = "nope" }, true},
		{"bad timezone", func(c *AccrualConfig) { c.Timezone = "Mars/Olympus" }, true},
		{"zero cycle timeout", func(c *AccrualConfig) { c.CycleTimeout = 0 }, true},
		{"negative cycle gap", func(c *AccrualConfig) { c.MinCycleGap = -time.Hour }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig().Accrual
			cfg.Tier2Rate = 0.002
			tt.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateNotify(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*NotifyConfig)
		wantErr bool
	}{
		{"all disabled", func(c *NotifyConfig) {}, false},
		{
			"email enabled without host",
			func(c *NotifyConfig) { c.Email.Enabled = true },
			true,
		},
		{
			"email enabled complete",
			func(c *NotifyConfig) {
				c.Email.Enabled = true
				c.Email.SMTPHost = "smtp.example.com"
				c.Email.SMTPFrom = "nivesh@example.com"
				c.AlertEmails = []string{"ops@example.com"}
			},
			false,
		},
		{
			"email enabled without recipients",
			func(c *NotifyConfig) {
				c.Email.Enabled = true
				c.Email.SMTPHost = "smtp.example.com"
				c.Email.SMTPFrom = "nivesh@example.com"
			},
			true,
		},
		{
			"sms enabled without gateway",
			func(c *NotifyConfig) { c.SMS.Enabled = true },
			true,
		},
		{
			"sms enabled complete",
			func(c *NotifyConfig) {
				c.SMS.Enabled = true
				c.SMS.GatewayURL = "https://sms.example.com/send"
				c.SMS.APIKey = "key"
			},
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig().Notify
			tt.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
