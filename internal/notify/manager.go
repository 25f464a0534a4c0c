// Nivesh - Investment Tracking and Referral Accrual Backend
// Copyright 2026 Nivesh Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/niveshhq/nivesh

package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/niveshhq/nivesh/internal/config"
	"github.com/niveshhq/nivesh/internal/models"
)

// emailSender abstracts SMTP delivery for tests.
type emailSender interface {
	Send(ctx context.Context, to, subject, bodyText, bodyHTML string) error
}

// smsSender abstracts the gateway client for tests.
type smsSender interface {
	Send(ctx context.Context, phone, message string) error
}

// Manager routes cycle outcomes to the configured channels. Failed and
// partial cycles alert every configured recipient; completed cycles are
// summarized only when summaries are enabled. Delivery errors are logged
// and never propagate back into a cycle.
type Manager struct {
	config config.NotifyConfig
	email  emailSender
	sms    smsSender
	logger zerolog.Logger
}

// NewManager wires up the notification channels from config. Disabled
// channels stay nil and are skipped at send time.
func NewManager(cfg config.NotifyConfig, logger *zerolog.Logger) *Manager {
	m := &Manager{
		config: cfg,
		logger: logger.With().Str("component", "notify").Logger(),
	}
	if cfg.Email.Enabled {
		m.email = NewEmailSender(cfg.Email)
	}
	if cfg.SMS.Enabled {
		m.sms = NewSMSClient(cfg.SMS)
	}
	return m
}

// CycleFinished reports a finished cycle to the configured channels.
func (m *Manager) CycleFinished(ctx context.Context, rec *models.CycleRecord) {
	switch rec.Status {
	case models.CycleStatusFailed, models.CycleStatusPartial:
		m.alert(ctx, rec)
	case models.CycleStatusCompleted:
		if m.config.SummaryEnabled {
			m.summarize(ctx, rec)
		}
	}
}

func (m *Manager) alert(ctx context.Context, rec *models.CycleRecord) {
	subject := fmt.Sprintf("[nivesh] %s cycle %s", rec.Kind, rec.Status)
	text := renderCycleText(rec)
	html := renderCycleHTML(rec)

	if m.email != nil {
		for _, to := range m.config.AlertEmails {
			if err := m.email.Send(ctx, to, subject, text, html); err != nil {
				m.logger.Error().Err(err).Str("to", to).Msg("Failed to send alert email")
			}
		}
	}

	if m.sms != nil && m.config.AlertPhone != "" {
		msg := fmt.Sprintf("Nivesh: %s cycle %s (%d accounts failed). Check the dashboard.",
			rec.Kind, rec.Status, rec.AccountsFailed)
		if err := m.sms.Send(ctx, m.config.AlertPhone, msg); err != nil {
			m.logger.Error().Err(err).Msg("Failed to send alert SMS")
		}
	}
}

func (m *Manager) summarize(ctx context.Context, rec *models.CycleRecord) {
	if m.email == nil {
		return
	}

	subject := fmt.Sprintf("[nivesh] %s cycle summary", rec.Kind)
	text := renderCycleText(rec)
	html := renderCycleHTML(rec)

	for _, to := range m.config.AlertEmails {
		if err := m.email.Send(ctx, to, subject, text, html); err != nil {
			m.logger.Error().Err(err).Str("to", to).Msg("Failed to send summary email")
		}
	}
}

func renderCycleText(rec *models.CycleRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Cycle:              %s (%s)\n", rec.ID, rec.Kind)
	fmt.Fprintf(&b, "Status:             %s\n", rec.Status)
	fmt.Fprintf(&b, "Started:            %s\n", rec.StartedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&b, "Duration:           %s\n", rec.Duration())
	fmt.Fprintf(&b, "Accounts processed: %d\n", rec.AccountsProcessed)
	fmt.Fprintf(&b, "Accounts failed:    %d\n", rec.AccountsFailed)

	switch rec.Kind {
	case models.CycleKindAccrual:
		fmt.Fprintf(&b, "Interest credited:  %.2f\n", rec.InterestCredited)
		fmt.Fprintf(&b, "Referral credited:  %.2f\n", rec.ReferralCredited)
	case models.CycleKindMaturity:
		fmt.Fprintf(&b, "Principal released: %.2f\n", rec.PrincipalReleased)
	}

	if len(rec.FailedIDs) > 0 {
		fmt.Fprintf(&b, "Failed accounts:    %s\n", strings.Join(rec.FailedIDs, ", "))
	}
	if rec.Error != "" {
		fmt.Fprintf(&b, "Error:              %s\n", rec.Error)
	}
	return b.String()
}

func renderCycleHTML(rec *models.CycleRecord) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	fmt.Fprintf(&b, "<h2>%s cycle %s</h2>", rec.Kind, rec.Status)
	b.WriteString("<table border=\"0\" cellpadding=\"4\">")
	row := func(k, v string) {
		fmt.Fprintf(&b, "<tr><td><b>%s</b></td><td>%s</td></tr>", k, v)
	}
	row("Cycle", rec.ID)
	row("Started", rec.StartedAt.Format("2006-01-02 15:04:05 MST"))
	row("Duration", rec.Duration().String())
	row("Accounts processed", fmt.Sprintf("%d", rec.AccountsProcessed))
	row("Accounts failed", fmt.Sprintf("%d", rec.AccountsFailed))

	switch rec.Kind {
	case models.CycleKindAccrual:
		row("Interest credited", fmt.Sprintf("%.2f", rec.InterestCredited))
		row("Referral credited", fmt.Sprintf("%.2f", rec.ReferralCredited))
	case models.CycleKindMaturity:
		row("Principal released", fmt.Sprintf("%.2f", rec.PrincipalReleased))
	}

	if len(rec.FailedIDs) > 0 {
		row("Failed accounts", strings.Join(rec.FailedIDs, ", "))
	}
	if rec.Error != "" {
		row("Error", rec.Error)
	}
	b.WriteString("</table></body></html>")
	return b.String()
}
