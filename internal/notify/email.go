// Nivesh - Investment Tracking and Referral Accrual Backend
// Copyright 2026 Nivesh Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/niveshhq/nivesh

// Package notify delivers cycle alerts and summaries over email and SMS.
package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/niveshhq/nivesh/internal/config"
	"github.com/niveshhq/nivesh/internal/metrics"
)

// EmailSender delivers messages via SMTP.
type EmailSender struct {
	config      config.EmailConfig
	dialTimeout time.Duration
}

// NewEmailSender creates an SMTP sender from config.
func NewEmailSender(cfg config.EmailConfig) *EmailSender {
	return &EmailSender{
		config:      cfg,
		dialTimeout: 30 * time.Second,
	}
}

// Send delivers a message to one recipient. Both bodies are optional;
// when both are present the message goes out as multipart/alternative.
func (e *EmailSender) Send(ctx context.Context, to, subject, bodyText, bodyHTML string) error {
	msg := e.buildMessage(to, subject, bodyText, bodyHTML)
	err := e.sendSMTP(ctx, to, msg)
	metrics.RecordNotification("email", err)
	return err
}

// buildMessage constructs the RFC 5322 message with headers.
func (e *EmailSender) buildMessage(to, subject, bodyText, bodyHTML string) string {
	var msg strings.Builder

	fromName := e.config.SMTPFromName
	if fromName == "" {
		fromName = "Nivesh"
	}

	msg.WriteString(fmt.Sprintf("From: %s <%s>\r\n", fromName, e.config.SMTPFrom))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", to))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString("MIME-Version: 1.0\r\n")

	hasHTML := bodyHTML != ""
	hasText := bodyText != ""

	switch {
	case hasHTML && hasText:
		boundary := fmt.Sprintf("boundary_%d", time.Now().UnixNano())
		msg.WriteString(fmt.Sprintf("Content-Type: multipart/alternative; boundary=%q\r\n", boundary))
		msg.WriteString("\r\n")

		msg.WriteString(fmt.Sprintf("--%s\r\n", boundary))
		msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
		msg.WriteString("\r\n")
		msg.WriteString(bodyText)
		msg.WriteString("\r\n")

		msg.WriteString(fmt.Sprintf("--%s\r\n", boundary))
		msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
		msg.WriteString("\r\n")
		msg.WriteString(bodyHTML)
		msg.WriteString("\r\n")

		msg.WriteString(fmt.Sprintf("--%s--\r\n", boundary))
	case hasHTML:
		msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
		msg.WriteString("\r\n")
		msg.WriteString(bodyHTML)
	default:
		msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
		msg.WriteString("\r\n")
		msg.WriteString(bodyText)
	}

	return msg.String()
}

// sendSMTP performs the SMTP conversation.
func (e *EmailSender) sendSMTP(ctx context.Context, to, msg string) error {
	addr := fmt.Sprintf("%s:%d", e.config.SMTPHost, e.config.SMTPPort)

	dialer := &net.Dialer{Timeout: e.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("connect to SMTP server: %w", err)
	}
	defer func() { _ = conn.Close() }()

	client, err := smtp.NewClient(conn, e.config.SMTPHost)
	if err != nil {
		return fmt.Errorf("create SMTP client: %w", err)
	}
	defer func() { _ = client.Close() }()

	if e.config.UseTLS {
		tlsConfig := &tls.Config{
			ServerName: e.config.SMTPHost,
			MinVersion: tls.VersionTLS12,
		}
		if err := client.StartTLS(tlsConfig); err != nil {
			return fmt.Errorf("start TLS: %w", err)
		}
	}

	if e.config.SMTPUser != "" && e.config.SMTPPassword != "" {
		auth := smtp.PlainAuth("", e.config.SMTPUser, e.config.SMTPPassword, e.config.SMTPHost)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication: %w", err)
		}
	}

	if err := client.Mail(e.config.SMTPFrom); err != nil {
		return fmt.Errorf("set sender: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("set recipient: %w", err)
	}

	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("start message: %w", err)
	}
	if _, err := writer.Write([]byte(msg)); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close message: %w", err)
	}

	// A failed QUIT after a accepted message is not a delivery failure.
	_ = client.Quit()
	return nil
}
