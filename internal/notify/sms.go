// Nivesh - Investment Tracking and Referral Accrual Backend
// Copyright 2026 Nivesh Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/niveshhq/nivesh

package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/niveshhq/nivesh/internal/config"
	"github.com/niveshhq/nivesh/internal/metrics"
)

// SMSClient sends messages through an HTTP SMS gateway. Calls are rate
// limited and wrapped in a circuit breaker so a dead gateway cannot pile
// up blocked cycles behind it.
type SMSClient struct {
	config     config.SMSConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[struct{}]
}

// smsRequest is the gateway wire format.
type smsRequest struct {
	To       string `json:"to"`
	Message  string `json:"message"`
	SenderID string `json:"senderId,omitempty"`
}

// NewSMSClient creates a gateway client from config.
func NewSMSClient(cfg config.SMSConfig) *SMSClient {
	settings := gobreaker.Settings{
		Name:        "sms-gateway",
		MaxRequests: 3,
		Timeout:     3 * cfg.Timeout, // open-state cooldown before half-open probes
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.SMSBreakerState.Set(float64(to))
		},
	}

	return &SMSClient{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		breaker:    gobreaker.NewCircuitBreaker[struct{}](settings),
	}
}

// Send delivers one message to a phone number. It blocks on the rate
// limiter (bounded by ctx) and fails fast while the breaker is open.
func (c *SMSClient) Send(ctx context.Context, phone, message string) error {
	err := c.send(ctx, phone, message)
	metrics.RecordNotification("sms", err)
	return err
}

// SendOTP delivers a one-time code.
func (c *SMSClient) SendOTP(ctx context.Context, phone, code string) error {
	return c.Send(ctx, phone, fmt.Sprintf("Your Nivesh verification code is %s. Do not share it with anyone.", code))
}

func (c *SMSClient) send(ctx context.Context, phone, message string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("sms rate limiter: %w", err)
	}

	_, err := c.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, c.post(ctx, phone, message)
	})
	if err != nil {
		return fmt.Errorf("sms to %s: %w", phone, err)
	}
	return nil
}

func (c *SMSClient) post(ctx context.Context, phone, message string) error {
	payload, err := json.Marshal(smsRequest{
		To:       phone,
		Message:  message,
		SenderID: c.config.SenderID,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.GatewayURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("gateway returned %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	return nil
}
