// Nivesh - Investment Tracking and Referral Accrual Backend
// Copyright 2026 Nivesh Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/niveshhq/nivesh

package services

import (
	"context"
	"fmt"
)

// JobScheduler matches the scheduler's lifecycle methods.
type JobScheduler interface {
	Start(ctx context.Context) error
	Stop() error
}

// SchedulerService adapts the job scheduler's Start/Stop lifecycle to
// suture's Serve.
type SchedulerService struct {
	scheduler JobScheduler
}

// NewSchedulerService wraps the scheduler as a supervised service.
func NewSchedulerService(scheduler JobScheduler) *SchedulerService {
	return &SchedulerService{scheduler: scheduler}
}

// Serve implements suture.Service: start the scheduler, block until the
// context ends, then stop it and wait for in-flight jobs.
func (s *SchedulerService) Serve(ctx context.Context) error {
	if err := s.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	<-ctx.Done()

	if err := s.scheduler.Stop(); err != nil {
		return fmt.Errorf("stop scheduler: %w", err)
	}
	return ctx.Err()
}

// String identifies the service in suture log events.
func (s *SchedulerService) String() string {
	return "job-scheduler"
}
