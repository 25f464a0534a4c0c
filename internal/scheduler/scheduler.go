// Nivesh - Investment Tracking and Referral Accrual Backend
// Copyright 2026 Nivesh Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/niveshhq/nivesh

// Package scheduler provides cron-based scheduling for batch jobs.
//
// scheduler.go - Job Scheduler
//
// Each registered job runs on its own goroutine that sleeps until the next
// cron fire time, executes the job, and reschedules. A monitor goroutine
// periodically verifies that every enabled job loop is still alive and
// restarts any that stopped, so a panicking or wedged job cannot silently
// kill its schedule.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Job is a unit of scheduled work. The context carries the per-run
// deadline; implementations must honor cancellation.
type Job func(ctx context.Context) error

// Config holds scheduler configuration.
type Config struct {
	// MonitorInterval is how often the health monitor verifies that all
	// job loops are alive (default: 1 minute).
	MonitorInterval time.Duration
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() Config {
	return Config{MonitorInterval: time.Minute}
}

// entry is a registered job and its runtime state.
type entry struct {
	name     string
	schedule *CronSchedule
	loc      *time.Location
	timeout  time.Duration
	job      Job

	mu      sync.Mutex
	running bool
	lastRun time.Time
	lastErr error
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// Scheduler runs registered jobs on their cron schedules and keeps the
// schedules alive.
type Scheduler struct {
	logger zerolog.Logger
	config Config

	mu      sync.Mutex
	entries map[string]*entry
	started bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New creates a scheduler. Jobs are registered before Start.
func New(logger *zerolog.Logger, config Config) *Scheduler {
	if config.MonitorInterval <= 0 {
		config.MonitorInterval = time.Minute
	}
	return &Scheduler{
		logger:  logger.With().Str("component", "scheduler").Logger(),
		config:  config,
		entries: make(map[string]*entry),
	}
}

// Register adds a job under the given name. The cron expression and
// timezone are validated immediately. timeout bounds each run; zero means
// no per-run deadline.
func (s *Scheduler) Register(name, cronExpr, timezone string, timeout time.Duration, job Job) error {
	sched, err := ParseCron(cronExpr)
	if err != nil {
		return fmt.Errorf("job %s: %w", name, err)
	}

	loc := time.UTC
	if timezone != "" {
		loc, err = time.LoadLocation(timezone)
		if err != nil {
			return fmt.Errorf("job %s: invalid timezone %q: %w", name, timezone, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[name]; exists {
		return fmt.Errorf("job %s already registered", name)
	}

	e := &entry{
		name:     name,
		schedule: sched,
		loc:      loc,
		timeout:  timeout,
		job:      job,
	}
	s.entries[name] = e

	// Jobs registered after Start join immediately.
	if s.started {
		s.startEntry(e)
	}

	s.logger.Info().
		Str("job", name).
		Str("cron", cronExpr).
		Str("timezone", loc.String()).
		Time("next_run", sched.NextRun(time.Now(), loc)).
		Msg("Registered scheduled job")
	return nil
}

// Start launches all registered job loops and the health monitor.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}
	s.started = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})

	for _, e := range s.entries {
		s.startEntry(e)
	}
	count := len(s.entries)
	s.mu.Unlock()

	s.logger.Info().
		Int("jobs", count).
		Dur("monitor_interval", s.config.MonitorInterval).
		Msg("Starting scheduler")

	go s.monitor(ctx)
	return nil
}

// Stop halts the monitor and all job loops, waiting for in-flight runs to
// finish.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	close(s.stopCh)
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.Unlock()

	s.logger.Info().Msg("Stopping scheduler...")
	<-s.doneCh

	for _, e := range entries {
		e.stop()
	}

	s.logger.Info().Msg("Scheduler stopped")
	return nil
}

// IsRunning reports whether the named job's loop is alive.
func (s *Scheduler) IsRunning(name string) bool {
	s.mu.Lock()
	e, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// LastRun returns when the named job last fired and the error from that
// run, if any.
func (s *Scheduler) LastRun(name string) (time.Time, error) {
	s.mu.Lock()
	e, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, fmt.Errorf("job %s not registered", name)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastRun, e.lastErr
}

// startEntry launches the loop for a single job. Caller holds s.mu.
func (s *Scheduler) startEntry(e *entry) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.stopCh = make(chan struct{})
	e.doneCh = make(chan struct{})
	e.mu.Unlock()

	go s.runLoop(e)
}

// runLoop sleeps until each next fire time and executes the job. A panic
// inside the job marks the loop dead; the monitor restarts it.
func (s *Scheduler) runLoop(e *entry) {
	logger := s.logger.With().Str("job", e.name).Logger()

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("Job loop panicked")
		}
		e.mu.Lock()
		e.running = false
		close(e.doneCh)
		e.mu.Unlock()
	}()

	for {
		next := e.schedule.NextRun(time.Now(), e.loc)
		if next.IsZero() {
			logger.Error().Msg("Cron expression never fires, stopping job loop")
			return
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-timer.C:
			s.execute(e, &logger)
		case <-e.stopCh:
			timer.Stop()
			return
		}
	}
}

// execute runs the job once with its configured deadline.
func (s *Scheduler) execute(e *entry, logger *zerolog.Logger) {
	ctx := context.Background()
	var cancel context.CancelFunc
	if e.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	logger.Info().Msg("Running scheduled job")

	err := e.job(ctx)

	e.mu.Lock()
	e.lastRun = start
	e.lastErr = err
	e.mu.Unlock()

	if err != nil {
		logger.Error().Err(err).Dur("duration", time.Since(start)).Msg("Scheduled job failed")
		return
	}
	logger.Info().Dur("duration", time.Since(start)).Msg("Scheduled job completed")
}

// monitor periodically restarts job loops that stopped.
func (s *Scheduler) monitor(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.config.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.restartDead()
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// restartDead relaunches any registered job whose loop is not alive.
func (s *Scheduler) restartDead() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}

	for _, e := range s.entries {
		e.mu.Lock()
		alive := e.running
		e.mu.Unlock()
		if !alive {
			s.logger.Warn().Str("job", e.name).Msg("Job loop stopped, restarting")
			s.startEntry(e)
		}
	}
}

// stop halts a single job loop and waits for it.
func (e *entry) stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	stopCh, doneCh := e.stopCh, e.doneCh
	e.mu.Unlock()

	close(stopCh)
	<-doneCh
}
