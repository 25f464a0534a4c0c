// Nivesh - Investment Tracking and Referral Accrual Backend
// Copyright 2026 Nivesh Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/niveshhq/nivesh

package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// mockHTTPServer simulates *http.Server lifecycle.
type mockHTTPServer struct {
	mu       sync.Mutex
	serveErr error
	stopCh   chan struct{}
	shutdown bool
}

func newMockHTTPServer() *mockHTTPServer {
	return &mockHTTPServer{stopCh: make(chan struct{})}
}

func (m *mockHTTPServer) ListenAndServe() error {
	m.mu.Lock()
	err := m.serveErr
	m.mu.Unlock()
	if err != nil {
		return err
	}
	<-m.stopCh
	return errors.New("http: Server closed")
}

func (m *mockHTTPServer) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.shutdown = true
	m.mu.Unlock()
	close(m.stopCh)
	return nil
}

func TestHTTPServerServiceGracefulShutdown(t *testing.T) {
	srv := newMockHTTPServer()
	svc := NewHTTPServerService(srv, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}

	srv.mu.Lock()
	defer srv.mu.Unlock()
	if !srv.shutdown {
		t.Error("Shutdown was not called")
	}
}

func TestHTTPServerServiceStartupFailure(t *testing.T) {
	srv := newMockHTTPServer()
	srv.serveErr = errors.New("address in use")
	svc := NewHTTPServerService(srv, time.Second)

	err := svc.Serve(context.Background())
	if err == nil || !strings.Contains(err.Error(), "address in use") {
		t.Errorf("Serve error = %v, want startup failure surfaced", err)
	}
}

// mockScheduler records lifecycle calls.
type mockScheduler struct {
	started atomic.Bool
	stopped atomic.Bool
	starter error
}

func (m *mockScheduler) Start(ctx context.Context) error {
	if m.starter != nil {
		return m.starter
	}
	m.started.Store(true)
	return nil
}

func (m *mockScheduler) Stop() error {
	m.stopped.Store(true)
	return nil
}

func TestSchedulerServiceLifecycle(t *testing.T) {
	sched := &mockScheduler{}
	svc := NewSchedulerService(sched)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	time.Sleep(20 * time.Millisecond)
	if !sched.started.Load() {
		t.Error("scheduler not started")
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}
	if !sched.stopped.Load() {
		t.Error("scheduler not stopped on shutdown")
	}
}

func TestSchedulerServiceStartFailure(t *testing.T) {
	sched := &mockScheduler{starter: errors.New("bad cron")}
	svc := NewSchedulerService(sched)

	if err := svc.Serve(context.Background()); err == nil {
		t.Error("Serve should surface scheduler start failure")
	}
}

// mockGC counts GC invocations.
type mockGC struct {
	runs atomic.Int64
}

func (m *mockGC) RunGC(discardRatio float64) error {
	m.runs.Add(1)
	return nil
}

func TestGCServiceRunsPeriodically(t *testing.T) {
	gc := &mockGC{}
	logger := zerolog.Nop()
	svc := NewGCService(gc, 10*time.Millisecond, 0.5, &logger)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := svc.Serve(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Serve error = %v, want deadline exceeded", err)
	}
	if gc.runs.Load() == 0 {
		t.Error("GC never ran")
	}
}

func TestServiceStrings(t *testing.T) {
	logger := zerolog.Nop()
	if got := NewHTTPServerService(newMockHTTPServer(), 0).String(); got != "http-server" {
		t.Errorf("String = %q", got)
	}
	if got := NewSchedulerService(&mockScheduler{}).String(); got != "job-scheduler" {
		t.Errorf("String = %q", got)
	}
	if got := NewGCService(&mockGC{}, 0, 0, &logger).String(); got != "store-gc" {
		t.Errorf("String = %q", got)
	}
}
