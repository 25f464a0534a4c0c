// Nivesh - Investment Tracking and Referral Accrual Backend
// Copyright 2026 Nivesh Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/niveshhq/nivesh

package accrual

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/niveshhq/nivesh/internal/models"
	"github.com/niveshhq/nivesh/internal/referral"
	"github.com/niveshhq/nivesh/internal/store"
)

// mockStore is a mutex-guarded in-memory stand-in for the badger store.
type mockStore struct {
	mu        sync.Mutex
	accounts  map[string]*models.Account
	bad       map[string]error
	watermark time.Time
	records   []*models.CycleRecord

	scanErr   error
	commitErr error

	// commitStarted signals when CommitBalances begins, for concurrency
	// tests.
	commitStarted chan struct{}
	commitRelease chan struct{}
}

func newMockStore() *mockStore {
	return &mockStore{
		accounts: make(map[string]*models.Account),
		bad:      make(map[string]error),
	}
}

func (m *mockStore) put(a *models.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[a.ID] = a
}

func (m *mockStore) GetAllAccounts(ctx context.Context) ([]models.Account, map[string]error, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.scanErr != nil {
		return nil, nil, m.scanErr
	}
	out := make([]models.Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		out = append(out, *a)
	}
	bad := make(map[string]error, len(m.bad))
	for id, err := range m.bad {
		bad[id] = err
	}
	return out, bad, nil
}

func (m *mockStore) CommitBalances(ctx context.Context, patches []store.BalancePatch, watermark time.Time) error {
	if m.commitStarted != nil {
		close(m.commitStarted)
		<-m.commitRelease
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.commitErr != nil {
		return m.commitErr
	}
	for _, p := range patches {
		a, ok := m.accounts[p.AccountID]
		if !ok {
			return store.ErrAccountNotFound
		}
		a.InterestAmount += p.Interest
		a.ReferralAmount += p.Referral
		a.WithdrawableAmount += p.Interest + p.Referral
	}
	m.watermark = watermark
	return nil
}

func (m *mockStore) AccrualWatermark(ctx context.Context) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.watermark, nil
}

func (m *mockStore) PutCycleRecord(ctx context.Context, rec *models.CycleRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

// mockNotifier records cycle outcomes.
type mockNotifier struct {
	mu      sync.Mutex
	records []*models.CycleRecord
}

func (m *mockNotifier) CycleFinished(ctx context.Context, rec *models.CycleRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
}

var testConfig = Config{
	Rates: referral.RateTable{
		Base:  0.012,
		Tier1: 0.003,
		Tier2: 0.002,
		Tier3: 0.001,
	},
	MinCycleGap: 12 * time.Hour,
}

func newTestEngine(st *mockStore, n Notifier) *Engine {
	logger := zerolog.Nop()
	return New(st, n, testConfig, &logger)
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestRunCycleCreditsBaseInterest(t *testing.T) {
	st := newMockStore()
	st.put(&models.Account{ID: "alice", InvestedAmount: 10000})

	rec, err := newTestEngine(st, nil).RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}

	if rec.Status != models.CycleStatusCompleted {
		t.Errorf("Status = %v, want completed", rec.Status)
	}
	alice := st.accounts["alice"]
	if !almostEqual(alice.InterestAmount, 120) {
		t.Errorf("InterestAmount = %v, want 120", alice.InterestAmount)
	}
	if !almostEqual(alice.WithdrawableAmount, 120) {
		t.Errorf("WithdrawableAmount = %v, want 120", alice.WithdrawableAmount)
	}
	if alice.ReferralAmount != 0 {
		t.Errorf("ReferralAmount = %v, want 0", alice.ReferralAmount)
	}
	if !almostEqual(rec.InterestCredited, 120) {
		t.Errorf("InterestCredited = %v, want 120", rec.InterestCredited)
	}
}

func TestRunCycleCreditsReferralTiers(t *testing.T) {
	st := newMockStore()
	st.put(&models.Account{ID: "a", InvestedAmount: 1000, ReferralUsers: []string{"b"}})
	st.put(&models.Account{ID: "b", InvestedAmount: 2000, ReferralUsers: []string{"c"}})
	st.put(&models.Account{ID: "c", InvestedAmount: 3000, ReferralUsers: []string{"d"}})
	st.put(&models.Account{ID: "d", InvestedAmount: 4000})

	rec, err := newTestEngine(st, nil).RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}
	if rec.AccountsProcessed != 4 {
		t.Errorf("AccountsProcessed = %d, want 4", rec.AccountsProcessed)
	}

	wantBonus := 2000*0.003 + 3000*0.002 + 4000*0.001
	a := st.accounts["a"]
	if !almostEqual(a.ReferralAmount, wantBonus) {
		t.Errorf("a.ReferralAmount = %v, want %v", a.ReferralAmount, wantBonus)
	}
	wantInterest := 1000 * 0.012
	if !almostEqual(a.WithdrawableAmount, wantInterest+wantBonus) {
		t.Errorf("a.WithdrawableAmount = %v, want %v", a.WithdrawableAmount, wantInterest+wantBonus)
	}
}

func TestRunCycleWatermarkGuard(t *testing.T) {
	st := newMockStore()
	st.put(&models.Account{ID: "alice", InvestedAmount: 10000})
	engine := newTestEngine(st, nil)

	if _, err := engine.RunCycle(context.Background()); err != nil {
		t.Fatalf("first RunCycle failed: %v", err)
	}

	// Immediately running again must refuse: the watermark just moved.
	_, err := engine.RunCycle(context.Background())
	if !errors.Is(err, ErrCycleAlreadyApplied) {
		t.Fatalf("second RunCycle error = %v, want ErrCycleAlreadyApplied", err)
	}

	alice := st.accounts["alice"]
	if !almostEqual(alice.InterestAmount, 120) {
		t.Errorf("InterestAmount = %v, want single credit of 120", alice.InterestAmount)
	}
}

func TestRunCycleAfterGapElapses(t *testing.T) {
	st := newMockStore()
	st.put(&models.Account{ID: "alice", InvestedAmount: 10000})
	engine := newTestEngine(st, nil)

	if _, err := engine.RunCycle(context.Background()); err != nil {
		t.Fatalf("first RunCycle failed: %v", err)
	}

	// Pretend a day passed.
	engine.now = func() time.Time { return time.Now().Add(24 * time.Hour) }
	if _, err := engine.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle after gap failed: %v", err)
	}

	alice := st.accounts["alice"]
	if !almostEqual(alice.InterestAmount, 240) {
		t.Errorf("InterestAmount = %v, want 240 after two cycles", alice.InterestAmount)
	}
}

func TestRunCycleConcurrentInvocation(t *testing.T) {
	st := newMockStore()
	st.put(&models.Account{ID: "alice", InvestedAmount: 10000})
	st.commitStarted = make(chan struct{})
	st.commitRelease = make(chan struct{})

	engine := newTestEngine(st, nil)

	errCh := make(chan error, 1)
	go func() {
		_, err := engine.RunCycle(context.Background())
		errCh <- err
	}()

	<-st.commitStarted
	// First cycle is mid-commit; a second invocation must bounce.
	if _, err := engine.RunCycle(context.Background()); !errors.Is(err, ErrCycleInProgress) {
		t.Errorf("concurrent RunCycle error = %v, want ErrCycleInProgress", err)
	}
	close(st.commitRelease)

	if err := <-errCh; err != nil {
		t.Fatalf("first RunCycle failed: %v", err)
	}
}

func TestRunCycleSnapshotFailureAborts(t *testing.T) {
	st := newMockStore()
	st.scanErr = errors.New("disk exploded")

	rec, err := newTestEngine(st, nil).RunCycle(context.Background())
	if err == nil {
		t.Fatal("RunCycle should fail when the snapshot read fails")
	}
	if rec == nil || rec.Status != models.CycleStatusFailed {
		t.Errorf("record = %+v, want failed status record", rec)
	}
	if len(st.records) != 1 {
		t.Errorf("want failed cycle record persisted, got %d", len(st.records))
	}
}

func TestRunCycleCommitFailureAborts(t *testing.T) {
	st := newMockStore()
	st.put(&models.Account{ID: "alice", InvestedAmount: 10000})
	st.commitErr = errors.New("commit refused")

	rec, err := newTestEngine(st, nil).RunCycle(context.Background())
	if err == nil {
		t.Fatal("RunCycle should surface commit failure")
	}
	if rec.Status != models.CycleStatusFailed {
		t.Errorf("Status = %v, want failed", rec.Status)
	}
	if rec.InterestCredited != 0 || rec.ReferralCredited != 0 {
		t.Errorf("credited totals = %v/%v, want 0/0 after aborted commit",
			rec.InterestCredited, rec.ReferralCredited)
	}
	if st.accounts["alice"].InterestAmount != 0 {
		t.Error("balances must not move when commit fails")
	}
}

func TestRunCycleIsolatesUnreadableAccounts(t *testing.T) {
	st := newMockStore()
	st.put(&models.Account{ID: "alice", InvestedAmount: 10000})
	st.bad["mallory"] = errors.New("corrupt document")

	notifier := &mockNotifier{}
	rec, err := newTestEngine(st, notifier).RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}

	if rec.Status != models.CycleStatusPartial {
		t.Errorf("Status = %v, want partial", rec.Status)
	}
	if rec.AccountsFailed != 1 || len(rec.FailedIDs) != 1 || rec.FailedIDs[0] != "mallory" {
		t.Errorf("failure report = %d/%v, want mallory flagged", rec.AccountsFailed, rec.FailedIDs)
	}
	// The healthy account still accrued.
	if !almostEqual(st.accounts["alice"].InterestAmount, 120) {
		t.Errorf("alice.InterestAmount = %v, want 120", st.accounts["alice"].InterestAmount)
	}

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.records) != 1 {
		t.Errorf("notifier got %d records, want 1", len(notifier.records))
	}
}

func TestRunCycleSkipsZeroBalanceAccounts(t *testing.T) {
	st := newMockStore()
	st.put(&models.Account{ID: "empty"})
	st.put(&models.Account{ID: "alice", InvestedAmount: 1000})

	rec, err := newTestEngine(st, nil).RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}
	if rec.AccountsProcessed != 2 {
		t.Errorf("AccountsProcessed = %d, want 2", rec.AccountsProcessed)
	}
	if st.accounts["empty"].InterestAmount != 0 {
		t.Error("zero-investment account must not accrue")
	}
}

func TestRunCyclePersistsAuditRecord(t *testing.T) {
	st := newMockStore()
	st.put(&models.Account{ID: "alice", InvestedAmount: 10000})

	rec, err := newTestEngine(st, nil).RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}

	if len(st.records) != 1 {
		t.Fatalf("got %d persisted records, want 1", len(st.records))
	}
	if st.records[0].ID != rec.ID {
		t.Errorf("persisted record ID = %s, want %s", st.records[0].ID, rec.ID)
	}
	if rec.CompletedAt.Before(rec.StartedAt) {
		t.Errorf("CompletedAt %v before StartedAt %v", rec.CompletedAt, rec.StartedAt)
	}
}
