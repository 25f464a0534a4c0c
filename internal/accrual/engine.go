// Nivesh - Investment Tracking and Referral Accrual Backend
// Copyright 2026 Nivesh Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/niveshhq/nivesh

// Package accrual implements the per-cycle interest and referral bonus
// engine.
//
// A cycle reads a consistent snapshot of every account, computes each
// account's base interest (invested amount times the base rate) plus its
// three-tier referral bonus, and commits all balance updates together
// with the cycle watermark in one atomic write. A persisted watermark
// closer than the configured minimum gap means the cycle already ran;
// the run is skipped rather than double-credited.
package accrual

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/niveshhq/nivesh/internal/metrics"
	"github.com/niveshhq/nivesh/internal/models"
	"github.com/niveshhq/nivesh/internal/referral"
	"github.com/niveshhq/nivesh/internal/store"
)

// Sentinel errors surfaced to callers.
var (
	// ErrCycleInProgress means another accrual cycle holds the run lock.
	ErrCycleInProgress = errors.New("accrual cycle already in progress")

	// ErrCycleAlreadyApplied means the persisted watermark is too recent
	// for another cycle to run.
	ErrCycleAlreadyApplied = errors.New("accrual cycle already applied for this period")
)

// Store is the document store surface the engine needs.
type Store interface {
	GetAllAccounts(ctx context.Context) ([]models.Account, map[string]error, error)
	CommitBalances(ctx context.Context, patches []store.BalancePatch, watermark time.Time) error
	AccrualWatermark(ctx context.Context) (time.Time, error)
	PutCycleRecord(ctx context.Context, rec *models.CycleRecord) error
}

// Notifier receives cycle outcomes. Implementations must not block the
// cycle; delivery failures are their own problem.
type Notifier interface {
	CycleFinished(ctx context.Context, rec *models.CycleRecord)
}

// Config holds the engine parameters.
type Config struct {
	Rates referral.RateTable

	// MinCycleGap is the minimum time since the last committed cycle
	// before another may run.
	MinCycleGap time.Duration
}

// Engine runs accrual cycles.
type Engine struct {
	store    Store
	notifier Notifier
	config   Config
	logger   zerolog.Logger

	runLock sync.Mutex

	// now is swappable for tests.
	now func() time.Time
}

// New creates an accrual engine. notifier may be nil.
func New(st Store, notifier Notifier, config Config, logger *zerolog.Logger) *Engine {
	return &Engine{
		store:    st,
		notifier: notifier,
		config:   config,
		logger:   logger.With().Str("component", "accrual").Logger(),
		now:      time.Now,
	}
}

// RunCycle executes one accrual cycle. Concurrent invocation returns
// ErrCycleInProgress; a watermark newer than MinCycleGap returns
// ErrCycleAlreadyApplied. Both leave the store untouched.
//
// A cycle record is persisted for every run that gets past the guards,
// including failed ones.
func (e *Engine) RunCycle(ctx context.Context) (*models.CycleRecord, error) {
	if !e.runLock.TryLock() {
		return nil, ErrCycleInProgress
	}
	defer e.runLock.Unlock()

	started := e.now().UTC()

	watermark, err := e.store.AccrualWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("read accrual watermark: %w", err)
	}
	if !watermark.IsZero() && started.Sub(watermark) < e.config.MinCycleGap {
		e.logger.Warn().
			Time("watermark", watermark).
			Dur("min_gap", e.config.MinCycleGap).
			Msg("Skipping accrual cycle, previous cycle too recent")
		metrics.CyclesTotal.WithLabelValues(string(models.CycleKindAccrual), string(models.CycleStatusSkipped)).Inc()
		return nil, ErrCycleAlreadyApplied
	}

	rec := &models.CycleRecord{
		ID:        uuid.New().String(),
		Kind:      models.CycleKindAccrual,
		StartedAt: started,
	}

	err = e.runLocked(ctx, rec)
	rec.CompletedAt = e.now().UTC()
	if err != nil {
		rec.Status = models.CycleStatusFailed
		rec.Error = err.Error()
	} else if rec.AccountsFailed > 0 {
		rec.Status = models.CycleStatusPartial
	} else {
		rec.Status = models.CycleStatusCompleted
	}

	e.finish(ctx, rec)
	if err != nil {
		return rec, err
	}
	return rec, nil
}

// runLocked is the body of a cycle once the guards have passed.
func (e *Engine) runLocked(ctx context.Context, rec *models.CycleRecord) error {
	accounts, bad, err := e.store.GetAllAccounts(ctx)
	if err != nil {
		return fmt.Errorf("snapshot accounts: %w", err)
	}

	// Documents that failed to read are isolated failures, not a cycle
	// abort: everyone else still accrues.
	for id, readErr := range bad {
		e.logger.Error().Err(readErr).Str("account_id", id).Msg("Account unreadable, skipping for this cycle")
		rec.FailedIDs = append(rec.FailedIDs, id)
	}
	rec.AccountsFailed = len(bad)

	snap := referral.NewSnapshot(accounts)

	patches := make([]store.BalancePatch, 0, len(accounts))
	for i := range accounts {
		account := &accounts[i]

		interest := account.InvestedAmount * e.config.Rates.Base
		bonus := snap.BonusFor(account.ID, e.config.Rates)

		if interest == 0 && bonus == 0 {
			continue
		}

		patches = append(patches, store.BalancePatch{
			AccountID: account.ID,
			Interest:  interest,
			Referral:  bonus,
		})
		rec.InterestCredited += interest
		rec.ReferralCredited += bonus
	}
	rec.AccountsProcessed = len(accounts)

	if err := e.store.CommitBalances(ctx, patches, rec.StartedAt); err != nil {
		// All-or-nothing: a failed commit means nothing was credited and
		// the watermark did not move.
		rec.InterestCredited = 0
		rec.ReferralCredited = 0
		return fmt.Errorf("commit balances: %w", err)
	}

	e.logger.Info().
		Int("accounts", rec.AccountsProcessed).
		Int("failed", rec.AccountsFailed).
		Float64("interest_credited", rec.InterestCredited).
		Float64("referral_credited", rec.ReferralCredited).
		Msg("Accrual cycle committed")
	return nil
}

// finish persists the audit record, emits metrics, and notifies.
func (e *Engine) finish(ctx context.Context, rec *models.CycleRecord) {
	if err := e.store.PutCycleRecord(ctx, rec); err != nil {
		e.logger.Error().Err(err).Str("cycle_id", rec.ID).Msg("Failed to persist cycle record")
	}

	metrics.RecordCycle(string(rec.Kind), string(rec.Status), rec.Duration(), rec.AccountsProcessed, rec.AccountsFailed)
	metrics.InterestCredited.Add(rec.InterestCredited)
	metrics.ReferralCredited.Add(rec.ReferralCredited)

	if e.notifier != nil {
		e.notifier.CycleFinished(ctx, rec)
	}
}
