// Nivesh - Investment Tracking and Referral Accrual Backend
// Copyright 2026 Nivesh Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/niveshhq/nivesh

// Package maturity releases matured investment principal.
//
// A sweep walks every account and, for each investment transaction whose
// date is older than the maturity window and whose principal has not yet
// been released, subtracts the amount from the invested balance and marks
// the transaction. Each transaction is persisted immediately in its own
// store write: a crash mid-sweep loses no completed release and the
// marked flag keeps re-runs from releasing twice.
package maturity

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
)

// ErrSweepInProgress means another sweep holds the run lock.
var ErrSweepInProgress = errors.New("maturity sweep already in progress")

// Store is the document store surface the sweeper needs.
type Store interface {
	GetAllAccounts(ctx context.Context) ([]models.Account, map[string]error, error)
	UpdateAccount(ctx context.Context, id string, mutate func(*models.Account) error) error
	PutCycleRecord(ctx context.Context, rec *models.CycleRecord) error
}

// Notifier receives sweep outcomes.
type Notifier interface {
	CycleFinished(ctx context.Context, rec *models.CycleRecord)
}

// Config holds sweeper parameters.
type Config struct {
	// Window is how old a transaction must be before its principal
	// matures.
	Window time.Duration
}

// Sweeper runs maturity sweeps.
type Sweeper struct {
	store    Store
	notifier Notifier
	config   Config
	logger   zerolog.Logger

	runLock sync.Mutex

	// now is swappable for tests.
	now func() time.Time
}

// New creates a sweeper. notifier may be nil.
func New(st Store, notifier Notifier, config Config, logger *zerolog.Logger) *Sweeper {
	return &Sweeper{
		store:    st,
		notifier: notifier,
		config:   config,
		logger:   logger.With().Str("component", "maturity").Logger(),
		now:      time.Now,
	}
}

// RunSweep executes one maturity sweep. Concurrent invocation returns
// ErrSweepInProgress.
//
// Failures are isolated per account: an account whose update fails keeps
// its remaining transactions for the next sweep while the rest of the
// sweep continues. Transactions within one account release in sequence
// order.
func (s *Sweeper) RunSweep(ctx context.Context) (*models.CycleRecord, error) {
	if !s.runLock.TryLock() {
		return nil, ErrSweepInProgress
	}
	defer s.runLock.Unlock()

	rec := &models.CycleRecord{
		ID:        uuid.New().String(),
		Kind:      models.CycleKindMaturity,
		StartedAt: s.now().UTC(),
	}

	err := s.sweep(ctx, rec)
	rec.CompletedAt = s.now().UTC()
	if err != nil {
		rec.Status = models.CycleStatusFailed
		rec.Error = err.Error()
	} else if rec.AccountsFailed > 0 {
		rec.Status = models.CycleStatusPartial
	} else {
		rec.Status = models.CycleStatusCompleted
	}

	s.finish(ctx, rec)
	if err != nil {
		return rec, err
	}
	return rec, nil
}

func (s *Sweeper) sweep(ctx context.Context, rec *models.CycleRecord) error {
	accounts, bad, err := s.store.GetAllAccounts(ctx)
	if err != nil {
		return fmt.Errorf("snapshot accounts: %w", err)
	}

	for id, readErr := range bad {
		s.logger.Error().Err(readErr).Str("account_id", id).Msg("Account unreadable, skipping for this sweep")
		rec.FailedIDs = append(rec.FailedIDs, id)
	}
	rec.AccountsFailed = len(bad)

	cutoff := s.now().UTC().Add(-s.config.Window)

	for i := range accounts {
		if err := ctx.Err(); err != nil {
			return err
		}

		account := &accounts[i]
		released, err := s.sweepAccount(ctx, account, cutoff)
		rec.PrincipalReleased += released
		if err != nil {
			s.logger.Error().Err(err).Str("account_id", account.ID).Msg("Account sweep failed, continuing with others")
			rec.FailedIDs = append(rec.FailedIDs, account.ID)
			rec.AccountsFailed++
			continue
		}
	}
	rec.AccountsProcessed = len(accounts)

	s.logger.Info().
		Int("accounts", rec.AccountsProcessed).
		Int("failed", rec.AccountsFailed).
		Float64("principal_released", rec.PrincipalReleased).
		Msg("Maturity sweep finished")
	return nil
}

// sweepAccount releases each matured transaction of one account with an
// immediate durable write per transaction. It returns the total released
// so far even when a later write fails.
func (s *Sweeper) sweepAccount(ctx context.Context, account *models.Account, cutoff time.Time) (float64, error) {
	released := 0.0
	for _, tx := range account.OpenTransactions() {
		if !tx.Date.Before(cutoff) {
			continue
		}

		txID := tx.TransactionID
		didRelease := false
		err := s.store.UpdateAccount(ctx, account.ID, func(a *models.Account) error {
			for j := range a.InvestmentTransactions {
				t := &a.InvestmentTransactions[j]
				if t.TransactionID != txID {
					continue
				}
				if t.InvestedAmountUpdated {
					// Already released by an earlier run.
					return nil
				}
				a.InvestedAmount -= t.Amount
				t.InvestedAmountUpdated = true
				didRelease = true
				return nil
			}
			// Transaction vanished between snapshot and update; nothing
			// to release.
			return nil
		})
		if err != nil {
			return released, fmt.Errorf("release transaction %s: %w", txID, err)
		}
		if !didRelease {
			continue
		}

		released += tx.Amount
		s.logger.Debug().
			Str("account_id", account.ID).
			Str("transaction_id", txID).
			Float64("amount", tx.Amount).
			Msg("Released matured principal")
	}
	return released, nil
}

func (s *Sweeper) finish(ctx context.Context, rec *models.CycleRecord) {
	if err := s.store.PutCycleRecord(ctx, rec); err != nil {
		s.logger.Error().Err(err).Str("cycle_id", rec.ID).Msg("Failed to persist cycle record")
	}

	metrics.RecordCycle(string(rec.Kind), string(rec.Status), rec.Duration(), rec.AccountsProcessed, rec.AccountsFailed)
	metrics.PrincipalReleased.Add(rec.PrincipalReleased)

	if s.notifier != nil {
		s.notifier.CycleFinished(ctx, rec)
	}
}
