// Nivesh - Investment Tracking and Referral Accrual Backend
// Copyright 2026 Nivesh Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/niveshhq/nivesh

package models

import "time"

// CycleKind identifies which scheduled job produced a cycle record.
type CycleKind string

const (
	CycleKindAccrual  CycleKind = "accrual"
	CycleKindMaturity CycleKind = "maturity"
)

// CycleStatus is the terminal state of one job run.
type CycleStatus string

const (
	// CycleStatusCompleted means every account was processed and committed.
	CycleStatusCompleted CycleStatus = "completed"
	// CycleStatusPartial means the run committed but some accounts were
	// skipped; their IDs are in FailedIDs.
	CycleStatusPartial CycleStatus = "partial"
	// CycleStatusFailed means the run committed nothing.
	CycleStatusFailed CycleStatus = "failed"
	// CycleStatusSkipped means the run was refused before doing any work,
	// either by the run-lock or by the idempotency watermark.
	CycleStatusSkipped CycleStatus = "skipped"
)

// CycleRecord is the persisted audit trail entry for one accrual cycle or
// maturity sweep. Balance audits are the only way a missed credit is
// discoverable, so every run leaves a record regardless of outcome.
type CycleRecord struct {
	ID   string    `json:"id"`
	Kind CycleKind `json:"kind"`

	StartedAt   time.Time `json:"startedAt"`
	CompletedAt time.Time `json:"completedAt"`

	Status CycleStatus `json:"status"`

	AccountsProcessed int      `json:"accountsProcessed"`
	AccountsFailed    int      `json:"accountsFailed"`
	FailedIDs         []string `json:"failedIds,omitempty"`

	// InterestCredited and ReferralCredited sum the credits applied across
	// all accounts in this run. Zero for maturity sweeps.
	InterestCredited float64 `json:"interestCredited"`
	ReferralCredited float64 `json:"referralCredited"`

	// PrincipalReleased sums the transaction amounts matured by a sweep.
	// Zero for accrual cycles.
	PrincipalReleased float64 `json:"principalReleased"`

	Error string `json:"error,omitempty"`
}

// Duration returns the wall-clock duration of the run, or zero while the
// run has not completed.
func (r *CycleRecord) Duration() time.Duration {
	if r.CompletedAt.IsZero() {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}
