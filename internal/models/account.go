// Nivesh - Investment Tracking and Referral Accrual Backend
// Copyright 2026 Nivesh Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/niveshhq/nivesh

// Package models defines the persisted document types shared by the store,
// the accrual engine, and the maturity sweeper.
package models

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// Account is the per-user document held in the account store.
//
// Balance fields are running sums: InterestAmount and ReferralAmount only
// grow through accrual cycles, and WithdrawableAmount is always the sum of
// every interest and referral credit ever applied. InvestedAmount moves in
// the other direction only: maturity sweeps release principal once a
// transaction ages past the maturity window.
type Account struct {
	// ID doubles as the referral code entered by referred users.
	ID string `json:"id" validate:"required"`

	InvestedAmount     float64 `json:"investedAmount" validate:"gte=0"`
	InterestAmount     float64 `json:"interestAmount" validate:"gte=0"`
	WithdrawableAmount float64 `json:"withdrawableAmount" validate:"gte=0"`
	ReferralAmount     float64 `json:"referralAmount" validate:"gte=0"`

	// ParentReferralCode is the ID of the referring account, empty for
	// root accounts.
	ParentReferralCode string `json:"parentReferralCode,omitempty"`

	// ReferralUsers lists directly referred account IDs in referral order.
	// The store rejects duplicate appends; the slice itself is trusted to
	// be duplicate-free once read back.
	ReferralUsers []string `json:"referralUsers,omitempty"`

	InvestmentTransactions []InvestmentTransaction `json:"investmentTransactions,omitempty" validate:"dive"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// InvestmentTransaction is one investment posting against an account.
//
// InvestedAmountUpdated flips to true exactly once, at the moment the
// maturity sweeper subtracts Amount from the account's InvestedAmount.
// After that the record is immutable for its lifetime.
type InvestmentTransaction struct {
	TransactionID string    `json:"transactionId" validate:"required"`
	Amount        float64   `json:"amount" validate:"gte=0"`
	Date          time.Time `json:"date"`

	InvestedAmountUpdated bool `json:"investedAmountUpdated"`
}

// HasReferral reports whether id is already present in ReferralUsers.
func (a *Account) HasReferral(id string) bool {
	for _, r := range a.ReferralUsers {
		if r == id {
			return true
		}
	}
	return false
}

// OpenTransactions returns the transactions whose principal has not yet
// been released by a maturity sweep, in stored sequence order.
func (a *Account) OpenTransactions() []InvestmentTransaction {
	var open []InvestmentTransaction
	for _, tx := range a.InvestmentTransactions {
		if !tx.InvestedAmountUpdated {
			open = append(open, tx)
		}
	}
	return open
}

// validate is the shared validator instance. validator.Validate is
// thread-safe and caches struct metadata, so a single instance is reused.
var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateAccount checks a document read back from the store. A failure
// means the stored document is malformed and the account must be treated
// as unreadable, not that the process should stop.
func ValidateAccount(a *Account) error {
	return validate.Struct(a)
}
