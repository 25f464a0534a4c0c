// Nivesh - Investment Tracking and Referral Accrual Backend
// Copyright 2026 Nivesh Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/niveshhq/nivesh

package models

import (
	"testing"
	"time"
)

func TestValidateAccount(t *testing.T) {
	tests := []struct {
		name    string
		account Account
		wantErr bool
	}{
		{
			name: "valid account",
			account: Account{
				ID:             "alice",
				InvestedAmount: 10000,
			},
		},
		{
			name:    "missing id",
			account: Account{InvestedAmount: 10000},
			wantErr: true,
		},
		{
			name: "negative invested amount",
			account: Account{
				ID:             "alice",
				InvestedAmount: -1,
			},
			wantErr: true,
		},
		{
			name: "negative withdrawable amount",
			account: Account{
				ID:                 "alice",
				WithdrawableAmount: -0.01,
			},
			wantErr: true,
		},
		{
			name: "transaction missing id",
			account: Account{
				ID: "alice",
				InvestmentTransactions: []InvestmentTransaction{
					{Amount: 500, Date: time.Now()},
				},
			},
			wantErr: true,
		},
		{
			name: "valid transaction",
			account: Account{
				ID: "alice",
				InvestmentTransactions: []InvestmentTransaction{
					{TransactionID: "tx-1", Amount: 500, Date: time.Now()},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAccount(&tt.account)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateAccount() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestHasReferral(t *testing.T) {
	account := Account{ID: "alice", ReferralUsers: []string{"bob", "carol"}}

	if !account.HasReferral("bob") {
		t.Error("expected bob to be a referral")
	}
	if account.HasReferral("dave") {
		t.Error("did not expect dave to be a referral")
	}
	if account.HasReferral("alice") {
		t.Error("an account is not its own referral")
	}
}

func TestOpenTransactions(t *testing.T) {
	account := Account{
		ID: "alice",
		InvestmentTransactions: []InvestmentTransaction{
			{TransactionID: "tx-1", Amount: 1000, InvestedAmountUpdated: true},
			{TransactionID: "tx-2", Amount: 2000},
			{TransactionID: "tx-3", Amount: 3000},
		},
	}

	open := account.OpenTransactions()
	if len(open) != 2 {
		t.Fatalf("expected 2 open transactions, got %d", len(open))
	}
	if open[0].TransactionID != "tx-2" || open[1].TransactionID != "tx-3" {
		t.Errorf("unexpected open transactions: %+v", open)
	}
}

func TestCycleRecordDuration(t *testing.T) {
	start := time.Date(2026, 1, 2, 0, 30, 0, 0, time.UTC)
	rec := CycleRecord{
		StartedAt:   start,
		CompletedAt: start.Add(90 * time.Second),
	}
	if got := rec.Duration(); got != 90*time.Second {
		t.Errorf("expected 90s, got %v", got)
	}
}

func TestCycleRecordDurationIncomplete(t *testing.T) {
	rec := CycleRecord{StartedAt: time.Now()}
	if got := rec.Duration(); got != 0 {
		t.Errorf("expected zero duration for incomplete record, got %v", got)
	}
}
