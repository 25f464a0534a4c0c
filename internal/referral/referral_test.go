// Nivesh - Investment Tracking and Referral Accrual Backend
// Copyright 2026 Nivesh Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/niveshhq/nivesh

package referral

import (
	"math"
	"testing"

	"github.com/niveshhq/nivesh/internal/models"
)

var testRates = RateTable{
	Base:  0.012,
	Tier1: 0.003,
	Tier2: 0.002,
	Tier3: 0.001,
}

func account(id string, invested float64, referrals ...string) models.Account {
	return models.Account{
		ID:             id,
		InvestedAmount: invested,
		ReferralUsers:  referrals,
	}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestBonusForNoReferrals(t *testing.T) {
	snap := NewSnapshot([]models.Account{account("a", 5000)})

	if got := snap.BonusFor("a", testRates); got != 0 {
		t.Errorf("BonusFor = %v, want 0 for account with no referrals", got)
	}
}

func TestBonusForSingleDirectReferral(t *testing.T) {
	snap := NewSnapshot([]models.Account{
		account("a", 5000, "b"),
		account("b", 1000),
	})

	want := 1000 * testRates.Tier1
	if got := snap.BonusFor("a", testRates); !almostEqual(got, want) {
		t.Errorf("BonusFor = %v, want %v", got, want)
	}
}

func TestBonusForThreeTierChain(t *testing.T) {
	// a -> b -> c -> d -> e; e is a fourth tier and must not count.
	snap := NewSnapshot([]models.Account{
		account("a", 1000, "b"),
		account("b", 2000, "c"),
		account("c", 3000, "d"),
		account("d", 4000, "e"),
		account("e", 5000),
	})

	want := 2000*testRates.Tier1 + 3000*testRates.Tier2 + 4000*testRates.Tier3
	if got := snap.BonusFor("a", testRates); !almostEqual(got, want) {
		t.Errorf("BonusFor = %v, want %v", got, want)
	}
}

func TestBonusForFansOutWithinTiers(t *testing.T) {
	// Two direct referrals, each with one referral of their own.
	snap := NewSnapshot([]models.Account{
		account("a", 0, "b1", "b2"),
		account("b1", 1000, "c1"),
		account("b2", 2000, "c2"),
		account("c1", 3000),
		account("c2", 4000),
	})

	want := (1000+2000)*testRates.Tier1 + (3000+4000)*testRates.Tier2
	if got := snap.BonusFor("a", testRates); !almostEqual(got, want) {
		t.Errorf("BonusFor = %v, want %v", got, want)
	}
}

func TestBonusForDanglingReference(t *testing.T) {
	// "ghost" has no account document; it and anything below it are
	// silently absorbed.
	snap := NewSnapshot([]models.Account{
		account("a", 0, "b", "ghost"),
		account("b", 1000),
	})

	want := 1000 * testRates.Tier1
	if got := snap.BonusFor("a", testRates); !almostEqual(got, want) {
		t.Errorf("BonusFor = %v, want %v", got, want)
	}
}

func TestBonusForUnknownAccount(t *testing.T) {
	snap := NewSnapshot([]models.Account{account("a", 1000)})

	if got := snap.BonusFor("nobody", testRates); got != 0 {
		t.Errorf("BonusFor = %v, want 0 for account missing from snapshot", got)
	}
}

func TestBonusForCycleInGraphTerminates(t *testing.T) {
	// a -> b -> a: the walk is depth-bounded, so a loop cannot hang it.
	snap := NewSnapshot([]models.Account{
		account("a", 1000, "b"),
		account("b", 2000, "a"),
	})

	// Tier1: b (2000). Tier2: a (1000). Tier3: b again (2000).
	want := 2000*testRates.Tier1 + 1000*testRates.Tier2 + 2000*testRates.Tier3
	if got := snap.BonusFor("a", testRates); !almostEqual(got, want) {
		t.Errorf("BonusFor = %v, want %v", got, want)
	}
}

func TestSnapshotContainsAndSize(t *testing.T) {
	snap := NewSnapshot([]models.Account{
		account("a", 0),
		account("b", 0),
	})

	if snap.Size() != 2 {
		t.Errorf("Size = %d, want 2", snap.Size())
	}
	if !snap.Contains("a") || snap.Contains("z") {
		t.Error("Contains gave wrong membership answers")
	}
}

func TestBonusForZeroRates(t *testing.T) {
	snap := NewSnapshot([]models.Account{
		account("a", 0, "b"),
		account("b", 1000),
	})

	if got := snap.BonusFor("a", RateTable{Base: 0.012}); got != 0 {
		t.Errorf("BonusFor = %v, want 0 with zero tier rates", got)
	}
}
