// Nivesh - Investment Tracking and Referral Accrual Backend
// Copyright 2026 Nivesh Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/niveshhq/nivesh

// Package referral computes multi-level referral bonuses from a
// consistent account snapshot.
//
// Bonuses reach exactly three tiers below an account: direct referrals
// earn at the tier-1 rate, their referrals at tier-2, and those accounts'
// referrals at tier-3. A referral identifier with no matching account in
// the snapshot contributes zero and is otherwise ignored.
package referral

import "github.com/niveshhq/nivesh/internal/models"

// RateTable holds the per-cycle accrual rates. Base applies to an
// account's own invested amount, the tier rates to the invested amounts
// of accounts below it.
type RateTable struct {
	Base  float64
	Tier1 float64
	Tier2 float64
	Tier3 float64
}

// node is one account's slice of the graph.
type node struct {
	invested  float64
	referrals []string
}

// Snapshot is an immutable view of the referral graph taken from a single
// store read. All bonus computations within one cycle share the same
// snapshot, so every account sees the same graph.
type Snapshot struct {
	nodes map[string]node
}

// NewSnapshot builds a snapshot from a full account scan.
func NewSnapshot(accounts []models.Account) *Snapshot {
	nodes := make(map[string]node, len(accounts))
	for i := range accounts {
		a := &accounts[i]
		nodes[a.ID] = node{
			invested:  a.InvestedAmount,
			referrals: a.ReferralUsers,
		}
	}
	return &Snapshot{nodes: nodes}
}

// Contains reports whether the snapshot holds the given account.
func (s *Snapshot) Contains(id string) bool {
	_, ok := s.nodes[id]
	return ok
}

// Size returns the number of accounts in the snapshot.
func (s *Snapshot) Size() int {
	return len(s.nodes)
}

// BonusFor returns the referral bonus for one account: the sum over its
// three referral tiers of each tier member's invested amount times that
// tier's rate. An account absent from the snapshot, or one with no
// referrals, earns zero.
func (s *Snapshot) BonusFor(id string, rates RateTable) float64 {
	root, ok := s.nodes[id]
	if !ok {
		return 0
	}

	tierRates := [3]float64{rates.Tier1, rates.Tier2, rates.Tier3}

	total := 0.0
	current := root.referrals
	for depth := 0; depth < len(tierRates) && len(current) > 0; depth++ {
		var next []string
		for _, childID := range current {
			child, ok := s.nodes[childID]
			if !ok {
				// Dangling reference: contributes nothing.
				continue
			}
			total += child.invested * tierRates[depth]
			next = append(next, child.referrals...)
		}
		current = next
	}
	return total
}
