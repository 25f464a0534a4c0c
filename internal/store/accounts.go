// Nivesh - Investment Tracking and Referral Accrual Backend
// Copyright 2026 Nivesh Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/niveshhq/nivesh

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/niveshhq/nivesh/internal/metrics"
	"github.com/niveshhq/nivesh/internal/models"
)

// BalancePatch is a staged balance update for one account. Interest and
// Referral are deltas; the withdrawable balance receives their sum.
type BalancePatch struct {
	AccountID string
	Interest  float64
	Referral  float64
}

// PutAccount stores an account document, overwriting any existing one.
func (s *Store) PutAccount(ctx context.Context, account *models.Account) error {
	start := time.Now()
	err := s.putAccount(ctx, account)
	metrics.RecordStoreOp("put_account", time.Since(start), err)
	return err
}

func (s *Store) putAccount(ctx context.Context, account *models.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := models.ValidateAccount(account); err != nil {
		return fmt.Errorf("validate account %s: %w", account.ID, err)
	}

	data, err := json.Marshal(account)
	if err != nil {
		return fmt.Errorf("marshal account %s: %w", account.ID, err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(accountKeyPrefix+account.ID), data)
	})
}

// GetAccount retrieves an account by ID. Returns ErrAccountNotFound if no
// document exists.
func (s *Store) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	start := time.Now()
	account, err := s.getAccount(ctx, id)
	metrics.RecordStoreOp("get_account", time.Since(start), err)
	return account, err
}

func (s *Store) getAccount(ctx context.Context, id string) (*models.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var account models.Account
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(accountKeyPrefix + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrAccountNotFound
		}
		if err != nil {
			return fmt.Errorf("get account: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &account)
		})
	})
	if err != nil {
		return nil, err
	}

	if err := models.ValidateAccount(&account); err != nil {
		return nil, fmt.Errorf("account %s failed validation: %w", id, err)
	}
	return &account, nil
}

// GetAllAccounts returns every account document from a single View
// transaction, so the result is a consistent snapshot. An individual
// document that fails to decode or validate is skipped and reported in
// the returned map of per-account errors; the scan itself still succeeds.
func (s *Store) GetAllAccounts(ctx context.Context) ([]models.Account, map[string]error, error) {
	start := time.Now()
	accounts, bad, err := s.getAllAccounts(ctx)
	metrics.RecordStoreOp("get_all_accounts", time.Since(start), err)
	if err == nil {
		metrics.StoreAccounts.Set(float64(len(accounts) + len(bad)))
	}
	return accounts, bad, err
}

func (s *Store) getAllAccounts(ctx context.Context) ([]models.Account, map[string]error, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	var accounts []models.Account
	bad := make(map[string]error)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(accountKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			item := it.Item()
			id := string(item.Key()[len(prefix):])

			var account models.Account
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &account)
			})
			if err != nil {
				bad[id] = fmt.Errorf("decode account: %w", err)
				continue
			}
			if err := models.ValidateAccount(&account); err != nil {
				bad[id] = fmt.Errorf("validate account: %w", err)
				continue
			}
			accounts = append(accounts, account)
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("scan accounts: %w", err)
	}

	return accounts, bad, nil
}

// CommitBalances applies all staged balance patches and persists the
// accrual watermark in one transaction. Either every patch lands together
// with the watermark or nothing does.
//
// Each account is re-read inside the transaction and only its balance
// fields change, so concurrent writers touching other fields are not
// clobbered.
func (s *Store) CommitBalances(ctx context.Context, patches []BalancePatch, watermark time.Time) error {
	start := time.Now()
	err := s.commitBalances(ctx, patches, watermark)
	metrics.RecordStoreOp("commit_balances", time.Since(start), err)
	return err
}

func (s *Store) commitBalances(ctx context.Context, patches []BalancePatch, watermark time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		now := time.Now().UTC()
		for _, patch := range patches {
			key := []byte(accountKeyPrefix + patch.AccountID)
			item, err := txn.Get(key)
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("account %s: %w", patch.AccountID, ErrAccountNotFound)
			}
			if err != nil {
				return fmt.Errorf("get account %s: %w", patch.AccountID, err)
			}

			var account models.Account
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &account)
			}); err != nil {
				return fmt.Errorf("decode account %s: %w", patch.AccountID, err)
			}

			account.InterestAmount += patch.Interest
			account.ReferralAmount += patch.Referral
			account.WithdrawableAmount += patch.Interest + patch.Referral
			account.UpdatedAt = now

			data, err := json.Marshal(&account)
			if err != nil {
				return fmt.Errorf("marshal account %s: %w", patch.AccountID, err)
			}
			if err := txn.Set(key, data); err != nil {
				return fmt.Errorf("set account %s: %w", patch.AccountID, err)
			}
		}

		wm, err := watermark.UTC().MarshalText()
		if err != nil {
			return fmt.Errorf("marshal watermark: %w", err)
		}
		return txn.Set([]byte(watermarkKey), wm)
	})
}

// UpdateAccount runs a read-modify-write cycle on a single account. The
// mutate callback sees the current document and edits it in place; the
// whole cycle happens inside one Update transaction.
func (s *Store) UpdateAccount(ctx context.Context, id string, mutate func(*models.Account) error) error {
	start := time.Now()
	err := s.updateAccount(ctx, id, mutate)
	metrics.RecordStoreOp("update_account", time.Since(start), err)
	return err
}

func (s *Store) updateAccount(ctx context.Context, id string, mutate func(*models.Account) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		key := []byte(accountKeyPrefix + id)
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrAccountNotFound
		}
		if err != nil {
			return fmt.Errorf("get account: %w", err)
		}

		var account models.Account
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &account)
		}); err != nil {
			return fmt.Errorf("decode account: %w", err)
		}

		if err := mutate(&account); err != nil {
			return err
		}
		account.UpdatedAt = time.Now().UTC()

		data, err := json.Marshal(&account)
		if err != nil {
			return fmt.Errorf("marshal account: %w", err)
		}
		return txn.Set(key, data)
	})
}

// AppendReferral links childID under parentID's referral list. The link
// is ordered and duplicate-guarded: linking the same child twice returns
// ErrDuplicateReferral.
func (s *Store) AppendReferral(ctx context.Context, parentID, childID string) error {
	start := time.Now()
	err := s.updateAccount(ctx, parentID, func(account *models.Account) error {
		if account.HasReferral(childID) {
			return fmt.Errorf("account %s child %s: %w", parentID, childID, ErrDuplicateReferral)
		}
		account.ReferralUsers = append(account.ReferralUsers, childID)
		return nil
	})
	metrics.RecordStoreOp("append_referral", time.Since(start), err)
	return err
}
