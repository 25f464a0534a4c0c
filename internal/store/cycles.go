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

// PutCycleRecord persists a cycle audit record. Keys embed the start time
// so records iterate in chronological order.
func (s *Store) PutCycleRecord(ctx context.Context, rec *models.CycleRecord) error {
	start := time.Now()
	err := s.putCycleRecord(ctx, rec)
	metrics.RecordStoreOp("put_cycle_record", time.Since(start), err)
	return err
}

func (s *Store) putCycleRecord(ctx context.Context, rec *models.CycleRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal cycle record %s: %w", rec.ID, err)
	}

	key := cycleKey(rec)
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
}

// ListCycleRecords returns the most recent cycle records, newest first.
// limit <= 0 returns all records.
func (s *Store) ListCycleRecords(ctx context.Context, limit int) ([]models.CycleRecord, error) {
	start := time.Now()
	recs, err := s.listCycleRecords(ctx, limit)
	metrics.RecordStoreOp("list_cycle_records", time.Since(start), err)
	return recs, err
}

func (s *Store) listCycleRecords(ctx context.Context, limit int) ([]models.CycleRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var records []models.CycleRecord
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(cycleKeyPrefix)
		// Reverse iteration seeks to the last possible key in the prefix.
		seek := append(append([]byte{}, prefix...), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(records) >= limit {
				break
			}

			var rec models.CycleRecord
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				s.logger.Warn().Err(err).Str("key", string(it.Item().Key())).Msg("Skipping undecodable cycle record")
				continue
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan cycle records: %w", err)
	}

	return records, nil
}

// AccrualWatermark returns the time of the last committed accrual cycle.
// A store that has never accrued returns the zero time with no error.
func (s *Store) AccrualWatermark(ctx context.Context) (time.Time, error) {
	start := time.Now()
	wm, err := s.accrualWatermark(ctx)
	metrics.RecordStoreOp("accrual_watermark", time.Since(start), err)
	return wm, err
}

func (s *Store) accrualWatermark(ctx context.Context) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}

	var wm time.Time
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(watermarkKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get watermark: %w", err)
		}
		return item.Value(func(val []byte) error {
			return wm.UnmarshalText(val)
		})
	})
	if err != nil {
		return time.Time{}, err
	}
	return wm, nil
}

// cycleKeyLayout is fixed-width so keys sort chronologically.
// RFC3339Nano trims trailing zeros and would break the ordering.
const cycleKeyLayout = "2006-01-02T15:04:05.000000000Z"

// cycleKey builds the ordered storage key for a cycle record.
func cycleKey(rec *models.CycleRecord) []byte {
	ts := rec.StartedAt.UTC().Format(cycleKeyLayout)
	return []byte(cycleKeyPrefix + ts + ":" + rec.ID)
}
