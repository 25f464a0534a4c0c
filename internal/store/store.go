// Nivesh - Investment Tracking and Referral Accrual Backend
// Copyright 2026 Nivesh Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/niveshhq/nivesh

// Package store provides the BadgerDB-backed account document store.
//
// Documents are JSON-encoded with goccy/go-json under prefixed keys:
//
//	account:<id>          account documents
//	cycle:<ts>:<id>       cycle audit records, ordered by start time
//	meta:accrual_watermark  last committed accrual cycle time
//
// A single badger View transaction gives snapshot isolation for full
// scans; a single Update transaction gives all-or-nothing multi-document
// commits.
package store

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	"github.com/niveshhq/nivesh/internal/metrics"
)

// Key prefixes for BadgerDB storage
const (
	accountKeyPrefix = "account:"
	cycleKeyPrefix   = "cycle:"
	watermarkKey     = "meta:accrual_watermark"
)

// Sentinel errors surfaced to callers.
var (
	ErrAccountNotFound   = errors.New("account not found")
	ErrDuplicateReferral = errors.New("referral already linked")
)

// Options configures the store.
type Options struct {
	// Path is the badger data directory. Ignored when InMemory is set.
	Path string

	// InMemory runs badger without disk persistence. Test use only.
	InMemory bool
}

// Store is a BadgerDB-backed document store for accounts and cycle
// records.
type Store struct {
	db     *badger.DB
	logger zerolog.Logger
}

// Open opens (creating if needed) the store at the configured path.
func Open(opts Options, logger *zerolog.Logger) (*Store, error) {
	child := logger.With().Str("component", "store").Logger()

	dir := opts.Path
	if opts.InMemory {
		dir = ""
	}
	badgerOpts := badger.DefaultOptions(dir).
		WithInMemory(opts.InMemory).
		WithLogger(badgerLogger{child})

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", opts.Path, err)
	}

	return &Store{db: db, logger: child}, nil
}

// Close flushes and closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RunGC runs one value-log garbage collection pass. Badger returns
// ErrNoRewrite when there was nothing to reclaim; that is not an error
// for callers.
func (s *Store) RunGC(discardRatio float64) error {
	err := s.db.RunValueLogGC(discardRatio)
	switch {
	case err == nil:
		metrics.StoreGCRuns.WithLabelValues("reclaimed").Inc()
		return nil
	case errors.Is(err, badger.ErrNoRewrite):
		metrics.StoreGCRuns.WithLabelValues("nothing").Inc()
		return nil
	default:
		metrics.StoreGCRuns.WithLabelValues("error").Inc()
		return fmt.Errorf("value log gc: %w", err)
	}
}

// badgerLogger adapts badger's logger interface onto zerolog.
type badgerLogger struct {
	l zerolog.Logger
}

func (b badgerLogger) Errorf(format string, args ...interface{}) {
	b.l.Error().Msgf(trimNewline(format), args...)
}

func (b badgerLogger) Warningf(format string, args ...interface{}) {
	b.l.Warn().Msgf(trimNewline(format), args...)
}

func (b badgerLogger) Infof(format string, args ...interface{}) {
	b.l.Debug().Msgf(trimNewline(format), args...)
}

func (b badgerLogger) Debugf(format string, args ...interface{}) {
	b.l.Debug().Msgf(trimNewline(format), args...)
}

// badger appends its own newlines; zerolog does not want them.
func trimNewline(s string) string {
	for len(s) > 0 && s[len(s)-1] == '\n' {
		s = s[:len(s)-1]
	}
	return s
}
