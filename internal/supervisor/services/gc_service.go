// Nivesh - Investment Tracking and Referral Accrual Backend
// Copyright 2026 Nivesh Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/niveshhq/nivesh

package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// GarbageCollector matches the store's value-log GC method.
type GarbageCollector interface {
	RunGC(discardRatio float64) error
}

// GCService periodically runs badger value-log garbage collection.
// Badger never reclaims value-log space on its own; without this loop
// the store grows unboundedly.
type GCService struct {
	store        GarbageCollector
	interval     time.Duration
	discardRatio float64
	logger       zerolog.Logger
}

// NewGCService creates the GC loop service.
func NewGCService(store GarbageCollector, interval time.Duration, discardRatio float64, logger *zerolog.Logger) *GCService {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if discardRatio <= 0 || discardRatio >= 1 {
		discardRatio = 0.5
	}
	return &GCService{
		store:        store,
		interval:     interval,
		discardRatio: discardRatio,
		logger:       logger.With().Str("component", "store-gc").Logger(),
	}
}

// Serve implements suture.Service.
func (g *GCService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := g.store.RunGC(g.discardRatio); err != nil {
				g.logger.Warn().Err(err).Msg("Value log GC failed")
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// String identifies the service in suture log events.
func (g *GCService) String() string {
	return "store-gc"
}
