// Nivesh - Investment Tracking and Referral Accrual Backend
// Copyright 2026 Nivesh Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/niveshhq/nivesh

// Package api provides the read-only ops HTTP surface using Chi.
//
// The API inspects accounts, referral bonuses, and cycle audit records.
// It deliberately cannot trigger cycles; accrual and maturity run only on
// their schedules.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/niveshhq/nivesh/internal/config"
)

// Router builds the HTTP handler tree.
type Router struct {
	handler *Handler
	config  config.ServerConfig
	logger  zerolog.Logger
}

// NewRouter creates the router around a handler set.
func NewRouter(handler *Handler, cfg config.ServerConfig, logger *zerolog.Logger) *Router {
	return &Router{
		handler: handler,
		config:  cfg,
		logger:  logger.With().Str("component", "api").Logger(),
	}
}

// Setup wires all routes and middleware.
func (r *Router) Setup() http.Handler {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(requestMetrics)

	if len(r.config.CORSOrigins) > 0 {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins: r.config.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	router.Get("/api/health", r.handler.Health)

	router.Route("/api/v1", func(api chi.Router) {
		if !r.config.RateLimitDisabled {
			api.Use(httprate.LimitByIP(r.config.RateLimitReqs, r.config.RateLimitWindow))
		}

		api.Get("/accounts/{id}", r.handler.GetAccount)
		api.Get("/accounts/{id}/bonus", r.handler.GetAccountBonus)
		api.Get("/cycles", r.handler.ListCycles)
	})

	router.Handle("/metrics", promhttp.Handler())

	return router
}
