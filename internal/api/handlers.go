// Nivesh - Investment Tracking and Referral Accrual Backend
// Copyright 2026 Nivesh Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/niveshhq/nivesh

package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/niveshhq/nivesh/internal/models"
	"github.com/niveshhq/nivesh/internal/referral"
	"github.com/niveshhq/nivesh/internal/store"
)

// AccountReader is the store surface the handlers need.
type AccountReader interface {
	GetAccount(ctx context.Context, id string) (*models.Account, error)
	GetAllAccounts(ctx context.Context) ([]models.Account, map[string]error, error)
	ListCycleRecords(ctx context.Context, limit int) ([]models.CycleRecord, error)
}

// Handler serves the ops endpoints.
type Handler struct {
	reader AccountReader
	rates  referral.RateTable
	logger zerolog.Logger
}

// NewHandler creates the handler set.
func NewHandler(reader AccountReader, rates referral.RateTable, logger *zerolog.Logger) *Handler {
	return &Handler{
		reader: reader,
		rates:  rates,
		logger: logger.With().Str("component", "api-handler").Logger(),
	}
}

// healthResponse is the /api/health body.
type healthResponse struct {
	Status string    `json:"status"`
	Time   time.Time `json:"time"`
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Time: time.Now().UTC()})
}

// GetAccount returns one account document.
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	account, err := h.reader.GetAccount(r.Context(), id)
	if errors.Is(err, store.ErrAccountNotFound) {
		writeError(w, http.StatusNotFound, "account not found")
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("account_id", id).Msg("Failed to read account")
		writeError(w, http.StatusInternalServerError, "failed to read account")
		return
	}

	writeJSON(w, http.StatusOK, account)
}

// bonusResponse is the /accounts/{id}/bonus body: what the account would
// earn in referral bonus if a cycle ran against the current snapshot.
type bonusResponse struct {
	AccountID string  `json:"accountId"`
	Interest  float64 `json:"interest"`
	Referral  float64 `json:"referral"`
}

// GetAccountBonus previews an account's per-cycle earnings against the
// current account snapshot.
func (h *Handler) GetAccountBonus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	account, err := h.reader.GetAccount(r.Context(), id)
	if errors.Is(err, store.ErrAccountNotFound) {
		writeError(w, http.StatusNotFound, "account not found")
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("account_id", id).Msg("Failed to read account")
		writeError(w, http.StatusInternalServerError, "failed to read account")
		return
	}

	accounts, _, err := h.reader.GetAllAccounts(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to snapshot accounts")
		writeError(w, http.StatusInternalServerError, "failed to snapshot accounts")
		return
	}

	snap := referral.NewSnapshot(accounts)
	writeJSON(w, http.StatusOK, bonusResponse{
		AccountID: id,
		Interest:  account.InvestedAmount * h.rates.Base,
		Referral:  snap.BonusFor(id, h.rates),
	})
}

// ListCycles returns recent cycle audit records, newest first. The limit
// query parameter caps the count (default 50, max 500).
func (h *Handler) ListCycles(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}
	if limit > 500 {
		limit = 500
	}

	records, err := h.reader.ListCycleRecords(r.Context(), limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list cycle records")
		writeError(w, http.StatusInternalServerError, "failed to list cycles")
		return
	}
	if records == nil {
		records = []models.CycleRecord{}
	}

	writeJSON(w, http.StatusOK, records)
}

// errorResponse is the uniform error body.
type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
