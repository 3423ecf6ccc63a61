// Soundproof - Play Ingestion, Fraud Scoring, and Royalty Allocation
// Copyright 2026 Soundproof Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/soundproof/soundproof

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/soundproof/soundproof/internal/logging"
	"github.com/soundproof/soundproof/internal/models"
	"github.com/soundproof/soundproof/internal/payout"
)

// handleGetArtistPayouts serves GET /api/v1/payouts/{artistID}, newest
// period first. An artist with no payouts gets an empty list, not a 404.
func (h *Handler) handleGetArtistPayouts(w http.ResponseWriter, r *http.Request) {
	artistID := chi.URLParam(r, "artistID")
	if artistID == "" {
		respondError(w, http.StatusBadRequest, ErrCodeValidation, "artist ID is required", nil)
		return
	}

	payouts, err := h.payoutReader.ListPayoutsByArtist(r.Context(), artistID)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).
			Str("artist_id", sanitizeLogValue(artistID)).
			Msg("payout lookup failed")
		respondError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to load payouts", nil)
		return
	}

	if payouts == nil {
		payouts = []*models.Payout{}
	}

	respondJSON(w, http.StatusOK, &models.APIResponse{
		Success: true,
		Data:    payouts,
	})
}

// runPayoutsRequest optionally pins a manual run to one period; empty means
// the previous calendar month.
type runPayoutsRequest struct {
	Period string `json:"period"`
}

// handleRunPayouts serves POST /api/v1/payouts/run (admin only).
func (h *Handler) handleRunPayouts(w http.ResponseWriter, r *http.Request) {
	var req runPayoutsRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, ErrCodeValidation, "malformed request body", err)
			return
		}
	}

	if req.Period != "" {
		if _, _, err := models.PeriodBounds(req.Period); err != nil {
			respondError(w, http.StatusBadRequest, ErrCodeValidation, "period must be formatted YYYY-MM", err)
			return
		}
	}

	var (
		summary *payout.Summary
		err     error
	)
	if req.Period != "" {
		summary, err = h.payoutRunner.RunPeriod(r.Context(), req.Period)
	} else {
		summary, err = h.payoutRunner.Run(r.Context())
	}
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("manual payout run failed")
		respondError(w, http.StatusInternalServerError, ErrCodeInternal, "payout run failed", nil)
		return
	}

	if h.onManualPayoutRun != nil {
		h.onManualPayoutRun()
	}

	respondJSON(w, http.StatusOK, &models.APIResponse{
		Success: true,
		Data:    summary,
	})
}
