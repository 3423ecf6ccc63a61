// Soundproof - Play Ingestion, Fraud Scoring, and Royalty Allocation
// Copyright 2026 Soundproof Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/soundproof/soundproof

package api

import (
	"errors"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/soundproof/soundproof/internal/auth"
	"github.com/soundproof/soundproof/internal/ingest"
	"github.com/soundproof/soundproof/internal/logging"
	"github.com/soundproof/soundproof/internal/models"
)

// maxRequestBodyBytes caps the ingestion request body. A full batch of 1000
// events fits comfortably.
const maxRequestBodyBytes = 4 << 20

// reportPlaysRequest is the ingestion request body.
type reportPlaysRequest struct {
	Plays []ingest.PlayEventPayload `json:"plays"`
}

// handleReportPlays accepts POST /api/v1/plays. The whole batch succeeds or
// the whole batch is rejected; the response reports per-event fraud flags.
func (h *Handler) handleReportPlays(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok || userID == "" {
		respondError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required", nil)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)

	var req reportPlaysRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeValidation, "malformed request body", err)
		return
	}

	// Events without their own user agent inherit the request header, so
	// the bot check still sees something for thin clients.
	if ua := r.UserAgent(); ua != "" {
		for i := range req.Plays {
			if req.Plays[i].UserAgent == "" {
				req.Plays[i].UserAgent = ua
			}
		}
	}

	result, err := h.reporter.ReportBatch(r.Context(), userID, clientIP(r), req.Plays)
	if err != nil {
		var batchErr *ingest.BatchValidationError
		if errors.As(err, &batchErr) {
			respondJSON(w, http.StatusBadRequest, &models.APIResponse{
				Success: false,
				Error: &models.APIError{
					Code:    ErrCodeInvalidBatch,
					Message: batchErr.Error(),
					Details: batchErrorDetails(batchErr),
				},
			})
			return
		}

		logging.Ctx(r.Context()).Error().Err(err).Msg("play batch ingestion failed")
		respondError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to store plays", nil)
		return
	}

	respondJSON(w, http.StatusOK, &models.APIResponse{
		Success: true,
		Data: &models.ReportBatchResponse{
			Success:           true,
			Processed:         result.Processed,
			Suspicious:        result.Suspicious,
			SuspiciousPlayIDs: result.SuspiciousPlayIDs,
		},
	})
}

func batchErrorDetails(err *ingest.BatchValidationError) map[string]interface{} {
	details := map[string]interface{}{
		"reason": err.Reason,
	}
	if err.Index >= 0 {
		details["index"] = err.Index
	}
	if err.Field != "" {
		details["field"] = err.Field
	}
	return details
}
