// Soundproof - Play Ingestion, Fraud Scoring, and Royalty Allocation
// Copyright 2026 Soundproof Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/soundproof/soundproof

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/soundproof/soundproof/internal/models"
)

// healthPingTimeout bounds the storage probe so a hung database cannot hang
// the health endpoint.
const healthPingTimeout = 2 * time.Second

func contextWithPingTimeout(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), healthPingTimeout)
}

// handleHealth serves GET /health. Degraded storage reports 503 so load
// balancers stop routing ingestion traffic here.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := &models.HealthResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Database:      "ok",
	}
	status := http.StatusOK

	ctx, cancel := contextWithPingTimeout(r)
	defer cancel()

	if err := h.health.Ping(ctx); err != nil {
		resp.Status = "degraded"
		resp.Database = "unreachable"
		status = http.StatusServiceUnavailable
	}

	respondJSON(w, status, &models.APIResponse{
		Success: status == http.StatusOK,
		Data:    resp,
	})
}

// handleLiveness serves GET /health/live. Liveness only proves the process
// responds; restarting on storage trouble would not help.
func (h *Handler) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, &models.APIResponse{
		Success: true,
		Data:    map[string]string{"status": "ok"},
	})
}

// handleReadiness serves GET /health/ready. Ready means the database
// answers, so ingestion requests can be served.
func (h *Handler) handleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := contextWithPingTimeout(r)
	defer cancel()

	if err := h.health.Ping(ctx); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, &models.APIResponse{
			Success: false,
			Data:    map[string]string{"status": "not_ready"},
		})
		return
	}

	respondJSON(w, http.StatusOK, &models.APIResponse{
		Success: true,
		Data:    map[string]string{"status": "ready"},
	})
}
