// Soundproof - Play Ingestion, Fraud Scoring, and Royalty Allocation
// Copyright 2026 Soundproof Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/soundproof/soundproof

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/soundproof/soundproof/internal/auth"
	"github.com/soundproof/soundproof/internal/middleware"
)

// RoleAdmin may trigger manual payout runs.
const RoleAdmin = "admin"

// Routes builds the full HTTP handler tree.
func (h *Handler) Routes(authMW *auth.Middleware) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	// Health and metrics stay unauthenticated for probes and scrapers.
	r.Get("/health", h.handleHealth)
	r.Get("/health/live", h.handleLiveness)
	r.Get("/health/ready", h.handleReadiness)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.PrometheusMetrics)
		r.Use(authMW.Authenticate)

		// Ingestion is per-IP rate limited; batching keeps legitimate
		// clients well under the limit.
		r.With(httprate.LimitByIP(
			h.cfg.Security.RateLimitReqs,
			h.cfg.Security.RateLimitWindow,
		)).Post("/plays", h.handleReportPlays)

		r.Get("/payouts/{artistID}", h.handleGetArtistPayouts)

		r.With(authMW.RequireRole(RoleAdmin)).Post("/payouts/run", h.handleRunPayouts)
	})

	return r
}
