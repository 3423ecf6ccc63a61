// Soundproof - Play Ingestion, Fraud Scoring, and Royalty Allocation
// Copyright 2026 Soundproof Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/soundproof/soundproof

// Package api exposes the HTTP surface: play ingestion, payout queries,
// manual payout runs, and health probes.
package api

import (
	"context"
	"time"

	"github.com/soundproof/soundproof/internal/config"
	"github.com/soundproof/soundproof/internal/ingest"
	"github.com/soundproof/soundproof/internal/models"
	"github.com/soundproof/soundproof/internal/payout"
)

// PlayReporter accepts play batches for the authenticated user.
type PlayReporter interface {
	ReportBatch(ctx context.Context, userID, clientIP string, batch []ingest.PlayEventPayload) (*ingest.Result, error)
}

// PayoutReader serves payout queries.
type PayoutReader interface {
	ListPayoutsByArtist(ctx context.Context, artistID string) ([]*models.Payout, error)
}

// PayoutRunner triggers an allocation run on demand.
type PayoutRunner interface {
	Run(ctx context.Context) (*payout.Summary, error)
	RunPeriod(ctx context.Context, period string) (*payout.Summary, error)
}

// HealthChecker reports storage reachability.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Handler holds the HTTP handler dependencies.
type Handler struct {
	cfg          *config.Config
	reporter     PlayReporter
	payoutReader PayoutReader
	payoutRunner PayoutRunner
	health       HealthChecker
	startTime    time.Time

	// onManualPayoutRun lets the scheduler suppress its next trigger after
	// a manual run. Optional.
	onManualPayoutRun func()
}

// NewHandler creates the API handler.
func NewHandler(cfg *config.Config, reporter PlayReporter, payoutReader PayoutReader, payoutRunner PayoutRunner, health HealthChecker) *Handler {
	return &Handler{
		cfg:          cfg,
		reporter:     reporter,
		payoutReader: payoutReader,
		payoutRunner: payoutRunner,
		health:       health,
		startTime:    time.Now(),
	}
}

// SetManualRunCallback registers a callback invoked after each successful
// manual payout run.
func (h *Handler) SetManualRunCallback(fn func()) {
	h.onManualPayoutRun = fn
}
