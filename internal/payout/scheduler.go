// Soundproof - Play Ingestion, Fraud Scoring, and Royalty Allocation
// Copyright 2026 Soundproof Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/soundproof/soundproof

package payout

import (
	"context"
	"sync"
	"time"

	"github.com/soundproof/soundproof/internal/config"
	"github.com/soundproof/soundproof/internal/logging"
	"github.com/soundproof/soundproof/internal/models"
)

// Runner triggers a payout allocation run.
type Runner interface {
	Run(ctx context.Context) (*Summary, error)
}

// Scheduler fires the monthly payout run at the configured day of month and
// UTC hour. At most one run per calendar month; a run triggered manually
// through the API counts via MarkRan.
type Scheduler struct {
	runner Runner
	cfg    config.PayoutConfig

	mu            sync.Mutex
	lastRunPeriod string

	// now is swappable for tests.
	now func() time.Time
}

// NewScheduler creates a payout scheduler.
func NewScheduler(runner Runner, cfg config.PayoutConfig) *Scheduler {
	return &Scheduler{
		runner: runner,
		cfg:    cfg,
		now:    time.Now,
	}
}

// Start runs the scheduler loop until the context is canceled.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.CheckInterval)
	defer ticker.Stop()

	logging.Info().
		Int("day_of_month", s.cfg.DayOfMonth).
		Int("hour", s.cfg.Hour).
		Msg("payout scheduler running")

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("payout scheduler shutting down")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	now := s.now().UTC()
	if now.Day() != s.cfg.DayOfMonth || now.Hour() != s.cfg.Hour {
		return
	}

	period := models.PeriodOf(now)

	s.mu.Lock()
	if s.lastRunPeriod == period {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	summary, err := s.runner.Run(ctx)
	if err != nil {
		logging.Error().Err(err).Msg("scheduled payout run failed")
		return
	}

	s.mu.Lock()
	s.lastRunPeriod = period
	s.mu.Unlock()

	logging.Info().
		Str("allocated_period", summary.Period).
		Int("payouts", summary.PayoutsWritten).
		Msg("scheduled payout run succeeded")
}

// MarkRan records that a run already happened this month, suppressing the
// next scheduled trigger. Called after manual runs through the API.
func (s *Scheduler) MarkRan() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRunPeriod = models.PeriodOf(s.now().UTC())
}
