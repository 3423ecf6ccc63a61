// Soundproof - Play Ingestion, Fraud Scoring, and Royalty Allocation
// Copyright 2026 Soundproof Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/soundproof/soundproof

// Package payout implements user-centric royalty allocation: each
// subscriber's net revenue is divided among the artists that subscriber
// actually listened to, weighted by listen time. Revenue never pools across
// subscribers, so a listener's money can only reach artists they played.
package payout

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/soundproof/soundproof/internal/logging"
	"github.com/soundproof/soundproof/internal/metrics"
	"github.com/soundproof/soundproof/internal/models"
)

// Store is the persistence surface the aggregator needs.
type Store interface {
	// ListActiveSubscriptions returns active subscriptions whose current
	// billing period ends at or after periodStart, so recomputing an old
	// month never credits subscribers who had already lapsed.
	ListActiveSubscriptions(ctx context.Context, periodStart time.Time) ([]*models.Subscription, error)
	ListQualifiedPlays(ctx context.Context, from, to time.Time) ([]*models.MaterializedPlay, error)
	UpsertPayout(ctx context.Context, payout *models.Payout) error
}

// Summary reports what one allocation run did.
type Summary struct {
	Period         string `json:"period"`
	Subscribers    int    `json:"subscribers"`
	PayoutsWritten int    `json:"payoutsWritten"`
	CentsAllocated int64  `json:"centsAllocated"`
}

// Aggregator computes and persists monthly payouts.
type Aggregator struct {
	store Store

	// now is swappable for tests.
	now func() time.Time
}

// NewAggregator creates a payout aggregator.
func NewAggregator(store Store) *Aggregator {
	return &Aggregator{
		store: store,
		now:   time.Now,
	}
}

// Run allocates the previous calendar month. Safe to call repeatedly: the
// run recomputes from plays and replaces existing payout rows for the
// period, so a re-run after late materializations self-corrects.
func (a *Aggregator) Run(ctx context.Context) (*Summary, error) {
	now := a.now().UTC()
	firstOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	period := models.PeriodOf(firstOfMonth.AddDate(0, -1, 0))
	return a.RunPeriod(ctx, period)
}

// RunPeriod allocates one YYYY-MM period.
func (a *Aggregator) RunPeriod(ctx context.Context, period string) (summary *Summary, err error) {
	start := a.now()
	defer func() {
		var written int
		var cents int64
		if summary != nil {
			written = summary.PayoutsWritten
			cents = summary.CentsAllocated
		}
		metrics.RecordPayoutRun(a.now().Sub(start), written, cents, err)
	}()

	from, to, err := models.PeriodBounds(period)
	if err != nil {
		return nil, err
	}

	subs, err := a.store.ListActiveSubscriptions(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}

	plays, err := a.store.ListQualifiedPlays(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("list qualified plays: %w", err)
	}

	playsByUser := make(map[string][]*models.MaterializedPlay)
	for _, play := range plays {
		playsByUser[play.UserID] = append(playsByUser[play.UserID], play)
	}

	// Cents accumulate as floats across all of a subscriber's plays and
	// round exactly once per artist at write time.
	earnings := make(map[string]float64)
	subscribers := 0

	for _, sub := range subs {
		allocated := a.allocateSubscriber(ctx, sub, playsByUser[sub.UserID], earnings)
		if allocated {
			subscribers++
		}
	}

	artistIDs := make([]string, 0, len(earnings))
	for artistID := range earnings {
		artistIDs = append(artistIDs, artistID)
	}
	sort.Strings(artistIDs)

	now := a.now().UTC()
	var totalCents int64
	written := 0

	for _, artistID := range artistIDs {
		cents := int64(math.Round(earnings[artistID]))
		if cents <= 0 {
			continue
		}

		payout := &models.Payout{
			ArtistID:      artistID,
			Period:        period,
			TotalEarnings: cents,
			Breakdown:     models.PayoutBreakdown{Subscriptions: cents},
			Status:        models.PayoutPending,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := a.store.UpsertPayout(ctx, payout); err != nil {
			return nil, fmt.Errorf("upsert payout for %s: %w", artistID, err)
		}
		totalCents += cents
		written++
	}

	summary = &Summary{
		Period:         period,
		Subscribers:    subscribers,
		PayoutsWritten: written,
		CentsAllocated: totalCents,
	}

	logging.Ctx(ctx).Info().
		Str("period", period).
		Int("subscribers", summary.Subscribers).
		Int("payouts", summary.PayoutsWritten).
		Int64("cents", summary.CentsAllocated).
		Msg("payout run complete")

	return summary, nil
}

// allocateSubscriber spreads one subscription's net revenue across the
// artists of the subscriber's qualified plays, proportional to weighted
// listen time and split evenly among a track's artists. Every qualified
// play counts toward the listen-time denominator; a play without artists
// keeps its share unallocated (the subscriber's total paid out shrinks)
// rather than silently inflating the other artists. Returns false when the
// subscriber contributed nothing.
func (a *Aggregator) allocateSubscriber(ctx context.Context, sub *models.Subscription, plays []*models.MaterializedPlay, earnings map[string]float64) bool {
	if sub.NetMonthly <= 0 || len(plays) == 0 {
		return false
	}

	var totalWeighted float64
	for _, play := range plays {
		totalWeighted += play.WeightedListenMs()
	}
	if totalWeighted <= 0 {
		return false
	}

	revenue := float64(sub.NetMonthly)
	allocated := false
	for _, play := range plays {
		if len(play.ArtistIDs) == 0 {
			logging.Ctx(ctx).Warn().
				Str("event_id", play.EventID).
				Str("track_id", play.TrackID).
				Msg("qualified play has no artists, share left unallocated")
			continue
		}
		playShare := revenue * play.WeightedListenMs() / totalWeighted
		artistShare := playShare / float64(len(play.ArtistIDs))
		for _, artistID := range play.ArtistIDs {
			earnings[artistID] += artistShare
		}
		allocated = true
	}

	return allocated
}
