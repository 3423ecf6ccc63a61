// Soundproof - Play Ingestion, Fraud Scoring, and Royalty Allocation
// Copyright 2026 Soundproof Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/soundproof/soundproof

package models

import (
	"fmt"
	"time"
)

// PayoutStatus tracks a payout through the payment pipeline.
type PayoutStatus string

const (
	PayoutPending    PayoutStatus = "pending"
	PayoutProcessing PayoutStatus = "processing"
	PayoutPaid       PayoutStatus = "paid"
	PayoutFailed     PayoutStatus = "failed"
)

// PayoutBreakdown splits a payout total by revenue source. This pipeline
// only produces subscription revenue; the other buckets exist so payouts
// from tips, stream sponsorships, and direct sales merge into the same
// record elsewhere.
type PayoutBreakdown struct {
	Subscriptions int64 `json:"subscriptions"`
	Tips          int64 `json:"tips"`
	Streams       int64 `json:"streams"`
	DirectSales   int64 `json:"directSales"`
}

// Payout is one artist's earnings for one period, keyed (artistId, period)
// with period formatted YYYY-MM. TotalEarnings is in integer minor currency
// units, rounded once at write time.
type Payout struct {
	ArtistID      string          `json:"artistId"`
	Period        string          `json:"period"`
	TotalEarnings int64           `json:"totalEarnings"`
	Breakdown     PayoutBreakdown `json:"breakdown"`
	Status        PayoutStatus    `json:"status"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// PeriodOf formats a point in time as a YYYY-MM payout period, in UTC.
func PeriodOf(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// PeriodBounds returns the UTC half-open interval [start, end) covered by a
// YYYY-MM period string.
func PeriodBounds(period string) (start, end time.Time, err error) {
	start, err = time.Parse("2006-01", period)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid period %q: %w", period, err)
	}
	return start, start.AddDate(0, 1, 0), nil
}
