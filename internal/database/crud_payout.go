// Soundproof - Play Ingestion, Fraud Scoring, and Royalty Allocation
// Copyright 2026 Soundproof Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/soundproof/soundproof

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/soundproof/soundproof/internal/metrics"
	"github.com/soundproof/soundproof/internal/models"
)

// UpsertPayout writes an artist's payout for a period. Re-running allocation
// for the same period replaces the totals and breakdown of the existing row
// and resets its status to pending, so a recompute always reflects the latest
// play data rather than accumulating on top of a previous run.
func (db *DB) UpsertPayout(ctx context.Context, payout *models.Payout) error {
	start := time.Now()

	now := time.Now().UTC()
	if payout.Status == "" {
		payout.Status = models.PayoutPending
	}

	query := `INSERT INTO payouts (
		artist_id, period, total_earnings,
		breakdown_subscriptions, breakdown_tips, breakdown_streams, breakdown_direct_sales,
		status, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (artist_id, period) DO UPDATE SET
		total_earnings = excluded.total_earnings,
		breakdown_subscriptions = excluded.breakdown_subscriptions,
		breakdown_tips = excluded.breakdown_tips,
		breakdown_streams = excluded.breakdown_streams,
		breakdown_direct_sales = excluded.breakdown_direct_sales,
		status = excluded.status,
		updated_at = excluded.updated_at`

	_, err := db.conn.ExecContext(ctx, query,
		payout.ArtistID, payout.Period, payout.TotalEarnings,
		payout.Breakdown.Subscriptions, payout.Breakdown.Tips,
		payout.Breakdown.Streams, payout.Breakdown.DirectSales,
		string(payout.Status), now, now,
	)
	metrics.RecordDBQuery("upsert", "payouts", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to upsert payout: %w", err)
	}

	return nil
}

// GetPayout fetches a single payout by artist and period.
// Returns (nil, nil) when no payout exists for the pair.
func (db *DB) GetPayout(ctx context.Context, artistID, period string) (*models.Payout, error) {
	start := time.Now()

	query := `SELECT artist_id, period, total_earnings,
		breakdown_subscriptions, breakdown_tips, breakdown_streams, breakdown_direct_sales,
		status, created_at, updated_at
	FROM payouts
	WHERE artist_id = ? AND period = ?`

	payout, err := scanPayout(db.conn.QueryRowContext(ctx, query, artistID, period).Scan)
	metrics.RecordDBQuery("select", "payouts", time.Since(start), err)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payout: %w", err)
	}

	return payout, nil
}

// ListPayoutsByArtist returns all payouts for an artist, newest period first.
func (db *DB) ListPayoutsByArtist(ctx context.Context, artistID string) ([]*models.Payout, error) {
	start := time.Now()

	query := `SELECT artist_id, period, total_earnings,
		breakdown_subscriptions, breakdown_tips, breakdown_streams, breakdown_direct_sales,
		status, created_at, updated_at
	FROM payouts
	WHERE artist_id = ?
	ORDER BY period DESC`

	rows, err := db.conn.QueryContext(ctx, query, artistID)
	metrics.RecordDBQuery("select", "payouts", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to list payouts: %w", err)
	}
	defer closeQuietly(rows)

	var payouts []*models.Payout
	for rows.Next() {
		payout, err := scanPayout(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payout: %w", err)
		}
		payouts = append(payouts, payout)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate payouts: %w", err)
	}

	return payouts, nil
}

func scanPayout(scan func(dest ...any) error) (*models.Payout, error) {
	var (
		payout models.Payout
		status string
	)

	err := scan(
		&payout.ArtistID, &payout.Period, &payout.TotalEarnings,
		&payout.Breakdown.Subscriptions, &payout.Breakdown.Tips,
		&payout.Breakdown.Streams, &payout.Breakdown.DirectSales,
		&status, &payout.CreatedAt, &payout.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	payout.Status = models.PayoutStatus(status)
	return &payout, nil
}
