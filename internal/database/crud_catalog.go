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

// The track catalog and subscription tables are read models synced from the
// upstream catalog and billing systems. The pipeline reads them during
// materialization and payout allocation; the upsert methods exist for the
// sync path and for tests.

// GetTrack fetches a track by ID. Returns (nil, nil) when the track does not
// exist; the materializer treats that as a fraud signal, not an error.
func (db *DB) GetTrack(ctx context.Context, trackID string) (*models.Track, error) {
	start := time.Now()

	query := `SELECT id, title, duration_seconds, artist_ids, created_at
	FROM tracks
	WHERE id = ?`

	var (
		track      models.Track
		artistsRaw string
	)

	err := db.conn.QueryRowContext(ctx, query, trackID).Scan(
		&track.ID, &track.Title, &track.DurationSeconds, &artistsRaw, &track.CreatedAt,
	)
	metrics.RecordDBQuery("select", "tracks", time.Since(start), err)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get track: %w", err)
	}

	if track.ArtistIDs, err = unmarshalStrings(artistsRaw); err != nil {
		return nil, err
	}

	return &track, nil
}

// UpsertTrack writes a track catalog entry
func (db *DB) UpsertTrack(ctx context.Context, track *models.Track) error {
	start := time.Now()

	artistIDs, err := marshalStrings(track.ArtistIDs)
	if err != nil {
		return err
	}
	if track.CreatedAt.IsZero() {
		track.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO tracks (id, title, duration_seconds, artist_ids, created_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		title = excluded.title,
		duration_seconds = excluded.duration_seconds,
		artist_ids = excluded.artist_ids`

	_, err = db.conn.ExecContext(ctx, query,
		track.ID, track.Title, track.DurationSeconds, artistIDs, track.CreatedAt,
	)
	metrics.RecordDBQuery("upsert", "tracks", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to upsert track: %w", err)
	}

	return nil
}

// ListActiveSubscriptions returns subscriptions with active billing status
// whose current period ends at or after periodStart. Payout allocation only
// distributes revenue from these; the period condition keeps lapsed
// subscribers out of old-month recomputes.
func (db *DB) ListActiveSubscriptions(ctx context.Context, periodStart time.Time) ([]*models.Subscription, error) {
	start := time.Now()

	query := `SELECT id, user_id, status, current_period_end, net_monthly
	FROM subscriptions
	WHERE status = ?
	AND current_period_end >= ?`

	rows, err := db.conn.QueryContext(ctx, query, string(models.SubscriptionActive), periodStart.UTC())
	metrics.RecordDBQuery("select", "subscriptions", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to list active subscriptions: %w", err)
	}
	defer closeQuietly(rows)

	var subs []*models.Subscription
	for rows.Next() {
		var (
			sub       models.Subscription
			status    string
			periodEnd sql.NullTime
		)
		if err := rows.Scan(&sub.ID, &sub.UserID, &status, &periodEnd, &sub.NetMonthly); err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		sub.Status = models.SubscriptionStatus(status)
		sub.CurrentPeriodEnd = periodEnd.Time
		subs = append(subs, &sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate subscriptions: %w", err)
	}

	return subs, nil
}

// UpsertSubscription writes a subscription read-model entry
func (db *DB) UpsertSubscription(ctx context.Context, sub *models.Subscription) error {
	start := time.Now()

	query := `INSERT INTO subscriptions (id, user_id, status, current_period_end, net_monthly)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		user_id = excluded.user_id,
		status = excluded.status,
		current_period_end = excluded.current_period_end,
		net_monthly = excluded.net_monthly`

	_, err := db.conn.ExecContext(ctx, query,
		sub.ID, sub.UserID, string(sub.Status), sub.CurrentPeriodEnd, sub.NetMonthly,
	)
	metrics.RecordDBQuery("upsert", "subscriptions", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to upsert subscription: %w", err)
	}

	return nil
}
