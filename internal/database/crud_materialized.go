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

// MaterializeInTx writes the materialized play and bumps the per (user, track)
// dedupe aggregate in a single transaction. Either both rows land or neither
// does, so the aggregate's play_count never drifts from the plays table.
//
// The play insert uses INSERT OR REPLACE keyed on event_id: re-delivery of an
// already-materialized event rewrites the same row with identical content
// instead of failing.
func (db *DB) MaterializeInTx(ctx context.Context, play *models.MaterializedPlay, agg *models.UserTrackAggregate) error {
	start := time.Now()

	reasons, err := marshalReasons(play.FraudReasons)
	if err != nil {
		return err
	}
	artistIDs, err := marshalStrings(play.ArtistIDs)
	if err != nil {
		return err
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	playQuery := `INSERT OR REPLACE INTO plays (
		event_id, session_id, track_id, user_id,
		duration_seconds, completed,
		suspicious, fraud_reasons, fraud_score,
		weight, artist_ids,
		user_agent, hashed_ip, country,
		event_timestamp, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = tx.ExecContext(ctx, playQuery,
		play.EventID, play.SessionID, play.TrackID, play.UserID,
		play.DurationSeconds, play.Completed,
		play.Suspicious, reasons, play.FraudScore,
		play.Weight, artistIDs,
		play.DeviceInfo.UserAgent, play.DeviceInfo.HashedIPAddress, play.DeviceInfo.Country,
		play.Timestamp, time.Now().UTC(),
	)
	if err != nil {
		metrics.RecordDBQuery("insert", "plays", time.Since(start), err)
		return fmt.Errorf("failed to insert materialized play: %w", err)
	}

	aggQuery := `INSERT INTO user_track_agg (
		user_id, track_id, last_play_at, window_ends_at, play_count, updated_at
	) VALUES (?, ?, ?, ?, 1, ?)
	ON CONFLICT (user_id, track_id) DO UPDATE SET
		last_play_at = excluded.last_play_at,
		window_ends_at = excluded.window_ends_at,
		play_count = user_track_agg.play_count + 1,
		updated_at = excluded.updated_at`

	_, err = tx.ExecContext(ctx, aggQuery,
		agg.UserID, agg.TrackID, agg.LastPlayAt, agg.WindowEndsAt, time.Now().UTC(),
	)
	if err != nil {
		metrics.RecordDBQuery("upsert", "user_track_agg", time.Since(start), err)
		return fmt.Errorf("failed to upsert user track aggregate: %w", err)
	}

	if err := tx.Commit(); err != nil {
		metrics.RecordDBQuery("commit", "plays", time.Since(start), err)
		return fmt.Errorf("failed to commit materialization: %w", err)
	}

	metrics.RecordDBQuery("materialize", "plays", time.Since(start), nil)
	return nil
}

// GetMaterializedPlay fetches a materialized play by event ID.
// Returns (nil, nil) when no such play exists.
func (db *DB) GetMaterializedPlay(ctx context.Context, eventID string) (*models.MaterializedPlay, error) {
	start := time.Now()

	query := `SELECT
		event_id, session_id, track_id, user_id,
		duration_seconds, completed,
		suspicious, fraud_reasons, fraud_score,
		weight, artist_ids,
		user_agent, hashed_ip, country,
		event_timestamp
	FROM plays
	WHERE event_id = ?`

	row := db.conn.QueryRowContext(ctx, query, eventID)

	play, err := scanMaterializedPlay(row.Scan)
	metrics.RecordDBQuery("select", "plays", time.Since(start), err)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get materialized play: %w", err)
	}

	return play, nil
}

// GetUserTrackAggregate fetches the dedupe aggregate for a (user, track) pair.
// Returns (nil, nil) when the pair has no recorded plays yet.
func (db *DB) GetUserTrackAggregate(ctx context.Context, userID, trackID string) (*models.UserTrackAggregate, error) {
	start := time.Now()

	query := `SELECT user_id, track_id, last_play_at, window_ends_at, play_count, updated_at
	FROM user_track_agg
	WHERE user_id = ? AND track_id = ?`

	var agg models.UserTrackAggregate
	err := db.conn.QueryRowContext(ctx, query, userID, trackID).Scan(
		&agg.UserID, &agg.TrackID, &agg.LastPlayAt, &agg.WindowEndsAt, &agg.PlayCount, &agg.UpdatedAt,
	)
	metrics.RecordDBQuery("select", "user_track_agg", time.Since(start), err)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user track aggregate: %w", err)
	}

	return &agg, nil
}

// ListQualifiedPlays returns the non-suspicious materialized plays with
// event timestamps in the half-open interval [from, to). These are the plays
// that participate in payout allocation.
func (db *DB) ListQualifiedPlays(ctx context.Context, from, to time.Time) ([]*models.MaterializedPlay, error) {
	start := time.Now()

	query := `SELECT
		event_id, session_id, track_id, user_id,
		duration_seconds, completed,
		suspicious, fraud_reasons, fraud_score,
		weight, artist_ids,
		user_agent, hashed_ip, country,
		event_timestamp
	FROM plays
	WHERE suspicious = false AND event_timestamp >= ? AND event_timestamp < ?
	ORDER BY event_timestamp`

	rows, err := db.conn.QueryContext(ctx, query, from, to)
	metrics.RecordDBQuery("select", "plays", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to list qualified plays: %w", err)
	}
	defer closeQuietly(rows)

	var plays []*models.MaterializedPlay
	for rows.Next() {
		play, err := scanMaterializedPlay(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan qualified play: %w", err)
		}
		plays = append(plays, play)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate qualified plays: %w", err)
	}

	return plays, nil
}

// scanMaterializedPlay scans one plays row via the provided Scan function,
// shared between single-row and multi-row queries.
func scanMaterializedPlay(scan func(dest ...any) error) (*models.MaterializedPlay, error) {
	var (
		play       models.MaterializedPlay
		reasonsRaw string
		artistsRaw string
		userAgent  sql.NullString
		hashedIP   sql.NullString
		country    sql.NullString
	)

	err := scan(
		&play.EventID, &play.SessionID, &play.TrackID, &play.UserID,
		&play.DurationSeconds, &play.Completed,
		&play.Suspicious, &reasonsRaw, &play.FraudScore,
		&play.Weight, &artistsRaw,
		&userAgent, &hashedIP, &country,
		&play.Timestamp,
	)
	if err != nil {
		return nil, err
	}

	play.DeviceInfo = models.DeviceInfo{
		UserAgent:       userAgent.String,
		HashedIPAddress: hashedIP.String,
		Country:         country.String,
	}
	if play.FraudReasons, err = unmarshalReasons(reasonsRaw); err != nil {
		return nil, err
	}
	if play.ArtistIDs, err = unmarshalStrings(artistsRaw); err != nil {
		return nil, err
	}

	return &play, nil
}
