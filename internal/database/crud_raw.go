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

	"github.com/soundproof/soundproof/internal/fraud"
	"github.com/soundproof/soundproof/internal/metrics"
	"github.com/soundproof/soundproof/internal/models"
)

// InsertRawPlayIfAbsent inserts a raw play event keyed by (partition, event_id).
// Resubmission of an already-stored event ID is not an error: the insert uses
// ON CONFLICT DO NOTHING and the returned bool reports whether a row was
// actually created. This makes batch ingestion retries idempotent.
func (db *DB) InsertRawPlayIfAbsent(ctx context.Context, event *models.RawPlayEvent) (bool, error) {
	start := time.Now()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	event.UpdatedAt = event.CreatedAt
	if event.Partition == "" {
		event.Partition = models.PartitionKey(event.Timestamp)
	}

	reasons, err := marshalReasons(event.FraudReasons)
	if err != nil {
		return false, err
	}

	query := `INSERT INTO plays_raw (
		partition, event_id, session_id, track_id, user_id,
		duration_ms, track_full_duration_ms, completed,
		user_agent, hashed_ip, country,
		suspicious, fraud_reasons, fraud_score,
		processing, event_timestamp, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT DO NOTHING`

	result, err := db.conn.ExecContext(ctx, query,
		event.Partition, event.EventID, event.SessionID, event.TrackID, event.UserID,
		event.DurationMs, event.TrackFullDurationMs, event.Completed,
		event.DeviceInfo.UserAgent, event.DeviceInfo.HashedIPAddress, event.DeviceInfo.Country,
		event.Suspicious, reasons, event.FraudScore,
		string(event.Processing), event.Timestamp, event.CreatedAt, event.UpdatedAt,
	)
	metrics.RecordDBQuery("insert", "plays_raw", time.Since(start), err)
	if err != nil {
		return false, fmt.Errorf("failed to insert raw play: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}

	return affected > 0, nil
}

// GetRawPlay fetches a raw play event by partition and event ID.
// Returns (nil, nil) when no such event exists.
func (db *DB) GetRawPlay(ctx context.Context, partition, eventID string) (*models.RawPlayEvent, error) {
	start := time.Now()

	query := `SELECT
		partition, event_id, session_id, track_id, user_id,
		duration_ms, track_full_duration_ms, completed,
		user_agent, hashed_ip, country,
		suspicious, fraud_reasons, fraud_score,
		processing, materialization_error, event_timestamp, created_at, updated_at
	FROM plays_raw
	WHERE partition = ? AND event_id = ?`

	row := db.conn.QueryRowContext(ctx, query, partition, eventID)

	var (
		event      models.RawPlayEvent
		reasonsRaw string
		processing string
		matErr     sql.NullString
		userAgent  sql.NullString
		hashedIP   sql.NullString
		country    sql.NullString
	)

	err := row.Scan(
		&event.Partition, &event.EventID, &event.SessionID, &event.TrackID, &event.UserID,
		&event.DurationMs, &event.TrackFullDurationMs, &event.Completed,
		&userAgent, &hashedIP, &country,
		&event.Suspicious, &reasonsRaw, &event.FraudScore,
		&processing, &matErr, &event.Timestamp, &event.CreatedAt, &event.UpdatedAt,
	)
	metrics.RecordDBQuery("select", "plays_raw", time.Since(start), err)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get raw play: %w", err)
	}

	event.DeviceInfo = models.DeviceInfo{
		UserAgent:       userAgent.String,
		HashedIPAddress: hashedIP.String,
		Country:         country.String,
	}
	event.Processing = models.ProcessingState(processing)
	event.MaterializationError = matErr.String
	event.FraudReasons, err = unmarshalReasons(reasonsRaw)
	if err != nil {
		return nil, err
	}

	return &event, nil
}

// ListPendingRawPlays returns up to limit raw plays still awaiting
// materialization, oldest first. Used at startup to re-drive notifications
// that were lost with the in-process transport.
func (db *DB) ListPendingRawPlays(ctx context.Context, limit int) ([]*models.RawPlayEvent, error) {
	start := time.Now()

	query := `SELECT partition, event_id
	FROM plays_raw
	WHERE processing = ?
	ORDER BY event_timestamp
	LIMIT ?`

	rows, err := db.conn.QueryContext(ctx, query, string(models.ProcessingPending), limit)
	metrics.RecordDBQuery("select", "plays_raw", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending raw plays: %w", err)
	}
	defer closeQuietly(rows)

	var events []*models.RawPlayEvent
	for rows.Next() {
		var event models.RawPlayEvent
		if err := rows.Scan(&event.Partition, &event.EventID); err != nil {
			return nil, fmt.Errorf("failed to scan pending raw play: %w", err)
		}
		events = append(events, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pending raw plays: %w", err)
	}

	return events, nil
}

// MarkRawPlayProcessed transitions a raw play to processed_ok and stores the
// merged fraud verdict. The transition is terminal.
func (db *DB) MarkRawPlayProcessed(ctx context.Context, partition, eventID string, verdict fraud.Verdict) error {
	start := time.Now()

	reasons, err := marshalReasons(verdict.Reasons)
	if err != nil {
		return err
	}

	query := `UPDATE plays_raw SET
		processing = ?,
		suspicious = ?,
		fraud_reasons = ?,
		fraud_score = ?,
		materialization_error = NULL,
		updated_at = ?
	WHERE partition = ? AND event_id = ?`

	_, err = db.conn.ExecContext(ctx, query,
		string(models.ProcessingOK),
		verdict.Suspicious, reasons, verdict.Score,
		time.Now().UTC(),
		partition, eventID,
	)
	metrics.RecordDBQuery("update", "plays_raw", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to mark raw play processed: %w", err)
	}

	return nil
}

// MarkRawPlayFailed transitions a raw play to processed_error and records the
// failure message for operational follow-up. The transition is terminal; the
// event is never retried after this.
func (db *DB) MarkRawPlayFailed(ctx context.Context, partition, eventID, message string) error {
	start := time.Now()

	query := `UPDATE plays_raw SET
		processing = ?,
		materialization_error = ?,
		updated_at = ?
	WHERE partition = ? AND event_id = ?`

	_, err := db.conn.ExecContext(ctx, query,
		string(models.ProcessingFailed),
		message,
		time.Now().UTC(),
		partition, eventID,
	)
	metrics.RecordDBQuery("update", "plays_raw", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to mark raw play failed: %w", err)
	}

	return nil
}
