// Soundproof - Play Ingestion, Fraud Scoring, and Royalty Allocation
// Copyright 2026 Soundproof Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/soundproof/soundproof

/*
database_schema.go - Database Schema Management

Tables:
  - plays_raw: Append-only record of every reported play, keyed by
    (partition, event_id) where partition is the yyyymm of the play
    timestamp. Carries the ingest fraud verdict and processing state.
  - plays: Materialized plays, one row per event_id, including payout
    weight and the track's artist IDs denormalized at materialization.
  - user_track_agg: Per (user, track) dedupe bookkeeping. window_ends_at
    marks when the current dedupe window closes.
  - tracks: Track catalog with duration and owning artists.
  - subscriptions: Listener subscriptions with status and net monthly
    revenue in cents.
  - payouts: Per (artist, period) royalty allocations with a revenue
    breakdown.

All columns are defined in the initial CREATE TABLE statements. There is
no migration machinery; the schema is the single source of truth.
*/

//nolint:staticcheck // File documentation, not package doc
package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext returns a context with timeout for schema operations
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// createTables creates the core database tables and indexes
func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	queries := getTableCreationQueries()
	queries = append(queries, getIndexCreationQueries()...)

	for _, query := range queries {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %s: %w", query, err)
		}
	}

	return nil
}

// getTableCreationQueries returns the table creation SQL statements
func getTableCreationQueries() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS plays_raw (
			partition TEXT NOT NULL,
			event_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			track_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			duration_ms BIGINT NOT NULL,
			track_full_duration_ms BIGINT NOT NULL,
			completed BOOLEAN NOT NULL DEFAULT false,
			user_agent TEXT,
			hashed_ip TEXT,
			country TEXT,
			suspicious BOOLEAN NOT NULL DEFAULT false,
			fraud_reasons TEXT NOT NULL DEFAULT '[]',
			fraud_score DOUBLE NOT NULL DEFAULT 0,
			processing TEXT NOT NULL DEFAULT 'pending',
			materialization_error TEXT,
			event_timestamp TIMESTAMP NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (partition, event_id)
		)`,

		`CREATE TABLE IF NOT EXISTS plays (
			event_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			track_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			duration_seconds DOUBLE NOT NULL,
			completed BOOLEAN NOT NULL DEFAULT false,
			suspicious BOOLEAN NOT NULL DEFAULT false,
			fraud_reasons TEXT NOT NULL DEFAULT '[]',
			fraud_score DOUBLE NOT NULL DEFAULT 0,
			weight DOUBLE NOT NULL DEFAULT 1,
			artist_ids TEXT NOT NULL DEFAULT '[]',
			user_agent TEXT,
			hashed_ip TEXT,
			country TEXT,
			event_timestamp TIMESTAMP NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS user_track_agg (
			user_id TEXT NOT NULL,
			track_id TEXT NOT NULL,
			last_play_at TIMESTAMP NOT NULL,
			window_ends_at TIMESTAMP NOT NULL,
			play_count BIGINT NOT NULL DEFAULT 0,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (user_id, track_id)
		)`,

		`CREATE TABLE IF NOT EXISTS tracks (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			duration_seconds DOUBLE NOT NULL,
			artist_ids TEXT NOT NULL DEFAULT '[]',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS subscriptions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			status TEXT NOT NULL,
			current_period_end TIMESTAMP,
			net_monthly BIGINT NOT NULL DEFAULT 0
		)`,

		`CREATE TABLE IF NOT EXISTS payouts (
			artist_id TEXT NOT NULL,
			period TEXT NOT NULL,
			total_earnings BIGINT NOT NULL DEFAULT 0,
			breakdown_subscriptions BIGINT NOT NULL DEFAULT 0,
			breakdown_tips BIGINT NOT NULL DEFAULT 0,
			breakdown_streams BIGINT NOT NULL DEFAULT 0,
			breakdown_direct_sales BIGINT NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'pending',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (artist_id, period)
		)`,
	}
}

// getIndexCreationQueries returns the index creation SQL statements
func getIndexCreationQueries() []string {
	return []string{
		// Payout aggregation scans plays by time range and suspicion flag
		`CREATE INDEX IF NOT EXISTS idx_plays_timestamp ON plays (event_timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_plays_user_track ON plays (user_id, track_id)`,

		// Pending raw plays by processing state for operational queries
		`CREATE INDEX IF NOT EXISTS idx_plays_raw_processing ON plays_raw (processing)`,

		`CREATE INDEX IF NOT EXISTS idx_subscriptions_user ON subscriptions (user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_subscriptions_status ON subscriptions (status)`,
	}
}
