// Soundproof - Play Ingestion, Fraud Scoring, and Royalty Allocation
// Copyright 2026 Soundproof Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/soundproof/soundproof

// Package config provides centralized configuration for all Soundproof
// components.
//
// Configuration Loading Order (Koanf v2):
//  1. Defaults: built-in sensible defaults for all optional settings
//  2. Config File: optional YAML file (config.yaml) for persistent settings
//  3. Environment Variables: named overrides (HTTP_PORT, LOG_LEVEL, ...)
//
// Config is immutable after Load() and safe for concurrent read access.
package config

import "time"

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Security SecurityConfig `koanf:"security"`
	Ingest   IngestConfig   `koanf:"ingest"`
	NATS     NATSConfig     `koanf:"nats"`
	Payout   PayoutConfig   `koanf:"payout"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`

	// Environment toggles production-only checks (required secrets).
	// One of: development, staging, production.
	Environment string `koanf:"environment"`
}

// DatabaseConfig holds DuckDB settings.
type DatabaseConfig struct {
	// Path is the database file location. ":memory:" opens an in-memory
	// database (used by tests).
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`

	// Threads controls DuckDB parallelism; 0 uses runtime.NumCPU().
	Threads int `koanf:"threads"`
}

// SecurityConfig holds authentication and fraud-identity settings.
type SecurityConfig struct {
	// JWTSecret signs and verifies caller identity tokens (HS256).
	// Minimum 32 characters in production.
	JWTSecret string `koanf:"jwt_secret"`

	// SessionTimeout bounds token lifetime for tokens minted by this
	// process (operational tooling; user tokens come from the identity
	// service).
	SessionTimeout time.Duration `koanf:"session_timeout"`

	// IPHashSalt keys the HMAC used to hash client IPs before storage.
	// Required: raw client IPs are never persisted.
	IPHashSalt string `koanf:"ip_hash_salt"`

	// Rate limiting for the ingestion endpoint.
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// IngestConfig holds play-batch ingestion settings.
type IngestConfig struct {
	// MaxBatchSize caps the number of play events per request (hard cap
	// 1000, the persisted contract).
	MaxBatchSize int `koanf:"max_batch_size"`

	// MaxClockAhead bounds how far a client-reported event timestamp may
	// sit ahead of server receipt time before the batch is rejected.
	MaxClockAhead time.Duration `koanf:"max_clock_ahead"`
}

// NATSConfig holds event-transport settings for the materialization
// trigger. When disabled, an in-process Watermill gochannel Pub/Sub is used
// instead; the per-event processing contract is identical.
type NATSConfig struct {
	Enabled        bool   `koanf:"enabled"`
	URL            string `koanf:"url"`
	EmbeddedServer bool   `koanf:"embedded_server"`
	StoreDir       string `koanf:"store_dir"`
	MaxMemory      int64  `koanf:"max_memory"`
	MaxStore       int64  `koanf:"max_store"`

	StreamName       string `koanf:"stream_name"`
	DurableName      string `koanf:"durable_name"`
	QueueGroup       string `koanf:"queue_group"`
	SubscribersCount int    `koanf:"subscribers_count"`

	// Watermill Router middleware settings.
	RouterRetryCount           int           `koanf:"router_retry_count"`
	RouterRetryInitialInterval time.Duration `koanf:"router_retry_initial_interval"`
	RouterPoisonQueueTopic     string        `koanf:"router_poison_queue_topic"`
	RouterCloseTimeout         time.Duration `koanf:"router_close_timeout"`
}

// PayoutConfig holds monthly UCPS payout-run scheduling.
type PayoutConfig struct {
	Enabled bool `koanf:"enabled"`

	// DayOfMonth and Hour (UTC) place the monthly run; it computes the
	// previous calendar month.
	DayOfMonth int `koanf:"day_of_month"`
	Hour       int `koanf:"hour"`

	// CheckInterval is the scheduler's wake-up cadence.
	CheckInterval time.Duration `koanf:"check_interval"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}
