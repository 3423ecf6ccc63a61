// Soundproof - Play Ingestion, Fraud Scoring, and Royalty Allocation
// Copyright 2026 Soundproof Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/soundproof/soundproof

package config

import (
	"fmt"
)

// Validate checks that required configuration is present and valid
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}

	if err := c.validateSecurity(); err != nil {
		return err
	}

	if err := c.validateIngest(); err != nil {
		return err
	}

	if err := c.validateNATS(); err != nil {
		return err
	}

	if err := c.validatePayout(); err != nil {
		return err
	}

	return c.validateLogging()
}

// validateServer validates HTTP server configuration
func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.Timeout <= 0 {
		return fmt.Errorf("server timeout must be positive, got %s", c.Server.Timeout)
	}

	switch c.Server.Environment {
	case "development", "staging", "production":
	default:
		return fmt.Errorf("ENVIRONMENT must be one of development, staging, production, got %q", c.Server.Environment)
	}

	return nil
}

// validateSecurity validates authentication and hashing configuration.
// Production deployments must carry real secrets; development gets a
// pass so local setups work out of the box.
func (c *Config) validateSecurity() error {
	if c.Server.Environment == "production" {
		if c.Security.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required in production")
		}
		if len(c.Security.JWTSecret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 characters in production, got %d", len(c.Security.JWTSecret))
		}
		if c.Security.IPHashSalt == "" {
			return fmt.Errorf("IP_HASH_SALT is required in production")
		}
	}

	if c.Security.SessionTimeout <= 0 {
		return fmt.Errorf("SESSION_TIMEOUT must be positive, got %s", c.Security.SessionTimeout)
	}

	if c.Security.RateLimitReqs < 1 {
		return fmt.Errorf("RATE_LIMIT_REQS must be at least 1, got %d", c.Security.RateLimitReqs)
	}

	if c.Security.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive, got %s", c.Security.RateLimitWindow)
	}

	return nil
}

// validateIngest validates batch ingestion limits
func (c *Config) validateIngest() error {
	if c.Ingest.MaxBatchSize < 1 || c.Ingest.MaxBatchSize > 1000 {
		return fmt.Errorf("INGEST_MAX_BATCH_SIZE must be between 1 and 1000, got %d", c.Ingest.MaxBatchSize)
	}

	if c.Ingest.MaxClockAhead <= 0 {
		return fmt.Errorf("INGEST_MAX_CLOCK_AHEAD must be positive, got %s", c.Ingest.MaxClockAhead)
	}

	return nil
}

// validateNATS validates NATS configuration (only if enabled)
func (c *Config) validateNATS() error {
	if !c.NATS.Enabled {
		return nil
	}

	if !c.NATS.EmbeddedServer && c.NATS.URL == "" {
		return fmt.Errorf("NATS_URL is required when NATS_ENABLED=true and NATS_EMBEDDED_SERVER=false")
	}

	if c.NATS.StreamName == "" {
		return fmt.Errorf("NATS_STREAM_NAME must not be empty")
	}

	if c.NATS.SubscribersCount < 1 {
		return fmt.Errorf("nats subscribers_count must be at least 1, got %d", c.NATS.SubscribersCount)
	}

	if c.NATS.RouterRetryCount < 0 {
		return fmt.Errorf("nats router_retry_count must not be negative, got %d", c.NATS.RouterRetryCount)
	}

	return nil
}

// validatePayout validates the payout scheduler configuration (only if enabled)
func (c *Config) validatePayout() error {
	if !c.Payout.Enabled {
		return nil
	}

	// Capped at 28 so the trigger day exists in every month.
	if c.Payout.DayOfMonth < 1 || c.Payout.DayOfMonth > 28 {
		return fmt.Errorf("PAYOUT_DAY_OF_MONTH must be between 1 and 28, got %d", c.Payout.DayOfMonth)
	}

	if c.Payout.Hour < 0 || c.Payout.Hour > 23 {
		return fmt.Errorf("PAYOUT_HOUR must be between 0 and 23, got %d", c.Payout.Hour)
	}

	if c.Payout.CheckInterval <= 0 {
		return fmt.Errorf("payout check_interval must be positive, got %s", c.Payout.CheckInterval)
	}

	return nil
}

// validateLogging validates logging configuration
func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "trace", "debug", "info", "warn", "error", "fatal":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of trace, debug, info, warn, error, fatal, got %q", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}

	return nil
}
