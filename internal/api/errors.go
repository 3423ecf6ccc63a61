// Soundproof - Play Ingestion, Fraud Scoring, and Royalty Allocation
// Copyright 2026 Soundproof Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/soundproof/soundproof

package api

// Machine-readable API error codes.
const (
	ErrCodeValidation   = "VALIDATION_ERROR"
	ErrCodeInvalidBatch = "INVALID_BATCH"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeForbidden    = "FORBIDDEN"
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeInternal     = "INTERNAL_ERROR"
	ErrCodeUnavailable  = "SERVICE_UNAVAILABLE"
)
