// Soundproof - Play Ingestion, Fraud Scoring, and Royalty Allocation
// Copyright 2026 Soundproof Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/soundproof/soundproof

package models

// APIResponse is the envelope for every JSON API response.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
}

// APIError carries a machine-readable code plus human-readable detail.
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// ReportBatchResponse is the payload returned by the play ingestion
// endpoint. SuspiciousPlayIDs is caller-visible for transparency; the cheap
// pass is intentionally conservative since the authoritative pass happens
// downstream.
type ReportBatchResponse struct {
	Success           bool     `json:"success"`
	Processed         int      `json:"processed"`
	Suspicious        int      `json:"suspicious"`
	SuspiciousPlayIDs []string `json:"suspiciousPlayIds"`
}

// HealthResponse reports process health for liveness/readiness probes.
type HealthResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptimeSeconds"`
	Database      string `json:"database,omitempty"`
}
