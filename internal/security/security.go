// Soundproof - Play Ingestion, Fraud Scoring, and Royalty Allocation
// Copyright 2026 Soundproof Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/soundproof/soundproof

// Package security provides identity utilities for the play pipeline:
// deterministic salted IP hashing and event/session identifier generation.
package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"
)

// HashIPAddress returns the hex HMAC-SHA256 digest of the IP address keyed
// by the server-side salt. The hash is deterministic: the same (ip, salt)
// pair always yields the same digest, which enables consistent-IP clustering
// analysis without ever storing raw addresses.
func HashIPAddress(ip, salt string) string {
	mac := hmac.New(sha256.New, []byte(salt))
	mac.Write([]byte(ip))
	return hex.EncodeToString(mac.Sum(nil))
}

// NewEventID returns a random UUIDv4 string. Event IDs are dedup and
// idempotency keys, not security credentials; 122 bits of randomness makes
// collisions astronomically unlikely.
func NewEventID() string {
	return uuid.New().String()
}

// NewSessionID returns a random UUIDv4 string for grouping a batch of
// play events reported from one client session.
func NewSessionID() string {
	return uuid.New().String()
}
