// Soundproof - Play Ingestion, Fraud Scoring, and Royalty Allocation
// Copyright 2026 Soundproof Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/soundproof/soundproof

package database

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/soundproof/soundproof/internal/fraud"
)

// List-valued columns (artist IDs, fraud reasons) are stored as JSON text.
// DuckDB has native LIST types, but JSON text keeps the scan path on plain
// database/sql strings and the values pass through unparsed.

func marshalStrings(values []string) (string, error) {
	if len(values) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("failed to marshal string list: %w", err)
	}
	return string(b), nil
}

func unmarshalStrings(raw string) ([]string, error) {
	if raw == "" || raw == "[]" {
		return nil, nil
	}
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, fmt.Errorf("failed to unmarshal string list: %w", err)
	}
	return values, nil
}

func marshalReasons(reasons []fraud.Reason) (string, error) {
	if len(reasons) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(reasons)
	if err != nil {
		return "", fmt.Errorf("failed to marshal fraud reasons: %w", err)
	}
	return string(b), nil
}

func unmarshalReasons(raw string) ([]fraud.Reason, error) {
	if raw == "" || raw == "[]" {
		return nil, nil
	}
	var reasons []fraud.Reason
	if err := json.Unmarshal([]byte(raw), &reasons); err != nil {
		return nil, fmt.Errorf("failed to unmarshal fraud reasons: %w", err)
	}
	return reasons, nil
}
