// Soundproof - Play Ingestion, Fraud Scoring, and Royalty Allocation
// Copyright 2026 Soundproof Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/soundproof/soundproof

// Package eventprocessor moves play notifications between ingestion and
// materialization. It supports two transports behind the same
// message.Publisher / message.Subscriber surface: an in-process Go channel
// pub/sub for single-binary deployments, and NATS JetStream (optionally
// embedded) for durable delivery.
package eventprocessor

import (
	"fmt"
	"time"

	"github.com/soundproof/soundproof/internal/models"
)

// SchemaVersion is the current notification schema version.
// Increment this when making breaking changes to PlayRecordedEvent.
const SchemaVersion = 1

// Topic names. The poison topic default lives in config so operators can
// point it at a different subject.
const (
	// TopicPlayRecorded carries notifications for raw plays accepted by
	// the ingest service and awaiting materialization.
	TopicPlayRecorded = "plays.raw.recorded"

	// DefaultPoisonTopic receives messages that exhausted their retries.
	DefaultPoisonTopic = "plays.poison"
)

// PlayRecordedEvent is the notification emitted after a raw play is durably
// written. It deliberately carries only the lookup key: the materializer
// re-reads the raw row so that the database stays the source of truth and a
// replayed notification can never resurrect stale payload data.
type PlayRecordedEvent struct {
	SchemaVersion int `json:"schema_version,omitempty"`

	// PartitionKey and EventID locate the raw play row.
	PartitionKey string `json:"partition_key"`
	EventID      string `json:"event_id"`

	OccurredAt time.Time `json:"occurred_at"`
}

// NewPlayRecordedEvent builds a notification for an accepted raw play.
func NewPlayRecordedEvent(raw *models.RawPlayEvent) *PlayRecordedEvent {
	return &PlayRecordedEvent{
		SchemaVersion: SchemaVersion,
		PartitionKey:  raw.Partition,
		EventID:       raw.EventID,
		OccurredAt:    time.Now().UTC(),
	}
}

// GetSchemaVersion returns the schema version, defaulting to 1 for
// notifications serialized before versioning existed.
func (e *PlayRecordedEvent) GetSchemaVersion() int {
	if e.SchemaVersion == 0 {
		return 1
	}
	return e.SchemaVersion
}

// Validate checks required fields and returns an error if validation fails.
func (e *PlayRecordedEvent) Validate() error {
	if e.PartitionKey == "" {
		return fmt.Errorf("%w: partition_key is required", ErrInvalidEvent)
	}
	if e.EventID == "" {
		return fmt.Errorf("%w: event_id is required", ErrInvalidEvent)
	}
	return nil
}
