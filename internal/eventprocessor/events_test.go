// Soundproof - Play Ingestion, Fraud Scoring, and Royalty Allocation
// Copyright 2026 Soundproof Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/soundproof/soundproof

package eventprocessor

import (
	"errors"
	"testing"
	"time"

	"github.com/soundproof/soundproof/internal/models"
)

func TestNewPlayRecordedEvent(t *testing.T) {
	raw := &models.RawPlayEvent{
		EventID:   "evt-1",
		Partition: "202603",
		Timestamp: time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC),
	}

	event := NewPlayRecordedEvent(raw)

	if event.SchemaVersion != SchemaVersion {
		t.Errorf("SchemaVersion = %d, want %d", event.SchemaVersion, SchemaVersion)
	}
	if event.EventID != "evt-1" {
		t.Errorf("EventID = %q, want evt-1", event.EventID)
	}
	if event.PartitionKey != "202603" {
		t.Errorf("PartitionKey = %q, want 202603", event.PartitionKey)
	}
	if event.OccurredAt.IsZero() {
		t.Error("OccurredAt should be set")
	}
}

func TestPlayRecordedEvent_Validate(t *testing.T) {
	tests := []struct {
		name    string
		event   PlayRecordedEvent
		wantErr bool
	}{
		{
			name:    "valid",
			event:   PlayRecordedEvent{PartitionKey: "202603", EventID: "evt-1"},
			wantErr: false,
		},
		{
			name:    "missing partition key",
			event:   PlayRecordedEvent{EventID: "evt-1"},
			wantErr: true,
		},
		{
			name:    "missing event id",
			event:   PlayRecordedEvent{PartitionKey: "202603"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidEvent) {
				t.Errorf("error should wrap ErrInvalidEvent, got %v", err)
			}
		})
	}
}

func TestPlayRecordedEvent_GetSchemaVersion(t *testing.T) {
	legacy := PlayRecordedEvent{PartitionKey: "202603", EventID: "evt-1"}
	if got := legacy.GetSchemaVersion(); got != 1 {
		t.Errorf("legacy GetSchemaVersion() = %d, want 1", got)
	}

	current := PlayRecordedEvent{SchemaVersion: 2}
	if got := current.GetSchemaVersion(); got != 2 {
		t.Errorf("GetSchemaVersion() = %d, want 2", got)
	}
}

func TestSerializer_RoundTrip(t *testing.T) {
	s := NewSerializer()

	original := &PlayRecordedEvent{
		SchemaVersion: SchemaVersion,
		PartitionKey:  "202603",
		EventID:       "evt-1",
		OccurredAt:    time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC),
	}

	data, err := s.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	decoded, err := s.Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if decoded.EventID != original.EventID {
		t.Errorf("EventID = %q, want %q", decoded.EventID, original.EventID)
	}
	if decoded.PartitionKey != original.PartitionKey {
		t.Errorf("PartitionKey = %q, want %q", decoded.PartitionKey, original.PartitionKey)
	}
	if !decoded.OccurredAt.Equal(original.OccurredAt) {
		t.Errorf("OccurredAt = %v, want %v", decoded.OccurredAt, original.OccurredAt)
	}
}

func TestSerializer_MarshalInvalid(t *testing.T) {
	s := NewSerializer()

	if _, err := s.Marshal(&PlayRecordedEvent{}); err == nil {
		t.Error("Marshal() of invalid event should fail")
	}
}

func TestSerializer_UnmarshalMalformed(t *testing.T) {
	s := NewSerializer()

	if _, err := s.Unmarshal([]byte("{not json")); err == nil {
		t.Error("Unmarshal() of malformed data should fail")
	}
}
