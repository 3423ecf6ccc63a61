// Soundproof - Play Ingestion, Fraud Scoring, and Royalty Allocation
// Copyright 2026 Soundproof Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/soundproof/soundproof

// Package ingest accepts batches of client-reported play events, runs the
// cheap fraud pass, and persists them to the raw play store. Accepted events
// are announced on the event bus for asynchronous materialization.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/soundproof/soundproof/internal/config"
	"github.com/soundproof/soundproof/internal/fraud"
	"github.com/soundproof/soundproof/internal/logging"
	"github.com/soundproof/soundproof/internal/metrics"
	"github.com/soundproof/soundproof/internal/models"
	"github.com/soundproof/soundproof/internal/security"
	"github.com/soundproof/soundproof/internal/validation"
)

// PlayEventPayload is one play report inside a batch request. The user ID is
// deliberately absent: it comes from the authenticated caller only.
type PlayEventPayload struct {
	EventID             string    `json:"eventId" validate:"required,uuid"`
	SessionID           string    `json:"sessionId" validate:"required,uuid"`
	TrackID             string    `json:"trackId" validate:"required,max=128"`
	DurationMs          int64     `json:"durationMs" validate:"min=0"`
	TrackFullDurationMs int64     `json:"trackFullDurationMs" validate:"min=1"`
	Completed           bool      `json:"completed"`
	UserAgent           string    `json:"userAgent" validate:"max=1024"`
	Country             string    `json:"country" validate:"omitempty,len=2"`
	Timestamp           time.Time `json:"timestamp" validate:"required"`
}

// BatchValidationError rejects a whole batch, pointing at the first offending
// event. Ingestion is fail-closed: one bad event voids the entire submission
// so clients cannot smuggle partial garbage through retries.
type BatchValidationError struct {
	Index  int
	Field  string
	Reason string
}

func (e *BatchValidationError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("invalid batch: %s", e.Reason)
	}
	return fmt.Sprintf("invalid event at index %d: %s", e.Index, e.Reason)
}

// Result summarizes one accepted batch.
type Result struct {
	// Processed is the number of events in the submitted batch.
	Processed int
	// Written is how many events were newly stored; resubmitted event IDs
	// are counted in Processed but not Written.
	Written int
	// Suspicious counts events flagged by the cheap fraud pass.
	Suspicious int
	// SuspiciousPlayIDs lists the flagged event IDs in batch order.
	SuspiciousPlayIDs []string
}

// RawStore is the slice of the database layer the ingest service needs.
type RawStore interface {
	InsertRawPlayIfAbsent(ctx context.Context, event *models.RawPlayEvent) (bool, error)
}

// Notifier announces newly stored raw plays for asynchronous processing.
type Notifier interface {
	NotifyPlayRecorded(ctx context.Context, event *models.RawPlayEvent) error
}

// Service validates, scores, and stores play batches.
type Service struct {
	store         RawStore
	notifier      Notifier
	ipHashSalt    string
	maxBatchSize  int
	maxClockAhead time.Duration
	now           func() time.Time
}

// NewService creates the ingest service. The notifier may be nil, in which
// case accepted plays are stored but not announced.
func NewService(store RawStore, notifier Notifier, ipHashSalt string, cfg *config.IngestConfig) *Service {
	return &Service{
		store:         store,
		notifier:      notifier,
		ipHashSalt:    ipHashSalt,
		maxBatchSize:  cfg.MaxBatchSize,
		maxClockAhead: cfg.MaxClockAhead,
		now:           time.Now,
	}
}

// ReportBatch processes one batch of play reports for the authenticated user.
//
// The whole batch is validated before anything is written: an empty batch,
// an oversized batch, or any single invalid event rejects the submission with
// a *BatchValidationError and no side effects. After validation each event is
// scored by the cheap fraud pass, stored idempotently by event ID, and
// announced on the event bus. Publish failures are logged and counted but do
// not fail the request; the stored raw play is the source of truth.
func (s *Service) ReportBatch(ctx context.Context, userID, clientIP string, batch []PlayEventPayload) (*Result, error) {
	if len(batch) == 0 {
		metrics.BatchesRejected.WithLabelValues("empty").Inc()
		return nil, &BatchValidationError{Index: -1, Reason: "batch is empty"}
	}
	if len(batch) > s.maxBatchSize {
		metrics.BatchesRejected.WithLabelValues("too_large").Inc()
		return nil, &BatchValidationError{
			Index:  -1,
			Reason: fmt.Sprintf("batch has %d events, maximum is %d", len(batch), s.maxBatchSize),
		}
	}

	if err := s.validateBatch(batch); err != nil {
		return nil, err
	}

	// One digest per request: every event in a batch comes from the same
	// client connection.
	hashedIP := security.HashIPAddress(clientIP, s.ipHashSalt)
	now := s.now().UTC()

	result := &Result{Processed: len(batch)}
	log := logging.Ctx(ctx)

	for i := range batch {
		payload := &batch[i]

		verdict := fraud.Evaluate(fraud.Signals{
			DurationMs:          payload.DurationMs,
			TrackFullDurationMs: payload.TrackFullDurationMs,
			UserAgent:           payload.UserAgent,
			RawClientIP:         clientIP,
		})

		event := &models.RawPlayEvent{
			EventID:             payload.EventID,
			SessionID:           payload.SessionID,
			TrackID:             payload.TrackID,
			UserID:              userID,
			DurationMs:          payload.DurationMs,
			TrackFullDurationMs: payload.TrackFullDurationMs,
			Completed:           payload.Completed,
			DeviceInfo: models.DeviceInfo{
				UserAgent:       payload.UserAgent,
				HashedIPAddress: hashedIP,
				Country:         payload.Country,
			},
			Timestamp:    payload.Timestamp.UTC(),
			Suspicious:   verdict.Suspicious,
			FraudReasons: verdict.Reasons,
			FraudScore:   verdict.Score,
			Processing:   models.ProcessingPending,
			Partition:    models.PartitionKey(payload.Timestamp),
			CreatedAt:    now,
		}

		created, err := s.store.InsertRawPlayIfAbsent(ctx, event)
		if err != nil {
			return nil, fmt.Errorf("failed to store play %s: %w", event.EventID, err)
		}

		if verdict.Suspicious {
			result.Suspicious++
			result.SuspiciousPlayIDs = append(result.SuspiciousPlayIDs, event.EventID)
			metrics.RecordSuspiciousPlay(reasonStrings(verdict.Reasons))
		}

		if !created {
			metrics.PlaysDuplicateEventID.Inc()
			log.Debug().Str("event_id", event.EventID).Msg("Skipping resubmitted event ID")
			continue
		}

		result.Written++
		metrics.PlaysIngested.Inc()

		if s.notifier != nil {
			if err := s.notifier.NotifyPlayRecorded(ctx, event); err != nil {
				metrics.EventsPublishFailed.Inc()
				log.Error().Err(err).Str("event_id", event.EventID).Msg("Failed to publish play notification")
			} else {
				metrics.EventsPublished.Inc()
			}
		}
	}

	metrics.BatchSize.Observe(float64(result.Processed))

	log.Info().
		Str("user_id", userID).
		Int("processed", result.Processed).
		Int("written", result.Written).
		Int("suspicious", result.Suspicious).
		Msg("Play batch ingested")

	return result, nil
}

// validateBatch checks every event before any write. Returns the first
// failure as a *BatchValidationError.
func (s *Service) validateBatch(batch []PlayEventPayload) error {
	maxTimestamp := s.now().Add(s.maxClockAhead)

	for i := range batch {
		payload := &batch[i]

		if verr := validation.ValidateStruct(payload); verr != nil {
			metrics.BatchesRejected.WithLabelValues("invalid_event").Inc()
			first := verr.Errors()[0]
			return &BatchValidationError{
				Index:  i,
				Field:  first.Field(),
				Reason: first.Error(),
			}
		}

		// Client clocks drift; a bounded future skew is tolerated, anything
		// beyond it is rejected rather than silently corrected.
		if payload.Timestamp.After(maxTimestamp) {
			metrics.BatchesRejected.WithLabelValues("clock_ahead").Inc()
			return &BatchValidationError{
				Index:  i,
				Field:  "Timestamp",
				Reason: fmt.Sprintf("timestamp is more than %s in the future", s.maxClockAhead),
			}
		}
	}

	return nil
}

func reasonStrings(reasons []fraud.Reason) []string {
	out := make([]string, len(reasons))
	for i, r := range reasons {
		out[i] = string(r)
	}
	return out
}
