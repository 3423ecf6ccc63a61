// Soundproof - Play Ingestion, Fraud Scoring, and Royalty Allocation
// Copyright 2026 Soundproof Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/soundproof/soundproof

// Package materializer turns accepted raw play events into canonical play
// records. It runs the authoritative fraud pass with track and dedup context
// the ingest path does not have, and drives the strictly terminal
// processing-state transition of each raw event.
package materializer

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/soundproof/soundproof/internal/fraud"
	"github.com/soundproof/soundproof/internal/logging"
	"github.com/soundproof/soundproof/internal/metrics"
	"github.com/soundproof/soundproof/internal/models"
)

// completionThreshold is the listened fraction of the authoritative track
// duration at which a play counts as completed.
const completionThreshold = 0.85

// lockStripes bounds the keyed-mutex memory; plays for the same (user,
// track) pair always hash to the same stripe, so dedup-window reads and the
// aggregate update are serialized.
const lockStripes = 64

// Store is the persistence surface the worker needs.
type Store interface {
	GetRawPlay(ctx context.Context, partition, eventID string) (*models.RawPlayEvent, error)
	MarkRawPlayProcessed(ctx context.Context, partition, eventID string, verdict fraud.Verdict) error
	MarkRawPlayFailed(ctx context.Context, partition, eventID, message string) error
	GetTrack(ctx context.Context, trackID string) (*models.Track, error)
	GetMaterializedPlay(ctx context.Context, eventID string) (*models.MaterializedPlay, error)
	GetUserTrackAggregate(ctx context.Context, userID, trackID string) (*models.UserTrackAggregate, error)
	MaterializeInTx(ctx context.Context, play *models.MaterializedPlay, agg *models.UserTrackAggregate) error
}

// Worker materializes raw plays. Safe for concurrent use; plays touching the
// same (user, track) pair are serialized internally.
type Worker struct {
	store Store
	locks [lockStripes]sync.Mutex

	// now is swappable for tests.
	now func() time.Time
}

// NewWorker creates a materialization worker.
func NewWorker(store Store) *Worker {
	return &Worker{
		store: store,
		now:   time.Now,
	}
}

// Materialize processes one raw play identified by its partition and event
// ID. It is idempotent: re-delivery of an already processed event is a
// no-op. A returned error is transient and safe to retry; terminally bad
// plays are marked failed in the store and return nil.
func (w *Worker) Materialize(ctx context.Context, partitionKey, eventID string) (err error) {
	start := w.now()
	outcome := "failed"
	defer func() {
		if err == nil {
			metrics.RecordMaterialization(outcome, w.now().Sub(start))
		}
	}()

	raw, err := w.store.GetRawPlay(ctx, partitionKey, eventID)
	if err != nil {
		return fmt.Errorf("fetch raw play: %w", err)
	}
	if raw == nil {
		// Notifications are published only after the raw row is durably
		// written, so an absent row is either replication lag or data
		// loss. Retry; the poison queue catches the latter.
		return fmt.Errorf("raw play %s/%s not found", partitionKey, eventID)
	}

	if raw.Processing != models.ProcessingPending {
		outcome = "already_processed"
		return nil
	}

	lock := w.lockFor(raw.UserID, raw.TrackID)
	lock.Lock()
	defer lock.Unlock()

	// Re-read under the lock: a concurrent delivery may have finished the
	// transition while we waited.
	raw, err = w.store.GetRawPlay(ctx, partitionKey, eventID)
	if err != nil {
		return fmt.Errorf("re-fetch raw play: %w", err)
	}
	if raw == nil {
		return fmt.Errorf("raw play %s/%s disappeared", partitionKey, eventID)
	}
	if raw.Processing != models.ProcessingPending {
		outcome = "already_processed"
		return nil
	}

	outcome, err = w.materializeLocked(ctx, raw)
	return err
}

// materializeLocked runs the authoritative pass. Step failures mark the raw
// play terminally failed and return nil so the router does not retry a play
// that will never succeed; only the failure-marking write itself is
// retryable.
func (w *Worker) materializeLocked(ctx context.Context, raw *models.RawPlayEvent) (string, error) {
	track, err := w.store.GetTrack(ctx, raw.TrackID)
	if err != nil {
		return "failed", w.markFailed(ctx, raw, fmt.Sprintf("track lookup: %v", err))
	}

	if track == nil {
		verdict := fraud.Merge(raw.Verdict(), fraud.Evaluate(fraud.Signals{
			DurationMs:          raw.DurationMs,
			TrackFullDurationMs: raw.TrackFullDurationMs,
			UserAgent:           raw.DeviceInfo.UserAgent,
			TrackMissing:        true,
		}))
		metrics.RecordSuspiciousPlay(reasonStrings(verdict.Reasons))
		if err := w.store.MarkRawPlayProcessed(ctx, raw.Partition, raw.EventID, verdict); err != nil {
			return "failed", fmt.Errorf("mark processed: %w", err)
		}
		logging.Ctx(ctx).Warn().
			Str("event_id", raw.EventID).
			Str("track_id", raw.TrackID).
			Msg("play references unknown track")
		return "track_not_found", nil
	}

	agg, err := w.store.GetUserTrackAggregate(ctx, raw.UserID, raw.TrackID)
	if err != nil {
		return "failed", w.markFailed(ctx, raw, fmt.Sprintf("aggregate lookup: %v", err))
	}

	duplicate := agg != nil && raw.Timestamp.Before(agg.WindowEndsAt)
	if duplicate {
		metrics.DedupeWindowHits.Inc()
	}

	verdict := fraud.Merge(raw.Verdict(), fraud.Evaluate(fraud.Signals{
		DurationMs:            raw.DurationMs,
		TrackFullDurationMs:   track.DurationMs(),
		UserAgent:             raw.DeviceInfo.UserAgent,
		DuplicateWithinWindow: duplicate,
	}))
	if verdict.Suspicious {
		metrics.RecordSuspiciousPlay(reasonStrings(verdict.Reasons))
	}

	// Skip the write when a previous attempt already materialized the play
	// but crashed before flipping the processing state; re-running the
	// transaction would double-count the aggregate.
	existing, err := w.store.GetMaterializedPlay(ctx, raw.EventID)
	if err != nil {
		return "failed", w.markFailed(ctx, raw, fmt.Sprintf("play lookup: %v", err))
	}

	if existing == nil {
		play := buildPlay(raw, track, verdict)
		nextAgg := &models.UserTrackAggregate{
			UserID:       raw.UserID,
			TrackID:      raw.TrackID,
			LastPlayAt:   raw.Timestamp,
			WindowEndsAt: raw.Timestamp.Add(fraud.DedupeWindow(track.DurationMs())),
			UpdatedAt:    w.now().UTC(),
		}
		if err := w.store.MaterializeInTx(ctx, play, nextAgg); err != nil {
			return "failed", w.markFailed(ctx, raw, fmt.Sprintf("materialize: %v", err))
		}
	}

	if err := w.store.MarkRawPlayProcessed(ctx, raw.Partition, raw.EventID, verdict); err != nil {
		return "failed", fmt.Errorf("mark processed: %w", err)
	}

	if duplicate {
		return "duplicate", nil
	}
	return "ok", nil
}

// markFailed records the terminal failure on the raw play. It returns nil on
// success so the message is acked; a failed write bubbles up for retry.
func (w *Worker) markFailed(ctx context.Context, raw *models.RawPlayEvent, message string) error {
	logging.Ctx(ctx).Error().
		Str("event_id", raw.EventID).
		Str("partition", raw.Partition).
		Str("reason", message).
		Msg("play materialization failed")

	if err := w.store.MarkRawPlayFailed(ctx, raw.Partition, raw.EventID, message); err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

func buildPlay(raw *models.RawPlayEvent, track *models.Track, verdict fraud.Verdict) *models.MaterializedPlay {
	artistIDs := make([]string, len(track.ArtistIDs))
	copy(artistIDs, track.ArtistIDs)

	return &models.MaterializedPlay{
		EventID:         raw.EventID,
		TrackID:         raw.TrackID,
		UserID:          raw.UserID,
		SessionID:       raw.SessionID,
		DurationSeconds: float64(raw.DurationMs) / 1000,
		Completed:       float64(raw.DurationMs) >= completionThreshold*float64(track.DurationMs()),
		Suspicious:      verdict.Suspicious,
		FraudReasons:    verdict.Reasons,
		FraudScore:      verdict.Score,
		Weight:          1,
		ArtistIDs:       artistIDs,
		DeviceInfo:      raw.DeviceInfo,
		Timestamp:       raw.Timestamp,
	}
}

func (w *Worker) lockFor(userID, trackID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(trackID))
	return &w.locks[h.Sum32()%lockStripes]
}

func reasonStrings(reasons []fraud.Reason) []string {
	out := make([]string, len(reasons))
	for i, r := range reasons {
		out[i] = string(r)
	}
	return out
}
