// Soundproof - Play Ingestion, Fraud Scoring, and Royalty Allocation
// Copyright 2026 Soundproof Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/soundproof/soundproof

// Package models defines the domain entities shared across the play
// pipeline: raw play events, materialized plays, dedup aggregates, and the
// read models for tracks and subscriptions.
package models

import (
	"time"

	"github.com/soundproof/soundproof/internal/fraud"
)

// ProcessingState is the lifecycle state of a raw play event.
// The state machine is strictly terminal:
//
//	pending -> processed_ok
//	pending -> processed_error
//
// Every raw event ends in one of the two processed states exactly once.
type ProcessingState string

const (
	// ProcessingPending means the event awaits materialization.
	ProcessingPending ProcessingState = "pending"

	// ProcessingOK means materialization completed (the event may still be
	// suspicious; fraud flags gate payout eligibility, not storage).
	ProcessingOK ProcessingState = "processed_ok"

	// ProcessingFailed means materialization failed terminally and the
	// error is recorded on the event for operational follow-up.
	ProcessingFailed ProcessingState = "processed_error"
)

// PartitionKey derives the yyyymm raw-store partition from an event
// timestamp, in UTC. The partition bounds store growth and scan cost and is
// part of the persisted sharding contract.
func PartitionKey(t time.Time) string {
	return t.UTC().Format("200601")
}

// DeviceInfo carries the fraud-relevant client context of a play.
// The IP address is stored only as a salted HMAC digest.
type DeviceInfo struct {
	UserAgent       string `json:"userAgent"`
	HashedIPAddress string `json:"hashedIpAddress"`
	Country         string `json:"country,omitempty"`
}

// RawPlayEvent is one client-reported listen attempt, immutable once
// written except for the processing-state transition performed by the
// materialization worker.
type RawPlayEvent struct {
	// EventID is client-generated and globally unique; it doubles as the
	// idempotency key for ingestion retries and as the materialized play's
	// document key.
	EventID   string `json:"eventId"`
	SessionID string `json:"sessionId"`
	TrackID   string `json:"trackId"`

	// UserID is server-assigned from the authenticated caller, never
	// trusted from the client payload.
	UserID string `json:"userId"`

	// DurationMs is the listened time. TrackFullDurationMs is the client's
	// snapshot of the track length at report time: a hint for the cheap
	// fraud pass, not authoritative.
	DurationMs          int64 `json:"durationMs"`
	TrackFullDurationMs int64 `json:"trackFullDurationMs"`
	Completed           bool  `json:"completed"`

	DeviceInfo DeviceInfo `json:"deviceInfo"`
	Timestamp  time.Time  `json:"timestamp"`

	// Cheap-pass fraud annotations, merged with the authoritative pass at
	// materialization.
	Suspicious   bool           `json:"suspicious"`
	FraudReasons []fraud.Reason `json:"fraudReasons,omitempty"`
	FraudScore   float64        `json:"fraudScore"`

	Processing           ProcessingState `json:"processing"`
	MaterializationError string          `json:"materializationError,omitempty"`

	// Partition is the yyyymm shard derived from Timestamp.
	Partition string `json:"partition"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Verdict returns the event's stored fraud annotations as an engine verdict
// so the materialization pass can merge into them.
func (e *RawPlayEvent) Verdict() fraud.Verdict {
	return fraud.Verdict{
		Suspicious: e.Suspicious,
		Reasons:    e.FraudReasons,
		Score:      e.FraudScore,
	}
}

// MaterializedPlay is the authoritative, queryable play record. Created
// exactly once per EventID and never mutated afterwards; downstream
// aggregation treats it as immutable.
type MaterializedPlay struct {
	EventID   string `json:"eventId"`
	TrackID   string `json:"trackId"`
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`

	// DurationSeconds is converted from the raw event's milliseconds.
	// Completed is recomputed against the authoritative track duration
	// using the 85% threshold.
	DurationSeconds float64 `json:"durationSeconds"`
	Completed       bool    `json:"completed"`

	Suspicious   bool           `json:"suspicious"`
	FraudReasons []fraud.Reason `json:"fraudReasons,omitempty"`
	FraudScore   float64        `json:"fraudScore"`

	// Weight scales this play's listen time in payout allocation.
	// Zero means unweighted (treated as 1).
	Weight float64 `json:"weight,omitempty"`

	// ArtistIDs is the track's artist and accepted-collaborator list
	// snapshotted at materialization time.
	ArtistIDs []string `json:"artistIds"`

	DeviceInfo DeviceInfo `json:"deviceInfo"`
	Timestamp  time.Time  `json:"timestamp"`
}

// WeightedListenMs returns the play's payout weight contribution:
// (weight or 1) x listened milliseconds.
func (p *MaterializedPlay) WeightedListenMs() float64 {
	w := p.Weight
	if w == 0 {
		w = 1
	}
	return w * p.DurationSeconds * 1000
}

// UserTrackAggregate tracks the dedup window per (user, track) pair.
// WindowEndsAt always derives from the most recently accepted play's
// timestamp; PlayCount only ever increments.
type UserTrackAggregate struct {
	UserID       string    `json:"userId"`
	TrackID      string    `json:"trackId"`
	LastPlayAt   time.Time `json:"lastPlayAt"`
	WindowEndsAt time.Time `json:"windowEndsAt"`
	PlayCount    int64     `json:"playCount"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Track is the read model of the external track catalog. The pipeline only
// reads it: existence, authoritative duration, and the artist list.
type Track struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	DurationSeconds int64     `json:"durationSeconds"`
	ArtistIDs       []string  `json:"artistIds"`
	CreatedAt       time.Time `json:"createdAt"`
}

// DurationMs returns the authoritative track duration in milliseconds.
func (t *Track) DurationMs() int64 {
	return t.DurationSeconds * 1000
}

// SubscriptionStatus is the billing status of a subscription.
type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionCanceled SubscriptionStatus = "canceled"
	SubscriptionPastDue  SubscriptionStatus = "past_due"
	SubscriptionUnpaid   SubscriptionStatus = "unpaid"
)

// Subscription is the read model of the external billing system.
// NetMonthly is the allocatable revenue for the billing cycle in integer
// minor currency units (cents).
type Subscription struct {
	ID               string             `json:"id"`
	UserID           string             `json:"userId"`
	Status           SubscriptionStatus `json:"status"`
	CurrentPeriodEnd time.Time          `json:"currentPeriodEnd"`
	NetMonthly       int64              `json:"netMonthly"`
}
