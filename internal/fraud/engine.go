// Soundproof - Play Ingestion, Fraud Scoring, and Royalty Allocation
// Copyright 2026 Soundproof Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/soundproof/soundproof

// Package fraud implements the play fraud heuristics engine.
//
// The engine is a pure function over a Signals snapshot. It runs twice per
// play with different available context:
//
//   - At ingestion: duration hint from the client, user agent, and the raw
//     (unhashed) client IP. No track or dedup state is available yet.
//   - At materialization: authoritative track duration, track existence, and
//     the dedup window computed from the per-(user,track) aggregate.
//
// Verdicts from the two passes are combined with Merge, which is monotonic:
// a play already flagged stays flagged, re-evaluation can only add reasons.
package fraud

import (
	"net"
	"strings"
	"time"
)

// Reason identifies a single fraud heuristic that matched.
type Reason string

const (
	// ReasonInsufficientListenDuration fires when the listened duration is
	// below min(20s, half the track duration).
	ReasonInsufficientListenDuration Reason = "insufficient_listen_duration"

	// ReasonBotUserAgent fires on a case-insensitive "bot" substring in the
	// user agent. Deliberately crude; a maintained signature list is a
	// possible future refinement.
	ReasonBotUserAgent Reason = "bot_user_agent"

	// ReasonLocalIPAddress fires when the raw client IP is loopback or
	// unspecified. Only meaningful before IP hashing, so it is evaluated at
	// ingestion against the raw source address.
	ReasonLocalIPAddress Reason = "local_ip_address"

	// ReasonTrackNotFound fires when the track lookup fails at
	// materialization time.
	ReasonTrackNotFound Reason = "track_not_found"

	// ReasonDuplicatePlayWithinWindow fires when a play lands inside the
	// dedup window of the previous accepted play for the same (user, track).
	ReasonDuplicatePlayWithinWindow Reason = "duplicate_play_within_window"
)

// Reserved reasons for future heuristics. Declared so stored fraud
// annotations from richer deployments decode cleanly, but no rule in this
// engine produces them.
const (
	ReasonNewUserBurst           Reason = "new_user_burst"
	ReasonDeviceMultipleAccounts Reason = "device_multiple_accounts"
	ReasonIPCluster              Reason = "ip_cluster"
)

// MinListenFloorMs is the absolute listen-time floor in milliseconds.
const MinListenFloorMs = 20000

// minDedupeWindow is the smallest dedup window regardless of track length.
const minDedupeWindow = 30 * time.Second

// Signals is the evidence available for one evaluation pass.
// Zero values mean "not available in this pass": an empty RawClientIP skips
// the local-IP rule, false TrackMissing/DuplicateWithinWindow skip theirs.
type Signals struct {
	// DurationMs is the listened time in milliseconds.
	DurationMs int64

	// TrackFullDurationMs is the full track duration in milliseconds. At
	// ingestion this is the client-supplied hint; at materialization it is
	// the authoritative value from the track store.
	TrackFullDurationMs int64

	// UserAgent is the reporting client's user agent string.
	UserAgent string

	// RawClientIP is the unhashed network-layer source address. Only set at
	// ingestion; the stored device info carries a salted hash from which the
	// local-IP rule cannot be evaluated.
	RawClientIP string

	// TrackMissing indicates the authoritative track lookup failed.
	TrackMissing bool

	// DuplicateWithinWindow indicates the play falls inside the previous
	// accepted play's dedup window for the same (user, track).
	DuplicateWithinWindow bool
}

// Verdict is the result of one evaluation pass.
// Score is a coarse binary severity signal: any matched rule yields 1,
// regardless of how many rules matched.
type Verdict struct {
	Suspicious bool     `json:"suspicious"`
	Reasons    []Reason `json:"reasons,omitempty"`
	Score      float64  `json:"score"`
}

// BelowListenFloor reports whether a listened duration falls short of the
// fraud-eligibility floor for a track: min(20s, half the track duration).
// The half-track comparison doubles the listened side instead of halving
// the track, so odd millisecond durations keep their half-ms precision.
func BelowListenFloor(durationMs, trackFullDurationMs int64) bool {
	if trackFullDurationMs >= 2*MinListenFloorMs {
		return durationMs < MinListenFloorMs
	}
	return 2*durationMs < trackFullDurationMs
}

// DedupeWindow returns the deduplication window for a track:
// max(30s, a quarter of the track duration).
func DedupeWindow(trackFullDurationMs int64) time.Duration {
	quarter := time.Duration(trackFullDurationMs/4) * time.Millisecond
	if quarter < minDedupeWindow {
		return minDedupeWindow
	}
	return quarter
}

// Evaluate runs every rule against the signals and records all matches.
// Rules are independent and not mutually exclusive; reasons appear in a
// stable order. The boundary of the duration rule is strict: a play exactly
// at the floor is not flagged.
func Evaluate(s Signals) Verdict {
	var v Verdict

	if BelowListenFloor(s.DurationMs, s.TrackFullDurationMs) {
		v.record(ReasonInsufficientListenDuration)
	}

	if strings.Contains(strings.ToLower(s.UserAgent), "bot") {
		v.record(ReasonBotUserAgent)
	}

	if s.RawClientIP != "" && isLocalIP(s.RawClientIP) {
		v.record(ReasonLocalIPAddress)
	}

	if s.TrackMissing {
		v.record(ReasonTrackNotFound)
	}

	if s.DuplicateWithinWindow {
		v.record(ReasonDuplicatePlayWithinWindow)
	}

	return v
}

func (v *Verdict) record(r Reason) {
	v.Suspicious = true
	v.Reasons = append(v.Reasons, r)
	v.Score = 1
}

// Merge combines two verdicts monotonically: suspicious is OR-ed, reasons
// are unioned preserving first-seen order, and the score is the max of the
// two (not the sum).
func Merge(a, b Verdict) Verdict {
	merged := Verdict{
		Suspicious: a.Suspicious || b.Suspicious,
		Score:      a.Score,
	}
	if b.Score > merged.Score {
		merged.Score = b.Score
	}

	seen := make(map[Reason]struct{}, len(a.Reasons)+len(b.Reasons))
	for _, r := range a.Reasons {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		merged.Reasons = append(merged.Reasons, r)
	}
	for _, r := range b.Reasons {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		merged.Reasons = append(merged.Reasons, r)
	}

	return merged
}

// HasReason reports whether the verdict contains the given reason.
func (v Verdict) HasReason(r Reason) bool {
	for _, have := range v.Reasons {
		if have == r {
			return true
		}
	}
	return false
}

// isLocalIP reports whether the raw address is loopback or unspecified.
// Handles both the literal development sentinels (127.0.0.1, ::1, 0.0.0.0)
// and any other address in the loopback range.
func isLocalIP(ip string) bool {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return false
	}
	return parsed.IsLoopback() || parsed.IsUnspecified()
}
