// Soundproof - Play Ingestion, Fraud Scoring, and Royalty Allocation
// Copyright 2026 Soundproof Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/soundproof/soundproof

package fraud

import (
	"testing"
	"time"
)

func TestDurationRuleFloorBoundary(t *testing.T) {
	// For a 120s track, 50% is 60s, so the 20s absolute floor wins.
	tests := []struct {
		name       string
		durationMs int64
		want       bool
	}{
		{"just below floor", 19999, true},
		{"exactly at floor", 20000, false},
		{"well above floor but below 50%", 39999, false},
		{"zero duration", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Evaluate(Signals{
				DurationMs:          tt.durationMs,
				TrackFullDurationMs: 120000,
				UserAgent:           "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7)",
			})
			if got := v.HasReason(ReasonInsufficientListenDuration); got != tt.want {
				t.Errorf("duration %dms: insufficient_listen_duration = %v, want %v",
					tt.durationMs, got, tt.want)
			}
		})
	}
}

func TestDurationRuleHalfTrackDominatesForShortTracks(t *testing.T) {
	// For a 30s track, 50% is 15s, which is below the 20s floor.
	tests := []struct {
		durationMs int64
		want       bool
	}{
		{14999, true},
		{15000, false},
	}
	for _, tt := range tests {
		v := Evaluate(Signals{
			DurationMs:          tt.durationMs,
			TrackFullDurationMs: 30000,
			UserAgent:           "Mozilla/5.0",
		})
		if got := v.HasReason(ReasonInsufficientListenDuration); got != tt.want {
			t.Errorf("duration %dms on 30s track: flagged = %v, want %v",
				tt.durationMs, got, tt.want)
		}
	}
}

func TestBotUserAgent(t *testing.T) {
	tests := []struct {
		userAgent string
		want      bool
	}{
		{"Googlebot/2.1", true},
		{"my-ROBOT-client", true},
		{"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7)", false},
		{"", false},
	}
	for _, tt := range tests {
		v := Evaluate(Signals{
			DurationMs:          60000,
			TrackFullDurationMs: 120000,
			UserAgent:           tt.userAgent,
		})
		if got := v.HasReason(ReasonBotUserAgent); got != tt.want {
			t.Errorf("user agent %q: bot_user_agent = %v, want %v", tt.userAgent, got, tt.want)
		}
	}
}

func TestLocalIPAddress(t *testing.T) {
	tests := []struct {
		ip   string
		want bool
	}{
		{"127.0.0.1", true},
		{"::1", true},
		{"0.0.0.0", true},
		{"203.0.113.42", false},
		{"not-an-ip", false},
		{"", false}, // not available in this pass
	}
	for _, tt := range tests {
		v := Evaluate(Signals{
			DurationMs:          60000,
			TrackFullDurationMs: 120000,
			UserAgent:           "Mozilla/5.0",
			RawClientIP:         tt.ip,
		})
		if got := v.HasReason(ReasonLocalIPAddress); got != tt.want {
			t.Errorf("ip %q: local_ip_address = %v, want %v", tt.ip, got, tt.want)
		}
	}
}

func TestMultipleReasonsScoreStaysBinary(t *testing.T) {
	v := Evaluate(Signals{
		DurationMs:          1000,
		TrackFullDurationMs: 120000,
		UserAgent:           "Googlebot/2.1",
		RawClientIP:         "127.0.0.1",
	})

	if !v.Suspicious {
		t.Fatal("expected suspicious verdict")
	}
	for _, r := range []Reason{ReasonInsufficientListenDuration, ReasonBotUserAgent, ReasonLocalIPAddress} {
		if !v.HasReason(r) {
			t.Errorf("missing reason %s", r)
		}
	}
	if len(v.Reasons) != 3 {
		t.Errorf("reasons = %v, want exactly 3", v.Reasons)
	}
	if v.Score != 1 {
		t.Errorf("score = %v, want 1 (binary, not per-reason sum)", v.Score)
	}
}

func TestCleanPlay(t *testing.T) {
	v := Evaluate(Signals{
		DurationMs:          90000,
		TrackFullDurationMs: 120000,
		UserAgent:           "Mozilla/5.0",
		RawClientIP:         "203.0.113.42",
	})
	if v.Suspicious || len(v.Reasons) != 0 || v.Score != 0 {
		t.Errorf("expected clean verdict, got %+v", v)
	}
}

func TestMaterializationOnlySignals(t *testing.T) {
	v := Evaluate(Signals{
		DurationMs:            60000,
		TrackFullDurationMs:   120000,
		UserAgent:             "Mozilla/5.0",
		TrackMissing:          true,
		DuplicateWithinWindow: true,
	})
	if !v.HasReason(ReasonTrackNotFound) {
		t.Error("missing track_not_found")
	}
	if !v.HasReason(ReasonDuplicatePlayWithinWindow) {
		t.Error("missing duplicate_play_within_window")
	}
}

func TestMergeIsMonotonicAndDeduplicates(t *testing.T) {
	ingest := Verdict{
		Suspicious: true,
		Reasons:    []Reason{ReasonBotUserAgent, ReasonInsufficientListenDuration},
		Score:      1,
	}
	materialize := Verdict{
		Suspicious: true,
		Reasons:    []Reason{ReasonInsufficientListenDuration, ReasonDuplicatePlayWithinWindow},
		Score:      1,
	}

	merged := Merge(ingest, materialize)

	want := []Reason{ReasonBotUserAgent, ReasonInsufficientListenDuration, ReasonDuplicatePlayWithinWindow}
	if len(merged.Reasons) != len(want) {
		t.Fatalf("merged reasons = %v, want %v", merged.Reasons, want)
	}
	for i, r := range want {
		if merged.Reasons[i] != r {
			t.Errorf("merged reason[%d] = %s, want %s", i, merged.Reasons[i], r)
		}
	}
	if merged.Score != 1 {
		t.Errorf("merged score = %v, want max(1,1)=1", merged.Score)
	}
}

func TestMergeCleanWithFlagged(t *testing.T) {
	clean := Verdict{}
	flagged := Verdict{Suspicious: true, Reasons: []Reason{ReasonTrackNotFound}, Score: 1}

	merged := Merge(clean, flagged)
	if !merged.Suspicious || merged.Score != 1 {
		t.Errorf("merge lost the flag: %+v", merged)
	}

	// A flagged play stays flagged even if the re-evaluation is clean.
	merged = Merge(flagged, clean)
	if !merged.Suspicious || merged.Score != 1 || len(merged.Reasons) != 1 {
		t.Errorf("re-evaluation removed the flag: %+v", merged)
	}
}

func TestDedupeWindow(t *testing.T) {
	tests := []struct {
		trackMs int64
		want    time.Duration
	}{
		{60000, 30 * time.Second},   // quarter = 15s, 30s floor wins
		{120000, 30 * time.Second},  // quarter = 30s, equal
		{240000, 60 * time.Second},  // quarter = 60s
		{600000, 150 * time.Second}, // 10-minute track
		{0, 30 * time.Second},
	}
	for _, tt := range tests {
		if got := DedupeWindow(tt.trackMs); got != tt.want {
			t.Errorf("DedupeWindow(%d) = %v, want %v", tt.trackMs, got, tt.want)
		}
	}
}

func TestBelowListenFloor(t *testing.T) {
	tests := []struct {
		name       string
		durationMs int64
		trackMs    int64
		want       bool
	}{
		{"floor wins on long track", 19999, 120000, true},
		{"at floor on long track", 20000, 120000, false},
		{"track exactly twice the floor", 19999, 40000, true},
		{"half track wins on short track", 14999, 30000, true},
		{"at half on short track", 15000, 30000, false},
		{"odd track, below true half", 15000, 30001, true},
		{"odd track, above true half", 15001, 30001, false},
		{"zero-length track", 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BelowListenFloor(tt.durationMs, tt.trackMs); got != tt.want {
				t.Errorf("BelowListenFloor(%d, %d) = %v, want %v",
					tt.durationMs, tt.trackMs, got, tt.want)
			}
		})
	}
}
