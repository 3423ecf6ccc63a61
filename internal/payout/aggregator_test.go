// Soundproof - Play Ingestion, Fraud Scoring, and Royalty Allocation
// Copyright 2026 Soundproof Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/soundproof/soundproof

package payout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/soundproof/soundproof/internal/models"
)

type mockPayoutStore struct {
	mu sync.Mutex

	subs    []*models.Subscription
	plays   []*models.MaterializedPlay
	payouts map[string]*models.Payout

	subsErr   error
	playsErr  error
	upsertErr error

	queriedFrom     time.Time
	queriedTo       time.Time
	queriedSubsFrom time.Time
}

func newMockPayoutStore() *mockPayoutStore {
	return &mockPayoutStore{payouts: make(map[string]*models.Payout)}
}

func (m *mockPayoutStore) ListActiveSubscriptions(_ context.Context, periodStart time.Time) ([]*models.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subsErr != nil {
		return nil, m.subsErr
	}
	m.queriedSubsFrom = periodStart
	return m.subs, nil
}

func (m *mockPayoutStore) ListQualifiedPlays(_ context.Context, from, to time.Time) ([]*models.MaterializedPlay, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.playsErr != nil {
		return nil, m.playsErr
	}
	m.queriedFrom, m.queriedTo = from, to
	return m.plays, nil
}

func (m *mockPayoutStore) UpsertPayout(_ context.Context, payout *models.Payout) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.payouts[payout.ArtistID+"/"+payout.Period] = payout
	return nil
}

func (m *mockPayoutStore) payout(artistID, period string) *models.Payout {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.payouts[artistID+"/"+period]
}

func makeSub(userID string, netMonthly int64) *models.Subscription {
	return &models.Subscription{
		ID:               "sub-" + userID,
		UserID:           userID,
		Status:           models.SubscriptionActive,
		CurrentPeriodEnd: time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
		NetMonthly:       netMonthly,
	}
}

func makePlay(eventID, userID string, durationSeconds float64, artistIDs ...string) *models.MaterializedPlay {
	return &models.MaterializedPlay{
		EventID:         eventID,
		UserID:          userID,
		TrackID:         "track-" + eventID,
		DurationSeconds: durationSeconds,
		ArtistIDs:       artistIDs,
		Timestamp:       time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC),
	}
}

func newTestAggregator(store *mockPayoutStore) *Aggregator {
	a := NewAggregator(store)
	a.now = func() time.Time { return time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC) }
	return a
}

func TestRun_TargetsPreviousMonth(t *testing.T) {
	store := newMockPayoutStore()
	a := newTestAggregator(store)

	summary, err := a.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Period != "2026-02" {
		t.Errorf("Period = %q, want 2026-02", summary.Period)
	}

	wantFrom := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	wantTo := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	if !store.queriedFrom.Equal(wantFrom) || !store.queriedTo.Equal(wantTo) {
		t.Errorf("queried [%v, %v), want [%v, %v)",
			store.queriedFrom, store.queriedTo, wantFrom, wantTo)
	}
	if !store.queriedSubsFrom.Equal(wantFrom) {
		t.Errorf("subscriptions queried from %v, want %v (period coverage filter)",
			store.queriedSubsFrom, wantFrom)
	}
}

func TestRun_YearBoundary(t *testing.T) {
	store := newMockPayoutStore()
	a := NewAggregator(store)
	a.now = func() time.Time { return time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC) }

	summary, err := a.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Period != "2025-12" {
		t.Errorf("Period = %q, want 2025-12", summary.Period)
	}
}

func TestRunPeriod_EvenSplit(t *testing.T) {
	store := newMockPayoutStore()
	store.subs = []*models.Subscription{makeSub("user-1", 900)}
	store.plays = []*models.MaterializedPlay{
		makePlay("p1", "user-1", 200, "artist-a"),
		makePlay("p2", "user-1", 200, "artist-b"),
	}

	a := newTestAggregator(store)
	summary, err := a.RunPeriod(context.Background(), "2026-02")
	if err != nil {
		t.Fatalf("RunPeriod() error = %v", err)
	}

	if summary.PayoutsWritten != 2 || summary.CentsAllocated != 900 {
		t.Errorf("summary = %+v", summary)
	}
	for _, artist := range []string{"artist-a", "artist-b"} {
		payout := store.payout(artist, "2026-02")
		if payout == nil {
			t.Fatalf("missing payout for %s", artist)
		}
		if payout.TotalEarnings != 450 {
			t.Errorf("%s TotalEarnings = %d, want 450", artist, payout.TotalEarnings)
		}
		if payout.Status != models.PayoutPending {
			t.Errorf("%s Status = %q, want pending", artist, payout.Status)
		}
		if payout.Breakdown.Subscriptions != 450 {
			t.Errorf("%s Breakdown.Subscriptions = %d, want 450", artist, payout.Breakdown.Subscriptions)
		}
	}
}

func TestRunPeriod_ProportionalToListenTime(t *testing.T) {
	store := newMockPayoutStore()
	store.subs = []*models.Subscription{makeSub("user-1", 1000)}
	store.plays = []*models.MaterializedPlay{
		makePlay("p1", "user-1", 300, "artist-a"),
		makePlay("p2", "user-1", 100, "artist-b"),
	}

	a := newTestAggregator(store)
	if _, err := a.RunPeriod(context.Background(), "2026-02"); err != nil {
		t.Fatalf("RunPeriod() error = %v", err)
	}

	if got := store.payout("artist-a", "2026-02").TotalEarnings; got != 750 {
		t.Errorf("artist-a = %d, want 750", got)
	}
	if got := store.payout("artist-b", "2026-02").TotalEarnings; got != 250 {
		t.Errorf("artist-b = %d, want 250", got)
	}
}

func TestRunPeriod_MultiArtistTrackSplitsEvenly(t *testing.T) {
	store := newMockPayoutStore()
	store.subs = []*models.Subscription{makeSub("user-1", 600)}
	store.plays = []*models.MaterializedPlay{
		makePlay("p1", "user-1", 200, "artist-a", "artist-b"),
	}

	a := newTestAggregator(store)
	if _, err := a.RunPeriod(context.Background(), "2026-02"); err != nil {
		t.Fatalf("RunPeriod() error = %v", err)
	}

	for _, artist := range []string{"artist-a", "artist-b"} {
		if got := store.payout(artist, "2026-02").TotalEarnings; got != 300 {
			t.Errorf("%s = %d, want 300", artist, got)
		}
	}
}

func TestRunPeriod_WeightScalesListenTime(t *testing.T) {
	store := newMockPayoutStore()
	store.subs = []*models.Subscription{makeSub("user-1", 900)}
	weighted := makePlay("p1", "user-1", 100, "artist-a")
	weighted.Weight = 2
	store.plays = []*models.MaterializedPlay{
		weighted,
		makePlay("p2", "user-1", 100, "artist-b"),
	}

	a := newTestAggregator(store)
	if _, err := a.RunPeriod(context.Background(), "2026-02"); err != nil {
		t.Fatalf("RunPeriod() error = %v", err)
	}

	if got := store.payout("artist-a", "2026-02").TotalEarnings; got != 600 {
		t.Errorf("artist-a = %d, want 600", got)
	}
	if got := store.payout("artist-b", "2026-02").TotalEarnings; got != 300 {
		t.Errorf("artist-b = %d, want 300", got)
	}
}

func TestRunPeriod_NoPoolingAcrossSubscribers(t *testing.T) {
	store := newMockPayoutStore()
	store.subs = []*models.Subscription{
		makeSub("user-1", 1000),
		makeSub("user-2", 100),
	}
	store.plays = []*models.MaterializedPlay{
		makePlay("p1", "user-1", 100, "artist-a"),
		makePlay("p2", "user-2", 100000, "artist-b"),
	}

	a := newTestAggregator(store)
	if _, err := a.RunPeriod(context.Background(), "2026-02"); err != nil {
		t.Fatalf("RunPeriod() error = %v", err)
	}

	// artist-b's huge listen time only reaches user-2's revenue.
	if got := store.payout("artist-a", "2026-02").TotalEarnings; got != 1000 {
		t.Errorf("artist-a = %d, want 1000", got)
	}
	if got := store.payout("artist-b", "2026-02").TotalEarnings; got != 100 {
		t.Errorf("artist-b = %d, want 100", got)
	}
}

func TestRunPeriod_ZeroPlaySubscriberSkipped(t *testing.T) {
	store := newMockPayoutStore()
	store.subs = []*models.Subscription{
		makeSub("user-1", 900),
		makeSub("user-2", 500), // no plays
	}
	store.plays = []*models.MaterializedPlay{
		makePlay("p1", "user-1", 100, "artist-a"),
	}

	a := newTestAggregator(store)
	summary, err := a.RunPeriod(context.Background(), "2026-02")
	if err != nil {
		t.Fatalf("RunPeriod() error = %v", err)
	}

	if summary.Subscribers != 1 {
		t.Errorf("Subscribers = %d, want 1", summary.Subscribers)
	}
	if summary.CentsAllocated != 900 {
		t.Errorf("CentsAllocated = %d, want 900 (user-2 revenue stays unallocated)",
			summary.CentsAllocated)
	}
}

func TestRunPeriod_RoundsOncePerArtist(t *testing.T) {
	store := newMockPayoutStore()
	store.subs = []*models.Subscription{makeSub("user-1", 1000)}
	store.plays = []*models.MaterializedPlay{
		makePlay("p1", "user-1", 100, "artist-a"),
		makePlay("p2", "user-1", 100, "artist-b"),
		makePlay("p3", "user-1", 100, "artist-c"),
	}

	a := newTestAggregator(store)
	summary, err := a.RunPeriod(context.Background(), "2026-02")
	if err != nil {
		t.Fatalf("RunPeriod() error = %v", err)
	}

	// 1000/3 = 333.33 per artist, rounded once at write.
	for _, artist := range []string{"artist-a", "artist-b", "artist-c"} {
		if got := store.payout(artist, "2026-02").TotalEarnings; got != 333 {
			t.Errorf("%s = %d, want 333", artist, got)
		}
	}
	if summary.CentsAllocated != 999 {
		t.Errorf("CentsAllocated = %d, want 999", summary.CentsAllocated)
	}
}

func TestRunPeriod_ArtistlessPlayShareStaysUnallocated(t *testing.T) {
	store := newMockPayoutStore()
	store.subs = []*models.Subscription{makeSub("user-1", 1000)}
	store.plays = []*models.MaterializedPlay{
		makePlay("p1", "user-1", 100, "artist-a"),
		makePlay("p2", "user-1", 100), // orphaned track
	}

	a := newTestAggregator(store)
	summary, err := a.RunPeriod(context.Background(), "2026-02")
	if err != nil {
		t.Fatalf("RunPeriod() error = %v", err)
	}

	// The orphaned play stays in the listen-time denominator; its share is
	// withheld, not redistributed to artist-a.
	if got := store.payout("artist-a", "2026-02").TotalEarnings; got != 500 {
		t.Errorf("artist-a = %d, want 500", got)
	}
	if summary.CentsAllocated != 500 {
		t.Errorf("CentsAllocated = %d, want 500", summary.CentsAllocated)
	}
	if summary.PayoutsWritten != 1 {
		t.Errorf("PayoutsWritten = %d, want 1", summary.PayoutsWritten)
	}
}

func TestRunPeriod_OnlyArtistlessPlaysAllocatesNothing(t *testing.T) {
	store := newMockPayoutStore()
	store.subs = []*models.Subscription{makeSub("user-1", 800)}
	store.plays = []*models.MaterializedPlay{
		makePlay("p1", "user-1", 100),
	}

	a := newTestAggregator(store)
	summary, err := a.RunPeriod(context.Background(), "2026-02")
	if err != nil {
		t.Fatalf("RunPeriod() error = %v", err)
	}

	if summary.Subscribers != 0 || summary.PayoutsWritten != 0 || summary.CentsAllocated != 0 {
		t.Errorf("summary = %+v, want nothing allocated", summary)
	}
}

func TestRunPeriod_ZeroCentPayoutsNotWritten(t *testing.T) {
	store := newMockPayoutStore()
	store.subs = []*models.Subscription{makeSub("user-1", 1)}
	store.plays = []*models.MaterializedPlay{
		makePlay("p1", "user-1", 100, "artist-a"),
		makePlay("p2", "user-1", 100, "artist-b"),
		makePlay("p3", "user-1", 100, "artist-c"),
	}

	a := newTestAggregator(store)
	summary, err := a.RunPeriod(context.Background(), "2026-02")
	if err != nil {
		t.Fatalf("RunPeriod() error = %v", err)
	}

	// 1/3 cent per artist rounds to zero; no rows are written and the
	// summary reflects that.
	if summary.PayoutsWritten != 0 {
		t.Errorf("PayoutsWritten = %d, want 0", summary.PayoutsWritten)
	}
	if len(store.payouts) != 0 {
		t.Errorf("payouts written = %d, want 0", len(store.payouts))
	}
}

func TestRunPeriod_InvalidPeriod(t *testing.T) {
	a := newTestAggregator(newMockPayoutStore())
	if _, err := a.RunPeriod(context.Background(), "March 2026"); err == nil {
		t.Error("RunPeriod() with malformed period should fail")
	}
}

func TestRunPeriod_StoreErrors(t *testing.T) {
	store := newMockPayoutStore()
	store.subsErr = errors.New("billing down")

	a := newTestAggregator(store)
	if _, err := a.RunPeriod(context.Background(), "2026-02"); err == nil {
		t.Error("RunPeriod() should propagate subscription errors")
	}

	store = newMockPayoutStore()
	store.subs = []*models.Subscription{makeSub("user-1", 900)}
	store.plays = []*models.MaterializedPlay{makePlay("p1", "user-1", 100, "artist-a")}
	store.upsertErr = errors.New("disk full")

	a = newTestAggregator(store)
	if _, err := a.RunPeriod(context.Background(), "2026-02"); err == nil {
		t.Error("RunPeriod() should propagate upsert errors")
	}
}
