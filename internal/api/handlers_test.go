// Soundproof - Play Ingestion, Fraud Scoring, and Royalty Allocation
// Copyright 2026 Soundproof Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/soundproof/soundproof

package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/soundproof/soundproof/internal/auth"
	"github.com/soundproof/soundproof/internal/config"
	"github.com/soundproof/soundproof/internal/ingest"
	"github.com/soundproof/soundproof/internal/models"
	"github.com/soundproof/soundproof/internal/payout"
)

type mockReporter struct {
	mu       sync.Mutex
	userID   string
	clientIP string
	batch    []ingest.PlayEventPayload
	result   *ingest.Result
	err      error
}

func (m *mockReporter) ReportBatch(_ context.Context, userID, clientIP string, batch []ingest.PlayEventPayload) (*ingest.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.userID = userID
	m.clientIP = clientIP
	m.batch = batch
	if m.err != nil {
		return nil, m.err
	}
	if m.result != nil {
		return m.result, nil
	}
	return &ingest.Result{Processed: len(batch), Written: len(batch)}, nil
}

type mockPayoutReader struct {
	payouts []*models.Payout
	err     error
}

func (m *mockPayoutReader) ListPayoutsByArtist(_ context.Context, _ string) ([]*models.Payout, error) {
	return m.payouts, m.err
}

type mockPayoutRunner struct {
	mu      sync.Mutex
	periods []string
	err     error
}

func (m *mockPayoutRunner) Run(_ context.Context) (*payout.Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.periods = append(m.periods, "")
	if m.err != nil {
		return nil, m.err
	}
	return &payout.Summary{Period: "2026-02", PayoutsWritten: 3}, nil
}

func (m *mockPayoutRunner) RunPeriod(_ context.Context, period string) (*payout.Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.periods = append(m.periods, period)
	if m.err != nil {
		return nil, m.err
	}
	return &payout.Summary{Period: period}, nil
}

type mockHealth struct {
	err error
}

func (m *mockHealth) Ping(_ context.Context) error { return m.err }

type testServer struct {
	server   *httptest.Server
	jwt      *auth.JWTManager
	reporter *mockReporter
	reader   *mockPayoutReader
	runner   *mockPayoutRunner
	health   *mockHealth
	handler  *Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg := &config.Config{
		Security: config.SecurityConfig{
			JWTSecret:       "test-secret-at-least-32-characters!!",
			SessionTimeout:  time.Hour,
			RateLimitReqs:   1000,
			RateLimitWindow: time.Minute,
		},
	}

	jwtManager, err := auth.NewJWTManager(&cfg.Security)
	if err != nil {
		t.Fatalf("NewJWTManager() error = %v", err)
	}

	ts := &testServer{
		jwt:      jwtManager,
		reporter: &mockReporter{},
		reader:   &mockPayoutReader{},
		runner:   &mockPayoutRunner{},
		health:   &mockHealth{},
	}

	ts.handler = NewHandler(cfg, ts.reporter, ts.reader, ts.runner, ts.health)
	ts.server = httptest.NewServer(ts.handler.Routes(auth.NewMiddleware(jwtManager)))
	t.Cleanup(ts.server.Close)

	return ts
}

func (ts *testServer) token(t *testing.T, userID, role string) string {
	t.Helper()
	token, err := ts.jwt.GenerateToken(userID, role)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	return token
}

func (ts *testServer) do(t *testing.T, method, path, token string, body interface{}) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req, err := http.NewRequest(method, ts.server.URL+path, &buf)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := ts.server.Client().Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })

	return resp
}

func decodeResponse(t *testing.T, resp *http.Response) *models.APIResponse {
	t.Helper()
	var out models.APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return &out
}

func validBatch() map[string]interface{} {
	return map[string]interface{}{
		"plays": []map[string]interface{}{
			{
				"eventId":             "evt-1",
				"sessionId":           "sess-1",
				"trackId":             "track-1",
				"durationMs":          60000,
				"trackFullDurationMs": 180000,
				"timestamp":           time.Now().UTC().Format(time.RFC3339),
			},
		},
	}
}

func TestReportPlays_RequiresAuth(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodPost, "/api/v1/plays", "", validBatch())
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestReportPlays_Success(t *testing.T) {
	ts := newTestServer(t)
	ts.reporter.result = &ingest.Result{
		Processed:         1,
		Written:           1,
		Suspicious:        1,
		SuspiciousPlayIDs: []string{"evt-1"},
	}

	resp := ts.do(t, http.MethodPost, "/api/v1/plays", ts.token(t, "user-7", "listener"), validBatch())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	out := decodeResponse(t, resp)
	if !out.Success {
		t.Error("Success = false")
	}

	ts.reporter.mu.Lock()
	defer ts.reporter.mu.Unlock()
	if ts.reporter.userID != "user-7" {
		t.Errorf("userID = %q, want user-7 (from token, not payload)", ts.reporter.userID)
	}
	if len(ts.reporter.batch) != 1 || ts.reporter.batch[0].EventID != "evt-1" {
		t.Errorf("batch = %+v", ts.reporter.batch)
	}
	if ts.reporter.clientIP == "" {
		t.Error("clientIP should be extracted from the request")
	}
}

func TestReportPlays_BatchValidationError(t *testing.T) {
	ts := newTestServer(t)
	ts.reporter.err = &ingest.BatchValidationError{Index: 2, Field: "EventID", Reason: "EventID is required"}

	resp := ts.do(t, http.MethodPost, "/api/v1/plays", ts.token(t, "user-1", "listener"), validBatch())
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}

	out := decodeResponse(t, resp)
	if out.Error == nil || out.Error.Code != ErrCodeInvalidBatch {
		t.Fatalf("error = %+v, want code INVALID_BATCH", out.Error)
	}
	if idx, ok := out.Error.Details["index"].(float64); !ok || int(idx) != 2 {
		t.Errorf("details.index = %v, want 2", out.Error.Details["index"])
	}
	if out.Error.Details["field"] != "EventID" {
		t.Errorf("details.field = %v, want EventID", out.Error.Details["field"])
	}
}

func TestReportPlays_StoreError(t *testing.T) {
	ts := newTestServer(t)
	ts.reporter.err = errors.New("disk full")

	resp := ts.do(t, http.MethodPost, "/api/v1/plays", ts.token(t, "user-1", "listener"), validBatch())
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
}

func TestReportPlays_MalformedBody(t *testing.T) {
	ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodPost, ts.server.URL+"/api/v1/plays",
		bytes.NewBufferString("{not json"))
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+ts.token(t, "user-1", "listener"))

	resp, err := ts.server.Client().Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestGetArtistPayouts(t *testing.T) {
	ts := newTestServer(t)
	ts.reader.payouts = []*models.Payout{
		{ArtistID: "artist-1", Period: "2026-02", TotalEarnings: 450, Status: models.PayoutPending},
	}

	resp := ts.do(t, http.MethodGet, "/api/v1/payouts/artist-1", ts.token(t, "user-1", "listener"), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	out := decodeResponse(t, resp)
	payouts, ok := out.Data.([]interface{})
	if !ok || len(payouts) != 1 {
		t.Errorf("Data = %v, want one payout", out.Data)
	}
}

func TestGetArtistPayouts_EmptyList(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodGet, "/api/v1/payouts/artist-9", ts.token(t, "user-1", "listener"), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200 for artist with no payouts", resp.StatusCode)
	}

	out := decodeResponse(t, resp)
	if payouts, ok := out.Data.([]interface{}); !ok || len(payouts) != 0 {
		t.Errorf("Data = %v, want empty list", out.Data)
	}
}

func TestRunPayouts_RequiresAdmin(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodPost, "/api/v1/payouts/run", ts.token(t, "user-1", "listener"), nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403 for non-admin", resp.StatusCode)
	}
}

func TestRunPayouts_Admin(t *testing.T) {
	ts := newTestServer(t)

	ranCallback := false
	ts.handler.SetManualRunCallback(func() { ranCallback = true })

	resp := ts.do(t, http.MethodPost, "/api/v1/payouts/run", ts.token(t, "ops-1", "admin"), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if !ranCallback {
		t.Error("manual run callback should fire")
	}

	ts.runner.mu.Lock()
	defer ts.runner.mu.Unlock()
	if len(ts.runner.periods) != 1 || ts.runner.periods[0] != "" {
		t.Errorf("runner periods = %v, want one default run", ts.runner.periods)
	}
}

func TestRunPayouts_ExplicitPeriod(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodPost, "/api/v1/payouts/run", ts.token(t, "ops-1", "admin"),
		map[string]string{"period": "2026-01"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	ts.runner.mu.Lock()
	defer ts.runner.mu.Unlock()
	if len(ts.runner.periods) != 1 || ts.runner.periods[0] != "2026-01" {
		t.Errorf("runner periods = %v, want [2026-01]", ts.runner.periods)
	}
}

func TestRunPayouts_InvalidPeriod(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodPost, "/api/v1/payouts/run", ts.token(t, "ops-1", "admin"),
		map[string]string{"period": "February"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodGet, "/health", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestHealth_DatabaseDown(t *testing.T) {
	ts := newTestServer(t)
	ts.health.err = errors.New("connection refused")

	resp := ts.do(t, http.MethodGet, "/health", "", nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

func TestLivenessIgnoresDatabase(t *testing.T) {
	ts := newTestServer(t)
	ts.health.err = errors.New("connection refused")

	resp := ts.do(t, http.MethodGet, "/health/live", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200 (liveness must not probe storage)", resp.StatusCode)
	}
}

func TestReadiness(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodGet, "/health/ready", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	ts.health.err = errors.New("connection refused")
	resp = ts.do(t, http.MethodGet, "/health/ready", "", nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 when storage is down", resp.StatusCode)
	}
}

func TestReportPlays_UserAgentHeaderFallback(t *testing.T) {
	ts := newTestServer(t)

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(validBatch()); err != nil {
		t.Fatalf("encode body: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, ts.server.URL+"/api/v1/plays", &buf)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+ts.token(t, "user-1", "listener"))
	req.Header.Set("User-Agent", "SoundproofApp/3.1")

	resp, err := ts.server.Client().Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	ts.reporter.mu.Lock()
	defer ts.reporter.mu.Unlock()
	if len(ts.reporter.batch) != 1 || ts.reporter.batch[0].UserAgent != "SoundproofApp/3.1" {
		t.Errorf("batch user agent = %q, want header value", ts.reporter.batch[0].UserAgent)
	}
}
