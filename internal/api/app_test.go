package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/applockd/applockd/internal/events"
	"github.com/applockd/applockd/internal/gate"
	"github.com/applockd/applockd/internal/logging"
	"github.com/applockd/applockd/internal/metrics"
	"github.com/applockd/applockd/internal/policy"
	"github.com/applockd/applockd/pkg/types"
)

type staticVerifier struct{ accept string }

func (s staticVerifier) Verify(_ context.Context, candidate string) bool {
	return candidate == s.accept
}

type memSink struct {
	mu   sync.Mutex
	recs []types.AttemptRecord

	lastQuery types.RecordQuery
}

func (m *memSink) Record(_ context.Context, rec types.AttemptRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, rec)
	return nil
}

func (m *memSink) Query(_ context.Context, q types.RecordQuery) ([]types.AttemptRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastQuery = q
	return append([]types.AttemptRecord(nil), m.recs...), nil
}

func (m *memSink) Close() error { return nil }

type harness struct {
	store  *policy.Store
	gate   *gate.Gate
	sink   *memSink
	broker *events.Broker
	http   http.Handler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store, err := policy.Open(filepath.Join(t.TempDir(), "policy.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	logger := logging.Discard()
	sink := &memSink{}
	broker := events.NewBroker(logger)
	g := gate.New(gate.Options{Timeout: time.Minute, MaxAttempts: 3},
		staticVerifier{accept: "hunter2"}, sink, broker, metrics.New(), logger, nil)
	t.Cleanup(g.Stop)

	app := NewApp(store, g, sink, broker, metrics.New(), logger)
	return &harness{store: store, gate: g, sink: sink, broker: broker, http: app.Router()}
}

func (h *harness) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]json.RawMessage) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	rec := httptest.NewRecorder()
	h.http.ServeHTTP(rec, req)

	out := map[string]json.RawMessage{}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, out
}

func (h *harness) offer(t *testing.T, pid int, identity string) {
	t.Helper()
	ok := h.gate.Offer(types.MatchedLaunch{
		Observation: types.Observation{
			PID:       pid,
			StartedAt: time.Now().Add(-time.Minute).Truncate(time.Second),
		},
		Entry: types.ProtectedEntry{
			Identity: identity,
			Kind:     types.EntryKindExecutable,
			Enabled:  true,
		},
	})
	if !ok {
		t.Fatalf("gate rejected offer for pid %d", pid)
	}
}

func TestHealthz(t *testing.T) {
	h := newHarness(t)
	rec, _ := h.do(t, "GET", "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Body.String() != "ok\n" {
		t.Fatalf("body = %q", rec.Body.String())
	}
}

func TestMetricsExposeBrokerDrops(t *testing.T) {
	h := newHarness(t)

	// A full one-slot subscriber forces the second publish to drop.
	h.broker.Subscribe(1)
	h.broker.Publish(types.Event{Type: types.EventProtectionToggled})
	h.broker.Publish(types.Event{Type: types.EventProtectionToggled})

	rec, _ := h.do(t, "GET", "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "applockd_events_dropped_total 1\n") {
		t.Fatalf("missing drop counter in:\n%s", rec.Body.String())
	}
}

func TestListChallenges(t *testing.T) {
	h := newHarness(t)

	rec, out := h.do(t, "GET", "/api/v1/challenges", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var empty []types.Challenge
	if err := json.Unmarshal(out["challenges"], &empty); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected no challenges, got %d", len(empty))
	}

	h.offer(t, 100, "/opt/apps/firefox")
	h.offer(t, 200, "/opt/apps/steam")

	_, out = h.do(t, "GET", "/api/v1/challenges", nil)
	var pending []types.Challenge
	if err := json.Unmarshal(out["challenges"], &pending); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("pending = %d, want 2", len(pending))
	}
}

func TestSubmitVerdict(t *testing.T) {
	h := newHarness(t)
	h.offer(t, 100, "/opt/apps/firefox")

	rec, _ := h.do(t, "POST", "/api/v1/challenges/abc", map[string]string{"credential": "x"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("non-numeric pid: status = %d", rec.Code)
	}

	rec, _ = h.do(t, "POST", "/api/v1/challenges/999", map[string]string{"credential": "x"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown pid: status = %d", rec.Code)
	}

	rec, out := h.do(t, "POST", "/api/v1/challenges/100", map[string]string{
		"credential": "wrong", "actor": "tester",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("wrong credential: status = %d, body %s", rec.Code, rec.Body.String())
	}
	var ch types.Challenge
	if err := json.Unmarshal(out["challenge"], &ch); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ch.State != types.ChallengePending || ch.AttemptsUsed != 1 {
		t.Fatalf("state = %s, attempts = %d", ch.State, ch.AttemptsUsed)
	}

	rec, out = h.do(t, "POST", "/api/v1/challenges/100", map[string]string{
		"credential": "hunter2", "actor": "tester",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("correct credential: status = %d", rec.Code)
	}
	if err := json.Unmarshal(out["challenge"], &ch); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ch.State != types.ChallengeAuthorized {
		t.Fatalf("state = %s, want authorized", ch.State)
	}

	rec, _ = h.do(t, "POST", "/api/v1/challenges/100", map[string]string{"credential": "hunter2"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("resolved pid: status = %d", rec.Code)
	}
}

func TestAppsCRUD(t *testing.T) {
	h := newHarness(t)

	rec, _ := h.do(t, "POST", "/api/v1/apps", types.ProtectedEntry{
		Identity: "/opt/apps/firefox", DisplayName: "Firefox", Enabled: true,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add: status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec, out := h.do(t, "GET", "/api/v1/apps", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status = %d", rec.Code)
	}
	var apps []types.ProtectedEntry
	if err := json.Unmarshal(out["apps"], &apps); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(apps) != 1 || apps[0].Identity != "/opt/apps/firefox" {
		t.Fatalf("apps = %+v", apps)
	}
	if apps[0].Kind != types.EntryKindExecutable {
		t.Fatalf("kind not defaulted: %q", apps[0].Kind)
	}

	rec, _ = h.do(t, "POST", "/api/v1/apps/toggle", map[string]any{
		"identity": "/opt/apps/firefox", "enabled": false,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("toggle: status = %d", rec.Code)
	}
	rec, _ = h.do(t, "POST", "/api/v1/apps/toggle", map[string]any{
		"identity": "/opt/apps/nope", "enabled": false,
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("toggle unknown: status = %d", rec.Code)
	}

	rec, _ = h.do(t, "DELETE", "/api/v1/apps", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("delete without identity: status = %d", rec.Code)
	}
	rec, _ = h.do(t, "DELETE", "/api/v1/apps?identity=%2Fopt%2Fapps%2Fnope", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("delete unknown: status = %d", rec.Code)
	}
	rec, _ = h.do(t, "DELETE", "/api/v1/apps?identity=%2Fopt%2Fapps%2Ffirefox", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: status = %d", rec.Code)
	}

	_, out = h.do(t, "GET", "/api/v1/apps", nil)
	apps = nil
	if err := json.Unmarshal(out["apps"], &apps); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(apps) != 0 {
		t.Fatalf("apps after delete = %+v", apps)
	}
}

func TestProtectionToggle(t *testing.T) {
	h := newHarness(t)

	rec, out := h.do(t, "GET", "/api/v1/protection", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: status = %d", rec.Code)
	}
	var enabled bool
	if err := json.Unmarshal(out["enabled"], &enabled); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !enabled {
		t.Fatalf("protection should default to enabled")
	}

	rec, _ = h.do(t, "PUT", "/api/v1/protection", map[string]bool{"enabled": false})
	if rec.Code != http.StatusOK {
		t.Fatalf("put: status = %d", rec.Code)
	}

	_, out = h.do(t, "GET", "/api/v1/protection", nil)
	if err := json.Unmarshal(out["enabled"], &enabled); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if enabled {
		t.Fatalf("protection still enabled after disable")
	}
}

func TestQueryRecords(t *testing.T) {
	h := newHarness(t)
	h.sink.recs = []types.AttemptRecord{{
		ID:       "attempt-1",
		Identity: "/opt/apps/firefox",
		PID:      100,
		Outcome:  types.OutcomeTimedOut,
	}}

	rec, out := h.do(t, "GET", "/api/v1/records?identity=/opt/apps/firefox&outcome=timed_out&since=24h&limit=10", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var records []types.AttemptRecord
	if err := json.Unmarshal(out["records"], &records); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(records) != 1 || records[0].ID != "attempt-1" {
		t.Fatalf("records = %+v", records)
	}

	q := h.sink.lastQuery
	if q.Identity != "/opt/apps/firefox" {
		t.Fatalf("identity filter = %q", q.Identity)
	}
	if q.Outcome == nil || *q.Outcome != types.OutcomeTimedOut {
		t.Fatalf("outcome filter = %v", q.Outcome)
	}
	if q.Since == nil || time.Since(*q.Since) < 23*time.Hour {
		t.Fatalf("since filter = %v", q.Since)
	}
	if q.Limit != 10 {
		t.Fatalf("limit = %d", q.Limit)
	}

	rec, _ = h.do(t, "GET", "/api/v1/records?since=not-a-time", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad since: status = %d", rec.Code)
	}
}
