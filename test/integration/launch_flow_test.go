//go:build integration && (linux || darwin)

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/applockd/applockd/internal/api"
	auditsqlite "github.com/applockd/applockd/internal/audit/sqlite"
	"github.com/applockd/applockd/internal/credential"
	"github.com/applockd/applockd/internal/engine"
	"github.com/applockd/applockd/internal/events"
	"github.com/applockd/applockd/internal/gate"
	"github.com/applockd/applockd/internal/logging"
	"github.com/applockd/applockd/internal/metrics"
	"github.com/applockd/applockd/internal/policy"
	"github.com/applockd/applockd/pkg/types"
)

const (
	testIdentity = "/opt/integration/blocked"
	testPassword = "integration-pass"
)

// scriptedSource serves a mutable process list, standing in for the OS
// process table so real pids can be attached to a controlled identity.
type scriptedSource struct {
	mu  sync.Mutex
	obs []types.Observation
}

func (s *scriptedSource) Snapshot(_ context.Context) ([]types.Observation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.Observation(nil), s.obs...), nil
}

func (s *scriptedSource) set(obs ...types.Observation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.obs = obs
}

type nopLookup struct{}

func (nopLookup) PackageIdentity(_ context.Context, _ int) (string, error) { return "", nil }

type stack struct {
	store  *policy.Store
	sink   *auditsqlite.Sink
	source *scriptedSource
	engine *engine.Engine
	gate   *gate.Gate
	broker *events.Broker
}

func newStack(t *testing.T, challengeTimeout time.Duration) *stack {
	t.Helper()
	dir := t.TempDir()
	logger := logging.Discard()

	store, err := policy.Open(filepath.Join(dir, "policy.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	if err := store.AddEntry(ctx, types.ProtectedEntry{
		Identity:    testIdentity,
		DisplayName: "Blocked",
		Kind:        types.EntryKindExecutable,
		Enabled:     true,
	}); err != nil {
		t.Fatalf("add entry: %v", err)
	}

	verifier := credential.NewVerifier(store, logger)
	if err := verifier.SetPassword(ctx, testPassword); err != nil {
		t.Fatalf("set password: %v", err)
	}

	sink, err := auditsqlite.Open(filepath.Join(dir, "audit.db"))
	if err != nil {
		t.Fatalf("open audit sink: %v", err)
	}
	t.Cleanup(func() { sink.Close() })

	source := &scriptedSource{}
	broker := events.NewBroker(logger)
	view := policy.NewView(ctx, store, logger)

	eng, g := engine.Build(engine.BuildOptions{
		PollInterval:     50 * time.Millisecond,
		ChallengeTimeout: challengeTimeout,
		MaxAttempts:      3,
		ResolverWindow:   6,
		KillGracePeriod:  2 * time.Second,
	}, source, view, nopLookup{}, verifier, sink, broker, metrics.New(), logger)

	if err := eng.Start(ctx); err != nil {
		t.Fatalf("start engine: %v", err)
	}
	t.Cleanup(eng.Stop)

	return &stack{store: store, sink: sink, source: source, engine: eng, gate: g, broker: broker}
}

// startVictim launches a real process whose pid gets reported under the
// protected identity.
func startVictim(t *testing.T) (*exec.Cmd, chan error) {
	t.Helper()
	cmd := exec.Command("sleep", "300")
	if err := cmd.Start(); err != nil {
		t.Fatalf("start victim: %v", err)
	}
	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		select {
		case <-exited:
		case <-time.After(5 * time.Second):
		}
	})
	return cmd, exited
}

func observationFor(cmd *exec.Cmd) types.Observation {
	return types.Observation{
		PID:        cmd.Process.Pid,
		Executable: testIdentity,
		Name:       "blocked",
		StartedAt:  time.Now().Add(-time.Second).Truncate(time.Second),
		ObservedAt: time.Now(),
	}
}

func TestUnansweredChallengeTerminatesProcess(t *testing.T) {
	s := newStack(t, 400*time.Millisecond)
	cmd, exited := startVictim(t)
	s.source.set(observationFor(cmd))

	select {
	case <-exited:
	case <-time.After(10 * time.Second):
		t.Fatalf("victim pid %d still alive after challenge deadline", cmd.Process.Pid)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		recs, err := s.sink.Query(context.Background(), types.RecordQuery{Identity: testIdentity})
		if err != nil {
			t.Fatalf("query audit: %v", err)
		}
		if len(recs) > 0 {
			if recs[0].Outcome != types.OutcomeTimedOut {
				t.Fatalf("outcome = %s, want timed_out", recs[0].Outcome)
			}
			if recs[0].PID != cmd.Process.Pid {
				t.Fatalf("record pid = %d, want %d", recs[0].PID, cmd.Process.Pid)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("no audit record for the timed out challenge")
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func TestAuthorizationOverHTTPLeavesProcessRunning(t *testing.T) {
	s := newStack(t, 3*time.Second)
	app := api.NewApp(s.store, s.gate, s.sink, s.broker, metrics.New(), logging.Discard())
	srv := httptest.NewServer(app.Router())
	t.Cleanup(srv.Close)

	cmd, exited := startVictim(t)
	s.source.set(observationFor(cmd))

	// Wait for the poll cycle to surface the challenge.
	var pending []types.Challenge
	deadline := time.Now().Add(5 * time.Second)
	for len(pending) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("challenge for pid %d never appeared", cmd.Process.Pid)
		}
		resp, err := http.Get(srv.URL + "/api/v1/challenges")
		if err != nil {
			t.Fatalf("list challenges: %v", err)
		}
		var body struct {
			Challenges []types.Challenge `json:"challenges"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		resp.Body.Close()
		pending = body.Challenges
		time.Sleep(50 * time.Millisecond)
	}
	if pending[0].PID != cmd.Process.Pid {
		t.Fatalf("challenge pid = %d, want %d", pending[0].PID, cmd.Process.Pid)
	}

	payload, _ := json.Marshal(map[string]string{"credential": testPassword, "actor": "integration"})
	resp, err := http.Post(
		fmt.Sprintf("%s/api/v1/challenges/%d", srv.URL, cmd.Process.Pid),
		"application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("submit verdict: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("submit verdict: status = %d", resp.StatusCode)
	}
	var verdict struct {
		Challenge types.Challenge `json:"challenge"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&verdict); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if verdict.Challenge.State != types.ChallengeAuthorized {
		t.Fatalf("state = %s, want authorized", verdict.Challenge.State)
	}

	// The process must survive well past the original challenge deadline.
	select {
	case err := <-exited:
		t.Fatalf("authorized process was terminated: %v", err)
	case <-time.After(4 * time.Second):
	}
}
