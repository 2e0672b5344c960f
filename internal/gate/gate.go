// Package gate runs the per-launch authorization state machine. Each
// matched launch gets one time-boxed challenge: a credential match
// authorizes it, exhausted attempts deny it, and an untouched deadline
// times it out. The pid table is the only shared mutable state in the
// engine core; every transition happens under its lock, and exactly one
// attempt record is emitted per terminal transition.
package gate

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/applockd/applockd/internal/audit"
	"github.com/applockd/applockd/internal/events"
	"github.com/applockd/applockd/internal/metrics"
	"github.com/applockd/applockd/pkg/types"
)

// ErrNoChallenge is returned for verdicts aimed at a pid with no pending
// challenge (never created, already resolved, or expired).
var ErrNoChallenge = errors.New("no pending challenge for pid")

// Verifier checks a submitted credential. Implementations fail closed.
type Verifier interface {
	Verify(ctx context.Context, candidate string) bool
}

// Options configures a Gate.
type Options struct {
	Timeout     time.Duration
	MaxAttempts int

	// Now is a clock hook for tests; nil means time.Now.
	Now func() time.Time
}

// Gate owns the pid->Challenge table.
type Gate struct {
	timeout     time.Duration
	maxAttempts int
	now         func() time.Time

	verifier Verifier
	sink     audit.Sink
	broker   *events.Broker
	metrics  *metrics.Collector
	logger   *slog.Logger

	// onTerminal runs after the attempt record is persisted, outside the
	// table lock. The engine hooks enforcement here.
	onTerminal func(ch types.Challenge)

	mu      sync.Mutex
	live    map[int]*liveChallenge
	exempt  map[types.ProcessKey]struct{}
	stopped bool
	wg      sync.WaitGroup
}

type liveChallenge struct {
	ch    types.Challenge
	key   types.ProcessKey
	timer *time.Timer
}

// New builds a gate. onTerminal may be nil.
func New(opts Options, verifier Verifier, sink audit.Sink, broker *events.Broker,
	collector *metrics.Collector, logger *slog.Logger, onTerminal func(types.Challenge)) *Gate {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Gate{
		timeout:     opts.Timeout,
		maxAttempts: opts.MaxAttempts,
		now:         now,
		verifier:    verifier,
		sink:        sink,
		broker:      broker,
		metrics:     collector,
		logger:      logger,
		onTerminal:  onTerminal,
		live:        make(map[int]*liveChallenge),
		exempt:      make(map[types.ProcessKey]struct{}),
	}
}

// Offer creates a challenge for a matched launch. It returns false without
// side effects when the pid already carries a live challenge, the process
// generation was already authorized, or the gate is stopped. Offer never
// blocks on operator input: it publishes a challenge_created event and
// returns, leaving the verdict to Submit or the deadline timer.
func (g *Gate) Offer(launch types.MatchedLaunch) bool {
	pid := launch.Observation.PID
	key := launch.Observation.Key()

	g.mu.Lock()
	if g.stopped {
		g.mu.Unlock()
		return false
	}
	if _, ok := g.live[pid]; ok {
		g.mu.Unlock()
		return false
	}
	if _, ok := g.exempt[key]; ok {
		g.mu.Unlock()
		return false
	}

	now := g.now()
	ch := types.Challenge{
		ID:        "challenge-" + uuid.NewString(),
		PID:       pid,
		Entry:     launch.Entry,
		CreatedAt: now,
		Deadline:  now.Add(g.timeout),
		State:     types.ChallengePending,
	}
	lc := &liveChallenge{ch: ch, key: key}
	lc.timer = time.AfterFunc(g.timeout, func() { g.expire(pid, ch.ID) })
	g.live[pid] = lc
	g.mu.Unlock()

	g.logger.Info("challenge created",
		"pid", pid, "identity", launch.Entry.Identity, "deadline", ch.Deadline)
	g.publish(types.EventChallengeCreated, ch, nil)
	return true
}

// Submit is the credential verdict path. A matching credential authorizes
// the challenge; a mismatch consumes one attempt and keeps the original
// deadline until attempts are exhausted, which denies it. The credential
// check runs outside the table lock (it may hit the settings backend), so
// the challenge is re-validated by ID before the transition applies.
func (g *Gate) Submit(ctx context.Context, pid int, credential, actor string) (types.Challenge, error) {
	g.mu.Lock()
	lc, ok := g.live[pid]
	if !ok {
		g.mu.Unlock()
		return types.Challenge{}, ErrNoChallenge
	}
	id := lc.ch.ID
	g.mu.Unlock()

	verified := g.verifier.Verify(ctx, credential)

	g.mu.Lock()
	lc, ok = g.live[pid]
	if !ok || lc.ch.ID != id {
		// Resolved (or expired) while the credential was being checked.
		g.mu.Unlock()
		return types.Challenge{}, ErrNoChallenge
	}

	if verified {
		ch := g.resolveLocked(lc, types.ChallengeAuthorized)
		g.mu.Unlock()
		g.finalize(ch, actor, "credential accepted")
		return ch, nil
	}

	lc.ch.AttemptsUsed++
	if lc.ch.AttemptsUsed >= g.maxAttempts {
		ch := g.resolveLocked(lc, types.ChallengeDenied)
		g.mu.Unlock()
		g.finalize(ch, actor, "attempts exhausted")
		return ch, nil
	}
	ch := lc.ch
	g.mu.Unlock()

	g.logger.Info("credential rejected",
		"pid", pid, "attempts_used", ch.AttemptsUsed, "max_attempts", g.maxAttempts)
	return ch, nil
}

// expire fires on the deadline timer. The ID check makes a late timer for
// an already-resolved challenge a no-op.
func (g *Gate) expire(pid int, id string) {
	g.mu.Lock()
	lc, ok := g.live[pid]
	if !ok || lc.ch.ID != id || g.stopped {
		g.mu.Unlock()
		return
	}
	ch := g.resolveLocked(lc, types.ChallengeTimedOut)
	g.mu.Unlock()
	g.finalize(ch, "", "deadline expired")
}

// resolveLocked applies a terminal transition under the table lock: the
// challenge leaves the live table, its timer stops, and an authorized
// process generation becomes exempt until it exits.
func (g *Gate) resolveLocked(lc *liveChallenge, state types.ChallengeState) types.Challenge {
	lc.ch.State = state
	delete(g.live, lc.ch.PID)
	if lc.timer != nil {
		lc.timer.Stop()
	}
	if state == types.ChallengeAuthorized {
		g.exempt[lc.key] = struct{}{}
	}
	return lc.ch
}

// finalize emits the attempt record, then the event, then the terminal
// callback. Record emission happens before enforcement becomes possible:
// the audit trail must already show the verdict that justified the kill.
func (g *Gate) finalize(ch types.Challenge, actor, reason string) {
	outcome := outcomeFor(ch.State)
	g.metrics.IncChallenge(string(outcome))
	g.logger.Info("challenge resolved",
		"pid", ch.PID, "identity", ch.Entry.Identity, "outcome", outcome, "reason", reason)

	rec := types.AttemptRecord{
		ID:          "attempt-" + uuid.NewString(),
		Timestamp:   g.now(),
		Identity:    ch.Entry.Identity,
		DisplayName: ch.Entry.DisplayName,
		PID:         ch.PID,
		Outcome:     outcome,
		Actor:       actor,
		Reason:      reason,
		Fields: map[string]any{
			"challenge_id":  ch.ID,
			"attempts_used": ch.AttemptsUsed,
		},
	}
	if err := g.sink.Record(context.Background(), rec); err != nil {
		g.metrics.IncAuditFailure()
		g.logger.Error("attempt record not persisted", "pid", ch.PID, "error", err)
	}

	g.publish(types.EventChallengeResolved, ch, map[string]any{
		"outcome": string(outcome),
		"reason":  reason,
	})

	if g.onTerminal != nil {
		g.wg.Add(1)
		go func() {
			defer g.wg.Done()
			g.onTerminal(ch)
		}()
	}
}

func (g *Gate) publish(evType string, ch types.Challenge, extra map[string]any) {
	if g.broker == nil {
		return
	}
	fields := map[string]any{
		"challenge_id": ch.ID,
		"display_name": ch.Entry.DisplayName,
		"deadline":     ch.Deadline.Format(time.RFC3339Nano),
	}
	for k, v := range extra {
		fields[k] = v
	}
	g.broker.Publish(types.Event{
		ID:        uuid.NewString(),
		Timestamp: g.now(),
		Type:      evType,
		PID:       ch.PID,
		Identity:  ch.Entry.Identity,
		Fields:    fields,
	})
}

// Pending lists live challenges, soonest deadline first not guaranteed.
func (g *Gate) Pending() []types.Challenge {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]types.Challenge, 0, len(g.live))
	for _, lc := range g.live {
		out = append(out, lc.ch)
	}
	return out
}

// PendingCount reports the number of live challenges.
func (g *Gate) PendingCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.live)
}

// PruneExited drops exemptions whose process generation is no longer in
// the snapshot, so a relaunch of the same binary is challenged again.
func (g *Gate) PruneExited(alive map[types.ProcessKey]struct{}) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for key := range g.exempt {
		if _, ok := alive[key]; !ok {
			delete(g.exempt, key)
		}
	}
}

// Stop cancels all timers and clears the table. Pending challenges are
// discarded without records; in-flight terminal callbacks are awaited so
// enforcement actions finish rather than being abandoned mid-kill.
func (g *Gate) Stop() {
	g.mu.Lock()
	if g.stopped {
		g.mu.Unlock()
		return
	}
	g.stopped = true
	for pid, lc := range g.live {
		if lc.timer != nil {
			lc.timer.Stop()
		}
		delete(g.live, pid)
	}
	g.exempt = make(map[types.ProcessKey]struct{})
	g.mu.Unlock()

	g.wg.Wait()
}

func outcomeFor(state types.ChallengeState) types.Outcome {
	switch state {
	case types.ChallengeAuthorized:
		return types.OutcomeAuthorized
	case types.ChallengeDenied:
		return types.OutcomeDenied
	case types.ChallengeTimedOut:
		return types.OutcomeTimedOut
	default:
		return types.Outcome(string(state))
	}
}
