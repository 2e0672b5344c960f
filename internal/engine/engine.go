// Package engine wires the poll-detect cycle: snapshot, arrival diff,
// policy match, challenge creation, package identity sweeping, exemption
// pruning and enforcement. No error in a cycle is fatal; the loop is built
// to run indefinitely and self-heal from any single-cycle failure.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/applockd/applockd/internal/audit"
	"github.com/applockd/applockd/internal/detector"
	"github.com/applockd/applockd/internal/enforce"
	"github.com/applockd/applockd/internal/events"
	"github.com/applockd/applockd/internal/gate"
	"github.com/applockd/applockd/internal/metrics"
	"github.com/applockd/applockd/internal/resolver"
	"github.com/applockd/applockd/internal/snapshot"
	"github.com/applockd/applockd/pkg/types"
)

// PolicyView is the combined policy surface the cycle consults. Refresh is
// called at the top of each cycle so policy edits land on cycle boundaries.
type PolicyView interface {
	Refresh(ctx context.Context)
	ProtectionEnabled() bool
	MatchExecutable(identity string) (types.ProtectedEntry, bool)
	MatchPackage(identity string) (types.ProtectedEntry, bool)
	HasPackageEntries() bool
}

// Actuator terminates a process tree on a non-authorized verdict.
type Actuator interface {
	Enforce(ctx context.Context, pid int) enforce.Result
}

// Options configures the engine.
type Options struct {
	PollInterval time.Duration
}

// Engine owns the recurring cycle and the gate's terminal callback.
type Engine struct {
	pollInterval time.Duration

	source   snapshot.Source
	policy   PolicyView
	detector *detector.Detector
	resolver *resolver.Resolver
	gate     *gate.Gate
	actuator Actuator
	sink     audit.Sink
	broker   *events.Broker
	metrics  *metrics.Collector
	logger   *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// New assembles an engine. The gate must have been constructed with this
// engine's OnTerminal as its terminal callback; Build in this package does
// that wiring for production use.
func New(opts Options, source snapshot.Source, view PolicyView, res *resolver.Resolver,
	g *gate.Gate, actuator Actuator, sink audit.Sink, broker *events.Broker,
	collector *metrics.Collector, logger *slog.Logger) *Engine {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 500 * time.Millisecond
	}
	return &Engine{
		pollInterval: opts.PollInterval,
		source:       source,
		policy:       view,
		detector:     detector.New(),
		resolver:     res,
		gate:         g,
		actuator:     actuator,
		sink:         sink,
		broker:       broker,
		metrics:      collector,
		logger:       logger,
	}
}

// Start launches the poll loop. It fails if the engine is already running.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return fmt.Errorf("engine already running")
	}
	loopCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})
	e.running = true

	go e.loop(loopCtx)
	e.logger.Info("engine started", "poll_interval", e.pollInterval)
	return nil
}

// Stop cancels the loop, tears down the gate's timers and pid table, and
// waits for in-flight enforcement to complete.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	cancel := e.cancel
	done := e.done
	e.mu.Unlock()

	cancel()
	<-done
	e.gate.Stop()
	e.resolver.Reset()
	e.logger.Info("engine stopped")
}

func (e *Engine) loop(ctx context.Context) {
	defer close(e.done)
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	// Prime the detector immediately instead of waiting one interval, so
	// processes already running at startup are never treated as arrivals.
	e.cycle(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.cycle(ctx)
		}
	}
}

// cycle runs one poll-detect pass. Snapshots are cycle-local and immutable
// once produced; the only shared state mutated here lives behind the gate
// and resolver locks.
func (e *Engine) cycle(ctx context.Context) {
	e.metrics.IncCycle()
	e.policy.Refresh(ctx)

	obs, err := e.source.Snapshot(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		e.metrics.IncSnapshotError()
		e.logger.Warn("snapshot failed, skipping cycle", "error", err)
		return
	}

	alive := make(map[types.ProcessKey]struct{}, len(obs))
	for _, o := range obs {
		alive[o.Key()] = struct{}{}
	}

	arrivals := e.detector.Observe(obs)
	e.metrics.AddArrivals(len(arrivals))

	matches, unmatched := detector.Match(arrivals, e.policy)
	for _, m := range matches {
		e.gate.Offer(m)
	}

	if e.policy.HasPackageEntries() {
		for _, o := range unmatched {
			e.resolver.Track(o)
		}
	}
	for _, m := range e.resolver.Sweep(ctx, e.policy, alive) {
		e.gate.Offer(m)
	}

	e.gate.PruneExited(alive)
}

// OnTerminal is the gate's terminal callback: enforce on denied or timed
// out, leave authorized and never-challenged pids untouched. Enforcement
// failures become their own audit records and the loop keeps going.
func (e *Engine) OnTerminal(ch types.Challenge) {
	switch ch.State {
	case types.ChallengeDenied, types.ChallengeTimedOut:
	default:
		return
	}

	res := e.actuator.Enforce(context.Background(), ch.PID)
	ev := types.Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Type:      types.EventEnforcement,
		PID:       ch.PID,
		Identity:  ch.Entry.Identity,
		Fields: map[string]any{
			"challenge_id":   ch.ID,
			"graceful":       res.Graceful,
			"already_exited": res.AlreadyExited,
			"terminated":     res.Terminated(),
		},
	}
	if e.broker != nil {
		e.broker.Publish(ev)
	}
	if res.Terminated() {
		return
	}

	e.metrics.IncEnforcementFailure()
	rec := types.AttemptRecord{
		ID:          "attempt-" + uuid.NewString(),
		Timestamp:   time.Now().UTC(),
		Identity:    ch.Entry.Identity,
		DisplayName: ch.Entry.DisplayName,
		PID:         ch.PID,
		Outcome:     types.OutcomeEnforcementFailed,
		Reason:      res.Err.Error(),
		Fields:      map[string]any{"challenge_id": ch.ID},
	}
	if err := e.sink.Record(context.Background(), rec); err != nil {
		e.metrics.IncAuditFailure()
		e.logger.Error("enforcement failure record not persisted", "pid", ch.PID, "error", err)
	}
}
