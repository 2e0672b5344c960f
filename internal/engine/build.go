package engine

import (
	"log/slog"
	"time"

	"github.com/applockd/applockd/internal/audit"
	"github.com/applockd/applockd/internal/enforce"
	"github.com/applockd/applockd/internal/events"
	"github.com/applockd/applockd/internal/gate"
	"github.com/applockd/applockd/internal/metrics"
	"github.com/applockd/applockd/internal/resolver"
	"github.com/applockd/applockd/internal/snapshot"
)

// BuildOptions carries everything needed to assemble a production engine.
type BuildOptions struct {
	PollInterval     time.Duration
	ChallengeTimeout time.Duration
	MaxAttempts      int
	ResolverWindow   int
	KillGracePeriod  time.Duration
}

// Build wires gate, resolver, actuator and engine together. The gate's
// terminal callback points back at the engine, which is why the two are
// constructed here rather than independently.
func Build(opts BuildOptions, source snapshot.Source, view PolicyView, lookup resolver.Lookup,
	verifier gate.Verifier, sink audit.Sink, broker *events.Broker,
	collector *metrics.Collector, logger *slog.Logger) (*Engine, *gate.Gate) {

	res := resolver.New(lookup, opts.ResolverWindow, logger)
	actuator := enforce.New(opts.KillGracePeriod, logger)

	eng := New(Options{PollInterval: opts.PollInterval},
		source, view, res, nil, actuator, sink, broker, collector, logger)

	g := gate.New(gate.Options{
		Timeout:     opts.ChallengeTimeout,
		MaxAttempts: opts.MaxAttempts,
	}, verifier, sink, broker, collector, logger, eng.OnTerminal)
	eng.gate = g

	return eng, g
}
