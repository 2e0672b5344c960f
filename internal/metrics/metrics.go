package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Collector provides a minimal Prometheus-compatible metrics exporter.
type Collector struct {
	startedAt time.Time

	cyclesTotal     atomic.Uint64
	arrivalsTotal   atomic.Uint64
	snapshotErrors  atomic.Uint64
	challengesTotal atomic.Uint64
	byOutcome       sync.Map // string -> *atomic.Uint64

	enforcementFails atomic.Uint64
	auditFails       atomic.Uint64
}

func New() *Collector {
	return &Collector{startedAt: time.Now().UTC()}
}

func (c *Collector) IncCycle() {
	if c == nil {
		return
	}
	c.cyclesTotal.Add(1)
}

func (c *Collector) AddArrivals(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.arrivalsTotal.Add(uint64(n))
}

func (c *Collector) IncSnapshotError() {
	if c == nil {
		return
	}
	c.snapshotErrors.Add(1)
}

func (c *Collector) IncChallenge(outcome string) {
	if c == nil {
		return
	}
	c.challengesTotal.Add(1)
	if outcome == "" {
		outcome = "unknown"
	}
	ptr, _ := c.byOutcome.LoadOrStore(outcome, &atomic.Uint64{})
	ptr.(*atomic.Uint64).Add(1)
}

func (c *Collector) IncEnforcementFailure() {
	if c == nil {
		return
	}
	c.enforcementFails.Add(1)
}

func (c *Collector) IncAuditFailure() {
	if c == nil {
		return
	}
	c.auditFails.Add(1)
}

type HandlerOptions struct {
	PendingChallenges func() int
	EventsDropped     func() int64
}

func (c *Collector) Handler(opts HandlerOptions) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		fmt.Fprint(w, "# HELP applockd_up Whether the applockd engine is running.\n")
		fmt.Fprint(w, "# TYPE applockd_up gauge\n")
		fmt.Fprint(w, "applockd_up 1\n")

		fmt.Fprint(w, "# HELP applockd_poll_cycles_total Total poll-detect cycles executed.\n")
		fmt.Fprint(w, "# TYPE applockd_poll_cycles_total counter\n")
		fmt.Fprintf(w, "applockd_poll_cycles_total %d\n", c.cyclesTotal.Load())

		fmt.Fprint(w, "# HELP applockd_arrivals_total Newly observed processes across all cycles.\n")
		fmt.Fprint(w, "# TYPE applockd_arrivals_total counter\n")
		fmt.Fprintf(w, "applockd_arrivals_total %d\n", c.arrivalsTotal.Load())

		fmt.Fprint(w, "# HELP applockd_snapshot_errors_total Failed process enumerations.\n")
		fmt.Fprint(w, "# TYPE applockd_snapshot_errors_total counter\n")
		fmt.Fprintf(w, "applockd_snapshot_errors_total %d\n", c.snapshotErrors.Load())

		fmt.Fprint(w, "# HELP applockd_challenges_total Challenges that reached a terminal state.\n")
		fmt.Fprint(w, "# TYPE applockd_challenges_total counter\n")
		fmt.Fprintf(w, "applockd_challenges_total %d\n", c.challengesTotal.Load())

		outcomes := snapshotKeys(&c.byOutcome)
		if len(outcomes) > 0 {
			fmt.Fprint(w, "# HELP applockd_challenges_by_outcome_total Terminal challenges by outcome.\n")
			fmt.Fprint(w, "# TYPE applockd_challenges_by_outcome_total counter\n")
			for _, o := range outcomes {
				ptr, _ := c.byOutcome.Load(o)
				n := uint64(0)
				if ptr != nil {
					n = ptr.(*atomic.Uint64).Load()
				}
				fmt.Fprintf(w, "applockd_challenges_by_outcome_total{outcome=\"%s\"} %d\n", escapeLabelValue(o), n)
			}
		}

		fmt.Fprint(w, "# HELP applockd_enforcement_failures_total Terminations that failed after escalation.\n")
		fmt.Fprint(w, "# TYPE applockd_enforcement_failures_total counter\n")
		fmt.Fprintf(w, "applockd_enforcement_failures_total %d\n", c.enforcementFails.Load())

		fmt.Fprint(w, "# HELP applockd_audit_failures_total Attempt records that failed to persist.\n")
		fmt.Fprint(w, "# TYPE applockd_audit_failures_total counter\n")
		fmt.Fprintf(w, "applockd_audit_failures_total %d\n", c.auditFails.Load())

		if opts.EventsDropped != nil {
			fmt.Fprint(w, "# HELP applockd_events_dropped_total Events dropped for slow subscribers.\n")
			fmt.Fprint(w, "# TYPE applockd_events_dropped_total counter\n")
			fmt.Fprintf(w, "applockd_events_dropped_total %d\n", opts.EventsDropped())
		}

		if opts.PendingChallenges != nil {
			fmt.Fprint(w, "# HELP applockd_challenges_pending Currently pending challenges.\n")
			fmt.Fprint(w, "# TYPE applockd_challenges_pending gauge\n")
			fmt.Fprintf(w, "applockd_challenges_pending %d\n", opts.PendingChallenges())
		}
	})
}

func snapshotKeys(m *sync.Map) []string {
	var out []string
	m.Range(func(k, _ any) bool {
		if s, ok := k.(string); ok {
			out = append(out, s)
		}
		return true
	})
	sort.Strings(out)
	return out
}

func escapeLabelValue(v string) string {
	// Prometheus text format label escaping for " and \ and newlines.
	v = strings.ReplaceAll(v, "\\", "\\\\")
	v = strings.ReplaceAll(v, "\n", "\\n")
	v = strings.ReplaceAll(v, "\"", "\\\"")
	return v
}
