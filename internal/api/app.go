// Package api is the local operator surface: challenge listing and verdict
// submission, protected-app CRUD, audit queries, and a live event stream.
// The engine core never depends on this package; it is one possible front
// end over the gate and the broker.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/applockd/applockd/internal/audit"
	"github.com/applockd/applockd/internal/events"
	"github.com/applockd/applockd/internal/gate"
	"github.com/applockd/applockd/internal/metrics"
	"github.com/applockd/applockd/internal/policy"
	"github.com/applockd/applockd/pkg/types"
)

type App struct {
	store   *policy.Store
	gate    *gate.Gate
	sink    audit.Sink
	broker  *events.Broker
	metrics *metrics.Collector
	logger  *slog.Logger
}

func NewApp(store *policy.Store, g *gate.Gate, sink audit.Sink, broker *events.Broker,
	collector *metrics.Collector, logger *slog.Logger) *App {
	return &App{
		store:   store,
		gate:    g,
		sink:    sink,
		broker:  broker,
		metrics: collector,
		logger:  logger,
	}
}

func (a *App) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { writeText(w, http.StatusOK, "ok\n") })
	r.Handle("/metrics", a.metrics.Handler(metrics.HandlerOptions{
		PendingChallenges: a.gate.PendingCount,
		EventsDropped:     a.broker.DroppedCount,
	}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/challenges", a.listChallenges)
		r.Post("/challenges/{pid}", a.submitVerdict)

		r.Get("/apps", a.listApps)
		r.Post("/apps", a.addApp)
		r.Delete("/apps", a.removeApp)
		r.Post("/apps/toggle", a.toggleApp)

		r.Get("/protection", a.getProtection)
		r.Put("/protection", a.setProtection)

		r.Get("/records", a.queryRecords)
		r.Get("/events/ws", a.streamEvents)
	})

	return r
}

func (a *App) listChallenges(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"challenges": a.gate.Pending()})
}

type verdictRequest struct {
	Credential string `json:"credential"`
	Actor      string `json:"actor,omitempty"`
}

func (a *App) submitVerdict(w http.ResponseWriter, r *http.Request) {
	pid, err := strconv.Atoi(chi.URLParam(r, "pid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid pid"})
		return
	}
	var req verdictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json body"})
		return
	}

	ch, err := a.gate.Submit(r.Context(), pid, req.Credential, req.Actor)
	if errors.Is(err, gate.ErrNoChallenge) {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "no pending challenge for pid"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"challenge": ch})
}

func (a *App) listApps(w http.ResponseWriter, r *http.Request) {
	entries, err := a.store.ListEntries(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"apps": entries})
}

func (a *App) addApp(w http.ResponseWriter, r *http.Request) {
	var e types.ProtectedEntry
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json body"})
		return
	}
	if e.Kind == "" {
		e.Kind = types.EntryKindExecutable
	}
	if err := a.store.AddEntry(r.Context(), e); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"status": "added"})
}

func (a *App) removeApp(w http.ResponseWriter, r *http.Request) {
	identity := r.URL.Query().Get("identity")
	if identity == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "identity query parameter required"})
		return
	}
	err := a.store.RemoveEntry(r.Context(), identity)
	if errors.Is(err, policy.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "entry not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "removed"})
}

type toggleRequest struct {
	Identity string `json:"identity"`
	Enabled  bool   `json:"enabled"`
}

func (a *App) toggleApp(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json body"})
		return
	}
	err := a.store.SetEntryEnabled(r.Context(), req.Identity, req.Enabled)
	if errors.Is(err, policy.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "entry not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "updated"})
}

func (a *App) getProtection(w http.ResponseWriter, r *http.Request) {
	enabled, err := a.store.ProtectionEnabled(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"enabled": enabled})
}

type protectionRequest struct {
	Enabled bool `json:"enabled"`
}

func (a *App) setProtection(w http.ResponseWriter, r *http.Request) {
	var req protectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json body"})
		return
	}
	if err := a.store.SetProtection(r.Context(), req.Enabled); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	a.broker.Publish(types.Event{
		Timestamp: time.Now().UTC(),
		Type:      types.EventProtectionToggled,
		Fields:    map[string]any{"enabled": req.Enabled},
	})
	writeJSON(w, http.StatusOK, map[string]any{"enabled": req.Enabled})
}

func (a *App) queryRecords(w http.ResponseWriter, r *http.Request) {
	q := types.RecordQuery{Identity: r.URL.Query().Get("identity")}
	if s := r.URL.Query().Get("outcome"); s != "" {
		o := types.Outcome(s)
		q.Outcome = &o
	}
	if s := r.URL.Query().Get("since"); s != "" {
		t, err := parseTimeOrAge(s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid since"})
			return
		}
		q.Since = &t
	}
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			q.Limit = n
		}
	}

	records, err := a.sink.Query(r.Context(), q)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

// parseTimeOrAge accepts RFC3339 or a relative age like "24h".
func parseTimeOrAge(s string) (time.Time, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return time.Now().UTC().Add(-d), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeText(w http.ResponseWriter, status int, s string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(s))
}
