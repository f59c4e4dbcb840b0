// Package http provides the ops endpoints over the ingest ports
package http

import (
	stdctx "context"
	"net/http"
	"time"

	"backscroll/internal/core/version"
	perr "backscroll/internal/platform/errors"
	phttp "backscroll/internal/platform/net/http"
	"backscroll/internal/services/ingest/domain"
)

// probeTimeout bounds the readiness checks so a hung upstream cannot wedge
// the probe endpoint
const probeTimeout = 2 * time.Second

// SummarySource is satisfied by a runner that remembers its last tick
type SummarySource interface {
	LastSummary() (domain.TickSummary, bool)
}

// Deps are the handler dependencies
type Deps struct {
	ServiceName string
	StartedAt   time.Time

	Source domain.SourcePort
	Sink   domain.SinkPort
	State  domain.StatePort
	Runner domain.RunnerPort
}

type handlers struct {
	deps Deps
}

// RegisterMeta mounts the liveness endpoints
func RegisterMeta(r phttp.Router, d Deps) {
	h := &handlers{deps: d}

	phttp.GetJSON(r, "/health", h.health)
	phttp.GetJSON(r, "/ready", h.ready)
	phttp.GetJSON(r, "/version", h.version)
}

// RegisterState mounts the read only state views
func RegisterState(r phttp.Router, d Deps) {
	h := &handlers{deps: d}

	phttp.GetJSON(r, "/backfill", h.backfill)
	phttp.GetJSON(r, "/incremental", h.incremental)
	phttp.GetJSON(r, "/summary", h.summary)
}

// HealthResponse is the health payload
type HealthResponse struct {
	OK      bool   `json:"ok"`
	Service string `json:"service"`
	Started string `json:"started"`
	Now     string `json:"now"`
}

// ReadyCheck describes a single dependency check
type ReadyCheck struct {
	Name   string `json:"name"`
	Status string `json:"status"` // ok fail skipped
	Error  string `json:"error,omitempty"`
}

// ReadyResponse summarizes readiness
type ReadyResponse struct {
	Status string       `json:"status"` // ok degraded fail
	Checks []ReadyCheck `json:"checks"`
	Now    string       `json:"now"`
}

// SummaryResponse is the last tick outcome plus a live index count
type SummaryResponse struct {
	Last  *domain.TickSummary `json:"last,omitempty"`
	Index *domain.SinkStats   `json:"index,omitempty"`
	Now   string              `json:"now"`
}

func (h *handlers) health(_ *http.Request) (any, error) {
	return HealthResponse{
		OK:      true,
		Service: h.deps.ServiceName,
		Started: h.deps.StartedAt.UTC().Format(time.RFC3339),
		Now:     time.Now().UTC().Format(time.RFC3339),
	}, nil
}

func (h *handlers) ready(_ *http.Request) (any, error) {
	ctx, cancel := stdctx.WithTimeout(stdctx.Background(), probeTimeout)
	defer cancel()

	probe := func(name string, fn func(stdctx.Context) error) ReadyCheck {
		if fn == nil {
			return ReadyCheck{Name: name, Status: "skipped"}
		}
		if err := fn(ctx); err != nil {
			return ReadyCheck{Name: name, Status: "fail", Error: err.Error()}
		}
		return ReadyCheck{Name: name, Status: "ok"}
	}

	var srcFn, idxFn func(stdctx.Context) error
	if h.deps.Source != nil {
		srcFn = h.deps.Source.Probe
	}
	if h.deps.Sink != nil {
		idxFn = h.deps.Sink.Ping
	}
	src := probe("source", srcFn)
	idx := probe("index", idxFn)

	overall := "ok"
	if src.Status != "ok" || idx.Status != "ok" {
		overall = "degraded"
		if src.Status == "fail" || idx.Status == "fail" {
			overall = "fail"
		}
	}

	return ReadyResponse{
		Status: overall,
		Checks: []ReadyCheck{src, idx},
		Now:    time.Now().UTC().Format(time.RFC3339),
	}, nil
}

func (h *handlers) version(_ *http.Request) (any, error) {
	return version.Info(), nil
}

func (h *handlers) backfill(_ *http.Request) (any, error) {
	if h.deps.State == nil {
		return nil, perr.Unavailablef("ops: state store not wired")
	}
	return h.deps.State.Global(), nil
}

func (h *handlers) incremental(_ *http.Request) (any, error) {
	if h.deps.State == nil {
		return nil, perr.Unavailablef("ops: state store not wired")
	}
	return h.deps.State.Incremental(), nil
}

func (h *handlers) summary(r *http.Request) (any, error) {
	out := SummaryResponse{Now: time.Now().UTC().Format(time.RFC3339)}
	if src, ok := h.deps.Runner.(SummarySource); ok {
		if last, has := src.LastSummary(); has {
			out.Last = &last
		}
	}
	if h.deps.Sink != nil {
		// a down index should not break the view, the count is just absent
		if st, err := h.deps.Sink.Stats(r.Context()); err == nil {
			out.Index = &st
		}
	}
	return out, nil
}
