// Package module wires the ops HTTP surface over the ingest ports
package module

import (
	"net/http"
	"time"

	"backscroll/internal/core/version"
	"backscroll/internal/modkit"
	phttp "backscroll/internal/platform/net/http"
	"backscroll/internal/services/ingest/domain"
	opshttp "backscroll/internal/services/ops/http"
)

// Ports are the ingest ports the ops surface reads from.
// The concrete values come from the ingest module at bootstrap; any that
// stay nil are reported as skipped by the readiness probe
type Ports struct {
	Runner domain.RunnerPort
	State  domain.StatePort
	Source domain.SourcePort
	Sink   domain.SinkPort
}

// Module serves the read only operational endpoints
type Module struct {
	deps      modkit.Deps
	name      string
	mws       []func(http.Handler) http.Handler
	subrouter func(phttp.Router) phttp.Router
	register  func(phttp.Router)
	startedAt time.Time
}

// New constructs the ops module; pass the ingest ports via modkit.WithPorts
func New(deps modkit.Deps, opts ...modkit.Option) *Module {
	b := modkit.Build(append([]modkit.Option{
		modkit.WithName("ops"),
	}, opts...)...)

	ports, _ := b.Ports.(Ports)

	m := &Module{
		deps:      deps,
		name:      b.Name,
		mws:       b.Mw,
		subrouter: b.Subrouter,
		startedAt: time.Now(),
	}

	external := b.Register
	m.register = func(r phttp.Router) {
		d := opshttp.Deps{
			ServiceName: version.Info().Service,
			StartedAt:   m.startedAt,
			Source:      ports.Source,
			Sink:        ports.Sink,
			State:       ports.State,
			Runner:      ports.Runner,
		}
		r.Route("/meta", func(rr phttp.Router) { opshttp.RegisterMeta(rr, d) })
		r.Route("/state", func(rr phttp.Router) { opshttp.RegisterState(rr, d) })
		external(r)
	}
	return m
}

// MountRoutes implements modkit.Module
func (m *Module) MountRoutes(r phttp.Router) {
	r.Group(func(rr phttp.Router) {
		for _, mw := range m.mws {
			rr.Use(mw)
		}
		rr = m.subrouter(rr)
		m.register(rr)
	})
}

// Ports implements modkit.Module; ops consumes ports and exposes none
func (m *Module) Ports() any { return nil }

// Name implements modkit.Module
func (m *Module) Name() string { return m.name }
