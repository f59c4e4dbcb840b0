// Package module provides the ingest module implementation
package module

import (
	"backscroll/internal/modkit"
	phttp "backscroll/internal/platform/net/http"

	"backscroll/internal/adapters/embed/openai"
	"backscroll/internal/adapters/index/qdrant"
	"backscroll/internal/adapters/report/webhook"
	slacksrc "backscroll/internal/adapters/source/slack"
	"backscroll/internal/core/chunk"
	"backscroll/internal/services/ingest/domain"
	"backscroll/internal/services/ingest/service"
	"backscroll/internal/services/ingest/sink"
	"backscroll/internal/services/ingest/state"
)

// Ports defines the ingest module ports
type Ports struct {
	Runner domain.RunnerPort
	State  domain.StatePort
	Source domain.SourcePort
	Sink   domain.SinkPort
}

// Module implements the ingest module
type Module struct {
	deps  modkit.Deps
	ports Ports
	idx   *qdrant.Index
}

// New constructs the ingest module.
// It wires the state store and the adapters into the coordinator using
// config from deps.Cfg. Construction failures panic; there is no degraded
// mode for a daemon that cannot load its sources or state
func New(deps modkit.Deps) *Module {
	opts := FromConfig(deps.Cfg)

	sources, err := LoadSources(opts.SourcesFile)
	if err != nil {
		panic(err)
	}
	st, err := state.New(opts.StateDir, sources)
	if err != nil {
		panic(err)
	}

	src := slacksrc.New(deps)
	emb := openai.New(deps)
	idx := qdrant.New(deps, emb.Dim())
	snk := sink.New(emb, idx)
	proc := chunk.New(chunk.Options{
		ChunkSize:    opts.ChunkSize,
		ChunkOverlap: opts.ChunkOverlap,
	})

	var reporter domain.ReporterPort
	if rep := webhook.New(deps); rep.Enabled() {
		reporter = rep
	}

	svc := service.New(sources, domain.Ports{
		Source:    src,
		Processor: proc,
		Sink:      snk,
		State:     st,
		Reporter:  reporter,
	}, service.Config{
		TickEvery:    opts.TickEvery,
		FetchCap:     opts.FetchCap,
		Horizon:      opts.Horizon,
		IncrLookback: opts.IncrLookback,
		MaxRetries:   opts.MaxRetries,
		RetryBase:    opts.RetryBase,
		RetryCap:     opts.RetryCap,
		TickTimeout:  opts.TickTimeout,
		FetchTimeout: opts.FetchTimeout,
		EmbedTimeout: opts.EmbedTimeout,
	})

	m := &Module{deps: deps, idx: idx}
	m.ports = Ports{Runner: svc, State: st, Source: src, Sink: snk}
	return m
}

// Close releases adapter resources, today just the index gRPC conn
func (m *Module) Close() error { return m.idx.Close() }

// Name returns the module name
func (m *Module) Name() string { return "ingest" }

// Ports returns the module ports
func (m *Module) Ports() any { return m.ports }

// MountRoutes is a no-op as ingest has no routes; the ops module serves
// the HTTP surface off these ports
func (m *Module) MountRoutes(phttp.Router) {}
