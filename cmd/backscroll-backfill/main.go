// Backscroll backfill tool: run one tick, drain the backfill to
// completion, or print the persisted ingestion state
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"backscroll/internal/modkit"
	"backscroll/internal/modkit/module"
	"backscroll/internal/platform/config"
	"backscroll/internal/platform/logger"

	"backscroll/internal/adapters/index/qdrant"
	"backscroll/internal/services/ingest/domain"
	ingestmod "backscroll/internal/services/ingest/module"
	"backscroll/internal/services/ingest/state"
)

type statusOut struct {
	Backfill    domain.GlobalBackfillState `json:"backfill"`
	Incremental domain.IncrementalState    `json:"incremental"`
	Index       *domain.SinkStats          `json:"index,omitempty"`
}

func printJSON(v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		logger.Get().Fatal().Err(err).Msg("encode output")
	}
	fmt.Fprintln(os.Stdout, string(b))
}

func main() {
	root := config.New()
	l := logger.Get()

	var (
		fOnce   = flag.Bool("once", false, "run a single coordinator tick and exit")
		fDrain  = flag.Bool("drain", false, "tick until the global backfill completes, then exit")
		fStatus = flag.Bool("status", false, "print the persisted state and exit")
	)
	flag.Parse()

	picked := 0
	for _, b := range []bool{*fOnce, *fDrain, *fStatus} {
		if b {
			picked++
		}
	}
	if picked != 1 {
		l.Panic().Msg("pick exactly one of -once, -drain, -status")
	}

	deps := modkit.Deps{
		Cfg: root,
		Log: *l,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// status reads the files directly so it works without source or
	// embedder credentials
	if *fStatus {
		opts := ingestmod.FromConfig(root)
		sources, err := ingestmod.LoadSources(opts.SourcesFile)
		if err != nil {
			l.Fatal().Err(err).Msg("load sources")
		}
		st, err := state.New(opts.StateDir, sources)
		if err != nil {
			l.Fatal().Err(err).Msg("open state")
		}

		out := statusOut{Backfill: st.Global(), Incremental: st.Incremental()}

		// index count is best effort; an unreachable index leaves it absent
		idx := qdrant.New(deps, 0)
		defer func() { _ = idx.Close() }()
		if n, err := idx.Count(ctx); err == nil {
			out.Index = &domain.SinkStats{Collection: idx.Collection(), Vectors: n}
		} else {
			l.Warn().Err(err).Msg("index unreachable, omitting count")
		}

		printJSON(out)
		return
	}

	ing := ingestmod.New(deps)
	module.Register(ing.Name(), ing.Ports())
	defer func() {
		if err := ing.Close(); err != nil {
			l.Error().Err(err).Msg("failed to close index")
		}
	}()

	ports := ing.Ports().(ingestmod.Ports)

	switch {
	case *fOnce:
		sum, err := ports.Runner.Tick(ctx)
		if err != nil {
			printJSON(sum)
			l.Fatal().Err(err).Msg("tick failed")
		}
		printJSON(sum)
		if sum.Status == domain.TickFailed {
			os.Exit(1)
		}

	case *fDrain:
		if err := ports.Runner.Drain(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				l.Info().Msg("drain interrupted")
				return
			}
			l.Fatal().Err(err).Msg("drain failed")
		}
		printJSON(statusOut{Backfill: ports.State.Global(), Incremental: ports.State.Incremental()})
		l.Info().Msg("backfill complete")
	}
}
