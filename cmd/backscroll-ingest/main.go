// Backscroll ingest daemon: runs the coordinator loop and serves the
// read only ops endpoints
package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"backscroll/internal/modkit"
	"backscroll/internal/modkit/module"
	"backscroll/internal/platform/config"
	"backscroll/internal/platform/logger"
	phttp "backscroll/internal/platform/net/http"
	"backscroll/internal/platform/net/middleware"

	ingestmod "backscroll/internal/services/ingest/module"
	opsmod "backscroll/internal/services/ops/module"
)

func main() {
	root := config.New()
	opsCfg := root.Prefix("OPS_")

	l := logger.Get()

	deps := modkit.Deps{
		Cfg: root,
		Log: *l,
	}

	// ingest module wires state, adapters, and the coordinator from env
	ing := ingestmod.New(deps)
	module.Register(ing.Name(), ing.Ports())
	defer func() {
		if err := ing.Close(); err != nil {
			l.Error().Err(err).Msg("failed to close index")
		}
	}()

	ingPorts := module.MustPortsOf[ingestmod.Ports](ing)

	// ops surface reads the ingest ports, never writes
	mws := middleware.Defaults()
	if origins := opsCfg.MayCSV("CORS_ORIGINS", nil); len(origins) > 0 {
		mws = append(mws, middleware.CORS(middleware.CORSOptions{AllowedOrigins: origins}))
	}
	mws = append(mws, middleware.AccessLogZerolog(middleware.AccessLogOptions{
		Slow: opsCfg.MayDuration("SLOW", 0),
	}))

	ops := opsmod.New(
		deps,
		modkit.WithPorts(opsmod.Ports{
			Runner: ingPorts.Runner,
			State:  ingPorts.State,
			Source: ingPorts.Source,
			Sink:   ingPorts.Sink,
		}),
		modkit.WithMiddlewares(mws...),
	)
	module.Register(ops.Name(), ops.Ports())

	srv := phttp.NewServer(opsCfg.MayPort("PORT", "4600"))
	ops.MountRoutes(srv.Router())
	phttp.MountProfiler(srv.Router(), "/debug", opsCfg.MayBool("PROFILER", false))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// the loop owns the tick cadence; RunLoop returns once ctx is done and
	// any in-flight tick has finished
	loopDone := make(chan error, 1)
	go func() { loopDone <- ingPorts.Runner.RunLoop(ctx) }()

	go func() {
		// Run returns nil on graceful shutdown
		if err := srv.Run(ctx); err != nil {
			l.Error().Err(err).Msg("ops server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	l.Info().Msg("signal received, draining")

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		l.Error().Err(err).Msg("ops server shutdown failed")
	}

	if err := <-loopDone; err != nil && !errors.Is(err, context.Canceled) {
		l.Error().Err(err).Msg("ingest loop exited with error")
	}
	l.Info().Msg("ingest daemon stopped")
}
