package service

import (
	"context"
	"runtime/debug"
	"strings"
	"time"

	perr "backscroll/internal/platform/errors"
	"backscroll/internal/platform/logger"
	"backscroll/internal/services/ingest/domain"
	"backscroll/internal/services/ingest/guardrails"

	"github.com/google/uuid"
)

// drainPause separates Drain passes that moved nothing, so a wedged source
// does not spin the loop
const drainPause = 2 * time.Second

// Tick runs one full coordinator pass and reports the outcome. Overlapping
// ticks are refused rather than queued; the skipped work is covered by the
// next firing since every pass resumes from persisted state
func (s *Service) Tick(ctx context.Context) (domain.TickSummary, error) {
	if !s.running.CompareAndSwap(false, true) {
		return domain.TickSummary{}, perr.Unavailablef("ingest: tick already running")
	}
	defer s.running.Store(false)

	runID := uuid.NewString()
	ctx = logger.WithRun(ctx, runID)

	sum := domain.TickSummary{
		RunID:     runID,
		Status:    domain.TickOK,
		StartedAt: time.Now().UTC(),
	}
	err := s.tickOnce(ctx, &sum)
	sum.Duration = time.Since(sum.StartedAt)

	switch {
	case err != nil:
		sum.Status = domain.TickFailed
		sum.Errors = append(sum.Errors, err.Error())
	case len(sum.Errors) > 0:
		sum.Status = domain.TickDegraded
	}

	evt := logger.C(ctx).Info()
	if sum.Status != domain.TickOK {
		evt = logger.C(ctx).Warn()
	}
	evt.Str("status", sum.Status).
		Str("mode", sum.Mode).
		Int("sources", sum.SourcesChecked).
		Int("embedded", sum.MessagesEmbedded).
		Int("errors", len(sum.Errors)).
		Dur("took", sum.Duration).
		Msg("ingest: tick done")

	s.lastMu.Lock()
	s.last, s.hasLast = sum, true
	s.lastMu.Unlock()

	s.report(ctx, sum)
	return sum, err
}

// safely runs one source pass, converting a panic into a coded error so a
// poisoned source degrades the tick instead of killing it
func safely(ctx context.Context, fn func() (int, error)) (n int, err error) {
	defer func() {
		if v := recover(); v != nil {
			// format stack like chi recover
			lines := strings.Split(string(debug.Stack()), "\n")
			stack := strings.Join(lines, "\n\t")
			logger.C(ctx).Error().Interface("panic", v).Msgf("ingest: source pass panicked\n%s", stack)
			err = perr.PanicErrf("panic: %v", v)
		}
	}()
	return fn()
}

// tickOnce decides the mode and runs it. The recover here is the outer belt
// for panics outside a source pass; those fail the whole tick
func (s *Service) tickOnce(ctx context.Context, sum *domain.TickSummary) (err error) {
	defer func() {
		if v := recover(); v != nil {
			lines := strings.Split(string(debug.Stack()), "\n")
			stack := strings.Join(lines, "\n\t")
			logger.C(ctx).Error().Interface("panic", v).Msgf("ingest: tick panicked\n%s", stack)
			err = perr.PanicErrf("ingest: tick panicked: %v", v)
		}
	}()

	tctx, cancel := guardrails.WithTick(ctx, s.timeouts())
	defer cancel()

	strat, derr := s.DecideStrategy(tctx)
	if derr != nil {
		sum.Errors = append(sum.Errors, derr.Error())
	}
	sum.Mode = strat.Mode

	logger.C(tctx).Info().Str("mode", strat.Mode).Int("sources", len(strat.Sources)).Msg("ingest: tick start")

	switch strat.Mode {
	case domain.ModeBackfillRecovery:
		s.runBackfill(tctx, strat.Sources, sum)
	default:
		s.runIncremental(tctx, strat.Sources, sum)
	}
	return nil
}

// report delivers the tick summary when a reporter is wired. Delivery is
// best effort; a reporting failure never fails the tick
func (s *Service) report(ctx context.Context, sum domain.TickSummary) {
	if s.Reporter == nil {
		return
	}
	if err := s.Reporter.Report(ctx, sum); err != nil {
		logger.C(ctx).Warn().Err(err).Msg("ingest: run report failed")
	}
}

// RunLoop ticks immediately, then on the configured cadence until ctx ends
func (s *Service) RunLoop(ctx context.Context) error {
	every := s.Cfg.TickEvery
	if every <= 0 {
		every = time.Hour
	}
	logger.C(ctx).Info().Dur("every", every).Msg("ingest: loop started")

	if _, err := s.Tick(ctx); err != nil && ctx.Err() != nil {
		return ctx.Err()
	}

	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.C(ctx).Info().Msg("ingest: loop stopped")
			return ctx.Err()
		case <-t.C:
			if _, err := s.Tick(ctx); err != nil && ctx.Err() != nil {
				return ctx.Err()
			}
		}
	}
}

// Drain ticks back to back until the global backfill completes. Passes that
// embed nothing are spaced out; everything else relies on the per-tick retry
// budget and persisted watermarks
func (s *Service) Drain(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.State.Global().Phase == domain.PhaseCompleted {
			return nil
		}
		sum, err := s.Tick(ctx)
		if err != nil {
			return err
		}
		if s.State.Global().Phase == domain.PhaseCompleted {
			return nil
		}
		if sum.MessagesEmbedded == 0 {
			if serr := sleepCtx(ctx, drainPause); serr != nil {
				return serr
			}
		}
	}
}
