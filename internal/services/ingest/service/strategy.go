package service

import (
	"context"

	"backscroll/internal/platform/logger"
	"backscroll/internal/services/ingest/domain"
)

// DecideStrategy evaluates the per-tick work decision: a global completion
// flag short-circuit, then per-source reconciliation. The fallback exists
// because a crash can leave every source completed while the global flag
// never persisted; reconverging here needs no manual intervention.
//
// When the reconciliation path flips the flag and the persist fails, the
// returned strategy is still valid; the error is reported so the tick can
// degrade, and the flip retries on a later tick
func (s *Service) DecideStrategy(ctx context.Context) (domain.Strategy, error) {
	g := s.State.Global()
	if g.Phase == domain.PhaseCompleted {
		return domain.Strategy{Mode: domain.ModeIncremental, Sources: s.Sources}, nil
	}

	var missing []domain.Source
	for _, src := range s.Sources {
		p, ok := g.Progress(src.ID)
		if !ok || p.Status != domain.StatusCompleted {
			missing = append(missing, src)
		}
	}
	if len(missing) > 0 {
		return domain.Strategy{Mode: domain.ModeBackfillRecovery, Sources: missing}, nil
	}

	// every source finished but the flag never flipped; converge now
	_, err := s.State.CompleteGlobal()
	if err == nil {
		logger.C(ctx).Info().Msg("ingest: backfill complete, switching to incremental")
	}
	return domain.Strategy{Mode: domain.ModeIncremental, Sources: s.Sources}, err
}
