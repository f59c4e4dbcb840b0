package service

import (
	"context"
	"time"

	"backscroll/internal/platform/logger"
	"backscroll/internal/services/ingest/domain"
	"backscroll/internal/services/ingest/guardrails"
)

// runBackfill advances every missing source, each bounded by the per-tick
// retry budget. A stuck source never blocks the others; it is retried on
// the next tick from its persisted watermark
func (s *Service) runBackfill(ctx context.Context, sources []domain.Source, sum *domain.TickSummary) {
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			sum.Errors = append(sum.Errors, err.Error())
			return
		}
		srcCtx := logger.WithSource(ctx, src.ID)

		n, err := safely(srcCtx, func() (int, error) { return s.backfillOne(srcCtx, src) })
		sum.SourcesChecked++
		sum.MessagesEmbedded += n
		if err != nil {
			logger.C(srcCtx).Error().Err(err).Str("channel", src.Name).Msg("ingest: backfill source failed")
			sum.Errors = append(sum.Errors, src.ID+": "+err.Error())
		}
	}
}

// backfillOne runs one source through the retry budget and applies the
// access policy: restricted sources tolerate denial with a warning, public
// sources are marked failed (non-terminal, retried next tick)
func (s *Service) backfillOne(ctx context.Context, src domain.Source) (int, error) {
	n, err := s.withRetry(ctx, "ingest: backfill", func(ctx context.Context) (int, error) {
		return s.backfillSource(ctx, src)
	})
	if err == nil || !accessDenied(err) {
		return n, err
	}

	if src.Restricted() {
		logger.C(ctx).Warn().Err(err).Str("channel", src.Name).
			Msg("ingest: restricted source unreachable, leaving progress untouched")
		return n, nil
	}
	if _, serr := s.State.UpdateSourceProgress(domain.ProgressUpdate{
		SourceID:    src.ID,
		ChannelName: src.Name,
		Status:      domain.StatusFailed,
	}); serr != nil {
		logger.C(ctx).Error().Err(serr).Msg("ingest: could not record source failure")
	}
	return n, err
}

// backfillSource advances one source by at most one capped fetch window:
// fetch from the watermark (or the horizon on first contact), process,
// embed, then persist the delta. The watermark only moves when the sink
// confirmed the whole batch, so a partial failure re-fetches the same
// window next attempt instead of skipping records
func (s *Service) backfillSource(ctx context.Context, src domain.Source) (int, error) {
	g := s.State.Global()
	prog, _ := g.Progress(src.ID)

	w := domain.FetchWindow{SourceID: src.ID, Limit: s.fetchCap()}
	if prog.LatestTimestamp.IsZero() {
		w.Oldest = time.Now().UTC().Add(-s.horizon())
		w.Inclusive = true
	} else {
		w.Oldest = prog.LatestTimestamp
	}

	fetchCtx, fetchCancel := guardrails.ForFetch(ctx, s.timeouts())
	msgs, err := s.Source.Fetch(fetchCtx, w)
	fetchCancel()
	if err != nil {
		return 0, err
	}

	// the transport only knows channel ids; records carry the configured name
	for i := range msgs {
		msgs[i].Channel = src.Name
	}

	recs, dropped := s.Proc.Process(msgs)

	var confirmed int
	var embedErr error
	if len(recs) > 0 {
		embedCtx, embedCancel := guardrails.ForEmbed(ctx, s.timeouts())
		confirmed, embedErr = s.Sink.EmbedAndStore(embedCtx, recs)
		embedCancel()
	}

	upd := domain.ProgressUpdate{
		SourceID:       src.ID,
		ChannelName:    src.Name,
		ProcessedDelta: confirmed,
		ExtractedDelta: len(msgs),
		Status:         domain.StatusInProgress,
	}
	if embedErr == nil {
		// the whole window is accounted for (embedded or filtered), so the
		// watermark can jump past filtered messages too
		upd.LatestTimestamp = maxSentAt(msgs)
		if len(msgs) < s.fetchCap() {
			// history drained up to now
			upd.Status = domain.StatusCompleted
		}
	}

	if _, serr := s.State.UpdateSourceProgress(upd); serr != nil {
		// embedded work is safe to redo; the next tick re-fetches this window
		if embedErr == nil {
			return confirmed, serr
		}
		logger.C(ctx).Error().Err(serr).Msg("ingest: progress save failed after sink error")
	}

	if embedErr != nil {
		return confirmed, embedErr
	}

	logger.C(ctx).Debug().
		Str("channel", src.Name).
		Int("fetched", len(msgs)).
		Int("dropped", dropped).
		Int("embedded", confirmed).
		Str("status", upd.Status).
		Msg("ingest: backfill window done")
	return confirmed, nil
}
