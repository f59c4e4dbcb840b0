package service

import (
	"context"
	"time"

	perr "backscroll/internal/platform/errors"
	"backscroll/internal/platform/logger"
	ptime "backscroll/internal/platform/time"
	"backscroll/internal/services/ingest/domain"
	"backscroll/internal/services/ingest/guardrails"
)

// runIncremental checks every source once, without within-tick retries.
// The hourly cadence is the retry mechanism here; a rate limited source is
// simply skipped and picked up clean on the next tick
func (s *Service) runIncremental(ctx context.Context, sources []domain.Source, sum *domain.TickSummary) {
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			sum.Errors = append(sum.Errors, err.Error())
			return
		}
		srcCtx := logger.WithSource(ctx, src.ID)

		n, err := safely(srcCtx, func() (int, error) { return s.incrementalSource(srcCtx, src) })
		sum.SourcesChecked++
		sum.MessagesEmbedded += n
		if err == nil {
			continue
		}
		switch {
		case perr.IsCode(err, perr.ErrorCodeTooManyRequests):
			logger.C(srcCtx).Warn().Err(err).Str("channel", src.Name).
				Msg("ingest: rate limited, deferring source to next tick")
		case accessDenied(err) && src.Restricted():
			logger.C(srcCtx).Warn().Err(err).Str("channel", src.Name).
				Msg("ingest: restricted source unreachable, skipping")
		default:
			logger.C(srcCtx).Error().Err(err).Str("channel", src.Name).Msg("ingest: incremental source failed")
			sum.Errors = append(sum.Errors, src.ID+": "+err.Error())
		}
	}

	if err := s.State.MarkRun(time.Now().UTC()); err != nil {
		logger.C(ctx).Error().Err(err).Msg("ingest: could not record run time")
		sum.Errors = append(sum.Errors, err.Error())
	}
}

// incrementalSource fetches everything newer than the cursor, floored by the
// lookback window so a long outage cannot balloon one fetch. A cursor that
// has never been written is seeded from the backfill watermark, closing the
// gap between the two phases
func (s *Service) incrementalSource(ctx context.Context, src domain.Source) (int, error) {
	cur, ok := s.State.Incremental().Cursor(src.ID)
	watermark := cur.LatestTimestamp
	if !ok || watermark.IsZero() {
		if p, ok := s.State.Global().Progress(src.ID); ok {
			watermark = p.LatestTimestamp
		}
	}

	now := time.Now().UTC()
	w := domain.FetchWindow{
		SourceID: src.ID,
		Oldest:   ptime.Max(watermark, now.Add(-s.lookback())),
		Limit:    s.fetchCap(),
	}

	fetchCtx, fetchCancel := guardrails.ForFetch(ctx, s.timeouts())
	msgs, err := s.Source.Fetch(fetchCtx, w)
	fetchCancel()
	if err != nil {
		return 0, err
	}

	for i := range msgs {
		msgs[i].Channel = src.Name
	}

	recs, dropped := s.Proc.Process(msgs)
	if len(recs) == 0 {
		// nothing qualifying; only the check time moves so the lookback
		// floor can re-offer these messages if they later matter
		if _, terr := s.State.TouchCursor(src.ID, now); terr != nil {
			return 0, terr
		}
		logger.C(ctx).Debug().Str("channel", src.Name).Int("fetched", len(msgs)).
			Int("dropped", dropped).Msg("ingest: nothing new")
		return 0, nil
	}

	embedCtx, embedCancel := guardrails.ForEmbed(ctx, s.timeouts())
	confirmed, embedErr := s.Sink.EmbedAndStore(embedCtx, recs)
	embedCancel()

	upd := domain.CursorUpdate{
		SourceID:      src.ID,
		EmbeddedDelta: confirmed,
		CheckedAt:     now,
	}
	if embedErr == nil {
		upd.LatestTimestamp = maxSentAt(msgs)
	}

	if _, serr := s.State.UpdateCursor(upd); serr != nil {
		if embedErr == nil {
			return confirmed, serr
		}
		logger.C(ctx).Error().Err(serr).Msg("ingest: cursor save failed after sink error")
	}

	if embedErr != nil {
		return confirmed, embedErr
	}

	logger.C(ctx).Debug().
		Str("channel", src.Name).
		Int("fetched", len(msgs)).
		Int("dropped", dropped).
		Int("embedded", confirmed).
		Msg("ingest: incremental window done")
	return confirmed, nil
}
