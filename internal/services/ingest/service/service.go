// Package service implements the ingestion state coordinator
package service

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	perr "backscroll/internal/platform/errors"
	"backscroll/internal/platform/logger"
	ptime "backscroll/internal/platform/time"
	"backscroll/internal/services/ingest/domain"
	"backscroll/internal/services/ingest/guardrails"
)

// Config holds configuration options for the coordinator
type Config struct {
	// Cadence & budgets
	TickEvery    time.Duration // loop cadence; <=0 -> 1h
	FetchCap     int           // max raw messages per source per tick; <=0 -> 500
	Horizon      time.Duration // backfill reach when no watermark exists; <=0 -> 8760h
	IncrLookback time.Duration // incremental window floor; <=0 -> 2h

	// Per-source retry budget within one backfill tick.
	// Incremental never retries within a tick, the cadence recovers naturally
	MaxRetries int           // attempts per source; <=0 -> 3
	RetryBase  time.Duration // base backoff; <=0 -> 500ms
	RetryCap   time.Duration // backoff ceiling; <=0 -> 30s

	// Timeouts applied via guardrails
	TickTimeout  time.Duration
	FetchTimeout time.Duration
	EmbedTimeout time.Duration
}

// Service drives backfill and incremental ingestion over the configured
// sources, one tick at a time. Sources are processed sequentially within a
// tick; the upstream rate limit is global so concurrency buys nothing
type Service struct {
	Sources  []domain.Source
	Source   domain.SourcePort
	Proc     domain.ProcessorPort
	Sink     domain.SinkPort
	State    domain.StatePort
	Reporter domain.ReporterPort // optional
	Cfg      Config

	// running guards against overlapping ticks; an overdue firing is
	// skipped, never queued
	running atomic.Bool

	lastMu  sync.Mutex
	last    domain.TickSummary
	hasLast bool
}

// LastSummary returns the most recent tick summary, if any tick has run
func (s *Service) LastSummary() (domain.TickSummary, bool) {
	s.lastMu.Lock()
	defer s.lastMu.Unlock()
	return s.last, s.hasLast
}

// New constructs the coordinator
func New(sources []domain.Source, ports domain.Ports, cfg Config) *Service {
	if ports.Source == nil {
		panic("ingest.Service requires a non nil SourcePort")
	}
	if ports.Processor == nil {
		panic("ingest.Service requires a non nil ProcessorPort")
	}
	if ports.Sink == nil {
		panic("ingest.Service requires a non nil SinkPort")
	}
	if ports.State == nil {
		panic("ingest.Service requires a non nil StatePort")
	}
	return &Service{
		Sources:  sources,
		Source:   ports.Source,
		Proc:     ports.Processor,
		Sink:     ports.Sink,
		State:    ports.State,
		Reporter: ports.Reporter,
		Cfg:      cfg,
	}
}

func (s *Service) fetchCap() int {
	if s.Cfg.FetchCap <= 0 {
		return 500
	}
	return s.Cfg.FetchCap
}

func (s *Service) horizon() time.Duration {
	if s.Cfg.Horizon <= 0 {
		return 8760 * time.Hour
	}
	return s.Cfg.Horizon
}

func (s *Service) lookback() time.Duration {
	if s.Cfg.IncrLookback <= 0 {
		return 2 * time.Hour
	}
	return s.Cfg.IncrLookback
}

func (s *Service) timeouts() guardrails.Timeouts {
	return guardrails.Timeouts{
		Tick:  s.Cfg.TickTimeout,
		Fetch: s.Cfg.FetchTimeout,
		Embed: s.Cfg.EmbedTimeout,
	}
}

// withRetry runs fn up to the configured attempt budget, backing off between
// retryable failures. Partial counts accumulate across attempts since
// persisted progress survives a retry. A retry-after hint from the upstream
// stretches the backoff when it is longer than the computed jitter
func (s *Service) withRetry(ctx context.Context, op string, fn func(context.Context) (int, error)) (int, error) {
	attempts := max(s.Cfg.MaxRetries, 1)
	base := s.Cfg.RetryBase
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	ceil := s.Cfg.RetryCap
	if ceil <= 0 {
		ceil = 30 * time.Second
	}

	var total int
	var last error
	for i := 0; i < attempts; i++ {
		n, err := fn(ctx)
		total += n
		if err == nil {
			return total, nil
		}
		last = err

		if !perr.Retryable(err) {
			return total, last
		}
		if i == attempts-1 {
			break
		}

		// Exponential backoff with jitter, capped
		d := min(base<<i, ceil)
		j := d/2 + time.Duration(rand.Int63n(int64(d/2)))
		if hint, ok := perr.RetryAfter(err); ok && hint > j {
			j = min(hint, ceil)
		}
		logger.C(ctx).Warn().Err(err).Dur("backoff", j).Int("attempt", i+1).Msg(op + ": retrying")
		if se := sleepCtx(ctx, j); se != nil {
			return total, se
		}
	}
	return total, last
}

// maxSentAt returns the newest timestamp seen across a fetched batch
func maxSentAt(msgs []domain.Message) time.Time {
	var m time.Time
	for i := range msgs {
		m = ptime.Max(m, msgs[i].SentAt)
	}
	return m
}

// accessDenied reports whether err is a source access failure rather than a
// transient transport problem
func accessDenied(err error) bool {
	switch perr.CodeOf(err) {
	case perr.ErrorCodeForbidden, perr.ErrorCodeNotFound:
		return true
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
