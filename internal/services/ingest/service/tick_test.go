package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	perr "backscroll/internal/platform/errors"
	"backscroll/internal/services/ingest/domain"
)

func TestTick_RefusedWhileRunning(t *testing.T) {
	srcs := oneSource()
	st := mustState(t, srcs)
	svc := New(srcs, domain.Ports{Source: &fakeSource{}, Processor: passProc{}, Sink: &fakeSink{}, State: st}, fastCfg())

	svc.running.Store(true)
	_, err := svc.Tick(context.Background())
	if !perr.IsCode(err, perr.ErrorCodeUnavailable) {
		t.Fatalf("err = %v, want unavailable while a tick is running", err)
	}

	svc.running.Store(false)
	if _, err := svc.Tick(context.Background()); err != nil {
		t.Fatalf("tick after release: %v", err)
	}
}

func TestTick_SourcePanicDegradesButContinues(t *testing.T) {
	srcs := twoSources()
	st := mustState(t, srcs)
	newest := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	src := &fakeSource{script: map[string][]fetchResp{
		"C01": {{msgs: msgsEndingAt("C01", 1, newest)}},
		"C02": {{msgs: msgsEndingAt("C02", 2, newest)}},
	}}
	sink := &fakeSink{}
	svc := New(srcs, domain.Ports{Source: src, Processor: &panicOnceProc{}, Sink: sink, State: st}, fastCfg())

	sum, err := svc.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if sum.Status != domain.TickDegraded || len(sum.Errors) != 1 {
		t.Fatalf("summary = %+v, want degraded with one error", sum)
	}
	if !strings.HasPrefix(sum.Errors[0], "C01: ") || !strings.Contains(sum.Errors[0], "panic") {
		t.Fatalf("error = %q, want the C01 panic recorded", sum.Errors[0])
	}
	// the second source still ran
	if sum.MessagesEmbedded != 2 || sum.SourcesChecked != 2 {
		t.Fatalf("embedded %d checked %d, want 2 and 2", sum.MessagesEmbedded, sum.SourcesChecked)
	}
	if p, _ := st.Global().Progress("C02"); p.Status != domain.StatusCompleted {
		t.Fatalf("C02 status = %q, want completed", p.Status)
	}
}

// panicState blows up outside any source pass
type panicState struct {
	domain.StatePort
}

func (panicState) Global() domain.GlobalBackfillState { panic("state mmap torn") }

func TestTick_PanicOutsideSourcePassFailsTick(t *testing.T) {
	srcs := oneSource()
	svc := New(srcs, domain.Ports{
		Source:    &fakeSource{},
		Processor: passProc{},
		Sink:      &fakeSink{},
		State:     panicState{StatePort: mustState(t, srcs)},
	}, fastCfg())

	sum, err := svc.Tick(context.Background())
	if !perr.IsCode(err, perr.ErrorCodePanic) {
		t.Fatalf("err = %v, want panic code", err)
	}
	if sum.Status != domain.TickFailed || len(sum.Errors) == 0 {
		t.Fatalf("summary = %+v, want failed with the panic recorded", sum)
	}

	// the guard must be released even when the tick blew up
	_, err = svc.Tick(context.Background())
	if !perr.IsCode(err, perr.ErrorCodePanic) {
		t.Fatalf("second tick err = %v, want panic again rather than a refusal", err)
	}
}

func TestTick_CanceledContextDegrades(t *testing.T) {
	srcs := oneSource()
	st := mustState(t, srcs)
	src := &fakeSource{}
	svc := New(srcs, domain.Ports{Source: src, Processor: passProc{}, Sink: &fakeSink{}, State: st}, fastCfg())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sum, err := svc.Tick(ctx)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if sum.Status != domain.TickDegraded {
		t.Fatalf("status = %q, want degraded", sum.Status)
	}
	if src.windowCount() != 0 {
		t.Fatalf("fetches = %d, want 0 on a dead context", src.windowCount())
	}
}

func TestTick_ReporterGetsFinalSummary(t *testing.T) {
	srcs := oneSource()
	st := mustState(t, srcs)
	newest := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	src := &fakeSource{script: map[string][]fetchResp{
		"C01": {{msgs: msgsEndingAt("C01", 2, newest)}},
	}}
	rep := &fakeReporter{err: perr.Unavailablef("webhook down")}
	svc := New(srcs, domain.Ports{
		Source:    src,
		Processor: passProc{},
		Sink:      &fakeSink{},
		State:     st,
		Reporter:  rep,
	}, fastCfg())

	// a failing reporter never fails the tick
	if _, err := svc.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if rep.count() != 1 {
		t.Fatalf("reports = %d, want 1", rep.count())
	}
	got := rep.last()
	if got.RunID == "" {
		t.Fatal("run id missing from report")
	}
	if got.Status != domain.TickOK || got.Mode != domain.ModeBackfillRecovery {
		t.Fatalf("report = %+v, want final ok backfill summary", got)
	}
	if got.MessagesEmbedded != 2 || got.Duration < 0 {
		t.Fatalf("report = %+v, want counts and duration filled in", got)
	}
}

func TestDrain_RunsToCompletion(t *testing.T) {
	srcs := oneSource()
	st := mustState(t, srcs)
	t1 := time.Now().UTC().Add(-2 * time.Hour).Truncate(time.Second)
	t2 := t1.Add(time.Hour)
	src := &fakeSource{script: map[string][]fetchResp{
		"C01": {
			{msgs: msgsEndingAt("C01", 2, t1)},
			{msgs: msgsEndingAt("C01", 1, t2)},
		},
	}}
	sink := &fakeSink{}

	cfg := fastCfg()
	cfg.FetchCap = 2
	svc := New(srcs, domain.Ports{Source: src, Processor: passProc{}, Sink: sink, State: st}, cfg)

	if err := svc.Drain(context.Background()); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if st.Global().Phase != domain.PhaseCompleted {
		t.Fatalf("phase = %q, want completed", st.Global().Phase)
	}
	if len(sink.stored) != 3 {
		t.Fatalf("stored = %d, want all 3", len(sink.stored))
	}
	if src.windowCount() != 2 {
		t.Fatalf("ticks fetched %d windows, want 2", src.windowCount())
	}
}

func TestDrain_CanceledContext(t *testing.T) {
	srcs := oneSource()
	st := mustState(t, srcs)
	src := &fakeSource{}
	svc := New(srcs, domain.Ports{Source: src, Processor: passProc{}, Sink: &fakeSink{}, State: st}, fastCfg())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := svc.Drain(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if src.windowCount() != 0 {
		t.Fatalf("fetches = %d, want 0", src.windowCount())
	}
}

func TestRunLoop_TicksOnCadenceUntilDone(t *testing.T) {
	srcs := oneSource()
	st := mustState(t, srcs)
	completeAll(t, st, srcs, time.Now().UTC().Add(-10*time.Minute))

	rep := &fakeReporter{}
	cfg := fastCfg()
	cfg.TickEvery = 5 * time.Millisecond
	svc := New(srcs, domain.Ports{
		Source:    &fakeSource{},
		Processor: passProc{},
		Sink:      &fakeSink{},
		State:     st,
		Reporter:  rep,
	}, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	err := svc.RunLoop(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	// one immediate tick plus at least one cadence firing
	if rep.count() < 2 {
		t.Fatalf("ticks = %d, want at least 2", rep.count())
	}
}
