package domain

import (
	"context"
	"time"
)

// RunnerPort is the public port exposed by the module
type RunnerPort interface {
	// Tick runs one full coordinator pass and returns its summary
	Tick(ctx context.Context) (TickSummary, error)
	// RunLoop ticks at the configured cadence until ctx is done
	RunLoop(ctx context.Context) error
	// Drain ticks back to back until the global backfill completes
	Drain(ctx context.Context) error
}

// FetchWindow bounds one history fetch against a source
type FetchWindow struct {
	SourceID string
	// Oldest bounds the window; zero means the source's full retention
	Oldest time.Time
	// Inclusive includes messages exactly at Oldest (backfill resume);
	// incremental fetches strictly newer
	Inclusive bool
	// Limit caps the number of raw messages returned
	Limit int
}

// SourcePort fetches raw history from the upstream source.
// Rate limiting and access failures surface as coded errors
// (TooManyRequests with a retry-after hint, Forbidden, NotFound)
type SourcePort interface {
	Fetch(ctx context.Context, w FetchWindow) ([]Message, error)
	// Probe verifies credentials and reachability for readiness checks
	Probe(ctx context.Context) error
}

// ProcessorPort turns raw messages into embeddable records.
// Returns records plus the count of messages dropped by filtering
type ProcessorPort interface {
	Process(msgs []Message) ([]Record, int)
}

// SinkStats is a point-in-time view of the vector index
type SinkStats struct {
	Collection string `json:"collection"`
	Vectors    uint64 `json:"vectors"`
}

// SinkPort embeds records and upserts them into the vector index.
// EmbedAndStore returns the confirmed count: records both embedded and
// upserted. On partial failure it returns what was confirmed plus the error
type SinkPort interface {
	EmbedAndStore(ctx context.Context, recs []Record) (int, error)
	Stats(ctx context.Context) (SinkStats, error)
	Ping(ctx context.Context) error
}

// StatePort is the durable ingestion state store.
// Loads never hard-fail (corrupt or missing stores degrade to defaults);
// writes are atomic and errors are returned to the caller
type StatePort interface {
	// Global returns the current backfill state
	Global() GlobalBackfillState
	// Incremental returns the current incremental state
	Incremental() IncrementalState

	// UpdateSourceProgress applies one source's backfill delta, recomputes
	// the derived global phase, and persists
	UpdateSourceProgress(u ProgressUpdate) (GlobalBackfillState, error)
	// CompleteGlobal flips the global phase to completed (one-way) and persists
	CompleteGlobal() (GlobalBackfillState, error)

	// UpdateCursor applies one source's incremental delta and persists
	UpdateCursor(u CursorUpdate) (IncrementalState, error)
	// TouchCursor bumps only last_check for a source that had nothing new
	TouchCursor(sourceID string, checkedAt time.Time) (IncrementalState, error)
	// MarkRun stamps last_run after an incremental tick and persists
	MarkRun(at time.Time) error
}

// ReporterPort delivers tick summaries. Failures must never fail the tick;
// callers log and drop the error
type ReporterPort interface {
	Report(ctx context.Context, s TickSummary) error
}

// Ports are the dependencies injected into the ingest module
type Ports struct {
	Source    SourcePort
	Processor ProcessorPort
	Sink      SinkPort
	State     StatePort
	Reporter  ReporterPort
}
