// Package domain defines the core types and ports for the ingest service
package domain

import (
	"time"

	"backscroll/internal/core/chunk"
)

// Message re-exports the raw message shape handed to the chunk processor
type Message = chunk.Message

// Record re-exports the embeddable record produced by the chunk processor
type Record = chunk.Record

// Visibility affects only how access failures are treated, never correctness
type Visibility string

const (
	// VisibilityPublic marks a source the daemon is expected to reach;
	// an access failure marks the source failed for the tick
	VisibilityPublic Visibility = "public"
	// VisibilityRestricted marks a source that may legitimately deny access;
	// failures log a warning and leave the source in progress
	VisibilityRestricted Visibility = "restricted"
)

// Source is one statically configured ingestion source, immutable during a run
type Source struct {
	ID         string     `yaml:"id" validate:"required"`
	Name       string     `yaml:"name" validate:"required"`
	Visibility Visibility `yaml:"visibility" validate:"omitempty,oneof=public restricted"`
}

// Restricted reports whether access failures on s are tolerated
func (s Source) Restricted() bool { return s.Visibility == VisibilityRestricted }

// Per-source backfill status values
const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Global backfill phase values
const (
	PhaseNotStarted     = "not_started"
	PhaseInProgress     = "in_progress"
	PhasePartialFailure = "partial_failure"
	PhaseCompleted      = "completed"
)

// BackfillProgress tracks one source's backfill advance.
// LatestTimestamp is the resumption watermark and only ever moves forward;
// StatusCompleted is terminal and never reverts
type BackfillProgress struct {
	SourceID          string    `json:"source_id"`
	ChannelName       string    `json:"channel_name"`
	MessagesProcessed int       `json:"messages_processed"`
	TotalExtracted    int       `json:"total_extracted"`
	LatestTimestamp   time.Time `json:"latest_timestamp"`
	Status            string    `json:"status"`
	LastUpdated       time.Time `json:"last_updated"`
}

// GlobalBackfillState is the single persisted backfill record.
// Phase is derived from per-source statuses; PhaseCompleted is one-way
type GlobalBackfillState struct {
	Version     int                         `json:"version"`
	Phase       string                      `json:"phase"`
	PerSource   map[string]BackfillProgress `json:"per_source"`
	CreatedAt   time.Time                   `json:"created_at"`
	LastUpdated time.Time                   `json:"last_updated"`
	CompletedAt *time.Time                  `json:"completed_at,omitempty"`
}

// Progress returns the entry for sourceID and whether one exists
func (g GlobalBackfillState) Progress(sourceID string) (BackfillProgress, bool) {
	p, ok := g.PerSource[sourceID]
	return p, ok
}

// SourceCursor is one source's incremental position
type SourceCursor struct {
	LatestTimestamp  time.Time `json:"latest_timestamp"`
	LastCheck        time.Time `json:"last_check"`
	MessagesEmbedded int       `json:"messages_embedded"`
}

// IncrementalState is the single persisted incremental record
type IncrementalState struct {
	Version  int                     `json:"version"`
	LastRun  time.Time               `json:"last_run"`
	Channels map[string]SourceCursor `json:"channels"`
}

// Cursor returns the cursor for sourceID and whether one exists
func (s IncrementalState) Cursor(sourceID string) (SourceCursor, bool) {
	c, ok := s.Channels[sourceID]
	return c, ok
}

// Strategy modes
const (
	ModeBackfillRecovery = "backfill_recovery"
	ModeIncremental      = "incremental"
)

// Strategy is the per-tick work decision
type Strategy struct {
	Mode    string
	Sources []Source
}

// ProgressUpdate is one source's delta applied after a backfill attempt.
// Counters are deltas, LatestTimestamp is advance-only (max with existing)
type ProgressUpdate struct {
	SourceID        string
	ChannelName     string
	ProcessedDelta  int
	ExtractedDelta  int
	LatestTimestamp time.Time
	Status          string
}

// CursorUpdate is one source's delta applied after an incremental check.
// A zero LatestTimestamp leaves the stored watermark untouched
type CursorUpdate struct {
	SourceID        string
	LatestTimestamp time.Time
	EmbeddedDelta   int
	CheckedAt       time.Time
}

// Tick outcome statuses for the run summary
const (
	TickOK       = "ok"
	TickDegraded = "degraded"
	TickFailed   = "failed"
)

// TickSummary is the fire-and-forget report emitted after every tick
type TickSummary struct {
	RunID            string        `json:"run_id"`
	Status           string        `json:"status"`
	Mode             string        `json:"mode"`
	SourcesChecked   int           `json:"sources_checked"`
	MessagesEmbedded int           `json:"messages_embedded"`
	Duration         time.Duration `json:"duration_ns"`
	Errors           []string      `json:"errors,omitempty"`
	StartedAt        time.Time     `json:"started_at"`
}
