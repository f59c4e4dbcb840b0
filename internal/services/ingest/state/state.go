// Package state persists the coordinator's backfill and incremental progress
// as two independent JSON files under a single directory.
//
// Loads never hard-fail: a missing or corrupt file degrades to the zero-value
// default ("not started") so the daemon can always boot. Saves are atomic
// (write .part, fsync, rename) so a crash mid-write never leaves a torn file
package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	perr "backscroll/internal/platform/errors"
	"backscroll/internal/platform/logger"
	ptime "backscroll/internal/platform/time"
	"backscroll/internal/services/ingest/domain"
)

// FormatVersion stamps both files so a future layout change can migrate
const FormatVersion = 1

const (
	backfillFile    = "backfill_state.json"
	incrementalFile = "incremental_state.json"
)

// Store owns the state files. The in-memory copy is authoritative for the
// process lifetime; every mutation persists before returning
type Store struct {
	mu         sync.Mutex
	dir        string
	configured []domain.Source

	global domain.GlobalBackfillState
	incr   domain.IncrementalState
}

// New loads existing state from dir, degrading to defaults when files are
// missing or unreadable. The configured source list drives the derived
// global phase and must match the coordinator's view
func New(dir string, configured []domain.Source) (*Store, error) {
	if dir == "" {
		return nil, perr.InvalidArgf("state: dir required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodePersistence, "state: create dir")
	}
	s := &Store{dir: dir, configured: configured}
	s.global = s.loadGlobal()
	s.incr = s.loadIncremental()
	return s, nil
}

// Global returns a copy of the current backfill state
func (s *Store) Global() domain.GlobalBackfillState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyGlobal(s.global)
}

// Incremental returns a copy of the current incremental state
func (s *Store) Incremental() domain.IncrementalState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyIncremental(s.incr)
}

// UpdateSourceProgress applies one source's backfill delta, recomputes the
// derived global phase, and persists. Watermarks only advance; a completed
// source never reverts
func (s *Store) UpdateSourceProgress(u domain.ProgressUpdate) (domain.GlobalBackfillState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	p := s.global.PerSource[u.SourceID]
	p.SourceID = u.SourceID
	if u.ChannelName != "" {
		p.ChannelName = u.ChannelName
	}
	p.MessagesProcessed += u.ProcessedDelta
	p.TotalExtracted += u.ExtractedDelta
	p.LatestTimestamp = ptime.Max(p.LatestTimestamp, u.LatestTimestamp)
	if p.Status != domain.StatusCompleted && u.Status != "" {
		p.Status = u.Status
	}
	if p.Status == "" {
		p.Status = domain.StatusInProgress
	}
	p.LastUpdated = now
	s.global.PerSource[u.SourceID] = p

	s.global.Phase = s.derivePhase()
	s.global.LastUpdated = now
	if s.global.Phase == domain.PhaseCompleted && s.global.CompletedAt == nil {
		s.global.CompletedAt = ptime.Ptr(now)
	}

	err := s.saveGlobalLocked()
	return copyGlobal(s.global), err
}

// CompleteGlobal flips the global phase to completed and persists.
// The transition is one-way; calling it again is a no-op
func (s *Store) CompleteGlobal() (domain.GlobalBackfillState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.global.Phase == domain.PhaseCompleted {
		return copyGlobal(s.global), nil
	}
	now := time.Now().UTC()
	s.global.Phase = domain.PhaseCompleted
	s.global.LastUpdated = now
	if s.global.CompletedAt == nil {
		s.global.CompletedAt = ptime.Ptr(now)
	}
	err := s.saveGlobalLocked()
	return copyGlobal(s.global), err
}

// UpdateCursor applies one source's incremental delta and persists.
// A zero LatestTimestamp leaves the stored watermark untouched
func (s *Store) UpdateCursor(u domain.CursorUpdate) (domain.IncrementalState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.incr.Channels[u.SourceID]
	c.LatestTimestamp = ptime.Max(c.LatestTimestamp, u.LatestTimestamp)
	c.MessagesEmbedded += u.EmbeddedDelta
	if !u.CheckedAt.IsZero() {
		c.LastCheck = u.CheckedAt.UTC()
	}
	s.incr.Channels[u.SourceID] = c

	err := s.saveIncrementalLocked()
	return copyIncremental(s.incr), err
}

// TouchCursor bumps only last_check for a source that had nothing new
func (s *Store) TouchCursor(sourceID string, checkedAt time.Time) (domain.IncrementalState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.incr.Channels[sourceID]
	c.LastCheck = checkedAt.UTC()
	s.incr.Channels[sourceID] = c

	err := s.saveIncrementalLocked()
	return copyIncremental(s.incr), err
}

// MarkRun stamps last_run after an incremental tick and persists
func (s *Store) MarkRun(at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.incr.LastRun = at.UTC()
	return s.saveIncrementalLocked()
}

// derivePhase recomputes the global phase from per-source statuses.
// Completed is one-way: once flipped it never reverts, even if the
// configured source list later grows
func (s *Store) derivePhase() string {
	if s.global.Phase == domain.PhaseCompleted {
		return domain.PhaseCompleted
	}
	if len(s.global.PerSource) == 0 {
		return domain.PhaseNotStarted
	}
	done := 0
	failed := false
	for _, src := range s.configured {
		p, ok := s.global.PerSource[src.ID]
		if !ok {
			continue
		}
		switch p.Status {
		case domain.StatusCompleted:
			done++
		case domain.StatusFailed:
			failed = true
		}
	}
	if len(s.configured) > 0 && done == len(s.configured) {
		return domain.PhaseCompleted
	}
	if failed {
		return domain.PhasePartialFailure
	}
	return domain.PhaseInProgress
}

func (s *Store) loadGlobal() domain.GlobalBackfillState {
	def := domain.GlobalBackfillState{
		Version:   FormatVersion,
		Phase:     domain.PhaseNotStarted,
		PerSource: map[string]domain.BackfillProgress{},
		CreatedAt: time.Now().UTC(),
	}
	var g domain.GlobalBackfillState
	if !s.loadJSON(backfillFile, &g) || g.Phase == "" {
		return def
	}
	if g.PerSource == nil {
		g.PerSource = map[string]domain.BackfillProgress{}
	}
	g.Version = FormatVersion
	return g
}

func (s *Store) loadIncremental() domain.IncrementalState {
	def := domain.IncrementalState{
		Version:  FormatVersion,
		Channels: map[string]domain.SourceCursor{},
	}
	var in domain.IncrementalState
	if !s.loadJSON(incrementalFile, &in) {
		return def
	}
	if in.Channels == nil {
		in.Channels = map[string]domain.SourceCursor{}
	}
	in.Version = FormatVersion
	return in
}

// loadJSON reads one state file into v. Missing or corrupt files return
// false so the caller can fall back to defaults
func (s *Store) loadJSON(name string, v any) bool {
	path := filepath.Join(s.dir, name)
	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Get().Warn().Err(err).Str("file", path).Msg("state: unreadable, starting fresh")
		}
		return false
	}
	if err := json.Unmarshal(raw, v); err != nil {
		logger.Get().Warn().Err(err).Str("file", path).Msg("state: corrupt, starting fresh")
		return false
	}
	return true
}

func (s *Store) saveGlobalLocked() error {
	s.global.Version = FormatVersion
	return s.saveJSON(backfillFile, s.global)
}

func (s *Store) saveIncrementalLocked() error {
	s.incr.Version = FormatVersion
	return s.saveJSON(incrementalFile, s.incr)
}

// saveJSON writes one state file atomically: .part, fsync, rename
func (s *Store) saveJSON(name string, v any) error {
	path := filepath.Join(s.dir, name)
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return perr.Wrap(err, perr.ErrorCodePersistence, "state: marshal "+name)
	}

	tmp := path + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return perr.Wrap(err, perr.ErrorCodePersistence, "state: create "+name)
	}
	if _, err := f.Write(raw); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return perr.Wrap(err, perr.ErrorCodePersistence, "state: write "+name)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return perr.Wrap(err, perr.ErrorCodePersistence, "state: sync "+name)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return perr.Wrap(err, perr.ErrorCodePersistence, "state: close "+name)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return perr.Wrap(err, perr.ErrorCodePersistence, "state: rename "+name)
	}
	return nil
}

func copyGlobal(g domain.GlobalBackfillState) domain.GlobalBackfillState {
	out := g
	out.PerSource = make(map[string]domain.BackfillProgress, len(g.PerSource))
	for k, v := range g.PerSource {
		out.PerSource[k] = v
	}
	if g.CompletedAt != nil {
		t := *g.CompletedAt
		out.CompletedAt = &t
	}
	return out
}

func copyIncremental(in domain.IncrementalState) domain.IncrementalState {
	out := in
	out.Channels = make(map[string]domain.SourceCursor, len(in.Channels))
	for k, v := range in.Channels {
		out.Channels[k] = v
	}
	return out
}
