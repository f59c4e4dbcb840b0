package module

import (
	"time"

	"backscroll/internal/platform/config"
)

// Options holds configuration options for the ingest coordinator
type Options struct {
	StateDir    string
	SourcesFile string

	TickEvery    time.Duration
	FetchCap     int
	Horizon      time.Duration
	IncrLookback time.Duration

	MaxRetries int
	RetryBase  time.Duration
	RetryCap   time.Duration

	TickTimeout  time.Duration
	FetchTimeout time.Duration
	EmbedTimeout time.Duration

	ChunkSize    int
	ChunkOverlap int
}

// FromConfig reads the ingest options from config with CORE_INGEST_ prefix
func FromConfig(cfg config.Conf) Options {
	ing := cfg.Prefix("CORE_INGEST_")
	return Options{
		StateDir:     ing.MayString("STATE_DIR", "./state"),
		SourcesFile:  ing.MustString("SOURCES_FILE"),
		TickEvery:    ing.MayDuration("TICK_EVERY", time.Hour),
		FetchCap:     ing.MayInt("FETCH_CAP", 500),
		Horizon:      ing.MayDuration("BACKFILL_HORIZON", 8760*time.Hour),
		IncrLookback: ing.MayDuration("INCR_LOOKBACK", 2*time.Hour),
		MaxRetries:   ing.MayInt("RETRIES", 3),
		RetryBase:    ing.MayDuration("RETRY_BASE", 500*time.Millisecond),
		RetryCap:     ing.MayDuration("RETRY_CAP", 30*time.Second),
		TickTimeout:  ing.MayDuration("TICK_TIMEOUT", 0),
		FetchTimeout: ing.MayDuration("FETCH_TIMEOUT", time.Minute),
		EmbedTimeout: ing.MayDuration("EMBED_TIMEOUT", 2*time.Minute),
		ChunkSize:    ing.MayInt("CHUNK_SIZE", 1000),
		ChunkOverlap: ing.MayInt("CHUNK_OVERLAP", 100),
	}
}
