// Package sink composes an embedder and a vector index into the ingest sink
package sink

import (
	"context"

	perr "backscroll/internal/platform/errors"
	"backscroll/internal/services/ingest/domain"
)

// Embedder turns record texts into vectors.
// Batch is the largest slice one EmbedTexts call accepts
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	Batch() int
}

// Index persists vectors keyed by record identity
type Index interface {
	Upsert(ctx context.Context, recs []domain.Record, vecs [][]float32) (int, error)
	Count(ctx context.Context) (uint64, error)
	Collection() string
	Ping(ctx context.Context) error
}

// Sink implements domain.SinkPort over an Embedder and an Index
type Sink struct {
	embed Embedder
	index Index
}

var _ domain.SinkPort = (*Sink)(nil)

// New constructs the sink
func New(embed Embedder, index Index) *Sink {
	if embed == nil {
		panic("sink.New requires a non nil Embedder")
	}
	if index == nil {
		panic("sink.New requires a non nil Index")
	}
	return &Sink{embed: embed, index: index}
}

// EmbedAndStore embeds and upserts records in embedder sized batches.
// Confirmed covers records that both embedded and stored; a mid stream
// failure returns what was confirmed so far plus the error
func (s *Sink) EmbedAndStore(ctx context.Context, recs []domain.Record) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	batch := s.embed.Batch()
	if batch <= 0 {
		batch = 64
	}

	confirmed := 0
	for start := 0; start < len(recs); start += batch {
		if err := ctx.Err(); err != nil {
			return confirmed, err
		}
		end := min(start+batch, len(recs))
		part := recs[start:end]

		texts := make([]string, len(part))
		for i := range part {
			texts[i] = part[i].Text
		}
		vecs, err := s.embed.EmbedTexts(ctx, texts)
		if err != nil {
			return confirmed, err
		}
		if len(vecs) != len(part) {
			return confirmed, perr.Internalf("sink: embedder returned %d vectors for %d texts", len(vecs), len(part))
		}

		n, err := s.index.Upsert(ctx, part, vecs)
		confirmed += n
		if err != nil {
			return confirmed, err
		}
	}
	return confirmed, nil
}

// Stats reports the collection name and its current vector count
func (s *Sink) Stats(ctx context.Context) (domain.SinkStats, error) {
	n, err := s.index.Count(ctx)
	if err != nil {
		return domain.SinkStats{}, err
	}
	return domain.SinkStats{Collection: s.index.Collection(), Vectors: n}, nil
}

// Ping reports index reachability
func (s *Sink) Ping(ctx context.Context) error { return s.index.Ping(ctx) }
