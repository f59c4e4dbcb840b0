// Package openai adapts langchaingo's OpenAI embeddings client to the
// ingest sink
package openai

import (
	"context"
	"errors"
	"strings"

	"github.com/tmc/langchaingo/embeddings"
	lcopenai "github.com/tmc/langchaingo/llms/openai"

	"backscroll/internal/modkit"
	"backscroll/internal/platform/config"
	perr "backscroll/internal/platform/errors"
)

const (
	defaultModel = "text-embedding-3-small"
	defaultDim   = 1536
	defaultBatch = 64
)

// Options configures the Embedder
type Options struct {
	APIKey string

	// BaseURL overrides the OpenAI endpoint, for proxies and tests
	BaseURL string

	Model string
	Dim   int
	Batch int
}

// Embedder produces OpenAI embeddings sized for the vector index
type Embedder struct {
	embed *embeddings.EmbedderImpl
	model string
	dim   int
	batch int
}

// New constructs the embedder from config under EMBED_OPENAI_
func New(deps modkit.Deps) *Embedder {
	return NewClient(FromConfig(deps.Cfg))
}

// FromConfig reads the embedding options with EMBED_OPENAI_ prefix
func FromConfig(cfg config.Conf) Options {
	em := cfg.Prefix("EMBED_OPENAI_")
	return Options{
		APIKey:  em.MustString("API_KEY"),
		BaseURL: em.MayString("BASE_URL", ""),
		Model:   em.MayString("MODEL", defaultModel),
		Dim:     em.MayInt("DIM", defaultDim),
		Batch:   em.MayInt("BATCH", defaultBatch),
	}
}

// NewClient creates an Embedder with sane defaults. Construction panics on
// a bad client setup; nothing dials until the first embed call
func NewClient(o Options) *Embedder {
	if o.Model == "" {
		o.Model = defaultModel
	}
	if o.Dim <= 0 {
		o.Dim = defaultDim
	}
	if o.Batch <= 0 {
		o.Batch = defaultBatch
	}

	copts := []lcopenai.Option{
		lcopenai.WithToken(o.APIKey),
		lcopenai.WithEmbeddingModel(o.Model),
	}
	if o.BaseURL != "" {
		copts = append(copts, lcopenai.WithBaseURL(o.BaseURL))
	}
	client, err := lcopenai.New(copts...)
	if err != nil {
		panic(perr.Wrapf(err, perr.ErrorCodeUnknown, "embed: openai client"))
	}

	embed, err := embeddings.NewEmbedder(client,
		embeddings.WithStripNewLines(true),
		embeddings.WithBatchSize(o.Batch),
	)
	if err != nil {
		panic(perr.Wrapf(err, perr.ErrorCodeUnknown, "embed: embedder setup"))
	}

	return &Embedder{embed: embed, model: o.Model, dim: o.Dim, batch: o.Batch}
}

// EmbedTexts embeds one batch of texts, verifying the vector width against
// the configured dimension before anything reaches the index
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vecs, err := e.embed.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, mapErr(err, e.model)
	}
	for i := range vecs {
		if len(vecs[i]) != e.dim {
			return nil, perr.Internalf("embed: %s returned %d dims, index expects %d", e.model, len(vecs[i]), e.dim)
		}
	}
	return vecs, nil
}

// Batch returns how many texts the sink should feed per call
func (e *Embedder) Batch() int { return e.batch }

// Dim returns the vector width this embedder is configured for
func (e *Embedder) Dim() int { return e.dim }

// mapErr classifies embedding failures; langchaingo surfaces the upstream
// status only inside the message string
func mapErr(err error, model string) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "429"), strings.Contains(strings.ToLower(msg), "rate limit"):
		return perr.Wrapf(err, perr.ErrorCodeTooManyRequests, "embed: %s rate limited", model)
	case strings.Contains(msg, "401"), strings.Contains(msg, "403"):
		return perr.Wrapf(err, perr.ErrorCodeForbidden, "embed: %s rejected credentials", model)
	default:
		return perr.Wrapf(err, perr.ErrorCodeUnavailable, "embed: %s call failed", model)
	}
}
