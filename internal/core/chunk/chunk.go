// Package chunk turns raw source messages into embeddable records.
// Pipeline per message
// 1 Drop non-substantive messages (bot traffic, system subtypes, blank text)
// 2 Clean the text (control strip, NFKC, width fold, whitespace collapse)
// 3 Split long texts recursively into overlapping pieces
// 4 Mint a deterministic record id per piece so re-ingests overwrite in place
package chunk

import (
	"strings"
	"time"

	"github.com/tmc/langchaingo/textsplitter"
)

// Message is one raw unit as fetched from a source, before any processing
type Message struct {
	SourceID string
	Channel  string
	Author   string
	Text     string
	RawTS    string // source-native timestamp token, identity input
	SentAt   time.Time
	Bot      bool
	Subtype  string
}

// Record is one embeddable piece of a message
// Ordinal is the piece index within its message, 0 for unsplit messages
type Record struct {
	ID       string
	SourceID string
	Channel  string
	Author   string
	Text     string
	Ordinal  int
	RawTS    string
	SentAt   time.Time
}

// Options controls splitting behavior
type Options struct {
	// ChunkSize is the max characters per record; <=0 -> 1000
	ChunkSize int
	// ChunkOverlap is the overlap between adjacent records; <=0 -> 100,
	// always clamped below ChunkSize
	ChunkOverlap int
}

// Processor converts filtered messages into records
type Processor struct {
	split textsplitter.RecursiveCharacter
	opts  Options
}

// New constructs a Processor
func New(opts Options) *Processor {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 1000
	}
	if opts.ChunkOverlap <= 0 {
		opts.ChunkOverlap = 100
	}
	if opts.ChunkOverlap >= opts.ChunkSize {
		opts.ChunkOverlap = opts.ChunkSize / 5
	}
	return &Processor{
		split: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(opts.ChunkSize),
			textsplitter.WithChunkOverlap(opts.ChunkOverlap),
		),
		opts: opts,
	}
}

// subtypes that still carry human prose; everything else is system noise
var proseSubtypes = map[string]bool{
	"":                 true,
	"me_message":       true,
	"thread_broadcast": true,
	"file_share":       true,
}

// Substantive reports whether a message carries human text worth embedding
func Substantive(m Message) bool {
	if m.Bot {
		return false
	}
	if !proseSubtypes[m.Subtype] {
		return false
	}
	return strings.TrimSpace(m.Text) != ""
}

// Process filters, cleans, and splits a batch of messages.
// Returns the embeddable records plus the count of messages dropped by
// filtering or emptied by cleaning. Record order follows message order
func (p *Processor) Process(msgs []Message) ([]Record, int) {
	out := make([]Record, 0, len(msgs))
	dropped := 0
	for i := range msgs {
		recs := p.one(msgs[i])
		if len(recs) == 0 {
			dropped++
			continue
		}
		out = append(out, recs...)
	}
	return out, dropped
}

func (p *Processor) one(m Message) []Record {
	if !Substantive(m) {
		return nil
	}
	text := Clean(m.Text)
	if text == "" {
		return nil
	}

	pieces, err := p.split.SplitText(text)
	if err != nil || len(pieces) == 0 {
		// splitter failures never lose a message that passed filtering
		pieces = []string{text}
	}

	recs := make([]Record, 0, len(pieces))
	for ord, piece := range pieces {
		piece = strings.TrimSpace(piece)
		if piece == "" {
			continue
		}
		recs = append(recs, Record{
			ID:       RecordID(m.SourceID, m.RawTS, ord),
			SourceID: m.SourceID,
			Channel:  m.Channel,
			Author:   m.Author,
			Text:     piece,
			Ordinal:  ord,
			RawTS:    m.RawTS,
			SentAt:   m.SentAt,
		})
	}
	return recs
}
