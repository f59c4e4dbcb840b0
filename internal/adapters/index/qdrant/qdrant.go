// Package qdrant adapts one qdrant collection to the ingest sink index
package qdrant

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	qdrantclient "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"backscroll/internal/modkit"
	"backscroll/internal/platform/config"
	perr "backscroll/internal/platform/errors"
	"backscroll/internal/platform/logger"
	"backscroll/internal/services/ingest/domain"
	"backscroll/internal/services/ingest/sink"
)

const (
	defaultCollection = "backscroll"
	defaultPort       = 6334
	defaultDim        = 1536
)

// Options configures the Index
type Options struct {
	Host       string
	Port       int
	APIKey     string
	TLS        bool
	Collection string

	// Dim sizes the collection's vectors; it comes from the embedder
	Dim int
}

// Index stores record vectors in one qdrant collection over grpc.
// The connection dials lazily and the collection is ensured on first write,
// so construction never needs the server up
type Index struct {
	conn        *grpc.ClientConn
	points      qdrantclient.PointsClient
	collections qdrantclient.CollectionsClient
	root        qdrantclient.QdrantClient
	opts        Options
	log         logger.Logger

	mu      sync.Mutex
	ensured bool
}

var _ sink.Index = (*Index)(nil)

// New constructs the index from config under INDEX_QDRANT_
func New(deps modkit.Deps, dim int) *Index {
	return NewIndex(FromConfig(deps.Cfg, dim))
}

// FromConfig reads the index options with INDEX_QDRANT_ prefix
func FromConfig(cfg config.Conf, dim int) Options {
	qd := cfg.Prefix("INDEX_QDRANT_")
	return Options{
		Host:       qd.MayString("HOST", "localhost"),
		Port:       qd.MayInt("PORT", defaultPort),
		APIKey:     qd.MayString("API_KEY", ""),
		TLS:        qd.MayBool("TLS", false),
		Collection: qd.MayString("COLLECTION", defaultCollection),
		Dim:        dim,
	}
}

// NewIndex creates an Index with sane defaults
func NewIndex(o Options) *Index {
	if o.Collection == "" {
		o.Collection = defaultCollection
	}
	if o.Port <= 0 {
		o.Port = defaultPort
	}
	if o.Dim <= 0 {
		o.Dim = defaultDim
	}

	creds := insecure.NewCredentials()
	if o.TLS {
		creds = credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	conn, err := grpc.NewClient(
		fmt.Sprintf("%s:%d", o.Host, o.Port),
		grpc.WithTransportCredentials(creds),
	)
	if err != nil {
		panic(perr.Wrapf(err, perr.ErrorCodeUnknown, "qdrant: client setup"))
	}

	return &Index{
		conn:        conn,
		points:      qdrantclient.NewPointsClient(conn),
		collections: qdrantclient.NewCollectionsClient(conn),
		root:        qdrantclient.NewQdrantClient(conn),
		opts:        o,
		log:         *logger.Named("qdrant"),
	}
}

// Close releases the grpc connection
func (x *Index) Close() error { return x.conn.Close() }

// Collection returns the collection name writes go to
func (x *Index) Collection() string { return x.opts.Collection }

// Ensure creates the collection when missing. Safe to call concurrently;
// a failure leaves the flag unset so the next write retries
func (x *Index) Ensure(ctx context.Context) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.ensured {
		return nil
	}
	ctx = x.authed(ctx)

	list, err := x.collections.List(ctx, &qdrantclient.ListCollectionsRequest{})
	if err != nil {
		return mapErr(err, "qdrant: list collections")
	}
	for _, col := range list.GetCollections() {
		if col.GetName() == x.opts.Collection {
			x.ensured = true
			return nil
		}
	}

	x.log.Info().Str("collection", x.opts.Collection).Int("dim", x.opts.Dim).Msg("creating collection")
	_, err = x.collections.Create(ctx, &qdrantclient.CreateCollection{
		CollectionName: x.opts.Collection,
		VectorsConfig: &qdrantclient.VectorsConfig{
			Config: &qdrantclient.VectorsConfig_Params{
				Params: &qdrantclient.VectorParams{
					Size:     uint64(x.opts.Dim),
					Distance: qdrantclient.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		// lost a create race with another writer, the collection is there
		if status.Code(err) == codes.AlreadyExists {
			x.ensured = true
			return nil
		}
		return mapErr(err, "qdrant: create collection")
	}
	x.ensured = true
	return nil
}

// Upsert writes recs with their vectors and waits for the write. Point ids
// are the deterministic record ids, so re-ingesting overwrites in place.
// The batch lands whole or not at all
func (x *Index) Upsert(ctx context.Context, recs []domain.Record, vecs [][]float32) (int, error) {
	if len(recs) != len(vecs) {
		return 0, perr.Internalf("qdrant: %d records for %d vectors", len(recs), len(vecs))
	}
	if len(recs) == 0 {
		return 0, nil
	}
	if err := x.Ensure(ctx); err != nil {
		return 0, err
	}

	points := make([]*qdrantclient.PointStruct, len(recs))
	for i := range recs {
		points[i] = &qdrantclient.PointStruct{
			Id: &qdrantclient.PointId{
				PointIdOptions: &qdrantclient.PointId_Uuid{Uuid: recs[i].ID},
			},
			Vectors: &qdrantclient.Vectors{
				VectorsOptions: &qdrantclient.Vectors_Vector{
					Vector: &qdrantclient.Vector{Data: vecs[i]},
				},
			},
			Payload: payload(recs[i]),
		}
	}

	wait := true
	_, err := x.points.Upsert(x.authed(ctx), &qdrantclient.UpsertPoints{
		CollectionName: x.opts.Collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return 0, mapErr(err, "qdrant: upsert")
	}
	return len(recs), nil
}

// Count returns the exact number of stored vectors
func (x *Index) Count(ctx context.Context) (uint64, error) {
	exact := true
	resp, err := x.points.Count(x.authed(ctx), &qdrantclient.CountPoints{
		CollectionName: x.opts.Collection,
		Exact:          &exact,
	})
	if err != nil {
		return 0, mapErr(err, "qdrant: count")
	}
	return resp.GetResult().GetCount(), nil
}

// Ping reports server reachability
func (x *Index) Ping(ctx context.Context) error {
	if _, err := x.root.HealthCheck(x.authed(ctx), &qdrantclient.HealthCheckRequest{}); err != nil {
		return mapErr(err, "qdrant: health check")
	}
	return nil
}

// authed attaches the api key metadata when one is configured
func (x *Index) authed(ctx context.Context) context.Context {
	if x.opts.APIKey == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "api-key", x.opts.APIKey)
}

// payload carries the queryable fields next to each vector
func payload(r domain.Record) map[string]*qdrantclient.Value {
	return map[string]*qdrantclient.Value{
		"source_id": strVal(r.SourceID),
		"channel":   strVal(r.Channel),
		"author":    strVal(r.Author),
		"text":      strVal(r.Text),
		"ts":        strVal(r.RawTS),
		"sent_at":   strVal(r.SentAt.UTC().Format(time.RFC3339)),
		"ordinal": {
			Kind: &qdrantclient.Value_IntegerValue{IntegerValue: int64(r.Ordinal)},
		},
	}
}

func strVal(s string) *qdrantclient.Value {
	return &qdrantclient.Value{Kind: &qdrantclient.Value_StringValue{StringValue: s}}
}

// mapErr converts grpc statuses into coded errors the retry budget
// understands
func mapErr(err error, msg string) error {
	switch status.Code(err) {
	case codes.ResourceExhausted:
		return perr.Wrapf(err, perr.ErrorCodeTooManyRequests, "%s", msg)
	case codes.Unavailable, codes.DeadlineExceeded:
		return perr.Wrapf(err, perr.ErrorCodeUnavailable, "%s", msg)
	case codes.NotFound:
		return perr.Wrapf(err, perr.ErrorCodeNotFound, "%s", msg)
	case codes.PermissionDenied, codes.Unauthenticated:
		return perr.Wrapf(err, perr.ErrorCodeForbidden, "%s", msg)
	default:
		return perr.Wrapf(err, perr.ErrorCodeUnknown, "%s", msg)
	}
}
