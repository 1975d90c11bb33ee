package vectorstore

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"google.golang.org/grpc"

	"github.com/fyrsmithlabs/corpusd/internal/accessfilter"
	"github.com/fyrsmithlabs/corpusd/internal/tags"
)

// Tracer for OpenTelemetry instrumentation.
var tracer = otel.Tracer("corpusd.vectorstore.qdrant")

// collectionNamePattern validates collection names.
// Pattern: lowercase letters, numbers, underscores, 1-64 characters.
var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// chunkIDNamespace is the UUID namespace for deterministic point ids.
// Hashing the chunk id into a UUID keeps upserts idempotent: retrying the
// same document writes the same points.
var chunkIDNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("corpusd/chunk"))

// QdrantConfig holds configuration for the Qdrant gRPC client.
type QdrantConfig struct {
	// Host is the Qdrant server hostname or IP address.
	Host string

	// Port is the Qdrant gRPC port (6334 by default, not the HTTP 6333).
	Port int

	// CollectionName is the corpus collection.
	CollectionName string

	// VectorSize is the embedding dimensionality. Must match the Embedder.
	VectorSize uint64

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool

	// MaxMessageSize is the maximum gRPC message size in bytes.
	MaxMessageSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.CollectionName == "" {
		c.CollectionName = "corpus_chunks"
	}
	if c.VectorSize == 0 {
		c.VectorSize = 384
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024
	}
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	if !collectionNamePattern.MatchString(c.CollectionName) {
		return fmt.Errorf("%w: collection name must match ^[a-z0-9_]{1,64}$, got %q", ErrInvalidConfig, c.CollectionName)
	}
	if c.VectorSize == 0 {
		return fmt.Errorf("%w: vector size required", ErrInvalidConfig)
	}
	return nil
}

// QdrantStore is a Store implementation using Qdrant's native gRPC client.
type QdrantStore struct {
	client   *qdrant.Client
	embedder Embedder
	config   QdrantConfig
}

// NewQdrantStore connects to Qdrant, verifies health, and ensures the
// corpus collection exists.
func NewQdrantStore(config QdrantConfig, embedder Embedder) (*QdrantStore, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		UseTLS: config.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	store := &QdrantStore{client: client, embedder: embedder, config: config}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.HealthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: health check: %v", ErrConnectionFailed, err)
	}
	if err := store.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// ensureCollection creates the corpus collection if it does not exist.
func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.config.CollectionName)
	if err != nil {
		return fmt.Errorf("checking collection %s: %w", s.config.CollectionName, err)
	}
	if exists {
		return nil
	}
	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.config.CollectionName,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.config.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", s.config.CollectionName, err)
	}
	return nil
}

// UpsertChunks embeds and upserts chunks under deterministic point ids.
func (s *QdrantStore) UpsertChunks(ctx context.Context, chunks []Chunk) error {
	ctx, span := tracer.Start(ctx, "QdrantStore.UpsertChunks")
	defer span.End()
	span.SetAttributes(
		attribute.Int("chunk_count", len(chunks)),
		attribute.String("collection", s.config.CollectionName),
	)

	if len(chunks) == 0 {
		return ErrEmptyChunks
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	embeddings, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	points := make([]*qdrant.PointStruct, len(chunks))
	for i, c := range chunks {
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(uuid.NewSHA1(chunkIDNamespace, []byte(c.ID)).String()),
			Vectors: qdrant.NewVectors(embeddings[i]...),
			Payload: chunkPayload(c),
		}
	}

	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.config.CollectionName,
		Points:         points,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upserting %d points: %w", len(points), err)
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// DeleteBySource removes all chunks of one source document.
func (s *QdrantStore) DeleteBySource(ctx context.Context, sourceKey string) error {
	ctx, span := tracer.Start(ctx, "QdrantStore.DeleteBySource")
	defer span.End()
	span.SetAttributes(attribute.String("source", sourceKey))

	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.config.CollectionName,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: &qdrant.Filter{
					Must: []*qdrant.Condition{keywordCondition(tags.MetaSource, sourceKey)},
				},
			},
		},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting chunks for %s: %w", sourceKey, err)
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// Query embeds the query and searches with the rendered access filter.
func (s *QdrantStore) Query(ctx context.Context, query string, pred accessfilter.Predicate, k int) ([]SearchResult, error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.Query")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", s.config.CollectionName),
		attribute.Int("k", k),
	)

	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if query == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}
	if accessfilter.IsNone(pred) {
		span.SetStatus(codes.Ok, "match-nothing predicate")
		return nil, nil
	}

	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.config.CollectionName,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
		Filter:         RenderQdrantFilter(pred),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection %s: %w", s.config.CollectionName, err)
	}

	results := make([]SearchResult, len(points))
	for i, p := range points {
		results[i] = resultFromPayload(p.Payload, p.Score)
	}

	span.SetAttributes(attribute.Int("results_count", len(results)))
	span.SetStatus(codes.Ok, "success")
	return results, nil
}

// chunkPayload builds the Qdrant payload for one chunk.
func chunkPayload(c Chunk) map[string]*qdrant.Value {
	return map[string]*qdrant.Value{
		"id":               {Kind: &qdrant.Value_StringValue{StringValue: c.ID}},
		"content":          {Kind: &qdrant.Value_StringValue{StringValue: c.Text}},
		tags.MetaSource:    {Kind: &qdrant.Value_StringValue{StringValue: c.SourceKey}},
		tags.MetaChunkIndex: {Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(c.Index)}},
		tags.MetaDepartment: {Kind: &qdrant.Value_StringValue{StringValue: c.Tags.Department}},
		tags.MetaProject:    {Kind: &qdrant.Value_StringValue{StringValue: c.Tags.Project}},
		tags.MetaHierarchy:  {Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(c.Tags.HierarchyLevel)}},
		tags.MetaRole:       {Kind: &qdrant.Value_StringValue{StringValue: c.Tags.Role}},
	}
}

// resultFromPayload reconstructs a SearchResult from a point payload.
func resultFromPayload(payload map[string]*qdrant.Value, score float32) SearchResult {
	r := SearchResult{Score: score, Tags: tags.Defaults()}
	for key, v := range payload {
		switch val := v.Kind.(type) {
		case *qdrant.Value_StringValue:
			switch key {
			case "id":
				r.ID = val.StringValue
			case "content":
				r.Text = val.StringValue
			case tags.MetaSource:
				r.SourceKey = val.StringValue
			case tags.MetaDepartment:
				r.Tags.Department = val.StringValue
			case tags.MetaProject:
				r.Tags.Project = val.StringValue
			case tags.MetaRole:
				r.Tags.Role = val.StringValue
			}
		case *qdrant.Value_IntegerValue:
			switch key {
			case tags.MetaChunkIndex:
				r.Index = int(val.IntegerValue)
			case tags.MetaHierarchy:
				r.Tags.HierarchyLevel = int(val.IntegerValue)
			}
		}
	}
	return r
}
