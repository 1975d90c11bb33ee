package vectorstore

import (
	"context"
	"fmt"
	"strconv"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/corpusd/internal/accessfilter"
	"github.com/fyrsmithlabs/corpusd/internal/tags"
)

// maxScanResults bounds how many candidates the chromem adapter pulls
// before applying the access predicate in-process.
const maxScanResults = 1000

// ChromemConfig holds configuration for the embedded chromem-go store.
type ChromemConfig struct {
	// Path is the directory for persistent storage. Empty means in-memory
	// only (tests, throwaway runs).
	Path string

	// Collection is the corpus collection name.
	Collection string

	// Compress enables gzip compression for persisted data.
	Compress bool
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.Collection == "" {
		c.Collection = "corpus_chunks"
	}
}

// ChromemStore implements Store on chromem-go, an embeddable vector
// database with no external service dependency.
//
// chromem's metadata filters only support flat equality, which cannot
// express the access predicate's OR-of-ANDs. The adapter instead
// oversamples the similarity search and evaluates the predicate
// in-process before truncating to k. Sound for the corpus sizes the
// embedded store targets; larger deployments use Qdrant, where the
// predicate renders into the index's own filter.
type ChromemStore struct {
	db         *chromem.DB
	collection *chromem.Collection
	embedder   Embedder
	logger     *zap.Logger
}

// NewChromemStore creates an embedded store, persistent when config.Path
// is set.
func NewChromemStore(config ChromemConfig, embedder Embedder, logger *zap.Logger) (*ChromemStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()

	var (
		db  *chromem.DB
		err error
	)
	if config.Path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(config.Path, config.Compress)
		if err != nil {
			return nil, fmt.Errorf("opening chromem DB at %s: %w", config.Path, err)
		}
	}

	embedFunc := func(ctx context.Context, text string) ([]float32, error) {
		return embedder.EmbedQuery(ctx, text)
	}
	collection, err := db.GetOrCreateCollection(config.Collection, nil, embedFunc)
	if err != nil {
		return nil, fmt.Errorf("creating collection %s: %w", config.Collection, err)
	}

	return &ChromemStore{db: db, collection: collection, embedder: embedder, logger: logger}, nil
}

// UpsertChunks embeds and stores chunks. Existing ids are replaced.
func (s *ChromemStore) UpsertChunks(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return ErrEmptyChunks
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	embeddings, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	if len(embeddings) != len(chunks) {
		return fmt.Errorf("%w: got %d embeddings for %d chunks", ErrEmbeddingFailed, len(embeddings), len(chunks))
	}

	docs := make([]chromem.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = chromem.Document{
			ID:        c.ID,
			Content:   c.Text,
			Embedding: embeddings[i],
			Metadata:  chunkMetadata(c),
		}
	}
	if err := s.collection.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("adding %d documents: %w", len(docs), err)
	}
	return nil
}

// DeleteBySource removes all chunks of one source document. A source with
// no chunks is not an error.
func (s *ChromemStore) DeleteBySource(ctx context.Context, sourceKey string) error {
	if s.collection.Count() == 0 {
		return nil
	}
	if err := s.collection.Delete(ctx, map[string]string{tags.MetaSource: sourceKey}, nil); err != nil {
		return fmt.Errorf("deleting chunks for %s: %w", sourceKey, err)
	}
	return nil
}

// Query searches by similarity, then applies the access predicate
// in-process and truncates to k.
func (s *ChromemStore) Query(ctx context.Context, query string, pred accessfilter.Predicate, k int) ([]SearchResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if query == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}
	if accessfilter.IsNone(pred) {
		return nil, nil
	}

	count := s.collection.Count()
	if count == 0 {
		return nil, nil
	}
	fetch := count
	if fetch > maxScanResults {
		fetch = maxScanResults
	}

	candidates, err := s.collection.Query(ctx, query, fetch, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying collection: %w", err)
	}

	results := make([]SearchResult, 0, k)
	for _, cand := range candidates {
		r := resultFromChromem(cand)
		if !pred.Matches(r.Tags) {
			continue
		}
		results = append(results, r)
		if len(results) == k {
			break
		}
	}
	return results, nil
}

// Close releases resources. chromem persists on write, so there is
// nothing to flush.
func (s *ChromemStore) Close() error { return nil }

// chunkMetadata converts a chunk to chromem's string-valued metadata.
func chunkMetadata(c Chunk) map[string]string {
	return map[string]string{
		tags.MetaSource:     c.SourceKey,
		tags.MetaChunkIndex: strconv.Itoa(c.Index),
		tags.MetaDepartment: c.Tags.Department,
		tags.MetaProject:    c.Tags.Project,
		tags.MetaHierarchy:  strconv.Itoa(c.Tags.HierarchyLevel),
		tags.MetaRole:       c.Tags.Role,
	}
}

// resultFromChromem reconstructs a SearchResult from a chromem result.
func resultFromChromem(res chromem.Result) SearchResult {
	r := SearchResult{
		ID:    res.ID,
		Text:  res.Content,
		Score: res.Similarity,
		Tags:  tags.Defaults(),
	}
	meta := res.Metadata
	r.SourceKey = meta[tags.MetaSource]
	if v, err := strconv.Atoi(meta[tags.MetaChunkIndex]); err == nil {
		r.Index = v
	}
	if v := meta[tags.MetaDepartment]; v != "" {
		r.Tags.Department = v
	}
	if v := meta[tags.MetaProject]; v != "" {
		r.Tags.Project = v
	}
	if v, err := strconv.Atoi(meta[tags.MetaHierarchy]); err == nil {
		r.Tags.HierarchyLevel = v
	}
	if v := meta[tags.MetaRole]; v != "" {
		r.Tags.Role = v
	}
	return r
}
