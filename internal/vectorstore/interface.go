// Package vectorstore defines the interface to the vector index and
// provides Qdrant (external, gRPC) and chromem-go (embedded) adapters.
//
// Chunks are owned by the index and written exclusively by the sync
// reconciler. A chunk is never mutated in place: an update is always a
// delete-by-source followed by a fresh upsert under deterministic ids, so
// a retried document can never duplicate chunks.
//
// Queries take a compiled access predicate. Each adapter renders the
// predicate into its native filter syntax (Qdrant) or evaluates it
// in-process (chromem); the match-nothing predicate short-circuits to an
// empty result without touching the index.
package vectorstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/corpusd/internal/accessfilter"
	"github.com/fyrsmithlabs/corpusd/internal/tags"
)

// Sentinel errors for vector store operations.
var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrConnectionFailed indicates the index cannot be reached.
	ErrConnectionFailed = errors.New("failed to connect to vector index")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("failed to generate embeddings")

	// ErrEmptyChunks indicates an upsert with no chunks.
	ErrEmptyChunks = errors.New("empty or nil chunks")
)

// Chunk is one indexed fragment of a source document.
type Chunk struct {
	// ID is the deterministic chunk identifier, derived from the source
	// key and chunk index (see ChunkID).
	ID string

	// SourceKey is the document store key this chunk came from.
	SourceKey string

	// Index is the chunk's position within the source document.
	Index int

	// Text is the chunk content.
	Text string

	// Tags is the access tag set resolved for the source document.
	Tags tags.AccessTagSet
}

// ChunkID derives the deterministic id for one chunk of a document.
func ChunkID(sourceKey string, index int) string {
	return fmt.Sprintf("%s#%d", sourceKey, index)
}

// SearchResult is one ranked chunk returned by a query.
type SearchResult struct {
	ID        string
	SourceKey string
	Index     int
	Text      string
	Score     float32
	Tags      tags.AccessTagSet
}

// Embedder generates vector embeddings from text.
type Embedder interface {
	// EmbedDocuments generates embeddings for multiple texts.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Store is the vector index boundary the reconciler and the retrieval
// service share.
type Store interface {
	// UpsertChunks embeds and stores chunks. Re-upserting a chunk id
	// replaces the previous point; it never duplicates.
	UpsertChunks(ctx context.Context, chunks []Chunk) error

	// DeleteBySource removes every chunk whose source document key equals
	// sourceKey. Deleting a key with no chunks is not an error.
	DeleteBySource(ctx context.Context, sourceKey string) error

	// Query embeds the query text and returns up to k chunks matching the
	// access predicate, ordered by similarity (highest first). A
	// match-nothing predicate returns an empty result.
	Query(ctx context.Context, query string, pred accessfilter.Predicate, k int) ([]SearchResult, error)

	// Close releases the store's resources.
	Close() error
}
