// Package syncer reconciles the corpus store with the vector index.
//
// A run is a full pass: load the committed state, scan the corpus, diff
// the two, apply deletions then additions, and commit the new state as
// the last step. Interrupted or failed runs commit nothing, so the next
// run sees the previous state and redoes exactly the unfinished work.
// Chunk ids are deterministic, which makes that redo idempotent.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/corpusd/internal/ignore"
	"github.com/fyrsmithlabs/corpusd/internal/manifest"
	"github.com/fyrsmithlabs/corpusd/internal/objectstore"
	"github.com/fyrsmithlabs/corpusd/internal/vectorstore"
)

var tracer = otel.Tracer("corpusd/syncer")

var (
	// ErrScanFailed indicates the corpus could not be enumerated.
	ErrScanFailed = errors.New("corpus scan failed")

	// ErrEmptyScan indicates the scan saw no documents while the committed
	// state says the index holds some. An empty corpus root is far more
	// likely a mount or path problem than a mass deletion, so the run
	// aborts instead of wiping the index.
	ErrEmptyScan = errors.New("scan returned no documents for a non-empty index")
)

// Indexer is the slice of the vector store the reconciler writes to.
type Indexer interface {
	UpsertChunks(ctx context.Context, chunks []vectorstore.Chunk) error
	DeleteBySource(ctx context.Context, sourceKey string) error
}

// Splitter breaks document text into chunks.
type Splitter interface {
	Split(text string) ([]string, error)
}

// Config holds reconciler parameters.
type Config struct {
	// AllowedExtensions lists indexable file extensions, lowercase with
	// leading dot.
	AllowedExtensions []string

	// ManifestName is the manifest file name excluded from indexing.
	ManifestName string

	// IgnoreFile is the gitignore-style exclusion file read from the
	// corpus root.
	IgnoreFile string

	// BatchSize is how many documents are ingested between pauses.
	BatchSize int

	// BatchPause is the minimum interval between ingest batches, giving
	// the embedding service room to breathe. Zero disables pacing.
	BatchPause time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if len(c.AllowedExtensions) == 0 {
		c.AllowedExtensions = []string{".txt", ".md"}
	}
	if c.ManifestName == "" {
		c.ManifestName = manifest.DefaultFileName
	}
	if c.IgnoreFile == "" {
		c.IgnoreFile = ignore.DefaultFileName
	}
	if c.BatchSize == 0 {
		c.BatchSize = 16
	}
}

// Report summarizes one run.
type Report struct {
	RunID          string
	Scanned        int
	Added          int
	Updated        int
	Deleted        int
	Skipped        int
	ChunksUpserted int
}

// Reconciler drives sync runs. It is not safe for concurrent runs; wrap
// it with a RunLock when exposed to concurrent triggers.
type Reconciler struct {
	config   Config
	store    objectstore.Store
	resolver *manifest.Resolver
	splitter Splitter
	index    Indexer
	state    StateStore
	metrics  *Metrics
	limiter  *rate.Limiter
	logger   *zap.Logger
}

// NewReconciler creates a reconciler. metrics may be nil.
func NewReconciler(config Config, store objectstore.Store, resolver *manifest.Resolver,
	splitter Splitter, index Indexer, state StateStore, metrics *Metrics, logger *zap.Logger) (*Reconciler, error) {
	if store == nil || resolver == nil || splitter == nil || index == nil || state == nil {
		return nil, fmt.Errorf("store, resolver, splitter, index, and state are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()

	var limiter *rate.Limiter
	if config.BatchPause > 0 {
		limiter = rate.NewLimiter(rate.Every(config.BatchPause), 1)
	}
	return &Reconciler{
		config:   config,
		store:    store,
		resolver: resolver,
		splitter: splitter,
		index:    index,
		state:    state,
		metrics:  metrics,
		limiter:  limiter,
		logger:   logger,
	}, nil
}

// Run performs one full reconciliation pass.
func (r *Reconciler) Run(ctx context.Context) (*Report, error) {
	ctx, span := tracer.Start(ctx, "syncer.Run")
	defer span.End()

	report := &Report{RunID: uuid.NewString()}
	logger := r.logger.With(zap.String("run_id", report.RunID))
	span.SetAttributes(attribute.String("run.id", report.RunID))

	prior, err := r.state.Load(ctx)
	if err != nil {
		return r.fail(span, report, fmt.Errorf("loading state: %w", err))
	}

	scanned, err := r.scan(ctx)
	if err != nil {
		return r.fail(span, report, fmt.Errorf("%w: %v", ErrScanFailed, err))
	}
	report.Scanned = len(scanned)

	if len(scanned) == 0 && len(prior.Documents) > 0 {
		logger.Error("empty scan with non-empty state, aborting",
			zap.Int("indexed_documents", len(prior.Documents)))
		return r.fail(span, report, fmt.Errorf("%w: %d documents indexed", ErrEmptyScan, len(prior.Documents)))
	}

	added, updated, deleted := diff(prior, scanned)
	report.Added, report.Updated, report.Deleted = len(added), len(updated), len(deleted)
	logger.Info("reconciling corpus",
		zap.Int("scanned", len(scanned)),
		zap.Int("added", len(added)),
		zap.Int("updated", len(updated)),
		zap.Int("deleted", len(deleted)))

	next := NewSyncState()
	next.RunID = report.RunID
	for key, rec := range prior.Documents {
		next.Documents[key] = rec
	}

	// Deletions first. An updated document is deleted and re-added so the
	// index never holds a mix of old and new chunks, and a shrink never
	// leaves orphan tail chunks behind.
	toIngest := make([]objectstore.ObjectInfo, 0, len(added)+len(updated))
	toIngest = append(toIngest, added...)
	for _, key := range deleted {
		if err := ctx.Err(); err != nil {
			return r.fail(span, report, err)
		}
		if err := r.withRetry(ctx, func() error { return r.index.DeleteBySource(ctx, key) }); err != nil {
			// Record kept so the deletion is retried next run.
			logger.Warn("delete failed, will retry next run", zap.String("source", key), zap.Error(err))
			r.metrics.recordDocument("skipped")
			report.Skipped++
			continue
		}
		delete(next.Documents, key)
		r.metrics.recordDocument("deleted")
	}
	for _, obj := range updated {
		if err := ctx.Err(); err != nil {
			return r.fail(span, report, err)
		}
		if err := r.withRetry(ctx, func() error { return r.index.DeleteBySource(ctx, obj.Key) }); err != nil {
			logger.Warn("delete before re-add failed, document deferred",
				zap.String("source", obj.Key), zap.Error(err))
			r.metrics.recordDocument("skipped")
			report.Skipped++
			continue
		}
		delete(next.Documents, obj.Key)
		toIngest = append(toIngest, obj)
	}

	sort.Slice(toIngest, func(i, j int) bool { return toIngest[i].Key < toIngest[j].Key })

	cache := manifest.NewRunCache()
	for i, obj := range toIngest {
		if err := ctx.Err(); err != nil {
			return r.fail(span, report, err)
		}
		if r.limiter != nil && i > 0 && i%r.config.BatchSize == 0 {
			if err := r.limiter.Wait(ctx); err != nil {
				return r.fail(span, report, err)
			}
		}

		chunkCount, err := r.ingest(ctx, obj, cache)
		if err != nil {
			// Not recorded in the new state, so the document is retried on
			// the next run.
			logger.Warn("document skipped", zap.String("source", obj.Key), zap.Error(err))
			r.metrics.recordDocument("skipped")
			report.Skipped++
			continue
		}
		next.Documents[obj.Key] = DocumentRecord{Fingerprint: obj.Fingerprint, ChunkCount: chunkCount}
		report.ChunksUpserted += chunkCount
		r.metrics.recordDocument("indexed")
		r.metrics.recordChunks(chunkCount)
	}

	// Commit last. Everything before this line is redoable.
	next.CompletedAt = time.Now().UTC()
	if err := r.state.Save(ctx, next); err != nil {
		return r.fail(span, report, fmt.Errorf("committing state: %w", err))
	}

	r.metrics.recordRun("success")
	r.metrics.recordSuccess(next.CompletedAt.Unix())
	span.SetAttributes(
		attribute.Int("run.added", report.Added),
		attribute.Int("run.updated", report.Updated),
		attribute.Int("run.deleted", report.Deleted),
		attribute.Int("run.skipped", report.Skipped),
	)
	span.SetStatus(codes.Ok, "")
	logger.Info("run committed",
		zap.Int("chunks_upserted", report.ChunksUpserted),
		zap.Int("skipped", report.Skipped))
	return report, nil
}

// ingest loads, tags, chunks, and indexes one document. Returns the chunk
// count written. A document whose text yields no chunks is recorded with
// count zero and nothing is written.
func (r *Reconciler) ingest(ctx context.Context, obj objectstore.ObjectInfo, cache *manifest.RunCache) (int, error) {
	data, err := r.store.Get(ctx, obj.Key)
	if err != nil {
		return 0, fmt.Errorf("fetching document: %w", err)
	}

	set, err := r.resolver.Resolve(ctx, obj.Key, cache)
	if err != nil {
		return 0, fmt.Errorf("resolving tags: %w", err)
	}

	pieces, err := r.splitter.Split(string(data))
	if err != nil {
		return 0, fmt.Errorf("chunking: %w", err)
	}
	if len(pieces) == 0 {
		return 0, nil
	}

	chunks := make([]vectorstore.Chunk, len(pieces))
	for i, text := range pieces {
		chunks[i] = vectorstore.Chunk{
			ID:        vectorstore.ChunkID(obj.Key, i),
			SourceKey: obj.Key,
			Index:     i,
			Text:      text,
			Tags:      set,
		}
	}
	if err := r.withRetry(ctx, func() error { return r.index.UpsertChunks(ctx, chunks) }); err != nil {
		return 0, fmt.Errorf("indexing %d chunks: %w", len(chunks), err)
	}
	return len(chunks), nil
}

// scan enumerates indexable documents, filtering out manifests,
// unsupported extensions, and keys excluded by the corpus ignore file.
func (r *Reconciler) scan(ctx context.Context) ([]objectstore.ObjectInfo, error) {
	objects, err := r.store.List(ctx, "")
	if err != nil {
		return nil, err
	}

	matcher, err := r.loadIgnoreMatcher(ctx)
	if err != nil {
		return nil, err
	}

	out := objects[:0]
	for _, obj := range objects {
		if path.Base(obj.Key) == r.config.ManifestName {
			continue
		}
		if !r.allowed(obj.Key) {
			continue
		}
		if matcher.Match(obj.Key) {
			continue
		}
		out = append(out, obj)
	}
	return out, nil
}

// loadIgnoreMatcher reads the ignore file at the corpus root. A missing
// file means nothing is excluded.
func (r *Reconciler) loadIgnoreMatcher(ctx context.Context) (*ignore.Matcher, error) {
	content, err := r.store.Get(ctx, r.config.IgnoreFile)
	if errors.Is(err, objectstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", r.config.IgnoreFile, err)
	}
	return ignore.Parse(content), nil
}

func (r *Reconciler) allowed(key string) bool {
	ext := strings.ToLower(path.Ext(key))
	for _, allowed := range r.config.AllowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// withRetry runs an index operation, retrying once. Transient index
// hiccups are common enough that one immediate retry pays for itself;
// anything needing more waits for the next run.
func (r *Reconciler) withRetry(ctx context.Context, op func() error) error {
	err := op()
	if err == nil || ctx.Err() != nil {
		return err
	}
	return op()
}

func (r *Reconciler) fail(span trace.Span, report *Report, err error) (*Report, error) {
	span.SetStatus(codes.Error, err.Error())
	r.metrics.recordRun("failed")
	return report, err
}

// diff splits the scan against the committed state into added, updated,
// and deleted sets. Slices come back sorted for deterministic ordering.
func diff(prior *SyncState, scanned []objectstore.ObjectInfo) (added, updated []objectstore.ObjectInfo, deleted []string) {
	seen := make(map[string]struct{}, len(scanned))
	for _, obj := range scanned {
		seen[obj.Key] = struct{}{}
		rec, ok := prior.Documents[obj.Key]
		switch {
		case !ok:
			added = append(added, obj)
		case rec.Fingerprint != obj.Fingerprint:
			updated = append(updated, obj)
		}
	}
	for key := range prior.Documents {
		if _, ok := seen[key]; !ok {
			deleted = append(deleted, key)
		}
	}
	sort.Slice(added, func(i, j int) bool { return added[i].Key < added[j].Key })
	sort.Slice(updated, func(i, j int) bool { return updated[i].Key < updated[j].Key })
	sort.Strings(deleted)
	return added, updated, deleted
}
