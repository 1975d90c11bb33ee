package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/corpusd/internal/chunker"
	"github.com/fyrsmithlabs/corpusd/internal/config"
	"github.com/fyrsmithlabs/corpusd/internal/embeddings"
	"github.com/fyrsmithlabs/corpusd/internal/logging"
	"github.com/fyrsmithlabs/corpusd/internal/manifest"
	"github.com/fyrsmithlabs/corpusd/internal/objectstore"
	"github.com/fyrsmithlabs/corpusd/internal/profile"
	"github.com/fyrsmithlabs/corpusd/internal/retrieval"
	"github.com/fyrsmithlabs/corpusd/internal/syncer"
	"github.com/fyrsmithlabs/corpusd/internal/vectorstore"
)

// app wires the components every command shares. Construction is
// fail-fast: a bad config or unreachable index surfaces before any work
// starts.
type app struct {
	cfg        *config.Config
	logger     *zap.Logger
	store      *objectstore.FSStore
	vectors    vectorstore.Store
	reconciler *syncer.Reconciler
	lock       syncer.RunLock
}

// newApp builds the shared component graph. withMetrics registers sync
// metrics on the default Prometheus registry; only the long-running serve
// command wants that.
func newApp(withMetrics bool) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		return nil, err
	}

	store, err := objectstore.NewFSStore(cfg.Corpus.Root)
	if err != nil {
		return nil, fmt.Errorf("opening corpus root: %w", err)
	}
	resolver := manifest.NewResolver(store, cfg.Corpus.ManifestName, logger)

	split, err := chunker.New(chunker.Config{
		ChunkSize:    cfg.Chunking.Size,
		ChunkOverlap: cfg.Chunking.Overlap,
	})
	if err != nil {
		return nil, err
	}

	embedder, err := embeddings.NewService(embeddings.Config{
		BaseURL: cfg.Embeddings.BaseURL,
		Model:   cfg.Embeddings.Model,
		Timeout: cfg.Embeddings.Timeout,
	}, logger)
	if err != nil {
		return nil, err
	}

	vectors, err := newVectorStore(cfg, embedder, logger)
	if err != nil {
		return nil, fmt.Errorf("opening vector store: %w", err)
	}

	state, err := syncer.NewFileStateStore(cfg.Sync.StatePath)
	if err != nil {
		return nil, err
	}

	var metrics *syncer.Metrics
	if withMetrics {
		metrics = syncer.NewMetrics(prometheus.DefaultRegisterer)
	}

	reconciler, err := syncer.NewReconciler(syncer.Config{
		AllowedExtensions: cfg.Corpus.AllowedExtensions,
		ManifestName:      cfg.Corpus.ManifestName,
		IgnoreFile:        cfg.Corpus.IgnoreFile,
		BatchSize:         cfg.Sync.BatchSize,
		BatchPause:        cfg.Sync.BatchPause,
	}, store, resolver, split, vectors, state, metrics, logger)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		vectors:    vectors,
		reconciler: reconciler,
	}, nil
}

func newVectorStore(cfg *config.Config, embedder vectorstore.Embedder, logger *zap.Logger) (vectorstore.Store, error) {
	switch cfg.VectorStore.Provider {
	case "qdrant":
		return vectorstore.NewQdrantStore(vectorstore.QdrantConfig{
			Host:           cfg.VectorStore.Qdrant.Host,
			Port:           cfg.VectorStore.Qdrant.Port,
			CollectionName: cfg.VectorStore.Qdrant.CollectionName,
			VectorSize:     cfg.VectorStore.Qdrant.VectorSize,
			UseTLS:         cfg.VectorStore.Qdrant.UseTLS,
		}, embedder)
	default:
		return vectorstore.NewChromemStore(vectorstore.ChromemConfig{
			Path:       cfg.VectorStore.Chromem.Path,
			Collection: cfg.VectorStore.Chromem.Collection,
			Compress:   cfg.VectorStore.Chromem.Compress,
		}, embedder, logger)
	}
}

// retrievalService builds the query path. Separate from newApp because
// sync-only commands do not need a profile registry.
func (a *app) retrievalService() (*retrieval.Service, error) {
	if a.cfg.Profiles.Path == "" {
		return nil, fmt.Errorf("profiles.path is not configured")
	}
	registry, err := profile.LoadRegistry(a.cfg.Profiles.Path)
	if err != nil {
		return nil, err
	}
	return retrieval.NewService(registry, a.vectors, a.logger)
}

// Close releases the vector store and flushes logs.
func (a *app) Close() {
	if err := a.vectors.Close(); err != nil {
		a.logger.Warn("closing vector store", zap.Error(err))
	}
	_ = a.logger.Sync()
}
