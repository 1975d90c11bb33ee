// Package config provides configuration loading for corpusd.
package config

import (
	"fmt"
	"time"

	"github.com/fyrsmithlabs/corpusd/internal/telemetry"
)

// Config is the top-level corpusd configuration.
type Config struct {
	Corpus      CorpusConfig      `koanf:"corpus"`
	Chunking    ChunkingConfig    `koanf:"chunking"`
	Embeddings  EmbeddingsConfig  `koanf:"embeddings"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	Sync        SyncConfig        `koanf:"sync"`
	Server      ServerConfig      `koanf:"server"`
	Profiles    ProfilesConfig    `koanf:"profiles"`
	Logging     LoggingConfig     `koanf:"logging"`
	Telemetry   telemetry.Config  `koanf:"telemetry"`
}

// CorpusConfig describes where documents live.
type CorpusConfig struct {
	// Root is the corpus root directory.
	Root string `koanf:"root"`

	// ManifestName is the per-directory manifest file name.
	ManifestName string `koanf:"manifest_name"`

	// AllowedExtensions lists indexable extensions, lowercase with dot.
	AllowedExtensions []string `koanf:"allowed_extensions"`

	// IgnoreFile is the gitignore-style exclusion file at the corpus root.
	IgnoreFile string `koanf:"ignore_file"`
}

// ChunkingConfig controls text splitting.
type ChunkingConfig struct {
	Size    int `koanf:"size"`
	Overlap int `koanf:"overlap"`
}

// EmbeddingsConfig points at the embedding service.
type EmbeddingsConfig struct {
	BaseURL string        `koanf:"base_url"`
	Model   string        `koanf:"model"`
	Timeout time.Duration `koanf:"timeout"`
}

// VectorStoreConfig selects and configures the vector index.
type VectorStoreConfig struct {
	// Provider is "chromem" (embedded, default) or "qdrant".
	Provider string `koanf:"provider"`

	Qdrant  QdrantConfig  `koanf:"qdrant"`
	Chromem ChromemConfig `koanf:"chromem"`
}

// QdrantConfig configures the Qdrant backend.
type QdrantConfig struct {
	Host           string `koanf:"host"`
	Port           int    `koanf:"port"`
	CollectionName string `koanf:"collection_name"`
	VectorSize     uint64 `koanf:"vector_size"`
	UseTLS         bool   `koanf:"use_tls"`
}

// ChromemConfig configures the embedded chromem backend.
type ChromemConfig struct {
	Path       string `koanf:"path"`
	Collection string `koanf:"collection"`
	Compress   bool   `koanf:"compress"`
}

// SyncConfig controls reconciliation runs.
type SyncConfig struct {
	BatchSize  int           `koanf:"batch_size"`
	BatchPause time.Duration `koanf:"batch_pause"`
	StatePath  string        `koanf:"state_path"`
}

// ServerConfig configures the HTTP trigger server.
type ServerConfig struct {
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// ProfilesConfig points at the access-profile registry.
type ProfilesConfig struct {
	Path string `koanf:"path"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	// Level is debug, info, warn, or error.
	Level string `koanf:"level"`

	// Format is json or console.
	Format string `koanf:"format"`
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Corpus.ManifestName == "" {
		cfg.Corpus.ManifestName = "metadata.json"
	}
	if len(cfg.Corpus.AllowedExtensions) == 0 {
		cfg.Corpus.AllowedExtensions = []string{".txt", ".md"}
	}
	if cfg.Corpus.IgnoreFile == "" {
		cfg.Corpus.IgnoreFile = ".corpusignore"
	}

	if cfg.Chunking.Size == 0 {
		cfg.Chunking.Size = 512
	}
	if cfg.Chunking.Overlap == 0 {
		cfg.Chunking.Overlap = 64
	}

	if cfg.Embeddings.BaseURL == "" {
		cfg.Embeddings.BaseURL = "http://localhost:8080"
	}
	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = "BAAI/bge-small-en-v1.5"
	}
	if cfg.Embeddings.Timeout == 0 {
		cfg.Embeddings.Timeout = 30 * time.Second
	}

	// chromem is the default provider: embedded, no external service.
	if cfg.VectorStore.Provider == "" {
		cfg.VectorStore.Provider = "chromem"
	}
	if cfg.VectorStore.Qdrant.Host == "" {
		cfg.VectorStore.Qdrant.Host = "localhost"
	}
	if cfg.VectorStore.Qdrant.Port == 0 {
		cfg.VectorStore.Qdrant.Port = 6334
	}
	if cfg.VectorStore.Qdrant.CollectionName == "" {
		cfg.VectorStore.Qdrant.CollectionName = "corpus_chunks"
	}
	if cfg.VectorStore.Qdrant.VectorSize == 0 {
		cfg.VectorStore.Qdrant.VectorSize = 384 // bge-small-en-v1.5 dimensions
	}
	if cfg.VectorStore.Chromem.Collection == "" {
		cfg.VectorStore.Chromem.Collection = "corpus_chunks"
	}

	if cfg.Sync.BatchSize == 0 {
		cfg.Sync.BatchSize = 16
	}
	if cfg.Sync.StatePath == "" {
		cfg.Sync.StatePath = "sync-state.json"
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9091
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	cfg.Telemetry.ApplyDefaults()
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.Corpus.Root == "" {
		return fmt.Errorf("corpus.root is required")
	}
	switch c.VectorStore.Provider {
	case "chromem", "qdrant":
	default:
		return fmt.Errorf("vectorstore.provider must be chromem or qdrant, got %q", c.VectorStore.Provider)
	}
	if c.Chunking.Overlap >= c.Chunking.Size {
		return fmt.Errorf("chunking.overlap %d must be smaller than chunking.size %d", c.Chunking.Overlap, c.Chunking.Size)
	}
	if c.Sync.BatchSize < 1 {
		return fmt.Errorf("sync.batch_size must be at least 1")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	if err := c.Telemetry.Validate(); err != nil {
		return err
	}
	return nil
}
