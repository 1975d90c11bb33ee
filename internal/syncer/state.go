package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrStateCorrupt indicates the persisted sync state could not be parsed.
// A corrupt state file is an operator problem, not a reason to resync the
// world: the caller decides whether to repair or delete it.
var ErrStateCorrupt = errors.New("sync state corrupt")

// DocumentRecord is the per-document entry in the sync state.
type DocumentRecord struct {
	// Fingerprint is the content fingerprint observed at index time.
	Fingerprint string `json:"fingerprint"`

	// ChunkCount is how many chunks the document produced.
	ChunkCount int `json:"chunk_count"`
}

// SyncState is the committed record of what the index contains. It is
// written once, after a run completes, never incrementally.
type SyncState struct {
	// RunID identifies the run that produced this state.
	RunID string `json:"run_id"`

	// CompletedAt is when the producing run committed.
	CompletedAt time.Time `json:"completed_at"`

	// Documents maps source key to its indexed record.
	Documents map[string]DocumentRecord `json:"documents"`
}

// NewSyncState returns an empty state.
func NewSyncState() *SyncState {
	return &SyncState{Documents: make(map[string]DocumentRecord)}
}

// StateStore persists sync state between runs.
type StateStore interface {
	// Load returns the last committed state, or an empty state if none
	// has been committed yet.
	Load(ctx context.Context) (*SyncState, error)

	// Save atomically replaces the committed state.
	Save(ctx context.Context, state *SyncState) error
}

// FileStateStore persists sync state as a JSON file, replaced atomically
// via rename.
type FileStateStore struct {
	path string
}

// NewFileStateStore creates a file-backed state store.
func NewFileStateStore(path string) (*FileStateStore, error) {
	if path == "" {
		return nil, fmt.Errorf("state path required")
	}
	return &FileStateStore{path: path}, nil
}

func (s *FileStateStore) Load(ctx context.Context) (*SyncState, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return NewSyncState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading state %s: %w", s.path, err)
	}

	var state SyncState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrStateCorrupt, s.path, err)
	}
	if state.Documents == nil {
		state.Documents = make(map[string]DocumentRecord)
	}
	return &state, nil
}

func (s *FileStateStore) Save(ctx context.Context, state *SyncState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing state: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("committing state: %w", err)
	}
	return nil
}
