package syncer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/corpusd/internal/manifest"
	"github.com/fyrsmithlabs/corpusd/internal/objectstore"
	"github.com/fyrsmithlabs/corpusd/internal/vectorstore"
)

// fakeCorpus is an in-memory objectstore.Store. Fingerprints are the
// content itself, so changing a document's text changes its fingerprint.
type fakeCorpus struct {
	objects map[string]string
	listErr error
}

func (f *fakeCorpus) List(ctx context.Context, prefix string) ([]objectstore.ObjectInfo, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []objectstore.ObjectInfo
	for key, data := range f.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		out = append(out, objectstore.ObjectInfo{Key: key, Fingerprint: data})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (f *fakeCorpus) Get(ctx context.Context, key string) ([]byte, error) {
	data, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, objectstore.ErrNotFound)
	}
	return []byte(data), nil
}

// fakeIndex records index operations in order and can fail selected keys
// a configured number of times.
type fakeIndex struct {
	ops         []string
	upserted    map[string][]vectorstore.Chunk
	upsertFails map[string]int
	deleteFails map[string]int
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{
		upserted:    make(map[string][]vectorstore.Chunk),
		upsertFails: make(map[string]int),
		deleteFails: make(map[string]int),
	}
}

func (f *fakeIndex) UpsertChunks(ctx context.Context, chunks []vectorstore.Chunk) error {
	key := chunks[0].SourceKey
	if f.upsertFails[key] > 0 {
		f.upsertFails[key]--
		f.ops = append(f.ops, "upsert-fail "+key)
		return errors.New("index write failed")
	}
	f.ops = append(f.ops, fmt.Sprintf("upsert %s:%d", key, len(chunks)))
	f.upserted[key] = chunks
	return nil
}

func (f *fakeIndex) DeleteBySource(ctx context.Context, sourceKey string) error {
	if f.deleteFails[sourceKey] > 0 {
		f.deleteFails[sourceKey]--
		return errors.New("index delete failed")
	}
	f.ops = append(f.ops, "delete "+sourceKey)
	delete(f.upserted, sourceKey)
	return nil
}

// fakeState is an in-memory StateStore.
type fakeState struct {
	state   *SyncState
	saves   int
	saveErr error
}

func (f *fakeState) Load(ctx context.Context) (*SyncState, error) {
	if f.state == nil {
		return NewSyncState(), nil
	}
	// Copy so the reconciler cannot mutate committed state in place.
	cp := NewSyncState()
	cp.RunID = f.state.RunID
	for k, v := range f.state.Documents {
		cp.Documents[k] = v
	}
	return cp, nil
}

func (f *fakeState) Save(ctx context.Context, state *SyncState) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saves++
	f.state = state
	return nil
}

// lineSplitter chunks on blank lines, no overlap. Deterministic and
// readable in assertions.
type lineSplitter struct{}

func (lineSplitter) Split(text string) ([]string, error) {
	var out []string
	for _, part := range strings.Split(text, "\n\n") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

func newTestReconciler(t *testing.T, corpus *fakeCorpus, index *fakeIndex, state *fakeState) *Reconciler {
	t.Helper()
	resolver := manifest.NewResolver(corpus, "", nil)
	r, err := NewReconciler(Config{}, corpus, resolver, lineSplitter{}, index, state, nil, nil)
	require.NoError(t, err)
	return r
}

func TestRunIndexesNewCorpus(t *testing.T) {
	corpus := &fakeCorpus{objects: map[string]string{
		"docs/it/vpn.txt":       "first section\n\nsecond section",
		"docs/general/hello.md": "welcome",
		"docs/it/metadata.json": `{"department_tag": "it"}`,
		"docs/it/image.png":     "binary junk",
	}}
	index := newFakeIndex()
	state := &fakeState{}

	report, err := newTestReconciler(t, corpus, index, state).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, report.Scanned)
	require.Equal(t, 2, report.Added)
	require.Equal(t, 3, report.ChunksUpserted)
	require.Zero(t, report.Skipped)

	// Manifests and unsupported extensions never reach the index.
	require.NotContains(t, index.upserted, "docs/it/metadata.json")
	require.NotContains(t, index.upserted, "docs/it/image.png")

	chunks := index.upserted["docs/it/vpn.txt"]
	require.Len(t, chunks, 2)
	require.Equal(t, "docs/it/vpn.txt#0", chunks[0].ID)
	require.Equal(t, "IT", chunks[0].Tags.Department)
	require.Equal(t, "GENERAL", chunks[0].Tags.Role)

	require.Equal(t, 1, state.saves)
	require.Len(t, state.state.Documents, 2)
	require.Equal(t, report.RunID, state.state.RunID)
}

func TestRunHonorsIgnoreFile(t *testing.T) {
	corpus := &fakeCorpus{objects: map[string]string{
		".corpusignore":    "drafts/\n*.tmp\n",
		"docs/kept.txt":    "kept",
		"drafts/plan.txt":  "draft",
		"docs/scratch.tmp": "scratch",
	}}
	index := newFakeIndex()
	state := &fakeState{}

	report, err := newTestReconciler(t, corpus, index, state).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Scanned)
	require.Contains(t, index.upserted, "docs/kept.txt")
	require.NotContains(t, index.upserted, "drafts/plan.txt")
}

func TestRunIsIdempotent(t *testing.T) {
	corpus := &fakeCorpus{objects: map[string]string{"a.txt": "hello"}}
	index := newFakeIndex()
	state := &fakeState{}
	r := newTestReconciler(t, corpus, index, state)

	_, err := r.Run(context.Background())
	require.NoError(t, err)
	opsAfterFirst := len(index.ops)

	report, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Zero(t, report.Added)
	require.Zero(t, report.Updated)
	require.Zero(t, report.Deleted)
	require.Len(t, index.ops, opsAfterFirst, "unchanged corpus must produce no index operations")
}

func TestRunUpdateDeletesBeforeAdding(t *testing.T) {
	corpus := &fakeCorpus{objects: map[string]string{"a.txt": "v1 one\n\nv1 two\n\nv1 three"}}
	index := newFakeIndex()
	state := &fakeState{}
	r := newTestReconciler(t, corpus, index, state)

	_, err := r.Run(context.Background())
	require.NoError(t, err)

	// Shrink the document: stale tail chunks must not survive.
	corpus.objects["a.txt"] = "v2 only"
	report, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Updated)

	require.Equal(t, []string{"upsert a.txt:3", "delete a.txt", "upsert a.txt:1"}, index.ops)
	require.Len(t, index.upserted["a.txt"], 1)
	require.Equal(t, 1, state.state.Documents["a.txt"].ChunkCount)
}

func TestRunDeletesRemovedDocuments(t *testing.T) {
	corpus := &fakeCorpus{objects: map[string]string{"a.txt": "alpha", "b.txt": "beta"}}
	index := newFakeIndex()
	state := &fakeState{}
	r := newTestReconciler(t, corpus, index, state)

	_, err := r.Run(context.Background())
	require.NoError(t, err)

	delete(corpus.objects, "a.txt")
	report, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Deleted)
	require.NotContains(t, index.upserted, "a.txt")
	require.NotContains(t, state.state.Documents, "a.txt")
	require.Contains(t, state.state.Documents, "b.txt")
}

func TestEmptyScanWithIndexedStateAborts(t *testing.T) {
	corpus := &fakeCorpus{objects: map[string]string{}}
	index := newFakeIndex()
	prior := NewSyncState()
	prior.Documents["a.txt"] = DocumentRecord{Fingerprint: "alpha", ChunkCount: 1}
	state := &fakeState{state: prior}

	_, err := newTestReconciler(t, corpus, index, state).Run(context.Background())
	require.ErrorIs(t, err, ErrEmptyScan)
	require.Empty(t, index.ops, "an aborted run must not touch the index")
	require.Zero(t, state.saves)
}

func TestEmptyScanWithEmptyStateSucceeds(t *testing.T) {
	corpus := &fakeCorpus{objects: map[string]string{}}
	state := &fakeState{}

	report, err := newTestReconciler(t, corpus, newFakeIndex(), state).Run(context.Background())
	require.NoError(t, err)
	require.Zero(t, report.Scanned)
	require.Equal(t, 1, state.saves)
}

func TestScanErrorAbortsRun(t *testing.T) {
	corpus := &fakeCorpus{listErr: fmt.Errorf("mount gone: %w", objectstore.ErrUnavailable)}
	state := &fakeState{}

	_, err := newTestReconciler(t, corpus, newFakeIndex(), state).Run(context.Background())
	require.ErrorIs(t, err, ErrScanFailed)
	require.Zero(t, state.saves)
}

func TestFailedDocumentSkippedAndRetriedNextRun(t *testing.T) {
	corpus := &fakeCorpus{objects: map[string]string{"a.txt": "alpha", "b.txt": "beta"}}
	index := newFakeIndex()
	index.upsertFails["a.txt"] = 2 // exhausts the single retry
	state := &fakeState{}
	r := newTestReconciler(t, corpus, index, state)

	report, err := r.Run(context.Background())
	require.NoError(t, err, "one bad document must not fail the run")
	require.Equal(t, 1, report.Skipped)
	require.NotContains(t, state.state.Documents, "a.txt")
	require.Contains(t, state.state.Documents, "b.txt")

	// Next run sees the skipped document as new and indexes it.
	report, err = r.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Added)
	require.Zero(t, report.Skipped)
	require.Contains(t, state.state.Documents, "a.txt")
}

func TestTransientIndexFailureRetriedOnce(t *testing.T) {
	corpus := &fakeCorpus{objects: map[string]string{"a.txt": "alpha"}}
	index := newFakeIndex()
	index.upsertFails["a.txt"] = 1
	state := &fakeState{}

	report, err := newTestReconciler(t, corpus, index, state).Run(context.Background())
	require.NoError(t, err)
	require.Zero(t, report.Skipped)
	require.Equal(t, []string{"upsert-fail a.txt", "upsert a.txt:1"}, index.ops)
}

func TestFailedDeleteKeepsStateEntry(t *testing.T) {
	corpus := &fakeCorpus{objects: map[string]string{"b.txt": "beta"}}
	index := newFakeIndex()
	index.deleteFails["a.txt"] = 2
	prior := NewSyncState()
	prior.Documents["a.txt"] = DocumentRecord{Fingerprint: "alpha", ChunkCount: 1}
	prior.Documents["b.txt"] = DocumentRecord{Fingerprint: "beta", ChunkCount: 1}
	state := &fakeState{state: prior}

	report, err := newTestReconciler(t, corpus, index, state).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Skipped)
	// Entry survives so the next run retries the deletion.
	require.Contains(t, state.state.Documents, "a.txt")
}

func TestCommitFailureReturnsError(t *testing.T) {
	corpus := &fakeCorpus{objects: map[string]string{"a.txt": "alpha"}}
	state := &fakeState{saveErr: errors.New("disk full")}

	_, err := newTestReconciler(t, corpus, newFakeIndex(), state).Run(context.Background())
	require.Error(t, err)
}

func TestCancelledContextStopsBetweenDocuments(t *testing.T) {
	corpus := &fakeCorpus{objects: map[string]string{"a.txt": "alpha"}}
	state := &fakeState{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestReconciler(t, corpus, newFakeIndex(), state).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, state.saves, "a cancelled run must not commit")
}

func TestRunLockRejectsConcurrentRun(t *testing.T) {
	var lock RunLock
	release, err := lock.Acquire()
	require.NoError(t, err)

	_, err = lock.Acquire()
	require.ErrorIs(t, err, ErrRunInProgress)

	release()
	release2, err := lock.Acquire()
	require.NoError(t, err)
	release2()
}
