package retrieval

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/corpusd/internal/accessfilter"
	"github.com/fyrsmithlabs/corpusd/internal/profile"
	"github.com/fyrsmithlabs/corpusd/internal/tags"
	"github.com/fyrsmithlabs/corpusd/internal/vectorstore"
)

type fakeIdentities struct {
	profiles map[string]*profile.AccessProfile
}

func (f *fakeIdentities) GetProfile(ctx context.Context, userID string) (*profile.AccessProfile, error) {
	p, ok := f.profiles[userID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", userID, profile.ErrNotFound)
	}
	return p, nil
}

// fakeSearchStore returns canned chunks filtered by the predicate it
// receives, and records that a predicate was applied at all.
type fakeSearchStore struct {
	chunks   []vectorstore.SearchResult
	lastPred accessfilter.Predicate
	queryErr error
}

func (f *fakeSearchStore) UpsertChunks(ctx context.Context, chunks []vectorstore.Chunk) error {
	return nil
}

func (f *fakeSearchStore) DeleteBySource(ctx context.Context, sourceKey string) error {
	return nil
}

func (f *fakeSearchStore) Query(ctx context.Context, query string, pred accessfilter.Predicate, k int) ([]vectorstore.SearchResult, error) {
	f.lastPred = pred
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	var out []vectorstore.SearchResult
	for _, c := range f.chunks {
		if pred.Matches(c.Tags) {
			out = append(out, c)
		}
		if len(out) == k {
			break
		}
	}
	return out, nil
}

func (f *fakeSearchStore) Close() error { return nil }

func newTestService(t *testing.T, identities *fakeIdentities, store *fakeSearchStore) *Service {
	t.Helper()
	svc, err := NewService(identities, store, nil)
	require.NoError(t, err)
	return svc
}

func TestQueryFiltersByProfile(t *testing.T) {
	store := &fakeSearchStore{chunks: []vectorstore.SearchResult{
		{SourceKey: "general.txt", Tags: tags.Defaults()},
		{SourceKey: "it.txt", Tags: tags.AccessTagSet{Department: "IT", Project: "GENERAL", Role: "GENERAL"}},
	}}
	identities := &fakeIdentities{profiles: map[string]*profile.AccessProfile{
		"alice": profile.New("alice", 0, []string{"IT"}, nil, nil),
		"bob":   profile.New("bob", 0, nil, nil, nil),
	}}
	svc := newTestService(t, identities, store)

	results, err := svc.Query(context.Background(), "alice", "anything", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)

	results, err = svc.Query(context.Background(), "bob", "anything", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "general.txt", results[0].SourceKey)
}

func TestQueryUnknownUserFailsClosed(t *testing.T) {
	store := &fakeSearchStore{chunks: []vectorstore.SearchResult{
		{SourceKey: "general.txt", Tags: tags.Defaults()},
	}}
	svc := newTestService(t, &fakeIdentities{}, store)

	results, err := svc.Query(context.Background(), "nobody", "anything", 10)
	require.NoError(t, err, "an unknown user is silence, not an error")
	require.Empty(t, results)
	require.Nil(t, store.lastPred, "the index must not be queried for an unknown user")
}

func TestQueryEmptyString(t *testing.T) {
	svc := newTestService(t, &fakeIdentities{}, &fakeSearchStore{})
	_, err := svc.Query(context.Background(), "alice", "", 10)
	require.ErrorIs(t, err, ErrEmptyQuery)
}

func TestQueryDefaultsTopK(t *testing.T) {
	store := &fakeSearchStore{}
	for i := 0; i < 20; i++ {
		store.chunks = append(store.chunks, vectorstore.SearchResult{
			SourceKey: fmt.Sprintf("doc%d.txt", i),
			Tags:      tags.Defaults(),
		})
	}
	identities := &fakeIdentities{profiles: map[string]*profile.AccessProfile{
		"alice": profile.New("alice", 0, nil, nil, nil),
	}}
	svc := newTestService(t, identities, store)

	results, err := svc.Query(context.Background(), "alice", "anything", 0)
	require.NoError(t, err)
	require.Len(t, results, DefaultTopK)
}

func TestQueryStoreError(t *testing.T) {
	store := &fakeSearchStore{queryErr: errors.New("index down")}
	identities := &fakeIdentities{profiles: map[string]*profile.AccessProfile{
		"alice": profile.New("alice", 0, nil, nil, nil),
	}}
	svc := newTestService(t, identities, store)

	_, err := svc.Query(context.Background(), "alice", "anything", 5)
	require.Error(t, err)
}
