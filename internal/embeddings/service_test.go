package embeddings

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Service {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	svc, err := NewService(Config{BaseURL: srv.URL}, nil)
	if err != nil {
		t.Fatal(err)
	}
	return svc
}

func TestEmbedDocuments(t *testing.T) {
	svc := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embed" {
			t.Errorf("path = %s, want /embed", r.URL.Path)
		}
		var req struct {
			Inputs []string `json:"inputs"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		out := make([][]float32, len(req.Inputs))
		for i := range out {
			out[i] = []float32{float32(i), 1}
		}
		_ = json.NewEncoder(w).Encode(out)
	})

	vectors, err := svc.EmbedDocuments(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("EmbedDocuments: %v", err)
	}
	if len(vectors) != 2 {
		t.Fatalf("got %d vectors, want 2", len(vectors))
	}
}

func TestEmbedQuery(t *testing.T) {
	svc := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([][]float32{{0.1, 0.2}})
	})

	vec, err := svc.EmbedQuery(context.Background(), "hello")
	if err != nil {
		t.Fatalf("EmbedQuery: %v", err)
	}
	if len(vec) != 2 {
		t.Errorf("vector length = %d, want 2", len(vec))
	}
}

func TestEmbedEmptyInput(t *testing.T) {
	svc := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {})

	if _, err := svc.EmbedDocuments(context.Background(), nil); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("EmbedDocuments(nil) err = %v, want ErrEmptyInput", err)
	}
	if _, err := svc.EmbedQuery(context.Background(), ""); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("EmbedQuery(\"\") err = %v, want ErrEmptyInput", err)
	}
}

func TestEmbedServerError(t *testing.T) {
	svc := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	if _, err := svc.EmbedDocuments(context.Background(), []string{"x"}); !errors.Is(err, ErrEmbeddingFailed) {
		t.Errorf("err = %v, want ErrEmbeddingFailed", err)
	}
}

func TestEmbedVectorCountMismatch(t *testing.T) {
	svc := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([][]float32{{1}})
	})

	if _, err := svc.EmbedDocuments(context.Background(), []string{"a", "b"}); !errors.Is(err, ErrEmbeddingFailed) {
		t.Errorf("err = %v, want ErrEmbeddingFailed on count mismatch", err)
	}
}
