package ingestion

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"

	"github.com/fabfab/ragserver/vectorstore"
)

type stubEmbedder struct {
	err error
}

func (s *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{1, 0, 0}
	}
	return vectors, nil
}

type failingStore struct {
	vectorstore.MemoryStore
}

func (s *failingStore) Add(context.Context, []vectorstore.Chunk) error {
	return errors.New("store unavailable")
}

func newTestService(t *testing.T, store vectorstore.Store, embedder *stubEmbedder) *Service {
	t.Helper()
	splitter, err := NewSplitter(50, 10)
	if err != nil {
		t.Fatalf("new splitter: %v", err)
	}
	return NewService(store, embedder, splitter, log.New(io.Discard, "", 0))
}

func TestIngestPlainText(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	svc := newTestService(t, store, &stubEmbedder{})

	result := svc.Ingest(context.Background(), []byte("a small document about nothing in particular"), "note.txt")

	if result.Status != StatusSuccess {
		t.Fatalf("status = %s, message = %s", result.Status, result.Message)
	}
	if result.DocumentID == "" {
		t.Error("success result has no document id")
	}
	if result.Filename != "note.txt" {
		t.Errorf("filename = %q", result.Filename)
	}
	if result.ChunksCreated < 1 {
		t.Errorf("chunks created = %d", result.ChunksCreated)
	}

	count, err := store.Count(context.Background())
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != result.ChunksCreated {
		t.Errorf("stored %d chunks, result reports %d", count, result.ChunksCreated)
	}
}

func TestIngestStampsMetadata(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	svc := newTestService(t, store, &stubEmbedder{})

	result := svc.Ingest(context.Background(), []byte("## Heading\nsection body text"), "guide.md")
	if result.Status != StatusSuccess {
		t.Fatalf("status = %s, message = %s", result.Status, result.Message)
	}

	results, err := store.Search(context.Background(), vectorstore.SearchRequest{
		Embedding:  []float32{1, 0, 0},
		TopK:       10,
		DocumentID: result.DocumentID,
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("no chunks stored under the document id")
	}
	for _, r := range results {
		if r.Metadata[vectorstore.MetaFilename] != "guide.md" {
			t.Errorf("filename metadata = %q", r.Metadata[vectorstore.MetaFilename])
		}
		if r.Metadata[vectorstore.MetaSource] != "guide.md" {
			t.Errorf("source metadata = %q", r.Metadata[vectorstore.MetaSource])
		}
	}
}

func TestIngestEmptyDocumentFails(t *testing.T) {
	svc := newTestService(t, vectorstore.NewMemoryStore(), &stubEmbedder{})

	result := svc.Ingest(context.Background(), []byte("   "), "empty.txt")
	if result.Status != StatusFailed {
		t.Fatalf("status = %s, want FAILED", result.Status)
	}
	if result.DocumentID != "" {
		t.Error("failed result carries a document id")
	}
}

func TestIngestEmbedderFailure(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	svc := newTestService(t, store, &stubEmbedder{err: errors.New("provider down")})

	result := svc.Ingest(context.Background(), []byte("some text"), "note.txt")
	if result.Status != StatusFailed {
		t.Fatalf("status = %s, want FAILED", result.Status)
	}

	count, _ := store.Count(context.Background())
	if count != 0 {
		t.Errorf("failed ingest stored %d chunks", count)
	}
}

func TestIngestStoreFailure(t *testing.T) {
	svc := newTestService(t, &failingStore{}, &stubEmbedder{})

	result := svc.Ingest(context.Background(), []byte("some text"), "note.txt")
	if result.Status != StatusFailed {
		t.Fatalf("status = %s, want FAILED", result.Status)
	}
}

func TestIngestAllIndependentFailures(t *testing.T) {
	svc := newTestService(t, vectorstore.NewMemoryStore(), &stubEmbedder{})

	results := svc.IngestAll(context.Background(), []File{
		{Name: "good.txt", Data: []byte("usable content")},
		{Name: "empty.txt", Data: []byte("")},
		{Name: "also-good.txt", Data: []byte("more usable content")},
	})

	if len(results) != 3 {
		t.Fatalf("results = %d, want one per file", len(results))
	}
	if results[0].Status != StatusSuccess || results[2].Status != StatusSuccess {
		t.Error("a failing file aborted its siblings")
	}
	if results[1].Status != StatusFailed {
		t.Error("empty file did not fail")
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	svc := newTestService(t, store, &stubEmbedder{})

	result := svc.Ingest(context.Background(), []byte("content to delete"), "gone.txt")
	if result.Status != StatusSuccess {
		t.Fatalf("ingest: %s", result.Message)
	}

	if err := svc.Delete(context.Background(), result.DocumentID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := svc.Delete(context.Background(), result.DocumentID); err != nil {
		t.Fatalf("second delete: %v", err)
	}

	count, _ := store.Count(context.Background())
	if count != 0 {
		t.Errorf("chunks remain after delete: %d", count)
	}
}

func TestSeedDirectorySkipsPopulatedStore(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	err := store.Add(context.Background(), []vectorstore.Chunk{{
		ID:        "existing",
		Content:   "already here",
		Metadata:  map[string]string{vectorstore.MetaDocumentID: "doc"},
		Embedding: []float32{1},
	}})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	svc := newTestService(t, store, &stubEmbedder{})
	if err := svc.SeedDirectory(context.Background(), t.TempDir()); err != nil {
		t.Fatalf("seed: %v", err)
	}

	count, _ := store.Count(context.Background())
	if count != 1 {
		t.Errorf("populated store was reseeded, count = %d", count)
	}
}
