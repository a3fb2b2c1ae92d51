package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// MemoryStore is a brute-force cosine-similarity store. It backs tests and
// small local setups where Postgres is not available.
type MemoryStore struct {
	mu     sync.RWMutex
	chunks []Chunk
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Add(_ context.Context, chunks []Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, chunk := range chunks {
		if len(chunk.Embedding) == 0 {
			return fmt.Errorf("chunk %s has no embedding", chunk.ID)
		}
	}
	s.chunks = append(s.chunks, chunks...)
	return nil
}

func (s *MemoryStore) Search(_ context.Context, req SearchRequest) ([]Result, error) {
	if len(req.Embedding) == 0 {
		return nil, fmt.Errorf("embedding is empty")
	}

	limit := req.TopK
	if limit <= 0 {
		limit = 5
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]Result, 0, limit)
	for _, chunk := range s.chunks {
		if req.DocumentID != "" && chunk.Metadata[MetaDocumentID] != req.DocumentID {
			continue
		}
		score := cosine(req.Embedding, chunk.Embedding)
		if score < req.Floor {
			continue
		}
		results = append(results, Result{Chunk: chunk, Score: score})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (s *MemoryStore) DeleteByDocumentID(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.chunks[:0]
	for _, chunk := range s.chunks {
		if chunk.Metadata[MetaDocumentID] != documentID {
			kept = append(kept, chunk)
		}
	}
	s.chunks = kept
	return nil
}

func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks), nil
}

func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

var _ Store = (*MemoryStore)(nil)
