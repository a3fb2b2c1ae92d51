package vectorstore

import "context"

// Metadata keys attached to every stored chunk.
const (
	MetaDocumentID = "document_id"
	MetaFilename   = "filename"
	MetaSource     = "source"
	MetaPage       = "page"
)

type Chunk struct {
	ID        string
	Content   string
	Metadata  map[string]string
	Embedding []float32
}

type Result struct {
	Chunk
	Score float64
}

type SearchRequest struct {
	Embedding []float32
	TopK      int
	// Floor is the minimum similarity score; results below it are dropped.
	Floor float64
	// DocumentID, when non-empty, restricts results to chunks of one document.
	DocumentID string
}

// Store persists document chunks and answers nearest-neighbor queries by
// embedding similarity. Results are ordered by descending similarity.
type Store interface {
	Add(ctx context.Context, chunks []Chunk) error
	Search(ctx context.Context, req SearchRequest) ([]Result, error)
	// DeleteByDocumentID removes every chunk of a document. Deleting an
	// unknown id is a no-op.
	DeleteByDocumentID(ctx context.Context, documentID string) error
	Count(ctx context.Context) (int, error)
}
