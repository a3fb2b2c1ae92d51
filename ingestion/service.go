package ingestion

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/fabfab/ragserver/embeddings"
	"github.com/fabfab/ragserver/vectorstore"
)

const (
	StatusSuccess = "SUCCESS"
	StatusFailed  = "FAILED"
)

// UploadResult describes one ingestion attempt. Failures are reported here,
// never as errors to the caller.
type UploadResult struct {
	DocumentID    string    `json:"documentId,omitempty"`
	Filename      string    `json:"filename"`
	ChunksCreated int       `json:"chunksCreated"`
	Status        string    `json:"status"`
	Message       string    `json:"message"`
	Timestamp     time.Time `json:"timestamp"`
}

// File is one named payload for batch ingestion.
type File struct {
	Name string
	Data []byte
}

type Service struct {
	store    vectorstore.Store
	embedder embeddings.Embedder
	splitter *Splitter
	logger   *log.Logger
}

func NewService(store vectorstore.Store, embedder embeddings.Embedder, splitter *Splitter, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}

	return &Service{
		store:    store,
		embedder: embedder,
		splitter: splitter,
		logger:   logger,
	}
}

// Ingest parses one document, splits it into chunks, stamps every chunk with
// a fresh document id plus the source filename, and stores the batch. Any
// parse, embed, or store error is logged and converted to a FAILED result.
func (s *Service) Ingest(ctx context.Context, data []byte, filename string) UploadResult {
	documentID := uuid.NewString()

	units, err := parseDocument(data, filename)
	if err != nil {
		return s.failure(filename, fmt.Errorf("parse document: %w", err))
	}

	texts := make([]string, 0, len(units))
	chunks := make([]vectorstore.Chunk, 0, len(units))
	for _, u := range units {
		for _, text := range s.splitter.Split(u.Text) {
			metadata := map[string]string{
				vectorstore.MetaDocumentID: documentID,
				vectorstore.MetaFilename:   filename,
				vectorstore.MetaSource:     filename,
			}
			for key, value := range u.Metadata {
				metadata[key] = value
			}

			texts = append(texts, text)
			chunks = append(chunks, vectorstore.Chunk{
				ID:       uuid.NewString(),
				Content:  text,
				Metadata: metadata,
			})
		}
	}

	if len(chunks) == 0 {
		return s.failure(filename, fmt.Errorf("document contains no text"))
	}

	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return s.failure(filename, fmt.Errorf("generate embeddings: %w", err))
	}
	if len(vectors) != len(chunks) {
		return s.failure(filename, fmt.Errorf("embedding count mismatch: have %d chunks, %d embeddings", len(chunks), len(vectors)))
	}
	for i := range chunks {
		chunks[i].Embedding = vectors[i]
	}

	if err := s.store.Add(ctx, chunks); err != nil {
		return s.failure(filename, fmt.Errorf("store chunks: %w", err))
	}

	s.logger.Printf("ingested %s (%d chunks)", filename, len(chunks))
	return UploadResult{
		DocumentID:    documentID,
		Filename:      filename,
		ChunksCreated: len(chunks),
		Status:        StatusSuccess,
		Message:       "Document successfully processed and indexed",
		Timestamp:     time.Now(),
	}
}

// IngestAll processes files independently; one failure never aborts the rest.
func (s *Service) IngestAll(ctx context.Context, files []File) []UploadResult {
	results := make([]UploadResult, 0, len(files))
	for _, file := range files {
		results = append(results, s.Ingest(ctx, file.Data, file.Name))
	}
	return results
}

// Delete removes every chunk of a document. Deleting an unknown id succeeds.
func (s *Service) Delete(ctx context.Context, documentID string) error {
	if err := s.store.DeleteByDocumentID(ctx, documentID); err != nil {
		return fmt.Errorf("delete document %s: %w", documentID, err)
	}
	s.logger.Printf("deleted document %s", documentID)
	return nil
}

// SeedDirectory ingests every regular file under dir, but only when the
// vector store is empty. Used at startup.
func (s *Service) SeedDirectory(ctx context.Context, dir string) error {
	count, err := s.store.Count(ctx)
	if err != nil {
		return fmt.Errorf("count chunks: %w", err)
	}
	if count > 0 {
		s.logger.Printf("vector store already populated, skipping seed ingestion")
		return nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read seed directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		data, readErr := os.ReadFile(filepath.Join(dir, entry.Name()))
		if readErr != nil {
			s.logger.Printf("seed read failed for %s: %v", entry.Name(), readErr)
			continue
		}

		result := s.Ingest(ctx, data, entry.Name())
		if result.Status == StatusFailed {
			s.logger.Printf("seed ingest failed for %s: %s", entry.Name(), result.Message)
		}
	}

	return nil
}

func (s *Service) failure(filename string, err error) UploadResult {
	s.logger.Printf("ingest failed for %s: %v", filename, err)
	return UploadResult{
		Filename:  filename,
		Status:    StatusFailed,
		Message:   err.Error(),
		Timestamp: time.Now(),
	}
}
