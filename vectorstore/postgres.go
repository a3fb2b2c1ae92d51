package vectorstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Add(ctx context.Context, chunks []Chunk) error {
	if s.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	if len(chunks) == 0 {
		return nil
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	for idx, chunk := range chunks {
		if len(chunk.Embedding) == 0 {
			return fmt.Errorf("chunk %d has no embedding", idx)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO rag_chunks (id, document_id, chunk_index, content, metadata, embedding)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, chunk.ID, chunk.Metadata[MetaDocumentID], idx, chunk.Content, chunk.Metadata, pgvector.NewVector(chunk.Embedding)); err != nil {
			return fmt.Errorf("insert chunk %d: %w", idx, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

func (s *PostgresStore) Search(ctx context.Context, req SearchRequest) ([]Result, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	if len(req.Embedding) == 0 {
		return nil, fmt.Errorf("embedding is empty")
	}

	limit := req.TopK
	if limit <= 0 {
		limit = 5
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	probes := limit * 10
	if probes < 10 {
		probes = 10
	}
	if _, err := conn.Exec(ctx, fmt.Sprintf("SET ivfflat.probes = %d", probes)); err != nil {
		return nil, fmt.Errorf("set ivfflat probes: %w", err)
	}

	rows, err := conn.Query(ctx, `
        SELECT
            id,
            content,
            metadata,
            1 - (embedding <=> $1::vector) AS score
        FROM rag_chunks
        WHERE ($2 = '' OR metadata->>'document_id' = $2)
          AND 1 - (embedding <=> $1::vector) >= $3
        ORDER BY embedding <=> $1::vector
        LIMIT $4
    `, pgvector.NewVector(req.Embedding), req.DocumentID, req.Floor, limit)
	if err != nil {
		return nil, fmt.Errorf("query similar chunks: %w", err)
	}
	defer rows.Close()

	results := make([]Result, 0, limit)
	for rows.Next() {
		var item Result
		if scanErr := rows.Scan(&item.ID, &item.Content, &item.Metadata, &item.Score); scanErr != nil {
			return nil, fmt.Errorf("scan similar chunk: %w", scanErr)
		}
		results = append(results, item)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return results, nil
}

func (s *PostgresStore) DeleteByDocumentID(ctx context.Context, documentID string) error {
	if s.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}

	if _, err := s.pool.Exec(ctx, "DELETE FROM rag_chunks WHERE metadata->>'document_id' = $1", documentID); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	return nil
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	if s.pool == nil {
		return 0, fmt.Errorf("postgres pool is nil")
	}

	var count int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM rag_chunks").Scan(&count); err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return count, nil
}

var _ Store = (*PostgresStore)(nil)
