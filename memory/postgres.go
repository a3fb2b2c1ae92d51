package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresStore struct {
	pool   *pgxpool.Pool
	window int
}

func NewPostgresStore(pool *pgxpool.Pool, window int) *PostgresStore {
	if window <= 0 {
		window = DefaultWindow
	}
	return &PostgresStore{pool: pool, window: window}
}

func (s *PostgresStore) GetOrCreate(ctx context.Context, conversationID string) ([]Message, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}

	rows, err := s.pool.Query(ctx, `
		SELECT role, content, created_at
		FROM chat_messages
		WHERE conversation_id = $1
		ORDER BY id
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("query conversation: %w", err)
	}
	defer rows.Close()

	messages := make([]Message, 0, s.window)
	for rows.Next() {
		var msg Message
		if scanErr := rows.Scan(&msg.Role, &msg.Content, &msg.CreatedAt); scanErr != nil {
			return nil, fmt.Errorf("scan message: %w", scanErr)
		}
		messages = append(messages, msg)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return messages, nil
}

func (s *PostgresStore) Append(ctx context.Context, conversationID string, messages ...Message) error {
	if s.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	if len(messages) == 0 {
		return nil
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	for _, msg := range messages {
		createdAt := msg.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO chat_messages (conversation_id, role, content, created_at)
			VALUES ($1, $2, $3, $4)
		`, conversationID, msg.Role, msg.Content, createdAt); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
	}

	// Evict the oldest messages beyond the retained window.
	if _, err := tx.Exec(ctx, `
		DELETE FROM chat_messages
		WHERE conversation_id = $1
		  AND id NOT IN (
			SELECT id FROM chat_messages
			WHERE conversation_id = $1
			ORDER BY id DESC
			LIMIT $2
		  )
	`, conversationID, s.window); err != nil {
		return fmt.Errorf("trim conversation window: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) Clear(ctx context.Context, conversationID string) error {
	if s.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	if _, err := s.pool.Exec(ctx, "DELETE FROM chat_messages WHERE conversation_id = $1", conversationID); err != nil {
		return fmt.Errorf("clear conversation: %w", err)
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)
