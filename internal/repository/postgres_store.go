package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type postgresStore struct {
	db *sql.DB
}

// NewPostgresStore keeps each document as a row of catalog_documents
func NewPostgresStore(db *sql.DB) DocumentStore {
	return &postgresStore{db: db}
}

func (s *postgresStore) Read(ctx context.Context, name string) ([]byte, error) {
	query := `SELECT body FROM catalog_documents WHERE name = $1`

	var body []byte
	err := s.db.QueryRowContext(ctx, query, name).Scan(&body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read document %s: %w", name, err)
	}

	return body, nil
}

func (s *postgresStore) Write(ctx context.Context, name string, data []byte) error {
	query := `
		INSERT INTO catalog_documents (name, body, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (name) DO UPDATE SET body = EXCLUDED.body, updated_at = EXCLUDED.updated_at
	`

	if _, err := s.db.ExecContext(ctx, query, name, data); err != nil {
		return fmt.Errorf("failed to write document %s: %w", name, err)
	}

	return nil
}
