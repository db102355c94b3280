package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

func (s *Store) CreateAPIKey(ctx context.Context, name, hash string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, name, key_hash, created_at) VALUES ($1, $2, $3, $4)`,
		uuid.NewString(), name, hash, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *Store) ListAPIKeyHashes(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT key_hash FROM api_keys ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list api key hashes: %w", err)
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("scan api key hash: %w", err)
		}
		hashes = append(hashes, h)
	}
	return hashes, rows.Err()
}
