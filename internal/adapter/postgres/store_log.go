package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Strob0t/AgentFoundry/internal/domain/orchestration"
)

func (s *Store) AppendLogEntry(ctx context.Context, e *orchestration.LogEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO collab_log (id, project_id, from_agent, to_agent, kind, content, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.ProjectID, e.From, e.To, e.Kind, e.Content, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("append log entry: %w", err)
	}
	return nil
}

func (s *Store) ListLogEntries(ctx context.Context, projectID string, limit int) ([]orchestration.LogEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, project_id, from_agent, to_agent, kind, content, created_at
		 FROM collab_log WHERE project_id = $1 ORDER BY created_at DESC LIMIT $2`,
		projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("list log entries: %w", err)
	}
	defer rows.Close()

	var entries []orchestration.LogEntry
	for rows.Next() {
		var e orchestration.LogEntry
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.From, &e.To, &e.Kind, &e.Content, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan log entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
