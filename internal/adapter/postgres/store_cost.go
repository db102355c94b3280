package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Strob0t/AgentFoundry/internal/domain/cost"
)

func (s *Store) AppendCost(ctx context.Context, e *cost.Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO cost_entries (id, project_id, model, tokens_in, tokens_out, cost_usd, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.ProjectID, e.Model, e.TokensIn, e.TokensOut, e.CostUSD, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("append cost entry: %w", err)
	}
	return nil
}

func (s *Store) ProjectCost(ctx context.Context, projectID string) (*cost.Summary, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(cost_usd), 0), COALESCE(SUM(tokens_in), 0), COALESCE(SUM(tokens_out), 0), COUNT(*)
		 FROM cost_entries WHERE project_id = $1`, projectID)

	var sum cost.Summary
	if err := row.Scan(&sum.TotalCostUSD, &sum.TotalTokensIn, &sum.TotalTokensOut, &sum.OperationCount); err != nil {
		return nil, fmt.Errorf("project cost %s: %w", projectID, err)
	}
	return &sum, nil
}

func (s *Store) CostByModel(ctx context.Context) ([]cost.ModelSummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT model, SUM(cost_usd), SUM(tokens_in), SUM(tokens_out), COUNT(*)
		 FROM cost_entries GROUP BY model ORDER BY SUM(cost_usd) DESC`)
	if err != nil {
		return nil, fmt.Errorf("cost by model: %w", err)
	}
	defer rows.Close()

	var summaries []cost.ModelSummary
	for rows.Next() {
		var ms cost.ModelSummary
		if err := rows.Scan(&ms.Model, &ms.TotalCostUSD, &ms.TotalTokensIn, &ms.TotalTokensOut, &ms.OperationCount); err != nil {
			return nil, fmt.Errorf("scan model summary: %w", err)
		}
		summaries = append(summaries, ms)
	}
	return summaries, rows.Err()
}
