// Package cost defines domain types for cost and token aggregation.
package cost

import "time"

// Entry is one row in the durable cost ledger: a single recorded model
// operation converted to USD via the price table.
type Entry struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Model     string    `json:"model"`
	TokensIn  int64     `json:"tokens_in"`
	TokensOut int64     `json:"tokens_out"`
	CostUSD   float64   `json:"cost_usd"`
	CreatedAt time.Time `json:"created_at"`
}

// Summary holds aggregate cost and token metrics.
type Summary struct {
	TotalCostUSD   float64 `json:"total_cost_usd"`
	TotalTokensIn  int64   `json:"total_tokens_in"`
	TotalTokensOut int64   `json:"total_tokens_out"`
	OperationCount int     `json:"operation_count"`
}

// ProjectSummary extends Summary with project identification.
type ProjectSummary struct {
	ProjectID string `json:"project_id"`
	Summary
}

// ModelSummary breaks down cost by model.
type ModelSummary struct {
	Model string `json:"model"`
	Summary
}
