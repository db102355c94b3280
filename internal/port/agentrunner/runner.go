// Package agentrunner defines the agent-execution port (interface).
//
// The runtime that actually executes model calls is an external
// collaborator: the factory sends a task and gets back a success flag, a
// textual result, and token usage. Everything else about it is opaque.
package agentrunner

import (
	"context"

	"github.com/Strob0t/AgentFoundry/internal/domain/agent"
)

// Request describes one unit of work for the agent runtime.
type Request struct {
	Role         agent.Role `json:"role"`
	Description  string     `json:"description"`
	Capabilities []string   `json:"capabilities,omitempty"`
	Model        string     `json:"model,omitempty"`
	WorktreePath string     `json:"worktree_path,omitempty"`
}

// Result is the runtime's answer for one request.
type Result struct {
	Success   bool   `json:"success"`
	Output    string `json:"output"`
	TokensIn  int64  `json:"tokens_in"`
	TokensOut int64  `json:"tokens_out"`
}

// Runner is the port interface for the agent-execution collaborator.
type Runner interface {
	// Execute runs one request to completion or ctx expiry.
	Execute(ctx context.Context, req Request) (*Result, error)
}
