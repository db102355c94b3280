// Package project defines the Project domain entity: one isolated unit of
// work with exactly one branch and one working copy.
package project

import (
	"errors"
	"time"

	"github.com/Strob0t/AgentFoundry/internal/domain"
)

// Status represents the lifecycle state of a project.
type Status string

const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// transitions is the allowed status transition table.
var transitions = map[Status][]Status{
	StatusActive:    {StatusPaused, StatusCompleted, StatusFailed},
	StatusPaused:    {StatusActive, StatusFailed},
	StatusCompleted: {},
	StatusFailed:    {},
}

// Project represents one isolated unit of work: a branch plus a working copy,
// carved from the base repository and destroyed as a pair.
type Project struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Branch       string    `json:"branch"`
	WorktreePath string    `json:"worktree_path"`
	Status       Status    `json:"status"`
	ParentID     string    `json:"parent_id,omitempty"`
	ChildIDs     []string  `json:"child_ids,omitempty"`
	CostUSD      float64   `json:"cost_usd"`
	TokensIn     int64     `json:"tokens_in"`
	TokensOut    int64     `json:"tokens_out"`
	Version      int       `json:"version"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CreateRequest holds the fields needed to create a new project.
type CreateRequest struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	BaseBranch string `json:"base_branch"`
	ParentID   string `json:"parent_id,omitempty"`
}

// Validate checks that a CreateRequest has all required fields.
func (r *CreateRequest) Validate() error {
	if r.ID == "" {
		return errors.New("id is required")
	}
	if r.Name == "" {
		return errors.New("name is required")
	}
	return nil
}

// Transition moves the project to the given status, rejecting moves not in
// the transition table.
func (p *Project) Transition(to Status) error {
	if p.Status == to {
		return nil
	}
	for _, allowed := range transitions[p.Status] {
		if allowed == to {
			p.Status = to
			p.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return domain.NewTransitionError("project", string(p.Status), string(to))
}

// Terminal reports whether the project can no longer change status.
func (p *Project) Terminal() bool {
	return p.Status == StatusCompleted || p.Status == StatusFailed
}

// AddCost accumulates cost and token usage onto the project counters.
func (p *Project) AddCost(costUSD float64, tokensIn, tokensOut int64) {
	p.CostUSD += costUSD
	p.TokensIn += tokensIn
	p.TokensOut += tokensOut
	p.UpdatedAt = time.Now().UTC()
}
