// Package database defines the database store port (interface).
package database

import (
	"context"

	"github.com/Strob0t/AgentFoundry/internal/domain/cost"
	"github.com/Strob0t/AgentFoundry/internal/domain/orchestration"
	"github.com/Strob0t/AgentFoundry/internal/domain/project"
	"github.com/Strob0t/AgentFoundry/internal/domain/task"
)

// Store is the port interface for the system-of-record database.
type Store interface {
	// Projects
	ListProjects(ctx context.Context) ([]project.Project, error)
	GetProject(ctx context.Context, id string) (*project.Project, error)
	CreateProject(ctx context.Context, p *project.Project) error
	UpdateProject(ctx context.Context, p *project.Project) error
	DeleteProject(ctx context.Context, id string) error

	// Tasks (versioned list per project; version increases on every write)
	ListTasks(ctx context.Context, projectID string) ([]task.Task, error)
	GetTask(ctx context.Context, id string) (*task.Task, error)
	CreateTask(ctx context.Context, t *task.Task) error
	UpdateTask(ctx context.Context, t *task.Task) error

	// Cost ledger
	AppendCost(ctx context.Context, e *cost.Entry) error
	ProjectCost(ctx context.Context, projectID string) (*cost.Summary, error)
	CostByModel(ctx context.Context) ([]cost.ModelSummary, error)

	// Collaboration log archive
	AppendLogEntry(ctx context.Context, e *orchestration.LogEntry) error
	ListLogEntries(ctx context.Context, projectID string, limit int) ([]orchestration.LogEntry, error)

	// API keys (hash is a bcrypt digest of the presented key)
	CreateAPIKey(ctx context.Context, name, hash string) error
	ListAPIKeyHashes(ctx context.Context) ([]string, error)
}
