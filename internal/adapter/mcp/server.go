// Package mcp exposes a read-only Model Context Protocol surface so
// MCP-capable agents can inspect factory state: projects, tasks, gate
// ledgers, continuity checkpoints, and cost.
package mcp

import (
	"context"
	"log/slog"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/Strob0t/AgentFoundry/internal/domain/cost"
	"github.com/Strob0t/AgentFoundry/internal/domain/forward"
	"github.com/Strob0t/AgentFoundry/internal/domain/project"
	"github.com/Strob0t/AgentFoundry/internal/domain/task"
)

// ProjectReader reads projects.
type ProjectReader interface {
	ListProjects(ctx context.Context) ([]project.Project, error)
	GetProject(ctx context.Context, id string) (*project.Project, error)
}

// TaskReader reads a project's task graph.
type TaskReader interface {
	List(ctx context.Context, projectID string) ([]task.Task, error)
}

// GateReader reads the durable nag status ledger.
type GateReader interface {
	ExportText(ctx context.Context, projectID string) (string, error)
}

// ForwardReader reads the continuity checkpoint.
type ForwardReader interface {
	Read(ctx context.Context, unitID string) (forward.Prompt, error)
}

// CostReader reads cost aggregates.
type CostReader interface {
	CostByModel(ctx context.Context) ([]cost.ModelSummary, error)
}

// ServerConfig holds MCP server settings.
type ServerConfig struct {
	Name    string
	Version string
}

// ServerDeps holds the read-only collaborators the tools expose. Nil fields
// disable the corresponding tools gracefully.
type ServerDeps struct {
	Projects ProjectReader
	Tasks    TaskReader
	Gate     GateReader
	Forward  ForwardReader
	Costs    CostReader
}

// Server is the MCP server over stdio.
type Server struct {
	cfg       ServerConfig
	deps      ServerDeps
	mcpServer *mcpserver.MCPServer
}

// NewServer creates the MCP server and registers all tools and resources.
func NewServer(cfg ServerConfig, deps ServerDeps) *Server {
	s := &Server{
		cfg:  cfg,
		deps: deps,
		mcpServer: mcpserver.NewMCPServer(
			cfg.Name,
			cfg.Version,
			mcpserver.WithToolCapabilities(true),
			mcpserver.WithResourceCapabilities(false, true),
			mcpserver.WithRecovery(),
		),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying protocol server, mainly for tests.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

// ServeStdio serves MCP over stdin/stdout until EOF. It blocks.
func (s *Server) ServeStdio() error {
	slog.Info("serving mcp over stdio", "name", s.cfg.Name)
	return mcpserver.ServeStdio(s.mcpServer)
}
