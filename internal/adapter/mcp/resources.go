package mcp

import (
	"context"
	"encoding/json"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

// registerResources registers all MCP resources on the server.
func (s *Server) registerResources() {
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"foundry://projects",
			"Project List",
			mcplib.WithResourceDescription("List of all isolated units of work"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleProjectsResource,
	)

	s.mcpServer.AddResource(
		mcplib.NewResource(
			"foundry://costs/by-model",
			"Cost By Model",
			mcplib.WithResourceDescription("Cost totals grouped by model across all projects"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleCostsResource,
	)
}

func (s *Server) handleProjectsResource(ctx context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	if s.deps.Projects == nil {
		return errorContents(req.Params.URI, "project reader not configured"), nil
	}
	projects, err := s.deps.Projects.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	return jsonContents(req.Params.URI, projects)
}

func (s *Server) handleCostsResource(ctx context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	if s.deps.Costs == nil {
		return errorContents(req.Params.URI, "cost reader not configured"), nil
	}
	summaries, err := s.deps.Costs.CostByModel(ctx)
	if err != nil {
		return nil, err
	}
	return jsonContents(req.Params.URI, summaries)
}

func jsonContents(uri string, v any) ([]mcplib.ResourceContents, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func errorContents(uri, msg string) []mcplib.ResourceContents {
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     `{"error":"` + msg + `"}`,
		},
	}
}
