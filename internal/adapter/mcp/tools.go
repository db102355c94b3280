package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// registerTools registers all MCP tools on the server.
func (s *Server) registerTools() {
	s.mcpServer.AddTools(
		s.listProjectsTool(),
		s.getProjectTool(),
		s.listTasksTool(),
		s.gateStatusTool(),
		s.forwardPromptTool(),
		s.costByModelTool(),
	)
}

func (s *Server) listProjectsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("list_projects",
		mcplib.WithDescription("List all isolated units of work managed by the factory"),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleListProjects,
	}
}

func (s *Server) getProjectTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_project",
		mcplib.WithDescription("Get details of a specific project by ID"),
		mcplib.WithString("project_id",
			mcplib.Required(),
			mcplib.Description("The project ID to look up"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleGetProject,
	}
}

func (s *Server) listTasksTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("list_tasks",
		mcplib.WithDescription("List the task dependency graph of a project"),
		mcplib.WithString("project_id",
			mcplib.Required(),
			mcplib.Description("The project whose tasks to list"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleListTasks,
	}
}

func (s *Server) gateStatusTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("gate_status",
		mcplib.WithDescription("Read the durable quality-gate ledger of a project in the plain-text agent format"),
		mcplib.WithString("project_id",
			mcplib.Required(),
			mcplib.Description("The project whose gate ledger to read"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleGateStatus,
	}
}

func (s *Server) forwardPromptTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("forward_prompt",
		mcplib.WithDescription("Read the continuity checkpoint of a project: objective, status, next steps, blockers"),
		mcplib.WithString("project_id",
			mcplib.Required(),
			mcplib.Description("The project whose checkpoint to read"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleForwardPrompt,
	}
}

func (s *Server) costByModelTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("cost_by_model",
		mcplib.WithDescription("Get cost totals grouped by model across all projects"),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleCostByModel,
	}
}

func (s *Server) handleListProjects(ctx context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Projects == nil {
		return mcplib.NewToolResultError("project reader not configured"), nil
	}
	projects, err := s.deps.Projects.ListProjects(ctx)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to list projects", err), nil
	}
	return marshalResult(projects)
}

func (s *Server) handleGetProject(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Projects == nil {
		return mcplib.NewToolResultError("project reader not configured"), nil
	}
	projectID, ok := stringArg(req, "project_id")
	if !ok {
		return mcplib.NewToolResultError("project_id is required"), nil
	}
	p, err := s.deps.Projects.GetProject(ctx, projectID)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("failed to get project %s", projectID), err,
		), nil
	}
	return marshalResult(p)
}

func (s *Server) handleListTasks(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Tasks == nil {
		return mcplib.NewToolResultError("task reader not configured"), nil
	}
	projectID, ok := stringArg(req, "project_id")
	if !ok {
		return mcplib.NewToolResultError("project_id is required"), nil
	}
	tasks, err := s.deps.Tasks.List(ctx, projectID)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("failed to list tasks for %s", projectID), err,
		), nil
	}
	return marshalResult(tasks)
}

func (s *Server) handleGateStatus(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Gate == nil {
		return mcplib.NewToolResultError("gate reader not configured"), nil
	}
	projectID, ok := stringArg(req, "project_id")
	if !ok {
		return mcplib.NewToolResultError("project_id is required"), nil
	}
	text, err := s.deps.Gate.ExportText(ctx, projectID)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("failed to read gate ledger for %s", projectID), err,
		), nil
	}
	return mcplib.NewToolResultText(text), nil
}

func (s *Server) handleForwardPrompt(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Forward == nil {
		return mcplib.NewToolResultError("checkpoint reader not configured"), nil
	}
	projectID, ok := stringArg(req, "project_id")
	if !ok {
		return mcplib.NewToolResultError("project_id is required"), nil
	}
	prompt, err := s.deps.Forward.Read(ctx, projectID)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("failed to read checkpoint for %s", projectID), err,
		), nil
	}
	return marshalResult(prompt)
}

func (s *Server) handleCostByModel(ctx context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Costs == nil {
		return mcplib.NewToolResultError("cost reader not configured"), nil
	}
	summaries, err := s.deps.Costs.CostByModel(ctx)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to read cost summary", err), nil
	}
	return marshalResult(summaries)
}

func stringArg(req mcplib.CallToolRequest, name string) (string, bool) { //nolint:gocritic // hugeParam: mcp-go handler signature
	v, ok := req.GetArguments()[name].(string)
	return v, ok && v != ""
}

func marshalResult(v any) (*mcplib.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal result", err), nil
	}
	return mcplib.NewToolResultText(string(data)), nil
}
