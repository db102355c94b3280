package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers, wsHandler http.HandlerFunc) {
	r.Get("/health", h.Health)
	r.Get("/health/ready", h.Ready)

	if wsHandler != nil {
		r.Get("/ws", wsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Version
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Projects
		r.Get("/projects", h.ListProjects)
		r.Post("/projects", h.CreateProject)
		r.Get("/projects/{id}", h.GetProject)
		r.Delete("/projects/{id}", h.DeleteProject)
		r.Post("/projects/{id}/merge", h.MergeProject)
		r.Post("/projects/{id}/fork", h.ForkProject)
		r.Post("/projects/{id}/run", h.RunTask)

		// Tasks (nested under projects)
		r.Get("/projects/{id}/tasks", h.ListTasks)
		r.Post("/projects/{id}/tasks", h.CreateTask)
		r.Get("/projects/{id}/tasks/executable", h.ExecutableTasks)
		r.Post("/projects/{id}/tasks/audit", h.AuditTasks)

		// Tasks (direct access)
		r.Get("/tasks/{id}", h.GetTask)
		r.Patch("/tasks/{id}/status", h.UpdateTaskStatus)

		// Quality gate (nested under projects)
		r.Post("/projects/{id}/gate/run", h.RunGateStage)
		r.Get("/projects/{id}/gate", h.GateStatus)
		r.Get("/projects/{id}/gate/check", h.GateCheck)
		r.Put("/projects/{id}/gate/nags/{nagID}", h.SetGateVerdict)
		r.Get("/projects/{id}/gate/export", h.ExportGateLedger)

		// Continuity checkpoint (nested under projects)
		r.Get("/projects/{id}/forward", h.GetForwardPrompt)
		r.Patch("/projects/{id}/forward", h.UpdateForwardPrompt)
		r.Post("/projects/{id}/forward/steps", h.AddForwardStep)
		r.Post("/projects/{id}/forward/steps/complete", h.CompleteForwardStep)
		r.Post("/projects/{id}/forward/flush", h.FlushForwardPrompt)
		r.Post("/projects/{id}/forward/recover", h.RecoverForwardPrompt)

		// Shared context and knowledge (nested under projects)
		r.Get("/projects/{id}/context", h.SharedContext)
		r.Post("/projects/{id}/knowledge", h.AddKnowledge)
		r.Get("/projects/{id}/knowledge", h.SearchKnowledge)

		// Cost (nested under projects)
		r.Get("/projects/{id}/cost", h.ProjectCost)

		// Agents
		r.Get("/agents", h.ListAgents)
		r.Post("/agents", h.CreateAgent)
		r.Get("/agents/{id}", h.GetAgent)
		r.Post("/agents/{id}/handoff", h.HandoffAgent)
		r.Post("/agents/{id}/escalate", h.EscalateAgent)
		r.Get("/agents/collab-log", h.CollabLog)

		// Model selection
		r.Get("/models/select", h.SelectModel)
		r.Get("/models/quota", h.QuotaStatuses)
		r.Post("/models/quota/probe", h.ProbeQuota)
		r.Get("/models/rate-limited", h.RateLimitedProviders)
		r.Post("/models/rate-limited", h.MarkRateLimited)
		r.Delete("/models/rate-limited/{provider}", h.ClearRateLimited)

		// Cost (global)
		r.Get("/cost/by-model", h.CostByModel)
	})
}
