package http

import (
	"net/http"

	"github.com/Strob0t/AgentFoundry/internal/domain/project"
	"github.com/Strob0t/AgentFoundry/internal/domain/task"
	"github.com/Strob0t/AgentFoundry/internal/port/database"
	"github.com/Strob0t/AgentFoundry/internal/service"
)

// Handlers bundles the services the REST surface exposes.
type Handlers struct {
	factory     *service.FactoryService
	graph       *service.TaskGraphService
	coordinator *service.CoordinatorService
	gate        *service.GateService
	continuity  *service.ContinuityService
	selector    *service.SelectorService
	store       database.Store

	dbReady func() error // nil when no database is wired
}

// NewHandlers creates the handler set. dbReady, when non-nil, is consulted by
// the readiness endpoint.
func NewHandlers(factory *service.FactoryService, graph *service.TaskGraphService,
	coordinator *service.CoordinatorService, gate *service.GateService,
	continuity *service.ContinuityService, selector *service.SelectorService,
	store database.Store, dbReady func() error,
) *Handlers {
	return &Handlers{
		factory:     factory,
		graph:       graph,
		coordinator: coordinator,
		gate:        gate,
		continuity:  continuity,
		selector:    selector,
		store:       store,
		dbReady:     dbReady,
	}
}

// Health reports process liveness.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready reports readiness, including database connectivity when wired.
func (h *Handlers) Ready(w http.ResponseWriter, r *http.Request) {
	if h.dbReady != nil {
		if err := h.dbReady(); err != nil {
			writeError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// ListProjects returns all projects.
func (h *Handlers) ListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.factory.ListProjects(r.Context())
	if err != nil {
		writeDomainError(w, err, "projects not found")
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

// CreateProject provisions a new isolated unit.
func (h *Handlers) CreateProject(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[project.CreateRequest](w, r)
	if !ok {
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	p, err := h.factory.CreateProject(r.Context(), req)
	if err != nil {
		writeDomainError(w, err, "project not found")
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// GetProject returns one project.
func (h *Handlers) GetProject(w http.ResponseWriter, r *http.Request) {
	p, err := h.factory.GetProject(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "project not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// DeleteProject tears a unit down. Idempotent.
func (h *Handlers) DeleteProject(w http.ResponseWriter, r *http.Request) {
	if err := h.factory.DeleteProject(r.Context(), urlParam(r, "id")); err != nil {
		writeDomainError(w, err, "project not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MergeProject merges the unit branch into the base, gated by pre-push.
func (h *Handlers) MergeProject(w http.ResponseWriter, r *http.Request) {
	body, ok := readJSON[struct {
		Message string `json:"message"`
	}](w, r)
	if !ok {
		return
	}
	if err := h.factory.MergeProject(r.Context(), urlParam(r, "id"), body.Message); err != nil {
		writeDomainError(w, err, "project not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ForkProject creates an exploration child when confidence is low enough.
func (h *Handlers) ForkProject(w http.ResponseWriter, r *http.Request) {
	body, ok := readJSON[struct {
		Confidence float64 `json:"confidence"`
	}](w, r)
	if !ok {
		return
	}
	child, err := h.factory.MaybeFork(r.Context(), urlParam(r, "id"), body.Confidence)
	if err != nil {
		writeDomainError(w, err, "project not found")
		return
	}
	if child == nil {
		writeJSON(w, http.StatusOK, map[string]any{"forked": false})
		return
	}
	writeJSON(w, http.StatusCreated, child)
}

// RunTask executes one task as an agent session on the project.
func (h *Handlers) RunTask(w http.ResponseWriter, r *http.Request) {
	body, ok := readJSON[struct {
		TaskID string `json:"task_id"`
	}](w, r)
	if !ok {
		return
	}
	if !requireField(w, body.TaskID, "task_id") {
		return
	}
	res, err := h.factory.RunTask(r.Context(), urlParam(r, "id"), body.TaskID)
	if err != nil {
		writeDomainError(w, err, "project or task not found")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ListTasks returns a project's tasks.
func (h *Handlers) ListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.graph.List(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "project not found")
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

// CreateTask adds a task to the project's graph.
func (h *Handlers) CreateTask(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[task.CreateRequest](w, r)
	if !ok {
		return
	}
	req.ProjectID = urlParam(r, "id")
	t, err := h.graph.Add(r.Context(), req)
	if err != nil {
		writeDomainError(w, err, "project not found")
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// ExecutableTasks returns the on-demand ready set.
func (h *Handlers) ExecutableTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.graph.Executable(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "project not found")
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

// AuditTasks triggers a reconciliation pass over the project's task list.
func (h *Handlers) AuditTasks(w http.ResponseWriter, r *http.Request) {
	report, err := h.graph.Audit(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "project not found")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// GetTask returns one task.
func (h *Handlers) GetTask(w http.ResponseWriter, r *http.Request) {
	t, err := h.graph.Get(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// UpdateTaskStatus transitions a task's status.
func (h *Handlers) UpdateTaskStatus(w http.ResponseWriter, r *http.Request) {
	body, ok := readJSON[struct {
		Status task.Status `json:"status"`
	}](w, r)
	if !ok {
		return
	}
	t, err := h.graph.Update(r.Context(), urlParam(r, "id"), body.Status)
	if err != nil {
		writeDomainError(w, err, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}
