package http

import (
	"net/http"

	"github.com/Strob0t/AgentFoundry/internal/domain/agent"
	afcontext "github.com/Strob0t/AgentFoundry/internal/domain/context"
)

// ListAgents returns every agent the coordinator tracks.
func (h *Handlers) ListAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.coordinator.Agents())
}

// CreateAgent registers a new agent instance for a role.
func (h *Handlers) CreateAgent(w http.ResponseWriter, r *http.Request) {
	body, ok := readJSON[struct {
		Role agent.Role `json:"role"`
	}](w, r)
	if !ok {
		return
	}
	a, err := h.coordinator.CreateAgent(body.Role)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// GetAgent returns one agent.
func (h *Handlers) GetAgent(w http.ResponseWriter, r *http.Request) {
	a, ok := h.coordinator.Agent(urlParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// HandoffAgent transfers a project's work from one agent to a role.
func (h *Handlers) HandoffAgent(w http.ResponseWriter, r *http.Request) {
	body, ok := readJSON[struct {
		ProjectID string     `json:"project_id"`
		ToRole    agent.Role `json:"to_role"`
	}](w, r)
	if !ok {
		return
	}
	if !requireField(w, body.ProjectID, "project_id") {
		return
	}
	bundle, err := h.coordinator.Handoff(r.Context(), body.ProjectID, urlParam(r, "id"), body.ToRole)
	if err != nil {
		writeDomainError(w, err, "agent not found")
		return
	}
	writeJSON(w, http.StatusOK, bundle)
}

// EscalateAgent escalates a project's work up the role chain.
func (h *Handlers) EscalateAgent(w http.ResponseWriter, r *http.Request) {
	body, ok := readJSON[struct {
		ProjectID string `json:"project_id"`
		Reason    string `json:"reason"`
	}](w, r)
	if !ok {
		return
	}
	if !requireField(w, body.ProjectID, "project_id") {
		return
	}
	bundle, err := h.coordinator.Escalate(r.Context(), body.ProjectID, urlParam(r, "id"), body.Reason)
	if err != nil {
		writeDomainError(w, err, "agent not found")
		return
	}
	writeJSON(w, http.StatusOK, bundle)
}

// CollabLog returns the bounded in-memory collaboration log.
func (h *Handlers) CollabLog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.coordinator.CollabLog())
}

// SharedContext returns the shared working context of a project.
func (h *Handlers) SharedContext(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.coordinator.SharedContext(urlParam(r, "id")))
}

// AddKnowledge appends an entry to a project's shared knowledge base.
func (h *Handlers) AddKnowledge(w http.ResponseWriter, r *http.Request) {
	entry, ok := readJSON[afcontext.KnowledgeEntry](w, r)
	if !ok {
		return
	}
	if !requireField(w, entry.Key, "key") {
		return
	}
	h.coordinator.AddKnowledge(urlParam(r, "id"), entry)
	w.WriteHeader(http.StatusNoContent)
}

// SearchKnowledge searches a project's shared knowledge base.
func (h *Handlers) SearchKnowledge(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	writeJSON(w, http.StatusOK, h.coordinator.SearchKnowledge(urlParam(r, "id"), query))
}
