package http

import (
	"net/http"

	"github.com/Strob0t/AgentFoundry/internal/domain/forward"
)

// forwardUpdateRequest is the wire shape of a partial checkpoint update.
// Absent fields keep their previous value.
type forwardUpdateRequest struct {
	SessionID *string   `json:"session_id"`
	Objective *string   `json:"objective"`
	Status    *string   `json:"status"`
	NextSteps *[]string `json:"next_steps"`
	Blockers  *[]string `json:"blockers"`
	Notes     *string   `json:"notes"`
}

// GetForwardPrompt returns the current continuity checkpoint.
func (h *Handlers) GetForwardPrompt(w http.ResponseWriter, r *http.Request) {
	p, err := h.continuity.Read(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "project not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// UpdateForwardPrompt applies a partial checkpoint update.
func (h *Handlers) UpdateForwardPrompt(w http.ResponseWriter, r *http.Request) {
	body, ok := readJSON[forwardUpdateRequest](w, r)
	if !ok {
		return
	}
	p, err := h.continuity.Update(r.Context(), urlParam(r, "id"), forward.Update{
		SessionID: body.SessionID,
		Objective: body.Objective,
		Status:    body.Status,
		NextSteps: body.NextSteps,
		Blockers:  body.Blockers,
		Notes:     body.Notes,
	})
	if err != nil {
		writeDomainError(w, err, "project not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// AddForwardStep appends a step to the next-steps queue.
func (h *Handlers) AddForwardStep(w http.ResponseWriter, r *http.Request) {
	body, ok := readJSON[struct {
		Step string `json:"step"`
	}](w, r)
	if !ok {
		return
	}
	if !requireField(w, body.Step, "step") {
		return
	}
	if err := h.continuity.AddNextStep(r.Context(), urlParam(r, "id"), body.Step); err != nil {
		writeDomainError(w, err, "project not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CompleteForwardStep pops the head of the next-steps queue.
func (h *Handlers) CompleteForwardStep(w http.ResponseWriter, r *http.Request) {
	step, ok, err := h.continuity.CompleteNextStep(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "project not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"step": step, "completed": ok})
}

// FlushForwardPrompt writes the checkpoint into the worktree and commits it.
func (h *Handlers) FlushForwardPrompt(w http.ResponseWriter, r *http.Request) {
	projectID := urlParam(r, "id")
	p, err := h.factory.GetProject(r.Context(), projectID)
	if err != nil {
		writeDomainError(w, err, "project not found")
		return
	}
	if err := h.continuity.Flush(r.Context(), projectID, p.WorktreePath); err != nil {
		writeDomainError(w, err, "project not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RecoverForwardPrompt reseeds the checkpoint from the file in the worktree.
func (h *Handlers) RecoverForwardPrompt(w http.ResponseWriter, r *http.Request) {
	projectID := urlParam(r, "id")
	p, err := h.factory.GetProject(r.Context(), projectID)
	if err != nil {
		writeDomainError(w, err, "project not found")
		return
	}
	prompt, err := h.continuity.Recover(r.Context(), projectID, p.WorktreePath)
	if err != nil {
		writeDomainError(w, err, "checkpoint not found")
		return
	}
	writeJSON(w, http.StatusOK, prompt)
}
