package http

import (
	"net/http"

	"github.com/Strob0t/AgentFoundry/internal/domain/nag"
)

// RunGateStage evaluates all nags of one stage against the project worktree.
func (h *Handlers) RunGateStage(w http.ResponseWriter, r *http.Request) {
	body, ok := readJSON[struct {
		Stage nag.Stage `json:"stage"`
	}](w, r)
	if !ok {
		return
	}
	if body.Stage != nag.StagePreCommit && body.Stage != nag.StagePrePush {
		writeError(w, http.StatusBadRequest, "stage must be pre-commit or pre-push")
		return
	}

	projectID := urlParam(r, "id")
	p, err := h.factory.GetProject(r.Context(), projectID)
	if err != nil {
		writeDomainError(w, err, "project not found")
		return
	}
	report, err := h.gate.RunStage(r.Context(), projectID, p.WorktreePath, body.Stage)
	if err != nil {
		writeDomainError(w, err, "project not found")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// GateStatus returns the durable ledger entries for a project.
func (h *Handlers) GateStatus(w http.ResponseWriter, r *http.Request) {
	entries, err := h.gate.Ledger(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "project not found")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// GateCheck reports whether a stage's enforcement point would allow the
// operation right now, and which nags hold it back.
func (h *Handlers) GateCheck(w http.ResponseWriter, r *http.Request) {
	stage := nag.Stage(r.URL.Query().Get("stage"))
	if stage != nag.StagePreCommit && stage != nag.StagePrePush {
		writeError(w, http.StatusBadRequest, "stage must be pre-commit or pre-push")
		return
	}
	allowed, failing, err := h.gate.CheckLedger(r.Context(), urlParam(r, "id"), stage)
	if err != nil {
		writeDomainError(w, err, "project not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"stage":   stage,
		"allowed": allowed,
		"failing": failing,
	})
}

// SetGateVerdict records a manual OK/NOK override for one nag.
func (h *Handlers) SetGateVerdict(w http.ResponseWriter, r *http.Request) {
	body, ok := readJSON[struct {
		Verdict nag.Verdict `json:"verdict"`
		Detail  string      `json:"detail"`
	}](w, r)
	if !ok {
		return
	}
	err := h.gate.SetVerdict(r.Context(), urlParam(r, "id"), urlParam(r, "nagID"), body.Verdict, body.Detail)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ExportGateLedger renders the ledger in the plain-text agent format.
func (h *Handlers) ExportGateLedger(w http.ResponseWriter, r *http.Request) {
	text, err := h.gate.ExportText(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "project not found")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(text))
}
