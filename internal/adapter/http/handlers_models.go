package http

import (
	"net/http"

	"github.com/Strob0t/AgentFoundry/internal/domain/model"
)

// SelectModel resolves the current optimal model for a tier.
func (h *Handlers) SelectModel(w http.ResponseWriter, r *http.Request) {
	tier := model.Tier(r.URL.Query().Get("tier"))
	if !tier.Valid() {
		writeError(w, http.StatusBadRequest, "tier must be FAST, THINKING, or PREMIUM")
		return
	}
	opt := h.selector.GetOptimalModel(r.Context(), tier)
	writeJSON(w, http.StatusOK, opt)
}

// QuotaStatuses returns the last known quota state per catalog model.
func (h *Handlers) QuotaStatuses(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.selector.QuotaStatuses())
}

// ProbeQuota runs an interval-gated quota probe over the catalog.
func (h *Handlers) ProbeQuota(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.selector.ProbeQuota(r.Context()))
}

// RateLimitedProviders returns the providers currently held out of selection.
func (h *Handlers) RateLimitedProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.selector.RateLimited())
}

// MarkRateLimited manually marks a provider group as rate limited.
func (h *Handlers) MarkRateLimited(w http.ResponseWriter, r *http.Request) {
	body, ok := readJSON[struct {
		Provider string `json:"provider"`
		Reason   string `json:"reason"`
	}](w, r)
	if !ok {
		return
	}
	if !requireField(w, body.Provider, "provider") {
		return
	}
	h.selector.MarkRateLimited(body.Provider, body.Reason)
	w.WriteHeader(http.StatusNoContent)
}

// ClearRateLimited removes a provider group from the rate-limited set.
func (h *Handlers) ClearRateLimited(w http.ResponseWriter, r *http.Request) {
	h.selector.ClearRateLimited(urlParam(r, "provider"))
	w.WriteHeader(http.StatusNoContent)
}

// ProjectCost returns the aggregated cost summary for one project.
func (h *Handlers) ProjectCost(w http.ResponseWriter, r *http.Request) {
	summary, err := h.store.ProjectCost(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "project not found")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// CostByModel returns cost totals grouped by model across all projects.
func (h *Handlers) CostByModel(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.store.CostByModel(r.Context())
	if err != nil {
		writeDomainError(w, err, "costs not found")
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}
