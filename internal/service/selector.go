package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/AgentFoundry/internal/config"
	"github.com/Strob0t/AgentFoundry/internal/domain/agent"
	"github.com/Strob0t/AgentFoundry/internal/domain/cost"
	"github.com/Strob0t/AgentFoundry/internal/domain/model"
	"github.com/Strob0t/AgentFoundry/internal/port/broadcast"
	"github.com/Strob0t/AgentFoundry/internal/port/database"
	"github.com/Strob0t/AgentFoundry/internal/port/messagequeue"
	"github.com/Strob0t/AgentFoundry/internal/resilience"
)

// Prober checks model availability against the real provider. QuotaProbe is
// cheap and safe to poll; LivenessProbe consumes real quota and is only used
// immediately before committing to a model switch.
type Prober interface {
	QuotaProbe(ctx context.Context, opt model.Option) model.QuotaStatus
	LivenessProbe(ctx context.Context, opt model.Option) error
}

// SelectorService chooses an inference model per request from the configured
// catalog under live quota pressure. All quota and rate-limit state is owned
// by the instance, so multiple factories and tests run in isolation.
type SelectorService struct {
	cfg      config.Models
	store    database.Store
	queue    messagequeue.Queue
	hub      broadcast.Broadcaster
	breakers *resilience.Registry
	prober   Prober // nil: selection trusts the catalog

	mu          sync.Mutex
	rateLimited map[string]string            // provider -> reason
	quota       map[string]model.QuotaStatus // model id -> last observation
	lastProbe   map[string]time.Time         // model id -> last quota probe
	current     map[model.Tier]string        // tier -> last selected model id
}

// NewSelectorService creates a SelectorService.
func NewSelectorService(cfg config.Models, store database.Store, breakers *resilience.Registry,
	prober Prober, queue messagequeue.Queue, hub broadcast.Broadcaster,
) *SelectorService {
	return &SelectorService{
		cfg:         cfg,
		store:       store,
		queue:       queue,
		hub:         hub,
		breakers:    breakers,
		prober:      prober,
		rateLimited: make(map[string]string),
		quota:       make(map[string]model.QuotaStatus),
		lastProbe:   make(map[string]time.Time),
		current:     make(map[model.Tier]string),
	}
}

// GetOptimalModel returns a model for the tier. Preference order: a model in
// the tier whose provider is not rate-limited, then any non-rate-limited
// model, then (optimistic reset) the rate-limited set is cleared and the
// configured default is returned. The selector never fails to return a model.
func (s *SelectorService) GetOptimalModel(ctx context.Context, tier model.Tier) model.Option {
	for range 2 {
		opt, fallback, reset := s.pick(tier)
		if reset {
			return s.commit(ctx, tier, opt, true)
		}
		if err := s.probeBeforeSwitch(ctx, tier, opt); err != nil {
			s.MarkRateLimited(opt.Provider, err.Error())
			continue
		}
		return s.commit(ctx, tier, opt, fallback)
	}

	// Both candidates died on the liveness probe: optimistic reset.
	s.mu.Lock()
	clear(s.rateLimited)
	s.mu.Unlock()
	return s.commit(ctx, tier, s.defaultOption(), true)
}

// GetModelForRole maps the role to its required capability tier and selects.
func (s *SelectorService) GetModelForRole(ctx context.Context, role agent.Role) model.Option {
	tier := model.Tier(s.cfg.TierForRole[string(role)])
	if !tier.Valid() {
		tier = model.TierFast
	}
	return s.GetOptimalModel(ctx, tier)
}

// MarkRateLimited flags a provider group. All models of that provider are
// excluded from selection until the group recovers or an optimistic reset.
func (s *SelectorService) MarkRateLimited(provider, reason string) {
	if reason == "" {
		reason = "rate limited"
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rateLimited[provider] = reason
}

// ClearRateLimited removes one provider from the rate-limited set.
func (s *SelectorService) ClearRateLimited(provider string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rateLimited, provider)
}

// RateLimited returns the currently rate-limited provider groups, sorted.
func (s *SelectorService) RateLimited() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	providers := make([]string, 0, len(s.rateLimited))
	for p := range s.rateLimited {
		providers = append(providers, p)
	}
	sort.Strings(providers)
	return providers
}

// ProbeQuota runs the cheap quota probe across the catalog. Each model is
// probed at most once per configured interval; the observations update the
// quota map and drive provider rate-limit state. Whether an unavailable
// observation means exhausted quota or a transient fault is the prober's
// call, not inferred here.
func (s *SelectorService) ProbeQuota(ctx context.Context) []model.QuotaStatus {
	if s.prober == nil {
		return s.QuotaStatuses()
	}

	for _, opt := range s.cfg.Options {
		s.mu.Lock()
		last := s.lastProbe[opt.ID]
		s.mu.Unlock()
		if s.cfg.ProbeInterval > 0 && time.Since(last) < s.cfg.ProbeInterval {
			continue
		}

		status := s.prober.QuotaProbe(ctx, opt)
		status.ModelID = opt.ID
		status.LastChecked = time.Now().UTC()

		s.mu.Lock()
		s.quota[opt.ID] = status
		s.lastProbe[opt.ID] = status.LastChecked
		if status.Available {
			delete(s.rateLimited, opt.Provider)
		} else if status.Error != "" {
			s.rateLimited[opt.Provider] = status.Error
		} else {
			s.rateLimited[opt.Provider] = "quota unavailable"
		}
		s.mu.Unlock()
	}
	return s.QuotaStatuses()
}

// QuotaStatuses returns the last quota observation per model, sorted by id.
func (s *SelectorService) QuotaStatuses() []model.QuotaStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.QuotaStatus, 0, len(s.quota))
	for _, st := range s.quota {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModelID < out[j].ModelID })
	return out
}

// RecordOperation converts token usage to USD via the price table and
// appends one entry to the durable cost ledger.
func (s *SelectorService) RecordOperation(ctx context.Context, projectID, modelID string, tokensIn, tokensOut int64) (*cost.Entry, error) {
	entry := &cost.Entry{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Model:     modelID,
		TokensIn:  tokensIn,
		TokensOut: tokensOut,
		CostUSD:   s.cfg.Prices[modelID].Cost(tokensIn, tokensOut),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.AppendCost(ctx, entry); err != nil {
		return nil, fmt.Errorf("record operation: %w", err)
	}
	if s.hub != nil {
		s.hub.BroadcastEvent(ctx, "cost.update", entry)
	}
	return entry, nil
}

// pick selects a candidate under the lock. reset reports that every provider
// was rate-limited, the set has been cleared, and opt is the default.
func (s *SelectorService) pick(tier model.Tier) (opt model.Option, fallback, reset bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// First choice: the tier itself.
	for _, o := range s.cfg.Options {
		if o.Tier == tier && s.rateLimited[o.Provider] == "" {
			return o, false, false
		}
	}
	// Fallback: any model whose provider still has capacity.
	for _, o := range s.cfg.Options {
		if s.rateLimited[o.Provider] == "" {
			return o, true, false
		}
	}
	// Everything is rate-limited: optimistic reset to the default.
	clear(s.rateLimited)
	return s.defaultOptionLocked(), true, true
}

// probeBeforeSwitch runs the expensive liveness probe, but only when the
// selection would actually switch models for the tier. The probe goes
// through the provider's circuit breaker so a flapping provider is not
// hammered with quota-consuming checks.
func (s *SelectorService) probeBeforeSwitch(ctx context.Context, tier model.Tier, opt model.Option) error {
	if s.prober == nil {
		return nil
	}
	s.mu.Lock()
	unchanged := s.current[tier] == opt.ID
	s.mu.Unlock()
	if unchanged {
		return nil
	}
	return s.breakers.For(opt.Provider).Execute(func() error {
		return s.prober.LivenessProbe(ctx, opt)
	})
}

func (s *SelectorService) commit(ctx context.Context, tier model.Tier, opt model.Option, fallback bool) model.Option {
	s.mu.Lock()
	previous := s.current[tier]
	s.current[tier] = opt.ID
	s.mu.Unlock()

	if previous != opt.ID && previous != "" {
		s.publishSwitch(ctx, tier, previous, opt.ID, fallback)
	}
	return opt
}

func (s *SelectorService) publishSwitch(ctx context.Context, tier model.Tier, from, to string, fallback bool) {
	payload := messagequeue.ModelSwitchedPayload{
		Tier:      string(tier),
		FromModel: from,
		ToModel:   to,
		Fallback:  fallback,
	}
	if s.hub != nil {
		s.hub.BroadcastEvent(ctx, "model.switch", payload)
	}
	if s.queue == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := s.queue.Publish(ctx, messagequeue.SubjectModelSwitched, data); err != nil {
		slog.Error("failed to publish model switch", "tier", tier, "to", to, "error", err)
	}
}

func (s *SelectorService) defaultOption() model.Option {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.defaultOptionLocked()
}

func (s *SelectorService) defaultOptionLocked() model.Option {
	for _, o := range s.cfg.Options {
		if o.ID == s.cfg.DefaultModel {
			return o
		}
	}
	if len(s.cfg.Options) > 0 {
		return s.cfg.Options[0]
	}
	return model.Option{ID: s.cfg.DefaultModel}
}
