package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/AgentFoundry/internal/domain/agent"
	"github.com/Strob0t/AgentFoundry/internal/domain/commitmeta"
	afcontext "github.com/Strob0t/AgentFoundry/internal/domain/context"
	"github.com/Strob0t/AgentFoundry/internal/domain/orchestration"
	"github.com/Strob0t/AgentFoundry/internal/domain/task"
	"github.com/Strob0t/AgentFoundry/internal/port/broadcast"
	"github.com/Strob0t/AgentFoundry/internal/port/database"
	"github.com/Strob0t/AgentFoundry/internal/port/messagequeue"
	"github.com/Strob0t/AgentFoundry/internal/telemetry"
)

// CoordinatorService creates and tracks agent role instances, executes
// handoffs and escalations between them, and owns the per-project shared
// context plus the bounded collaboration log. All coordinator state is held
// by this instance; there are no process-wide singletons, so multiple
// factories can run in isolation.
type CoordinatorService struct {
	store database.Store
	queue messagequeue.Queue
	hub   broadcast.Broadcaster

	mu       sync.Mutex
	agents   map[string]*agent.Context
	contexts map[string]*afcontext.SharedContext // by project ID
	log      []orchestration.LogEntry
	logMax   int
}

// NewCoordinatorService creates a CoordinatorService. logMax bounds the
// in-memory collaboration log; oldest entries are discarded first.
func NewCoordinatorService(store database.Store, queue messagequeue.Queue, hub broadcast.Broadcaster, logMax int) *CoordinatorService {
	if logMax < 1 {
		logMax = 1
	}
	return &CoordinatorService{
		store:    store,
		queue:    queue,
		hub:      hub,
		agents:   make(map[string]*agent.Context),
		contexts: make(map[string]*afcontext.SharedContext),
		log:      make([]orchestration.LogEntry, 0, logMax),
		logMax:   logMax,
	}
}

// CreateAgent creates a new idle instance of the given role.
func (s *CoordinatorService) CreateAgent(role agent.Role) (*agent.Context, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("create agent: unknown role %q", role)
	}
	now := time.Now().UTC()
	a := &agent.Context{
		ID:        string(role) + "-" + uuid.NewString()[:8],
		Role:      role,
		State:     agent.StateIdle,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.mu.Lock()
	s.agents[a.ID] = a
	s.mu.Unlock()
	return a, nil
}

// Agent returns an agent instance by ID.
func (s *CoordinatorService) Agent(id string) (*agent.Context, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[id]
	if !ok {
		return nil, false
	}
	cp := *a
	return &cp, true
}

// Agents returns a snapshot of all agent instances.
func (s *CoordinatorService) Agents() []agent.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]agent.Context, 0, len(s.agents))
	for _, a := range s.agents {
		out = append(out, *a)
	}
	return out
}

// AssignTask activates an idle agent on the given task. Only idle agents
// accept assignments.
func (s *CoordinatorService) AssignTask(ctx context.Context, projectID, agentID, taskID, description string) error {
	s.mu.Lock()
	a, ok := s.agents[agentID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("assign: unknown agent %s", agentID)
	}
	if err := a.Transition(agent.StateActive); err != nil {
		s.mu.Unlock()
		return err
	}
	a.CurrentTaskID = taskID
	s.mu.Unlock()

	s.appendLog(ctx, orchestration.LogEntry{
		ProjectID: projectID,
		From:      "coordinator",
		To:        agentID,
		Kind:      orchestration.KindAssignment,
		Content:   description,
	})
	return nil
}

// CompleteTask records an active agent's result into the shared context and,
// when nextRole is set, triggers a handoff to it. Only active agents can
// complete.
func (s *CoordinatorService) CompleteTask(ctx context.Context, projectID, agentID, result string, nextRole agent.Role) (*orchestration.Bundle, error) {
	s.mu.Lock()
	a, ok := s.agents[agentID]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("complete: unknown agent %s", agentID)
	}
	if err := a.Transition(agent.StateCompleted); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	a.CurrentTaskID = ""
	sc := s.sharedLocked(projectID)
	sc.AddKnowledge(afcontext.KnowledgeEntry{
		ID:        uuid.NewString(),
		Key:       "result:" + agentID,
		Value:     result,
		Author:    agentID,
		CreatedAt: time.Now().UTC(),
	})
	s.mu.Unlock()

	s.appendLog(ctx, orchestration.LogEntry{
		ProjectID: projectID,
		From:      agentID,
		To:        "coordinator",
		Kind:      orchestration.KindCompletion,
		Content:   result,
	})

	if nextRole == "" {
		s.resetToIdle(agentID)
		return nil, nil
	}
	return s.Handoff(ctx, projectID, agentID, nextRole)
}

// Handoff transfers the in-flight work from one agent to an idle instance of
// toRole, creating one if none exists. The departing agent resets to idle and
// the receiver activates with a derived context bundle as its starting task.
func (s *CoordinatorService) Handoff(ctx context.Context, projectID, fromAgentID string, toRole agent.Role) (*orchestration.Bundle, error) {
	ctx, span := telemetry.StartHandoffSpan(ctx, fromAgentID, string(toRole))
	defer span.End()
	return s.transfer(ctx, projectID, fromAgentID, toRole, false)
}

// Escalate routes a failure in the agent's role back to the role best
// positioned to fix it, rather than forward. The failing agent transitions
// through failed before resetting to idle.
func (s *CoordinatorService) Escalate(ctx context.Context, projectID, fromAgentID, reason string) (*orchestration.Bundle, error) {
	s.mu.Lock()
	from, ok := s.agents[fromAgentID]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("escalate: unknown agent %s", fromAgentID)
	}
	if from.State == agent.StateActive {
		if err := from.Transition(agent.StateFailed); err != nil {
			s.mu.Unlock()
			return nil, err
		}
	}
	target := agent.EscalationTarget(from.Role)
	s.mu.Unlock()

	s.appendLog(ctx, orchestration.LogEntry{
		ProjectID: projectID,
		From:      fromAgentID,
		To:        string(target),
		Kind:      orchestration.KindEscalation,
		Content:   reason,
	})

	bundle, err := s.transfer(ctx, projectID, fromAgentID, target, true)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, messagequeue.SubjectEscalation, messagequeue.HandoffPayload{
		ProjectID: projectID,
		FromAgent: fromAgentID,
		ToRole:    string(target),
		NextTask:  bundle.NextTask,
	})
	return bundle, nil
}

// transfer implements the shared handoff mechanics for both forward handoffs
// and escalations.
func (s *CoordinatorService) transfer(ctx context.Context, projectID, fromAgentID string, toRole agent.Role, escalation bool) (*orchestration.Bundle, error) {
	if !toRole.Valid() {
		return nil, fmt.Errorf("handoff: unknown role %q", toRole)
	}

	s.mu.Lock()
	receiver := s.idleInstanceLocked(toRole)
	if receiver == nil {
		now := time.Now().UTC()
		receiver = &agent.Context{
			ID:        string(toRole) + "-" + uuid.NewString()[:8],
			Role:      toRole,
			State:     agent.StateIdle,
			CreatedAt: now,
			UpdatedAt: now,
		}
		s.agents[receiver.ID] = receiver
	}

	sc := s.sharedLocked(projectID)
	bundle := &orchestration.Bundle{
		FromAgentID:   fromAgentID,
		ToRole:        toRole,
		RecentCommits: sc.RecentCommits,
		Related:       sc.Search(string(toRole)),
		NextTask:      agent.DefaultNextTask(toRole),
		Escalation:    escalation,
		CreatedAt:     time.Now().UTC(),
	}

	if err := receiver.Transition(agent.StateActive); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	receiverID := receiver.ID
	s.mu.Unlock()

	if err := bundle.Validate(); err != nil {
		return nil, err
	}

	s.resetToIdle(fromAgentID)

	s.appendLog(ctx, orchestration.LogEntry{
		ProjectID: projectID,
		From:      fromAgentID,
		To:        receiverID,
		Kind:      orchestration.KindHandoff,
		Content:   bundle.NextTask,
	})
	s.publish(ctx, messagequeue.SubjectHandoff, messagequeue.HandoffPayload{
		ProjectID: projectID,
		FromAgent: fromAgentID,
		ToAgent:   receiverID,
		ToRole:    string(toRole),
		NextTask:  bundle.NextTask,
	})

	slog.Info("handoff executed",
		"project_id", projectID, "from", fromAgentID, "to", receiverID,
		"role", toRole, "escalation", escalation)
	return bundle, nil
}

// idleInstanceLocked returns an idle instance of role, or nil.
// Callers must hold s.mu.
func (s *CoordinatorService) idleInstanceLocked(role agent.Role) *agent.Context {
	for _, a := range s.agents {
		if a.Role == role && a.State == agent.StateIdle {
			return a
		}
	}
	return nil
}

// resetToIdle walks the agent back to idle through its current state.
func (s *CoordinatorService) resetToIdle(agentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[agentID]
	if !ok {
		return
	}
	switch a.State {
	case agent.StateActive:
		_ = a.Transition(agent.StateCompleted)
		_ = a.Transition(agent.StateIdle)
	case agent.StateCompleted, agent.StateFailed:
		_ = a.Transition(agent.StateIdle)
	case agent.StateIdle:
	}
	a.CurrentTaskID = ""
}

// SharedContext returns a snapshot of the project's shared context, creating
// it on first use.
func (s *CoordinatorService) SharedContext(projectID string) *afcontext.SharedContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *s.sharedLocked(projectID)
	return &cp
}

// RecordCommit folds a commit record into the project's shared context.
func (s *CoordinatorService) RecordCommit(projectID string, rec commitmeta.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sharedLocked(projectID).RecordCommit(rec)
}

// AddKnowledge appends a knowledge entry to the project's shared context.
func (s *CoordinatorService) AddKnowledge(projectID string, e afcontext.KnowledgeEntry) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sharedLocked(projectID).AddKnowledge(e)
}

// SnapshotTasks replaces the active task snapshot in the shared context.
func (s *CoordinatorService) SnapshotTasks(projectID string, tasks []task.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sharedLocked(projectID).SnapshotTasks(tasks)
}

// SearchKnowledge queries the project's knowledge entries, newest first.
func (s *CoordinatorService) SearchKnowledge(projectID, query string) []afcontext.KnowledgeEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sharedLocked(projectID).Search(query)
}

// sharedLocked returns the project's shared context, creating it on first
// use. Callers must hold s.mu.
func (s *CoordinatorService) sharedLocked(projectID string) *afcontext.SharedContext {
	sc, ok := s.contexts[projectID]
	if !ok {
		now := time.Now().UTC()
		sc = &afcontext.SharedContext{
			ProjectID: projectID,
			CreatedAt: now,
			UpdatedAt: now,
		}
		s.contexts[projectID] = sc
	}
	return sc
}

// CollabLog returns a snapshot of the bounded in-memory collaboration log,
// oldest first.
func (s *CoordinatorService) CollabLog() []orchestration.LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]orchestration.LogEntry(nil), s.log...)
}

// appendLog appends to the bounded in-memory log, archives the entry to the
// durable store, and broadcasts it to observers.
func (s *CoordinatorService) appendLog(ctx context.Context, e orchestration.LogEntry) {
	e.ID = uuid.NewString()
	e.CreatedAt = time.Now().UTC()

	s.mu.Lock()
	s.log = append(s.log, e)
	if len(s.log) > s.logMax {
		s.log = append(s.log[:0:0], s.log[len(s.log)-s.logMax:]...)
	}
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.AppendLogEntry(ctx, &e); err != nil {
			slog.Error("failed to archive collab log entry", "error", err)
		}
	}
	if s.hub != nil {
		s.hub.BroadcastEvent(ctx, "collab.log", e)
	}
}

func (s *CoordinatorService) publish(ctx context.Context, subject string, payload any) {
	if s.queue == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := s.queue.Publish(ctx, subject, data); err != nil {
		slog.Error("failed to publish coordinator event", "subject", subject, "error", err)
	}
}
