package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/AgentFoundry/internal/config"
	"github.com/Strob0t/AgentFoundry/internal/domain"
	"github.com/Strob0t/AgentFoundry/internal/domain/agent"
	"github.com/Strob0t/AgentFoundry/internal/domain/commitmeta"
	"github.com/Strob0t/AgentFoundry/internal/domain/forward"
	"github.com/Strob0t/AgentFoundry/internal/domain/nag"
	"github.com/Strob0t/AgentFoundry/internal/domain/project"
	"github.com/Strob0t/AgentFoundry/internal/domain/task"
	"github.com/Strob0t/AgentFoundry/internal/port/agentrunner"
	"github.com/Strob0t/AgentFoundry/internal/logger"
	"github.com/Strob0t/AgentFoundry/internal/port/cache"
	"github.com/Strob0t/AgentFoundry/internal/port/database"
	"github.com/Strob0t/AgentFoundry/internal/telemetry"
)

// GateBlockedError reports that an operation was held by the quality gate.
type GateBlockedError struct {
	Stage nag.Stage
	Nags  []string
}

func (e *GateBlockedError) Error() string {
	return fmt.Sprintf("blocked by %s gate: %s", e.Stage, strings.Join(e.Nags, ", "))
}

// SessionResult summarizes one completed agent session.
type SessionResult struct {
	SessionID  string  `json:"session_id"`
	TaskID     string  `json:"task_id"`
	AgentID    string  `json:"agent_id"`
	Model      string  `json:"model"`
	Success    bool    `json:"success"`
	Output     string  `json:"output,omitempty"`
	CommitHash string  `json:"commit_hash,omitempty"`
	CostUSD    float64 `json:"cost_usd"`
	TimedOut   bool    `json:"timed_out"`
}

// FactoryService is the project-level facade composing isolation, task graph,
// coordination, gate, continuity, and model selection into whole operations.
type FactoryService struct {
	cfg         config.Factory
	store       database.Store
	isolation   *IsolationService
	graph       *TaskGraphService
	coordinator *CoordinatorService
	gate        *GateService
	continuity  *ContinuityService
	selector    *SelectorService
	runner      agentrunner.Runner
	cache       cache.Cache
	metrics     *telemetry.Metrics // nil when telemetry is disabled

	sessions sessionGuard

	// tree is the in-process lineage index for exploration forks. It rejects
	// cycles and reparenting before any branch is carved.
	treeMu sync.Mutex
	tree   *project.Tree
}

// NewFactoryService wires the facade.
func NewFactoryService(cfg config.Factory, store database.Store,
	isolation *IsolationService, graph *TaskGraphService, coordinator *CoordinatorService,
	gate *GateService, continuity *ContinuityService, selector *SelectorService,
	runner agentrunner.Runner, projectCache cache.Cache, metrics *telemetry.Metrics,
) *FactoryService {
	return &FactoryService{
		cfg:         cfg,
		store:       store,
		isolation:   isolation,
		graph:       graph,
		coordinator: coordinator,
		gate:        gate,
		continuity:  continuity,
		selector:    selector,
		runner:      runner,
		cache:       projectCache,
		metrics:     metrics,
		sessions:    newSessionGuard(),
		tree:        project.NewTree(),
	}
}

// CreateProject provisions the isolated unit: branch + worktree, the durable
// project row, and the seeded continuity checkpoint. The worktree is rolled
// back when persistence fails so no half-created units survive.
func (s *FactoryService) CreateProject(ctx context.Context, req project.CreateRequest) (*project.Project, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.ParentID != "" {
		s.treeMu.Lock()
		err := s.tree.Attach(req.ParentID, req.ID)
		s.treeMu.Unlock()
		if err != nil {
			return nil, fmt.Errorf("lineage: %w", err)
		}
	}
	base := req.BaseBranch
	if base == "" {
		base = s.cfg.BaseBranch
	}

	wt, err := s.isolation.CreateWorktree(ctx, req.ID, base)
	if err != nil {
		s.detachLineage(req.ID)
		return nil, err
	}

	now := time.Now().UTC()
	p := &project.Project{
		ID:           req.ID,
		Name:         req.Name,
		Branch:       wt.Branch,
		WorktreePath: wt.Path,
		Status:       project.StatusActive,
		ParentID:     req.ParentID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateProject(ctx, p); err != nil {
		if rmErr := s.isolation.RemoveWorktree(ctx, req.ID); rmErr != nil {
			slog.Error("worktree rollback failed", "project_id", req.ID, "error", rmErr)
		}
		s.detachLineage(req.ID)
		return nil, fmt.Errorf("create project %s: %w", req.ID, err)
	}

	objective := req.Name
	status := "created"
	if _, err := s.continuity.Update(ctx, req.ID, forward.Update{
		Objective: &objective,
		Status:    &status,
	}); err != nil {
		slog.Warn("checkpoint seed failed", "project_id", req.ID, "error", err)
	}

	s.cacheDelete(ctx, projectCacheKey(req.ID))
	if s.metrics != nil {
		s.metrics.WorktreesActive.Add(ctx, 1)
	}
	slog.Info("project created", "project_id", p.ID, "branch", p.Branch)
	return p, nil
}

// GetProject reads a project through the cache.
func (s *FactoryService) GetProject(ctx context.Context, id string) (*project.Project, error) {
	key := projectCacheKey(id)
	if s.cache != nil {
		if data, ok, err := s.cache.Get(ctx, key); err == nil && ok {
			var p project.Project
			if err := json.Unmarshal(data, &p); err == nil {
				return &p, nil
			}
		}
	}

	p, err := s.store.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if data, err := json.Marshal(p); err == nil {
			_ = s.cache.Set(ctx, key, data, 30*time.Second)
		}
	}
	return p, nil
}

// ListProjects returns all projects.
func (s *FactoryService) ListProjects(ctx context.Context) ([]project.Project, error) {
	return s.store.ListProjects(ctx)
}

// DeleteProject tears the unit down: worktree, branch, checkpoint, row.
// Deletion is idempotent; deleting an already-deleted project is a no-op.
func (s *FactoryService) DeleteProject(ctx context.Context, id string) error {
	if err := s.isolation.RemoveWorktree(ctx, id); err != nil {
		return err
	}
	if err := s.continuity.Delete(ctx, id); err != nil {
		slog.Warn("checkpoint delete failed", "project_id", id, "error", err)
	}

	err := s.store.DeleteProject(ctx, id)
	switch {
	case err == nil:
		if s.metrics != nil {
			s.metrics.WorktreesActive.Add(ctx, -1)
		}
	case errors.Is(err, domain.ErrNotFound):
		// Already gone.
	default:
		return err
	}

	s.detachLineage(id)
	s.cacheDelete(ctx, projectCacheKey(id))
	slog.Info("project deleted", "project_id", id)
	return nil
}

// ForkChildren returns the exploration children attached to id in this
// process's lifetime.
func (s *FactoryService) ForkChildren(id string) []string {
	s.treeMu.Lock()
	defer s.treeMu.Unlock()
	return s.tree.Children(id)
}

func (s *FactoryService) detachLineage(id string) {
	s.treeMu.Lock()
	s.tree.Detach(id)
	s.treeMu.Unlock()
}

// RunTask executes one task as one agent session: select a model for the
// task's role, activate an agent, run under the hard session timeout, then
// commit through the pre-commit gate and reconcile graph, continuity, and
// cost. At most one session may be active per project.
func (s *FactoryService) RunTask(ctx context.Context, projectID, taskID string) (*SessionResult, error) {
	p, err := s.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !s.sessions.acquire(projectID) {
		return nil, fmt.Errorf("project %s already has an active session: %w", projectID, domain.ErrConflict)
	}
	defer s.sessions.release(projectID)

	t, err := s.graph.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if t.Status == task.StatusPending {
		if t, err = s.graph.Update(ctx, taskID, task.StatusInProgress); err != nil {
			return nil, err
		}
	}

	role := agent.Role(t.AssignedRole)
	if !role.Valid() {
		role = agent.RoleCoder
	}
	opt := s.selector.GetModelForRole(ctx, role)

	worker, err := s.coordinator.CreateAgent(role)
	if err != nil {
		return nil, err
	}
	if err := s.coordinator.AssignTask(ctx, projectID, worker.ID, taskID, t.Description); err != nil {
		return nil, err
	}

	sessionID := uuid.NewString()
	result := &SessionResult{SessionID: sessionID, TaskID: taskID, AgentID: worker.ID, Model: opt.ID}
	sessionCtx, span := telemetry.StartSessionSpan(ctx, sessionID, projectID, string(role))
	defer span.End()
	sessionCtx = logger.WithSessionID(logger.WithUnitID(sessionCtx, projectID), sessionID)
	slog.InfoContext(sessionCtx, "session started", "task_id", taskID, "role", role, "model", opt.ID)
	started := time.Now()
	if s.metrics != nil {
		s.metrics.SessionsStarted.Add(ctx, 1)
	}

	runCtx, cancel := context.WithTimeout(sessionCtx, s.cfg.SessionTimeout)
	defer cancel()
	res, runErr := s.runner.Execute(runCtx, agentrunner.Request{
		Role:         role,
		Description:  t.Description,
		Model:        opt.ID,
		WorktreePath: p.WorktreePath,
	})

	if runCtx.Err() == context.DeadlineExceeded {
		// The cancellation contract: on expiry the checkpoint is flushed so
		// a successor session can resume, then the session terminates.
		result.TimedOut = true
		s.flushOnTimeout(ctx, projectID, p.WorktreePath, sessionID)
		if _, escErr := s.coordinator.Escalate(ctx, projectID, worker.ID, "session timed out"); escErr != nil {
			slog.Error("escalation failed", "agent_id", worker.ID, "error", escErr)
		}
		s.finishSession(ctx, started, false)
		return result, fmt.Errorf("session %s: %w", sessionID, context.DeadlineExceeded)
	}
	if runErr != nil {
		s.finishSession(ctx, started, false)
		if _, escErr := s.coordinator.Escalate(ctx, projectID, worker.ID, runErr.Error()); escErr != nil {
			slog.Error("escalation failed", "agent_id", worker.ID, "error", escErr)
		}
		return result, fmt.Errorf("session %s: %w", sessionID, runErr)
	}

	result.Output = res.Output
	result.Success = res.Success
	if entry, err := s.selector.RecordOperation(ctx, projectID, opt.ID, res.TokensIn, res.TokensOut); err == nil {
		result.CostUSD = entry.CostUSD
		s.addProjectCost(ctx, projectID, entry.CostUSD, res.TokensIn, res.TokensOut)
	} else {
		slog.Error("cost recording failed", "project_id", projectID, "error", err)
	}

	if !res.Success {
		if _, err := s.graph.Update(ctx, taskID, task.StatusFailed); err != nil {
			slog.Warn("task state update failed", "task_id", taskID, "error", err)
		}
		if _, err := s.coordinator.Escalate(ctx, projectID, worker.ID, res.Output); err != nil {
			slog.Error("escalation failed", "agent_id", worker.ID, "error", err)
		}
		s.finishSession(ctx, started, false)
		return result, nil
	}

	hash, err := s.commitSession(ctx, projectID, p.WorktreePath, sessionID, worker.ID, t)
	if err != nil {
		s.finishSession(ctx, started, false)
		return result, err
	}
	result.CommitHash = hash

	if _, err := s.graph.Update(ctx, taskID, task.StatusCompleted); err != nil {
		return result, err
	}
	if _, err := s.coordinator.CompleteTask(ctx, projectID, worker.ID, res.Output, ""); err != nil {
		slog.Warn("agent completion failed", "agent_id", worker.ID, "error", err)
	}
	s.snapshotTasks(ctx, projectID)
	s.checkpointProgress(ctx, projectID, sessionID, t.Title)
	s.finishSession(ctx, started, true)
	return result, nil
}

// MergeProject merges the unit branch into the base repository's checked-out
// branch. The pre-push gate is the enforcement point: missing or NOK ledger
// entries hold the merge (default-deny).
func (s *FactoryService) MergeProject(ctx context.Context, projectID, message string) error {
	p, err := s.GetProject(ctx, projectID)
	if err != nil {
		return err
	}

	allowed, failing, err := s.gate.CheckLedger(ctx, projectID, nag.StagePrePush)
	if err != nil {
		return err
	}
	if !allowed {
		return &GateBlockedError{Stage: nag.StagePrePush, Nags: failing}
	}

	if message == "" {
		message = fmt.Sprintf("Merge %s", p.Branch)
	}
	if err := s.isolation.Merge(ctx, projectID, message); err != nil {
		return err
	}

	if err := p.Transition(project.StatusCompleted); err != nil {
		return err
	}
	if err := s.store.UpdateProject(ctx, p); err != nil {
		return err
	}
	s.cacheDelete(ctx, projectCacheKey(projectID))
	slog.Info("project merged", "project_id", projectID, "branch", p.Branch)
	return nil
}

// MaybeFork creates an exploration child project when the completion
// confidence falls below the configured threshold. The child carves its own
// branch and worktree from the parent's branch; parent and child form an
// explicit tree. A confidence at or above the threshold forks nothing.
func (s *FactoryService) MaybeFork(ctx context.Context, parentID string, confidence float64) (*project.Project, error) {
	if confidence >= s.cfg.ForkConfidence {
		return nil, nil
	}

	parent, err := s.GetProject(ctx, parentID)
	if err != nil {
		return nil, err
	}

	childID := parentID + "-fork-" + uuid.NewString()[:8]
	child, err := s.CreateProject(ctx, project.CreateRequest{
		ID:         childID,
		Name:       parent.Name + " (exploration)",
		BaseBranch: parent.Branch,
		ParentID:   parentID,
	})
	if err != nil {
		return nil, fmt.Errorf("fork %s: %w", parentID, err)
	}

	// Re-read so the version reflects any CreateProject side effects before
	// the optimistic-locked child registration.
	parent, err = s.store.GetProject(ctx, parentID)
	if err != nil {
		return nil, err
	}
	parent.ChildIDs = append(parent.ChildIDs, childID)
	if err := s.store.UpdateProject(ctx, parent); err != nil {
		return nil, fmt.Errorf("register fork %s: %w", childID, err)
	}
	s.cacheDelete(ctx, projectCacheKey(parentID))

	slog.Info("exploration fork created",
		"parent_id", parentID, "child_id", childID, "confidence", confidence)
	return child, nil
}

// commitSession runs the pre-commit enforcement point and, when allowed,
// commits the session's changes with embedded metadata.
func (s *FactoryService) commitSession(ctx context.Context, projectID, worktreePath, sessionID, agentID string, t *task.Task) (string, error) {
	allowed, failing, err := s.gate.CheckLedger(ctx, projectID, nag.StagePreCommit)
	if err != nil {
		return "", err
	}
	if !allowed {
		if s.metrics != nil {
			s.metrics.GateBlocked.Add(ctx, 1)
		}
		return "", &GateBlockedError{Stage: nag.StagePreCommit, Nags: failing}
	}

	rec := commitmeta.Record{
		Intent:    t.Title,
		Context:   t.Description,
		AgentID:   agentID,
		SessionID: sessionID,
		CreatedAt: time.Now().UTC(),
	}
	hash, err := s.isolation.CommitWithMetadata(ctx, worktreePath, t.Title, rec)
	if err != nil {
		return "", err
	}
	if hash != "" {
		s.coordinator.RecordCommit(projectID, rec)
	}
	return hash, nil
}

// flushOnTimeout records the interruption in the checkpoint and commits it.
func (s *FactoryService) flushOnTimeout(ctx context.Context, projectID, worktreePath, sessionID string) {
	status := "session timed out; resume from next steps"
	if _, err := s.continuity.Update(ctx, projectID, forward.Update{
		SessionID: &sessionID,
		Status:    &status,
	}); err != nil {
		slog.Error("checkpoint update on timeout failed", "project_id", projectID, "error", err)
	}
	if err := s.continuity.Flush(ctx, projectID, worktreePath); err != nil {
		slog.Error("checkpoint flush on timeout failed", "project_id", projectID, "error", err)
	}
}

func (s *FactoryService) checkpointProgress(ctx context.Context, projectID, sessionID, done string) {
	status := "completed: " + done
	if _, err := s.continuity.Update(ctx, projectID, forward.Update{
		SessionID: &sessionID,
		Status:    &status,
	}); err != nil {
		slog.Warn("checkpoint update failed", "project_id", projectID, "error", err)
	}
}

func (s *FactoryService) snapshotTasks(ctx context.Context, projectID string) {
	tasks, err := s.graph.List(ctx, projectID)
	if err != nil {
		slog.Warn("task snapshot failed", "project_id", projectID, "error", err)
		return
	}
	s.coordinator.SnapshotTasks(projectID, tasks)
}

// addProjectCost folds a session's cost into the project counters under
// optimistic locking, retrying once on version conflict.
func (s *FactoryService) addProjectCost(ctx context.Context, projectID string, costUSD float64, tokensIn, tokensOut int64) {
	for range 2 {
		p, err := s.store.GetProject(ctx, projectID)
		if err != nil {
			slog.Error("project cost update failed", "project_id", projectID, "error", err)
			return
		}
		p.AddCost(costUSD, tokensIn, tokensOut)
		err = s.store.UpdateProject(ctx, p)
		if err == nil {
			s.cacheDelete(ctx, projectCacheKey(projectID))
			return
		}
		if !errors.Is(err, domain.ErrConflict) {
			slog.Error("project cost update failed", "project_id", projectID, "error", err)
			return
		}
	}
	slog.Warn("project cost update lost to concurrent writers", "project_id", projectID)
}

func (s *FactoryService) finishSession(ctx context.Context, started time.Time, success bool) {
	if s.metrics == nil {
		return
	}
	s.metrics.SessionDuration.Record(ctx, time.Since(started).Seconds())
	if success {
		s.metrics.SessionsCompleted.Add(ctx, 1)
	} else {
		s.metrics.SessionsFailed.Add(ctx, 1)
	}
}

func (s *FactoryService) cacheDelete(ctx context.Context, key string) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Delete(ctx, key)
}

func projectCacheKey(id string) string {
	return "project/" + id
}

// sessionGuard enforces the one-active-session-per-project invariant.
type sessionGuard struct {
	mu     *sync.Mutex
	active map[string]bool
}

func newSessionGuard() sessionGuard {
	return sessionGuard{mu: &sync.Mutex{}, active: make(map[string]bool)}
}

func (g *sessionGuard) acquire(projectID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active[projectID] {
		return false
	}
	g.active[projectID] = true
	return true
}

func (g *sessionGuard) release(projectID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.active, projectID)
}
