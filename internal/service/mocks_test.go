package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/Strob0t/AgentFoundry/internal/domain"
	"github.com/Strob0t/AgentFoundry/internal/domain/cost"
	"github.com/Strob0t/AgentFoundry/internal/domain/orchestration"
	"github.com/Strob0t/AgentFoundry/internal/domain/project"
	"github.com/Strob0t/AgentFoundry/internal/domain/task"
	"github.com/Strob0t/AgentFoundry/internal/port/agentrunner"
	"github.com/Strob0t/AgentFoundry/internal/port/messagequeue"
	"github.com/Strob0t/AgentFoundry/internal/port/vcs"
)

// mockVCS is an in-memory vcs.Client. Commits are stored newest first.
// Individual operations can be overridden through the err* fields.
type mockVCS struct {
	mu        sync.Mutex
	branches  map[string]bool
	worktrees map[string]string // path -> branch
	commits   map[string][]vcs.Commit
	merged    []string
	diff      vcs.DiffStat
	clean     bool // Commit reports nothing to commit

	errCreateBranch error
	errAddWorktree  error
	errRemove       error
	errCommit       error
}

func newMockVCS() *mockVCS {
	return &mockVCS{
		branches:  make(map[string]bool),
		worktrees: make(map[string]string),
		commits:   make(map[string][]vcs.Commit),
	}
}

func (m *mockVCS) CreateBranch(_ context.Context, _, branch, _ string) error {
	if m.errCreateBranch != nil {
		return m.errCreateBranch
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.branches[branch] {
		return domain.ErrExists
	}
	m.branches[branch] = true
	return nil
}

func (m *mockVCS) DeleteBranch(_ context.Context, _, branch string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.branches[branch] {
		return domain.ErrNotFound
	}
	delete(m.branches, branch)
	return nil
}

func (m *mockVCS) BranchExists(_ context.Context, _, branch string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.branches[branch], nil
}

func (m *mockVCS) AddWorktree(_ context.Context, _, worktreePath, branch string) error {
	if m.errAddWorktree != nil {
		return m.errAddWorktree
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.worktrees[worktreePath] = branch
	return nil
}

func (m *mockVCS) RemoveWorktree(_ context.Context, _, worktreePath string) error {
	if m.errRemove != nil {
		return m.errRemove
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.worktrees, worktreePath)
	return nil
}

func (m *mockVCS) Commit(_ context.Context, worktreePath, message string) (string, error) {
	if m.errCommit != nil {
		return "", m.errCommit
	}
	if m.clean {
		return "", nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	hash := fmt.Sprintf("hash-%d", len(m.commits[worktreePath])+1)
	m.commits[worktreePath] = append([]vcs.Commit{{Hash: hash, Message: message}}, m.commits[worktreePath]...)
	return hash, nil
}

func (m *mockVCS) Show(_ context.Context, worktreePath, rev string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.commits[worktreePath] {
		if c.Hash == rev {
			return c.Message, nil
		}
	}
	return "", domain.ErrNotFound
}

func (m *mockVCS) History(_ context.Context, worktreePath string, limit int) ([]vcs.Commit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	commits := m.commits[worktreePath]
	if len(commits) > limit {
		commits = commits[:limit]
	}
	return append([]vcs.Commit(nil), commits...), nil
}

func (m *mockVCS) Status(_ context.Context, _ string) (*vcs.Status, error) {
	return &vcs.Status{}, nil
}

func (m *mockVCS) Diff(_ context.Context, _ string) (*vcs.DiffStat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.diff
	return &d, nil
}

func (m *mockVCS) Merge(_ context.Context, _, branch, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.merged = append(m.merged, branch)
	return nil
}

// mockQueue records published messages.
type mockQueue struct {
	mu        sync.Mutex
	published map[string][][]byte
}

func newMockQueue() *mockQueue {
	return &mockQueue{published: make(map[string][][]byte)}
}

func (m *mockQueue) Publish(_ context.Context, subject string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published[subject] = append(m.published[subject], data)
	return nil
}

func (m *mockQueue) Subscribe(context.Context, string, messagequeue.Handler) (func(), error) {
	return func() {}, nil
}

func (m *mockQueue) Drain() error      { return nil }
func (m *mockQueue) Close() error      { return nil }
func (m *mockQueue) IsConnected() bool { return true }

func (m *mockQueue) count(subject string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.published[subject])
}

// mockLedger is an in-memory ledger.Store.
type mockLedger struct {
	mu     sync.Mutex
	values map[string][]byte
}

func newMockLedger() *mockLedger {
	return &mockLedger{values: make(map[string][]byte)}
}

func (m *mockLedger) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *mockLedger) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *mockLedger) Update(_ context.Context, key string, fn func([]byte) ([]byte, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next, err := fn(m.values[key])
	if err != nil {
		return err
	}
	m.values[key] = next
	return nil
}

func (m *mockLedger) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

func (m *mockLedger) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.values {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// mockRunner answers agent-execution requests with a canned function.
type mockRunner struct {
	execute func(ctx context.Context, req agentrunner.Request) (*agentrunner.Result, error)
}

func (m *mockRunner) Execute(ctx context.Context, req agentrunner.Request) (*agentrunner.Result, error) {
	if m.execute == nil {
		return &agentrunner.Result{Success: true, Output: "OK"}, nil
	}
	return m.execute(ctx, req)
}

// mockStore is an in-memory database.Store.
type mockStore struct {
	mu       sync.Mutex
	projects map[string]*project.Project
	tasks    map[string]*task.Task
	costs    []cost.Entry
	log      []orchestration.LogEntry
	apiKeys  map[string]string // name -> hash
}

func newMockStore() *mockStore {
	return &mockStore{
		projects: make(map[string]*project.Project),
		tasks:    make(map[string]*task.Task),
		apiKeys:  make(map[string]string),
	}
}

func (m *mockStore) ListProjects(context.Context) ([]project.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []project.Project
	for _, p := range m.projects {
		out = append(out, *p)
	}
	return out, nil
}

func (m *mockStore) GetProject(_ context.Context, id string) (*project.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, fmt.Errorf("get project %s: %w", id, domain.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (m *mockStore) CreateProject(_ context.Context, p *project.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[p.ID]; ok {
		return domain.ErrExists
	}
	p.Version = 1
	cp := *p
	m.projects[p.ID] = &cp
	return nil
}

func (m *mockStore) UpdateProject(_ context.Context, p *project.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.projects[p.ID]
	if !ok {
		return fmt.Errorf("update project %s: %w", p.ID, domain.ErrNotFound)
	}
	if current.Version != p.Version {
		return fmt.Errorf("update project %s: %w", p.ID, domain.ErrConflict)
	}
	p.Version++
	cp := *p
	m.projects[p.ID] = &cp
	return nil
}

func (m *mockStore) DeleteProject(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[id]; !ok {
		return fmt.Errorf("delete project %s: %w", id, domain.ErrNotFound)
	}
	delete(m.projects, id)
	return nil
}

func (m *mockStore) ListTasks(_ context.Context, projectID string) ([]task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []task.Task
	for _, t := range m.tasks {
		if t.ProjectID == projectID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (m *mockStore) GetTask(_ context.Context, id string) (*task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, fmt.Errorf("get task %s: %w", id, domain.ErrNotFound)
	}
	cp := *t
	return &cp, nil
}

func (m *mockStore) CreateTask(_ context.Context, t *task.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[t.ID]; ok {
		return domain.ErrExists
	}
	t.Version = 1
	cp := *t
	m.tasks[t.ID] = &cp
	return nil
}

func (m *mockStore) UpdateTask(_ context.Context, t *task.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.tasks[t.ID]
	if !ok {
		return fmt.Errorf("update task %s: %w", t.ID, domain.ErrNotFound)
	}
	if current.Version != t.Version {
		return fmt.Errorf("update task %s: %w", t.ID, domain.ErrConflict)
	}
	t.Version++
	cp := *t
	m.tasks[t.ID] = &cp
	return nil
}

func (m *mockStore) AppendCost(_ context.Context, e *cost.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.costs = append(m.costs, *e)
	return nil
}

func (m *mockStore) ProjectCost(_ context.Context, projectID string) (*cost.Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum cost.Summary
	for _, e := range m.costs {
		if e.ProjectID != projectID {
			continue
		}
		sum.TotalCostUSD += e.CostUSD
		sum.TotalTokensIn += e.TokensIn
		sum.TotalTokensOut += e.TokensOut
		sum.OperationCount++
	}
	return &sum, nil
}

func (m *mockStore) CostByModel(context.Context) ([]cost.ModelSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byModel := make(map[string]*cost.ModelSummary)
	for _, e := range m.costs {
		ms, ok := byModel[e.Model]
		if !ok {
			ms = &cost.ModelSummary{Model: e.Model}
			byModel[e.Model] = ms
		}
		ms.TotalCostUSD += e.CostUSD
		ms.TotalTokensIn += e.TokensIn
		ms.TotalTokensOut += e.TokensOut
		ms.OperationCount++
	}
	var out []cost.ModelSummary
	for _, ms := range byModel {
		out = append(out, *ms)
	}
	return out, nil
}

func (m *mockStore) AppendLogEntry(_ context.Context, e *orchestration.LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.log = append(m.log, *e)
	return nil
}

func (m *mockStore) ListLogEntries(_ context.Context, projectID string, limit int) ([]orchestration.LogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []orchestration.LogEntry
	for i := len(m.log) - 1; i >= 0 && len(out) < limit; i-- {
		if m.log[i].ProjectID == projectID {
			out = append(out, m.log[i])
		}
	}
	return out, nil
}

func (m *mockStore) CreateAPIKey(_ context.Context, name, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.apiKeys[name] = hash
	return nil
}

func (m *mockStore) ListAPIKeyHashes(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, h := range m.apiKeys {
		out = append(out, h)
	}
	return out, nil
}

// mockBroadcaster records broadcast events.
type mockBroadcaster struct {
	mu     sync.Mutex
	events []string
}

func (m *mockBroadcaster) BroadcastEvent(_ context.Context, eventType string, _ any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, eventType)
}
