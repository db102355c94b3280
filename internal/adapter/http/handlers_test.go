package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	afhttp "github.com/Strob0t/AgentFoundry/internal/adapter/http"
	"github.com/Strob0t/AgentFoundry/internal/config"
	"github.com/Strob0t/AgentFoundry/internal/domain"
	"github.com/Strob0t/AgentFoundry/internal/domain/cost"
	"github.com/Strob0t/AgentFoundry/internal/domain/nag"
	"github.com/Strob0t/AgentFoundry/internal/domain/orchestration"
	"github.com/Strob0t/AgentFoundry/internal/domain/project"
	"github.com/Strob0t/AgentFoundry/internal/domain/task"
	"github.com/Strob0t/AgentFoundry/internal/port/agentrunner"
	"github.com/Strob0t/AgentFoundry/internal/port/messagequeue"
	"github.com/Strob0t/AgentFoundry/internal/port/vcs"
	"github.com/Strob0t/AgentFoundry/internal/resilience"
	"github.com/Strob0t/AgentFoundry/internal/service"
)

// memStore is an in-memory database.Store.
type memStore struct {
	mu       sync.Mutex
	projects map[string]*project.Project
	tasks    map[string]*task.Task
	costs    []cost.Entry
	log      []orchestration.LogEntry
	hashes   []string
}

func newMemStore() *memStore {
	return &memStore{
		projects: make(map[string]*project.Project),
		tasks:    make(map[string]*task.Task),
	}
}

func (m *memStore) ListProjects(context.Context) ([]project.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []project.Project
	for _, p := range m.projects {
		out = append(out, *p)
	}
	return out, nil
}

func (m *memStore) GetProject(_ context.Context, id string) (*project.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, fmt.Errorf("get project %s: %w", id, domain.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) CreateProject(_ context.Context, p *project.Project) error {
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

func (m *memStore) UpdateProject(_ context.Context, p *project.Project) error {
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

func (m *memStore) DeleteProject(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[id]; !ok {
		return fmt.Errorf("delete project %s: %w", id, domain.ErrNotFound)
	}
	delete(m.projects, id)
	return nil
}

func (m *memStore) ListTasks(_ context.Context, projectID string) ([]task.Task, error) {
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

func (m *memStore) GetTask(_ context.Context, id string) (*task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, fmt.Errorf("get task %s: %w", id, domain.ErrNotFound)
	}
	cp := *t
	return &cp, nil
}

func (m *memStore) CreateTask(_ context.Context, t *task.Task) error {
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

func (m *memStore) UpdateTask(_ context.Context, t *task.Task) error {
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

func (m *memStore) AppendCost(_ context.Context, e *cost.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.costs = append(m.costs, *e)
	return nil
}

func (m *memStore) ProjectCost(_ context.Context, projectID string) (*cost.Summary, error) {
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

func (m *memStore) CostByModel(context.Context) ([]cost.ModelSummary, error) {
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
		ms.OperationCount++
	}
	var out []cost.ModelSummary
	for _, ms := range byModel {
		out = append(out, *ms)
	}
	return out, nil
}

func (m *memStore) AppendLogEntry(_ context.Context, e *orchestration.LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.log = append(m.log, *e)
	return nil
}

func (m *memStore) ListLogEntries(_ context.Context, projectID string, limit int) ([]orchestration.LogEntry, error) {
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

func (m *memStore) CreateAPIKey(_ context.Context, _, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hashes = append(m.hashes, hash)
	return nil
}

func (m *memStore) ListAPIKeyHashes(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.hashes...), nil
}

// memVCS is an in-memory vcs.Client.
type memVCS struct {
	mu        sync.Mutex
	branches  map[string]bool
	worktrees map[string]string
	commits   map[string][]vcs.Commit
	merged    []string
}

func newMemVCS() *memVCS {
	return &memVCS{
		branches:  make(map[string]bool),
		worktrees: make(map[string]string),
		commits:   make(map[string][]vcs.Commit),
	}
}

func (m *memVCS) CreateBranch(_ context.Context, _, branch, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.branches[branch] {
		return domain.ErrExists
	}
	m.branches[branch] = true
	return nil
}

func (m *memVCS) DeleteBranch(_ context.Context, _, branch string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.branches, branch)
	return nil
}

func (m *memVCS) BranchExists(_ context.Context, _, branch string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.branches[branch], nil
}

func (m *memVCS) AddWorktree(_ context.Context, _, worktreePath, branch string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.worktrees[worktreePath] = branch
	return nil
}

func (m *memVCS) RemoveWorktree(_ context.Context, _, worktreePath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.worktrees, worktreePath)
	return nil
}

func (m *memVCS) Commit(_ context.Context, worktreePath, message string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	hash := fmt.Sprintf("hash-%d", len(m.commits[worktreePath])+1)
	m.commits[worktreePath] = append([]vcs.Commit{{Hash: hash, Message: message}}, m.commits[worktreePath]...)
	return hash, nil
}

func (m *memVCS) Show(_ context.Context, worktreePath, rev string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.commits[worktreePath] {
		if c.Hash == rev {
			return c.Message, nil
		}
	}
	return "", domain.ErrNotFound
}

func (m *memVCS) History(_ context.Context, worktreePath string, limit int) ([]vcs.Commit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	commits := m.commits[worktreePath]
	if len(commits) > limit {
		commits = commits[:limit]
	}
	return append([]vcs.Commit(nil), commits...), nil
}

func (m *memVCS) Status(context.Context, string) (*vcs.Status, error) {
	return &vcs.Status{}, nil
}

func (m *memVCS) Diff(context.Context, string) (*vcs.DiffStat, error) {
	return &vcs.DiffStat{}, nil
}

func (m *memVCS) Merge(_ context.Context, _, branch, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.merged = append(m.merged, branch)
	return nil
}

// memLedger is an in-memory ledger.Store.
type memLedger struct {
	mu     sync.Mutex
	values map[string][]byte
}

func newMemLedger() *memLedger {
	return &memLedger{values: make(map[string][]byte)}
}

func (m *memLedger) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *memLedger) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *memLedger) Update(_ context.Context, key string, fn func([]byte) ([]byte, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next, err := fn(m.values[key])
	if err != nil {
		return err
	}
	m.values[key] = next
	return nil
}

func (m *memLedger) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

func (m *memLedger) Keys(_ context.Context, prefix string) ([]string, error) {
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

// memQueue drops published messages.
type memQueue struct{}

func (memQueue) Publish(context.Context, string, []byte) error { return nil }
func (memQueue) Subscribe(context.Context, string, messagequeue.Handler) (func(), error) {
	return func() {}, nil
}
func (memQueue) Drain() error      { return nil }
func (memQueue) Close() error      { return nil }
func (memQueue) IsConnected() bool { return true }

type noopBroadcaster struct{}

func (noopBroadcaster) BroadcastEvent(context.Context, string, any) {}

// echoVerifier agrees with whatever status is recorded.
type echoVerifier struct{}

func (echoVerifier) Verify(_ context.Context, t task.Task) (service.AuditVerdict, error) {
	return service.AuditVerdict{
		Complete:   t.Status == task.StatusCompleted,
		Confidence: 1,
	}, nil
}

type okRunner struct{}

func (okRunner) Execute(context.Context, agentrunner.Request) (*agentrunner.Result, error) {
	return &agentrunner.Result{Success: true, Output: "OK", TokensIn: 100, TokensOut: 50}, nil
}

type apiFixture struct {
	router chi.Router
	store  *memStore
	vcs    *memVCS
	gate   *service.GateService
}

func newAPI(t *testing.T, gateNags []nag.Nag) *apiFixture {
	t.Helper()

	repoPath := filepath.Join(t.TempDir(), "repo")
	if err := os.MkdirAll(repoPath, 0o755); err != nil {
		t.Fatalf("mkdir repo: %v", err)
	}

	store := newMemStore()
	client := newMemVCS()
	ledgerStore := newMemLedger()
	queue := memQueue{}
	hub := noopBroadcaster{}
	runner := okRunner{}

	cfg := config.Defaults()
	cfg.Factory.RepoPath = repoPath
	cfg.Gate.Nags = gateNags

	isolation := service.NewIsolationService(client, queue, repoPath, cfg.Factory.BranchNamespace)
	graph := service.NewTaskGraphService(store, queue, echoVerifier{}, 2)
	coordinator := service.NewCoordinatorService(store, queue, hub, cfg.Factory.CollabLogMax)
	gate := service.NewGateService(cfg.Gate, cfg.Discipline, ledgerStore, runner, client, queue, hub)
	continuity := service.NewContinuityService(ledgerStore, client)
	selector := service.NewSelectorService(cfg.Models, store, resilience.NewRegistry(3, time.Minute), nil, queue, hub)
	factory := service.NewFactoryService(cfg.Factory, store, isolation, graph, coordinator,
		gate, continuity, selector, runner, nil, nil)

	h := afhttp.NewHandlers(factory, graph, coordinator, gate, continuity, selector, store, nil)
	router := chi.NewRouter()
	afhttp.MountRoutes(router, h, nil)
	return &apiFixture{router: router, store: store, vcs: client, gate: gate}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestHealthEndpoints(t *testing.T) {
	f := newAPI(t, nil)
	if rec := f.do(t, http.MethodGet, "/health", nil); rec.Code != http.StatusOK {
		t.Errorf("health: got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/health/ready", nil); rec.Code != http.StatusOK {
		t.Errorf("ready: got %d", rec.Code)
	}
}

func TestProjectEndpoints(t *testing.T) {
	f := newAPI(t, nil)

	rec := f.do(t, http.MethodPost, "/api/v1/projects", project.CreateRequest{ID: "p1", Name: "alpha"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: got %d body=%s", rec.Code, rec.Body)
	}
	p := decode[project.Project](t, rec)
	if p.Branch == "" || p.WorktreePath == "" {
		t.Errorf("expected provisioned project, got %+v", p)
	}

	// Duplicate id conflicts.
	if rec := f.do(t, http.MethodPost, "/api/v1/projects", project.CreateRequest{ID: "p1", Name: "alpha"}); rec.Code != http.StatusConflict {
		t.Errorf("duplicate create: got %d", rec.Code)
	}
	// Missing name is a bad request.
	if rec := f.do(t, http.MethodPost, "/api/v1/projects", project.CreateRequest{ID: "p2"}); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid create: got %d", rec.Code)
	}

	if rec := f.do(t, http.MethodGet, "/api/v1/projects/p1", nil); rec.Code != http.StatusOK {
		t.Errorf("get: got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/api/v1/projects", nil); rec.Code != http.StatusOK {
		t.Errorf("list: got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/api/v1/projects/ghost", nil); rec.Code != http.StatusNotFound {
		t.Errorf("get missing: got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodDelete, "/api/v1/projects/p1", nil); rec.Code != http.StatusNoContent {
		t.Errorf("delete: got %d", rec.Code)
	}
	// Idempotent delete.
	if rec := f.do(t, http.MethodDelete, "/api/v1/projects/p1", nil); rec.Code != http.StatusNoContent {
		t.Errorf("second delete: got %d", rec.Code)
	}
}

func TestTaskEndpoints(t *testing.T) {
	f := newAPI(t, nil)
	f.do(t, http.MethodPost, "/api/v1/projects", project.CreateRequest{ID: "p1", Name: "alpha"})

	rec := f.do(t, http.MethodPost, "/api/v1/projects/p1/tasks", map[string]any{"title": "build parser"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create task: got %d body=%s", rec.Code, rec.Body)
	}
	created := decode[task.Task](t, rec)

	rec = f.do(t, http.MethodPost, "/api/v1/projects/p1/tasks", map[string]any{
		"title": "wire parser", "depends_on": []string{created.ID},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create dependent task: got %d", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/projects/p1/tasks/executable", nil)
	ready := decode[[]task.Task](t, rec)
	if len(ready) != 1 || ready[0].ID != created.ID {
		t.Fatalf("expected one executable task, got %v", ready)
	}

	// pending -> completed is not a legal move.
	rec = f.do(t, http.MethodPatch, "/api/v1/tasks/"+created.ID+"/status", map[string]string{"status": "completed"})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("illegal transition: got %d", rec.Code)
	}
	rec = f.do(t, http.MethodPatch, "/api/v1/tasks/"+created.ID+"/status", map[string]string{"status": "in_progress"})
	if rec.Code != http.StatusOK {
		t.Errorf("legal transition: got %d body=%s", rec.Code, rec.Body)
	}

	if rec := f.do(t, http.MethodGet, "/api/v1/tasks/ghost", nil); rec.Code != http.StatusNotFound {
		t.Errorf("get missing task: got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/api/v1/projects/p1/tasks/audit", nil); rec.Code != http.StatusOK {
		t.Errorf("audit: got %d", rec.Code)
	}
}

func TestGateEndpoints(t *testing.T) {
	f := newAPI(t, []nag.Nag{{
		ID: "build", Stage: nag.StagePrePush, Kind: nag.KindTool, Blocking: true,
		Enabled: true, Command: "true", Criterion: nag.CriterionExitCode,
	}})
	f.do(t, http.MethodPost, "/api/v1/projects", project.CreateRequest{ID: "p1", Name: "alpha"})

	// No ledger entry: enforcement denies by default.
	rec := f.do(t, http.MethodGet, "/api/v1/projects/p1/gate/check?stage=pre-push", nil)
	check := decode[struct {
		Allowed bool     `json:"allowed"`
		Failing []string `json:"failing"`
	}](t, rec)
	if check.Allowed || len(check.Failing) != 1 {
		t.Fatalf("expected default deny, got %+v", check)
	}

	// And merging is held back with 423.
	if rec := f.do(t, http.MethodPost, "/api/v1/projects/p1/merge", map[string]string{"message": "ship"}); rec.Code != http.StatusLocked {
		t.Errorf("merge while denied: got %d", rec.Code)
	}

	if rec := f.do(t, http.MethodPut, "/api/v1/projects/p1/gate/nags/build", map[string]string{"verdict": "OK"}); rec.Code != http.StatusNoContent {
		t.Fatalf("set verdict: got %d body=%s", rec.Code, rec.Body)
	}
	if rec := f.do(t, http.MethodPut, "/api/v1/projects/p1/gate/nags/build", map[string]string{"verdict": "MAYBE"}); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid verdict: got %d", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/projects/p1/gate/check?stage=pre-push", nil)
	if check := decode[struct {
		Allowed bool `json:"allowed"`
	}](t, rec); !check.Allowed {
		t.Error("expected allowed after OK verdict")
	}

	rec = f.do(t, http.MethodGet, "/api/v1/projects/p1/gate/export", nil)
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("export content type: %s", ct)
	}
	if !strings.Contains(rec.Body.String(), "build: OK") {
		t.Errorf("export body: %s", rec.Body)
	}

	if rec := f.do(t, http.MethodGet, "/api/v1/projects/p1/gate/check?stage=someday", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("bad stage: got %d", rec.Code)
	}
}

func TestForwardEndpoints(t *testing.T) {
	f := newAPI(t, nil)
	f.do(t, http.MethodPost, "/api/v1/projects", project.CreateRequest{ID: "p1", Name: "alpha"})

	rec := f.do(t, http.MethodPatch, "/api/v1/projects/p1/forward", map[string]any{
		"objective": "refactor storage", "status": "in progress",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update: got %d body=%s", rec.Code, rec.Body)
	}

	if rec := f.do(t, http.MethodPost, "/api/v1/projects/p1/forward/steps", map[string]string{"step": "add indexes"}); rec.Code != http.StatusNoContent {
		t.Fatalf("add step: got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/api/v1/projects/p1/forward/steps", map[string]string{}); rec.Code != http.StatusBadRequest {
		t.Errorf("empty step: got %d", rec.Code)
	}

	rec = f.do(t, http.MethodPost, "/api/v1/projects/p1/forward/steps/complete", nil)
	popped := decode[struct {
		Step      string `json:"step"`
		Completed bool   `json:"completed"`
	}](t, rec)
	if !popped.Completed || popped.Step != "add indexes" {
		t.Errorf("complete step: got %+v", popped)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/projects/p1/forward", nil)
	got := decode[struct {
		Objective string `json:"objective"`
	}](t, rec)
	if got.Objective != "refactor storage" {
		t.Errorf("read: got %+v", got)
	}

	if rec := f.do(t, http.MethodPost, "/api/v1/projects/p1/forward/flush", nil); rec.Code != http.StatusNoContent {
		t.Errorf("flush: got %d body=%s", rec.Code, rec.Body)
	}
}

func TestModelEndpoints(t *testing.T) {
	f := newAPI(t, nil)

	rec := f.do(t, http.MethodGet, "/api/v1/models/select?tier=FAST", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("select: got %d", rec.Code)
	}
	opt := decode[struct {
		ID string `json:"id"`
	}](t, rec)
	if opt.ID == "" {
		t.Error("expected a model id")
	}

	if rec := f.do(t, http.MethodGet, "/api/v1/models/select?tier=ULTRA", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("bad tier: got %d", rec.Code)
	}

	if rec := f.do(t, http.MethodPost, "/api/v1/models/rate-limited", map[string]string{"provider": "anthropic", "reason": "429"}); rec.Code != http.StatusNoContent {
		t.Fatalf("mark: got %d", rec.Code)
	}
	rec = f.do(t, http.MethodGet, "/api/v1/models/rate-limited", nil)
	if limited := decode[[]string](t, rec); len(limited) != 1 || limited[0] != "anthropic" {
		t.Errorf("rate-limited list: got %v", limited)
	}
	if rec := f.do(t, http.MethodDelete, "/api/v1/models/rate-limited/anthropic", nil); rec.Code != http.StatusNoContent {
		t.Errorf("clear: got %d", rec.Code)
	}
	rec = f.do(t, http.MethodGet, "/api/v1/models/rate-limited", nil)
	if limited := decode[[]string](t, rec); len(limited) != 0 {
		t.Errorf("expected empty rate-limited list, got %v", limited)
	}
}

func TestRunTaskEndpoint(t *testing.T) {
	f := newAPI(t, nil)
	f.do(t, http.MethodPost, "/api/v1/projects", project.CreateRequest{ID: "p1", Name: "alpha"})

	rec := f.do(t, http.MethodPost, "/api/v1/projects/p1/tasks", map[string]any{"title": "implement feature"})
	created := decode[task.Task](t, rec)

	if rec := f.do(t, http.MethodPost, "/api/v1/projects/p1/run", map[string]string{}); rec.Code != http.StatusBadRequest {
		t.Errorf("missing task_id: got %d", rec.Code)
	}

	rec = f.do(t, http.MethodPost, "/api/v1/projects/p1/run", map[string]string{"task_id": created.ID})
	if rec.Code != http.StatusOK {
		t.Fatalf("run: got %d body=%s", rec.Code, rec.Body)
	}
	res := decode[struct {
		Success    bool   `json:"success"`
		CommitHash string `json:"commit_hash"`
	}](t, rec)
	if !res.Success || res.CommitHash == "" {
		t.Errorf("expected committed session, got %+v", res)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	f := newAPI(t, nil)

	hash, err := bcrypt.GenerateFromPassword([]byte("sekrit"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.store.CreateAPIKey(context.Background(), "ci", string(hash)); err != nil {
		t.Fatal(err)
	}

	protected := chi.NewRouter()
	protected.Use(afhttp.APIKeyAuth(f.store, true))
	protected.Mount("/", f.router)

	serve := func(req *http.Request) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, req)
		return rec
	}

	// Health stays public.
	if rec := serve(httptest.NewRequest(http.MethodGet, "/health", nil)); rec.Code != http.StatusOK {
		t.Errorf("health without key: got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/projects", nil)
	if rec := serve(req); rec.Code != http.StatusUnauthorized {
		t.Errorf("no key: got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/projects", nil)
	req.Header.Set("X-API-Key", "wrong")
	if rec := serve(req); rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong key: got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/projects", nil)
	req.Header.Set("X-API-Key", "sekrit")
	if rec := serve(req); rec.Code != http.StatusOK {
		t.Errorf("valid key: got %d", rec.Code)
	}

	// WebSocket clients pass the key as a query parameter.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/projects?api_key=sekrit", nil)
	if rec := serve(req); rec.Code != http.StatusOK {
		t.Errorf("query key: got %d", rec.Code)
	}
}
