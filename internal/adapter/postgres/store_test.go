package postgres_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"

	"github.com/Strob0t/AgentFoundry/internal/adapter/postgres"
	"github.com/Strob0t/AgentFoundry/internal/config"
	"github.com/Strob0t/AgentFoundry/internal/domain"
	"github.com/Strob0t/AgentFoundry/internal/domain/cost"
	"github.com/Strob0t/AgentFoundry/internal/domain/orchestration"
	"github.com/Strob0t/AgentFoundry/internal/domain/project"
	"github.com/Strob0t/AgentFoundry/internal/domain/task"
)

// setupStore creates a pgxpool connection, runs all migrations, and returns a
// ready-to-use Store. The pool is closed via t.Cleanup.
func setupStore(t *testing.T) *postgres.Store {
	t.Helper()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("requires DATABASE_URL")
	}

	ctx := context.Background()

	if err := postgres.RunMigrations(ctx, dsn); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	cfg := config.Defaults().Postgres
	cfg.DSN = dsn
	pool, err := postgres.NewPool(ctx, cfg)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	t.Cleanup(pool.Close)

	return postgres.NewStore(pool)
}

func newProject(name string) *project.Project {
	id := uuid.NewString()
	return &project.Project{
		ID:     id,
		Name:   name,
		Branch: "foundry/task/" + id,
		Status: project.StatusActive,
	}
}

func TestProjectCRUD(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	p := newProject("crud-project")
	if err := store.CreateProject(ctx, p); err != nil {
		t.Fatalf("create: %v", err)
	}
	defer func() { _ = store.DeleteProject(ctx, p.ID) }()

	got, err := store.GetProject(ctx, p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "crud-project" || got.Version != 1 {
		t.Errorf("unexpected project: %+v", got)
	}

	got.Name = "renamed"
	if err := store.UpdateProject(ctx, got); err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Version != 2 {
		t.Errorf("expected version bump to 2, got %d", got.Version)
	}

	// Stale version must conflict.
	stale := *got
	stale.Version = 1
	if err := store.UpdateProject(ctx, &stale); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("expected ErrConflict for stale version, got %v", err)
	}

	if err := store.DeleteProject(ctx, p.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.GetProject(ctx, p.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestProjectChildren(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	parent := newProject("parent")
	if err := store.CreateProject(ctx, parent); err != nil {
		t.Fatalf("create parent: %v", err)
	}
	defer func() { _ = store.DeleteProject(ctx, parent.ID) }()

	child := newProject("child")
	child.ParentID = parent.ID
	if err := store.CreateProject(ctx, child); err != nil {
		t.Fatalf("create child: %v", err)
	}
	defer func() { _ = store.DeleteProject(ctx, child.ID) }()

	got, err := store.GetProject(ctx, parent.ID)
	if err != nil {
		t.Fatalf("get parent: %v", err)
	}
	if len(got.ChildIDs) != 1 || got.ChildIDs[0] != child.ID {
		t.Errorf("expected child %s, got %v", child.ID, got.ChildIDs)
	}
}

func TestTaskCRUD(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	p := newProject("task-project")
	if err := store.CreateProject(ctx, p); err != nil {
		t.Fatalf("create project: %v", err)
	}
	defer func() { _ = store.DeleteProject(ctx, p.ID) }()

	first := &task.Task{
		ID:        uuid.NewString(),
		ProjectID: p.ID,
		Title:     "first",
		Status:    task.StatusPending,
		Priority:  1,
	}
	if err := store.CreateTask(ctx, first); err != nil {
		t.Fatalf("create task: %v", err)
	}

	second := &task.Task{
		ID:        uuid.NewString(),
		ProjectID: p.ID,
		Title:     "second",
		Status:    task.StatusPending,
		Priority:  5,
		DependsOn: []string{first.ID},
	}
	if err := store.CreateTask(ctx, second); err != nil {
		t.Fatalf("create task: %v", err)
	}

	tasks, err := store.ListTasks(ctx, p.ID)
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(tasks))
	}
	// Priority DESC ordering.
	if tasks[0].ID != second.ID {
		t.Errorf("expected highest priority first, got %s", tasks[0].Title)
	}
	if len(tasks[0].DependsOn) != 1 || tasks[0].DependsOn[0] != first.ID {
		t.Errorf("expected depends_on round trip, got %v", tasks[0].DependsOn)
	}

	got, err := store.GetTask(ctx, first.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if err := got.Transition(task.StatusInProgress); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if err := store.UpdateTask(ctx, got); err != nil {
		t.Fatalf("update task: %v", err)
	}

	stale := *got
	stale.Version = 1
	if err := store.UpdateTask(ctx, &stale); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
}

func TestCostAggregation(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	p := newProject("cost-project")
	if err := store.CreateProject(ctx, p); err != nil {
		t.Fatalf("create project: %v", err)
	}
	defer func() { _ = store.DeleteProject(ctx, p.ID) }()

	entries := []cost.Entry{
		{ID: uuid.NewString(), ProjectID: p.ID, Model: "haiku-lite", TokensIn: 1000, TokensOut: 500, CostUSD: 0.01},
		{ID: uuid.NewString(), ProjectID: p.ID, Model: "opus-max", TokensIn: 2000, TokensOut: 1000, CostUSD: 0.5},
	}
	for i := range entries {
		if err := store.AppendCost(ctx, &entries[i]); err != nil {
			t.Fatalf("append cost: %v", err)
		}
	}

	sum, err := store.ProjectCost(ctx, p.ID)
	if err != nil {
		t.Fatalf("project cost: %v", err)
	}
	if sum.OperationCount != 2 || sum.TotalTokensIn != 3000 {
		t.Errorf("unexpected summary: %+v", sum)
	}

	byModel, err := store.CostByModel(ctx)
	if err != nil {
		t.Fatalf("cost by model: %v", err)
	}
	if len(byModel) == 0 {
		t.Error("expected at least one model summary")
	}
}

func TestCollabLogArchive(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	p := newProject("log-project")
	if err := store.CreateProject(ctx, p); err != nil {
		t.Fatalf("create project: %v", err)
	}
	defer func() { _ = store.DeleteProject(ctx, p.ID) }()

	for i := range 3 {
		e := &orchestration.LogEntry{
			ID:        uuid.NewString(),
			ProjectID: p.ID,
			From:      "coder-1",
			To:        "tester-1",
			Kind:      orchestration.KindHandoff,
			Content:   "handoff",
		}
		if err := store.AppendLogEntry(ctx, e); err != nil {
			t.Fatalf("append log entry %d: %v", i, err)
		}
	}

	entries, err := store.ListLogEntries(ctx, p.ID, 2)
	if err != nil {
		t.Fatalf("list log entries: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("expected limit of 2 entries, got %d", len(entries))
	}
}
