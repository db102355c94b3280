package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/AgentFoundry/internal/domain"
	"github.com/Strob0t/AgentFoundry/internal/domain/project"
	"github.com/Strob0t/AgentFoundry/internal/domain/task"
)

// Store implements database.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// --- Projects ---

const projectColumns = `id, name, branch, worktree_path, status, parent_id, cost_usd, tokens_in, tokens_out, version, created_at, updated_at`

func scanProject(row scannable) (project.Project, error) {
	var p project.Project
	var parentID *string
	err := row.Scan(&p.ID, &p.Name, &p.Branch, &p.WorktreePath, &p.Status,
		&parentID, &p.CostUSD, &p.TokensIn, &p.TokensOut, &p.Version,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return project.Project{}, err
	}
	if parentID != nil {
		p.ParentID = *parentID
	}
	return p, nil
}

func (s *Store) ListProjects(ctx context.Context) ([]project.Project, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+projectColumns+` FROM projects ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []project.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := s.loadChildren(ctx, projects); err != nil {
		return nil, err
	}
	return projects, nil
}

func (s *Store) GetProject(ctx context.Context, id string) (*project.Project, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id = $1`, id)

	p, err := scanProject(row)
	if err != nil {
		return nil, notFoundWrap(err, "get project %s", id)
	}
	ps := []project.Project{p}
	if err := s.loadChildren(ctx, ps); err != nil {
		return nil, err
	}
	return &ps[0], nil
}

// loadChildren populates ChildIDs for each project from the parent_id column.
func (s *Store) loadChildren(ctx context.Context, projects []project.Project) error {
	if len(projects) == 0 {
		return nil
	}
	ids := make([]string, len(projects))
	index := make(map[string]int, len(projects))
	for i := range projects {
		ids[i] = projects[i].ID
		index[projects[i].ID] = i
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, parent_id FROM projects WHERE parent_id = ANY($1) ORDER BY created_at`, ids)
	if err != nil {
		return fmt.Errorf("load children: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var childID, parentID string
		if err := rows.Scan(&childID, &parentID); err != nil {
			return fmt.Errorf("scan child: %w", err)
		}
		if i, ok := index[parentID]; ok {
			projects[i].ChildIDs = append(projects[i].ChildIDs, childID)
		}
	}
	return rows.Err()
}

func (s *Store) CreateProject(ctx context.Context, p *project.Project) error {
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	p.Version = 1

	_, err := s.pool.Exec(ctx,
		`INSERT INTO projects (id, name, branch, worktree_path, status, parent_id, cost_usd, tokens_in, tokens_out, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		p.ID, p.Name, p.Branch, p.WorktreePath, p.Status, nullIfEmpty(p.ParentID),
		p.CostUSD, p.TokensIn, p.TokensOut, p.Version, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create project %s: %w", p.ID, err)
	}
	return nil
}

// UpdateProject writes the project back under optimistic locking; a stale
// version yields domain.ErrConflict.
func (s *Store) UpdateProject(ctx context.Context, p *project.Project) error {
	p.UpdatedAt = time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE projects SET name = $2, branch = $3, worktree_path = $4, status = $5,
		        parent_id = $6, cost_usd = $7, tokens_in = $8, tokens_out = $9,
		        version = version + 1, updated_at = $10
		 WHERE id = $1 AND version = $11`,
		p.ID, p.Name, p.Branch, p.WorktreePath, p.Status, nullIfEmpty(p.ParentID),
		p.CostUSD, p.TokensIn, p.TokensOut, p.UpdatedAt, p.Version)
	if err != nil {
		return fmt.Errorf("update project %s: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update project %s: %w", p.ID, domain.ErrConflict)
	}
	p.Version++
	return nil
}

func (s *Store) DeleteProject(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	return execExpectOne(tag, err, "delete project %s", id)
}

// --- Tasks ---

const taskColumns = `id, project_id, title, description, status, priority, depends_on, assigned_role, confidence, notes, version, created_at, updated_at`

func scanTask(row scannable) (task.Task, error) {
	var t task.Task
	err := row.Scan(&t.ID, &t.ProjectID, &t.Title, &t.Description, &t.Status,
		&t.Priority, &t.DependsOn, &t.AssignedRole, &t.Confidence, &t.Notes,
		&t.Version, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return task.Task{}, err
	}
	return t, nil
}

func (s *Store) ListTasks(ctx context.Context, projectID string) ([]task.Task, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE project_id = $1 ORDER BY priority DESC, created_at`,
		projectID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (s *Store) GetTask(ctx context.Context, id string) (*task.Task, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)

	t, err := scanTask(row)
	if err != nil {
		return nil, notFoundWrap(err, "get task %s", id)
	}
	return &t, nil
}

func (s *Store) CreateTask(ctx context.Context, t *task.Task) error {
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	t.Version = 1

	_, err := s.pool.Exec(ctx,
		`INSERT INTO tasks (id, project_id, title, description, status, priority, depends_on, assigned_role, confidence, notes, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		t.ID, t.ProjectID, t.Title, t.Description, t.Status, t.Priority,
		pgTextArray(t.DependsOn), t.AssignedRole, t.Confidence, pgTextArray(t.Notes),
		t.Version, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create task %s: %w", t.ID, err)
	}
	return nil
}

// UpdateTask writes the task back under optimistic locking; a stale version
// yields domain.ErrConflict.
func (s *Store) UpdateTask(ctx context.Context, t *task.Task) error {
	t.UpdatedAt = time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE tasks SET title = $2, description = $3, status = $4, priority = $5,
		        depends_on = $6, assigned_role = $7, confidence = $8, notes = $9,
		        version = version + 1, updated_at = $10
		 WHERE id = $1 AND version = $11`,
		t.ID, t.Title, t.Description, t.Status, t.Priority,
		pgTextArray(t.DependsOn), t.AssignedRole, t.Confidence, pgTextArray(t.Notes),
		t.UpdatedAt, t.Version)
	if err != nil {
		return fmt.Errorf("update task %s: %w", t.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update task %s: %w", t.ID, domain.ErrConflict)
	}
	t.Version++
	return nil
}
