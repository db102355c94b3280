package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Strob0t/AgentFoundry/internal/domain/task"
	"github.com/Strob0t/AgentFoundry/internal/port/database"
	"github.com/Strob0t/AgentFoundry/internal/port/messagequeue"
)

// AuditVerdict is the outcome of externally verifying one task's recorded
// status: whether the work is actually complete, with what confidence, and
// an evidence note.
type AuditVerdict struct {
	TaskID     string  `json:"task_id"`
	Complete   bool    `json:"complete"`
	Confidence float64 `json:"confidence"`
	Note       string  `json:"note,omitempty"`
}

// Verifier performs the external verification step of the audit pass.
// Agents are unreliable self-reporters, so verification never trusts the
// recorded status.
type Verifier interface {
	Verify(ctx context.Context, t task.Task) (AuditVerdict, error)
}

// AuditReport summarizes one audit pass over a project's task list.
type AuditReport struct {
	ProjectID string         `json:"project_id"`
	Verdicts  []AuditVerdict `json:"verdicts"`
	Corrected int            `json:"corrected"`
}

// TaskGraphService maintains the per-project task dependency graph and its
// reconciliation pass.
type TaskGraphService struct {
	store       database.Store
	queue       messagequeue.Queue
	verifier    Verifier
	parallelism int
}

// NewTaskGraphService creates a TaskGraphService. parallelism bounds
// concurrent audit verifications.
func NewTaskGraphService(store database.Store, queue messagequeue.Queue, verifier Verifier, parallelism int) *TaskGraphService {
	if parallelism < 1 {
		parallelism = 1
	}
	return &TaskGraphService{
		store:       store,
		queue:       queue,
		verifier:    verifier,
		parallelism: parallelism,
	}
}

// List returns all tasks for a project.
func (s *TaskGraphService) List(ctx context.Context, projectID string) ([]task.Task, error) {
	return s.store.ListTasks(ctx, projectID)
}

// Get returns a task by ID.
func (s *TaskGraphService) Get(ctx context.Context, id string) (*task.Task, error) {
	return s.store.GetTask(ctx, id)
}

// Add validates the request, rejects dependency cycles, and persists the
// new task.
func (s *TaskGraphService) Add(ctx context.Context, req task.CreateRequest) (*task.Task, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	t := &task.Task{
		ID:           uuid.NewString(),
		ProjectID:    req.ProjectID,
		Title:        req.Title,
		Description:  req.Description,
		Status:       task.StatusPending,
		Priority:     req.Priority,
		DependsOn:    req.DependsOn,
		AssignedRole: req.AssignedRole,
	}

	existing, err := s.store.ListTasks(ctx, req.ProjectID)
	if err != nil {
		return nil, err
	}
	if err := task.CheckAcyclic(append(existing, *t)); err != nil {
		return nil, fmt.Errorf("add task: %w", err)
	}

	if err := s.store.CreateTask(ctx, t); err != nil {
		return nil, err
	}

	s.publishUpdate(ctx, t)
	return t, nil
}

// Update transitions the task to the given status under optimistic locking
// and publishes the change.
func (s *TaskGraphService) Update(ctx context.Context, id string, to task.Status) (*task.Task, error) {
	t, err := s.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := t.Transition(to); err != nil {
		return nil, err
	}
	if err := s.store.UpdateTask(ctx, t); err != nil {
		return nil, err
	}
	s.publishUpdate(ctx, t)
	return t, nil
}

// Executable computes the ready set on demand: pending tasks whose
// dependencies are all completed, highest priority first.
func (s *TaskGraphService) Executable(ctx context.Context, projectID string) ([]task.Task, error) {
	tasks, err := s.store.ListTasks(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return task.Executable(tasks), nil
}

// Audit reconciles recorded statuses against external verification. Each
// verdict that disagrees with the recorded status corrects it and appends
// the evidence note. The pass is idempotent: re-running without intervening
// work produces the same verdicts and no further corrections.
func (s *TaskGraphService) Audit(ctx context.Context, projectID string) (*AuditReport, error) {
	if s.verifier == nil {
		return nil, fmt.Errorf("audit: no verifier configured")
	}

	tasks, err := s.store.ListTasks(ctx, projectID)
	if err != nil {
		return nil, err
	}

	verdicts := make([]AuditVerdict, len(tasks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)
	for i := range tasks {
		g.Go(func() error {
			v, err := s.verifier.Verify(gctx, tasks[i])
			if err != nil {
				return fmt.Errorf("verify task %s: %w", tasks[i].ID, err)
			}
			v.TaskID = tasks[i].ID
			verdicts[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &AuditReport{ProjectID: projectID, Verdicts: verdicts}
	for i := range tasks {
		corrected, err := s.reconcile(ctx, &tasks[i], verdicts[i])
		if err != nil {
			return nil, err
		}
		if corrected {
			report.Corrected++
		}
	}
	return report, nil
}

// reconcile corrects one task's recorded status when the verdict disagrees.
// Disagreement is a normal correction, not an error.
func (s *TaskGraphService) reconcile(ctx context.Context, t *task.Task, v AuditVerdict) (bool, error) {
	recorded := t.Status == task.StatusCompleted
	if recorded == v.Complete {
		if t.Confidence != v.Confidence {
			t.Confidence = v.Confidence
			if err := s.store.UpdateTask(ctx, t); err != nil {
				return false, err
			}
		}
		return false, nil
	}

	to := task.StatusCompleted
	if !v.Complete {
		to = task.StatusPending
	}
	t.ForceStatus(to, v.Note)
	t.Confidence = v.Confidence
	if err := s.store.UpdateTask(ctx, t); err != nil {
		return false, err
	}

	slog.Info("audit corrected task status",
		"task_id", t.ID, "status", to, "confidence", v.Confidence)
	s.publishUpdate(ctx, t)
	return true, nil
}

func (s *TaskGraphService) publishUpdate(ctx context.Context, t *task.Task) {
	if s.queue == nil {
		return
	}
	data, err := json.Marshal(messagequeue.TaskUpdatedPayload{
		ProjectID: t.ProjectID,
		TaskID:    t.ID,
		Status:    string(t.Status),
	})
	if err != nil {
		return
	}
	if err := s.queue.Publish(ctx, messagequeue.SubjectTaskUpdated, data); err != nil {
		slog.Error("failed to publish task update", "task_id", t.ID, "error", err)
	}
}
