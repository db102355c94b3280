// Package task defines the Task domain entity and the per-project
// dependency graph operations over task lists.
package task

import (
	"errors"
	"time"

	"github.com/Strob0t/AgentFoundry/internal/domain"
)

// Status represents the current state of a task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusBlocked    Status = "blocked"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusSkipped    Status = "skipped"
)

// transitions is the allowed status transition table. Audit corrections may
// bypass it through ForceStatus since disagreement with the recorded status
// is a normal correction, not an error.
var transitions = map[Status][]Status{
	StatusPending:    {StatusInProgress, StatusBlocked, StatusSkipped},
	StatusInProgress: {StatusCompleted, StatusFailed, StatusBlocked},
	StatusBlocked:    {StatusPending, StatusSkipped, StatusFailed},
	StatusCompleted:  {},
	StatusFailed:     {StatusPending},
	StatusSkipped:    {},
}

// Task represents a work item inside a project's graph.
type Task struct {
	ID           string    `json:"id"`
	ProjectID    string    `json:"project_id"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	Status       Status    `json:"status"`
	Priority     int       `json:"priority"`
	DependsOn    []string  `json:"depends_on,omitempty"`
	AssignedRole string    `json:"assigned_role,omitempty"`
	Confidence   float64   `json:"confidence"`
	Notes        []string  `json:"notes,omitempty"`
	Version      int       `json:"version"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CreateRequest holds the fields needed to create a new task.
type CreateRequest struct {
	ProjectID    string   `json:"project_id"`
	Title        string   `json:"title"`
	Description  string   `json:"description,omitempty"`
	Priority     int      `json:"priority"`
	DependsOn    []string `json:"depends_on,omitempty"`
	AssignedRole string   `json:"assigned_role,omitempty"`
}

// Validate checks that a CreateRequest has all required fields.
func (r *CreateRequest) Validate() error {
	if r.ProjectID == "" {
		return errors.New("project_id is required")
	}
	if r.Title == "" {
		return errors.New("title is required")
	}
	return nil
}

// Transition moves the task to the given status, rejecting moves not in the
// transition table.
func (t *Task) Transition(to Status) error {
	if t.Status == to {
		return nil
	}
	for _, allowed := range transitions[t.Status] {
		if allowed == to {
			t.Status = to
			t.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return domain.NewTransitionError("task", string(t.Status), string(to))
}

// ForceStatus sets the status outside the transition table. Reserved for
// audit reconciliation, where the recorded status is being corrected against
// external evidence.
func (t *Task) ForceStatus(to Status, note string) {
	t.Status = to
	if note != "" {
		t.Notes = append(t.Notes, note)
	}
	t.UpdatedAt = time.Now().UTC()
}
