// Package messagequeue defines the message queue port (interface).
package messagequeue

import "context"

// Handler processes a message received from the queue.
type Handler func(subject string, data []byte) error

// Queue is the port interface for publishing and subscribing to messages.
type Queue interface {
	// Publish sends a message to the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for messages on the given subject.
	// The returned function cancels the subscription.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Drain gracefully drains all subscriptions before closing.
	Drain() error

	// Close shuts down the queue connection immediately.
	Close() error

	// IsConnected reports whether the queue is currently connected.
	IsConnected() bool
}

// Subject constants for the factory's event subjects.
const (
	SubjectTaskUpdated   = "factory.tasks.updated"
	SubjectHandoff       = "factory.agents.handoff"
	SubjectEscalation    = "factory.agents.escalation"
	SubjectGateReport    = "factory.gate.report"
	SubjectCommitCreated = "factory.commits.created"
	SubjectModelSwitched = "factory.models.switched"
)

// HandoffPayload is the schema for factory.agents.handoff messages.
type HandoffPayload struct {
	ProjectID string `json:"project_id"`
	FromAgent string `json:"from_agent"`
	ToAgent   string `json:"to_agent"`
	ToRole    string `json:"to_role"`
	NextTask  string `json:"next_task"`
}

// GateReportPayload is the schema for factory.gate.report messages.
type GateReportPayload struct {
	ProjectID string `json:"project_id"`
	Stage     string `json:"stage"`
	Blocked   bool   `json:"blocked"`
	Failed    int    `json:"failed"`
}

// ModelSwitchedPayload is the schema for factory.models.switched messages.
type ModelSwitchedPayload struct {
	Tier      string `json:"tier"`
	FromModel string `json:"from_model,omitempty"`
	ToModel   string `json:"to_model"`
	Fallback  bool   `json:"fallback"`
}

// TaskUpdatedPayload is the schema for factory.tasks.updated messages.
type TaskUpdatedPayload struct {
	ProjectID string `json:"project_id"`
	TaskID    string `json:"task_id"`
	Status    string `json:"status"`
}
