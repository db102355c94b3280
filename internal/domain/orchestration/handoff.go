// Package orchestration provides domain models for agent-to-agent handoffs
// and the collaboration log.
package orchestration

import (
	"errors"
	"time"

	"github.com/Strob0t/AgentFoundry/internal/domain/agent"
	"github.com/Strob0t/AgentFoundry/internal/domain/commitmeta"
	afcontext "github.com/Strob0t/AgentFoundry/internal/domain/context"
)

// Bundle is the context package handed to the receiving agent: the departing
// agent's recent commit records, related knowledge entries, and the
// role-specific default next task.
type Bundle struct {
	FromAgentID   string                     `json:"from_agent_id"`
	ToRole        agent.Role                 `json:"to_role"`
	RecentCommits []commitmeta.Record        `json:"recent_commits,omitempty"`
	Related       []afcontext.KnowledgeEntry `json:"related,omitempty"`
	NextTask      string                     `json:"next_task"`
	Escalation    bool                       `json:"escalation,omitempty"`
	CreatedAt     time.Time                  `json:"created_at"`
}

// Validate checks that a Bundle has all required fields.
func (b *Bundle) Validate() error {
	if b.FromAgentID == "" {
		return errors.New("from_agent_id is required")
	}
	if !b.ToRole.Valid() {
		return errors.New("to_role must be a known role")
	}
	if b.NextTask == "" {
		return errors.New("next_task is required")
	}
	return nil
}

// MessageKind classifies a collaboration log entry.
type MessageKind string

const (
	KindAssignment MessageKind = "assignment"
	KindCompletion MessageKind = "completion"
	KindHandoff    MessageKind = "handoff"
	KindEscalation MessageKind = "escalation"
	KindGate       MessageKind = "gate"
)

// LogEntry is one append-only collaboration log record.
type LogEntry struct {
	ID        string      `json:"id"`
	ProjectID string      `json:"project_id"`
	From      string      `json:"from"`
	To        string      `json:"to"`
	Kind      MessageKind `json:"kind"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"created_at"`
}
