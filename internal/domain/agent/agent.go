// Package agent defines agent role instances and their lifecycle.
package agent

import (
	"time"

	"github.com/Strob0t/AgentFoundry/internal/domain"
)

// Role identifies a specialized agent role.
type Role string

const (
	RolePlanner  Role = "planner"
	RoleCoder    Role = "coder"
	RoleTester   Role = "tester"
	RoleCurator  Role = "curator"
	RoleReviewer Role = "reviewer"
)

// Roles lists all known roles.
var Roles = []Role{RolePlanner, RoleCoder, RoleTester, RoleCurator, RoleReviewer}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// State represents the lifecycle state of an agent instance.
type State string

const (
	StateIdle      State = "idle"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// transitions is the allowed state transition table:
// idle -> active -> completed -> idle (handoff), or active -> failed.
var transitions = map[State][]State{
	StateIdle:      {StateActive},
	StateActive:    {StateCompleted, StateFailed},
	StateCompleted: {StateIdle},
	StateFailed:    {StateIdle},
}

// Context is one instance of a role. Instances are created on demand when a
// handoff targets a role with no idle instance and reset to idle afterwards;
// only process teardown destroys them.
type Context struct {
	ID            string    `json:"id"`
	Role          Role      `json:"role"`
	State         State     `json:"state"`
	CurrentTaskID string    `json:"current_task_id,omitempty"`
	SessionID     string    `json:"session_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Transition moves the agent to the given state, rejecting moves not in the
// transition table.
func (c *Context) Transition(to State) error {
	if c.State == to {
		return nil
	}
	for _, allowed := range transitions[c.State] {
		if allowed == to {
			c.State = to
			c.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return domain.NewTransitionError("agent", string(c.State), string(to))
}

// nextTask maps a receiving role to its default starting task on handoff.
var nextTask = map[Role]string{
	RolePlanner:  "Review the current objective and produce an ordered task breakdown.",
	RoleCoder:    "Implement the next executable task from the plan.",
	RoleTester:   "Run the test suite against the latest changes and report failures.",
	RoleCurator:  "Fold the latest results into the knowledge base and prune stale entries.",
	RoleReviewer: "Review the most recent commits for correctness and style.",
}

// DefaultNextTask returns the role-specific default starting task used when a
// handoff bundle is built for the receiving role.
func DefaultNextTask(to Role) string {
	if t, ok := nextTask[to]; ok {
		return t
	}
	return "Pick up the in-flight work from the shared context."
}

// escalation maps a failing role to the role best positioned to fix the
// failure. A quality failure is routed back to the producing role rather
// than propagated downstream.
var escalation = map[Role]Role{
	RoleTester:   RoleCoder,
	RoleReviewer: RoleCoder,
	RoleCoder:    RolePlanner,
	RoleCurator:  RolePlanner,
	RolePlanner:  RolePlanner,
}

// EscalationTarget returns the role a failure in `from` is routed back to.
func EscalationTarget(from Role) Role {
	if to, ok := escalation[from]; ok {
		return to
	}
	return RolePlanner
}
