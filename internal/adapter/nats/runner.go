package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Strob0t/AgentFoundry/internal/port/agentrunner"
)

// SubjectRunnerExecute is the request/reply subject the external agent
// runtime listens on. It is deliberately outside the factory.> stream so
// requests are not persisted.
const SubjectRunnerExecute = "runner.execute"

// Runner implements agentrunner.Runner over NATS request/reply. The actual
// runtime is an external worker subscribed to SubjectRunnerExecute.
type Runner struct {
	q *Queue
}

// NewRunner creates a Runner on an existing queue connection.
func NewRunner(q *Queue) *Runner {
	return &Runner{q: q}
}

// Execute sends one request to the runtime and waits for its reply until ctx
// expires.
func (r *Runner) Execute(ctx context.Context, req agentrunner.Request) (*agentrunner.Result, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("runner request marshal: %w", err)
	}

	msg, err := r.q.nc.RequestWithContext(ctx, SubjectRunnerExecute, data)
	if err != nil {
		return nil, fmt.Errorf("runner request: %w", err)
	}

	var res agentrunner.Result
	if err := json.Unmarshal(msg.Data, &res); err != nil {
		return nil, fmt.Errorf("runner reply unmarshal: %w", err)
	}
	return &res, nil
}
