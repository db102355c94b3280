package telemetry

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "agentfoundry"

// Metrics holds all factory-core metric instruments.
type Metrics struct {
	SessionsStarted   metric.Int64Counter
	SessionsCompleted metric.Int64Counter
	SessionsFailed    metric.Int64Counter
	Handoffs          metric.Int64Counter
	Escalations       metric.Int64Counter
	GateRuns          metric.Int64Counter
	GateBlocked       metric.Int64Counter
	WorktreesActive   metric.Int64UpDownCounter
	ModelSelections   metric.Int64Counter
	ModelFallbacks    metric.Int64Counter
	SessionDuration   metric.Float64Histogram
	SessionCost       metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.SessionsStarted, err = meter.Int64Counter("agentfoundry.sessions.started",
		metric.WithDescription("Number of agent sessions started"))
	if err != nil {
		return nil, err
	}

	m.SessionsCompleted, err = meter.Int64Counter("agentfoundry.sessions.completed",
		metric.WithDescription("Number of agent sessions completed"))
	if err != nil {
		return nil, err
	}

	m.SessionsFailed, err = meter.Int64Counter("agentfoundry.sessions.failed",
		metric.WithDescription("Number of agent sessions failed"))
	if err != nil {
		return nil, err
	}

	m.Handoffs, err = meter.Int64Counter("agentfoundry.handoffs",
		metric.WithDescription("Number of agent-to-agent handoffs"))
	if err != nil {
		return nil, err
	}

	m.Escalations, err = meter.Int64Counter("agentfoundry.escalations",
		metric.WithDescription("Number of agent escalations"))
	if err != nil {
		return nil, err
	}

	m.GateRuns, err = meter.Int64Counter("agentfoundry.gate.runs",
		metric.WithDescription("Number of quality gate stage runs"))
	if err != nil {
		return nil, err
	}

	m.GateBlocked, err = meter.Int64Counter("agentfoundry.gate.blocked",
		metric.WithDescription("Number of gate stage runs that blocked"))
	if err != nil {
		return nil, err
	}

	m.WorktreesActive, err = meter.Int64UpDownCounter("agentfoundry.worktrees.active",
		metric.WithDescription("Number of live unit worktrees"))
	if err != nil {
		return nil, err
	}

	m.ModelSelections, err = meter.Int64Counter("agentfoundry.models.selections",
		metric.WithDescription("Number of model selections"))
	if err != nil {
		return nil, err
	}

	m.ModelFallbacks, err = meter.Int64Counter("agentfoundry.models.fallbacks",
		metric.WithDescription("Number of selections that fell back below the preferred tier"))
	if err != nil {
		return nil, err
	}

	m.SessionDuration, err = meter.Float64Histogram("agentfoundry.session.duration_seconds",
		metric.WithDescription("Agent session duration in seconds"))
	if err != nil {
		return nil, err
	}

	m.SessionCost, err = meter.Float64Histogram("agentfoundry.session.cost_usd",
		metric.WithDescription("Agent session cost in USD"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
