package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "agentfoundry"

// StartSessionSpan starts a span for an agent session on a work unit.
func StartSessionSpan(ctx context.Context, sessionID, unitID, role string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "session",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.String("unit.id", unitID),
			attribute.String("agent.role", role),
		),
	)
}

// StartGateSpan starts a span for a quality gate stage run.
func StartGateSpan(ctx context.Context, unitID, stage string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "gate",
		trace.WithAttributes(
			attribute.String("unit.id", unitID),
			attribute.String("gate.stage", stage),
		),
	)
}

// StartHandoffSpan starts a span for an agent handoff.
func StartHandoffSpan(ctx context.Context, fromAgent, toRole string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "handoff",
		trace.WithAttributes(
			attribute.String("handoff.from", fromAgent),
			attribute.String("handoff.to_role", toRole),
		),
	)
}
