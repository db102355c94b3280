package logger

import "context"

// contextKey is a private type to prevent collisions with other context keys.
type contextKey int

const (
	sessionIDKey contextKey = iota
	unitIDKey
)

// WithSessionID returns a new context with the given agent session ID stored.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey, id)
}

// SessionID extracts the agent session ID from the context.
// Returns an empty string if no session ID is set.
func SessionID(ctx context.Context) string {
	id, _ := ctx.Value(sessionIDKey).(string)
	return id
}

// WithUnitID returns a new context with the given work-unit ID stored.
func WithUnitID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, unitIDKey, id)
}

// UnitID extracts the work-unit ID from the context.
// Returns an empty string if no unit ID is set.
func UnitID(ctx context.Context) string {
	id, _ := ctx.Value(unitIDKey).(string)
	return id
}
